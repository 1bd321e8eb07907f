// ABOUTME: In-memory fan-out of run outcomes to subscribers of a thread
// ABOUTME: Lets clients learn that a response landed without polling getResponse

package conversation

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/2389/tallkotte/internal/store"
)

const (
	// subscriberBufferSize is the channel buffer for each subscriber.
	subscriberBufferSize = 16
)

// RunEvent reports that a run settled: completed with messages, or timed out.
type RunEvent struct {
	ThreadID string          `json:"thread_id"`
	RunID    string          `json:"run_id"`
	Status   store.RunStatus `json:"status"`
	Messages []store.Message `json:"messages,omitempty"`
}

// EventBroadcaster provides in-memory pub/sub for RunEvents keyed by thread id.
type EventBroadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]map[string]chan RunEvent // threadID -> subID -> ch
	logger      *slog.Logger
}

// NewEventBroadcaster creates a broadcaster. Pass nil logger for default.
func NewEventBroadcaster(logger *slog.Logger) *EventBroadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventBroadcaster{
		subscribers: make(map[string]map[string]chan RunEvent),
		logger:      logger.With("component", "broadcaster"),
	}
}

// Subscribe registers for events on threadID. The subscription is removed and
// its channel closed when ctx is cancelled.
func (b *EventBroadcaster) Subscribe(ctx context.Context, threadID string) (<-chan RunEvent, string) {
	subID := uuid.New().String()
	ch := make(chan RunEvent, subscriberBufferSize)

	b.mu.Lock()
	if _, ok := b.subscribers[threadID]; !ok {
		b.subscribers[threadID] = make(map[string]chan RunEvent)
	}
	b.subscribers[threadID][subID] = ch
	b.mu.Unlock()

	b.logger.Debug("subscriber added", "thread_id", threadID, "sub_id", subID)

	go func() {
		<-ctx.Done()
		b.Unsubscribe(threadID, subID)
	}()

	return ch, subID
}

// Publish sends an event to every subscriber of its thread.
// Non-blocking: events are dropped for subscribers whose channels are full.
func (b *EventBroadcaster) Publish(event RunEvent) {
	// Sends happen under the read lock so Unsubscribe cannot close a channel mid-send.
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subscribers[event.ThreadID] {
		select {
		case ch <- event:
		default:
			b.logger.Debug("dropped event for slow subscriber",
				"thread_id", event.ThreadID,
				"run_id", event.RunID)
		}
	}
}

// Subscribers returns the number of subscribers for threadID.
func (b *EventBroadcaster) Subscribers(threadID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[threadID])
}

// Unsubscribe removes a subscription and closes its channel.
func (b *EventBroadcaster) Unsubscribe(threadID, subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.subscribers[threadID]
	if !ok {
		return
	}
	ch, exists := subs[subID]
	if !exists {
		return
	}

	delete(subs, subID)
	close(ch)
	if len(subs) == 0 {
		delete(b.subscribers, threadID)
	}

	b.logger.Debug("subscriber removed", "thread_id", threadID, "sub_id", subID)
}

// Close closes every subscriber channel.
func (b *EventBroadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for threadID, subs := range b.subscribers {
		for subID, ch := range subs {
			close(ch)
			delete(subs, subID)
		}
		delete(b.subscribers, threadID)
	}
}
