// ABOUTME: Run-completion orchestrator driving send, run, poll, and fetch
// ABOUTME: The user message is persisted with its run id before anything waits on the run

package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/2389/tallkotte/internal/backend"
	"github.com/2389/tallkotte/internal/store"
)

// Default polling parameters.
const (
	DefaultWaitDelay = 2 * time.Second
	DefaultMaxWait   = 60 * time.Second
)

// Backend is the slice of the backend client the orchestrator drives.
type Backend interface {
	CreateMessage(ctx context.Context, threadID, text string) (store.Message, error)
	CreateRun(ctx context.Context, assistantID, threadID string) (store.Run, error)
	RetrieveRun(ctx context.Context, runID, threadID string) (store.Run, error)
	ListMessages(ctx context.Context, threadID string, opts backend.ListOptions) ([]store.Message, error)
}

// MessageStore is what the orchestrator needs from message persistence.
type MessageStore interface {
	Save(ctx context.Context, messages []store.Message) ([]string, error)
	FindByRunIDAndRole(ctx context.Context, runID string, role store.Role) ([]store.Message, error)
	Exists(ctx context.Context, id string) (bool, error)
}

// Options tunes polling. Now and Sleep are replaceable for tests.
type Options struct {
	WaitDelay time.Duration
	MaxWait   time.Duration
	Now       func() time.Time
	Sleep     func(ctx context.Context, d time.Duration) error
}

// Orchestrator runs the send → run → poll → fetch lifecycle.
type Orchestrator struct {
	backend   Backend
	messages  MessageStore
	statuses  *RunStatuses
	events    *EventBroadcaster
	waitDelay time.Duration
	maxWait   time.Duration
	now       func() time.Time
	sleep     func(ctx context.Context, d time.Duration) error
	inflight  singleflight.Group
	logger    *slog.Logger
}

// New creates an Orchestrator. events may be nil.
func New(b Backend, messages MessageStore, statuses *RunStatuses, events *EventBroadcaster, opts Options, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.WaitDelay <= 0 {
		opts.WaitDelay = DefaultWaitDelay
	}
	if opts.MaxWait <= 0 {
		opts.MaxWait = DefaultMaxWait
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepContext
	}
	return &Orchestrator{
		backend:   b,
		messages:  messages,
		statuses:  statuses,
		events:    events,
		waitDelay: opts.WaitDelay,
		maxWait:   opts.MaxWait,
		now:       opts.Now,
		sleep:     opts.Sleep,
		logger:    logger.With("component", "orchestrator"),
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Send posts text to the thread, starts a run, and persists the user message
// with the run id attached. It returns without waiting for the run.
func (o *Orchestrator) Send(ctx context.Context, assistantID, threadID, text string) (store.Message, error) {
	if text == "" {
		return store.Message{}, fmt.Errorf("%w: message text is required", store.ErrValidation)
	}

	msg, err := o.backend.CreateMessage(ctx, threadID, text)
	if err != nil {
		return store.Message{}, fmt.Errorf("sending message: %w", err)
	}

	run, err := o.backend.CreateRun(ctx, assistantID, threadID)
	if err != nil {
		return store.Message{}, fmt.Errorf("starting run: %w", err)
	}
	o.statuses.Set(ctx, run.ID, store.RunStatusCreated)

	msg.RunID = run.ID
	if msg.ThreadID == "" {
		msg.ThreadID = threadID
	}
	if _, err := o.messages.Save(ctx, []store.Message{msg}); err != nil {
		return store.Message{}, err
	}

	o.logger.Debug("message sent",
		"thread_id", threadID,
		"message_id", msg.ID,
		"run_id", run.ID)
	return msg, nil
}

// Response returns the assistant messages for userMsg's run. Already persisted
// responses are returned without touching the backend; otherwise it waits for
// the run and fetches. Concurrent calls for one run share a single poll and
// fetch, so a background task and a client asking at the same time cannot
// persist the same reply twice.
func (o *Orchestrator) Response(ctx context.Context, userMsg store.Message) ([]store.Message, error) {
	v, err, _ := o.inflight.Do(userMsg.RunID, func() (any, error) {
		return o.response(ctx, userMsg)
	})
	if err != nil {
		return nil, err
	}
	return slices.Clone(v.([]store.Message)), nil
}

func (o *Orchestrator) response(ctx context.Context, userMsg store.Message) ([]store.Message, error) {
	saved, err := o.messages.FindByRunIDAndRole(ctx, userMsg.RunID, store.RoleAssistant)
	if err != nil {
		return nil, fmt.Errorf("loading saved response: %w", err)
	}
	if len(saved) > 0 {
		return saved, nil
	}

	if err := o.AwaitCompletion(ctx, userMsg.RunID, userMsg.ThreadID); err != nil {
		return nil, err
	}
	return o.Fetch(ctx, userMsg)
}

// AwaitCompletion polls the run until it leaves the pending states or the wait
// bound passes. A run already cached as completed is not polled.
func (o *Orchestrator) AwaitCompletion(ctx context.Context, runID, threadID string) error {
	if status, ok := o.statuses.Get(ctx, runID); ok && status == store.RunStatusCompleted {
		return nil
	}

	start := o.now()
	run, err := o.backend.RetrieveRun(ctx, runID, threadID)
	if err != nil {
		return fmt.Errorf("polling run %s: %w", runID, err)
	}

	for run.Status.Pending() {
		elapsed := o.now().Sub(start)
		if elapsed >= o.maxWait {
			o.statuses.Set(ctx, runID, store.RunStatusTimeout)
			o.publish(RunEvent{ThreadID: threadID, RunID: runID, Status: store.RunStatusTimeout})
			o.logger.Warn("run timed out",
				"run_id", runID,
				"thread_id", threadID,
				"last_status", run.Status,
				"elapsed", elapsed)
			return fmt.Errorf("run %s still %s after %s: %w", runID, run.Status, elapsed, store.ErrTimeout)
		}

		o.logger.Debug("run pending", "run_id", runID, "status", run.Status, "elapsed", elapsed)
		if err := o.sleep(ctx, o.waitDelay); err != nil {
			return fmt.Errorf("waiting for run %s: %w", runID, err)
		}

		run, err = o.backend.RetrieveRun(ctx, runID, threadID)
		if err != nil {
			return fmt.Errorf("polling run %s: %w", runID, err)
		}
	}

	if run.Status != store.RunStatusCompleted {
		o.logger.Warn("run settled without completing", "run_id", runID, "status", run.Status)
	}
	o.statuses.Set(ctx, runID, store.RunStatusCompleted)
	return nil
}

// Fetch lists the assistant messages posted after userMsg, persists the ones not
// seen before, and returns those new messages in chronological order.
func (o *Orchestrator) Fetch(ctx context.Context, userMsg store.Message) ([]store.Message, error) {
	// Listing runs newest first, so "before" the user message means newer than it.
	listed, err := o.backend.ListMessages(ctx, userMsg.ThreadID, backend.ListOptions{
		Before: userMsg.ID,
		Sort:   backend.SortDesc,
	})
	if err != nil {
		return nil, fmt.Errorf("listing response messages: %w", err)
	}

	seen := make(map[string]bool, len(listed))
	var fresh []store.Message
	for _, m := range listed {
		if m.Role != store.RoleAssistant || seen[m.ID] {
			continue
		}
		if m.RunID != "" && m.RunID != userMsg.RunID {
			continue
		}
		seen[m.ID] = true

		exists, err := o.messages.Exists(ctx, m.ID)
		if err != nil {
			return nil, fmt.Errorf("checking message %s: %w", m.ID, err)
		}
		if exists {
			continue
		}

		m.RunID = userMsg.RunID
		if m.ThreadID == "" {
			m.ThreadID = userMsg.ThreadID
		}
		fresh = append(fresh, m)
	}

	slices.SortStableFunc(fresh, byCreatedAt)

	if _, err := o.messages.Save(ctx, fresh); err != nil {
		return nil, err
	}

	o.logger.Info("response fetched",
		"thread_id", userMsg.ThreadID,
		"run_id", userMsg.RunID,
		"listed", len(listed),
		"new", len(fresh))
	o.publish(RunEvent{ThreadID: userMsg.ThreadID, RunID: userMsg.RunID, Status: store.RunStatusCompleted, Messages: fresh})
	return fresh, nil
}

func byCreatedAt(a, b store.Message) int {
	switch {
	case a.CreatedAt < b.CreatedAt:
		return -1
	case a.CreatedAt > b.CreatedAt:
		return 1
	}
	return 0
}

func (o *Orchestrator) publish(e RunEvent) {
	if o.events != nil {
		o.events.Publish(e)
	}
}
