// ABOUTME: Thread façade and the factory that creates or reattaches threads
// ABOUTME: Unknown thread ids are validated against the backend, then persisted

package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/2389/tallkotte/internal/backend"
	"github.com/2389/tallkotte/internal/conversation"
	"github.com/2389/tallkotte/internal/store"
)

// DefaultMessageLimit is the page size for GetMessages.
const DefaultMessageLimit = 20

// ThreadStore persists thread entities.
type ThreadStore interface {
	Save(ctx context.Context, t store.Thread) error
	Get(ctx context.Context, id string) (store.Thread, error)
	IDsByAssistant(ctx context.Context, assistantID string) ([]string, error)
}

// Thread is one conversation bound to an assistant.
type Thread struct {
	entity      store.Thread
	assistantID string
	orch        *conversation.Orchestrator
	backend     backend.Client
}

// ID returns the thread id.
func (t *Thread) ID() string { return t.entity.ID }

// Entity returns the stored thread.
func (t *Thread) Entity() store.Thread { return t.entity }

// Send posts text and starts a run without waiting for it.
func (t *Thread) Send(ctx context.Context, text string) (store.Message, error) {
	return t.orch.Send(ctx, t.assistantID, t.entity.ID, text)
}

// GetResponse waits for the run behind msg and returns the assistant's reply.
func (t *Thread) GetResponse(ctx context.Context, msg store.Message) ([]store.Message, error) {
	if msg.ThreadID == "" {
		msg.ThreadID = t.entity.ID
	}
	return t.orch.Response(ctx, msg)
}

// GetMessages lists the thread's messages from the backend, newest first and
// 20 at a time unless opts says otherwise.
func (t *Thread) GetMessages(ctx context.Context, opts backend.ListOptions) ([]store.Message, error) {
	if opts.Limit <= 0 {
		opts.Limit = DefaultMessageLimit
	}
	if opts.Sort == "" {
		opts.Sort = backend.SortDesc
	}
	return t.backend.ListMessages(ctx, t.entity.ID, opts)
}

// Threads creates and reattaches Thread values.
type Threads struct {
	backend     backend.Client
	store       ThreadStore
	orch        *conversation.Orchestrator
	initMessage string
	logger      *slog.Logger
}

// NewThreads creates a thread factory. initMessage seeds new threads that are
// created without an explicit opening message.
func NewThreads(b backend.Client, ts ThreadStore, orch *conversation.Orchestrator, initMessage string, logger *slog.Logger) *Threads {
	if logger == nil {
		logger = slog.Default()
	}
	return &Threads{
		backend:     b,
		store:       ts,
		orch:        orch,
		initMessage: initMessage,
		logger:      logger.With("component", "threads"),
	}
}

func (f *Threads) wrap(assistantID string, t store.Thread) *Thread {
	return &Thread{entity: t, assistantID: assistantID, orch: f.orch, backend: f.backend}
}

// Create uploads files, creates a thread seeded with them, and persists it.
func (f *Threads) Create(ctx context.Context, assistantID string, files []string, initMessage string) (*Thread, error) {
	handles := make([]backend.FileHandle, 0, len(files))
	for _, path := range files {
		h, err := f.backend.OpenFile(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("attaching %s: %w", path, err)
		}
		handles = append(handles, h)
	}

	if initMessage == "" {
		initMessage = f.initMessage
	}

	t, err := f.backend.CreateThread(ctx, initMessage, handles)
	if err != nil {
		return nil, fmt.Errorf("creating thread: %w", err)
	}
	t.AssistantID = assistantID
	if err := f.store.Save(ctx, t); err != nil {
		return nil, err
	}

	f.logger.Info("thread created", "thread_id", t.ID, "assistant_id", assistantID, "files", len(handles))
	return f.wrap(assistantID, t), nil
}

// Open returns an existing thread, checking the backend when it is not stored locally.
func (f *Threads) Open(ctx context.Context, assistantID, id string) (*Thread, error) {
	t, err := f.store.Get(ctx, id)
	if err == nil {
		return f.wrap(assistantID, t), nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("loading thread %s: %w", id, err)
	}

	t, err = f.backend.RetrieveThread(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("retrieving thread %s: %w", id, err)
	}
	t.AssistantID = assistantID
	if err := f.store.Save(ctx, t); err != nil {
		return nil, err
	}

	f.logger.Debug("thread attached", "thread_id", id, "assistant_id", assistantID)
	return f.wrap(assistantID, t), nil
}
