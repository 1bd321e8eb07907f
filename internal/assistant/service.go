// ABOUTME: Service is the assistant façade: bootstrap, thread selection, and message dispatch
// ABOUTME: Response fetching runs on the worker pool so SendMessage returns immediately

package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/2389/tallkotte/internal/backend"
	"github.com/2389/tallkotte/internal/conversation"
	"github.com/2389/tallkotte/internal/store"
	"github.com/2389/tallkotte/internal/worker"
)

// AssistantStore persists the assistant entity.
type AssistantStore interface {
	Save(ctx context.Context, a store.Assistant) error
	Get(ctx context.Context, id string) (store.Assistant, error)
	FindByName(ctx context.Context, name string) (store.Assistant, error)
}

// MessageFinder looks up persisted messages.
type MessageFinder interface {
	FindByID(ctx context.Context, id string) (store.Message, error)
	FindByRunID(ctx context.Context, runID string) ([]store.Message, error)
}

// Bootstrap selects the assistant the service fronts. A set AssistantID is
// loaded; otherwise an assistant named Spec.Name is reused or created.
type Bootstrap struct {
	AssistantID string
	Spec        backend.AssistantSpec
}

// Deps are the collaborators a Service needs.
type Deps struct {
	Backend      backend.Client
	Assistants   AssistantStore
	Threads      ThreadStore
	Messages     MessageFinder
	Orchestrator *conversation.Orchestrator
	Pool         *worker.Pool
	// InitMessage seeds threads created without an explicit opening message.
	InitMessage string
}

// Service fronts one assistant.
type Service struct {
	backend    backend.Client
	assistants AssistantStore
	threadIDs  ThreadStore
	messages   MessageFinder
	threads    *Threads
	pool       *worker.Pool
	logger     *slog.Logger

	mu        sync.Mutex
	assistant store.Assistant
}

// NewService creates a Service. Call Bootstrap before anything else.
func NewService(deps Deps, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	pool := deps.Pool
	if pool == nil {
		pool = worker.New(worker.DefaultSize, logger)
	}
	return &Service{
		backend:    deps.Backend,
		assistants: deps.Assistants,
		threadIDs:  deps.Threads,
		messages:   deps.Messages,
		threads:    NewThreads(deps.Backend, deps.Threads, deps.Orchestrator, deps.InitMessage, logger),
		pool:       pool,
		logger:     logger.With("component", "assistant"),
	}
}

// Bootstrap resolves the assistant and makes it current.
func (s *Service) Bootstrap(ctx context.Context, b Bootstrap) (store.Assistant, error) {
	var (
		a   store.Assistant
		err error
	)
	switch {
	case b.AssistantID != "":
		a, err = s.load(ctx, b.AssistantID)
	case b.Spec.Name != "":
		a, err = s.assistants.FindByName(ctx, b.Spec.Name)
		if errors.Is(err, store.ErrNotFound) {
			a, err = s.create(ctx, b.Spec)
		}
	default:
		return store.Assistant{}, fmt.Errorf("%w: assistant id or name is required", store.ErrValidation)
	}
	if err != nil {
		return store.Assistant{}, err
	}

	s.mu.Lock()
	s.assistant = a
	s.mu.Unlock()

	s.logger.Info("assistant ready",
		"assistant_id", a.ID,
		"name", a.Name,
		"threads", len(a.Threads),
		"active_thread", a.ActiveThread,
	)
	return a, nil
}

func (s *Service) load(ctx context.Context, id string) (store.Assistant, error) {
	a, err := s.assistants.Get(ctx, id)
	if err == nil {
		return a, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return store.Assistant{}, err
	}

	a, err = s.backend.RetrieveAssistant(ctx, id)
	if err != nil {
		return store.Assistant{}, fmt.Errorf("retrieving assistant %s: %w", id, err)
	}
	ids, err := s.threadIDs.IDsByAssistant(ctx, id)
	if err != nil {
		return store.Assistant{}, err
	}
	a.Threads = ids
	if err := s.assistants.Save(ctx, a); err != nil {
		return store.Assistant{}, err
	}
	return a, nil
}

func (s *Service) create(ctx context.Context, spec backend.AssistantSpec) (store.Assistant, error) {
	a, err := s.backend.CreateAssistant(ctx, spec)
	if err != nil {
		return store.Assistant{}, fmt.Errorf("creating assistant %q: %w", spec.Name, err)
	}
	if err := s.assistants.Save(ctx, a); err != nil {
		return store.Assistant{}, err
	}
	s.logger.Info("assistant created", "assistant_id", a.ID, "name", a.Name)
	return a, nil
}

// Assistant returns a copy of the current assistant.
func (s *Service) Assistant() store.Assistant {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot()
}

// snapshot copies the current assistant. Callers hold s.mu.
func (s *Service) snapshot() store.Assistant {
	a := s.assistant
	a.Threads = slices.Clone(s.assistant.Threads)
	a.Tools = slices.Clone(s.assistant.Tools)
	return a
}

func (s *Service) assistantID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.assistant.ID
}

// attach records threadID on the assistant and persists the change. The
// in-memory assistant only changes once the save has succeeded.
func (s *Service) attach(ctx context.Context, threadID string, activate bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.assistant.HasThread(threadID) && (!activate || s.assistant.ActiveThread == threadID) {
		return nil
	}
	next := s.snapshot()
	next.AddThread(threadID, activate)
	if err := s.assistants.Save(ctx, next); err != nil {
		return fmt.Errorf("attaching thread %s: %w", threadID, err)
	}
	s.assistant = next
	return nil
}

// CreateThread starts a new thread, optionally seeded with files and an
// opening message, and records it on the assistant.
func (s *Service) CreateThread(ctx context.Context, files []string, initMessage string, activate bool) (store.Thread, error) {
	th, err := s.createThread(ctx, files, initMessage, activate)
	if err != nil {
		return store.Thread{}, err
	}
	return th.Entity(), nil
}

func (s *Service) createThread(ctx context.Context, files []string, initMessage string, activate bool) (*Thread, error) {
	id := s.assistantID()
	if id == "" {
		return nil, fmt.Errorf("%w: assistant is not bootstrapped", store.ErrValidation)
	}
	th, err := s.threads.Create(ctx, id, files, initMessage)
	if err != nil {
		return nil, err
	}
	if err := s.attach(ctx, th.ID(), activate); err != nil {
		return nil, err
	}
	return th, nil
}

// GetThread returns threadID, or the active thread when threadID is empty.
// With no active thread a new one is created and activated. Looking up a
// thread does not add it to the assistant's threads.
func (s *Service) GetThread(ctx context.Context, threadID string) (*Thread, error) {
	return s.resolveThread(ctx, threadID, false)
}

// resolveThread is GetThread; with attach set an explicitly named thread is
// also recorded on the assistant.
func (s *Service) resolveThread(ctx context.Context, threadID string, attach bool) (*Thread, error) {
	id := s.assistantID()
	if id == "" {
		return nil, fmt.Errorf("%w: assistant is not bootstrapped", store.ErrValidation)
	}

	if threadID == "" {
		s.mu.Lock()
		threadID = s.assistant.ActiveThread
		s.mu.Unlock()
		if threadID == "" {
			return s.createThread(ctx, nil, "", true)
		}
	}

	th, err := s.threads.Open(ctx, id, threadID)
	if err != nil {
		return nil, err
	}
	if attach {
		if err := s.attach(ctx, th.ID(), false); err != nil {
			return nil, err
		}
	}
	return th, nil
}

// SendMessage posts text to threadID (or the active thread) and returns the
// persisted user message. The response is fetched in the background.
func (s *Service) SendMessage(ctx context.Context, text, threadID string) (store.Message, error) {
	if strings.TrimSpace(text) == "" {
		return store.Message{}, fmt.Errorf("%w: message text is required", store.ErrValidation)
	}

	th, err := s.resolveThread(ctx, threadID, true)
	if err != nil {
		return store.Message{}, err
	}
	msg, err := th.Send(ctx, text)
	if err != nil {
		return store.Message{}, err
	}

	s.pool.Submit("response:"+msg.ID, func(ctx context.Context) error {
		_, err := th.GetResponse(ctx, msg)
		return err
	})
	return msg, nil
}

// GetMessages lists messages in threadID, or the active thread when empty.
// With neither it returns an empty list rather than creating a thread.
func (s *Service) GetMessages(ctx context.Context, threadID string, opts backend.ListOptions) ([]store.Message, error) {
	if threadID == "" {
		s.mu.Lock()
		threadID = s.assistant.ActiveThread
		s.mu.Unlock()
		if threadID == "" {
			return []store.Message{}, nil
		}
	}
	th, err := s.GetThread(ctx, threadID)
	if err != nil {
		return nil, err
	}
	return th.GetMessages(ctx, opts)
}

// GetRun returns the backend's view of runID. The thread is taken from the
// run's persisted messages, falling back to the active thread.
func (s *Service) GetRun(ctx context.Context, runID string) (store.Run, error) {
	if runID == "" {
		return store.Run{}, fmt.Errorf("%w: run id is required", store.ErrValidation)
	}

	var threadID string
	msgs, err := s.messages.FindByRunID(ctx, runID)
	if err != nil {
		return store.Run{}, err
	}
	for _, m := range msgs {
		if m.ThreadID != "" {
			threadID = m.ThreadID
			break
		}
	}
	if threadID == "" {
		s.mu.Lock()
		threadID = s.assistant.ActiveThread
		s.mu.Unlock()
	}
	if threadID == "" {
		return store.Run{}, fmt.Errorf("run %s: no thread to look it up in: %w", runID, store.ErrNotFound)
	}

	run, err := s.backend.RetrieveRun(ctx, runID, threadID)
	if err != nil {
		return store.Run{}, fmt.Errorf("retrieving run %s: %w", runID, err)
	}
	return run, nil
}

// GetResponse waits for the reply to the user message messageID.
func (s *Service) GetResponse(ctx context.Context, messageID string) ([]store.Message, error) {
	msg, err := s.messages.FindByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg.Role != store.RoleUser {
		return nil, fmt.Errorf("%w: message %s is not a user message", store.ErrValidation, messageID)
	}
	if msg.RunID == "" {
		return nil, fmt.Errorf("%w: message %s has no run", store.ErrValidation, messageID)
	}

	th, err := s.GetThread(ctx, msg.ThreadID)
	if err != nil {
		return nil, err
	}
	return th.GetResponse(ctx, msg)
}
