// ABOUTME: Tests for the assistant service and thread façade
// ABOUTME: Runs against a fake backend with real DAOs over in-memory stores

package assistant

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/tallkotte/internal/backend"
	"github.com/2389/tallkotte/internal/cache"
	"github.com/2389/tallkotte/internal/conversation"
	"github.com/2389/tallkotte/internal/docstore"
	"github.com/2389/tallkotte/internal/store"
	"github.com/2389/tallkotte/internal/worker"
)

type fakeBackend struct {
	mu sync.Mutex

	assistants map[string]store.Assistant
	threads    map[string]store.Thread
	reply      string
	nextID     int

	createAssistantCalls   int
	retrieveAssistantCalls int
	createThreadCalls      int
	retrieveThreadCalls    int
	createMessageCalls     int
	retrieveRunCalls       int
	openedFiles            []string
	lastInit               string
	lastThreadFiles        []backend.FileHandle
	lastList               backend.ListOptions
	lastRunThread          string
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		assistants: map[string]store.Assistant{},
		threads:    map[string]store.Thread{},
		reply:      "hello back",
	}
}

func (f *fakeBackend) id(prefix string) string {
	f.nextID++
	return fmt.Sprintf("%s_%d", prefix, f.nextID)
}

func (f *fakeBackend) CreateAssistant(ctx context.Context, spec backend.AssistantSpec) (store.Assistant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createAssistantCalls++
	a := store.Assistant{ID: f.id("asst"), Name: spec.Name, Instructions: spec.Instructions, Tools: spec.Tools}
	f.assistants[a.ID] = a
	return a, nil
}

func (f *fakeBackend) RetrieveAssistant(ctx context.Context, id string) (store.Assistant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.retrieveAssistantCalls++
	a, ok := f.assistants[id]
	if !ok {
		return store.Assistant{}, fmt.Errorf("retrieve assistant: %w", store.ErrNotFound)
	}
	return a, nil
}

func (f *fakeBackend) OpenFile(ctx context.Context, path string) (backend.FileHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.openedFiles = append(f.openedFiles, path)
	return backend.FileHandle{ID: f.id("file"), Name: path}, nil
}

func (f *fakeBackend) CreateThread(ctx context.Context, initMessage string, files []backend.FileHandle) (store.Thread, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createThreadCalls++
	f.lastInit = initMessage
	f.lastThreadFiles = files
	t := store.Thread{ID: f.id("thread"), CreatedAt: int64(f.nextID)}
	f.threads[t.ID] = t
	return t, nil
}

func (f *fakeBackend) RetrieveThread(ctx context.Context, id string) (store.Thread, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.retrieveThreadCalls++
	t, ok := f.threads[id]
	if !ok {
		return store.Thread{}, fmt.Errorf("retrieve thread: %w", store.ErrNotFound)
	}
	return t, nil
}

func (f *fakeBackend) CreateMessage(ctx context.Context, threadID, text string) (store.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createMessageCalls++
	return store.Message{
		ID:        f.id("msg"),
		Role:      store.RoleUser,
		CreatedAt: int64(f.nextID),
		ThreadID:  threadID,
		Content:   []string{text},
	}, nil
}

func (f *fakeBackend) CreateRun(ctx context.Context, assistantID, threadID string) (store.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return store.Run{ID: f.id("run"), Status: store.RunStatusQueued, ThreadID: threadID}, nil
}

func (f *fakeBackend) RetrieveRun(ctx context.Context, runID, threadID string) (store.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.retrieveRunCalls++
	f.lastRunThread = threadID
	return store.Run{ID: runID, Status: store.RunStatusCompleted, ThreadID: threadID}, nil
}

func (f *fakeBackend) ListMessages(ctx context.Context, threadID string, opts backend.ListOptions) ([]store.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastList = opts
	return []store.Message{{
		ID:        "msg_reply_" + threadID,
		Role:      store.RoleAssistant,
		CreatedAt: 10_000,
		ThreadID:  threadID,
		Content:   []string{f.reply},
	}}, nil
}

// failingAssistants fails Save while saveErr is set.
type failingAssistants struct {
	*store.AssistantDAO
	saveErr error
}

func (f *failingAssistants) Save(ctx context.Context, a store.Assistant) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	return f.AssistantDAO.Save(ctx, a)
}

type serviceHarness struct {
	svc        *Service
	backend    *fakeBackend
	assistants *failingAssistants
	threads    *store.ThreadDAO
	messages   *store.MessageDAO
	pool       *worker.Pool
}

func newServiceHarness(t *testing.T) *serviceHarness {
	t.Helper()
	docs := docstore.NewMemoryStore()
	c := cache.NewMemoryStore(time.Hour, 1000)
	t.Cleanup(func() { c.Close() })

	h := &serviceHarness{
		backend:    newFakeBackend(),
		assistants: &failingAssistants{AssistantDAO: store.NewAssistantDAO(docs, c, nil)},
		threads:    store.NewThreadDAO(docs, c, nil),
		messages:   store.NewMessageDAO(docs, c, nil),
		pool:       worker.New(worker.DefaultSize, nil),
	}
	orch := conversation.New(h.backend, h.messages, conversation.NewRunStatuses(c, nil), nil, conversation.Options{
		Sleep: func(ctx context.Context, d time.Duration) error { return nil },
	}, nil)
	h.svc = NewService(Deps{
		Backend:      h.backend,
		Assistants:   h.assistants,
		Threads:      h.threads,
		Messages:     h.messages,
		Orchestrator: orch,
		Pool:         h.pool,
		InitMessage:  "You are a helpful assistant.",
	}, nil)
	return h
}

func (h *serviceHarness) bootstrap(t *testing.T) store.Assistant {
	t.Helper()
	a, err := h.svc.Bootstrap(context.Background(), Bootstrap{Spec: backend.AssistantSpec{Name: "helper"}})
	require.NoError(t, err)
	return a
}

func (h *serviceHarness) drain(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, h.pool.Wait(ctx))
}

func TestBootstrap_CreatesAssistantByName(t *testing.T) {
	h := newServiceHarness(t)
	ctx := context.Background()

	a := h.bootstrap(t)
	assert.Equal(t, "helper", a.Name)
	assert.Equal(t, 1, h.backend.createAssistantCalls)

	stored, err := h.assistants.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.ID, stored.ID)
}

func TestBootstrap_ReusesAssistantWithSameName(t *testing.T) {
	h := newServiceHarness(t)

	first := h.bootstrap(t)
	second := h.bootstrap(t)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, h.backend.createAssistantCalls)
}

func TestBootstrap_ByIDLoadsFromBackendOnce(t *testing.T) {
	h := newServiceHarness(t)
	ctx := context.Background()

	h.backend.assistants["asst_remote"] = store.Assistant{ID: "asst_remote", Name: "remote"}
	require.NoError(t, h.threads.Save(ctx, store.Thread{ID: "thread_old", AssistantID: "asst_remote", CreatedAt: 1}))

	a, err := h.svc.Bootstrap(ctx, Bootstrap{AssistantID: "asst_remote"})
	require.NoError(t, err)
	assert.Equal(t, []string{"thread_old"}, a.Threads)
	assert.Equal(t, 1, h.backend.retrieveAssistantCalls)

	_, err = h.svc.Bootstrap(ctx, Bootstrap{AssistantID: "asst_remote"})
	require.NoError(t, err)
	assert.Equal(t, 1, h.backend.retrieveAssistantCalls, "second bootstrap should hit the store")
}

func TestBootstrap_UnknownIDIsNotFound(t *testing.T) {
	h := newServiceHarness(t)

	_, err := h.svc.Bootstrap(context.Background(), Bootstrap{AssistantID: "asst_missing"})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestBootstrap_RequiresIDOrName(t *testing.T) {
	h := newServiceHarness(t)

	_, err := h.svc.Bootstrap(context.Background(), Bootstrap{})
	assert.ErrorIs(t, err, store.ErrValidation)
}

func TestCreateThread_AttachesFilesAndActivates(t *testing.T) {
	h := newServiceHarness(t)
	ctx := context.Background()
	h.bootstrap(t)

	th, err := h.svc.CreateThread(ctx, []string{"notes.md", "data.csv"}, "", true)
	require.NoError(t, err)

	assert.Equal(t, []string{"notes.md", "data.csv"}, h.backend.openedFiles)
	assert.Len(t, h.backend.lastThreadFiles, 2)
	assert.Equal(t, "You are a helpful assistant.", h.backend.lastInit)

	a := h.svc.Assistant()
	assert.Equal(t, th.ID, a.ActiveThread)
	assert.Contains(t, a.Threads, th.ID)

	stored, err := h.threads.Get(ctx, th.ID)
	require.NoError(t, err)
	assert.Equal(t, a.ID, stored.AssistantID)
}

func TestCreateThread_WithoutActivateKeepsActiveThread(t *testing.T) {
	h := newServiceHarness(t)
	ctx := context.Background()
	h.bootstrap(t)

	first, err := h.svc.CreateThread(ctx, nil, "hi", true)
	require.NoError(t, err)
	second, err := h.svc.CreateThread(ctx, nil, "hi", false)
	require.NoError(t, err)

	a := h.svc.Assistant()
	assert.Equal(t, first.ID, a.ActiveThread)
	assert.ElementsMatch(t, []string{first.ID, second.ID}, a.Threads)
	assert.Equal(t, "hi", h.backend.lastInit)
}

func TestGetThread_CreatesWhenNoneActive(t *testing.T) {
	h := newServiceHarness(t)
	h.bootstrap(t)

	th, err := h.svc.GetThread(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, th.ID(), h.svc.Assistant().ActiveThread)

	again, err := h.svc.GetThread(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, th.ID(), again.ID())
	assert.Equal(t, 1, h.backend.createThreadCalls)
}

func TestGetThread_ReadDoesNotAttach(t *testing.T) {
	h := newServiceHarness(t)
	ctx := context.Background()
	a := h.bootstrap(t)
	h.backend.threads["thread_elsewhere"] = store.Thread{ID: "thread_elsewhere"}

	th, err := h.svc.GetThread(ctx, "thread_elsewhere")
	require.NoError(t, err)
	assert.Equal(t, "thread_elsewhere", th.ID())
	assert.NotContains(t, h.svc.Assistant().Threads, "thread_elsewhere")

	_, err = h.svc.GetMessages(ctx, "thread_elsewhere", backend.ListOptions{})
	require.NoError(t, err)
	assert.NotContains(t, h.svc.Assistant().Threads, "thread_elsewhere")

	stored, err := h.assistants.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.NotContains(t, stored.Threads, "thread_elsewhere")
	assert.Equal(t, 1, h.backend.retrieveThreadCalls, "the thread itself is still cached")
}

func TestSendMessage_AttachesExplicitThread(t *testing.T) {
	h := newServiceHarness(t)
	ctx := context.Background()
	a := h.bootstrap(t)
	h.backend.threads["thread_elsewhere"] = store.Thread{ID: "thread_elsewhere"}

	msg, err := h.svc.SendMessage(ctx, "hello", "thread_elsewhere")
	require.NoError(t, err)
	assert.Equal(t, "thread_elsewhere", msg.ThreadID)
	h.drain(t)

	current := h.svc.Assistant()
	assert.Contains(t, current.Threads, "thread_elsewhere")
	assert.Empty(t, current.ActiveThread, "sending does not switch the active thread")

	stored, err := h.assistants.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Contains(t, stored.Threads, "thread_elsewhere")
}

func TestCreateThread_FailedSaveLeavesAssistantUnchanged(t *testing.T) {
	h := newServiceHarness(t)
	ctx := context.Background()
	h.bootstrap(t)
	before := h.svc.Assistant()

	h.assistants.saveErr = fmt.Errorf("saving assistant: %w", store.ErrBackend)
	_, err := h.svc.CreateThread(ctx, nil, "hi", true)
	require.ErrorIs(t, err, store.ErrBackend)
	assert.Equal(t, before, h.svc.Assistant())

	h.assistants.saveErr = nil
	th, err := h.svc.CreateThread(ctx, nil, "hi", true)
	require.NoError(t, err)
	after := h.svc.Assistant()
	assert.Equal(t, []string{th.ID}, after.Threads, "the failed thread was never recorded")
	assert.Equal(t, th.ID, after.ActiveThread)
}

func TestGetThread_UnknownThreadIsNotFound(t *testing.T) {
	h := newServiceHarness(t)
	h.bootstrap(t)

	_, err := h.svc.GetThread(context.Background(), "thread_nope")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestService_RequiresBootstrap(t *testing.T) {
	h := newServiceHarness(t)

	_, err := h.svc.GetThread(context.Background(), "")
	assert.ErrorIs(t, err, store.ErrValidation)
}

func TestSendMessage_ReturnsUserMessageAndFetchesInBackground(t *testing.T) {
	h := newServiceHarness(t)
	ctx := context.Background()
	h.bootstrap(t)

	msg, err := h.svc.SendMessage(ctx, "hello", "")
	require.NoError(t, err)
	assert.Equal(t, store.RoleUser, msg.Role)
	assert.NotEmpty(t, msg.RunID)
	assert.Equal(t, h.svc.Assistant().ActiveThread, msg.ThreadID)

	h.drain(t)

	replies, err := h.messages.FindByRunIDAndRole(ctx, msg.RunID, store.RoleAssistant)
	require.NoError(t, err)
	require.Len(t, replies, 1)
	assert.Equal(t, "hello back", replies[0].Text())
	assert.Equal(t, msg.RunID, replies[0].RunID)
}

func TestSendMessage_RejectsBlankText(t *testing.T) {
	h := newServiceHarness(t)
	h.bootstrap(t)

	_, err := h.svc.SendMessage(context.Background(), "   ", "")
	assert.ErrorIs(t, err, store.ErrValidation)
	assert.Zero(t, h.backend.createMessageCalls)
	assert.Zero(t, h.backend.createThreadCalls)
}

func TestGetResponse_ReturnsReplyForUserMessage(t *testing.T) {
	h := newServiceHarness(t)
	ctx := context.Background()
	h.bootstrap(t)

	msg, err := h.svc.SendMessage(ctx, "hello", "")
	require.NoError(t, err)
	h.drain(t)

	replies, err := h.svc.GetResponse(ctx, msg.ID)
	require.NoError(t, err)
	require.Len(t, replies, 1)
	assert.Equal(t, "hello back", replies[0].Text())
}

func TestGetResponse_Validation(t *testing.T) {
	h := newServiceHarness(t)
	ctx := context.Background()
	h.bootstrap(t)

	_, err := h.svc.GetResponse(ctx, "msg_missing")
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = h.messages.Save(ctx, []store.Message{
		{ID: "msg_a", Role: store.RoleAssistant, RunID: "run_x", ThreadID: "thread_x"},
	})
	require.NoError(t, err)
	_, err = h.svc.GetResponse(ctx, "msg_a")
	assert.ErrorIs(t, err, store.ErrValidation)
}

func TestGetRun_UsesMessageThread(t *testing.T) {
	h := newServiceHarness(t)
	ctx := context.Background()
	h.bootstrap(t)

	_, err := h.messages.Save(ctx, []store.Message{
		{ID: "msg_u", Role: store.RoleUser, RunID: "run_42", ThreadID: "thread_42"},
	})
	require.NoError(t, err)

	run, err := h.svc.GetRun(ctx, "run_42")
	require.NoError(t, err)
	assert.Equal(t, "run_42", run.ID)
	assert.Equal(t, "thread_42", h.backend.lastRunThread)
}

func TestGetRun_FallsBackToActiveThread(t *testing.T) {
	h := newServiceHarness(t)
	ctx := context.Background()
	h.bootstrap(t)

	_, err := h.svc.GetRun(ctx, "run_unknown")
	assert.ErrorIs(t, err, store.ErrNotFound)

	th, err := h.svc.CreateThread(ctx, nil, "", true)
	require.NoError(t, err)

	_, err = h.svc.GetRun(ctx, "run_unknown")
	require.NoError(t, err)
	assert.Equal(t, th.ID, h.backend.lastRunThread)
}

func TestGetMessages_NoActiveThreadReturnsEmpty(t *testing.T) {
	h := newServiceHarness(t)
	h.bootstrap(t)

	msgs, err := h.svc.GetMessages(context.Background(), "", backend.ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, msgs)
	assert.Zero(t, h.backend.createThreadCalls)
}

func TestGetMessages_AppliesDefaults(t *testing.T) {
	h := newServiceHarness(t)
	ctx := context.Background()
	h.bootstrap(t)
	_, err := h.svc.CreateThread(ctx, nil, "", true)
	require.NoError(t, err)

	msgs, err := h.svc.GetMessages(ctx, "", backend.ListOptions{})
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
	assert.Equal(t, DefaultMessageLimit, h.backend.lastList.Limit)
	assert.Equal(t, backend.SortDesc, h.backend.lastList.Sort)

	_, err = h.svc.GetMessages(ctx, "", backend.ListOptions{Limit: 5, Sort: backend.SortAsc, After: "msg_1"})
	require.NoError(t, err)
	assert.Equal(t, backend.ListOptions{Limit: 5, Sort: backend.SortAsc, After: "msg_1"}, h.backend.lastList)
}
