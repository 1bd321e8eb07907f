// ABOUTME: Assistant, Thread, Message, and Run entities with their JSON shapes
// ABOUTME: Also defines Role and RunStatus including the locally introduced statuses

package store

import (
	"slices"
	"strings"
)

// Collection names in the document store.
const (
	CollectionAssistants = "assistants"
	CollectionThreads    = "threads"
	CollectionMessages   = "messages"
)

// Role identifies who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// RunStatus is a backend run status, plus "created" and "timeout" which only
// exist in the local run-status cache.
type RunStatus string

const (
	RunStatusCreated        RunStatus = "created"
	RunStatusQueued         RunStatus = "queued"
	RunStatusInProgress     RunStatus = "in_progress"
	RunStatusRequiresAction RunStatus = "requires_action"
	RunStatusCancelling     RunStatus = "cancelling"
	RunStatusCancelled      RunStatus = "cancelled"
	RunStatusFailed         RunStatus = "failed"
	RunStatusCompleted      RunStatus = "completed"
	RunStatusIncomplete     RunStatus = "incomplete"
	RunStatusExpired        RunStatus = "expired"
	RunStatusTimeout        RunStatus = "timeout"
)

// Pending reports whether the backend is still working on the run.
func (s RunStatus) Pending() bool {
	switch s {
	case RunStatusQueued, RunStatusInProgress, RunStatusCancelling:
		return true
	}
	return false
}

// Settled reports whether the local cache entry has reached a final value.
func (s RunStatus) Settled() bool {
	return s == RunStatusCompleted || s == RunStatusTimeout
}

// Assistant is the backend assistant plus the threads this deployment owns.
type Assistant struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Instructions string   `json:"instructions"`
	Tools        []string `json:"tools"`
	Threads      []string `json:"threads"`
	ActiveThread string   `json:"active_thread,omitempty"`
}

// HasThread reports whether id is one of the assistant's threads.
func (a *Assistant) HasThread(id string) bool {
	return slices.Contains(a.Threads, id)
}

// AddThread appends id if missing and optionally makes it the active thread.
func (a *Assistant) AddThread(id string, activate bool) {
	if !a.HasThread(id) {
		a.Threads = append(a.Threads, id)
	}
	if activate {
		a.ActiveThread = id
	}
}

// Thread is a conversation context.
type Thread struct {
	ID          string `json:"id"`
	AssistantID string `json:"assistant_id,omitempty"`
	CreatedAt   int64  `json:"created_at"`
}

// Message is one message in a thread. RunID is empty until a run is created.
type Message struct {
	ID        string   `json:"id"`
	Role      Role     `json:"role"`
	CreatedAt int64    `json:"created_at"`
	RunID     string   `json:"run_id"`
	ThreadID  string   `json:"thread_id"`
	Content   []string `json:"content"`
}

// Text joins the message's text segments.
func (m Message) Text() string {
	return strings.Join(m.Content, "\n")
}

// Run is a backend run as last observed.
type Run struct {
	ID          string    `json:"id"`
	CreatedAt   int64     `json:"created_at"`
	StartedAt   int64     `json:"started_at,omitempty"`
	CompletedAt int64     `json:"completed_at,omitempty"`
	Status      RunStatus `json:"status"`
	ThreadID    string    `json:"thread_id"`
	Usage       *RunUsage `json:"usage,omitempty"`
}

// RunUsage is token accounting for a finished run.
type RunUsage struct {
	CompletionTokens int64 `json:"completion_tokens"`
	PromptTokens     int64 `json:"prompt_tokens"`
	TotalTokens      int64 `json:"total_tokens"`
}
