// ABOUTME: Client interface for the conversational backend and its value types
// ABOUTME: The orchestrator and services depend only on this interface

// Package backend talks to the external conversational backend that owns
// assistants, threads, messages, and asynchronous runs.
package backend

import (
	"context"

	"github.com/2389/tallkotte/internal/store"
)

// Sort orders message listings by creation time.
type Sort string

const (
	SortAsc  Sort = "asc"
	SortDesc Sort = "desc"
)

// ListOptions paginates ListMessages. Zero values let the backend decide.
type ListOptions struct {
	After  string
	Before string
	Limit  int
	Sort   Sort
}

// FileHandle references a file uploaded for use by threads.
type FileHandle struct {
	ID   string
	Name string
}

// AssistantSpec describes an assistant to create.
type AssistantSpec struct {
	Name         string
	Description  string
	Instructions string
	Model        string
	// Tools are capability tags such as "file_search" or "code_interpreter".
	Tools []string
}

// Client is the set of backend primitives tallkotte consumes.
type Client interface {
	CreateAssistant(ctx context.Context, spec AssistantSpec) (store.Assistant, error)
	RetrieveAssistant(ctx context.Context, id string) (store.Assistant, error)
	OpenFile(ctx context.Context, path string) (FileHandle, error)
	CreateThread(ctx context.Context, initMessage string, files []FileHandle) (store.Thread, error)
	RetrieveThread(ctx context.Context, id string) (store.Thread, error)
	CreateMessage(ctx context.Context, threadID, text string) (store.Message, error)
	CreateRun(ctx context.Context, assistantID, threadID string) (store.Run, error)
	RetrieveRun(ctx context.Context, runID, threadID string) (store.Run, error)
	// ListMessages degrades to an empty list when the backend fails.
	ListMessages(ctx context.Context, threadID string, opts ListOptions) ([]store.Message, error)
}
