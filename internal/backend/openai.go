// ABOUTME: OpenAI Assistants implementation of the backend Client
// ABOUTME: Maps SDK types onto store entities and API failures onto sentinel errors

package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/2389/tallkotte/internal/store"
)

// OpenAIConfig configures the OpenAI client.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	// MaxRetries overrides the SDK's retry count when non-negative.
	MaxRetries int
	HTTPClient *http.Client
}

// OpenAI implements Client on the OpenAI Assistants API.
type OpenAI struct {
	client openai.Client
	logger *slog.Logger
}

var _ Client = (*OpenAI)(nil)

// NewOpenAI creates a backend client.
func NewOpenAI(cfg OpenAIConfig, logger *slog.Logger) *OpenAI {
	if logger == nil {
		logger = slog.Default()
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.MaxRetries >= 0 {
		opts = append(opts, option.WithMaxRetries(cfg.MaxRetries))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}

	return &OpenAI{
		client: openai.NewClient(opts...),
		logger: logger.With("component", "backend"),
	}
}

// classify wraps an SDK error with ErrNotFound for 404s and ErrBackend otherwise.
func classify(op string, err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%s: %w: %w", op, store.ErrNotFound, err)
	}
	return fmt.Errorf("%s: %w: %w", op, store.ErrBackend, err)
}

// CreateAssistant creates an assistant with the given tools.
func (o *OpenAI) CreateAssistant(ctx context.Context, spec AssistantSpec) (store.Assistant, error) {
	params := openai.BetaAssistantNewParams{
		Model: openai.ChatModel(spec.Model),
	}
	if spec.Name != "" {
		params.Name = openai.String(spec.Name)
	}
	if spec.Description != "" {
		params.Description = openai.String(spec.Description)
	}
	if spec.Instructions != "" {
		params.Instructions = openai.String(spec.Instructions)
	}
	for _, tool := range spec.Tools {
		switch tool {
		case "file_search":
			params.Tools = append(params.Tools, openai.AssistantToolUnionParam{OfFileSearch: &openai.FileSearchToolParam{}})
		case "code_interpreter":
			params.Tools = append(params.Tools, openai.AssistantToolUnionParam{OfCodeInterpreter: &openai.CodeInterpreterToolParam{}})
		default:
			return store.Assistant{}, fmt.Errorf("%w: unsupported tool %q", store.ErrValidation, tool)
		}
	}

	a, err := o.client.Beta.Assistants.New(ctx, params)
	if err != nil {
		return store.Assistant{}, classify("creating assistant", err)
	}
	o.logger.Info("assistant created", "assistant_id", a.ID, "name", a.Name)
	return toAssistant(a), nil
}

// RetrieveAssistant fetches an assistant by id.
func (o *OpenAI) RetrieveAssistant(ctx context.Context, id string) (store.Assistant, error) {
	a, err := o.client.Beta.Assistants.Get(ctx, id)
	if err != nil {
		return store.Assistant{}, classify("retrieving assistant", err)
	}
	return toAssistant(a), nil
}

// OpenFile uploads a local file for assistant use.
func (o *OpenAI) OpenFile(ctx context.Context, path string) (FileHandle, error) {
	f, err := os.Open(path)
	if err != nil {
		return FileHandle{}, fmt.Errorf("%w: opening %s: %w", store.ErrValidation, path, err)
	}
	defer f.Close()

	name := filepath.Base(path)
	obj, err := o.client.Files.New(ctx, openai.FileNewParams{
		File:    openai.File(f, name, "application/octet-stream"),
		Purpose: openai.FilePurposeAssistants,
	})
	if err != nil {
		return FileHandle{}, classify("uploading file", err)
	}
	o.logger.Debug("file uploaded", "file_id", obj.ID, "name", name)
	return FileHandle{ID: obj.ID, Name: name}, nil
}

// CreateThread creates a thread, seeding it with initMessage and attaching files to it.
func (o *OpenAI) CreateThread(ctx context.Context, initMessage string, files []FileHandle) (store.Thread, error) {
	var params openai.BetaThreadNewParams
	if initMessage != "" || len(files) > 0 {
		msg := openai.BetaThreadNewParamsMessage{
			Content: openai.BetaThreadNewParamsMessageContentUnion{OfString: openai.String(initMessage)},
			Role:    string(store.RoleUser),
		}
		for _, f := range files {
			msg.Attachments = append(msg.Attachments, openai.BetaThreadNewParamsMessageAttachment{
				FileID: openai.String(f.ID),
				Tools: []openai.BetaThreadNewParamsMessageAttachmentToolUnion{{
					OfFileSearch: &openai.BetaThreadNewParamsMessageAttachmentToolFileSearch{},
				}},
			})
		}
		params.Messages = []openai.BetaThreadNewParamsMessage{msg}
	}

	t, err := o.client.Beta.Threads.New(ctx, params)
	if err != nil {
		return store.Thread{}, classify("creating thread", err)
	}
	return store.Thread{ID: t.ID, CreatedAt: t.CreatedAt}, nil
}

// RetrieveThread fetches a thread by id.
func (o *OpenAI) RetrieveThread(ctx context.Context, id string) (store.Thread, error) {
	t, err := o.client.Beta.Threads.Get(ctx, id)
	if err != nil {
		return store.Thread{}, classify("retrieving thread", err)
	}
	return store.Thread{ID: t.ID, CreatedAt: t.CreatedAt}, nil
}

// CreateMessage appends a user message to a thread.
func (o *OpenAI) CreateMessage(ctx context.Context, threadID, text string) (store.Message, error) {
	m, err := o.client.Beta.Threads.Messages.New(ctx, threadID, openai.BetaThreadMessageNewParams{
		Content: openai.BetaThreadMessageNewParamsContentUnion{OfString: openai.String(text)},
		Role:    openai.BetaThreadMessageNewParamsRoleUser,
	})
	if err != nil {
		return store.Message{}, classify("creating message", err)
	}
	return toMessage(m), nil
}

// CreateRun starts a run of assistantID over threadID.
func (o *OpenAI) CreateRun(ctx context.Context, assistantID, threadID string) (store.Run, error) {
	r, err := o.client.Beta.Threads.Runs.New(ctx, threadID, openai.BetaThreadRunNewParams{
		AssistantID: assistantID,
	})
	if err != nil {
		return store.Run{}, classify("creating run", err)
	}
	return toRun(r), nil
}

// RetrieveRun fetches the current state of a run.
func (o *OpenAI) RetrieveRun(ctx context.Context, runID, threadID string) (store.Run, error) {
	r, err := o.client.Beta.Threads.Runs.Get(ctx, threadID, runID)
	if err != nil {
		return store.Run{}, classify("retrieving run", err)
	}
	return toRun(r), nil
}

// ListMessages lists one page of a thread's messages. Backend failures are
// logged and produce an empty list.
func (o *OpenAI) ListMessages(ctx context.Context, threadID string, opts ListOptions) ([]store.Message, error) {
	var params openai.BetaThreadMessageListParams
	if opts.After != "" {
		params.After = openai.String(opts.After)
	}
	if opts.Before != "" {
		params.Before = openai.String(opts.Before)
	}
	if opts.Limit > 0 {
		params.Limit = openai.Int(int64(opts.Limit))
	}
	switch opts.Sort {
	case SortAsc:
		params.Order = openai.BetaThreadMessageListParamsOrderAsc
	case SortDesc:
		params.Order = openai.BetaThreadMessageListParamsOrderDesc
	}

	page, err := o.client.Beta.Threads.Messages.List(ctx, threadID, params)
	if err != nil {
		o.logger.Error("listing messages failed", "thread_id", threadID, "error", classify("listing messages", err))
		return []store.Message{}, nil
	}

	out := make([]store.Message, 0, len(page.Data))
	for i := range page.Data {
		out = append(out, toMessage(&page.Data[i]))
	}
	return out, nil
}

func toAssistant(a *openai.Assistant) store.Assistant {
	tools := make([]string, 0, len(a.Tools))
	for _, t := range a.Tools {
		tools = append(tools, t.Type)
	}
	return store.Assistant{
		ID:           a.ID,
		Name:         a.Name,
		Instructions: a.Instructions,
		Tools:        tools,
	}
}

func toMessage(m *openai.Message) store.Message {
	content := make([]string, 0, len(m.Content))
	for _, c := range m.Content {
		if c.Type == "text" {
			content = append(content, c.Text.Value)
		}
	}
	return store.Message{
		ID:        m.ID,
		Role:      store.Role(m.Role),
		CreatedAt: m.CreatedAt,
		RunID:     m.RunID,
		ThreadID:  m.ThreadID,
		Content:   content,
	}
}

func toRun(r *openai.Run) store.Run {
	run := store.Run{
		ID:          r.ID,
		CreatedAt:   r.CreatedAt,
		StartedAt:   r.StartedAt,
		CompletedAt: r.CompletedAt,
		Status:      store.RunStatus(r.Status),
		ThreadID:    r.ThreadID,
	}
	if r.Usage.TotalTokens > 0 {
		run.Usage = &store.RunUsage{
			CompletionTokens: r.Usage.CompletionTokens,
			PromptTokens:     r.Usage.PromptTokens,
			TotalTokens:      r.Usage.TotalTokens,
		}
	}
	return run
}
