// ABOUTME: chi router and handlers exposing the assistant service over HTTP
// ABOUTME: Maps store sentinel errors to status codes and streams run events via SSE

package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/2389/tallkotte/internal/backend"
	"github.com/2389/tallkotte/internal/conversation"
	"github.com/2389/tallkotte/internal/store"
)

// maxMessageLimit caps ?limit on message listings.
const maxMessageLimit = 100

// heartbeatInterval keeps idle SSE connections open through proxies.
var heartbeatInterval = 30 * time.Second

// AssistantService is the part of the assistant service the API exposes.
type AssistantService interface {
	Assistant() store.Assistant
	CreateThread(ctx context.Context, files []string, initMessage string, activate bool) (store.Thread, error)
	GetMessages(ctx context.Context, threadID string, opts backend.ListOptions) ([]store.Message, error)
	SendMessage(ctx context.Context, text, threadID string) (store.Message, error)
	GetRun(ctx context.Context, runID string) (store.Run, error)
	GetResponse(ctx context.Context, messageID string) ([]store.Message, error)
}

// EventSource delivers run events for a thread until ctx is done.
type EventSource interface {
	Subscribe(ctx context.Context, threadID string) (<-chan conversation.RunEvent, string)
}

// CreateThreadRequest is the JSON body for POST /api/threads. Threads with
// files are created from a multipart form instead, with each file in a "file"
// part and init_message and activate as plain fields.
type CreateThreadRequest struct {
	InitMessage string `json:"init_message,omitempty"`
	// Activate defaults to true.
	Activate *bool `json:"activate,omitempty"`
}

// SendMessageRequest is the JSON body for POST /api/messages.
type SendMessageRequest struct {
	Text     string `json:"text"`
	ThreadID string `json:"thread_id,omitempty"`
}

// MessagesResponse wraps a list of messages.
type MessagesResponse struct {
	ThreadID  string          `json:"thread_id,omitempty"`
	MessageID string          `json:"message_id,omitempty"`
	Messages  []store.Message `json:"messages"`
}

// Options configures a Server.
type Options struct {
	Version string
	// UploadDir receives files posted to POST /api/threads. Empty means the
	// system temp dir.
	UploadDir string
	// MaxUploadBytes caps a thread request body. Zero means DefaultMaxUpload.
	MaxUploadBytes int64
}

// Server holds the HTTP handlers.
type Server struct {
	svc       AssistantService
	events    EventSource
	version   string
	uploadDir string
	maxUpload int64
	router    chi.Router
	logger    *slog.Logger
}

// New builds the router. events may be nil, which disables the events route.
func New(svc AssistantService, events EventSource, opts Options, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.UploadDir == "" {
		opts.UploadDir = os.TempDir()
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = DefaultMaxUpload
	}
	s := &Server{
		svc:       svc,
		events:    events,
		version:   opts.Version,
		uploadDir: opts.UploadDir,
		maxUpload: opts.MaxUploadBytes,
		logger:    logger.With("component", "api"),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Route("/api", func(api chi.Router) {
		api.Get("/", s.handleIndex)
		api.Get("/assistant", s.handleAssistant)
		api.Post("/threads", s.handleCreateThread)
		api.Get("/threads/{id}/messages", s.handleThreadMessages)
		api.Get("/threads/{id}/events", s.handleThreadEvents)
		api.Post("/messages", s.handleSendMessage)
		api.Get("/messages/{id}/response", s.handleResponse)
		api.Get("/runs/{id}", s.handleRun)
	})

	s.router = r
	return s
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			"request_id", middleware.GetReqID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start))
	})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"service":      "tallkotte",
		"version":      s.version,
		"assistant_id": s.svc.Assistant().ID,
	})
}

func (s *Server) handleAssistant(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Assistant())
}

func (s *Server) handleCreateThread(w http.ResponseWriter, r *http.Request) {
	if mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type")); mediaType == "multipart/form-data" {
		s.createThreadFromForm(w, r)
		return
	}

	var req CreateThreadRequest
	if r.ContentLength != 0 {
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}
	activate := true
	if req.Activate != nil {
		activate = *req.Activate
	}

	t, err := s.svc.CreateThread(r.Context(), nil, req.InitMessage, activate)
	if err != nil {
		s.writeError(w, r, "create thread", err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (s *Server) createThreadFromForm(w http.ResponseWriter, r *http.Request) {
	form, err := s.parseThreadForm(w, r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSONError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
			return
		}
		s.writeError(w, r, "create thread", err)
		return
	}
	if form.dir != "" {
		// The backend has its own copy once CreateThread returns.
		defer os.RemoveAll(form.dir)
	}

	t, err := s.svc.CreateThread(r.Context(), form.paths, form.initMessage, form.activate)
	if err != nil {
		s.writeError(w, r, "create thread", err)
		return
	}
	s.logger.Info("thread created from upload", "thread_id", t.ID, "files", len(form.paths))
	writeJSON(w, http.StatusCreated, t)
}

// parseListOptions reads limit, after, before and order query parameters.
func parseListOptions(r *http.Request) (backend.ListOptions, error) {
	q := r.URL.Query()
	opts := backend.ListOptions{
		After:  q.Get("after"),
		Before: q.Get("before"),
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return opts, errors.New("limit must be a positive integer")
		}
		opts.Limit = min(n, maxMessageLimit)
	}
	switch order := strings.ToLower(q.Get("order")); order {
	case "":
	case string(backend.SortAsc), string(backend.SortDesc):
		opts.Sort = backend.Sort(order)
	default:
		return opts, errors.New("order must be asc or desc")
	}
	return opts, nil
}

func (s *Server) handleThreadMessages(w http.ResponseWriter, r *http.Request) {
	threadID := chi.URLParam(r, "id")
	opts, err := parseListOptions(r)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	msgs, err := s.svc.GetMessages(r.Context(), threadID, opts)
	if err != nil {
		s.writeError(w, r, "list messages", err)
		return
	}
	writeJSON(w, http.StatusOK, MessagesResponse{ThreadID: threadID, Messages: nonNil(msgs)})
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeJSONError(w, http.StatusBadRequest, "text is required")
		return
	}

	msg, err := s.svc.SendMessage(r.Context(), req.Text, req.ThreadID)
	if err != nil {
		s.writeError(w, r, "send message", err)
		return
	}
	writeJSON(w, http.StatusAccepted, msg)
}

func (s *Server) handleResponse(w http.ResponseWriter, r *http.Request) {
	messageID := chi.URLParam(r, "id")
	msgs, err := s.svc.GetResponse(r.Context(), messageID)
	if err != nil {
		s.writeError(w, r, "get response", err)
		return
	}
	writeJSON(w, http.StatusOK, MessagesResponse{MessageID: messageID, Messages: nonNil(msgs)})
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.svc.GetRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, "get run", err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleThreadEvents(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		writeJSONError(w, http.StatusNotFound, "events are not enabled")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSONError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	threadID := chi.URLParam(r, "id")
	ctx := r.Context()
	events, _ := s.events.Subscribe(ctx, threadID)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	s.writeSSEEvent(w, "connected", map[string]string{"thread_id": threadID})
	flusher.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case event, ok := <-events:
			if !ok {
				return
			}
			s.writeSSEEvent(w, "run", event)
			flusher.Flush()
		}
	}
}

// writeSSEEvent writes a single SSE event with a JSON data line.
func (s *Server) writeSSEEvent(w http.ResponseWriter, event string, data any) {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		s.logger.Error("failed to marshal SSE data", "error", err)
		return
	}
	fmt.Fprintf(w, "event: %s\n", event)
	fmt.Fprintf(w, "data: %s\n\n", dataJSON)
}

// statusFor maps the store error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, store.ErrBackend):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			"op", op,
			"request_id", middleware.GetReqID(r.Context()),
			"status", status,
			"error", err)
	}
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal server error"
	}
	writeJSONError(w, status, msg)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func nonNil(msgs []store.Message) []store.Message {
	if msgs == nil {
		return []store.Message{}
	}
	return msgs
}
