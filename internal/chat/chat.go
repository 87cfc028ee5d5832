// Package chat exposes the concierge agent over HTTP.
//
// Routes, all JSON:
//
//   - POST   /v1/sessions                 create a session
//   - GET    /v1/sessions                 list sessions
//   - POST   /v1/sessions/{id}/messages   run one user turn
//   - GET    /v1/sessions/{id}/history    conversation turns
//   - DELETE /v1/sessions/{id}/history    clear the conversation
//   - DELETE /v1/sessions/{id}            remove the session
//   - GET    /v1/sessions/{id}/ws         WebSocket stream, see [Handler.Stream]
//   - GET    /v1/tools                    tool status table
//
// A failed model call answers 502 and leaves the conversation unchanged, so
// the client may resend the same message.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/MrWong99/travelgenie/internal/agent"
	"github.com/MrWong99/travelgenie/internal/observe"
	"github.com/MrWong99/travelgenie/internal/session"
	"github.com/MrWong99/travelgenie/internal/tool"
)

// maxBodyBytes caps request bodies and WebSocket frames.
const maxBodyBytes = 64 << 10

// DefaultTurnTimeout bounds one user turn including every decision step and
// tool batch.
const DefaultTurnTimeout = 5 * time.Minute

// Sessions is the session store the handler drives. [*session.Manager]
// implements it.
type Sessions interface {
	Create(ctx context.Context) (session.Info, error)
	Get(id string) (session.Info, error)
	Send(ctx context.Context, id, text string, opts ...agent.RunOption) (agent.Result, error)
	History(id string) ([]agent.Turn, error)
	Clear(id string) error
	Delete(ctx context.Context, id string) error
	List() []session.Info
}

// Catalog describes the registered tools. [*tool.Registry] implements it.
type Catalog interface {
	List() []tool.Descriptor
	Statuses() []tool.Status
}

// Option configures a [Handler].
type Option func(*Handler)

// WithTurnTimeout overrides [DefaultTurnTimeout].
func WithTurnTimeout(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.turnTimeout = d
		}
	}
}

// WithOriginPatterns sets the origins allowed to open the WebSocket stream
// in addition to same-origin requests.
func WithOriginPatterns(patterns ...string) Option {
	return func(h *Handler) { h.origins = append(h.origins, patterns...) }
}

// Handler serves the chat API.
type Handler struct {
	sessions    Sessions
	tools       Catalog
	turnTimeout time.Duration
	origins     []string
}

// New returns a Handler.
func New(sessions Sessions, tools Catalog, opts ...Option) *Handler {
	h := &Handler{sessions: sessions, tools: tools, turnTimeout: DefaultTurnTimeout}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Register adds the chat routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/sessions", h.createSession)
	mux.HandleFunc("GET /v1/sessions", h.listSessions)
	mux.HandleFunc("POST /v1/sessions/{id}/messages", h.sendMessage)
	mux.HandleFunc("GET /v1/sessions/{id}/history", h.history)
	mux.HandleFunc("DELETE /v1/sessions/{id}/history", h.clearHistory)
	mux.HandleFunc("DELETE /v1/sessions/{id}", h.deleteSession)
	mux.HandleFunc("GET /v1/sessions/{id}/ws", h.Stream)
	mux.HandleFunc("GET /v1/tools", h.listTools)
}

// ─── Wire types ─────────────────────────────────────────────────────────────

type messageRequest struct {
	Message string `json:"message"`
}

type messageResponse struct {
	Answer     string `json:"answer"`
	Iterations int    `json:"iterations"`
	ToolCalls  int    `json:"tool_calls"`
	LimitHit   bool   `json:"limit_hit"`
}

func newMessageResponse(res agent.Result) messageResponse {
	return messageResponse{Answer: res.Answer, Iterations: res.Iterations, ToolCalls: res.ToolCalls, LimitHit: res.LimitHit}
}

type historyResponse struct {
	SessionID string       `json:"session_id"`
	Turns     []agent.Turn `json:"turns"`
}

// ToolInfo is one row of GET /v1/tools.
type ToolInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Configured  bool   `json:"configured"`
	Reason      string `json:"reason,omitempty"`
}

// ToolTable joins descriptors with their startup status.
func ToolTable(c Catalog) []ToolInfo {
	status := make(map[string]tool.Status)
	for _, s := range c.Statuses() {
		status[s.Name] = s
	}
	descs := c.List()
	out := make([]ToolInfo, 0, len(descs))
	for _, d := range descs {
		st := status[d.Name()]
		out = append(out, ToolInfo{
			Name:        d.Name(),
			Description: d.Definition.Description,
			Configured:  st.Configured,
			Reason:      st.Reason,
		})
	}
	return out
}

type errorResponse struct {
	Error string `json:"error"`
}

// ─── Handlers ───────────────────────────────────────────────────────────────

func (h *Handler) createSession(w http.ResponseWriter, r *http.Request) {
	info, err := h.sessions.Create(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, info)
}

func (h *Handler) listSessions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.sessions.List())
}

func (h *Handler) sendMessage(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req messageRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.turnTimeout)
	defer cancel()
	res, err := h.sessions.Send(ctx, id, req.Message)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newMessageResponse(res))
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	turns, err := h.sessions.History(id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, historyResponse{SessionID: id, Turns: turns})
}

func (h *Handler) clearHistory(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Clear(r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) deleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listTools(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, ToolTable(h.tools))
}

// ─── Errors ─────────────────────────────────────────────────────────────────

// statusFor maps a session or agent error to an HTTP status and a message
// safe to show the user.
func statusFor(err error) (int, string) {
	var mie *agent.ModelInvocationError
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		return http.StatusNotFound, "session not found"
	case errors.Is(err, session.ErrSessionBusy):
		return http.StatusConflict, "a message is already being processed for this session"
	case errors.Is(err, agent.ErrEmptyMessage):
		return http.StatusBadRequest, "message must not be empty"
	case errors.As(err, &mie):
		return http.StatusBadGateway, fmt.Sprintf("the assistant is unavailable right now, please retry: %v", mie.Err)
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "the request took too long, please retry"
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable, "the request was cancelled"
	case errors.Is(err, session.ErrClosed):
		return http.StatusServiceUnavailable, "the server is shutting down"
	}
	return http.StatusInternalServerError, "internal error"
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		observe.Logger(r.Context()).Warn("chat: request failed", "path", r.URL.Path, "status", status, "err", err)
	}
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("chat: encode response", "err", err)
	}
}
