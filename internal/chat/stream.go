package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/travelgenie/internal/agent"
	"github.com/MrWong99/travelgenie/internal/observe"
	"github.com/MrWong99/travelgenie/internal/tool"
)

// writeTimeout bounds a single frame write.
const writeTimeout = 5 * time.Second

// Frame types sent by [Handler.Stream].
const (
	FrameState       = "state"
	FrameToolResults = "tool_results"
	FrameAnswer      = "answer"
	FrameError       = "error"
)

// ToolResultFrame is one entry of a tool_results frame.
type ToolResultFrame struct {
	CallID  string          `json:"call_id"`
	Name    string          `json:"name"`
	OK      bool            `json:"ok"`
	Content json.RawMessage `json:"content"`
}

// Frame is one server-to-client WebSocket message. Only the fields relevant
// to Type are set.
type Frame struct {
	Type       string            `json:"type"`
	State      agent.State       `json:"state,omitempty"`
	Results    []ToolResultFrame `json:"results,omitempty"`
	Answer     string            `json:"answer,omitempty"`
	Iterations int               `json:"iterations,omitempty"`
	ToolCalls  int               `json:"tool_calls,omitempty"`
	LimitHit   bool              `json:"limit_hit,omitempty"`
	Error      string            `json:"error,omitempty"`
	Code       int               `json:"code,omitempty"`
}

// Stream upgrades to a WebSocket bound to one session. Each client frame
// {"message": "..."} runs one turn; the server answers with state frames for
// every loop transition, a tool_results frame per executed batch and a final
// answer or error frame. Turns on one connection run one after another.
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := h.sessions.Get(id); err != nil {
		writeError(w, r, err)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.origins})
	if err != nil {
		observe.Logger(r.Context()).Warn("chat: websocket accept", "session_id", id, "err", err)
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(maxBodyBytes)

	ctx := observe.WithSessionID(r.Context(), id)
	log := observe.Logger(ctx)
	log.Debug("chat: stream opened")

	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			if status := websocket.CloseStatus(err); status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway {
				log.Debug("chat: stream closed", "err", err)
			}
			return
		}
		if typ != websocket.MessageText {
			_ = writeFrame(ctx, conn, Frame{Type: FrameError, Error: "only text frames are supported", Code: http.StatusUnsupportedMediaType})
			continue
		}
		var req messageRequest
		if err := json.Unmarshal(data, &req); err != nil {
			_ = writeFrame(ctx, conn, Frame{Type: FrameError, Error: "invalid message: " + err.Error(), Code: http.StatusBadRequest})
			continue
		}
		if err := h.streamTurn(ctx, conn, id, req.Message); err != nil {
			log.Debug("chat: stream write failed", "err", err)
			return
		}
	}
}

// streamTurn runs one turn and reports it on conn. It returns an error only
// when the connection can no longer be written to.
func (h *Handler) streamTurn(ctx context.Context, conn *websocket.Conn, id, text string) error {
	turnCtx, cancel := context.WithTimeout(ctx, h.turnTimeout)
	defer cancel()

	var writeErr error
	send := func(f Frame) {
		if writeErr == nil {
			writeErr = writeFrame(ctx, conn, f)
		}
	}
	obs := agent.ObserverFuncs{
		Transition: func(s agent.State) {
			send(Frame{Type: FrameState, State: s})
		},
		ToolResults: func(results []tool.Result) {
			send(Frame{Type: FrameToolResults, Results: toolResultFrames(results)})
		},
	}

	res, err := h.sessions.Send(turnCtx, id, text, agent.WithObserver(obs))
	if err != nil {
		status, msg := statusFor(err)
		send(Frame{Type: FrameError, Error: msg, Code: status})
		return writeErr
	}
	send(Frame{
		Type:       FrameAnswer,
		Answer:     res.Answer,
		Iterations: res.Iterations,
		ToolCalls:  res.ToolCalls,
		LimitHit:   res.LimitHit,
	})
	return writeErr
}

func toolResultFrames(results []tool.Result) []ToolResultFrame {
	out := make([]ToolResultFrame, len(results))
	for i, r := range results {
		out[i] = ToolResultFrame{
			CallID:  r.CallID,
			Name:    r.Name,
			OK:      r.Outcome.OK(),
			Content: json.RawMessage(r.Outcome.Text()),
		}
	}
	return out
}

func writeFrame(ctx context.Context, conn *websocket.Conn, f Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, data)
}
