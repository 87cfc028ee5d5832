package agent

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/MrWong99/travelgenie/pkg/provider/llm"
	"github.com/MrWong99/travelgenie/pkg/types"
)

// ErrStaleVersion is returned by [Conversation.Truncate] when the version was
// taken before a [Conversation.Clear] or is ahead of the current history.
var ErrStaleVersion = errors.New("agent: stale conversation version")

// ─── Turns ──────────────────────────────────────────────────────────────────

// Turn is one entry of the conversation history. The concrete types are
// [UserTurn], [AssistantTurn] and [ToolResultTurn].
type Turn interface {
	// Role returns the message role the turn is sent to the model as.
	Role() string

	turn()
}

// UserTurn is a free-text message from the traveller.
type UserTurn struct {
	Content string
}

// ToolRequest is one tool invocation requested by the model.
type ToolRequest struct {
	ID        string
	Name      string
	Arguments json.RawMessage
}

// AssistantTurn is one model reply. It either carries content and no
// requests (a final answer) or one or more requests with optional content.
type AssistantTurn struct {
	Content  string
	Requests []ToolRequest
}

// ToolResultTurn answers exactly one [ToolRequest] of the preceding
// [AssistantTurn]. Content is the serialised outcome, success or failure.
type ToolResultTurn struct {
	CallID  string
	Name    string
	Content string
}

func (UserTurn) Role() string       { return types.RoleUser }
func (AssistantTurn) Role() string  { return types.RoleAssistant }
func (ToolResultTurn) Role() string { return types.RoleTool }

func (UserTurn) turn()       {}
func (AssistantTurn) turn()  {}
func (ToolResultTurn) turn() {}

type requestJSON struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

type turnJSON struct {
	Role      string        `json:"role"`
	Content   string        `json:"content,omitempty"`
	ToolCalls []requestJSON `json:"tool_calls,omitempty"`
	CallID    string        `json:"call_id,omitempty"`
	Name      string        `json:"name,omitempty"`
}

// MarshalJSON encodes the turn as {"role":"user","content":...}.
func (t UserTurn) MarshalJSON() ([]byte, error) {
	return json.Marshal(turnJSON{Role: t.Role(), Content: t.Content})
}

// MarshalJSON encodes the turn with its tool requests under "tool_calls".
func (t AssistantTurn) MarshalJSON() ([]byte, error) {
	out := turnJSON{Role: t.Role(), Content: t.Content}
	for _, r := range t.Requests {
		args := r.Arguments
		if len(args) == 0 {
			args = json.RawMessage("{}")
		}
		out.ToolCalls = append(out.ToolCalls, requestJSON{ID: r.ID, Name: r.Name, Arguments: args})
	}
	return json.Marshal(out)
}

// MarshalJSON encodes the turn with its call identifier and tool name.
func (t ToolResultTurn) MarshalJSON() ([]byte, error) {
	return json.Marshal(turnJSON{Role: t.Role(), Content: t.Content, CallID: t.CallID, Name: t.Name})
}

func cloneTurn(t Turn) Turn {
	a, ok := t.(AssistantTurn)
	if !ok {
		return t
	}
	reqs := make([]ToolRequest, len(a.Requests))
	for i, r := range a.Requests {
		r.Arguments = append(json.RawMessage(nil), r.Arguments...)
		reqs[i] = r
	}
	a.Requests = reqs
	return a
}

// message converts a turn to the provider-neutral message type.
func message(t Turn) types.Message {
	switch t := t.(type) {
	case UserTurn:
		return types.Message{Role: types.RoleUser, Content: t.Content}
	case AssistantTurn:
		m := types.Message{Role: types.RoleAssistant, Content: t.Content}
		for _, r := range t.Requests {
			args := string(r.Arguments)
			if args == "" {
				args = "{}"
			}
			m.ToolCalls = append(m.ToolCalls, types.ToolCall{ID: r.ID, Name: r.Name, Arguments: args})
		}
		return m
	case ToolResultTurn:
		return types.Message{Role: types.RoleTool, Content: t.Content, Name: t.Name, ToolCallID: t.CallID}
	}
	return types.Message{}
}

// ─── Conversation ───────────────────────────────────────────────────────────

// Version identifies a prefix of a conversation. It is only meaningful for
// the conversation that produced it.
type Version struct {
	epoch  uint64
	length int
}

// Len returns the number of turns the version covers.
func (v Version) Len() int { return v.length }

// Conversation is the ordered turn log of one session.
//
// It only grows through [Conversation.Append]. The two exceptions are
// [Conversation.Truncate], which restores an earlier version after a failed
// turn, and [Conversation.Clear], the explicit user action.
//
// All methods are safe for concurrent use; the agent loop is still expected to
// be its only writer.
type Conversation struct {
	mu    sync.RWMutex
	turns []Turn
	epoch uint64

	// pending holds the unanswered request IDs of the last AssistantTurn.
	pending map[string]bool
}

// NewConversation returns an empty conversation.
func NewConversation() *Conversation {
	return &Conversation{}
}

// Append validates turns against the current history and appends them all,
// or none of them when any is invalid.
//
// A ToolResultTurn must answer a request of the immediately preceding
// AssistantTurn that has not been answered yet, and no other turn may follow
// an AssistantTurn until all of its requests are answered.
func (c *Conversation) Append(turns ...Turn) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	pending := make(map[string]bool, len(c.pending))
	for id := range c.pending {
		pending[id] = true
	}
	for i, t := range turns {
		if err := checkTurn(t, pending); err != nil {
			return fmt.Errorf("%w: turn %d: %v", ErrInvalidTurn, len(c.turns)+i, err)
		}
	}
	for _, t := range turns {
		c.turns = append(c.turns, cloneTurn(t))
	}
	c.pending = pending
	return nil
}

// checkTurn validates t and updates pending in place.
func checkTurn(t Turn, pending map[string]bool) error {
	switch t := t.(type) {
	case UserTurn:
		if len(pending) > 0 {
			return fmt.Errorf("user turn while %d tool results are outstanding", len(pending))
		}
	case AssistantTurn:
		if len(pending) > 0 {
			return fmt.Errorf("assistant turn while %d tool results are outstanding", len(pending))
		}
		if len(t.Requests) == 0 && t.Content == "" {
			return errors.New("assistant turn without content or requests")
		}
		for _, r := range t.Requests {
			switch {
			case r.ID == "":
				return errors.New("tool request without id")
			case pending[r.ID]:
				return fmt.Errorf("duplicate tool request id %s", r.ID)
			}
			pending[r.ID] = true
		}
	case ToolResultTurn:
		if !pending[t.CallID] {
			return fmt.Errorf("tool result %q does not answer an outstanding request", t.CallID)
		}
		delete(pending, t.CallID)
	case nil:
		return errors.New("nil turn")
	default:
		return fmt.Errorf("unknown turn type %T", t)
	}
	return nil
}

// Turns returns a copy of the history.
func (c *Conversation) Turns() []Turn {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Turn, len(c.turns))
	for i, t := range c.turns {
		out[i] = cloneTurn(t)
	}
	return out
}

// Len returns the number of turns.
func (c *Conversation) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.turns)
}

// Version returns the current version.
func (c *Conversation) Version() Version {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Version{epoch: c.epoch, length: len(c.turns)}
}

// Pending reports how many requests of the last AssistantTurn are still
// unanswered.
func (c *Conversation) Pending() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.pending)
}

// Messages returns the history as provider messages with the system
// instruction prepended. Prepending is idempotent: the result starts with
// exactly one system message carrying system.
func (c *Conversation) Messages(system string) []types.Message {
	c.mu.RLock()
	msgs := make([]types.Message, 0, len(c.turns)+1)
	for _, t := range c.turns {
		msgs = append(msgs, message(t))
	}
	c.mu.RUnlock()
	return llm.WithSystemPrompt(system, msgs)
}

// Truncate restores the conversation to v. It fails with [ErrStaleVersion]
// when v predates a Clear or is ahead of the current history.
func (c *Conversation) Truncate(v Version) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if v.epoch != c.epoch || v.length > len(c.turns) {
		return ErrStaleVersion
	}
	for i := v.length; i < len(c.turns); i++ {
		c.turns[i] = nil
	}
	c.turns = c.turns[:v.length]
	c.pending = pendingAt(c.turns)
	return nil
}

// Clear removes every turn. Versions taken before Clear become stale.
func (c *Conversation) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.turns = nil
	c.pending = nil
	c.epoch++
}

// pendingAt recomputes the outstanding requests of a validated history.
func pendingAt(turns []Turn) map[string]bool {
	pending := map[string]bool{}
	for _, t := range turns {
		// History is already validated.
		_ = checkTurn(t, pending)
	}
	return pending
}
