package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	"github.com/MrWong99/travelgenie/internal/observe"
	"github.com/MrWong99/travelgenie/pkg/provider/llm"
	"github.com/MrWong99/travelgenie/pkg/types"
)

// Decision step defaults.
const (
	DefaultDecisionTimeout = 60 * time.Second
	DefaultTemperature     = 0.3
	DefaultMaxTokens       = 4096
)

// FallbackAnswer is the final answer used when the model replies with neither
// content nor tool calls.
const FallbackAnswer = "Request processed. What else?"

// ─── Decisions ──────────────────────────────────────────────────────────────

// Decision is the outcome of one decision step: [FinalAnswer] or
// [ToolRequests].
type Decision interface {
	decision()
}

// FinalAnswer ends the turn with Text.
type FinalAnswer struct {
	Text string
}

// ToolRequests asks for a batch of tool calls. Content is whatever text the
// model produced alongside them and may be empty.
type ToolRequests struct {
	Requests []ToolRequest
	Content  string
}

func (FinalAnswer) decision()  {}
func (ToolRequests) decision() {}

// assistantTurn returns the turn a decision is recorded as.
func assistantTurn(d Decision) AssistantTurn {
	switch d := d.(type) {
	case FinalAnswer:
		return AssistantTurn{Content: d.Text}
	case ToolRequests:
		return AssistantTurn{Content: d.Content, Requests: d.Requests}
	}
	return AssistantTurn{}
}

// Decider produces the next assistant turn for a conversation.
//
// system is the instruction prepended to the history and tools is the full
// advertised tool list; both are passed on every call so the decider keeps no
// state between turns. Implementations return a [*ModelInvocationError] when
// the underlying model call fails.
type Decider interface {
	Decide(ctx context.Context, system string, conv *Conversation, tools []types.ToolDefinition) (Decision, error)
}

// ─── LLMDecider ─────────────────────────────────────────────────────────────

// DeciderOption configures an [LLMDecider].
type DeciderOption func(*LLMDecider)

// WithDecisionTimeout bounds every model call.
func WithDecisionTimeout(d time.Duration) DeciderOption {
	return func(l *LLMDecider) {
		if d > 0 {
			l.timeout = d
		}
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) DeciderOption {
	return func(l *LLMDecider) { l.temperature = t }
}

// WithMaxTokens caps the completion length.
func WithMaxTokens(n int) DeciderOption {
	return func(l *LLMDecider) {
		if n > 0 {
			l.maxTokens = n
		}
	}
}

// WithDeciderMetrics overrides [observe.DefaultMetrics].
func WithDeciderMetrics(m *observe.Metrics) DeciderOption {
	return func(l *LLMDecider) { l.metrics = m }
}

// LLMDecider implements [Decider] with one [llm.Provider] completion per
// call.
type LLMDecider struct {
	provider    llm.Provider
	timeout     time.Duration
	temperature float64
	maxTokens   int
	metrics     *observe.Metrics
}

var _ Decider = (*LLMDecider)(nil)

// NewLLMDecider returns a decider backed by p.
func NewLLMDecider(p llm.Provider, opts ...DeciderOption) *LLMDecider {
	l := &LLMDecider{
		provider:    p,
		timeout:     DefaultDecisionTimeout,
		temperature: DefaultTemperature,
		maxTokens:   DefaultMaxTokens,
	}
	for _, o := range opts {
		o(l)
	}
	if l.metrics == nil {
		l.metrics = observe.DefaultMetrics()
	}
	return l
}

// Decide implements [Decider].
func (l *LLMDecider) Decide(ctx context.Context, system string, conv *Conversation, tools []types.ToolDefinition) (Decision, error) {
	ctx, span := observe.StartSpan(ctx, "agent.decide")
	defer span.End()

	callCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	req := llm.CompletionRequest{
		Messages:     conv.Messages(system),
		Tools:        tools,
		Temperature:  l.temperature,
		MaxTokens:    l.maxTokens,
		SystemPrompt: system,
	}
	span.SetAttributes(attribute.Int("llm.messages", len(req.Messages)), attribute.Int("llm.tools", len(tools)))

	start := time.Now()
	resp, err := l.provider.Complete(callCtx, req)
	elapsed := time.Since(start)

	status := observe.StatusOK
	if err != nil || resp == nil {
		status = observe.StatusError
	}
	l.metrics.LLMDuration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(attribute.String("status", status)))

	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			err = fmt.Errorf("decision timed out after %s: %w", l.timeout, err)
		}
		observe.Fail(span, err)
		return nil, &ModelInvocationError{Elapsed: elapsed, Err: err}
	}
	if resp == nil {
		span.SetStatus(codes.Error, "empty response")
		return nil, &ModelInvocationError{Elapsed: elapsed, Err: errors.New("provider returned no response")}
	}

	if len(resp.ToolCalls) == 0 {
		text := strings.TrimSpace(resp.Content)
		if text == "" {
			text = FallbackAnswer
		}
		return FinalAnswer{Text: text}, nil
	}

	reqs := make([]ToolRequest, 0, len(resp.ToolCalls))
	seen := make(map[string]bool, len(resp.ToolCalls))
	for _, tc := range resp.ToolCalls {
		id := tc.ID
		if id == "" || seen[id] {
			id = "call_" + uuid.NewString()
		}
		seen[id] = true
		reqs = append(reqs, ToolRequest{ID: id, Name: tc.Name, Arguments: arguments(tc.Arguments)})
	}
	span.SetAttributes(attribute.Int("llm.tool_calls", len(reqs)))
	return ToolRequests{Requests: reqs, Content: resp.Content}, nil
}

// arguments turns the model's argument string into raw JSON. Text that is not
// JSON is kept as a JSON string so schema validation reports it as the wrong
// type instead of the history becoming unencodable.
func arguments(s string) json.RawMessage {
	s = strings.TrimSpace(s)
	if s == "" {
		return json.RawMessage("{}")
	}
	if json.Valid([]byte(s)) {
		return json.RawMessage(s)
	}
	b, _ := json.Marshal(s)
	return b
}
