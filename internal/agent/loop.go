package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/MrWong99/travelgenie/internal/observe"
	"github.com/MrWong99/travelgenie/internal/tool"
	"github.com/MrWong99/travelgenie/pkg/types"
)

// DefaultMaxIterations is the number of decision steps one user turn may take
// before the loop is forced to finish.
const DefaultMaxIterations = 8

// LimitMessage is the answer recorded when the iteration bound is reached.
const LimitMessage = "I'm sorry, I was unable to complete that request within the allowed number of steps. " +
	"Please try rephrasing or narrowing it down."

// ErrEmptyMessage is returned by [Loop.Run] for a blank user message.
var ErrEmptyMessage = errors.New("agent: message must not be empty")

// ─── States ─────────────────────────────────────────────────────────────────

// State is a state of the agent loop.
type State int

const (
	// AwaitDecision waits for the decider to answer or request tools.
	AwaitDecision State = iota + 1

	// ExecuteTools runs the requested batch.
	ExecuteTools

	// Done is terminal.
	Done
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case AwaitDecision:
		return "await_decision"
	case ExecuteTools:
		return "execute_tools"
	case Done:
		return "done"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name produced by MarshalText.
func (s *State) UnmarshalText(b []byte) error {
	for c := AwaitDecision; c <= Done; c++ {
		if c.String() == string(b) {
			*s = c
			return nil
		}
	}
	return fmt.Errorf("agent: unknown state %q", b)
}

// ─── Collaborators ──────────────────────────────────────────────────────────

// ToolExecutor runs one batch of tool requests. [*tool.Executor] implements
// it. Execute must return exactly one result per request, in request order.
type ToolExecutor interface {
	Execute(ctx context.Context, reqs []tool.Request) []tool.Result
}

// ToolSource advertises the tool list. [*tool.Registry] implements it.
type ToolSource interface {
	Definitions() []types.ToolDefinition
}

// Observer receives progress of one [Loop.Run] call. Methods are called
// synchronously from the loop goroutine.
type Observer interface {
	OnTransition(s State)
	OnToolResults(results []tool.Result)
}

// ObserverFuncs adapts plain functions to [Observer]. Nil fields are skipped.
type ObserverFuncs struct {
	Transition  func(State)
	ToolResults func([]tool.Result)
}

func (o ObserverFuncs) OnTransition(s State) {
	if o.Transition != nil {
		o.Transition(s)
	}
}

func (o ObserverFuncs) OnToolResults(results []tool.Result) {
	if o.ToolResults != nil {
		o.ToolResults(results)
	}
}

// ─── Loop ───────────────────────────────────────────────────────────────────

// Policy holds the tunables of the loop that may change at runtime.
type Policy struct {
	// SystemPrompt is prepended to every decision step.
	SystemPrompt string

	// MaxIterations bounds the decision steps of one user turn.
	MaxIterations int
}

// Config holds the dependencies of a [Loop].
//
// Decider, Executor and Tools are required. A zero Policy falls back to
// [DefaultSystemPrompt] and [DefaultMaxIterations].
type Config struct {
	Decider  Decider
	Executor ToolExecutor
	Tools    ToolSource
	Policy   Policy

	// Metrics defaults to [observe.DefaultMetrics].
	Metrics *observe.Metrics
}

// Result describes one finished user turn.
type Result struct {
	// Answer is the content of the final assistant turn.
	Answer string `json:"answer"`

	// Iterations is the number of decision steps taken.
	Iterations int `json:"iterations"`

	// ToolCalls is the number of tool requests executed.
	ToolCalls int `json:"tool_calls"`

	// Transitions lists every state entered, starting with AwaitDecision and
	// ending with Done.
	Transitions []State `json:"transitions"`

	// LimitHit is set when the iteration bound forced the turn to finish.
	LimitHit bool `json:"limit_hit"`

	// Limit carries the bound that was exceeded when LimitHit is set.
	Limit *SafetyLimitExceeded `json:"-"`
}

// RunOption configures a single [Loop.Run] call.
type RunOption func(*runOptions)

type runOptions struct {
	observer Observer
}

// WithObserver streams progress of the run to o.
func WithObserver(o Observer) RunOption {
	return func(r *runOptions) { r.observer = o }
}

// Loop is the agent state machine. It holds no per-conversation state and is
// safe for concurrent use across conversations.
type Loop struct {
	decider  Decider
	executor ToolExecutor
	tools    ToolSource
	metrics  *observe.Metrics

	mu     sync.RWMutex
	policy Policy
}

// NewLoop validates cfg and returns a Loop.
func NewLoop(cfg Config) (*Loop, error) {
	switch {
	case cfg.Decider == nil:
		return nil, errors.New("agent: Decider must not be nil")
	case cfg.Executor == nil:
		return nil, errors.New("agent: Executor must not be nil")
	case cfg.Tools == nil:
		return nil, errors.New("agent: Tools must not be nil")
	}
	l := &Loop{
		decider:  cfg.Decider,
		executor: cfg.Executor,
		tools:    cfg.Tools,
		metrics:  cfg.Metrics,
	}
	if l.metrics == nil {
		l.metrics = observe.DefaultMetrics()
	}
	l.SetPolicy(cfg.Policy)
	return l, nil
}

// Policy returns the current policy.
func (l *Loop) Policy() Policy {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.policy
}

// SetPolicy replaces the policy. Runs already in progress keep the policy
// they started with.
func (l *Loop) SetPolicy(p Policy) {
	if p.SystemPrompt == "" {
		p.SystemPrompt = DefaultSystemPrompt
	}
	if p.MaxIterations <= 0 {
		p.MaxIterations = DefaultMaxIterations
	}
	l.mu.Lock()
	l.policy = p
	l.mu.Unlock()
}

// Run processes one user message against conv.
//
// The user turn, every assistant turn and every batch of tool results are
// appended to conv as the loop advances. When the decider fails or ctx is
// cancelled, conv is restored to the version it had before Run and the error
// is returned; the caller may retry with the same message. Reaching the
// iteration bound is not an error: the turn finishes with [LimitMessage] and
// Result.LimitHit set.
func (l *Loop) Run(ctx context.Context, conv *Conversation, text string, opts ...RunOption) (Result, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Result{}, ErrEmptyMessage
	}
	var ro runOptions
	for _, o := range opts {
		o(&ro)
	}
	policy := l.Policy()

	ctx, span := observe.StartSpan(ctx, "agent.turn")
	defer span.End()
	log := observe.Logger(ctx)
	start := time.Now()

	base := conv.Version()
	if err := conv.Append(UserTurn{Content: text}); err != nil {
		return Result{}, err
	}

	var res Result
	enter := func(s State) {
		res.Transitions = append(res.Transitions, s)
		log.Debug("agent: transition", "state", s, "iteration", res.Iterations)
		if ro.observer != nil {
			ro.observer.OnTransition(s)
		}
	}
	fail := func(err error) (Result, error) {
		l.restore(ctx, conv, base)
		observe.Fail(span, err)
		return res, err
	}

	tools := l.tools.Definitions()
	enter(AwaitDecision)
	for {
		if err := ctx.Err(); err != nil {
			return fail(err)
		}
		if res.Iterations >= policy.MaxIterations {
			if err := conv.Append(AssistantTurn{Content: LimitMessage}); err != nil {
				return fail(fmt.Errorf("agent: record limit answer: %w", err))
			}
			res.Answer = LimitMessage
			res.LimitHit = true
			res.Limit = &SafetyLimitExceeded{Limit: policy.MaxIterations}
			log.Warn("agent: iteration limit reached", "limit", policy.MaxIterations, "tool_calls", res.ToolCalls)
			enter(Done)
			break
		}

		res.Iterations++
		d, err := l.decider.Decide(ctx, policy.SystemPrompt, conv, tools)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return fail(ctxErr)
			}
			var mie *ModelInvocationError
			if !errors.As(err, &mie) {
				mie = &ModelInvocationError{Err: err}
				err = mie
			}
			mie.Iteration = res.Iterations
			log.Warn("agent: decision failed", "iteration", res.Iterations, "err", err)
			return fail(err)
		}

		if err := conv.Append(assistantTurn(d)); err != nil {
			return fail(fmt.Errorf("agent: record decision: %w", err))
		}

		batch, ok := d.(ToolRequests)
		if !ok {
			res.Answer = assistantTurn(d).Content
			enter(Done)
			break
		}

		enter(ExecuteTools)
		reqs := make([]tool.Request, len(batch.Requests))
		for i, r := range batch.Requests {
			reqs[i] = tool.Request{ID: r.ID, Name: r.Name, Arguments: r.Arguments}
		}
		results := l.executor.Execute(ctx, reqs)
		if err := ctx.Err(); err != nil {
			return fail(err)
		}
		turns, err := resultTurns(reqs, results)
		if err != nil {
			return fail(err)
		}
		if err := conv.Append(turns...); err != nil {
			return fail(fmt.Errorf("agent: record tool results: %w", err))
		}
		res.ToolCalls += len(reqs)
		if ro.observer != nil {
			ro.observer.OnToolResults(results)
		}
		enter(AwaitDecision)
	}

	elapsed := time.Since(start)
	l.metrics.RecordAgentTurn(ctx, res.Iterations, res.LimitHit, elapsed)
	span.SetAttributes(
		attribute.Int("agent.iterations", res.Iterations),
		attribute.Int("agent.tool_calls", res.ToolCalls),
		attribute.Bool("agent.limit_hit", res.LimitHit),
	)
	log.Info("agent: turn complete",
		"iterations", res.Iterations,
		"tool_calls", res.ToolCalls,
		"limit_hit", res.LimitHit,
		"duration", elapsed,
	)
	return res, nil
}

// resultTurns pairs results with their requests.
func resultTurns(reqs []tool.Request, results []tool.Result) ([]Turn, error) {
	if len(results) != len(reqs) {
		return nil, fmt.Errorf("agent: executor returned %d results for %d requests", len(results), len(reqs))
	}
	turns := make([]Turn, len(results))
	for i, r := range results {
		if r.CallID != reqs[i].ID {
			return nil, fmt.Errorf("agent: result %d answers %q, want %q", i, r.CallID, reqs[i].ID)
		}
		turns[i] = ToolResultTurn{CallID: r.CallID, Name: reqs[i].Name, Content: r.Outcome.Text()}
	}
	return turns, nil
}

func (l *Loop) restore(ctx context.Context, conv *Conversation, v Version) {
	if err := conv.Truncate(v); err != nil {
		observe.Logger(ctx).Warn("agent: conversation not restored", "err", err)
	}
}
