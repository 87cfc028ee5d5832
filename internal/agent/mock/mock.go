// Package mock provides a scripted [agent.Decider] for use in unit tests.
//
// The mock is safe for concurrent use, records every call and exposes
// exported fields for configuring return values.
//
// Example:
//
//	d := &mock.Decider{Script: []mock.Step{
//	    {Decision: agent.ToolRequests{Requests: []agent.ToolRequest{{ID: "c1", Name: "get_weather"}}}},
//	    {Decision: agent.FinalAnswer{Text: "Pack an umbrella."}},
//	}}
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/travelgenie/internal/agent"
	"github.com/MrWong99/travelgenie/pkg/types"
)

// DecideCall records the arguments of a single [Decider.Decide] invocation.
type DecideCall struct {
	System string

	// Turns is a snapshot of the conversation at call time.
	Turns []agent.Turn

	// Tools is the advertised tool list.
	Tools []types.ToolDefinition
}

// Step is one scripted reply.
type Step struct {
	Decision agent.Decision
	Err      error
}

// Decider is a mock implementation of [agent.Decider].
//
// Decide consumes Script in order. Once the script is exhausted it returns
// Default, DefaultErr. When Fn is set it replaces both.
type Decider struct {
	mu sync.Mutex

	// Script is consumed one Step per Decide call.
	Script []Step

	// Default and DefaultErr are returned once Script is exhausted.
	Default    agent.Decision
	DefaultErr error

	// Fn, if set, is called instead of consulting Script.
	Fn func(ctx context.Context, conv *agent.Conversation) (agent.Decision, error)

	calls []DecideCall
}

var _ agent.Decider = (*Decider)(nil)

// Decide implements [agent.Decider].
func (d *Decider) Decide(ctx context.Context, system string, conv *agent.Conversation, tools []types.ToolDefinition) (agent.Decision, error) {
	d.mu.Lock()
	d.calls = append(d.calls, DecideCall{System: system, Turns: conv.Turns(), Tools: tools})
	fn := d.Fn
	var step Step
	if fn == nil {
		if len(d.Script) > 0 {
			step = d.Script[0]
			d.Script = d.Script[1:]
		} else {
			step = Step{Decision: d.Default, Err: d.DefaultErr}
		}
	}
	d.mu.Unlock()

	if fn != nil {
		return fn(ctx, conv)
	}
	return step.Decision, step.Err
}

// Calls returns a snapshot of the recorded calls.
func (d *Decider) Calls() []DecideCall {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]DecideCall(nil), d.calls...)
}

// CallCount returns the number of Decide calls.
func (d *Decider) CallCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.calls)
}
