// Package mock provides a test double for the llm.Provider interface.
//
// Use Provider in unit tests to drive the decision step with a scripted
// sequence of completions and to verify the CompletionRequests it sends.
// All fields are safe to set before calling any method; mutating them during a
// concurrent call is the caller's responsibility.
//
// Example:
//
//	p := &mock.Provider{
//	    Script: []mock.Step{
//	        {Response: &llm.CompletionResponse{ToolCalls: []types.ToolCall{{ID: "1", Name: "get_weather"}}}},
//	        {Response: &llm.CompletionResponse{Content: "Sunny in Paris."}},
//	    },
//	}
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/travelgenie/pkg/provider/llm"
	"github.com/MrWong99/travelgenie/pkg/types"
)

// CompleteCall records a single invocation of Complete.
type CompleteCall struct {
	// Ctx is the context passed to Complete.
	Ctx context.Context
	// Req is the CompletionRequest passed to Complete. Messages are copied.
	Req llm.CompletionRequest
}

// Step is one scripted reply to Complete.
type Step struct {
	Response *llm.CompletionResponse
	Err      error
}

// Provider is a mock implementation of llm.Provider.
//
// Complete consumes Script in order. Once the script is exhausted it returns
// CompleteResponse, CompleteErr. When Block is true Complete waits until ctx is
// done and returns ctx.Err(), which simulates a model call that times out.
type Provider struct {
	mu sync.Mutex

	// Script is consumed one Step per Complete call.
	Script []Step

	// CompleteResponse is returned by Complete once Script is exhausted.
	CompleteResponse *llm.CompletionResponse

	// CompleteErr, if non-nil, is returned once Script is exhausted.
	CompleteErr error

	// Block makes Complete wait for ctx cancellation.
	Block bool

	// TokenCount is returned by CountTokens.
	TokenCount int

	// ModelCapabilities is returned by Capabilities.
	ModelCapabilities types.ModelCapabilities

	// CompleteCalls records every invocation of Complete in order.
	CompleteCalls []CompleteCall

	// CapabilitiesCallCount is the number of times Capabilities was called.
	CapabilitiesCallCount int
}

// Complete records the call and returns the next scripted step.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	msgs := make([]types.Message, len(req.Messages))
	copy(msgs, req.Messages)
	req.Messages = msgs
	p.CompleteCalls = append(p.CompleteCalls, CompleteCall{Ctx: ctx, Req: req})

	if p.Block {
		p.mu.Unlock()
		<-ctx.Done()
		return nil, ctx.Err()
	}

	var step Step
	if len(p.Script) > 0 {
		step = p.Script[0]
		p.Script = p.Script[1:]
	} else {
		step = Step{Response: p.CompleteResponse, Err: p.CompleteErr}
	}
	p.mu.Unlock()
	return step.Response, step.Err
}

// CountTokens returns TokenCount.
func (p *Provider) CountTokens(_ []types.Message) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.TokenCount, nil
}

// Capabilities records the call and returns ModelCapabilities.
func (p *Provider) Capabilities() types.ModelCapabilities {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CapabilitiesCallCount++
	return p.ModelCapabilities
}

// Calls returns a snapshot of the recorded Complete calls.
func (p *Provider) Calls() []CompleteCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]CompleteCall, len(p.CompleteCalls))
	copy(out, p.CompleteCalls)
	return out
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CompleteCalls = nil
	p.CapabilitiesCallCount = 0
}

// Ensure Provider implements llm.Provider at compile time.
var _ llm.Provider = (*Provider)(nil)
