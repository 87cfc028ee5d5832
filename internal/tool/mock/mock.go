// Package mock provides a configurable tool.Capability for tests.
//
// Example:
//
//	c := mock.New(tool.GetWeather)
//	c.Payload = map[string]any{"city": "Paris"}
//	reg.Register(c)
package mock

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/MrWong99/travelgenie/internal/tool"
	"github.com/MrWong99/travelgenie/pkg/types"
)

// Capability is a mock implementation of tool.Capability.
type Capability struct {
	mu sync.Mutex

	// Desc is returned by Descriptor.
	Desc tool.Descriptor

	// Fn, if set, replaces the Payload/Err behaviour.
	Fn func(ctx context.Context, args json.RawMessage) (any, error)

	// Payload and Err are returned by Invoke when Fn is nil.
	Payload any
	Err     error

	calls []json.RawMessage
}

// New returns a Capability for id with an object schema that accepts
// anything.
func New(id tool.ID) *Capability {
	return &Capability{Desc: tool.Descriptor{
		ID: id,
		Definition: types.ToolDefinition{
			Name:        id.String(),
			Description: "mock " + id.String(),
			Parameters:  map[string]any{"type": "object"},
		},
	}}
}

// Descriptor implements tool.Capability.
func (c *Capability) Descriptor() tool.Descriptor { return c.Desc }

// Invoke implements tool.Capability.
func (c *Capability) Invoke(ctx context.Context, args json.RawMessage) (any, error) {
	c.mu.Lock()
	c.calls = append(c.calls, append(json.RawMessage(nil), args...))
	fn, payload, err := c.Fn, c.Payload, c.Err
	c.mu.Unlock()
	if fn != nil {
		return fn(ctx, args)
	}
	return payload, err
}

// Calls returns the arguments of every Invoke call.
func (c *Capability) Calls() []json.RawMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]json.RawMessage(nil), c.calls...)
}

// CallCount returns the number of Invoke calls.
func (c *Capability) CallCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

var _ tool.Capability = (*Capability)(nil)
