// Package mock provides a test double for events.Provider.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/travelgenie/pkg/provider/events"
)

// Provider is a mock implementation of events.Provider.
type Provider struct {
	mu sync.Mutex

	Events []events.Event
	Err    error
	Calls  []events.SearchRequest
}

// SearchEvents records req and returns Events, Err.
func (p *Provider) SearchEvents(_ context.Context, req events.SearchRequest) ([]events.Event, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = append(p.Calls, req)
	return p.Events, p.Err
}

// CallCount returns the number of SearchEvents calls.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}

var _ events.Provider = (*Provider)(nil)
