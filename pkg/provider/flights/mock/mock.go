// Package mock provides a test double for flights.Provider.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/travelgenie/pkg/provider/flights"
)

// Provider is a mock implementation of flights.Provider.
type Provider struct {
	mu sync.Mutex

	// Offers is returned by SearchFlights.
	Offers []flights.Offer

	// Err, if non-nil, is returned by SearchFlights.
	Err error

	// Calls records every request.
	Calls []flights.SearchRequest
}

// SearchFlights records req and returns Offers, Err.
func (p *Provider) SearchFlights(_ context.Context, req flights.SearchRequest) ([]flights.Offer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = append(p.Calls, req)
	return p.Offers, p.Err
}

// CallCount returns the number of SearchFlights calls.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}

var _ flights.Provider = (*Provider)(nil)
