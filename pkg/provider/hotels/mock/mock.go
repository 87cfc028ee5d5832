// Package mock provides a test double for hotels.Provider.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/travelgenie/pkg/provider/hotels"
)

// Provider is a mock implementation of hotels.Provider.
type Provider struct {
	mu sync.Mutex

	// Hotels is returned by SearchHotels.
	Hotels []hotels.Hotel

	// Err, if non-nil, is returned by SearchHotels.
	Err error

	// Calls records every request.
	Calls []hotels.SearchRequest
}

// SearchHotels records req and returns Hotels, Err.
func (p *Provider) SearchHotels(_ context.Context, req hotels.SearchRequest) ([]hotels.Hotel, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = append(p.Calls, req)
	return p.Hotels, p.Err
}

// CallCount returns the number of SearchHotels calls.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}

var _ hotels.Provider = (*Provider)(nil)
