// Package mock provides a test double for places.Provider.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/travelgenie/pkg/provider/places"
)

// Provider is a mock implementation of places.Provider.
type Provider struct {
	mu sync.Mutex

	AttractionsResult []places.Attraction
	AttractionsErr    error
	RestaurantsResult []places.Restaurant
	RestaurantsErr    error

	// Cuisines records the cuisine argument of every Restaurants call.
	Cuisines []string
}

// Attractions returns AttractionsResult, AttractionsErr.
func (p *Provider) Attractions(context.Context, string) ([]places.Attraction, error) {
	return p.AttractionsResult, p.AttractionsErr
}

// Restaurants returns RestaurantsResult, RestaurantsErr.
func (p *Provider) Restaurants(_ context.Context, _ string, cuisine string) ([]places.Restaurant, error) {
	p.mu.Lock()
	p.Cuisines = append(p.Cuisines, cuisine)
	p.mu.Unlock()
	return p.RestaurantsResult, p.RestaurantsErr
}

var _ places.Provider = (*Provider)(nil)
