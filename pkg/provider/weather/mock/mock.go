// Package mock provides a test double for weather.Provider.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/travelgenie/pkg/provider/weather"
)

// Provider is a mock implementation of weather.Provider.
type Provider struct {
	mu sync.Mutex

	CurrentResult  *weather.Current
	CurrentErr     error
	ForecastResult *weather.Forecast
	ForecastErr    error

	// Cities records the city of every call, in order.
	Cities []string
}

// Current returns CurrentResult, CurrentErr.
func (p *Provider) Current(_ context.Context, city string) (*weather.Current, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Cities = append(p.Cities, city)
	return p.CurrentResult, p.CurrentErr
}

// Forecast returns ForecastResult, ForecastErr.
func (p *Provider) Forecast(_ context.Context, city string, _ int) (*weather.Forecast, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Cities = append(p.Cities, city)
	return p.ForecastResult, p.ForecastErr
}

var _ weather.Provider = (*Provider)(nil)
