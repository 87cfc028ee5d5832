// Package hotels defines the Provider interface for hotel search.
package hotels

import (
	"context"
	"errors"
)

// ErrLocationNotFound is returned when the provider cannot resolve the
// requested location.
var ErrLocationNotFound = errors.New("hotels: location not found")

// SearchRequest describes a hotel search. Dates are YYYY-MM-DD.
type SearchRequest struct {
	Location string
	CheckIn  string
	CheckOut string

	// Guests is the number of adults. Values below one are treated as one.
	Guests int
}

// Hotel is a single search result. Providers fill the fields they know;
// pricing providers set Price and Currency, directory providers set Address
// and PriceCategory.
type Hotel struct {
	Name          string   `json:"name"`
	Price         *float64 `json:"price,omitempty"`
	Currency      string   `json:"currency,omitempty"`
	Rating        *float64 `json:"rating,omitempty"`
	Address       string   `json:"address,omitempty"`
	TotalReviews  int      `json:"total_reviews,omitempty"`
	PriceCategory string   `json:"price_category,omitempty"`
}

// Provider searches hotels.
type Provider interface {
	SearchHotels(ctx context.Context, req SearchRequest) ([]Hotel, error)
}
