// Package places defines the Provider interface for points of interest:
// attractions and restaurants.
package places

import "context"

// Attraction is a tourist attraction or landmark.
type Attraction struct {
	Name      string   `json:"name"`
	Address   string   `json:"address"`
	Rating    *float64 `json:"rating,omitempty"`
	Reviews   int      `json:"total_reviews"`
	Types     []string `json:"types"`
	OpenNow   *bool    `json:"open_now,omitempty"`
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
}

// Restaurant is a place to eat.
type Restaurant struct {
	Name       string   `json:"name"`
	Address    string   `json:"address"`
	Rating     *float64 `json:"rating,omitempty"`
	Reviews    int      `json:"total_reviews"`
	PriceRange string   `json:"price_range"`
	OpenNow    *bool    `json:"open_now,omitempty"`
}

// Provider looks up points of interest in a city.
type Provider interface {
	Attractions(ctx context.Context, location string) ([]Attraction, error)

	// Restaurants returns restaurants serving cuisine, or the best-rated
	// restaurants when cuisine is empty.
	Restaurants(ctx context.Context, location, cuisine string) ([]Restaurant, error)
}
