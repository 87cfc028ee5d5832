// Package flightsearch implements the search_flights capability.
package flightsearch

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/MrWong99/travelgenie/internal/airport"
	"github.com/MrWong99/travelgenie/internal/tool"
	"github.com/MrWong99/travelgenie/pkg/provider/flights"
	"github.com/MrWong99/travelgenie/pkg/types"
)

// Descriptor advertises search_flights to the model.
var Descriptor = tool.Descriptor{
	ID: tool.SearchFlights,
	Definition: types.ToolDefinition{
		Name:        tool.SearchFlights.String(),
		Description: "Search real, bookable flight offers between two cities or airports. Returns up to five offers with airline, flight number, times and price. Bookings must be completed on the airline or agency website.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"origin": map[string]any{
					"type":        "string",
					"description": "Departure city or 3-letter IATA airport code, e.g. New York or JFK.",
					"minLength":   1,
				},
				"destination": map[string]any{
					"type":        "string",
					"description": "Arrival city or 3-letter IATA airport code, e.g. Paris or CDG.",
					"minLength":   1,
				},
				"departure_date": map[string]any{
					"type":        "string",
					"description": "Outbound date in YYYY-MM-DD format.",
					"pattern":     `^\d{4}-\d{2}-\d{2}$`,
				},
				"return_date": map[string]any{
					"type":        "string",
					"description": "Optional return date in YYYY-MM-DD format for a round trip.",
					"pattern":     `^\d{4}-\d{2}-\d{2}$`,
				},
				"passengers": map[string]any{
					"type":        "integer",
					"description": "Number of adult passengers.",
					"minimum":     1,
					"maximum":     9,
					"default":     1,
				},
			},
			"required": []string{"origin", "destination", "departure_date"},
		},
		EstimatedDurationMs: 4000,
		MaxDurationMs:       30000,
	},
}

type args struct {
	Origin        string `json:"origin"`
	Destination   string `json:"destination"`
	DepartureDate string `json:"departure_date"`
	ReturnDate    string `json:"return_date"`
	Passengers    int    `json:"passengers"`
}

// Result is the search_flights payload.
type Result struct {
	Origin       string          `json:"origin"`
	Destination  string          `json:"destination"`
	FlightsFound int             `json:"flights_found"`
	Flights      []flights.Offer `json:"flights"`
}

// Capability searches flights through a flights.Provider.
type Capability struct {
	provider flights.Provider
	airports *airport.Resolver
}

var _ tool.Capability = (*Capability)(nil)

// New returns the search_flights capability. A nil resolver uses the default
// city table.
func New(p flights.Provider, airports *airport.Resolver) *Capability {
	if airports == nil {
		airports = airport.New()
	}
	return &Capability{provider: p, airports: airports}
}

// Descriptor implements tool.Capability.
func (c *Capability) Descriptor() tool.Descriptor { return Descriptor }

// Invoke implements tool.Capability.
func (c *Capability) Invoke(ctx context.Context, raw json.RawMessage) (any, error) {
	var a args
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, fmt.Errorf("flightsearch: failed to parse arguments: %w", err)
	}
	if a.Passengers < 1 {
		a.Passengers = 1
	}

	origin := c.airports.Normalize(a.Origin)
	destination := c.airports.Normalize(a.Destination)
	if origin == "" || destination == "" {
		return nil, fmt.Errorf("flightsearch: origin and destination must not be empty")
	}

	offers, err := c.provider.SearchFlights(ctx, flights.SearchRequest{
		Origin:        origin,
		Destination:   destination,
		DepartureDate: a.DepartureDate,
		ReturnDate:    a.ReturnDate,
		Adults:        a.Passengers,
	})
	if err != nil {
		return nil, fmt.Errorf("flight search failed: %w", err)
	}
	if offers == nil {
		offers = []flights.Offer{}
	}
	return Result{
		Origin:       origin,
		Destination:  destination,
		FlightsFound: len(offers),
		Flights:      offers,
	}, nil
}
