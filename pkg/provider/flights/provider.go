// Package flights defines the Provider interface for flight offer search.
package flights

import "context"

// SearchRequest describes a flight search. Airport codes are IATA codes;
// dates are YYYY-MM-DD.
type SearchRequest struct {
	Origin        string
	Destination   string
	DepartureDate string

	// ReturnDate adds a return slice when non-empty.
	ReturnDate string

	// Adults is the number of adult passengers. Values below one are treated as one.
	Adults int
}

// Offer is one bookable itinerary, reduced to its outbound leg.
type Offer struct {
	Airline       string `json:"airline"`
	FlightNumber  string `json:"flight_number"`
	DepartureTime string `json:"departure_time"`
	ArrivalTime   string `json:"arrival_time"`
	Price         string `json:"price"`
	Currency      string `json:"currency"`
}

// Provider searches flight offers.
type Provider interface {
	SearchFlights(ctx context.Context, req SearchRequest) ([]Offer, error)
}
