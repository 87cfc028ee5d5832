// Package events defines the Provider interface for local event search.
package events

import (
	"context"
	"fmt"
)

// DateFilter narrows a search to a time window.
type DateFilter string

// Supported date filters.
const (
	Today    DateFilter = "today"
	Tomorrow DateFilter = "tomorrow"
	Week     DateFilter = "week"
	Month    DateFilter = "month"
)

// ParseDateFilter validates s. An empty string yields Week.
func ParseDateFilter(s string) (DateFilter, error) {
	switch f := DateFilter(s); f {
	case "":
		return Week, nil
	case Today, Tomorrow, Week, Month:
		return f, nil
	default:
		return "", fmt.Errorf("events: unknown date filter %q", s)
	}
}

// SearchRequest describes an event search.
type SearchRequest struct {
	// Location is free text such as "Paris, France".
	Location string

	// Query optionally narrows the kind of event ("concerts", "sports").
	Query string

	DateFilter DateFilter
}

// Event is a single upcoming event. Providers fill what they know.
type Event struct {
	Title       string   `json:"title"`
	Date        string   `json:"date,omitempty"`
	Time        string   `json:"time,omitempty"`
	Venue       string   `json:"venue,omitempty"`
	Address     []string `json:"address,omitempty"`
	Description string   `json:"description,omitempty"`
	Link        string   `json:"link,omitempty"`
	Thumbnail   string   `json:"thumbnail,omitempty"`
}

// Provider searches events.
type Provider interface {
	SearchEvents(ctx context.Context, req SearchRequest) ([]Event, error)
}
