// Package hotelsearch implements the search_hotels capability over a chain of
// hotel providers. The first provider with results wins; when every provider
// fails the model sees one failure naming each provider's error.
package hotelsearch

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/MrWong99/travelgenie/internal/resilience"
	"github.com/MrWong99/travelgenie/internal/tool"
	"github.com/MrWong99/travelgenie/pkg/provider/hotels"
	"github.com/MrWong99/travelgenie/pkg/types"
)

// Descriptor advertises search_hotels to the model.
var Descriptor = tool.Descriptor{
	ID: tool.SearchHotels,
	Definition: types.ToolDefinition{
		Name:        tool.SearchHotels.String(),
		Description: "Search real hotels in a city for the given stay. Returns names with prices and ratings when available; falls back to a hotel directory without prices.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"location": map[string]any{
					"type":        "string",
					"description": "City to stay in, e.g. Barcelona.",
					"minLength":   1,
				},
				"checkin_date": map[string]any{
					"type":        "string",
					"description": "Check-in date in YYYY-MM-DD format.",
					"pattern":     `^\d{4}-\d{2}-\d{2}$`,
				},
				"checkout_date": map[string]any{
					"type":        "string",
					"description": "Check-out date in YYYY-MM-DD format.",
					"pattern":     `^\d{4}-\d{2}-\d{2}$`,
				},
				"guests": map[string]any{
					"type":        "integer",
					"description": "Number of adult guests.",
					"minimum":     1,
					"default":     2,
				},
			},
			"required": []string{"location", "checkin_date", "checkout_date"},
		},
		EstimatedDurationMs: 3000,
		MaxDurationMs:       30000,
	},
}

const defaultGuests = 2

type args struct {
	Location     string `json:"location"`
	CheckinDate  string `json:"checkin_date"`
	CheckoutDate string `json:"checkout_date"`
	Guests       int    `json:"guests"`
}

// Result is the search_hotels payload.
type Result struct {
	Location    string         `json:"location"`
	Provider    string         `json:"provider"`
	HotelsFound int            `json:"hotels_found"`
	Hotels      []hotels.Hotel `json:"hotels"`
}

// Capability searches hotels through a fallback chain.
type Capability struct {
	group *resilience.FallbackGroup[hotels.Provider]
}

var _ tool.Capability = (*Capability)(nil)

// New returns the search_hotels capability. Entries of group are tried in
// order; an entry that answers with no hotels counts as a miss unless it is
// the last one.
func New(group *resilience.FallbackGroup[hotels.Provider]) *Capability {
	return &Capability{group: group}
}

// Descriptor implements tool.Capability.
func (c *Capability) Descriptor() tool.Descriptor { return Descriptor }

// Invoke implements tool.Capability.
func (c *Capability) Invoke(ctx context.Context, raw json.RawMessage) (any, error) {
	var a args
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, fmt.Errorf("hotelsearch: failed to parse arguments: %w", err)
	}
	if a.Guests < 1 {
		a.Guests = defaultGuests
	}
	if a.CheckoutDate < a.CheckinDate {
		return nil, fmt.Errorf("checkout_date %s is before checkin_date %s", a.CheckoutDate, a.CheckinDate)
	}

	req := hotels.SearchRequest{
		Location: a.Location,
		CheckIn:  a.CheckinDate,
		CheckOut: a.CheckoutDate,
		Guests:   a.Guests,
	}
	found, from, err := resilience.FirstNonEmpty(c.group, func(p hotels.Provider) ([]hotels.Hotel, error) {
		return p.SearchHotels(ctx, req)
	})
	if err != nil {
		return nil, fmt.Errorf("hotel search failed: %w", err)
	}
	if found == nil {
		found = []hotels.Hotel{}
	}
	return Result{
		Location:    a.Location,
		Provider:    from,
		HotelsFound: len(found),
		Hotels:      found,
	}, nil
}
