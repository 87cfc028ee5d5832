// Package events implements the get_events capability over a chain of event
// providers.
package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/MrWong99/travelgenie/internal/resilience"
	"github.com/MrWong99/travelgenie/internal/tool"
	eventsapi "github.com/MrWong99/travelgenie/pkg/provider/events"
	"github.com/MrWong99/travelgenie/pkg/types"
)

// Descriptor advertises get_events to the model.
var Descriptor = tool.Descriptor{
	ID: tool.GetEvents,
	Definition: types.ToolDefinition{
		Name:        tool.GetEvents.String(),
		Description: "Find real upcoming events in a location: concerts, sports, festivals, exhibitions. Optionally filter by event type and time window.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"location": map[string]any{
					"type":        "string",
					"description": "City, optionally with country, e.g. Austin, TX.",
					"minLength":   1,
				},
				"event_type": map[string]any{
					"type":        "string",
					"description": "Optional kind of event, e.g. concerts, jazz, football.",
				},
				"date_range": map[string]any{
					"type":        "string",
					"description": "Time window to search.",
					"enum":        []string{"today", "tomorrow", "week", "month"},
					"default":     "week",
				},
			},
			"required": []string{"location"},
		},
		EstimatedDurationMs: 2000,
		MaxDurationMs:       20000,
		Idempotent:          true,
		CacheableSeconds:    1800,
	},
}

type args struct {
	Location  string `json:"location"`
	EventType string `json:"event_type"`
	DateRange string `json:"date_range"`
}

// Result is the get_events payload.
type Result struct {
	Location    string            `json:"location"`
	Provider    string            `json:"provider"`
	EventsFound int               `json:"events_found"`
	Events      []eventsapi.Event `json:"events"`
}

// Chain searches a fallback group of event providers. An entry that answers
// with no events hands over to the next one; the last entry's answer stands.
// Chain is itself an eventsapi.Provider.
type Chain struct {
	group *resilience.FallbackGroup[eventsapi.Provider]
}

var _ eventsapi.Provider = (*Chain)(nil)

// NewChain wraps group.
func NewChain(group *resilience.FallbackGroup[eventsapi.Provider]) *Chain {
	return &Chain{group: group}
}

// Search returns the events and the name of the provider that found them.
func (c *Chain) Search(ctx context.Context, req eventsapi.SearchRequest) ([]eventsapi.Event, string, error) {
	found, from, err := resilience.FirstNonEmpty(c.group, func(p eventsapi.Provider) ([]eventsapi.Event, error) {
		return p.SearchEvents(ctx, req)
	})
	if err != nil {
		return nil, "", fmt.Errorf("event search failed: %w", err)
	}
	if found == nil {
		found = []eventsapi.Event{}
	}
	return found, from, nil
}

// SearchEvents implements eventsapi.Provider.
func (c *Chain) SearchEvents(ctx context.Context, req eventsapi.SearchRequest) ([]eventsapi.Event, error) {
	found, _, err := c.Search(ctx, req)
	return found, err
}

// Capability is the get_events capability.
type Capability struct {
	chain *Chain
}

var _ tool.Capability = (*Capability)(nil)

// New returns the get_events capability.
func New(chain *Chain) *Capability {
	return &Capability{chain: chain}
}

// Descriptor implements tool.Capability.
func (c *Capability) Descriptor() tool.Descriptor { return Descriptor }

// Invoke implements tool.Capability.
func (c *Capability) Invoke(ctx context.Context, raw json.RawMessage) (any, error) {
	var a args
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, fmt.Errorf("events: failed to parse arguments: %w", err)
	}
	filter, err := eventsapi.ParseDateFilter(a.DateRange)
	if err != nil {
		return nil, err
	}

	found, from, err := c.chain.Search(ctx, eventsapi.SearchRequest{
		Location:   a.Location,
		Query:      a.EventType,
		DateFilter: filter,
	})
	if err != nil {
		return nil, err
	}
	return Result{
		Location:    a.Location,
		Provider:    from,
		EventsFound: len(found),
		Events:      found,
	}, nil
}
