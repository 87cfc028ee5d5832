// Package itinerary implements the create_itinerary capability. It gathers
// weather, attractions, restaurants and events for a destination at the same
// time and assembles whatever arrived into one plan. A source that is missing
// or fails is listed under "omitted" with its reason; the itinerary itself
// never fails.
package itinerary

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/travelgenie/internal/observe"
	"github.com/MrWong99/travelgenie/internal/tool"
	placestool "github.com/MrWong99/travelgenie/internal/tool/places"
	weathertool "github.com/MrWong99/travelgenie/internal/tool/weather"
	"github.com/MrWong99/travelgenie/pkg/provider/events"
	"github.com/MrWong99/travelgenie/pkg/provider/places"
	"github.com/MrWong99/travelgenie/pkg/provider/weather"
	"github.com/MrWong99/travelgenie/pkg/types"
)

// Limits on how much of each source ends up in the plan.
const (
	MaxAttractions = 8
	MaxRestaurants = 5
	MaxEvents      = 5
)

// Note is attached to every itinerary.
const Note = "This itinerary is built from live data: the attractions, restaurants and events listed are real. Check opening hours and book directly with the venues."

const defaultInterests = "general"

// Source names used as keys of Itinerary.Omitted.
const (
	SourceWeather     = "weather"
	SourceAttractions = "attractions"
	SourceRestaurants = "restaurants"
	SourceEvents      = "events"
)

// Descriptor advertises create_itinerary to the model.
var Descriptor = tool.Descriptor{
	ID: tool.CreateItinerary,
	Definition: types.ToolDefinition{
		Name:        tool.CreateItinerary.String(),
		Description: "Create a personalised trip plan for a destination and date range, combining the weather outlook with packing tips, top attractions, recommended restaurants and upcoming events.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"destination": map[string]any{
					"type":        "string",
					"description": "Destination city, e.g. Rome.",
					"minLength":   1,
				},
				"start_date": map[string]any{
					"type":        "string",
					"description": "Trip start date in YYYY-MM-DD format.",
					"pattern":     `^\d{4}-\d{2}-\d{2}$`,
				},
				"end_date": map[string]any{
					"type":        "string",
					"description": "Trip end date in YYYY-MM-DD format.",
					"pattern":     `^\d{4}-\d{2}-\d{2}$`,
				},
				"interests": map[string]any{
					"type":        "string",
					"description": "Traveller interests such as food, art or nightlife.",
					"default":     defaultInterests,
				},
			},
			"required": []string{"destination", "start_date", "end_date"},
		},
		EstimatedDurationMs: 5000,
		MaxDurationMs:       45000,
	},
}

type args struct {
	Destination string `json:"destination"`
	StartDate   string `json:"start_date"`
	EndDate     string `json:"end_date"`
	Interests   string `json:"interests"`
}

// WeatherSummary is the weather section of an itinerary.
type WeatherSummary struct {
	Summary     string   `json:"summary"`
	PackingTips []string `json:"packing_tips"`
}

// Itinerary is the create_itinerary payload.
type Itinerary struct {
	Destination            string              `json:"destination"`
	Dates                  string              `json:"dates"`
	Interests              string              `json:"interests"`
	Weather                *WeatherSummary     `json:"weather,omitempty"`
	TopAttractions         []places.Attraction `json:"top_attractions,omitempty"`
	RecommendedRestaurants []places.Restaurant `json:"recommended_restaurants,omitempty"`
	UpcomingEvents         []events.Event      `json:"upcoming_events,omitempty"`
	Omitted                map[string]string   `json:"omitted,omitempty"`
	Note                   string              `json:"note"`
}

// Sources are the providers an itinerary draws on. Any of them may be nil.
type Sources struct {
	Weather weather.Provider
	Places  places.Provider
	Events  events.Provider
}

// Capability is the create_itinerary capability.
type Capability struct {
	src Sources
}

var _ tool.Capability = (*Capability)(nil)

// New returns the create_itinerary capability.
func New(src Sources) *Capability {
	return &Capability{src: src}
}

// Descriptor implements tool.Capability.
func (c *Capability) Descriptor() tool.Descriptor { return Descriptor }

// Invoke implements tool.Capability.
func (c *Capability) Invoke(ctx context.Context, raw json.RawMessage) (any, error) {
	var a args
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, fmt.Errorf("itinerary: failed to parse arguments: %w", err)
	}
	if a.Interests == "" {
		a.Interests = defaultInterests
	}
	return c.Build(ctx, a.Destination, a.StartDate, a.EndDate, a.Interests), nil
}

// Build assembles the itinerary. It blocks until every source has answered
// or ctx is done.
func (c *Capability) Build(ctx context.Context, destination, start, end, interests string) *Itinerary {
	it := &Itinerary{
		Destination: destination,
		Dates:       start + " to " + end,
		Interests:   interests,
		Note:        Note,
	}

	var (
		mu      sync.Mutex
		g       errgroup.Group
		omitted = make(map[string]string)
	)
	omit := func(source string, err error) {
		observe.Logger(ctx).Info("itinerary source omitted", "source", source, "destination", destination, "err", err)
		mu.Lock()
		omitted[source] = err.Error()
		mu.Unlock()
	}
	notConfigured := errors.New("not configured")

	if c.src.Weather == nil {
		omit(SourceWeather, notConfigured)
	} else {
		g.Go(func() error {
			trip, err := weathertool.Trip(ctx, c.src.Weather, destination, start, end)
			if err != nil {
				omit(SourceWeather, err)
				return nil
			}
			it.Weather = &WeatherSummary{Summary: trip.CurrentWeather.Description, PackingTips: trip.PackingSuggestions}
			return nil
		})
	}

	if c.src.Places == nil {
		omit(SourceAttractions, notConfigured)
		omit(SourceRestaurants, notConfigured)
	} else {
		g.Go(func() error {
			res, err := placestool.FindAttractions(ctx, c.src.Places, destination)
			if err != nil {
				omit(SourceAttractions, err)
				return nil
			}
			it.TopAttractions = head(res.Attractions, MaxAttractions)
			return nil
		})
		g.Go(func() error {
			res, err := placestool.FindRestaurants(ctx, c.src.Places, destination, "")
			if err != nil {
				omit(SourceRestaurants, err)
				return nil
			}
			it.RecommendedRestaurants = head(res.Restaurants, MaxRestaurants)
			return nil
		})
	}

	if c.src.Events == nil {
		omit(SourceEvents, notConfigured)
	} else {
		g.Go(func() error {
			found, err := c.src.Events.SearchEvents(ctx, events.SearchRequest{Location: destination, DateFilter: events.Month})
			if err != nil {
				omit(SourceEvents, err)
				return nil
			}
			it.UpcomingEvents = head(found, MaxEvents)
			return nil
		})
	}

	_ = g.Wait()
	if len(omitted) > 0 {
		it.Omitted = omitted
	}
	return it
}

func head[T any](s []T, n int) []T {
	if len(s) > n {
		return s[:n]
	}
	return s
}
