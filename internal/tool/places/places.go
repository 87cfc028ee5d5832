// Package places implements the get_attractions and get_restaurants
// capabilities on a points-of-interest provider.
package places

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/MrWong99/travelgenie/internal/tool"
	placesapi "github.com/MrWong99/travelgenie/pkg/provider/places"
	"github.com/MrWong99/travelgenie/pkg/types"
)

var locationParam = map[string]any{
	"type":        "string",
	"description": "City to search in, e.g. Kyoto.",
	"minLength":   1,
}

// AttractionsDescriptor advertises get_attractions to the model.
var AttractionsDescriptor = tool.Descriptor{
	ID: tool.GetAttractions,
	Definition: types.ToolDefinition{
		Name:        tool.GetAttractions.String(),
		Description: "Find real tourist attractions and landmarks in a city with ratings, review counts and opening status.",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{"location": locationParam},
			"required":   []string{"location"},
		},
		EstimatedDurationMs: 1200,
		MaxDurationMs:       15000,
		Idempotent:          true,
		CacheableSeconds:    3600,
	},
}

// RestaurantsDescriptor advertises get_restaurants to the model.
var RestaurantsDescriptor = tool.Descriptor{
	ID: tool.GetRestaurants,
	Definition: types.ToolDefinition{
		Name:        tool.GetRestaurants.String(),
		Description: "Find real restaurants in a city, optionally filtered by cuisine, with ratings and price range.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"location": locationParam,
				"cuisine": map[string]any{
					"type":        "string",
					"description": "Optional cuisine such as italian, sushi or vegan.",
				},
			},
			"required": []string{"location"},
		},
		EstimatedDurationMs: 1200,
		MaxDurationMs:       15000,
		Idempotent:          true,
		CacheableSeconds:    3600,
	},
}

type args struct {
	Location string `json:"location"`
	Cuisine  string `json:"cuisine"`
}

func parse(raw json.RawMessage) (args, error) {
	var a args
	if err := json.Unmarshal(raw, &a); err != nil {
		return a, fmt.Errorf("places: failed to parse arguments: %w", err)
	}
	return a, nil
}

// AttractionsResult is the get_attractions payload.
type AttractionsResult struct {
	City             string                 `json:"city"`
	AttractionsFound int                    `json:"attractions_found"`
	Attractions      []placesapi.Attraction `json:"attractions"`
}

// RestaurantsResult is the get_restaurants payload.
type RestaurantsResult struct {
	City             string                 `json:"city"`
	Cuisine          string                 `json:"cuisine"`
	RestaurantsFound int                    `json:"restaurants_found"`
	Restaurants      []placesapi.Restaurant `json:"restaurants"`
}

// Attractions is the get_attractions capability.
type Attractions struct {
	provider placesapi.Provider
}

// Restaurants is the get_restaurants capability.
type Restaurants struct {
	provider placesapi.Provider
}

var (
	_ tool.Capability = (*Attractions)(nil)
	_ tool.Capability = (*Restaurants)(nil)
)

// NewAttractions returns the get_attractions capability.
func NewAttractions(p placesapi.Provider) *Attractions { return &Attractions{provider: p} }

// NewRestaurants returns the get_restaurants capability.
func NewRestaurants(p placesapi.Provider) *Restaurants { return &Restaurants{provider: p} }

// Descriptor implements tool.Capability.
func (c *Attractions) Descriptor() tool.Descriptor { return AttractionsDescriptor }

// Invoke implements tool.Capability.
func (c *Attractions) Invoke(ctx context.Context, raw json.RawMessage) (any, error) {
	a, err := parse(raw)
	if err != nil {
		return nil, err
	}
	return FindAttractions(ctx, c.provider, a.Location)
}

// FindAttractions looks up attractions in city.
func FindAttractions(ctx context.Context, p placesapi.Provider, city string) (*AttractionsResult, error) {
	found, err := p.Attractions(ctx, city)
	if err != nil {
		return nil, fmt.Errorf("attraction search failed: %w", err)
	}
	if found == nil {
		found = []placesapi.Attraction{}
	}
	return &AttractionsResult{City: city, AttractionsFound: len(found), Attractions: found}, nil
}

// Descriptor implements tool.Capability.
func (c *Restaurants) Descriptor() tool.Descriptor { return RestaurantsDescriptor }

// Invoke implements tool.Capability.
func (c *Restaurants) Invoke(ctx context.Context, raw json.RawMessage) (any, error) {
	a, err := parse(raw)
	if err != nil {
		return nil, err
	}
	return FindRestaurants(ctx, c.provider, a.Location, a.Cuisine)
}

// FindRestaurants looks up restaurants in city. An empty cuisine asks for the
// best-rated restaurants and is reported as "Various".
func FindRestaurants(ctx context.Context, p placesapi.Provider, city, cuisine string) (*RestaurantsResult, error) {
	found, err := p.Restaurants(ctx, city, cuisine)
	if err != nil {
		return nil, fmt.Errorf("restaurant search failed: %w", err)
	}
	if found == nil {
		found = []placesapi.Restaurant{}
	}
	label := cuisine
	if label == "" {
		label = "Various"
	}
	return &RestaurantsResult{City: city, Cuisine: label, RestaurantsFound: len(found), Restaurants: found}, nil
}
