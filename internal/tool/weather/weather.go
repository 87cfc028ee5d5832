// Package weather implements the get_weather capability: current conditions,
// a short forecast and, for a trip with dates, packing suggestions.
package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/travelgenie/internal/observe"
	"github.com/MrWong99/travelgenie/internal/tool"
	weatherapi "github.com/MrWong99/travelgenie/pkg/provider/weather"
	"github.com/MrWong99/travelgenie/pkg/types"
)

// ForecastDays is how far ahead the forecast reaches.
const ForecastDays = 5

// Descriptor advertises get_weather to the model.
var Descriptor = tool.Descriptor{
	ID: tool.GetWeather,
	Definition: types.ToolDefinition{
		Name:        tool.GetWeather.String(),
		Description: "Get live weather for a city: current conditions and a 5-day forecast. When both trip dates are given, packing suggestions based on the forecast are included.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"location": map[string]any{
					"type":        "string",
					"description": "City name, optionally with country, e.g. Lisbon or Lisbon,PT.",
					"minLength":   1,
				},
				"start_date": map[string]any{
					"type":        "string",
					"description": "Optional trip start date in YYYY-MM-DD format.",
					"pattern":     `^\d{4}-\d{2}-\d{2}$`,
				},
				"end_date": map[string]any{
					"type":        "string",
					"description": "Optional trip end date in YYYY-MM-DD format.",
					"pattern":     `^\d{4}-\d{2}-\d{2}$`,
				},
			},
			"required": []string{"location"},
		},
		EstimatedDurationMs: 800,
		MaxDurationMs:       15000,
		Idempotent:          true,
		CacheableSeconds:    600,
	},
}

type args struct {
	Location  string `json:"location"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

// Report is the get_weather payload without trip dates.
type Report struct {
	*weatherapi.Current
	Forecast []weatherapi.Day `json:"forecast"`
}

// TripReport is the get_weather payload for a trip with dates.
type TripReport struct {
	City               string                `json:"city"`
	Country            string                `json:"country"`
	TripDates          string                `json:"trip_dates"`
	CurrentWeather     weatherapi.Conditions `json:"current_weather"`
	Forecast           []weatherapi.Day      `json:"forecast"`
	PackingSuggestions []string              `json:"packing_suggestions"`
}

// Capability reports weather through a weatherapi.Provider.
type Capability struct {
	provider weatherapi.Provider
}

var _ tool.Capability = (*Capability)(nil)

// New returns the get_weather capability.
func New(p weatherapi.Provider) *Capability {
	return &Capability{provider: p}
}

// Descriptor implements tool.Capability.
func (c *Capability) Descriptor() tool.Descriptor { return Descriptor }

// Invoke implements tool.Capability.
func (c *Capability) Invoke(ctx context.Context, raw json.RawMessage) (any, error) {
	var a args
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, fmt.Errorf("weather: failed to parse arguments: %w", err)
	}
	if a.StartDate != "" && a.EndDate != "" {
		return Trip(ctx, c.provider, a.Location, a.StartDate, a.EndDate)
	}
	return c.report(ctx, a.Location)
}

// report fetches current conditions and the forecast concurrently. Only the
// current conditions are required.
func (c *Capability) report(ctx context.Context, city string) (*Report, error) {
	var (
		g        errgroup.Group
		current  *weatherapi.Current
		forecast *weatherapi.Forecast
		fErr     error
	)
	g.Go(func() error {
		var err error
		current, err = c.provider.Current(ctx, city)
		return err
	})
	g.Go(func() error {
		forecast, fErr = c.provider.Forecast(ctx, city, ForecastDays)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, describe(city, err)
	}

	out := &Report{Current: current, Forecast: []weatherapi.Day{}}
	if fErr != nil {
		observe.Logger(ctx).Warn("forecast unavailable", "city", city, "err", fErr)
	} else if forecast != nil && forecast.Days != nil {
		out.Forecast = forecast.Days
	}
	return out, nil
}

// Trip builds the trip report for city between start and end. Both
// current conditions and the forecast are required.
func Trip(ctx context.Context, p weatherapi.Provider, city, start, end string) (*TripReport, error) {
	g, gctx := errgroup.WithContext(ctx)
	var (
		current  *weatherapi.Current
		forecast *weatherapi.Forecast
	)
	g.Go(func() error {
		var err error
		current, err = p.Current(gctx, city)
		return err
	})
	g.Go(func() error {
		var err error
		forecast, err = p.Forecast(gctx, city, ForecastDays)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, describe(city, err)
	}

	days := forecast.Days
	if days == nil {
		days = []weatherapi.Day{}
	}
	return &TripReport{
		City:               current.City,
		Country:            current.Country,
		TripDates:          start + " to " + end,
		CurrentWeather:     current.Conditions,
		Forecast:           days,
		PackingSuggestions: PackingSuggestions(days),
	}, nil
}

// PackingSuggestions derives what to pack from a forecast: clothing by the
// average daily high, plus rain and sun gear when the descriptions call for
// it. Entries are unique and keep their order.
func PackingSuggestions(days []weatherapi.Day) []string {
	var sum int
	descriptions := make([]string, 0, len(days))
	for _, d := range days {
		sum += d.HighC
		descriptions = append(descriptions, strings.ToLower(d.Description))
	}
	avg := float64(sum) / float64(max(len(days), 1))
	all := strings.Join(descriptions, " ")

	var tips []string
	switch {
	case avg < 10:
		tips = append(tips, "Warm jacket", "Layers", "Gloves")
	case avg < 20:
		tips = append(tips, "Light jacket", "Sweater", "Long pants")
	default:
		tips = append(tips, "Light clothing", "T-shirts", "Shorts")
	}
	if strings.Contains(all, "rain") {
		tips = append(tips, "Umbrella/Rain jacket")
	}
	if strings.Contains(all, "sun") || strings.Contains(all, "clear") {
		tips = append(tips, "Sunglasses/Sunscreen")
	}
	return dedupe(tips)
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := in[:0]
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func describe(city string, err error) error {
	if errors.Is(err, weatherapi.ErrLocationNotFound) {
		return fmt.Errorf("location not found: %s", city)
	}
	return fmt.Errorf("weather lookup failed: %w", err)
}
