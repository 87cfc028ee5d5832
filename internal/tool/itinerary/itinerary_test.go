package itinerary

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/MrWong99/travelgenie/pkg/provider/events"
	eventsmock "github.com/MrWong99/travelgenie/pkg/provider/events/mock"
	"github.com/MrWong99/travelgenie/pkg/provider/places"
	placesmock "github.com/MrWong99/travelgenie/pkg/provider/places/mock"
	"github.com/MrWong99/travelgenie/pkg/provider/weather"
	weathermock "github.com/MrWong99/travelgenie/pkg/provider/weather/mock"
)

const trip = `{"destination":"Rome","start_date":"2026-09-10","end_date":"2026-09-14"}`

func rome() (*weathermock.Provider, *placesmock.Provider, *eventsmock.Provider) {
	w := &weathermock.Provider{
		CurrentResult: &weather.Current{City: "Rome", Country: "IT", Conditions: weather.Conditions{Description: "Clear Sky"}},
		ForecastResult: &weather.Forecast{Days: []weather.Day{
			{HighC: 27, Description: "Clear Sky"},
			{HighC: 25, Description: "Few Clouds"},
		}},
	}
	p := &placesmock.Provider{}
	for i := range 12 {
		p.AttractionsResult = append(p.AttractionsResult, places.Attraction{Name: fmt.Sprintf("Attraction %d", i)})
		p.RestaurantsResult = append(p.RestaurantsResult, places.Restaurant{Name: fmt.Sprintf("Trattoria %d", i)})
	}
	e := &eventsmock.Provider{}
	for i := range 7 {
		e.Events = append(e.Events, events.Event{Title: fmt.Sprintf("Event %d", i)})
	}
	return w, p, e
}

func invoke(t *testing.T, c *Capability, args string) *Itinerary {
	t.Helper()
	got, err := c.Invoke(context.Background(), json.RawMessage(args))
	if err != nil {
		t.Fatalf("Invoke returned error: %v", err)
	}
	return got.(*Itinerary)
}

func TestInvoke_AllSources(t *testing.T) {
	t.Parallel()
	w, p, e := rome()
	it := invoke(t, New(Sources{Weather: w, Places: p, Events: e}), trip)

	if it.Destination != "Rome" || it.Dates != "2026-09-10 to 2026-09-14" || it.Interests != "general" {
		t.Errorf("unexpected header %+v", it)
	}
	if it.Weather == nil || it.Weather.Summary != "Clear Sky" {
		t.Fatalf("weather = %+v", it.Weather)
	}
	if len(it.Weather.PackingTips) == 0 || it.Weather.PackingTips[0] != "Light clothing" {
		t.Errorf("packing tips = %v", it.Weather.PackingTips)
	}
	if len(it.TopAttractions) != MaxAttractions || len(it.RecommendedRestaurants) != MaxRestaurants || len(it.UpcomingEvents) != MaxEvents {
		t.Errorf("sizes = %d/%d/%d", len(it.TopAttractions), len(it.RecommendedRestaurants), len(it.UpcomingEvents))
	}
	if it.Omitted != nil {
		t.Errorf("omitted = %v, want none", it.Omitted)
	}
	if it.Note != Note {
		t.Errorf("note = %q", it.Note)
	}

	if got := e.Calls[0]; got.DateFilter != events.Month || got.Location != "Rome" {
		t.Errorf("events request = %+v", got)
	}
	if p.Cuisines[0] != "" {
		t.Errorf("restaurants cuisine = %q, want empty", p.Cuisines[0])
	}
}

func TestInvoke_PartialFailure(t *testing.T) {
	t.Parallel()
	w, p, e := rome()
	w.ForecastErr = errors.New("openweather: status 502")
	e.Err = errors.New("all providers failed")

	it := invoke(t, New(Sources{Weather: w, Places: p, Events: e}), `{"destination":"Rome","start_date":"2026-09-10","end_date":"2026-09-14","interests":"food"}`)

	if it.Weather != nil || it.UpcomingEvents != nil {
		t.Errorf("failed sources must be absent, got weather=%v events=%v", it.Weather, it.UpcomingEvents)
	}
	if len(it.TopAttractions) == 0 || len(it.RecommendedRestaurants) == 0 {
		t.Error("healthy sources must still be present")
	}
	if _, ok := it.Omitted[SourceWeather]; !ok {
		t.Errorf("omitted = %v, want weather", it.Omitted)
	}
	if it.Omitted[SourceEvents] != "all providers failed" {
		t.Errorf("omitted events = %q", it.Omitted[SourceEvents])
	}
	if it.Interests != "food" {
		t.Errorf("interests = %q", it.Interests)
	}
}

func TestInvoke_NothingConfigured(t *testing.T) {
	t.Parallel()
	it := invoke(t, New(Sources{}), trip)

	b, err := json.Marshal(it)
	if err != nil {
		t.Fatal(err)
	}
	var body map[string]any
	if err := json.Unmarshal(b, &body); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"weather", "top_attractions", "recommended_restaurants", "upcoming_events"} {
		if _, ok := body[key]; ok {
			t.Errorf("payload %s should not contain %q", b, key)
		}
	}
	omitted := body["omitted"].(map[string]any)
	for _, src := range []string{SourceWeather, SourceAttractions, SourceRestaurants, SourceEvents} {
		if omitted[src] != "not configured" {
			t.Errorf("omitted[%s] = %v", src, omitted[src])
		}
	}
	if body["note"] != Note {
		t.Errorf("note missing from %s", b)
	}
}
