package app

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/MrWong99/travelgenie/internal/airport"
	"github.com/MrWong99/travelgenie/internal/config"
	"github.com/MrWong99/travelgenie/internal/resilience"
	"github.com/MrWong99/travelgenie/internal/tool"
	"github.com/MrWong99/travelgenie/internal/tool/events"
	"github.com/MrWong99/travelgenie/internal/tool/flightsearch"
	"github.com/MrWong99/travelgenie/internal/tool/hotelsearch"
	"github.com/MrWong99/travelgenie/internal/tool/itinerary"
	"github.com/MrWong99/travelgenie/internal/tool/places"
	"github.com/MrWong99/travelgenie/internal/tool/weather"
	"github.com/MrWong99/travelgenie/pkg/httpx"
	eventsapi "github.com/MrWong99/travelgenie/pkg/provider/events"
	"github.com/MrWong99/travelgenie/pkg/provider/events/serpapi"
	"github.com/MrWong99/travelgenie/pkg/provider/events/ticketmaster"
	"github.com/MrWong99/travelgenie/pkg/provider/flights"
	"github.com/MrWong99/travelgenie/pkg/provider/flights/duffel"
	"github.com/MrWong99/travelgenie/pkg/provider/hotels"
	"github.com/MrWong99/travelgenie/pkg/provider/hotels/booking"
	placesapi "github.com/MrWong99/travelgenie/pkg/provider/places"
	"github.com/MrWong99/travelgenie/pkg/provider/places/google"
	weatherapi "github.com/MrWong99/travelgenie/pkg/provider/weather"
	"github.com/MrWong99/travelgenie/pkg/provider/weather/openweather"
)

// TravelClients holds the travel data clients the tools are built from. A nil
// field leaves the tools depending on it unconfigured.
type TravelClients struct {
	Flights      flights.Provider
	Booking      hotels.Provider
	Places       *google.Provider
	Weather      weatherapi.Provider
	SerpAPI      eventsapi.Provider
	Ticketmaster eventsapi.Provider

	// Faults holds, by credential variable, the error of every client that
	// had a key but could not be built.
	Faults map[string]error
}

func (c *TravelClients) fault(env string, err error) {
	slog.Warn("travel client unavailable", "env", env, "err", err)
	if c.Faults == nil {
		c.Faults = make(map[string]error)
	}
	c.Faults[env] = err
}

func limited(api config.APIConfig) []httpx.Option {
	if api.RatePerSecond <= 0 {
		return nil
	}
	return []httpx.Option{httpx.WithRateLimit(api.RatePerSecond, api.Burst)}
}

// NewTravelClients builds a REST client for every API that has a key. A
// client that fails to build is recorded in Faults instead of failing the
// whole set.
func NewTravelClients(cfg config.TravelConfig) TravelClients {
	var c TravelClients

	if api := cfg.Duffel; api.Configured() {
		opts := []duffel.Option{duffel.WithTimeout(api.Timeout), duffel.WithHTTPOptions(limited(api)...)}
		if api.BaseURL != "" {
			opts = append(opts, duffel.WithBaseURL(api.BaseURL))
		}
		if p, err := duffel.New(api.APIKey, opts...); err != nil {
			c.fault(config.EnvDuffel, err)
		} else {
			c.Flights = p
		}
	}

	if api := cfg.Booking; api.Configured() {
		opts := []booking.Option{booking.WithTimeout(api.Timeout), booking.WithHTTPOptions(limited(api)...)}
		if api.BaseURL != "" {
			opts = append(opts, booking.WithBaseURL(api.BaseURL))
		}
		if p, err := booking.New(api.APIKey, opts...); err != nil {
			c.fault(config.EnvBooking, err)
		} else {
			c.Booking = p
		}
	}

	if api := cfg.Places; api.Configured() {
		opts := []google.Option{google.WithTimeout(api.Timeout), google.WithHTTPOptions(limited(api)...)}
		if api.BaseURL != "" {
			opts = append(opts, google.WithBaseURL(api.BaseURL))
		}
		if p, err := google.New(api.APIKey, opts...); err != nil {
			c.fault(config.EnvPlaces, err)
		} else {
			c.Places = p
		}
	}

	if api := cfg.OpenWeather; api.Configured() {
		opts := []openweather.Option{openweather.WithTimeout(api.Timeout), openweather.WithHTTPOptions(limited(api)...)}
		if api.BaseURL != "" {
			opts = append(opts, openweather.WithBaseURL(api.BaseURL))
		}
		if p, err := openweather.New(api.APIKey, opts...); err != nil {
			c.fault(config.EnvOpenWeather, err)
		} else {
			c.Weather = p
		}
	}

	if api := cfg.SerpAPI; api.Configured() {
		opts := []serpapi.Option{serpapi.WithTimeout(api.Timeout), serpapi.WithHTTPOptions(limited(api)...)}
		if api.BaseURL != "" {
			opts = append(opts, serpapi.WithBaseURL(api.BaseURL))
		}
		if p, err := serpapi.New(api.APIKey, opts...); err != nil {
			c.fault(config.EnvSerpAPI, err)
		} else {
			c.SerpAPI = p
		}
	}

	if api := cfg.Ticketmaster; api.Configured() {
		opts := []ticketmaster.Option{ticketmaster.WithTimeout(api.Timeout), ticketmaster.WithHTTPOptions(limited(api)...)}
		if api.BaseURL != "" {
			opts = append(opts, ticketmaster.WithBaseURL(api.BaseURL))
		}
		if p, err := ticketmaster.New(api.APIKey, opts...); err != nil {
			c.fault(config.EnvTicketmaster, err)
		} else {
			c.Ticketmaster = p
		}
	}

	return c
}

// BuildRegistry registers every tool. Tools whose clients are missing are
// advertised as unconfigured with the environment variable that would enable
// them, or with the error that kept the client from being built. The
// returned registry is frozen.
func BuildRegistry(c TravelClients, breaker resilience.FallbackConfig) (*tool.Registry, error) {
	reg := tool.NewRegistry()
	add := func(capability tool.Capability) error { return reg.Register(capability) }
	skip := func(d tool.Descriptor, reason string) error {
		slog.Info("tool unconfigured", "tool", d.Name(), "reason", reason)
		return reg.MarkUnconfigured(d, reason)
	}
	notSet := func(envs ...string) string {
		for _, env := range envs {
			if err := c.Faults[env]; err != nil {
				return fmt.Sprintf("%s client failed: %v", env, err)
			}
		}
		if len(envs) == 2 {
			return fmt.Sprintf("neither %s nor %s is set", envs[0], envs[1])
		}
		return envs[0] + " not set"
	}

	var errs []error
	record := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	if c.Flights != nil {
		record(add(flightsearch.New(c.Flights, airport.New())))
	} else {
		record(skip(flightsearch.Descriptor, notSet(config.EnvDuffel)))
	}

	var hotelGroup *resilience.FallbackGroup[hotels.Provider]
	switch {
	case c.Booking != nil:
		hotelGroup = resilience.NewFallbackGroup[hotels.Provider](c.Booking, "booking", breaker)
		if c.Places != nil {
			hotelGroup.AddFallback("google_places", c.Places)
		}
	case c.Places != nil:
		hotelGroup = resilience.NewFallbackGroup[hotels.Provider](c.Places, "google_places", breaker)
	}
	if hotelGroup != nil {
		record(add(hotelsearch.New(hotelGroup)))
	} else {
		record(skip(hotelsearch.Descriptor, notSet(config.EnvBooking, config.EnvPlaces)))
	}

	if c.Weather != nil {
		record(add(weather.New(c.Weather)))
	} else {
		record(skip(weather.Descriptor, notSet(config.EnvOpenWeather)))
	}

	if c.Places != nil {
		record(add(places.NewAttractions(c.Places)))
		record(add(places.NewRestaurants(c.Places)))
	} else {
		record(skip(places.AttractionsDescriptor, notSet(config.EnvPlaces)))
		record(skip(places.RestaurantsDescriptor, notSet(config.EnvPlaces)))
	}

	var chain *events.Chain
	switch {
	case c.SerpAPI != nil:
		g := resilience.NewFallbackGroup(c.SerpAPI, "serpapi", breaker)
		if c.Ticketmaster != nil {
			g.AddFallback("ticketmaster", c.Ticketmaster)
		}
		chain = events.NewChain(g)
	case c.Ticketmaster != nil:
		chain = events.NewChain(resilience.NewFallbackGroup(c.Ticketmaster, "ticketmaster", breaker))
	}
	if chain != nil {
		record(add(events.New(chain)))
	} else {
		record(skip(events.Descriptor, notSet(config.EnvSerpAPI, config.EnvTicketmaster)))
	}

	// The itinerary degrades per source, so it only needs one of them.
	var src itinerary.Sources
	if c.Weather != nil {
		src.Weather = c.Weather
	}
	if c.Places != nil {
		src.Places = placesapi.Provider(c.Places)
	}
	if chain != nil {
		src.Events = chain
	}
	if src.Weather != nil || src.Places != nil || src.Events != nil {
		record(add(itinerary.New(src)))
	} else {
		record(skip(itinerary.Descriptor, fmt.Sprintf("none of %s, %s, %s or %s is set",
			config.EnvOpenWeather, config.EnvPlaces, config.EnvSerpAPI, config.EnvTicketmaster)))
	}

	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("app: build tool registry: %w", err)
	}
	reg.Freeze()
	return reg, nil
}
