// Package google implements places.Provider and hotels.Provider on the Google
// Places API (New) text search endpoint.
package google

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/MrWong99/travelgenie/pkg/httpx"
	"github.com/MrWong99/travelgenie/pkg/provider/hotels"
	"github.com/MrWong99/travelgenie/pkg/provider/places"
)

const (
	// DefaultBaseURL is the public Places API.
	DefaultBaseURL = "https://places.googleapis.com"

	fieldMask = "places.displayName,places.formattedAddress,places.rating,places.userRatingCount," +
		"places.types,places.location,places.currentOpeningHours,places.priceLevel"

	// DefaultMaxResults is the maxResultCount sent with every search.
	DefaultMaxResults = 10

	maxTypes = 3
)

var (
	_ places.Provider = (*Provider)(nil)
	_ hotels.Provider = (*Provider)(nil)
)

var restaurantPrice = map[string]string{
	"PRICE_LEVEL_INEXPENSIVE":    "$",
	"PRICE_LEVEL_MODERATE":       "$$",
	"PRICE_LEVEL_EXPENSIVE":      "$$$",
	"PRICE_LEVEL_VERY_EXPENSIVE": "$$$$",
}

var hotelCategory = map[string]string{
	"PRICE_LEVEL_INEXPENSIVE":    "Economy",
	"PRICE_LEVEL_MODERATE":       "Mid-Range",
	"PRICE_LEVEL_EXPENSIVE":      "Upscale",
	"PRICE_LEVEL_VERY_EXPENSIVE": "Luxury",
}

// Option is a functional option for configuring a Provider.
type Option func(*options)

type options struct {
	baseURL    string
	maxResults int
	http       []httpx.Option
}

// WithBaseURL overrides DefaultBaseURL.
func WithBaseURL(u string) Option {
	return func(o *options) { o.baseURL = u }
}

// WithMaxResults overrides DefaultMaxResults.
func WithMaxResults(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxResults = n
		}
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.http = append(o.http, httpx.WithTimeout(d)) }
}

// WithHTTPOptions passes options through to the underlying httpx.Client.
func WithHTTPOptions(opts ...httpx.Option) Option {
	return func(o *options) { o.http = append(o.http, opts...) }
}

// Provider queries Google Places.
type Provider struct {
	baseURL    string
	maxResults int
	client     *httpx.Client
}

// New returns a Google Places provider.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("google places: %w: api key must not be empty", httpx.ErrNotConfigured)
	}
	o := &options{baseURL: DefaultBaseURL, maxResults: DefaultMaxResults}
	for _, opt := range opts {
		opt(o)
	}
	httpOpts := append([]httpx.Option{
		httpx.WithHeader("X-Goog-Api-Key", apiKey),
		httpx.WithHeader("X-Goog-FieldMask", fieldMask),
	}, o.http...)
	return &Provider{
		baseURL:    strings.TrimRight(o.baseURL, "/"),
		maxResults: o.maxResults,
		client:     httpx.New("google_places", httpOpts...),
	}, nil
}

type place struct {
	DisplayName struct {
		Text string `json:"text"`
	} `json:"displayName"`
	FormattedAddress string   `json:"formattedAddress"`
	Rating           *float64 `json:"rating"`
	UserRatingCount  int      `json:"userRatingCount"`
	Types            []string `json:"types"`
	Location         struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	} `json:"location"`
	CurrentOpeningHours *struct {
		OpenNow *bool `json:"openNow"`
	} `json:"currentOpeningHours"`
	PriceLevel string `json:"priceLevel"`
}

func (p place) openNow() *bool {
	if p.CurrentOpeningHours == nil {
		return nil
	}
	return p.CurrentOpeningHours.OpenNow
}

type searchRequest struct {
	TextQuery      string `json:"textQuery"`
	MaxResultCount int    `json:"maxResultCount"`
}

type searchResponse struct {
	Places []place `json:"places"`
}

func (p *Provider) search(ctx context.Context, query string) ([]place, error) {
	var resp searchResponse
	body := searchRequest{TextQuery: query, MaxResultCount: p.maxResults}
	if err := p.client.PostJSON(ctx, p.baseURL+"/v1/places:searchText", nil, body, &resp); err != nil {
		return nil, err
	}
	return resp.Places, nil
}

// Attractions implements places.Provider.
func (p *Provider) Attractions(ctx context.Context, location string) ([]places.Attraction, error) {
	found, err := p.search(ctx, "tourist attractions landmarks in "+location)
	if err != nil {
		return nil, err
	}
	out := make([]places.Attraction, 0, len(found))
	for _, pl := range found {
		out = append(out, places.Attraction{
			Name:      pl.DisplayName.Text,
			Address:   pl.FormattedAddress,
			Rating:    pl.Rating,
			Reviews:   pl.UserRatingCount,
			Types:     typeLabels(pl.Types),
			OpenNow:   pl.openNow(),
			Latitude:  pl.Location.Latitude,
			Longitude: pl.Location.Longitude,
		})
	}
	return out, nil
}

// Restaurants implements places.Provider.
func (p *Provider) Restaurants(ctx context.Context, location, cuisine string) ([]places.Restaurant, error) {
	query := "best restaurants in " + location
	if cuisine != "" {
		query = cuisine + " restaurants in " + location
	}
	found, err := p.search(ctx, query)
	if err != nil {
		return nil, err
	}
	out := make([]places.Restaurant, 0, len(found))
	for _, pl := range found {
		price, ok := restaurantPrice[pl.PriceLevel]
		if !ok {
			price = "N/A"
		}
		out = append(out, places.Restaurant{
			Name:       pl.DisplayName.Text,
			Address:    pl.FormattedAddress,
			Rating:     pl.Rating,
			Reviews:    pl.UserRatingCount,
			PriceRange: price,
			OpenNow:    pl.openNow(),
		})
	}
	return out, nil
}

// SearchHotels implements hotels.Provider. Places has no rates, so only the
// location is used and results carry a price category instead of a price.
func (p *Provider) SearchHotels(ctx context.Context, req hotels.SearchRequest) ([]hotels.Hotel, error) {
	found, err := p.search(ctx, "hotels lodging in "+req.Location)
	if err != nil {
		return nil, err
	}
	out := make([]hotels.Hotel, 0, len(found))
	for _, pl := range found {
		category, ok := hotelCategory[pl.PriceLevel]
		if !ok {
			category = "Unknown"
		}
		out = append(out, hotels.Hotel{
			Name:          pl.DisplayName.Text,
			Address:       pl.FormattedAddress,
			Rating:        pl.Rating,
			TotalReviews:  pl.UserRatingCount,
			PriceCategory: category,
		})
	}
	return out, nil
}

// typeLabels turns "tourist_attraction" into "Tourist Attraction", keeping
// the first maxTypes entries.
func typeLabels(types []string) []string {
	labels := make([]string, 0, min(len(types), maxTypes))
	for _, t := range types[:min(len(types), maxTypes)] {
		labels = append(labels, titleCase(strings.ReplaceAll(t, "_", " ")))
	}
	return labels
}

// titleCase builds a Caser per call; Casers are stateful.
func titleCase(s string) string {
	return cases.Title(language.English).String(s)
}
