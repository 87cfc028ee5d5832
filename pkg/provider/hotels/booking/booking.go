// Package booking implements hotels.Provider on the Booking.com API served
// through RapidAPI. A search is two requests: a location lookup that yields a
// destination id, then the hotel search for that destination.
package booking

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/MrWong99/travelgenie/pkg/httpx"
	"github.com/MrWong99/travelgenie/pkg/provider/hotels"
)

const (
	// DefaultBaseURL is the RapidAPI Booking.com endpoint.
	DefaultBaseURL = "https://booking-com.p.rapidapi.com"

	rapidHost = "booking-com.p.rapidapi.com"

	maxHotels = 10
)

var _ hotels.Provider = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*options)

type options struct {
	baseURL string
	http    []httpx.Option
}

// WithBaseURL overrides DefaultBaseURL.
func WithBaseURL(u string) Option {
	return func(o *options) { o.baseURL = u }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.http = append(o.http, httpx.WithTimeout(d)) }
}

// WithHTTPOptions passes options through to the underlying httpx.Client.
func WithHTTPOptions(opts ...httpx.Option) Option {
	return func(o *options) { o.http = append(o.http, opts...) }
}

// Provider searches hotels through Booking.com.
type Provider struct {
	baseURL string
	client  *httpx.Client
}

// New returns a Booking.com provider authenticated with a RapidAPI key.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("booking: %w: rapidapi key must not be empty", httpx.ErrNotConfigured)
	}
	o := &options{baseURL: DefaultBaseURL}
	for _, opt := range opts {
		opt(o)
	}
	httpOpts := append([]httpx.Option{
		httpx.WithHeader("X-RapidAPI-Key", apiKey),
		httpx.WithHeader("X-RapidAPI-Host", rapidHost),
	}, o.http...)
	return &Provider{
		baseURL: strings.TrimRight(o.baseURL, "/"),
		client:  httpx.New("booking", httpOpts...),
	}, nil
}

type location struct {
	DestID string `json:"dest_id"`
}

type searchResponse struct {
	Result []struct {
		HotelName     string   `json:"hotel_name"`
		MinTotalPrice *float64 `json:"min_total_price"`
		CurrencyCode  string   `json:"currency_code"`
		ReviewScore   *float64 `json:"review_score"`
		Address       string   `json:"address"`
		ReviewNr      int      `json:"review_nr"`
	} `json:"result"`
}

// SearchHotels implements hotels.Provider. An unresolvable location yields
// hotels.ErrLocationNotFound.
func (p *Provider) SearchHotels(ctx context.Context, req hotels.SearchRequest) ([]hotels.Hotel, error) {
	destID, err := p.destinationID(ctx, req.Location)
	if err != nil {
		return nil, err
	}

	q := url.Values{
		"dest_id":            {destID},
		"dest_type":          {"city"},
		"checkin_date":       {req.CheckIn},
		"checkout_date":      {req.CheckOut},
		"adults_number":      {strconv.Itoa(max(req.Guests, 1))},
		"room_number":        {"1"},
		"units":              {"metric"},
		"order_by":           {"popularity"},
		"filter_by_currency": {"USD"},
		"locale":             {"en-gb"},
	}
	var resp searchResponse
	if err := p.client.GetJSON(ctx, p.baseURL+"/v1/hotels/search", q, nil, &resp); err != nil {
		return nil, err
	}

	out := make([]hotels.Hotel, 0, min(len(resp.Result), maxHotels))
	for _, h := range resp.Result {
		if len(out) == maxHotels {
			break
		}
		out = append(out, hotels.Hotel{
			Name:         h.HotelName,
			Price:        h.MinTotalPrice,
			Currency:     h.CurrencyCode,
			Rating:       h.ReviewScore,
			Address:      h.Address,
			TotalReviews: h.ReviewNr,
		})
	}
	return out, nil
}

func (p *Provider) destinationID(ctx context.Context, name string) (string, error) {
	var locs []location
	q := url.Values{"name": {name}, "locale": {"en-gb"}}
	if err := p.client.GetJSON(ctx, p.baseURL+"/v1/hotels/locations", q, nil, &locs); err != nil {
		return "", err
	}
	if len(locs) == 0 || locs[0].DestID == "" {
		return "", fmt.Errorf("%w: %q", hotels.ErrLocationNotFound, name)
	}
	return locs[0].DestID, nil
}
