// Package duffel implements flights.Provider on the Duffel offer request API.
//
// Usage:
//
//	p, err := duffel.New(os.Getenv("DUFFEL_API_KEY"))
//	offers, err := p.SearchFlights(ctx, flights.SearchRequest{Origin: "JFK", Destination: "CDG", DepartureDate: "2026-01-20"})
package duffel

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/MrWong99/travelgenie/pkg/httpx"
	"github.com/MrWong99/travelgenie/pkg/provider/flights"
)

const (
	// DefaultBaseURL is the public Duffel API.
	DefaultBaseURL = "https://api.duffel.com"

	apiVersion = "v2"

	// maxOffers caps how many offers are returned to the caller.
	maxOffers = 5
)

var _ flights.Provider = (*Provider)(nil)

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

// Provider searches flights through Duffel.
type Provider struct {
	baseURL string
	client  *httpx.Client
}

// New returns a Duffel provider authenticated with apiKey.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("duffel: %w: api key must not be empty", httpx.ErrNotConfigured)
	}
	o := &options{baseURL: DefaultBaseURL}
	for _, opt := range opts {
		opt(o)
	}
	httpOpts := append([]httpx.Option{
		httpx.WithHeader("Authorization", "Bearer "+apiKey),
		httpx.WithHeader("Duffel-Version", apiVersion),
	}, o.http...)
	return &Provider{
		baseURL: strings.TrimRight(o.baseURL, "/"),
		client:  httpx.New("duffel", httpOpts...),
	}, nil
}

type slice struct {
	Origin        string `json:"origin"`
	Destination   string `json:"destination"`
	DepartureDate string `json:"departure_date"`
}

type passenger struct {
	Type string `json:"type"`
}

type offerRequest struct {
	Data struct {
		Slices     []slice     `json:"slices"`
		Passengers []passenger `json:"passengers"`
		CabinClass string      `json:"cabin_class"`
	} `json:"data"`
}

type offerResponse struct {
	Data struct {
		Offers []struct {
			TotalAmount   string `json:"total_amount"`
			TotalCurrency string `json:"total_currency"`
			Slices        []struct {
				Segments []struct {
					DepartingAt                  string `json:"departing_at"`
					ArrivingAt                   string `json:"arriving_at"`
					OperatingCarrierFlightNumber string `json:"operating_carrier_flight_number"`
					OperatingCarrier             struct {
						IATACode string `json:"iata_code"`
					} `json:"operating_carrier"`
				} `json:"segments"`
			} `json:"slices"`
		} `json:"offers"`
	} `json:"data"`
}

// SearchFlights implements flights.Provider.
func (p *Provider) SearchFlights(ctx context.Context, req flights.SearchRequest) ([]flights.Offer, error) {
	origin := strings.ToUpper(req.Origin)
	dest := strings.ToUpper(req.Destination)
	adults := max(req.Adults, 1)

	var body offerRequest
	body.Data.Slices = []slice{{Origin: origin, Destination: dest, DepartureDate: req.DepartureDate}}
	if req.ReturnDate != "" {
		body.Data.Slices = append(body.Data.Slices, slice{Origin: dest, Destination: origin, DepartureDate: req.ReturnDate})
	}
	body.Data.Passengers = make([]passenger, adults)
	for i := range body.Data.Passengers {
		body.Data.Passengers[i] = passenger{Type: "adult"}
	}
	body.Data.CabinClass = "economy"

	var resp offerResponse
	if err := p.client.PostJSON(ctx, p.baseURL+"/air/offer_requests", nil, body, &resp); err != nil {
		return nil, err
	}

	out := make([]flights.Offer, 0, maxOffers)
	for _, offer := range resp.Data.Offers {
		if len(out) == maxOffers {
			break
		}
		// Offers without an outbound segment cannot be summarised.
		if len(offer.Slices) == 0 || len(offer.Slices[0].Segments) == 0 {
			continue
		}
		segs := offer.Slices[0].Segments
		first, last := segs[0], segs[len(segs)-1]
		out = append(out, flights.Offer{
			Airline:       first.OperatingCarrier.IATACode,
			FlightNumber:  first.OperatingCarrierFlightNumber,
			DepartureTime: first.DepartingAt,
			ArrivalTime:   last.ArrivingAt,
			Price:         offer.TotalAmount,
			Currency:      offer.TotalCurrency,
		})
	}
	return out, nil
}
