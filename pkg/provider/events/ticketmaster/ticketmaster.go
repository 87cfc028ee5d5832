// Package ticketmaster implements events.Provider on the Ticketmaster
// Discovery v2 API.
package ticketmaster

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/MrWong99/travelgenie/pkg/httpx"
	"github.com/MrWong99/travelgenie/pkg/provider/events"
)

const (
	// DefaultBaseURL is the public Discovery API.
	DefaultBaseURL = "https://app.ticketmaster.com"

	// DefaultPageSize is the number of events requested per search.
	DefaultPageSize = 10
)

var _ events.Provider = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*options)

type options struct {
	baseURL  string
	pageSize int
	http     []httpx.Option
}

// WithBaseURL overrides DefaultBaseURL.
func WithBaseURL(u string) Option {
	return func(o *options) { o.baseURL = u }
}

// WithPageSize overrides DefaultPageSize.
func WithPageSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.pageSize = n
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

// Provider searches events through Ticketmaster.
type Provider struct {
	apiKey   string
	baseURL  string
	pageSize int
	client   *httpx.Client
}

// New returns a Ticketmaster provider.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("ticketmaster: %w: api key must not be empty", httpx.ErrNotConfigured)
	}
	o := &options{baseURL: DefaultBaseURL, pageSize: DefaultPageSize}
	for _, opt := range opts {
		opt(o)
	}
	return &Provider{
		apiKey:   apiKey,
		baseURL:  strings.TrimRight(o.baseURL, "/"),
		pageSize: o.pageSize,
		client:   httpx.New("ticketmaster", o.http...),
	}, nil
}

type searchResponse struct {
	Embedded struct {
		Events []struct {
			Name  string `json:"name"`
			URL   string `json:"url"`
			Dates struct {
				Start struct {
					LocalDate string `json:"localDate"`
					LocalTime string `json:"localTime"`
				} `json:"start"`
			} `json:"dates"`
			Embedded struct {
				Venues []struct {
					Name string `json:"name"`
				} `json:"venues"`
			} `json:"_embedded"`
		} `json:"events"`
	} `json:"_embedded"`
}

// SearchEvents implements events.Provider. Ticketmaster matches on a bare
// city name, so only the text before the first comma of req.Location is
// sent. The date filter is not supported and results are sorted by date.
func (p *Provider) SearchEvents(ctx context.Context, req events.SearchRequest) ([]events.Event, error) {
	city, _, _ := strings.Cut(req.Location, ",")
	params := url.Values{
		"apikey": {p.apiKey},
		"city":   {strings.TrimSpace(city)},
		"size":   {strconv.Itoa(p.pageSize)},
		"sort":   {"date,asc"},
	}
	if req.Query != "" {
		params.Set("keyword", req.Query)
	}

	var resp searchResponse
	if err := p.client.GetJSON(ctx, p.baseURL+"/discovery/v2/events.json", params, nil, &resp); err != nil {
		return nil, err
	}

	out := make([]events.Event, 0, len(resp.Embedded.Events))
	for _, e := range resp.Embedded.Events {
		ev := events.Event{
			Title: e.Name,
			Date:  e.Dates.Start.LocalDate,
			Time:  e.Dates.Start.LocalTime,
			Link:  e.URL,
		}
		if len(e.Embedded.Venues) > 0 {
			ev.Venue = e.Embedded.Venues[0].Name
		}
		out = append(out, ev)
	}
	return out, nil
}
