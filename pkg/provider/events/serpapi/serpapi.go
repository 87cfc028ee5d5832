// Package serpapi implements events.Provider on the SerpAPI Google Events
// engine.
package serpapi

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MrWong99/travelgenie/pkg/httpx"
	"github.com/MrWong99/travelgenie/pkg/provider/events"
)

const (
	// DefaultBaseURL is the public SerpAPI endpoint.
	DefaultBaseURL = "https://serpapi.com"

	maxEvents = 15
)

var _ events.Provider = (*Provider)(nil)

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

// Provider searches events through SerpAPI.
type Provider struct {
	apiKey  string
	baseURL string
	client  *httpx.Client
}

// New returns a SerpAPI provider.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("serpapi: %w: api key must not be empty", httpx.ErrNotConfigured)
	}
	o := &options{baseURL: DefaultBaseURL}
	for _, opt := range opts {
		opt(o)
	}
	return &Provider{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(o.baseURL, "/"),
		client:  httpx.New("serpapi", o.http...),
	}, nil
}

type searchResponse struct {
	Error         string `json:"error"`
	EventsResults []struct {
		Title string `json:"title"`
		Date  struct {
			StartDate string `json:"start_date"`
			When      string `json:"when"`
		} `json:"date"`
		Venue struct {
			Name string `json:"name"`
		} `json:"venue"`
		Address     []string `json:"address"`
		Description string   `json:"description"`
		Link        string   `json:"link"`
		Thumbnail   string   `json:"thumbnail"`
	} `json:"events_results"`
}

// SearchEvents implements events.Provider. SerpAPI reports some failures in
// a 200 body; those are returned as errors too.
func (p *Provider) SearchEvents(ctx context.Context, req events.SearchRequest) ([]events.Event, error) {
	q := "events in " + req.Location
	if req.Query != "" {
		q = req.Query + " " + q
	}
	params := url.Values{
		"engine":  {"google_events"},
		"q":       {q},
		"hl":      {"en"},
		"api_key": {p.apiKey},
	}
	if req.DateFilter != "" {
		params.Set("htichips", "date:"+string(req.DateFilter))
	}

	var resp searchResponse
	if err := p.client.GetJSON(ctx, p.baseURL+"/search", params, nil, &resp); err != nil {
		return nil, err
	}
	// SerpAPI reports some faults, such as a bad key, in a 200 body.
	if resp.Error != "" {
		return nil, &httpx.StatusError{Service: "serpapi", Code: http.StatusOK, Body: resp.Error}
	}

	out := make([]events.Event, 0, min(len(resp.EventsResults), maxEvents))
	for _, e := range resp.EventsResults {
		if len(out) == maxEvents {
			break
		}
		out = append(out, events.Event{
			Title:       e.Title,
			Date:        e.Date.StartDate,
			Time:        e.Date.When,
			Venue:       e.Venue.Name,
			Address:     e.Address,
			Description: e.Description,
			Link:        e.Link,
			Thumbnail:   e.Thumbnail,
		})
	}
	return out, nil
}
