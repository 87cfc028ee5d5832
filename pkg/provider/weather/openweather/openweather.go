// Package openweather implements weather.Provider on the OpenWeatherMap 2.5
// current weather and 5 day / 3 hour forecast endpoints.
package openweather

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/MrWong99/travelgenie/pkg/httpx"
	"github.com/MrWong99/travelgenie/pkg/provider/weather"
)

const (
	// DefaultBaseURL is the public OpenWeatherMap API.
	DefaultBaseURL = "https://api.openweathermap.org"

	// samplesPerDay is the number of 3-hour forecast samples in a day.
	samplesPerDay = 8

	// maxSamples is the forecast endpoint's upper bound for cnt.
	maxSamples = 40

	msToKmh = 3.6
)

var _ weather.Provider = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*options)

type options struct {
	baseURL string
	http    []httpx.Option
	now     func() time.Time
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

// WithClock overrides the clock used for report timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// Provider reports weather from OpenWeatherMap.
type Provider struct {
	apiKey  string
	baseURL string
	client  *httpx.Client
	now     func() time.Time
}

// New returns an OpenWeatherMap provider.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openweather: %w: api key must not be empty", httpx.ErrNotConfigured)
	}
	o := &options{baseURL: DefaultBaseURL, now: time.Now}
	for _, opt := range opts {
		opt(o)
	}
	return &Provider{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(o.baseURL, "/"),
		client:  httpx.New("openweather", o.http...),
		now:     o.now,
	}, nil
}

type sample struct {
	Dt   int64 `json:"dt"`
	Main struct {
		Temp      float64 `json:"temp"`
		FeelsLike float64 `json:"feels_like"`
		Humidity  int     `json:"humidity"`
	} `json:"main"`
	Weather []struct {
		Description string `json:"description"`
	} `json:"weather"`
	Wind struct {
		Speed float64 `json:"speed"`
	} `json:"wind"`
}

func (s sample) description() string {
	if len(s.Weather) == 0 {
		return ""
	}
	return s.Weather[0].Description
}

type currentResponse struct {
	sample
	Name string `json:"name"`
	Sys  struct {
		Country string `json:"country"`
	} `json:"sys"`
}

type forecastResponse struct {
	List []sample `json:"list"`
	City struct {
		Name     string `json:"name"`
		Country  string `json:"country"`
		Timezone int    `json:"timezone"`
	} `json:"city"`
}

// Current implements weather.Provider.
func (p *Provider) Current(ctx context.Context, city string) (*weather.Current, error) {
	var resp currentResponse
	if err := p.get(ctx, "/data/2.5/weather", city, nil, &resp); err != nil {
		return nil, err
	}
	return &weather.Current{
		City:    resp.Name,
		Country: resp.Sys.Country,
		Conditions: weather.Conditions{
			TemperatureC: round(resp.Main.Temp),
			TemperatureF: round(weather.CelsiusToFahrenheit(resp.Main.Temp)),
			FeelsLikeC:   round(resp.Main.FeelsLike),
			Humidity:     resp.Main.Humidity,
			Description:  titleCase(resp.description()),
			WindSpeedKmh: round(resp.Wind.Speed * msToKmh),
		},
		Timestamp: p.now(),
	}, nil
}

// Forecast implements weather.Provider. Samples are grouped by calendar day
// in the city's own timezone.
func (p *Provider) Forecast(ctx context.Context, city string, days int) (*weather.Forecast, error) {
	if days < 1 {
		days = 1
	}
	extra := url.Values{"cnt": {strconv.Itoa(min(days*samplesPerDay, maxSamples))}}
	var resp forecastResponse
	if err := p.get(ctx, "/data/2.5/forecast", city, extra, &resp); err != nil {
		return nil, err
	}

	zone := time.FixedZone(resp.City.Name, resp.City.Timezone)
	type bucket struct {
		date    time.Time
		temps   []float64
		descs   []string
		counted map[string]int
	}
	buckets := map[string]*bucket{}
	for _, s := range resp.List {
		at := time.Unix(s.Dt, 0).In(zone)
		key := at.Format(time.DateOnly)
		b, ok := buckets[key]
		if !ok {
			b = &bucket{date: at, counted: map[string]int{}}
			buckets[key] = b
		}
		b.temps = append(b.temps, s.Main.Temp)
		d := s.description()
		if b.counted[d] == 0 {
			b.descs = append(b.descs, d)
		}
		b.counted[d]++
	}

	keys := make([]string, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if len(keys) > days {
		keys = keys[:days]
	}

	out := &weather.Forecast{City: resp.City.Name, Country: resp.City.Country}
	if out.City == "" {
		out.City = city
	}
	for _, k := range keys {
		b := buckets[k]
		hi, lo := b.temps[0], b.temps[0]
		for _, t := range b.temps[1:] {
			hi = math.Max(hi, t)
			lo = math.Min(lo, t)
		}
		// Most frequent description; ties go to the earliest.
		common := b.descs[0]
		for _, d := range b.descs[1:] {
			if b.counted[d] > b.counted[common] {
				common = d
			}
		}
		out.Days = append(out.Days, weather.Day{
			Date:        k,
			Weekday:     b.date.Weekday().String(),
			HighC:       round(hi),
			LowC:        round(lo),
			HighF:       round(weather.CelsiusToFahrenheit(hi)),
			LowF:        round(weather.CelsiusToFahrenheit(lo)),
			Description: titleCase(common),
		})
	}
	return out, nil
}

func (p *Provider) get(ctx context.Context, path, city string, extra url.Values, out any) error {
	q := url.Values{"q": {city}, "appid": {p.apiKey}, "units": {"metric"}}
	for k, v := range extra {
		q[k] = v
	}
	err := p.client.GetJSON(ctx, p.baseURL+path, q, nil, out)
	if httpx.IsStatus(err, http.StatusNotFound) {
		return fmt.Errorf("%w: %q", weather.ErrLocationNotFound, city)
	}
	return err
}

func round(v float64) int {
	return int(math.Round(v))
}

// titleCase builds a Caser per call; Casers are stateful.
func titleCase(s string) string {
	return cases.Title(language.English).String(s)
}
