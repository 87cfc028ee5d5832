package openweather

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/MrWong99/travelgenie/pkg/provider/weather"
)

func newServer(t *testing.T, current, forecast string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /data/2.5/weather", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("appid") != "ow" || q.Get("units") != "metric" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		if q.Get("q") == "Atlantis" {
			http.Error(w, `{"cod":"404","message":"city not found"}`, http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(current))
	})
	mux.HandleFunc("GET /data/2.5/forecast", func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("cnt"); got != "16" {
			t.Errorf("expected cnt=16 for two days, got %q", got)
		}
		_, _ = w.Write([]byte(forecast))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestCurrent(t *testing.T) {
	t.Parallel()
	fixed := time.Date(2026, 1, 20, 9, 0, 0, 0, time.UTC)
	srv := newServer(t, `{
		"name": "Paris", "sys": {"country": "FR"},
		"main": {"temp": 7.6, "feels_like": 4.2, "humidity": 81},
		"weather": [{"description": "light rain"}],
		"wind": {"speed": 5}
	}`, "")

	p, err := New("ow", WithBaseURL(srv.URL), WithClock(func() time.Time { return fixed }))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	got, err := p.Current(context.Background(), "Paris")
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	want := weather.Conditions{
		TemperatureC: 8, TemperatureF: 46, FeelsLikeC: 4, Humidity: 81,
		Description: "Light Rain", WindSpeedKmh: 18,
	}
	if got.Conditions != want {
		t.Errorf("Conditions = %+v, want %+v", got.Conditions, want)
	}
	if got.City != "Paris" || got.Country != "FR" || !got.Timestamp.Equal(fixed) {
		t.Errorf("unexpected header fields %+v", got)
	}
}

func TestCurrent_NotFound(t *testing.T) {
	t.Parallel()
	srv := newServer(t, "", "")
	p, _ := New("ow", WithBaseURL(srv.URL))
	_, err := p.Current(context.Background(), "Atlantis")
	if !errors.Is(err, weather.ErrLocationNotFound) {
		t.Fatalf("expected ErrLocationNotFound, got %v", err)
	}
}

func TestForecast_GroupsByLocalDay(t *testing.T) {
	t.Parallel()
	// 2026-01-20 00:00 UTC and onward; timezone +3600 shifts the 23:00 UTC
	// sample onto the next local day.
	srv := newServer(t, "", `{
		"city": {"name": "Paris", "country": "FR", "timezone": 3600},
		"list": [
			{"dt": 1768867200, "main": {"temp": 3.0}, "weather": [{"description": "clear sky"}]},
			{"dt": 1768878000, "main": {"temp": 9.4}, "weather": [{"description": "light rain"}]},
			{"dt": 1768888800, "main": {"temp": 6.0}, "weather": [{"description": "light rain"}]},
			{"dt": 1768950000, "main": {"temp": -1.0}, "weather": [{"description": "snow"}]},
			{"dt": 1768960800, "main": {"temp": 2.0}, "weather": [{"description": "clear sky"}]},
			{"dt": 1769040000, "main": {"temp": 4.0}, "weather": [{"description": "mist"}]}
		]
	}`)
	p, _ := New("ow", WithBaseURL(srv.URL))
	got, err := p.Forecast(context.Background(), "Paris", 2)
	if err != nil {
		t.Fatalf("Forecast: %v", err)
	}
	if len(got.Days) != 2 {
		t.Fatalf("expected 2 days, got %d: %+v", len(got.Days), got.Days)
	}
	d0 := got.Days[0]
	if d0.Date != "2026-01-20" || d0.Weekday != "Tuesday" {
		t.Errorf("unexpected first day %+v", d0)
	}
	if d0.HighC != 9 || d0.LowC != 3 || d0.Description != "Light Rain" {
		t.Errorf("unexpected first day aggregates %+v", d0)
	}
	if d0.HighF != 49 || d0.LowF != 37 {
		t.Errorf("unexpected fahrenheit %+v", d0)
	}
	d1 := got.Days[1]
	if d1.Date != "2026-01-21" || d1.LowC != -1 || d1.HighC != 2 {
		t.Errorf("unexpected second day %+v", d1)
	}
	// Tie between snow and clear sky goes to the earlier sample.
	if d1.Description != "Snow" {
		t.Errorf("expected tie broken by first occurrence, got %q", d1.Description)
	}
}

func TestNew_MissingKey(t *testing.T) {
	t.Parallel()
	if _, err := New(""); err == nil {
		t.Fatal("expected error for empty key")
	}
}
