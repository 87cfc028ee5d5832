// Package weather defines the Provider interface for current conditions and
// multi-day forecasts.
package weather

import (
	"context"
	"errors"
	"time"
)

// ErrLocationNotFound is returned when the provider does not know the city.
var ErrLocationNotFound = errors.New("weather: location not found")

// Conditions are the current conditions at a location.
type Conditions struct {
	TemperatureC int    `json:"temperature_c"`
	TemperatureF int    `json:"temperature_f"`
	FeelsLikeC   int    `json:"feels_like_c"`
	Humidity     int    `json:"humidity"`
	Description  string `json:"description"`
	WindSpeedKmh int    `json:"wind_speed_kmh"`
}

// Current is a current-conditions report.
type Current struct {
	City       string     `json:"city"`
	Country    string     `json:"country"`
	Conditions Conditions `json:"current"`
	Timestamp  time.Time  `json:"timestamp"`
}

// Day is one forecast day aggregated from intraday samples.
type Day struct {
	Date        string `json:"date"`
	Weekday     string `json:"day"`
	HighC       int    `json:"temp_high_c"`
	LowC        int    `json:"temp_low_c"`
	HighF       int    `json:"temp_high_f"`
	LowF        int    `json:"temp_low_f"`
	Description string `json:"description"`
}

// Forecast is a multi-day forecast.
type Forecast struct {
	City    string `json:"city"`
	Country string `json:"country"`
	Days    []Day  `json:"forecast"`
}

// Provider reports weather.
type Provider interface {
	Current(ctx context.Context, city string) (*Current, error)

	// Forecast returns up to days daily entries, starting today.
	Forecast(ctx context.Context, city string, days int) (*Forecast, error)
}

// CelsiusToFahrenheit converts a temperature.
func CelsiusToFahrenheit(c float64) float64 {
	return c*9/5 + 32
}
