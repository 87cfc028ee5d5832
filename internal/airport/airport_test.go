package airport_test

import (
	"testing"

	"github.com/MrWong99/travelgenie/internal/airport"
)

func TestNormalize(t *testing.T) {
	t.Parallel()

	r := airport.New()
	tests := []struct {
		input string
		want  string
	}{
		// Codes pass through.
		{"jfk", "JFK"},
		{" cdg ", "CDG"},
		{"ord", "ORD"},

		// Exact table hits.
		{"New York", "JFK"},
		{"la", "LAX"},
		{"NYC", "JFK"},
		{"nyc", "JFK"},
		{"PARIS", "CDG"},
		{"hong kong", "HKG"},

		// Typos.
		{"Pariss", "CDG"},
		{"San Fransisco", "SFO"},
		{"londn", "LHR"},
		{"barcelonna", "BCN"},
		{"tokio", "NRT"},
		{"hongkong", "HKG"},

		// Unknown cities fall back to a prefix instead of a near neighbour.
		{"Lisbon", "LIS"},
		{"Dublin", "DUB"},
		{"Houston", "HOU"},
		{"New Orleans", "NEW"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()
			if got := r.Normalize(tt.input); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestNormalize_CustomCities(t *testing.T) {
	t.Parallel()

	r := airport.New(airport.WithCities(map[string]string{"Lisbon": "lis", "Porto": "OPO"}))
	if got := r.Normalize("lisbon"); got != "LIS" {
		t.Errorf("Normalize(lisbon) = %q, want LIS", got)
	}
	if got := r.Normalize("Portoo"); got != "OPO" {
		t.Errorf("Normalize(Portoo) = %q, want OPO", got)
	}
	// The default table is replaced, not extended.
	if got := r.Normalize("Paris"); got != "PAR" {
		t.Errorf("Normalize(Paris) = %q, want PAR", got)
	}
}

func TestNormalize_StrictThresholds(t *testing.T) {
	t.Parallel()

	r := airport.New(airport.WithPhoneticThreshold(1), airport.WithFuzzyThreshold(1))
	if got := r.Normalize("Pariss"); got != "PAR" {
		t.Errorf("Normalize(Pariss) = %q, want PAR with fuzzy matching disabled", got)
	}
}
