package flightsearch

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/MrWong99/travelgenie/internal/tool"
	"github.com/MrWong99/travelgenie/pkg/provider/flights"
	"github.com/MrWong99/travelgenie/pkg/provider/flights/mock"
)

func TestDescriptor(t *testing.T) {
	t.Parallel()
	if Descriptor.Name() != "search_flights" || Descriptor.ID != tool.SearchFlights {
		t.Fatalf("unexpected descriptor %+v", Descriptor)
	}
	reg := tool.NewRegistry()
	if err := reg.Register(New(&mock.Provider{}, nil)); err != nil {
		t.Fatalf("Register: %v", err)
	}
}

func TestInvoke_NormalisesAirports(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{Offers: []flights.Offer{
		{Airline: "AF", FlightNumber: "AF7", Price: "612.40", Currency: "EUR"},
	}}
	c := New(p, nil)

	got, err := c.Invoke(context.Background(), json.RawMessage(`{
		"origin": "NYC", "destination": "Pariss",
		"departure_date": "2026-06-01", "return_date": "2026-06-10", "passengers": 2
	}`))
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	res := got.(Result)
	if res.Origin != "JFK" || res.Destination != "CDG" {
		t.Errorf("origin/destination = %s/%s, want JFK/CDG", res.Origin, res.Destination)
	}
	if res.FlightsFound != 1 || res.Flights[0].FlightNumber != "AF7" {
		t.Errorf("unexpected result %+v", res)
	}

	req := p.Calls[0]
	if req.Origin != "JFK" || req.Destination != "CDG" || req.Adults != 2 || req.ReturnDate != "2026-06-10" {
		t.Errorf("unexpected provider request %+v", req)
	}
}

func TestInvoke_DefaultsAndEmpty(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{}
	got, err := New(p, nil).Invoke(context.Background(), json.RawMessage(`{"origin":"lhr","destination":"Lisbon","departure_date":"2026-06-01"}`))
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if p.Calls[0].Adults != 1 {
		t.Errorf("adults = %d, want default 1", p.Calls[0].Adults)
	}
	b, _ := json.Marshal(got)
	if want := `{"origin":"LHR","destination":"LIS","flights_found":0,"flights":[]}`; string(b) != want {
		t.Errorf("payload = %s, want %s", b, want)
	}
}

func TestInvoke_ProviderError(t *testing.T) {
	t.Parallel()
	p := &mock.Provider{Err: errors.New("duffel: status 422")}
	_, err := New(p, nil).Invoke(context.Background(), json.RawMessage(`{"origin":"JFK","destination":"CDG","departure_date":"2026-06-01"}`))
	if err == nil || !strings.Contains(err.Error(), "duffel: status 422") {
		t.Fatalf("err = %v", err)
	}
}
