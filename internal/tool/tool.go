// Package tool is the capability layer between the agent loop and the travel
// data providers.
//
// Every capability is identified by an [ID], advertised to the model through
// a [Descriptor] and invoked through the single [Capability] interface. The
// [Registry] is built once at process start; capabilities whose client could
// not be constructed are recorded as unconfigured sentinels rather than left
// out, so the model still sees them and learns why they do not work. The
// [Executor] runs one batch of requests concurrently and shapes every
// outcome, including panics and timeouts, into a [Result].
package tool

import (
	"context"
	"encoding/json"

	"github.com/MrWong99/travelgenie/pkg/types"
)

// ID is the enumerated tool identifier.
type ID int

// Known tool identifiers. The zero value is invalid.
const (
	SearchFlights ID = iota + 1
	SearchHotels
	GetWeather
	GetAttractions
	GetRestaurants
	GetEvents
	CreateItinerary
)

var idNames = [...]string{
	SearchFlights:   "search_flights",
	SearchHotels:    "search_hotels",
	GetWeather:      "get_weather",
	GetAttractions:  "get_attractions",
	GetRestaurants:  "get_restaurants",
	GetEvents:       "get_events",
	CreateItinerary: "create_itinerary",
}

// String returns the wire name the model uses to call the tool.
func (id ID) String() string {
	if !id.Valid() {
		return "unknown"
	}
	return idNames[id]
}

// Valid reports whether id is one of the known identifiers.
func (id ID) Valid() bool {
	return id >= SearchFlights && id <= CreateItinerary
}

// ParseID maps a wire name to its ID.
func ParseID(name string) (ID, bool) {
	for id := SearchFlights; id <= CreateItinerary; id++ {
		if idNames[id] == name {
			return id, true
		}
	}
	return 0, false
}

// IDs returns every known identifier in declaration order.
func IDs() []ID {
	ids := make([]ID, 0, len(idNames)-1)
	for id := SearchFlights; id <= CreateItinerary; id++ {
		ids = append(ids, id)
	}
	return ids
}

// Descriptor is the model-facing description of a capability. Definition.Name
// must equal ID.String().
type Descriptor struct {
	ID         ID
	Definition types.ToolDefinition
}

// Name returns the wire name.
func (d Descriptor) Name() string { return d.Definition.Name }

// Capability is a tool the agent may invoke.
//
// Invoke receives the raw JSON arguments produced by the model, already
// validated against the descriptor's schema, and returns a JSON-serialisable
// payload. Implementations must be safe for concurrent use and must honour
// ctx cancellation.
type Capability interface {
	Descriptor() Descriptor
	Invoke(ctx context.Context, args json.RawMessage) (any, error)
}

// Status is one row of the startup status table.
type Status struct {
	ID         ID     `json:"-"`
	Name       string `json:"name"`
	Configured bool   `json:"configured"`
	Reason     string `json:"reason,omitempty"`
}

// Request is a single tool invocation requested by the model.
type Request struct {
	// ID is the call identifier that links the result back to the request.
	ID string

	Name      string
	Arguments json.RawMessage
}
