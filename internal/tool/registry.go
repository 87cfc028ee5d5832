package tool

import (
	"errors"
	"fmt"
	"sync"

	"github.com/MrWong99/travelgenie/pkg/types"
)

var (
	// ErrNotFound is matched by the [NotFoundError] that [Registry.Lookup]
	// returns for unknown tool names.
	ErrNotFound = errors.New("tool not found")

	// ErrFrozen is returned when registering after [Registry.Freeze].
	ErrFrozen = errors.New("tool: registry is frozen")

	// ErrDuplicate is returned when an ID is registered twice.
	ErrDuplicate = errors.New("tool: already registered")
)

type entry struct {
	desc   Descriptor
	cap    Capability
	status Status
}

// Registry maps tool identifiers to capabilities. It is populated once at
// startup and then frozen; reads are safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	frozen  bool
	entries map[ID]*entry
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[ID]*entry)}
}

// Register adds a configured capability.
func (r *Registry) Register(c Capability) error {
	if c == nil {
		return errors.New("tool: nil capability")
	}
	d := c.Descriptor()
	if err := validateDescriptor(d); err != nil {
		return err
	}
	return r.add(&entry{desc: d, cap: c, status: Status{ID: d.ID, Name: d.Name(), Configured: true}})
}

// MarkUnconfigured records a capability whose client could not be built.
// The descriptor is still advertised; invoking it yields a configuration
// failure that carries reason.
func (r *Registry) MarkUnconfigured(d Descriptor, reason string) error {
	if err := validateDescriptor(d); err != nil {
		return err
	}
	return r.add(&entry{desc: d, status: Status{ID: d.ID, Name: d.Name(), Reason: reason}})
}

func (r *Registry) add(e *entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		return ErrFrozen
	}
	if _, ok := r.entries[e.desc.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicate, e.desc.ID)
	}
	r.entries[e.desc.ID] = e
	return nil
}

func validateDescriptor(d Descriptor) error {
	if !d.ID.Valid() {
		return fmt.Errorf("tool: unknown id %d", d.ID)
	}
	if d.Definition.Name != d.ID.String() {
		return fmt.Errorf("tool: descriptor name %q does not match id %s", d.Definition.Name, d.ID)
	}
	return nil
}

// Freeze rejects further registrations.
func (r *Registry) Freeze() {
	r.mu.Lock()
	r.frozen = true
	r.mu.Unlock()
}

// Lookup resolves a wire name. The returned capability is nil when the tool
// is registered but unconfigured; Status tells the two apart.
func (r *Registry) Lookup(name string) (Capability, Status, error) {
	id, ok := ParseID(name)
	if !ok {
		return nil, Status{}, &NotFoundError{Name: name}
	}
	r.mu.RLock()
	e, ok := r.entries[id]
	r.mu.RUnlock()
	if !ok {
		return nil, Status{}, &NotFoundError{Name: name}
	}
	return e.cap, e.status, nil
}

// List returns every advertised descriptor in ID order.
func (r *Registry) List() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, 0, len(r.entries))
	for _, id := range IDs() {
		if e, ok := r.entries[id]; ok {
			out = append(out, e.desc)
		}
	}
	return out
}

// Definitions returns the tool definitions passed to the model on every
// decision step.
func (r *Registry) Definitions() []types.ToolDefinition {
	descs := r.List()
	defs := make([]types.ToolDefinition, len(descs))
	for i, d := range descs {
		defs[i] = d.Definition
	}
	return defs
}

// Statuses returns the startup status table in ID order.
func (r *Registry) Statuses() []Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Status, 0, len(r.entries))
	for _, id := range IDs() {
		if e, ok := r.entries[id]; ok {
			out = append(out, e.status)
		}
	}
	return out
}
