package capability

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrNotFound is returned when no capability is registered for an address.
// A missing handler is a configuration error, never a transient fault.
var ErrNotFound = errors.New("capability not found")

// Entry pairs a capability with its declared metadata. Schema, when set, is
// a JSON Schema the step's parameters are validated against at definition
// registration time.
type Entry struct {
	Address     Address
	Description string
	Schema      map[string]any
	Capability  Capability
}

// Registry maps (agent, service, action) addresses to invocable handlers.
// It is constructed explicitly and injected into the engine at startup so
// tests can substitute fakes; there is no ambient global catalogue.
// Safe for concurrent lookups from many runs.
type Registry struct {
	logger  *slog.Logger
	mu      sync.RWMutex
	entries map[Address]Entry
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		logger:  logger.With("module", "capability_registry"),
		entries: make(map[Address]Entry),
	}
}

// Register adds or replaces a capability entry.
func (r *Registry) Register(entry Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries[entry.Address] = entry
	r.logger.Debug("Registered capability", "address", entry.Address.String())
}

// RegisterFunc is a convenience wrapper for function-backed capabilities.
func (r *Registry) RegisterFunc(addr Address, fn Func) {
	r.Register(Entry{Address: addr, Capability: fn})
}

// Resolve returns the handler for an address or ErrNotFound.
func (r *Registry) Resolve(addr Address) (Capability, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.entries[addr]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, addr)
	}

	return entry.Capability, nil
}

// Declared reports whether an address exists in the catalogue. Used at
// validation time: declared does not imply currently invocable.
func (r *Registry) Declared(addr Address) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.entries[addr]

	return ok
}

// SchemaFor returns the declared parameter schema for an address, if any.
func (r *Registry) SchemaFor(addr Address) (map[string]any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.entries[addr]
	if !ok || entry.Schema == nil {
		return nil, false
	}

	return entry.Schema, true
}

// Catalogue lists all registered addresses.
func (r *Registry) Catalogue() []Address {
	r.mu.RLock()
	defer r.mu.RUnlock()

	addresses := make([]Address, 0, len(r.entries))
	for addr := range r.entries {
		addresses = append(addresses, addr)
	}

	return addresses
}
