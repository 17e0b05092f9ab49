package controller

import (
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/roach88/cogd/internal/logging"
	"github.com/roach88/cogd/internal/store"
)

// Registry hands out one controller per record type, all sharing the store
// client. It outlives every module: loading, unloading and reloading
// modules never touches it.
type Registry struct {
	client *store.Client
	logger *logging.Logger

	mu          sync.Mutex
	controllers map[reflect.Type]any
	names       map[reflect.Type]string
	closed      bool
}

// NewRegistry creates a registry over client.
func NewRegistry(client *store.Client, logger *logging.Logger) *Registry {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Registry{
		client:      client,
		logger:      logger,
		controllers: make(map[reflect.Type]any),
		names:       make(map[reflect.Type]string),
	}
}

// Get returns the controller for T, constructing it on first use.
// Concurrent first calls construct exactly one.
func Get[T any, P Model[T]](r *Registry) (*Controller[T, P], error) {
	key := reflect.TypeFor[T]()

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, newError(CodeStoreUnavailable, "registry_get", key.Name(), "registry is closed")
	}
	if existing, ok := r.controllers[key]; ok {
		return existing.(*Controller[T, P]), nil
	}

	c, err := New[T, P](r.client, WithLogger(r.logger))
	if err != nil {
		return nil, fmt.Errorf("construct controller for %s: %w", key.Name(), err)
	}
	r.controllers[key] = c
	r.names[key] = c.schema.Name
	return c, nil
}

// MustGet is Get that panics on error. For wiring code whose record types
// are known valid.
func MustGet[T any, P Model[T]](r *Registry) *Controller[T, P] {
	c, err := Get[T, P](r)
	if err != nil {
		panic(err)
	}
	return c
}

// Names lists the record types with a live controller, sorted.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.names))
	for _, n := range r.names {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Client returns the shared store client.
func (r *Registry) Client() *store.Client {
	return r.client
}

// Close releases the store. Call only at process shutdown, after every
// module is unloaded. Safe to call more than once.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	r.controllers = make(map[reflect.Type]any)
	r.names = make(map[reflect.Type]string)
	return r.client.Close()
}
