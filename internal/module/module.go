package module

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/roach88/cogd/internal/controller"
	"github.com/roach88/cogd/internal/dispatch"
	"github.com/roach88/cogd/internal/ir"
	"github.com/roach88/cogd/internal/logging"
)

// Module is a feature module. Setup registers the module's handlers through
// host. Returning an error or panicking fails the load and every handler
// registered so far is removed.
type Module interface {
	Setup(ctx context.Context, host Host) error
}

// Teardowner is implemented by modules that release resources on unload.
// Teardown errors are logged and never block the unload.
type Teardowner interface {
	Teardown(ctx context.Context, host Host) error
}

// Host is what a module sees of the process.
type Host interface {
	// ID returns the module's ID.
	ID() string
	// Handle registers h for events called name on behalf of the module.
	Handle(name string, h dispatch.Handler) error
	// Controllers returns the shared controller registry.
	Controllers() *controller.Registry
	// Outbound sends messages to the chat platform.
	Outbound() dispatch.Outbound
	// Settings returns the manifest's settings struct.
	Settings() ir.IRObject
	Logger() *logging.Logger
}

// Router is the handler registration surface of the dispatcher.
type Router interface {
	Register(name string, h dispatch.Handler) (dispatch.Handle, error)
	Deregister(h dispatch.Handle) bool
}

// host records every registration a module makes so the manager can undo
// them.
type host struct {
	id       string
	router   Router
	registry *controller.Registry
	outbound dispatch.Outbound
	settings ir.IRObject
	logger   *logging.Logger

	mu      sync.Mutex
	handles []dispatch.Handle
	closed  bool
}

var _ Host = (*host)(nil)

func (h *host) ID() string                        { return h.id }
func (h *host) Controllers() *controller.Registry { return h.registry }
func (h *host) Outbound() dispatch.Outbound       { return h.outbound }
func (h *host) Logger() *logging.Logger           { return h.logger }

func (h *host) Settings() ir.IRObject {
	return h.settings.Clone()
}

func (h *host) Handle(name string, fn dispatch.Handler) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return fmt.Errorf("module %s: handle %q: module is not active", h.id, name)
	}
	handle, err := h.router.Register(name, fn)
	if err != nil {
		return err
	}
	h.handles = append(h.handles, handle)
	return nil
}

// names returns the distinct event names registered, sorted.
func (h *host) names() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	seen := make(map[string]bool, len(h.handles))
	out := make([]string, 0, len(h.handles))
	for _, hd := range h.handles {
		if !seen[hd.Name()] {
			seen[hd.Name()] = true
			out = append(out, hd.Name())
		}
	}
	sort.Strings(out)
	return out
}

// close deregisters every handle and refuses further registrations. It
// returns how many handles were removed.
func (h *host) close() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	n := 0
	for _, hd := range h.handles {
		if h.router.Deregister(hd) {
			n++
		}
	}
	h.handles = nil
	return n
}
