package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/roach88/cogd/internal/logging"
	"github.com/roach88/cogd/internal/metrics"
)

// ErrStopped is returned by Run when Stop was called.
var ErrStopped = errors.New("dispatcher stopped")

type registration struct {
	id      uint64
	handler Handler
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the dispatcher's logger.
func WithLogger(l *logging.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// WithMiddleware appends middleware. The first given is outermost. All of
// it runs inside Observe and Recover.
func WithMiddleware(mw ...Middleware) Option {
	return func(d *Dispatcher) { d.middleware = append(d.middleware, mw...) }
}

// WithClock replaces the logical clock.
func WithClock(c *Clock) Option {
	return func(d *Dispatcher) { d.clock = c }
}

// WithIDFunc replaces the event ID generator.
func WithIDFunc(fn func() string) Option {
	return func(d *Dispatcher) { d.newID = fn }
}

// WithQueueWarn logs a warning whenever a delivery leaves at least n events
// waiting. Zero disables the warning.
func WithQueueWarn(n int) Option {
	return func(d *Dispatcher) { d.queueWarn = n }
}

// Dispatcher delivers events to registered handlers.
type Dispatcher struct {
	queue      *eventQueue
	clock      *Clock
	logger     *logging.Logger
	middleware []Middleware
	newID      func() string
	queueWarn  int

	mu       sync.RWMutex
	handlers map[string][]registration
	names    map[uint64]string
	nextID   uint64

	inflight sync.WaitGroup
}

// New creates a dispatcher. Call Run to start delivery.
func New(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		queue:    newEventQueue(),
		clock:    NewClock(),
		logger:   logging.Nop(),
		newID:    newEventID,
		handlers: make(map[string][]registration),
		names:    make(map[uint64]string),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.Named("dispatch")
	return d
}

func newEventID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Register adds h for events called name. Several handlers may share a
// name; each runs for every matching event.
func (d *Dispatcher) Register(name string, h Handler) (Handle, error) {
	if name == "" {
		return Handle{}, fmt.Errorf("register handler: empty event name")
	}
	if h == nil {
		return Handle{}, fmt.Errorf("register handler %q: nil handler", name)
	}

	wrapped := h
	for i := len(d.middleware) - 1; i >= 0; i-- {
		wrapped = d.middleware[i](name, wrapped)
	}
	wrapped = Recover()(name, wrapped)
	wrapped = Observe(d.logger)(name, wrapped)

	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	id := d.nextID
	d.handlers[name] = append(d.handlers[name], registration{id: id, handler: wrapped})
	d.names[id] = name
	return Handle{id: id, name: name}, nil
}

// Deregister removes the registration. It reports whether h was still
// registered. After it returns no newly dispatched event reaches h.
func (d *Dispatcher) Deregister(h Handle) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	name, ok := d.names[h.id]
	if !ok {
		return false
	}
	delete(d.names, h.id)

	regs := d.handlers[name]
	for i, r := range regs {
		if r.id == h.id {
			regs = append(regs[:i:i], regs[i+1:]...)
			break
		}
	}
	if len(regs) == 0 {
		delete(d.handlers, name)
	} else {
		d.handlers[name] = regs
	}
	return true
}

// Handlers returns how many handlers are registered for name.
func (d *Dispatcher) Handlers(name string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.handlers[name])
}

// Names lists event names with at least one handler, sorted.
func (d *Dispatcher) Names() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]string, 0, len(d.handlers))
	for name := range d.handlers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Deliver queues ev for dispatch, stamping its ID (if empty) and seq. It
// returns false after Stop.
func (d *Dispatcher) Deliver(ev Event) bool {
	if ev.ID == "" {
		ev.ID = d.newID()
	}
	ev.Seq = d.clock.Next()
	if !d.queue.enqueue(ev) {
		return false
	}
	metrics.EventsDelivered.Inc()
	if d.queueWarn > 0 {
		if n := d.queue.len(); n >= d.queueWarn && n%d.queueWarn == 0 {
			d.logger.Warn(context.Background(), "dispatch queue is backing up",
				zap.Int("pending", n), zap.String("event", ev.Name))
		}
	}
	return true
}

// Pending returns the number of queued events.
func (d *Dispatcher) Pending() int {
	return d.queue.len()
}

// Run delivers events until ctx is done or Stop is called. Events queued
// before Stop are still dispatched. Handlers started by Run keep running
// after it returns; use Wait to drain them.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.logger.Info(ctx, "dispatcher starting")

	for {
		if ev, ok := d.queue.tryDequeue(); ok {
			d.dispatch(ctx, ev)
			continue
		}

		select {
		case <-ctx.Done():
			d.logger.Info(ctx, "dispatcher stopping: context cancelled")
			d.queue.close()
			return ctx.Err()
		case <-d.queue.wait():
			if d.queue.isClosed() && d.queue.len() == 0 {
				d.logger.Info(ctx, "dispatcher stopping: queue closed")
				return ErrStopped
			}
		}
	}
}

// Stop closes the queue. Run returns once the queue is drained.
func (d *Dispatcher) Stop() {
	d.queue.close()
}

// Wait blocks until every started handler invocation has returned.
func (d *Dispatcher) Wait() {
	d.inflight.Wait()
}

// dispatch starts every handler registered for ev.Name. Called only from
// Run.
func (d *Dispatcher) dispatch(ctx context.Context, ev Event) {
	d.mu.RLock()
	regs := make([]registration, len(d.handlers[ev.Name]))
	copy(regs, d.handlers[ev.Name])
	d.mu.RUnlock()

	ctx = logging.WithEventID(ctx, ev.ID)
	if len(regs) == 0 {
		metrics.EventsUnrouted.Inc()
		d.logger.Debug(ctx, "no handler for event", zap.String("event", ev.Name))
		return
	}

	// Handlers outlive the loop's context so shutdown lets them finish.
	hctx := context.WithoutCancel(ctx)
	for _, r := range regs {
		d.inflight.Add(1)
		go func(h Handler) {
			defer d.inflight.Done()
			_ = h(hctx, ev)
		}(r.handler)
	}
}
