package module

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"sort"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/roach88/cogd/internal/controller"
	"github.com/roach88/cogd/internal/dispatch"
	"github.com/roach88/cogd/internal/logging"
	"github.com/roach88/cogd/internal/metrics"
)

const tracerName = "github.com/roach88/cogd/internal/module"

// Options configures a Manager.
type Options struct {
	// Root is the directory searched for manifests.
	Root     string
	Catalog  *Catalog
	Router   Router
	Registry *controller.Registry
	Outbound dispatch.Outbound
	Logger   *logging.Logger
}

// Manager owns the set of tracked modules and drives their lifecycle.
type Manager struct {
	root     string
	catalog  *Catalog
	router   Router
	registry *controller.Registry
	outbound dispatch.Outbound
	logger   *logging.Logger
	tracer   trace.Tracer

	mu      sync.RWMutex
	records map[string]*Record
	nextSeq uint64

	obsMu     sync.RWMutex
	observers []func(Transition)
}

// NewManager creates a manager. Nothing is discovered until LoadAll or
// Discover runs.
func NewManager(opts Options) (*Manager, error) {
	if opts.Root == "" {
		return nil, fmt.Errorf("module manager needs a root directory")
	}
	if opts.Catalog == nil || opts.Router == nil {
		return nil, fmt.Errorf("module manager needs a catalog and a router")
	}
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	if opts.Outbound == nil {
		opts.Outbound = dispatch.LogOutbound{Logger: opts.Logger}
	}
	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, fmt.Errorf("module root: %w", err)
	}
	return &Manager{
		root:     root,
		catalog:  opts.Catalog,
		router:   opts.Router,
		registry: opts.Registry,
		outbound: opts.Outbound,
		logger:   opts.Logger.Named("modules"),
		tracer:   otel.Tracer(tracerName),
		records:  make(map[string]*Record),
	}, nil
}

// Root returns the absolute module root.
func (m *Manager) Root() string { return m.root }

// OnTransition registers fn to run after every state change. fn runs on
// the goroutine performing the operation and must not call back into the
// manager for the same module.
func (m *Manager) OnTransition(fn func(Transition)) {
	m.obsMu.Lock()
	defer m.obsMu.Unlock()
	m.observers = append(m.observers, fn)
}

// Get returns a snapshot of the module.
func (m *Manager) Get(id string) (Snapshot, bool) {
	rec, err := m.record(id)
	if err != nil {
		return Snapshot{}, false
	}
	return rec.Snapshot(), true
}

// Records returns snapshots of every tracked module, sorted by ID.
func (m *Manager) Records() []Snapshot {
	recs := m.sorted()
	out := make([]Snapshot, len(recs))
	for i, r := range recs {
		out[i] = r.Snapshot()
	}
	return out
}

func (m *Manager) record(id string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[id]
	if !ok {
		return nil, newError(CodeNotFound, "lookup", id, "no module with this id")
	}
	return rec, nil
}

func (m *Manager) recordByPath(path string) *Record {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, rec := range m.records {
		if rec.path == path {
			return rec
		}
	}
	return nil
}

func (m *Manager) sorted() []*Record {
	m.mu.RLock()
	out := make([]*Record, 0, len(m.records))
	for _, rec := range m.records {
		out = append(out, rec)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

func (m *Manager) tracked(rec *Record) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.records[rec.id] == rec
}

// inDiscoveryOrder returns the records in the order discovery last yielded
// them. Records tracked later through SyncPath come after.
func (m *Manager) inDiscoveryOrder() []*Record {
	m.mu.RLock()
	out := make([]*Record, 0, len(m.records))
	for _, rec := range m.records {
		out = append(out, rec)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

// sequence stamps rec with the next discovery position.
func (m *Manager) sequence(rec *Record) {
	m.mu.Lock()
	m.nextSeq++
	rec.seq = m.nextSeq
	m.mu.Unlock()
}

// track adds rec unless another manifest already claims its ID.
func (m *Manager) track(rec *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if other, ok := m.records[rec.id]; ok && other.path != rec.path {
		return newError(CodeInvalidManifest, "discover", rec.id,
			"id already used by %s (ignoring %s)", other.path, rec.path)
	}
	m.nextSeq++
	rec.seq = m.nextSeq
	m.records[rec.id] = rec
	return nil
}

func (m *Manager) forget(rec *Record) {
	m.mu.Lock()
	if m.records[rec.id] == rec {
		delete(m.records, rec.id)
	}
	m.mu.Unlock()
	m.updateStateGauge()
	m.logger.Info(context.Background(), "module forgotten", zap.String("module.id", rec.id), zap.String("path", rec.path))
}

// Discover walks the module root and merges what it finds into the tracked
// set without loading anything. Modules that are not loaded pick up their
// re-read manifest; tracked modules whose manifest disappeared and that are
// not loaded are forgotten. It returns walk and ID-collision errors.
func (m *Manager) Discover(ctx context.Context) []error {
	var errs []error
	seen := make(map[string]bool)

	for found, err := range Discover(m.root, m.catalog) {
		if err != nil {
			errs = append(errs, err)
			continue
		}
		seen[found.path] = true

		existing := m.recordByPath(found.path)
		if existing == nil {
			if err := m.track(found); err != nil {
				errs = append(errs, err)
				continue
			}
			m.logger.Debug(ctx, "module discovered", zap.String("module.id", found.id), zap.String("path", found.path))
			continue
		}

		m.sequence(existing)
		existing.op.Lock()
		if st := existing.State(); st == StateUnloaded || st == StateFailed {
			existing.setManifest(found.manifest, labelled(found.manifestErr, existing.id))
		}
		existing.op.Unlock()
	}

	for _, rec := range m.sorted() {
		if seen[rec.path] {
			continue
		}
		rec.op.Lock()
		if st := rec.State(); st == StateUnloaded || st == StateFailed {
			m.forget(rec)
		}
		rec.op.Unlock()
	}
	m.updateStateGauge()
	return errs
}

// LoadAll discovers modules and loads every enabled module that is not
// already loaded, in the order discovery yields them. One module failing does not stop the
// others; the report lists every outcome.
func (m *Manager) LoadAll(ctx context.Context) *Report {
	ctx, span := m.tracer.Start(ctx, "modules.load_all")
	defer span.End()

	report := &Report{Results: []Result{}}
	for _, err := range m.Discover(ctx) {
		report.addDiscoveryError(err)
	}

	for _, rec := range m.inDiscoveryOrder() {
		res := Result{ID: rec.id}
		manifest := rec.Manifest()
		switch {
		case rec.State() == StateLoaded:
			res.Skipped = "already loaded"
		case manifest != nil && !manifest.Enabled && rec.manifestError() == nil:
			res.Skipped = "disabled"
		default:
			if err := m.Load(ctx, rec.id); err != nil {
				res.err = err
				res.Error = Detail(err)
			}
		}
		res.State = rec.State()
		res.OK = res.err == nil
		report.Results = append(report.Results, res)
	}

	if err := report.Err(); err != nil {
		span.SetStatus(codes.Error, "some modules failed")
		m.logger.Warn(ctx, "modules failed to load",
			zap.Int("failed", len(report.Failed())), zap.Int("total", len(report.Results)), zap.Error(err))
	} else {
		m.logger.Info(ctx, "modules loaded", zap.Int("total", len(report.Results)))
	}
	return report
}

// UnloadAll unloads every loaded module in reverse discovery order.
func (m *Manager) UnloadAll(ctx context.Context) error {
	recs := m.inDiscoveryOrder()
	var errs []error
	for i := len(recs) - 1; i >= 0; i-- {
		if recs[i].State() != StateLoaded {
			continue
		}
		if err := m.Unload(ctx, recs[i].id); err != nil && !errors.Is(err, ErrInvalidTransition) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Load builds a fresh instance of the module and runs its setup. On
// failure every handler the setup registered is removed, the module ends
// failed and the returned error wraps ErrModuleLoadFailure (or
// ErrMissingEntryPoint / ErrInvalidManifest when the manifest is the
// problem).
func (m *Manager) Load(ctx context.Context, id string) (err error) {
	ctx, done := m.observe(ctx, "load", id)
	defer done(&err)

	rec, err := m.record(id)
	if err != nil {
		return err
	}
	rec.op.Lock()
	defer rec.op.Unlock()
	return m.load(ctx, rec)
}

// Unload removes every handler the module registered and runs its
// teardown. Only a loaded module can be unloaded.
func (m *Manager) Unload(ctx context.Context, id string) (err error) {
	ctx, done := m.observe(ctx, "unload", id)
	defer done(&err)

	rec, err := m.record(id)
	if err != nil {
		return err
	}
	rec.op.Lock()
	defer rec.op.Unlock()
	return m.unload(ctx, rec)
}

// Reload unloads the module if loaded, re-reads its manifest and loads it
// again, all under the module's lock. A failed load leaves the module
// failed; the previous instance is not restored. If the manifest is gone
// the module is forgotten and ErrNotFound returned.
func (m *Manager) Reload(ctx context.Context, id string) (err error) {
	ctx, done := m.observe(ctx, "reload", id)
	defer done(&err)

	rec, err := m.record(id)
	if err != nil {
		return err
	}
	rec.op.Lock()
	defer rec.op.Unlock()
	return m.reload(ctx, rec)
}

// reload does the work of Reload. Callers hold rec.op.
func (m *Manager) reload(ctx context.Context, rec *Record) error {
	if rec.State() == StateLoaded {
		if err := m.unload(ctx, rec); err != nil {
			return err
		}
	}

	manifest, merr := readManifest(rec.path, m.catalog)
	if errors.Is(merr, errGone) {
		m.forget(rec)
		return newError(CodeNotFound, "reload", rec.id, "manifest %s is gone", rec.path)
	}
	rec.setManifest(manifest, labelled(merr, rec.id))
	return m.load(ctx, rec)
}

// Forget unloads the module if needed and stops tracking it.
func (m *Manager) Forget(ctx context.Context, id string) error {
	rec, err := m.record(id)
	if err != nil {
		return err
	}
	rec.op.Lock()
	defer rec.op.Unlock()
	return m.forgetLoaded(ctx, rec)
}

// forgetLoaded unloads rec if needed and stops tracking it. Callers hold
// rec.op.
func (m *Manager) forgetLoaded(ctx context.Context, rec *Record) error {
	if rec.State() == StateLoaded {
		if err := m.unload(ctx, rec); err != nil {
			return err
		}
	}
	m.forget(rec)
	return nil
}

// SyncPath brings the module declared at path in line with the file on
// disk: a new manifest is tracked and loaded, a changed one reloaded, a
// removed one unloaded and forgotten. A loaded module whose manifest hash
// is unchanged is left alone.
func (m *Manager) SyncPath(ctx context.Context, path string) (err error) {
	path, err = filepath.Abs(path)
	if err != nil {
		return err
	}

	rec := m.recordByPath(path)
	if rec == nil {
		if _, err := os.Stat(path); err != nil {
			return nil
		}
		found, ok := inspect(m.root, path, m.catalog)
		if !ok {
			return nil
		}
		if err := m.track(found); err != nil {
			return err
		}
		m.updateStateGauge()
		if mf := found.Manifest(); mf != nil && !mf.Enabled {
			return nil
		}
		return m.Load(ctx, found.id)
	}

	ctx, done := m.observe(ctx, "sync", rec.id)
	defer done(&err)

	// Check and act under one lock.
	rec.op.Lock()
	defer rec.op.Unlock()
	if !m.tracked(rec) {
		return nil
	}

	manifest, merr := readManifest(path, m.catalog)
	if errors.Is(merr, errGone) {
		return m.forgetLoaded(ctx, rec)
	}
	if merr == nil && rec.State() == StateLoaded {
		if cur := rec.Manifest(); cur != nil && cur.Hash == manifest.Hash {
			m.logger.Debug(ctx, "manifest unchanged", zap.String("module.id", rec.id))
			return nil
		}
	}
	if merr == nil && !manifest.Enabled {
		if rec.State() == StateLoaded {
			if err := m.unload(ctx, rec); err != nil {
				return err
			}
		}
		rec.setManifest(manifest, nil)
		return nil
	}
	return m.reload(ctx, rec)
}

func (m *Manager) load(ctx context.Context, rec *Record) error {
	from := rec.State()
	if !CanTransition(from, StateLoading) {
		return newError(CodeInvalidTransition, "load", rec.id, "cannot load a module that is %s", from)
	}
	m.transition(ctx, rec, StateLoading, nil)

	if merr := rec.manifestError(); merr != nil {
		m.transition(ctx, rec, StateFailed, merr)
		return merr
	}
	manifest := rec.Manifest()
	factory, ok := m.catalog.Lookup(manifest.Entry)
	if !ok {
		err := newError(CodeMissingEntryPoint, "load", rec.id, "entry %q is not in the catalog", manifest.Entry)
		m.transition(ctx, rec, StateFailed, err)
		return err
	}

	h := &host{
		id:       rec.id,
		router:   m.router,
		registry: m.registry,
		outbound: m.outbound,
		settings: manifest.Settings,
		logger:   m.logger.With(zap.String("module.id", rec.id)),
	}
	instance, err := m.setup(logging.WithModuleID(ctx, rec.id), rec.id, factory, h)
	if err != nil {
		removed := h.close()
		lerr := &Error{Code: CodeModuleLoadFailure, Op: "load", ModuleID: rec.id, Err: err}
		m.logger.Warn(ctx, "module setup failed",
			zap.String("module.id", rec.id), zap.Int("handlers_removed", removed), zap.Error(err))
		m.transition(ctx, rec, StateFailed, lerr)
		return lerr
	}

	rec.mu.Lock()
	rec.instance = instance
	rec.host = h
	rec.handlers = h.names()
	rec.mu.Unlock()
	m.transition(ctx, rec, StateLoaded, nil)
	return nil
}

// setup builds and sets up a module, turning panics into errors.
func (m *Manager) setup(ctx context.Context, id string, factory Factory, h *host) (mod Module, err error) {
	defer func() {
		if p := recover(); p != nil {
			m.logger.Error(ctx, "module setup panicked",
				zap.String("module.id", id), zap.Any("panic", p), zap.ByteString("stack", debug.Stack()))
			mod, err = nil, fmt.Errorf("setup panicked: %v", p)
		}
	}()

	mod = factory()
	if mod == nil {
		return nil, fmt.Errorf("factory returned a nil module")
	}
	if err := mod.Setup(ctx, h); err != nil {
		return nil, err
	}
	return mod, nil
}

func (m *Manager) unload(ctx context.Context, rec *Record) error {
	if from := rec.State(); from != StateLoaded {
		return newError(CodeInvalidTransition, "unload", rec.id, "cannot unload a module that is %s", from)
	}
	m.transition(ctx, rec, StateUnloading, nil)

	rec.mu.Lock()
	h, instance := rec.host, rec.instance
	rec.host, rec.instance, rec.handlers = nil, nil, nil
	rec.mu.Unlock()

	removed := h.close()
	if td, ok := instance.(Teardowner); ok {
		m.teardown(logging.WithModuleID(ctx, rec.id), rec.id, td, h)
	}
	m.logger.Debug(ctx, "module handlers removed", zap.String("module.id", rec.id), zap.Int("handlers_removed", removed))
	m.transition(ctx, rec, StateUnloaded, nil)
	return nil
}

func (m *Manager) teardown(ctx context.Context, id string, td Teardowner, h *host) {
	defer func() {
		if p := recover(); p != nil {
			m.logger.Error(ctx, "module teardown panicked", zap.String("module.id", id), zap.Any("panic", p))
		}
	}()
	if err := td.Teardown(ctx, h); err != nil {
		m.logger.Warn(ctx, "module teardown failed", zap.String("module.id", id), zap.Error(err))
	}
}

func (m *Manager) transition(ctx context.Context, rec *Record, to State, err error) {
	t := rec.setState(to, err)
	m.updateStateGauge()

	fields := []zap.Field{zap.String("module.id", rec.id), zap.String("from", string(t.From)), zap.String("to", string(t.To))}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	m.logger.Info(ctx, "module transition", fields...)

	m.obsMu.RLock()
	observers := append([]func(Transition){}, m.observers...)
	m.obsMu.RUnlock()
	for _, fn := range observers {
		fn(t)
	}
}

func (m *Manager) updateStateGauge() {
	counts := make(map[string]int)
	for _, s := range States() {
		counts[string(s)] = 0
	}
	for _, rec := range m.sorted() {
		counts[string(rec.State())]++
	}
	metrics.SetModuleStates(counts)
}

func (m *Manager) observe(ctx context.Context, op, id string) (context.Context, func(*error)) {
	ctx, span := m.tracer.Start(ctx, "module."+op,
		trace.WithAttributes(attribute.String("module.id", id), attribute.String("module.op", op)))
	return ctx, func(errp *error) {
		result := "ok"
		if err := *errp; err != nil {
			result = "failed"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		metrics.ModuleTransitions.WithLabelValues(op, result).Inc()
	}
}
