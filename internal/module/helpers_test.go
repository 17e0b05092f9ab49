package module

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cogd/internal/dispatch"
	"github.com/roach88/cogd/internal/logging"
)

// tally counts what stub modules do.
type tally struct {
	mu        sync.Mutex
	fired     map[string]int
	setups    int
	teardowns int
}

func (p *tally) hit(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fired[name]++
}

func (p *tally) count(name string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fired[name]
}

type stubModule struct {
	p      *tally
	events []string
	err    error
	panicV any
}

func (s *stubModule) Setup(_ context.Context, h Host) error {
	s.p.mu.Lock()
	s.p.setups++
	s.p.mu.Unlock()

	for _, name := range s.events {
		key := h.ID() + ":" + name
		if err := h.Handle(name, func(context.Context, dispatch.Event) error {
			s.p.hit(key)
			return nil
		}); err != nil {
			return err
		}
	}
	if s.panicV != nil {
		panic(s.panicV)
	}
	return s.err
}

func (s *stubModule) Teardown(context.Context, Host) error {
	s.p.mu.Lock()
	defer s.p.mu.Unlock()
	s.p.teardowns++
	return nil
}

type fixture struct {
	root    string
	tally   *tally
	catalog *Catalog
	router  *dispatch.Dispatcher
	logger  *logging.TestLogger
	mgr     *Manager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		root:    t.TempDir(),
		tally:   &tally{fired: make(map[string]int)},
		catalog: NewCatalog(),
		logger:  logging.NewTestLogger(),
	}
	f.router = dispatch.New(dispatch.WithLogger(f.logger.Logger))

	f.catalog.MustRegister("ok", func() Module {
		return &stubModule{p: f.tally, events: []string{"ping"}}
	})
	f.catalog.MustRegister("boom", func() Module {
		return &stubModule{p: f.tally, events: []string{"boom.partial"}, err: errors.New("database unreachable")}
	})
	f.catalog.MustRegister("panics", func() Module {
		return &stubModule{p: f.tally, events: []string{"panic.partial"}, panicV: "kaboom"}
	})

	mgr, err := NewManager(Options{
		Root:    f.root,
		Catalog: f.catalog,
		Router:  f.router,
		Logger:  f.logger.Logger,
	})
	require.NoError(t, err)
	f.mgr = mgr
	return f
}

func (f *fixture) write(t *testing.T, rel, content string) string {
	t.Helper()
	path := filepath.Join(f.root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	abs, err := filepath.Abs(path)
	require.NoError(t, err)
	return abs
}

func (f *fixture) state(t *testing.T, id string) State {
	t.Helper()
	snap, ok := f.mgr.Get(id)
	require.True(t, ok, "module %s is tracked", id)
	return snap.State
}

// run starts the dispatcher and returns a func that stops it and drains
// in-flight handlers.
func (f *fixture) run(t *testing.T) func() {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- f.router.Run(context.Background()) }()
	return func() {
		f.router.Stop()
		select {
		case err := <-done:
			assert.ErrorIs(t, err, dispatch.ErrStopped)
		case <-time.After(5 * time.Second):
			t.Fatal("dispatcher did not stop")
		}
		f.router.Wait()
	}
}
