package module

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/roach88/cogd/internal/dispatch"
)

func TestNewManagerValidation(t *testing.T) {
	_, err := NewManager(Options{Catalog: NewCatalog(), Router: dispatch.New()})
	assert.Error(t, err)
	_, err = NewManager(Options{Root: t.TempDir(), Router: dispatch.New()})
	assert.Error(t, err)
}

func TestLoadAllIsolatesFailures(t *testing.T) {
	f := newFixture(t)
	f.write(t, "a.cue", `module: entry: "ok"`)
	f.write(t, "b.cue", `module: entry: "boom"`)
	f.write(t, "c.cue", `module: entry: "ok"`)

	report := f.mgr.LoadAll(context.Background())
	require.Len(t, report.Results, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{report.Results[0].ID, report.Results[1].ID, report.Results[2].ID})

	assert.Equal(t, StateLoaded, f.state(t, "a"))
	assert.Equal(t, StateFailed, f.state(t, "b"))
	assert.Equal(t, StateLoaded, f.state(t, "c"))

	res, ok := report.Result("b")
	require.True(t, ok)
	assert.False(t, res.OK)
	require.NotNil(t, res.Error)
	assert.Equal(t, string(CodeModuleLoadFailure), res.Error.Code)
	assert.Equal(t, "database unreachable", res.Error.Cause)

	require.Len(t, report.Failed(), 1)
	err := report.Err()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrModuleLoadFailure)

	assert.Equal(t, 2, f.router.Handlers("ping"))
	assert.Zero(t, f.router.Handlers("boom.partial"), "a failed setup leaves no handlers behind")
	f.logger.AssertLogged(t, zapcore.WarnLevel, "modules failed to load")
}

func TestLoadAllSkipsLoadedAndDisabled(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.write(t, "on.cue", `module: entry: "ok"`)
	f.write(t, "off.cue", `module: {entry: "ok", enabled: false}`)

	first := f.mgr.LoadAll(ctx)
	require.NoError(t, first.Err())
	off, _ := first.Result("off")
	assert.Equal(t, "disabled", off.Skipped)
	assert.Equal(t, StateUnloaded, f.state(t, "off"))

	second := f.mgr.LoadAll(ctx)
	on, _ := second.Result("on")
	assert.Equal(t, "already loaded", on.Skipped)
	assert.Equal(t, 1, f.tally.setups)

	require.NoError(t, f.mgr.Load(ctx, "off"), "an explicit load ignores enabled")
	assert.Equal(t, StateLoaded, f.state(t, "off"))
}

func TestUnloadStopsHandlers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.write(t, "ping.cue", `module: entry: "ok"`)
	f.mgr.Discover(ctx)
	require.NoError(t, f.mgr.Load(ctx, "ping"))

	stop := f.run(t)
	require.True(t, f.router.Deliver(dispatch.Event{Name: "ping"}))
	require.Eventually(t, func() bool { return f.tally.count("ping:ping") == 1 }, 5*time.Second, 5*time.Millisecond)

	require.NoError(t, f.mgr.Unload(ctx, "ping"))
	assert.Equal(t, StateUnloaded, f.state(t, "ping"))
	assert.Zero(t, f.router.Handlers("ping"))
	assert.Equal(t, 1, f.tally.teardowns)

	require.True(t, f.router.Deliver(dispatch.Event{Name: "ping"}))
	stop()
	assert.Equal(t, 1, f.tally.count("ping:ping"), "no handler of an unloaded module fires")
}

func TestLoadRollsBackOnPanic(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.write(t, "p.cue", `module: entry: "panics"`)
	f.mgr.Discover(ctx)

	err := f.mgr.Load(ctx, "p")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrModuleLoadFailure)
	assert.Contains(t, err.Error(), "kaboom")
	assert.Equal(t, StateFailed, f.state(t, "p"))
	assert.Zero(t, f.router.Handlers("panic.partial"))
	f.logger.AssertLogged(t, zapcore.ErrorLevel, "module setup panicked")

	snap, _ := f.mgr.Get("p")
	assert.Equal(t, 1, snap.Failures)
	assert.Empty(t, snap.Handlers)
}

func TestLoadMissingEntryPoint(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.write(t, "x.cue", `module: entry: "not-registered"`)
	f.write(t, "y.cue", `module: description: "no entry"`)

	report := f.mgr.LoadAll(ctx)
	for _, id := range []string{"x", "y"} {
		res, ok := report.Result(id)
		require.True(t, ok)
		require.NotNil(t, res.Error)
		assert.Equal(t, string(CodeMissingEntryPoint), res.Error.Code)
		assert.Equal(t, StateFailed, res.State)
	}

	err := f.mgr.Load(ctx, "x")
	assert.ErrorIs(t, err, ErrMissingEntryPoint, "loading again fails the same way until the manifest changes")
}

func TestInvalidTransitions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.write(t, "m.cue", `module: entry: "ok"`)
	f.mgr.Discover(ctx)

	assert.ErrorIs(t, f.mgr.Unload(ctx, "m"), ErrInvalidTransition)
	require.NoError(t, f.mgr.Load(ctx, "m"))
	assert.ErrorIs(t, f.mgr.Load(ctx, "m"), ErrInvalidTransition)
	assert.Equal(t, 1, f.router.Handlers("ping"))

	assert.ErrorIs(t, f.mgr.Load(ctx, "nope"), ErrNotFound)
	assert.ErrorIs(t, f.mgr.Unload(ctx, "nope"), ErrNotFound)
	assert.ErrorIs(t, f.mgr.Reload(ctx, "nope"), ErrNotFound)
}

func TestReload(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	path := f.write(t, "m.cue", `module: entry: "ok"`)
	f.mgr.Discover(ctx)
	require.NoError(t, f.mgr.Load(ctx, "m"))

	require.NoError(t, f.mgr.Reload(ctx, "m"))
	assert.Equal(t, StateLoaded, f.state(t, "m"))
	assert.Equal(t, 1, f.router.Handlers("ping"), "the old instance's handlers are gone")
	assert.Equal(t, 2, f.tally.setups)

	f.write(t, "m.cue", `module: entry: "boom"`)
	err := f.mgr.Reload(ctx, "m")
	assert.ErrorIs(t, err, ErrModuleLoadFailure)
	assert.Equal(t, StateFailed, f.state(t, "m"), "a failed reload does not restore the old instance")
	assert.Zero(t, f.router.Handlers("ping"))

	f.write(t, "m.cue", `module: entry: "ok"`)
	require.NoError(t, f.mgr.Reload(ctx, "m"))
	assert.Equal(t, StateLoaded, f.state(t, "m"))

	require.NoError(t, os.Remove(path))
	assert.ErrorIs(t, f.mgr.Reload(ctx, "m"), ErrNotFound)
	_, ok := f.mgr.Get("m")
	assert.False(t, ok)
	assert.Zero(t, f.router.Handlers("ping"))
}

func TestDiscoverMerges(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.write(t, "a.cue", `module: entry: "ok"`)
	gone := f.write(t, "b.cue", `module: entry: "ok"`)
	require.Empty(t, f.mgr.Discover(ctx))
	require.NoError(t, f.mgr.Load(ctx, "a"))

	f.write(t, "a.cue", `module: {entry: "ok", description: "edited"}`)
	require.NoError(t, os.Remove(gone))
	require.Empty(t, f.mgr.Discover(ctx))

	snap, ok := f.mgr.Get("a")
	require.True(t, ok)
	assert.Equal(t, StateLoaded, snap.State)
	assert.Empty(t, snap.Description, "a loaded module keeps its manifest until reloaded")

	_, ok = f.mgr.Get("b")
	assert.False(t, ok, "an unloaded module whose manifest vanished is forgotten")
}

func TestDuplicateIDsAreReported(t *testing.T) {
	f := newFixture(t)
	f.write(t, "a.cue", `module: {id: "same", entry: "ok"}`)
	f.write(t, "b.cue", `module: {id: "same", entry: "ok"}`)

	report := f.mgr.LoadAll(context.Background())
	require.Len(t, report.Errors, 1)
	assert.Contains(t, report.Errors[0], "already used")
	require.Len(t, report.Results, 1)
	assert.Equal(t, StateLoaded, f.state(t, "same"))
	assert.ErrorIs(t, report.Err(), ErrInvalidManifest)
}

func TestUnloadAllReverseOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, name := range []string{"a", "b", "c"} {
		f.write(t, name+".cue", `module: entry: "ok"`)
	}
	require.NoError(t, f.mgr.LoadAll(ctx).Err())

	var order []string
	f.mgr.OnTransition(func(tr Transition) {
		if tr.To == StateUnloading {
			order = append(order, tr.ModuleID)
		}
	})
	require.NoError(t, f.mgr.UnloadAll(ctx))
	assert.Equal(t, []string{"c", "b", "a"}, order)
	assert.Zero(t, f.router.Handlers("ping"))
}

func TestLoadAllFollowsDiscoveryOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.write(t, "C.cue", `module: entry: "ok"`)
	f.write(t, "a.cue", `module: {entry: "ok", id: "zz"}`)
	f.write(t, "b/module.cue", `module: entry: "ok"`)
	f.write(t, "b/x.cue", `module: entry: "ok"`)
	f.write(t, "ba.cue", `module: entry: "ok"`)

	var discovered []string
	for rec, err := range Discover(f.root, f.catalog) {
		require.NoError(t, err)
		discovered = append(discovered, rec.ID())
	}
	require.Equal(t, []string{"c", "zz", "b", "b.x", "ba"}, discovered)

	var loaded []string
	f.mgr.OnTransition(func(tr Transition) {
		if tr.To == StateLoaded {
			loaded = append(loaded, tr.ModuleID)
		}
	})
	report := f.mgr.LoadAll(ctx)
	require.NoError(t, report.Err())
	assert.Equal(t, discovered, loaded)

	var reported []string
	for _, res := range report.Results {
		reported = append(reported, res.ID)
	}
	assert.Equal(t, discovered, reported)

	var unloading []string
	f.mgr.OnTransition(func(tr Transition) {
		if tr.To == StateUnloading {
			unloading = append(unloading, tr.ModuleID)
		}
	})
	require.NoError(t, f.mgr.UnloadAll(ctx))
	assert.Equal(t, []string{"ba", "b.x", "b", "zz", "c"}, unloading)
}

func TestLoadAllKeepsOrderAfterRediscovery(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.write(t, "b.cue", `module: entry: "ok"`)
	require.NoError(t, f.mgr.LoadAll(ctx).Err())

	f.write(t, "a.cue", `module: {entry: "ok", id: "z"}`)
	report := f.mgr.LoadAll(ctx)
	require.Len(t, report.Results, 2)
	assert.Equal(t, "z", report.Results[0].ID)
	assert.Equal(t, "b", report.Results[1].ID)
	assert.Equal(t, "already loaded", report.Results[1].Skipped)
}

func TestTransitionsAreObservedAndRecorded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.write(t, "m.cue", `module: {entry: "ok", settings: greeting: "hi"}`)
	f.mgr.Discover(ctx)

	var got []Transition
	f.mgr.OnTransition(func(tr Transition) { got = append(got, tr) })
	require.NoError(t, f.mgr.Load(ctx, "m"))

	require.Len(t, got, 2)
	assert.Equal(t, StateUnloaded, got[0].From)
	assert.Equal(t, StateLoading, got[0].To)
	assert.Equal(t, StateLoaded, got[1].To)

	snap, _ := f.mgr.Get("m")
	assert.Equal(t, []string{"ping"}, snap.Handlers)
	assert.Equal(t, 1, snap.Loads)
	assert.NotNil(t, snap.LoadedAt)
	assert.Len(t, snap.History, 2)
	assert.Equal(t, "ok", snap.Entry)
	assert.NotEmpty(t, snap.Hash)
	f.logger.AssertField(t, "module transition", "module.id", "m")
}

func TestConcurrentOperationsSerialize(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.write(t, "m.cue", `module: entry: "ok"`)
	f.mgr.Discover(ctx)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var err error
			switch i % 3 {
			case 0:
				err = f.mgr.Load(ctx, "m")
			case 1:
				err = f.mgr.Unload(ctx, "m")
			default:
				err = f.mgr.Reload(ctx, "m")
			}
			if err != nil {
				assert.True(t, errors.Is(err, ErrInvalidTransition), "unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	switch f.state(t, "m") {
	case StateLoaded:
		assert.Equal(t, 1, f.router.Handlers("ping"))
	case StateUnloaded:
		assert.Zero(t, f.router.Handlers("ping"))
	default:
		t.Fatalf("module left in %s", f.state(t, "m"))
	}
}

func TestSyncPath(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	path := f.write(t, "m.cue", `module: entry: "ok"`)
	require.NoError(t, f.mgr.SyncPath(ctx, path))
	assert.Equal(t, StateLoaded, f.state(t, "m"))

	require.NoError(t, f.mgr.SyncPath(ctx, path))
	snap, _ := f.mgr.Get("m")
	assert.Equal(t, 1, snap.Loads, "an unchanged manifest is not reloaded")

	f.write(t, "m.cue", `module: {entry: "ok", settings: level: 2}`)
	require.NoError(t, f.mgr.SyncPath(ctx, path))
	snap, _ = f.mgr.Get("m")
	assert.Equal(t, 2, snap.Loads)

	f.write(t, "m.cue", `module: {entry: "ok", enabled: false}`)
	require.NoError(t, f.mgr.SyncPath(ctx, path))
	assert.Equal(t, StateUnloaded, f.state(t, "m"))

	require.NoError(t, os.Remove(path))
	require.NoError(t, f.mgr.SyncPath(ctx, path))
	_, ok := f.mgr.Get("m")
	assert.False(t, ok)
	assert.Zero(t, f.router.Handlers("ping"))

	require.NoError(t, f.mgr.SyncPath(ctx, path), "syncing a path nobody knows is a no-op")
}

func TestSyncPathDisableRacesUnload(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	path := f.write(t, "m.cue", `module: entry: "ok"`)

	for i := 0; i < 25; i++ {
		f.write(t, "m.cue", `module: entry: "ok"`)
		require.NoError(t, f.mgr.SyncPath(ctx, path))
		require.Equal(t, StateLoaded, f.state(t, "m"))

		f.write(t, "m.cue", `module: {entry: "ok", enabled: false}`)
		var (
			wg      sync.WaitGroup
			syncErr error
			unErr   error
		)
		wg.Add(2)
		go func() {
			defer wg.Done()
			syncErr = f.mgr.SyncPath(ctx, path)
		}()
		go func() {
			defer wg.Done()
			unErr = f.mgr.Unload(ctx, "m")
		}()
		wg.Wait()

		require.NoError(t, syncErr, "iteration %d", i)
		if unErr != nil {
			require.ErrorIs(t, unErr, ErrInvalidTransition)
		}
		snap, _ := f.mgr.Get("m")
		require.Equal(t, StateUnloaded, snap.State)
		require.False(t, snap.Enabled, "the disabled manifest is recorded")
	}
	assert.Zero(t, f.router.Handlers("ping"))
}

func TestHostRefusesHandlesAfterClose(t *testing.T) {
	d := dispatch.New()
	h := &host{id: "m", router: d}
	require.NoError(t, h.Handle("a", func(context.Context, dispatch.Event) error { return nil }))
	require.NoError(t, h.Handle("a", func(context.Context, dispatch.Event) error { return nil }))
	assert.Equal(t, []string{"a"}, h.names())

	assert.Equal(t, 2, h.close())
	assert.Zero(t, d.Handlers("a"))
	assert.Error(t, h.Handle("b", func(context.Context, dispatch.Event) error { return nil }))
}

func TestStateTransitions(t *testing.T) {
	assert.True(t, CanTransition(StateUnloaded, StateLoading))
	assert.True(t, CanTransition(StateFailed, StateLoading))
	assert.True(t, CanTransition(StateLoaded, StateUnloading))
	assert.False(t, CanTransition(StateLoaded, StateLoading))
	assert.False(t, CanTransition(StateUnloaded, StateUnloading))
	assert.False(t, CanTransition(StateFailed, StateUnloading))
}

func TestDetail(t *testing.T) {
	assert.Nil(t, Detail(nil))

	d := Detail(errors.New("plain"))
	assert.Equal(t, string(CodeModuleLoadFailure), d.Code)
	assert.Empty(t, d.Cause)

	err := &Error{Code: CodeModuleLoadFailure, Op: "load", ModuleID: "m", Err: errors.New("disk full")}
	d = Detail(err)
	assert.Equal(t, "disk full", d.Cause)
	assert.Contains(t, d.Message, "module m: load")
}
