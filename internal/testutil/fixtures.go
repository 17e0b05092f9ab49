// Package testutil holds helpers shared by package tests.
package testutil

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cogd/internal/controller"
	"github.com/roach88/cogd/internal/dispatch"
	"github.com/roach88/cogd/internal/model"
	"github.com/roach88/cogd/internal/store"
)

// NewRegistry opens a fresh database in a temp dir with every model
// migration applied. It is closed when the test ends.
func NewRegistry(t testing.TB) *controller.Registry {
	t.Helper()
	fsys, root := model.Migrations()
	client, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "cogd.db"), store.Options{
		Migrations:     fsys,
		MigrationsRoot: root,
	})
	require.NoError(t, err)
	reg := controller.NewRegistry(client, nil)
	t.Cleanup(func() { _ = reg.Close() })
	return reg
}

// RunDispatcher runs d in the background. The returned func stops it and
// waits for in-flight handlers; it is also registered as cleanup.
func RunDispatcher(t testing.TB, d *dispatch.Dispatcher) func() {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- d.Run(context.Background()) }()

	stopped := false
	stop := func() {
		if stopped {
			return
		}
		stopped = true
		d.Stop()
		select {
		case err := <-done:
			assert.ErrorIs(t, err, dispatch.ErrStopped)
		case <-time.After(5 * time.Second):
			t.Fatal("dispatcher did not stop")
		}
		d.Wait()
	}
	t.Cleanup(stop)
	return stop
}

// WriteFile writes content to root/rel, creating parent directories, and
// returns the absolute path.
func WriteFile(t testing.TB, root, rel, content string) string {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	abs, err := filepath.Abs(path)
	require.NoError(t, err)
	return abs
}
