package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/cogd/internal/controller"
	"github.com/roach88/cogd/internal/dispatch"
	"github.com/roach88/cogd/internal/module"
)

// ModuleEnv is a running dispatcher, database and module manager for
// exercising modules end to end.
type ModuleEnv struct {
	Root       string
	Registry   *controller.Registry
	Dispatcher *dispatch.Dispatcher
	Outbound   *dispatch.RecordingOutbound
	Manager    *module.Manager
}

// MiddlewareFunc builds dispatcher middleware once the registry exists.
type MiddlewareFunc func(reg *controller.Registry) dispatch.Middleware

// NewModuleEnv writes manifests (path relative to a temp root -> source),
// loads every module through a manager and starts the dispatcher.
func NewModuleEnv(t testing.TB, catalog *module.Catalog, manifests map[string]string, mw ...MiddlewareFunc) *ModuleEnv {
	t.Helper()
	env := &ModuleEnv{
		Root:     t.TempDir(),
		Registry: NewRegistry(t),
		Outbound: dispatch.NewRecordingOutbound(),
	}
	for rel, src := range manifests {
		WriteFile(t, env.Root, rel, src)
	}

	chain := make([]dispatch.Middleware, 0, len(mw))
	for _, build := range mw {
		chain = append(chain, build(env.Registry))
	}
	env.Dispatcher = dispatch.New(dispatch.WithMiddleware(chain...))
	mgr, err := module.NewManager(module.Options{
		Root:     env.Root,
		Catalog:  catalog,
		Router:   env.Dispatcher,
		Registry: env.Registry,
		Outbound: env.Outbound,
	})
	require.NoError(t, err)
	env.Manager = mgr

	require.NoError(t, mgr.LoadAll(context.Background()).Err())
	RunDispatcher(t, env.Dispatcher)
	return env
}

// Ask delivers ev and returns the next message sent back.
func (e *ModuleEnv) Ask(t testing.TB, ev dispatch.Event) string {
	t.Helper()
	before := len(e.Outbound.Messages())
	require.True(t, e.Dispatcher.Deliver(ev), "dispatcher refused %s", ev.Name)
	require.Eventually(t, func() bool {
		return len(e.Outbound.Messages()) > before
	}, 5*time.Second, 2*time.Millisecond, "no reply to %s", ev.Name)
	return e.Outbound.Messages()[before].Text
}
