// Package ping answers "ping" with a fixed reply. It is the smallest
// useful module and doubles as a liveness check for the dispatch path.
package ping

import (
	"context"

	"github.com/roach88/cogd/internal/dispatch"
	"github.com/roach88/cogd/internal/module"
)

// Entry is the catalog name of this module.
const Entry = "ping"

const defaultReply = "pong"

type pingModule struct{}

// New builds the module.
func New() module.Module { return pingModule{} }

func (pingModule) Setup(_ context.Context, host module.Host) error {
	reply := host.Settings().String("reply")
	if reply == "" {
		reply = defaultReply
	}
	out := host.Outbound()
	return host.Handle("ping", func(ctx context.Context, ev dispatch.Event) error {
		return dispatch.Reply(ctx, out, ev, reply)
	})
}
