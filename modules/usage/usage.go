// Package usage counts command invocations per guild and reports the most
// used ones.
package usage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/roach88/cogd/internal/dispatch"
	"github.com/roach88/cogd/internal/logging"
	"github.com/roach88/cogd/internal/model"
	"github.com/roach88/cogd/internal/module"
)

// Entry is the catalog name of this module.
const Entry = "usage"

const defaultTop = 5

// Middleware counts every handled event with a guild in the usage_stats
// table. Counting failures are logged and never fail the handler.
func Middleware(stats *model.UsageController, logger *logging.Logger) dispatch.Middleware {
	if logger == nil {
		logger = logging.Nop()
	}
	return func(name string, next dispatch.Handler) dispatch.Handler {
		return func(ctx context.Context, ev dispatch.Event) error {
			err := next(ctx, ev)
			if ev.GuildID != 0 {
				if _, cerr := stats.Increment(ctx, ev.GuildID, name); cerr != nil {
					logger.Warn(ctx, "usage count failed", zap.String("event", name), zap.Error(cerr))
				}
			}
			return err
		}
	}
}

type usageModule struct {
	stats *model.UsageController
	top   int
	out   dispatch.Outbound
}

// New builds the module.
func New() module.Module { return &usageModule{} }

func (m *usageModule) Setup(_ context.Context, host module.Host) error {
	reg := host.Controllers()
	if reg == nil {
		return errors.New("usage needs the controller registry")
	}
	stats, err := model.NewUsageController(reg)
	if err != nil {
		return err
	}
	m.stats = stats
	m.out = host.Outbound()
	m.top = defaultTop
	if n := host.Settings().Int("top"); n > 0 {
		m.top = int(n)
	}
	return host.Handle("usage.top", m.handleTop)
}

func (m *usageModule) handleTop(ctx context.Context, ev dispatch.Event) error {
	if ev.GuildID == 0 {
		return dispatch.Reply(ctx, m.out, ev, "This command only works in a server.")
	}
	top, err := m.stats.Top(ctx, ev.GuildID, m.top)
	if err != nil {
		_ = dispatch.Reply(ctx, m.out, ev, "Could not read usage statistics.")
		return err
	}
	if len(top) == 0 {
		return dispatch.Reply(ctx, m.out, ev, "No commands used yet.")
	}
	parts := make([]string, len(top))
	for i, s := range top {
		parts[i] = fmt.Sprintf("%s (%d)", s.Command, s.Count)
	}
	return dispatch.Reply(ctx, m.out, ev, "Most used commands: "+strings.Join(parts, ", "))
}
