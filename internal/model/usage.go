package model

import (
	"context"

	"github.com/roach88/cogd/internal/controller"
	"github.com/roach88/cogd/internal/ir"
	"github.com/roach88/cogd/internal/queryir"
)

// UsageStat counts invocations of one command in one guild.
type UsageStat struct {
	Command string
	GuildID int64
	Count   int64
}

var usageSchema = &controller.Schema{
	Name:     "UsageStat",
	Table:    "usage_stats",
	Key:      []string{"command", "guild_id"},
	Columns:  []string{"command", "guild_id", "count"},
	Required: []string{"command", "guild_id"},
	DefaultOrder: []queryir.OrderBy{
		{Field: "count", Desc: true},
	},
}

func (*UsageStat) Schema() *controller.Schema { return usageSchema }

func (u *UsageStat) Fields() ir.IRObject {
	return ir.IRObject{
		"command":  ir.IRString(u.Command),
		"guild_id": ir.IRInt(u.GuildID),
		"count":    ir.IRInt(u.Count),
	}
}

func (u *UsageStat) Scan(row ir.IRObject) (err error) {
	if u.Command, err = stringColumn(row, "command"); err != nil {
		return err
	}
	if u.GuildID, err = intColumn(row, "guild_id"); err != nil {
		return err
	}
	u.Count, err = intColumn(row, "count")
	return err
}

// UsageController records command usage.
type UsageController struct {
	*controller.Controller[UsageStat, *UsageStat]
}

// NewUsageController binds the registry's usage controller.
func NewUsageController(reg *controller.Registry) (*UsageController, error) {
	c, err := controller.Get[UsageStat](reg)
	if err != nil {
		return nil, err
	}
	return &UsageController{Controller: c}, nil
}

// Increment bumps the counter for command in the guild by one.
func (c *UsageController) Increment(ctx context.Context, guildID int64, command string) (*UsageStat, error) {
	var stat *UsageStat
	err := c.ExecuteTransaction(ctx, func(ctx context.Context) error {
		key := ir.IRObject{"command": ir.IRString(command), "guild_id": ir.IRInt(guildID)}
		cur, err := c.FindUnique(ctx, key)
		if err != nil {
			return err
		}
		next := int64(1)
		if cur != nil {
			next = cur.Count + 1
		}
		stat, err = c.Upsert(ctx, key,
			ir.IRObject{"count": ir.IRInt(next)},
			ir.IRObject{"count": ir.IRInt(next)})
		return err
	})
	return stat, err
}

// Top returns the guild's most used commands.
func (c *UsageController) Top(ctx context.Context, guildID int64, limit int) ([]*UsageStat, error) {
	return c.FindMany(ctx, controller.Query{
		Where: queryir.Eq("guild_id", ir.IRInt(guildID)),
		Limit: max(limit, 0),
	})
}
