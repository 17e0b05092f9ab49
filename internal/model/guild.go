package model

import (
	"context"

	"github.com/roach88/cogd/internal/controller"
	"github.com/roach88/cogd/internal/ir"
)

// Guild is a chat community. Rows are created on demand through
// connect-or-create relations from the records that belong to a guild.
type Guild struct {
	ID int64
}

var guildSchema = &controller.Schema{
	Name:     "Guild",
	Table:    "guilds",
	Key:      []string{"guild_id"},
	Columns:  []string{"guild_id"},
	Required: []string{"guild_id"},
}

func (*Guild) Schema() *controller.Schema { return guildSchema }

func (g *Guild) Fields() ir.IRObject {
	return ir.IRObject{"guild_id": keyOrNull(g.ID)}
}

func (g *Guild) Scan(row ir.IRObject) error {
	id, err := intColumn(row, "guild_id")
	if err != nil {
		return err
	}
	g.ID = id
	return nil
}

// GuildKey is the lookup for a guild row.
func GuildKey(guildID int64) ir.IRObject {
	return ir.IRObject{"guild_id": ir.IRInt(guildID)}
}

// connectGuild is the relation ref every guild-scoped record uses.
func connectGuild(guildID int64) controller.RelationRef {
	return controller.ConnectOrCreate("guild_id", GuildKey(guildID))
}

// GuildController is the data-access object for guilds.
type GuildController struct {
	*controller.Controller[Guild, *Guild]
}

// NewGuildController binds the registry's guild controller.
func NewGuildController(reg *controller.Registry) (*GuildController, error) {
	c, err := controller.Get[Guild](reg)
	if err != nil {
		return nil, err
	}
	return &GuildController{Controller: c}, nil
}

// GetGuild returns the guild or nil.
func (c *GuildController) GetGuild(ctx context.Context, guildID int64) (*Guild, error) {
	return c.FindUnique(ctx, GuildKey(guildID))
}

// Ensure returns the guild, creating it if needed. Concurrent calls for
// the same ID produce one row.
func (c *GuildController) Ensure(ctx context.Context, guildID int64) (*Guild, error) {
	return c.Upsert(ctx, GuildKey(guildID), nil, nil)
}

// DeleteGuild removes the guild and, by cascade, everything scoped to it.
func (c *GuildController) DeleteGuild(ctx context.Context, guildID int64) (*Guild, error) {
	return c.Delete(ctx, GuildKey(guildID))
}
