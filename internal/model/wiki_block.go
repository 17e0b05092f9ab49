package model

import (
	"context"

	"github.com/roach88/cogd/internal/controller"
	"github.com/roach88/cogd/internal/ir"
	"github.com/roach88/cogd/internal/queryir"
)

// WikiBlockItem marks a wiki name as blocked in a guild.
type WikiBlockItem struct {
	ID      int64
	Name    string
	GuildID int64
}

var wikiBlockSchema = &controller.Schema{
	Name:      "WikiBlockItem",
	Table:     "wiki_block_items",
	Key:       []string{"wiki_block_id"},
	Unique:    [][]string{{"wiki_name", "guild_id"}},
	Columns:   []string{"wiki_block_id", "wiki_name", "guild_id"},
	Generated: []string{"wiki_block_id"},
	Required:  []string{"wiki_name", "guild_id"},
	Relations: []controller.Relation{
		{Field: "guild_id", Target: "guilds", TargetKey: "guild_id"},
	},
	DefaultOrder: []queryir.OrderBy{{Field: "wiki_name"}},
}

func (*WikiBlockItem) Schema() *controller.Schema { return wikiBlockSchema }

func (b *WikiBlockItem) Fields() ir.IRObject {
	return ir.IRObject{
		"wiki_block_id": keyOrNull(b.ID),
		"wiki_name":     ir.IRString(b.Name),
		"guild_id":      keyOrNull(b.GuildID),
	}
}

func (b *WikiBlockItem) Scan(row ir.IRObject) (err error) {
	if b.ID, err = intColumn(row, "wiki_block_id"); err != nil {
		return err
	}
	if b.Name, err = stringColumn(row, "wiki_name"); err != nil {
		return err
	}
	b.GuildID, err = intColumn(row, "guild_id")
	return err
}

func blockIDKey(id int64) ir.IRObject {
	return ir.IRObject{"wiki_block_id": ir.IRInt(id)}
}

// WikiBlockController is the guild-scoped data-access object for blocks.
type WikiBlockController struct {
	*controller.Controller[WikiBlockItem, *WikiBlockItem]
}

// NewWikiBlockController binds the registry's block controller.
func NewWikiBlockController(reg *controller.Registry) (*WikiBlockController, error) {
	c, err := controller.Get[WikiBlockItem](reg)
	if err != nil {
		return nil, err
	}
	return &WikiBlockController{Controller: c}, nil
}

// GetByName returns the guild's block for name, or nil.
func (c *WikiBlockController) GetByName(ctx context.Context, guildID int64, name string) (*WikiBlockItem, error) {
	return c.FindUnique(ctx, wikiNameKey(guildID, name))
}

// GetByID returns the block with id, or nil.
func (c *WikiBlockController) GetByID(ctx context.Context, id int64) (*WikiBlockItem, error) {
	return c.FindUnique(ctx, blockIDKey(id))
}

// Insert blocks name in the guild, creating the guild row if needed.
func (c *WikiBlockController) Insert(ctx context.Context, guildID int64, name string) (*WikiBlockItem, error) {
	return c.Create(ctx, ir.IRObject{"wiki_name": ir.IRString(name)}, connectGuild(guildID))
}

// DeleteByID removes the block with id.
func (c *WikiBlockController) DeleteByID(ctx context.Context, id int64) (*WikiBlockItem, error) {
	return c.Delete(ctx, blockIDKey(id))
}

// DeleteByName unblocks name in the guild.
func (c *WikiBlockController) DeleteByName(ctx context.Context, guildID int64, name string) (*WikiBlockItem, error) {
	return c.Delete(ctx, wikiNameKey(guildID, name))
}

// RenameByID changes the blocked name of the block with id.
func (c *WikiBlockController) RenameByID(ctx context.Context, id int64, name string) (*WikiBlockItem, error) {
	return c.Update(ctx, blockIDKey(id), ir.IRObject{"wiki_name": ir.IRString(name)})
}

// ListByGuild returns the guild's blocks ordered by name.
func (c *WikiBlockController) ListByGuild(ctx context.Context, guildID int64) ([]*WikiBlockItem, error) {
	return c.FindMany(ctx, controller.Query{Where: queryir.Eq("guild_id", ir.IRInt(guildID))})
}

// CountByGuild returns how many names the guild blocks.
func (c *WikiBlockController) CountByGuild(ctx context.Context, guildID int64) (int64, error) {
	return c.Count(ctx, queryir.Eq("guild_id", ir.IRInt(guildID)))
}

// IsBlocked reports whether name is blocked in the guild.
func (c *WikiBlockController) IsBlocked(ctx context.Context, guildID int64, name string) (bool, error) {
	return c.Exists(ctx, queryir.Match(wikiNameKey(guildID, name)))
}
