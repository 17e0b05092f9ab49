package model

import (
	"context"

	"github.com/roach88/cogd/internal/controller"
	"github.com/roach88/cogd/internal/ir"
	"github.com/roach88/cogd/internal/queryir"
)

// Wiki is a MediaWiki site registered for a guild.
type Wiki struct {
	ID          int64
	Name        string
	URL         string
	ScriptPath  string
	ArticlePath string
	GuildID     int64
}

var wikiSchema = &controller.Schema{
	Name:      "Wiki",
	Table:     "wikis",
	Key:       []string{"wiki_id"},
	Unique:    [][]string{{"wiki_name", "guild_id"}},
	Columns:   []string{"wiki_id", "wiki_name", "wiki_url", "wiki_script_path", "wiki_article_path", "guild_id"},
	Generated: []string{"wiki_id"},
	Required:  []string{"wiki_name", "wiki_url", "guild_id"},
	Relations: []controller.Relation{
		{Field: "guild_id", Target: "guilds", TargetKey: "guild_id"},
	},
	DefaultOrder: []queryir.OrderBy{{Field: "wiki_name"}},
}

func (*Wiki) Schema() *controller.Schema { return wikiSchema }

func (w *Wiki) Fields() ir.IRObject {
	return ir.IRObject{
		"wiki_id":           keyOrNull(w.ID),
		"wiki_name":         ir.IRString(w.Name),
		"wiki_url":          ir.IRString(w.URL),
		"wiki_script_path":  orNull(w.ScriptPath),
		"wiki_article_path": orNull(w.ArticlePath),
		"guild_id":          keyOrNull(w.GuildID),
	}
}

func (w *Wiki) Scan(row ir.IRObject) (err error) {
	if w.ID, err = intColumn(row, "wiki_id"); err != nil {
		return err
	}
	if w.Name, err = stringColumn(row, "wiki_name"); err != nil {
		return err
	}
	if w.URL, err = stringColumn(row, "wiki_url"); err != nil {
		return err
	}
	if w.ScriptPath, err = nullableString(row, "wiki_script_path"); err != nil {
		return err
	}
	if w.ArticlePath, err = nullableString(row, "wiki_article_path"); err != nil {
		return err
	}
	w.GuildID, err = intColumn(row, "guild_id")
	return err
}

// WikiSite is the data needed to register a wiki.
type WikiSite struct {
	Name        string
	URL         string
	ScriptPath  string
	ArticlePath string
}

func (s WikiSite) values() ir.IRObject {
	v := ir.IRObject{
		"wiki_name": ir.IRString(s.Name),
		"wiki_url":  ir.IRString(s.URL),
	}
	if s.ScriptPath != "" {
		v["wiki_script_path"] = ir.IRString(s.ScriptPath)
	}
	if s.ArticlePath != "" {
		v["wiki_article_path"] = ir.IRString(s.ArticlePath)
	}
	return v
}

// WikiPatch is a partial update. Nil fields are left unchanged.
type WikiPatch struct {
	Name        *string
	URL         *string
	ScriptPath  *string
	ArticlePath *string
}

func (p WikiPatch) values() ir.IRObject {
	v := ir.IRObject{}
	set := func(col string, s *string) {
		if s != nil {
			v[col] = orNull(*s)
		}
	}
	set("wiki_name", p.Name)
	set("wiki_url", p.URL)
	set("wiki_script_path", p.ScriptPath)
	set("wiki_article_path", p.ArticlePath)
	return v
}

func wikiNameKey(guildID int64, name string) ir.IRObject {
	return ir.IRObject{"wiki_name": ir.IRString(name), "guild_id": ir.IRInt(guildID)}
}

func wikiIDKey(id int64) ir.IRObject {
	return ir.IRObject{"wiki_id": ir.IRInt(id)}
}

// WikiController is the guild-scoped data-access object for wikis.
type WikiController struct {
	*controller.Controller[Wiki, *Wiki]
}

// NewWikiController binds the registry's wiki controller.
func NewWikiController(reg *controller.Registry) (*WikiController, error) {
	c, err := controller.Get[Wiki](reg)
	if err != nil {
		return nil, err
	}
	return &WikiController{Controller: c}, nil
}

// GetByName returns the guild's wiki called name, or nil.
func (c *WikiController) GetByName(ctx context.Context, guildID int64, name string) (*Wiki, error) {
	return c.FindUnique(ctx, wikiNameKey(guildID, name))
}

// GetByID returns the wiki with id, or nil.
func (c *WikiController) GetByID(ctx context.Context, id int64) (*Wiki, error) {
	return c.FindUnique(ctx, wikiIDKey(id))
}

// Insert registers site for the guild, creating the guild row if needed.
// A second wiki with the same name in the guild is ErrAlreadyExists.
func (c *WikiController) Insert(ctx context.Context, guildID int64, site WikiSite) (*Wiki, error) {
	return c.Create(ctx, site.values(), connectGuild(guildID))
}

// DeleteByID removes the wiki with id.
func (c *WikiController) DeleteByID(ctx context.Context, id int64) (*Wiki, error) {
	return c.Delete(ctx, wikiIDKey(id))
}

// DeleteByName removes the guild's wiki called name.
func (c *WikiController) DeleteByName(ctx context.Context, guildID int64, name string) (*Wiki, error) {
	return c.Delete(ctx, wikiNameKey(guildID, name))
}

// UpdateByID applies patch to the wiki with id.
func (c *WikiController) UpdateByID(ctx context.Context, id int64, patch WikiPatch) (*Wiki, error) {
	return c.Update(ctx, wikiIDKey(id), patch.values())
}

// ListByGuild returns the guild's wikis ordered by name. limit <= 0 means
// no limit.
func (c *WikiController) ListByGuild(ctx context.Context, guildID int64, limit int) ([]*Wiki, error) {
	return c.FindMany(ctx, controller.Query{
		Where: queryir.Eq("guild_id", ir.IRInt(guildID)),
		Limit: max(limit, 0),
	})
}

// CountByGuild returns how many wikis the guild has.
func (c *WikiController) CountByGuild(ctx context.Context, guildID int64) (int64, error) {
	return c.Count(ctx, queryir.Eq("guild_id", ir.IRInt(guildID)))
}

// ExistsInGuild reports whether the guild has a wiki called name.
func (c *WikiController) ExistsInGuild(ctx context.Context, guildID int64, name string) (bool, error) {
	return c.Exists(ctx, queryir.Match(wikiNameKey(guildID, name)))
}
