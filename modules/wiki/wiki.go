// Package wiki keeps a per-guild registry of MediaWiki sites and links to
// their articles. Sites listed in the manifest settings are available in
// every guild; guilds add their own and can block names they do not want.
package wiki

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/roach88/cogd/internal/controller"
	"github.com/roach88/cogd/internal/dispatch"
	"github.com/roach88/cogd/internal/logging"
	"github.com/roach88/cogd/internal/model"
	"github.com/roach88/cogd/internal/module"
)

// Entry is the catalog name of this module.
const Entry = "wiki"

const defaultListLimit = 25

const (
	msgGuildOnly  = "This command only works in a server."
	msgInternal   = "An error occurred while updating the wiki registry."
	msgNoneListed = "No wikis are currently registered."
	usageAdd      = "Usage: wiki add <name> <url> [article_path] [script_path]"
	usageName     = "Usage: wiki %s <name>"
	usageLink     = "Usage: wiki link <name> <title>"
)

type wikiModule struct {
	defaults map[string]Site
	limit    int

	wikis  *model.WikiController
	blocks *model.WikiBlockController
	out    dispatch.Outbound
	logger *logging.Logger
}

// New builds the module.
func New() module.Module { return &wikiModule{} }

func (m *wikiModule) Setup(ctx context.Context, host module.Host) error {
	reg := host.Controllers()
	if reg == nil {
		return errors.New("wiki needs the controller registry")
	}
	var err error
	if m.wikis, err = model.NewWikiController(reg); err != nil {
		return err
	}
	if m.blocks, err = model.NewWikiBlockController(reg); err != nil {
		return err
	}

	settings := host.Settings()
	sites, err := sitesFromSettings(settings)
	if err != nil {
		return err
	}
	m.defaults = make(map[string]Site, len(sites))
	for _, s := range sites {
		m.defaults[s.Name] = s
	}
	m.limit = defaultListLimit
	if n := settings.Int("list_limit"); n > 0 {
		m.limit = int(n)
	}
	m.out = host.Outbound()
	m.logger = host.Logger()
	m.logger.Info(ctx, "registered default wikis", zap.Int("count", len(m.defaults)))

	handlers := []struct {
		name string
		fn   dispatch.Handler
	}{
		{"wiki.list", m.list},
		{"wiki.add", m.add},
		{"wiki.remove", m.remove},
		{"wiki.block", m.block},
		{"wiki.unblock", m.unblock},
		{"wiki.link", m.link},
	}
	for _, h := range handlers {
		if err := host.Handle(h.name, h.fn); err != nil {
			return err
		}
	}
	return nil
}

func (m *wikiModule) reply(ctx context.Context, ev dispatch.Event, format string, args ...any) error {
	return dispatch.Reply(ctx, m.out, ev, fmt.Sprintf(format, args...))
}

// fail tells the user something went wrong and returns err for the
// dispatcher to log.
func (m *wikiModule) fail(ctx context.Context, ev dispatch.Event, err error) error {
	_ = dispatch.Reply(ctx, m.out, ev, msgInternal)
	return err
}

func (m *wikiModule) list(ctx context.Context, ev dispatch.Event) error {
	names := make(map[string]bool, len(m.defaults))
	for name := range m.defaults {
		names[name] = true
	}
	if ev.GuildID != 0 {
		own, err := m.wikis.ListByGuild(ctx, ev.GuildID, m.limit)
		if err != nil {
			return m.fail(ctx, ev, err)
		}
		for _, w := range own {
			names[w.Name] = true
		}
		blocked, err := m.blocks.ListByGuild(ctx, ev.GuildID)
		if err != nil {
			return m.fail(ctx, ev, err)
		}
		for _, b := range blocked {
			delete(names, b.Name)
		}
	}
	if len(names) == 0 {
		return m.reply(ctx, ev, msgNoneListed)
	}

	sorted := make([]string, 0, len(names))
	for name := range names {
		sorted = append(sorted, name)
	}
	sort.Strings(sorted)
	return m.reply(ctx, ev, "Registered wikis: `%s` (total: %d)", strings.Join(sorted, " - "), len(sorted))
}

func (m *wikiModule) add(ctx context.Context, ev dispatch.Event) error {
	if ev.GuildID == 0 {
		return m.reply(ctx, ev, msgGuildOnly)
	}
	name, rawURL := normalizeName(ev.Arg(0)), ev.Arg(1)
	if name == "" || rawURL == "" {
		return m.reply(ctx, ev, usageAdd)
	}
	u, err := normalizeURL(rawURL)
	if err != nil {
		return m.reply(ctx, ev, "That does not look like a wiki address: %s", rawURL)
	}

	blocked, err := m.blocks.IsBlocked(ctx, ev.GuildID, name)
	if err != nil {
		return m.fail(ctx, ev, err)
	}
	if blocked {
		return m.reply(ctx, ev, "Wiki `%s` is blocked in this server.", name)
	}
	if _, ok := m.defaults[name]; ok {
		return m.reply(ctx, ev, "Wiki `%s` is already registered.", name)
	}

	_, err = m.wikis.Insert(ctx, ev.GuildID, model.WikiSite{
		Name:        name,
		URL:         u,
		ArticlePath: ev.Arg(2),
		ScriptPath:  ev.Arg(3),
	})
	switch {
	case errors.Is(err, controller.ErrAlreadyExists):
		return m.reply(ctx, ev, "Wiki `%s` is already registered.", name)
	case err != nil:
		return m.fail(ctx, ev, err)
	}
	return m.reply(ctx, ev, "Registered wiki `%s` (%s).", name, u)
}

func (m *wikiModule) remove(ctx context.Context, ev dispatch.Event) error {
	if ev.GuildID == 0 {
		return m.reply(ctx, ev, msgGuildOnly)
	}
	name := normalizeName(ev.Arg(0))
	if name == "" {
		return m.reply(ctx, ev, usageName, "remove")
	}
	_, err := m.wikis.DeleteByName(ctx, ev.GuildID, name)
	switch {
	case controller.IsNotFound(err):
		if _, ok := m.defaults[name]; ok {
			return m.reply(ctx, ev, "Wiki `%s` is built in; block it instead.", name)
		}
		return m.reply(ctx, ev, "Wiki `%s` is not registered in this server.", name)
	case err != nil:
		return m.fail(ctx, ev, err)
	}
	return m.reply(ctx, ev, "Removed wiki `%s`.", name)
}

func (m *wikiModule) block(ctx context.Context, ev dispatch.Event) error {
	if ev.GuildID == 0 {
		return m.reply(ctx, ev, msgGuildOnly)
	}
	name := normalizeName(ev.Arg(0))
	if name == "" {
		return m.reply(ctx, ev, usageName, "block")
	}
	_, err := m.blocks.Insert(ctx, ev.GuildID, name)
	switch {
	case errors.Is(err, controller.ErrAlreadyExists):
		return m.reply(ctx, ev, "Wiki `%s` is already blocked.", name)
	case err != nil:
		return m.fail(ctx, ev, err)
	}
	return m.reply(ctx, ev, "Blocked wiki `%s`.", name)
}

func (m *wikiModule) unblock(ctx context.Context, ev dispatch.Event) error {
	if ev.GuildID == 0 {
		return m.reply(ctx, ev, msgGuildOnly)
	}
	name := normalizeName(ev.Arg(0))
	if name == "" {
		return m.reply(ctx, ev, usageName, "unblock")
	}
	_, err := m.blocks.DeleteByName(ctx, ev.GuildID, name)
	switch {
	case controller.IsNotFound(err):
		return m.reply(ctx, ev, "Wiki `%s` is not blocked.", name)
	case err != nil:
		return m.fail(ctx, ev, err)
	}
	return m.reply(ctx, ev, "Unblocked wiki `%s`.", name)
}

func (m *wikiModule) link(ctx context.Context, ev dispatch.Event) error {
	name := normalizeName(ev.Arg(0))
	title := strings.Join(ev.Args[min(1, len(ev.Args)):], " ")
	if name == "" || strings.TrimSpace(title) == "" {
		return m.reply(ctx, ev, usageLink)
	}

	site, found, err := m.lookup(ctx, ev.GuildID, name)
	if err != nil {
		return m.fail(ctx, ev, err)
	}
	if !found {
		return m.reply(ctx, ev, "Wiki `%s` is not registered. Use `wiki list` to see available wikis.", name)
	}
	return m.reply(ctx, ev, "%s", site.ArticleURL(title))
}

// lookup finds name among the guild's own wikis, then the defaults. Names
// the guild blocked are not found.
func (m *wikiModule) lookup(ctx context.Context, guildID int64, name string) (Site, bool, error) {
	if guildID != 0 {
		blocked, err := m.blocks.IsBlocked(ctx, guildID, name)
		if err != nil || blocked {
			return Site{}, false, err
		}
		w, err := m.wikis.GetByName(ctx, guildID, name)
		if err != nil {
			return Site{}, false, err
		}
		if w != nil {
			return siteFromModel(w), true, nil
		}
	}
	s, ok := m.defaults[name]
	return s, ok, nil
}
