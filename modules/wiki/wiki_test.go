package wiki

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cogd/internal/dispatch"
	"github.com/roach88/cogd/internal/model"
	"github.com/roach88/cogd/internal/module"
	"github.com/roach88/cogd/internal/testutil"
)

const manifest = `module: {
	entry: "wiki"
	settings: defaults: [
		{name: "nixos", url: "https://wiki.nixos.org/"},
		{name: "archlinux", url: "https://wiki.archlinux.org/", article_path: "/title/$1", script_path: "/"},
	]
}`

const guild = int64(1001)

func newEnv(t *testing.T) *testutil.ModuleEnv {
	t.Helper()
	c := module.NewCatalog()
	c.MustRegister(Entry, New)
	return testutil.NewModuleEnv(t, c, map[string]string{"wiki.cue": manifest})
}

func ask(t *testing.T, env *testutil.ModuleEnv, name string, args ...string) string {
	t.Helper()
	return env.Ask(t, dispatch.Event{Name: name, GuildID: guild, ChannelID: "c1", Args: args})
}

func TestSetupRegistersHandlers(t *testing.T) {
	env := newEnv(t)
	snap, ok := env.Manager.Get("wiki")
	require.True(t, ok)
	assert.Equal(t, module.StateLoaded, snap.State)
	assert.Equal(t, []string{"wiki.add", "wiki.block", "wiki.link", "wiki.list", "wiki.remove", "wiki.unblock"}, snap.Handlers)
}

func TestBadSettingsFailTheLoad(t *testing.T) {
	c := module.NewCatalog()
	c.MustRegister(Entry, New)
	root := t.TempDir()
	testutil.WriteFile(t, root, "wiki.cue", `module: {entry: "wiki", settings: defaults: [{url: "x.org"}]}`)

	d := dispatch.New()
	mgr, err := module.NewManager(module.Options{Root: root, Catalog: c, Router: d, Registry: testutil.NewRegistry(t)})
	require.NoError(t, err)

	report := mgr.LoadAll(context.Background())
	require.Error(t, report.Err())
	assert.ErrorIs(t, report.Err(), module.ErrModuleLoadFailure)
	assert.Zero(t, d.Handlers("wiki.list"), "handlers registered before the failure are removed")
}

func TestListIncludesDefaults(t *testing.T) {
	env := newEnv(t)
	assert.Equal(t, "Registered wikis: `archlinux - nixos` (total: 2)", ask(t, env, "wiki.list"))
}

func TestAddListRemove(t *testing.T) {
	env := newEnv(t)

	assert.Equal(t, "Registered wiki `gentoo` (https://wiki.gentoo.org).", ask(t, env, "wiki.add", "Gentoo", "wiki.gentoo.org"))
	assert.Equal(t, "Wiki `gentoo` is already registered.", ask(t, env, "wiki.add", "gentoo", "https://wiki.gentoo.org"))
	assert.Equal(t, "Wiki `nixos` is already registered.", ask(t, env, "wiki.add", "nixos", "https://nixos.wiki"))
	assert.Equal(t, usageAdd, ask(t, env, "wiki.add", "only-a-name"))

	assert.Equal(t, "Registered wikis: `archlinux - gentoo - nixos` (total: 3)", ask(t, env, "wiki.list"))

	wikis, err := model.NewWikiController(env.Registry)
	require.NoError(t, err)
	stored, err := wikis.GetByName(context.Background(), guild, "gentoo")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, guild, stored.GuildID)

	assert.Equal(t, "Removed wiki `gentoo`.", ask(t, env, "wiki.remove", "gentoo"))
	assert.Equal(t, "Wiki `gentoo` is not registered in this server.", ask(t, env, "wiki.remove", "gentoo"))
	assert.Equal(t, "Wiki `nixos` is built in; block it instead.", ask(t, env, "wiki.remove", "nixos"))
}

func TestBlockHidesWikis(t *testing.T) {
	env := newEnv(t)

	assert.Equal(t, "Blocked wiki `nixos`.", ask(t, env, "wiki.block", "nixos"))
	assert.Equal(t, "Wiki `nixos` is already blocked.", ask(t, env, "wiki.block", "NixOS"))
	assert.Equal(t, "Registered wikis: `archlinux` (total: 1)", ask(t, env, "wiki.list"))
	assert.Contains(t, ask(t, env, "wiki.link", "nixos", "Flakes"), "is not registered")
	assert.Equal(t, "Wiki `nixos` is blocked in this server.", ask(t, env, "wiki.add", "nixos", "nixos.wiki"))

	assert.Equal(t, "Unblocked wiki `nixos`.", ask(t, env, "wiki.unblock", "nixos"))
	assert.Equal(t, "Wiki `nixos` is not blocked.", ask(t, env, "wiki.unblock", "nixos"))
	assert.Equal(t, "https://wiki.nixos.org/wiki/Flakes", ask(t, env, "wiki.link", "nixos", "Flakes"))
}

func TestBlocksAreGuildScoped(t *testing.T) {
	env := newEnv(t)
	ask(t, env, "wiki.block", "archlinux")

	other := env.Ask(t, dispatch.Event{Name: "wiki.list", GuildID: 2002})
	assert.Equal(t, "Registered wikis: `archlinux - nixos` (total: 2)", other)
}

func TestLink(t *testing.T) {
	env := newEnv(t)
	assert.Equal(t, "https://wiki.archlinux.org/title/Network_configuration",
		ask(t, env, "wiki.link", "archlinux", "Network", "configuration"))

	ask(t, env, "wiki.add", "local", "http://localhost:8080", "/index.php/$1")
	assert.Equal(t, "http://localhost:8080/index.php/Main_Page", ask(t, env, "wiki.link", "local", "Main Page"))

	assert.Equal(t, usageLink, ask(t, env, "wiki.link", "archlinux"))
}

func TestGuildOnlyCommands(t *testing.T) {
	env := newEnv(t)
	for _, name := range []string{"wiki.add", "wiki.remove", "wiki.block", "wiki.unblock"} {
		got := env.Ask(t, dispatch.Event{Name: name, Args: []string{"x", "y.org"}})
		assert.Equal(t, msgGuildOnly, got, name)
	}
	assert.Equal(t, "Registered wikis: `archlinux - nixos` (total: 2)", env.Ask(t, dispatch.Event{Name: "wiki.list"}))
}

func TestUnloadedWikiStopsAnswering(t *testing.T) {
	env := newEnv(t)
	require.NoError(t, env.Manager.Unload(context.Background(), "wiki"))
	assert.Zero(t, env.Dispatcher.Handlers("wiki.list"))
}
