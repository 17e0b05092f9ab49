package model

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cogd/internal/controller"
	"github.com/roach88/cogd/internal/store"
)

func newTestRegistry(t *testing.T) *controller.Registry {
	t.Helper()
	fsys, root := Migrations()
	client, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "model.db"), store.Options{
		Migrations:     fsys,
		MigrationsRoot: root,
	})
	require.NoError(t, err)
	reg := controller.NewRegistry(client, nil)
	t.Cleanup(func() { reg.Close() })
	return reg
}

func TestMigrationsApply(t *testing.T) {
	reg := newTestRegistry(t)
	names, err := reg.Client().AppliedMigrations(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"001_init.sql", "002_usage_stats.sql"}, names)
}

func TestWikiController(t *testing.T) {
	reg := newTestRegistry(t)
	wikis, err := NewWikiController(reg)
	require.NoError(t, err)
	ctx := context.Background()

	arch, err := wikis.Insert(ctx, 100, WikiSite{
		Name:        "archlinux",
		URL:         "https://wiki.archlinux.org/",
		ScriptPath:  "/",
		ArticlePath: "/title/$1",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(100), arch.GuildID)

	_, err = wikis.Insert(ctx, 100, WikiSite{Name: "nixos", URL: "https://wiki.nixos.org/"})
	require.NoError(t, err)

	got, err := wikis.GetByName(ctx, 100, "archlinux")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "/title/$1", got.ArticlePath)

	byID, err := wikis.GetByID(ctx, arch.ID)
	require.NoError(t, err)
	assert.Equal(t, got, byID)

	missing, err := wikis.GetByName(ctx, 200, "archlinux")
	require.NoError(t, err)
	assert.Nil(t, missing)

	list, err := wikis.ListByGuild(ctx, 100, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "archlinux", list[0].Name)
	assert.Equal(t, "nixos", list[1].Name)

	limited, err := wikis.ListByGuild(ctx, 100, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	n, err := wikis.CountByGuild(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	ok, err := wikis.ExistsInGuild(ctx, 100, "nixos")
	require.NoError(t, err)
	assert.True(t, ok)

	url := "https://archlinux.org/wiki/"
	empty := ""
	patched, err := wikis.UpdateByID(ctx, arch.ID, WikiPatch{URL: &url, ArticlePath: &empty})
	require.NoError(t, err)
	assert.Equal(t, url, patched.URL)
	assert.Equal(t, "", patched.ArticlePath)
	assert.Equal(t, "/", patched.ScriptPath)

	_, err = wikis.DeleteByName(ctx, 100, "nixos")
	require.NoError(t, err)
	_, err = wikis.DeleteByID(ctx, arch.ID)
	require.NoError(t, err)
	_, err = wikis.DeleteByID(ctx, arch.ID)
	assert.ErrorIs(t, err, controller.ErrNotFound)
}

func TestWikiBlockController(t *testing.T) {
	reg := newTestRegistry(t)
	blocks, err := NewWikiBlockController(reg)
	require.NoError(t, err)
	ctx := context.Background()

	b, err := blocks.Insert(ctx, 1, "fandom")
	require.NoError(t, err)

	_, err = blocks.Insert(ctx, 1, "fandom")
	assert.ErrorIs(t, err, controller.ErrAlreadyExists)

	blocked, err := blocks.IsBlocked(ctx, 1, "fandom")
	require.NoError(t, err)
	assert.True(t, blocked)

	renamed, err := blocks.RenameByID(ctx, b.ID, "wikia")
	require.NoError(t, err)
	assert.Equal(t, "wikia", renamed.Name)

	got, err := blocks.GetByName(ctx, 1, "wikia")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, b.ID, got.ID)

	list, err := blocks.ListByGuild(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = blocks.DeleteByName(ctx, 1, "wikia")
	require.NoError(t, err)
	n, err := blocks.CountByGuild(ctx, 1)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDeleteGuildCascades(t *testing.T) {
	reg := newTestRegistry(t)
	guilds, err := NewGuildController(reg)
	require.NoError(t, err)
	wikis, err := NewWikiController(reg)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = wikis.Insert(ctx, 5, WikiSite{Name: "atlwiki", URL: "https://atl.wiki"})
	require.NoError(t, err)

	g, err := guilds.GetGuild(ctx, 5)
	require.NoError(t, err)
	require.NotNil(t, g)

	_, err = guilds.DeleteGuild(ctx, 5)
	require.NoError(t, err)

	n, err := wikis.CountByGuild(ctx, 5)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestGuildEnsureIsIdempotent(t *testing.T) {
	reg := newTestRegistry(t)
	guilds, err := NewGuildController(reg)
	require.NoError(t, err)
	ctx := context.Background()

	for range 3 {
		g, err := guilds.Ensure(ctx, 77)
		require.NoError(t, err)
		assert.Equal(t, int64(77), g.ID)
	}
	n, err := guilds.Count(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestUsageIncrement(t *testing.T) {
	reg := newTestRegistry(t)
	usage, err := NewUsageController(reg)
	require.NoError(t, err)
	ctx := context.Background()

	for range 3 {
		_, err := usage.Increment(ctx, 1, "ping")
		require.NoError(t, err)
	}
	s, err := usage.Increment(ctx, 1, "wiki.list")
	require.NoError(t, err)
	assert.Equal(t, int64(1), s.Count)

	top, err := usage.Top(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, "ping", top[0].Command)
	assert.Equal(t, int64(3), top[0].Count)
}
