package module

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModuleID(t *testing.T) {
	root := "/srv/modules"
	tests := []struct {
		path string
		want string
	}{
		{"/srv/modules/ping.cue", "ping"},
		{"/srv/modules/utility/wiki.cue", "utility.wiki"},
		{"/srv/modules/utility/wiki/module.cue", "utility.wiki"},
		{"/srv/modules/Admin/Usage.cue", "admin.usage"},
		{"/srv/modules/café.cue", "café"},
		{"/srv/modules/module.cue", "module"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			got, err := ModuleID(root, tt.path)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ModuleID(root, "/etc/passwd.cue")
	assert.Error(t, err)
}

func TestDiscoverLexicalOrder(t *testing.T) {
	f := newFixture(t)
	f.write(t, "b.cue", `module: entry: "ok"`)
	f.write(t, "a/z.cue", `module: entry: "ok"`)
	f.write(t, "a/module.cue", `module: entry: "ok"`)
	f.write(t, ".hidden/x.cue", `module: entry: "ok"`)
	f.write(t, "notes.txt", `module: entry: "ok"`)
	f.write(t, "shared.cue", `#Common: {x: int}`)

	var ids []string
	for rec, err := range Discover(f.root, f.catalog) {
		require.NoError(t, err)
		ids = append(ids, rec.ID())
		assert.Equal(t, StateUnloaded, rec.State())
	}
	assert.Equal(t, []string{"a", "a.z", "b"}, ids)
}

func TestDiscoverStopsEarly(t *testing.T) {
	f := newFixture(t)
	f.write(t, "a.cue", `module: entry: "ok"`)
	f.write(t, "b.cue", `module: entry: "ok"`)

	n := 0
	for range Discover(f.root, f.catalog) {
		n++
		break
	}
	assert.Equal(t, 1, n)
}

func TestDiscoverBadManifestsYieldFailedRecords(t *testing.T) {
	f := newFixture(t)
	f.write(t, "noentry.cue", `module: description: "nothing to run"`)
	f.write(t, "unknown.cue", `module: entry: "missing"`)
	f.write(t, "broken.cue", `module: entry: 3`)
	f.write(t, "custom.cue", `module: {id: "renamed", entry: "ok"}`)

	got := map[string]*Record{}
	for rec, err := range Discover(f.root, f.catalog) {
		require.NoError(t, err)
		got[rec.ID()] = rec
	}
	require.Len(t, got, 4)

	assert.Equal(t, StateFailed, got["noentry"].State())
	assert.ErrorIs(t, got["noentry"].Err(), ErrMissingEntryPoint)

	assert.Equal(t, StateFailed, got["unknown"].State())
	assert.ErrorIs(t, got["unknown"].Err(), ErrMissingEntryPoint)
	require.NotNil(t, got["unknown"].Manifest(), "the compiled manifest is kept")

	assert.Equal(t, StateFailed, got["broken"].State())
	assert.ErrorIs(t, got["broken"].Err(), ErrInvalidManifest)

	require.Contains(t, got, "renamed")
	assert.Equal(t, StateUnloaded, got["renamed"].State())
}
