package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cogd/internal/testutil"
)

func newGoldie(t *testing.T) *goldie.Goldie {
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

func moduleTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	testutil.WriteFile(t, root, "ping/module.cue", `module: {entry: "ping", description: "Replies pong"}`)
	testutil.WriteFile(t, root, "wiki.cue", `module: {entry: "wiki", enabled: false}`)
	testutil.WriteFile(t, root, "broken.cue", `module: {entry: "nope"}`)
	testutil.WriteFile(t, root, "notes.txt", "not a manifest")
	testutil.WriteFile(t, root, "shared.cue", `#Site: {name: string}`)
	return root
}

func TestDiscoverJSON(t *testing.T) {
	stdout, _, code := run(t, "--format", "json", "discover", moduleTree(t))
	assert.Equal(t, ExitFailure, code, "broken.cue names an unknown entry")
	newGoldie(t).Assert(t, "discover_json", []byte(stdout))
}

func TestDiscoverText(t *testing.T) {
	stdout, _, code := run(t, "discover", moduleTree(t))
	assert.Equal(t, ExitFailure, code)
	assert.Contains(t, stdout, "ID")
	assert.Contains(t, stdout, "ping/module.cue")
	assert.Contains(t, stdout, "MISSING_ENTRY_POINT")
	assert.Contains(t, stdout, "3 module(s), 1 invalid")
}

func TestDiscoverValidTree(t *testing.T) {
	root := t.TempDir()
	testutil.WriteFile(t, root, "ping.cue", `module: entry: "ping"`)

	stdout, _, code := run(t, "--format", "json", "discover", root)
	require.Equal(t, ExitSuccess, code)

	var resp struct {
		Status string         `json:"status"`
		Data   DiscoverResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, "ok", resp.Status)
	require.Len(t, resp.Data.Modules, 1)
	assert.Equal(t, "ping", resp.Data.Modules[0].ID)
	assert.Zero(t, resp.Data.Invalid)
}

func TestDiscoverDuplicateIDs(t *testing.T) {
	root := t.TempDir()
	testutil.WriteFile(t, root, "a.cue", `module: {id: "same", entry: "ping"}`)
	testutil.WriteFile(t, root, "b.cue", `module: {id: "same", entry: "wiki"}`)

	stdout, _, code := run(t, "--format", "json", "discover", root)
	assert.Equal(t, ExitFailure, code)

	var resp struct {
		Data DiscoverResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	require.Len(t, resp.Data.Modules, 2)
	assert.Nil(t, resp.Data.Modules[0].Error)
	require.NotNil(t, resp.Data.Modules[1].Error)
	assert.Equal(t, "id already used by a.cue", resp.Data.Modules[1].Error.Message)
}

func TestDiscoverMissingRoot(t *testing.T) {
	stdout, _, code := run(t, "discover", filepath.Join(t.TempDir(), "nope"))
	assert.Equal(t, ExitCommandError, code)
	assert.Contains(t, stdout, "Error [DISCOVERY]: module root not found")
}

func TestDiscoverRootFromConfig(t *testing.T) {
	root := t.TempDir()
	testutil.WriteFile(t, root, "mods/ping.cue", `module: entry: "ping"`)
	cfg := testutil.WriteFile(t, root, "cogd.yaml", "modules:\n  root: "+filepath.Join(root, "mods")+"\n")

	stdout, _, code := run(t, "--config", cfg, "discover")
	assert.Equal(t, ExitSuccess, code)
	assert.Contains(t, stdout, "1 module(s), 0 invalid")
}
