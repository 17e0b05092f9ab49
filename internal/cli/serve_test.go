package cli

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cogd/internal/testutil"
)

// serveFor runs serve until the timeout cancels it.
func serveFor(t *testing.T, d time.Duration, args ...string) (string, int) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	var stdout, stderr bytes.Buffer
	code := Execute(ctx, testCatalog(), args, &stdout, &stderr)
	return stdout.String(), code
}

func TestServeFromConfigFile(t *testing.T) {
	dir := t.TempDir()
	root := filepath.Join(dir, "modules")
	testutil.WriteFile(t, root, "ping/module.cue", `module: entry: "ping"`)
	cfgPath := testutil.WriteFile(t, dir, "cogd.yaml", fmt.Sprintf(`store:
  path: %s
modules:
  root: %s
admin:
  enabled: false
logging:
  level: error
`, filepath.Join(dir, "cogd.db"), root))

	stdout, code := serveFor(t, 300*time.Millisecond, "serve", "--config", cfgPath)
	assert.Equal(t, ExitSuccess, code)
	assert.Contains(t, stdout, "cogd started")
}

func TestServeFlagsOverrideDefaults(t *testing.T) {
	dir := t.TempDir()
	root := filepath.Join(dir, "modules")
	testutil.WriteFile(t, root, "ping.cue", `module: entry: "ping"`)

	stdout, code := serveFor(t, 300*time.Millisecond, "--format", "json", "serve",
		"--db", filepath.Join(dir, "cogd.db"),
		"--modules", root,
		"--no-admin")
	require.Equal(t, ExitSuccess, code)
	assert.Equal(t, `{"status":"ok","data":{"stopped":"ok"}}`+"\n", stdout)
	assert.FileExists(t, filepath.Join(dir, "cogd.db"))
}

func TestServeMissingConfig(t *testing.T) {
	stdout, _, code := run(t, "serve", "--config", filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Equal(t, ExitCommandError, code)
	assert.Contains(t, stdout, "Error [CONFIG]: failed to load config")
}
