package cli

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/roach88/cogd/internal/dispatch"
	"github.com/roach88/cogd/internal/module"
)

type stubModule struct {
	event string
	fail  bool
}

func (m stubModule) Setup(_ context.Context, h module.Host) error {
	if err := h.Handle(m.event, func(context.Context, dispatch.Event) error { return nil }); err != nil {
		return err
	}
	if m.fail {
		return errors.New("settings rejected")
	}
	return nil
}

func testCatalog() *module.Catalog {
	c := module.NewCatalog()
	c.MustRegister("ping", func() module.Module { return stubModule{event: "ping"} })
	c.MustRegister("wiki", func() module.Module { return stubModule{event: "wiki.list"} })
	c.MustRegister("bad", func() module.Module { return stubModule{event: "bad", fail: true} })
	return c
}

// run executes the CLI and returns stdout, stderr and the exit code.
func run(t *testing.T, args ...string) (string, string, int) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := Execute(context.Background(), testCatalog(), args, &stdout, &stderr)
	return stdout.String(), stderr.String(), code
}
