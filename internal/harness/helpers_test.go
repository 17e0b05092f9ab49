package harness

import (
	"context"
	"errors"

	"github.com/roach88/cogd/internal/dispatch"
	"github.com/roach88/cogd/internal/module"
)

// echoModule replies with its first argument.
type echoModule struct{}

func (echoModule) Setup(_ context.Context, h module.Host) error {
	out := h.Outbound()
	return h.Handle("echo", func(ctx context.Context, ev dispatch.Event) error {
		text := ev.Arg(0)
		if text == "" {
			text = "echo"
		}
		return dispatch.Reply(ctx, out, ev, text)
	})
}

// greetModule answers "hello" with its greeting setting.
type greetModule struct{}

func (greetModule) Setup(_ context.Context, h module.Host) error {
	greeting := h.Settings().String("greeting")
	if greeting == "" {
		greeting = "hi"
	}
	out := h.Outbound()
	return h.Handle("hello", func(ctx context.Context, ev dispatch.Event) error {
		return dispatch.Reply(ctx, out, ev, greeting)
	})
}

type failModule struct{}

func (failModule) Setup(context.Context, module.Host) error {
	return errors.New("refusing to start")
}

func testOptions() Options {
	c := module.NewCatalog()
	c.MustRegister("echo", func() module.Module { return echoModule{} })
	c.MustRegister("greet", func() module.Module { return greetModule{} })
	c.MustRegister("fail", func() module.Module { return failModule{} })
	return Options{Catalog: c}
}
