package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/cogd/internal/admin"
	"github.com/roach88/cogd/internal/module"
)

// ModulesOptions holds flags shared by the modules subcommands.
type ModulesOptions struct {
	*RootOptions
	AdminURL string
}

// NewModulesCommand creates the modules command group. Every subcommand
// talks to a running server through its admin API.
func NewModulesCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ModulesOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "modules",
		Short: "Inspect and control modules on a running server",
		Long: `Inspect and control modules on a running cogd server.

The server is reached at --admin-url, or at admin.host:admin.port from the
config when the flag is not set.

Exit codes:
  0 - The operation succeeded
  1 - The operation failed for at least one module
  2 - Command error (bad config, server unreachable)`,
	}
	cmd.PersistentFlags().StringVar(&opts.AdminURL, "admin-url", "", "admin API base URL, e.g. http://127.0.0.1:8089")

	cmd.AddCommand(&cobra.Command{
		Use:           "list",
		Short:         "List every known module and its state",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, c *admin.Client, f *OutputFormatter) error {
				mods, err := c.List(ctx)
				if err != nil {
					return opts.apiFailure(f, err)
				}
				return f.Success(ModuleList{Modules: mods})
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:           "show <id>",
		Short:         "Show one module with its recent transitions",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, c *admin.Client, f *OutputFormatter) error {
				snap, err := c.Get(ctx, args[0])
				if err != nil {
					return opts.apiFailure(f, err)
				}
				return f.Success(ModuleDetail{Snapshot: snap})
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:           "load-all",
		Short:         "Discover and load every enabled module",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, c *admin.Client, f *OutputFormatter) error {
				report, err := c.LoadAll(ctx)
				if err != nil {
					return opts.apiFailure(f, err)
				}
				res := newLoadAllResult(report)
				if err := f.Success(res); err != nil {
					return err
				}
				if res.Failed > 0 || len(res.Errors) > 0 {
					return NewExitError(ExitFailure, fmt.Sprintf("%d module(s) failed to load", res.Failed))
				}
				return nil
			})
		},
	})

	ops := []struct {
		name  string
		short string
		call  func(*admin.Client, context.Context, string) (module.Result, error)
	}{
		{"load", "Load a module", (*admin.Client).Load},
		{"unload", "Unload a module and remove its handlers", (*admin.Client).Unload},
		{"reload", "Unload a module, re-read its manifest and load it again", (*admin.Client).Reload},
	}
	for _, op := range ops {
		cmd.AddCommand(&cobra.Command{
			Use:           op.name + " <id>",
			Short:         op.short,
			Args:          cobra.ExactArgs(1),
			SilenceUsage:  true,
			SilenceErrors: true,
			RunE: func(cmd *cobra.Command, args []string) error {
				return opts.run(cmd, func(ctx context.Context, c *admin.Client, f *OutputFormatter) error {
					res, err := op.call(c, ctx, args[0])
					if err != nil {
						return opts.apiFailure(f, err)
					}
					out := OpResult{Op: op.name, Result: res}
					if !res.OK {
						code := module.CodeModuleLoadFailure
						if res.Error != nil {
							code = module.Code(res.Error.Code)
						}
						msg := fmt.Sprintf("%s %s failed", op.name, res.ID)
						if f.Format == "json" {
							_ = f.Error(string(code), msg, out)
						} else {
							_ = out.WriteText(f.Writer)
						}
						return NewExitError(ExitFailure, msg)
					}
					return f.Success(out)
				})
			},
		})
	}

	return cmd
}

// run builds a client for the configured server and calls fn.
func (o *ModulesOptions) run(cmd *cobra.Command, fn func(context.Context, *admin.Client, *OutputFormatter) error) error {
	f := o.formatter(cmd)

	base := o.AdminURL
	if base == "" {
		cfg, err := o.loadConfig(f)
		if err != nil {
			return err
		}
		base = "http://" + cfg.Admin.Addr()
	}
	c, err := admin.NewClient(base, nil)
	if err != nil {
		return fail(f, ExitCommandError, CodeConfig, "bad admin url", err)
	}
	f.VerboseLog("admin api: %s", base)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return fn(ctx, c, f)
}

// apiFailure reports a request that got no usable answer. A response the
// server sent is a failure; no response at all is a command error.
func (o *ModulesOptions) apiFailure(f *OutputFormatter, err error) error {
	var apiErr *admin.APIError
	if errors.As(err, &apiErr) {
		return fail(f, ExitFailure, CodeAPI, "request failed", err)
	}
	return fail(f, ExitCommandError, CodeUnreachable, "admin api unreachable", err)
}
