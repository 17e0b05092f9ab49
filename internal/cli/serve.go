package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/roach88/cogd/internal/app"
	"github.com/roach88/cogd/internal/config"
	"github.com/roach88/cogd/internal/logging"
)

// ServeOptions holds flags for the serve command. Set flags override the
// config file and environment.
type ServeOptions struct {
	*RootOptions
	Database    string
	ModulesRoot string
	Watch       bool
	NoAdmin     bool
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Load modules and handle events until interrupted",
		Long: `Open the database, load every enabled module under the module root and
dispatch events until SIGINT or SIGTERM. Modules are unloaded on the way
out.

Example:
  cogd serve --config cogd.yaml
  cogd serve --db ./cogd.db --modules ./modules --watch
  COGD_GATEWAY_ENABLED=true cogd serve`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (overrides store.path)")
	cmd.Flags().StringVar(&opts.ModulesRoot, "modules", "", "module root directory (overrides modules.root)")
	cmd.Flags().BoolVar(&opts.Watch, "watch", false, "reload modules when their manifests change")
	cmd.Flags().BoolVar(&opts.NoAdmin, "no-admin", false, "do not start the admin API")

	return cmd
}

func (o *ServeOptions) apply(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("db") {
		cfg.Store.Path = o.Database
	}
	if cmd.Flags().Changed("modules") {
		cfg.Modules.Root = o.ModulesRoot
	}
	if cmd.Flags().Changed("watch") {
		cfg.Modules.Watch = o.Watch
	}
	if o.NoAdmin {
		cfg.Admin.Enabled = false
	}
	if o.Verbose {
		cfg.Logging.Level = "debug"
	}
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	cfg, err := opts.loadConfig(f)
	if err != nil {
		return err
	}
	opts.apply(cmd, cfg)

	logger, err := logging.NewLogger(&cfg.Logging)
	if err != nil {
		return fail(f, ExitCommandError, CodeConfig, "failed to create logger", err)
	}
	defer func() { _ = logger.Sync() }()

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, opts.Catalog, logger)
	if err != nil {
		return fail(f, ExitCommandError, CodeConfig, "failed to start", err)
	}

	logger.Info(ctx, "cogd starting",
		zap.String("store.path", cfg.Store.Path),
		zap.String("modules.root", cfg.Modules.Root),
		zap.Strings("entries", opts.Catalog.Entries()))
	if opts.Format == "text" {
		fmt.Fprintln(cmd.OutOrStdout(), "cogd started. Press Ctrl-C to stop.")
	}

	if err := a.Run(ctx); err != nil {
		return fail(f, ExitFailure, CodeShutdown, "cogd stopped with errors", err)
	}
	logger.Info(ctx, "cogd stopped")
	if opts.Format == "json" {
		return f.Success(map[string]string{"stopped": "ok"})
	}
	return nil
}
