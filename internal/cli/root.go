// Package cli implements the cogd command line: serving the bot core,
// controlling modules on a running server and checking a module tree
// offline.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/cogd/internal/config"
	"github.com/roach88/cogd/internal/module"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
	Config  string // YAML config file; empty uses defaults and env

	// Catalog lists the module entry points compiled into the binary.
	Catalog *module.Catalog
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the cogd root command.
func NewRootCommand(catalog *module.Catalog) *cobra.Command {
	if catalog == nil {
		catalog = module.NewCatalog()
	}
	opts := &RootOptions{Catalog: catalog}

	cmd := &cobra.Command{
		Use:   "cogd",
		Short: "cogd - modular chat bot core",
		Long: `cogd runs chat-bot feature modules declared by CUE manifests.

Modules are discovered under a root directory, loaded in order and can be
unloaded or reloaded at runtime through the admin API.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
		SilenceUsage: true,
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVarP(&opts.Config, "config", "c", "", "path to a YAML config file")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewModulesCommand(opts))
	cmd.AddCommand(NewDiscoverCommand(opts))

	return cmd
}

// Execute runs the command line with args and returns the process exit
// code. Commands report their own failures and return an *ExitError; any
// other error (bad flags, unknown command) is written to stderr.
func Execute(ctx context.Context, catalog *module.Catalog, args []string, stdout, stderr io.Writer) int {
	cmd := NewRootCommand(catalog)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SilenceErrors = true

	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	fmt.Fprintf(stderr, "Error: %v\n", err)
	return ExitCommandError
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

func (o *RootOptions) loadConfig(f *OutputFormatter) (*config.Config, error) {
	cfg, err := config.Load(o.Config)
	if err != nil {
		return nil, fail(f, ExitCommandError, CodeConfig, "failed to load config", err)
	}
	f.VerboseLog("config loaded from %s", describeConfig(o.Config))
	return cfg, nil
}

func describeConfig(path string) string {
	if path == "" {
		return "defaults and environment"
	}
	return path
}

// fail reports err through f and returns the matching exit error.
func fail(f *OutputFormatter, exit int, code, message string, err error) error {
	ee := WrapExitError(exit, message, err)
	_ = f.Error(code, ee.Error(), nil)
	return ee
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}
