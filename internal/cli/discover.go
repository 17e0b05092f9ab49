package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/roach88/cogd/internal/module"
)

// NewDiscoverCommand creates the discover command.
func NewDiscoverCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "discover [module-root]",
		Short: "Check a module tree without starting a server",
		Long: `Walk a module root, compile every manifest and check each entry point
against the modules built into this binary. Nothing is loaded.

The root defaults to modules.root from the config.

Exit codes:
  0 - Every manifest is valid
  1 - At least one manifest is invalid
  2 - Command error (root not found, bad config)`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDiscover(rootOpts, args, cmd)
		},
	}
	return cmd
}

func runDiscover(opts *RootOptions, args []string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	var root string
	if len(args) == 1 {
		root = args[0]
	} else {
		cfg, err := opts.loadConfig(f)
		if err != nil {
			return err
		}
		root = cfg.Modules.Root
	}
	info, err := os.Stat(root)
	if err != nil {
		return fail(f, ExitCommandError, CodeDiscovery, "module root not found", err)
	}
	if !info.IsDir() {
		return fail(f, ExitCommandError, CodeDiscovery, "module root is not a directory", fmt.Errorf("%s", root))
	}
	f.VerboseLog("discovering modules under %s", root)

	res := DiscoverResult{Modules: []DiscoveredModule{}}
	seen := make(map[string]string)
	for rec, err := range module.Discover(root, opts.Catalog) {
		if err != nil {
			res.Errors = append(res.Errors, err.Error())
			continue
		}
		rel, relErr := filepath.Rel(root, rec.Path())
		if relErr != nil {
			rel = rec.Path()
		}
		dm := DiscoveredModule{
			ID:    rec.ID(),
			Path:  filepath.ToSlash(rel),
			Error: module.Detail(rec.Err()),
		}
		if m := rec.Manifest(); m != nil {
			dm.Entry = m.Entry
			dm.Description = m.Description
			dm.Enabled = m.Enabled
		}
		if first, dup := seen[dm.ID]; dup && dm.Error == nil {
			dm.Error = &module.ErrorDetail{
				Code:    string(module.CodeInvalidManifest),
				Message: fmt.Sprintf("id already used by %s", first),
			}
		} else if !dup {
			seen[dm.ID] = dm.Path
		}
		if dm.Error != nil {
			res.Invalid++
		}
		f.VerboseLog("  %s -> %s", dm.Path, dm.ID)
		res.Modules = append(res.Modules, dm)
	}

	if err := f.Success(res); err != nil {
		return err
	}
	if res.Invalid > 0 || len(res.Errors) > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d invalid manifest(s)", res.Invalid+len(res.Errors)))
	}
	return nil
}
