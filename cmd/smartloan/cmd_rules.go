package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"smartloan/internal/catalog"
	"smartloan/internal/config"
	"smartloan/pkg/domain"
)

func newRulesCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Inspect and validate rule catalogs",
	}
	cmd.AddCommand(newRulesListCmd(opts), newRulesValidateCmd(opts))
	return cmd
}

// catalogSource resolves the catalog named by args, the config file, or the
// bundled default, in that order. The returned path is empty for the default.
func catalogSource(opts *rootOptions, args []string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return "", err
	}
	return cfg.Catalog, nil
}

func readCatalog(path string) (domain.Catalog, error) {
	if path == "" {
		return catalog.Default()
	}
	return catalog.Load(path)
}

func newRulesListCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list [FILE]",
		Short: "List the dependency rules in evaluation order",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := catalogSource(opts, args)
			if err != nil {
				return err
			}
			cat, err := readCatalog(path)
			if err != nil {
				return err
			}
			type ruleRow struct {
				Name       string          `json:"name"`
				Kind       domain.RuleKind `json:"kind"`
				References []string        `json:"references"`
			}
			rows := make([]ruleRow, 0, cat.Rules.Len())
			for _, r := range cat.Rules.Rules() {
				rows = append(rows, ruleRow{Name: r.Name(), Kind: r.Kind(), References: r.References()})
			}
			if opts.jsonOut {
				return writeJSON(cmd.OutOrStdout(), rows)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for i, r := range rows {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", i+1, r.Kind, r.Name, strings.Join(r.References, ", "))
			}
			return tw.Flush()
		},
	}
}

func newRulesValidateCmd(opts *rootOptions) *cobra.Command {
	var watch bool
	cmd := &cobra.Command{
		Use:   "validate [FILE]",
		Short: "Check a catalog's parameters, rules and convergence",
		Long: `validate parses the catalog, checks every rule against the parameter
declarations and probes that each single flip from the defaults reaches a
fixed point. With --watch the file is re-validated on every change until
interrupted.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := catalogSource(opts, args)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if !watch {
				cat, err := readCatalog(path)
				if err != nil {
					return err
				}
				reportCatalog(out, path, cat, nil)
				return nil
			}
			if path == "" {
				return fmt.Errorf("--watch needs a catalog file")
			}
			ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return catalog.Watch(ctx, path, catalog.DefaultDebounce, func(cat domain.Catalog, err error) {
				reportCatalog(out, path, cat, err)
			})
		},
	}
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "re-validate whenever the file changes")
	return cmd
}

func reportCatalog(w io.Writer, path string, cat domain.Catalog, err error) {
	if path == "" {
		path = "(bundled)"
	}
	if err != nil {
		fmt.Fprintf(w, "%s: INVALID: %v\n", path, err)
		return
	}
	fmt.Fprintf(w, "%s: catalog %s OK (%d parameters, %d rules)\n", path, cat.Name, len(cat.Parameters), cat.Rules.Len())
}
