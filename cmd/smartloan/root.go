package main

import (
	"context"
	"encoding/json"
	"io"
	"os"

	"github.com/spf13/cobra"
)

// rootOptions holds the persistent flags shared by every subcommand.
type rootOptions struct {
	configPath string
	session    string
	jsonOut    bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "smartloan",
		Short: "Smart Loan configuration rule engine",
		Long: `smartloan edits Smart Loan configuration sessions. Every change runs the
dependency rules to a fixed point and is recorded in the session audit log.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", os.Getenv("SMARTLOAN_CONFIG"), "config file (YAML)")
	cmd.PersistentFlags().StringVarP(&opts.session, "session", "s", "default", "session id")
	cmd.PersistentFlags().BoolVar(&opts.jsonOut, "json", false, "print JSON instead of text")

	cmd.AddCommand(
		newParamsCmd(opts),
		newSetCmd(opts),
		newResetCmd(opts),
		newAuditCmd(opts),
		newExportCmd(opts),
		newSessionsCmd(opts),
		newRulesCmd(opts),
		newServeCmd(opts),
	)
	return cmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
