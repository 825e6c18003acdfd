package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"smartloan/internal/blob"
	"smartloan/internal/core"
	"smartloan/pkg/domain"
)

const defaultActor = "cli"

func newParamsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "params",
		Short: "List the session parameters by category",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				params, err := a.svc.Parameters(ctx, opts.session)
				if err != nil {
					return err
				}
				groups := core.GroupByCategory(params)
				if opts.jsonOut {
					return writeJSON(cmd.OutOrStdout(), groups)
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				for _, g := range groups {
					fmt.Fprintln(tw, g.Category)
					for _, p := range g.Parameters {
						access := ""
						if !p.Mutable {
							access = "read-only"
						}
						fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\n", p.Key, p.Value, p.Label, access)
					}
				}
				return tw.Flush()
			})
		},
	}
}

func newSetCmd(opts *rootOptions) *cobra.Command {
	actor := defaultActor
	cmd := &cobra.Command{
		Use:   "set KEY VALUE",
		Short: "Change one parameter and apply its cascade",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				entry, err := a.svc.ApplyString(ctx, opts.session, args[0], args[1], actor)
				if err != nil {
					return err
				}
				return printMutation(cmd.OutOrStdout(), opts.jsonOut, entry)
			})
		},
	}
	cmd.Flags().StringVar(&actor, "actor", defaultActor, "user recorded in the audit log")
	return cmd
}

func newResetCmd(opts *rootOptions) *cobra.Command {
	actor := defaultActor
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Restore every parameter to its default",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				entry, err := a.svc.ResetToDefaults(ctx, opts.session, actor)
				if err != nil {
					return err
				}
				return printMutation(cmd.OutOrStdout(), opts.jsonOut, entry)
			})
		},
	}
	cmd.Flags().StringVar(&actor, "actor", defaultActor, "user recorded in the audit log")
	return cmd
}

func newAuditCmd(opts *rootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show the session audit log",
		Long:  "Without --limit the whole retained history is printed oldest first; with it the newest entries come first.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if limit < 0 {
				return fmt.Errorf("--limit must not be negative")
			}
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				var (
					entries []domain.AuditEntry
					err     error
				)
				if cmd.Flags().Changed("limit") {
					entries, err = a.svc.Recent(ctx, opts.session, limit)
				} else {
					entries, err = a.svc.Audit(ctx, opts.session)
				}
				if err != nil {
					return err
				}
				if opts.jsonOut {
					if entries == nil {
						entries = []domain.AuditEntry{}
					}
					return writeJSON(cmd.OutOrStdout(), entries)
				}
				for _, e := range entries {
					printEntry(cmd.OutOrStdout(), e)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "show only the n most recent entries")
	return cmd
}

func newExportCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Archive the session audit log to the configured blob store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				loc, err := a.svc.ExportAudit(ctx, opts.session)
				if err != nil {
					return err
				}
				if opts.jsonOut {
					return writeJSON(cmd.OutOrStdout(), map[string]string{"location": loc})
				}
				fmt.Fprintln(cmd.OutOrStdout(), loc)
				return nil
			})
		},
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List the archives of the session",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withApp(cmd, opts, func(ctx context.Context, a *app) error {
					infos, err := a.archiver.Archives(ctx, opts.session)
					if err != nil {
						return err
					}
					if opts.jsonOut {
						if infos == nil {
							infos = []blob.Info{}
						}
						return writeJSON(cmd.OutOrStdout(), infos)
					}
					tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
					for _, info := range infos {
						fmt.Fprintf(tw, "%s\t%d\t%s\n", info.Key, info.Size, info.LastModified.Format(time.RFC3339))
					}
					return tw.Flush()
				})
			},
		},
		&cobra.Command{
			Use:   "show KEY",
			Short: "Print the entries of an archive",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withApp(cmd, opts, func(ctx context.Context, a *app) error {
					entries, err := a.archiver.Open(ctx, args[0])
					if err != nil {
						return err
					}
					if opts.jsonOut {
						return writeJSON(cmd.OutOrStdout(), entries)
					}
					for _, e := range entries {
						printEntry(cmd.OutOrStdout(), e)
					}
					return nil
				})
			},
		},
		newExportURLCmd(opts),
		&cobra.Command{
			Use:   "delete KEY",
			Short: "Delete one archive",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withApp(cmd, opts, func(ctx context.Context, a *app) error {
					ok, err := a.archiver.Remove(ctx, args[0])
					if err != nil {
						return err
					}
					if !ok {
						return fmt.Errorf("archive %s: %w", args[0], blob.ErrNotFound)
					}
					return nil
				})
			},
		},
	)
	return cmd
}

func newExportURLCmd(opts *rootOptions) *cobra.Command {
	var expires time.Duration
	cmd := &cobra.Command{
		Use:   "url KEY",
		Short: "Print a time-limited download URL for an archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				u, err := a.archiver.Link(ctx, args[0], expires)
				if err != nil {
					return err
				}
				if opts.jsonOut {
					return writeJSON(cmd.OutOrStdout(), map[string]string{"url": u})
				}
				fmt.Fprintln(cmd.OutOrStdout(), u)
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&expires, "expires", 15*time.Minute, "URL lifetime")
	return cmd
}

func newSessionsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List persisted sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				ids, err := a.svc.Sessions(ctx)
				if err != nil {
					return err
				}
				if opts.jsonOut {
					if ids == nil {
						ids = []string{}
					}
					return writeJSON(cmd.OutOrStdout(), ids)
				}
				for _, id := range ids {
					fmt.Fprintln(cmd.OutOrStdout(), id)
				}
				return nil
			})
		},
	}
	var purge bool
	del := &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a session and its audit log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				if err := a.svc.DeleteSession(ctx, args[0]); err != nil {
					return err
				}
				if !purge {
					return nil
				}
				n, err := a.archiver.Purge(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "removed %d archives\n", n)
				return nil
			})
		},
	}
	del.Flags().BoolVar(&purge, "archives", false, "also delete the session's audit archives")
	cmd.AddCommand(del)
	return cmd
}

func printMutation(w io.Writer, jsonOut bool, entry domain.AuditEntry) error {
	if entry.Empty() {
		if jsonOut {
			return writeJSON(w, map[string]bool{"changed": false})
		}
		fmt.Fprintln(w, "no change")
		return nil
	}
	if jsonOut {
		return writeJSON(w, entry)
	}
	printEntry(w, entry)
	return nil
}

func printEntry(w io.Writer, e domain.AuditEntry) {
	fmt.Fprintf(w, "#%d %s %s by %s (cascade %s)\n",
		e.ID, e.Timestamp.Format(time.RFC3339), e.SummaryAction, e.Actor, e.CascadeID)
	for _, eff := range e.Effects {
		fmt.Fprintf(w, "  %s: %s -> %s [%s]\n", eff.Key, eff.OldValue, eff.NewValue, eff.Cause)
	}
}
