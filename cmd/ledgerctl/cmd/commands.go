package cmd

import (
	"errors"
	"fmt"
	"text/tabwriter"

	pgStorage "phantom-ledger/internal/adapter/storage/postgres"
	"phantom-ledger/internal/bootstrap"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// errMismatch makes reconcile exit non-zero when balances drift.
var errMismatch = errors.New("balance mismatches found")

func newMigrateCmd(opts *options) *cobra.Command {
	var list bool
	c := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			if list {
				names, err := pgStorage.MigrationNames()
				if err != nil {
					return err
				}
				for _, n := range names {
					fmt.Fprintln(cmd.OutOrStdout(), n)
				}
				return nil
			}
			if opts.cfg.Storage.Driver != "postgres" {
				return fmt.Errorf("migrate needs the postgres driver, got %q", opts.cfg.Storage.Driver)
			}
			pool, err := pgStorage.NewPool(cmd.Context(), opts.cfg.Database, opts.log)
			if err != nil {
				return err
			}
			defer pool.Close()

			n, err := pgStorage.Migrate(cmd.Context(), pool, opts.log)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "applied %d migration(s)\n", n)
			return nil
		},
	}
	c.Flags().BoolVar(&list, "list", false, "print the embedded migrations without connecting")
	return c
}

func newReconcileCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Report wallets whose balance differs from the sum of their entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd.Context(), func(app *bootstrap.App) error {
				mismatches, err := app.ReconcileBalances(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(mismatches) == 0 {
					fmt.Fprintln(out, "all balances reconcile")
					return nil
				}

				w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "WALLET\tSTORED\tDERIVED\tDRIFT")
				for _, m := range mismatches {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", m.WalletID,
						app.Money.Format(m.Stored), app.Money.Format(m.Derived), app.Money.Format(m.Stored-m.Derived))
				}
				if err := w.Flush(); err != nil {
					return err
				}
				return fmt.Errorf("%w: %d wallet(s)", errMismatch, len(mismatches))
			})
		},
	}
}

func newUpgradeCmd(opts *options) *cobra.Command {
	upgrade := &cobra.Command{
		Use:   "upgrade",
		Short: "Inspect and drive wallet upgrades",
	}

	upgrade.AddCommand(&cobra.Command{
		Use:   "advance WORKFLOW_ID",
		Short: "Run a stalled upgrade workflow as far as it can go",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid workflow id: %w", err)
			}
			return opts.withApp(cmd.Context(), func(app *bootstrap.App) error {
				wf, err := app.Upgrades.Advance(cmd.Context(), id)
				if wf != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "workflow %s: %s (attempts %d)\n", wf.ID, wf.State, wf.Attempts)
					if wf.LastError != nil {
						fmt.Fprintf(cmd.OutOrStdout(), "last error: %s\n", *wf.LastError)
					}
				}
				return err
			})
		},
	})

	upgrade.AddCommand(&cobra.Command{
		Use:   "sweep",
		Short: "Advance every open upgrade workflow once",
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd.Context(), func(app *bootstrap.App) error {
				n, err := app.Upgrades.RunPending(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d workflow(s) moved\n", n)
				return nil
			})
		},
	})
	return upgrade
}

func newSettlementCmd(opts *options) *cobra.Command {
	settlement := &cobra.Command{
		Use:   "settlement",
		Short: "Settlement outbox operations",
	}
	settlement.AddCommand(&cobra.Command{
		Use:   "retry",
		Short: "Redeliver settlement events that are due",
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd.Context(), func(app *bootstrap.App) error {
				n, err := app.Settlement.RetryDue(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d delivery(ies) attempted\n", n)
				return nil
			})
		},
	})
	return settlement
}
