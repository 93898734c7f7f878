// Package cmd implements ledgerctl, the operator CLI for the wallet ledger.
package cmd

import (
	"context"
	"fmt"
	"os"

	"phantom-ledger/config"
	"phantom-ledger/internal/bootstrap"
	"phantom-ledger/pkg/logger"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

type options struct {
	cfgFile string
	envFile string
	verbose bool

	cfg *config.Config
	log zerolog.Logger
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "ledgerctl",
		Short: "Operate the Phantom Wallet Ledger",
		Long: `Operator tooling for the wallet ledger.

  ledgerctl migrate              Apply database migrations
  ledgerctl reconcile            Compare stored balances with ledger entries
  ledgerctl upgrade advance ID   Retry a stalled wallet upgrade
  ledgerctl upgrade sweep        Advance every open upgrade once
  ledgerctl settlement retry     Redeliver due settlement events`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load()
		},
	}

	root.PersistentFlags().StringVar(&opts.cfgFile, "config", "", "config file (default ./config.yaml or ./config/config.yaml)")
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before the environment is read")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log at debug level")

	root.AddCommand(newMigrateCmd(opts))
	root.AddCommand(newReconcileCmd(opts))
	root.AddCommand(newUpgradeCmd(opts))
	root.AddCommand(newSettlementCmd(opts))
	return root
}

// Execute runs the CLI against os.Args.
func Execute() error {
	return NewRootCmd().Execute()
}

func (o *options) load() error {
	if o.envFile != "" {
		if err := godotenv.Load(o.envFile); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("loading %s: %w", o.envFile, err)
		}
	}
	cfg, err := config.Load(o.cfgFile)
	if err != nil {
		return err
	}
	level := cfg.Log.Level
	if o.verbose {
		level = "debug"
	}
	o.cfg = cfg
	o.log = logger.NewWithWriter(level, zerolog.ConsoleWriter{Out: os.Stderr})
	return nil
}

// withApp builds the full service graph for one command run.
func (o *options) withApp(ctx context.Context, fn func(*bootstrap.App) error) error {
	app, err := bootstrap.New(ctx, o.cfg, o.log)
	if err != nil {
		return err
	}
	defer app.Close()
	return fn(app)
}
