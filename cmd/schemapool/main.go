package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/yuku/schemapool"
	"github.com/yuku/schemapool/internal/connpool"
	"github.com/yuku/schemapool/internal/logging"
	"github.com/yuku/schemapool/internal/server"
	"go.uber.org/zap"
)

var errResetNotConfirmed = errors.New("refusing to drop schemas without --yes")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type app struct {
	configPath string
	cfg        *schemapool.Config
	logger     *zap.Logger
}

func newRootCommand() *cobra.Command {
	a := &app{}
	cmd := &cobra.Command{
		Use:           "schemapool",
		Short:         "Multi-schema PostgreSQL access layer",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load()
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}
	cmd.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "path to config.yaml (environment only when empty)")

	cmd.AddCommand(newServeCommand(a))
	cmd.AddCommand(newBootstrapCommand(a, schemapool.ModeProvision))
	cmd.AddCommand(newBootstrapCommand(a, schemapool.ModeVerify))
	cmd.AddCommand(newResetCommand(a))
	return cmd
}

func (a *app) load() error {
	cfg, err := schemapool.LoadConfig(a.configPath)
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = logger
	return nil
}

func newServeCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Bootstrap the schemas and serve HTTP until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			svc, err := schemapool.Open(ctx, a.cfg, a.logger)
			if err != nil {
				return err
			}
			defer svc.Close()

			return server.New(a.cfg.Server.Addr, svc.Handler(), a.logger).Run(ctx)
		},
	}
}

func newBootstrapCommand(a *app, mode string) *cobra.Command {
	use, short := "bootstrap", "Provision every configured schema and exit"
	if mode == schemapool.ModeVerify {
		use, short = "verify", "Check that every configured schema exists and exit"
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a.cfg.Bootstrap.Mode = mode
			svc, err := schemapool.Open(cmd.Context(), a.cfg, a.logger)
			if err != nil {
				return err
			}
			defer svc.Close()

			printResults(cmd.OutOrStdout(), svc.Results)
			return nil
		},
	}
}

func newResetCommand(a *app) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Drop every configured schema so the instance can be provisioned again",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return errResetNotConfirmed
			}
			ctx := cmd.Context()

			poolCfg, ok := a.cfg.AdminPoolConfig(a.logger)
			if !ok {
				poolCfg = a.cfg.ConnPoolConfig(nil, a.logger)
			}
			pool, err := connpool.New(ctx, poolCfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			if err := schemapool.DropSchemas(ctx, pool, a.cfg.Bootstrap.Schemas, a.logger); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "dropped %d schemas\n", len(a.cfg.Bootstrap.Schemas))
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm dropping the schemas and all their data")
	return cmd
}

func printResults(w io.Writer, results []schemapool.Result) {
	for _, r := range results {
		fmt.Fprintf(w, "%-20s %-10s %s\n", r.Schema, r.Status, r.CompletedAt.Sub(r.AttemptedAt))
	}
}
