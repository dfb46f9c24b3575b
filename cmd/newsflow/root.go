package main

import (
	"fmt"

	"github.com/datallboy/newsflow/internal/app"
	"github.com/datallboy/newsflow/internal/infra/config"
	"github.com/datallboy/newsflow/internal/infra/logger"
	"github.com/datallboy/newsflow/internal/store"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "newsflow",
		Short:         "Multi-server NNTP binary downloader",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "config.yaml", "path to the config file")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override log.level (debug, info, warn, error)")

	cmd.AddCommand(
		newServeCmd(opts),
		newGetCmd(opts),
		newSendCmd(opts),
		newHistoryCmd(opts),
	)
	return cmd
}

// bootstrap loads the config and builds the app context. The engine is left
// to the subcommand.
func bootstrap(opts *rootOptions, withStore bool) (*app.Context, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}

	log, err := logger.New(cfg.Log.Path, logger.ParseLevel(cfg.Log.Level), cfg.Log.IncludeStdout)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	a := app.NewContext(cfg, log)
	if !withStore {
		return a, nil
	}

	dsn := cfg.Store.DSN
	if cfg.Store.Driver == store.DriverSQLite {
		dsn = cfg.Store.SQLitePath
	}
	history, err := store.NewPersistentStore(cfg.Store.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	a.History = history
	return a, nil
}
