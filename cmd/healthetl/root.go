// ABOUTME: Root Cobra command for the healthetl CLI.
// ABOUTME: Loads config and .env, builds the logger and opens the database per command.
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/harperreed/healthetl/internal/config"
	"github.com/harperreed/healthetl/internal/importer"
	"github.com/harperreed/healthetl/internal/logging"
	"github.com/harperreed/healthetl/internal/observability"
	"github.com/harperreed/healthetl/internal/storage"
)

// app carries per-invocation state shared by subcommands.
type app struct {
	dbPath     string
	configPath string
	verbose    bool

	cfg    *config.Config
	logger *log.Logger
	db     *storage.DB
	stderr io.Writer
}

const rootLong = `healthetl imports fitness tracker exports into a local SQLite database
and serves the data for analysis.

QUICK START:

  $ healthetl setup                                   # Create tables and default user
  $ healthetl import activity ACTIVITY_1700000000.csv # Import one file
  $ healthetl bulk ~/Downloads/zepp-export            # Import an export tree
  $ healthetl stats --format yaml                     # Row counts and date ranges
  $ healthetl sleep --nights 14                       # Bedtime and wake time chart

CONFIGURATION:

  ~/.config/healthetl/config.yaml (override with --config):

    db_path: ~/health/health.db
    data_source: zepp
    utc_offset_hours: -3
    batch_size: 100
    duplicate_strategy: update
    log_level: info

  HEALTH_DB_PATH (also read from .env) overrides db_path. --db overrides both.`

func newRootCmd() *cobra.Command {
	a := &app{stderr: os.Stderr}

	root := &cobra.Command{
		Use:           "healthetl",
		Short:         "Fitness tracker export ETL into SQLite",
		Long:          rootLong,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "help" || cmd.Name() == "version" {
				return nil
			}
			return a.load()
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.close()
		},
	}
	root.SetErr(a.stderr)

	root.PersistentFlags().StringVar(&a.dbPath, "db", "", "SQLite database path")
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "config file (default ~/.config/healthetl/config.yaml)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(
		newSetupCmd(a),
		newVerifyCmd(a),
		newStatsCmd(a),
		newImportCmd(a),
		newBulkCmd(a),
		newQueryCmd(a),
		newSleepCmd(a),
		newMCPCmd(a),
	)

	// PersistentPostRunE is skipped when RunE fails.
	for _, c := range root.Commands() {
		if c.RunE == nil {
			continue
		}
		run := c.RunE
		c.RunE = func(cmd *cobra.Command, args []string) error {
			err := run(cmd, args)
			if err != nil {
				_ = a.close()
			}
			return err
		}
	}
	return root
}

func (a *app) load() error {
	if err := config.LoadEnv(); err != nil {
		return err
	}
	path := a.configPath
	if path == "" {
		path = config.GetConfigPath()
	}
	cfg, err := config.LoadFrom(path)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = logging.New(a.stderr, logging.Options{
		Level:   cfg.GetLogLevel(),
		Verbose: a.verbose,
	})
	return nil
}

func (a *app) resolvedDBPath() string {
	if a.dbPath != "" {
		return config.ExpandPath(a.dbPath)
	}
	return a.cfg.GetDBPath()
}

// open opens the database without touching the schema.
func (a *app) open() (*storage.DB, error) {
	if a.db != nil {
		return a.db, nil
	}
	path := a.resolvedDBPath()
	db, err := storage.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}
	a.logger.Debug("opened database", "path", path)
	a.db = db
	return db, nil
}

// initialize opens the database, creates the schema and resolves userID to users.id.
func (a *app) initialize(ctx context.Context, userID string) (*storage.DB, int64, error) {
	db, err := a.open()
	if err != nil {
		return nil, 0, err
	}
	sm := storage.NewSchemaManager(db, a.logger)
	if err := sm.CreateAllTables(ctx); err != nil {
		return nil, 0, err
	}
	if userID == "" {
		userID = storage.DefaultUserID
	}
	id, err := sm.EnsureDefaultUser(ctx, userID)
	if err != nil {
		return nil, 0, err
	}
	return db, id, nil
}

func (a *app) importerOptions(metrics *observability.Metrics) importer.Options {
	return importer.Options{
		Source:   a.cfg.GetDataSource(),
		Location: importer.LocationForOffset(a.cfg.GetUTCOffsetHours()),
		Logger:   a.logger,
		Metrics:  metrics,
	}
}

func (a *app) close() error {
	if a.db == nil {
		return nil
	}
	err := a.db.Close()
	a.db = nil
	return err
}
