// ABOUTME: CLI commands for database setup, verification and statistics.
// ABOUTME: setup creates the schema, verify checks it, stats prints coverage.
package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/harperreed/healthetl/internal/query"
	"github.com/harperreed/healthetl/internal/storage"
)

var (
	green = color.New(color.FgGreen)
	red   = color.New(color.FgRed)
	faint = color.New(color.Faint)
	bold  = color.New(color.Bold)
)

func newSetupCmd(a *app) *cobra.Command {
	var saveConfig bool

	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Create tables, indexes and the default user",
		Long: `Create every table, index and update trigger, then seed the default user.

Safe to run repeatedly. With --save-config the resolved database path is
written to the config file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			_, userID, err := a.initialize(cmd.Context(), storage.DefaultUserID)
			if err != nil {
				return err
			}
			green.Fprintf(out, "✓ Database initialized at %s\n", a.db.Path())
			faint.Fprintf(out, "  default user id: %d\n", userID)

			if saveConfig {
				a.cfg.DBPath = a.db.Path()
				if err := a.cfg.Save(); err != nil {
					return fmt.Errorf("failed to save config: %w", err)
				}
				green.Fprintf(out, "✓ Config written to %s\n", a.cfg.Path())
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&saveConfig, "save-config", false, "write the database path to the config file")
	return cmd
}

func newVerifyCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Check the schema and run data quality checks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			db, err := a.open()
			if err != nil {
				return err
			}
			sm := storage.NewSchemaManager(db, a.logger)
			if !sm.VerifySchema(cmd.Context()) {
				red.Fprintln(out, "✗ Schema is incomplete")
				return fmt.Errorf("schema verification failed, run 'healthetl setup'")
			}
			green.Fprintln(out, "✓ Schema valid")

			stats, err := sm.GetSchemaStats(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "  Total records: %d\n", stats.TotalRecords)

			quality, err := query.New(db.SQL()).DataQuality(cmd.Context())
			if err != nil {
				return err
			}
			bold.Fprintln(out, "\nData quality:")
			fmt.Fprintf(out, "  Activity rows with missing steps:     %d\n", quality.MissingSteps)
			fmt.Fprintf(out, "  Activity rows with missing calories:  %d\n", quality.MissingCalories)
			fmt.Fprintf(out, "  Activity rows with extreme steps:     %d\n", quality.ExtremeSteps)
			fmt.Fprintf(out, "  Activity rows with extreme calories:  %d\n", quality.ExtremeCalories)
			fmt.Fprintf(out, "  Sleep rows without a sleep window:    %d\n", quality.SleepWithoutTime)

			if quality.Issues() == 0 {
				green.Fprintln(out, "\n✓ No data quality issues")
			} else {
				color.New(color.FgYellow).Fprintf(out, "\n! %d rows flagged\n", quality.Issues())
			}
			return nil
		},
	}
}

func newStatsCmd(a *app) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show row counts, date ranges and data sources",
		Long: `Show per-table row counts, date coverage and data sources.

FORMATS:

  text   Human-readable summary (default)
  yaml   YAML document
  json   JSON document`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := a.open()
			if err != nil {
				return err
			}
			stats, err := storage.NewSchemaManager(db, a.logger).GetSchemaStats(cmd.Context())
			if err != nil {
				return err
			}
			data, err := stats.Format(format)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "text", "output format: text, yaml or json")
	return cmd
}
