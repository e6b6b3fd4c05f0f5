// ABOUTME: CLI commands importing single export files and whole export trees.
// ABOUTME: Supports dry runs, duplicate strategies and a Prometheus textfile of run metrics.
package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/harperreed/healthetl/internal/bulk"
	"github.com/harperreed/healthetl/internal/importer"
	"github.com/harperreed/healthetl/internal/observability"
	"github.com/harperreed/healthetl/internal/storage"
)

func newImportCmd(a *app) *cobra.Command {
	var (
		user      string
		batchSize int
		dryRun    bool
	)

	cmd := &cobra.Command{
		Use:   "import <type> <file>",
		Short: "Import one export CSV file",
		Long: `Import one export CSV file of the given data type.

DATA TYPES:

  activity     ACTIVITY_*.csv   daily steps, calories and distance
  sleep        SLEEP_*.csv      nightly stages and sleep window
  sport        SPORT_*.csv      workout sessions
  heart_rate   HEARTRATE_*.csv  heart rate samples (alias: heartrate)

Rows that fail validation are counted and skipped. Rows whose natural key
already exists are updated in place.

EXAMPLES:

  healthetl import activity ACTIVITY_1700000000.csv
  healthetl import sleep SLEEP_1700000000.csv --dry-run
  healthetl import sport SPORT.csv --user alice --batch-size 500`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			dt, err := importer.ParseDataType(args[0])
			if err != nil {
				return err
			}
			path := args[1]
			if err := importer.ValidateFile(path); err != nil {
				return err
			}
			if batchSize <= 0 {
				batchSize = a.cfg.GetBatchSize()
			}

			db, userID, err := a.initialize(cmd.Context(), user)
			if err != nil {
				return err
			}
			imp, err := importer.New(dt, db, a.importerOptions(nil))
			if err != nil {
				return err
			}

			stats, err := imp.ImportFile(cmd.Context(), path, userID, batchSize, dryRun)
			if err != nil {
				return fmt.Errorf("import failed: %w", err)
			}
			printImportStats(cmd.OutOrStdout(), dt, stats, dryRun)
			return nil
		},
	}
	cmd.Flags().StringVarP(&user, "user", "u", storage.DefaultUserID, "user the rows belong to")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "records per transaction (default from config, 100)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "validate without writing")
	return cmd
}

func printImportStats(out io.Writer, dt importer.DataType, stats *importer.Stats, dryRun bool) {
	if dryRun {
		green.Fprintf(out, "✓ Dry run: %d valid %s records\n", stats.Processed, dt)
	} else {
		green.Fprintf(out, "✓ Imported %d %s records\n", stats.Processed, dt)
		fmt.Fprintf(out, "  inserted: %d\n", stats.Inserted)
		fmt.Fprintf(out, "  updated:  %d\n", stats.Updated)
	}
	if stats.Errors > 0 {
		red.Fprintf(out, "  errors:   %d\n", stats.Errors)
	}
}

func newBulkCmd(a *app) *cobra.Command {
	var (
		user        string
		strategy    string
		dryRun      bool
		metricsFile string
	)

	cmd := &cobra.Command{
		Use:   "bulk <dir>",
		Short: "Import every export file under a directory",
		Long: `Import an export tree. Each direct subdirectory of <dir> is one export
with ACTIVITY/, SLEEP/, SPORT/ and HEARTRATE/ folders. Hidden directories are
ignored.

DUPLICATE STRATEGIES:

  update   overwrite stored rows with the incoming values (default)
  skip     keep stored rows, insert only new ones
  error    stop at the first file containing stored rows

A file that cannot be parsed is reported and the run continues.

EXAMPLES:

  healthetl bulk ~/Downloads/zepp
  healthetl bulk ~/Downloads/zepp --duplicate-strategy skip
  healthetl bulk ~/Downloads/zepp --dry-run
  healthetl bulk ~/Downloads/zepp --metrics-file /var/lib/node_exporter/healthetl.prom`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if strategy == "" {
				strategy = a.cfg.GetDuplicateStrategy()
			}
			s, err := bulk.ParseStrategy(strategy)
			if err != nil {
				return err
			}

			db, userID, err := a.initialize(cmd.Context(), user)
			if err != nil {
				return err
			}
			metrics := observability.NewMetrics()
			b := bulk.New(db, bulk.Options{UserID: userID, Importer: a.importerOptions(metrics)})

			stats, runErr := b.ImportDirectory(cmd.Context(), args[0], s, dryRun)
			printBulkStats(cmd.OutOrStdout(), stats, dryRun)

			if metricsFile != "" {
				if err := metrics.WriteTextfile(metricsFile); err != nil {
					a.logger.Error("failed to write metrics file", "path", metricsFile, "err", err)
				}
			}
			if runErr != nil {
				return fmt.Errorf("bulk import aborted: %w", runErr)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&user, "user", "u", storage.DefaultUserID, "user the rows belong to")
	cmd.Flags().StringVar(&strategy, "duplicate-strategy", "", "update, skip or error (default from config, update)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "validate without writing")
	cmd.Flags().StringVar(&metricsFile, "metrics-file", "", "write Prometheus textfile metrics to this path")
	return cmd
}

func printBulkStats(out io.Writer, stats *bulk.Stats, dryRun bool) {
	if stats == nil {
		return
	}
	title := "Bulk import"
	if dryRun {
		title = "Bulk dry run"
	}
	bold.Fprintf(out, "%s %s\n", title, faint.Sprint(stats.RunID))
	fmt.Fprintf(out, "  files processed:  %d\n", stats.FilesProcessed)
	fmt.Fprintf(out, "  files skipped:    %d\n", stats.FilesSkipped)
	fmt.Fprintf(out, "  files failed:     %d\n", stats.FilesFailed)
	fmt.Fprintf(out, "  records inserted: %d\n", stats.RecordsInserted)
	fmt.Fprintf(out, "  records updated:  %d\n", stats.RecordsUpdated)
	fmt.Fprintf(out, "  records skipped:  %d\n", stats.RecordsSkipped)
	if len(stats.Errors) > 0 {
		red.Fprintln(out, "Errors:")
		red.Fprintln(out, "  "+strings.Join(stats.Errors, "\n  "))
	}
}
