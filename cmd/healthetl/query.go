// ABOUTME: CLI commands for read-only SQL and the sleep schedule.
// ABOUTME: Output is a padded table, or JSON with --json.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/harperreed/healthetl/internal/models"
	"github.com/harperreed/healthetl/internal/query"
	"github.com/harperreed/healthetl/internal/storage"
)

func newQueryCmd(a *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "query <sql>",
		Short: "Run a read-only SELECT against the database",
		Long: `Run a single SELECT or WITH statement and print the result.

EXAMPLES:

  healthetl query "SELECT date, steps FROM daily_activity ORDER BY date DESC LIMIT 7"
  healthetl query "SELECT sport_type, COUNT(*) FROM sport_data GROUP BY 1" --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := a.open()
			if err != nil {
				return err
			}
			frame, err := query.New(db.SQL()).Frame(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, frame.Records())
			}
			printFrame(out, frame)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print rows as JSON")
	return cmd
}

func printFrame(out io.Writer, f *query.Frame) {
	widths := make([]int, len(f.Columns))
	cells := make([][]string, len(f.Rows))
	for i, c := range f.Columns {
		widths[i] = len(c)
	}
	for r, row := range f.Rows {
		cells[r] = make([]string, len(row))
		for i, v := range row {
			s := "NULL"
			if v != nil {
				s = fmt.Sprint(v)
			}
			cells[r][i] = s
			widths[i] = max(widths[i], len(s))
		}
	}

	header := make([]string, len(f.Columns))
	for i, c := range f.Columns {
		header[i] = padRight(c, widths[i])
	}
	bold.Fprintln(out, strings.TrimRight(strings.Join(header, "  "), " "))
	for _, row := range cells {
		line := make([]string, len(row))
		for i, s := range row {
			line[i] = padRight(s, widths[i])
		}
		fmt.Fprintln(out, strings.TrimRight(strings.Join(line, "  "), " "))
	}
	faint.Fprintf(out, "(%d rows)\n", f.Len())
}

func padRight(s string, n int) string {
	if len(s) >= n {
		return s
	}
	return s + strings.Repeat(" ", n-len(s))
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newSleepCmd(a *app) *cobra.Command {
	var (
		user   string
		nights int
		from   string
		to     string
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "sleep",
		Short: "Show bedtime and wake time per night",
		Long: `Show the sleep schedule in the device's local time.

By default the most recent --nights nights are shown, oldest first. With
--from and --to the nights in that range are shown instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, userID, err := a.initialize(cmd.Context(), user)
			if err != nil {
				return err
			}
			q := query.New(db.SQL())

			var entries []query.ScheduleEntry
			if from != "" || to != "" {
				r, err := dateRange(from, to)
				if err != nil {
					return err
				}
				entries, err = q.SleepScheduleRange(cmd.Context(), userID, r)
				if err != nil {
					return err
				}
			} else {
				entries, err = q.SleepSchedule(cmd.Context(), userID, nights)
				if err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, entries)
			}
			if len(entries) == 0 {
				fmt.Fprintln(out, "No sleep sessions in range.")
				return nil
			}
			bold.Fprintln(out, "Day    Bedtime  Wake")
			for _, e := range entries {
				fmt.Fprintf(out, "%s  %s    %s  %s\n", e.Day, e.Bedtime, e.WakeTime, faint.Sprint(e.FullDate))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&user, "user", "u", storage.DefaultUserID, "user whose nights to show")
	cmd.Flags().IntVarP(&nights, "nights", "n", 7, "number of recent nights")
	cmd.Flags().StringVar(&from, "from", "", "first night (YYYY-MM-DD)")
	cmd.Flags().StringVar(&to, "to", "", "last night (YYYY-MM-DD)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print entries as JSON")
	return cmd
}

// dateRange parses optional YYYY-MM-DD bounds. A missing upper bound is today.
func dateRange(from, to string) (query.DateRange, error) {
	var r query.DateRange
	var err error
	if from != "" {
		if r.From, err = time.Parse(models.DateLayout, from); err != nil {
			return r, fmt.Errorf("invalid --from date %q: %w", from, err)
		}
	}
	if to == "" {
		r.To = time.Now().UTC()
		return r, nil
	}
	if r.To, err = time.Parse(models.DateLayout, to); err != nil {
		return r, fmt.Errorf("invalid --to date %q: %w", to, err)
	}
	return r, nil
}
