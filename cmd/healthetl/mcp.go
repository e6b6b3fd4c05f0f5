// ABOUTME: CLI command for starting the MCP server.
// ABOUTME: Runs a stdio-based MCP server over the health database.
package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/harperreed/healthetl/internal/mcp"
	"github.com/harperreed/healthetl/internal/storage"
)

func newMCPCmd(a *app) *cobra.Command {
	var user string

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start MCP server",
		Long: `Start the Model Context Protocol (MCP) server for AI assistant integration.

The server communicates via stdin/stdout. Add it to an MCP client config:

  {
    "mcpServers": {
      "health": { "command": "healthetl", "args": ["mcp"] }
    }
  }

AVAILABLE TOOLS:

  query             Run a read-only SELECT or WITH statement
  schema_stats      Row counts, date ranges and data sources
  moving_average    Daily metric with 7 and 30 day centered averages
  period_summary    Weekly, monthly or quarterly means
  heart_rate_daily  Per-day heart rate statistics
  sport_summary     Sessions and totals per sport per period
  sleep_schedule    Bedtime and wake time per night
  import_file       Import one export CSV file

AVAILABLE RESOURCES:

  health://stats    Database statistics
  health://recent   Last 7 days of activity and sleep`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, userID, err := a.initialize(cmd.Context(), user)
			if err != nil {
				return err
			}
			server, err := mcp.NewServer(db, mcp.Options{
				UserID:   userID,
				Importer: a.importerOptions(nil),
				Logger:   a.logger,
				Version:  version,
			})
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return server.Serve(ctx)
		},
	}
	cmd.Flags().StringVarP(&user, "user", "u", storage.DefaultUserID, "user imports and schedules belong to")
	return cmd
}
