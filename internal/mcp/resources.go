// ABOUTME: MCP resource implementations for the health ETL database.
// ABOUTME: Provides health://stats and health://recent resources.
package mcp

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/harperreed/healthetl/internal/models"
	"github.com/harperreed/healthetl/internal/query"
)

const (
	statsURI   = "health://stats"
	recentURI  = "health://recent"
	recentDays = 7
)

func (s *Server) registerResources() {
	// health://stats - schema version, row counts and date coverage
	s.mcpServer.AddResource(&mcp.Resource{
		URI:         statsURI,
		Name:        "Database Statistics",
		Description: "Row counts, date ranges and data sources per table",
		MIMEType:    "application/json",
	}, s.handleStatsResource)

	// health://recent - last week of activity and sleep, ending at the latest stored day
	s.mcpServer.AddResource(&mcp.Resource{
		URI:         recentURI,
		Name:        "Recent Health Data",
		Description: "Last 7 days of daily activity and the sleep schedule",
		MIMEType:    "application/json",
	}, s.handleRecentResource)
}

// Resource handlers

func (s *Server) handleStatsResource(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	stats, err := s.schema.GetSchemaStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get schema stats: %w", err)
	}
	return jsonResource(statsURI, stats)
}

type recentDay struct {
	Date     string  `json:"date"`
	Steps    int64   `json:"steps"`
	Calories float64 `json:"calories"`
	Distance float64 `json:"distance"`
}

func (s *Server) handleRecentResource(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	result := map[string]any{
		"activity": []recentDay{},
		"sleep":    []query.ScheduleEntry{},
	}

	var latest sql.NullString
	if err := s.db.SQL().QueryRowContext(ctx, `SELECT MAX(date) FROM daily_activity`).Scan(&latest); err != nil {
		return nil, fmt.Errorf("failed to find latest activity: %w", err)
	}
	if latest.Valid {
		end, err := parseDay(latest.String)
		if err != nil {
			return nil, err
		}
		days, err := s.q.LoadActivity(ctx, query.LastDays(end, recentDays))
		if err != nil {
			return nil, fmt.Errorf("failed to load activity: %w", err)
		}
		activity := make([]recentDay, 0, len(days))
		for _, d := range days {
			activity = append(activity, recentDay{
				Date:     d.Date.Format(models.DateLayout),
				Steps:    d.Steps,
				Calories: d.Calories,
				Distance: d.Distance,
			})
		}
		result["activity"] = activity
		result["end_date"] = latest.String
	}

	schedule, err := s.q.SleepSchedule(ctx, s.opts.UserID, recentDays)
	switch {
	case errors.Is(err, query.ErrNoSleepData):
	case err != nil:
		return nil, fmt.Errorf("failed to load sleep schedule: %w", err)
	default:
		result["sleep"] = schedule
	}

	return jsonResource(recentURI, result)
}

func jsonResource(uri string, v any) (*mcp.ReadResourceResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}
