// ABOUTME: MCP tool implementations for the health ETL database.
// ABOUTME: Read-only SQL, schema stats, trends, period rollups, sleep schedule and file import.
package mcp

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/harperreed/healthetl/internal/importer"
	"github.com/harperreed/healthetl/internal/models"
	"github.com/harperreed/healthetl/internal/query"
	"github.com/harperreed/healthetl/internal/storage"
)

const (
	defaultQueryLimit = 200
	defaultTrendDays  = 30
	defaultNights     = 7
)

func (s *Server) registerTools() {
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "query",
		Description: "Run a read-only SELECT or WITH statement against the health database",
	}, s.handleQuery)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "schema_stats",
		Description: "Row counts, date ranges and data sources per table",
	}, s.handleSchemaStats)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "moving_average",
		Description: "Daily activity or sleep metric with centered 7 and 30 day moving averages",
	}, s.handleMovingAverage)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "period_summary",
		Description: "Weekly, monthly or quarterly mean of an activity or sleep metric",
	}, s.handlePeriodSummary)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "heart_rate_daily",
		Description: "Per-day heart rate average, min, max and standard deviation",
	}, s.handleHeartRateDaily)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "sport_summary",
		Description: "Sessions, time, distance and calories per sport per week or month",
	}, s.handleSportSummary)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "sleep_schedule",
		Description: "Bedtime and wake time per night in the device's local time",
	}, s.handleSleepSchedule)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "import_file",
		Description: "Import one export CSV file of a given data type",
	}, s.handleImportFile)
}

// Tool input/output types

type queryInput struct {
	SQL   string `json:"sql" jsonschema:"SELECT or WITH statement to run"`
	Limit int    `json:"limit,omitempty" jsonschema:"Max rows returned (default 200)"`
}

type queryOutput struct {
	Columns   []string    `json:"columns"`
	Rows      []query.Row `json:"rows"`
	Count     int         `json:"count"`
	Truncated bool        `json:"truncated"`
}

type emptyInput struct{}

type seriesInput struct {
	DataType string `json:"data_type" jsonschema:"activity or sleep"`
	Metric   string `json:"metric" jsonschema:"Column to chart, e.g. steps, calories, total_sleep_hours, bed_time_hours"`
	Days     int    `json:"days,omitempty" jsonschema:"Number of days ending at end_date (default 30)"`
	EndDate  string `json:"end_date,omitempty" jsonschema:"Last day, YYYY-MM-DD (default today)"`
}

type smoothedPoint struct {
	Date  string   `json:"date"`
	Value float64  `json:"value"`
	MA7   *float64 `json:"ma7"`
	MA30  *float64 `json:"ma30"`
}

type seriesOutput struct {
	DataType string          `json:"data_type"`
	Metric   string          `json:"metric"`
	Points   []smoothedPoint `json:"points"`
}

type periodInput struct {
	DataType string `json:"data_type" jsonschema:"activity or sleep"`
	Metric   string `json:"metric" jsonschema:"Column to aggregate"`
	Period   string `json:"period,omitempty" jsonschema:"week, month or quarter (default month)"`
	From     string `json:"from,omitempty" jsonschema:"First day, YYYY-MM-DD"`
	To       string `json:"to,omitempty" jsonschema:"Last day, YYYY-MM-DD"`
}

type periodValue struct {
	Start string  `json:"start"`
	Label string  `json:"label"`
	Mean  float64 `json:"mean"`
	Count int     `json:"count"`
}

type periodOutput struct {
	Periods []periodValue `json:"periods"`
}

type rangeInput struct {
	From string `json:"from,omitempty" jsonschema:"First day, YYYY-MM-DD"`
	To   string `json:"to,omitempty" jsonschema:"Last day, YYYY-MM-DD"`
}

type heartRateDay struct {
	Date         string   `json:"date"`
	Samples      int      `json:"samples"`
	AvgHR        float64  `json:"avg_hr"`
	MinHR        int64    `json:"min_hr"`
	MaxHR        int64    `json:"max_hr"`
	StdHR        *float64 `json:"hr_std"`
	AvgRestingHR *float64 `json:"avg_resting_hr"`
	AvgMaxHR     *float64 `json:"avg_max_hr"`
}

type heartRateOutput struct {
	Days []heartRateDay `json:"days"`
}

type sportInput struct {
	Period string `json:"period,omitempty" jsonschema:"week or month (default week)"`
	From   string `json:"from,omitempty" jsonschema:"First day, YYYY-MM-DD"`
	To     string `json:"to,omitempty" jsonschema:"Last day, YYYY-MM-DD"`
}

type sportPeriod struct {
	Start           string  `json:"start"`
	Label           string  `json:"label"`
	SportName       string  `json:"sport_name"`
	ActivityCount   int     `json:"activity_count"`
	TotalMinutes    float64 `json:"total_time_minutes"`
	TotalHours      float64 `json:"total_time_hours"`
	TotalDistanceKm float64 `json:"total_distance_km"`
	TotalCalories   float64 `json:"total_calories"`
}

type sportOutput struct {
	Periods []sportPeriod `json:"periods"`
}

type sleepScheduleInput struct {
	Nights int    `json:"nights,omitempty" jsonschema:"Most recent nights to return (default 7), ignored when from and to are set"`
	From   string `json:"from,omitempty" jsonschema:"First night, YYYY-MM-DD"`
	To     string `json:"to,omitempty" jsonschema:"Last night, YYYY-MM-DD"`
}

type sleepScheduleOutput struct {
	Entries   []query.ScheduleEntry `json:"entries"`
	FirstDate string                `json:"first_date,omitempty"`
	LastDate  string                `json:"last_date,omitempty"`
}

type importInput struct {
	DataType  string `json:"data_type" jsonschema:"activity, sleep, sport or heart_rate"`
	Path      string `json:"path" jsonschema:"Path to the CSV file"`
	BatchSize int    `json:"batch_size,omitempty" jsonschema:"Records per transaction (default 100)"`
	DryRun    bool   `json:"dry_run,omitempty" jsonschema:"Validate without writing"`
}

type importOutput struct {
	Stats   importer.Stats `json:"stats"`
	Message string         `json:"message"`
}

// Tool handlers

func (s *Server) handleQuery(ctx context.Context, req *mcp.CallToolRequest, input queryInput) (*mcp.CallToolResult, queryOutput, error) {
	if input.Limit <= 0 {
		input.Limit = defaultQueryLimit
	}
	frame, err := s.q.Frame(ctx, input.SQL)
	if err != nil {
		return nil, queryOutput{}, fmt.Errorf("query failed: %w", err)
	}

	rows := frame.Records()
	out := queryOutput{Columns: frame.Columns, Count: len(rows)}
	if len(rows) > input.Limit {
		rows = rows[:input.Limit]
		out.Truncated = true
	}
	out.Rows = rows
	return nil, out, nil
}

func (s *Server) handleSchemaStats(ctx context.Context, req *mcp.CallToolRequest, _ emptyInput) (*mcp.CallToolResult, storage.SchemaStats, error) {
	stats, err := s.schema.GetSchemaStats(ctx)
	if err != nil {
		return nil, storage.SchemaStats{}, fmt.Errorf("failed to get schema stats: %w", err)
	}
	return nil, *stats, nil
}

func (s *Server) handleMovingAverage(ctx context.Context, req *mcp.CallToolRequest, input seriesInput) (*mcp.CallToolResult, seriesOutput, error) {
	if input.Days <= 0 {
		input.Days = defaultTrendDays
	}
	end := today()
	if input.EndDate != "" {
		var err error
		if end, err = parseDay(input.EndDate); err != nil {
			return nil, seriesOutput{}, err
		}
	}

	points, err := s.series(ctx, input.DataType, input.Metric, query.LastDays(end, input.Days))
	if err != nil {
		return nil, seriesOutput{}, err
	}

	out := seriesOutput{DataType: input.DataType, Metric: input.Metric, Points: []smoothedPoint{}}
	for _, p := range query.WithMovingAverages(points) {
		out.Points = append(out.Points, smoothedPoint{
			Date:  p.Date.Format(models.DateLayout),
			Value: p.Value,
			MA7:   finite(p.MA7),
			MA30:  finite(p.MA30),
		})
	}
	return nil, out, nil
}

func (s *Server) handlePeriodSummary(ctx context.Context, req *mcp.CallToolRequest, input periodInput) (*mcp.CallToolResult, periodOutput, error) {
	if input.Period == "" {
		input.Period = string(query.PeriodMonth)
	}
	period, err := query.ParsePeriod(input.Period)
	if err != nil {
		return nil, periodOutput{}, err
	}
	r, err := parseRange(input.From, input.To)
	if err != nil {
		return nil, periodOutput{}, err
	}

	points, err := s.series(ctx, input.DataType, input.Metric, r)
	if err != nil {
		return nil, periodOutput{}, err
	}
	out := periodOutput{Periods: []periodValue{}}
	for _, p := range query.AggregateByPeriod(points, period) {
		out.Periods = append(out.Periods, periodValue{
			Start: p.Start.Format(models.DateLayout),
			Label: p.Label,
			Mean:  p.Mean,
			Count: p.Count,
		})
	}
	return nil, out, nil
}

func (s *Server) handleHeartRateDaily(ctx context.Context, req *mcp.CallToolRequest, input rangeInput) (*mcp.CallToolResult, heartRateOutput, error) {
	r, err := parseRange(input.From, input.To)
	if err != nil {
		return nil, heartRateOutput{}, err
	}
	samples, err := s.q.LoadHeartRate(ctx, r)
	if err != nil {
		return nil, heartRateOutput{}, fmt.Errorf("failed to load heart rate: %w", err)
	}

	out := heartRateOutput{Days: []heartRateDay{}}
	for _, d := range query.DailyHeartRate(samples) {
		out.Days = append(out.Days, heartRateDay{
			Date:         d.Date.Format(models.DateLayout),
			Samples:      d.Samples,
			AvgHR:        d.AvgHR,
			MinHR:        d.MinHR,
			MaxHR:        d.MaxHR,
			StdHR:        finite(d.StdHR),
			AvgRestingHR: finite(d.AvgRestingHR),
			AvgMaxHR:     finite(d.AvgMaxHR),
		})
	}
	return nil, out, nil
}

func (s *Server) handleSportSummary(ctx context.Context, req *mcp.CallToolRequest, input sportInput) (*mcp.CallToolResult, sportOutput, error) {
	if input.Period == "" {
		input.Period = string(query.PeriodWeek)
	}
	period, err := query.ParsePeriod(input.Period)
	if err != nil {
		return nil, sportOutput{}, err
	}
	r, err := parseRange(input.From, input.To)
	if err != nil {
		return nil, sportOutput{}, err
	}
	sessions, err := s.q.LoadSport(ctx, r)
	if err != nil {
		return nil, sportOutput{}, fmt.Errorf("failed to load sport: %w", err)
	}
	periods, err := query.SportByPeriod(sessions, period)
	if err != nil {
		return nil, sportOutput{}, err
	}
	out := sportOutput{Periods: []sportPeriod{}}
	for _, p := range periods {
		out.Periods = append(out.Periods, sportPeriod{
			Start:           p.Start.Format(models.DateLayout),
			Label:           p.Label,
			SportName:       p.SportName,
			ActivityCount:   p.ActivityCount,
			TotalMinutes:    p.TotalMinutes,
			TotalHours:      p.TotalHours,
			TotalDistanceKm: p.TotalDistanceKm,
			TotalCalories:   p.TotalCalories,
		})
	}
	return nil, out, nil
}

func (s *Server) handleSleepSchedule(ctx context.Context, req *mcp.CallToolRequest, input sleepScheduleInput) (*mcp.CallToolResult, sleepScheduleOutput, error) {
	var out sleepScheduleOutput
	var err error
	if input.From != "" && input.To != "" {
		r, rerr := parseRange(input.From, input.To)
		if rerr != nil {
			return nil, out, rerr
		}
		out.Entries, err = s.q.SleepScheduleRange(ctx, s.opts.UserID, r)
	} else {
		if input.Nights <= 0 {
			input.Nights = defaultNights
		}
		out.Entries, err = s.q.SleepSchedule(ctx, s.opts.UserID, input.Nights)
	}
	if err != nil {
		return nil, sleepScheduleOutput{}, err
	}
	if out.Entries == nil {
		out.Entries = []query.ScheduleEntry{}
	}

	out.FirstDate, out.LastDate, err = s.q.SleepDateRange(ctx, s.opts.UserID)
	if err != nil {
		return nil, sleepScheduleOutput{}, err
	}
	return nil, out, nil
}

func (s *Server) handleImportFile(ctx context.Context, req *mcp.CallToolRequest, input importInput) (*mcp.CallToolResult, importOutput, error) {
	dt, err := importer.ParseDataType(input.DataType)
	if err != nil {
		return nil, importOutput{}, err
	}
	if err := importer.ValidateFile(input.Path); err != nil {
		return nil, importOutput{}, err
	}
	imp, err := importer.New(dt, s.db, s.opts.Importer)
	if err != nil {
		return nil, importOutput{}, err
	}

	stats, err := imp.ImportFile(ctx, input.Path, s.opts.UserID, input.BatchSize, input.DryRun)
	if err != nil {
		return nil, importOutput{}, fmt.Errorf("import failed: %w", err)
	}
	verb := "Imported"
	if input.DryRun {
		verb = "Validated"
	}
	return nil, importOutput{
		Stats: *stats,
		Message: fmt.Sprintf("%s %d %s records (%d inserted, %d updated, %d errors)",
			verb, stats.Processed, dt, stats.Inserted, stats.Updated, stats.Errors),
	}, nil
}

// series loads one metric of activity or sleep rows as a daily series.
func (s *Server) series(ctx context.Context, dataType, metric string, r query.DateRange) ([]query.Point, error) {
	switch dataType {
	case string(importer.Activity):
		days, err := s.q.LoadActivity(ctx, r)
		if err != nil {
			return nil, fmt.Errorf("failed to load activity: %w", err)
		}
		return query.ActivitySeries(days, metric)
	case string(importer.Sleep):
		nights, err := s.q.LoadSleep(ctx, r)
		if err != nil {
			return nil, fmt.Errorf("failed to load sleep: %w", err)
		}
		return query.SleepSeries(nights, metric)
	}
	return nil, fmt.Errorf("unsupported data type for series: %s", dataType)
}

func parseRange(from, to string) (query.DateRange, error) {
	var r query.DateRange
	var err error
	if from != "" {
		if r.From, err = parseDay(from); err != nil {
			return r, err
		}
	}
	if to != "" {
		if r.To, err = parseDay(to); err != nil {
			return r, err
		}
	}
	return r, nil
}

func parseDay(s string) (time.Time, error) {
	t, err := time.Parse(models.DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, want YYYY-MM-DD", s)
	}
	return t, nil
}

func today() time.Time {
	now := time.Now()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
