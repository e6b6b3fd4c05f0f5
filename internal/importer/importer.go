// ABOUTME: File importer composing a parser, a transformer and a model builder.
// ABOUTME: Validates rows, counts row errors and writes in batched transactions.
package importer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/harperreed/healthetl/internal/logging"
	"github.com/harperreed/healthetl/internal/models"
	"github.com/harperreed/healthetl/internal/observability"
	"github.com/harperreed/healthetl/internal/storage"
)

// DataType names a kind of export file.
type DataType string

// Supported data types.
const (
	Activity  DataType = "activity"
	Sleep     DataType = "sleep"
	Sport     DataType = "sport"
	HeartRate DataType = "heart_rate"
)

// AllDataTypes lists data types in import order.
var AllDataTypes = []DataType{Activity, Sleep, Sport, HeartRate}

// DefaultBatchSize is used when ImportFile is given a non-positive size.
const DefaultBatchSize = 100

// SupportedExtensions are the file extensions ValidateFile accepts.
var SupportedExtensions = []string{".csv", ".json"}

// ParseDataType resolves a data type name, accepting "heartrate" as an alias.
func ParseDataType(name string) (DataType, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "activity":
		return Activity, nil
	case "sleep":
		return Sleep, nil
	case "sport":
		return Sport, nil
	case "heart_rate", "heartrate":
		return HeartRate, nil
	}
	return "", fmt.Errorf("unsupported data type: %s", name)
}

// Options configures an Importer.
type Options struct {
	// Source is stored as data_source on every record. Defaults to zepp.
	Source   string
	Location *time.Location
	Logger   *log.Logger
	Metrics  *observability.Metrics
	// Parsers maps a lower-case file extension to its parser and extends
	// the defaults for .csv and .json. Unknown extensions are read as CSV.
	Parsers  map[string]Parser
}

func defaultParsers() map[string]Parser {
	return map[string]Parser{
		".csv":  CSVParser{},
		".json": JSONParser{},
	}
}

// Stats counts the outcome of one file import.
type Stats struct {
	Processed int `json:"processed"`
	Inserted  int `json:"inserted"`
	Updated   int `json:"updated"`
	Errors    int `json:"errors"`
	Skipped   int `json:"skipped"`
}

// Importer loads one data type from files into the store.
type Importer struct {
	dataType    DataType
	model       models.Model
	parsers     map[string]Parser
	transformer Transformer
	build       models.Builder
	store       storage.Repository
	source      string
	logger      *log.Logger
	metrics     *observability.Metrics
}

// New returns the importer for dataType.
func New(dataType DataType, store storage.Repository, opts Options) (*Importer, error) {
	dt, err := ParseDataType(string(dataType))
	if err != nil {
		return nil, err
	}
	logger := logging.OrDiscard(opts.Logger).With("data_type", string(dt))
	z := zone{Location: opts.Location, Logger: logger}

	imp := &Importer{
		dataType: dt,
		parsers:  defaultParsers(),
		store:    store,
		source:   opts.Source,
		logger:   logger,
		metrics:  opts.Metrics,
	}
	if imp.source == "" {
		imp.source = models.DefaultDataSource
	}
	for ext, p := range opts.Parsers {
		imp.parsers[strings.ToLower(ext)] = p
	}

	switch dt {
	case Activity:
		imp.model, imp.transformer, imp.build = models.ActivityModel, ActivityTransformer{}, models.BuildActivity
	case Sleep:
		imp.model, imp.transformer, imp.build = models.SleepModel, SleepTransformer{z}, models.BuildSleep
	case Sport:
		imp.model, imp.transformer, imp.build = models.SportModel, SportTransformer{z}, models.BuildSport
	case HeartRate:
		imp.model, imp.transformer, imp.build = models.HeartRateModel, HeartRateTransformer{z}, models.BuildHeartRate
	}
	return imp, nil
}

// DataType returns the data type this importer handles.
func (i *Importer) DataType() DataType { return i.dataType }

// Model returns the model records are built for.
func (i *Importer) Model() models.Model { return i.model }

// Source returns the data_source recorded on each row.
func (i *Importer) Source() string { return i.source }

// ParserFor returns the parser used for path, chosen by its extension.
func (i *Importer) ParserFor(path string) Parser {
	if p, ok := i.parsers[strings.ToLower(filepath.Ext(path))]; ok {
		return p
	}
	return i.parsers[".csv"]
}

// ValidateFile checks that path exists, is a regular file and has a supported extension.
func ValidateFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat file: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("not a file: %s", path)
	}
	ext := strings.ToLower(filepath.Ext(path))
	for _, supported := range SupportedExtensions {
		if ext == supported {
			return nil
		}
	}
	return fmt.Errorf("unsupported file extension: %s", ext)
}

// LoadFile parses and validates every row of path without writing.
// Row failures are logged and counted; a *ParseError aborts the file.
func (i *Importer) LoadFile(ctx context.Context, path string, userID int64) ([]models.Record, int, error) {
	rows, err := i.ParserFor(path).Parse(path)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var records []models.Record
	rowErrors := 0
	for rows.Next() {
		if err := ctx.Err(); err != nil {
			return nil, rowErrors, err
		}
		rec, err := i.buildRow(rows.Row(), userID)
		if err != nil {
			rowErrors++
			i.logger.Warn("skipping row", "file", filepath.Base(path), "line", rows.Line(), "err", err)
			continue
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, rowErrors, err
	}
	return records, rowErrors, nil
}

func (i *Importer) buildRow(raw RawRow, userID int64) (models.Record, error) {
	fields, err := i.transformer.Transform(raw)
	if err != nil {
		return nil, err
	}
	fields["user_id"] = userID
	fields["data_source"] = i.source
	return i.build(fields)
}

// ImportFile loads path and writes its valid rows in batches of batchSize.
// In dry-run mode nothing is written. Parse and integrity errors are
// returned along with the counts gathered so far.
func (i *Importer) ImportFile(ctx context.Context, path string, userID int64, batchSize int, dryRun bool) (*Stats, error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	stats := &Stats{}
	i.logger.Info("importing file", "file", path, "dry_run", dryRun)

	records, rowErrors, err := i.LoadFile(ctx, path, userID)
	stats.Errors = rowErrors
	i.metrics.RecordRows(string(i.dataType), observability.OutcomeError, rowErrors)
	if err != nil {
		return stats, err
	}
	stats.Processed = len(records)

	if dryRun {
		i.logger.Info("dry run complete", "file", path, "valid", stats.Processed, "errors", stats.Errors)
		return stats, nil
	}

	for start := 0; start < len(records); start += batchSize {
		batch := records[start:min(start+batchSize, len(records))]
		res, err := i.store.UpsertBatch(ctx, batch)
		if err != nil {
			return stats, fmt.Errorf("write %s batch at record %d: %w", i.dataType, start, err)
		}
		stats.Inserted += res.Inserted
		stats.Updated += res.Updated
		i.metrics.RecordRows(string(i.dataType), observability.OutcomeInserted, res.Inserted)
		i.metrics.RecordRows(string(i.dataType), observability.OutcomeUpdated, res.Updated)
	}

	i.logger.Info("import complete",
		"file", path,
		"processed", stats.Processed,
		"inserted", stats.Inserted,
		"updated", stats.Updated,
		"errors", stats.Errors,
	)
	return stats, nil
}
