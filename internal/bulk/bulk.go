// ABOUTME: Bulk importer running many export files through duplicate-aware import.
// ABOUTME: Each file is loaded, deduplicated, split into new and existing, then written.
package bulk

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/harperreed/healthetl/internal/importer"
	"github.com/harperreed/healthetl/internal/logging"
	"github.com/harperreed/healthetl/internal/models"
	"github.com/harperreed/healthetl/internal/observability"
	"github.com/harperreed/healthetl/internal/storage"
)

// Options configures a bulk Importer.
type Options struct {
	// UserID is the users.id every imported row is attributed to.
	UserID   int64
	Importer importer.Options
}

// Stats totals one bulk run.
type Stats struct {
	RunID           string   `json:"run_id" yaml:"run_id"`
	FilesProcessed  int      `json:"files_processed" yaml:"files_processed"`
	FilesSkipped    int      `json:"files_skipped" yaml:"files_skipped"`
	FilesFailed     int      `json:"files_failed" yaml:"files_failed"`
	RecordsInserted int      `json:"records_inserted" yaml:"records_inserted"`
	RecordsUpdated  int      `json:"records_updated" yaml:"records_updated"`
	RecordsSkipped  int      `json:"records_skipped" yaml:"records_skipped"`
	Errors          []string `json:"errors" yaml:"errors"`
}

// Importer imports export trees with a duplicate strategy.
type Importer struct {
	store     storage.Repository
	opts      Options
	logger    *log.Logger
	metrics   *observability.Metrics
	importers map[importer.DataType]*importer.Importer
}

// New creates a bulk importer writing through store.
func New(store storage.Repository, opts Options) *Importer {
	return &Importer{
		store:     store,
		opts:      opts,
		logger:    logging.OrDiscard(opts.Importer.Logger),
		metrics:   opts.Importer.Metrics,
		importers: make(map[importer.DataType]*importer.Importer),
	}
}

func (b *Importer) fileImporter(dt importer.DataType) (*importer.Importer, error) {
	if imp, ok := b.importers[dt]; ok {
		return imp, nil
	}
	imp, err := importer.New(dt, b.store, b.opts.Importer)
	if err != nil {
		return nil, err
	}
	b.importers[dt] = imp
	return imp, nil
}

// CheckForDuplicates splits records into those whose natural key is new and
// those already stored. A lookup failure is logged and every record is
// treated as new.
func (b *Importer) CheckForDuplicates(ctx context.Context, dt importer.DataType, records []models.Record) (fresh, existing []models.Record) {
	if len(records) == 0 {
		return nil, nil
	}
	keys := make([][]any, len(records))
	for i, r := range records {
		keys[i] = r.Key()
	}
	found, err := b.store.FindExistingKeys(ctx, records[0].Model(), keys)
	if err != nil {
		b.logger.Error("duplicate check failed, treating all records as new", "data_type", dt, "err", err)
		return records, nil
	}
	for _, r := range records {
		if found[models.KeyString(r.Key())] {
			existing = append(existing, r)
		} else {
			fresh = append(fresh, r)
		}
	}
	b.logger.Debug("duplicate check", "data_type", dt, "new", len(fresh), "existing", len(existing))
	return fresh, existing
}

// HandleDuplicateStrategy applies strategy to records that already exist and
// returns how many were skipped or updated.
func (b *Importer) HandleDuplicateStrategy(ctx context.Context, dt importer.DataType, existing []models.Record, strategy Strategy) (int, error) {
	switch strategy {
	case StrategySkip:
		b.logger.Info("skipping existing records", "data_type", dt, "count", len(existing))
		return len(existing), nil
	case StrategyError:
		if len(existing) == 0 {
			return 0, nil
		}
		return 0, &DuplicateError{DataType: string(dt), Count: len(existing)}
	case StrategyUpdate:
		if len(existing) == 0 {
			return 0, nil
		}
		n, err := b.store.UpdateByKey(ctx, existing)
		if err != nil {
			return 0, fmt.Errorf("update existing %s records: %w", dt, err)
		}
		b.logger.Info("updated existing records", "data_type", dt, "count", n)
		return n, nil
	}
	return 0, fmt.Errorf("%w: %s", ErrUnknownStrategy, strategy)
}

// ImportFiles imports every file, data type by data type. A file that fails
// is recorded and the run continues; a duplicate under StrategyError, an
// integrity violation or cancellation ends the run and is returned with the
// stats gathered so far.
func (b *Importer) ImportFiles(ctx context.Context, files Files, strategy Strategy, dryRun bool) (*Stats, error) {
	stats := &Stats{RunID: uuid.New().String(), Errors: []string{}}
	strategy, err := ParseStrategy(string(strategy))
	if err != nil {
		return stats, err
	}
	logger := b.logger.With("run_id", stats.RunID)
	logger.Info("starting bulk import", "strategy", strategy, "dry_run", dryRun, "files", files.Total())

	for _, dt := range importer.AllDataTypes {
		for _, path := range files[dt] {
			err := b.importFile(ctx, logger, dt, path, strategy, dryRun, stats)
			if err == nil {
				continue
			}
			if fatal(err) {
				stats.Errors = append(stats.Errors, fmt.Sprintf("%s: %v", path, err))
				b.metrics.RecordFile(string(dt), observability.FileFailed)
				logger.Error("bulk import aborted", "file", path, "err", err)
				return stats, err
			}
			stats.FilesFailed++
			stats.Errors = append(stats.Errors, fmt.Sprintf("%s: %v", path, err))
			b.metrics.RecordFile(string(dt), observability.FileFailed)
			logger.Error("file import failed", "file", path, "err", err)
		}
	}

	b.metrics.MarkRun(time.Now())
	logger.Info("bulk import complete",
		"files_processed", stats.FilesProcessed,
		"files_skipped", stats.FilesSkipped,
		"files_failed", stats.FilesFailed,
		"records_inserted", stats.RecordsInserted,
		"records_updated", stats.RecordsUpdated,
		"records_skipped", stats.RecordsSkipped,
	)
	return stats, nil
}

func fatal(err error) bool {
	var dup *DuplicateError
	return errors.As(err, &dup) ||
		errors.Is(err, storage.ErrIntegrity) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

func (b *Importer) importFile(ctx context.Context, logger *log.Logger, dt importer.DataType, path string, strategy Strategy, dryRun bool, stats *Stats) error {
	imp, err := b.fileImporter(dt)
	if err != nil {
		return err
	}

	records, rowErrors, err := imp.LoadFile(ctx, path, b.opts.UserID)
	b.metrics.RecordRows(string(dt), observability.OutcomeError, rowErrors)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		logger.Warn("no valid records", "file", path)
		stats.FilesSkipped++
		b.metrics.RecordFile(string(dt), observability.FileSkipped)
		return nil
	}

	records = dedupe(records)
	fresh, existing := b.CheckForDuplicates(ctx, dt, records)
	logger.Info("loaded file", "file", path, "records", len(records), "new", len(fresh), "existing", len(existing))

	if dryRun {
		stats.FilesProcessed++
		b.metrics.RecordFile(string(dt), observability.FileProcessed)
		return nil
	}

	handled, err := b.HandleDuplicateStrategy(ctx, dt, existing, strategy)
	if err != nil {
		return err
	}
	if strategy == StrategySkip {
		stats.RecordsSkipped += handled
		b.metrics.RecordRows(string(dt), observability.OutcomeSkipped, handled)
	} else {
		stats.RecordsUpdated += handled
		b.metrics.RecordRows(string(dt), observability.OutcomeUpdated, handled)
	}

	if len(fresh) > 0 {
		res, err := b.store.UpsertBatch(ctx, fresh)
		if err != nil {
			return fmt.Errorf("insert new %s records: %w", dt, err)
		}
		stats.RecordsInserted += res.Inserted
		stats.RecordsUpdated += res.Updated
		b.metrics.RecordRows(string(dt), observability.OutcomeInserted, res.Inserted)
		b.metrics.RecordRows(string(dt), observability.OutcomeUpdated, res.Updated)
	}

	stats.FilesProcessed++
	b.metrics.RecordFile(string(dt), observability.FileProcessed)
	return nil
}

// dedupe collapses records sharing a natural key, keeping the position of
// the first occurrence and the values of the last.
func dedupe(records []models.Record) []models.Record {
	index := make(map[string]int, len(records))
	out := make([]models.Record, 0, len(records))
	for _, r := range records {
		k := models.KeyString(r.Key())
		if i, ok := index[k]; ok {
			out[i] = r
			continue
		}
		index[k] = len(out)
		out = append(out, r)
	}
	return out
}

// ImportDirectory discovers export files under root and imports them.
func (b *Importer) ImportDirectory(ctx context.Context, root string, strategy Strategy, dryRun bool) (*Stats, error) {
	return b.ImportFiles(ctx, DiscoverFiles(root, b.logger), strategy, dryRun)
}
