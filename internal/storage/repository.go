// ABOUTME: Repository interface the importers write through.
// ABOUTME: Lets file and bulk importers run against SQLite or a test double.
package storage

import (
	"context"

	"github.com/harperreed/healthetl/internal/models"
)

// Repository defines the write-side storage contract for health records.
type Repository interface {
	// Batch writes, each in a single transaction
	UpsertBatch(ctx context.Context, records []models.Record) (BatchResult, error)
	UpdateByKey(ctx context.Context, records []models.Record) (int, error)

	// Duplicate detection
	FindExistingKeys(ctx context.Context, model models.Model, keys [][]any) (map[string]bool, error)
}

var _ Repository = (*DB)(nil)
