package storage

import (
	"context"

	"github.com/carlosmarte/repometrics/internal/domain"
)

// Storage is the record cache behind reports: collected records are
// persisted once so reports and the API re-aggregate without re-fetching.
type Storage interface {
	// Record operations. SaveRecords upserts by record ID, so re-collecting
	// an overlapping window never duplicates rows.
	SaveRecords(ctx context.Context, records []domain.Record) error
	// GetRecords returns records for a source inside the time range,
	// ordered by timestamp. kind filters to one record kind; empty means all.
	GetRecords(ctx context.Context, source string, kind domain.Kind, timeRange domain.TimeRange) ([]domain.Record, error)

	// Collection run bookkeeping
	SaveRun(ctx context.Context, run *domain.CollectionRun) error
	GetRuns(ctx context.Context, source string) ([]*domain.CollectionRun, error)

	// Migration
	Migrate(ctx context.Context) error

	// Connection management
	Close() error
}
