package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/carlosmarte/repometrics/internal/domain"
	"github.com/carlosmarte/repometrics/internal/storage"
)

// postgresStorage implements the Storage interface for PostgreSQL
type postgresStorage struct {
	db *sql.DB
}

// NewPostgresStorage creates a new PostgreSQL storage instance
func NewPostgresStorage(connStr string) (storage.Storage, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	s := &postgresStorage{db: db}
	if err := s.Migrate(context.Background()); err != nil {
		return nil, err
	}

	return s, nil
}

// Migrate runs database migrations
func (s *postgresStorage) Migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS records (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		source TEXT NOT NULL,
		repo TEXT NOT NULL,
		actor TEXT NOT NULL,
		timestamp TIMESTAMPTZ NOT NULL,
		numbers JSONB NOT NULL,
		texts JSONB NOT NULL,
		flags JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_records_source_timestamp ON records(source, timestamp);
	CREATE INDEX IF NOT EXISTS idx_records_source_kind ON records(source, kind);
	CREATE INDEX IF NOT EXISTS idx_records_actor ON records(actor);

	CREATE TABLE IF NOT EXISTS collection_runs (
		id TEXT PRIMARY KEY,
		source TEXT NOT NULL,
		start_date TIMESTAMPTZ NOT NULL,
		end_date TIMESTAMPTZ NOT NULL,
		records INTEGER NOT NULL DEFAULT 0,
		partial BOOLEAN NOT NULL DEFAULT FALSE,
		status TEXT NOT NULL DEFAULT 'in_progress',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_collection_runs_source ON collection_runs(source);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// SaveRecords upserts a batch of records in one transaction
func (s *postgresStorage) SaveRecords(ctx context.Context, records []domain.Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO records (id, kind, source, repo, actor, timestamp, numbers, texts, flags)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			kind = EXCLUDED.kind,
			source = EXCLUDED.source,
			repo = EXCLUDED.repo,
			actor = EXCLUDED.actor,
			timestamp = EXCLUDED.timestamp,
			numbers = EXCLUDED.numbers,
			texts = EXCLUDED.texts,
			flags = EXCLUDED.flags
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, rec := range records {
		numbers, err := json.Marshal(rec.Numbers)
		if err != nil {
			return fmt.Errorf("marshal numbers for %s: %w", rec.ID, err)
		}
		texts, err := json.Marshal(rec.Texts)
		if err != nil {
			return fmt.Errorf("marshal texts for %s: %w", rec.ID, err)
		}
		flags, err := json.Marshal(rec.Flags)
		if err != nil {
			return fmt.Errorf("marshal flags for %s: %w", rec.ID, err)
		}

		_, err = stmt.ExecContext(ctx,
			rec.ID,
			string(rec.Kind),
			rec.Source,
			rec.Repo,
			rec.Actor,
			rec.Timestamp,
			numbers,
			texts,
			flags,
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// GetRecords retrieves records for a source ordered by timestamp
func (s *postgresStorage) GetRecords(ctx context.Context, source string, kind domain.Kind, timeRange domain.TimeRange) ([]domain.Record, error) {
	query := `
		SELECT id, kind, source, repo, actor, timestamp, numbers, texts, flags
		FROM records
		WHERE source = $1 AND timestamp >= $2 AND timestamp <= $3
	`
	args := []interface{}{source, timeRange.Start, timeRange.End}
	if kind != "" {
		query += ` AND kind = $4`
		args = append(args, string(kind))
	}
	query += ` ORDER BY timestamp`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []domain.Record
	for rows.Next() {
		var rec domain.Record
		var kindCol string
		var numbers, texts, flags []byte

		if err := rows.Scan(&rec.ID, &kindCol, &rec.Source, &rec.Repo, &rec.Actor, &rec.Timestamp, &numbers, &texts, &flags); err != nil {
			return nil, err
		}
		rec.Kind = domain.Kind(kindCol)

		if err := json.Unmarshal(numbers, &rec.Numbers); err != nil {
			return nil, fmt.Errorf("unmarshal numbers for %s: %w", rec.ID, err)
		}
		if err := json.Unmarshal(texts, &rec.Texts); err != nil {
			return nil, fmt.Errorf("unmarshal texts for %s: %w", rec.ID, err)
		}
		if err := json.Unmarshal(flags, &rec.Flags); err != nil {
			return nil, fmt.Errorf("unmarshal flags for %s: %w", rec.ID, err)
		}

		records = append(records, rec)
	}

	return records, rows.Err()
}

// SaveRun upserts a collection run
func (s *postgresStorage) SaveRun(ctx context.Context, run *domain.CollectionRun) error {
	query := `
		INSERT INTO collection_runs (id, source, start_date, end_date, records, partial, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			records = EXCLUDED.records,
			partial = EXCLUDED.partial,
			status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at
	`
	_, err := s.db.ExecContext(ctx, query,
		run.ID,
		run.Source,
		run.StartDate,
		run.EndDate,
		run.Records,
		run.Partial,
		run.Status,
		run.CreatedAt,
		run.UpdatedAt,
	)
	return err
}

// GetRuns retrieves collection runs for a source, newest first
func (s *postgresStorage) GetRuns(ctx context.Context, source string) ([]*domain.CollectionRun, error) {
	query := `
		SELECT id, source, start_date, end_date, records, partial, status, created_at, updated_at
		FROM collection_runs
		WHERE source = $1
		ORDER BY created_at DESC
	`
	rows, err := s.db.QueryContext(ctx, query, source)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*domain.CollectionRun
	for rows.Next() {
		var r domain.CollectionRun
		if err := rows.Scan(&r.ID, &r.Source, &r.StartDate, &r.EndDate, &r.Records, &r.Partial, &r.Status, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		runs = append(runs, &r)
	}

	return runs, rows.Err()
}

// Close closes the database connection
func (s *postgresStorage) Close() error {
	return s.db.Close()
}
