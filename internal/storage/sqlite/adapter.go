package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/carlosmarte/repometrics/internal/domain"
	"github.com/carlosmarte/repometrics/internal/storage"
)

// sqliteStorage implements the Storage interface for SQLite
type sqliteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(path string) (storage.Storage, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	s := &sqliteStorage{db: db}
	if err := s.Migrate(context.Background()); err != nil {
		return nil, err
	}

	return s, nil
}

// Migrate runs database migrations
func (s *sqliteStorage) Migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS records (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		source TEXT NOT NULL,
		repo TEXT NOT NULL,
		actor TEXT NOT NULL,
		timestamp TIMESTAMP NOT NULL,
		numbers TEXT NOT NULL,
		texts TEXT NOT NULL,
		flags TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_records_source_timestamp ON records(source, timestamp);
	CREATE INDEX IF NOT EXISTS idx_records_source_kind ON records(source, kind);
	CREATE INDEX IF NOT EXISTS idx_records_actor ON records(actor);

	CREATE TABLE IF NOT EXISTS collection_runs (
		id TEXT PRIMARY KEY,
		source TEXT NOT NULL,
		start_date TIMESTAMP NOT NULL,
		end_date TIMESTAMP NOT NULL,
		records INTEGER NOT NULL DEFAULT 0,
		partial BOOLEAN NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'in_progress',
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_collection_runs_source ON collection_runs(source);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// SaveRecords upserts a batch of records in one transaction
func (s *sqliteStorage) SaveRecords(ctx context.Context, records []domain.Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO records (id, kind, source, repo, actor, timestamp, numbers, texts, flags)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			kind = excluded.kind,
			source = excluded.source,
			repo = excluded.repo,
			actor = excluded.actor,
			timestamp = excluded.timestamp,
			numbers = excluded.numbers,
			texts = excluded.texts,
			flags = excluded.flags
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, rec := range records {
		numbers, texts, flags, err := marshalPayload(rec)
		if err != nil {
			return err
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
func (s *sqliteStorage) GetRecords(ctx context.Context, source string, kind domain.Kind, timeRange domain.TimeRange) ([]domain.Record, error) {
	query := `
		SELECT id, kind, source, repo, actor, timestamp, numbers, texts, flags
		FROM records
		WHERE source = ? AND timestamp >= ? AND timestamp <= ?
	`
	args := []interface{}{source, timeRange.Start, timeRange.End}
	if kind != "" {
		query += ` AND kind = ?`
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
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}

// SaveRun upserts a collection run
func (s *sqliteStorage) SaveRun(ctx context.Context, run *domain.CollectionRun) error {
	query := `
		INSERT INTO collection_runs (id, source, start_date, end_date, records, partial, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			records = excluded.records,
			partial = excluded.partial,
			status = excluded.status,
			updated_at = excluded.updated_at
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
func (s *sqliteStorage) GetRuns(ctx context.Context, source string) ([]*domain.CollectionRun, error) {
	query := `
		SELECT id, source, start_date, end_date, records, partial, status, created_at, updated_at
		FROM collection_runs
		WHERE source = ?
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
func (s *sqliteStorage) Close() error {
	return s.db.Close()
}

func marshalPayload(rec domain.Record) (numbers, texts, flags string, err error) {
	n, err := json.Marshal(rec.Numbers)
	if err != nil {
		return "", "", "", fmt.Errorf("marshal numbers for %s: %w", rec.ID, err)
	}
	t, err := json.Marshal(rec.Texts)
	if err != nil {
		return "", "", "", fmt.Errorf("marshal texts for %s: %w", rec.ID, err)
	}
	f, err := json.Marshal(rec.Flags)
	if err != nil {
		return "", "", "", fmt.Errorf("marshal flags for %s: %w", rec.ID, err)
	}
	return string(n), string(t), string(f), nil
}

func scanRecord(rows *sql.Rows) (domain.Record, error) {
	var rec domain.Record
	var kind, numbers, texts, flags string

	if err := rows.Scan(&rec.ID, &kind, &rec.Source, &rec.Repo, &rec.Actor, &rec.Timestamp, &numbers, &texts, &flags); err != nil {
		return domain.Record{}, err
	}
	rec.Kind = domain.Kind(kind)

	if err := json.Unmarshal([]byte(numbers), &rec.Numbers); err != nil {
		return domain.Record{}, fmt.Errorf("unmarshal numbers for %s: %w", rec.ID, err)
	}
	if err := json.Unmarshal([]byte(texts), &rec.Texts); err != nil {
		return domain.Record{}, fmt.Errorf("unmarshal texts for %s: %w", rec.ID, err)
	}
	if err := json.Unmarshal([]byte(flags), &rec.Flags); err != nil {
		return domain.Record{}, fmt.Errorf("unmarshal flags for %s: %w", rec.ID, err)
	}

	return rec, nil
}
