package session

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// PostgresStore persists session records in a single table. Enabled by
// INFRAME_DB_DSN; the table is created lazily on first use.
type PostgresStore struct {
	db *sql.DB

	schemaOnce sync.Once
	schemaErr  error
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("session: empty dsn")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Close() error { return s.db.Close() }

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	s.schemaOnce.Do(func() {
		_, s.schemaErr = s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS inframe_sessions (
    id                  TEXT PRIMARY KEY,
    title               TEXT NOT NULL DEFAULT '',
    started_at          TIMESTAMPTZ NOT NULL,
    ended_at            TIMESTAMPTZ NOT NULL,
    clips_recorded      INTEGER NOT NULL DEFAULT 0,
    clips_processed     BIGINT NOT NULL DEFAULT 0,
    processing_failures BIGINT NOT NULL DEFAULT 0,
    queries_total       BIGINT NOT NULL DEFAULT 0,
    queries_failed      BIGINT NOT NULL DEFAULT 0,
    avg_confidence      DOUBLE PRECISION NOT NULL DEFAULT 0
)`)
	})
	return s.schemaErr
}

func (s *PostgresStore) Save(ctx context.Context, rec Record) error {
	if rec.ID == "" {
		return errors.New("session: record id is required")
	}
	if err := s.ensureSchema(ctx); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO inframe_sessions
    (id, title, started_at, ended_at, clips_recorded, clips_processed,
     processing_failures, queries_total, queries_failed, avg_confidence)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
ON CONFLICT (id) DO UPDATE SET
    title = EXCLUDED.title,
    started_at = EXCLUDED.started_at,
    ended_at = EXCLUDED.ended_at,
    clips_recorded = EXCLUDED.clips_recorded,
    clips_processed = EXCLUDED.clips_processed,
    processing_failures = EXCLUDED.processing_failures,
    queries_total = EXCLUDED.queries_total,
    queries_failed = EXCLUDED.queries_failed,
    avg_confidence = EXCLUDED.avg_confidence`,
		rec.ID, rec.Title, rec.StartedAt, rec.EndedAt, rec.ClipsRecorded,
		rec.ClipsProcessed, rec.ProcessingFailures, rec.QueriesTotal,
		rec.QueriesFailed, rec.AvgConfidence)
	return err
}

func (s *PostgresStore) Get(ctx context.Context, id string) (Record, bool, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return Record{}, false, err
	}
	row := s.db.QueryRowContext(ctx, `
SELECT id, title, started_at, ended_at, clips_recorded, clips_processed,
       processing_failures, queries_total, queries_failed, avg_confidence
FROM inframe_sessions WHERE id = $1`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, err
	}
	return rec, true, nil
}

func (s *PostgresStore) List(ctx context.Context) ([]Record, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, title, started_at, ended_at, clips_recorded, clips_processed,
       processing_failures, queries_total, queries_failed, avg_confidence
FROM inframe_sessions ORDER BY started_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRecord(row scannable) (Record, error) {
	var rec Record
	err := row.Scan(&rec.ID, &rec.Title, &rec.StartedAt, &rec.EndedAt,
		&rec.ClipsRecorded, &rec.ClipsProcessed, &rec.ProcessingFailures,
		&rec.QueriesTotal, &rec.QueriesFailed, &rec.AvgConfidence)
	return rec, err
}
