// Package audit records one row per upload verdict in Postgres. The corpus
// itself stays on disk; the audit trail exists so operators can answer "what
// happened to the file I uploaded last week" after the batch response is
// gone. Optional: a nil *Store is safe to call and does nothing.
package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Record is one ingest verdict.
type Record struct {
	ID           uuid.UUID `json:"id"`
	FileID       string    `json:"file_id"`
	OriginalName string    `json:"original_name"`
	FileType     string    `json:"file_type"`
	DetectedType string    `json:"detected_type"`
	Verdict      string    `json:"verdict"` // "accepted" or "rejected"
	Reason       string    `json:"reason,omitempty"`
	Participants []string  `json:"participants,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

type Store struct {
	pool *pgxpool.Pool
}

// New connects to Postgres and ensures the audit table exists.
func New(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &Store{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() {
	if s == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS ingest_audit (
			id UUID PRIMARY KEY,
			file_id TEXT NOT NULL,
			original_name TEXT NOT NULL,
			file_type TEXT NOT NULL,
			detected_type TEXT NOT NULL DEFAULT '',
			verdict TEXT NOT NULL,
			reason TEXT NOT NULL DEFAULT '',
			participants TEXT[] NOT NULL DEFAULT '{}',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`)
	if err != nil {
		return fmt.Errorf("create ingest_audit: %w", err)
	}
	return nil
}

// Write inserts one verdict row. Errors are returned, not fatal; callers log
// and continue — a down audit database must not block ingestion.
func (s *Store) Write(ctx context.Context, r Record) error {
	if s == nil {
		return nil
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO ingest_audit (id, file_id, original_name, file_type, detected_type, verdict, reason, participants, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())`,
		uuid.New(), r.FileID, r.OriginalName, r.FileType, r.DetectedType, r.Verdict, r.Reason, r.Participants,
	)
	if err != nil {
		return fmt.Errorf("insert audit record: %w", err)
	}
	return nil
}

// Recent returns the latest verdicts, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	if s == nil {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, file_id, original_name, file_type, detected_type, verdict, reason, participants, created_at
		FROM ingest_audit
		ORDER BY created_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit records: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ID, &r.FileID, &r.OriginalName, &r.FileType, &r.DetectedType,
			&r.Verdict, &r.Reason, &r.Participants, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit record: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
