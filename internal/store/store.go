package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// Status of a journaled run
type Status string

const (
	StatusRunning  Status = "running"
	StatusComplete Status = "complete"
	StatusFailed   Status = "failed"
)

// Run is one journaled swap job
type Run struct {
	ID           int64
	SourcePath   string
	TargetPath   string
	OutputPath   string
	TargetKind   string
	ManyFaces    bool
	Frames       int
	FacesSwapped int64
	Status       Status
	Error        string
	StartedAt    time.Time
	FinishedAt   *time.Time
}

// Store keeps the run journal in PostgreSQL
type Store struct {
	conn *pgx.Conn
}

// New connects to the database and ensures the schema exists
func New(ctx context.Context, connString string) (*Store, error) {
	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		return nil, err
	}

	if err := initSchema(ctx, conn); err != nil {
		conn.Close(ctx)
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	return &Store{conn: conn}, nil
}

func initSchema(ctx context.Context, conn *pgx.Conn) error {
	query := `
		CREATE TABLE IF NOT EXISTS swap_runs (
			id BIGSERIAL PRIMARY KEY,
			source_path TEXT NOT NULL,
			target_path TEXT NOT NULL,
			output_path TEXT NOT NULL,
			target_kind TEXT NOT NULL DEFAULT '',
			many_faces BOOLEAN NOT NULL DEFAULT FALSE,
			frames INT NOT NULL DEFAULT 0,
			faces_swapped BIGINT NOT NULL DEFAULT 0,
			status TEXT NOT NULL,
			error TEXT NOT NULL DEFAULT '',
			started_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			finished_at TIMESTAMPTZ
		);
		CREATE INDEX IF NOT EXISTS swap_runs_started_at_idx ON swap_runs (started_at DESC);
	`
	_, err := conn.Exec(ctx, query)
	return err
}

// Close terminates the database connection
func (s *Store) Close(ctx context.Context) {
	s.conn.Close(ctx)
}

// Start records a new running job and returns its id
func (s *Store) Start(ctx context.Context, run Run) (int64, error) {
	var id int64
	err := s.conn.QueryRow(ctx, `
		INSERT INTO swap_runs (source_path, target_path, output_path, target_kind, many_faces, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, run.SourcePath, run.TargetPath, run.OutputPath, run.TargetKind, run.ManyFaces, StatusRunning).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert run: %w", err)
	}
	return id, nil
}

// Outcome is what a finished job reports to the journal
type Outcome struct {
	Status       Status
	TargetKind   string
	Frames       int
	FacesSwapped int64
	Err          error
}

// Finish stores the outcome of a job
func (s *Store) Finish(ctx context.Context, id int64, out Outcome) error {
	var msg string
	if out.Err != nil {
		msg = out.Err.Error()
	}

	tag, err := s.conn.Exec(ctx, `
		UPDATE swap_runs
		SET status = $2, target_kind = COALESCE(NULLIF($3, ''), target_kind),
		    frames = $4, faces_swapped = $5, error = $6, finished_at = NOW()
		WHERE id = $1
	`, id, out.Status, out.TargetKind, out.Frames, out.FacesSwapped, msg)
	if err != nil {
		return fmt.Errorf("failed to update run %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("run %d not found", id)
	}
	return nil
}

// Recent lists the latest runs, newest first
func (s *Store) Recent(ctx context.Context, limit int) ([]Run, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT id, source_path, target_path, output_path, target_kind, many_faces,
		       frames, faces_swapped, status, error, started_at, finished_at
		FROM swap_runs
		ORDER BY started_at DESC, id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.SourcePath, &r.TargetPath, &r.OutputPath, &r.TargetKind, &r.ManyFaces,
			&r.Frames, &r.FacesSwapped, &r.Status, &r.Error, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
