// Package storage persists the run history.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	// database/sql drivers
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/spherical/paper-video/internal/domain"
)

// Supported history drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Common errors
var (
	ErrNotFound      = errors.New("record not found")
	ErrUnknownDriver = errors.New("unknown history driver")
)

// DB represents a database connection interface.
type DB interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

const schema = `
	CREATE TABLE IF NOT EXISTS video_runs (
		id          TEXT PRIMARY KEY,
		source      TEXT NOT NULL,
		status      TEXT NOT NULL,
		images      INTEGER NOT NULL DEFAULT 0,
		segments    INTEGER NOT NULL DEFAULT 0,
		bytes       BIGINT NOT NULL DEFAULT 0,
		duration_ms BIGINT NOT NULL DEFAULT 0,
		error_text  TEXT NOT NULL DEFAULT '',
		started_at  TIMESTAMP NOT NULL,
		finished_at TIMESTAMP NOT NULL
	)
`

// Open connects to the history database and creates the schema
func Open(ctx context.Context, driver, dsn string) (*sql.DB, error) {
	var sqlDriver string
	switch driver {
	case DriverSQLite:
		sqlDriver = "sqlite3"
	case DriverPostgres:
		sqlDriver = "postgres"
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}

	db, err := sql.Open(sqlDriver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if driver == DriverSQLite {
		// one writer; also keeps a :memory: database alive across queries
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	if err := Migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Migrate creates the run history table if needed
func Migrate(ctx context.Context, db DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create video_runs: %w", err)
	}
	return nil
}

// RunRepository handles run history records.
type RunRepository struct {
	db DB
}

// NewRunRepository creates a new run repository.
func NewRunRepository(db DB) *RunRepository {
	return &RunRepository{db: db}
}

// Record stores a finished run.
func (r *RunRepository) Record(ctx context.Context, run domain.RunRecord) error {
	query := `
		INSERT INTO video_runs (id, source, status, images, segments, bytes, duration_ms, error_text, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := r.db.ExecContext(ctx, query,
		run.ID, run.Source, string(run.Status), run.Images, run.Segments, run.Bytes,
		run.Duration.Milliseconds(), run.Error, run.StartedAt.UTC(), run.FinishedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", run.ID, err)
	}
	return nil
}

// GetByID retrieves a run by ID.
func (r *RunRepository) GetByID(ctx context.Context, id string) (*domain.RunRecord, error) {
	query := `
		SELECT id, source, status, images, segments, bytes, duration_ms, error_text, started_at, finished_at
		FROM video_runs WHERE id = $1
	`
	run, err := scanRun(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return run, err
}

// List returns the most recent runs, newest first.
func (r *RunRepository) List(ctx context.Context, limit int) ([]*domain.RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `
		SELECT id, source, status, images, segments, bytes, duration_ms, error_text, started_at, finished_at
		FROM video_runs ORDER BY started_at DESC LIMIT $1
	`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*domain.RunRecord
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(s scanner) (*domain.RunRecord, error) {
	var (
		run        domain.RunRecord
		status     string
		durationMS int64
	)
	err := s.Scan(
		&run.ID, &run.Source, &status, &run.Images, &run.Segments, &run.Bytes,
		&durationMS, &run.Error, &run.StartedAt, &run.FinishedAt,
	)
	if err != nil {
		return nil, err
	}
	run.Status = domain.RunStatus(status)
	run.Duration = time.Duration(durationMS) * time.Millisecond
	return &run, nil
}
