package systemdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Status is the state of a pipeline run.
type Status string

// Run statuses.
const (
	StatusRunning Status = "running"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// ErrRunNotFound is returned when a run id is unknown.
var ErrRunNotFound = errors.New("systemdb: run not found")

// Run is one row of the runs table.
type Run struct {
	StartedAt time.Time
	EndedAt   time.Time
	ID        string
	StateID   string
	Status    Status
	Error     string
}

// Duration is the run's wall time, zero while it is running.
func (r Run) Duration() time.Duration {
	if r.EndedAt.IsZero() {
		return 0
	}
	return r.EndedAt.Sub(r.StartedAt)
}

// StartRun records a new running run.
func (db *DB) StartRun(ctx context.Context, id, stateID string, startedAt time.Time) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("run id is required")
	}
	if strings.TrimSpace(stateID) == "" {
		return fmt.Errorf("state id is required")
	}
	if startedAt.IsZero() {
		startedAt = time.Now()
	}

	_, err := db.sqlDB.ExecContext(ctx,
		`INSERT INTO runs (id, state_id, status, started_at) VALUES (?, ?, ?, ?)`,
		id, stateID, string(StatusRunning), startedAt.UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("start run: %w", err)
	}
	return nil
}

// FinishRun marks a run success, or failed with runErr's message when runErr is non-nil.
func (db *DB) FinishRun(ctx context.Context, id string, endedAt time.Time, runErr error) error {
	status, msg := StatusSuccess, ""
	if runErr != nil {
		status, msg = StatusFailed, runErr.Error()
	}
	if endedAt.IsZero() {
		endedAt = time.Now()
	}

	res, err := db.sqlDB.ExecContext(ctx,
		`UPDATE runs SET status = ?, ended_at = ?, error = ? WHERE id = ?`,
		string(status), endedAt.UTC().UnixMilli(), msg, id,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return nil
}

// GetRun returns the run with the given id.
func (db *DB) GetRun(ctx context.Context, id string) (Run, error) {
	row := db.sqlDB.QueryRowContext(ctx, `
SELECT id, state_id, status, started_at, ended_at, error
FROM runs
WHERE id = ?
`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return run, err
}

// ListRuns returns newest-first runs, filtered by stateID when it is non-empty.
func (db *DB) ListRuns(ctx context.Context, stateID string, limit int) ([]Run, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}

	rows, err := db.sqlDB.QueryContext(ctx, `
SELECT id, state_id, status, started_at, ended_at, error
FROM runs
WHERE ? = '' OR state_id = ?
ORDER BY started_at DESC, id DESC
LIMIT ?
`, stateID, stateID, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	runs := make([]Run, 0, limit)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (Run, error) {
	var (
		run       Run
		status    string
		startedAt int64
		endedAt   sql.NullInt64
	)
	if err := s.Scan(&run.ID, &run.StateID, &status, &startedAt, &endedAt, &run.Error); err != nil {
		return Run{}, err
	}
	run.Status = Status(status)
	run.StartedAt = time.UnixMilli(startedAt).UTC()
	if endedAt.Valid {
		run.EndedAt = time.UnixMilli(endedAt.Int64).UTC()
	}
	return run, nil
}
