package systemdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrStateNotFound is returned when no state is stored for an id.
var ErrStateNotFound = errors.New("systemdb: state not found")

// GetState returns the stored state payload for id.
func (db *DB) GetState(ctx context.Context, id string) ([]byte, error) {
	var payload string
	err := db.sqlDB.QueryRowContext(ctx, `SELECT payload FROM state WHERE state_id = ?`, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrStateNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get state: %w", err)
	}
	return []byte(payload), nil
}

// SetState replaces the state payload for id.
func (db *DB) SetState(ctx context.Context, id string, payload []byte) error {
	_, err := db.sqlDB.ExecContext(ctx, `
INSERT INTO state (state_id, payload, updated_at) VALUES (?, ?, ?)
ON CONFLICT (state_id) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at
`, id, string(payload), time.Now().UTC().UnixMilli())
	if err != nil {
		return fmt.Errorf("set state: %w", err)
	}
	return nil
}

// ClearState deletes the state for id. Clearing a missing id is not an error.
func (db *DB) ClearState(ctx context.Context, id string) error {
	if _, err := db.sqlDB.ExecContext(ctx, `DELETE FROM state WHERE state_id = ?`, id); err != nil {
		return fmt.Errorf("clear state: %w", err)
	}
	return nil
}

// StateIDs returns every stored state id in order.
func (db *DB) StateIDs(ctx context.Context) ([]string, error) {
	rows, err := db.sqlDB.QueryContext(ctx, `SELECT state_id FROM state ORDER BY state_id`)
	if err != nil {
		return nil, fmt.Errorf("list state: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan state id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate state: %w", err)
	}
	return ids, nil
}
