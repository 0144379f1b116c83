package statestore

import (
	"context"
	"errors"
	"fmt"

	"github.com/omarluq/tapline/internal/systemdb"
)

// SystemDB keeps state in the system database.
type SystemDB struct {
	db *systemdb.DB
}

// NewSystemDB returns a backend over db.
func NewSystemDB(db *systemdb.DB) *SystemDB {
	return &SystemDB{db: db}
}

// Get implements Backend.
func (s *SystemDB) Get(ctx context.Context, id string) ([]byte, error) {
	state, err := s.db.GetState(ctx, id)
	if errors.Is(err, systemdb.ErrStateNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrStateNotFound, id)
	}
	return state, err
}

// Set implements Backend.
func (s *SystemDB) Set(ctx context.Context, id string, state []byte) error {
	if err := Validate(id, state); err != nil {
		return err
	}
	return s.db.SetState(ctx, id, state)
}

// Clear implements Backend.
func (s *SystemDB) Clear(ctx context.Context, id string) error {
	return s.db.ClearState(ctx, id)
}

// List implements Backend.
func (s *SystemDB) List(ctx context.Context, pattern string) ([]string, error) {
	ids, err := s.db.StateIDs(ctx)
	if err != nil {
		return nil, err
	}
	return filterIDs(ids, pattern), nil
}
