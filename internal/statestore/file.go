package statestore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/renameio/v2"
)

const fileExt = ".json"

// File keeps one JSON file per state id in a directory.
// Ids are path-escaped so "dev:tap-to-target" maps to a single file name.
type File struct {
	dir string
}

// NewFile returns a backend rooted at dir.
func NewFile(dir string) *File {
	return &File{dir: dir}
}

// Dir returns the state directory.
func (f *File) Dir() string {
	return f.dir
}

func (f *File) path(id string) string {
	return filepath.Join(f.dir, url.PathEscape(id)+fileExt)
}

// Get implements Backend.
func (f *File) Get(ctx context.Context, id string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validateID(id); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(f.path(id))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrStateNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read state: %w", err)
	}
	return data, nil
}

// Set implements Backend. The file is replaced atomically.
func (f *File) Set(ctx context.Context, id string, state []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := Validate(id, state); err != nil {
		return err
	}
	if err := os.MkdirAll(f.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}
	if err := renameio.WriteFile(f.path(id), state, 0o600); err != nil {
		return fmt.Errorf("failed to write state: %w", err)
	}
	return nil
}

// Clear implements Backend.
func (f *File) Clear(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateID(id); err != nil {
		return err
	}
	if err := os.Remove(f.path(id)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to clear state: %w", err)
	}
	return nil
}

// List implements Backend.
func (f *File) List(ctx context.Context, pattern string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(f.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list state: %w", err)
	}

	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, fileExt) {
			continue
		}
		id, err := url.PathUnescape(strings.TrimSuffix(name, fileExt))
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return filterIDs(ids, pattern), nil
}
