package manifest

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"
)

//go:embed template.yml
var template []byte

// ErrManifestExists is returned by Init when the target already has a manifest.
var ErrManifestExists = errors.New("manifest: file already exists")

// Template returns the reference manifest declaring tap-iterable and target-jsonl.
func Template() []byte {
	return bytes.Clone(template)
}

// Init writes the reference manifest into dir and returns its path.
// An existing manifest is never overwritten.
func Init(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create project directory: %w", err)
	}

	path := filepath.Join(dir, DefaultFile)
	if _, err := os.Stat(path); err == nil {
		return "", fmt.Errorf("%w: %s", ErrManifestExists, path)
	}

	if err := renameio.WriteFile(path, template, 0o644); err != nil {
		return "", fmt.Errorf("failed to write manifest: %w", err)
	}
	return path, nil
}
