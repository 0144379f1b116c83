// Package statestore persists Singer state between pipeline runs.
package statestore

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/samber/lo"
	"github.com/tidwall/match"

	"github.com/omarluq/tapline/internal/singer"
	"github.com/omarluq/tapline/internal/systemdb"
)

// Sentinel errors.
var (
	ErrStateNotFound  = errors.New("statestore: state not found")
	ErrInvalidState   = errors.New("statestore: state must be a JSON object")
	ErrInvalidStateID = errors.New("statestore: invalid state id")
	ErrUnsupportedURI = errors.New("statestore: unsupported backend uri")
)

// SystemDBURI selects the system database backend.
const SystemDBURI = "systemdb"

// Backend stores one state document per state id.
type Backend interface {
	// Get returns the state for id or ErrStateNotFound.
	Get(ctx context.Context, id string) ([]byte, error)
	// Set replaces the state for id.
	Set(ctx context.Context, id string, state []byte) error
	// Clear removes the state for id. Clearing a missing id is not an error.
	Clear(ctx context.Context, id string) error
	// List returns the sorted ids matching a glob pattern; "" matches all.
	List(ctx context.Context, pattern string) ([]string, error)
}

// Open returns the backend for uri. db backs the systemdb backend and may be
// nil for other schemes. Relative file paths resolve against root.
func Open(ctx context.Context, uri string, db *systemdb.DB, root string) (Backend, error) {
	if uri == "" || uri == SystemDBURI {
		if db == nil {
			return nil, fmt.Errorf("%w: systemdb backend needs a database", ErrUnsupportedURI)
		}
		return NewSystemDB(db), nil
	}

	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrUnsupportedURI, uri, err)
	}

	switch u.Scheme {
	case "file":
		dir := u.Host + u.Path
		if dir == "" {
			return nil, fmt.Errorf("%w: %q names no directory", ErrUnsupportedURI, uri)
		}
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(root, dir)
		}
		return NewFile(dir), nil
	case "s3":
		if u.Host == "" {
			return nil, fmt.Errorf("%w: %q names no bucket", ErrUnsupportedURI, uri)
		}
		awsCfg, err := config.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		return NewS3(s3.NewFromConfig(awsCfg), u.Host, strings.Trim(u.Path, "/")), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedURI, uri)
	}
}

// Validate checks a state id and payload before they are stored.
func Validate(id string, state []byte) error {
	if err := validateID(id); err != nil {
		return err
	}
	if !singer.IsState(state) {
		return ErrInvalidState
	}
	return nil
}

func validateID(id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: empty", ErrInvalidStateID)
	}
	return nil
}

// filterIDs returns the sorted ids matching pattern.
func filterIDs(ids []string, pattern string) []string {
	if pattern == "" {
		pattern = "*"
	}
	out := lo.Filter(ids, func(id string, _ int) bool { return match.Match(id, pattern) })
	sort.Strings(out)
	return out
}

// DefaultStateID is the state id of an extractor/loader pair in an environment.
func DefaultStateID(environment, extractor, loader string) string {
	id := extractor + "-to-" + loader
	if environment == "" {
		return id
	}
	return environment + ":" + id
}
