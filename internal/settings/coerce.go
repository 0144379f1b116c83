package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/omarluq/tapline/internal/manifest"
)

// ErrInvalidValue is wrapped by every coercion failure.
var ErrInvalidValue = errors.New("settings: invalid value")

// CoercionError reports a value that does not match its setting kind.
type CoercionError struct {
	Err     error
	Plugin  string
	Setting string
	Source  Source
}

func (e *CoercionError) Error() string {
	return fmt.Sprintf("%s: setting %q from %s: %v", e.Plugin, e.Setting, e.Source, e.Err)
}

func (e *CoercionError) Unwrap() error {
	return e.Err
}

// Coerce converts a raw manifest or environment value to the Go type for the setting kind.
//
// Integers become int, booleans bool, dates an ISO-8601 string, arrays []any,
// objects map[string]any, and everything else a string.
func Coerce(s *manifest.Setting, raw any) (any, error) {
	switch s.EffectiveKind() {
	case manifest.KindInteger:
		n, err := manifest.AsInt(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidValue, err)
		}
		return n, nil

	case manifest.KindBoolean:
		switch v := raw.(type) {
		case bool:
			return v, nil
		case string:
			b, err := manifest.ParseBool(v)
			if err != nil {
				return nil, fmt.Errorf("%w: %w", ErrInvalidValue, err)
			}
			return b, nil
		default:
			return nil, fmt.Errorf("%w: %T is not a boolean", ErrInvalidValue, raw)
		}

	case manifest.KindDate:
		return coerceDate(raw)

	case manifest.KindOptions:
		v := fmt.Sprint(raw)
		if !lo.Contains(s.OptionValues(), v) {
			return nil, fmt.Errorf("%w: %q is not one of %s", ErrInvalidValue, v, strings.Join(s.OptionValues(), ", "))
		}
		return v, nil

	case manifest.KindArray:
		return coerceJSON[[]any](raw, "array")

	case manifest.KindObject:
		return coerceJSON[map[string]any](raw, "object")

	default:
		if str, ok := raw.(string); ok {
			return str, nil
		}
		return fmt.Sprint(raw), nil
	}
}

func coerceDate(raw any) (any, error) {
	switch v := raw.(type) {
	case time.Time:
		return manifest.FormatDate(v), nil
	case string:
		if _, err := manifest.ParseDate(v); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidValue, err)
		}
		return strings.TrimSpace(v), nil
	case fmt.Stringer:
		return coerceDate(v.String())
	default:
		return nil, fmt.Errorf("%w: %T is not an ISO-8601 date", ErrInvalidValue, raw)
	}
}

// coerceJSON accepts an already decoded value of type T or a JSON string encoding one.
func coerceJSON[T any](raw any, what string) (any, error) {
	if v, ok := raw.(T); ok {
		return v, nil
	}
	str, ok := raw.(string)
	if !ok {
		return nil, fmt.Errorf("%w: %T is not an %s", ErrInvalidValue, raw, what)
	}
	var v T
	if err := json.Unmarshal([]byte(str), &v); err != nil {
		return nil, fmt.Errorf("%w: not a JSON %s: %w", ErrInvalidValue, what, err)
	}
	return v, nil
}
