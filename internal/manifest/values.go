package manifest

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidDate is returned when a value is not an ISO-8601 date or timestamp.
var ErrInvalidDate = errors.New("manifest: invalid ISO-8601 date")

var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseDate parses an ISO-8601 date (YYYY-MM-DD) or timestamp (RFC 3339).
// Timestamps without an offset are read as UTC.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
}

// FormatDate renders t as a date when it falls on UTC midnight, otherwise as RFC 3339.
func FormatDate(t time.Time) string {
	t = t.UTC()
	if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0 {
		return t.Format("2006-01-02")
	}
	return t.Format(time.RFC3339)
}

// ParseBool parses the boolean spellings accepted for setting values.
func ParseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes", "y", "on":
		return true, nil
	case "false", "0", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("manifest: invalid boolean %q", s)
	}
}

// AsInt converts a decoded manifest value to an int.
func AsInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case uint64:
		return int(n), nil //nolint:gosec // manifest integers are small
	case float64:
		if n != float64(int(n)) {
			return 0, fmt.Errorf("manifest: %v is not an integer", n)
		}
		return int(n), nil
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0, fmt.Errorf("manifest: %q is not an integer", n)
		}
		return i, nil
	default:
		return 0, fmt.Errorf("manifest: %T is not an integer", v)
	}
}

// ErrInvalidInterval is returned when a schedule interval cannot be parsed.
var ErrInvalidInterval = errors.New("manifest: invalid schedule interval")

// MinInterval is the shortest schedule interval accepted.
const MinInterval = time.Minute

// Interval is a parsed schedule interval.
type Interval struct {
	Every time.Duration
	Once  bool
}

var namedIntervals = map[string]time.Duration{
	"@hourly":  time.Hour,
	"@daily":   24 * time.Hour,
	"@weekly":  7 * 24 * time.Hour,
	"@monthly": 30 * 24 * time.Hour,
}

// ParseInterval parses a schedule interval: @once, @hourly, @daily, @weekly,
// @monthly, or a Go duration of at least one minute.
func ParseInterval(s string) (Interval, error) {
	s = strings.TrimSpace(s)
	if s == "@once" {
		return Interval{Once: true}, nil
	}
	if d, ok := namedIntervals[s]; ok {
		return Interval{Every: d}, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return Interval{}, fmt.Errorf("%w: %q", ErrInvalidInterval, s)
	}
	if d < MinInterval {
		return Interval{}, fmt.Errorf("%w: %q is shorter than %s", ErrInvalidInterval, s, MinInterval)
	}
	return Interval{Every: d}, nil
}

// String renders the interval in the form ParseInterval accepts.
func (i Interval) String() string {
	if i.Once {
		return "@once"
	}
	for name, d := range namedIntervals {
		if d == i.Every {
			return name
		}
	}
	return i.Every.String()
}
