package manifest

import (
	"fmt"
	"strings"
)

// ValidationError lists every problem Validate found in a manifest, in the
// order the manifest declares the offending fields. Each entry starts with
// the field's path, e.g. "plugins.loaders[1].pip_url is required".
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	switch len(e.Errors) {
	case 0:
		return "invalid manifest"
	case 1:
		return "invalid manifest: " + e.Errors[0]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "invalid manifest: %d problems", len(e.Errors))
	for _, msg := range e.Errors {
		b.WriteString("\n  - ")
		b.WriteString(msg)
	}
	return b.String()
}

// Add records a problem.
func (e *ValidationError) Add(msg string) {
	e.Errors = append(e.Errors, msg)
}

// Addf records a formatted problem.
func (e *ValidationError) Addf(format string, args ...any) {
	e.Add(fmt.Sprintf(format, args...))
}

// orNil returns e, or nil for a manifest with no problems.
func (e *ValidationError) orNil() error {
	if len(e.Errors) == 0 {
		return nil
	}
	return e
}
