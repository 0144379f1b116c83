package manifest

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestValidateDocumentTemplate(t *testing.T) {
	t.Parallel()

	if err := ValidateDocument(Template(), FormatYAML); err != nil {
		t.Errorf("Expected template to match schema, got: %v", err)
	}
}

func TestValidateDocumentRejects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		src  string
	}{
		{"missing project_id", "version: 1\n"},
		{"empty project_id", "project_id: ''\n"},
		{"version out of range", "project_id: demo\nversion: 3\n"},
		{"version not integer", "project_id: demo\nversion: one\n"},
		{"unknown capability", `
project_id: demo
plugins:
  extractors:
  - name: tap-iterable
    pip_url: tap-iterable
    capabilities: [teleport]
`},
		{"plugin without pip_url", `
project_id: demo
plugins:
  loaders:
  - name: target-jsonl
`},
		{"empty settings group", `
project_id: demo
plugins:
  extractors:
  - name: tap-iterable
    pip_url: tap-iterable
    settings_group_validation:
    - []
`},
		{"schedule without interval", `
project_id: demo
schedules:
- name: daily
  extractor: tap-iterable
  loader: target-jsonl
`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := ValidateDocument([]byte(tt.src), FormatYAML)
			if err == nil {
				t.Fatal("Expected schema violation")
			}
			if !strings.Contains(err.Error(), "manifest does not match schema") {
				t.Errorf("Unexpected error: %v", err)
			}
		})
	}
}

func TestValidateDocumentParseError(t *testing.T) {
	t.Parallel()

	err := ValidateDocument([]byte("project_id = "), FormatTOML)
	if err == nil || !strings.Contains(err.Error(), "failed to parse manifest TOML") {
		t.Errorf("Expected TOML parse error, got %v", err)
	}
}

func TestSchemaMarshals(t *testing.T) {
	t.Parallel()

	b, err := json.Marshal(Schema())
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if !strings.Contains(string(b), `"stream-maps"`) {
		t.Error("Expected capability enum in schema JSON")
	}
}
