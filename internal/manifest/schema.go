package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/samber/lo"
)

var (
	resolvedOnce   sync.Once
	resolvedSchema *jsonschema.Resolved
	errResolve     error
)

func str() *jsonschema.Schema { return &jsonschema.Schema{Type: "string"} }

func nonEmpty() *jsonschema.Schema {
	return &jsonschema.Schema{Type: "string", MinLength: lo.ToPtr(1)}
}

func strList() *jsonschema.Schema { return &jsonschema.Schema{Type: "array", Items: str()} }

// ref points at a schema under $defs; a schema value may appear only once in the tree.
func ref(name string) *jsonschema.Schema { return &jsonschema.Schema{Ref: "#/$defs/" + name} }

func object() *jsonschema.Schema { return &jsonschema.Schema{Type: "object"} }

func enumOf[T ~string](values map[T]bool) []any {
	names := make([]string, 0, len(values))
	for v := range values {
		if v != "" {
			names = append(names, string(v))
		}
	}
	sort.Strings(names)
	return lo.ToAnySlice(names)
}

func pluginSchema() *jsonschema.Schema {
	option := &jsonschema.Schema{
		Type:     "object",
		Required: []string{"value"},
		Properties: map[string]*jsonschema.Schema{
			"label": str(),
			"value": str(),
		},
	}

	setting := &jsonschema.Schema{
		Type:     "object",
		Required: []string{"name"},
		Properties: map[string]*jsonschema.Schema{
			"name":        nonEmpty(),
			"label":       str(),
			"description": str(),
			"kind":        {Type: "string", Enum: enumOf(validKinds)},
			"sensitive":   {Type: "boolean"},
			"options":     {Type: "array", Items: option},
			"env":         str(),
		},
	}

	return &jsonschema.Schema{
		Type:     "object",
		Required: []string{"name", "pip_url"},
		Properties: map[string]*jsonschema.Schema{
			"name":       nonEmpty(),
			"namespace":  str(),
			"variant":    str(),
			"pip_url":    nonEmpty(),
			"executable": str(),
			"capabilities": {
				Type:        "array",
				Items:       &jsonschema.Schema{Type: "string", Enum: enumOf(validCapabilities)},
				UniqueItems: true,
			},
			"settings": {Type: "array", Items: setting},
			"settings_group_validation": {
				Type:  "array",
				Items: &jsonschema.Schema{Type: "array", Items: str(), MinItems: lo.ToPtr(1)},
			},
			"config": object(),
			"select": strList(),
		},
	}
}

// Schema returns the JSON Schema a manifest document must satisfy.
func Schema() *jsonschema.Schema {
	override := &jsonschema.Schema{
		Type:     "object",
		Required: []string{"name"},
		Properties: map[string]*jsonschema.Schema{
			"name":   nonEmpty(),
			"config": object(),
			"select": strList(),
		},
	}

	environment := &jsonschema.Schema{
		Type:     "object",
		Required: []string{"name"},
		Properties: map[string]*jsonschema.Schema{
			"name": nonEmpty(),
			"config": {
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"plugins": {
						Type: "object",
						Properties: map[string]*jsonschema.Schema{
							"extractors": {Type: "array", Items: ref("override")},
							"loaders":    {Type: "array", Items: ref("override")},
						},
					},
				},
			},
			"env": {Type: "object", AdditionalProperties: str()},
		},
	}

	schedule := &jsonschema.Schema{
		Type:     "object",
		Required: []string{"name", "extractor", "loader", "interval"},
		Properties: map[string]*jsonschema.Schema{
			"name":      nonEmpty(),
			"extractor": nonEmpty(),
			"loader":    nonEmpty(),
			"interval":  nonEmpty(),
		},
	}

	return &jsonschema.Schema{
		Title:    "tapline manifest",
		Type:     "object",
		Required: []string{"project_id"},
		Defs: map[string]*jsonschema.Schema{
			"plugin":   pluginSchema(),
			"override": override,
		},
		Properties: map[string]*jsonschema.Schema{
			"version":                    {Type: "integer", Minimum: lo.ToPtr(0.0), Maximum: lo.ToPtr(float64(CurrentVersion))},
			"send_anonymous_usage_stats": {Type: "boolean"},
			"project_id":                 nonEmpty(),
			"default_environment":        str(),
			"database_uri":               str(),
			"environments":               {Type: "array", Items: environment},
			"plugins": {
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"extractors": {Type: "array", Items: ref("plugin")},
					"loaders":    {Type: "array", Items: ref("plugin")},
				},
			},
			"schedules": {Type: "array", Items: schedule},
			"state_backend": {
				Type:       "object",
				Properties: map[string]*jsonschema.Schema{"uri": str()},
			},
		},
	}
}

func resolved() (*jsonschema.Resolved, error) {
	resolvedOnce.Do(func() {
		resolvedSchema, errResolve = Schema().Resolve(nil)
	})
	return resolvedSchema, errResolve
}

// ValidateDocument checks raw manifest bytes against the manifest JSON Schema.
// Environment variables are expanded first, as Load does.
func ValidateDocument(raw []byte, format Format) error {
	rs, err := resolved()
	if err != nil {
		return fmt.Errorf("failed to resolve manifest schema: %w", err)
	}

	doc, err := decodeDocument([]byte(os.ExpandEnv(string(raw))), format)
	if err != nil {
		return err
	}

	// Round-trip through JSON so YAML and TOML scalars arrive as JSON types.
	b, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode manifest document: %w", err)
	}
	var instance any
	if err := json.Unmarshal(b, &instance); err != nil {
		return fmt.Errorf("failed to decode manifest document: %w", err)
	}

	if err := rs.Validate(instance); err != nil {
		return fmt.Errorf("manifest does not match schema: %w", err)
	}
	return nil
}
