// Package catalog applies select patterns to Singer catalogs.
//
// Catalogs are edited as raw JSON so fields tapline does not model survive
// untouched.
package catalog

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/samber/lo"
	"github.com/tidwall/gjson"
	"github.com/tidwall/match"
	"github.com/tidwall/sjson"
)

// ErrInvalidCatalog is returned for input that is not a Singer catalog.
var ErrInvalidCatalog = errors.New("catalog: invalid catalog")

// Property inclusion values from stream metadata.
const (
	InclusionAutomatic   = "automatic"
	InclusionUnsupported = "unsupported"
)

// Rule is one parsed select pattern.
type Rule struct {
	Stream   string
	Property string
	Exclude  bool
}

// ParseRule parses "stream.property", "stream" (meaning "stream.*"), or either with a leading "!".
func ParseRule(pattern string) Rule {
	r := Rule{}
	pattern = strings.TrimSpace(pattern)
	if strings.HasPrefix(pattern, "!") {
		r.Exclude = true
		pattern = pattern[1:]
	}
	stream, property, ok := strings.Cut(pattern, ".")
	if !ok {
		property = "*"
	}
	r.Stream, r.Property = stream, property
	return r
}

func (r Rule) String() string {
	s := r.Stream + "." + r.Property
	if r.Exclude {
		return "!" + s
	}
	return s
}

// Rules is an ordered set of select rules.
type Rules []Rule

// ParseRules parses patterns. No patterns means "*.*".
func ParseRules(patterns []string) Rules {
	if len(patterns) == 0 {
		return Rules{{Stream: "*", Property: "*"}}
	}
	return lo.Map(patterns, func(p string, _ int) Rule { return ParseRule(p) })
}

// StreamSelected reports whether a stream is selected: some include rule
// matches it and no exclude rule removes the whole stream.
func (rs Rules) StreamSelected(stream string) bool {
	included := false
	for _, r := range rs {
		if !match.Match(stream, r.Stream) {
			continue
		}
		if r.Exclude {
			if r.Property == "*" {
				return false
			}
			continue
		}
		included = true
	}
	return included
}

// PropertySelected reports whether a property of a selected stream is selected.
func (rs Rules) PropertySelected(stream, property string) bool {
	included := false
	for _, r := range rs {
		if !match.Match(stream, r.Stream) || !match.Match(property, r.Property) {
			continue
		}
		if r.Exclude {
			return false
		}
		included = true
	}
	return included
}

// Apply marks streams and properties of catalog as selected or not according to patterns.
// Properties present in the stream schema but missing from metadata get a metadata entry.
func Apply(catalog []byte, patterns []string) ([]byte, error) {
	if !gjson.ValidBytes(catalog) {
		return nil, fmt.Errorf("%w: not valid JSON", ErrInvalidCatalog)
	}
	streams := gjson.GetBytes(catalog, "streams")
	if !streams.IsArray() {
		return nil, fmt.Errorf("%w: missing streams array", ErrInvalidCatalog)
	}

	rules := ParseRules(patterns)
	out := catalog
	var err error

	for i, stream := range streams.Array() {
		id := StreamID(stream)
		selected := rules.StreamSelected(id)

		seen := map[string]bool{}
		hasStreamEntry := false

		for j, entry := range stream.Get("metadata").Array() {
			path := fmt.Sprintf("streams.%d.metadata.%d.metadata.selected", i, j)
			breadcrumb := entry.Get("breadcrumb").Array()

			var value bool
			switch {
			case len(breadcrumb) == 0:
				hasStreamEntry = true
				value = selected
			case len(breadcrumb) == 2 && breadcrumb[0].String() == "properties":
				prop := breadcrumb[1].String()
				seen[prop] = true
				value = propertyValue(rules, id, prop, selected, entry.Get("metadata.inclusion").String())
			default:
				continue
			}

			if out, err = sjson.SetBytes(out, path, value); err != nil {
				return nil, fmt.Errorf("failed to select %s: %w", id, err)
			}
		}

		if !hasStreamEntry {
			if out, err = appendMetadata(out, i, []string{}, selected); err != nil {
				return nil, err
			}
		}

		for _, prop := range schemaProperties(stream) {
			if seen[prop] {
				continue
			}
			value := propertyValue(rules, id, prop, selected, "")
			if out, err = appendMetadata(out, i, []string{"properties", prop}, value); err != nil {
				return nil, err
			}
		}
	}

	return out, nil
}

func propertyValue(rules Rules, stream, prop string, streamSelected bool, inclusion string) bool {
	switch inclusion {
	case InclusionUnsupported:
		return false
	case InclusionAutomatic:
		return streamSelected
	default:
		return streamSelected && rules.PropertySelected(stream, prop)
	}
}

func appendMetadata(catalog []byte, stream int, breadcrumb []string, selected bool) ([]byte, error) {
	entry := map[string]any{
		"breadcrumb": breadcrumb,
		"metadata":   map[string]any{"selected": selected},
	}
	out, err := sjson.SetBytes(catalog, fmt.Sprintf("streams.%d.metadata.-1", stream), entry)
	if err != nil {
		return nil, fmt.Errorf("failed to add metadata: %w", err)
	}
	return out, nil
}

// StreamID returns tap_stream_id, falling back to stream.
func StreamID(stream gjson.Result) string {
	if id := stream.Get("tap_stream_id").String(); id != "" {
		return id
	}
	return stream.Get("stream").String()
}

func schemaProperties(stream gjson.Result) []string {
	var props []string
	stream.Get("schema.properties").ForEach(func(key, _ gjson.Result) bool {
		props = append(props, key.String())
		return true
	})
	sort.Strings(props)
	return props
}

// Selection returns the selected properties of every selected stream.
func Selection(catalog []byte) map[string][]string {
	out := map[string][]string{}
	gjson.GetBytes(catalog, "streams").ForEach(func(_, stream gjson.Result) bool {
		id := StreamID(stream)
		var props []string
		streamSelected := false
		stream.Get("metadata").ForEach(func(_, entry gjson.Result) bool {
			breadcrumb := entry.Get("breadcrumb").Array()
			sel := entry.Get("metadata.selected").Bool()
			switch {
			case len(breadcrumb) == 0:
				streamSelected = sel
			case len(breadcrumb) == 2 && sel:
				props = append(props, breadcrumb[1].String())
			}
			return true
		})
		if streamSelected {
			sort.Strings(props)
			out[id] = props
		}
		return true
	})
	return out
}
