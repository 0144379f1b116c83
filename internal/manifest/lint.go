package manifest

import (
	"fmt"
	"sort"
	"strings"

	"github.com/samber/lo"
	"gopkg.in/yaml.v3"
)

// knownTopLevelKeys are the manifest keys tapline understands.
var knownTopLevelKeys = map[string]bool{
	"version":                    true,
	"send_anonymous_usage_stats": true,
	"project_id":                 true,
	"default_environment":        true,
	"database_uri":               true,
	"environments":               true,
	"plugins":                    true,
	"schedules":                  true,
	"state_backend":              true,
}

// builtinConfigKeys are config keys the plugin SDK understands without a setting definition.
var builtinConfigKeys = map[string]bool{
	"stream_maps":          true,
	"stream_map_config":    true,
	"flattening_enabled":   true,
	"flattening_max_depth": true,
	"batch_config":         true,
}

// Warning is a non-fatal manifest finding.
type Warning struct {
	Path    string
	Message string
	Line    int
}

// String formats the warning with its location.
func (w Warning) String() string {
	if w.Line > 0 {
		return fmt.Sprintf("line %d: %s: %s", w.Line, w.Path, w.Message)
	}
	return fmt.Sprintf("%s: %s", w.Path, w.Message)
}

// Lint reports non-fatal issues: things that parse and validate but are likely mistakes.
func (p *Project) Lint() []Warning {
	l := &linter{project: p}
	l.index()

	if p.SendAnonymousUsageStats {
		l.warn([]any{"send_anonymous_usage_stats"}, "anonymous usage stats are enabled")
	}

	l.lintTopLevel()

	for i := range p.Plugins.Extractors {
		l.lintPlugin(&p.Plugins.Extractors[i], i)
	}
	for i := range p.Plugins.Loaders {
		l.lintPlugin(&p.Plugins.Loaders[i], i)
	}
	for i := range p.Environments {
		l.lintEnvironment(&p.Environments[i], i)
	}

	return l.warnings
}

type linter struct {
	project  *Project
	root     *yaml.Node
	doc      map[string]any
	warnings []Warning
}

// index parses the raw source so findings can point at lines.
func (l *linter) index() {
	if len(l.project.raw) == 0 {
		return
	}
	if l.project.format == FormatYAML {
		var node yaml.Node
		if err := yaml.Unmarshal(l.project.raw, &node); err == nil && len(node.Content) > 0 {
			l.root = node.Content[0]
		}
	}
	if doc, err := decodeDocument(l.project.raw, l.project.format); err == nil {
		l.doc = doc
	}
}

func (l *linter) warn(path []any, format string, args ...any) {
	l.warnings = append(l.warnings, Warning{
		Path:    formatPath(path),
		Message: fmt.Sprintf(format, args...),
		Line:    nodeLine(l.root, path),
	})
}

func (l *linter) lintTopLevel() {
	keys := lo.Keys(l.doc)
	sort.Strings(keys)
	for _, k := range keys {
		if !knownTopLevelKeys[k] {
			l.warn([]any{k}, "unknown top-level key")
		}
	}
}

func (l *linter) lintPlugin(p *Plugin, index int) {
	base := []any{"plugins", string(p.Type), index}
	at := func(rest ...any) []any {
		return append(append([]any{}, base...), rest...)
	}

	keys := lo.Keys(p.Config)
	sort.Strings(keys)

	for _, key := range keys {
		if builtinConfigKeys[key] {
			continue
		}
		if !declaresKey(p, key) {
			l.warn(at("config", key), "%s %q sets undeclared setting %q", p.Type.Singular(), p.Name, key)
		}
	}

	l.lintSensitive(p, base)

	if len(p.Select) > 0 && !p.HasCapability(CapabilityCatalog) && !p.HasCapability(CapabilityProperties) {
		l.warn(at("select"), "select has no effect without the catalog or properties capability")
	}

	if _, ok := p.Config["stream_maps"]; ok && !p.HasCapability(CapabilityStreamMaps) {
		l.warn(at("config", "stream_maps"), "stream_maps set but %q lacks the stream-maps capability", p.Name)
	}
}

// lintEnvironment checks an environment's plugin overrides against the
// plugins they override.
func (l *linter) lintEnvironment(env *Environment, index int) {
	overrides := []struct {
		lookup func(string) (*Plugin, error)
		list   []PluginOverride
		typ    PluginType
	}{
		{l.project.Extractor, env.Config.Plugins.Extractors, PluginTypeExtractor},
		{l.project.Loader, env.Config.Plugins.Loaders, PluginTypeLoader},
	}

	for _, o := range overrides {
		for j, override := range o.list {
			p, err := o.lookup(override.Name)
			if err != nil {
				continue
			}
			l.lintSensitive(p, []any{"environments", index, "config", "plugins", string(o.typ), j})
		}
	}
}

// lintSensitive flags sensitive settings of p given a literal under base.config.
func (l *linter) lintSensitive(p *Plugin, base []any) {
	for _, s := range p.Settings {
		if !s.IsSensitive() {
			continue
		}
		raw, ok := l.rawConfigValue(base, s.Name)
		if ok && raw != "" && !strings.Contains(raw, "$") {
			path := append(append([]any{}, base...), "config", s.Name)
			l.warn(path, "sensitive setting %q has a literal value; use ${ENV_VAR}", s.Name)
		}
	}
}

// declaresKey reports whether key is a setting name or a prefix of a dotted setting name.
func declaresKey(p *Plugin, key string) bool {
	return lo.SomeBy(p.Settings, func(s Setting) bool {
		return s.Name == key || strings.HasPrefix(s.Name, key+".")
	})
}

// rawConfigValue returns the pre-expansion string value of a plugin config key.
func (l *linter) rawConfigValue(base []any, key string) (string, bool) {
	var cur any = l.doc
	for _, part := range append(append([]any{}, base...), "config", key) {
		switch k := part.(type) {
		case string:
			m, ok := cur.(map[string]any)
			if !ok {
				return "", false
			}
			cur, ok = m[k]
			if !ok {
				return "", false
			}
		case int:
			s, ok := cur.([]any)
			if !ok || k >= len(s) {
				return "", false
			}
			cur = s[k]
		}
	}
	str, ok := cur.(string)
	return str, ok
}

// nodeLine walks a YAML node tree along path and returns the line of the final node.
func nodeLine(root *yaml.Node, path []any) int {
	node := root
	for _, part := range path {
		if node == nil {
			return 0
		}
		switch k := part.(type) {
		case string:
			node = mappingValue(node, k)
		case int:
			if node.Kind != yaml.SequenceNode || k >= len(node.Content) {
				return 0
			}
			node = node.Content[k]
		}
	}
	if node == nil {
		return 0
	}
	return node.Line
}

// mappingValue returns the value node for key, or the key node itself when the value is absent.
func mappingValue(node *yaml.Node, key string) *yaml.Node {
	if node.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == key {
			return node.Content[i+1]
		}
	}
	return nil
}

func formatPath(path []any) string {
	var b strings.Builder
	for i, part := range path {
		switch k := part.(type) {
		case string:
			if i > 0 {
				b.WriteByte('.')
			}
			b.WriteString(k)
		case int:
			fmt.Fprintf(&b, "[%d]", k)
		}
	}
	return b.String()
}
