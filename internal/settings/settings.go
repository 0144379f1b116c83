// Package settings resolves plugin setting values from the manifest, the
// active environment, and the process environment.
package settings

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/imdario/mergo"
	"github.com/samber/lo"
	"github.com/samber/mo"

	"github.com/omarluq/tapline/internal/manifest"
)

// Source names where a resolved value came from.
type Source string

// Value sources, highest precedence first.
const (
	SourceEnv         Source = "env"
	SourceEnvironment Source = "environment"
	SourceManifest    Source = "manifest"
	SourceDefault     Source = "default"
	SourceUnset       Source = "unset"
)

// Value is one resolved setting.
type Value struct {
	// Setting is nil for config keys that have no setting definition.
	Setting *manifest.Setting
	Value   any
	Name    string
	Source  Source
	// EnvVar is set when Source is SourceEnv.
	EnvVar string
}

// IsSet reports whether the setting has a value from any source.
func (v Value) IsSet() bool {
	return v.Source != SourceUnset && v.Value != nil
}

// IsSensitive reports whether the value must not be displayed.
func (v Value) IsSensitive() bool {
	return v.Setting != nil && v.Setting.IsSensitive()
}

// Declared reports whether the value belongs to a setting definition.
func (v Value) Declared() bool {
	return v.Setting != nil
}

// Resolved holds every setting value of one plugin in one environment.
type Resolved struct {
	Plugin      *manifest.Plugin
	Environment string
	// Env is the environment's env map, exported to the plugin process.
	Env    map[string]string
	Values []Value
}

// Get returns the resolved value with the given name.
func (r *Resolved) Get(name string) (Value, bool) {
	return lo.Find(r.Values, func(v Value) bool { return v.Name == name })
}

// Lookup returns the value of a set setting.
func (r *Resolved) Lookup(name string) mo.Option[any] {
	v, ok := r.Get(name)
	if !ok || !v.IsSet() {
		return mo.None[any]()
	}
	return mo.Some(v.Value)
}

// Environ returns the process environment as a map.
func Environ() map[string]string {
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			env[k] = v
		}
	}
	return env
}

// Resolve computes every setting value of plugin.
//
// Precedence, highest first: a process environment variable (the setting's
// env, then <PLUGIN_NAME>_<SETTING>, then <NAMESPACE>_<SETTING>), the
// environment's plugin config override, the plugin's config, and the
// setting's default value. environ is the process environment; the active
// environment's env map is layered beneath it.
func Resolve(project *manifest.Project, plugin *manifest.Plugin, environment string, environ map[string]string) (*Resolved, error) {
	res := &Resolved{Plugin: plugin, Environment: environment, Env: map[string]string{}}

	var override map[string]any
	if environment != "" {
		env, err := project.Environment(environment)
		if err != nil {
			return nil, err
		}
		if o, ok := env.Override(plugin); ok {
			override = o.Config
		}
		for k, v := range env.Env {
			res.Env[k] = v
		}
	}

	lookup := make(map[string]string, len(res.Env)+len(environ))
	for k, v := range res.Env {
		lookup[k] = v
	}
	for k, v := range environ {
		lookup[k] = v
	}

	merged := copyMap(plugin.Config)
	if len(override) > 0 {
		if err := mergo.Merge(&merged, copyMap(override), mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge %s override for %s: %w", environment, plugin.Name, err)
		}
	}

	var errs []error

	for i := range plugin.Settings {
		s := &plugin.Settings[i]
		v := resolveOne(plugin, s, merged, override, lookup)

		if v.IsSet() {
			coerced, err := Coerce(s, v.Value)
			if err != nil {
				errs = append(errs, &CoercionError{Plugin: plugin.Name, Setting: s.Name, Source: v.Source, Err: err})
			} else {
				v.Value = coerced
			}
		}
		res.Values = append(res.Values, v)
	}

	for _, key := range sortedKeys(merged) {
		if _, ok := plugin.Setting(key); ok {
			continue
		}
		source := SourceManifest
		if _, ok := override[key]; ok {
			source = SourceEnvironment
		}
		res.Values = append(res.Values, Value{Name: key, Value: merged[key], Source: source})
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return res, nil
}

func resolveOne(plugin *manifest.Plugin, s *manifest.Setting, merged, override map[string]any, environ map[string]string) Value {
	v := Value{Setting: s, Name: s.Name, Source: SourceUnset}

	for _, name := range EnvNames(plugin, s) {
		if raw, ok := environ[name]; ok {
			v.Value, v.Source, v.EnvVar = raw, SourceEnv, name
			return v
		}
	}

	if val, ok := lookupPath(merged, s.Name); ok && val != nil {
		v.Value, v.Source = val, SourceManifest
		if _, ok := lookupPath(override, s.Name); ok {
			v.Source = SourceEnvironment
		}
		return v
	}

	if s.Value != nil {
		v.Value, v.Source = s.Value, SourceDefault
	}
	return v
}

// EnvNames returns the environment variable names that may set s, in lookup order.
func EnvNames(plugin *manifest.Plugin, s *manifest.Setting) []string {
	names := make([]string, 0, 3)
	if s.Env != "" {
		names = append(names, s.Env)
	}
	names = append(names,
		envKey(plugin.Name, s.Name),
		envKey(plugin.EffectiveNamespace(), s.Name),
	)
	return lo.Uniq(names)
}

func envKey(prefix, name string) string {
	r := strings.NewReplacer("-", "_", ".", "_", " ", "_")
	return strings.ToUpper(r.Replace(prefix) + "_" + r.Replace(name))
}

// lookupPath finds name as a flat key first, then as a dotted path through nested maps.
func lookupPath(m map[string]any, name string) (any, bool) {
	if m == nil {
		return nil, false
	}
	if v, ok := m[name]; ok {
		return v, true
	}

	parts := strings.Split(name, ".")
	if len(parts) == 1 {
		return nil, false
	}

	var cur any = m
	for _, part := range parts {
		node, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = node[part]; !ok {
			return nil, false
		}
	}
	return cur, true
}

// copyMap deep-copies nested maps and slices so merging never mutates the manifest.
func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return copyMap(t)
	case []any:
		return lo.Map(t, func(e any, _ int) any { return copyValue(e) })
	default:
		return v
	}
}

func sortedKeys(m map[string]any) []string {
	keys := lo.Keys(m)
	sort.Strings(keys)
	return keys
}
