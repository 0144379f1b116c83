package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/samber/lo"
	"github.com/tidwall/sjson"
)

// RedactedValue is what sensitive values display as.
const RedactedValue = "(redacted)"

// ErrNotConfigured is returned when no settings group is fully set.
var ErrNotConfigured = errors.New("settings: plugin is not configured")

// GroupError lists the unset members of every settings group.
type GroupError struct {
	Plugin  string
	Missing [][]string
}

func (e *GroupError) Error() string {
	groups := lo.Map(e.Missing, func(g []string, _ int) string { return strings.Join(g, ", ") })
	return fmt.Sprintf("%s is not configured: set all of [%s]", e.Plugin, strings.Join(groups, "] or ["))
}

// Is lets errors.Is match ErrNotConfigured.
func (e *GroupError) Is(target error) bool {
	return target == ErrNotConfigured
}

// CheckGroups reports whether at least one settings_group_validation group has
// every member set. A plugin with no groups is always configured.
func (r *Resolved) CheckGroups() error {
	groups := r.Plugin.SettingsGroupValidation
	if len(groups) == 0 {
		return nil
	}

	missing := make([][]string, 0, len(groups))
	for _, group := range groups {
		unset := lo.Filter(group, func(name string, _ int) bool {
			return r.Lookup(name).IsAbsent()
		})
		if len(unset) == 0 {
			return nil
		}
		missing = append(missing, unset)
	}
	return &GroupError{Plugin: r.Plugin.Name, Missing: missing}
}

// ConfigJSON renders the plugin's config.json. Dotted setting names become
// nested objects; undeclared config keys are passed through first so that
// declared settings win.
func (r *Resolved) ConfigJSON() ([]byte, error) {
	out := []byte("{}")
	var err error

	for _, v := range r.Values {
		if v.Declared() || !v.IsSet() {
			continue
		}
		if out, err = sjson.SetBytes(out, escapePath(v.Name), v.Value); err != nil {
			return nil, fmt.Errorf("failed to set %s: %w", v.Name, err)
		}
	}

	for _, v := range r.Values {
		if !v.Declared() || !v.IsSet() {
			continue
		}
		if out, err = sjson.SetBytes(out, v.Name, v.Value); err != nil {
			return nil, fmt.Errorf("failed to set %s: %w", v.Name, err)
		}
	}

	return out, nil
}

// escapePath makes a flat config key safe to use as an sjson path.
func escapePath(key string) string {
	return strings.NewReplacer(".", `\.`, "*", `\*`, "?", `\?`).Replace(key)
}

// Redacted returns the values with sensitive ones replaced by RedactedValue.
func (r *Resolved) Redacted() []Value {
	return lo.Map(r.Values, func(v Value, _ int) Value {
		if v.IsSensitive() && v.IsSet() {
			v.Value = RedactedValue
		}
		return v
	})
}

// EnvVars returns KEY=VALUE pairs for the plugin process: the environment's env
// map, then <PLUGIN_NAME>_<SETTING> and <NAMESPACE>_<SETTING> for every set value.
func (r *Resolved) EnvVars() []string {
	vars := make(map[string]string, len(r.Env)+2*len(r.Values))
	for k, v := range r.Env {
		vars[k] = v
	}

	for _, v := range r.Values {
		if !v.IsSet() {
			continue
		}
		str := FormatValue(v.Value)
		vars[envKey(r.Plugin.Name, v.Name)] = str
		vars[envKey(r.Plugin.EffectiveNamespace(), v.Name)] = str
	}

	keys := lo.Keys(vars)
	sort.Strings(keys)
	return lo.Map(keys, func(k string, _ int) string { return k + "=" + vars[k] })
}

// FormatValue renders a resolved value as a string: scalars plainly, arrays and objects as JSON.
func FormatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case []any, map[string]any:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	default:
		return fmt.Sprint(t)
	}
}
