package manifest

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/samber/lo"
)

// CurrentVersion is the only manifest schema version understood.
const CurrentVersion = 1

// Valid state backend URI schemes.
var validStateBackendSchemes = map[string]bool{
	"systemdb": true,
	"file":     true,
	"s3":       true,
}

// Validate checks the manifest for errors.
// It validates all required fields, valid values, and cross-references.
// Returns a ValidationError containing all errors found, or nil if valid.
func (p *Project) Validate() error {
	errs := &ValidationError{}

	validateProject(p, errs)
	validateEnvironments(p, errs)
	validatePlugins(p.Plugins.Extractors, PluginTypeExtractor, errs)
	validatePlugins(p.Plugins.Loaders, PluginTypeLoader, errs)
	validateSchedules(p, errs)
	validateStateBackend(p, errs)

	return errs.orNil()
}

// validateProject validates the project descriptor fields.
func validateProject(p *Project, errs *ValidationError) {
	if strings.TrimSpace(p.ProjectID) == "" {
		errs.Add("project_id is required")
	}

	if p.Version != 0 && p.Version != CurrentVersion {
		errs.Addf("version is unsupported (got %d, supported: %d)", p.Version, CurrentVersion)
	}
}

// validateEnvironments validates environment names and the default environment.
func validateEnvironments(p *Project, errs *ValidationError) {
	seen := make(map[string]bool)

	for i := range p.Environments {
		env := &p.Environments[i]
		if env.Name == "" {
			errs.Addf("environments[%d].name is required", i)
			continue
		}
		if seen[env.Name] {
			errs.Addf("duplicate environment name: %s", env.Name)
		}
		seen[env.Name] = true

		validateOverrides(p, env, env.Config.Plugins.Extractors, PluginTypeExtractor, errs)
		validateOverrides(p, env, env.Config.Plugins.Loaders, PluginTypeLoader, errs)
	}

	if p.DefaultEnvironment != "" && !seen[p.DefaultEnvironment] {
		errs.Addf("default_environment %q is not a declared environment", p.DefaultEnvironment)
	}
}

// validateOverrides checks that environment overrides refer to declared plugins.
func validateOverrides(p *Project, env *Environment, overrides []PluginOverride, typ PluginType, errs *ValidationError) {
	plugins := p.Plugins.Extractors
	if typ == PluginTypeLoader {
		plugins = p.Plugins.Loaders
	}

	for i, o := range overrides {
		if o.Name == "" {
			errs.Addf("environment[%s].config.plugins.%s[%d].name is required", env.Name, typ, i)
			continue
		}
		if _, ok := lo.Find(plugins, func(pl Plugin) bool { return pl.Name == o.Name }); !ok {
			errs.Addf("environment[%s] overrides unknown %s %q", env.Name, typ.Singular(), o.Name)
		}
	}
}

// validatePlugins validates a list of plugin declarations of one type.
func validatePlugins(plugins []Plugin, typ PluginType, errs *ValidationError) {
	seenNames := make(map[string]bool)

	for i := range plugins {
		validatePlugin(&plugins[i], typ, i, seenNames, errs)
	}
}

// validatePlugin validates a single plugin declaration.
func validatePlugin(p *Plugin, typ PluginType, index int, seenNames map[string]bool, errs *ValidationError) {
	prefix := func(field string) string {
		if p.Name != "" {
			return fmt.Sprintf("%s[%s].%s", typ.Singular(), p.Name, field)
		}
		return fmt.Sprintf("plugins.%s[%d].%s", typ, index, field)
	}

	if p.Name == "" {
		errs.Addf("plugins.%s[%d].name is required", typ, index)
	} else {
		if seenNames[p.Name] {
			errs.Addf("duplicate %s name: %s", typ.Singular(), p.Name)
		}
		seenNames[p.Name] = true
	}

	if strings.TrimSpace(p.PipURL) == "" {
		errs.Addf("%s is required", prefix("pip_url"))
	}

	for _, c := range p.Capabilities {
		if !c.IsValid() {
			errs.Addf("%s has unknown capability %q", prefix("capabilities"), c)
		}
	}
	for _, dup := range lo.FindDuplicates(p.Capabilities) {
		errs.Addf("%s lists %q more than once", prefix("capabilities"), dup)
	}

	validateSettings(p, prefix, errs)
	validateSettingsGroups(p, prefix, errs)
}

// validateSettings validates setting definitions of a plugin.
func validateSettings(p *Plugin, prefix func(string) string, errs *ValidationError) {
	seen := make(map[string]bool)

	for i := range p.Settings {
		s := &p.Settings[i]

		if s.Name == "" {
			errs.Addf("%s is required", prefix(fmt.Sprintf("settings[%d].name", i)))
			continue
		}
		if seen[s.Name] {
			errs.Addf("%s: duplicate setting name %q", prefix("settings"), s.Name)
		}
		seen[s.Name] = true

		field := func(f string) string {
			return prefix(fmt.Sprintf("settings[%s].%s", s.Name, f))
		}

		if !s.Kind.IsValid() {
			errs.Addf("%s is invalid (got %q)", field("kind"), s.Kind)
			continue
		}

		if s.Kind == KindOptions {
			validateOptions(s, field, errs)
		}

		if s.Value != nil {
			if err := checkDefault(s); err != nil {
				errs.Addf("%s: %v", field("value"), err)
			}
		}
	}
}

// validateOptions validates the option list of an options setting.
func validateOptions(s *Setting, field func(string) string, errs *ValidationError) {
	if len(s.Options) == 0 {
		errs.Addf("%s must not be empty for kind options", field("options"))
		return
	}

	values := s.OptionValues()
	for i, v := range values {
		if v == "" {
			errs.Addf("%s is required", field(fmt.Sprintf("options[%d].value", i)))
		}
	}
	for _, dup := range lo.FindDuplicates(values) {
		errs.Addf("%s has duplicate value %q", field("options"), dup)
	}
}

// checkDefault checks that a default value matches the setting kind.
func checkDefault(s *Setting) error {
	switch s.EffectiveKind() {
	case KindInteger:
		_, err := AsInt(s.Value)
		return err
	case KindBoolean:
		switch v := s.Value.(type) {
		case bool:
			return nil
		case string:
			_, err := ParseBool(v)
			return err
		default:
			return fmt.Errorf("%T is not a boolean", s.Value)
		}
	case KindDate:
		switch v := s.Value.(type) {
		case time.Time:
			return nil
		case string:
			_, err := ParseDate(v)
			return err
		case fmt.Stringer:
			_, err := ParseDate(v.String())
			return err
		default:
			return fmt.Errorf("%T is not an ISO-8601 date", s.Value)
		}
	case KindOptions:
		v := fmt.Sprint(s.Value)
		if !lo.Contains(s.OptionValues(), v) {
			return fmt.Errorf("%q is not one of the options %v", v, s.OptionValues())
		}
	}
	return nil
}

// validateSettingsGroups checks that every group is non-empty and names declared settings.
func validateSettingsGroups(p *Plugin, prefix func(string) string, errs *ValidationError) {
	for i, group := range p.SettingsGroupValidation {
		field := prefix(fmt.Sprintf("settings_group_validation[%d]", i))
		if len(group) == 0 {
			errs.Addf("%s must not be empty", field)
			continue
		}
		for _, name := range group {
			if _, ok := p.Setting(name); !ok {
				errs.Addf("%s references unknown setting %q", field, name)
			}
		}
	}
}

// validateSchedules validates schedule names, plugin references, and intervals.
func validateSchedules(p *Project, errs *ValidationError) {
	seen := make(map[string]bool)

	for i := range p.Schedules {
		s := &p.Schedules[i]
		prefix := fmt.Sprintf("schedules[%d]", i)
		if s.Name == "" {
			errs.Addf("%s.name is required", prefix)
		} else {
			prefix = fmt.Sprintf("schedule[%s]", s.Name)
			if seen[s.Name] {
				errs.Addf("duplicate schedule name: %s", s.Name)
			}
			seen[s.Name] = true
		}

		if _, err := p.Extractor(s.Extractor); err != nil {
			errs.Addf("%s.extractor references unknown extractor %q", prefix, s.Extractor)
		}
		if _, err := p.Loader(s.Loader); err != nil {
			errs.Addf("%s.loader references unknown loader %q", prefix, s.Loader)
		}
		if _, err := ParseInterval(s.Interval); err != nil {
			errs.Addf("%s.interval is invalid (got %q, valid: @once, @hourly, @daily, @weekly, @monthly, "+
				"or a duration >= %s)", prefix, s.Interval, MinInterval)
		}
	}
}

// validateStateBackend validates the state backend URI scheme.
func validateStateBackend(p *Project, errs *ValidationError) {
	uri := p.StateBackend.GetEffectiveURI()
	if uri == "systemdb" {
		return
	}

	u, err := url.Parse(uri)
	if err != nil || !validStateBackendSchemes[u.Scheme] {
		errs.Addf("state_backend.uri is invalid (got %q, valid: systemdb, file:///path, s3://bucket/prefix)", uri)
		return
	}
	if u.Scheme == "s3" && u.Host == "" {
		errs.Add("state_backend.uri must name a bucket for s3")
	}
	if u.Scheme == "file" && u.Path == "" {
		errs.Add("state_backend.uri must name a directory for file")
	}
}
