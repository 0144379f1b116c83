// Package manifest provides loading, parsing, and validation of tapline project manifests.
//
// A manifest (meltano.yml) declares a project, its execution environments, and the
// extractor and loader plugins that make up its pipelines. The manifest holds no
// executable logic: it is read once and used to resolve settings and build plugin
// invocations.
package manifest

import (
	"errors"
	"fmt"
	"strings"

	"github.com/samber/lo"
)

// PluginType distinguishes extractors from loaders.
type PluginType string

// Plugin types.
const (
	PluginTypeExtractor PluginType = "extractors"
	PluginTypeLoader    PluginType = "loaders"
)

// Singular returns the singular name used in messages ("extractor", "loader").
func (t PluginType) Singular() string {
	return strings.TrimSuffix(string(t), "s")
}

// Capability is an optional feature a plugin declares support for.
type Capability string

// Known capabilities.
const (
	CapabilityState            Capability = "state"
	CapabilityCatalog          Capability = "catalog"
	CapabilityProperties       Capability = "properties"
	CapabilityDiscover         Capability = "discover"
	CapabilityAbout            Capability = "about"
	CapabilityStreamMaps       Capability = "stream-maps"
	CapabilitySchemaFlattening Capability = "schema-flattening"
	CapabilityBatch            Capability = "batch"
	CapabilityTest             Capability = "test"
	CapabilityLogBased         Capability = "log-based"
	CapabilityActivateVersion  Capability = "activate-version"
)

var validCapabilities = map[Capability]bool{
	CapabilityState:            true,
	CapabilityCatalog:          true,
	CapabilityProperties:       true,
	CapabilityDiscover:         true,
	CapabilityAbout:            true,
	CapabilityStreamMaps:       true,
	CapabilitySchemaFlattening: true,
	CapabilityBatch:            true,
	CapabilityTest:             true,
	CapabilityLogBased:         true,
	CapabilityActivateVersion:  true,
}

// IsValid reports whether c is a known capability.
func (c Capability) IsValid() bool {
	return validCapabilities[c]
}

// Kind is the value kind of a setting.
type Kind string

// Setting kinds.
const (
	KindString   Kind = "string"
	KindInteger  Kind = "integer"
	KindBoolean  Kind = "boolean"
	KindDate     Kind = "date_iso8601"
	KindEmail    Kind = "email"
	KindPassword Kind = "password"
	KindOptions  Kind = "options"
	KindFile     Kind = "file"
	KindArray    Kind = "array"
	KindObject   Kind = "object"
	KindHidden   Kind = "hidden"
	KindOAuth    Kind = "oauth"
)

var validKinds = map[Kind]bool{
	"":           true, // Empty defaults to string
	KindString:   true,
	KindInteger:  true,
	KindBoolean:  true,
	KindDate:     true,
	KindEmail:    true,
	KindPassword: true,
	KindOptions:  true,
	KindFile:     true,
	KindArray:    true,
	KindObject:   true,
	KindHidden:   true,
	KindOAuth:    true,
}

// IsValid reports whether k is a known setting kind.
func (k Kind) IsValid() bool {
	return validKinds[k]
}

// Lookup errors.
var (
	ErrPluginNotFound      = errors.New("manifest: plugin not found")
	ErrEnvironmentNotFound = errors.New("manifest: environment not found")
)

// PluginNotFoundError is returned when a plugin lookup fails.
type PluginNotFoundError struct {
	Type PluginType
	Name string
}

func (e PluginNotFoundError) Error() string {
	if e.Type == "" {
		return fmt.Sprintf("manifest: plugin %q not found", e.Name)
	}
	return fmt.Sprintf("manifest: %s %q not found", e.Type.Singular(), e.Name)
}

// Is lets errors.Is match ErrPluginNotFound.
func (e PluginNotFoundError) Is(target error) bool {
	return target == ErrPluginNotFound
}

// Project represents a complete tapline manifest.
//
//nolint:govet // Field order follows the manifest layout
type Project struct {
	Version                 int           `yaml:"version" toml:"version"`
	SendAnonymousUsageStats bool          `yaml:"send_anonymous_usage_stats" toml:"send_anonymous_usage_stats"`
	ProjectID               string        `yaml:"project_id" toml:"project_id"`
	DefaultEnvironment      string        `yaml:"default_environment" toml:"default_environment"`
	DatabaseURI             string        `yaml:"database_uri" toml:"database_uri"`
	Environments            []Environment `yaml:"environments" toml:"environments"`
	Plugins                 Plugins       `yaml:"plugins" toml:"plugins"`
	Schedules               []Schedule    `yaml:"schedules" toml:"schedules"`
	StateBackend            StateBackend  `yaml:"state_backend" toml:"state_backend"`

	// raw is the manifest source before environment expansion, kept for linting.
	raw    []byte
	format Format
}

// Plugins groups plugin declarations by type.
type Plugins struct {
	Extractors []Plugin `yaml:"extractors" toml:"extractors"`
	Loaders    []Plugin `yaml:"loaders" toml:"loaders"`
}

// Environment is a named execution context with optional overrides.
type Environment struct {
	Name   string            `yaml:"name" toml:"name"`
	Config EnvironmentConfig `yaml:"config" toml:"config"`
	Env    map[string]string `yaml:"env" toml:"env"`
}

// EnvironmentConfig holds per-environment plugin overrides.
type EnvironmentConfig struct {
	Plugins EnvironmentPlugins `yaml:"plugins" toml:"plugins"`
}

// EnvironmentPlugins groups plugin overrides by type.
type EnvironmentPlugins struct {
	Extractors []PluginOverride `yaml:"extractors" toml:"extractors"`
	Loaders    []PluginOverride `yaml:"loaders" toml:"loaders"`
}

// PluginOverride overrides config and selection of a plugin inside an environment.
type PluginOverride struct {
	Config map[string]any `yaml:"config" toml:"config"`
	Name   string         `yaml:"name" toml:"name"`
	Select []string       `yaml:"select" toml:"select"`
}

// Plugin declares an extractor or loader.
//
//nolint:govet // Field order follows the manifest layout
type Plugin struct {
	Name                    string         `yaml:"name" toml:"name"`
	Namespace               string         `yaml:"namespace" toml:"namespace"`
	Variant                 string         `yaml:"variant" toml:"variant"`
	PipURL                  string         `yaml:"pip_url" toml:"pip_url"`
	Executable              string         `yaml:"executable" toml:"executable"`
	Capabilities            []Capability   `yaml:"capabilities" toml:"capabilities"`
	Settings                []Setting      `yaml:"settings" toml:"settings"`
	SettingsGroupValidation [][]string     `yaml:"settings_group_validation" toml:"settings_group_validation"`
	Config                  map[string]any `yaml:"config" toml:"config"`
	Select                  []string       `yaml:"select" toml:"select"`

	// Type is stamped by the loader; it is not part of the document.
	Type PluginType `yaml:"-" toml:"-"`
}

// HasCapability reports whether the plugin declares c.
func (p *Plugin) HasCapability(c Capability) bool {
	return lo.Contains(p.Capabilities, c)
}

// Setting returns the declared setting with the given name.
func (p *Plugin) Setting(name string) (Setting, bool) {
	return lo.Find(p.Settings, func(s Setting) bool { return s.Name == name })
}

// EffectiveNamespace returns the namespace, falling back to the name in snake case.
func (p *Plugin) EffectiveNamespace() string {
	if p.Namespace != "" {
		return p.Namespace
	}
	return strings.ReplaceAll(p.Name, "-", "_")
}

// ExecutableName returns the command used to invoke the plugin.
func (p *Plugin) ExecutableName() string {
	if p.Executable != "" {
		return p.Executable
	}
	return p.Name
}

// Setting defines one configuration setting of a plugin.
//
//nolint:govet // Field order follows the manifest layout
type Setting struct {
	Name        string          `yaml:"name" toml:"name"`
	Label       string          `yaml:"label" toml:"label"`
	Description string          `yaml:"description" toml:"description"`
	Kind        Kind            `yaml:"kind" toml:"kind"`
	Value       any             `yaml:"value" toml:"value"`
	Sensitive   bool            `yaml:"sensitive" toml:"sensitive"`
	Options     []SettingOption `yaml:"options" toml:"options"`
	Env         string          `yaml:"env" toml:"env"`
}

// EffectiveKind returns the kind with default fallback to string.
func (s *Setting) EffectiveKind() Kind {
	if s.Kind == "" {
		return KindString
	}
	return s.Kind
}

// IsSensitive reports whether values of this setting must be redacted.
// Password and OAuth settings are always sensitive.
func (s *Setting) IsSensitive() bool {
	return s.Sensitive || s.Kind == KindPassword || s.Kind == KindOAuth
}

// OptionValues returns the allowed values of an options setting.
func (s *Setting) OptionValues() []string {
	return lo.Map(s.Options, func(o SettingOption, _ int) string { return o.Value })
}

// SettingOption is one allowed value of an options setting.
type SettingOption struct {
	Label string `yaml:"label" toml:"label"`
	Value string `yaml:"value" toml:"value"`
}

// Schedule runs an extractor/loader pair on an interval.
type Schedule struct {
	Name      string `yaml:"name" toml:"name"`
	Extractor string `yaml:"extractor" toml:"extractor"`
	Loader    string `yaml:"loader" toml:"loader"`
	Interval  string `yaml:"interval" toml:"interval"`
}

// StateBackend configures where pipeline state is stored.
type StateBackend struct {
	// URI is one of "systemdb" (default), "file:///dir", or "s3://bucket/prefix".
	URI string `yaml:"uri" toml:"uri"`
}

// GetEffectiveURI returns the state backend URI with default fallback.
func (s *StateBackend) GetEffectiveURI() string {
	if s.URI == "" {
		return "systemdb"
	}
	return s.URI
}

// Extractor returns the extractor with the given name.
func (p *Project) Extractor(name string) (*Plugin, error) {
	return findPlugin(p.Plugins.Extractors, PluginTypeExtractor, name)
}

// Loader returns the loader with the given name.
func (p *Project) Loader(name string) (*Plugin, error) {
	return findPlugin(p.Plugins.Loaders, PluginTypeLoader, name)
}

// Plugin returns the extractor or loader with the given name, extractors first.
func (p *Project) Plugin(name string) (*Plugin, error) {
	if plugin, err := p.Extractor(name); err == nil {
		return plugin, nil
	}
	if plugin, err := p.Loader(name); err == nil {
		return plugin, nil
	}
	return nil, PluginNotFoundError{Name: name}
}

// AllPlugins returns every declared plugin, extractors first.
func (p *Project) AllPlugins() []*Plugin {
	out := make([]*Plugin, 0, len(p.Plugins.Extractors)+len(p.Plugins.Loaders))
	for i := range p.Plugins.Extractors {
		out = append(out, &p.Plugins.Extractors[i])
	}
	for i := range p.Plugins.Loaders {
		out = append(out, &p.Plugins.Loaders[i])
	}
	return out
}

func findPlugin(plugins []Plugin, typ PluginType, name string) (*Plugin, error) {
	for i := range plugins {
		if plugins[i].Name == name {
			return &plugins[i], nil
		}
	}
	return nil, PluginNotFoundError{Type: typ, Name: name}
}

// Environment returns the environment with the given name.
func (p *Project) Environment(name string) (*Environment, error) {
	for i := range p.Environments {
		if p.Environments[i].Name == name {
			return &p.Environments[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrEnvironmentNotFound, name)
}

// ResolveEnvironment returns the requested environment name, falling back to
// default_environment when requested is empty.
func (p *Project) ResolveEnvironment(requested string) string {
	if requested != "" {
		return requested
	}
	return p.DefaultEnvironment
}

// Override returns the environment override for plugin, if any.
func (e *Environment) Override(plugin *Plugin) (*PluginOverride, bool) {
	overrides := e.Config.Plugins.Extractors
	if plugin.Type == PluginTypeLoader {
		overrides = e.Config.Plugins.Loaders
	}
	for i := range overrides {
		if overrides[i].Name == plugin.Name {
			return &overrides[i], true
		}
	}
	return nil, false
}

// SelectFor returns the select patterns for plugin in the given environment.
// Environment patterns replace the plugin's own patterns when present.
func (p *Project) SelectFor(plugin *Plugin, environment string) []string {
	if env, err := p.Environment(environment); err == nil {
		if override, ok := env.Override(plugin); ok && len(override.Select) > 0 {
			return override.Select
		}
	}
	return plugin.Select
}

// Raw returns the manifest source before environment expansion.
func (p *Project) Raw() []byte {
	return p.raw
}

// Format returns the format the manifest was parsed from.
func (p *Project) Format() Format {
	return p.format
}

// normalize stamps plugin types after decoding.
func (p *Project) normalize() {
	for i := range p.Plugins.Extractors {
		p.Plugins.Extractors[i].Type = PluginTypeExtractor
	}
	for i := range p.Plugins.Loaders {
		p.Plugins.Loaders[i].Type = PluginTypeLoader
	}
}
