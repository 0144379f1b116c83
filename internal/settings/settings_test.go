package settings

import (
	"errors"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omarluq/tapline/internal/manifest"
)

func testProject() *manifest.Project {
	return &manifest.Project{
		ProjectID:          "tap-iterable",
		DefaultEnvironment: "test",
		Environments:       []manifest.Environment{{Name: "test"}, {Name: "prod"}},
		Plugins: manifest.Plugins{
			Extractors: []manifest.Plugin{{
				Name:      "tap-iterable",
				Namespace: "tap_iterable",
				PipURL:    "-e .",
				Type:      manifest.PluginTypeExtractor,
				Settings: []manifest.Setting{
					{Name: "api_key", Kind: manifest.KindPassword, Sensitive: true},
					{Name: "region", Kind: manifest.KindOptions, Value: "US", Options: []manifest.SettingOption{
						{Label: "United States", Value: "US"}, {Label: "Europe", Value: "EU"},
					}},
					{Name: "start_date", Kind: manifest.KindDate},
					{Name: "end_date", Kind: manifest.KindDate, Env: "ITERABLE_END"},
					{Name: "page_size", Kind: manifest.KindInteger, Value: 100},
					{Name: "stream_maps.users.email", Kind: manifest.KindString},
				},
				SettingsGroupValidation: [][]string{{"api_key"}},
				Config: map[string]any{
					"start_date": "2024-01-01",
					"stream_maps": map[string]any{
						"users": map[string]any{"email": "__NULL__", "name": "__NULL__"},
					},
					"flattening_enabled": true,
				},
			}},
		},
	}
}

func tap(p *manifest.Project) *manifest.Plugin {
	return &p.Plugins.Extractors[0]
}

func TestResolveSources(t *testing.T) {
	t.Parallel()

	p := testProject()
	p.Environments[1].Config.Plugins.Extractors = []manifest.PluginOverride{{
		Name:   "tap-iterable",
		Config: map[string]any{"region": "EU"},
	}}

	res, err := Resolve(p, tap(p), "prod", map[string]string{
		"TAP_ITERABLE_API_KEY": "secret",
		"ITERABLE_END":         "2024-02-01T00:00:00Z",
	})
	require.NoError(t, err)

	tests := []struct {
		name   string
		value  any
		source Source
	}{
		{"api_key", "secret", SourceEnv},
		{"region", "EU", SourceEnvironment},
		{"start_date", "2024-01-01", SourceManifest},
		{"end_date", "2024-02-01T00:00:00Z", SourceEnv},
		{"page_size", 100, SourceDefault},
		{"stream_maps.users.email", "__NULL__", SourceManifest},
	}
	for _, tt := range tests {
		v, ok := res.Get(tt.name)
		require.True(t, ok, tt.name)
		assert.Equal(t, tt.value, v.Value, tt.name)
		assert.Equal(t, tt.source, v.Source, tt.name)
	}

	endDate, _ := res.Get("end_date")
	assert.Equal(t, "ITERABLE_END", endDate.EnvVar)

	passthrough, ok := res.Get("flattening_enabled")
	require.True(t, ok)
	assert.False(t, passthrough.Declared())
	assert.Equal(t, true, passthrough.Value)
}

func TestResolveDoesNotMutateManifest(t *testing.T) {
	t.Parallel()

	p := testProject()
	p.Environments[0].Config.Plugins.Extractors = []manifest.PluginOverride{{
		Name: "tap-iterable",
		Config: map[string]any{
			"stream_maps": map[string]any{"users": map[string]any{"email": "md5(email)"}},
		},
	}}

	res, err := Resolve(p, tap(p), "test", nil)
	require.NoError(t, err)

	v, _ := res.Get("stream_maps.users.email")
	assert.Equal(t, "md5(email)", v.Value)
	assert.Equal(t, SourceEnvironment, v.Source)

	maps := tap(p).Config["stream_maps"].(map[string]any)["users"].(map[string]any)
	assert.Equal(t, "__NULL__", maps["email"])
	assert.Equal(t, "__NULL__", maps["name"], "deep merge keeps sibling keys")
}

func TestResolveEnvironmentEnvMap(t *testing.T) {
	t.Parallel()

	p := testProject()
	p.Environments[0].Env = map[string]string{"TAP_ITERABLE_API_KEY": "from-environment", "EXTRA": "1"}

	res, err := Resolve(p, tap(p), "test", nil)
	require.NoError(t, err)
	v, _ := res.Get("api_key")
	assert.Equal(t, "from-environment", v.Value)
	assert.Equal(t, SourceEnv, v.Source)
	assert.Contains(t, res.EnvVars(), "EXTRA=1")

	res, err = Resolve(p, tap(p), "test", map[string]string{"TAP_ITERABLE_API_KEY": "from-process"})
	require.NoError(t, err)
	v, _ = res.Get("api_key")
	assert.Equal(t, "from-process", v.Value)
}

func TestResolveUnknownEnvironment(t *testing.T) {
	t.Parallel()

	p := testProject()
	_, err := Resolve(p, tap(p), "staging", nil)
	assert.ErrorIs(t, err, manifest.ErrEnvironmentNotFound)
}

func TestResolveCoercionErrors(t *testing.T) {
	t.Parallel()

	p := testProject()
	res, err := Resolve(p, tap(p), "", map[string]string{
		"TAP_ITERABLE_REGION":    "APAC",
		"TAP_ITERABLE_PAGE_SIZE": "lots",
	})
	assert.Nil(t, res)
	require.ErrorIs(t, err, ErrInvalidValue)

	var cerr *CoercionError
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, "tap-iterable", cerr.Plugin)
	assert.Equal(t, SourceEnv, cerr.Source)
	assert.Contains(t, err.Error(), `setting "region"`)
	assert.Contains(t, err.Error(), `setting "page_size"`)
}

func TestResolveNamespaceEnvName(t *testing.T) {
	t.Parallel()

	p := testProject()
	tap(p).Namespace = "iterable"

	res, err := Resolve(p, tap(p), "", map[string]string{"ITERABLE_API_KEY": "ns"})
	require.NoError(t, err)
	v, _ := res.Get("api_key")
	assert.Equal(t, "ns", v.Value)
	assert.Equal(t, "ITERABLE_API_KEY", v.EnvVar)
}

func TestEnvNames(t *testing.T) {
	t.Parallel()

	p := testProject()
	s, _ := tap(p).Setting("end_date")
	assert.Equal(t, []string{"ITERABLE_END", "TAP_ITERABLE_END_DATE"}, EnvNames(tap(p), &s))

	s, _ = tap(p).Setting("stream_maps.users.email")
	assert.Equal(t, []string{"TAP_ITERABLE_STREAM_MAPS_USERS_EMAIL"}, EnvNames(tap(p), &s))
}

func TestLookup(t *testing.T) {
	t.Parallel()

	p := testProject()
	res, err := Resolve(p, tap(p), "", nil)
	require.NoError(t, err)

	assert.True(t, res.Lookup("api_key").IsAbsent())
	assert.Equal(t, "US", res.Lookup("region").MustGet())
	assert.True(t, res.Lookup("missing").IsAbsent())
}

// layers picks which precedence layers carry a value for page_size.
type layers struct {
	env, environment, manifest, def bool
}

func TestResolvePrecedence_Properties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("highest present layer wins", prop.ForAll(
		func(env, environment, inManifest, def bool) bool {
			l := layers{env, environment, inManifest, def}

			plugin := manifest.Plugin{
				Name:     "tap-iterable",
				PipURL:   "-e .",
				Type:     manifest.PluginTypeExtractor,
				Settings: []manifest.Setting{{Name: "page_size", Kind: manifest.KindInteger}},
				Config:   map[string]any{},
			}
			project := &manifest.Project{
				Environments: []manifest.Environment{{Name: "test"}},
				Plugins:      manifest.Plugins{Extractors: []manifest.Plugin{plugin}},
			}
			pl := &project.Plugins.Extractors[0]
			environ := map[string]string{}

			if l.def {
				pl.Settings[0].Value = 1
			}
			if l.manifest {
				pl.Config["page_size"] = 2
			}
			if l.environment {
				project.Environments[0].Config.Plugins.Extractors = []manifest.PluginOverride{
					{Name: "tap-iterable", Config: map[string]any{"page_size": 3}},
				}
			}
			if l.env {
				environ["TAP_ITERABLE_PAGE_SIZE"] = "4"
			}

			res, err := Resolve(project, pl, "test", environ)
			if err != nil {
				return false
			}
			v, _ := res.Get("page_size")

			switch {
			case l.env:
				return v.Source == SourceEnv && v.Value == 4
			case l.environment:
				return v.Source == SourceEnvironment && v.Value == 3
			case l.manifest:
				return v.Source == SourceManifest && v.Value == 2
			case l.def:
				return v.Source == SourceDefault && v.Value == 1
			default:
				return v.Source == SourceUnset && !v.IsSet()
			}
		},
		gen.Bool(), gen.Bool(), gen.Bool(), gen.Bool(),
	))

	properties.TestingRun(t)
}
