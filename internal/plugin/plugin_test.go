package plugin

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/omarluq/tapline/internal/manifest"
)

func testProject() *manifest.Project {
	return &manifest.Project{
		ProjectID:          "tap-iterable",
		DefaultEnvironment: "test",
		Environments:       []manifest.Environment{{Name: "test"}},
		Plugins: manifest.Plugins{
			Extractors: []manifest.Plugin{{
				Name:      "tap-iterable",
				Namespace: "tap_iterable",
				PipURL:    "-e .",
				Type:      manifest.PluginTypeExtractor,
				Capabilities: []manifest.Capability{
					manifest.CapabilityState, manifest.CapabilityCatalog,
					manifest.CapabilityDiscover, manifest.CapabilityAbout,
				},
				Settings: []manifest.Setting{
					{Name: "api_key", Kind: manifest.KindPassword},
					{Name: "start_date", Kind: manifest.KindDate, Value: "2024-01-01"},
				},
				Select: []string{"users.*"},
			}},
			Loaders: []manifest.Plugin{{
				Name:    "target-jsonl",
				Variant: "andyh1203",
				PipURL:  "target-jsonl",
				Type:    manifest.PluginTypeLoader,
			}},
		},
	}
}

// writeScript installs a fake executable for p into its venv.
func writeScript(t *testing.T, layout Layout, p *manifest.Plugin, body string) string {
	t.Helper()

	bin := filepath.Join(layout.VenvDir(p), "bin")
	require.NoError(t, os.MkdirAll(bin, 0o755))
	path := filepath.Join(bin, p.ExecutableName())
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

func newInvoker(t *testing.T) (*Invoker, *manifest.Project) {
	t.Helper()

	project := testProject()
	return &Invoker{
		Project:     project,
		Exec:        OSExecutor{},
		Environ:     map[string]string{"PATH": os.Getenv("PATH"), "TAP_ITERABLE_API_KEY": "k"},
		Environment: "test",
		Layout:      Layout{Root: t.TempDir()},
	}, project
}

func TestLayout(t *testing.T) {
	t.Parallel()

	layout := Layout{Root: "/project"}
	p := &testProject().Plugins.Loaders[0]

	assert.Equal(t, "/project/.meltano/loaders/target-jsonl/venv", layout.VenvDir(p))
	assert.Equal(t, "/project/.meltano/run/target-jsonl", layout.RunDir(p))
}

func TestLayoutExecutable(t *testing.T) {
	t.Parallel()

	layout := Layout{Root: t.TempDir()}
	p := &testProject().Plugins.Extractors[0]

	_, err := layout.Executable(p)
	require.ErrorIs(t, err, ErrExecutableNotFound)

	want := writeScript(t, layout, p, "exit 0")
	got, err := layout.Executable(p)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	p.Executable = "sh"
	got, err = layout.Executable(p)
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(got), "falls back to PATH")
}

func TestCommand(t *testing.T) {
	t.Parallel()

	iv, project := newInvoker(t)
	tap := &project.Plugins.Extractors[0]
	writeScript(t, iv.Layout, tap, "exit 0")

	inv, err := iv.Command(context.Background(), tap, Options{
		State:   mo.Some([]byte(`{"bookmarks":{}}`)),
		Catalog: mo.Some([]byte(`{"streams":[]}`)),
		Args:    []string{"--test"},
	})
	require.NoError(t, err)
	defer inv.Cleanup()

	assert.Equal(t, []string{
		"--config", inv.ConfigPath,
		"--state", inv.StatePath,
		"--catalog", inv.CatalogPath,
		"--test",
	}, inv.Cmd.Args[1:])
	assert.Equal(t, iv.Layout.Root, inv.Cmd.Dir)
	assert.Contains(t, inv.Cmd.Env, "TAP_ITERABLE_API_KEY=k")
	assert.Contains(t, inv.Cmd.Env, "TAP_ITERABLE_START_DATE=2024-01-01")

	config, err := os.ReadFile(inv.ConfigPath)
	require.NoError(t, err)
	assert.Equal(t, "k", gjson.GetBytes(config, "api_key").String())

	info, err := os.Stat(inv.ConfigPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	require.NoError(t, inv.Cleanup())
	_, err = os.Stat(inv.Dir)
	assert.True(t, os.IsNotExist(err))
}

func TestCommandCapabilityGating(t *testing.T) {
	t.Parallel()

	iv, project := newInvoker(t)
	target := &project.Plugins.Loaders[0]
	writeScript(t, iv.Layout, target, "exit 0")

	// State is silently dropped for plugins without the state capability.
	inv, err := iv.Command(context.Background(), target, Options{State: mo.Some([]byte(`{}`))})
	require.NoError(t, err)
	assert.Equal(t, []string{"--config", inv.ConfigPath}, inv.Cmd.Args[1:])
	require.NoError(t, inv.Cleanup())

	_, err = iv.Command(context.Background(), target, Options{Catalog: mo.Some([]byte(`{}`))})
	require.ErrorIs(t, err, ErrCapabilityMissing)

	target.Capabilities = []manifest.Capability{manifest.CapabilityProperties}
	inv, err = iv.Command(context.Background(), target, Options{Catalog: mo.Some([]byte(`{}`)), Dir: t.TempDir()})
	require.NoError(t, err)
	assert.Equal(t, "--properties", inv.Cmd.Args[3])
}

func TestCommandRemovesRunDirOnFailure(t *testing.T) {
	t.Parallel()

	iv, project := newInvoker(t)
	tap := &project.Plugins.Extractors[0]
	tap.Config = map[string]any{"unencodable": make(chan int)}
	writeScript(t, iv.Layout, tap, "exit 0")

	_, err := iv.Command(context.Background(), tap, Options{})
	require.Error(t, err)

	entries, err := os.ReadDir(iv.Layout.RunDir(tap))
	require.NoError(t, err)
	assert.Empty(t, entries, "no invoke-* directory is left behind")

	// A caller-owned directory is kept.
	dir := filepath.Join(t.TempDir(), "inputs")
	_, err = iv.Command(context.Background(), tap, Options{Dir: dir})
	require.Error(t, err)
	_, err = os.Stat(dir)
	assert.NoError(t, err)
}

func TestDiscover(t *testing.T) {
	t.Parallel()

	iv, project := newInvoker(t)
	tap := &project.Plugins.Extractors[0]
	writeScript(t, iv.Layout, tap, `
case "$*" in
  *--discover*) ;;
  *) echo "unexpected args: $*" >&2; exit 2 ;;
esac
cat <<'JSON'
{"streams":[
  {"tap_stream_id":"users","schema":{"properties":{"email":{}}},"metadata":[{"breadcrumb":[],"metadata":{}}]},
  {"tap_stream_id":"groups","schema":{"properties":{"id":{}}},"metadata":[{"breadcrumb":[],"metadata":{}}]}
]}
JSON`)

	out, err := iv.Discover(context.Background(), tap)
	require.NoError(t, err)

	assert.True(t, gjson.GetBytes(out, "streams.0.metadata.0.metadata.selected").Bool())
	assert.False(t, gjson.GetBytes(out, "streams.1.metadata.0.metadata.selected").Bool())

	entries, err := os.ReadDir(iv.Layout.RunDir(tap))
	require.NoError(t, err)
	assert.Empty(t, entries, "discovery cleans up its run directory")
}

func TestDiscoverFailureSurfacesStderr(t *testing.T) {
	t.Parallel()

	iv, project := newInvoker(t)
	tap := &project.Plugins.Extractors[0]
	writeScript(t, iv.Layout, tap, `echo "invalid api key" >&2; exit 1`)

	_, err := iv.Discover(context.Background(), tap)
	require.Error(t, err)

	var cerr *CommandError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "invalid api key", cerr.Stderr)
}

func TestAbout(t *testing.T) {
	t.Parallel()

	iv, project := newInvoker(t)
	tap := &project.Plugins.Extractors[0]
	writeScript(t, iv.Layout, tap, `echo '{"name": "tap-iterable", "capabilities": ["state"]}'`)

	out, err := iv.About(context.Background(), tap)
	require.NoError(t, err)
	assert.Equal(t, "tap-iterable", gjson.GetBytes(out, "name").String())

	_, err = iv.About(context.Background(), &project.Plugins.Loaders[0])
	assert.ErrorIs(t, err, ErrCapabilityMissing)

	_, err = iv.Discover(context.Background(), &project.Plugins.Loaders[0])
	assert.ErrorIs(t, err, ErrCapabilityMissing)
}

func TestInstallDryRun(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	inst := &Installer{Layout: Layout{Root: "/project"}, Out: &out, DryRun: true}
	p := &testProject().Plugins.Extractors[0]

	require.NoError(t, inst.Install(context.Background(), p))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	assert.Equal(t, []string{
		"python3 -m venv /project/.meltano/extractors/tap-iterable/venv",
		"/project/.meltano/extractors/tap-iterable/venv/bin/pip install -e .",
	}, lines)
}

type recordingExecutor struct {
	calls [][]string
	fail  error
}

func (r *recordingExecutor) Output(_ context.Context, _ string, _ []string, name string, args ...string) ([]byte, error) {
	r.calls = append(r.calls, append([]string{name}, args...))
	return nil, r.fail
}

func TestInstall(t *testing.T) {
	t.Parallel()

	exec := &recordingExecutor{}
	inst := &Installer{Layout: Layout{Root: t.TempDir()}, Exec: exec, Python: "python3.12"}
	p := &testProject().Plugins.Loaders[0]

	require.NoError(t, inst.Install(context.Background(), p))
	require.Len(t, exec.calls, 2)
	assert.Equal(t, "python3.12", exec.calls[0][0])
	assert.Equal(t, []string{"install", "target-jsonl"}, exec.calls[1][1:])

	exec.fail = &CommandError{Args: []string{"pip"}, Stderr: "No matching distribution found"}
	err := inst.Install(context.Background(), p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "No matching distribution found")
}
