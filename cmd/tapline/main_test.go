package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/omarluq/tapline/internal/manifest"
)

const scheduleYAML = `
schedules:
- name: daily-iterable
  extractor: tap-iterable
  loader: target-jsonl
  interval: '@daily'
`

// newProject writes the reference manifest plus extra YAML into a temp dir
// and points the global flags at it.
func newProject(t *testing.T, extra string) string {
	t.Helper()

	dir := t.TempDir()
	path, err := manifest.Init(dir)
	require.NoError(t, err)
	if extra != "" {
		f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
		require.NoError(t, err)
		_, err = f.WriteString(extra)
		require.NoError(t, err)
		require.NoError(t, f.Close())
	}

	useManifest(t, path)
	return dir
}

func useManifest(t *testing.T, path string) {
	t.Helper()
	old := flags
	flags = globalFlags{manifest: path, logLevel: "error", logFormat: "json"}
	t.Cleanup(func() { flags = old })
}

// newMockCmd returns a command writing to a buffer, with setup registering flags.
func newMockCmd(setup func(*cobra.Command)) (*cobra.Command, *bytes.Buffer) {
	cmd := &cobra.Command{Use: "mock"}
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	if setup != nil {
		setup(cmd)
	}
	return cmd, &out
}

// writeExecutable installs a fake plugin executable into the plugin's venv.
func writeExecutable(t *testing.T, root, typ, name, body string) {
	t.Helper()
	bin := filepath.Join(root, ".meltano", typ, name, "venv", "bin")
	require.NoError(t, os.MkdirAll(bin, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(bin, name), []byte("#!/bin/sh\n"+body), 0o755))
}
