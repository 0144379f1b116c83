// Package plugin installs and invokes extractor and loader executables.
package plugin

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/omarluq/tapline/internal/manifest"
)

// Sentinel errors.
var (
	ErrCapabilityMissing  = errors.New("plugin: capability missing")
	ErrExecutableNotFound = errors.New("plugin: executable not found")
)

// CapabilityError is returned when an operation needs a capability the plugin does not declare.
type CapabilityError struct {
	Plugin     string
	Capability manifest.Capability
}

func (e *CapabilityError) Error() string {
	return fmt.Sprintf("plugin %s does not declare the %s capability", e.Plugin, e.Capability)
}

// Is lets errors.Is match ErrCapabilityMissing.
func (e *CapabilityError) Is(target error) bool {
	return target == ErrCapabilityMissing
}

func needCapability(p *manifest.Plugin, c manifest.Capability) error {
	if p.HasCapability(c) {
		return nil
	}
	return &CapabilityError{Plugin: p.Name, Capability: c}
}

// StateDir is the directory under the project root holding tapline's working files.
const StateDir = ".meltano"

// Layout maps plugins to paths under a project root.
type Layout struct {
	Root string
}

// VenvDir returns .meltano/<type>/<name>/venv.
func (l Layout) VenvDir(p *manifest.Plugin) string {
	return filepath.Join(l.Root, StateDir, string(p.Type), p.Name, "venv")
}

// RunDir returns the directory that holds per-invocation files of p.
func (l Layout) RunDir(p *manifest.Plugin) string {
	return filepath.Join(l.Root, StateDir, "run", p.Name)
}

// Executable finds the plugin executable in its venv, then on PATH.
func (l Layout) Executable(p *manifest.Plugin) (string, error) {
	name := p.ExecutableName()
	local := filepath.Join(l.VenvDir(p), "bin", name)
	if info, err := os.Stat(local); err == nil && !info.IsDir() {
		return local, nil
	}
	path, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("%w: %s (run install first)", ErrExecutableNotFound, name)
	}
	return path, nil
}

// CommandError carries the stderr of a failed command.
type CommandError struct {
	Err    error
	Args   []string
	Stderr string
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("%s: %v", strings.Join(e.Args, " "), e.Err)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// Executor runs a command to completion and returns its stdout.
type Executor interface {
	Output(ctx context.Context, dir string, env []string, name string, args ...string) ([]byte, error)
}

// OSExecutor runs commands with os/exec.
type OSExecutor struct{}

// Output runs name with args in dir. A non-nil env replaces the process environment.
func (OSExecutor) Output(ctx context.Context, dir string, env []string, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.Env = env

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, &CommandError{
			Err:    err,
			Args:   append([]string{name}, args...),
			Stderr: strings.TrimSpace(stderr.String()),
		}
	}
	return stdout.Bytes(), nil
}
