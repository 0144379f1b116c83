package plugin

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"

	"github.com/google/renameio/v2"
	"github.com/samber/lo"
	"github.com/samber/mo"
	"github.com/tidwall/gjson"

	"github.com/omarluq/tapline/internal/catalog"
	"github.com/omarluq/tapline/internal/manifest"
	"github.com/omarluq/tapline/internal/settings"
)

// File names written into an invocation directory.
const (
	ConfigFile  = "config.json"
	StateFile   = "state.json"
	CatalogFile = "catalog.json"
)

// Invoker builds plugin commands with resolved settings.
type Invoker struct {
	Project *manifest.Project
	Exec    Executor
	// Environ is the process environment used for setting lookup and passed to plugins.
	Environ     map[string]string
	Environment string
	Layout      Layout
}

// Options controls how a plugin is invoked.
type Options struct {
	// Dir receives config, state and catalog files. Defaults to a new directory under Layout.RunDir.
	Dir     string
	State   mo.Option[[]byte]
	Catalog mo.Option[[]byte]
	Args    []string
}

// Invocation is a prepared plugin command.
type Invocation struct {
	Cmd         *exec.Cmd
	Resolved    *settings.Resolved
	Plugin      *manifest.Plugin
	Dir         string
	ConfigPath  string
	StatePath   string
	CatalogPath string
}

// Cleanup removes the invocation directory.
func (inv *Invocation) Cleanup() error {
	return os.RemoveAll(inv.Dir)
}

// Resolve resolves p's settings in the invoker's environment.
func (iv *Invoker) Resolve(p *manifest.Plugin) (*settings.Resolved, error) {
	return settings.Resolve(iv.Project, p, iv.Environment, iv.Environ)
}

// Command prepares an exec.Cmd for p: --config always, --state when p has the
// state capability and state was supplied, and --catalog (or --properties)
// when a catalog was supplied.
func (iv *Invoker) Command(ctx context.Context, p *manifest.Plugin, opts Options) (*Invocation, error) {
	resolved, err := iv.Resolve(p)
	if err != nil {
		return nil, err
	}

	exe, err := iv.Layout.Executable(p)
	if err != nil {
		return nil, err
	}

	catalogFlag := ""
	if opts.Catalog.IsPresent() {
		switch {
		case p.HasCapability(manifest.CapabilityCatalog):
			catalogFlag = "--catalog"
		case p.HasCapability(manifest.CapabilityProperties):
			catalogFlag = "--properties"
		default:
			return nil, &CapabilityError{Plugin: p.Name, Capability: manifest.CapabilityCatalog}
		}
	}

	dir := opts.Dir
	created := dir == ""
	if created {
		if err := os.MkdirAll(iv.Layout.RunDir(p), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create run directory: %w", err)
		}
		if dir, err = os.MkdirTemp(iv.Layout.RunDir(p), "invoke-"); err != nil {
			return nil, fmt.Errorf("failed to create run directory: %w", err)
		}
	} else if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create run directory: %w", err)
	}

	inv, args, err := writeInputs(p, resolved, dir, catalogFlag, opts)
	if err != nil {
		if created {
			_ = os.RemoveAll(dir)
		}
		return nil, err
	}

	args = append(args, opts.Args...)

	cmd := exec.CommandContext(ctx, exe, args...)
	cmd.Dir = iv.Layout.Root
	cmd.Env = append(iv.environ(), resolved.EnvVars()...)
	inv.Cmd = cmd

	return inv, nil
}

// writeInputs writes config, state and catalog files into dir and returns
// the flags that pass them.
func writeInputs(p *manifest.Plugin, resolved *settings.Resolved, dir, catalogFlag string, opts Options) (*Invocation, []string, error) {
	inv := &Invocation{Resolved: resolved, Plugin: p, Dir: dir}

	config, err := resolved.ConfigJSON()
	if err != nil {
		return nil, nil, err
	}
	inv.ConfigPath = filepath.Join(dir, ConfigFile)
	if err := renameio.WriteFile(inv.ConfigPath, config, 0o600); err != nil {
		return nil, nil, fmt.Errorf("failed to write %s config: %w", p.Name, err)
	}
	args := []string{"--config", inv.ConfigPath}

	if state, ok := opts.State.Get(); ok && p.HasCapability(manifest.CapabilityState) {
		inv.StatePath = filepath.Join(dir, StateFile)
		if err := renameio.WriteFile(inv.StatePath, state, 0o600); err != nil {
			return nil, nil, fmt.Errorf("failed to write %s state: %w", p.Name, err)
		}
		args = append(args, "--state", inv.StatePath)
	}

	if cat, ok := opts.Catalog.Get(); ok {
		inv.CatalogPath = filepath.Join(dir, CatalogFile)
		if err := renameio.WriteFile(inv.CatalogPath, cat, 0o600); err != nil {
			return nil, nil, fmt.Errorf("failed to write %s catalog: %w", p.Name, err)
		}
		args = append(args, catalogFlag, inv.CatalogPath)
	}
	return inv, args, nil
}

// environ flattens Environ into KEY=VALUE pairs.
func (iv *Invoker) environ() []string {
	keys := lo.Keys(iv.Environ)
	sort.Strings(keys)
	return lo.Map(keys, func(k string, _ int) string { return k + "=" + iv.Environ[k] })
}

// output prepares p with opts and runs it to completion.
func (iv *Invoker) output(ctx context.Context, p *manifest.Plugin, opts Options) ([]byte, error) {
	inv, err := iv.Command(ctx, p, opts)
	if err != nil {
		return nil, err
	}
	defer func() { _ = inv.Cleanup() }()

	return iv.Exec.Output(ctx, inv.Cmd.Dir, inv.Cmd.Env, inv.Cmd.Path, inv.Cmd.Args[1:]...)
}

// Discover runs p in discovery mode and applies the select patterns of the
// active environment to the catalog it prints.
func (iv *Invoker) Discover(ctx context.Context, p *manifest.Plugin) ([]byte, error) {
	if err := needCapability(p, manifest.CapabilityDiscover); err != nil {
		return nil, err
	}

	raw, err := iv.output(ctx, p, Options{Args: []string{"--discover"}})
	if err != nil {
		return nil, fmt.Errorf("discovery failed for %s: %w", p.Name, err)
	}

	return catalog.Apply(raw, iv.Project.SelectFor(p, iv.Environment))
}

// About returns the JSON description p prints for --about.
func (iv *Invoker) About(ctx context.Context, p *manifest.Plugin) ([]byte, error) {
	if err := needCapability(p, manifest.CapabilityAbout); err != nil {
		return nil, err
	}

	out, err := iv.output(ctx, p, Options{Args: []string{"--about", "--format", "json"}})
	if err != nil {
		return nil, fmt.Errorf("about failed for %s: %w", p.Name, err)
	}
	if !gjson.ValidBytes(out) {
		return nil, fmt.Errorf("about output of %s is not JSON", p.Name)
	}
	return out, nil
}
