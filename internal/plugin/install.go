package plugin

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/omarluq/tapline/internal/manifest"
)

// DefaultPython is the interpreter used to create plugin venvs.
const DefaultPython = "python3"

// Installer creates a venv per plugin and pip-installs its pip_url into it.
type Installer struct {
	Exec   Executor
	Out    io.Writer
	Layout Layout
	Python string
	DryRun bool
}

// Commands returns the commands Install runs for p.
func (i *Installer) Commands(p *manifest.Plugin) [][]string {
	python := i.Python
	if python == "" {
		python = DefaultPython
	}
	venv := i.Layout.VenvDir(p)
	pip := append([]string{filepath.Join(venv, "bin", "pip"), "install"}, strings.Fields(p.PipURL)...)

	return [][]string{
		{python, "-m", "venv", venv},
		pip,
	}
}

// Install installs p. With DryRun set the commands are printed to Out instead.
func (i *Installer) Install(ctx context.Context, p *manifest.Plugin) error {
	cmds := i.Commands(p)

	if i.DryRun {
		for _, c := range cmds {
			if _, err := fmt.Fprintln(i.Out, strings.Join(c, " ")); err != nil {
				return err
			}
		}
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(i.Layout.VenvDir(p)), 0o755); err != nil {
		return fmt.Errorf("failed to create plugin directory: %w", err)
	}

	logger := log.Ctx(ctx).With().Str("plugin", p.Name).Str("type", p.Type.Singular()).Logger()
	for _, c := range cmds {
		logger.Debug().Strs("cmd", c).Msg("running install step")
		if _, err := i.Exec.Output(ctx, i.Layout.Root, nil, c[0], c[1:]...); err != nil {
			return fmt.Errorf("failed to install %s: %w", p.Name, err)
		}
	}
	logger.Info().Str("venv", i.Layout.VenvDir(p)).Msg("plugin installed")
	return nil
}
