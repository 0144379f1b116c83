// Package di wires tapline's services with samber/do v2.
package di

import (
	"fmt"

	"github.com/samber/do/v2"
)

// Options are the command-line inputs the container is built from.
type Options struct {
	// Environ replaces the process environment when non-nil.
	Environ      map[string]string
	ManifestPath string
	Environment  string
	LogLevel     string
	LogFormat    string
}

// Container wraps the do.Injector with tapline's services registered.
type Container struct {
	injector *do.RootScope
}

// NewContainer creates the container. Services are built lazily on first use.
func NewContainer(opts Options) *Container {
	injector := do.New()
	do.ProvideValue(injector, opts)
	RegisterSingletons(injector)

	return &Container{injector: injector}
}

// Invoke resolves a service from the container.
func Invoke[T any](c *Container) (T, error) {
	return do.Invoke[T](c.injector)
}

// Shutdown shuts services down in reverse order of initialization.
func (c *Container) Shutdown() error {
	report := c.injector.Shutdown()
	if report != nil && !report.Succeed {
		return fmt.Errorf("shutdown failed: %s", report.Error())
	}
	return nil
}
