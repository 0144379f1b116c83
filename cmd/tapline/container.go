package main

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/omarluq/tapline/cmd/tapline/di"
)

func newContainer() *di.Container {
	return di.NewContainer(di.Options{
		ManifestPath: flags.manifest,
		Environment:  flags.environment,
		LogLevel:     flags.logLevel,
		LogFormat:    flags.logFormat,
	})
}

// withContainer runs fn with a fresh container whose logger is installed
// globally and carried by ctx. The container is shut down afterwards.
func withContainer(cmd *cobra.Command, fn func(ctx context.Context, c *di.Container) error) (err error) {
	c := newContainer()
	defer func() {
		if serr := c.Shutdown(); serr != nil && err == nil {
			err = serr
		}
	}()

	logSvc, err := di.Invoke[*di.LoggerService](c)
	if err != nil {
		return err
	}
	log.Logger = *logSvc.Logger
	zerolog.DefaultContextLogger = logSvc.Logger

	return fn(logSvc.Logger.WithContext(commandContext(cmd)), c)
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
