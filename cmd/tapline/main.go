// Package main is the entry point for tapline.
package main

import (
	"context"
	"os"

	"github.com/charmbracelet/fang/v2"
	"github.com/spf13/cobra"

	"github.com/omarluq/tapline/internal/manifest"
)

// globalFlags holds the persistent flags shared by every subcommand.
type globalFlags struct {
	manifest    string
	environment string
	logLevel    string
	logFormat   string
}

var flags globalFlags

var rootCmd = &cobra.Command{
	Use:   "tapline",
	Short: "Run Singer taps and targets declared in meltano.yml",
	Long: `tapline reads a meltano.yml project, validates it, installs the Singer
plugins it declares and runs extractor to loader pipelines with their state
kept between runs.`,
	SilenceUsage: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flags.manifest, "manifest", manifest.DefaultFile, "path to the project manifest")
	pf.StringVarP(&flags.environment, "environment", "e", "",
		"environment to use (default: $TAPLINE_ENVIRONMENT, then default_environment)")
	pf.StringVar(&flags.logLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.StringVar(&flags.logFormat, "log-format", "", "log format: json, console, pretty")
}

func main() {
	if err := fang.Execute(context.Background(), rootCmd); err != nil {
		os.Exit(1)
	}
}
