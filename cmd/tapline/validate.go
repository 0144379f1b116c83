package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/omarluq/tapline/cmd/tapline/di"
	"github.com/omarluq/tapline/internal/manifest"
	"github.com/omarluq/tapline/internal/shutdown"
)

// ErrManifestInvalid is returned when validate finds errors, or warnings with --strict.
var ErrManifestInvalid = errors.New("manifest is invalid")

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the project manifest",
	Long: `Parse the manifest, check it against the manifest JSON Schema and the
typed rules, and report lint warnings. With --watch the manifest is checked
again every time it changes on disk.`,
	Args: cobra.NoArgs,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
	validateCmd.Flags().Bool("strict", false, "treat lint warnings as errors")
	validateCmd.Flags().Bool("watch", false, "re-validate whenever the manifest changes")
}

// validationReport is the outcome of checking one manifest.
type validationReport struct {
	Path     string
	Errors   []string
	Warnings []manifest.Warning
}

// OK reports whether the manifest passes, counting warnings as errors when strict.
func (r validationReport) OK(strict bool) bool {
	return len(r.Errors) == 0 && (!strict || len(r.Warnings) == 0)
}

// checkManifest runs every manifest check and collects the findings.
func checkManifest(path string) validationReport {
	report := validationReport{Path: path}

	project, err := manifest.Load(path)
	if err != nil {
		report.Errors = append(report.Errors, err.Error())
		return report
	}
	return checkProject(path, project)
}

func checkProject(path string, project *manifest.Project) validationReport {
	report := validationReport{Path: path}

	if err := manifest.ValidateDocument(project.Raw(), project.Format()); err != nil {
		report.Errors = append(report.Errors, err.Error())
	}

	var verr *manifest.ValidationError
	if err := project.Validate(); errors.As(err, &verr) {
		report.Errors = append(report.Errors, verr.Errors...)
	} else if err != nil {
		report.Errors = append(report.Errors, err.Error())
	}

	report.Warnings = project.Lint()
	return report
}

func printReport(w io.Writer, report validationReport, strict bool) {
	for _, msg := range report.Errors {
		fmt.Fprintf(w, "%s %s\n", failMark(), msg)
	}
	for _, warning := range report.Warnings {
		fmt.Fprintf(w, "%s %s\n", warnMark(), warnStyle.Render(warning.String()))
	}

	summary := dimStyle.Render(fmt.Sprintf("(%d errors, %d warnings)", len(report.Errors), len(report.Warnings)))
	if report.OK(strict) {
		fmt.Fprintf(w, "%s %s is valid %s\n", okMark(), titleStyle.Render(report.Path), summary)
		return
	}
	fmt.Fprintf(w, "%s %s is invalid %s\n", failMark(), titleStyle.Render(report.Path), summary)
}

func runValidate(cmd *cobra.Command, _ []string) error {
	strict, err := cmd.Flags().GetBool("strict")
	if err != nil {
		return fmt.Errorf("failed to get strict flag: %w", err)
	}
	watch, err := cmd.Flags().GetBool("watch")
	if err != nil {
		return fmt.Errorf("failed to get watch flag: %w", err)
	}

	out := cmd.OutOrStdout()
	report := checkManifest(flags.manifest)
	printReport(out, report, strict)

	if !watch {
		if !report.OK(strict) {
			return ErrManifestInvalid
		}
		return nil
	}

	return withContainer(cmd, func(ctx context.Context, _ *di.Container) error {
		return watchManifest(ctx, out, flags.manifest, strict)
	})
}

// watchManifest reports on every accepted change until a shutdown signal arrives.
func watchManifest(ctx context.Context, out io.Writer, path string, strict bool) error {
	w, err := manifest.NewWatcher(path)
	if err != nil {
		return fmt.Errorf("failed to watch manifest: %w", err)
	}
	defer func() {
		if cerr := w.Close(); cerr != nil {
			log.Ctx(ctx).Warn().Err(cerr).Msg("failed to close manifest watcher")
		}
	}()

	w.OnReload(func(project *manifest.Project) error {
		printReport(out, checkProject(path, project), strict)
		return nil
	})

	ctx, stop := shutdown.Context(ctx)
	defer stop()

	log.Ctx(ctx).Info().Str("path", w.Path()).Msg("watching manifest for changes")
	if err := w.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
