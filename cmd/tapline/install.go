package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/omarluq/tapline/cmd/tapline/di"
	"github.com/omarluq/tapline/internal/manifest"
)

var installCmd = &cobra.Command{
	Use:   "install [plugin...]",
	Short: "Install plugins into per-plugin virtualenvs",
	Long: `Create a virtualenv under .meltano/ for each plugin and pip-install its
pip_url into it. Without arguments every plugin in the manifest is installed.`,
	RunE: runInstall,
}

func init() {
	rootCmd.AddCommand(installCmd)
	installCmd.Flags().Bool("dry-run", false, "print the install commands without running them")
}

func runInstall(cmd *cobra.Command, args []string) error {
	dryRun, err := cmd.Flags().GetBool("dry-run")
	if err != nil {
		return fmt.Errorf("failed to get dry-run flag: %w", err)
	}

	return withContainer(cmd, func(ctx context.Context, c *di.Container) error {
		projSvc, err := di.Invoke[*di.ProjectService](c)
		if err != nil {
			return err
		}
		instSvc, err := di.Invoke[*di.InstallerService](c)
		if err != nil {
			return err
		}

		plugins := projSvc.Project.AllPlugins()
		if len(args) > 0 {
			plugins = make([]*manifest.Plugin, 0, len(args))
			for _, name := range args {
				p, err := projSvc.Project.Plugin(name)
				if err != nil {
					return err
				}
				plugins = append(plugins, p)
			}
		}

		installer := *instSvc.Installer
		installer.Out = cmd.OutOrStdout()
		installer.DryRun = dryRun

		for _, p := range plugins {
			if err := installer.Install(ctx, p); err != nil {
				return err
			}
			if !dryRun {
				fmt.Fprintf(cmd.OutOrStdout(), "%s Installed %s %s\n", okMark(), p.Type.Singular(), p.Name)
			}
		}
		return nil
	})
}
