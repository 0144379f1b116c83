package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/tidwall/pretty"

	"github.com/omarluq/tapline/cmd/tapline/di"
	"github.com/omarluq/tapline/internal/plugin"
	"github.com/omarluq/tapline/internal/shutdown"
)

var invokeCmd = &cobra.Command{
	Use:   "invoke <plugin> [args...]",
	Short: "Run a single plugin with its resolved config",
	Long: `Run a plugin's executable with --config pointing at its resolved settings.
Arguments after the plugin name are passed through, e.g.
  tapline invoke tap-iterable --discover`,
	Args: cobra.MinimumNArgs(1),
	RunE: runInvoke,
}

var aboutCmd = &cobra.Command{
	Use:   "about <plugin>",
	Short: "Show a plugin's --about metadata",
	Args:  cobra.ExactArgs(1),
	RunE:  runAbout,
}

func init() {
	rootCmd.AddCommand(invokeCmd)
	rootCmd.AddCommand(aboutCmd)
	invokeCmd.Flags().SetInterspersed(false)
}

func runInvoke(cmd *cobra.Command, args []string) error {
	return withContainer(cmd, func(ctx context.Context, c *di.Container) error {
		invSvc, err := di.Invoke[*di.InvokerService](c)
		if err != nil {
			return err
		}
		p, err := invSvc.Invoker.Project.Plugin(args[0])
		if err != nil {
			return err
		}

		ctx, stop := shutdown.Context(ctx)
		defer stop()

		inv, err := invSvc.Invoker.Command(ctx, p, plugin.Options{Args: args[1:]})
		if err != nil {
			return err
		}
		defer func() {
			if cerr := inv.Cleanup(); cerr != nil {
				log.Ctx(ctx).Warn().Err(cerr).Msg("failed to remove run directory")
			}
		}()

		inv.Cmd.Stdin = cmd.InOrStdin()
		inv.Cmd.Stdout = cmd.OutOrStdout()
		inv.Cmd.Stderr = cmd.ErrOrStderr()

		log.Ctx(ctx).Debug().Str("plugin", p.Name).Strs("args", inv.Cmd.Args).Msg("invoking plugin")
		if err := inv.Cmd.Run(); err != nil {
			return fmt.Errorf("%s failed: %w", p.Name, err)
		}
		return nil
	})
}

func runAbout(cmd *cobra.Command, args []string) error {
	return withContainer(cmd, func(ctx context.Context, c *di.Container) error {
		invSvc, err := di.Invoke[*di.InvokerService](c)
		if err != nil {
			return err
		}
		p, err := invSvc.Invoker.Project.Plugin(args[0])
		if err != nil {
			return err
		}

		about, err := invSvc.Invoker.About(ctx, p)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(pretty.Pretty(about))
		return err
	})
}
