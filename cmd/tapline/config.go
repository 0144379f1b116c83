package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"github.com/tidwall/pretty"

	"github.com/omarluq/tapline/cmd/tapline/di"
	"github.com/omarluq/tapline/internal/settings"
)

// Output formats for config.
const (
	formatTable = "table"
	formatJSON  = "json"
	formatEnv   = "env"
)

var configCmd = &cobra.Command{
	Use:   "config <plugin>",
	Short: "Show a plugin's resolved settings",
	Long: `Resolve a plugin's settings in the active environment and show each value
with its source. Sensitive values are redacted. With --check the command fails
when no settings group is fully set.`,
	Args: cobra.ExactArgs(1),
	RunE: runConfig,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.Flags().StringP("format", "f", formatTable, "output format: table, json, env")
	configCmd.Flags().Bool("check", false, "fail unless a settings group is fully set")
}

func runConfig(cmd *cobra.Command, args []string) error {
	format, err := cmd.Flags().GetString("format")
	if err != nil {
		return fmt.Errorf("failed to get format flag: %w", err)
	}
	check, err := cmd.Flags().GetBool("check")
	if err != nil {
		return fmt.Errorf("failed to get check flag: %w", err)
	}

	return withContainer(cmd, func(_ context.Context, c *di.Container) error {
		invSvc, err := di.Invoke[*di.InvokerService](c)
		if err != nil {
			return err
		}
		p, err := invSvc.Invoker.Project.Plugin(args[0])
		if err != nil {
			return err
		}
		resolved, err := invSvc.Invoker.Resolve(p)
		if err != nil {
			return err
		}

		if err := printSettings(cmd.OutOrStdout(), resolved, format); err != nil {
			return err
		}
		if check {
			return resolved.CheckGroups()
		}
		return nil
	})
}

// printSettings writes resolved in format with sensitive values redacted.
func printSettings(w io.Writer, resolved *settings.Resolved, format string) error {
	redacted := &settings.Resolved{
		Plugin:      resolved.Plugin,
		Environment: resolved.Environment,
		Env:         resolved.Env,
		Values:      resolved.Redacted(),
	}

	switch strings.ToLower(format) {
	case formatTable:
		rows := lo.Map(redacted.Values, func(v settings.Value, _ int) []string {
			source := string(v.Source)
			if v.EnvVar != "" {
				source += " (" + v.EnvVar + ")"
			}
			return []string{v.Name, settings.FormatValue(v.Value), source}
		})
		_, err := fmt.Fprintln(w, renderTable([]string{"SETTING", "VALUE", "SOURCE"}, rows))
		return err

	case formatJSON:
		b, err := redacted.ConfigJSON()
		if err != nil {
			return err
		}
		_, err = w.Write(pretty.Pretty(b))
		return err

	case formatEnv:
		for _, kv := range redacted.EnvVars() {
			if _, err := fmt.Fprintln(w, kv); err != nil {
				return err
			}
		}
		return nil

	default:
		return fmt.Errorf("unknown format %q (want table, json or env)", format)
	}
}
