package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tidwall/pretty"

	"github.com/omarluq/tapline/cmd/tapline/di"
	"github.com/omarluq/tapline/internal/statestore"
)

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Inspect and edit pipeline state",
	Long: `Read and write the Singer state saved for each pipeline. State ids default
to <environment>:<extractor>-to-<loader>.`,
}

var stateListCmd = &cobra.Command{
	Use:   "list [pattern]",
	Short: "List state ids, optionally matching a glob pattern",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runStateList,
}

var stateGetCmd = &cobra.Command{
	Use:   "get <state-id>",
	Short: "Print the state saved under an id",
	Args:  cobra.ExactArgs(1),
	RunE:  runStateGet,
}

var stateSetCmd = &cobra.Command{
	Use:   "set <state-id> [json]",
	Short: "Replace the state saved under an id",
	Long: `Replace the state saved under an id with a JSON object given as an argument
or read from --input.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runStateSet,
}

var stateClearCmd = &cobra.Command{
	Use:   "clear <state-id>",
	Short: "Remove the state saved under an id",
	Args:  cobra.ExactArgs(1),
	RunE:  runStateClear,
}

func init() {
	rootCmd.AddCommand(stateCmd)
	stateCmd.AddCommand(stateListCmd, stateGetCmd, stateSetCmd, stateClearCmd)
	stateSetCmd.Flags().StringP("input", "i", "", "read the state from this file")
}

func withStateBackend(cmd *cobra.Command, fn func(ctx context.Context, backend statestore.Backend) error) error {
	return withContainer(cmd, func(ctx context.Context, c *di.Container) error {
		svc, err := di.Invoke[*di.StateBackendService](c)
		if err != nil {
			return err
		}
		return fn(ctx, svc.Backend)
	})
}

func runStateList(cmd *cobra.Command, args []string) error {
	pattern := ""
	if len(args) == 1 {
		pattern = args[0]
	}

	return withStateBackend(cmd, func(ctx context.Context, backend statestore.Backend) error {
		ids, err := backend.List(ctx, pattern)
		if err != nil {
			return err
		}
		for _, id := range ids {
			fmt.Fprintln(cmd.OutOrStdout(), id)
		}
		return nil
	})
}

func runStateGet(cmd *cobra.Command, args []string) error {
	return withStateBackend(cmd, func(ctx context.Context, backend statestore.Backend) error {
		state, err := backend.Get(ctx, args[0])
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(pretty.Pretty(state))
		return err
	})
}

func runStateSet(cmd *cobra.Command, args []string) error {
	input, err := cmd.Flags().GetString("input")
	if err != nil {
		return fmt.Errorf("failed to get input flag: %w", err)
	}

	var state []byte
	switch {
	case len(args) == 2 && input != "":
		return fmt.Errorf("give the state as an argument or with --input, not both")
	case len(args) == 2:
		state = []byte(args[1])
	case input != "":
		if state, err = os.ReadFile(input); err != nil {
			return fmt.Errorf("failed to read state: %w", err)
		}
	default:
		return fmt.Errorf("state is required as an argument or with --input")
	}

	id := args[0]
	if err := statestore.Validate(id, state); err != nil {
		return err
	}

	return withStateBackend(cmd, func(ctx context.Context, backend statestore.Backend) error {
		if err := backend.Set(ctx, id, pretty.Ugly(state)); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s State saved for %s\n", okMark(), id)
		return nil
	})
}

func runStateClear(cmd *cobra.Command, args []string) error {
	return withStateBackend(cmd, func(ctx context.Context, backend statestore.Backend) error {
		if err := backend.Clear(ctx, args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s State cleared for %s\n", okMark(), args[0])
		return nil
	})
}
