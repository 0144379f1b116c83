package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/omarluq/tapline/cmd/tapline/di"
	"github.com/omarluq/tapline/internal/runner"
	"github.com/omarluq/tapline/internal/shutdown"
)

var runCmd = &cobra.Command{
	Use:   "run <extractor> <loader>",
	Short: "Run an extractor into a loader",
	Long: `Pipe the extractor's output into the loader, resuming from the state saved
by the previous run and saving the state the loader emits.`,
	Args: cobra.ExactArgs(2),
	RunE: runRun,
}

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recorded pipeline runs",
	Args:  cobra.NoArgs,
	RunE:  runRuns,
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(runsCmd)
	runCmd.Flags().String("state-id", "", "state id to read and write (default: <environment>:<extractor>-to-<loader>)")
	runCmd.Flags().Bool("full-refresh", false, "ignore saved state and extract everything")
	runsCmd.Flags().String("state-id", "", "only list runs for this state id")
	runsCmd.Flags().Int("limit", 20, "maximum number of runs to list")
}

func runRun(cmd *cobra.Command, args []string) error {
	stateID, err := cmd.Flags().GetString("state-id")
	if err != nil {
		return fmt.Errorf("failed to get state-id flag: %w", err)
	}
	fullRefresh, err := cmd.Flags().GetBool("full-refresh")
	if err != nil {
		return fmt.Errorf("failed to get full-refresh flag: %w", err)
	}

	return withContainer(cmd, func(ctx context.Context, c *di.Container) error {
		runSvc, err := di.Invoke[*di.RunnerService](c)
		if err != nil {
			return err
		}

		ctx, stop := shutdown.Context(ctx)
		defer stop()

		result, err := runSvc.Runner.Run(ctx, runner.Job{
			Extractor:   args[0],
			Loader:      args[1],
			StateID:     stateID,
			FullRefresh: fullRefresh,
		})
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "%s Run %s finished in %s %s\n",
			okMark(), result.RunID, result.Duration.Round(time.Millisecond),
			dimStyle.Render(fmt.Sprintf("(state %s, %d flushes)", result.StateID, result.Flushes)))
		return nil
	})
}

func runRuns(cmd *cobra.Command, _ []string) error {
	stateID, err := cmd.Flags().GetString("state-id")
	if err != nil {
		return fmt.Errorf("failed to get state-id flag: %w", err)
	}
	limit, err := cmd.Flags().GetInt("limit")
	if err != nil {
		return fmt.Errorf("failed to get limit flag: %w", err)
	}

	return withContainer(cmd, func(ctx context.Context, c *di.Container) error {
		dbSvc, err := di.Invoke[*di.SystemDBService](c)
		if err != nil {
			return err
		}
		runs, err := dbSvc.DB.ListRuns(ctx, stateID, limit)
		if err != nil {
			return err
		}

		rows := make([][]string, 0, len(runs))
		for _, r := range runs {
			rows = append(rows, []string{
				r.ID, r.StateID, string(r.Status),
				r.StartedAt.Format(time.RFC3339), r.Duration().Round(time.Millisecond).String(), r.Error,
			})
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(),
			renderTable([]string{"RUN", "STATE ID", "STATUS", "STARTED", "DURATION", "ERROR"}, rows))
		return err
	})
}
