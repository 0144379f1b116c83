package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/omarluq/tapline/cmd/tapline/di"
	"github.com/omarluq/tapline/internal/scheduler"
	"github.com/omarluq/tapline/internal/shutdown"
)

const metricsShutdownTimeout = 5 * time.Second

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "List and run the manifest's schedules",
}

var scheduleListCmd = &cobra.Command{
	Use:   "list",
	Short: "List schedules and their intervals",
	Args:  cobra.NoArgs,
	RunE:  runScheduleList,
}

var scheduleRunCmd = &cobra.Command{
	Use:   "run [schedule]",
	Short: "Run schedules on their intervals until interrupted",
	Long: `Run every schedule immediately and then on its interval until SIGINT or
SIGTERM. With a schedule name, run that schedule once and exit. A schedule that
keeps failing is skipped until its circuit breaker lets a probe run through.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runScheduleRun,
}

func init() {
	rootCmd.AddCommand(scheduleCmd)
	scheduleCmd.AddCommand(scheduleListCmd, scheduleRunCmd)
	scheduleRunCmd.Flags().String("metrics-addr", "", "serve Prometheus metrics at this address (default: $TAPLINE_METRICS_ADDR)")
}

func runScheduleList(cmd *cobra.Command, _ []string) error {
	return withContainer(cmd, func(_ context.Context, c *di.Container) error {
		svc, err := di.Invoke[*di.SchedulerService](c)
		if err != nil {
			return err
		}

		entries := svc.Scheduler.Entries()
		rows := make([][]string, 0, len(entries))
		for _, e := range entries {
			rows = append(rows, []string{e.Schedule.Name, e.Schedule.Extractor, e.Schedule.Loader, e.Interval.String()})
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(),
			renderTable([]string{"NAME", "EXTRACTOR", "LOADER", "INTERVAL"}, rows))
		return err
	})
}

func runScheduleRun(cmd *cobra.Command, args []string) error {
	addr, err := cmd.Flags().GetString("metrics-addr")
	if err != nil {
		return fmt.Errorf("failed to get metrics-addr flag: %w", err)
	}

	return withContainer(cmd, func(ctx context.Context, c *di.Container) error {
		cfgSvc, err := di.Invoke[*di.ConfigService](c)
		if err != nil {
			return err
		}
		svc, err := di.Invoke[*di.SchedulerService](c)
		if err != nil {
			return err
		}
		if addr == "" {
			addr = cfgSvc.Config.MetricsAddr
		}

		ctx, stop := shutdown.Context(ctx)
		defer stop()

		if len(args) == 1 {
			entry, err := svc.Scheduler.Entry(args[0])
			if err != nil {
				return err
			}
			return svc.Scheduler.RunOnce(ctx, entry)
		}

		g, gctx := errgroup.WithContext(ctx)
		if addr != "" {
			g.Go(func() error {
				return serveMetrics(gctx, addr, svc.Metrics)
			})
		}
		g.Go(func() error {
			log.Ctx(gctx).Info().Int("schedules", len(svc.Scheduler.Entries())).Msg("scheduler started")
			err := svc.Scheduler.Run(gctx)
			log.Ctx(gctx).Info().Msg("scheduler stopped")
			stop()
			return err
		})
		return g.Wait()
	})
}

// serveMetrics serves /metrics on addr until ctx is done.
func serveMetrics(ctx context.Context, addr string, metrics *scheduler.Metrics) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), metricsShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Ctx(ctx).Error().Err(err).Msg("metrics server shutdown error")
		}
	}()

	log.Ctx(ctx).Info().Str("listen", addr).Msg("serving metrics")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}
