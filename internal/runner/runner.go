// Package runner runs an extractor into a loader and keeps their state.
package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/samber/mo"
	"golang.org/x/sync/errgroup"

	"github.com/omarluq/tapline/internal/manifest"
	"github.com/omarluq/tapline/internal/plugin"
	"github.com/omarluq/tapline/internal/ratelimit"
	"github.com/omarluq/tapline/internal/statestore"
	"github.com/omarluq/tapline/internal/systemdb"
)

// ErrPipelineFailed wraps the error of the plugin that ended a run.
var ErrPipelineFailed = errors.New("runner: pipeline failed")

// Job names one extractor to loader run.
type Job struct {
	Extractor   string
	Loader      string
	Environment string
	// StateID defaults to statestore.DefaultStateID.
	StateID     string
	FullRefresh bool
}

// Result describes a finished run.
type Result struct {
	RunID    string
	StateID  string
	State    []byte
	Flushes  int
	Duration time.Duration
}

// Runner executes jobs.
type Runner struct {
	Invoker *plugin.Invoker
	State   statestore.Backend
	// DB records runs when set.
	DB *systemdb.DB
	// FlushPerMinute bounds intermediate state writes; 0 writes every STATE.
	FlushPerMinute int
	Now            func() time.Time
}

func (r *Runner) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// StateIDFor returns the state id job runs under.
func (r *Runner) StateIDFor(job Job) string {
	if job.StateID != "" {
		return job.StateID
	}
	env := job.Environment
	if env == "" {
		env = r.Invoker.Environment
	}
	return statestore.DefaultStateID(env, job.Extractor, job.Loader)
}

// Run executes job. The extractor's stdout is piped to the loader; state the
// loader prints is persisted while the run progresses and once more when it
// succeeds.
func (r *Runner) Run(ctx context.Context, job Job) (*Result, error) {
	tap, err := r.Invoker.Project.Extractor(job.Extractor)
	if err != nil {
		return nil, err
	}
	target, err := r.Invoker.Project.Loader(job.Loader)
	if err != nil {
		return nil, err
	}
	if err := r.checkConfigured(tap, target); err != nil {
		return nil, err
	}

	result := &Result{RunID: uuid.NewString(), StateID: r.StateIDFor(job)}
	logger := log.Ctx(ctx).With().
		Str("run_id", result.RunID).
		Str("state_id", result.StateID).
		Logger()
	ctx = logger.WithContext(ctx)

	started := r.now()
	if r.DB != nil {
		if err := r.DB.StartRun(ctx, result.RunID, result.StateID, started); err != nil {
			return nil, err
		}
	}
	logger.Info().Str("extractor", tap.Name).Str("loader", target.Name).Msg("run started")

	runErr := r.run(ctx, tap, target, job, result)
	result.Duration = r.now().Sub(started)

	if r.DB != nil {
		if err := r.DB.FinishRun(context.WithoutCancel(ctx), result.RunID, r.now(), runErr); err != nil {
			logger.Error().Err(err).Msg("failed to record run result")
		}
	}

	if runErr != nil {
		logger.Error().Err(runErr).Dur("duration", result.Duration).Msg("run failed")
		return result, runErr
	}
	logger.Info().Dur("duration", result.Duration).Int("state_flushes", result.Flushes).Msg("run finished")
	return result, nil
}

func (r *Runner) checkConfigured(plugins ...*manifest.Plugin) error {
	for _, p := range plugins {
		resolved, err := r.Invoker.Resolve(p)
		if err != nil {
			return err
		}
		if err := resolved.CheckGroups(); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) run(ctx context.Context, tap, target *manifest.Plugin, job Job, result *Result) error {
	tapOpts, err := r.extractorOptions(ctx, tap, job, result.StateID)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)

	tapInv, err := r.Invoker.Command(gctx, tap, tapOpts)
	if err != nil {
		return err
	}
	defer func() { _ = tapInv.Cleanup() }()

	targetInv, err := r.Invoker.Command(gctx, target, plugin.Options{})
	if err != nil {
		return err
	}
	defer func() { _ = targetInv.Cleanup() }()

	logger := zerolog.Ctx(ctx)
	tapStderr := newLineWriter(logger, tap.Name)
	targetStderr := newLineWriter(logger, target.Name)
	defer tapStderr.Flush()
	defer targetStderr.Flush()

	pr, pw, err := os.Pipe()
	if err != nil {
		return fmt.Errorf("failed to create pipe: %w", err)
	}
	tapInv.Cmd.Stdout = pw
	tapInv.Cmd.Stderr = tapStderr
	targetInv.Cmd.Stdin = pr
	targetInv.Cmd.Stderr = targetStderr

	targetOut, err := targetInv.Cmd.StdoutPipe()
	if err != nil {
		_ = pr.Close()
		_ = pw.Close()
		return fmt.Errorf("failed to attach to %s: %w", target.Name, err)
	}

	if err := targetInv.Cmd.Start(); err != nil {
		_ = pr.Close()
		_ = pw.Close()
		return fmt.Errorf("%w: failed to start %s: %w", ErrPipelineFailed, target.Name, err)
	}
	if err := tapInv.Cmd.Start(); err != nil {
		_ = pr.Close()
		_ = pw.Close()
		cancel()
		_ = targetInv.Cmd.Wait()
		return fmt.Errorf("%w: failed to start %s: %w", ErrPipelineFailed, tap.Name, err)
	}
	// The children hold their own copies of the pipe ends.
	_ = pr.Close()
	_ = pw.Close()

	limiter := ratelimit.New(r.FlushPerMinute)
	logger.Debug().Int("state_flush_per_minute", limiter.Limit()).Msg("pipeline started")
	sink := newStateSink(r.State, result.StateID, limiter)

	g.Go(func() error {
		if err := tapInv.Cmd.Wait(); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrPipelineFailed, tap.Name, err)
		}
		return nil
	})
	g.Go(func() error {
		scanErr := sink.Consume(gctx, targetOut)
		if err := targetInv.Cmd.Wait(); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrPipelineFailed, target.Name, err)
		}
		return scanErr
	})

	if err := g.Wait(); err != nil {
		result.Flushes = sink.Flushes()
		return err
	}

	if err := sink.Flush(ctx); err != nil {
		return err
	}
	result.State = sink.Latest()
	result.Flushes = sink.Flushes()
	return nil
}

// extractorOptions loads state and discovers a catalog for tap as its capabilities allow.
func (r *Runner) extractorOptions(ctx context.Context, tap *manifest.Plugin, job Job, stateID string) (plugin.Options, error) {
	opts := plugin.Options{}
	logger := zerolog.Ctx(ctx)

	if tap.HasCapability(manifest.CapabilityDiscover) &&
		(tap.HasCapability(manifest.CapabilityCatalog) || tap.HasCapability(manifest.CapabilityProperties)) {
		cat, err := r.Invoker.Discover(ctx, tap)
		if err != nil {
			return opts, err
		}
		opts.Catalog = mo.Some(cat)
	}

	if job.FullRefresh {
		logger.Info().Msg("full refresh, ignoring stored state")
		return opts, nil
	}
	if !tap.HasCapability(manifest.CapabilityState) || r.State == nil {
		return opts, nil
	}

	state, err := r.State.Get(ctx, stateID)
	switch {
	case errors.Is(err, statestore.ErrStateNotFound):
		logger.Debug().Msg("no stored state")
	case err != nil:
		return opts, err
	default:
		opts.State = mo.Some(state)
	}
	return opts, nil
}
