package di

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/samber/do/v2"

	"github.com/omarluq/tapline/internal/config"
	"github.com/omarluq/tapline/internal/manifest"
	"github.com/omarluq/tapline/internal/plugin"
	"github.com/omarluq/tapline/internal/runner"
	"github.com/omarluq/tapline/internal/scheduler"
	"github.com/omarluq/tapline/internal/settings"
	"github.com/omarluq/tapline/internal/statestore"
	"github.com/omarluq/tapline/internal/systemdb"
)

// ConfigService wraps the process configuration with flag overrides applied.
type ConfigService struct {
	Config *config.Config
}

// LoggerService wraps the zerolog logger for DI.
type LoggerService struct {
	Logger *zerolog.Logger
}

// ProjectService wraps the loaded manifest.
type ProjectService struct {
	Project *manifest.Project
	// Path is the absolute manifest path; Root is its directory.
	Path string
	Root string
	// Environment is the active environment, possibly empty.
	Environment string
}

// SystemDBService wraps the project's system database.
type SystemDBService struct {
	DB *systemdb.DB
}

// Shutdown implements do.Shutdowner.
func (s *SystemDBService) Shutdown() error {
	return s.DB.Close()
}

// StateBackendService wraps the configured state backend.
type StateBackendService struct {
	Backend statestore.Backend
	URI     string
}

// InvokerService wraps the plugin invoker.
type InvokerService struct {
	Invoker *plugin.Invoker
}

// InstallerService wraps the plugin installer.
type InstallerService struct {
	Installer *plugin.Installer
}

// RunnerService wraps the pipeline runner.
type RunnerService struct {
	Runner *runner.Runner
}

// SchedulerService wraps the scheduler and its metrics.
type SchedulerService struct {
	Scheduler *scheduler.Scheduler
	Metrics   *scheduler.Metrics
}

// RegisterSingletons registers all service providers as singletons.
// Services are registered in dependency order:
// 1. Config (no dependencies)
// 2. Logger (depends on Config)
// 3. Project (depends on Config)
// 4. SystemDB (depends on Project)
// 5. StateBackend (depends on Project, SystemDB)
// 6. Invoker and Installer (depend on Config, Project)
// 7. Runner (depends on Config, Invoker, StateBackend, SystemDB)
// 8. Scheduler (depends on Config, Logger, Project, Runner).
func RegisterSingletons(i do.Injector) {
	do.Provide(i, NewConfig)
	do.Provide(i, NewLogger)
	do.Provide(i, NewProject)
	do.Provide(i, NewSystemDB)
	do.Provide(i, NewStateBackend)
	do.Provide(i, NewInvoker)
	do.Provide(i, NewInstaller)
	do.Provide(i, NewRunner)
	do.Provide(i, NewScheduler)
}

// NewConfig reads TAPLINE_* variables and applies command-line overrides.
func NewConfig(i do.Injector) (*ConfigService, error) {
	opts := do.MustInvoke[Options](i)

	var (
		cfg *config.Config
		err error
	)
	if opts.Environ != nil {
		cfg, err = config.LoadFrom(opts.Environ)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	if opts.LogLevel != "" {
		cfg.Logging.Level = opts.LogLevel
	}
	if opts.LogFormat != "" {
		cfg.Logging.Format = opts.LogFormat
	}
	if opts.Environment != "" {
		cfg.Environment = opts.Environment
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &ConfigService{Config: cfg}, nil
}

// NewLogger creates the zerolog logger from configuration.
func NewLogger(i do.Injector) (*LoggerService, error) {
	cfgSvc, err := do.Invoke[*ConfigService](i)
	if err != nil {
		return nil, err
	}

	logger, err := config.NewLogger(cfgSvc.Config.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	return &LoggerService{Logger: &logger}, nil
}

// NewProject loads and validates the manifest and resolves the active environment.
func NewProject(i do.Injector) (*ProjectService, error) {
	opts := do.MustInvoke[Options](i)
	cfgSvc, err := do.Invoke[*ConfigService](i)
	if err != nil {
		return nil, err
	}

	path := opts.ManifestPath
	if path == "" {
		path = manifest.DefaultFile
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	project, err := manifest.Load(abs)
	if err != nil {
		return nil, err
	}
	if err := project.Validate(); err != nil {
		return nil, err
	}

	env := project.ResolveEnvironment(cfgSvc.Config.Environment)
	if env != "" {
		if _, err := project.Environment(env); err != nil {
			return nil, err
		}
	}

	return &ProjectService{
		Project:     project,
		Path:        abs,
		Root:        filepath.Dir(abs),
		Environment: env,
	}, nil
}

// NewSystemDB opens the database named by database_uri.
func NewSystemDB(i do.Injector) (*SystemDBService, error) {
	projSvc, err := do.Invoke[*ProjectService](i)
	if err != nil {
		return nil, err
	}

	path, err := systemdb.ResolvePath(projSvc.Project.DatabaseURI, projSvc.Root)
	if err != nil {
		return nil, err
	}
	db, err := systemdb.Open(path)
	if err != nil {
		return nil, err
	}

	return &SystemDBService{DB: db}, nil
}

// NewStateBackend opens the backend named by state_backend.uri.
func NewStateBackend(i do.Injector) (*StateBackendService, error) {
	projSvc, err := do.Invoke[*ProjectService](i)
	if err != nil {
		return nil, err
	}
	dbSvc, err := do.Invoke[*SystemDBService](i)
	if err != nil {
		return nil, err
	}

	uri := projSvc.Project.StateBackend.GetEffectiveURI()
	backend, err := statestore.Open(context.Background(), uri, dbSvc.DB, projSvc.Root)
	if err != nil {
		return nil, err
	}

	return &StateBackendService{Backend: backend, URI: uri}, nil
}

// NewInvoker creates the plugin invoker for the active environment.
func NewInvoker(i do.Injector) (*InvokerService, error) {
	opts := do.MustInvoke[Options](i)
	projSvc, err := do.Invoke[*ProjectService](i)
	if err != nil {
		return nil, err
	}

	environ := opts.Environ
	if environ == nil {
		environ = settings.Environ()
	}

	return &InvokerService{Invoker: &plugin.Invoker{
		Project:     projSvc.Project,
		Exec:        plugin.OSExecutor{},
		Environ:     environ,
		Environment: projSvc.Environment,
		Layout:      plugin.Layout{Root: projSvc.Root},
	}}, nil
}

// NewInstaller creates the plugin installer.
func NewInstaller(i do.Injector) (*InstallerService, error) {
	cfgSvc, err := do.Invoke[*ConfigService](i)
	if err != nil {
		return nil, err
	}
	projSvc, err := do.Invoke[*ProjectService](i)
	if err != nil {
		return nil, err
	}

	return &InstallerService{Installer: &plugin.Installer{
		Exec:   plugin.OSExecutor{},
		Out:    os.Stdout,
		Layout: plugin.Layout{Root: projSvc.Root},
		Python: cfgSvc.Config.Python,
	}}, nil
}

// NewRunner creates the pipeline runner.
func NewRunner(i do.Injector) (*RunnerService, error) {
	cfgSvc, err := do.Invoke[*ConfigService](i)
	if err != nil {
		return nil, err
	}
	invSvc, err := do.Invoke[*InvokerService](i)
	if err != nil {
		return nil, err
	}
	stateSvc, err := do.Invoke[*StateBackendService](i)
	if err != nil {
		return nil, err
	}
	dbSvc, err := do.Invoke[*SystemDBService](i)
	if err != nil {
		return nil, err
	}

	return &RunnerService{Runner: &runner.Runner{
		Invoker:        invSvc.Invoker,
		State:          stateSvc.Backend,
		DB:             dbSvc.DB,
		FlushPerMinute: cfgSvc.Config.StateFlushPerMinute,
	}}, nil
}

// NewScheduler creates the scheduler over the manifest's schedules.
func NewScheduler(i do.Injector) (*SchedulerService, error) {
	cfgSvc, err := do.Invoke[*ConfigService](i)
	if err != nil {
		return nil, err
	}
	logSvc, err := do.Invoke[*LoggerService](i)
	if err != nil {
		return nil, err
	}
	projSvc, err := do.Invoke[*ProjectService](i)
	if err != nil {
		return nil, err
	}
	runSvc, err := do.Invoke[*RunnerService](i)
	if err != nil {
		return nil, err
	}

	metrics := scheduler.NewMetrics()
	s, err := scheduler.New(projSvc.Project, runSvc.Runner,
		scheduler.WithEnvironment(projSvc.Environment),
		scheduler.WithMetrics(metrics),
		scheduler.WithBreaker(cfgSvc.Config.Breaker),
		scheduler.WithLogger(logSvc.Logger),
	)
	if err != nil {
		return nil, err
	}

	return &SchedulerService{Scheduler: s, Metrics: metrics}, nil
}
