package container

import (
	"context"
	"fmt"

	"gosplit/adapters/api"
	"gosplit/adapters/archive"
	"gosplit/adapters/excel"
	"gosplit/adapters/executor"
	"gosplit/adapters/stats/hypothesis"
	"gosplit/domain/core"
	domain "gosplit/domain/experiment"
	"gosplit/internal"
	"gosplit/internal/admin"
	"gosplit/internal/aggregate"
	"gosplit/internal/cohort"
	"gosplit/internal/config"
	"gosplit/internal/errors"
	"gosplit/internal/experiment"
	"gosplit/internal/metrics"
	"gosplit/internal/migration"
	"gosplit/internal/monitor"
	"gosplit/internal/policy"
	istats "gosplit/internal/stats"
	"gosplit/internal/templates"
	"gosplit/internal/testkit"
	"gosplit/ports"
)

// Container holds all application dependencies and manages their lifecycle
type Container struct {
	Config *config.Config
	Logger *internal.Logger
	Clock  core.Clock

	// Infrastructure
	Metrics *metrics.Metrics
	Archive *archive.Store

	// Statistics
	Engine  *hypothesis.Engine
	Cohorts *cohort.Analyzer

	// Experiment components
	Templates *templates.Catalog
	Policy    *policy.ContentPolicy
	Executor  ports.TrialExecutor
	Tasks     ports.TaskSource
	Manager   *experiment.Manager
	Hub       *api.SignalHub
	Monitor   *monitor.Evaluator
}

// Option overrides a component before the manager is built
type Option func(*Container)

// WithClock replaces the wall clock shared by the manager and the archive
func WithClock(clock core.Clock) Option {
	return func(c *Container) { c.Clock = clock }
}

// WithExecutor replaces the configured trial executor
func WithExecutor(exec ports.TrialExecutor) Option {
	return func(c *Container) { c.Executor = exec }
}

// New builds every component from cfg. The archive is opened and migrated
// only when a database URL is configured.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Container, error) {
	if cfg == nil {
		return nil, errors.ConfigInvalid("config cannot be nil")
	}

	c := &Container{
		Config: cfg,
		Logger: internal.NewLogger(internal.ParseLogLevel(cfg.LogLevel)),
		Clock:  core.SystemClock{},
	}
	c.Metrics = metrics.New()

	if err := c.initStatistics(); err != nil {
		return nil, err
	}
	if err := c.initTemplates(); err != nil {
		return nil, err
	}
	c.initTrials()
	for _, opt := range opts {
		opt(c)
	}

	if cfg.Archive.DatabaseURL != "" {
		if err := c.initArchive(ctx); err != nil {
			return nil, err
		}
	}

	if err := c.initManager(); err != nil {
		c.closeArchive()
		return nil, err
	}

	c.Logger.Info("Container initialized (archive=%t, executor=%T)", c.Archive != nil, c.Executor)
	return c, nil
}

// initStatistics builds the aggregator, hypothesis engine and cohort analyzer
func (c *Container) initStatistics() error {
	tails := istats.TailsByName(c.Config.Engine.Tails)

	agg := aggregate.NewAggregator()
	c.Engine = hypothesis.NewEngine(agg, hypothesis.Options{
		Alpha:        c.Config.Engine.DefaultAlpha,
		MinGroupSize: c.Config.Engine.MinGroupSize,
		Tails:        tails,
	})
	c.Cohorts = cohort.NewAnalyzer(agg, c.Engine, cohort.NewRegistry())
	return nil
}

func (c *Container) initTemplates() error {
	var err error
	if c.Config.Templates.File != "" {
		c.Templates, err = templates.Load(c.Config.Templates.File)
	} else {
		c.Templates, err = templates.Default()
	}
	if err != nil {
		return errors.Wrap(err, "failed to load experiment templates")
	}
	return nil
}

// initTrials picks the policy, executor and task source
func (c *Container) initTrials() {
	c.Policy = policy.NewContentPolicy(c.Config.Policy.BlockedTerms, c.Config.Policy.MaxPayloadBytes)

	if c.Config.Executor.URL != "" {
		c.Executor = executor.NewHTTPExecutor(c.Config.Executor.URL, c.Config.Executor.RPS, c.Config.Executor.Timeout)
	} else {
		c.Logger.Warn("EXECUTOR_URL not set, trials run against the simulator")
		c.Executor = testkit.NewSimulatedExecutor(c.Config.Engine.Seed, nil)
	}

	if c.Config.Tasks.File != "" {
		c.Tasks = excel.NewTaskReader(c.Config.Tasks.File, c.Config.Tasks.Sheet, c.Logger)
	} else {
		c.Tasks = testkit.TaskGenerator{Count: c.Config.Tasks.Count}
	}
}

func (c *Container) initArchive(ctx context.Context) error {
	store, err := archive.Open(ctx, c.Config.Archive.Driver, c.Config.Archive.DatabaseURL)
	if err != nil {
		return errors.DatabaseError("failed to open archive", err)
	}
	if err := migration.NewRunner(c.Logger).Run(ctx, store.DB()); err != nil {
		store.Close()
		return errors.DatabaseError("failed to migrate archive", err)
	}
	c.Archive = store.WithClock(c.Clock)
	return nil
}

func (c *Container) initManager() error {
	var store ports.ExperimentArchive
	if c.Archive != nil {
		store = c.Archive
	}

	var err error
	c.Manager, err = experiment.NewManager(experiment.Deps{
		Engine:    c.Engine,
		Cohorts:   c.Cohorts,
		Templates: c.Templates,
		Executor:  c.Executor,
		Policy:    c.Policy,
		Archive:   store,
		Metrics:   c.Metrics,
		Logger:    c.Logger,
		Clock:     c.Clock,
		Random:    experiment.NewSeededRandom(c.Config.Engine.Seed),
	}, experiment.Options{
		BatchSize:     c.Config.Engine.BatchSize,
		BatchPause:    c.Config.Engine.BatchPause,
		MaxConcurrent: c.Config.Engine.MaxConcurrent,
		Defaults: domain.Config{
			Alpha:             c.Config.Engine.DefaultAlpha,
			Power:             c.Config.Engine.DefaultPower,
			MinimumSampleSize: c.Config.Engine.MinSampleSize,
			MaxDuration:       c.Config.Engine.MaxDuration,
		},
	})
	if err != nil {
		return errors.Wrap(err, "failed to create experiment manager")
	}

	c.Hub = api.NewSignalHub(c.Logger)
	c.Monitor = monitor.NewEvaluator(c.Manager, monitor.Sinks{monitor.LogSink{Logger: c.Logger}, c.Hub}, c.Metrics, c.Logger, monitor.Options{
		Schedule:      c.Config.Monitor.Schedule,
		QualityFloor:  c.Config.Monitor.QualityFloor,
		QualityWindow: c.Config.Monitor.QualityWindow,
	})
	return nil
}

// APIServer builds the public JSON API
func (c *Container) APIServer() *api.Server {
	handler := api.NewHandler(c.Manager, c.Monitor, c.Templates, c.Tasks, c.Hub, c.Logger)
	return api.NewServer(handler, c.Metrics, c.Logger, c.Config.Server.GinMode)
}

// AdminApp builds the health, metrics and pprof listener
func (c *Container) AdminApp() *admin.App {
	checks := map[string]admin.HealthCheck{}
	if c.Archive != nil {
		checks["archive"] = func(ctx context.Context) error {
			return c.Archive.DB().PingContext(ctx)
		}
	}
	return admin.NewApp(c.Metrics, checks, c.Logger)
}

// StartMonitor schedules the evaluator when enabled
func (c *Container) StartMonitor(ctx context.Context) error {
	if !c.Config.Monitor.Enabled {
		c.Logger.Info("Monitor disabled")
		return nil
	}
	if err := c.Monitor.Start(ctx); err != nil {
		return fmt.Errorf("failed to start monitor: %w", err)
	}
	return nil
}

func (c *Container) closeArchive() error {
	if c.Archive == nil {
		return nil
	}
	err := c.Archive.Close()
	c.Archive = nil
	return err
}

// Shutdown gracefully shuts down all components
func (c *Container) Shutdown(ctx context.Context) error {
	if c.Monitor != nil {
		c.Monitor.Stop()
	}
	return c.closeArchive()
}
