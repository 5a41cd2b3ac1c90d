package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"gosplit/adapters/archive"
	"gosplit/domain/core"
	domain "gosplit/domain/experiment"
	"gosplit/domain/stats"
	"gosplit/internal"
	"gosplit/internal/config"
	"gosplit/internal/container"
	"gosplit/internal/errors"
	"gosplit/internal/experiment"
	"gosplit/internal/migration"
	"gosplit/internal/power"
	"gosplit/internal/testkit"
)

const shutdownTimeout = 10 * time.Second

func runServe(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	c, err := container.New(ctx, cfg)
	if err != nil {
		return err
	}

	apiServer := c.APIServer()
	adminApp := c.AdminApp()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return apiServer.Start(":" + cfg.Server.Port) })
	if cfg.Admin.Enabled {
		g.Go(func() error { return adminApp.Start(":" + cfg.Admin.Port) })
	}
	if err := c.StartMonitor(gctx); err != nil {
		c.Logger.Error("Monitor not started: %v", err)
	}

	g.Go(func() error {
		<-gctx.Done()
		c.Logger.Info("Shutting down")
		shutdownCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
		defer done()

		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			c.Logger.Warn("API shutdown: %v", err)
		}
		if err := adminApp.Shutdown(shutdownCtx); err != nil {
			c.Logger.Warn("Admin shutdown: %v", err)
		}
		return c.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// parseVariantFlag reads "id=accuracy_mean" into a simulation profile
func parseVariantFlag(raw string) (core.VariantID, testkit.Profile, error) {
	profile := testkit.DefaultProfile()
	id, mean, found := strings.Cut(raw, "=")
	if strings.TrimSpace(id) == "" {
		return "", profile, errors.InvalidInput(fmt.Sprintf("variant %q has no id", raw))
	}
	if found {
		v, err := strconv.ParseFloat(strings.TrimSpace(mean), 64)
		if err != nil || v < 0 || v > 1 {
			return "", profile, errors.InvalidInput(fmt.Sprintf("variant %q: accuracy mean must be in [0,1]", raw))
		}
		profile.AccuracyMean = v
	}
	return core.VariantID(strings.TrimSpace(id)), profile, nil
}

func runSimulate(ctx context.Context, out io.Writer, opts simulateOptions) error {
	if opts.tasks <= 0 {
		return errors.InvalidInput("--tasks must be positive")
	}

	profiles := make(map[core.VariantID]testkit.Profile, len(opts.variants))
	variants := make([]domain.Variant, 0, len(opts.variants))
	for _, raw := range opts.variants {
		id, profile, err := parseVariantFlag(raw)
		if err != nil {
			return err
		}
		profiles[id] = profile
		variants = append(variants, domain.Variant{ID: id, Name: id.String()})
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	cfg.Engine.BatchPause = 0
	if cfg.LogLevel == "info" {
		cfg.LogLevel = "warn"
	}

	c, err := container.New(ctx, cfg, container.WithExecutor(testkit.NewSimulatedExecutor(opts.seed, profiles)))
	if err != nil {
		return err
	}
	defer c.Shutdown(context.Background())

	var family stats.TestFamily
	if opts.family != "" {
		if family, err = stats.ParseTestFamily(opts.family); err != nil {
			return err
		}
	}

	snap, err := c.Manager.Create(ctx, experiment.CreateRequest{
		Name:     "simulation",
		Template: opts.template,
		Variants: variants,
		Config:   domain.Config{Family: family, Metric: opts.metric},
	})
	if err != nil {
		return err
	}
	if _, err := c.Manager.Start(ctx, snap.ID, testkit.GenerateTasks(opts.tasks)); err != nil {
		return err
	}
	analysis, err := c.Manager.Stop(ctx, snap.ID, "simulation finished")
	if err != nil {
		return err
	}

	if opts.format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(analysis)
	}
	printAnalysis(out, analysis)
	return nil
}

func printAnalysis(out io.Writer, a domain.Analysis) {
	cmp := a.Comparison
	fmt.Fprintf(out, "Experiment %s: %d samples\n", a.ExperimentID, a.TotalSamples)
	for _, v := range a.Variants {
		fmt.Fprintf(out, "  %-12s n=%-5d success=%.1f%%", v.VariantID, v.SampleSize, v.SuccessRate*100)
		if m, ok := v.Means[cmp.Metric]; ok {
			fmt.Fprintf(out, "  mean %s=%.4f", cmp.Metric, m)
		}
		fmt.Fprintln(out)
	}

	fmt.Fprintf(out, "\n%s on %s\n", cmp.Family, cmp.Metric)
	if !cmp.Valid {
		fmt.Fprintf(out, "  not valid: %s\n", cmp.Reason)
	} else {
		fmt.Fprintf(out, "  %s=%.4f p=%.4g alpha=%.3g %s=%.3f significant=%t\n",
			cmp.StatisticName, cmp.Statistic, cmp.PValue, cmp.Alpha, cmp.EffectSizeName, cmp.EffectSize, cmp.Significant)
		fmt.Fprintf(out, "  %s\n", cmp.Interpretation)
	}
	if a.WinningVariant != "" {
		fmt.Fprintf(out, "  winner: %s\n", a.WinningVariant)
	}

	if len(a.Recommendations) > 0 {
		fmt.Fprintln(out, "\nRecommendations")
		for _, r := range a.Recommendations {
			fmt.Fprintf(out, "  [%s/%s] %s\n", r.Type, r.Priority, r.Message)
		}
	}
}

func runPower(out io.Writer, req power.Request) error {
	res, err := power.Analyze(req)
	if err != nil {
		return err
	}
	switch res.SolvedFor {
	case power.SolveSampleSize:
		fmt.Fprintf(out, "sample size per group: %d (effect %.3g, power %.3g, alpha %.3g)\n",
			res.SampleSize, res.EffectSize, res.Power, res.Alpha)
	case power.SolvePower:
		fmt.Fprintf(out, "power: %.4f (n %d per group, effect %.3g, alpha %.3g)\n",
			res.Power, res.SampleSize, res.EffectSize, res.Alpha)
	default:
		fmt.Fprintf(out, "minimum detectable effect: %.4f (n %d per group, power %.3g, alpha %.3g)\n",
			res.EffectSize, res.SampleSize, res.Power, res.Alpha)
	}
	return nil
}

func runMigrate(ctx context.Context, out io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.Archive.DatabaseURL == "" {
		return errors.ConfigInvalid("DATABASE_URL is required")
	}

	store, err := archive.Open(ctx, cfg.Archive.Driver, cfg.Archive.DatabaseURL)
	if err != nil {
		return err
	}
	defer store.Close()

	runner := migration.NewRunner(internal.NewLogger(internal.ParseLogLevel(cfg.LogLevel)))
	if err := runner.Run(ctx, store.DB()); err != nil {
		return err
	}
	fmt.Fprintf(out, "archive schema at version %s\n", runner.Version())
	return nil
}
