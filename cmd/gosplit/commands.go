package main

import (
	"github.com/spf13/cobra"

	"gosplit/internal/power"
)

func buildServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the experiment API, admin listener and monitor",
		Long: `Start the public JSON API on PORT, the admin listener (health, metrics,
pprof) on ADMIN_PORT and the scheduled monitor.

Configuration is read from the environment and an optional .env file.
Graceful shutdown is handled on SIGINT/SIGTERM.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

type simulateOptions struct {
	tasks    int
	template string
	family   string
	metric   string
	variants []string
	seed     int64
	format   string
}

func buildSimulateCmd() *cobra.Command {
	opts := simulateOptions{}
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run one experiment against simulated variants and print the analysis",
		Example: `  # two variants with different mean accuracy
  gosplit simulate --variant control=0.80 --variant candidate=0.86 --tasks 400

  # compare latency with the Mann-Whitney test
  gosplit simulate --family mann_whitney --metric latency_ms`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulate(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}

	cmd.Flags().IntVarP(&opts.tasks, "tasks", "n", 200, "Number of generated tasks")
	cmd.Flags().StringVar(&opts.template, "template", "", "Template ID, e.g. BASIC_AB_TEST")
	cmd.Flags().StringVar(&opts.family, "family", "", "Test family (welch_ttest, chi_square, mann_whitney, bayesian, anova)")
	cmd.Flags().StringVar(&opts.metric, "metric", "", "Metric to compare")
	cmd.Flags().StringArrayVar(&opts.variants, "variant", []string{"control=0.80", "candidate=0.86"},
		"Variant as id=accuracy_mean, repeatable")
	cmd.Flags().Int64Var(&opts.seed, "seed", 42, "Simulation seed")
	cmd.Flags().StringVarP(&opts.format, "output", "o", "text", "Output format: text or json")
	return cmd
}

func buildPowerCmd() *cobra.Command {
	var req power.Request
	cmd := &cobra.Command{
		Use:   "power",
		Short: "Solve for sample size, power or minimum detectable effect",
		Long: `Supply exactly two of --effect-size, --power and --sample-size; the third
is solved for. Alpha defaults to 0.05.`,
		Example: `  gosplit power --effect-size 0.5 --power 0.8
  gosplit power --sample-size 100 --effect-size 0.3
  gosplit power --sample-size 100 --power 0.9`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPower(cmd.OutOrStdout(), req)
		},
	}
	cmd.Flags().Float64Var(&req.Alpha, "alpha", 0.05, "Significance level")
	cmd.Flags().Float64Var(&req.Power, "power", 0, "Desired power")
	cmd.Flags().Float64Var(&req.EffectSize, "effect-size", 0, "Standardized effect size")
	cmd.Flags().IntVar(&req.SampleSize, "sample-size", 0, "Per-group sample size")
	cmd.Flags().IntVar(&req.Minimum, "minimum", 0, "Floor applied to a solved sample size")
	return cmd
}

func buildMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply archive schema migrations to DATABASE_URL",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(cmd.Context(), cmd.OutOrStdout())
		},
	}
}
