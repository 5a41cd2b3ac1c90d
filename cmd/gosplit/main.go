// Command gosplit runs and analyzes variant experiments over AI agent trials.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	// a missing .env file is normal outside development
	_ = godotenv.Load()

	if err := buildRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "gosplit",
		Short:         "Experiment engine for comparing agent variants",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		buildServeCmd(),
		buildSimulateCmd(),
		buildPowerCmd(),
		buildMigrateCmd(),
	)
	return root
}
