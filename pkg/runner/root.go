// Package runner is the cobra CLI for executing load-test scenarios outside
// of go test.
package runner

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"dataflow-loadtest/internal/config"
)

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "loadtest",
		Short:         "Load tests for the GCS Avro to Bigtable template",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(newRunCmd())
	return rootCmd
}

func newRunCmd() *cobra.Command {
	var (
		scenarioPath string
		envFile      string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a backlog scenario against a deployed template",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.LoadDotEnv(envFile); err != nil {
				return err
			}
			props, err := config.LoadFromEnv()
			if err != nil {
				return err
			}
			if err := props.Validate(); err != nil {
				return err
			}

			logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: props.SlogLevel()}))
			slog.SetDefault(logger)

			sc, err := LoadScenario(scenarioPath)
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
			defer cancel()
			return runScenario(ctx, logger, props, sc)
		},
	}
	cmd.Flags().StringVar(&scenarioPath, "scenario", "scenarios/backlog10gb.yaml", "path to the scenario YAML file")
	cmd.Flags().StringVar(&envFile, "env-file", ".env", "optional .env file with LT_* properties")
	return cmd
}
