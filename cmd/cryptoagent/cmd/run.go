package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"cryptoagent/config"
	"cryptoagent/internal/agent"
	"cryptoagent/internal/logger"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the trading agent",
	Long: `Run the decision loop until SIGINT or SIGTERM.

State is loaded from the configured store at startup and saved after every
cycle. Metrics are served on /metrics, health on /healthz and the live cycle
stream on /ws at metrics_addr.

Example:
  cryptoagent run --config cryptoagent.yaml`,
	RunE: runRun,
}

var runConfigPath string

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVarP(&runConfigPath, "config", "c", "", "path to config file (defaults plus environment when empty)")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(runConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logger.Init("cryptoagent", logger.Options{
		Level:  logger.ParseLevel(cfg.LogLevel),
		Format: cfg.LogFormat,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := build(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer rt.close()

	a, err := agent.New(cfg, rt.deps)
	if err != nil {
		return err
	}
	if err := a.Start(ctx); err != nil {
		return err
	}

	rt.server.Start()
	defer func() {
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := rt.server.Stop(shutCtx); err != nil {
			log.Warn("metrics server shutdown", "error", err)
		}
	}()

	log.Info("agent running", "metrics_addr", cfg.MetricsAddr, "storage", cfg.Storage.Backend)
	return a.Run(ctx)
}
