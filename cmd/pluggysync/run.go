package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"pluggysync/internal/shared/config"
	"pluggysync/internal/shared/logger"
	"pluggysync/internal/shared/telemetry"
)

var (
	itemID  string
	workers int
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one item sync",
	Long: `Run one item sync with the configuration from the environment.

Authentication and account fetch failures abort the run with exit code 1.
A failed transaction fetch leaves that account with an empty list, and
database or forwarding failures are logged without aborting.`,
	Args: cobra.NoArgs,
	RunE: runSync,
}

func init() {
	runCmd.Flags().StringVar(&itemID, "item-id", "", "item to sync (overrides ITEM_ID)")
	runCmd.Flags().IntVar(&workers, "workers", 0, "concurrent transaction fetches (overrides SYNC_WORKERS)")
}

func runSync(cmd *cobra.Command, args []string) error {
	if err := loadEnv(envFile); err != nil {
		return err
	}

	// Flags are applied through the environment so Load validates them too.
	if cmd.Flags().Changed("item-id") {
		os.Setenv("ITEM_ID", itemID)
	}
	if cmd.Flags().Changed("workers") {
		os.Setenv("SYNC_WORKERS", strconv.Itoa(workers))
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	level := cfg.Log.Level
	if debug {
		level = "debug"
	}
	log := logger.New(level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.Init(ctx, telemetry.Config{
			ServiceName:  cfg.Telemetry.ServiceName,
			Environment:  cfg.Telemetry.Environment,
			OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
			MetricsPort:  cfg.Telemetry.MetricsPort,
		}, log)
		if err != nil {
			log.Warn().Err(err).Msg("Telemetry disabled")
		}
		defer flushTelemetry(shutdown, log)
	}

	deps := NewDependencies(cfg, log)

	if _, err := deps.Service.Run(ctx); err != nil {
		log.Error().Err(err).Msg("Sync aborted")
		return err
	}
	return nil
}

// loadEnv loads an explicit env file, or .env when it exists. Variables
// already set in the process environment win.
func loadEnv(path string) error {
	if path != "" {
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("failed to load env file %s: %w", path, err)
		}
		return nil
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", err)
	}
	return nil
}

func flushTelemetry(shutdown telemetry.ShutdownFunc, log zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Error shutting down telemetry")
	}
}
