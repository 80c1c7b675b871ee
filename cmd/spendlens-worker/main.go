package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"spendlens/internal/amqp"
	"spendlens/internal/categorize"
	"spendlens/internal/cli"
	"spendlens/internal/storage"
	"spendlens/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg.LogLevel)

	logger.Info("Starting spendlens-worker")

	// The worker exists to consume retrain requests; without a broker it
	// has nothing to do.
	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required for the retrain worker")
		os.Exit(1)
	}

	// The worker shares snapshots with the CLI through SQLite. A memory
	// store would be private to this process, so it is not an option here.
	sqliteRepo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer sqliteRepo.Close()

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	retrainer := worker.NewRetrainer(sqliteRepo, cfg.ModelPath, categorize.Options{
		MinSamples: cfg.MinTrainingSamples,
	})

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// On startup, train a model if none is usable yet so inference does not
	// wait for the first queued request
	logger.Info("Checking model availability...")
	if err := retrainer.StartupTrainCheck(ctx); err != nil {
		logger.Error("Startup training check failed", "error", err)
		// Don't exit - continue with normal operation
	}

	go func() {
		if err := amqpClient.ConsumeRetrainRequests(ctx, retrainer.HandleRetrainRequest); err != nil {
			if err != context.Canceled {
				logger.Error("Message consumption failed", "error", err)
			}
			cancel()
		}
	}()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("Shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		logger.Info("Context cancelled")
	}

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	logger.Info("Shutting down worker...")
	cancel()

	// Give the in-flight delivery time to finish
	select {
	case <-shutdownCtx.Done():
		logger.Warn("Shutdown timeout reached")
	case <-time.After(5 * time.Second):
		logger.Info("Worker shutdown complete")
	}
}
