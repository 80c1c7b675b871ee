// Package cli provides common initialization utilities shared by
// cmd/spendlens and cmd/spendlens-worker.
package cli

import (
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"spendlens/internal/amqp"
	"spendlens/internal/config"
	"spendlens/internal/rules"
	"spendlens/internal/services"
	"spendlens/internal/storage"
	"spendlens/internal/storage/memory"
)

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig loads configuration from the environment and
// validates it. Exits the process on validation failure.
func LoadAndValidateConfig() *config.Config {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		slog.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}
	return cfg
}

// SetupLogger initializes structured logging at the given level and sets
// it as the default logger. Unknown levels fall back to info.
func SetupLogger(level string) *slog.Logger {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(level),
	}))
	slog.SetDefault(logger)
	return logger
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// OpenStore opens the snapshot store selected by the configuration.
// Returns the store or exits the process on failure.
func OpenStore(logger *slog.Logger, cfg *config.Config) services.Store {
	if cfg.DataBackend == "memory" {
		return memory.New()
	}
	store, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	return store
}

// LoadRules loads the interpreter vocabulary, preferring the configured
// override file over the embedded defaults.
func LoadRules(logger *slog.Logger, cfg *config.Config) *rules.Set {
	if cfg.RulesPath == "" {
		return rules.Default()
	}
	rs, err := rules.Load(cfg.RulesPath)
	if err != nil {
		logger.Error("Failed to load rules file", "error", err, "path", cfg.RulesPath)
		os.Exit(1)
	}
	return rs
}

// NewPublisher connects the retrain queue publisher when an AMQP URL is
// configured. Returns nil when the queue is disabled or unreachable;
// snapshots are always saved locally regardless.
func NewPublisher(logger *slog.Logger, cfg *config.Config) services.Publisher {
	if cfg.AMQPURL == "" {
		return nil
	}
	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Warn("Failed to initialize AMQP client, continuing without the retrain queue", "error", err)
		return nil
	}
	return client
}
