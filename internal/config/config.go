package config

import (
	"fmt"
	"math"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

type Config struct {
	// Snapshot store
	DataBackend  string
	SQLiteDBPath string

	// Model artifacts
	ModelPath          string
	RulesPath          string
	MinTrainingSamples int
	AnomalySigma       float64

	// AMQP (empty URL disables the retrain queue)
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Google Sheets source
	GoogleCredentialsFile string
	GoogleCredentialsJSON string
	SheetsSpreadsheetID   string
	SheetsReadRange       string

	// Logging
	LogLevel string
}

func Load() *Config {
	cfg := &Config{
		DataBackend:  getEnv("BACKEND", "sqlite"),
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./spendlens.db"),

		ModelPath:          getEnv("MODEL_PATH", "./model.json"),
		RulesPath:          getEnv("RULES_PATH", ""),
		MinTrainingSamples: getEnvInt("MIN_TRAINING_SAMPLES", 10),
		AnomalySigma:       getEnvFloat("ANOMALY_SIGMA", 2.0),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "spendlens"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "retrain_requests"),

		GoogleCredentialsFile: getEnv("GOOGLE_CREDENTIALS_FILE", ""),
		GoogleCredentialsJSON: getEnv("GOOGLE_CREDENTIALS_JSON", ""),
		SheetsSpreadsheetID:   getEnv("SHEETS_SPREADSHEET_ID", ""),
		SheetsReadRange:       getEnv("SHEETS_READ_RANGE", ""),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	return cfg
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	// Validate data backend
	validBackends := []string{"memory", "sqlite"}
	isValidBackend := false
	for _, backend := range validBackends {
		if c.DataBackend == backend {
			isValidBackend = true
			break
		}
	}
	if !isValidBackend {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	// Validate SQLite configuration if backend is sqlite
	if c.DataBackend == "sqlite" {
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else if err := ensureDir(c.SQLiteDBPath); err != nil {
			errors = append(errors, fmt.Sprintf("cannot create SQLite database directory: %v", err))
		}
	}

	// Validate model path
	if c.ModelPath == "" {
		errors = append(errors, "model path cannot be empty")
	} else if err := ensureDir(c.ModelPath); err != nil {
		errors = append(errors, fmt.Sprintf("cannot create model directory: %v", err))
	}

	// Rules override must exist when named
	if c.RulesPath != "" {
		if _, err := os.Stat(c.RulesPath); os.IsNotExist(err) {
			errors = append(errors, fmt.Sprintf("rules file does not exist: %s", c.RulesPath))
		}
	}

	if c.MinTrainingSamples < 1 {
		errors = append(errors, fmt.Sprintf("invalid minimum training samples %d: must be at least 1", c.MinTrainingSamples))
	}

	if c.AnomalySigma <= 0 || math.IsNaN(c.AnomalySigma) || math.IsInf(c.AnomalySigma, 0) {
		errors = append(errors, fmt.Sprintf("invalid anomaly sigma %v: must be a positive number", c.AnomalySigma))
	}

	// Validate AMQP URL if provided
	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}

		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	// Validate Google Sheets configuration if a spreadsheet is named
	if c.SheetsSpreadsheetID != "" {
		if c.SheetsReadRange == "" {
			errors = append(errors, "sheets read range is required when a spreadsheet ID is provided")
		}

		hasCredentialsFile := c.GoogleCredentialsFile != ""
		hasCredentialsJSON := c.GoogleCredentialsJSON != ""
		if !hasCredentialsFile && !hasCredentialsJSON {
			errors = append(errors, "either GOOGLE_CREDENTIALS_FILE or GOOGLE_CREDENTIALS_JSON must be provided for the sheets source")
		}

		if hasCredentialsFile {
			if _, err := os.Stat(c.GoogleCredentialsFile); os.IsNotExist(err) {
				errors = append(errors, fmt.Sprintf("Google credentials file does not exist: %s", c.GoogleCredentialsFile))
			}
		}
	}

	// Validate log level
	switch c.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be one of [debug info warn error]", c.LogLevel))
	}

	// Return combined errors
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// ensureDir creates the parent directory of path when it does not exist.
func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return os.MkdirAll(dir, 0755)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}
