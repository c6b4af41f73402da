package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
// It is constructed once at startup and passed into component constructors;
// there is no process-wide settings singleton.
type Config struct {
	VaultPath string
	DBPath    string
	Timezone  string

	LLMBaseURL   string
	LLMAPIKey    string
	LLMModelName string

	APIPort   string
	LogLevel  slog.Level
	LogFormat string
}

// Load reads configuration from environment variables and returns a Config struct.
// It applies defaults for optional fields and validates required fields.
// If a .env file exists in the current directory or a parent directory, it is
// loaded first; environment variables already set take precedence.
func Load() (*Config, error) {
	_ = godotenv.Load() // Try current directory

	// Walk up a few levels looking for a .env next to the module root.
	if wd, err := os.Getwd(); err == nil {
		dir := wd
		for i := 0; i < 5; i++ {
			envPath := filepath.Join(dir, ".env")
			if _, err := os.Stat(envPath); err == nil {
				_ = godotenv.Load(envPath)
				break
			}
			parent := filepath.Dir(dir)
			if parent == dir {
				break
			}
			dir = parent
		}
	}

	cfg := &Config{
		VaultPath:    getEnv("LIFEVAULT_VAULT_PATH", "Vault"),
		DBPath:       getEnv("LIFEVAULT_DB_PATH", "./data/lifevault.db"),
		Timezone:     getEnv("LIFEVAULT_TIMEZONE", "UTC"),
		LLMBaseURL:   getEnv("LLM_BASE_URL", "http://localhost:8080"),
		LLMAPIKey:    getEnv("LLM_API_KEY", "dummy-key"),
		LLMModelName: getEnv("LLM_MODEL", "Llama-3.1-8B-Instruct"),
		APIPort:      getEnv("API_PORT", "9000"),
		LogFormat:    getEnv("LOG_FORMAT", "text"),
	}

	level, err := parseLogLevel(getEnv("LOG_LEVEL", "info"))
	if err != nil {
		return nil, err
	}
	cfg.LogLevel = level

	if cfg.VaultPath == "" {
		return nil, fmt.Errorf("LIFEVAULT_VAULT_PATH is required")
	}

	// Create the data directory so the SQLite file can be opened.
	dataDir := filepath.Dir(cfg.DBPath)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	return cfg, nil
}

// parseLogLevel converts a level name to a slog.Level.
func parseLogLevel(value string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unsupported LOG_LEVEL: %q", value)
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
