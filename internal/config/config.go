package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds everything the server reads from the environment.
type Config struct {
	Server struct {
		Port string
	}

	Storage struct {
		BaseURL string
		Timeout time.Duration
	}

	GenAI struct {
		BaseURL string
		APIKey  string
		Model   string
		Timeout time.Duration
	}

	Notify struct {
		BaseURL string
		Timeout time.Duration
	}

	Chat struct {
		// HistoryLimit caps the request-history buffer sent as context on
		// every assistant call. The display log is not bounded.
		HistoryLimit int
	}

	Log struct {
		Level  string
		Format string
	}
}

// Load reads configuration from environment variables with defaults.
func Load() *Config {
	cfg := &Config{}

	cfg.Server.Port = getEnv("PORT", "8080")

	cfg.Storage.BaseURL = getEnv("STORAGE_BASE_URL", "http://localhost:3001")
	cfg.Storage.Timeout = getEnvDuration("STORAGE_TIMEOUT", 10*time.Second)

	cfg.GenAI.BaseURL = getEnv("GENAI_BASE_URL", "https://generativelanguage.googleapis.com")
	cfg.GenAI.APIKey = getEnv("GENAI_API_KEY", "")
	cfg.GenAI.Model = getEnv("GENAI_MODEL", "gemini-2.0-flash")
	cfg.GenAI.Timeout = getEnvDuration("GENAI_TIMEOUT", 30*time.Second)

	cfg.Notify.BaseURL = getEnv("NOTIFY_BASE_URL", "http://localhost:3001")
	cfg.Notify.Timeout = getEnvDuration("NOTIFY_TIMEOUT", 10*time.Second)

	cfg.Chat.HistoryLimit = getEnvInt("CHAT_HISTORY_LIMIT", 40)

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	return cfg
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil && n > 0 {
			return n
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil && d > 0 {
			return d
		}
	}
	return defaultValue
}
