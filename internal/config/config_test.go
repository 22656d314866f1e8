package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "http://localhost:3001", cfg.Storage.BaseURL)
	assert.Equal(t, 10*time.Second, cfg.Storage.Timeout)
	assert.Equal(t, "gemini-2.0-flash", cfg.GenAI.Model)
	assert.Equal(t, 30*time.Second, cfg.GenAI.Timeout)
	assert.Equal(t, 40, cfg.Chat.HistoryLimit)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("GENAI_TIMEOUT", "5s")
	t.Setenv("CHAT_HISTORY_LIMIT", "12")

	cfg := Load()

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.GenAI.Timeout)
	assert.Equal(t, 12, cfg.Chat.HistoryLimit)
}

func TestLoad_InvalidValuesFallBackToDefaults(t *testing.T) {
	t.Setenv("GENAI_TIMEOUT", "not-a-duration")
	t.Setenv("CHAT_HISTORY_LIMIT", "-3")

	cfg := Load()

	assert.Equal(t, 30*time.Second, cfg.GenAI.Timeout)
	assert.Equal(t, 40, cfg.Chat.HistoryLimit)
}
