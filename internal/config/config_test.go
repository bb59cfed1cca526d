package config_test

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"petchat/internal/config"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, 50, cfg.PageSize)
	assert.Equal(t, 50, cfg.CacheKeepLast)
	assert.Equal(t, 15*time.Second, cfg.ReconcileWindow)
	assert.Equal(t, 3*time.Second, cfg.TypingQuiet)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.NotEmpty(t, cfg.CORSOrigins)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PAGE_SIZE", "25")
	t.Setenv("RECONCILE_WINDOW", "30s")
	t.Setenv("TYPING_QUIET", "5s")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("HTTP_PORT", "9001")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, 25, cfg.PageSize)
	assert.Equal(t, 30*time.Second, cfg.ReconcileWindow)
	assert.Equal(t, 5*time.Second, cfg.TypingQuiet)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
	assert.Equal(t, "0.0.0.0:9001", cfg.HTTPAddr())
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Setenv("PAGE_SIZE", "-1")

	_, err := config.Load()
	assert.Error(t, err)
}
