package bootstrap

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/quill/config"
)

func TestInitLoggerWritesJSON(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	logger := initLogger(&buf, slog.LevelWarn)
	logger.Info("hidden")
	logger.Warn("shown", "key", "value")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "shown", entry["msg"])
	assert.Equal(t, "value", entry["key"])
	assert.Same(t, logger, slog.Default())
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("AUTH_MODE", "local")
	t.Setenv("SYNC_DEFAULT_SORT", "title_asc")
	t.Setenv("SESSION_MAX_AGE", "-1h")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, config.AuthModeLocal, cfg.Auth.Mode)
	assert.Equal(t, "title_asc", cfg.Sync.DefaultSort)
	assert.Positive(t, cfg.Auth.Session.MaxAge)
}

func TestLoadConfigRejectsDevAuthOutsideDev(t *testing.T) {
	t.Setenv("AUTH_MODE", "dev")
	t.Setenv("DEV", "false")
	t.Setenv("APP_ENV", "production")

	_, err := LoadConfig()
	require.Error(t, err)
}

func TestLoadConfigRejectsBadMode(t *testing.T) {
	t.Setenv("AUTH_MODE", "saml")
	_, err := LoadConfig()
	require.Error(t, err)
}
