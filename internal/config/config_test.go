package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFromEnvRequiresDatabaseURL(t *testing.T) {
	t.Setenv("CASEPILOT_DB_URL", "")
	_, err := FromEnv()
	require.Error(t, err)
}

func TestFromEnvAppliesDefaults(t *testing.T) {
	t.Setenv("CASEPILOT_DB_URL", "postgres://localhost/casepilot")
	cfg, err := FromEnv()
	require.NoError(t, err)
	require.Equal(t, "8080", cfg.Port)
	require.Equal(t, 3, cfg.JobMaxAttempts)
	require.Equal(t, 5, cfg.ConversationWindow)
	require.Equal(t, "./casepilot-data/export", cfg.ExportDir)
	require.Equal(t, 2, cfg.ExportRunHour)
}

func TestFromEnvParsesRateLimits(t *testing.T) {
	t.Setenv("CASEPILOT_DB_URL", "postgres://localhost/casepilot")
	t.Setenv("CASEPILOT_RATE_LIMIT_PER_MINUTE", "gstin=30,llm=60")
	cfg, err := FromEnv()
	require.NoError(t, err)
	require.Equal(t, 30, cfg.RateLimitPerMinute["gstin"])
	require.Equal(t, 60, cfg.RateLimitPerMinute["llm"])
}

func TestNormalizePortStripsLeadingColon(t *testing.T) {
	require.Equal(t, "9090", normalizePort(":9090"))
	require.Equal(t, "9090", normalizePort("9090"))
	require.Equal(t, "8080", normalizePort(""))
}

func TestLoadWorkerFileCreatesDefaultWhenMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "worker.toml")
	wf, err := LoadWorkerFile(path)
	require.NoError(t, err)
	require.Equal(t, 4, wf.Concurrency)
	require.Equal(t, 500, wf.PollIntervalMS)

	require.FileExists(t, path)

	again, err := LoadWorkerFile(path)
	require.NoError(t, err)
	require.Equal(t, wf.Concurrency, again.Concurrency)
}
