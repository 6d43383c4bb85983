package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "remote_base_url: http://api:8000\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "http://api:8000", cfg.RemoteBaseURL)
	assert.Equal(t, 10*time.Second, cfg.AnalysisPollInterval)
	assert.Equal(t, 5*time.Second, cfg.QueryPollInterval)
	assert.Equal(t, 24*time.Hour, cfg.InactivityThreshold)
	assert.Equal(t, 2000, cfg.MaxQuestionLen)
	assert.True(t, cfg.EnablePrivateChat)
	assert.True(t, cfg.RequireMentionInGroup)
}

func TestLoadOverrides(t *testing.T) {
	path := writeConfig(t, `
remote_base_url: http://api:8000
redis_addr: localhost:6379
analysis_poll_interval: 30s
query_poll_interval: 2s
inactivity_threshold: 48h
max_question_len: 500
require_mention_in_group: false
llm_config:
  model_name: gpt-4o-mini
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.Equal(t, 30*time.Second, cfg.AnalysisPollInterval)
	assert.Equal(t, 2*time.Second, cfg.QueryPollInterval)
	assert.Equal(t, 48*time.Hour, cfg.InactivityThreshold)
	assert.Equal(t, 500, cfg.MaxQuestionLen)
	assert.False(t, cfg.RequireMentionInGroup)
	assert.Equal(t, "gpt-4o-mini", cfg.LLMConfig["model_name"])
}

func TestEnvFallbacks(t *testing.T) {
	t.Setenv("REPOINSIGHT_REMOTE_URL", "http://env-api:9000")
	t.Setenv("REPOINSIGHT_REDIS_ADDR", "env-redis:6379")

	path := writeConfig(t, "remote_base_url: http://file-api:8000\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	// Environment wins over the file for deployment overrides.
	assert.Equal(t, "http://env-api:9000", cfg.RemoteBaseURL)
	assert.Equal(t, "env-redis:6379", cfg.RedisAddr)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	bad := Default()
	bad.RemoteBaseURL = ""
	assert.Error(t, bad.Validate())

	bad = Default()
	bad.MaxQuestionLen = 0
	assert.Error(t, bad.Validate())

	bad = Default()
	bad.EnablePrivateChat = false
	bad.EnableGroupChat = false
	assert.Error(t, bad.Validate())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
