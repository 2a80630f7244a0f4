package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 30*time.Second, cfg.ReadTimeout)
	assert.Equal(t, "dev", cfg.Environment)
	assert.True(t, cfg.Dev())
	assert.Equal(t, 5*time.Second, cfg.WebhookTimeout)
	assert.Equal(t, "", cfg.LLMJudgeEndpoint)
	assert.Equal(t, int64(1024*1024), cfg.MaxRequestBodyBytes)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("TRACEHUB_PORT", "9090")
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("TRACEHUB_LLM_JUDGE_ENDPOINT", "http://judge.internal/v1")
	t.Setenv("TRACEHUB_WEBHOOK_TIMEOUT", "2s")
	t.Setenv("TRACEHUB_OTEL_INSECURE", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.False(t, cfg.Dev())
	assert.Equal(t, "http://judge.internal/v1", cfg.LLMJudgeEndpoint)
	assert.Equal(t, 2*time.Second, cfg.WebhookTimeout)
	assert.True(t, cfg.OTELInsecure)
}

func TestLoadInvalidValuesFallBack(t *testing.T) {
	t.Setenv("TRACEHUB_PORT", "not-a-number")
	t.Setenv("TRACEHUB_WEBHOOK_TIMEOUT", "soon")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 5*time.Second, cfg.WebhookTimeout)
}

func TestValidateRejectsBadConfig(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	bad := cfg
	bad.DatabaseURL = ""
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.InternalAPIKeySeed = ""
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.MaxRequestBodyBytes = 0
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.LLMJudgeTimeout = 0
	assert.Error(t, bad.Validate())
}
