package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "APPLE_ENV", "SIGNING_ALGORITHMS", "QUEUE_WORKERS", "WEBHOOK_SENDERS", "REDIS_URL"} {
		t.Setenv(key, "")
	}

	cfg := Load()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "Sandbox", cfg.AppleEnvironment)
	assert.Equal(t, []string{"ES256"}, cfg.SigningAlgorithms)
	assert.Equal(t, 3, cfg.QueueWorkers)
	assert.Equal(t, 2, cfg.WebhookSenders)
	assert.Empty(t, cfg.RedisURL)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("APPLE_ENV", "Production")
	t.Setenv("BUNDLE_ID", "com.example.app")
	t.Setenv("SIGNING_ALGORITHMS", " ES256, ES384 ,,")
	t.Setenv("QUEUE_WORKERS", "8")
	t.Setenv("QUEUE_MAX_RETRIES", "not-a-number")

	cfg := Load()

	assert.Equal(t, "Production", cfg.AppleEnvironment)
	assert.Equal(t, "com.example.app", cfg.BundleID)
	assert.Equal(t, []string{"ES256", "ES384"}, cfg.SigningAlgorithms)
	assert.Equal(t, 8, cfg.QueueWorkers)
	assert.Equal(t, 3, cfg.QueueMaxRetries)
}

func TestGetEnvListFallsBackWhenOnlySeparators(t *testing.T) {
	t.Setenv("SIGNING_ALGORITHMS", " , ,")

	assert.Equal(t, []string{"ES256"}, getEnvList("SIGNING_ALGORITHMS", []string{"ES256"}))
}
