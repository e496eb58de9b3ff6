package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("ENV", "")
	t.Setenv("CORS_ALLOW_ORIGINS", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "dev", cfg.Env)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, []string{"*"}, cfg.CORSAllowOrigin)
	assert.Equal(t, "inprocess", cfg.DispatchMode)
	assert.Equal(t, 8, cfg.Pipeline.Concurrency)
	assert.Equal(t, 50, cfg.Pipeline.BatchSize)
	assert.Equal(t, 30*time.Second, cfg.Pipeline.BatchTimeout)
	assert.Equal(t, 2, cfg.Pipeline.CarrierMaxAttempts)
	assert.Equal(t, 20*time.Second, cfg.Pipeline.CarrierTimeout)
}

func TestLoadOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("ENV", "prod")
	t.Setenv("CORS_ALLOW_ORIGINS", " https://a.example , ,https://b.example")
	t.Setenv("DISPATCH_MODE", "SQS")
	t.Setenv("RESULT_STORE", "bogus")
	t.Setenv("PERSIST_BATCH_TIMEOUT", "5s")
	t.Setenv("RATE_CONCURRENCY", "0")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "production", cfg.Env)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSAllowOrigin)
	assert.Equal(t, "sqs", cfg.DispatchMode)
	assert.Equal(t, "auto", cfg.ResultStore)
	assert.Equal(t, 5*time.Second, cfg.Pipeline.BatchTimeout)
	assert.Equal(t, 8, cfg.Pipeline.Concurrency)
}
