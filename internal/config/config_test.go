package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	for _, k := range []string{
		"DATABASE_URL", "REDIS_URL", "HTTP_ADDR", "CHUNK_SIZE", "CSV_DELIMITER", "WORKER_COUNT",
		"WEBHOOK_TIMEOUT", "WEBHOOK_TEST_TIMEOUT", "WEBHOOK_MAX_RETRIES", "CORS_ORIGINS", "MAX_UPLOAD_SIZE_MB",
	} {
		t.Setenv(k, "")
	}

	c, err := Load()
	require.NoError(t, err)
	require.Equal(t, ":8080", c.HTTPAddr)
	require.Equal(t, 10000, c.ChunkSize)
	require.Equal(t, ',', c.Delimiter())
	require.Equal(t, 2, c.WorkerCount)
	require.Equal(t, 10*time.Second, c.WebhookTimeout)
	require.Equal(t, 15*time.Second, c.WebhookTestTimeout)
	require.Equal(t, 3, c.WebhookMaxRetries)
	require.Equal(t, int64(100<<20), c.MaxUploadBytes())
	require.Equal(t, []string{"http://localhost:8000", "http://localhost:3000"}, c.CORSOrigins)
	require.Empty(t, c.RedisURL)
	require.False(t, c.Production())
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DATABASE_URL", "postgres://x@db/catalog")
	t.Setenv("REDIS_URL", "redis://cache:6379/1")
	t.Setenv("CHUNK_SIZE", "500")
	t.Setenv("CSV_DELIMITER", ";")
	t.Setenv("WORKER_COUNT", "0")
	t.Setenv("WEBHOOK_TIMEOUT", "2s")
	t.Setenv("ENVIRONMENT", "production")

	c, err := Load()
	require.NoError(t, err)
	require.Equal(t, "postgres://x@db/catalog", c.DatabaseURL)
	require.Equal(t, "redis://cache:6379/1", c.RedisURL)
	require.Equal(t, 500, c.ChunkSize)
	require.Equal(t, ';', c.Delimiter())
	require.Equal(t, 0, c.WorkerCount)
	require.Equal(t, 2*time.Second, c.WebhookTimeout)
	require.True(t, c.Production())
}

func TestLoadRejectsInvalid(t *testing.T) {
	t.Chdir(t.TempDir())

	t.Run("chunk size", func(t *testing.T) {
		t.Setenv("CHUNK_SIZE", "0")
		_, err := Load()
		require.ErrorContains(t, err, "CHUNK_SIZE")
	})

	t.Run("delimiter", func(t *testing.T) {
		t.Setenv("CSV_DELIMITER", "||")
		_, err := Load()
		require.ErrorContains(t, err, "CSV_DELIMITER")
	})

	t.Run("not a number", func(t *testing.T) {
		t.Setenv("WORKER_COUNT", "many")
		_, err := Load()
		require.Error(t, err)
	})
}
