package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("SYNC_JWT_SECRET", "test-secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, "syncline.db", cfg.DBPath)
	assert.Equal(t, 24*time.Hour, cfg.JWTExpiry)
	assert.Equal(t, 30*time.Second, cfg.SyncInterval)
	assert.Equal(t, 50, cfg.PushBatchSize)
	assert.Equal(t, time.Second, cfg.ReconnectBase)
	assert.Equal(t, 30*time.Second, cfg.ReconnectCap)
	assert.Equal(t, uint64(10), cfg.ReconnectRetries)
	assert.Equal(t, 90*24*time.Hour, cfg.EventRetention)
	assert.Equal(t, 30*24*time.Hour, cfg.ConflictRetention)
	assert.Equal(t, 200, cfg.EntityHistoryCap)
}

func TestLoad_RequiresSecret(t *testing.T) {
	t.Setenv("SYNC_JWT_SECRET", "")

	_, err := Load()
	require.Error(t, err)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("SYNC_JWT_SECRET", "test-secret")
	t.Setenv("SYNC_LISTEN_ADDR", ":9090")
	t.Setenv("SYNC_INTERVAL", "5s")
	t.Setenv("SYNC_PUSH_BATCH_SIZE", "10")
	t.Setenv("SYNC_RECONNECT_RETRIES", "3")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.ListenAddr)
	assert.Equal(t, 5*time.Second, cfg.SyncInterval)
	assert.Equal(t, 10, cfg.PushBatchSize)
	assert.Equal(t, uint64(3), cfg.ReconnectRetries)
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{name: "bad duration", key: "SYNC_INTERVAL", value: "soon"},
		{name: "bad int", key: "SYNC_PUSH_BATCH_SIZE", value: "many"},
		{name: "zero batch size", key: "SYNC_PUSH_BATCH_SIZE", value: "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("SYNC_JWT_SECRET", "test-secret")
			t.Setenv(tt.key, tt.value)

			_, err := Load()
			assert.Error(t, err)
		})
	}
}
