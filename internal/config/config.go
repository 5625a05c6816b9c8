package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds every runtime knob for the sync server and client engine.
// Values come from environment variables; mains call godotenv.Load first
// so a local .env works in development.
type Config struct {
	// Server
	ListenAddr string
	DBPath     string
	JWTSecret  string
	JWTExpiry  time.Duration

	// Engine
	SyncInterval     time.Duration
	PushBatchSize    int
	ReconnectBase    time.Duration
	ReconnectCap     time.Duration
	ReconnectRetries uint64

	// Retention
	EventRetention    time.Duration
	ConflictRetention time.Duration
	EntityHistoryCap  int
}

// Load reads configuration from the environment, applying defaults for
// everything except the JWT secret, which has no safe default.
func Load() (*Config, error) {
	cfg := &Config{
		ListenAddr: getEnv("SYNC_LISTEN_ADDR", ":8080"),
		DBPath:     getEnv("SYNC_DB_PATH", "syncline.db"),
		JWTSecret:  os.Getenv("SYNC_JWT_SECRET"),
	}

	if cfg.JWTSecret == "" {
		return nil, errors.New("SYNC_JWT_SECRET is required")
	}

	var err error
	if cfg.JWTExpiry, err = getDuration("SYNC_JWT_EXPIRY", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.SyncInterval, err = getDuration("SYNC_INTERVAL", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.PushBatchSize, err = getInt("SYNC_PUSH_BATCH_SIZE", 50); err != nil {
		return nil, err
	}
	if cfg.ReconnectBase, err = getDuration("SYNC_RECONNECT_BASE", time.Second); err != nil {
		return nil, err
	}
	if cfg.ReconnectCap, err = getDuration("SYNC_RECONNECT_CAP", 30*time.Second); err != nil {
		return nil, err
	}
	retries, err := getInt("SYNC_RECONNECT_RETRIES", 10)
	if err != nil {
		return nil, err
	}
	cfg.ReconnectRetries = uint64(retries)

	if cfg.EventRetention, err = getDuration("SYNC_EVENT_RETENTION", 90*24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.ConflictRetention, err = getDuration("SYNC_CONFLICT_RETENTION", 30*24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.EntityHistoryCap, err = getInt("SYNC_ENTITY_HISTORY_CAP", 200); err != nil {
		return nil, err
	}

	if cfg.PushBatchSize <= 0 {
		return nil, errors.New("SYNC_PUSH_BATCH_SIZE must be positive")
	}

	return cfg, nil
}

// getEnv returns the value of key or a default when unset.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func getInt(key string, defaultValue int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}
