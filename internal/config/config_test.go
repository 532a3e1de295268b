package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMemoryDriver(t *testing.T) {
	t.Setenv("APP_ENV", "dev")
	t.Setenv("APP_PORT", "8080")
	t.Setenv("JWT_SECRET", "k")
	t.Setenv("STORE_DRIVER", "memory")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.StoreDriver)
	assert.Equal(t, 15, cfg.AccessTTLMin)
	assert.Empty(t, cfg.DBHost)
}

func TestLoadReportsEveryMissingVar(t *testing.T) {
	for _, k := range []string{"APP_ENV", "APP_PORT", "JWT_SECRET", "DB_USER", "DB_HOST", "DB_PORT", "DB_NAME"} {
		t.Setenv(k, "")
	}
	t.Setenv("STORE_DRIVER", "mysql")

	_, err := Load()
	require.Error(t, err)
	for _, k := range []string{"APP_ENV", "APP_PORT", "JWT_SECRET", "DB_USER", "DB_HOST", "DB_PORT", "DB_NAME"} {
		assert.Contains(t, err.Error(), k)
	}
}

func TestLoadRejectsBadPortAndDriver(t *testing.T) {
	t.Setenv("APP_ENV", "prod")
	t.Setenv("APP_PORT", "8080")
	t.Setenv("JWT_SECRET", "k")
	t.Setenv("STORE_DRIVER", "mysql")
	t.Setenv("DB_USER", "u")
	t.Setenv("DB_HOST", "h")
	t.Setenv("DB_PORT", "three")
	t.Setenv("DB_NAME", "n")

	_, err := Load()
	assert.ErrorContains(t, err, "invalid int for DB_PORT")

	t.Setenv("STORE_DRIVER", "mongo")
	_, err = Load()
	assert.ErrorContains(t, err, "STORE_DRIVER")
}

func TestLoadBookingConfig(t *testing.T) {
	t.Setenv("HOLD_WINDOW", "")
	t.Setenv("SWEEP_INTERVAL", "")
	t.Setenv("PAYMENT_GATEWAY", "Stripe")
	t.Setenv("SWEEP_BATCH_SIZE", "0")
	t.Setenv("LIVE_ORIGIN_PATTERNS", "app.example.com, *.example.org ,")

	cfg := LoadBookingConfig()
	assert.Equal(t, 5*time.Minute, cfg.HoldWindow)
	assert.Equal(t, 30*time.Second, cfg.SweepInterval)
	assert.Equal(t, "stripe", cfg.Gateway)
	assert.Equal(t, 100, cfg.SweepBatchSize)
	assert.Equal(t, []string{"app.example.com", "*.example.org"}, cfg.LiveOrigins)

	t.Setenv("HOLD_WINDOW", "10s")
	assert.Equal(t, time.Minute, LoadBookingConfig().HoldWindow)
}

func TestLoadRateLimitConfig(t *testing.T) {
	t.Setenv("RATE_LIMIT_CAPACITY", "0")
	t.Setenv("RATE_LIMIT_REFILL_EVERY", "2m")
	t.Setenv("RATE_LIMIT_TTL", "1m")

	cfg := LoadRateLimitConfig()
	assert.Equal(t, 1, cfg.Capacity)
	assert.Equal(t, 2*time.Minute, cfg.RefillInterval)
	assert.Equal(t, 10*time.Minute, cfg.TTL)
}

func TestLoadCacheConfig(t *testing.T) {
	t.Setenv("CACHE_METHODS", "get, head")
	t.Setenv("CACHE_ENABLED", "off")
	cfg := LoadCacheConfig()
	assert.False(t, cfg.Enabled)
	assert.Equal(t, map[string]bool{"GET": true, "HEAD": true}, cfg.Methods)
}
