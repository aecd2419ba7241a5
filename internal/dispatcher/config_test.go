package dispatcher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMemoryConfig_WithDefaults(t *testing.T) {
	t.Parallel()

	for name, cfg := range map[string]MemoryConfig{
		"zero":     {},
		"negative": {BufferSize: -1, Workers: -1, HTTPTimeout: -1, MaxRetries: -1, BreakerThreshold: -1, BreakerCooldown: -1},
	} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			got := cfg.withDefaults()
			assert.Equal(t, 1000, got.BufferSize)
			assert.Equal(t, 4, got.Workers)
			assert.Equal(t, 10*time.Second, got.HTTPTimeout)
			assert.Equal(t, 100*time.Millisecond, got.Retry.Initial)
			assert.Equal(t, 5*time.Second, got.Retry.Max)
			assert.Equal(t, 5, got.BreakerThreshold)
			assert.Equal(t, 30*time.Second, got.BreakerCooldown)
		})
	}
}

func TestMemoryConfig_WithDefaults_PreservesValidValues(t *testing.T) {
	t.Parallel()
	cfg := MemoryConfig{BufferSize: 500, Workers: 5, HTTPTimeout: 20 * time.Second, MaxRetries: 0}.withDefaults()

	assert.Equal(t, 500, cfg.BufferSize)
	assert.Equal(t, 5, cfg.Workers)
	assert.Equal(t, 20*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, 0, cfg.MaxRetries, "zero retries is a valid choice")
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("DISPATCHER_BUFFER_SIZE", "64")
	t.Setenv("DISPATCHER_WORKERS", "2")
	t.Setenv("DISPATCHER_MAX_RETRIES", "1")
	t.Setenv("DISPATCHER_BREAKER_COOLDOWN", "5s")

	cfg := LoadConfigFromEnv()
	assert.Equal(t, 64, cfg.BufferSize)
	assert.Equal(t, 2, cfg.Workers)
	assert.Equal(t, 1, cfg.MaxRetries)
	assert.Equal(t, 5*time.Second, cfg.BreakerCooldown)
	assert.Equal(t, 10*time.Second, cfg.HTTPTimeout)
}
