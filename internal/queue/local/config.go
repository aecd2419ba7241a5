package local

import (
	"time"

	"cockpit/internal/config"
)

// Config holds configuration for the in-process queue.
type Config struct {
	Workers             int           // concurrent executions (default: 1)
	Retention           time.Duration // how long finished jobs stay queryable (default: 24h)
	MaintenanceInterval time.Duration // how often expired jobs are pruned (default: 1m)
}

// LoadConfigFromEnv loads queue configuration from environment variables.
func LoadConfigFromEnv() Config {
	cfg := Config{
		Workers:             config.GetIntEnv("LOCAL_WORKERS", 1),
		Retention:           config.GetDurationEnv("JOB_RETENTION", 24*time.Hour),
		MaintenanceInterval: config.GetDurationEnv("MAINTENANCE_INTERVAL", time.Minute),
	}
	return cfg.withDefaults()
}

// withDefaults fills in zero values with defaults.
func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.Retention <= 0 {
		c.Retention = 24 * time.Hour
	}
	if c.MaintenanceInterval <= 0 {
		c.MaintenanceInterval = time.Minute
	}
	return c
}
