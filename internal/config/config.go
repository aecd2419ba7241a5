// Package config provides configuration loading from environment variables
// and an optional YAML file.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Store backends.
const (
	StoreRedis  = "redis"
	StoreSQLite = "sqlite"
	StoreMemory = "memory"
)

// Queue backends.
const (
	QueueLocal  = "local"
	QueueDocker = "docker"
)

// ServiceConfig holds configuration for the cockpit API service.
type ServiceConfig struct {
	Port              string        `yaml:"port"`
	MetricsPort       string        `yaml:"metricsPort"`
	APIKeyFile        string        `yaml:"apiKeyFile"`
	APIKey            string        `yaml:"-"`
	LogLevel          string        `yaml:"logLevel"`
	ShutdownDrainWait time.Duration `yaml:"shutdownDrainWait"` // Time to wait for load balancer to drain (0 to skip)

	Store    StoreConfig    `yaml:"store"`
	Lock     LockConfig     `yaml:"lock"`
	Queue    QueueConfig    `yaml:"queue"`
	Callback CallbackConfig `yaml:"callback"`
}

// StoreConfig selects and addresses the shared state store.
type StoreConfig struct {
	Backend    string `yaml:"backend"`
	RedisURL   string `yaml:"redisUrl"`
	SQLitePath string `yaml:"sqlitePath"`
}

// LockConfig configures the admission lock.
type LockConfig struct {
	Name string        `yaml:"name"`
	Wait time.Duration `yaml:"wait"` // bounded acquisition wait
	TTL  time.Duration `yaml:"ttl"`  // lease backstop against a stuck lock
}

// QueueConfig selects the task queue backend.
type QueueConfig struct {
	Backend string `yaml:"backend"`
}

// CallbackConfig configures lifecycle webhooks. Empty URL disables them.
type CallbackConfig struct {
	URL     string   `yaml:"url"`
	KeyFile string   `yaml:"keyFile"`
	Key     string   `yaml:"-"`
	Events  []string `yaml:"events"` // event type filter, empty = all
}

// Defaults returns the built-in service configuration.
func Defaults() *ServiceConfig {
	return &ServiceConfig{
		Port:              "8080",
		MetricsPort:       "9090",
		LogLevel:          "info",
		ShutdownDrainWait: 5 * time.Second,
		Store: StoreConfig{
			Backend:    StoreRedis,
			RedisURL:   "redis://localhost:6379",
			SQLitePath: "cockpit.db",
		},
		Lock: LockConfig{
			Name: "task_lock",
			Wait: 3 * time.Second,
			TTL:  30 * time.Second,
		},
		Queue: QueueConfig{
			Backend: QueueLocal,
		},
	}
}

// LoadServiceConfig loads service configuration. Values from the YAML file
// named by CONFIG_FILE replace the built-in defaults; environment variables
// override both.
func LoadServiceConfig() (*ServiceConfig, error) {
	cfg := Defaults()
	if path := GetEnv("CONFIG_FILE", ""); path != "" {
		if err := cfg.MergeFile(path); err != nil {
			return nil, err
		}
	}

	cfg.Port = GetEnv("PORT", cfg.Port)
	cfg.MetricsPort = GetEnv("METRICS_PORT", cfg.MetricsPort)
	cfg.APIKeyFile = GetEnv("API_KEY_FILE", cfg.APIKeyFile)
	cfg.APIKey = GetSecretFile(cfg.APIKeyFile)
	cfg.LogLevel = GetEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.ShutdownDrainWait = GetDurationEnv("SHUTDOWN_DRAIN_WAIT", cfg.ShutdownDrainWait)

	cfg.Store.Backend = GetEnv("STORE_BACKEND", cfg.Store.Backend)
	// CELERY_BROKER_URL is honoured for deployments that share one Redis with a worker fleet.
	cfg.Store.RedisURL = GetEnv("REDIS_URL", GetEnv("CELERY_BROKER_URL", cfg.Store.RedisURL))
	cfg.Store.SQLitePath = GetEnv("SQLITE_PATH", cfg.Store.SQLitePath)

	cfg.Lock.Name = GetEnv("LOCK_NAME", cfg.Lock.Name)
	cfg.Lock.Wait = GetDurationEnv("LOCK_WAIT", cfg.Lock.Wait)
	cfg.Lock.TTL = GetDurationEnv("LOCK_TTL", cfg.Lock.TTL)

	cfg.Queue.Backend = GetEnv("QUEUE_BACKEND", cfg.Queue.Backend)

	cfg.Callback.URL = GetEnv("CALLBACK_URL", cfg.Callback.URL)
	cfg.Callback.KeyFile = GetEnv("CALLBACK_KEY_FILE", cfg.Callback.KeyFile)
	cfg.Callback.Key = GetSecretFile(cfg.Callback.KeyFile)
	cfg.Callback.Events = GetListEnv("CALLBACK_EVENTS", cfg.Callback.Events)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks enumerated settings and lock timings.
func (c *ServiceConfig) Validate() error {
	switch c.Store.Backend {
	case StoreRedis, StoreSQLite, StoreMemory:
	default:
		return fmt.Errorf("unsupported store backend %q", c.Store.Backend)
	}
	switch c.Queue.Backend {
	case QueueLocal, QueueDocker:
	default:
		return fmt.Errorf("unsupported queue backend %q", c.Queue.Backend)
	}
	if c.Lock.Name == "" {
		return fmt.Errorf("lock name must not be empty")
	}
	if c.Lock.Wait <= 0 || c.Lock.TTL <= 0 {
		return fmt.Errorf("lock wait and ttl must be positive")
	}
	if c.Lock.TTL < c.Lock.Wait {
		return fmt.Errorf("lock ttl (%s) must not be shorter than lock wait (%s)", c.Lock.TTL, c.Lock.Wait)
	}
	return nil
}

// SlogLevel returns the configured log level, falling back to info.
func (c *ServiceConfig) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(c.LogLevel))); err != nil {
		return slog.LevelInfo
	}
	return level
}
