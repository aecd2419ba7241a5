package docker

import (
	"strings"
	"time"

	"cockpit/internal/config"
)

// defaultCommand mirrors the demo executor inside a container.
const defaultCommand = `sleep 30 && echo "hello $(shuf -i 10-99 -n 1)"`

// Config holds configuration for the Docker queue.
type Config struct {
	Image               string        // job image (default: alpine:latest)
	Command             string        // shell command run in the job container
	Env                 []string      // extra KEY=VALUE entries
	CPU                 float64       // cores, 0 = unlimited
	Memory              int           // MB, 0 = unlimited
	ExtraHosts          []string      // extra /etc/hosts entries (e.g., ["minio.local:host-gateway"])
	Retention           time.Duration // how long finished containers are kept (default: 24h)
	MaintenanceInterval time.Duration // how often to prune (default: 1m)
}

// LoadConfigFromEnv loads Docker queue configuration from environment variables.
func LoadConfigFromEnv() Config {
	var extraHosts []string
	if hosts := config.GetEnv("EXTRA_HOSTS", ""); hosts != "" {
		extraHosts = strings.Split(hosts, ",")
	}

	cfg := Config{
		Image:               config.GetEnv("DOCKER_IMAGE", "alpine:latest"),
		Command:             config.GetEnv("DOCKER_COMMAND", defaultCommand),
		Env:                 config.GetListEnv("DOCKER_ENV", nil),
		CPU:                 float64(config.GetIntEnv("DOCKER_CPU", 0)),
		Memory:              config.GetIntEnv("DOCKER_MEMORY", 0),
		ExtraHosts:          extraHosts,
		Retention:           config.GetDurationEnv("JOB_RETENTION", 24*time.Hour),
		MaintenanceInterval: config.GetDurationEnv("MAINTENANCE_INTERVAL", time.Minute),
	}
	return cfg.withDefaults()
}

func (c Config) withDefaults() Config {
	if c.Image == "" {
		c.Image = "alpine:latest"
	}
	if c.Command == "" {
		c.Command = defaultCommand
	}
	if c.Retention <= 0 {
		c.Retention = 24 * time.Hour
	}
	if c.MaintenanceInterval <= 0 {
		c.MaintenanceInterval = time.Minute
	}
	return c
}
