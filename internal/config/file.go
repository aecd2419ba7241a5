package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// MergeFile overlays the values present in a YAML file onto the config.
// Keys absent from the file keep their current values.
func (c *ServiceConfig) MergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}
