package config

import (
	"fmt"
	"os"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// LoadYAMLFile reads a WorkerConfig from a YAML file, seeded with defaults
// for anything the file leaves unset.
func LoadYAMLFile(path string) (*WorkerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	return cfg, nil
}

// ApplyEnvOverrides loads a local .env file (if present) and overlays
// LOG_LEVEL/LOG_FORMAT onto cfg, layering environment variables on top
// of file-based configuration.
func ApplyEnvOverrides(cfg *WorkerConfig, dotenvPath string) error {
	if dotenvPath != "" {
		if err := godotenv.Load(dotenvPath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("load .env: %w", err)
		}
	}

	var overrides EnvOverrides
	if err := envdecode.Decode(&overrides); err != nil {
		return fmt.Errorf("decode env overrides: %w", err)
	}

	if overrides.LogLevel != "" {
		cfg.Logging.Level = overrides.LogLevel
	}
	if overrides.LogFormat != "" {
		cfg.Logging.Format = overrides.LogFormat
	}
	return nil
}
