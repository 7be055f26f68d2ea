package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = 10
	}
	if cfg.Collab.RequestTimeout == 0 {
		cfg.Collab.RequestTimeout = 60 * time.Second
	}
	if cfg.Retry.SweepInterval == 0 {
		cfg.Retry.SweepInterval = 10 * time.Second
	}
	if cfg.Retry.DefaultMaxRetries == 0 {
		cfg.Retry.DefaultMaxRetries = 3
	}
	if cfg.DLQ.MaxEntriesPerQueue == 0 {
		cfg.DLQ.MaxEntriesPerQueue = 2000
	}
	if cfg.DLQ.Retention == 0 {
		cfg.DLQ.Retention = 14 * 24 * time.Hour
	}
	if cfg.DLQ.CleanupInterval == 0 {
		cfg.DLQ.CleanupInterval = time.Hour
	}
	if cfg.Health.StaleAfter == 0 {
		cfg.Health.StaleAfter = 120 * time.Second
	}
	if cfg.Health.CheckInterval == 0 {
		cfg.Health.CheckInterval = 30 * time.Second
	}
	for i := range cfg.Workers {
		w := &cfg.Workers[i]
		if w.MinWorkers == 0 {
			w.MinWorkers = 1
		}
		if w.MaxWorkers == 0 {
			w.MaxWorkers = 4
		}
		if w.PollInterval == 0 {
			w.PollInterval = 5 * time.Second
		}
		if w.MonitorInterval == 0 {
			w.MonitorInterval = 30 * time.Second
		}
		if w.MaxConsecFails == 0 {
			w.MaxConsecFails = 5
		}
		if w.ScaleUpDepth == 0 {
			w.ScaleUpDepth = 20
		}
		if w.ScaleDownDepth == 0 {
			w.ScaleDownDepth = 2
		}
	}
}
