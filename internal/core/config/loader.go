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

	if cfg.Quota.SessionLimit == 0 {
		cfg.Quota.SessionLimit = 10
	}
	if cfg.Quota.InactivityWindow == 0 {
		cfg.Quota.InactivityWindow = Duration(time.Hour)
	}
	if cfg.Quota.RateWindow == 0 {
		cfg.Quota.RateWindow = Duration(time.Minute)
	}
	if cfg.Quota.RateCap == 0 {
		cfg.Quota.RateCap = 50
	}

	if cfg.Orchestrator.Concurrency == 0 {
		cfg.Orchestrator.Concurrency = 5
	}
	if cfg.Orchestrator.ItemTimeout == 0 {
		cfg.Orchestrator.ItemTimeout = Duration(30 * time.Second)
	}
	if cfg.Orchestrator.RetryAttempts == 0 {
		cfg.Orchestrator.RetryAttempts = 1
	}

	if cfg.Retention.BatchTTL == 0 {
		cfg.Retention.BatchTTL = Duration(time.Hour)
	}
	if cfg.Retention.SweepInterval == 0 {
		cfg.Retention.SweepInterval = Duration(5 * time.Minute)
	}

	if cfg.Gemini.Model == "" {
		cfg.Gemini.Model = "gemini-2.0-flash"
	}
}
