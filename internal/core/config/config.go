package config

import (
	"fmt"
	"time"

	redisclient "github.com/querl369/adobe-stock-uploader-sub000/internal/infra/redis"
)

// Duration wraps time.Duration so YAML can say "30s" or "1h".
type Duration time.Duration

// UnmarshalYAML accepts either a Go duration string or an integer number of
// nanoseconds.
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err == nil {
		v, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(v)
		return nil
	}
	var n int64
	if err := unmarshal(&n); err != nil {
		return fmt.Errorf("duration must be a string or integer")
	}
	*d = Duration(n)
	return nil
}

// Std returns the standard library duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server       ServerConfig       `yaml:"server"`
	Logging      LoggingConfig      `yaml:"logging"`
	Quota        QuotaConfig        `yaml:"quota"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	Retention    RetentionConfig    `yaml:"retention"`
	Gemini       GeminiConfig       `yaml:"gemini"`
	Redis        redisclient.Config `yaml:"redis"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// QuotaConfig holds session-quota and origin-rate limits.
type QuotaConfig struct {
	SessionLimit     int      `yaml:"session_limit"`
	InactivityWindow Duration `yaml:"inactivity_window"`
	RateWindow       Duration `yaml:"rate_window"`
	RateCap          int      `yaml:"rate_cap"`
}

// OrchestratorConfig holds worker-pool settings.
type OrchestratorConfig struct {
	Concurrency   int      `yaml:"concurrency"`
	ItemTimeout   Duration `yaml:"item_timeout"`
	RetryAttempts int      `yaml:"retry_attempts"`
	AbortOnError  bool     `yaml:"abort_on_error"`
}

// RetentionConfig holds sweep timing.
type RetentionConfig struct {
	BatchTTL      Duration `yaml:"batch_ttl"`
	SweepInterval Duration `yaml:"sweep_interval"`
}

// GeminiConfig holds the metadata provider settings. The API key comes from
// the GEMINI_API_KEY environment variable, never from the file.
type GeminiConfig struct {
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
}
