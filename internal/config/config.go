package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ProviderType identifies which transport adapter serves a provider.
type ProviderType string

const (
	ProviderTypeOpenAI    ProviderType = "openai"
	ProviderTypeAnthropic ProviderType = "anthropic"
	ProviderTypeGemini    ProviderType = "gemini"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Router     RouterConfig     `yaml:"router"`
	Providers  []ProviderConfig `yaml:"providers"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Ledger     LedgerConfig     `yaml:"ledger"`
	Probe      ProbeConfig      `yaml:"probe"`
}

type ServerConfig struct {
	Port            int    `yaml:"port"`
	LoggingLevel    string `yaml:"logging_level"`
	HealthCheckPath string `yaml:"health_check_path"`
}

// RouterConfig holds fallback and failure-isolation tuning.
type RouterConfig struct {
	DefaultStrategy     string        `yaml:"default_strategy"`
	MaxProviderAttempts int           `yaml:"max_provider_attempts"`
	PerAttemptTimeout   time.Duration `yaml:"-"`
	FailureThreshold    int           `yaml:"failure_threshold"`
	Cooldown            time.Duration `yaml:"-"`
	CooldownMax         time.Duration `yaml:"-"`
	HealthWindowSize    int           `yaml:"health_window_size"`
}

type ProviderConfig struct {
	ID                   string       `yaml:"id"`
	DisplayName          string       `yaml:"display_name"`
	Type                 ProviderType `yaml:"type"`
	Endpoint             string       `yaml:"endpoint"`
	Model                string       `yaml:"model"`
	CredentialEnvVar     string       `yaml:"credential_env_var"`
	Priority             int          `yaml:"priority"`
	CostPer1KTokens      float64      `yaml:"cost_per_1k_tokens"`
	DeclaredQualityScore float64      `yaml:"declared_quality_score"`
	MaxRequestsPerMinute int          `yaml:"max_requests_per_minute"`
	Enabled              bool         `yaml:"enabled"`

	// Gemini-on-Vertex only: GCP project/location when the credential env var
	// holds service-account JSON instead of an API key.
	Project  string `yaml:"project"`
	Location string `yaml:"location"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
}

type LedgerConfig struct {
	RecentResults int            `yaml:"recent_results"`
	Postgres      PostgresConfig `yaml:"postgres"`
}

// PostgresConfig configures the optional batched Postgres sink for the
// usage ledger. DatabaseURLEnvVar names an environment variable so the
// connection string (which carries a password) never lives in the file.
type PostgresConfig struct {
	Enabled           bool          `yaml:"enabled"`
	DatabaseURLEnvVar string        `yaml:"database_url_env_var"`
	QueueSize         int           `yaml:"queue_size"`
	BatchSize         int           `yaml:"batch_size"`
	FlushInterval     time.Duration `yaml:"-"`
}

type ProbeConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"-"`
	Workers  int           `yaml:"workers"`
}

// UnmarshalYAML implements custom unmarshaling for RouterConfig so durations
// can be written as "30s" / "2m" in the file.
func (r *RouterConfig) UnmarshalYAML(value *yaml.Node) error {
	type tempConfig struct {
		DefaultStrategy     string `yaml:"default_strategy"`
		MaxProviderAttempts int    `yaml:"max_provider_attempts"`
		PerAttemptTimeout   string `yaml:"per_attempt_timeout"`
		FailureThreshold    int    `yaml:"failure_threshold"`
		Cooldown            string `yaml:"cooldown"`
		CooldownMax         string `yaml:"cooldown_max"`
		HealthWindowSize    int    `yaml:"health_window_size"`
	}

	var temp tempConfig
	if err := value.Decode(&temp); err != nil {
		return err
	}

	r.DefaultStrategy = temp.DefaultStrategy
	r.MaxProviderAttempts = temp.MaxProviderAttempts
	r.FailureThreshold = temp.FailureThreshold
	r.HealthWindowSize = temp.HealthWindowSize

	var err error
	if r.PerAttemptTimeout, err = parseOptionalDuration(temp.PerAttemptTimeout, "per_attempt_timeout"); err != nil {
		return err
	}
	if r.Cooldown, err = parseOptionalDuration(temp.Cooldown, "cooldown"); err != nil {
		return err
	}
	if r.CooldownMax, err = parseOptionalDuration(temp.CooldownMax, "cooldown_max"); err != nil {
		return err
	}
	return nil
}

// UnmarshalYAML parses flush_interval from a duration string.
func (p *PostgresConfig) UnmarshalYAML(value *yaml.Node) error {
	type tempConfig struct {
		Enabled           bool   `yaml:"enabled"`
		DatabaseURLEnvVar string `yaml:"database_url_env_var"`
		QueueSize         int    `yaml:"queue_size"`
		BatchSize         int    `yaml:"batch_size"`
		FlushInterval     string `yaml:"flush_interval"`
	}

	var temp tempConfig
	if err := value.Decode(&temp); err != nil {
		return err
	}

	p.Enabled = temp.Enabled
	p.DatabaseURLEnvVar = temp.DatabaseURLEnvVar
	p.QueueSize = temp.QueueSize
	p.BatchSize = temp.BatchSize

	var err error
	p.FlushInterval, err = parseOptionalDuration(temp.FlushInterval, "flush_interval")
	return err
}

// UnmarshalYAML parses interval from a duration string.
func (p *ProbeConfig) UnmarshalYAML(value *yaml.Node) error {
	type tempConfig struct {
		Enabled  bool   `yaml:"enabled"`
		Interval string `yaml:"interval"`
		Workers  int    `yaml:"workers"`
	}

	var temp tempConfig
	if err := value.Decode(&temp); err != nil {
		return err
	}

	p.Enabled = temp.Enabled
	p.Workers = temp.Workers

	var err error
	p.Interval, err = parseOptionalDuration(temp.Interval, "interval")
	return err
}

func parseOptionalDuration(s, field string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", field, err)
	}
	return d, nil
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.Normalize()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// Normalize fills defaults and cleans up configuration values.
func (c *Config) Normalize() {
	if c.Server.LoggingLevel == "" {
		c.Server.LoggingLevel = "info"
	}
	if c.Server.HealthCheckPath == "" {
		c.Server.HealthCheckPath = "/health"
	}

	if c.Router.DefaultStrategy == "" {
		c.Router.DefaultStrategy = "quality_first"
	}
	if c.Router.MaxProviderAttempts <= 0 {
		c.Router.MaxProviderAttempts = 3
	}
	if c.Router.PerAttemptTimeout <= 0 {
		c.Router.PerAttemptTimeout = 30 * time.Second
	}
	if c.Router.FailureThreshold <= 0 {
		c.Router.FailureThreshold = 5
	}
	if c.Router.Cooldown <= 0 {
		c.Router.Cooldown = 60 * time.Second
	}
	if c.Router.CooldownMax <= 0 {
		c.Router.CooldownMax = 600 * time.Second
	}
	if c.Router.HealthWindowSize <= 0 {
		c.Router.HealthWindowSize = 50
	}

	if c.Ledger.RecentResults <= 0 {
		c.Ledger.RecentResults = 1024
	}
	if c.Ledger.Postgres.QueueSize <= 0 {
		c.Ledger.Postgres.QueueSize = 1000
	}
	if c.Ledger.Postgres.BatchSize <= 0 {
		c.Ledger.Postgres.BatchSize = 100
	}
	if c.Ledger.Postgres.FlushInterval <= 0 {
		c.Ledger.Postgres.FlushInterval = 5 * time.Second
	}

	if c.Probe.Interval <= 0 {
		c.Probe.Interval = 30 * time.Second
	}
	if c.Probe.Workers <= 0 {
		c.Probe.Workers = 4
	}

	// Trim trailing slashes so adapters can join paths predictably.
	for i := range c.Providers {
		c.Providers[i].Endpoint = strings.TrimSuffix(c.Providers[i].Endpoint, "/")
	}
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}

	validLevels := map[string]bool{"info": true, "debug": true, "error": true}
	if !validLevels[c.Server.LoggingLevel] {
		return fmt.Errorf("invalid logging_level: %s (must be info, debug, or error)", c.Server.LoggingLevel)
	}

	validStrategies := map[string]bool{"quality_first": true, "speed_first": true, "cost_optimized": true}
	if !validStrategies[c.Router.DefaultStrategy] {
		return fmt.Errorf("invalid default_strategy: %s", c.Router.DefaultStrategy)
	}

	if len(c.Providers) == 0 {
		return fmt.Errorf("no providers configured")
	}

	seen := make(map[string]bool, len(c.Providers))
	for i, p := range c.Providers {
		if p.ID == "" {
			return fmt.Errorf("provider %d: id is required", i)
		}
		if seen[p.ID] {
			return fmt.Errorf("provider %s: duplicate id", p.ID)
		}
		seen[p.ID] = true

		switch p.Type {
		case ProviderTypeOpenAI, ProviderTypeAnthropic, ProviderTypeGemini:
		default:
			return fmt.Errorf("provider %s: unknown type: %s", p.ID, p.Type)
		}

		if p.Endpoint == "" {
			return fmt.Errorf("provider %s: endpoint is required", p.ID)
		}
		parsedURL, err := url.Parse(p.Endpoint)
		if err != nil {
			return fmt.Errorf("provider %s: invalid endpoint: %w", p.ID, err)
		}
		if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
			return fmt.Errorf("provider %s: endpoint must use http or https scheme, got: %s", p.ID, parsedURL.Scheme)
		}
		if parsedURL.Host == "" {
			return fmt.Errorf("provider %s: endpoint must have a host", p.ID)
		}

		if p.Model == "" {
			return fmt.Errorf("provider %s: model is required", p.ID)
		}
		if p.CredentialEnvVar == "" {
			return fmt.Errorf("provider %s: credential_env_var is required", p.ID)
		}
		if p.CostPer1KTokens < 0 {
			return fmt.Errorf("provider %s: cost_per_1k_tokens must not be negative", p.ID)
		}
		if p.DeclaredQualityScore < 0 || p.DeclaredQualityScore > 1 {
			return fmt.Errorf("provider %s: declared_quality_score must be in [0, 1], got %v", p.ID, p.DeclaredQualityScore)
		}
		if p.MaxRequestsPerMinute <= 0 {
			return fmt.Errorf("provider %s: invalid max_requests_per_minute: %d", p.ID, p.MaxRequestsPerMinute)
		}
	}

	if c.Ledger.Postgres.Enabled && c.Ledger.Postgres.DatabaseURLEnvVar == "" {
		return fmt.Errorf("ledger.postgres.database_url_env_var is required when the postgres sink is enabled")
	}

	return nil
}

// EnabledProviders returns only the providers with enabled: true.
func (c *Config) EnabledProviders() []ProviderConfig {
	out := make([]ProviderConfig, 0, len(c.Providers))
	for _, p := range c.Providers {
		if p.Enabled {
			out = append(out, p)
		}
	}
	return out
}
