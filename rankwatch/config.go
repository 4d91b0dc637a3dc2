package rankwatch

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/rankcap/rankwatch/internal/fetch"
	"github.com/hazyhaar/rankcap/rankwatch/internal/source"
)

// Environment variables read by ApplyEnv and the CLI.
const (
	EnvConfig = "RANKWATCH_CONFIG"
	EnvDB     = "RANKWATCH_DB"
)

// Config is the top-level rankwatch configuration.
type Config struct {
	Sources  []SourceConfig `yaml:"sources"`
	Fetch    FetchConfig    `yaml:"fetch"`
	Browser  BrowserConfig  `yaml:"browser"`
	Schedule ScheduleConfig `yaml:"schedule"`
	Store    StoreConfig    `yaml:"store"`
	HTTP     HTTPConfig     `yaml:"http"`
	Sinks    []SinkConfig   `yaml:"sinks"`
}

// SourceConfig describes one ranking page.
type SourceConfig struct {
	ID       string `yaml:"id"`
	BaseURL  string `yaml:"base_url"`
	ListPath string `yaml:"list_path"`
	Offset   string `yaml:"offset"` // "+09:00", "+0900", "-05:30"
	// Paused sources are skipped by the scheduler but can be collected on demand.
	Paused bool `yaml:"paused"`
}

// FetchConfig controls how pages are retrieved.
type FetchConfig struct {
	Mode             string      `yaml:"mode"` // rendered | http | fallback | auto
	TimeoutMs        int         `yaml:"timeout_ms"`
	Retry            RetryConfig `yaml:"retry"`
	UserAgent        string      `yaml:"user_agent"`
	CloudflareBypass bool        `yaml:"cloudflare_bypass"`
	ReadySelector    string      `yaml:"ready_selector"`
}

// RetryConfig is the retry budget shared by both fetchers.
type RetryConfig struct {
	MaxAttempts int `yaml:"max_attempts"`
	// BackoffMs defaults to 500 when absent; zero or negative means no sleep.
	BackoffMs *int `yaml:"backoff_ms"`
}

func (r RetryConfig) backoff() time.Duration {
	if r.BackoffMs == nil || *r.BackoffMs <= 0 {
		return 0
	}
	return time.Duration(*r.BackoffMs) * time.Millisecond
}

// BrowserConfig controls Chrome launches.
type BrowserConfig struct {
	Bin              string   `yaml:"bin"`
	NoSandbox        bool     `yaml:"no_sandbox"`
	Stealth          *bool    `yaml:"stealth"`
	ResourceBlocking []string `yaml:"resource_blocking"`
}

// ScheduleConfig controls periodic collection.
type ScheduleConfig struct {
	Interval time.Duration `yaml:"interval"`
	// InitialDelay defaults to 10s; a negative value runs immediately.
	InitialDelay time.Duration `yaml:"initial_delay"`
	// Cron replaces Interval with a standard cron expression.
	Cron string `yaml:"cron"`
}

// StoreConfig locates the SQLite database.
type StoreConfig struct {
	Path          string `yaml:"path"`
	BusyTimeoutMs int    `yaml:"busy_timeout_ms"`
}

// HTTPConfig controls the admin API listener.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// SinkConfig defines an output backend.
type SinkConfig struct {
	Type string `yaml:"type"` // stdout | webhook | redis | kafka

	// webhook
	URL     string            `yaml:"url"`
	Headers map[string]string `yaml:"headers"`
	Retries int               `yaml:"retries"`

	// redis
	Addr      string        `yaml:"addr"`
	Password  string        `yaml:"password"`
	DB        int           `yaml:"db"`
	Channel   string        `yaml:"channel"`
	LatestTTL time.Duration `yaml:"latest_ttl"`

	// kafka
	Brokers string `yaml:"brokers"`
	Topic   string `yaml:"topic"`
}

func (c *Config) applyDefaults() {
	if c.Fetch.Mode == "" {
		c.Fetch.Mode = string(fetch.ModeRendered)
	}
	if c.Fetch.TimeoutMs <= 0 {
		c.Fetch.TimeoutMs = 5000
	}
	if c.Fetch.Retry.MaxAttempts <= 0 {
		c.Fetch.Retry.MaxAttempts = 2
	}
	if c.Fetch.Retry.BackoffMs == nil {
		ms := 500
		c.Fetch.Retry.BackoffMs = &ms
	}
	if c.Browser.Stealth == nil {
		on := true
		c.Browser.Stealth = &on
	}
	if c.Browser.ResourceBlocking == nil {
		c.Browser.ResourceBlocking = []string{"images", "fonts", "media"}
	}
	if c.Schedule.Interval <= 0 && c.Schedule.Cron == "" {
		c.Schedule.Interval = 10 * time.Minute
	}
	if c.Schedule.InitialDelay == 0 {
		c.Schedule.InitialDelay = 10 * time.Second
	}
	if c.Store.Path == "" {
		c.Store.Path = "rankwatch.db"
	}
	if c.Store.BusyTimeoutMs <= 0 {
		c.Store.BusyTimeoutMs = 10_000
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8090"
	}
}

// ApplyEnv overrides file settings from the environment.
func (c *Config) ApplyEnv() {
	if v := os.Getenv(EnvDB); v != "" {
		c.Store.Path = v
	}
}

// Validate fails fast on sources, modes and sinks that cannot work.
func (c *Config) Validate() error {
	var errs []error
	if len(c.Sources) == 0 {
		errs = append(errs, errors.New("config: no sources"))
	}
	if _, err := c.registry(); err != nil {
		errs = append(errs, fmt.Errorf("config: %w", err))
	}
	if _, err := fetch.ParseMode(c.Fetch.Mode); err != nil {
		errs = append(errs, fmt.Errorf("config: %w", err))
	}
	for i, s := range c.Sinks {
		if err := s.validate(); err != nil {
			errs = append(errs, fmt.Errorf("config: sinks[%d]: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

func (s SinkConfig) validate() error {
	switch strings.ToLower(s.Type) {
	case "stdout":
	case "webhook":
		if s.URL == "" {
			return errors.New("webhook requires url")
		}
	case "redis":
		if s.Addr == "" {
			return errors.New("redis requires addr")
		}
	case "kafka":
		if s.Brokers == "" {
			return errors.New("kafka requires brokers")
		}
	default:
		return fmt.Errorf("unknown sink type %q", s.Type)
	}
	return nil
}

// registry builds the source registry; it fails on malformed or duplicate sources.
func (c *Config) registry() (*source.Registry, error) {
	configs := make([]source.Config, 0, len(c.Sources))
	for _, s := range c.Sources {
		sc, err := source.New(s.ID, s.BaseURL, s.ListPath, s.Offset)
		if err != nil {
			return nil, err
		}
		configs = append(configs, sc)
	}
	return source.NewRegistry(configs...)
}

// scheduled returns the ids of unpaused sources in configuration order.
func (c *Config) scheduled() []string {
	ids := make([]string, 0, len(c.Sources))
	for _, s := range c.Sources {
		if !s.Paused {
			ids = append(ids, s.ID)
		}
	}
	return ids
}

// ParseConfig decodes YAML, applies defaults and validates.
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadConfigFile reads path, applies the environment overrides and validates.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.applyDefaults()
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
