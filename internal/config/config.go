package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type LogConfig struct {
	Level    string `yaml:"level" env:"LOG_LEVEL"`   // trace|debug|info|warn|error
	Format   string `yaml:"format" env:"LOG_FORMAT"` // json|console
	Sampling bool   `yaml:"sampling"`                // enable sampling in prod
}

type HTTPConfig struct {
	Port           int           `yaml:"port" env:"HTTP_PORT"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	// WriteRateLimit caps write calls per client per minute. Needs Redis; 0 disables.
	WriteRateLimit int `yaml:"write_rate_limit"`
}

// DatabaseConfig points at Postgres. An empty URL keeps jobs and logs in memory.
type DatabaseConfig struct {
	URL      string `yaml:"url" env:"DATABASE_URL"`
	MaxConns int32  `yaml:"max_conns"`
}

// RedisConfig enables the cross-process job lock and the job cache when URL is set.
type RedisConfig struct {
	URL      string        `yaml:"url" env:"REDIS_URL"`
	Password string        `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
	LockTTL  time.Duration `yaml:"lock_ttl"`
}

type SyncConfig struct {
	DefaultMaxRetries int           `yaml:"default_max_retries"`
	PollInterval      time.Duration `yaml:"poll_interval"`
	OverdueAfter      time.Duration `yaml:"overdue_after"`
	Workers           int           `yaml:"workers"`    // sync runner workers
	BatchSize         int           `yaml:"batch_size"` // records pulled per source call
	// AutoRequeueAfter requeues jobs left in retry by the runner. 0 leaves them for an admin.
	AutoRequeueAfter time.Duration `yaml:"auto_requeue_after"`
	// Schedules maps object types to cron specs, e.g. agenda: "*/15 * * * *".
	Schedules map[string]string `yaml:"schedules"`
}

// SourceConfig selects where the runner pulls records from.
type SourceConfig struct {
	Kind        string            `yaml:"kind"` // static|wordpress
	BaseURL     string            `yaml:"base_url" env:"WORDPRESS_URL"`
	User        string            `yaml:"user" env:"WORDPRESS_USER"`
	AppPassword string            `yaml:"app_password" env:"WORDPRESS_APP_PASSWORD"`
	Timeout     time.Duration     `yaml:"timeout"`
	Routes      map[string]string `yaml:"routes"` // object type -> wp/v2 collection
	// Counts seeds the static source.
	Counts map[string]int `yaml:"counts"`
}

type Config struct {
	Log      LogConfig      `yaml:"log"`
	HTTP     HTTPConfig     `yaml:"http"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Sync     SyncConfig     `yaml:"sync"`
	Source   SourceConfig   `yaml:"source"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig reads the YAML file at path and applies defaults.
func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(b)
	if err != nil {
		return nil, err
	}
	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	cfg.Runtime.Dev = dev
	return cfg, nil
}

// EnvPrefix namespaces environment overrides: SYNC_DATABASE_URL, SYNC_REDIS_URL, ...
const EnvPrefix = "SYNC_"

// ApplyEnv overlays SYNC_* environment variables on cfg. Unset variables
// leave the file values alone.
func ApplyEnv(cfg *Config) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return err
	}
	return nil
}

// Parse decodes raw YAML, applies defaults and validates.
func Parse(b []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

func (c *Config) applyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.HTTP.Port == 0 {
		c.HTTP.Port = 8080
	}
	if c.HTTP.RequestTimeout <= 0 {
		c.HTTP.RequestTimeout = 10 * time.Second
	}
	if c.Database.MaxConns <= 0 {
		c.Database.MaxConns = 10
	}
	c.Redis.TTL = normalizeTTL(c.Redis.TTL, time.Minute)
	c.Redis.LockTTL = normalizeTTL(c.Redis.LockTTL, 5*time.Second)
	if c.Sync.DefaultMaxRetries == 0 {
		c.Sync.DefaultMaxRetries = 3
	}
	if c.Sync.PollInterval <= 0 {
		c.Sync.PollInterval = 3 * time.Second
	}
	if c.Sync.OverdueAfter <= 0 {
		c.Sync.OverdueAfter = 15 * time.Minute
	}
	if c.Sync.Workers <= 0 {
		c.Sync.Workers = 4
	}
	if c.Sync.BatchSize <= 0 {
		c.Sync.BatchSize = 10
	}
	if c.Source.Kind == "" {
		c.Source.Kind = "static"
	}
	if c.Source.Timeout <= 0 {
		c.Source.Timeout = 15 * time.Second
	}
}

// Minimal validation
func (c *Config) validate() error {
	if c.HTTP.Port < 0 || c.HTTP.Port > 65535 {
		return errors.New("http.port out of range")
	}
	if c.HTTP.WriteRateLimit < 0 {
		return errors.New("http.write_rate_limit must not be negative")
	}
	if c.Sync.DefaultMaxRetries < 0 {
		return errors.New("sync.default_max_retries must not be negative")
	}
	switch c.Source.Kind {
	case "static":
	case "wordpress":
		if c.Source.BaseURL == "" {
			return errors.New("source.base_url is required for the wordpress source")
		}
	default:
		return fmt.Errorf("unknown source.kind %q", c.Source.Kind)
	}
	return nil
}

func normalizeTTL(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}
