package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config describes runtime settings loaded from an optional YAML file and
// environment variables. Environment variables win over the file.
type Config struct {
	Port           string        `env:"PORT" envDefault:"8080"`
	ProbeTimeout   time.Duration `env:"PROBE_TIMEOUT" envDefault:"10s"`
	MaxConcurrency int           `env:"MAX_CONCURRENCY" envDefault:"0"`
	MaxBookmarks   int           `env:"MAX_BOOKMARKS" envDefault:"5000"`
	MaxUploadBytes int64         `env:"MAX_UPLOAD_BYTES" envDefault:"10485760"`
	RunCapacity    int           `env:"RUN_CAPACITY" envDefault:"100"`
	RateLimitRPS   float64       `env:"RATE_LIMIT_RPS" envDefault:"2"`
	RateLimitBurst int           `env:"RATE_LIMIT_BURST" envDefault:"5"`
	RateLimitTTL   time.Duration `env:"RATE_LIMIT_TTL" envDefault:"10m"`
	UserAgent      string        `env:"USER_AGENT"`
	LogLevel       string        `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat      string        `env:"LOG_FORMAT" envDefault:"text"`

	// TrustProxyHeaders makes the limiter key clients by X-Forwarded-For/X-Real-IP.
	// Enable only behind a proxy that overwrites them.
	TrustProxyHeaders bool `env:"TRUST_PROXY_HEADERS" envDefault:"false"`
}

func Default() *Config {
	return &Config{
		Port:           "8080",
		ProbeTimeout:   10 * time.Second,
		MaxBookmarks:   5000,
		MaxUploadBytes: 10 << 20,
		RunCapacity:    100,
		RateLimitRPS:   2,
		RateLimitBurst: 5,
		RateLimitTTL:   10 * time.Minute,
		LogLevel:       "info",
		LogFormat:      "text",
	}
}

// Load reads configuration from CONFIG_FILE (if set) and environment
// variables, applying defaults when necessary.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if port := os.Getenv("PORT"); port != "" {
		cfg.Port = port
	}

	if probeTimeout := os.Getenv("PROBE_TIMEOUT"); probeTimeout != "" {
		dur, err := time.ParseDuration(probeTimeout)
		if err != nil {
			return nil, fmt.Errorf("parse PROBE_TIMEOUT: %w", err)
		}
		cfg.ProbeTimeout = dur
	}

	if maxConcurrency := os.Getenv("MAX_CONCURRENCY"); maxConcurrency != "" {
		value, err := strconv.Atoi(maxConcurrency)
		if err != nil {
			return nil, fmt.Errorf("parse MAX_CONCURRENCY: %w", err)
		}
		cfg.MaxConcurrency = value
	}

	if maxBookmarks := os.Getenv("MAX_BOOKMARKS"); maxBookmarks != "" {
		value, err := strconv.Atoi(maxBookmarks)
		if err != nil {
			return nil, fmt.Errorf("parse MAX_BOOKMARKS: %w", err)
		}
		cfg.MaxBookmarks = value
	}

	if maxUpload := os.Getenv("MAX_UPLOAD_BYTES"); maxUpload != "" {
		value, err := strconv.ParseInt(maxUpload, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse MAX_UPLOAD_BYTES: %w", err)
		}
		cfg.MaxUploadBytes = value
	}

	if runCapacity := os.Getenv("RUN_CAPACITY"); runCapacity != "" {
		value, err := strconv.Atoi(runCapacity)
		if err != nil {
			return nil, fmt.Errorf("parse RUN_CAPACITY: %w", err)
		}
		cfg.RunCapacity = value
	}

	if rps := os.Getenv("RATE_LIMIT_RPS"); rps != "" {
		value, err := strconv.ParseFloat(rps, 64)
		if err != nil {
			return nil, fmt.Errorf("parse RATE_LIMIT_RPS: %w", err)
		}
		cfg.RateLimitRPS = value
	}

	if burst := os.Getenv("RATE_LIMIT_BURST"); burst != "" {
		value, err := strconv.Atoi(burst)
		if err != nil {
			return nil, fmt.Errorf("parse RATE_LIMIT_BURST: %w", err)
		}
		cfg.RateLimitBurst = value
	}

	if ttl := os.Getenv("RATE_LIMIT_TTL"); ttl != "" {
		dur, err := time.ParseDuration(ttl)
		if err != nil {
			return nil, fmt.Errorf("parse RATE_LIMIT_TTL: %w", err)
		}
		cfg.RateLimitTTL = dur
	}

	if trust := os.Getenv("TRUST_PROXY_HEADERS"); trust != "" {
		value, err := strconv.ParseBool(trust)
		if err != nil {
			return nil, fmt.Errorf("parse TRUST_PROXY_HEADERS: %w", err)
		}
		cfg.TrustProxyHeaders = value
	}

	if ua := os.Getenv("USER_AGENT"); ua != "" {
		cfg.UserAgent = ua
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}

	if format := os.Getenv("LOG_FORMAT"); format != "" {
		cfg.LogFormat = format
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// fileConfig mirrors Config with string durations so the YAML file can use
// the same "10s" notation as the environment.
type fileConfig struct {
	Port           *string  `yaml:"port"`
	ProbeTimeout   *string  `yaml:"probe_timeout"`
	MaxConcurrency *int     `yaml:"max_concurrency"`
	MaxBookmarks   *int     `yaml:"max_bookmarks"`
	MaxUploadBytes *int64   `yaml:"max_upload_bytes"`
	RunCapacity    *int     `yaml:"run_capacity"`
	RateLimitRPS   *float64 `yaml:"rate_limit_rps"`
	RateLimitBurst *int     `yaml:"rate_limit_burst"`
	RateLimitTTL   *string  `yaml:"rate_limit_ttl"`
	TrustProxy     *bool    `yaml:"trust_proxy_headers"`
	UserAgent      *string  `yaml:"user_agent"`
	LogLevel       *string  `yaml:"log_level"`
	LogFormat      *string  `yaml:"log_format"`
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read CONFIG_FILE: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse CONFIG_FILE: %w", err)
	}

	if fc.Port != nil {
		c.Port = *fc.Port
	}
	if fc.ProbeTimeout != nil {
		dur, err := time.ParseDuration(*fc.ProbeTimeout)
		if err != nil {
			return fmt.Errorf("parse probe_timeout: %w", err)
		}
		c.ProbeTimeout = dur
	}
	if fc.MaxConcurrency != nil {
		c.MaxConcurrency = *fc.MaxConcurrency
	}
	if fc.MaxBookmarks != nil {
		c.MaxBookmarks = *fc.MaxBookmarks
	}
	if fc.MaxUploadBytes != nil {
		c.MaxUploadBytes = *fc.MaxUploadBytes
	}
	if fc.RunCapacity != nil {
		c.RunCapacity = *fc.RunCapacity
	}
	if fc.RateLimitRPS != nil {
		c.RateLimitRPS = *fc.RateLimitRPS
	}
	if fc.RateLimitBurst != nil {
		c.RateLimitBurst = *fc.RateLimitBurst
	}
	if fc.RateLimitTTL != nil {
		dur, err := time.ParseDuration(*fc.RateLimitTTL)
		if err != nil {
			return fmt.Errorf("parse rate_limit_ttl: %w", err)
		}
		c.RateLimitTTL = dur
	}
	if fc.TrustProxy != nil {
		c.TrustProxyHeaders = *fc.TrustProxy
	}
	if fc.UserAgent != nil {
		c.UserAgent = *fc.UserAgent
	}
	if fc.LogLevel != nil {
		c.LogLevel = *fc.LogLevel
	}
	if fc.LogFormat != nil {
		c.LogFormat = *fc.LogFormat
	}
	return nil
}

func (c *Config) validate() error {
	var errs []error
	if c.ProbeTimeout <= 0 {
		errs = append(errs, errors.New("probe timeout must be positive"))
	}
	if c.MaxConcurrency < 0 {
		errs = append(errs, errors.New("max concurrency must not be negative"))
	}
	if c.MaxBookmarks <= 0 {
		errs = append(errs, errors.New("max bookmarks must be positive"))
	}
	if c.MaxUploadBytes <= 0 {
		errs = append(errs, errors.New("max upload bytes must be positive"))
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q", c.LogFormat))
	}
	return errors.Join(errs...)
}
