package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/janiskrasemann/vmarket/internal/fetcher"
)

const (
	DefaultPort         = 8000
	DefaultSchedule     = "@every 5s"
	DefaultFetchTimeout = 10 * time.Second
)

type Config struct {
	Port         int            `yaml:"port"`
	Schedule     string         `yaml:"schedule"`
	FetchTimeout time.Duration  `yaml:"fetch_timeout"`
	CORS         CORSConfig     `yaml:"cors"`
	Sources      []SourceConfig `yaml:"sources"`
	Alerts       *AlertConfig   `yaml:"alerts,omitempty"`
	Redis        *RedisConfig   `yaml:"redis,omitempty"`
	Kafka        *KafkaConfig   `yaml:"kafka,omitempty"`
}

type SourceConfig struct {
	ID  string `yaml:"id"`
	URL string `yaml:"url"`
}

type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type AlertConfig struct {
	From         string   `yaml:"from"`
	To           []string `yaml:"to"`
	ResendAPIKey string   `yaml:"resend_api_key"`
	Threshold    int      `yaml:"threshold,omitempty"`
}

type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password,omitempty"`
	DB       int           `yaml:"db,omitempty"`
	Prefix   string        `yaml:"prefix,omitempty"`
	TTL      time.Duration `yaml:"ttl,omitempty"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic,omitempty"`
}

// DefaultSources are the indices served when no sources are configured.
var DefaultSources = []SourceConfig{
	{ID: "BSE-500", URL: "https://www.moneycontrol.com/indian-indices/bse-500-12.html"},
	{ID: "NIFTY-50", URL: "https://www.moneycontrol.com/indian-indices/nifty-50-9.html"},
	{ID: "SENSEX", URL: "https://www.moneycontrol.com/indian-indices/sensex-4.html"},
}

// Default returns the built-in configuration, with PORT applied.
func Default() (*Config, error) {
	var cfg Config
	if err := cfg.finish(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := strings.TrimSuffix(strings.TrimPrefix(string(match), "${"), "}")

		// Support ${VAR:-default} syntax
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		if val, ok := os.LookupEnv(varName); ok {
			return []byte(val)
		}
		if hasDefault {
			return []byte(defaultVal)
		}
		return match
	})
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.finish(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrDefault loads path, falling back to Default when path is empty or
// the file does not exist. The bool reports whether the file was used.
func LoadOrDefault(path string) (*Config, bool, error) {
	if path == "" {
		cfg, err := Default()
		return cfg, false, err
	}
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		cfg, err := Default()
		return cfg, false, err
	}
	if err != nil {
		return nil, false, err
	}
	return cfg, true, nil
}

func (c *Config) finish() error {
	if err := c.applyEnv(); err != nil {
		return err
	}
	c.applyDefaults()
	return c.Validate()
}

func (c *Config) applyEnv() error {
	raw, ok := os.LookupEnv("PORT")
	if !ok || strings.TrimSpace(raw) == "" {
		return nil
	}
	port, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid PORT %q: %w", raw, err)
	}
	c.Port = port
	return nil
}

func (c *Config) applyDefaults() {
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.Schedule == "" {
		c.Schedule = DefaultSchedule
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = DefaultFetchTimeout
	}
	if len(c.CORS.AllowedOrigins) == 0 {
		c.CORS.AllowedOrigins = []string{"*"}
	}
	if len(c.Sources) == 0 {
		c.Sources = append([]SourceConfig(nil), DefaultSources...)
	}
}

func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}

	seen := make(map[string]bool, len(c.Sources))
	for i, src := range c.Sources {
		if strings.TrimSpace(src.ID) == "" {
			return fmt.Errorf("sources[%d]: id is required", i)
		}
		if strings.TrimSpace(src.URL) == "" {
			return fmt.Errorf("sources[%d] (%s): url is required", i, src.ID)
		}
		if seen[src.ID] {
			return fmt.Errorf("sources[%d]: duplicate id %q", i, src.ID)
		}
		seen[src.ID] = true
	}

	if a := c.Alerts; a != nil {
		if a.From == "" || len(a.To) == 0 {
			return fmt.Errorf("alerts: from and to are required")
		}
		if a.ResendAPIKey == "" {
			return fmt.Errorf("alerts: resend_api_key is required")
		}
	}
	if c.Redis != nil && c.Redis.Addr == "" {
		return fmt.Errorf("redis: addr is required")
	}
	if c.Kafka != nil && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka: at least one broker is required")
	}
	return nil
}

// FetchSources converts the configured sources into fetcher sources.
func (c *Config) FetchSources() []fetcher.Source {
	out := make([]fetcher.Source, len(c.Sources))
	for i, s := range c.Sources {
		out[i] = fetcher.Source{ID: s.ID, URL: s.URL}
	}
	return out
}

// SourceIDs returns the configured IDs in order.
func (c *Config) SourceIDs() []string {
	out := make([]string, len(c.Sources))
	for i, s := range c.Sources {
		out[i] = s.ID
	}
	return out
}

func (c *Config) Addr() string {
	return fmt.Sprintf("0.0.0.0:%d", c.Port)
}
