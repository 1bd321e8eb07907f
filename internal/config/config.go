// ABOUTME: Configuration loading and parsing for tallkotte
// ABOUTME: Supports YAML or TOML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Defaults applied when a field is left empty.
const (
	DefaultHTTPAddr    = "127.0.0.1:8080"
	DefaultModel       = "gpt-4o"
	DefaultDBName      = "tallkotte"
	DefaultCacheTTL    = 24 * time.Hour
	DefaultMaxEntries  = 10000
	DefaultWaitDelay   = 2 * time.Second
	DefaultMaxWait     = 60 * time.Second
	DefaultWorkers     = 5
	DefaultInitMessage = "Hello! Please use the attached files as context for our conversation."
	DefaultMaxUpload   = 32 << 20
)

// Config represents the complete tallkotte configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" toml:"server"`
	OpenAI    OpenAIConfig    `yaml:"openai" toml:"openai"`
	Assistant AssistantConfig `yaml:"assistant" toml:"assistant"`
	Database  DatabaseConfig  `yaml:"database" toml:"database"`
	Cache     CacheConfig     `yaml:"cache" toml:"cache"`
	Runs      RunsConfig      `yaml:"runs" toml:"runs"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`
}

// ServerConfig holds the HTTP listener settings
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr" toml:"http_addr"`
	// UploadDir receives files posted to the thread endpoint.
	UploadDir      string `yaml:"upload_dir" toml:"upload_dir"`
	MaxUploadBytes int64  `yaml:"max_upload_bytes" toml:"max_upload_bytes"`
}

// OpenAIConfig holds credentials for the assistants backend
type OpenAIConfig struct {
	APIKey      string `yaml:"api_key" toml:"api_key"`
	BaseURL     string `yaml:"base_url" toml:"base_url"`
	Model       string `yaml:"model" toml:"model"`
	AssistantID string `yaml:"assistant_id" toml:"assistant_id"`
	// MaxRetries overrides the SDK retry count; unset keeps the SDK default
	// and 0 disables retries.
	MaxRetries *int `yaml:"max_retries" toml:"max_retries"`
}

// AssistantConfig describes the assistant to create when no id is configured
type AssistantConfig struct {
	Name         string   `yaml:"name" toml:"name"`
	Description  string   `yaml:"description" toml:"description"`
	Instructions string   `yaml:"instructions" toml:"instructions"`
	Tools        []string `yaml:"tools" toml:"tools"`
	// InitMessage seeds threads created without an opening message.
	InitMessage string `yaml:"init_message" toml:"init_message"`
}

// DatabaseConfig selects the document store
type DatabaseConfig struct {
	Driver string `yaml:"driver" toml:"driver"` // mongo, sqlite, memory
	URI    string `yaml:"uri" toml:"uri"`
	Name   string `yaml:"name" toml:"name"`
	Path   string `yaml:"path" toml:"path"`
}

// CacheConfig selects the cache store
type CacheConfig struct {
	Driver     string        `yaml:"driver" toml:"driver"` // redis, memory
	Addr       string        `yaml:"addr" toml:"addr"`
	Username   string        `yaml:"username" toml:"username"`
	Password   string        `yaml:"password" toml:"password"`
	DB         int           `yaml:"db" toml:"db"`
	MaxEntries int           `yaml:"max_entries" toml:"max_entries"`
	TTL        time.Duration `yaml:"-" toml:"-"`

	TTLRaw string `yaml:"ttl" toml:"ttl"`
}

// RunsConfig holds run polling and worker settings
type RunsConfig struct {
	Workers   int           `yaml:"workers" toml:"workers"`
	WaitDelay time.Duration `yaml:"-" toml:"-"`
	MaxWait   time.Duration `yaml:"-" toml:"-"`

	// Raw string values for unmarshaling
	WaitDelayRaw string `yaml:"wait_delay" toml:"wait_delay"`
	MaxWaitRaw   string `yaml:"max_wait" toml:"max_wait"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are decoded as TOML, everything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(string(data), filepath.Ext(path))
}

// Parse decodes configuration text. ext selects the format (".toml" or YAML otherwise).
func Parse(data, ext string) (*Config, error) {
	expanded := expandEnvVars(data)

	var cfg Config
	if strings.EqualFold(ext, ".toml") {
		if _, err := toml.Decode(expanded, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

func (c *Config) applyDefaults() {
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = DefaultHTTPAddr
	}
	if c.Server.UploadDir == "" {
		c.Server.UploadDir = filepath.Join(os.TempDir(), "tallkotte", "uploads")
	}
	if c.Server.MaxUploadBytes == 0 {
		c.Server.MaxUploadBytes = DefaultMaxUpload
	}
	if c.OpenAI.Model == "" {
		c.OpenAI.Model = DefaultModel
	}
	if len(c.Assistant.Tools) == 0 {
		c.Assistant.Tools = []string{"file_search"}
	}
	if c.Assistant.InitMessage == "" {
		c.Assistant.InitMessage = DefaultInitMessage
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.Name == "" {
		c.Database.Name = DefaultDBName
	}
	if c.Cache.Driver == "" {
		c.Cache.Driver = "memory"
	}
	if c.Cache.TTLRaw == "" {
		c.Cache.TTL = DefaultCacheTTL
	}
	if c.Cache.MaxEntries == 0 {
		c.Cache.MaxEntries = DefaultMaxEntries
	}
	if c.Runs.Workers == 0 {
		c.Runs.Workers = DefaultWorkers
	}
	if c.Runs.WaitDelay == 0 {
		c.Runs.WaitDelay = DefaultWaitDelay
	}
	if c.Runs.MaxWait == 0 {
		c.Runs.MaxWait = DefaultMaxWait
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.OpenAI.APIKey == "" {
		return fmt.Errorf("openai.api_key is required")
	}
	if c.OpenAI.AssistantID == "" && c.Assistant.Name == "" {
		return fmt.Errorf("openai.assistant_id or assistant.name is required")
	}
	if c.OpenAI.MaxRetries != nil && *c.OpenAI.MaxRetries < 0 {
		return fmt.Errorf("openai.max_retries must not be negative")
	}
	if c.Server.MaxUploadBytes < 0 {
		return fmt.Errorf("server.max_upload_bytes must not be negative")
	}

	switch c.Database.Driver {
	case "mongo":
		if c.Database.URI == "" {
			return fmt.Errorf("database.uri is required for the mongo driver")
		}
	case "sqlite":
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required for the sqlite driver")
		}
	case "memory":
	default:
		return fmt.Errorf("database.driver must be mongo, sqlite or memory, got %q", c.Database.Driver)
	}

	switch c.Cache.Driver {
	case "redis":
		if c.Cache.Addr == "" {
			return fmt.Errorf("cache.addr is required for the redis driver")
		}
	case "memory":
	default:
		return fmt.Errorf("cache.driver must be redis or memory, got %q", c.Cache.Driver)
	}

	if c.Cache.TTL < 0 {
		return fmt.Errorf("cache.ttl must not be negative")
	}
	if c.Runs.Workers < 1 {
		return fmt.Errorf("runs.workers must be at least 1")
	}
	if c.Runs.WaitDelay <= 0 || c.Runs.MaxWait <= 0 {
		return fmt.Errorf("runs.wait_delay and runs.max_wait must be positive")
	}
	if c.Runs.MaxWait < c.Runs.WaitDelay {
		return fmt.Errorf("runs.max_wait must be at least runs.wait_delay")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level)
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Cache.TTLRaw != "" {
		cfg.Cache.TTL, err = time.ParseDuration(cfg.Cache.TTLRaw)
		if err != nil {
			return fmt.Errorf("parsing cache.ttl %q: %w", cfg.Cache.TTLRaw, err)
		}
	}

	if cfg.Runs.WaitDelayRaw != "" {
		cfg.Runs.WaitDelay, err = time.ParseDuration(cfg.Runs.WaitDelayRaw)
		if err != nil {
			return fmt.Errorf("parsing runs.wait_delay %q: %w", cfg.Runs.WaitDelayRaw, err)
		}
	}

	if cfg.Runs.MaxWaitRaw != "" {
		cfg.Runs.MaxWait, err = time.ParseDuration(cfg.Runs.MaxWaitRaw)
		if err != nil {
			return fmt.Errorf("parsing runs.max_wait %q: %w", cfg.Runs.MaxWaitRaw, err)
		}
	}

	return nil
}
