// Package config provides configuration management for flow.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	// DefaultServerPort is the default HTTP port of the local hook server.
	DefaultServerPort = 9007

	// DefaultBufferSize is the default number of events kept in memory.
	DefaultBufferSize = 100

	// DefaultHookCommand is the command written into settings files.
	DefaultHookCommand = "flow hooks report"

	// EnvPrefix prefixes every environment override (FLOW_SERVER_PORT, ...).
	EnvPrefix = "FLOW"
)

// Config holds the application configuration.
type Config struct {
	ServerPort  int           `mapstructure:"server_port" yaml:"server_port" json:"server_port"`
	BufferSize  int           `mapstructure:"buffer_size" yaml:"buffer_size" json:"buffer_size"`
	LogLevel    string        `mapstructure:"log_level" yaml:"log_level" json:"log_level"`
	HookCommand string        `mapstructure:"hook_command" yaml:"hook_command" json:"hook_command"`
	Forward     ForwardConfig `mapstructure:"forward" yaml:"forward" json:"forward"`
	History     HistoryConfig `mapstructure:"history" yaml:"history" json:"history"`
}

// ForwardConfig configures the outbound HTTP sink. An empty URL disables it.
type ForwardConfig struct {
	URL        string            `mapstructure:"url" yaml:"url" json:"url"`
	Headers    map[string]string `mapstructure:"headers" yaml:"headers" json:"headers"`
	Timeout    time.Duration     `mapstructure:"timeout" yaml:"timeout" json:"timeout"`
	RetryCount int               `mapstructure:"retry_count" yaml:"retry_count" json:"retry_count"`
	Redact     bool              `mapstructure:"redact" yaml:"redact" json:"redact"`
}

// HistoryConfig configures the SQLite event history.
type HistoryConfig struct {
	Enabled   bool   `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Path      string `mapstructure:"path" yaml:"path" json:"path"`
	MaxEvents int    `mapstructure:"max_events" yaml:"max_events" json:"max_events"`
}

// DataDir returns the data directory path (~/.flow).
func DataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".flow"
	}
	return filepath.Join(home, ".flow")
}

// ConfigPath returns the default configuration file path.
func ConfigPath() string {
	return filepath.Join(DataDir(), "config.yaml")
}

// HistoryPath returns the default event history database path.
func HistoryPath() string {
	return filepath.Join(DataDir(), "events.db")
}

// EnsureDataDir creates the data directory if it doesn't exist.
func EnsureDataDir() error {
	return os.MkdirAll(DataDir(), 0750)
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		ServerPort:  DefaultServerPort,
		BufferSize:  DefaultBufferSize,
		LogLevel:    "info",
		HookCommand: DefaultHookCommand,
		Forward: ForwardConfig{
			Headers: map[string]string{},
			Timeout: 5 * time.Second,
			Redact:  true,
		},
		History: HistoryConfig{
			Path:      HistoryPath(),
			MaxEvents: 1000,
		},
	}
}

// Load reads configuration from path (or the default config file when path is
// empty), environment files and FLOW_* environment variables, in increasing
// order of precedence. A missing config file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	return load(v, path)
}

// LoadWith is Load on a caller-owned viper instance, so command-line flags
// bound to v take precedence over every other source.
func LoadWith(v *viper.Viper, path string) (*Config, error) {
	return load(v, path)
}

func load(v *viper.Viper, path string) (*Config, error) {
	loadEnvFiles()

	def := Default()
	v.SetDefault("server_port", def.ServerPort)
	v.SetDefault("buffer_size", def.BufferSize)
	v.SetDefault("log_level", def.LogLevel)
	v.SetDefault("hook_command", def.HookCommand)
	v.SetDefault("forward.url", def.Forward.URL)
	v.SetDefault("forward.headers", def.Forward.Headers)
	v.SetDefault("forward.timeout", def.Forward.Timeout)
	v.SetDefault("forward.retry_count", def.Forward.RetryCount)
	v.SetDefault("forward.redact", def.Forward.Redact)
	v.SetDefault("history.enabled", def.History.Enabled)
	v.SetDefault("history.path", def.History.Path)
	v.SetDefault("history.max_events", def.History.MaxEvents)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// LOCAL_SERVER_PORT is what hook commands and older tooling read.
	_ = v.BindEnv("server_port", "LOCAL_SERVER_PORT", EnvPrefix+"_SERVER_PORT")

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(DataDir())
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !(path != "" && errors.Is(err, os.ErrNotExist)) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.normalize()
	return cfg, nil
}

func (c *Config) normalize() {
	if c.ServerPort <= 0 || c.ServerPort > 65535 {
		c.ServerPort = DefaultServerPort
	}
	if c.BufferSize <= 0 {
		c.BufferSize = DefaultBufferSize
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.HookCommand == "" {
		c.HookCommand = DefaultHookCommand
	}
	if c.Forward.Timeout <= 0 {
		c.Forward.Timeout = 5 * time.Second
	}
	if c.Forward.RetryCount < 0 {
		c.Forward.RetryCount = 0
	}
	if c.Forward.Headers == nil {
		c.Forward.Headers = map[string]string{}
	}
	if c.History.Path == "" {
		c.History.Path = HistoryPath()
	}
}

// EnvFileName returns the local env file name, overridable through ENV.
func EnvFileName() string {
	if name := os.Getenv("ENV"); name != "" {
		return name
	}
	return ".env.local"
}

// loadEnvFiles loads .env and then the local env file from the working
// directory and the data directory. Variables already set in the process
// environment are never overridden; missing files are ignored.
func loadEnvFiles() {
	local := EnvFileName()
	locations := []string{
		local,
		filepath.Join(DataDir(), local),
		".env",
		filepath.Join(DataDir(), ".env"),
	}
	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			_ = godotenv.Load(location)
		}
	}
}
