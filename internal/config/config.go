// Package config loads taskchat configuration from YAML with environment
// overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all taskchat configuration.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Store        StoreConfig        `yaml:"store"`
	LLM          LLMConfig          `yaml:"llm"`
	Conversation ConversationConfig `yaml:"conversation"`
	Snapshot     SnapshotConfig     `yaml:"snapshot"`
	Completion   CompletionConfig   `yaml:"completion"`
	Logging      LoggingConfig      `yaml:"logging"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Listen          string `yaml:"listen"`
	ReadTimeout     string `yaml:"read_timeout"`
	WriteTimeout    string `yaml:"write_timeout"`
	ShutdownTimeout string `yaml:"shutdown_timeout"`
}

// StoreConfig selects the task store.
type StoreConfig struct {
	Driver string `yaml:"driver"` // sqlite, postgres
	Path   string `yaml:"path"`
	DSN    string `yaml:"dsn"`
}

// LLMConfig configures the language understanding provider.
type LLMConfig struct {
	Provider string `yaml:"provider"` // gemini, mock
	Model    string `yaml:"model"`
	APIKey   string `yaml:"api_key"`
	Timeout  string `yaml:"timeout"`
	// MockReply is what the mock provider answers; used for offline runs.
	MockReply string `yaml:"mock_reply"`
}

// ConversationConfig configures conversation history.
type ConversationConfig struct {
	HistoryWindow int    `yaml:"history_window"`
	Path          string `yaml:"path"`
}

// SnapshotConfig bounds the grounding snapshot.
type SnapshotConfig struct {
	TaskLimit int `yaml:"task_limit"`
}

// CompletionConfig controls auto-fill dates.
type CompletionConfig struct {
	StartOffsetDays int `yaml:"start_offset_days"`
	DueOffsetDays   int `yaml:"due_offset_days"`
	SpreadDays      int `yaml:"spread_days"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console
	// File, when set, receives log output instead of stderr.
	File string `yaml:"file,omitempty"`
}

// ValidDrivers lists the supported store drivers.
var ValidDrivers = []string{"sqlite", "postgres"}

// ValidProviders lists the supported LLM providers.
var ValidProviders = []string{"gemini", "mock"}

// Dir returns ~/.taskchat.
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".taskchat"
	}
	return filepath.Join(home, ".taskchat")
}

// DefaultPath is where Load looks when no path is given.
func DefaultPath() string {
	return filepath.Join(Dir(), "config.yaml")
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Listen:          "127.0.0.1:7470",
			ReadTimeout:     "15s",
			WriteTimeout:    "90s",
			ShutdownTimeout: "30s",
		},
		Store: StoreConfig{
			Driver: "sqlite",
			Path:   filepath.Join(Dir(), "taskchat.db"),
		},
		LLM: LLMConfig{
			Provider: "gemini",
			Model:    "gemini-2.0-flash",
			Timeout:  "60s",
		},
		Conversation: ConversationConfig{
			HistoryWindow: 12,
			Path:          filepath.Join(Dir(), "conversation.json"),
		},
		Snapshot: SnapshotConfig{TaskLimit: 40},
		Completion: CompletionConfig{
			StartOffsetDays: -5,
			DueOffsetDays:   5,
			SpreadDays:      10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads path over the defaults and applies environment overrides. A
// missing file is not an error. An empty path means DefaultPath.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath()
	}
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	case !os.IsNotExist(err):
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes the configuration to path.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.LLM.APIKey = key
	}
	if v := os.Getenv("TASKCHAT_LLM_PROVIDER"); v != "" {
		c.LLM.Provider = v
	}
	if v := os.Getenv("TASKCHAT_LISTEN"); v != "" {
		c.Server.Listen = v
	}
	if v := os.Getenv("TASKCHAT_DB_DRIVER"); v != "" {
		c.Store.Driver = v
	}
	if v := os.Getenv("TASKCHAT_DB_PATH"); v != "" {
		c.Store.Path = v
	}
	if v := os.Getenv("TASKCHAT_DB_DSN"); v != "" {
		c.Store.DSN = v
	}
	if v := os.Getenv("TASKCHAT_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Validate reports the first configuration problem.
func (c *Config) Validate() error {
	if !slices.Contains(ValidDrivers, c.Store.Driver) {
		return fmt.Errorf("invalid store driver: %s (valid: %v)", c.Store.Driver, ValidDrivers)
	}
	if c.Store.Driver == "postgres" && c.Store.DSN == "" {
		return fmt.Errorf("store dsn is required for postgres (set TASKCHAT_DB_DSN)")
	}
	if c.Store.Driver == "sqlite" && c.Store.Path == "" {
		return fmt.Errorf("store path is required for sqlite")
	}
	if !slices.Contains(ValidProviders, c.LLM.Provider) {
		return fmt.Errorf("invalid LLM provider: %s (valid: %v)", c.LLM.Provider, ValidProviders)
	}
	if c.LLM.Provider == "gemini" && c.LLM.APIKey == "" {
		return fmt.Errorf("LLM API key not configured (set GEMINI_API_KEY)")
	}
	if c.Conversation.HistoryWindow <= 0 {
		return fmt.Errorf("conversation.history_window must be positive")
	}
	if c.Snapshot.TaskLimit <= 0 {
		return fmt.Errorf("snapshot.task_limit must be positive")
	}
	if c.Completion.SpreadDays <= 0 {
		return fmt.Errorf("completion.spread_days must be positive")
	}
	for name, v := range map[string]string{
		"server.read_timeout":     c.Server.ReadTimeout,
		"server.write_timeout":    c.Server.WriteTimeout,
		"server.shutdown_timeout": c.Server.ShutdownTimeout,
		"llm.timeout":             c.LLM.Timeout,
	} {
		if _, err := time.ParseDuration(v); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

func duration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// LLMTimeout bounds a single extraction call.
func (c *Config) LLMTimeout() time.Duration { return duration(c.LLM.Timeout, 60*time.Second) }

// ReadTimeout is the HTTP server read timeout.
func (c *Config) ReadTimeout() time.Duration {
	return duration(c.Server.ReadTimeout, 15*time.Second)
}

// WriteTimeout is the HTTP server write timeout. It must outlast LLMTimeout.
func (c *Config) WriteTimeout() time.Duration {
	return duration(c.Server.WriteTimeout, 90*time.Second)
}

// ShutdownTimeout bounds graceful shutdown.
func (c *Config) ShutdownTimeout() time.Duration {
	return duration(c.Server.ShutdownTimeout, 30*time.Second)
}
