// Package config provides YAML-based configuration loading for docchat.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values applied by Parse when a field is left empty.
const (
	DefaultBaseURL           = "http://localhost:8000/api/"
	DefaultTimeout           = 30 * time.Second
	DefaultStoreDriver       = "sqlite"
	DefaultStorePath         = ".docchat/state.db"
	DefaultLogFile           = ".docchat/docchat.log"
	DefaultLogLevel          = "info"
	DefaultStreamIdleTimeout = 2 * time.Minute
	DefaultConversationKey   = "conversationId"
	DefaultSelectionKey      = "selectedDocuments"
	DefaultFilingsBaseURL    = "https://api.company-information.service.gov.uk/"
	DefaultUploadSettle      = 2 * time.Second

	// FilingsAPIKeyEnv overrides filings.api_key when set.
	FilingsAPIKeyEnv = "DOCCHAT_FILINGS_API_KEY"
)

// Config is the top-level docchat configuration, loaded from docchat.yaml.
type Config struct {
	Backend BackendConfig `yaml:"backend"`
	Store   StoreConfig   `yaml:"store"`
	Log     LogConfig     `yaml:"log"`
	Chat    ChatConfig    `yaml:"chat"`
	Filings FilingsConfig `yaml:"filings"`
	Upload  UploadConfig  `yaml:"upload"`
}

// BackendConfig points the client at the document/chat API.
type BackendConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// StoreConfig selects where client-side state (conversation id, selected
// documents) is persisted.
type StoreConfig struct {
	Driver string      `yaml:"driver"` // sqlite, mysql, redis, memory
	Path   string      `yaml:"path"`
	MySQL  MySQLConfig `yaml:"mysql"`
	Redis  RedisConfig `yaml:"redis"`
}

// MySQLConfig holds connection settings for a MySQL-compatible server.
type MySQLConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Database string `yaml:"database"`
}

// RedisConfig holds connection settings for a Redis server.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	DB       int    `yaml:"db"`
	Password string `yaml:"password"`
	Prefix   string `yaml:"prefix"`
}

// LogConfig controls the zap logger.
type LogConfig struct {
	File       string `yaml:"file"`
	Level      string `yaml:"level"`
	Production bool   `yaml:"production"`
}

// ChatConfig controls the conversation session.
type ChatConfig struct {
	// StreamIdleTimeout closes a message stream that has been silent for
	// this long. Zero disables the timeout.
	StreamIdleTimeout *time.Duration `yaml:"stream_idle_timeout"`
	ConversationKey   string         `yaml:"conversation_key"`
	SelectionKey      string         `yaml:"selection_key"`
}

// IdleTimeout returns the effective stream idle timeout.
func (c ChatConfig) IdleTimeout() time.Duration {
	if c.StreamIdleTimeout == nil {
		return DefaultStreamIdleTimeout
	}
	return *c.StreamIdleTimeout
}

// FilingsConfig configures the public filing-history API.
type FilingsConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
}

// UploadConfig controls the upload folder watcher.
type UploadConfig struct {
	WatchExtensions []string      `yaml:"watch_extensions"`
	Settle          time.Duration `yaml:"settle"`
}

// Load reads a YAML config file from path and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used when no config file exists.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.Backend.BaseURL == "" {
		c.Backend.BaseURL = DefaultBaseURL
	}
	if !strings.HasSuffix(c.Backend.BaseURL, "/") {
		c.Backend.BaseURL += "/"
	}
	if c.Backend.Timeout == 0 {
		c.Backend.Timeout = DefaultTimeout
	}
	if c.Store.Driver == "" {
		c.Store.Driver = DefaultStoreDriver
	}
	if c.Store.Path == "" {
		c.Store.Path = DefaultStorePath
	}
	if c.Store.MySQL.Host == "" {
		c.Store.MySQL.Host = "127.0.0.1"
	}
	if c.Store.MySQL.Port == 0 {
		c.Store.MySQL.Port = 3306
	}
	if c.Store.MySQL.User == "" {
		c.Store.MySQL.User = "root"
	}
	if c.Store.MySQL.Database == "" {
		c.Store.MySQL.Database = "docchat"
	}
	if c.Store.Redis.Addr == "" {
		c.Store.Redis.Addr = "127.0.0.1:6379"
	}
	if c.Store.Redis.Prefix == "" {
		c.Store.Redis.Prefix = "docchat:"
	}
	if c.Log.File == "" {
		c.Log.File = DefaultLogFile
	}
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Chat.ConversationKey == "" {
		c.Chat.ConversationKey = DefaultConversationKey
	}
	if c.Chat.SelectionKey == "" {
		c.Chat.SelectionKey = DefaultSelectionKey
	}
	if c.Filings.BaseURL == "" {
		c.Filings.BaseURL = DefaultFilingsBaseURL
	}
	if key := os.Getenv(FilingsAPIKeyEnv); key != "" {
		c.Filings.APIKey = key
	}
	if len(c.Upload.WatchExtensions) == 0 {
		c.Upload.WatchExtensions = []string{".pdf"}
	}
	if c.Upload.Settle == 0 {
		c.Upload.Settle = DefaultUploadSettle
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	if !strings.HasPrefix(c.Backend.BaseURL, "http://") && !strings.HasPrefix(c.Backend.BaseURL, "https://") {
		errs = append(errs, "backend.base_url must be an http(s) URL")
	}
	if c.Backend.Timeout < 0 {
		errs = append(errs, "backend.timeout must not be negative")
	}
	switch c.Store.Driver {
	case "sqlite", "mysql", "redis", "memory":
	default:
		errs = append(errs, fmt.Sprintf("store.driver %q is not one of sqlite, mysql, redis, memory", c.Store.Driver))
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("log.level %q is not one of debug, info, warn, error", c.Log.Level))
	}
	if c.Chat.IdleTimeout() < 0 {
		errs = append(errs, "chat.stream_idle_timeout must not be negative")
	}
	if c.Chat.ConversationKey == c.Chat.SelectionKey {
		errs = append(errs, "chat.conversation_key and chat.selection_key must differ")
	}
	for i, ext := range c.Upload.WatchExtensions {
		if !strings.HasPrefix(ext, ".") {
			errs = append(errs, fmt.Sprintf("upload.watch_extensions[%d] must start with a dot", i))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
