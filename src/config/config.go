package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"

	"market-stream/src/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment overrides for the push endpoint.
const (
	EnvStreamURL   = "MARKET_STREAM_WS_URL"
	EnvStreamToken = "MARKET_STREAM_TOKEN"
)

// Defaults applied when the YAML leaves a field empty.
var (
	DefaultReconnectDelaysMs = []int{1000, 2000, 4000, 8000, 16000, 30000}
	DefaultDataTypes         = []models.DataType{models.DataTypePrice}
)

const (
	DefaultStreamURL            = "ws://localhost:8000/ws/realtime/"
	DefaultConnectTimeoutMs     = 10000
	DefaultHeartbeatIntervalMs  = 30000
	DefaultMaxReconnectAttempts = 10
	DefaultTradeBufferSize      = 20
	DefaultFlushIntervalSeconds = 5
	DefaultBatchSize            = 500
	DefaultRetentionDays        = 7
	DefaultCacheTTLSeconds      = 300
	DefaultPublisherQueueSize   = 1024
)

// -----------------------------------------------------------------------------

// Config wraps models.MConfig and provides business logic methods
type Config struct {
	*models.MConfig
}

// -----------------------------------------------------------------------------

// NewConfig creates a new MConfig instance from YAML file
func NewConfig(configPath string) (*Config, error) {
	// 1. Read the YAML file content
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", configPath, err)
	}

	// 2. Unmarshal data into the models struct
	var modelConfig models.MConfig
	if err := yaml.Unmarshal(data, &modelConfig); err != nil {
		return nil, fmt.Errorf("failed to parse config from YAML: %w", err)
	}

	config := &Config{MConfig: &modelConfig}

	// 3. Environment overrides (.env is optional)
	if err := config.LoadEnv(".env"); err != nil {
		return nil, err
	}

	config.ApplyDefaults()

	// 4. Validate the loaded configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// -----------------------------------------------------------------------------

// LoadEnv reads envFile when present and applies stream overrides from the environment
func (c *Config) LoadEnv(envFile string) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load env file '%s': %w", envFile, err)
		}
	}

	if v := os.Getenv(EnvStreamURL); v != "" {
		c.Stream.URL = v
	}
	if v := os.Getenv(EnvStreamToken); v != "" {
		c.Stream.Token = v
	}
	return nil
}

// -----------------------------------------------------------------------------

// ApplyDefaults fills zero values with the built-in defaults
func (c *Config) ApplyDefaults() {
	s := &c.Stream
	if s.URL == "" {
		s.URL = DefaultStreamURL
	}
	if s.ConnectTimeoutMs == 0 {
		s.ConnectTimeoutMs = DefaultConnectTimeoutMs
	}
	if s.HeartbeatIntervalMs == 0 {
		s.HeartbeatIntervalMs = DefaultHeartbeatIntervalMs
	}
	if len(s.ReconnectDelaysMs) == 0 {
		s.ReconnectDelaysMs = append([]int(nil), DefaultReconnectDelaysMs...)
	}
	if s.MaxReconnectAttempts == 0 {
		s.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	if s.TradeBufferSize == 0 {
		s.TradeBufferSize = DefaultTradeBufferSize
	}
	if len(s.DataTypes) == 0 {
		s.DataTypes = append([]models.DataType(nil), DefaultDataTypes...)
	}

	if c.Storage.FlushIntervalSeconds == 0 {
		c.Storage.FlushIntervalSeconds = DefaultFlushIntervalSeconds
	}
	if c.Storage.BatchSize == 0 {
		c.Storage.BatchSize = DefaultBatchSize
	}
	if c.Storage.RetentionDays == 0 {
		c.Storage.RetentionDays = DefaultRetentionDays
	}
	if c.Cache.TTLSeconds == 0 {
		c.Cache.TTLSeconds = DefaultCacheTTLSeconds
	}
	if c.Publisher.QueueSize == 0 {
		c.Publisher.QueueSize = DefaultPublisherQueueSize
	}
}

// -----------------------------------------------------------------------------

// Validate performs basic configuration validation
func (c *Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("application name cannot be empty")
	}

	// Validate Server configuration (Flattened)
	if c.Host == "" {
		return fmt.Errorf("server host cannot be empty")
	}
	if c.Port <= 1024 || c.Port > 65535 {
		return fmt.Errorf("invalid server port number: %d (must be between 1025 and 65535)", c.Port)
	}

	// Validate Stream configuration
	u, err := url.Parse(c.Stream.URL)
	if err != nil {
		return fmt.Errorf("invalid stream url '%s': %w", c.Stream.URL, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("stream url must use ws or wss, got '%s'", u.Scheme)
	}
	if c.Stream.ConnectTimeoutMs < 0 || c.Stream.HeartbeatIntervalMs < 0 {
		return fmt.Errorf("stream timeouts cannot be negative")
	}
	for i, d := range c.Stream.ReconnectDelaysMs {
		if d <= 0 {
			return fmt.Errorf("reconnect delay %d must be greater than 0", i)
		}
	}
	if c.Stream.MaxReconnectAttempts < 0 {
		return fmt.Errorf("max reconnect attempts cannot be negative")
	}
	if c.Stream.TradeBufferSize <= 0 {
		return fmt.Errorf("trade buffer size must be greater than 0")
	}
	for i, sym := range c.Stream.Symbols {
		if sym == "" {
			return fmt.Errorf("symbol %d cannot be empty", i)
		}
	}
	for _, dt := range c.Stream.DataTypes {
		if !dt.IsValid() {
			return fmt.Errorf("unknown data type '%s'", dt)
		}
	}

	// Validate Storage configuration
	if c.Storage.Enabled {
		switch c.Storage.DBType {
		case "sqlite":
			if c.Storage.DBPath == "" {
				return fmt.Errorf("database path cannot be empty for sqlite")
			}
		case "postgres":
			if c.Storage.DBConnectionString == "" {
				return fmt.Errorf("database connection string cannot be empty for postgres")
			}
		default:
			return fmt.Errorf("unsupported database type '%s'", c.Storage.DBType)
		}
	}

	if c.Cache.Enabled && c.Cache.RedisAddr == "" {
		return fmt.Errorf("redis address cannot be empty when cache is enabled")
	}

	if c.Publisher.Enabled {
		if len(c.Publisher.Brokers) == 0 {
			return fmt.Errorf("at least one kafka broker must be configured")
		}
		if c.Publisher.Topic == "" {
			return fmt.Errorf("kafka topic cannot be empty")
		}
	}

	return nil
}

// -----------------------------------------------------------------------------

// Save persists the current configuration to the specified YAML file path
func (c *Config) Save(configPath string) error {
	// 1. Marshal the struct to YAML
	data, err := yaml.Marshal(c.MConfig)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	// 2. Write to file (0644 permissions)
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config to file '%s': %w", configPath, err)
	}

	return nil
}
