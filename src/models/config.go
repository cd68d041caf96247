package models

// MConfig Structure
type MConfig struct {
	Name      string           `yaml:"name"`
	Host      string           `yaml:"host"`
	Port      int              `yaml:"port"`
	LogLevel  string           `yaml:"log_level"`
	GrpcHost  string           `yaml:"grpc_host"`
	GrpcPort  int              `yaml:"grpc_port"`
	Stream    MStreamConfig    `yaml:"stream"`
	Storage   MStorageConfig   `yaml:"storage"`
	Cache     MCacheConfig     `yaml:"cache"`
	Publisher MPublisherConfig `yaml:"publisher"`
}

type MStreamConfig struct {
	URL                  string     `yaml:"url"`
	Token                string     `yaml:"token"`
	ConnectTimeoutMs     int        `yaml:"connect_timeout_ms"`
	HeartbeatIntervalMs  int        `yaml:"heartbeat_interval_ms"`
	ReconnectDelaysMs    []int      `yaml:"reconnect_delays_ms"`
	MaxReconnectAttempts int        `yaml:"max_reconnect_attempts"`
	TradeBufferSize      int        `yaml:"trade_buffer_size"`
	ClearOnDisconnect    bool       `yaml:"clear_on_disconnect"`
	Symbols              []string   `yaml:"symbols"`
	DataTypes            []DataType `yaml:"data_types"`
}

type MStorageConfig struct {
	Enabled              bool   `yaml:"enabled"`
	DBType               string `yaml:"db_type"`
	DBPath               string `yaml:"db_path"`
	DBConnectionString   string `yaml:"db_connection_string"`
	FlushIntervalSeconds int    `yaml:"flush_interval_seconds"`
	BatchSize            int    `yaml:"batch_size"`
	RetentionDays        int    `yaml:"retention_days"`
}

type MCacheConfig struct {
	Enabled    bool   `yaml:"enabled"`
	RedisAddr  string `yaml:"redis_addr"`
	Password   string `yaml:"password"`
	DB         int    `yaml:"db"`
	TTLSeconds int    `yaml:"ttl_seconds"`
}

type MPublisherConfig struct {
	Enabled   bool     `yaml:"enabled"`
	Brokers   []string `yaml:"brokers"`
	Topic     string   `yaml:"topic"`
	QueueSize int      `yaml:"queue_size"`
}

// GetLogLevel lets the logger read the level without importing config.
func (c *MConfig) GetLogLevel() string {
	if c == nil {
		return ""
	}
	return c.LogLevel
}
