package models

// MConfig Structure
type MConfig struct {
	Name     string         `yaml:"name" toml:"name"`
	Host     string         `yaml:"host" toml:"host"`
	Port     int            `yaml:"port" toml:"port"`
	LogLevel string         `yaml:"log_level" toml:"log_level"`
	GrpcHost string         `yaml:"grpc_host" toml:"grpc_host"`
	GrpcPort int            `yaml:"grpc_port" toml:"grpc_port"`
	Hub      MHubConfig     `yaml:"hub" toml:"hub"`
	Source   MSourceConfig  `yaml:"source" toml:"source"`
	Network  MNetworkConfig `yaml:"network" toml:"network"`
	Client   MClientConfig  `yaml:"client" toml:"client"`
}

// GetLogLevel lets the logger read the level without importing config.
func (c *MConfig) GetLogLevel() string {
	if c == nil {
		return ""
	}
	return c.LogLevel
}

type MHubConfig struct {
	CacheTTLSeconds        int `yaml:"cache_ttl_seconds" toml:"cache_ttl_seconds"`
	RefreshIntervalSeconds int `yaml:"refresh_interval_seconds" toml:"refresh_interval_seconds"`
	FetchTimeoutSeconds    int `yaml:"fetch_timeout_seconds" toml:"fetch_timeout_seconds"`
	SendBufferSize         int `yaml:"send_buffer_size" toml:"send_buffer_size"`
}

type MSourceConfig struct {
	Type               string `yaml:"type" toml:"type"` // rest | sqlite | postgres | demo
	URL                string `yaml:"url" toml:"url"`
	Table              string `yaml:"table" toml:"table"`
	APIKey             string `yaml:"api_key" toml:"api_key"` // Optional
	DBPath             string `yaml:"db_path" toml:"db_path"`
	DBConnectionString string `yaml:"db_connection_string" toml:"db_connection_string"`
}

type MNetworkConfig struct {
	RequestTimeout int    `yaml:"timeout" toml:"timeout"`
	MaxRetries     int    `yaml:"retries" toml:"retries"`
	UserAgent      string `yaml:"user_agent" toml:"user_agent"`
}

type MClientConfig struct {
	URL                      string `yaml:"url" toml:"url"`
	ReconnectDelaySeconds    int    `yaml:"reconnect_delay_seconds" toml:"reconnect_delay_seconds"`
	MaxReconnectDelaySeconds int    `yaml:"max_reconnect_delay_seconds" toml:"max_reconnect_delay_seconds"`
	PingIntervalSeconds      int    `yaml:"ping_interval_seconds" toml:"ping_interval_seconds"`
}
