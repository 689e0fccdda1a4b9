package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"chart-hub/src/models"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml"
	"gopkg.in/yaml.v3"
)

// Environment overrides, applied after the file is parsed.
const (
	EnvSourceAPIKey       = "CHARTHUB_SOURCE_API_KEY"
	EnvSourceURL          = "CHARTHUB_SOURCE_URL"
	EnvDBConnectionString = "CHARTHUB_DB_CONNECTION_STRING"
	EnvPort               = "CHARTHUB_PORT"
)

var validSourceTypes = map[string]bool{
	"rest":     true,
	"sqlite":   true,
	"postgres": true,
	"demo":     true,
}

// -----------------------------------------------------------------------------

// Config wraps models.MConfig and provides business logic methods
type Config struct {
	*models.MConfig
}

// -----------------------------------------------------------------------------

// NewConfig creates a new MConfig instance from a YAML or TOML file
func NewConfig(configPath string) (*Config, error) {
	// 1. Read the file content
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", configPath, err)
	}

	// 2. Unmarshal data into the models struct
	modelConfig := Defaults()
	if isTOML(configPath) {
		if err := toml.Unmarshal(data, modelConfig); err != nil {
			return nil, fmt.Errorf("failed to parse config from TOML: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(data, modelConfig); err != nil {
			return nil, fmt.Errorf("failed to parse config from YAML: %w", err)
		}
	}

	config := &Config{MConfig: modelConfig}

	// 3. Secrets and addresses from .env / environment
	config.loadEnv(filepath.Dir(configPath))

	// 4. Validate the loaded configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// -----------------------------------------------------------------------------

// Defaults returns a configuration holding every default value.
func Defaults() *models.MConfig {
	return &models.MConfig{
		Name:     "chart-hub",
		Host:     "0.0.0.0",
		Port:     8080,
		LogLevel: "INFO",
		GrpcHost: "0.0.0.0",
		GrpcPort: 50051,
		Hub: models.MHubConfig{
			CacheTTLSeconds:        30,
			RefreshIntervalSeconds: 60,
			FetchTimeoutSeconds:    15,
			SendBufferSize:         16,
		},
		Source: models.MSourceConfig{
			Type:  "demo",
			Table: "profiling_charts",
		},
		Network: models.MNetworkConfig{
			RequestTimeout: 10,
			MaxRetries:     2,
		},
		Client: models.MClientConfig{
			URL:                   "ws://localhost:8080/ws",
			ReconnectDelaySeconds: 5,
			PingIntervalSeconds:   30,
		},
	}
}

// -----------------------------------------------------------------------------

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

// -----------------------------------------------------------------------------

// loadEnv reads an optional .env next to the config file (then the working
// directory) and applies CHARTHUB_* overrides. Existing variables win.
func (c *Config) loadEnv(dir string) {
	for _, candidate := range []string{filepath.Join(dir, ".env"), ".env"} {
		if _, err := os.Stat(candidate); err == nil {
			_ = godotenv.Load(candidate)
		}
	}

	if v := os.Getenv(EnvSourceAPIKey); v != "" {
		c.Source.APIKey = v
	}
	if v := os.Getenv(EnvSourceURL); v != "" {
		c.Source.URL = v
	}
	if v := os.Getenv(EnvDBConnectionString); v != "" {
		c.Source.DBConnectionString = v
	}
	if v := os.Getenv(EnvPort); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Port = port
		}
	}
}

// -----------------------------------------------------------------------------

// Validate performs basic configuration validation
func (c *Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("application name cannot be empty")
	}

	// Server
	if c.Host == "" {
		return fmt.Errorf("server host cannot be empty")
	}
	if c.Port <= 1024 || c.Port > 65535 {
		return fmt.Errorf("invalid server port number: %d (must be between 1025 and 65535)", c.Port)
	}
	if c.GrpcPort != 0 && (c.GrpcPort <= 1024 || c.GrpcPort > 65535) {
		return fmt.Errorf("invalid grpc port number: %d (must be between 1025 and 65535)", c.GrpcPort)
	}
	if c.GrpcPort != 0 && c.GrpcPort == c.Port && c.GrpcHost == c.Host {
		return fmt.Errorf("grpc port %d collides with server port", c.GrpcPort)
	}

	// Hub
	if c.Hub.CacheTTLSeconds <= 0 {
		return fmt.Errorf("cache ttl must be greater than 0")
	}
	if c.Hub.RefreshIntervalSeconds <= 0 {
		return fmt.Errorf("refresh interval must be greater than 0")
	}
	if c.Hub.FetchTimeoutSeconds <= 0 {
		return fmt.Errorf("fetch timeout must be greater than 0")
	}
	if c.Hub.SendBufferSize <= 0 {
		return fmt.Errorf("send buffer size must be greater than 0")
	}

	// Source
	if !validSourceTypes[c.Source.Type] {
		return fmt.Errorf("unknown source type '%s' (rest, sqlite, postgres, demo)", c.Source.Type)
	}
	switch c.Source.Type {
	case "rest":
		if c.Source.URL == "" {
			return fmt.Errorf("source url cannot be empty for rest")
		}
	case "sqlite":
		if c.Source.DBPath == "" {
			return fmt.Errorf("database path cannot be empty for sqlite")
		}
	case "postgres":
		if c.Source.DBConnectionString == "" {
			return fmt.Errorf("connection string cannot be empty for postgres")
		}
	}

	// Network
	if c.Network.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be greater than 0")
	}
	if c.Network.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}

	// Client
	if c.Client.ReconnectDelaySeconds <= 0 {
		return fmt.Errorf("reconnect delay must be greater than 0")
	}
	if c.Client.MaxReconnectDelaySeconds != 0 && c.Client.MaxReconnectDelaySeconds < c.Client.ReconnectDelaySeconds {
		return fmt.Errorf("max reconnect delay cannot be below reconnect delay")
	}
	if c.Client.PingIntervalSeconds <= 0 {
		return fmt.Errorf("ping interval must be greater than 0")
	}

	return nil
}

// -----------------------------------------------------------------------------

// Save persists the current configuration; the format follows the extension.
func (c *Config) Save(configPath string) error {
	var (
		data []byte
		err  error
	)
	if isTOML(configPath) {
		data, err = toml.Marshal(*c.MConfig)
	} else {
		data, err = yaml.Marshal(c.MConfig)
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config to file '%s': %w", configPath, err)
	}

	return nil
}
