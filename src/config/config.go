package config

import (
	"fmt"
	"net/url"
	"os"

	"smile-observer/src/logger"
	"smile-observer/src/models"

	"gopkg.in/yaml.v3"
)

// -----------------------------------------------------------------------------

const (
	DefaultWebSocketURL     = "ws://127.0.0.1:8765"
	DefaultReconnectSeconds = 3
	DefaultHandshakeSeconds = 5
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
	config.applyDefaults()

	// 3. Validate the loaded configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// -----------------------------------------------------------------------------

func (c *Config) applyDefaults() {
	if c.Network.WebSocketURL == "" {
		c.Network.WebSocketURL = DefaultWebSocketURL
	}
	if c.Network.ReconnectSeconds <= 0 {
		c.Network.ReconnectSeconds = DefaultReconnectSeconds
	}
	if c.Network.HandshakeTimeout <= 0 {
		c.Network.HandshakeTimeout = DefaultHandshakeSeconds
	}
	if c.Storage.DBType == "" {
		c.Storage.DBType = "sqlite"
	}
}

// -----------------------------------------------------------------------------

// Validate performs basic configuration validation
func (c *Config) Validate() error {
	// Validate App configuration
	if c.Name == "" {
		return fmt.Errorf("application name cannot be empty")
	}

	// Validate Server configuration
	if c.Host == "" {
		return fmt.Errorf("server host cannot be empty")
	}
	if c.Port <= 1024 || c.Port > 65535 {
		return fmt.Errorf("invalid server port number: %d (must be between 1025 and 65535)", c.Port)
	}

	// Validate Storage configuration
	switch c.Storage.DBType {
	case "sqlite":
		if c.Storage.DBPath == "" {
			return fmt.Errorf("database path cannot be empty for sqlite")
		}
	case "postgres":
		if c.Storage.DBConnectionString == "" {
			return fmt.Errorf("connection string cannot be empty for postgres")
		}
	default:
		return fmt.Errorf("unsupported database type: %s", c.Storage.DBType)
	}

	// Validate Network configuration
	if _, err := ParseEndpoint(c.Network.WebSocketURL); err != nil {
		return err
	}

	return nil
}

// -----------------------------------------------------------------------------

// WebSocketEndpoint returns the configured backend URL, falling back to the
// default when the configured value does not parse as a ws:// or wss:// URL.
// Matches the original client's lenient read-with-fallback behavior.
func (c *Config) WebSocketEndpoint(log *logger.Logger) *url.URL {
	u, err := ParseEndpoint(c.Network.WebSocketURL)
	if err != nil {
		log.Warning("Invalid WebSocket URL ('%s'). Falling back to default: %s",
			c.Network.WebSocketURL, DefaultWebSocketURL)
		u, _ = ParseEndpoint(DefaultWebSocketURL)
	}
	return u
}

// -----------------------------------------------------------------------------

// ParseEndpoint validates a backend endpoint URL.
func ParseEndpoint(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid websocket url '%s': %w", raw, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("invalid websocket url '%s': scheme must be ws or wss", raw)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid websocket url '%s': missing host", raw)
	}
	return u, nil
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
