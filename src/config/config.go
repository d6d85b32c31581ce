package config

import (
	"fmt"
	"os"

	"trade-gateway/src/models"

	"gopkg.in/yaml.v3"
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

	// 3. Validate the loaded configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// -----------------------------------------------------------------------------

// Validate performs basic configuration validation and applies defaults for
// optional settings.
func (c *Config) Validate() error {
	// Validate App configuration (Flattened)
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

	// Session publishing cadence
	if c.PublishIntervalMs < 0 {
		return fmt.Errorf("publish interval cannot be negative")
	}
	if c.PublishIntervalMs == 0 {
		c.PublishIntervalMs = 1000
	}

	// Directories served by the session verbs
	if c.AlgoDir == "" {
		return fmt.Errorf("algo dir cannot be empty")
	}
	if c.StoreDir == "" {
		return fmt.Errorf("store dir cannot be empty")
	}

	// Validate Storage configuration
	if c.Storage.DBType == "" {
		return fmt.Errorf("database type cannot be empty")
	}
	if c.Storage.DBType == "sqlite" && c.Storage.DBPath == "" {
		return fmt.Errorf("database path cannot be empty for sqlite")
	}
	if c.Storage.DBType == "postgres" && c.Storage.DBConnectionString == "" {
		return fmt.Errorf("connection string cannot be empty for postgres")
	}

	// Validate Network configuration
	if c.Network.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be greater than 0")
	}
	if c.Network.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	if c.Network.ConcurrentRequests <= 0 {
		return fmt.Errorf("concurrent requests must be greater than 0")
	}

	// Validate market-data feeds
	if c.MarketData.UpdateIntervalSeconds <= 0 {
		return fmt.Errorf("update interval must be greater than 0")
	}
	for i, feed := range c.MarketData.Feeds {
		if feed.Name == "" {
			return fmt.Errorf("feed %d must have a name", i)
		}
		switch feed.Type {
		case "http":
			if feed.QuoteURL == "" {
				return fmt.Errorf("feed '%s' must have a quote url", feed.Name)
			}
		case "sim":
		default:
			return fmt.Errorf("feed '%s' has unknown type '%s'", feed.Name, feed.Type)
		}
	}

	// Validate exchange adapters
	for i, adp := range c.Exchange.Adapters {
		if adp.Name == "" {
			return fmt.Errorf("exchange adapter %d must have a name", i)
		}
		if adp.Type != "paper" {
			return fmt.Errorf("exchange adapter '%s' has unknown type '%s'", adp.Name, adp.Type)
		}
		if adp.LatencyMs < 0 {
			return fmt.Errorf("exchange adapter '%s' latency cannot be negative", adp.Name)
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
