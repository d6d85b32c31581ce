package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trade-gateway/src/models"
)

func validConfig() *Config {
	return &Config{MConfig: &models.MConfig{
		Name:     "trade-gateway",
		Host:     "127.0.0.1",
		Port:     8080,
		AlgoDir:  "./algos",
		StoreDir: "./store",
		Storage: models.MStorageConfig{
			DBType: "sqlite",
			DBPath: ":memory:",
		},
		Network: models.MNetworkConfig{
			RequestTimeout:     10,
			MaxRetries:         3,
			ConcurrentRequests: 4,
		},
		MarketData: models.MFeedsConfig{
			UpdateIntervalSeconds: 5,
			Feeds: []models.MFeedConfig{
				{Name: "sim", Type: "sim"},
			},
		},
		Exchange: models.MExchangeConfig{
			Adapters: []models.MExchangeAdapterConfig{
				{Name: "paper", Type: "paper"},
			},
		},
	}}
}

func TestValidateAppliesPublishDefault(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 1000, cfg.PublishIntervalMs)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty name", func(c *Config) { c.Name = "" }},
		{"empty host", func(c *Config) { c.Host = "" }},
		{"privileged port", func(c *Config) { c.Port = 80 }},
		{"negative publish interval", func(c *Config) { c.PublishIntervalMs = -1 }},
		{"empty algo dir", func(c *Config) { c.AlgoDir = "" }},
		{"empty store dir", func(c *Config) { c.StoreDir = "" }},
		{"empty db type", func(c *Config) { c.Storage.DBType = "" }},
		{"sqlite without path", func(c *Config) { c.Storage.DBPath = "" }},
		{"postgres without dsn", func(c *Config) { c.Storage.DBType = "postgres" }},
		{"zero timeout", func(c *Config) { c.Network.RequestTimeout = 0 }},
		{"negative retries", func(c *Config) { c.Network.MaxRetries = -1 }},
		{"zero concurrency", func(c *Config) { c.Network.ConcurrentRequests = 0 }},
		{"zero update interval", func(c *Config) { c.MarketData.UpdateIntervalSeconds = 0 }},
		{"unnamed feed", func(c *Config) { c.MarketData.Feeds[0].Name = "" }},
		{"unknown feed type", func(c *Config) { c.MarketData.Feeds[0].Type = "ftp" }},
		{"http feed without url", func(c *Config) {
			c.MarketData.Feeds[0] = models.MFeedConfig{Name: "q", Type: "http"}
		}},
		{"unknown adapter type", func(c *Config) { c.Exchange.Adapters[0].Type = "fix" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestSaveAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg := validConfig()
	cfg.PublishIntervalMs = 250
	require.NoError(t, cfg.Save(path))

	loaded, err := NewConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "trade-gateway", loaded.Name)
	assert.Equal(t, 250, loaded.PublishIntervalMs)
	assert.Equal(t, "sqlite", loaded.Storage.DBType)
	assert.Len(t, loaded.MarketData.Feeds, 1)
}

func TestNewConfigMissingFile(t *testing.T) {
	_, err := NewConfig(filepath.Join(os.TempDir(), "definitely-missing.yaml"))
	assert.Error(t, err)
}
