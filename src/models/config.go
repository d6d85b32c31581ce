package models

// MConfig Structure
type MConfig struct {
	Name              string          `yaml:"name"`
	Host              string          `yaml:"host"`
	Port              int             `yaml:"port"`
	GrpcPort          int             `yaml:"grpc_port"` // 0 disables the control plane
	LogLevel          string          `yaml:"log_level"`
	LogFile           string          `yaml:"log_file"`
	PublishIntervalMs int             `yaml:"publish_interval_ms"`
	AlgoDir           string          `yaml:"algo_dir"`
	StoreDir          string          `yaml:"store_dir"`
	Storage           MStorageConfig  `yaml:"storage"`
	Network           MNetworkConfig  `yaml:"network"`
	MarketData        MFeedsConfig    `yaml:"market_data"`
	Exchange          MExchangeConfig `yaml:"exchange"`
}

type MStorageConfig struct {
	DBType             string `yaml:"db_type"`
	DBPath             string `yaml:"db_path"`
	DBConnectionString string `yaml:"db_connection_string"`
}

type MNetworkConfig struct {
	Enabled            bool     `yaml:"enabled"`
	Proxies            []string `yaml:"proxies"`
	RequestTimeout     int      `yaml:"timeout"`
	MaxRetries         int      `yaml:"retries"`
	ConcurrentRequests int      `yaml:"concurrent_requests"`
	UserAgent          string   `yaml:"user_agent"`
}

type MFeedsConfig struct {
	UpdateIntervalSeconds int           `yaml:"update_interval_seconds"`
	Feeds                 []MFeedConfig `yaml:"feeds"`
}

type MFeedConfig struct {
	Name     string `yaml:"name"`
	Type     string `yaml:"type"` // http | sim
	QuoteURL string `yaml:"quote_url"`
	APIKey   string `yaml:"api_key"` // Optional
}

type MExchangeConfig struct {
	Adapters []MExchangeAdapterConfig `yaml:"adapters"`
}

type MExchangeAdapterConfig struct {
	Name      string `yaml:"name"`
	Type      string `yaml:"type"` // paper
	LatencyMs int    `yaml:"latency_ms"`
}
