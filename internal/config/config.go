// Package config loads the indexer configuration from defaults, an
// optional YAML file, and CLI overrides, in that order.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Known program addresses on mainnet.
const (
	DefaultGameProgram        = "EKzLHZyU6WVfhYVXcE6R4hRE4YuWrva8NeLGMYB7ZDU6"
	DefaultMarketplaceProgram = "4zHkHBrSyBsi2L5J1ikZ5kQwNcGMcE2x3wKrG3FY7UqC"
)

// Config holds the full indexer configuration.
type Config struct {
	// Stream holds the WebSocket subscription settings.
	Stream StreamConfig `yaml:"stream"`

	// RPC holds the HTTP endpoint used for enrichment and account reads.
	RPC RPCConfig `yaml:"rpc"`

	// Programs are the on-chain programs whose events are indexed.
	Programs ProgramsConfig `yaml:"programs"`

	// Database holds PostgreSQL settings.
	Database DatabaseConfig `yaml:"database"`

	// Redis holds the pub/sub notifier settings. Empty addr disables it.
	Redis RedisConfig `yaml:"redis"`

	// NATS holds the alternative notifier settings. Empty url disables it.
	NATS NATSConfig `yaml:"nats"`

	// Oracle holds the price API settings. Empty base_url disables
	// payment verification.
	Oracle OracleConfig `yaml:"oracle"`

	// Verify holds payment check thresholds.
	Verify VerifyConfig `yaml:"verify"`

	// Indexer holds pipeline tuning.
	Indexer IndexerConfig `yaml:"indexer"`
}

type StreamConfig struct {
	Endpoint             string        `yaml:"endpoint"`
	Commitment           string        `yaml:"commitment"`
	ReconnectBase        time.Duration `yaml:"reconnect_base"`
	MaxReconnectAttempts int           `yaml:"max_reconnect_attempts"`
}

type RPCConfig struct {
	Endpoint string `yaml:"endpoint"`
}

type ProgramsConfig struct {
	Game        string `yaml:"game"`
	Marketplace string `yaml:"marketplace"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type NATSConfig struct {
	URL string `yaml:"url"`
}

type OracleConfig struct {
	BaseURL  string        `yaml:"base_url"`
	Timeout  time.Duration `yaml:"timeout"`
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

type VerifyConfig struct {
	ToleranceBP     uint32        `yaml:"tolerance_bp"`
	MaxQuoteAge     time.Duration `yaml:"max_quote_age"`
	MinMarketCapUSD int64         `yaml:"min_market_cap_usd"`
}

type IndexerConfig struct {
	QueueSize int `yaml:"queue_size"`

	// PlayTimeout fails pending plays whose resolution never landed.
	// Zero disables the sweep.
	PlayTimeout time.Duration `yaml:"play_timeout"`

	// SweepInterval is how often the stale-play sweep runs.
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// Load builds the configuration from defaults and the optional YAML file.
func Load(configPath string) (*Config, error) {
	cfg := &Config{
		Stream: StreamConfig{
			Endpoint:             "wss://api.mainnet-beta.solana.com",
			Commitment:           "confirmed",
			ReconnectBase:        2 * time.Second,
			MaxReconnectAttempts: 10,
		},
		RPC: RPCConfig{
			Endpoint: "https://api.mainnet-beta.solana.com",
		},
		Programs: ProgramsConfig{
			Game:        DefaultGameProgram,
			Marketplace: DefaultMarketplaceProgram,
		},
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "gacha",
			Password: "gacha_dev",
			Database: "gacha",
			SSLMode:  "disable",
		},
		Oracle: OracleConfig{
			Timeout:  10 * time.Second,
			CacheTTL: 5 * time.Second,
		},
		Verify: VerifyConfig{
			ToleranceBP:     100,
			MaxQuoteAge:     60 * time.Second,
			MinMarketCapUSD: 100_000,
		},
		Indexer: IndexerConfig{
			QueueSize:     1024,
			PlayTimeout:   10 * time.Minute,
			SweepInterval: time.Minute,
		},
	}

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	return cfg, nil
}

// Validate rejects configurations the indexer cannot start with.
func (c *Config) Validate() error {
	if c.Stream.Endpoint == "" {
		return fmt.Errorf("stream.endpoint is required")
	}
	if c.Programs.Game == "" {
		return fmt.Errorf("programs.game is required")
	}
	if c.Database.Host == "" || c.Database.Database == "" {
		return fmt.Errorf("database host and name are required")
	}
	return nil
}
