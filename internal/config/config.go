// Package config defines the top-level configuration for the rebalancer
// and provides validation helpers.
package config

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by REBAL_* environment
// variables.
type Config struct {
	Rebalance RebalanceConfig `toml:"rebalance"`
	Venue     VenueConfig     `toml:"venue"`
	Postgres  PostgresConfig  `toml:"postgres"`
	Redis     RedisConfig     `toml:"redis"`
	S3        S3Config        `toml:"s3"`
	Archive   ArchiveConfig   `toml:"archive"`
	Server    ServerConfig    `toml:"server"`
	Notify    NotifyConfig    `toml:"notify"`
	Mode      string          `toml:"mode"`
	LogLevel  string          `toml:"log_level"`
}

// RebalanceConfig holds the backing manager's trading parameters. Volumes
// and the dust threshold are unit-of-account values; fractions are plain
// decimals (0.01 = 1%).
type RebalanceConfig struct {
	Account          string   `toml:"account"`
	AuctionLength    duration `toml:"auction_length"`
	MaxTradeSlippage float64  `toml:"max_trade_slippage"`
	MinTradeVolume   float64  `toml:"min_trade_volume"`
	MaxTradeVolume   float64  `toml:"max_trade_volume"`
	DustAmount       float64  `toml:"dust_amount"`
	MinBidSize       float64  `toml:"min_bid_size"`
	TradingDelay     duration `toml:"trading_delay"`
	Heartbeat        duration `toml:"heartbeat"`
	PriceMaxAge      duration `toml:"price_max_age"`
	// HintOrder lists asset addresses in tie-break priority order for
	// surplus/deficit selection.
	HintOrder []string `toml:"hint_order"`
	// Targets defines the target basket: one entry per constituent.
	Targets []TargetConfig `toml:"target"`
}

// TargetConfig is one basket constituent. Amount is the needed quantity in
// whole tokens; Price seeds the sim oracle (unit of account per whole
// token, defaults to 1.0); Held seeds the sim ledger (defaults to Amount).
type TargetConfig struct {
	Asset  string   `toml:"asset"`
	Amount float64  `toml:"amount"`
	Price  float64  `toml:"price"`
	Held   *float64 `toml:"held"`
}

// VenueConfig holds the external auction venue gateway parameters.
type VenueConfig struct {
	BaseURL string `toml:"base_url"`
	APIKey  string `toml:"api_key"`
}

// PostgresConfig holds PostgreSQL connection parameters for the
// trade-record store.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters for the price cache.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for the
// settlement archive.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ArchiveConfig controls archival of old trade records.
type ArchiveConfig struct {
	Enabled       bool     `toml:"enabled"`
	RetentionDays int      `toml:"retention_days"`
	Interval      duration `toml:"interval"`
}

// ServerConfig holds HTTP server parameters for the monitoring API.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "30m", "5s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder
// can parse duration strings.
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// fixOne is 1e18 as an exact rational conversion anchor.
var fixOne = new(big.Rat).SetInt64(1_000_000_000_000_000_000)

// Fix converts a plain decimal to a 1e18-scale big integer, rounding down.
// The conversion goes through big.Rat so products above 2^53 keep every bit
// of the float64 input instead of being rounded back to 53-bit precision.
func Fix(v float64) *big.Int {
	r := new(big.Rat).SetFloat64(v)
	if r == nil {
		return new(big.Int)
	}
	r.Mul(r, fixOne)
	return new(big.Int).Div(r.Num(), r.Denom())
}

// ParseTargets converts the configured basket into asset addresses and
// needed quantities at 1e18 scale.
func (r RebalanceConfig) ParseTargets() ([]common.Address, []*big.Int, error) {
	assets := make([]common.Address, 0, len(r.Targets))
	needed := make([]*big.Int, 0, len(r.Targets))
	for _, t := range r.Targets {
		if !common.IsHexAddress(t.Asset) {
			return nil, nil, fmt.Errorf("config: invalid target asset %q", t.Asset)
		}
		assets = append(assets, common.HexToAddress(t.Asset))
		needed = append(needed, Fix(t.Amount))
	}
	return assets, needed, nil
}

// ParseHintOrder converts the configured hint addresses to assets.
func (r RebalanceConfig) ParseHintOrder() ([]common.Address, error) {
	out := make([]common.Address, 0, len(r.HintOrder))
	for _, s := range r.HintOrder {
		if !common.IsHexAddress(s) {
			return nil, fmt.Errorf("config: invalid hint address %q", s)
		}
		out = append(out, common.HexToAddress(s))
	}
	return out, nil
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Rebalance: RebalanceConfig{
			Account:          "backing-manager",
			AuctionLength:    duration{30 * time.Minute},
			MaxTradeSlippage: 0.01,
			MinTradeVolume:   100,
			MaxTradeVolume:   1_000_000,
			DustAmount:       1,
			MinBidSize:       0.01,
			TradingDelay:     duration{10 * time.Minute},
			Heartbeat:        duration{30 * time.Second},
			PriceMaxAge:      duration{5 * time.Minute},
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "rebalancer",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			DB:       0,
			PoolSize: 20,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "rebalancer-data",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Archive: ArchiveConfig{
			Enabled:       false,
			RetentionDays: 90,
			Interval:      duration{24 * time.Hour},
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000"},
		},
		Notify: NotifyConfig{
			Events: []string{"trade_started", "trade_settled", "breaker_tripped"},
		},
		Mode:     "run",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"run":     true,
	"sim":     true,
	"monitor": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and
// returns a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: run, sim, monitor)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Rebalance
	r := c.Rebalance
	if r.Account == "" {
		errs = append(errs, "rebalance: account must not be empty")
	}
	if r.AuctionLength.Duration <= 0 {
		errs = append(errs, "rebalance: auction_length must be positive")
	}
	if r.MaxTradeSlippage < 0 || r.MaxTradeSlippage >= 1 {
		errs = append(errs, fmt.Sprintf("rebalance: max_trade_slippage must be in [0, 1), got %v", r.MaxTradeSlippage))
	}
	if r.MinTradeVolume < 0 {
		errs = append(errs, "rebalance: min_trade_volume must be >= 0")
	}
	if r.MaxTradeVolume <= 0 {
		errs = append(errs, "rebalance: max_trade_volume must be > 0")
	}
	if r.MaxTradeVolume < r.MinTradeVolume {
		errs = append(errs, "rebalance: max_trade_volume must not be below min_trade_volume")
	}
	if r.DustAmount < 0 {
		errs = append(errs, "rebalance: dust_amount must be >= 0")
	}
	if r.MinBidSize < 0 || r.MinBidSize > 1 {
		errs = append(errs, fmt.Sprintf("rebalance: min_bid_size must be in [0, 1], got %v", r.MinBidSize))
	}
	if r.TradingDelay.Duration < 0 {
		errs = append(errs, "rebalance: trading_delay must be >= 0")
	}
	if r.Heartbeat.Duration <= 0 {
		errs = append(errs, "rebalance: heartbeat must be positive")
	}
	if r.PriceMaxAge.Duration <= 0 {
		errs = append(errs, "rebalance: price_max_age must be positive")
	}
	for _, s := range r.HintOrder {
		if !common.IsHexAddress(s) {
			errs = append(errs, fmt.Sprintf("rebalance: invalid hint_order address %q", s))
		}
	}
	for i, t := range r.Targets {
		if !common.IsHexAddress(t.Asset) {
			errs = append(errs, fmt.Sprintf("rebalance: target %d: invalid asset %q", i, t.Asset))
		}
		if t.Amount < 0 {
			errs = append(errs, fmt.Sprintf("rebalance: target %d: amount must be >= 0", i))
		}
		if t.Price < 0 {
			errs = append(errs, fmt.Sprintf("rebalance: target %d: price must be >= 0", i))
		}
		if t.Held != nil && *t.Held < 0 {
			errs = append(errs, fmt.Sprintf("rebalance: target %d: held must be >= 0", i))
		}
	}

	mode := strings.ToLower(c.Mode)

	// Venue — required for the live mode only; sim runs in-process.
	if mode == "run" && c.Venue.BaseURL == "" {
		errs = append(errs, "venue: base_url is required for run mode")
	}

	if (mode == "run" || mode == "sim") && len(r.Targets) == 0 {
		errs = append(errs, "rebalance: at least one target is required for run and sim modes")
	}

	// Postgres
	if mode == "run" || mode == "monitor" {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 || c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must be between 0 and pool_max_conns")
		}
	}

	// Redis — the live mode reads oracle prices through it.
	if mode == "run" {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// Archive
	if c.Archive.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when archive is enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when archive is enabled")
		}
		if c.Archive.RetentionDays < 1 {
			errs = append(errs, "archive: retention_days must be >= 1")
		}
		if c.Archive.Interval.Duration <= 0 {
			errs = append(errs, "archive: interval must be positive")
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
