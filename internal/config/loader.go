package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies REBAL_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated;
// the caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known REBAL_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Rebalance ──
	setStr(&cfg.Rebalance.Account, "REBAL_ACCOUNT")
	setDuration(&cfg.Rebalance.AuctionLength, "REBAL_AUCTION_LENGTH")
	setFloat64(&cfg.Rebalance.MaxTradeSlippage, "REBAL_MAX_TRADE_SLIPPAGE")
	setFloat64(&cfg.Rebalance.MinTradeVolume, "REBAL_MIN_TRADE_VOLUME")
	setFloat64(&cfg.Rebalance.MaxTradeVolume, "REBAL_MAX_TRADE_VOLUME")
	setFloat64(&cfg.Rebalance.DustAmount, "REBAL_DUST_AMOUNT")
	setFloat64(&cfg.Rebalance.MinBidSize, "REBAL_MIN_BID_SIZE")
	setDuration(&cfg.Rebalance.TradingDelay, "REBAL_TRADING_DELAY")
	setDuration(&cfg.Rebalance.Heartbeat, "REBAL_HEARTBEAT")
	setDuration(&cfg.Rebalance.PriceMaxAge, "REBAL_PRICE_MAX_AGE")
	setStringSlice(&cfg.Rebalance.HintOrder, "REBAL_HINT_ORDER")

	// ── Venue ──
	setStr(&cfg.Venue.BaseURL, "REBAL_VENUE_BASE_URL")
	setStr(&cfg.Venue.APIKey, "REBAL_VENUE_API_KEY")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "REBAL_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "REBAL_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "REBAL_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "REBAL_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "REBAL_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "REBAL_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "REBAL_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "REBAL_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "REBAL_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "REBAL_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "REBAL_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "REBAL_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "REBAL_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "REBAL_REDIS_POOL_SIZE")
	setBool(&cfg.Redis.TLSEnabled, "REBAL_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "REBAL_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "REBAL_S3_REGION")
	setStr(&cfg.S3.Bucket, "REBAL_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "REBAL_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "REBAL_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "REBAL_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "REBAL_S3_FORCE_PATH_STYLE")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "REBAL_ARCHIVE_ENABLED")
	setInt(&cfg.Archive.RetentionDays, "REBAL_ARCHIVE_RETENTION_DAYS")
	setDuration(&cfg.Archive.Interval, "REBAL_ARCHIVE_INTERVAL")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "REBAL_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "REBAL_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "REBAL_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "REBAL_SERVER_API_KEY")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "REBAL_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "REBAL_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "REBAL_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "REBAL_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "REBAL_MODE")
	setStr(&cfg.LogLevel, "REBAL_LOG_LEVEL")
}

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				out = append(out, s)
			}
		}
		if len(out) > 0 {
			*dst = out
		}
	}
}
