package config

import (
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAsset = "0x00000000000000000000000000000000000000aa"

// simDefaults returns a Defaults config that passes validation: sim mode
// needs a target basket but no external services.
func simDefaults() Config {
	cfg := Defaults()
	cfg.Mode = "sim"
	cfg.Rebalance.Targets = []TargetConfig{{Asset: testAsset, Amount: 100}}
	return cfg
}

func TestDefaultsValidateForSimMode(t *testing.T) {
	cfg := simDefaults()
	assert.NoError(t, cfg.Validate())
}

func TestValidateCollectsEveryProblem(t *testing.T) {
	cfg := simDefaults()
	cfg.Mode = "banana"
	cfg.LogLevel = "loud"
	cfg.Rebalance.Account = ""
	cfg.Rebalance.MaxTradeSlippage = 1.5
	cfg.Rebalance.MaxTradeVolume = -1

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
	assert.Contains(t, err.Error(), "unknown log_level")
	assert.Contains(t, err.Error(), "account must not be empty")
	assert.Contains(t, err.Error(), "max_trade_slippage")
	assert.Contains(t, err.Error(), "max_trade_volume")
}

func TestValidateRunModeRequiresExternals(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "run"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "venue: base_url is required")
	assert.Contains(t, err.Error(), "at least one target")

	cfg.Venue.BaseURL = "https://venue.example.com"
	cfg.Rebalance.Targets = []TargetConfig{{Asset: testAsset, Amount: 100}}
	assert.NoError(t, cfg.Validate())
}

func TestValidateMonitorModeSkipsVenueAndTargets(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "monitor"
	assert.NoError(t, cfg.Validate())
}

func TestValidateTargets(t *testing.T) {
	cfg := simDefaults()
	held := -1.0
	cfg.Rebalance.Targets = []TargetConfig{
		{Asset: "not-an-address", Amount: 100},
		{Asset: testAsset, Amount: -1, Price: -2, Held: &held},
	}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid asset")
	assert.Contains(t, err.Error(), "amount must be >= 0")
	assert.Contains(t, err.Error(), "price must be >= 0")
	assert.Contains(t, err.Error(), "held must be >= 0")
}

func TestValidateArchiveRequiresS3(t *testing.T) {
	cfg := simDefaults()
	cfg.Archive.Enabled = true
	cfg.S3.Endpoint = ""
	cfg.S3.Bucket = ""
	cfg.Archive.RetentionDays = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "s3: endpoint")
	assert.Contains(t, err.Error(), "s3: bucket")
	assert.Contains(t, err.Error(), "retention_days")
}

func TestFix(t *testing.T) {
	assert.Zero(t, Fix(1).Cmp(new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)))
	assert.Zero(t, Fix(0).Sign())

	// 0.01 at 1e18 scale.
	want := new(big.Int).Exp(big.NewInt(10), big.NewInt(16), nil)
	assert.Zero(t, Fix(0.01).Cmp(want))

	wantLarge := new(big.Int).Mul(big.NewInt(1_000_000), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
	assert.Zero(t, Fix(1_000_000).Cmp(wantLarge))

	// Integers past 2^53-scale products still convert exactly.
	wantHuge := new(big.Int).Mul(big.NewInt(4_000_000_000), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
	assert.Zero(t, Fix(4e9).Cmp(wantHuge))
}

func TestParseTargets(t *testing.T) {
	r := RebalanceConfig{Targets: []TargetConfig{
		{Asset: testAsset, Amount: 100},
		{Asset: "0x00000000000000000000000000000000000000bb", Amount: 2.5},
	}}

	assets, needed, err := r.ParseTargets()
	require.NoError(t, err)
	require.Len(t, assets, 2)
	assert.Equal(t, common.HexToAddress(testAsset), assets[0])
	assert.Zero(t, needed[0].Cmp(Fix(100)))
	assert.Zero(t, needed[1].Cmp(Fix(2.5)))

	r.Targets = append(r.Targets, TargetConfig{Asset: "bogus"})
	_, _, err = r.ParseTargets()
	assert.Error(t, err)
}

func TestParseHintOrder(t *testing.T) {
	r := RebalanceConfig{HintOrder: []string{testAsset}}
	hints, err := r.ParseHintOrder()
	require.NoError(t, err)
	require.Len(t, hints, 1)
	assert.Equal(t, common.HexToAddress(testAsset), hints[0])

	r.HintOrder = []string{"nope"}
	_, err = r.ParseHintOrder()
	assert.Error(t, err)
}

func TestDurationUnmarshalText(t *testing.T) {
	var d duration
	require.NoError(t, d.UnmarshalText([]byte("45s")))
	assert.Equal(t, 45*time.Second, d.Duration)

	assert.Error(t, d.UnmarshalText([]byte("not-a-duration")))

	text, err := duration{90 * time.Second}.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "1m30s", string(text))
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	body := `
mode = "sim"
log_level = "debug"

[rebalance]
auction_length = "15m"
max_trade_slippage = 0.02

[[rebalance.target]]
asset = "` + testAsset + `"
amount = 100.0
price = 2.0
held = 40.0
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "sim", cfg.Mode)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 15*time.Minute, cfg.Rebalance.AuctionLength.Duration)
	assert.Equal(t, 0.02, cfg.Rebalance.MaxTradeSlippage)

	// Untouched fields keep their defaults.
	assert.Equal(t, "backing-manager", cfg.Rebalance.Account)
	assert.Equal(t, 30*time.Second, cfg.Rebalance.Heartbeat.Duration)

	require.Len(t, cfg.Rebalance.Targets, 1)
	tgt := cfg.Rebalance.Targets[0]
	assert.Equal(t, testAsset, tgt.Asset)
	assert.Equal(t, 100.0, tgt.Amount)
	assert.Equal(t, 2.0, tgt.Price)
	require.NotNil(t, tgt.Held)
	assert.Equal(t, 40.0, *tgt.Held)

	assert.NoError(t, cfg.Validate())
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("REBAL_MODE", "monitor")
	t.Setenv("REBAL_REDIS_ADDR", "redis.internal:6379")
	t.Setenv("REBAL_POSTGRES_PORT", "5433")
	t.Setenv("REBAL_ARCHIVE_ENABLED", "true")
	t.Setenv("REBAL_HEARTBEAT", "5s")
	t.Setenv("REBAL_SERVER_CORS_ORIGINS", "https://a.example.com, https://b.example.com")

	cfg := Defaults()
	applyEnvOverrides(&cfg)

	assert.Equal(t, "monitor", cfg.Mode)
	assert.Equal(t, "redis.internal:6379", cfg.Redis.Addr)
	assert.Equal(t, 5433, cfg.Postgres.Port)
	assert.True(t, cfg.Archive.Enabled)
	assert.Equal(t, 5*time.Second, cfg.Rebalance.Heartbeat.Duration)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.Server.CORSOrigins)
}

func TestEnvOverridesIgnoreUnparseableValues(t *testing.T) {
	t.Setenv("REBAL_POSTGRES_PORT", "not-a-number")
	t.Setenv("REBAL_HEARTBEAT", "soon")

	cfg := Defaults()
	applyEnvOverrides(&cfg)

	assert.Equal(t, 5432, cfg.Postgres.Port)
	assert.Equal(t, 30*time.Second, cfg.Rebalance.Heartbeat.Duration)
}
