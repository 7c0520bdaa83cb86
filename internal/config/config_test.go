package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsAreValid(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
}

func TestDefaultsMatchEngineBaselines(t *testing.T) {
	cfg := Defaults()

	assert.Equal(t, 3, cfg.Rpc.BreakerThreshold)
	assert.Equal(t, 30*time.Second, cfg.Rpc.BreakerCoolDown.Duration)
	assert.Equal(t, 50*time.Millisecond, cfg.Rpc.BackoffBase.Duration)
	assert.Equal(t, 0.5, cfg.Rpc.JitterPct)

	assert.Equal(t, 0.20, cfg.Router.ScaleThresholdUSD)
	assert.Equal(t, int64(10), cfg.Router.MinMultiplier)
	assert.Equal(t, int64(100), cfg.Router.MaxMultiplier)
	assert.Equal(t, 0.5, cfg.Router.LiquidityRatio)

	assert.Equal(t, float64(50_000), cfg.Strategies.EventHunter.WhaleSwapUSD)
	assert.Equal(t, float64(100_000), cfg.Strategies.EventHunter.LargeTransferUSD)
	assert.Equal(t, int64(2), cfg.Strategies.EventHunter.DeadlineBlocks)
	assert.Equal(t, 1.5, cfg.Strategies.Liquidity.ImbalanceRatio)
	assert.InDelta(t, 2, cfg.Strategies.MultiHop.MinHops, 0)
	assert.InDelta(t, 4, cfg.Strategies.MultiHop.MaxHops, 0)
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	path := writeConfig(t, `
mode = "monitor"
log_level = "debug"

[coordinator]
min_profit_usd = 0.25
dedup_window = "20s"

[[chains]]
name = "ethereum"
use_public = true
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "monitor", cfg.Mode)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 0.25, cfg.Coordinator.MinProfitUSD)
	assert.Equal(t, 20*time.Second, cfg.Coordinator.DedupWindow.Duration)

	// File chains replace the default chain list.
	require.Len(t, cfg.Chains, 1)
	assert.Equal(t, "ethereum", cfg.Chains[0].Name)
	assert.True(t, cfg.Chains[0].UsePublic)

	// Untouched sections keep their defaults.
	assert.Equal(t, 3, cfg.Rpc.MaxAttempts)
	assert.Equal(t, int64(100), cfg.Router.MaxMultiplier)

	require.NoError(t, cfg.Validate())
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
[[chains]]
name = "arbitrum"
use_public = true
`)

	t.Setenv("APEX_MODE", "monitor")
	t.Setenv("APEX_COORDINATOR_MIN_PROFIT_USD", "1.5")
	t.Setenv("APEX_RPC_BREAKER_COOL_DOWN", "45s")
	t.Setenv("APEX_STRATEGIES_ACTIVE", "event_hunter, multi_hop")
	t.Setenv("APEX_SERVER_ENABLED", "false")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "monitor", cfg.Mode)
	assert.Equal(t, 1.5, cfg.Coordinator.MinProfitUSD)
	assert.Equal(t, 45*time.Second, cfg.Rpc.BreakerCoolDown.Duration)
	assert.Equal(t, []string{"event_hunter", "multi_hop"}, cfg.Strategies.Active)
	assert.False(t, cfg.Server.Enabled)
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "spectate"
	cfg.Chains = nil
	cfg.Rpc.MaxAttempts = 0
	cfg.Router.LiquidityRatio = 1.2
	cfg.Strategies.Active = []string{"liquidity"}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown mode "spectate"`)
	assert.Contains(t, err.Error(), "at least one chain")
	assert.Contains(t, err.Error(), "max_attempts")
	assert.Contains(t, err.Error(), "liquidity_ratio")
	assert.Contains(t, err.Error(), `unknown active strategy "liquidity"`)
}

func TestValidateRequiresWalletForTrading(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "trade"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "private_key or encrypted_key_path")

	cfg.Wallet.PrivateKey = "ab" // presence is enough at validation time
	require.NoError(t, cfg.Validate())
}

func TestValidateCoalesceBoundedByDedup(t *testing.T) {
	cfg := Defaults()
	cfg.Coordinator.CoalesceDelay = duration{15 * time.Second}
	cfg.Coordinator.DedupWindow = duration{10 * time.Second}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "coalesce_delay must not exceed dedup_window")
}

func TestPublicEndpointsKnownChains(t *testing.T) {
	assert.NotEmpty(t, PublicEndpoints("arbitrum"))
	assert.NotEmpty(t, PublicEndpoints("Ethereum"))
	assert.Empty(t, PublicEndpoints("solana"))
}

func TestRedactedConfigMasksSecrets(t *testing.T) {
	cfg := Defaults()
	cfg.Wallet.PrivateKey = "deadbeef"
	cfg.Quotes.APIKey = "qk"
	cfg.Postgres.Password = "pw"
	cfg.Redis.Password = "rp"
	cfg.S3.SecretKey = "sk"
	cfg.Notify.TelegramToken = "tt"

	red := RedactedConfig(&cfg)

	assert.Equal(t, "***", red.Wallet.PrivateKey)
	assert.Equal(t, "***", red.Quotes.APIKey)
	assert.Equal(t, "***", red.Postgres.Password)
	assert.Equal(t, "***", red.Redis.Password)
	assert.Equal(t, "***", red.S3.SecretKey)
	assert.Equal(t, "***", red.Notify.TelegramToken)

	// The original is untouched.
	assert.Equal(t, "deadbeef", cfg.Wallet.PrivateKey)
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}
