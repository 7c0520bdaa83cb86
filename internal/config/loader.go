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
// built-in defaults, applies APEX_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
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

// applyEnvOverrides reads well-known APEX_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Wallet ──
	setStr(&cfg.Wallet.PrivateKey, "APEX_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.EncryptedKeyPath, "APEX_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "APEX_WALLET_KEY_PASSWORD")

	// ── Rpc ──
	setDuration(&cfg.Rpc.AttemptTimeout, "APEX_RPC_ATTEMPT_TIMEOUT")
	setInt(&cfg.Rpc.MaxAttempts, "APEX_RPC_MAX_ATTEMPTS")
	setDuration(&cfg.Rpc.BackoffBase, "APEX_RPC_BACKOFF_BASE")
	setDuration(&cfg.Rpc.BackoffCap, "APEX_RPC_BACKOFF_CAP")
	setFloat64(&cfg.Rpc.JitterPct, "APEX_RPC_JITTER_PCT")
	setInt(&cfg.Rpc.BreakerThreshold, "APEX_RPC_BREAKER_THRESHOLD")
	setDuration(&cfg.Rpc.BreakerCoolDown, "APEX_RPC_BREAKER_COOL_DOWN")

	// ── Coordinator ──
	setFloat64(&cfg.Coordinator.MinProfitUSD, "APEX_COORDINATOR_MIN_PROFIT_USD")
	setDuration(&cfg.Coordinator.DedupWindow, "APEX_COORDINATOR_DEDUP_WINDOW")
	setDuration(&cfg.Coordinator.CoalesceDelay, "APEX_COORDINATOR_COALESCE_DELAY")
	setDuration(&cfg.Coordinator.GasTTL, "APEX_COORDINATOR_GAS_TTL")
	setInt64(&cfg.Coordinator.GasPerHop, "APEX_COORDINATOR_GAS_PER_HOP")
	setFloat64(&cfg.Coordinator.EthPriceUSD, "APEX_COORDINATOR_ETH_PRICE_USD")

	// ── Router ──
	setFloat64(&cfg.Router.ScaleThresholdUSD, "APEX_ROUTER_SCALE_THRESHOLD_USD")
	setInt64(&cfg.Router.MinMultiplier, "APEX_ROUTER_MIN_MULTIPLIER")
	setInt64(&cfg.Router.MaxMultiplier, "APEX_ROUTER_MAX_MULTIPLIER")
	setFloat64(&cfg.Router.MaxPositionUSD, "APEX_ROUTER_MAX_POSITION_USD")
	setFloat64(&cfg.Router.MaxFlashloanPositionUSD, "APEX_ROUTER_MAX_FLASHLOAN_POSITION_USD")
	setFloat64(&cfg.Router.LiquidityRatio, "APEX_ROUTER_LIQUIDITY_RATIO")
	setFloat64(&cfg.Router.SimulatedBalanceUSD, "APEX_ROUTER_SIMULATED_BALANCE_USD")

	// ── Strategies ──
	setStringSlice(&cfg.Strategies.Active, "APEX_STRATEGIES_ACTIVE")
	setBool(&cfg.Strategies.MultiHop.Enabled, "APEX_STRATEGIES_MULTI_HOP_ENABLED")
	setFloat64(&cfg.Strategies.MultiHop.StartAmountUSD, "APEX_STRATEGIES_MULTI_HOP_START_AMOUNT_USD")
	setFloat64(&cfg.Strategies.MultiHop.MinNetUSD, "APEX_STRATEGIES_MULTI_HOP_MIN_NET_USD")
	setDuration(&cfg.Strategies.MultiHop.ScanInterval, "APEX_STRATEGIES_MULTI_HOP_SCAN_INTERVAL")
	setBool(&cfg.Strategies.EventHunter.Enabled, "APEX_STRATEGIES_EVENT_HUNTER_ENABLED")
	setFloat64(&cfg.Strategies.EventHunter.WhaleSwapUSD, "APEX_STRATEGIES_EVENT_HUNTER_WHALE_SWAP_USD")
	setFloat64(&cfg.Strategies.EventHunter.LargeTransferUSD, "APEX_STRATEGIES_EVENT_HUNTER_LARGE_TRANSFER_USD")
	setBool(&cfg.Strategies.Liquidity.Enabled, "APEX_STRATEGIES_LIQUIDITY_ENABLED")
	setFloat64(&cfg.Strategies.Liquidity.ImbalanceRatio, "APEX_STRATEGIES_LIQUIDITY_IMBALANCE_RATIO")
	setFloat64(&cfg.Strategies.Liquidity.NotionalUSD, "APEX_STRATEGIES_LIQUIDITY_NOTIONAL_USD")

	// ── Quotes ──
	setStr(&cfg.Quotes.BaseURL, "APEX_QUOTES_BASE_URL")
	setStr(&cfg.Quotes.APIKey, "APEX_QUOTES_API_KEY")
	setDuration(&cfg.Quotes.Timeout, "APEX_QUOTES_TIMEOUT")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "APEX_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "APEX_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "APEX_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "APEX_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "APEX_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "APEX_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "APEX_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "APEX_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "APEX_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "APEX_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "APEX_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "APEX_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "APEX_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "APEX_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "APEX_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "APEX_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "APEX_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "APEX_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "APEX_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "APEX_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "APEX_S3_REGION")
	setStr(&cfg.S3.Bucket, "APEX_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "APEX_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "APEX_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "APEX_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "APEX_S3_FORCE_PATH_STYLE")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "APEX_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "APEX_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "APEX_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "APEX_SERVER_API_KEY")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "APEX_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "APEX_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "APEX_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "APEX_NOTIFY_EVENTS")
	setFloat64(&cfg.Notify.FloorUSD, "APEX_NOTIFY_FLOOR_USD")

	// ── Monitor ──
	setDuration(&cfg.Monitor.Interval, "APEX_MONITOR_INTERVAL")
	setDuration(&cfg.Monitor.DegradedAfter, "APEX_MONITOR_DEGRADED_AFTER")

	// ── Top-level ──
	setStr(&cfg.Mode, "APEX_MODE")
	setStr(&cfg.LogLevel, "APEX_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

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

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
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
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
