// Package config defines the top-level configuration for the opportunity
// coordination engine and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by APEX_* environment variables.
type Config struct {
	Wallet      WalletConfig      `toml:"wallet"`
	Chains      []ChainConfig     `toml:"chains"`
	Rpc         RpcConfig         `toml:"rpc"`
	Coordinator CoordinatorConfig `toml:"coordinator"`
	Router      RouterConfig      `toml:"router"`
	Strategies  StrategiesConfig  `toml:"strategies"`
	Flashloan   FlashloanConfig   `toml:"flashloan"`
	Quotes      QuotesConfig      `toml:"quotes"`
	Postgres    PostgresConfig    `toml:"postgres"`
	Redis       RedisConfig       `toml:"redis"`
	S3          S3Config          `toml:"s3"`
	Server      ServerConfig      `toml:"server"`
	Notify      NotifyConfig      `toml:"notify"`
	Monitor     MonitorConfig     `toml:"monitor"`
	Mode        string            `toml:"mode"`
	LogLevel    string            `toml:"log_level"`
}

// WalletConfig holds the funding wallet credentials.
type WalletConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// ChainConfig names one chain the engine reads from and its RPC endpoints.
// When UsePublic is set, the built-in public endpoints for the chain are
// appended after any explicitly configured ones, at a lower priority.
type ChainConfig struct {
	Name      string           `toml:"name"`
	UsePublic bool             `toml:"use_public"`
	Endpoints []EndpointConfig `toml:"endpoints"`
}

// EndpointConfig is one candidate RPC endpoint. Lower priority tries first;
// equal priorities round-robin.
type EndpointConfig struct {
	URL      string `toml:"url"`
	Priority int    `toml:"priority"`
}

// RpcConfig holds the retry and circuit-breaker parameters shared by every
// endpoint.
type RpcConfig struct {
	AttemptTimeout   duration `toml:"attempt_timeout"`
	MaxAttempts      int      `toml:"max_attempts"`
	BackoffBase      duration `toml:"backoff_base"`
	BackoffCap       duration `toml:"backoff_cap"`
	JitterPct        float64  `toml:"jitter_pct"`
	BreakerThreshold int      `toml:"breaker_threshold"`
	BreakerCoolDown  duration `toml:"breaker_cool_down"`
}

// CoordinatorConfig holds the validation-pipeline parameters.
type CoordinatorConfig struct {
	MinProfitUSD  float64  `toml:"min_profit_usd"`
	DedupWindow   duration `toml:"dedup_window"`
	CoalesceDelay duration `toml:"coalesce_delay"`
	GasTTL        duration `toml:"gas_ttl"`
	GasPerHop     int64    `toml:"gas_per_hop"`
	EthPriceUSD   float64  `toml:"eth_price_usd"`
}

// RouterConfig holds the capital-routing parameters.
type RouterConfig struct {
	ScaleThresholdUSD       float64 `toml:"scale_threshold_usd"`
	MinMultiplier           int64   `toml:"min_multiplier"`
	MaxMultiplier           int64   `toml:"max_multiplier"`
	MaxPositionUSD          float64 `toml:"max_position_usd"`
	MaxFlashloanPositionUSD float64 `toml:"max_flashloan_position_usd"`
	LiquidityRatio          float64 `toml:"liquidity_ratio"`
	// SimulatedBalanceUSD sizes plans in scan mode, where no funding wallet
	// is configured.
	SimulatedBalanceUSD float64 `toml:"simulated_balance_usd"`
}

// StrategiesConfig holds per-strategy parameters. Active lists the strategy
// names to run concurrently; an empty list runs every enabled strategy.
type StrategiesConfig struct {
	Active      []string          `toml:"active"`
	MultiHop    MultiHopConfig    `toml:"multi_hop"`
	EventHunter EventHunterConfig `toml:"event_hunter"`
	Liquidity   LiquidityConfig   `toml:"liquidity"`
}

// MultiHopConfig holds config for the multi_hop cycle scanner.
type MultiHopConfig struct {
	Enabled        bool     `toml:"enabled"`
	MinHops        int      `toml:"min_hops"`
	MaxHops        int      `toml:"max_hops"`
	StartAmountUSD float64  `toml:"start_amount_usd"`
	MinNetUSD      float64  `toml:"min_net_usd"`
	ScanInterval   duration `toml:"scan_interval"`
	MaxStartTokens int      `toml:"max_start_tokens"`
	MaxPerScan     int      `toml:"max_per_scan"`
}

// EventHunterConfig holds config for the event_hunter strategy.
type EventHunterConfig struct {
	Enabled          bool     `toml:"enabled"`
	PollInterval     duration `toml:"poll_interval"`
	WhaleSwapUSD     float64  `toml:"whale_swap_usd"`
	LargeTransferUSD float64  `toml:"large_transfer_usd"`
	DeadlineBlocks   int64    `toml:"deadline_blocks"`
	DedupTTL         duration `toml:"dedup_ttl"`
	ImpactBps        int64    `toml:"impact_bps"`
	CaptureRatio     float64  `toml:"capture_ratio"`
}

// LiquidityConfig holds config for the predictive liquidity strategy.
type LiquidityConfig struct {
	Enabled        bool     `toml:"enabled"`
	Venues         []string `toml:"venues"`
	Pairs          []string `toml:"pairs"`
	Interval       duration `toml:"interval"`
	ImbalanceRatio float64  `toml:"imbalance_ratio"`
	MinConfidence  float64  `toml:"min_confidence"`
	MinHistory     int      `toml:"min_history"`
	HorizonBlocks  int64    `toml:"horizon_blocks"`
	NotionalUSD    float64  `toml:"notional_usd"`
}

// FlashloanConfig lists the flashloan providers the router may borrow from.
type FlashloanConfig struct {
	Providers []FlashloanProviderConfig `toml:"providers"`
}

// QuotesConfig points at the DEX quote-aggregation API. When BaseURL is empty
// the strategies that need quotes or depth are skipped at startup.
type QuotesConfig struct {
	BaseURL string   `toml:"base_url"`
	APIKey  string   `toml:"api_key"`
	Timeout duration `toml:"timeout"`
}

// FlashloanProviderConfig describes one flashloan pool.
type FlashloanProviderConfig struct {
	Name         string  `toml:"name"`
	FeeBps       int64   `toml:"fee_bps"`
	LiquidityUSD float64 `toml:"liquidity_usd"`
	Available    bool    `toml:"available"`
}

// PostgresConfig holds PostgreSQL connection parameters for the ledger.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
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

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for session archives.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
}

// NotifyConfig holds notification channel credentials. FloorUSD gates
// accepted-opportunity notifications so operators are not paged for dust.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
	FloorUSD          float64  `toml:"floor_usd"`
}

// MonitorConfig holds endpoint-health watchdog parameters.
type MonitorConfig struct {
	Interval      duration `toml:"interval"`
	DegradedAfter duration `toml:"degraded_after"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// publicEndpoints lists the built-in free RPC endpoints per chain, appended
// when a chain sets use_public. Order matters: earlier entries get a lower
// (better) priority offset.
var publicEndpoints = map[string][]string{
	"arbitrum": {
		"https://arb1.arbitrum.io/rpc",
		"https://arbitrum-one.publicnode.com",
		"https://1rpc.io/arb",
	},
	"ethereum": {
		"https://eth.llamarpc.com",
		"https://ethereum.publicnode.com",
		"https://1rpc.io/eth",
	},
	"polygon": {
		"https://polygon-rpc.com",
		"https://polygon-bor.publicnode.com",
	},
	"optimism": {
		"https://mainnet.optimism.io",
		"https://optimism.publicnode.com",
	},
	"base": {
		"https://mainnet.base.org",
		"https://base.publicnode.com",
	},
}

// PublicEndpoints returns the built-in public RPC URLs for a chain name, or
// nil when the chain has no presets.
func PublicEndpoints(chain string) []string {
	urls := publicEndpoints[strings.ToLower(chain)]
	out := make([]string, len(urls))
	copy(out, urls)
	return out
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Chains: []ChainConfig{
			{Name: "arbitrum", UsePublic: true},
		},
		Rpc: RpcConfig{
			AttemptTimeout:   duration{5 * time.Second},
			MaxAttempts:      3,
			BackoffBase:      duration{50 * time.Millisecond},
			BackoffCap:       duration{5 * time.Second},
			JitterPct:        0.5,
			BreakerThreshold: 3,
			BreakerCoolDown:  duration{30 * time.Second},
		},
		Coordinator: CoordinatorConfig{
			MinProfitUSD:  0.10,
			DedupWindow:   duration{10 * time.Second},
			CoalesceDelay: duration{500 * time.Millisecond},
			GasTTL:        duration{5 * time.Second},
			GasPerHop:     150_000,
			EthPriceUSD:   3000,
		},
		Router: RouterConfig{
			ScaleThresholdUSD:       0.20,
			MinMultiplier:           10,
			MaxMultiplier:           100,
			MaxPositionUSD:          10_000,
			MaxFlashloanPositionUSD: 250_000,
			LiquidityRatio:          0.5,
			SimulatedBalanceUSD:     1_000,
		},
		Strategies: StrategiesConfig{
			MultiHop: MultiHopConfig{
				Enabled:        true,
				MinHops:        2,
				MaxHops:        4,
				StartAmountUSD: 10,
				MinNetUSD:      0.05,
				ScanInterval:   duration{2 * time.Second},
				MaxStartTokens: 20,
				MaxPerScan:     50,
			},
			EventHunter: EventHunterConfig{
				Enabled:          true,
				PollInterval:     duration{500 * time.Millisecond},
				WhaleSwapUSD:     50_000,
				LargeTransferUSD: 100_000,
				DeadlineBlocks:   2,
				DedupTTL:         duration{time.Minute},
				ImpactBps:        50,
				CaptureRatio:     0.1,
			},
			Liquidity: LiquidityConfig{
				Enabled:        true,
				Venues:         []string{"uniswap_v3", "sushiswap"},
				Pairs:          []string{"WETH/USDC", "WETH/USDT"},
				Interval:       duration{time.Second},
				ImbalanceRatio: 1.5,
				MinConfidence:  0.6,
				MinHistory:     10,
				HorizonBlocks:  5,
				NotionalUSD:    1000,
			},
		},
		Flashloan: FlashloanConfig{
			Providers: []FlashloanProviderConfig{
				{Name: "aave_v3", FeeBps: 9, LiquidityUSD: 50_000_000, Available: true},
				{Name: "balancer", FeeBps: 0, LiquidityUSD: 10_000_000, Available: true},
			},
		},
		Quotes: QuotesConfig{
			Timeout: duration{10 * time.Second},
		},
		Postgres: PostgresConfig{
			Enabled:       false,
			Host:          "localhost",
			Port:          5432,
			Database:      "apexarb",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Enabled:    false,
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "apexarb-data",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		},
		Notify: NotifyConfig{
			Events:   []string{"execution", "degraded", "session"},
			FloorUSD: 1.0,
		},
		Monitor: MonitorConfig{
			Interval:      duration{5 * time.Second},
			DegradedAfter: duration{30 * time.Second},
		},
		Mode:     "scan",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"scan":    true,
	"trade":   true,
	"monitor": true,
	"full":    true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	// Mode
	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: scan, trade, monitor, full)", c.Mode))
	}

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Wallet — a credential source is required for trading modes.
	needsWallet := c.Mode == "trade" || c.Mode == "full"
	if needsWallet {
		if c.Wallet.PrivateKey == "" && c.Wallet.EncryptedKeyPath == "" {
			errs = append(errs, "wallet: either private_key or encrypted_key_path must be set for mode "+c.Mode)
		}
		if c.Wallet.EncryptedKeyPath != "" && c.Wallet.KeyPassword == "" {
			errs = append(errs, "wallet: key_password is required when encrypted_key_path is set")
		}
	}

	// Chains
	if len(c.Chains) == 0 {
		errs = append(errs, "chains: at least one chain must be configured")
	}
	for i, chain := range c.Chains {
		if chain.Name == "" {
			errs = append(errs, fmt.Sprintf("chains[%d]: name must not be empty", i))
			continue
		}
		if len(chain.Endpoints) == 0 && !chain.UsePublic {
			if len(PublicEndpoints(chain.Name)) == 0 {
				errs = append(errs, fmt.Sprintf("chains[%d] (%s): no endpoints configured and no public presets exist", i, chain.Name))
			} else {
				errs = append(errs, fmt.Sprintf("chains[%d] (%s): no endpoints configured; set use_public or list endpoints", i, chain.Name))
			}
		}
		for j, ep := range chain.Endpoints {
			if ep.URL == "" {
				errs = append(errs, fmt.Sprintf("chains[%d].endpoints[%d]: url must not be empty", i, j))
			}
		}
	}

	// Rpc
	if c.Rpc.MaxAttempts < 1 {
		errs = append(errs, "rpc: max_attempts must be >= 1")
	}
	if c.Rpc.JitterPct < 0 || c.Rpc.JitterPct > 1 {
		errs = append(errs, fmt.Sprintf("rpc: jitter_pct must be 0-1, got %g", c.Rpc.JitterPct))
	}
	if c.Rpc.BreakerThreshold < 1 {
		errs = append(errs, "rpc: breaker_threshold must be >= 1")
	}

	// Coordinator
	if c.Coordinator.MinProfitUSD < 0 {
		errs = append(errs, "coordinator: min_profit_usd must be >= 0")
	}
	if c.Coordinator.CoalesceDelay.Duration > c.Coordinator.DedupWindow.Duration {
		errs = append(errs, "coordinator: coalesce_delay must not exceed dedup_window")
	}

	// Router
	if c.Router.MinMultiplier < 1 {
		errs = append(errs, "router: min_multiplier must be >= 1")
	}
	if c.Router.MaxMultiplier < c.Router.MinMultiplier {
		errs = append(errs, "router: max_multiplier must be >= min_multiplier")
	}
	if c.Router.LiquidityRatio <= 0 || c.Router.LiquidityRatio > 1 {
		errs = append(errs, fmt.Sprintf("router: liquidity_ratio must be in (0, 1], got %g", c.Router.LiquidityRatio))
	}

	// Strategies
	if c.Strategies.MultiHop.Enabled {
		if c.Strategies.MultiHop.MinHops < 2 {
			errs = append(errs, "strategies.multi_hop: min_hops must be >= 2")
		}
		if c.Strategies.MultiHop.MaxHops < c.Strategies.MultiHop.MinHops {
			errs = append(errs, "strategies.multi_hop: max_hops must be >= min_hops")
		}
		if c.Strategies.MultiHop.StartAmountUSD <= 0 {
			errs = append(errs, "strategies.multi_hop: start_amount_usd must be > 0")
		}
	}
	if c.Strategies.EventHunter.Enabled {
		if c.Strategies.EventHunter.WhaleSwapUSD <= 0 {
			errs = append(errs, "strategies.event_hunter: whale_swap_usd must be > 0")
		}
		if c.Strategies.EventHunter.DeadlineBlocks < 1 {
			errs = append(errs, "strategies.event_hunter: deadline_blocks must be >= 1")
		}
	}
	if c.Strategies.Liquidity.Enabled {
		if c.Strategies.Liquidity.ImbalanceRatio <= 1 {
			errs = append(errs, "strategies.liquidity: imbalance_ratio must be > 1")
		}
		if c.Strategies.Liquidity.NotionalUSD <= 0 {
			errs = append(errs, "strategies.liquidity: notional_usd must be > 0")
		}
	}
	for _, name := range c.Strategies.Active {
		switch name {
		case "multi_hop", "event_hunter", "predictive_liquidity":
		default:
			errs = append(errs, fmt.Sprintf("strategies: unknown active strategy %q", name))
		}
	}

	// Flashloan
	for i, p := range c.Flashloan.Providers {
		if p.Name == "" {
			errs = append(errs, fmt.Sprintf("flashloan.providers[%d]: name must not be empty", i))
		}
		if p.FeeBps < 0 {
			errs = append(errs, fmt.Sprintf("flashloan.providers[%d] (%s): fee_bps must be >= 0", i, p.Name))
		}
	}

	// Postgres
	if c.Postgres.Enabled {
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
		if c.Postgres.PoolMinConns < 0 {
			errs = append(errs, "postgres: pool_min_conns must be >= 0")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
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
