package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	s3blob "github.com/kevanbtc/apexarb/internal/blob/s3"
	"github.com/kevanbtc/apexarb/internal/cache/redis"
	"github.com/kevanbtc/apexarb/internal/config"
	"github.com/kevanbtc/apexarb/internal/domain"
	"github.com/kevanbtc/apexarb/internal/notify"
	"github.com/kevanbtc/apexarb/internal/platform/dexscan"
	"github.com/kevanbtc/apexarb/internal/rpc"
	"github.com/kevanbtc/apexarb/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency that the application
// modes need to operate. It is constructed by Wire and torn down by the
// returned cleanup function. Optional members are nil when the backing
// service is disabled in config.
type Dependencies struct {
	// RPC is the multi-endpoint chain client. Always present.
	RPC *rpc.Client

	// Caches (Redis, optional).
	GasCache domain.GasCache
	OppCache domain.OpportunityCache
	Locks    domain.LockManager

	// Ledger (Postgres, optional).
	OpportunityStore domain.OpportunityStore
	ExecutionStore   domain.ExecutionStore

	// Session archive (S3, optional; requires the ledger).
	Archiver domain.SessionArchiver

	// Quotes is the DEX quote-API adapter, nil when quotes.base_url is not
	// configured.
	Quotes *dexscan.Client

	// Notifier is always present; with no senders configured it is a no-op.
	Notifier *notify.Notifier

	// ReadyChecks pings every wired backing service, keyed by name.
	ReadyChecks map[string]func(ctx context.Context) error
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{
		ReadyChecks: make(map[string]func(ctx context.Context) error),
	}

	// --- Chain RPC client ---
	endpoints, err := endpointsFromConfig(cfg.Chains)
	if err != nil {
		return nil, nil, fmt.Errorf("wire: endpoints: %w", err)
	}
	pool, err := rpc.NewEndpointPool(endpoints)
	if err != nil {
		return nil, nil, fmt.Errorf("wire: endpoint pool: %w", err)
	}
	breaker := rpc.NewBreaker(rpc.BreakerConfig{
		FailureThreshold: cfg.Rpc.BreakerThreshold,
		CoolDown:         cfg.Rpc.BreakerCoolDown.Duration,
	}, logger)
	deps.RPC = rpc.NewClient(pool, breaker, rpc.ClientConfig{
		AttemptTimeout: cfg.Rpc.AttemptTimeout.Duration,
		MaxAttempts:    cfg.Rpc.MaxAttempts,
		BackoffBase:    cfg.Rpc.BackoffBase.Duration,
		BackoffCap:     cfg.Rpc.BackoffCap.Duration,
		JitterPct:      cfg.Rpc.JitterPct,
	}, logger)

	// --- Redis ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.GasCache = redis.NewGasCache(redisClient)
		deps.OppCache = redis.NewOpportunityCache(redisClient)
		deps.Locks = redis.NewLockManager(redisClient)
		deps.ReadyChecks["redis"] = redisClient.Ping
	}

	// --- PostgreSQL ledger ---
	if cfg.Postgres.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		deps.OpportunityStore = postgres.NewOpportunityStore(pool)
		deps.ExecutionStore = postgres.NewExecutionStore(pool)
		deps.ReadyChecks["postgres"] = pgClient.Pool().Ping
	}

	// --- S3 session archive ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })
		deps.ReadyChecks["s3"] = s3Client.Health

		if deps.OpportunityStore != nil && deps.ExecutionStore != nil {
			deps.Archiver = s3blob.NewSessionArchive(
				s3blob.NewWriter(s3Client),
				deps.OpportunityStore,
				deps.ExecutionStore,
			)
		} else {
			logger.Warn("wire: s3 enabled without postgres; session archive limited to the summary")
			deps.Archiver = s3blob.NewSessionArchive(s3blob.NewWriter(s3Client), nil, nil)
		}
	}

	// --- DEX quote API ---
	if cfg.Quotes.BaseURL != "" {
		deps.Quotes = dexscan.NewClient(cfg.Quotes.BaseURL, cfg.Quotes.APIKey, cfg.Quotes.Timeout.Duration)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}

// publicPriorityBase keeps built-in public endpoints behind any explicitly
// configured (vendor) endpoints of the same chain.
const publicPriorityBase = 100

// endpointsFromConfig flattens the per-chain endpoint lists into the pool's
// input, appending public presets for chains that opt in. Chain names are
// matched case-insensitively: the pool is keyed by the lowercase identifier,
// the same form every consumer derives from the configured name.
func endpointsFromConfig(chains []config.ChainConfig) ([]domain.Endpoint, error) {
	var out []domain.Endpoint
	for _, chain := range chains {
		id := domain.ChainID(strings.ToLower(chain.Name))
		for _, ep := range chain.Endpoints {
			out = append(out, domain.Endpoint{
				Chain:    id,
				URL:      ep.URL,
				Priority: ep.Priority,
			})
		}
		if chain.UsePublic {
			for i, url := range config.PublicEndpoints(chain.Name) {
				out = append(out, domain.Endpoint{
					Chain:    id,
					URL:      url,
					Priority: publicPriorityBase + i,
					Public:   true,
				})
			}
		}
	}
	if len(out) == 0 {
		return nil, domain.ErrNoEndpoints
	}
	return out, nil
}
