package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/Juuiko/cross-chain-arbitrage-monitor/internal/blob/s3"
	"github.com/Juuiko/cross-chain-arbitrage-monitor/internal/cache/redis"
	"github.com/Juuiko/cross-chain-arbitrage-monitor/internal/clock"
	"github.com/Juuiko/cross-chain-arbitrage-monitor/internal/collector"
	"github.com/Juuiko/cross-chain-arbitrage-monitor/internal/config"
	"github.com/Juuiko/cross-chain-arbitrage-monitor/internal/domain"
	"github.com/Juuiko/cross-chain-arbitrage-monitor/internal/metrics"
	"github.com/Juuiko/cross-chain-arbitrage-monitor/internal/notify"
	"github.com/Juuiko/cross-chain-arbitrage-monitor/internal/report"
	"github.com/Juuiko/cross-chain-arbitrage-monitor/internal/source"
	"github.com/Juuiko/cross-chain-arbitrage-monitor/internal/store/postgres"
)

// Dependencies bundles everything the monitor, the archiver and the API need.
// Optional backends are nil when disabled. It is constructed by Wire and torn
// down by the returned cleanup function.
type Dependencies struct {
	Clock     clock.Clock
	Metrics   *metrics.Metrics
	Collector *collector.Collector

	// Stores
	OpportunityStore *postgres.OpportunityStore
	PriceStore       domain.PriceStore
	CycleStore       domain.CycleStore
	AuditStore       domain.AuditStore

	// Caches
	PriceCache  domain.PriceCache
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	// Blob storage
	Archiver domain.Archiver

	// Outputs
	CSV         *report.CSVSink
	KafkaWriter report.MessageWriter
	Notifier    *notify.Notifier
}

// Wire constructs the concrete implementations selected by cfg and returns
// them together with a cleanup function that should be called on shutdown.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{
		Clock:   clock.Real{},
		Metrics: metrics.New(),
	}

	// --- PostgreSQL ---
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
		deps.CycleStore = postgres.NewCycleStore(pool)
		deps.AuditStore = postgres.NewAuditStore(pool)
		if cfg.Postgres.StorePrices {
			deps.PriceStore = postgres.NewPriceStore(pool)
		}
	}

	// --- Redis ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
			KeyPrefix:  cfg.Redis.KeyPrefix,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.PriceCache = redis.NewPriceCache(redisClient)
		deps.RateLimiter = redis.NewIntervalLimiter(redisClient)
		deps.LockManager = redis.NewLockManager(redisClient)
		deps.SignalBus = redis.NewSignalBus(redisClient)
	} else {
		deps.RateLimiter = source.NewIntervalLimiter(deps.Clock)
	}

	// --- S3 blob storage ---
	if cfg.Archive.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			Prefix:         cfg.S3.Prefix,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}

		writer := s3blob.NewWriter(s3Client)
		reader := s3blob.NewReader(s3Client)
		// Validate guarantees postgres is enabled alongside the archive.
		if deps.OpportunityStore != nil {
			deps.Archiver = s3blob.NewArchiver(writer, reader, deps.OpportunityStore, deps.AuditStore)
		}
	}

	// --- Outputs ---
	if cfg.CSV.Enabled {
		deps.CSV = report.NewCSVSink(cfg.CSV.Path, cfg.CSV.PricesPath)
	}
	if cfg.Kafka.Enabled {
		w := report.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		deps.KafkaWriter = w
		closers = append(closers, func() { _ = w.Close() })
	}

	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender("", cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	// --- Sources ---
	adapters, err := BuildAdapters(cfg.Sources, deps.Clock)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: %w", err)
	}
	deps.Collector = collector.New(adapters, collector.Options{
		FetchTimeout:   cfg.Monitor.FetchTimeout.Duration,
		MaxConcurrency: cfg.Monitor.MaxConcurrency,
		Limiter:        deps.RateLimiter,
		Clock:          deps.Clock,
		Metrics:        deps.Metrics,
		Logger:         logger,
	})

	return deps, cleanup, nil
}

// BuildAdapters turns the enabled source entries into adapters, keeping their
// configured order as priority order.
func BuildAdapters(sources []config.SourceConfig, clk clock.Clock) ([]source.Adapter, error) {
	var adapters []source.Adapter
	for _, sc := range sources {
		if !sc.IsEnabled() {
			continue
		}
		var symbols map[domain.Symbol]string
		if len(sc.Symbols) > 0 {
			symbols = make(map[domain.Symbol]string, len(sc.Symbols))
			for canonical, ticker := range sc.Symbols {
				symbols[domain.ParseSymbol(canonical)] = ticker
			}
		}
		a, err := source.New(source.Config{
			Name:        sc.Name,
			Kind:        sc.Kind,
			BaseURL:     sc.BaseURL,
			APIKey:      sc.APIKey,
			MinInterval: sc.MinInterval.Duration,
			Symbols:     symbols,
		}, clk)
		if err != nil {
			return nil, err
		}
		adapters = append(adapters, a)
	}
	if len(adapters) == 0 {
		return nil, fmt.Errorf("no enabled sources")
	}
	return adapters, nil
}
