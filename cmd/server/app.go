package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	httpAdapter "github.com/iho/loanledger/internal/adapter/http"
	"github.com/iho/loanledger/internal/adapter/http/handler"
	"github.com/iho/loanledger/internal/adapter/http/middleware"
	"github.com/iho/loanledger/internal/adapter/repository/memory"
	postgresRepo "github.com/iho/loanledger/internal/adapter/repository/postgres"
	redisRepo "github.com/iho/loanledger/internal/adapter/repository/redis"
	sqliteRepo "github.com/iho/loanledger/internal/adapter/repository/sqlite"
	"github.com/iho/loanledger/internal/adapter/wallet"
	"github.com/iho/loanledger/internal/infrastructure/auth"
	"github.com/iho/loanledger/internal/infrastructure/config"
	"github.com/iho/loanledger/internal/infrastructure/eventpublisher"
	"github.com/iho/loanledger/internal/infrastructure/metrics"
	"github.com/iho/loanledger/internal/infrastructure/postgres"
	"github.com/iho/loanledger/internal/infrastructure/redis"
	"github.com/iho/loanledger/internal/infrastructure/scheduler"
	"github.com/iho/loanledger/internal/usecase"
)

// limiterMaxIdle is how long a client may be silent before its rate limiter is dropped.
const limiterMaxIdle = 10 * time.Minute

// stores is the persistence side of the application.
type stores struct {
	txManager usecase.TransactionManager
	listings  usecase.ListingRepository
	loans     usecase.LoanRepository
	profiles  usecase.ProfileRepository
	outbox    usecase.OutboxRepository
	audit     usecase.AuditRepository
	idGen     usecase.IDGenerator
	check     handler.Check
	close     func()
}

// ephemeral is the short-lived state: intents, challenges, idempotency keys.
type ephemeral struct {
	intents     usecase.IntentStore
	cache       usecase.Cache
	idempotency usecase.IdempotencyStore
	publisher   eventpublisher.Publisher
	checks      []handler.Check
	close       func()
}

// app is a fully wired server.
type app struct {
	handler   http.Handler
	publisher *eventpublisher.EventPublisher
	scheduler *scheduler.Scheduler
	credit    *usecase.CreditUseCase
	closers   []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func buildApp(ctx context.Context, cfg *config.Config, m *metrics.Metrics, metricsHandler http.Handler, log zerolog.Logger) (*app, error) {
	a := &app{}

	st, err := openStores(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, st.close)

	eph, err := openEphemeral(ctx, cfg, log)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.closers = append(a.closers, eph.close)

	gateway := wallet.NewGateway(cfg.SolanaRPCURL, cfg.SolanaNetwork)
	var (
		verifier usecase.TransferVerifier
		balances usecase.BalanceReader
		activity usecase.ActivityReader
	)
	if cfg.VerifyTransfers {
		if err := gateway.CheckNetwork(ctx); err != nil {
			a.Close()
			return nil, fmt.Errorf("solana %s: %w", cfg.SolanaNetwork, err)
		}
		verifier = gateway
		balances = gateway
		activity = gateway
	}

	currency := usecase.CurrencyConfig{
		Code:          cfg.Currency,
		Decimals:      cfg.CurrencyDecimals,
		ChainDecimals: cfg.ChainDecimals,
	}

	listingUC := usecase.NewListingUseCase(st.txManager, st.listings, st.profiles, st.outbox, st.audit,
		eph.intents, st.idGen, m, usecase.ListingUseCaseConfig{
			Currency:           currency,
			EnforceCreditLimit: cfg.CreditLimitEnforced,
		}, log.With().Str("usecase", "listing").Logger())
	lendingUC := usecase.NewLendingUseCase(st.txManager, st.listings, st.loans, st.outbox, st.audit,
		eph.intents, verifier, st.idGen, m, usecase.LendingUseCaseConfig{
			Currency:  currency,
			IntentTTL: cfg.IntentTTL,
		}, log.With().Str("usecase", "lending").Logger())
	creditUC := usecase.NewCreditUseCase(st.loans, st.profiles, balances, activity, m, currency,
		log.With().Str("usecase", "credit").Logger())
	a.credit = creditUC

	var (
		tokens        usecase.TokenIssuer
		tokenVerifier middleware.IdentityVerifier
	)
	if cfg.AuthEnabled {
		jwtManager := auth.NewJWTManager(cfg.JWTSecret, cfg.JWTExpiration)
		tokens = jwtManager
		tokenVerifier = jwtManager
	}
	authUC := usecase.NewAuthUseCase(eph.cache, gateway, tokens, m)

	rateLimiter := middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst).WithMetrics(m)

	checks := append([]handler.Check{st.check}, eph.checks...)
	a.handler = httpAdapter.NewRouter(httpAdapter.RouterConfig{
		HealthHandler:    handler.NewHealthHandler(checks...),
		AuthHandler:      handler.NewAuthHandler(authUC),
		ListingHandler:   handler.NewListingHandler(listingUC),
		LoanHandler:      handler.NewLoanHandler(lendingUC),
		CreditHandler:    handler.NewCreditHandler(creditUC),
		QuoteHandler:     handler.NewQuoteHandler(listingUC, lendingUC),
		Logger:           log,
		Metrics:          m,
		MetricsHandler:   metricsHandler,
		TokenVerifier:    tokenVerifier,
		RateLimiter:      rateLimiter,
		IdempotencyStore: eph.idempotency,
		IdempotencyTTL:   cfg.IdempotencyTTL,
	})

	a.publisher = eventpublisher.NewEventPublisher(eventpublisher.Config{
		OutboxRepo: st.outbox,
		Publisher:  eph.publisher,
		Logger:     log,
		Metrics:    m,
		Interval:   cfg.OutboxInterval,
	})

	a.scheduler = scheduler.New(log, scheduler.DefaultJobTimeout)
	jobs := []struct {
		name string
		spec string
		job  scheduler.Job
	}{
		{"credit-refresh", cfg.CreditRefreshSchedule, func(ctx context.Context) error {
			n, err := creditUC.RefreshAll(ctx)
			if err != nil {
				return err
			}
			log.Info().Int("profiles", n).Msg("credit profiles refreshed")
			return nil
		}},
		{"outbox-cleanup", "@daily", func(ctx context.Context) error {
			return a.publisher.Cleanup(ctx, cfg.OutboxRetention)
		}},
		{"ratelimit-cleanup", "@every 5m", func(context.Context) error {
			if n := rateLimiter.CleanupLimiters(limiterMaxIdle); n > 0 {
				log.Debug().Int("removed", n).Msg("idle rate limiters removed")
			}
			return nil
		}},
	}
	for _, j := range jobs {
		if err := a.scheduler.Add(j.name, j.spec, j.job); err != nil {
			a.Close()
			return nil, err
		}
	}

	return a, nil
}

func openStores(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*stores, error) {
	switch cfg.StoreDriver {
	case config.StoreDriverSQLite:
		db, err := sqliteRepo.Open(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		log.Info().Str("path", cfg.SQLitePath).Msg("opened sqlite store")

		return &stores{
			txManager: sqliteRepo.NewTxManager(db),
			listings:  sqliteRepo.NewListingRepository(db),
			loans:     sqliteRepo.NewLoanRepository(db),
			profiles:  sqliteRepo.NewProfileRepository(db),
			outbox:    sqliteRepo.NewOutboxRepository(db),
			audit:     sqliteRepo.NewAuditRepository(db),
			idGen:     postgresRepo.NewULIDGenerator(),
			check:     sqliteCheck(db),
			close: func() {
				if sqlDB, err := db.DB(); err == nil {
					_ = sqlDB.Close()
				}
			},
		}, nil

	case config.StoreDriverPostgres:
		pool, err := postgres.NewPoolWithConfig(ctx, postgres.PoolConfig{
			DatabaseURL:    cfg.DatabaseURL,
			MaxConns:       cfg.DatabaseMaxConns,
			MinConns:       cfg.DatabaseMinConns,
			ConnectTimeout: cfg.DatabaseTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		log.Info().Msg("connected to postgres")

		if err := postgres.NewMigrator(cfg.DatabaseURL, cfg.MigrationsPath, log).Up(); err != nil {
			pool.Close()
			return nil, err
		}

		retrier := postgresRepo.NewRetrier(log)
		return &stores{
			txManager: postgresRepo.NewTxManager(pool),
			listings:  postgresRepo.NewListingRepository(pool, retrier),
			loans:     postgresRepo.NewLoanRepository(pool, retrier),
			profiles:  postgresRepo.NewProfileRepository(pool, retrier),
			outbox:    postgresRepo.NewOutboxRepository(pool),
			audit:     postgresRepo.NewAuditRepository(pool),
			idGen:     postgresRepo.NewULIDGenerator(),
			check:     handler.PostgresCheck(pool),
			close:     pool.Close,
		}, nil
	}

	return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
}

func openEphemeral(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*ephemeral, error) {
	switch cfg.IntentStore {
	case config.IntentStoreMemory:
		log.Warn().Msg("intents kept in memory; run a single instance only")
		return &ephemeral{
			intents:   memory.NewIntentStore(),
			cache:     memory.NewCache(),
			publisher: eventpublisher.NewLogPublisher(log),
			close:     func() {},
		}, nil

	case config.IntentStoreRedis:
		client, err := redis.NewClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		log.Info().Msg("connected to redis")

		return &ephemeral{
			intents:     redisRepo.NewIntentStore(client),
			cache:       redisRepo.NewCache(client),
			idempotency: redisRepo.NewIdempotencyStore(client),
			publisher:   eventpublisher.NewRedisPublisher(client),
			checks:      []handler.Check{handler.RedisCheck(client)},
			close:       func() { closeRedis(client, log) },
		}, nil
	}

	return nil, fmt.Errorf("unknown intent store %q", cfg.IntentStore)
}

func sqliteCheck(db *gorm.DB) handler.Check {
	return handler.Check{
		Name: "sqlite",
		Ping: func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}
}

func closeRedis(client *goredis.Client, log zerolog.Logger) {
	if err := client.Close(); err != nil && !errors.Is(err, goredis.ErrClosed) {
		log.Warn().Err(err).Msg("closing redis")
	}
}
