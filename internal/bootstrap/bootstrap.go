// Package bootstrap wires configuration into the ledger's adapters and
// services. Both the API server and ledgerctl build on it.
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"phantom-ledger/config"
	"phantom-ledger/internal/adapter/bank"
	"phantom-ledger/internal/adapter/collab"
	"phantom-ledger/internal/adapter/http/dto"
	"phantom-ledger/internal/adapter/kyc"
	"phantom-ledger/internal/adapter/settlement"
	"phantom-ledger/internal/adapter/storage/memory"
	pgStorage "phantom-ledger/internal/adapter/storage/postgres"
	redisStorage "phantom-ledger/internal/adapter/storage/redis"
	"phantom-ledger/internal/core/ports"
	"phantom-ledger/internal/service"
	"phantom-ledger/pkg/logger"
	"phantom-ledger/pkg/metrics"

	"github.com/alicebob/miniredis/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Repositories groups the storage adapters for one driver.
type Repositories struct {
	Businesses   ports.BusinessRepository
	Wallets      ports.WalletRepository
	Transactions ports.TransactionRepository
	Upgrades     ports.UpgradeRepository
	Deliveries   ports.SettlementRepository
	Idempotency  ports.IdempotencyRepository
	Audit        ports.AuditRepository
	Transactor   ports.DBTransactor
}

// App holds every wired component.
type App struct {
	Config  *config.Config
	Log     zerolog.Logger
	Metrics *metrics.Metrics
	Repos   Repositories
	Pool    *pgxpool.Pool // nil for the memory driver
	Redis   goredis.UniversalClient

	Encryption ports.EncryptionService
	Signature  ports.SignatureService
	Tokens     ports.TokenService
	NonceStore ports.NonceStore
	RateLimits *redisStorage.RateLimitStore

	Audit      ports.AuditService
	Auth       ports.AuthService
	Wallets    ports.WalletService
	Ledger     *service.LedgerServiceImpl
	Router     *service.PaymentRouterImpl
	Settlement ports.SettlementService
	Upgrades   *service.UpgradeServiceImpl
	Reporting  ports.ReportingService

	Money          dto.Money
	HealthCheckers []ports.HealthChecker

	closers []func() error
}

// New connects storage and builds the services described by cfg.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*App, error) {
	app := &App{
		Config: cfg,
		Log:    log,
		Money:  dto.Money{MinorUnits: cfg.Ledger.MinorUnits},
	}
	if cfg.Metrics.Enabled {
		app.Metrics = metrics.New(cfg.Metrics.Namespace)
	}

	if err := app.connect(ctx); err != nil {
		app.Close()
		return nil, err
	}
	if err := app.build(); err != nil {
		app.Close()
		return nil, err
	}
	return app, nil
}

// Close releases connections in reverse order of creation.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *App) connect(ctx context.Context) error {
	cfg := a.Config
	switch cfg.Storage.Driver {
	case "memory":
		store := memory.NewStore()
		a.Repos = Repositories{
			Businesses:   memory.NewBusinessRepo(store),
			Wallets:      memory.NewWalletRepo(store),
			Transactions: memory.NewTransactionRepo(store),
			Upgrades:     memory.NewUpgradeRepo(store),
			Deliveries:   memory.NewSettlementRepo(store),
			Idempotency:  memory.NewIdempotencyRepo(store),
			Audit:        memory.NewAuditRepo(store),
			Transactor:   memory.NewTransactor(store),
		}
		a.HealthCheckers = append(a.HealthCheckers, store)

		// The memory driver runs standalone, so the Redis-backed stores get an embedded server.
		mr, err := miniredis.Run()
		if err != nil {
			return fmt.Errorf("start embedded redis: %w", err)
		}
		a.closers = append(a.closers, func() error { mr.Close(); return nil })
		rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
		a.closers = append(a.closers, rdb.Close)
		a.Redis = rdb
		a.Log.Warn().Msg("memory storage driver: data is lost on exit")

	default:
		pool, err := pgStorage.NewPool(ctx, cfg.Database, a.Log)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func() error { pool.Close(); return nil })
		a.Pool = pool
		if cfg.Database.MigrateOnStart {
			if _, err := pgStorage.Migrate(ctx, pool, logger.Component(a.Log, "migrate")); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
		}
		a.Repos = Repositories{
			Businesses:   pgStorage.NewBusinessRepo(pool),
			Wallets:      pgStorage.NewWalletRepo(pool),
			Transactions: pgStorage.NewTransactionRepo(pool),
			Upgrades:     pgStorage.NewUpgradeRepo(pool),
			Deliveries:   pgStorage.NewSettlementRepo(pool),
			Idempotency:  pgStorage.NewIdempotencyRepo(pool),
			Audit:        pgStorage.NewAuditRepo(pool),
			Transactor:   pgStorage.NewTransactor(pool),
		}
		a.HealthCheckers = append(a.HealthCheckers, pgStorage.NewHealthCheck(pool))

		rdb, err := redisStorage.NewClient(ctx, cfg.Redis, a.Log)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, rdb.Close)
		a.Redis = rdb
	}
	a.HealthCheckers = append(a.HealthCheckers, redisStorage.NewHealthCheck(a.Redis))
	return nil
}

func (a *App) build() error {
	cfg := a.Config
	log := a.Log

	loc, err := cfg.Ledger.Location()
	if err != nil {
		return err
	}
	rules, err := service.NewAmountRules(cfg.Ledger)
	if err != nil {
		return err
	}
	fees, err := service.NewFeeScheduleFromConfig(cfg.Fees, cfg.Ledger.MinorUnits)
	if err != nil {
		return err
	}
	directions, err := service.ParseDirections(cfg.Ledger.CountDirections)
	if err != nil {
		return err
	}
	daily, err := cfg.Ledger.ToMinor(cfg.Ledger.DefaultDailyLimit)
	if err != nil {
		return err
	}
	monthly, err := cfg.Ledger.ToMinor(cfg.Ledger.DefaultMonthlyLimit)
	if err != nil {
		return err
	}

	enc, err := service.NewAESEncryptionService(cfg.AES.Key)
	if err != nil {
		return fmt.Errorf("encryption: %w", err)
	}
	if cfg.JWT.Secret == "" {
		return errors.New("jwt.secret is required")
	}
	a.Encryption = enc
	a.Signature = service.NewHMACSignatureService()
	a.Tokens = service.NewJWTTokenService(cfg.JWT.Secret, cfg.JWT.Expiry, cfg.JWT.Issuer)
	a.NonceStore = redisStorage.NewNonceStore(a.Redis)
	a.RateLimits = redisStorage.NewRateLimitStore(a.Redis)

	r := a.Repos
	a.Audit = service.NewAuditService(r.Audit, logger.Component(log, "audit"))
	a.Auth = service.NewAuthService(r.Businesses, service.NewArgon2HashService(), enc, a.Tokens, a.Audit, logger.Component(log, "auth"))
	a.Wallets = service.NewWalletService(r.Wallets, r.Upgrades, r.Transactor, a.Audit, service.WalletDefaults{
		Currency:     cfg.Ledger.Currency,
		DailyLimit:   daily,
		MonthlyLimit: monthly,
	}, logger.Component(log, "wallets"))
	a.Ledger = service.NewLedgerService(r.Wallets, r.Transactions, r.Upgrades, r.Transactor,
		redisStorage.NewIdempotencyCache(a.Redis), cfg.Ledger.IdempotencyTTL, a.Metrics, logger.Component(log, "ledger"))

	publisher, err := a.settlementPublisher()
	if err != nil {
		return err
	}
	a.Settlement = service.NewSettlementService(r.Deliveries, r.Transactions, r.Businesses, publisher, service.SettlementOptions{
		Currency: cfg.Ledger.Currency,
		Retry: service.RetryPolicy{
			InitialInterval: cfg.Settlement.InitialInterval,
			MaxInterval:     cfg.Settlement.MaxInterval,
			MaxAttempts:     cfg.Settlement.MaxAttempts,
		},
		RetryAfter: cfg.Settlement.RetryAfter,
		BatchSize:  cfg.Settlement.BatchSize,
	}, a.Metrics, logger.Component(log, "settlement"))

	limits := service.NewLimitPolicy(r.Transactions, loc, directions)
	a.Router = service.NewPaymentRouter(r.Wallets, a.Ledger, limits, fees, rules, a.Settlement, a.Audit, a.Metrics, logger.Component(log, "router"))

	bankSvc, kycSvc := a.collaborators()
	a.Upgrades = service.NewUpgradeService(r.Upgrades, r.Wallets, r.Idempotency, a.Ledger, bankSvc, kycSvc, a.Audit, service.UpgradeOptions{
		Retry: service.RetryPolicy{
			InitialInterval: cfg.Upgrade.InitialInterval,
			MaxInterval:     cfg.Upgrade.MaxInterval,
			MaxAttempts:     cfg.Upgrade.MaxAttempts,
		},
		StepTimeout: cfg.Upgrade.StepTimeout,
		BatchSize:   cfg.Upgrade.BatchSize,
	}, a.Metrics, logger.Component(log, "upgrade"))

	a.Reporting = service.NewReportingService(r.Transactions, r.Wallets, loc)
	return nil
}

func (a *App) settlementPublisher() (ports.SettlementPublisher, error) {
	cfg := a.Config
	switch cfg.Settlement.Transport {
	case "kafka":
		if len(cfg.Kafka.Brokers) == 0 {
			return nil, errors.New("kafka.brokers is required for the kafka settlement transport")
		}
		p := settlement.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.SettlementTopic)
		a.closers = append(a.closers, p.Close)
		return p, nil
	case "http":
		if cfg.Settlement.Endpoint == "" {
			return nil, errors.New("settlement.endpoint is required for the http settlement transport")
		}
		api := collab.NewClient("settlement", cfg.Settlement.Endpoint, "", cfg.Settlement.Timeout, nil)
		return settlement.NewHTTPNotifier(api, a.Signature, cfg.Settlement.Secret), nil
	default:
		return settlement.NewLogSink(logger.Component(a.Log, "settlement-sink")), nil
	}
}

func (a *App) collaborators() (ports.BankAccountService, ports.KYCService) {
	cfg := a.Config
	var bankSvc ports.BankAccountService = bank.NewFake()
	if cfg.Bank.Driver == "http" {
		bankSvc = bank.NewClient(collab.NewClient("bank account service", cfg.Bank.BaseURL, cfg.Bank.APIKey, cfg.Bank.Timeout, nil), cfg.Ledger.Currency)
	}
	var kycSvc ports.KYCService = kyc.NewFake()
	if cfg.KYC.Driver == "http" {
		kycSvc = kyc.NewClient(collab.NewClient("KYC service", cfg.KYC.BaseURL, cfg.KYC.APIKey, cfg.KYC.Timeout, nil))
	}
	if cfg.Bank.Driver != "http" || cfg.KYC.Driver != "http" {
		a.Log.Warn().Str("bank", cfg.Bank.Driver).Str("kyc", cfg.KYC.Driver).Msg("in-process collaborator doubles are active")
	}
	return bankSvc, kycSvc
}

// ReconcileBalances reports wallets whose stored balance disagrees with their entries.
func (a *App) ReconcileBalances(ctx context.Context) ([]ports.BalanceMismatch, error) {
	return a.Repos.Transactions.Reconcile(ctx)
}

