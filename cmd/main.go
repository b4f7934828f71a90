/**
 * @description
 * Main entry point for the onboarding service. It loads configuration, migrates the
 * database, connects Postgres, Redis and RabbitMQ, builds the vendor clients, the
 * onboarding engines and the application services, then serves HTTP and runs the
 * cron scheduler until a termination signal arrives.
 *
 * @dependencies
 * - github.com/joho/godotenv: loads .env files during local development.
 * - github.com/redis/go-redis/v9, github.com/bsm/redislock: onboarding locks and rate limits.
 * - go.uber.org/zap: structured logging.
 */
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bsm/redislock"
	"github.com/joho/godotenv"
	"github.com/kash/onboarding-service/internal/api"
	"github.com/kash/onboarding-service/internal/app"
	"github.com/kash/onboarding-service/internal/config"
	"github.com/kash/onboarding-service/internal/crypto"
	"github.com/kash/onboarding-service/internal/domain"
	"github.com/kash/onboarding-service/internal/migrate"
	"github.com/kash/onboarding-service/internal/onboarding"
	"github.com/kash/onboarding-service/internal/store"
	"github.com/kash/onboarding-service/pkg/baanx"
	"github.com/kash/onboarding-service/pkg/moralis"
	"github.com/kash/onboarding-service/pkg/plaid"
	"github.com/kash/onboarding-service/pkg/primetrust"
	"github.com/kash/onboarding-service/pkg/rabbitmq"
	"github.com/kash/onboarding-service/pkg/solaris"
	"github.com/kash/onboarding-service/pkg/wyre"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	// A missing .env is expected outside local development.
	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("onboarding service stopped", zap.Error(err))
	}
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.IsDevelopment() {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx := context.Background()

	if err := migrate.Up(ctx, cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	logger.Info("database migrated")

	db, err := store.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer db.Pool.Close()
	logger.Info("database connection established")

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("redis url: %w", err)
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	locker := onboarding.NewRedisLocker(redislock.New(redisClient), cfg.OnboardingLockTTL)
	limiter := app.NewRedisRateLimiter(redisClient, "", cfg.OnboardingRateLimit, cfg.OnboardingRateLimitWindow)

	producer, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL, domain.EventsExchange, logger)
	if err != nil {
		return fmt.Errorf("rabbitmq: %w", err)
	}
	defer producer.Close()

	keys, err := crypto.NewKeyring(map[domain.Provider]string{
		domain.ProviderPrimeTrust:         cfg.PrimeTrustMasterKey,
		domain.ProviderPrimeTrustBusiness: cfg.PrimeTrustMasterKey,
		domain.ProviderBaanx:              cfg.BaanxMasterKey,
		domain.ProviderWyre:               cfg.WyreMasterKey,
		domain.ProviderSolaris:            cfg.SolarisMasterKey,
	})
	if err != nil {
		return fmt.Errorf("keyring: %w", err)
	}
	balanceCipher, err := crypto.NewCipher(cfg.UserBalancesMasterKey, crypto.BalancesDomain)
	if err != nil {
		return fmt.Errorf("balance cipher: %w", err)
	}

	linkages := store.NewLinkageRepository(db, keys)
	users := store.NewUserRepository(db)
	snapshots := store.NewSnapshotRepository(db, balanceCipher)
	kreditsRepo := store.NewKreditsRepository(db)
	sales := store.NewOffRampSaleRepository(db)

	ptTokens := primetrust.NewTokenProvider(cfg.PrimeTrustJWTURL, cfg.PrimeTrustEmail, cfg.PrimeTrustPassword)
	ptClient := primetrust.NewClient(cfg.PrimeTrustAPI, ptTokens)
	baanxClient := baanx.NewClient(cfg.BaanxAPI, cfg.BaanxAccessToken)
	wyreClient := wyre.NewClient(cfg.WyreAPI, cfg.WyreAccountID)
	solarisClient := solaris.NewClient(cfg.SolarisAPI, cfg.SolarisAPIKey, cfg.SolarisAPISecret)
	plaidClient := plaid.NewClient(cfg.PlaidAPI, cfg.PlaidClientID, cfg.PlaidSecret)
	moralisClient := moralis.NewClient(cfg.MoralisAPI, cfg.MoralisAPIKey)

	newEngine := func(v onboarding.Vendor) *onboarding.Engine {
		return onboarding.NewEngine(v, linkages, locker, producer, logger)
	}
	ptPersonal := newEngine(app.NewPrimeTrustVendor(ptClient, cfg.PrimeTrustHook))
	ptBusiness := newEngine(app.NewPrimeTrustBusinessVendor(ptClient, cfg.PrimeTrustHook))
	baanxEngine := newEngine(app.NewBaanxVendor(baanxClient))
	wyreEngine := newEngine(app.NewWyreVendor(wyreClient))
	solarisEngine := newEngine(app.NewSolarisVendor(solarisClient))

	ptService := app.NewPrimeTrustService(ptClient, plaidClient, users, ptPersonal, ptBusiness, app.PrimeTrustOptions{
		USTAssetID:        cfg.PrimeTrustUSTAssetID,
		QuotePollInterval: cfg.QuotePollInterval,
		QuotePollAttempts: cfg.QuotePollAttempts,
		RetryDelay:        time.Second,
	}, logger)
	baanxService := app.NewBaanxService(baanxClient, baanxEngine, linkages, producer, logger)
	wyreService := app.NewWyreService(wyreClient, plaidClient, wyreEngine, logger)
	solarisService := app.NewSolarisService(solarisClient, users, solarisEngine, linkages, producer, logger)
	webhookService := app.NewWebhookService(ptClient, cfg.PrimeTrustUSTAssetID, linkages, sales, users, solarisService, baanxService, producer, logger)
	balanceService := app.NewBalanceService(moralisClient, ptService, snapshots, users, app.BalanceOptions{
		MinSpacing: cfg.BalanceSnapshotMinSpacing,
		Skip:       cfg.SkipBalanceSnapshotJob,
	}, logger)
	kreditsService := app.NewKreditsService(kreditsRepo, users, producer, logger)

	jobs := app.NewJobs(balanceService, ptTokens, logger)
	scheduler := app.NewScheduler(jobs, logger, *cfg)
	scheduler.Start()
	logger.Info("scheduler started")

	handlers := api.NewHandlers(api.Services{
		PrimeTrust: ptService,
		Baanx:      baanxService,
		Wyre:       wyreService,
		Solaris:    solarisService,
		Webhooks:   webhookService,
		Balances:   balanceService,
		Kredits:    kreditsService,
	}, logger)
	secrets := api.WebhookSecrets{
		PrimeTrust: cfg.PrimeTrustWebhookSecret,
		Baanx:      cfg.BaanxWebhookSecret,
		Solaris:    cfg.SolarisWebhookSecret,
	}
	router := api.NewRouter(handlers, api.RouterOptions{
		AllowedOrigins: cfg.AllowedOrigins(),
		Webhooks:       secrets,
		Limiter:        limiter,
		Logger:         logger,
	})
	for key, secret := range map[string]string{
		"PRIME_TRUST_WEBHOOK_SECRET": cfg.PrimeTrustWebhookSecret,
		"BAANX_WEBHOOK_SECRET":       cfg.BaanxWebhookSecret,
		"SOLARIS_WEBHOOK_SECRET":     cfg.SolarisWebhookSecret,
	} {
		if secret == "" {
			logger.Warn("webhook secret is empty, signatures are not verified", zap.String("key", key))
		}
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-stop:
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		logger.Error("server stopped unexpectedly", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
	}

	<-scheduler.Stop().Done()
	logger.Info("shutdown complete")
	return nil
}
