// File: cmd/app/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"edu-checkout/internal/config"
	"edu-checkout/internal/domain/ports/adapter"
	emailAdapters "edu-checkout/internal/infra/adapters/email"
	payAdapters "edu-checkout/internal/infra/adapters/payment"
	"edu-checkout/internal/infra/api"
	pg "edu-checkout/internal/infra/db/postgres"
	"edu-checkout/internal/infra/i18n"
	"edu-checkout/internal/infra/logging"
	"edu-checkout/internal/infra/metrics"
	red "edu-checkout/internal/infra/redis"
	"edu-checkout/internal/infra/sched"
	"edu-checkout/internal/infra/security"
	"edu-checkout/internal/infra/worker"
	"edu-checkout/internal/usecase"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logs, unredacted PII)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("[DEV MODE] Enabled")
	}

	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)

	// ---- Postgres ----
	pool, err := pg.NewPool(ctx, &cfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()
	go pg.ReportPoolStats(ctx, pool, 15*time.Second)

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis")
	}
	defer redisClient.Close()
	rateLimiter := red.NewRateLimiter(redisClient)
	locker := red.NewLocker(redisClient)
	tokenStore := red.NewTokenStore(redisClient)

	// ---- Encryption ----
	var cipher pg.FieldCipher
	if cfg.Security.EncryptionKey != "" {
		fc, err := security.NewFieldCipher(cfg.Security.EncryptionKey)
		if err != nil {
			logger.Fatal().Err(err).Msg("encryption")
		}
		cipher = fc
	} else {
		logger.Warn().Msg("security.encryption_key not set; payer phone numbers are stored in clear text")
	}

	// ---- Repositories ----
	txManager := pg.NewTxManager(pool)
	userRepo := pg.NewUserRepoCacheDecorator(pg.NewPostgresUserRepo(pool), redisClient, cfg.Redis.TTL)
	// checkout decides purchasability and price from the live row; only
	// email rendering reads through the cache
	catalogRepo := pg.NewCatalogRepo(pool)
	cachedCatalogRepo := pg.NewCatalogRepoCacheDecorator(catalogRepo, redisClient, cfg.Redis.CatalogTTL, logger)
	couponRepo := pg.NewCouponRepo(pool)
	paymentRepo := pg.NewPaymentRepo(pool, cipher)
	enrollmentRepo := pg.NewEnrollmentRepo(pool)
	notificationRepo := pg.NewNotificationLogRepo(pool)

	// ---- Gateway ----
	gateway, err := newGateway(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("payment gateway")
	}
	tokens := usecase.NewTokenCache(gateway, tokenStore, cfg.Bkash.TokenMargin, logger)

	// ---- Mail ----
	mailer, err := emailAdapters.New(cfg.Mail, logger, cfg.Runtime.Dev)
	if err != nil {
		logger.Fatal().Err(err).Msg("mailer")
	}
	translator, err := i18n.NewTranslator(i18n.LocalesFS, cfg.Mail.Language)
	if err != nil {
		logger.Fatal().Err(err).Msg("i18n")
	}

	// ---- Worker pool ----
	jobs := worker.NewPool(cfg.Worker.Workers, 30*time.Second, logger)
	jobs.Start(ctx)

	// ---- Use cases ----
	couponUC := usecase.NewCouponUseCase(couponRepo, paymentRepo, logger)
	fulfillmentUC := usecase.NewFulfillmentUseCase(paymentRepo, enrollmentRepo, userRepo, cachedCatalogRepo, notificationRepo,
		mailer, translator, jobs, logger)
	paymentUC := usecase.NewPaymentUseCase(paymentRepo, userRepo, catalogRepo, couponUC, gateway, tokens, rateLimiter,
		usecase.PaymentOptions{
			CallbackURL:     cfg.Bkash.CallbackURL,
			GatewayTimeout:  cfg.Bkash.RequestTimeout,
			RateLimit:       cfg.Payment.RateLimit,
			RateLimitWindow: cfg.Payment.RateLimitWindow,
		}, logger)
	callbackUC := usecase.NewCallbackUseCase(paymentRepo, couponRepo, txManager, gateway, tokens, fulfillmentUC,
		cfg.Bkash.RequestTimeout, logger)

	// ---- Background jobs ----
	reconciler := sched.NewPaymentReconciler(callbackUC, paymentRepo, locker,
		cfg.Scheduler.ReconcileInterval, cfg.Scheduler.StaleAfter, cfg.Scheduler.BatchSize, logger)
	go func() { _ = reconciler.Run(ctx) }()

	warmer := sched.NewTokenWarmer(cfg.Bkash.TokenWarmInterval, tokens, logger)
	warmer.Start(ctx)

	// ---- HTTP ----
	srv := api.NewServer(api.Deps{
		Payments:       paymentUC,
		Callbacks:      callbackUC,
		Fulfillment:    fulfillmentUC,
		Coupons:        couponUC,
		Tokens:         tokens,
		Auth:           newAuth(cfg, logger),
		AdminAPIKey:    cfg.Admin.APIKey,
		CronSecret:     cfg.Payment.CronSecret,
		FrontendURL:    cfg.Payment.FrontendURL,
		RequestTimeout: cfg.HTTP.RequestTimeout,
		Health: map[string]api.HealthCheck{
			"postgres": func(ctx context.Context) error { return pool.Ping(ctx) },
			"redis":    redisClient.Ping,
		},
	}, logger)
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info().Str("addr", server.Addr).Str("gateway", gateway.Name()).Msg("http listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("http server error")
			cancel()
		}
	}()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigc:
	case <-ctx.Done():
	}
	logger.Info().Msg("shutdown requested")

	shutdownCtx, stop := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer stop()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("http shutdown")
	}
	warmer.Stop()
	// drain queued confirmation emails while their context is still live
	jobs.Stop()
	cancel()
	logger.Info().Msg("bye")
}

func newGateway(cfg *config.Config, logger *zerolog.Logger) (adapter.PaymentGateway, error) {
	if cfg.Bkash.Mode == "local" {
		logger.Warn().Msg("bkash.mode=local: payments are simulated in memory")
		return payAdapters.NewLocalGateway(cfg.Bkash.BaseURL), nil
	}
	return payAdapters.NewBkashGateway(cfg.Bkash, logger)
}

func newAuth(cfg *config.Config, logger *zerolog.Logger) *api.AuthManager {
	if cfg.Admin.APIKey == "" || cfg.Admin.SessionSecret == "" {
		logger.Warn().Msg("admin.api_key or admin.session_secret not set; admin API disabled")
		return nil
	}
	return api.NewAuthManager(cfg.Admin.SessionSecret, cfg.Admin.SecureCookie, cfg.Admin.SessionTTL)
}
