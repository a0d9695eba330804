// File: cmd/app/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"linkhub-membership/internal/config"
	"linkhub-membership/internal/domain/model"
	"linkhub-membership/internal/domain/ports/adapter"
	"linkhub-membership/internal/infra/adapters/payment"
	"linkhub-membership/internal/infra/api"
	"linkhub-membership/internal/infra/db/migrations"
	pg "linkhub-membership/internal/infra/db/postgres"
	"linkhub-membership/internal/infra/logging"
	"linkhub-membership/internal/infra/metrics"
	red "linkhub-membership/internal/infra/redis"
	"linkhub-membership/internal/infra/sched"
	"linkhub-membership/internal/infra/telegram"
	"linkhub-membership/internal/infra/worker"
	"linkhub-membership/internal/usecase"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (debug errors, ?country= override, memory gateways)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		boot := zerolog.New(os.Stderr).With().Timestamp().Logger()
		boot.Fatal().Err(err).Msg("config")
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	logging.SetGlobal(logger)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("[DEV MODE] Enabled")
	}

	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)

	// ---- Postgres ----
	if cfg.Database.AutoMigrate {
		if err := migrations.Run(ctx, cfg.Database.URL, logger); err != nil {
			logger.Fatal().Err(err).Msg("migrations")
		}
	}
	pool, err := pg.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis")
	}
	defer redisClient.Close()

	// ---- Repositories ----
	tm := pg.NewTxManager(pool)
	userRepo := pg.NewPostgresUserRepo(pool)
	planRepo := pg.NewPlanRepoCacheDecorator(pg.NewPostgresPlanRepo(pool), redisClient, cfg.Redis.TTL, logger)
	couponRepo := pg.NewCouponRepo(pool)
	purchaseRepo := pg.NewPostgresPurchaseRepo(pool)
	historyRepo := pg.NewHistoryRepo(pool)
	eventRepo := pg.NewWebhookEventRepo(pool)

	var dedupe adapter.EventDeduper = red.NewEventDeduper(redisClient)
	var purger sched.EventPurger
	if cfg.Payment.DedupeBackend == "postgres" {
		dedupe = eventRepo
		purger = eventRepo
	}

	// ---- Admin alerts ----
	workers := worker.NewPool(cfg.Notify.Workers, cfg.Notify.Queue, logger)
	workers.Start(ctx)
	var notifier adapter.AdminNotifier = telegram.NewNoopNotifier(logger)
	if cfg.Notify.Telegram.Token != "" {
		tn, err := telegram.NewAdminNotifier(cfg.Notify.Telegram, workers, logger)
		if err != nil {
			logger.Error().Err(err).Msg("telegram notifier disabled")
		} else {
			notifier = tn
		}
	}

	// ---- Gateways ----
	gateways := buildGateways(cfg, logger)

	// ---- Use cases ----
	planUC := usecase.NewPlanUseCase(planRepo, logger)
	pricingUC := usecase.NewPricingUseCase(planUC, couponRepo, purchaseRepo, logger)
	entitlementUC := usecase.NewEntitlementUseCase(userRepo, planRepo, historyRepo, logger)
	settleUC := usecase.NewSettlementUseCase(purchaseRepo, couponRepo, userRepo, entitlementUC, tm, notifier, logger)
	checkoutUC := usecase.NewCheckoutUseCase(userRepo, purchaseRepo, planUC, pricingUC, settleUC, gateways, tm,
		red.NewRateLimiter(redisClient),
		usecase.CheckoutConfig{
			GatewayTimeout: cfg.Payment.GatewayTimeout,
			RateLimit:      cfg.Checkout.RateLimit,
			RateWindow:     cfg.Checkout.RateWindow,
		}, logger)
	webhookUC := usecase.NewWebhookUseCase(gateways, purchaseRepo, dedupe, settleUC, notifier, usecase.WebhookConfig{DedupeTTL: cfg.Payment.DedupeTTL}, logger)
	membershipUC := usecase.NewMembershipUseCase(userRepo, historyRepo, purchaseRepo, logger)
	reconcileUC := usecase.NewReconcileUseCase(purchaseRepo, gateways, settleUC, cfg.Payment.GatewayTimeout, logger)

	// ---- Background workers ----
	var wg sync.WaitGroup
	run := func(fn func(context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn(ctx)
		}()
	}
	run(func(ctx context.Context) { pg.ReportPoolStats(ctx, pool, 15*time.Second, logger) })
	expiry := sched.NewExpiryWorker(cfg.Reconciler.ExpiryInterval, membershipUC, purger, cfg.Payment.DedupeTTL, logger)
	run(func(ctx context.Context) { _ = expiry.Run(ctx) })
	if cfg.Reconciler.Enabled {
		rec := sched.NewPaymentReconciler(reconcileUC, red.NewLocker(redisClient),
			cfg.Reconciler.Interval, cfg.Reconciler.StaleAfter, cfg.Reconciler.BatchSize, logger)
		run(func(ctx context.Context) { _ = rec.Run(ctx) })
	}

	// ---- HTTP ----
	srv := api.NewServer(planUC, pricingUC, checkoutUC, membershipUC, webhookUC,
		api.NewAuthManager(cfg.Auth.JWTSecret), api.OptionsFromConfig(cfg), logger)
	server := api.NewHTTPServer(cfg.Server, srv.Routes())
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("http listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("http server error")
			cancel()
		}
	}()

	// ---- Graceful shutdown ----
	<-ctx.Done()
	logger.Info().Msg("shutdown requested")
	shutdownCtx, stop := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer stop()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
	wg.Wait()
	workers.Stop()
	logger.Info().Msg("bye")
}

// buildGateways registers every gateway with credentials. In dev a missing
// gateway is replaced by an in-memory one so checkout can be exercised locally.
func buildGateways(cfg *config.Config, logger *zerolog.Logger) usecase.Gateways {
	var gws []adapter.PaymentGateway

	if cfg.Payment.Stripe.SecretKey != "" {
		gw, err := payment.NewStripeGateway(cfg.Payment.Stripe)
		if err != nil {
			logger.Error().Err(err).Msg("stripe gateway disabled")
		} else {
			gws = append(gws, gw)
		}
	}
	if cfg.Payment.Razorpay.KeyID != "" {
		gw, err := payment.NewRazorpayGateway(cfg.Payment.Razorpay)
		if err != nil {
			logger.Error().Err(err).Msg("razorpay gateway disabled")
		} else {
			gws = append(gws, gw)
		}
	}

	out := usecase.NewGateways(gws...)
	for _, p := range []model.Provider{model.ProviderStripe, model.ProviderRazorpay} {
		if out[p] != nil {
			continue
		}
		if cfg.Runtime.Dev {
			logger.Warn().Str("gateway", string(p)).Msg("using in-memory gateway")
			out[p] = payment.NewMemoryGateway(p, "dev")
			continue
		}
		logger.Warn().Str("gateway", string(p)).Msg("gateway not configured; checkouts routed to it will fail")
	}
	return out
}
