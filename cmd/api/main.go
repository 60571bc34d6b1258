package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/multierr"

	"github.com/gritsync/gritsync-backend/api/controllers"
	"github.com/gritsync/gritsync-backend/api/routes"
	"github.com/gritsync/gritsync-backend/internal/email"
	"github.com/gritsync/gritsync-backend/internal/notifications"
	"github.com/gritsync/gritsync-backend/internal/payments"
	"github.com/gritsync/gritsync-backend/internal/settings"
	"github.com/gritsync/gritsync-backend/internal/settlement"
	stripewebhook "github.com/gritsync/gritsync-backend/internal/webhooks/stripe"
	"github.com/gritsync/gritsync-backend/pkg/config"
	"github.com/gritsync/gritsync-backend/pkg/db"
	"github.com/gritsync/gritsync-backend/pkg/logger"
	"github.com/gritsync/gritsync-backend/pkg/metrics"
	"github.com/gritsync/gritsync-backend/pkg/migrate"
	"github.com/gritsync/gritsync-backend/pkg/outbox"
	"github.com/gritsync/gritsync-backend/pkg/redis"
	"github.com/gritsync/gritsync-backend/pkg/retry"
	"github.com/gritsync/gritsync-backend/pkg/storage/gcs"
	"github.com/gritsync/gritsync-backend/pkg/stripe"
)

const shutdownTimeout = 15 * time.Second

type closer interface {
	Close() error
}

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	if err := run(cfg, logg); err != nil {
		logg.Error(context.Background(), "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logg *logger.Logger) (err error) {
	bootCtx := context.Background()
	var closers []closer
	defer func() {
		var closeErr error
		for i := len(closers) - 1; i >= 0; i-- {
			closeErr = multierr.Append(closeErr, closers[i].Close())
		}
		if closeErr != nil {
			logg.Error(bootCtx, "error releasing resources", closeErr)
		}
	}()

	dbClient, err := db.New(bootCtx, cfg.DB, logg)
	if err != nil {
		return err
	}
	closers = append(closers, dbClient)

	if err := migrate.MaybeRunDev(bootCtx, cfg, logg, dbClient); err != nil {
		return err
	}

	redisClient, err := redis.New(bootCtx, cfg.Redis, logg)
	if err != nil {
		return err
	}
	closers = append(closers, redisClient)

	stripeClient, err := stripe.NewClient(bootCtx, cfg.Stripe, logg)
	if err != nil {
		return err
	}

	gcsClient, err := gcs.NewClient(bootCtx, cfg.GCS, cfg.GCP, logg)
	if err != nil {
		return err
	}
	closers = append(closers, gcsClient)

	retryOpts := []retry.Option{
		retry.WithMaxRetries(cfg.Retry.MaxRetries),
		retry.WithInitialDelay(cfg.Retry.InitialDelay),
		retry.WithLogger(logg),
	}

	settingsProvider, err := settings.NewProvider(settings.NewRepository(dbClient.DB()))
	if err != nil {
		return err
	}
	cachedSettings, err := settings.NewCachedProvider(settingsProvider, redisClient, cfg.Settings.CacheTTL, logg)
	if err != nil {
		return err
	}

	notificationsService, err := notifications.NewService(notifications.NewRepository(dbClient.DB()))
	if err != nil {
		return err
	}
	outboxService := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)

	settlementService, err := settlement.NewService(settlement.ServiceParams{
		Repo:              settlement.NewRepository(dbClient.DB()),
		Notifications:     notificationsService,
		Outbox:            outboxService,
		TransactionRunner: dbClient,
		Logger:            logg,
	})
	if err != nil {
		return err
	}

	var mailer *settlement.ReceiptMailer
	if cfg.Email.ResendAPIKey != "" {
		sender, err := email.NewResendSender(cfg.Email)
		if err != nil {
			return err
		}
		mailer = settlement.NewReceiptMailer(settlement.MailerParams{
			Sender:       sender,
			Logger:       logg,
			Currency:     stripeClient.Currency(),
			DashboardURL: cfg.App.BaseURL,
			RetryOptions: retryOpts,
		})
	} else {
		logg.Warn(bootCtx, "resend api key not configured; receipt emails disabled")
	}

	paymentsService, err := payments.NewService(payments.ServiceParams{
		Repo:              payments.NewRepository(dbClient.DB()),
		Intents:           stripeClient.PaymentIntents(),
		Currency:          stripeClient.Currency(),
		Proofs:            gcsClient,
		Settlement:        settlementService,
		Outbox:            outboxService,
		TransactionRunner: dbClient,
		Logger:            logg,
		RetryOptions:      retryOpts,
	})
	if err != nil {
		return err
	}

	webhookParams := stripewebhook.ServiceParams{
		Payments:          payments.NewRepository(dbClient.DB()),
		Settlement:        settlementService,
		Outbox:            outboxService,
		Settings:          cachedSettings,
		TransactionRunner: dbClient,
		Logger:            logg,
	}
	if mailer != nil {
		webhookParams.Mailer = mailer
	}
	webhookService, err := stripewebhook.NewService(webhookParams)
	if err != nil {
		return err
	}
	webhookGuard, err := stripewebhook.NewIdempotencyGuard(redisClient, cfg.Webhook.IdempotencyTTL)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	handler := routes.NewRouter(routes.Params{
		Config: cfg,
		Logger: logg,
		Readiness: map[string]controllers.Pinger{
			"db":    dbClient,
			"redis": redisClient,
		},
		Idempotency:    redisClient,
		Payments:       paymentsService,
		Notifications:  notificationsService,
		StripeWebhook:  webhookService,
		StripeClient:   stripeClient,
		WebhookGuard:   webhookGuard,
		WebhookMetrics: metrics.NewWebhookMetrics(registry),
		MetricsHandler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(bootCtx, map[string]any{
		"env":        cfg.App.Env,
		"addr":       addr,
		"stripe_env": stripeClient.Environment(),
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	sigCtx, stop := signal.NotifyContext(bootCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-sigCtx.Done():
	}

	logg.Info(ctx, "api server shutting down gracefully")
	shutdownCtx, cancel := context.WithTimeout(bootCtx, shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
