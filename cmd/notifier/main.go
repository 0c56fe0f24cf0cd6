package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/anh26092005/web-thu-c-sub000/internal/platform/config"
	pfirestore "github.com/anh26092005/web-thu-c-sub000/internal/platform/firestore"
	"github.com/anh26092005/web-thu-c-sub000/internal/platform/jobs"
	"github.com/anh26092005/web-thu-c-sub000/internal/platform/mailer"
	"github.com/anh26092005/web-thu-c-sub000/internal/platform/observability"
	"github.com/anh26092005/web-thu-c-sub000/internal/platform/secrets"
	firestoreRepo "github.com/anh26092005/web-thu-c-sub000/internal/repositories/firestore"
	"github.com/anh26092005/web-thu-c-sub000/internal/services"
)

// notifier drains the order confirmation queue and hands each order to the
// mail relay. It runs separately from the API so slow mail delivery never
// holds up checkout.
func main() {
	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("notifier")
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = observability.WithLogger(ctx, logger)

	envValues, err := config.EnvironmentValues()
	if err != nil {
		logger.Fatal("failed to read environment values", zap.Error(err))
	}
	fetcher, err := secrets.NewFetcherFromEnv(ctx, logger, envValues)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx, config.WithSecretResolver(config.SecretResolverFunc(fetcher.Resolve)))
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	metrics := observability.NewMetrics(observability.WithMetricsLogger(logger.Named("metrics")))

	firestoreProvider := pfirestore.NewProvider(cfg.Firestore)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := firestoreProvider.Close(closeCtx); err != nil {
			logger.Warn("firestore close error", zap.Error(err))
		}
	}()

	orderRepo, err := firestoreRepo.NewOrderRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise order repository", zap.Error(err))
	}
	productRepo, err := firestoreRepo.NewProductRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise product repository", zap.Error(err))
	}
	regionRepo, err := firestoreRepo.NewRegionRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise region repository", zap.Error(err))
	}

	relay, err := newMailer(cfg.Notifications, logger.Named("mailer"))
	if err != nil {
		logger.Fatal("failed to initialise mailer", zap.Error(err))
	}

	notificationService, err := services.NewNotificationService(services.NotificationServiceDeps{
		Orders:   orderRepo,
		Products: productRepo,
		Regions:  regionRepo,
		Mailer:   relay,
		Metrics:  metrics,
		Logger:   observability.EventLogger(logger.Named("notifications")),
	})
	if err != nil {
		logger.Fatal("failed to initialise notification service", zap.Error(err))
	}

	pubsubClient, err := jobs.NewClient(ctx, cfg.PubSub)
	if err != nil {
		logger.Fatal("failed to initialise pubsub client", zap.Error(err))
	}
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logger.Warn("pubsub close error", zap.Error(err))
		}
	}()

	consumer, err := jobs.NewNotificationConsumer(
		pubsubClient.Subscription(cfg.Notifications.Subscription),
		notificationService,
		jobs.WithConsumerLogger(logger.Named("consumer")),
		jobs.WithMaxAttempts(cfg.Notifications.MaxAttempts),
		jobs.WithDroppedHook(func(ctx context.Context) {
			metrics.NotificationDelivered(ctx, "dropped")
		}),
	)
	if err != nil {
		logger.Fatal("failed to initialise notification consumer", zap.Error(err))
	}

	logger.Info("notifier receiving",
		zap.String("subscription", cfg.Notifications.Subscription),
		zap.Int("maxAttempts", cfg.Notifications.MaxAttempts),
	)
	if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("notification consumer stopped", zap.Error(err))
		return
	}
	logger.Info("shutdown signal received; notifier stopped")
}

func newMailer(cfg config.NotificationConfig, logger *zap.Logger) (services.Mailer, error) {
	endpoint := strings.TrimSpace(cfg.MailerEndpoint)
	if endpoint == "" {
		logger.Warn("mail relay endpoint not configured; confirmations will only be logged")
		return mailer.NewLogMailer(logger), nil
	}
	return mailer.NewHTTPMailer(endpoint,
		mailer.WithToken(cfg.MailerToken),
		mailer.WithSender(cfg.SenderAddress),
		mailer.WithTimeout(cfg.MailerTimeout),
	)
}
