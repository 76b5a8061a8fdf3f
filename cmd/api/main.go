package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/orchidmarket/api/internal/di"
	"github.com/orchidmarket/api/internal/handlers"
	"github.com/orchidmarket/api/internal/platform/auth"
	"github.com/orchidmarket/api/internal/platform/config"
	pfirestore "github.com/orchidmarket/api/internal/platform/firestore"
	"github.com/orchidmarket/api/internal/platform/notify"
	"github.com/orchidmarket/api/internal/platform/observability"
	firestorerepo "github.com/orchidmarket/api/internal/repositories/firestore"
)

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	baseLogger, err := observability.NewLogger(cfg.Logging.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")

	firestoreProvider := pfirestore.NewProvider(cfg.Firestore)
	if _, err := firestoreProvider.Client(ctx); err != nil {
		logger.Fatal("failed to initialise firestore client", zap.Error(err))
	}

	registry, err := firestorerepo.NewRegistry(firestoreProvider,
		firestorerepo.WithSearchScanLimit(cfg.Orders.SearchScanLimit))
	if err != nil {
		logger.Fatal("failed to initialise repositories", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := registry.Close(closeCtx); err != nil {
			logger.Warn("firestore close error", zap.Error(err))
		}
	}()

	pubsubClient, err := pubsub.NewClient(ctx, cfg.Notifications.ProjectID)
	if err != nil {
		logger.Fatal("failed to initialise pubsub client", zap.Error(err))
	}
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logger.Warn("pubsub close error", zap.Error(err))
		}
	}()

	notificationTopic := pubsubClient.Topic(cfg.Notifications.Topic)
	defer notificationTopic.Stop()

	notifier, err := notify.NewPubSubPublisher(notificationTopic)
	if err != nil {
		logger.Fatal("failed to initialise notification publisher", zap.Error(err))
	}

	firebaseVerifier, err := auth.NewFirebaseVerifier(ctx, cfg.Firebase)
	if err != nil {
		logger.Fatal("failed to initialise firebase verifier", zap.Error(err))
	}
	authenticator := auth.NewAuthenticator(firebaseVerifier)

	container, err := di.NewContainer(di.ContainerDeps{
		Config:   cfg,
		Registry: registry,
		Notifier: notifier,
		Logger:   logger,
	})
	if err != nil {
		logger.Fatal("failed to build service container", zap.Error(err))
	}

	orderHandlers := handlers.NewOrderHandlers(authenticator, container.Services.Orders)
	paymentHandlers := handlers.NewPaymentHandlers(authenticator, container.Services.Payments)
	shipmentHandlers := handlers.NewShipmentHandlers(authenticator, container.Services.Shipments)
	returnHandlers := handlers.NewReturnHandlers(authenticator, container.Services.Returns)

	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthBuildInfo(buildInfoFromEnv(startedAt)),
		handlers.WithHealthRepository(registry.Health()),
	)

	httpLogger := logger.Named("http")
	router := handlers.NewRouter(
		handlers.WithMiddlewares(
			observability.InjectLoggerMiddleware(httpLogger),
			observability.RecoveryMiddleware(httpLogger),
			observability.RequestLoggerMiddleware(),
		),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithOrderRoutes(func(r chi.Router) {
			orderHandlers.Routes(r)
			paymentHandlers.OrderRoutes(r)
			shipmentHandlers.OrderRoutes(r)
			returnHandlers.OrderRoutes(r)
		}),
		handlers.WithPaymentRoutes(paymentHandlers.Routes),
		handlers.WithReturnRoutes(returnHandlers.Routes),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := httpLogger.With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("orchid market api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func buildInfoFromEnv(started time.Time) handlers.BuildInfo {
	version := strings.TrimSpace(os.Getenv("API_BUILD_VERSION"))
	if version == "" {
		version = "dev"
	}
	commit := strings.TrimSpace(os.Getenv("API_BUILD_COMMIT_SHA"))
	if commit == "" {
		commit = "unknown"
	}
	environment := strings.TrimSpace(os.Getenv("API_ENVIRONMENT"))
	if environment == "" {
		environment = "local"
	}
	return handlers.BuildInfo{
		Version:     version,
		CommitSHA:   commit,
		Environment: environment,
		StartedAt:   started,
	}
}
