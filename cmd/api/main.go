package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/vegbox-admin/api/internal/di"
	"github.com/vegbox-admin/api/internal/handlers"
	"github.com/vegbox-admin/api/internal/platform/config"
	pfirestore "github.com/vegbox-admin/api/internal/platform/firestore"
	"github.com/vegbox-admin/api/internal/platform/i18n"
	"github.com/vegbox-admin/api/internal/platform/idempotency"
	"github.com/vegbox-admin/api/internal/platform/jobs"
	"github.com/vegbox-admin/api/internal/platform/observability"
	"github.com/vegbox-admin/api/internal/platform/secrets"
	"github.com/vegbox-admin/api/internal/repositories"
	firestoreRepo "github.com/vegbox-admin/api/internal/repositories/firestore"
	"github.com/vegbox-admin/api/internal/services"
)

const (
	idempotencyCollection   = "idempotencyKeys"
	idempotencyCleanupBatch = 200
)

func main() {
	baseLogger, err := observability.NewLogger()
	if err != nil {
		panic(err)
	}
	logger := baseLogger.Named("api")
	defer func() {
		_ = logger.Sync()
	}()

	ctx := observability.WithLogger(context.Background(), logger)
	started := time.Now().UTC()

	env, err := config.EnvironmentValues()
	if err != nil {
		logger.Fatal("failed to read environment", zap.Error(err))
	}

	secretFetcher, err := newSecretFetcher(ctx, logger, env)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := secretFetcher.Close(); err != nil {
			logger.Warn("secret fetcher close failed", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx,
		config.WithSecretResolver(secretFetcher),
		config.WithRequiredSecrets(requiredSecretNames(env)...),
	)
	if err != nil {
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			logger.Fatal("required secrets missing", zap.Strings("secrets", missing.RedactedNames()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	buildInfo := buildInfoFromEnv(env, cfg, started)

	firestoreProvider := pfirestore.NewProvider(cfg.Firestore)
	healthRepo, err := newHealthRepository(firestoreProvider, secretFetcher)
	if err != nil {
		logger.Fatal("failed to initialise health checks", zap.Error(err))
	}
	registry, err := firestoreRepo.NewRegistry(firestoreProvider, healthRepo)
	if err != nil {
		logger.Fatal("failed to initialise repositories", zap.Error(err))
	}

	containerOpts := []di.Option{
		di.WithLogger(logger.Named("services")),
		di.WithBuildInfo(buildInfo),
	}
	publisher, pubsubClient, err := newLedgerPublisher(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to initialise ledger publisher", zap.Error(err))
	}
	if publisher != nil {
		containerOpts = append(containerOpts, di.WithLedgerPublisher(publisher))
		logger.Info("ledger events enabled", zap.String("topic", cfg.Ledger.EventsTopic))
	}

	container, err := di.NewContainer(ctx, cfg, registry, containerOpts...)
	if err != nil {
		logger.Fatal("failed to build services", zap.Error(err))
	}

	translator, err := i18n.NewTranslator(cfg.Business.DefaultLocale, cfg.Business.Location)
	if err != nil {
		logger.Fatal("failed to initialise translator", zap.Error(err))
	}
	responder := handlers.NewErrorResponder(translator)

	idempotencyStore, err := idempotency.NewFirestoreStore(firestoreProvider, idempotencyCollection)
	if err != nil {
		logger.Fatal("failed to initialise idempotency store", zap.Error(err))
	}
	idempotencyMiddleware := idempotency.Middleware(idempotencyStore,
		idempotency.WithHeader(cfg.Idempotency.Header),
		idempotency.WithTTL(cfg.Idempotency.TTL),
		idempotency.WithLogger(logger.Named("idempotency")),
	)

	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	var cleanupWG sync.WaitGroup
	cleanupTicker := time.NewTicker(cfg.Idempotency.CleanupInterval)
	cleanupWG.Add(1)
	go func() {
		defer cleanupWG.Done()
		cleanupLogger := logger.Named("idempotency")
		for {
			select {
			case <-cleanupTicker.C:
				runCtx, cancel := context.WithTimeout(cleanupCtx, time.Minute)
				removed, err := idempotencyStore.CleanupExpired(runCtx, time.Now().UTC(), idempotencyCleanupBatch)
				cancel()
				if err != nil {
					cleanupLogger.Error("idempotency cleanup error", zap.Error(err))
					continue
				}
				if removed > 0 {
					cleanupLogger.Info("idempotency cleanup removed records", zap.Int("count", removed))
				}
			case <-cleanupCtx.Done():
				return
			}
		}
	}()

	ledgerMiddlewares := []func(http.Handler) http.Handler{
		idempotencyMiddleware,
	}
	if cfg.Ledger.RateLimit > 0 {
		ledgerMiddlewares = append([]func(http.Handler) http.Handler{
			handlers.ActorRateLimit(responder, cfg.Ledger.RateLimit, cfg.Ledger.RateWindow, time.Now),
		}, ledgerMiddlewares...)
	}

	orderHandlers := handlers.NewOrderHandlers(container.Services.Orders, responder, cfg.Business.Location)
	ledgerHandlers := handlers.NewLedgerHandlers(container.Services.Ledger, responder,
		handlers.WithLedgerMutationMiddleware(ledgerMiddlewares...),
	)
	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthBuildInfo(buildInfo),
		handlers.WithHealthSystemService(container.Services.System),
	)

	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.TraceMiddleware(cfg.Firestore.ProjectID),
		observability.RecoveryMiddleware(logger.Named("http")),
		observability.RequestLoggerMiddleware(),
	}
	apiMiddlewares := []func(http.Handler) http.Handler{
		handlers.LocaleMiddleware(translator),
		handlers.ActorMiddleware(responder, cfg.Actor.Header, cfg.Actor.Default),
	}

	router := handlers.NewRouter(
		handlers.WithMiddlewares(middlewares...),
		handlers.WithAPIMiddlewares(apiMiddlewares...),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithOrderRoutes(orderHandlers.Routes),
		handlers.WithLedgerRoutes(ledgerHandlers.Routes),
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

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("vegbox admin api listening", zap.String("environment", cfg.Environment))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	cleanupTicker.Stop()
	cleanupCancel()
	cleanupWG.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
	if publisher != nil {
		publisher.Stop()
	}
	if pubsubClient != nil {
		if err := pubsubClient.Close(); err != nil {
			logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if err := container.Close(shutdownCtx); err != nil {
		logger.Warn("repository close failed", zap.Error(err))
	}
}

func buildInfoFromEnv(env map[string]string, cfg config.Config, started time.Time) services.BuildInfo {
	version := strings.TrimSpace(env["API_BUILD_VERSION"])
	if version == "" {
		version = "dev"
	}
	commit := strings.TrimSpace(env["API_BUILD_COMMIT_SHA"])
	if commit == "" {
		commit = "unknown"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "local"
	}
	return services.BuildInfo{
		Version:     version,
		CommitSHA:   commit,
		Environment: environment,
		StartedAt:   started,
	}
}

func newHealthRepository(provider *pfirestore.Provider, fetcher *secrets.Fetcher) (repositories.HealthRepository, error) {
	checks := []repositories.DependencyCheck{
		{
			Name:    "firestore",
			Timeout: 1500 * time.Millisecond,
			Check:   provider.Ping,
		},
	}
	if fetcher != nil {
		const secretHealthReference = "secret://system/healthz?version=latest"
		checks = append(checks, repositories.DependencyCheck{
			Name:    "secretManager",
			Timeout: time.Second,
			Check: func(ctx context.Context) error {
				_, err := fetcher.Resolve(ctx, secretHealthReference)
				if err == nil {
					return nil
				}
				if st, ok := status.FromError(err); ok && st.Code() == codes.NotFound {
					return nil
				}
				return err
			},
		})
	}
	return repositories.NewDependencyHealthRepository(checks)
}

// newLedgerPublisher returns nil values when no events topic is configured.
func newLedgerPublisher(ctx context.Context, cfg config.Config) (*jobs.PubSubLedgerPublisher, *pubsub.Client, error) {
	topicName := strings.TrimSpace(cfg.Ledger.EventsTopic)
	if topicName == "" {
		return nil, nil, nil
	}
	client, err := pubsub.NewClient(ctx, cfg.Firestore.ProjectID)
	if err != nil {
		return nil, nil, err
	}
	publisher, err := jobs.NewPubSubLedgerPublisher(client.Topic(topicName))
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	return publisher, client, nil
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger, env map[string]string) (*secrets.Fetcher, error) {
	lookup := func(key string) string {
		return strings.TrimSpace(env[key])
	}

	defaultProject := lookup("API_SECRET_DEFAULT_PROJECT")
	if defaultProject == "" {
		defaultProject = lookup("API_FIRESTORE_PROJECT_ID")
	}
	fallbackPath := lookup("API_SECRET_FALLBACK_FILE")
	if fallbackPath == "" {
		fallbackPath = ".secrets.local"
	}

	opts := []secrets.Option{
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithFallbackFile(fallbackPath),
	}
	if defaultProject != "" {
		opts = append(opts, secrets.WithDefaultProject(defaultProject))
	}
	return secrets.NewFetcher(ctx, opts...)
}

// requiredSecretNames lists secrets that must resolve outside local development.
func requiredSecretNames(env map[string]string) []string {
	environment := strings.ToLower(strings.TrimSpace(env["API_ENVIRONMENT"]))
	switch environment {
	case "", "local", "dev", "development", "test":
		return nil
	}
	return []string{"Ledger.IPHashSalt"}
}
