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
	"github.com/go-chi/chi/v5/middleware"
	goredis "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/cardapio-field/api/internal/handlers"
	"github.com/cardapio-field/api/internal/platform/auth"
	"github.com/cardapio-field/api/internal/platform/config"
	pfirestore "github.com/cardapio-field/api/internal/platform/firestore"
	"github.com/cardapio-field/api/internal/platform/jobs"
	"github.com/cardapio-field/api/internal/platform/observability"
	"github.com/cardapio-field/api/internal/platform/orderapi"
	"github.com/cardapio-field/api/internal/platform/scheduler"
	"github.com/cardapio-field/api/internal/repositories"
	firestoreRepo "github.com/cardapio-field/api/internal/repositories/firestore"
	"github.com/cardapio-field/api/internal/repositories/memory"
	redisRepo "github.com/cardapio-field/api/internal/repositories/redis"
	"github.com/cardapio-field/api/internal/services"
)

const meterName = "github.com/cardapio-field/api"

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx = observability.WithLogger(ctx, logger)

	envValues, err := config.EnvironmentValues()
	if err != nil {
		logger.Fatal("failed to read environment values", zap.Error(err))
	}

	cfg, err := config.Load(ctx)
	if err != nil {
		var invalid *config.ValidationError
		if errors.As(err, &invalid) {
			logger.Fatal("invalid configuration", zap.Strings("fields", invalid.Fields()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	buildInfo := buildInfoFromEnv(envValues, cfg, startedAt)
	events := observability.NewEventLogger(logger.Named("services"))
	meter := otel.GetMeterProvider().Meter(meterName)

	orderClient, err := orderapi.New(cfg.OrderAPI.BaseURL, orderapi.WithTimeout(cfg.OrderAPI.Timeout))
	if err != nil {
		logger.Fatal("failed to initialise order api client", zap.Error(err))
	}

	backends := services.Backends{OrderAPI: services.OrderAPIPing(orderClient)}

	var cartRepo repositories.CartRepository
	var redisClient *goredis.Client
	if addr := strings.TrimSpace(cfg.Redis.Addr); addr != "" {
		redisClient = goredis.NewClient(&goredis.Options{
			Addr:     addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		store := redisRepo.NewCartRepository(redisClient, cfg.Redis.CartTTL)
		cartRepo = store
		backends.Redis = store.Ping
	} else {
		logger.Warn("redis address not configured; carts are kept in memory")
		cartRepo = memory.NewCartRepository(cfg.Redis.CartTTL, nil)
	}

	var currentOrders repositories.CurrentOrderRepository
	var firestoreProvider *pfirestore.Provider
	if strings.TrimSpace(cfg.Firestore.ProjectID) != "" {
		firestoreProvider = pfirestore.NewProvider(cfg.Firestore)
		if _, err := firestoreProvider.Client(ctx); err != nil {
			logger.Fatal("failed to initialise firestore client", zap.Error(err))
		}
		repo, err := firestoreRepo.NewCurrentOrderRepository(firestoreProvider, cfg.Firestore.CurrentOrdersCollection)
		if err != nil {
			logger.Fatal("failed to initialise current order repository", zap.Error(err))
		}
		currentOrders = repo
		backends.Firestore = repo.Ping
	} else {
		logger.Warn("firestore project not configured; current orders are kept in memory")
		currentOrders = memory.NewCurrentOrderRepository()
	}

	var publisher *jobs.PubSubNotificationPublisher
	var pubsubClient *pubsub.Client
	if topicName := strings.TrimSpace(cfg.PubSub.NotificationsTopic); topicName != "" {
		pubsubClient, err = pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			logger.Fatal("failed to initialise pubsub client", zap.Error(err))
		}
		topic := pubsubClient.Topic(topicName)
		topic.EnableMessageOrdering = true
		publisher, err = jobs.NewPubSubNotificationPublisher(topic)
		if err != nil {
			logger.Fatal("failed to initialise notification publisher", zap.Error(err))
		}
		backends.PubSub = func(ctx context.Context) error {
			exists, err := topic.Exists(ctx)
			if err != nil {
				return err
			}
			if !exists {
				return fmt.Errorf("topic %s does not exist", topicName)
			}
			return nil
		}
	}

	coupons, err := services.CouponTableFromConfig(cfg.Coupons)
	if err != nil {
		logger.Fatal("invalid coupon rules", zap.Error(err))
	}

	catalogService, err := services.NewCatalogService(services.CatalogServiceDeps{
		Gateway:  orderClient,
		CacheTTL: cfg.Catalog.CacheTTL,
		Logger:   events,
	})
	if err != nil {
		logger.Fatal("failed to initialise catalog service", zap.Error(err))
	}

	cartService, err := services.NewCartService(services.CartServiceDeps{
		Repository: cartRepo,
		Catalog:    catalogService,
		Coupons:    &coupons,
		Logger:     events,
	})
	if err != nil {
		logger.Fatal("failed to initialise cart service", zap.Error(err))
	}

	orderService, err := services.NewOrderService(services.OrderServiceDeps{
		Gateway:       orderClient,
		CurrentOrders: currentOrders,
		Location:      cfg.Pricing.Location,
		Logger:        events,
	})
	if err != nil {
		logger.Fatal("failed to initialise order service", zap.Error(err))
	}

	checkoutService, err := services.NewCheckoutService(services.CheckoutServiceDeps{
		Carts:           cartService,
		Orders:          orderService,
		PlatformFeeRate: cfg.Pricing.PlatformFeeRate,
		Logger:          events,
	})
	if err != nil {
		logger.Fatal("failed to initialise checkout service", zap.Error(err))
	}

	tracker, err := services.NewOrderTracker(services.OrderTrackerDeps{
		Orders:     orderService,
		Registry:   scheduler.NewRegistry(),
		Interval:   cfg.Polling.OrderTrackingInterval,
		RunTimeout: cfg.Polling.RequestTimeout,
		TaskLogger: logger.Named("tracker"),
	})
	if err != nil {
		logger.Fatal("failed to initialise order tracker", zap.Error(err))
	}

	notificationDeps := services.NotificationServiceDeps{
		Gateway:    orderClient,
		Registry:   scheduler.NewRegistry(),
		Interval:   cfg.Polling.NotificationInterval,
		RunTimeout: cfg.Polling.RequestTimeout,
		Logger:     events,
		TaskLogger: logger.Named("notifications"),
		Meter:      meter,
	}
	if publisher != nil {
		notificationDeps.Publisher = publisher
	}
	notificationService, err := services.NewNotificationService(notificationDeps)
	if err != nil {
		logger.Fatal("failed to initialise notification service", zap.Error(err))
	}

	systemService, err := services.NewSystemService(services.SystemServiceDeps{
		Backends: backends,
		Tracker:       tracker,
		Notifications: notificationService,
		Build:         buildInfo,
	})
	if err != nil {
		logger.Fatal("failed to initialise system service", zap.Error(err))
	}

	authenticator := newAuthenticator(ctx, logger.Named("auth"), cfg)

	cartHandlers := handlers.NewCartHandlers(cartService)
	checkoutHandlers := handlers.NewCheckoutHandlers(checkoutService)
	orderHandlers := handlers.NewOrderHandlers(orderService, tracker)
	adminHandlers := handlers.NewAdminHandlers(orderService, notificationService)
	restaurantHandlers := handlers.NewRestaurantHandlers(catalogService)

	router := handlers.NewRouter(
		handlers.WithMiddlewares(
			observability.InjectLoggerMiddleware(logger),
			observability.TraceMiddleware(cfg.Firestore.ProjectID),
			observability.RecoveryMiddleware(logger),
			observability.RequestLoggerMiddleware(cfg.Firestore.ProjectID, cfg.Server.SessionHeader),
			middleware.CleanPath,
		),
		handlers.WithHealthHandlers(handlers.NewHealthHandlers(
			handlers.WithHealthBuildInfo(buildInfo),
			handlers.WithHealthSystemService(systemService),
		)),
		handlers.WithSessionMiddlewares(handlers.SessionMiddleware(cfg.Server.SessionHeader, cartService.NewSessionID)),
		handlers.WithAdminMiddlewares(authenticator.RequireFirebaseAuth(cfg.Server.AdminRoles...), observability.IdentityAnnotator()),
		handlers.WithRestaurantRoutes(restaurantHandlers.Routes),
		handlers.WithCartRoutes(cartHandlers.Routes),
		handlers.WithCheckoutRoutes(checkoutHandlers.Routes),
		handlers.WithOrderRoutes(orderHandlers.Routes),
		handlers.WithAdminRoutes(adminHandlers.Routes),
	)
	logRoutes(logger, router)

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
		serverLogger.Info("cardapio-field api listening", zap.String("environment", cfg.Server.Environment))
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

	tracker.StopAll()
	notificationService.StopAll()
	if publisher != nil {
		publisher.Stop()
	}
	if pubsubClient != nil {
		if err := pubsubClient.Close(); err != nil {
			logger.Warn("pubsub close error", zap.Error(err))
		}
	}
	if firestoreProvider != nil {
		if err := firestoreProvider.Close(); err != nil {
			logger.Warn("firestore close error", zap.Error(err))
		}
	}
	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close error", zap.Error(err))
		}
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
	environment := strings.TrimSpace(cfg.Server.Environment)
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

// newAuthenticator builds the admin authenticator. Without a Firebase project every admin
// request is refused with 401.
func newAuthenticator(ctx context.Context, logger *zap.Logger, cfg config.Config) *auth.Authenticator {
	if strings.TrimSpace(cfg.Firebase.ProjectID) == "" {
		logger.Warn("firebase project not configured; admin routes reject all requests")
		return auth.NewAuthenticator(nil)
	}
	verifier, err := auth.NewFirebaseVerifier(ctx, cfg.Firebase)
	if err != nil {
		logger.Fatal("failed to initialise firebase verifier", zap.Error(err))
	}
	return auth.NewAuthenticator(verifier)
}

func logRoutes(logger *zap.Logger, router chi.Router) {
	if logger == nil || router == nil {
		return
	}
	count := 0
	_ = chi.Walk(router, func(method, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		count++
		logger.Debug("route registered", zap.String("method", method), zap.String("route", route))
		return nil
	})
	logger.Info("routes registered", zap.Int("count", count))
}
