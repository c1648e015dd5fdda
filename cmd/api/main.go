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

	"go.uber.org/zap"

	"github.com/optima-bank/loyalty/internal/dataapi"
	"github.com/optima-bank/loyalty/internal/domain"
	"github.com/optima-bank/loyalty/internal/handlers"
	"github.com/optima-bank/loyalty/internal/identity"
	"github.com/optima-bank/loyalty/internal/platform/auth"
	"github.com/optima-bank/loyalty/internal/platform/config"
	"github.com/optima-bank/loyalty/internal/platform/idempotency"
	"github.com/optima-bank/loyalty/internal/platform/observability"
	"github.com/optima-bank/loyalty/internal/repositories"
	dataRepo "github.com/optima-bank/loyalty/internal/repositories/dataapi"
	"github.com/optima-bank/loyalty/internal/repositories/sqlite"
	"github.com/optima-bank/loyalty/internal/services"
)

func main() {
	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")

	cfg, err := config.Load()
	if err != nil {
		var validation *config.ValidationError
		if errors.As(err, &validation) {
			logger.Fatal("invalid configuration", zap.Strings("fields", validation.Fields()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	identityClient, err := identity.NewClient(cfg.Identity.BaseURL, cfg.Identity.APIKey,
		identity.WithHTTPClient(&http.Client{Timeout: cfg.Identity.Timeout}),
	)
	if err != nil {
		logger.Fatal("failed to initialise identity client", zap.Error(err))
	}

	dataClient, err := dataapi.NewClient(cfg.Data.BaseURL, cfg.Data.APIKey,
		dataapi.WithSchema(cfg.Data.Schema),
		dataapi.WithHTTPClient(&http.Client{Timeout: cfg.Data.Timeout}),
	)
	if err != nil {
		logger.Fatal("failed to initialise data api client", zap.Error(err))
	}

	cartStore, err := sqlite.Open(cfg.Cart.StorePath, sqlite.WithNamespace(cfg.Cart.StorageKey))
	if err != nil {
		logger.Fatal("failed to open cart store", zap.Error(err))
	}
	defer func() {
		if err := cartStore.Close(); err != nil {
			logger.Warn("cart store close error", zap.Error(err))
		}
	}()

	profileRepo := dataRepo.NewProfileRepository(dataClient)
	voucherRepo := dataRepo.NewVoucherRepository(dataClient)
	categoryRepo := dataRepo.NewCategoryRepository(dataClient)
	redemptionRepo := dataRepo.NewRedemptionRepository(dataClient)

	notifier, err := services.NewNotifier(services.NotifierDeps{
		TTL:    cfg.Notifications.TTL,
		Logger: eventLogger(logger.Named("notifications")),
	})
	if err != nil {
		logger.Fatal("failed to initialise notifier", zap.Error(err))
	}

	cartService, err := services.NewCartService(services.CartServiceDeps{
		Store:  cartStore,
		Logger: eventLogger(logger.Named("cart")),
	})
	if err != nil {
		logger.Fatal("failed to initialise cart service", zap.Error(err))
	}

	catalogService, err := services.NewCatalogService(services.CatalogServiceDeps{
		Vouchers:   voucherRepo,
		Categories: categoryRepo,
		Logger:     eventLogger(logger.Named("catalog")),
	})
	if err != nil {
		logger.Fatal("failed to initialise catalog service", zap.Error(err))
	}

	sessionService, err := services.NewSessionService(services.SessionServiceDeps{
		Identity:       identityClient,
		Profiles:       profileRepo,
		Notifier:       notifier,
		StartingPoints: cfg.Loyalty.StartingPoints,
		Tier:           cfg.Loyalty.DefaultTier,
		HomeRoute:      cfg.Pages.HomeRoute,
		ResetRedirect:  cfg.Identity.RecoverRedirectURL,
		Logger:         eventLogger(logger.Named("session")),
	})
	if err != nil {
		logger.Fatal("failed to initialise session service", zap.Error(err))
	}

	redemptionService, err := services.NewRedemptionService(services.RedemptionServiceDeps{
		Redemptions: redemptionRepo,
		Carts:       cartService,
		Notifier:    notifier,
		Logger:      eventLogger(logger.Named("redemption")),
	})
	if err != nil {
		logger.Fatal("failed to initialise redemption service", zap.Error(err))
	}

	sessionEvents, stopSessionEvents := sessionService.Subscribe(context.Background())
	defer stopSessionEvents()
	go watchSessionEvents(logger.Named("session"), cartService, sessionEvents)

	notices, stopNotices := notifier.Subscribe(context.Background())
	defer stopNotices()
	go watchNotifications(logger.Named("notifications"), notices)

	verifier, err := auth.NewJWTVerifier(cfg.Identity.JWTSecret)
	if err != nil {
		logger.Fatal("failed to initialise token verifier", zap.Error(err))
	}
	authenticator := auth.NewAuthenticator(verifier)

	printer := handlers.NewPointsPrinter(cfg.Loyalty.Locale)

	authHandlers := handlers.NewAuthHandlers(sessionService, authenticator, printer)
	sessionHandlers := handlers.NewSessionHandlers(sessionService, cartService, authenticator, printer, cfg.Pages.HomeRoute)
	catalogHandlers := handlers.NewCatalogHandlers(catalogService, printer)
	cartHandlers := handlers.NewCartHandlers(cartService, catalogService, sessionService, authenticator, printer)
	checkoutHandlers := handlers.NewCheckoutHandlers(redemptionService, sessionService, authenticator, printer, cfg.Pages.HomeRoute)
	meHandlers := handlers.NewMeHandlers(sessionService, authenticator, printer)
	notificationHandlers := handlers.NewNotificationHandlers(notifier)

	healthRepo, err := newHealthRepository(cartStore, categoryRepo)
	if err != nil {
		logger.Warn("health: dependency checks unavailable", zap.Error(err))
	}
	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthChecker(healthRepo),
		handlers.WithHealthBuildInfo(buildVersion(), buildEnvironment()),
	)

	idempotencyMiddleware := idempotency.Middleware(
		idempotency.NewMemoryStore(),
		idempotency.WithMethods(http.MethodPost),
		idempotency.WithLogger(zap.NewStdLog(logger.Named("idempotency"))),
	)

	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.TraceMiddleware(),
		observability.RecoveryMiddleware(logger.Named("http")),
		observability.RequestLoggerMiddleware(),
		idempotencyMiddleware,
	}

	router := handlers.NewRouter(
		handlers.WithMiddlewares(middlewares...),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithAuthRoutes(authHandlers.Routes),
		handlers.WithSessionRoutes(sessionHandlers.Routes),
		handlers.WithCatalogRoutes(catalogHandlers.Routes),
		handlers.WithCartRoutes(cartHandlers.Routes),
		handlers.WithCheckoutRoutes(checkoutHandlers.Routes),
		handlers.WithMeRoutes(meHandlers.Routes),
		handlers.WithNotificationRoutes(notificationHandlers.Routes),
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
		serverLogger.Info("loyalty api listening")
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

// eventLogger adapts a zap logger to the map-based event callback the
// services accept.
func eventLogger(logger *zap.Logger) func(ctx context.Context, event string, fields map[string]any) {
	return func(_ context.Context, event string, fields map[string]any) {
		zFields := make([]zap.Field, 0, len(fields)+1)
		zFields = append(zFields, zap.String("event", event))
		for k, v := range fields {
			zFields = append(zFields, zap.Any(k, v))
		}
		logger.Debug("service event", zFields...)
	}
}

// watchSessionEvents consumes session transitions. Sign-out clears the
// departing user's durable cart snapshot; the event is published before the
// sign-out response is returned, so the clear follows the session change.
func watchSessionEvents(logger *zap.Logger, carts services.CartService, events <-chan domain.SessionEvent) {
	for event := range events {
		if event.Kind != domain.SessionSignedOut {
			continue
		}
		key := strings.TrimSpace(event.CartKey)
		if key == "" {
			key = strings.TrimSpace(event.UserID)
		}
		if key == "" {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if _, err := carts.Clear(ctx, key); err != nil {
			logger.Warn("cart clear on sign-out failed", zap.String("cart_key", key), zap.Error(err))
		}
		cancel()
	}
}

// watchNotifications mirrors published user notices into the server log.
func watchNotifications(logger *zap.Logger, notices <-chan domain.Notification) {
	for notice := range notices {
		logger.Info("notification published",
			zap.String("id", notice.ID),
			zap.String("severity", string(notice.Severity)),
			zap.String("message", notice.Message),
		)
	}
}

func newHealthRepository(store *sqlite.CartStore, categories repositories.CategoryRepository) (repositories.HealthRepository, error) {
	checks := make([]repositories.DependencyCheck, 0, 2)
	if store != nil {
		checks = append(checks, repositories.DependencyCheck{
			Name:    "cartStore",
			Timeout: time.Second,
			Check:   store.Ping,
		})
	}
	if categories != nil {
		checks = append(checks, repositories.DependencyCheck{
			Name:    "dataApi",
			Timeout: 1500 * time.Millisecond,
			Check: func(ctx context.Context) error {
				_, err := categories.ListActive(ctx)
				return err
			},
		})
	}
	return repositories.NewDependencyHealthRepository(checks)
}

func buildVersion() string {
	if version := strings.TrimSpace(os.Getenv("API_BUILD_VERSION")); version != "" {
		return version
	}
	return "dev"
}

func buildEnvironment() string {
	if env := strings.TrimSpace(os.Getenv("API_ENVIRONMENT")); env != "" {
		return env
	}
	return "local"
}
