package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"firebase.google.com/go/v4/auth"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"hostel_app/internal/config"
	"hostel_app/internal/handlers"
	authMiddleware "hostel_app/internal/middleware"
	"hostel_app/internal/services"
	"hostel_app/internal/tasks"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := services.NewLogger(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	if err := cfg.RequireDatabase(); err != nil {
		logger.Fatal("Invalid configuration", zap.Error(err))
	}

	db, err := services.InitDB(cfg.DatabaseURL, cfg.IsProduction(), logger)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	if err := services.AutoMigrate(db, logger); err != nil {
		logger.Fatal("Failed to migrate database", zap.Error(err))
	}
	if err := services.SeedMessMenu(db); err != nil {
		logger.Warn("Failed to seed mess menu", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Change events always fan out through the local hub. With Redis they
	// travel through a channel first so every instance sees them.
	hub := services.NewEventHub(logger)
	var publisher services.EventPublisher = hub
	var locker services.Locker
	var cache *services.RedisCache

	if cfg.RedisURL != "" {
		cache, err = services.NewRedisCache(cfg.RedisURL, logger)
		if err != nil {
			logger.Fatal("Failed to connect to redis", zap.Error(err))
		}
		defer cache.Close()

		bus := services.NewRedisEventBus(cache, hub, logger)
		go func() {
			if err := bus.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Event relay stopped", zap.Error(err))
			}
		}()
		publisher = bus
		locker = services.NewRedisLocker(cache, 30*time.Second, 10*time.Second)
	} else {
		logger.Info("REDIS_URL not set, using in-process locks and events")
		locker = services.NewLockManager()
	}

	authClient := initFirebase(ctx, cfg, logger)

	stripeService := services.NewStripeService(cfg.StripeSecretKey, cfg.StripeWebhookSecret)
	var webhooks handlers.WebhookVerifier
	if cfg.StripeWebhookSecret != "" {
		webhooks = stripeService
	} else {
		logger.Warn("STRIPE_WEBHOOK_SECRET not set, webhook endpoint disabled")
	}

	payments := services.NewPaymentService(
		services.NewGormSettlementStore(db),
		stripeService,
		locker,
		publisher,
		services.PaymentConfig{
			DefaultCurrency:  cfg.DefaultCurrency,
			DefaultFeeType:   cfg.DefaultFeeType,
			Origin:           cfg.AppOrigin,
			DuplicateWindow:  cfg.DuplicateWindow,
			ConsistencyDelay: cfg.ConsistencyDelay,
		},
		logger,
	)
	payments.SetNotifier(tasks.NewReceiptScheduler(db))

	rooms := services.NewRoomService(db)
	dashboard := handlers.NewDashboardHandler(db, cache, logger)
	go dashboard.InvalidateOnChange(ctx, hub)

	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = authMiddleware.JSONErrorHandler(logger)

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(authMiddleware.RequestLogger(logger))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{"authorization", "x-client-info", "apikey", "content-type"},
	}))

	limit := middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
			Rate:      rate.Limit(cfg.RateLimit),
			ExpiresIn: 3 * time.Minute,
		}),
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
	})
	admin := authMiddleware.RequireAdmin(authMiddleware.AdminAuthConfig{
		Firebase: authClient,
		User:     cfg.AdminUser,
		Password: cfg.AdminPassword,
	})

	handlers.RegisterRoutes(e, handlers.Handlers{
		Auth:        handlers.NewAuthHandler(authClient, cfg.IsProduction()),
		Payments:    handlers.NewPaymentHandler(payments, webhooks, db, logger),
		Students:    handlers.NewStudentHandler(db, rooms, publisher, logger),
		Rooms:       handlers.NewRoomHandler(db, rooms, publisher, logger),
		Fees:        handlers.NewFeeHandler(db, publisher, logger),
		Leaves:      handlers.NewLeaveHandler(db, publisher, logger),
		Complaints:  handlers.NewComplaintHandler(db, publisher, logger),
		Members:     handlers.NewMemberHandler(db, publisher, logger),
		Mess:        handlers.NewMessHandler(db, publisher, logger),
		Dashboard:   dashboard,
		Events:      handlers.NewEventsHandler(hub, logger),
		Preferences: handlers.NewStudentPreferenceHandler(db, logger),
	}, admin, limit)

	go func() {
		logger.Info("Server starting", zap.String("port", cfg.Port), zap.String("env", cfg.Env))
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server stopped", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed", zap.Error(err))
	}
}

func initFirebase(ctx context.Context, cfg *config.Config, logger *zap.Logger) *auth.Client {
	if cfg.FirebaseCredentialsPath == "" {
		return nil
	}
	client, err := services.InitFirebase(ctx, cfg.FirebaseCredentialsPath)
	if err != nil {
		logger.Fatal("Failed to initialize Firebase", zap.Error(err))
	}
	logger.Info("Firebase admin auth enabled")
	return client
}
