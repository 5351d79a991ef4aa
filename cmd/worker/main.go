package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"hostel_app/internal/config"
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

	deps := tasks.Deps{Logger: logger}

	email := services.NewEmailService(services.EmailConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		User:     cfg.SMTPUser,
		Password: cfg.SMTPPass,
		From:     cfg.EmailFrom,
	})
	if email.Configured() {
		deps.Email = email
	} else {
		logger.Warn("SMTP not configured, email notifications will fail")
	}
	if cfg.WahaAPIKey != "" {
		deps.Whatsapp = services.NewWahaService(cfg.WahaBaseURL, cfg.WahaAPIKey)
	}

	// Fee changes made here reach the admin consoles only through Redis
	if cfg.RedisURL != "" {
		cache, err := services.NewRedisCache(cfg.RedisURL, logger)
		if err != nil {
			logger.Fatal("Failed to connect to redis", zap.Error(err))
		}
		defer cache.Close()
		deps.Events = services.NewRedisEventBus(cache, services.NewEventHub(logger), logger)
	}

	tasks.DefineTasks(tasks.GlobalRegistry, deps)
	logger.Info("Worker started", zap.Strings("tasks", tasks.GlobalRegistry.Names()), zap.Duration("interval", cfg.WorkerInterval))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tasks.NewRunner(db, tasks.GlobalRegistry, logger).Run(ctx, cfg.WorkerInterval)
	logger.Info("Shutting down worker...")
}
