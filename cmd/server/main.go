package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"

	"github.com/kubesec-bank/webbank/internal/auth"
	"github.com/kubesec-bank/webbank/internal/config"
	"github.com/kubesec-bank/webbank/internal/handlers"
	"github.com/kubesec-bank/webbank/internal/logging"
	"github.com/kubesec-bank/webbank/internal/metrics"
	"github.com/kubesec-bank/webbank/internal/middleware"
	"github.com/kubesec-bank/webbank/internal/migrations"
	"github.com/kubesec-bank/webbank/internal/notify"
	"github.com/kubesec-bank/webbank/internal/repository"
	"github.com/kubesec-bank/webbank/internal/service"
)

func main() {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)

	// Connect to PostgreSQL.
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		logger.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		logger.Fatalf("failed to ping database: %v", err)
	}
	logger.Info("connected to PostgreSQL")

	if cfg.MigrateOnStart {
		version, err := migrations.Up(ctx, db)
		if err != nil {
			logger.Fatalf("failed to apply migrations: %v", err)
		}
		logger.WithField("version", version).Info("schema up to date")
	}

	// Connect to Redis.
	redisClient := redis.NewClient(&redis.Options{
		Addr: cfg.RedisAddr,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatalf("failed to ping Redis: %v", err)
	}
	defer redisClient.Close()
	logger.Info("connected to Redis")

	// Connect to NATS when configured; otherwise notifications go to the log.
	var (
		nc       *nats.Conn
		notifier notify.Notifier
		events   notify.Publisher
	)
	if cfg.NatsURL != "" {
		nc, err = nats.Connect(cfg.NatsURL, nats.Name("webbank"))
		if err != nil {
			logger.Fatalf("failed to connect to NATS: %v", err)
		}
		defer nc.Close()
		bus := notify.NewNATS(nc)
		notifier, events = bus, bus
		logger.Info("connected to NATS")
	} else {
		logBus := notify.NewLog(logger)
		notifier, events = logBus, logBus
		logger.Warn("NATS_URL not set, notifications are logged only")
	}

	// Set up dependencies.
	m := metrics.New()
	opts := service.DefaultOptions()
	opts.OTPTTL = cfg.OTPTTL
	svc := service.New(service.Deps{
		Repo:     repository.NewPostgresRepository(db),
		Tokens:   repository.NewRedisTokenStore(redisClient),
		JWT:      auth.NewTokenManager(cfg.JWTSecret, cfg.JWTExpiry),
		Notifier: notifier,
		Events:   events,
		Metrics:  m,
		Logger:   logger,
	}, opts)

	stop := make(chan struct{})
	rateLimiter := middleware.NewRateLimiter(cfg.LoginRateLimit, cfg.LoginRateWindow, logger)
	rateLimiter.StartCleanup(cfg.LoginRateWindow, stop)

	// Set up routes.
	mux := handlers.NewHandler(svc, logger).Routes(rateLimiter)
	mux.Handle("GET /metrics", m.Handler())

	// Create HTTP server.
	addr := fmt.Sprintf(":%d", cfg.ServerPort)
	srv := &http.Server{
		Addr:         addr,
		Handler:      middleware.Metrics(m)(middleware.Logging(logger)(mux)),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine.
	go func() {
		logger.Infof("webbank listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("server error: %v", err)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down webbank...")
	close(stop)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatalf("server forced to shutdown: %v", err)
	}

	if nc != nil {
		if err := nc.Drain(); err != nil {
			logger.WithError(err).Warn("drain NATS connection")
		}
	}
	logger.Info("webbank stopped")
}
