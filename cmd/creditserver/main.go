// Package main runs the credit layer server: the REST and websocket surface
// over the event-sourced reputation and rewards engine.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"

	app "github.com/shf-platform/credit_layer/internal/app"
	"github.com/shf-platform/credit_layer/internal/app/httpapi"
	"github.com/shf-platform/credit_layer/internal/app/metrics"
	"github.com/shf-platform/credit_layer/internal/app/storage/kvstore"
	"github.com/shf-platform/credit_layer/internal/app/storage/postgres"
	"github.com/shf-platform/credit_layer/internal/config"
	"github.com/shf-platform/credit_layer/internal/middleware"
	"github.com/shf-platform/credit_layer/pkg/logger"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// .env is optional; real environments set variables directly
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.NewDefault("creditserver").WithError(err).Error("load configuration")
		os.Exit(1)
	}

	log := logger.New(logger.LoggingConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	}).WithField("component", "creditserver")

	stores, cleanup, err := buildStores(cfg, log)
	if err != nil {
		log.WithError(err).Error("initialise storage")
		os.Exit(1)
	}
	defer cleanup()

	application, err := app.New(stores, app.Options{
		MirrorURL:   cfg.Mirror.URL,
		JobSchedule: cfg.Jobs.Schedule,
	}, log)
	if err != nil {
		log.WithError(err).Error("build application")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := application.Start(ctx); err != nil {
		log.WithError(err).Error("start application")
		os.Exit(1)
	}

	handler := httpapi.NewHandler(application, log)

	auth := middleware.NewAuthMiddleware(cfg.Auth.JWTSecret, log, []string{"/healthz", "/metrics", "/ws"})
	limiter := middleware.NewRateLimiter(cfg.Server.RateLimitPerSec, cfg.Server.RateLimitBurst, log)
	cors := middleware.NewCORSMiddleware(cfg.Server.AllowedOrigins)

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/", cors.Handler(auth.Handler(limiter.Handler(handler))))

	server := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: metrics.InstrumentHandler(mux),
	}

	go func() {
		log.WithField("addr", cfg.Server.Addr).Info("http server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("http server failed")
			cancel()
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-stop:
		log.Info("shutdown signal received")
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http server shutdown")
	}
	if err := application.Stop(shutdownCtx); err != nil {
		log.WithError(err).Warn("application shutdown")
	}
	log.Info("stopped")
}

// buildStores selects the storage backend from configuration. The returned
// cleanup closes any open connections.
func buildStores(cfg config.Config, log *logger.Logger) (app.Stores, func(), error) {
	switch cfg.Database.Driver {
	case "postgres":
		store, err := postgres.Open(cfg.Database.DSN)
		if err != nil {
			return app.Stores{}, nil, err
		}
		log.Info("using postgres storage")
		return app.Stores{
			Events: store,
			Wallet: store,
			Awards: store,
			KV:     store,
		}, func() { store.Close() }, nil

	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		kv := kvstore.NewRedisKV(client, cfg.Redis.Prefix)
		store := kvstore.New(kv)
		log.WithField("addr", cfg.Redis.Addr).Info("using redis storage")
		return app.Stores{
			Events: store,
			Wallet: store,
			Awards: store,
			KV:     kv,
		}, func() { client.Close() }, nil

	default:
		log.Info("using in-memory storage")
		return app.Stores{}, func() {}, nil
	}
}
