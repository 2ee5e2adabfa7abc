package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/linklet/linklet/internal/config"
	"github.com/linklet/linklet/internal/events"
	"github.com/linklet/linklet/internal/infra"
	"github.com/linklet/linklet/internal/observability"
	"github.com/linklet/linklet/internal/server"
)

func main() {
	// Load configuration from environment variables
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx := context.Background()

	// Initialize observability (logging, tracing, metrics)
	obs, err := observability.Setup(ctx, observability.Config{
		ServiceName:  cfg.Telemetry.ServiceName,
		Environment:  cfg.Telemetry.Environment,
		OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
	})
	if err != nil {
		log.Fatalf("Failed to setup observability: %v", err)
	}
	logger := obs.Logger

	// Apply pending schema migrations before accepting traffic
	connString := cfg.Database.ConnectionString()
	if err := infra.RunMigrations("file://migrations/schema", connString); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	logger.Info("migrations applied")

	// Connect to database
	db, err := infra.NewPostgresPool(ctx, connString)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	logger.Info("database connected")

	// Connect to cache
	cache, err := infra.NewCacheClient(ctx, cfg.Cache.ConnectionString())
	if err != nil {
		log.Fatalf("Failed to connect to cache: %v", err)
	}
	defer cache.Close()
	logger.Info("cache connected")

	// Connect to the message broker when configured; the click event
	// stream is optional and the service runs fine without it.
	var publisher events.ClickPublisher
	if cfg.Broker.URL != "" {
		conn, err := infra.NewBrokerConnection(cfg.Broker.URL)
		if err != nil {
			log.Fatalf("Failed to connect to broker: %v", err)
		}
		defer conn.Close()

		publisher, err = events.NewPublisher(conn, logger)
		if err != nil {
			log.Fatalf("Failed to setup click publisher: %v", err)
		}
		logger.Info("click event publisher connected")
	}

	// Create HTTP server
	srv, err := server.NewServer(cfg, db, cache, obs, publisher)
	if err != nil {
		log.Fatalf("Failed to setup server: %v", err)
	}

	// Start server in a goroutine
	go func() {
		logger.Info("server starting",
			slog.String("port", cfg.Server.Port),
			slog.String("strategy", cfg.App.AllocatorStrategy),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	// Graceful shutdown
	// Wait for interrupt signal (Ctrl+C or SIGTERM)
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	// Create shutdown context with 10 second timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Attempt graceful shutdown
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	obs.Shutdown(shutdownCtx)

	logger.Info("server exited gracefully")
}
