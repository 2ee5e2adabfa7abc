package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/linklet/linklet/internal/api"
	"github.com/linklet/linklet/internal/config"
	"github.com/linklet/linklet/internal/events"
	"github.com/linklet/linklet/internal/middleware"
	"github.com/linklet/linklet/internal/observability"
	"github.com/linklet/linklet/internal/repository"
	"github.com/linklet/linklet/internal/service"
	"github.com/linklet/linklet/internal/shortid"
)

// redisPinger adapts *redis.Client to api.CacheInterface. A nil client
// reports the cache as down.
type redisPinger struct{ client *redis.Client }

func (r *redisPinger) Ping(ctx context.Context) error {
	if r.client == nil {
		return errors.New("cache not configured")
	}
	return r.client.Ping(ctx).Err()
}

// NewRouter initializes all dependencies and returns a configured Gin router.
// This is useful for testing where you don't need the full HTTP server.
// publisher may be nil when no message broker is configured.
func NewRouter(cfg *config.Config, db *pgxpool.Pool, cache *redis.Client, obs *observability.Observability, publisher events.ClickPublisher) (*gin.Engine, error) {
	baseRepo := repository.NewURLRepository(db)
	var urlRepo repository.URLRepositoryInterface = baseRepo
	if cache != nil {
		urlRepo = repository.NewCachedURLRepository(baseRepo, cache, cfg.Cache.TTL)
	}

	alloc, err := newAllocator(cfg, baseRepo)
	if err != nil {
		return nil, err
	}

	urlService := service.NewURLService(urlRepo, alloc, publisher, cfg.App.ShortIDRetries)
	handler := api.NewHandler(urlService, db, &redisPinger{client: cache}, obs.Logger, cfg.App.BaseURL)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(cfg.Telemetry.ServiceName))
	router.Use(middleware.Logging(obs.Logger))

	handler.RegisterHealthRoute(router)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(obs.Registry, promhttp.HandlerOpts{})))

	if cfg.App.RateLimit != "" {
		limit, err := middleware.RateLimit(cfg.App.RateLimit, cache)
		if err != nil {
			return nil, fmt.Errorf("rate limit config: %w", err)
		}
		router.Use(limit)
	}

	handler.RegisterAPIRoutes(router)
	return router, nil
}

// newAllocator builds the short ID allocator selected in configuration.
func newAllocator(cfg *config.Config, repo *repository.URLRepository) (shortid.Allocator, error) {
	switch cfg.App.AllocatorStrategy {
	case shortid.StrategySequence:
		return shortid.NewSequenceAllocator(repo), nil
	case shortid.StrategyRandom:
		return shortid.NewRandomAllocator(repo, cfg.App.ShortIDLength, cfg.App.ShortIDRetries), nil
	case shortid.StrategySnowflake:
		gen, err := shortid.NewSnowflake(cfg.App.MachineID)
		if err != nil {
			return nil, err
		}
		return shortid.NewSnowflakeAllocator(gen), nil
	default:
		return nil, fmt.Errorf("unknown allocator strategy %q", cfg.App.AllocatorStrategy)
	}
}

// NewServer initializes all dependencies and returns a configured HTTP server.
// This includes the router plus HTTP server settings (timeouts, address, etc.).
func NewServer(cfg *config.Config, db *pgxpool.Pool, cache *redis.Client, obs *observability.Observability, publisher events.ClickPublisher) (*http.Server, error) {
	router, err := NewRouter(cfg, db, cache, obs, publisher)
	if err != nil {
		return nil, err
	}

	return &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}, nil
}
