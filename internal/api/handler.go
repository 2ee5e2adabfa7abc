package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/linklet/linklet/internal/model"
	"github.com/linklet/linklet/internal/service"
)

// Handler holds HTTP handlers and dependencies.
// It follows the dependency injection pattern, receiving
// interfaces rather than concrete implementations for testability.
type Handler struct {
	urlService service.URLServiceInterface // Shortening business logic
	db         DBInterface                 // Database connection for health checks
	cache      CacheInterface              // Cache connection for health checks
	logger     *slog.Logger                // Structured logger for validation/error logging
	baseURL    string                      // Fallback short-link base when the request has no Host
}

// DBInterface defines the database operations needed by the handler.
// This interface allows for easy mocking in unit tests without
// requiring a real database connection.
type DBInterface interface {
	Ping(ctx context.Context) error // Check database connectivity
	Close()                         // Close database connection
}

// CacheInterface defines the cache operations needed by the handler.
type CacheInterface interface {
	Ping(ctx context.Context) error
}

// NewHandler creates a new handler instance with the provided dependencies.
func NewHandler(urlService service.URLServiceInterface, db DBInterface, cache CacheInterface, logger *slog.Logger, baseURL string) *Handler {
	return &Handler{
		urlService: urlService,
		db:         db,
		cache:      cache,
		logger:     logger,
		baseURL:    baseURL,
	}
}

// RegisterRoutes registers all route definitions on the given Gin engine.
// The caller is responsible for creating the engine and adding middleware
// before calling this method, so middleware runs in the correct order.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	h.RegisterHealthRoute(r)
	h.RegisterAPIRoutes(r)
}

// RegisterHealthRoute registers the health check endpoint on its own so the
// server can place it ahead of rate limiting; probes must never be throttled.
func (h *Handler) RegisterHealthRoute(r *gin.Engine) {
	r.GET("/health", h.healthCheck)
}

// RegisterAPIRoutes registers the shortener routes only. Split out so the
// redirect wildcard can coexist with routes the server adds itself.
func (h *Handler) RegisterAPIRoutes(r *gin.Engine) {
	r.POST("/shorten", h.shorten)
	r.GET("/stats/:shortId", h.stats)

	// Redirect route (public) - must be last to avoid conflicts
	r.GET("/:shortId", h.redirect)
}

// healthCheck handles GET /health
// Returns the health status of the service and all dependencies.
// Response codes:
//   - 200 OK: All dependencies are healthy
//   - 503 Service Unavailable: One or more dependencies are down
func (h *Handler) healthCheck(c *gin.Context) {
	ctx := c.Request.Context()

	cacheErr := h.cache.Ping(ctx)
	dbErr := h.db.Ping(ctx)

	status := "ok"
	code := http.StatusOK
	deps := gin.H{"cache": "up", "database": "up"}

	if cacheErr != nil {
		status = "degraded"
		code = http.StatusServiceUnavailable
		deps["cache"] = "down"
	}
	if dbErr != nil {
		status = "degraded"
		code = http.StatusServiceUnavailable
		deps["database"] = "down"
	}

	c.JSON(code, gin.H{"status": status, "dependencies": deps})
}

// shorten handles POST /shorten
// Maps a long URL to a short one, reusing the existing mapping when the
// URL has been shortened before.
// Request body: ShortenRequest (JSON)
// Response codes:
//   - 200 OK: Short URL created or reused
//   - 400 Bad Request: Invalid request body or URL
//   - 500 Internal Server Error: Store failure or allocation exhausted
func (h *Handler) shorten(c *gin.Context) {
	ctx := c.Request.Context()
	var req model.ShortenRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.WarnContext(ctx, "invalid request body",
			slog.String("error", err.Error()),
			slog.String("path", c.Request.URL.Path))
		h.errorResponse(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	rec, err := h.urlService.Shorten(ctx, req.LongURL)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidURL):
			h.errorResponse(c, http.StatusBadRequest, "Invalid URL")
		case errors.Is(err, service.ErrAllocationExhausted):
			h.logger.ErrorContext(ctx, "short ID allocation exhausted",
				slog.String("long_url", req.LongURL))
			h.errorResponse(c, http.StatusInternalServerError, "Failed to allocate short ID")
		default:
			h.logger.ErrorContext(ctx, "unexpected error shortening URL",
				slog.String("error", err.Error()))
			h.errorResponse(c, http.StatusInternalServerError, "Internal server error")
		}
		return
	}

	c.JSON(http.StatusOK, model.ShortenResponse{
		ShortURL: h.requestBase(c) + "/" + rec.ShortID,
		LongURL:  rec.LongURL,
	})
}

// redirect handles GET /:shortId
// Resolves the short ID, records the click (count, last access, referrer)
// and redirects to the original URL.
// Response codes:
//   - 302 Found: Redirects to the original URL
//   - 404 Not Found: Short ID does not exist
//   - 500 Internal Server Error: Unexpected error
func (h *Handler) redirect(c *gin.Context) {
	ctx := c.Request.Context()
	shortID := c.Param("shortId")
	referrer := c.GetHeader("Referer")

	longURL, err := h.urlService.Resolve(ctx, shortID, referrer)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrURLNotFound):
			h.errorResponse(c, http.StatusNotFound, "URL not found")
		default:
			h.logger.ErrorContext(ctx, "unexpected error during redirect",
				slog.String("error", err.Error()),
				slog.String("short_id", shortID))
			h.errorResponse(c, http.StatusInternalServerError, "Internal server error")
		}
		return
	}

	c.Redirect(http.StatusFound, longURL)
}

// stats handles GET /stats/:shortId
// Returns click count, last access time and top referrers without
// touching any counters.
// Response codes:
//   - 200 OK: Stats retrieved
//   - 404 Not Found: Short ID does not exist
//   - 500 Internal Server Error: Unexpected error
func (h *Handler) stats(c *gin.Context) {
	ctx := c.Request.Context()
	shortID := c.Param("shortId")

	resp, err := h.urlService.Stats(ctx, shortID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrURLNotFound):
			h.errorResponse(c, http.StatusNotFound, "URL not found")
		default:
			h.logger.ErrorContext(ctx, "unexpected error fetching stats",
				slog.String("error", err.Error()),
				slog.String("short_id", shortID))
			h.errorResponse(c, http.StatusInternalServerError, "Internal server error")
		}
		return
	}

	c.JSON(http.StatusOK, resp)
}

// requestBase composes the short-link base from the inbound request's own
// scheme and host, honoring X-Forwarded-Proto behind a proxy. Falls back
// to the configured base URL when the request carries no Host.
func (h *Handler) requestBase(c *gin.Context) string {
	host := c.Request.Host
	if host == "" {
		return h.baseURL
	}

	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	if proto := c.GetHeader("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	return scheme + "://" + host
}

// errorResponse sends a standardized JSON error response.
func (h *Handler) errorResponse(c *gin.Context, status int, message string) {
	c.JSON(status, model.ErrorResponse{Error: message})
}
