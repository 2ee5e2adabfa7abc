package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/linklet/linklet/internal/model"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	mgin "github.com/ulule/limiter/v3/drivers/middleware/gin"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"
)

// RateLimit builds a per-client-IP rate limiting middleware from a
// formatted rate such as "10-M" (10 requests per minute). Counters live in
// Redis when a client is provided so all instances share one budget, and
// fall back to an in-process store otherwise. Rejected requests get a 429.
func RateLimit(formatted string, cache *redis.Client) (gin.HandlerFunc, error) {
	rate, err := limiter.NewRateFromFormatted(formatted)
	if err != nil {
		return nil, err
	}

	var store limiter.Store
	if cache != nil {
		store, err = sredis.NewStoreWithOptions(cache, limiter.StoreOptions{
			Prefix: "linklet:limiter",
		})
		if err != nil {
			return nil, err
		}
	} else {
		store = memory.NewStore()
	}

	return mgin.NewMiddleware(limiter.New(store, rate),
		mgin.WithLimitReachedHandler(func(c *gin.Context) {
			c.JSON(http.StatusTooManyRequests, model.ErrorResponse{
				Error: "Too many requests. Please try again later.",
			})
		}),
	), nil
}
