package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	mgin "github.com/ulule/limiter/v3/drivers/middleware/gin"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"
	"go.uber.org/zap"

	appErrors "github.com/noah-isme/trial-subjects-api/pkg/errors"
	"github.com/noah-isme/trial-subjects-api/pkg/response"
)

// NewRateLimitStore keeps counters in Redis when a client is available so
// limits hold across replicas, and in process memory otherwise.
func NewRateLimitStore(client *redis.Client, prefix string, logger *zap.Logger) limiter.Store {
	if client != nil {
		store, err := sredis.NewStoreWithOptions(client, limiter.StoreOptions{Prefix: prefix})
		if err == nil {
			return store
		}
		if logger != nil {
			logger.Warn("redis rate limit store unavailable, falling back to memory", zap.Error(err))
		}
	}
	return memory.NewStoreWithOptions(limiter.StoreOptions{Prefix: prefix, CleanUpInterval: limiter.DefaultCleanUpInterval})
}

// RateLimit rejects requests from a client IP once it exceeds rate.
func RateLimit(store limiter.Store, rate limiter.Rate) gin.HandlerFunc {
	instance := limiter.New(store, rate)
	return mgin.NewMiddleware(instance,
		mgin.WithLimitReachedHandler(func(c *gin.Context) {
			response.Error(c, appErrors.ErrTooManyRequests)
		}),
		mgin.WithErrorHandler(func(c *gin.Context, err error) {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "rate limiter unavailable"))
		}),
	)
}
