// Package ratelimit provides the Redis-backed request rate limiter applied
// in front of the API routes.
package ratelimit

import (
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	limiter "github.com/ulule/limiter/v3"
	limiterstdlib "github.com/ulule/limiter/v3/drivers/middleware/stdlib"
	limiterredis "github.com/ulule/limiter/v3/drivers/store/redis"

	"github.com/noah-isme/backend-kasir/internal/common"
)

// Config controls the limiter rate.
type Config struct {
	// RPS is the sustained request rate per client IP.
	RPS int
	// Burst is the additional headroom on top of the sustained rate.
	Burst int
	// Prefix namespaces the limiter keys in Redis.
	Prefix string
}

// Middleware builds a chi-compatible middleware enforcing the configured
// per-IP rate via a Redis store.
func Middleware(client *redis.Client, cfg Config) (func(http.Handler) http.Handler, error) {
	if cfg.RPS <= 0 {
		return nil, fmt.Errorf("ratelimit: rps must be positive")
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "ratelimit"
	}
	store, err := limiterredis.NewStoreWithOptions(client, limiter.StoreOptions{
		Prefix: prefix,
	})
	if err != nil {
		return nil, fmt.Errorf("ratelimit: create store: %w", err)
	}
	rate := limiter.Rate{
		Period: time.Second,
		Limit:  int64(cfg.RPS + cfg.Burst),
	}
	middleware := limiterstdlib.NewMiddleware(
		limiter.New(store, rate, limiter.WithTrustForwardHeader(true)),
		limiterstdlib.WithLimitReachedHandler(limitReached),
	)
	return middleware.Handler, nil
}

func limitReached(w http.ResponseWriter, _ *http.Request) {
	common.JSONError(w, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests", nil)
}
