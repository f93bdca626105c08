package middleware

import (
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/limiter"
	fiberredis "github.com/gofiber/storage/redis/v3"
	"github.com/redis/go-redis/v9"

	"github.com/telecarehq/telecare_backend/config"
)

// NewLimiterWithRedis rate-limits requests per client over a sliding window,
// backed by Redis so limits hold across instances.
func NewLimiterWithRedis(rdb *redis.Client, cfg config.RateLimitConfig) fiber.Handler {
	maxReq := cfg.MaxRequests
	if maxReq <= 0 {
		maxReq = 20
	}
	window := time.Duration(cfg.WindowSeconds) * time.Second
	if window <= 0 {
		window = 30 * time.Second
	}

	return limiter.New(limiter.Config{
		Storage:           fiberredis.NewFromConnection(rdb),
		Max:               maxReq,
		Expiration:        window,
		LimiterMiddleware: limiter.SlidingWindow{},
	})
}
