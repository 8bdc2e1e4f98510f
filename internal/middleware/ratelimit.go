package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/truck-allocation/internal/config"
)

// RateLimit returns a fixed-window request limiter backed by Redis.  The
// window key is INCRed per request and expired with the window, so one
// round trip decides admission.  When the limiter is disabled or Redis is
// unavailable the middleware passes everything through; throttling is an
// operational guard, never a correctness dependency.
func RateLimit(cfg config.RateLimitConfig, rdb *redis.Client) echo.MiddlewareFunc {
	if !cfg.Enabled || rdb == nil {
		return func(next echo.HandlerFunc) echo.HandlerFunc {
			return func(c echo.Context) error { return next(c) }
		}
	}

	windowSec := int64(cfg.Window.Seconds())
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			// Key by authenticated user when present, falling back to the
			// client IP for the public auth endpoints.
			subject := c.RealIP()
			if uid := c.Get("user_id"); uid != nil {
				subject = fmt.Sprintf("u:%v", uid)
			}
			window := time.Now().Unix() / windowSec
			key := fmt.Sprintf("%s:%s:%d", cfg.Prefix, subject, window)

			ctx := c.Request().Context()
			n, err := rdb.Incr(ctx, key).Result()
			if err != nil {
				// Fail open on Redis trouble.
				return next(c)
			}
			if n == 1 {
				rdb.Expire(ctx, key, cfg.Window)
			}
			if n > int64(cfg.Limit) {
				retry := windowSec - (time.Now().Unix() % windowSec)
				c.Response().Header().Set("Retry-After", strconv.FormatInt(retry, 10))
				return c.JSON(http.StatusTooManyRequests, echo.Map{"error": "rate limit exceeded"})
			}
			return next(c)
		}
	}
}
