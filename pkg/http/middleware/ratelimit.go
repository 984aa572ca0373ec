package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// KeyedAllower admits or rejects a request for a given key (client IP).
type KeyedAllower interface {
	Allow(key string) bool
}

// RateLimit rejects requests with 429 once the caller's per-minute budget is spent.
func RateLimit(limiter KeyedAllower) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if limiter != nil && !limiter.Allow(c.RealIP()) {
				c.Response().Header().Set("Retry-After", "60")
				return c.JSON(http.StatusTooManyRequests, map[string]interface{}{
					"status":  http.StatusTooManyRequests,
					"message": http.StatusText(http.StatusTooManyRequests),
					"data": []map[string]string{{
						"code":    "ERR_RATE_LIMITED",
						"message": "too many collect requests",
					}},
				})
			}
			return next(c)
		}
	}
}
