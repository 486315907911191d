package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"community-bot/internal/common/logger"
)

// Logger logs every request once it is served. Paths listed in skip are
// served silently.
func Logger(skip ...string) gin.HandlerFunc {
	skipped := make(map[string]struct{}, len(skip))
	for _, p := range skip {
		skipped[p] = struct{}{}
	}

	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		if _, ok := skipped[path]; ok {
			return
		}
		// query strings carry OAuth codes
		logger.Info().
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Str("user_agent", c.Request.UserAgent()).
			Int("body_size", c.Writer.Size()).
			Str("request_id", RequestIDOf(c)).
			Msg("Request processed")
	}
}
