// Package middleware holds the gin middlewares shared by every route.
package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/charleshuang3/visitorlink/internal/logging"
)

var (
	logger = logging.Component("http")
)

const (
	HeaderRequestID = "X-Request-ID"

	keyRequestID = "REQUEST_ID"
)

// RequestLogger tags each request with an id, reusing the caller's id if it
// is a uuid, and logs one line per request. The tagged logger is available
// from the request context with zerolog.Ctx.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		id := c.GetHeader(HeaderRequestID)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		c.Set(keyRequestID, id)
		c.Header(HeaderRequestID, id)

		reqLogger := logger.With().Str("request_id", id).Logger()
		c.Request = c.Request.WithContext(reqLogger.WithContext(c.Request.Context()))

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "undefined"
		}

		ev := reqLogger.Info()
		if c.Writer.Status() >= 500 {
			ev = reqLogger.Error()
		}
		ev.Str("method", c.Request.Method).
			Str("route", path).
			Int("status", c.Writer.Status()).
			Str("ip", c.ClientIP()).
			Dur("latency", time.Since(start)).
			Msg("Request")
	}
}

// RequestID is the id RequestLogger assigned to c.
func RequestID(c *gin.Context) string {
	return c.GetString(keyRequestID)
}
