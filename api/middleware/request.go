package middleware

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/feichai0017/document-converter/pkg/logger"
)

const RequestIDHeader = "X-Request-ID"

// RequestID propagates the caller's request id, or assigns one, to the
// response header and to the request context for logging.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" || len(id) > 128 {
			id = uuid.New().String()
		}
		c.Header(RequestIDHeader, id)
		c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), logger.RequestIDKey, id))
		c.Next()
	}
}

// Logger writes one line per request.
func Logger(log logger.Logger) gin.HandlerFunc {
	log = log.Named("http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.FromContext(c.Request.Context(), log).Info("Request handled",
			logger.String("method", c.Request.Method),
			logger.String("path", c.Request.URL.Path),
			logger.Int("status", c.Writer.Status()),
			logger.Duration("latency", time.Since(start)),
			logger.String("clientIp", c.ClientIP()),
		)
	}
}
