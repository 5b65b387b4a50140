// internal/middleware/logging_middleware.go
package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"fastbus-service/internal/utils"
)

// LoggingMiddleware logs every API request with its request ID. Prometheus
// scrapes and the traffic websocket are skipped.
func LoggingMiddleware(logger *utils.ServiceLogger, skipPrefixes ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()
		c.Next()

		path := c.Request.URL.Path
		for _, prefix := range skipPrefixes {
			if strings.HasPrefix(path, prefix) {
				return
			}
		}

		logger.WithRequestID(c.GetString("request_id")).LogAPIRequest(
			c.Request.Method,
			path,
			c.Request.UserAgent(),
			c.ClientIP(),
			c.Writer.Status(),
			time.Since(startTime),
		)
	}
}
