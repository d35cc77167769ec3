package httpapi

import (
	"time"

	"github.com/gin-gonic/gin"
	glog "github.com/goliatone/go-logger/glog"
)

// RequestLogger emits one structured line per request, leveled by status.
func RequestLogger(logger glog.Logger) gin.HandlerFunc {
	logger = glog.Ensure(logger)
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		status := c.Writer.Status()
		args := []any{
			"method", c.Request.Method,
			"path", path,
			"status", status,
			"latency", time.Since(start),
			"client_ip", c.ClientIP(),
			"body_size", c.Writer.Size(),
		}
		switch {
		case status >= 500:
			logger.Error("http_request", args...)
		case status >= 400:
			logger.Warn("http_request", args...)
		default:
			logger.Info("http_request", args...)
		}
	}
}
