package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kbukum/pushflow/logger"
)

// RequestLogger returns a Gin middleware that logs every finished request
// with method, path, status and duration. For an SSE route the request
// finishes when its stream ends, so the duration is the stream lifetime.
// Probe endpoints are skipped.
func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if isProbeEndpoint(c.Request.URL.Path) {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()
		duration := time.Since(start)

		status := c.Writer.Status()
		path := c.Request.URL.Path
		if q := c.Request.URL.RawQuery; q != "" {
			path = path + "?" + q
		}

		fields := logger.Fields(
			"method", c.Request.Method,
			"path", path,
			"status", status,
			logger.FieldDuration, duration.Milliseconds(),
			"client", c.ClientIP(),
		)
		if strings.HasPrefix(c.Writer.Header().Get("Content-Type"), "text/event-stream") {
			fields["stream"] = true
			fields["bytes"] = c.Writer.Size()
		}
		logByStatus(log.WithContext(c.Request.Context()), fields, status)
	}
}

func isProbeEndpoint(path string) bool {
	switch path {
	case "/health", "/alive", "/ready", "/metrics":
		return true
	}
	return false
}

func logByStatus(log *logger.Logger, fields map[string]interface{}, status int) {
	switch {
	case status >= http.StatusInternalServerError:
		log.Error("Request completed", fields)
	case status >= http.StatusBadRequest:
		log.Warn("Request completed", fields)
	default:
		log.Debug("Request completed", fields)
	}
}
