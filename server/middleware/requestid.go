package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/kbukum/pushflow/logger"
)

// HeaderRequestID is the request ID header, read from and echoed to clients.
const HeaderRequestID = "X-Request-Id"

// RequestID injects a unique X-Request-Id into every request and response
// and into the request context, where logger.WithContext picks it up.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(logger.FieldRequestID, id)
		c.Header(HeaderRequestID, id)
		c.Request = c.Request.WithContext(logger.ContextWith(c.Request.Context(), logger.FieldRequestID, id))
		c.Next()
	}
}
