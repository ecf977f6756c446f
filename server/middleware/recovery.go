package middleware

import (
	"fmt"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"github.com/kbukum/pushflow/errors"
	"github.com/kbukum/pushflow/logger"
)

// Recovery returns a Gin middleware that recovers from handler panics, logs
// the stack and answers 500 with an INTERNAL_ERROR body. Once a stream has
// started writing, the status can no longer change and only the log remains.
func Recovery(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				log.WithContext(c.Request.Context()).Error("Panic recovered", logger.Fields(
					"error", fmt.Sprintf("%v", rec),
					"stack", string(debug.Stack()),
					"path", c.Request.URL.Path,
					"method", c.Request.Method,
					"client_ip", c.ClientIP(),
				))
				if c.Writer.Written() {
					c.Abort()
					return
				}
				c.AbortWithStatusJSON(500, errors.Internal(fmt.Errorf("panic: %v", rec)))
			}
		}()
		c.Next()
	}
}
