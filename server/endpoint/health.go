package endpoint

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kbukum/pushflow/observability"
	"github.com/kbukum/pushflow/version"
)

// Health returns a handler that reports service health aggregated from the
// given checkers. A down component answers 503.
func Health(serviceName string, checkers ...observability.HealthChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		sh := collect(c.Request.Context(), serviceName, checkers)

		httpStatus := http.StatusOK
		if sh.Status == observability.HealthStatusDown {
			httpStatus = http.StatusServiceUnavailable
		}
		c.JSON(httpStatus, gin.H{
			"status":     sh.Status,
			"service":    sh.Service,
			"version":    sh.Version,
			"timestamp":  time.Now().UTC().Format(time.RFC3339),
			"components": sh.Components,
		})
	}
}

func collect(ctx context.Context, serviceName string, checkers []observability.HealthChecker) *observability.ServiceHealth {
	sh := observability.NewServiceHealth(serviceName, version.Short())
	for _, hc := range checkers {
		if hc != nil {
			sh.AddComponent(hc.CheckHealth(ctx))
		}
	}
	return sh
}
