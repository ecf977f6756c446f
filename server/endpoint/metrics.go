package endpoint

import (
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kbukum/pushflow/observability"
)

// Metrics returns a handler reporting a local snapshot of runtime memory,
// goroutines and open stream subscriptions. Exported metrics go through
// OTLP; this is for a quick look at one instance.
func Metrics(streams *observability.StreamMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		var m runtime.MemStats
		runtime.ReadMemStats(&m)

		c.JSON(http.StatusOK, gin.H{
			"timestamp":            time.Now().UTC().Format(time.RFC3339),
			"goroutines":           runtime.NumGoroutine(),
			"active_subscriptions": streams.ActiveSubscriptions(),
			"memory": gin.H{
				"alloc_mb": m.Alloc / 1024 / 1024,
				"sys_mb":   m.Sys / 1024 / 1024,
				"gc_runs":  m.NumGC,
			},
		})
	}
}
