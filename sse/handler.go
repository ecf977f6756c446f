package sse

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/kbukum/pushflow/errors"
	"github.com/kbukum/pushflow/logger"
	"github.com/kbukum/pushflow/observability"
	"github.com/kbukum/pushflow/stream"
	"github.com/kbukum/pushflow/validation"
)

// MaxWindow caps the window a client may ask for with ?window=.
const MaxWindow = 4096

// SourceFunc builds the operator to stream for one request.
type SourceFunc[T any] func(c *gin.Context) (stream.Operator[T], error)

// HandlerOptions configures Handler.
type HandlerOptions struct {
	// Options are passed to Serve. ClientID is taken from the request.
	Options
	// Name labels the stream in spans and metrics.
	Name string
	// Metrics, when set, records every served subscription.
	Metrics *observability.StreamMetrics
}

// Handler adapts Serve to gin. Clients may pass ?client_id=<uuid> to keep
// their identity across reconnects and ?window=<n> to size their demand
// window. Invalid parameters are rejected with 400 before any stream is
// built.
func Handler[T any](source SourceFunc[T], hopts HandlerOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		clientID := c.Query("client_id")
		windowParam := c.Query("window")

		v := validation.New().OptionalUUID("client_id", clientID)
		window := hopts.Window
		if windowParam != "" {
			n, err := strconv.Atoi(windowParam)
			if err != nil {
				v.AddError("window", "must be an integer")
			} else {
				v.Range("window", n, 1, MaxWindow)
				window = int64(n)
			}
		}
		if appErr := v.Validate(); appErr != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, appErr)
			return
		}

		op, err := source(c)
		if err != nil {
			status := http.StatusInternalServerError
			if errors.IsCode(err, errors.ErrCodeInvalidInput) {
				status = http.StatusBadRequest
			}
			c.AbortWithStatusJSON(status, errorPayload(err))
			return
		}

		ctx := c.Request.Context()
		name := hopts.Name
		if name == "" {
			name = c.FullPath()
		}
		op = stream.Observe(ctx, name, op, hopts.Metrics)

		opts := hopts.Options
		opts.ClientID = clientID
		opts.Window = window
		if err := Serve(ctx, c.Writer, op, opts); err != nil && !errors.IsCode(err, errors.ErrCodeCancelled) {
			logger.Get("sse").WithContext(ctx).Debug("stream ended with error", logger.Fields(
				logger.FieldStream, name,
				logger.FieldError, err.Error(),
			))
		}
	}
}
