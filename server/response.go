package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kbukum/pushflow/errors"
)

// StatusOf maps an error code to the HTTP status it is answered with.
func StatusOf(code errors.ErrorCode) int {
	switch code {
	case errors.ErrCodeInvalidInput, errors.ErrCodeInvalidDemand:
		return http.StatusBadRequest
	case errors.ErrCodeLimitExceeded:
		return http.StatusTooManyRequests
	case errors.ErrCodeCancelled:
		return 499
	case errors.ErrCodeUpstreamFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// RespondWithError writes err as JSON. An *errors.AppError is sent as is
// with the status of its code; anything else becomes INTERNAL_ERROR.
func RespondWithError(c *gin.Context, err error) {
	var appErr *errors.AppError
	if !errors.As(err, &appErr) {
		appErr = errors.Internal(err)
	}
	c.AbortWithStatusJSON(StatusOf(appErr.Code), appErr)
}

// RespondOK sends a 200 response with data as the body.
func RespondOK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, data)
}
