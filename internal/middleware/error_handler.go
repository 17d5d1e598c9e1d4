// Package middleware provides the gin middleware of the exeat portal.
package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apperrors "exeat/internal/pkg/errors"
	"exeat/internal/pkg/logger"
	"exeat/pkg/response"
)

// ErrorHandler renders errors added via c.Error() as a response.Response
// envelope. Handlers that already wrote a body are left alone.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		renderError(c, c.Errors.Last().Err)
	}
}

// abortWithError stops the chain and renders err.
func abortWithError(c *gin.Context, err error) {
	c.Abort()
	renderError(c, err)
}

func renderError(c *gin.Context, err error) {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		status := appErr.HTTPStatus
		if status == 0 {
			status = apperrors.StatusFor(err)
		}

		fields := []zap.Field{
			zap.String("request_id", GetRequestID(c.Request.Context())),
			zap.String("code", appErr.Code),
			zap.Int("status", status),
			zap.Error(err),
		}
		if status >= http.StatusInternalServerError {
			logger.Error("Request failed", fields...)
		} else {
			logger.Warn("Request error", fields...)
		}

		var details interface{}
		switch {
		case len(appErr.FieldErrors) > 0:
			details = appErr.FieldErrors
		case len(appErr.Params) > 0:
			details = appErr.Params
		}
		c.JSON(status, response.ErrorWithCode(status, appErr.Code, appErr.Message, details))
		return
	}

	// Untyped errors still carry a taxonomy sentinel when they come from a store.
	status := apperrors.StatusFor(err)
	if status == http.StatusInternalServerError {
		logger.Error("Unhandled request error",
			zap.String("request_id", GetRequestID(c.Request.Context())),
			zap.Error(err),
		)
		c.JSON(status, response.ErrorWithCode(status, "INTERNAL_ERROR", "An internal error occurred", nil))
		return
	}
	logger.Warn("Request error", zap.Int("status", status), zap.Error(err))
	c.JSON(status, response.Error(status, http.StatusText(status)))
}
