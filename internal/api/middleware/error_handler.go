// Package middleware provides HTTP middleware for the Foreman backend.
package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apperrors "sitefoundry.io/foreman/internal/pkg/errors"
	"sitefoundry.io/foreman/internal/pkg/logger"
)

// ErrorHandler is a Gin middleware that provides centralized error handling.
// It captures errors added via c.Error() and returns a consistent JSON
// envelope: success:false plus code and message. Internal detail stays in
// the logs, never in the response.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		err := c.Errors.Last().Err

		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			logger.Warn("Request error",
				zap.String("code", appErr.Code),
				zap.String("message", appErr.Message),
				zap.Int("status", appErr.HTTPStatus),
				zap.String("request_id", GetRequestID(c.Request.Context())),
				zap.Error(appErr.Err),
			)
			c.JSON(appErr.HTTPStatus, gin.H{
				"success": false,
				"code":    appErr.Code,
				"message": appErr.Message,
			})
			return
		}

		logger.Error("Unhandled request error",
			zap.String("request_id", GetRequestID(c.Request.Context())),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"code":    apperrors.CodeAPIError,
			"message": "An internal error occurred",
		})
	}
}
