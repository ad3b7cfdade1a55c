package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"autopost-engine/pkg/logger"
	"autopost-engine/pkg/response"
)

// Recovery converts a handler panic into a 500 envelope instead of a dropped
// connection. The panic value and request id are logged, never returned to
// the caller.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				logger.GetLogger().WithFields(map[string]interface{}{
					"error":      err,
					"path":       c.Request.URL.Path,
					"request_id": c.GetString(response.RequestIDKey),
				}).Error("Panic recovered")
				response.InternalError(c, "Internal server error", "An unexpected error occurred")
				c.Abort()
			}
		}()
		c.Next()
	}
}

// ErrorHandler turns errors accumulated on the gin context into a 500
// envelope when no handler has written a response yet.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		err := c.Errors.Last()
		logger.GetLogger().WithError(err.Err).WithField(
			"request_id", c.GetString(response.RequestIDKey),
		).Error("Request error")

		if c.Writer.Status() == http.StatusOK && !c.Writer.Written() {
			response.InternalError(c, "Request failed", err.Error())
		}
	}
}
