package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RequestIDKey is the gin context key under which the request-id middleware
// stores the id echoed back in every envelope.
const RequestIDKey = "request_id"

// Response is the JSON envelope used by every handler.
type Response struct {
	Success   bool         `json:"success"`
	Message   string       `json:"message"`
	RequestID string       `json:"request_id,omitempty"`
	Data      interface{}  `json:"data,omitempty"`
	Error     *ErrorDetail `json:"error,omitempty"`
}

type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func write(c *gin.Context, statusCode int, resp Response) {
	if id, ok := c.Get(RequestIDKey); ok {
		resp.RequestID, _ = id.(string)
	}
	c.JSON(statusCode, resp)
}

func Success(c *gin.Context, statusCode int, message string, data interface{}) {
	write(c, statusCode, Response{
		Success: true,
		Message: message,
		Data:    data,
	})
}

func Error(c *gin.Context, statusCode int, code, message, details string) {
	write(c, statusCode, Response{
		Success: false,
		Message: message,
		Error: &ErrorDetail{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}

func BadRequest(c *gin.Context, message, details string) {
	Error(c, http.StatusBadRequest, "BAD_REQUEST", message, details)
}

func InternalError(c *gin.Context, message, details string) {
	Error(c, http.StatusInternalServerError, "INTERNAL_ERROR", message, details)
}

func NotFound(c *gin.Context, message string) {
	Error(c, http.StatusNotFound, "NOT_FOUND", message, "")
}

func ValidationError(c *gin.Context, details string) {
	Error(c, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Validation failed", details)
}
