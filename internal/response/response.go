package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Response represents a standard API response
type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Success returns a success response
func Success(message string, data interface{}) Response {
	if message == "" {
		message = "success"
	}
	return Response{
		Success: true,
		Message: message,
		Data:    data,
	}
}

// Error returns an error response
func Error(message string) Response {
	return Response{
		Success: false,
		Message: message,
	}
}

// SuccessJSON sends a 200 success response
func SuccessJSON(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Success("", data))
}

// AcceptedJSON acknowledges a request whose work continues asynchronously.
// Apple treats any 200 as delivered, so this is 200 rather than 202.
func AcceptedJSON(c *gin.Context) {
	c.JSON(http.StatusOK, Success("received", nil))
}

// ErrorJSON sends an error response
func ErrorJSON(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, Error(message))
}

// AbortWithError sends an error response and stops the handler chain
func AbortWithError(c *gin.Context, statusCode int, message string) {
	c.AbortWithStatusJSON(statusCode, Error(message))
}
