package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Every error body carries a human-readable message; business rejections
// additionally carry a stable machine code under "error".

func Message(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{"message": msg})
}

func ErrorCode(c *gin.Context, status int, msg, code string) {
	c.JSON(status, gin.H{"message": msg, "error": code})
}

// ValidationFailed renders field-level validation messages with HTTP 422.
func ValidationFailed(c *gin.Context, errs map[string][]string) {
	c.JSON(http.StatusUnprocessableEntity, gin.H{
		"message": "Validation failed",
		"errors":  errs,
	})
}

// AbortMessage is Message for middleware: it also stops the handler chain.
func AbortMessage(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"message": msg})
}
