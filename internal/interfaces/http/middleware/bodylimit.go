package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/billing/backend/internal/interfaces/http/dto"
)

// BodyLimit returns a middleware that limits request body size. Requests
// declaring a larger Content-Length are rejected up front; streaming
// bodies are capped with http.MaxBytesReader.
func BodyLimit(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxBytes {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge,
				dto.NewErrorResponse(dto.ErrCodeRequestTooLarge, "Request body exceeds maximum allowed size"))
			return
		}

		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}
