package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"taskboard/pkg/logger"
)

const requestIDHeader = "X-Request-ID"

// RequestID tags every request with an ID (client-provided or generated),
// threads it into the context logger, and echoes it in the response header.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.New().String()
		}
		ctx := logger.WithRequestID(c.Request.Context(), id)
		c.Request = c.Request.WithContext(ctx)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}
