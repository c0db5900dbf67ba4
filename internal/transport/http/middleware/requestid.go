package middleware

import (
	"github.com/ErlanBelekov/anime-sync/internal/requestid"
	"github.com/gin-gonic/gin"
)

// RequestID attaches a correlation id to the request context and echoes it
// in X-Request-ID. A caller's id is reused only when it passes
// requestid.Sanitize, since it ends up in every log line for the call.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := requestid.Sanitize(c.GetHeader("X-Request-ID"))
		c.Request = c.Request.WithContext(requestid.WithRequestID(c.Request.Context(), id))
		c.Header("X-Request-ID", id)
		c.Next()
	}
}
