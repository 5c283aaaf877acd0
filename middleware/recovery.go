package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"github.com/Nachoram/plataforma-inmobiliaria-sub005/pkg/logger"
)

// Recovery turns a handler panic into a 500 response carrying the request id.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				// Log the panic with stack trace; request id comes from the context
				logger.Error(c.Request.Context(), "panic recovered",
					"error", err,
					"method", c.Request.Method,
					"path", c.Request.URL.Path,
					"stack", string(debug.Stack()),
				)

				// Get request ID for tracing
				body := gin.H{"error": "Internal server error", "code": "INTERNAL_ERROR"}
				if requestID := GetRequestID(c); requestID != "" {
					body["request_id"] = requestID
				}
				// Headers already sent, nothing more can be written
				if c.Writer.Written() {
					c.Abort()
					return
				}
				// Return 500 error
				c.AbortWithStatusJSON(http.StatusInternalServerError, body)
			}
		}()

		c.Next()
	}
}
