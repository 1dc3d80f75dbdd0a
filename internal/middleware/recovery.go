package middleware

import (
	"log/slog"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"github.com/simp-lee/advocatedir/internal/domain"
	"github.com/simp-lee/advocatedir/internal/pkg"
)

// Recovery returns a gin middleware that recovers from panics, logs the error
// with stack trace using slog, and answers with the standard failure envelope:
//
//	{"success": false, "error": {"code": "INTERNAL_ERROR", "message": "internal error"}}
//
// The panic value is never echoed to the client.
func Recovery(logger *slog.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}

	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				logger.ErrorContext(c.Request.Context(), "panic recovered",
					slog.Any("panic", err),
					slog.String("method", c.Request.Method),
					slog.String("path", c.Request.URL.Path),
					slog.String("stack", string(debug.Stack())),
				)

				// Headers may already be out if the handler streamed a response.
				if c.Writer.Written() {
					c.Abort()
					return
				}
				pkg.Abort(c, domain.ErrInternal)
			}
		}()
		c.Next()
	}
}
