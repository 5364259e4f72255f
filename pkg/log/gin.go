package log

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const headerRequestID = "X-Request-ID"

// GinMiddleware logs every request once it completes and injects a
// request-scoped child logger into the request context. The request id
// comes from the X-Request-ID header when the caller sets one.
func GinMiddleware(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		reqID := c.GetHeader(headerRequestID)
		if reqID == "" {
			reqID = uuid.NewString()
		}
		c.Header(headerRequestID, reqID)

		scoped := logger.With().
			Str(FieldRequestID, reqID).
			Str(FieldMethod, c.Request.Method).
			Str(FieldPath, c.Request.URL.Path).
			Str(FieldClientIP, c.ClientIP()).
			Logger()
		c.Request = c.Request.WithContext(WithLogger(c.Request.Context(), scoped))

		c.Next()

		status := c.Writer.Status()
		evt := scoped.Info()
		if status >= 500 {
			evt = scoped.Error()
		}
		evt.Int(FieldStatus, status).
			Dur(FieldLatency, time.Since(start)).
			Msg("request completed")
	}
}
