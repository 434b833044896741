package middleware

import (
	"errors"
	"fmt"
	"runtime/debug"
	"syscall"

	"github.com/gin-gonic/gin"

	apperrors "github.com/jwalitptl/vaccination-api/pkg/errors"
)

// Recovery turns a handler panic into an internal error response carrying the
// trace id. A panic caused by a client that already hung up is logged without
// a response.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			err, ok := rec.(error)
			if !ok {
				err = fmt.Errorf("panic: %v", rec)
			}

			lg := requestLogger(c)
			if connectionLost(err) {
				lg.Warn().Err(err).Str("path", c.Request.URL.Path).Msg("Client connection lost")
				c.Abort()
				return
			}

			lg.Error().
				Err(err).
				Str("stack", string(debug.Stack())).
				Str("method", c.Request.Method).
				Str("path", c.Request.URL.Path).
				Str("client_ip", c.ClientIP()).
				Msg("Request panic recovered")

			if c.Writer.Written() {
				c.Abort()
				return
			}
			appErr := apperrors.Internal(err)
			status := apperrors.HTTPStatus(appErr)
			c.AbortWithStatusJSON(status, ErrorResponse{
				Code:    status,
				Message: apperrors.PublicMessage(appErr),
				TraceID: TraceID(c),
			})
		}()
		c.Next()
	}
}

func connectionLost(err error) bool {
	return errors.Is(err, syscall.EPIPE) || errors.Is(err, syscall.ECONNRESET)
}
