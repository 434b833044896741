package middleware

import (
	"github.com/gin-gonic/gin"

	apperrors "github.com/jwalitptl/vaccination-api/pkg/errors"
)

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	TraceID string `json:"trace_id,omitempty"`
}

// ErrorHandler renders errors attached with c.Error when the handler wrote
// no response of its own.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		lg := requestLogger(c)
		for _, e := range c.Errors {
			lg.Error().
				Err(e.Err).
				Str("path", c.Request.URL.Path).
				Str("method", c.Request.Method).
				Str("client_ip", c.ClientIP()).
				Msg("Request error")
		}

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last().Err
		status := apperrors.HTTPStatus(lastErr)
		c.JSON(status, ErrorResponse{
			Code:    status,
			Message: apperrors.PublicMessage(lastErr),
			TraceID: TraceID(c),
		})
	}
}
