package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/medassist/booking-api/pkg/errors"
)

// ErrorLogger logs the errors handlers attached with c.Error. Expected
// client errors are logged at debug level, everything else at error level
// with the full cause that the response hides.
func ErrorLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		for _, e := range c.Errors {
			event := log.Error()
			if appErr, ok := errors.As(e.Err); ok && appErr.HTTPStatus() < 500 {
				event = log.Debug()
			}
			event.
				Err(e.Err).
				Str("request_id", c.GetString(ContextRequestID)).
				Str("path", c.Request.URL.Path).
				Str("method", c.Request.Method).
				Msg("Request error")
		}
	}
}
