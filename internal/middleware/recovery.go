package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/medassist/booking-api/pkg/httputil"
)

// Recovery turns a panic into the standard 500 envelope. The panic value and
// stack only go to the log.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}

			event := log.Error().
				Interface("panic", rec).
				Bytes("stack", debug.Stack()).
				Str("route", c.FullPath()).
				Str("method", c.Request.Method).
				Str("request_id", c.GetString(ContextRequestID))
			if principal, ok := GetPrincipal(c); ok {
				event = event.Str("user_id", principal.ID.String()).Str("role", string(principal.Role))
			}
			event.Msg("recovered from panic")

			if c.Writer.Written() {
				c.Abort()
				return
			}
			httputil.RespondWithStatus(c, http.StatusInternalServerError, "internal server error")
		}()
		c.Next()
	}
}
