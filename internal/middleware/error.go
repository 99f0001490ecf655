package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	apperrors "github.com/jwalitptl/fulfillment-api/pkg/errors"
)

// ErrorLogger logs the errors handlers attached to the context. Business rejections are
// logged at debug, everything unexpected at error.
func ErrorLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		for _, e := range c.Errors {
			code := apperrors.CodeOf(e.Err)
			event := log.Debug()
			if code == apperrors.ErrInternal {
				event = log.Error()
			}
			event.
				Err(e.Err).
				Str("code", code.String()).
				Str("request_id", c.GetString(ContextRequestID)).
				Str("path", c.Request.URL.Path).
				Str("method", c.Request.Method).
				Msg("Request error")
		}
	}
}
