package middleware

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/jwalitptl/fulfillment-api/pkg/errors"
	"github.com/jwalitptl/fulfillment-api/pkg/httputil"
)

// DefaultMaxBodySize fits any command or create request. Files never pass through the API;
// they go straight to object storage through presigned URLs.
const DefaultMaxBodySize int64 = 1 << 20

// SizeLimit rejects declared bodies over maxBody and caps undeclared ones while they are read.
func SizeLimit(maxBody int64) gin.HandlerFunc {
	if maxBody <= 0 {
		maxBody = DefaultMaxBodySize
	}
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxBody {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, httputil.Response{
				Error: &httputil.Error{
					Code:    http.StatusRequestEntityTooLarge,
					Type:    apperrors.ErrBadRequest.String(),
					Message: fmt.Sprintf("request body exceeds %d bytes", maxBody),
				},
			})
			return
		}
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBody)
		}
		c.Next()
	}
}
