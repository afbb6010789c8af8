package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	apperrors "github.com/jwalitptl/clinic-queue/pkg/errors"
	"github.com/jwalitptl/clinic-queue/pkg/httputil"
)

// ErrorHandler logs errors handlers attached with c.Error. When the handler
// did not write a response, the last error is rendered as one.
func ErrorHandler(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		requestID := c.GetString(ContextRequestID)
		for _, e := range c.Errors {
			logger.Error().
				Err(e.Err).
				Str("request_id", requestID).
				Str("path", c.Request.URL.Path).
				Str("method", c.Request.Method).
				Str("client_ip", c.ClientIP()).
				Msg("request error")
		}

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last().Err
		if appErr, ok := apperrors.As(lastErr); ok && appErr.Code != apperrors.ErrInternal {
			c.JSON(appErr.StatusCode(), httputil.NewErrorResponse(appErr.Message))
			return
		}
		c.JSON(http.StatusInternalServerError, httputil.NewErrorResponse("internal server error"))
	}
}
