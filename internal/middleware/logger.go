package middleware

import (
	"bytes"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// maxLoggedBody keeps recorded audio announcements out of the log.
const maxLoggedBody = 2 << 10

// Logger logs every request once it has been handled. Bodies of non-GET
// requests are logged unless the path ends with one of redactSuffixes.
func Logger(logger zerolog.Logger, redactSuffixes ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery
		method := c.Request.Method

		var requestBody []byte
		if method != http.MethodGet && c.Request.Body != nil &&
			c.Request.ContentLength > 0 && c.Request.ContentLength <= maxLoggedBody &&
			!redacted(path, redactSuffixes) {
			requestBody, _ = io.ReadAll(c.Request.Body)
			c.Request.Body = io.NopCloser(bytes.NewReader(requestBody))
		}

		c.Next()

		latency := time.Since(start)
		statusCode := c.Writer.Status()
		if raw != "" {
			path = path + "?" + raw
		}

		var event *zerolog.Event
		msg := "request processed"
		switch {
		case statusCode >= http.StatusInternalServerError:
			event, msg = logger.Error(), "server error"
		case statusCode >= http.StatusBadRequest:
			event, msg = logger.Warn(), "client error"
		default:
			event = logger.Info()
		}

		event = event.
			Str("request_id", c.GetString(ContextRequestID)).
			Str("client_ip", c.ClientIP()).
			Str("method", method).
			Str("path", path).
			Int("status", statusCode).
			Dur("latency", latency).
			Str("user_agent", c.Request.UserAgent())
		if len(requestBody) > 0 {
			event = event.Str("request", string(requestBody))
		}
		event.Msg(msg)
	}
}

func redacted(path string, suffixes []string) bool {
	for _, s := range suffixes {
		if strings.HasSuffix(path, s) {
			return true
		}
	}
	return false
}
