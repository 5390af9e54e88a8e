package observability

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// RequestIDHeader carries the correlation id between an admin caller and the
// controller log lines for its request.
const RequestIDHeader = "X-Request-ID"

const requestIDKey = "request_id"

// RequestID reuses a caller supplied id or mints one, and echoes it back.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

// RequestIDFrom returns the id stored by RequestID, or "".
func RequestIDFrom(c *gin.Context) string {
	return c.GetString(requestIDKey)
}

// RequestLogger logs one line per admin request. Health and metrics scrapes
// drop to debug so polling does not drown agent lifecycle lines.
func RequestLogger(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		route := routeLabel(c)

		var event *zerolog.Event
		switch {
		case status >= 500:
			event = logger.Error()
		case status >= 400:
			event = logger.Warn()
		case route == "/health" || route == "/metrics":
			event = logger.Debug()
		default:
			event = logger.Info()
		}
		if len(c.Errors) > 0 {
			event = event.Str("errors", c.Errors.String())
		}

		event.
			Str("request_id", RequestIDFrom(c)).
			Str("method", c.Request.Method).
			Str("route", route).
			Int("status", status).
			Dur("duration", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Msg("admin request")
	}
}

// RequestMetrics records admin traffic by route template.
func RequestMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		RecordHTTPRequest(c.Request.Method, routeLabel(c), c.Writer.Status(), time.Since(start))
	}
}

// routeLabel keeps metric cardinality bounded: unmatched paths collapse into
// a single label instead of echoing arbitrary URLs.
func routeLabel(c *gin.Context) string {
	if route := c.FullPath(); route != "" {
		return route
	}
	return "unmatched"
}
