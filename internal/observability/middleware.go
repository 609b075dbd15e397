package observability

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// probePaths are polled by orchestrators and scrapers; successful hits
// are logged at debug so they do not drown the admin access log.
var probePaths = map[string]bool{
	"/health":  true,
	"/ready":   true,
	"/metrics": true,
}

// AdminAccess logs and counts every admin request. Tenant, agent and
// module route parameters are attached to the log line when present.
func AdminAccess(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		elapsed := time.Since(start)

		status := c.Writer.Status()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		RecordHTTPRequest(c.Request.Method, route, status, elapsed)

		var event *zerolog.Event
		switch {
		case status >= 500:
			event = logger.Error()
		case status >= 400:
			event = logger.Warn()
		case probePaths[route]:
			event = logger.Debug()
		default:
			event = logger.Info()
		}
		for _, key := range []string{"tenant", "addr", "rnti", "type", "id"} {
			if v := c.Param(key); v != "" {
				event = event.Str(key, v)
			}
		}
		if len(c.Errors) > 0 {
			event = event.Str("errors", c.Errors.String())
		}
		event.
			Str("method", c.Request.Method).
			Str("route", route).
			Int("status", status).
			Dur("duration", elapsed).
			Str("client_ip", c.ClientIP()).
			Msg("observability.AdminAccess request")
	}
}
