package middleware

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

// Logger attaches a request scoped zerolog logger to the request context and logs
// every finished request. Long lived relay subscriptions are logged once they end.
func Logger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			start := time.Now()

			id := req.Header.Get(echo.HeaderXRequestID)
			if id == "" {
				id = c.Response().Header().Get(echo.HeaderXRequestID)
			}

			l := log.With().
				Str("id", id).
				Str("method", req.Method).
				Str("path", c.Path()).
				Logger()
			c.SetRequest(req.WithContext(l.WithContext(req.Context())))

			if err := next(c); err != nil {
				c.Error(err)
			}

			l.Debug().
				Int("status", c.Response().Status).
				Int64("bytes_out", c.Response().Size).
				Dur("duration", time.Since(start)).
				Msg("Request handled")

			return nil
		}
	}
}
