package common

import (
	"context"
	"net/http"
	"time"

	"github.com/kashguard/go-mpc-roomsigner/internal/api"
	"github.com/kashguard/go-mpc-roomsigner/internal/util"
	"github.com/labstack/echo/v4"
)

const healthyTimeout = 2 * time.Second

func GetHealthyRoute(s *api.Server) *echo.Route {
	return s.Router.Management.GET("/healthy", getHealthyHandler(s))
}

// Reports 503 while redis, when used, is unreachable.
func getHealthyHandler(s *api.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		if !s.Ready() {
			return c.String(http.StatusServiceUnavailable, "Not ready.")
		}

		if s.Redis != nil {
			ctx, cancel := context.WithTimeout(c.Request().Context(), healthyTimeout)
			defer cancel()
			if err := s.Redis.Ping(ctx).Err(); err != nil {
				util.LogFromContext(ctx).Warn().Err(err).Msg("Health check failed: redis unreachable")
				return c.String(http.StatusServiceUnavailable, "Redis unreachable.")
			}
		}

		return c.String(http.StatusOK, "Ready.")
	}
}
