package common

import (
	"github.com/kashguard/go-mpc-roomsigner/internal/api"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func GetMetricsRoute(s *api.Server) *echo.Route {
	return s.Router.Root.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}
