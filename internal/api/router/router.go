package router

import (
	"github.com/kashguard/go-mpc-roomsigner/internal/api"
	"github.com/kashguard/go-mpc-roomsigner/internal/api/handlers"
	"github.com/kashguard/go-mpc-roomsigner/internal/api/httperrors"
	"github.com/kashguard/go-mpc-roomsigner/internal/api/middleware"
	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"
)

func Init(s *api.Server) {
	s.Echo = echo.New()

	s.Echo.Debug = s.Config.Echo.Debug
	s.Echo.HideBanner = true

	s.Echo.HTTPErrorHandler = httperrors.HTTPErrorHandler(s.Config.Echo.HideInternalServerErrorDetails)

	s.Echo.Pre(echoMiddleware.RemoveTrailingSlash())

	s.Echo.Use(echoMiddleware.Recover())
	s.Echo.Use(echoMiddleware.RequestID())
	s.Echo.Use(middleware.Logger())

	s.Router = &api.Router{
		Routes:     nil,
		Root:       s.Echo.Group(""),
		Management: s.Echo.Group("/-"),
		Rooms:      s.Echo.Group("/rooms"),
	}

	handlers.AttachAllRoutes(s)
}
