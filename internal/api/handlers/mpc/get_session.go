package mpc

import (
	"net/http"

	"github.com/kashguard/go-mpc-roomsigner/internal/api"
	"github.com/kashguard/go-mpc-roomsigner/internal/util"
	"github.com/labstack/echo/v4"
)

func GetSessionRoute(s *api.Server) *echo.Route {
	return s.Router.Root.GET("/sessions/:room_id", getSessionHandler(s))
}

func getSessionHandler(s *api.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		sess, err := s.Orchestrator.Manager().GetSession(c.Request().Context(), c.Param("room_id"))
		if err != nil {
			return sessionError(err)
		}

		return util.ValidateAndReturn(c, http.StatusOK, convertSession(sess))
	}
}
