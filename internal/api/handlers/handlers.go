package handlers

import (
	"github.com/kashguard/go-mpc-roomsigner/internal/api"
	"github.com/kashguard/go-mpc-roomsigner/internal/api/handlers/common"
	"github.com/kashguard/go-mpc-roomsigner/internal/api/handlers/mpc"
	"github.com/kashguard/go-mpc-roomsigner/internal/api/handlers/rooms"
	"github.com/labstack/echo/v4"
)

// AttachAllRoutes registers the management routes plus the party and relay routes
// of whichever roles the server was initialized with.
func AttachAllRoutes(s *api.Server) {
	routes := []*echo.Route{
		common.GetHealthyRoute(s),
		common.GetMetricsRoute(s),
	}

	if s.Orchestrator != nil {
		routes = append(routes,
			mpc.PostKeygenRoute(s),
			mpc.PostSignRoute(s),
			mpc.GetSessionRoute(s),
		)
	}

	if s.Rooms != nil {
		routes = append(routes,
			rooms.PostIssueIndexRoute(s),
			rooms.PostBroadcastRoute(s),
			rooms.GetSubscribeRoute(s),
		)
	}

	s.Router.Routes = append(s.Router.Routes, routes...)
}
