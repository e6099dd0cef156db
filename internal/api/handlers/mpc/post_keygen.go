package mpc

import (
	"context"
	"net/http"

	"github.com/go-openapi/swag"
	"github.com/kashguard/go-mpc-roomsigner/internal/api"
	"github.com/kashguard/go-mpc-roomsigner/internal/mpc/session"
	"github.com/kashguard/go-mpc-roomsigner/internal/types"
	"github.com/kashguard/go-mpc-roomsigner/internal/util"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

func PostKeygenRoute(s *api.Server) *echo.Route {
	return s.Router.Root.POST("/keygen/:room_id", postKeygenHandler(s))
}

// postKeygenHandler records the session and answers 202 right away, the stages run in the background.
func postKeygenHandler(s *api.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()

		var body types.PostKeygenPayload
		if err := util.BindAndValidateBody(c, &body); err != nil {
			return err
		}

		sess, err := s.Orchestrator.PrepareKeygen(ctx, session.KeygenParams{
			SessionID:       c.Param("room_id"),
			KeyID:           body.KeyID,
			PartyIndex:      uint16(body.PartyIndex),
			Threshold:       int(swag.Int64Value(body.Threshold)),
			NumberOfParties: int(swag.Int64Value(body.NumberOfParties)),
		})
		if err != nil {
			return sessionError(err)
		}

		resp := convertSession(sess)

		s.Go(func(ctx context.Context) {
			ctx, cancel := context.WithTimeout(ctx, s.Config.MPC.SessionTimeout)
			defer cancel()

			share, err := s.Orchestrator.RunKeygen(ctx, sess)
			if err != nil {
				log.Warn().Err(err).Str("session", sess.ID).Msg("Keygen session failed")
				return
			}
			log.Info().
				Str("session", sess.ID).
				Str("key_id", share.KeyID).
				Uint16("party_index", share.PartyIndex()).
				Msg("Keygen session done")
		})

		return util.ValidateAndReturn(c, http.StatusAccepted, resp)
	}
}
