package mpc

import (
	"context"
	"net/http"

	"github.com/kashguard/go-mpc-roomsigner/internal/api"
	"github.com/kashguard/go-mpc-roomsigner/internal/mpc/session"
	"github.com/kashguard/go-mpc-roomsigner/internal/types"
	"github.com/kashguard/go-mpc-roomsigner/internal/util"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

func PostSignRoute(s *api.Server) *echo.Route {
	return s.Router.Root.POST("/sign/:room_id", postSignHandler(s))
}

// postSignHandler joins the signing session of room_id. Parties and key id fall back
// to MPC_SIGNING_PARTIES and MPC_DEFAULT_KEY_ID.
func postSignHandler(s *api.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()

		var body types.PostSignPayload
		if err := util.BindAndValidateBody(c, &body); err != nil {
			return err
		}

		digest, err := body.Digest()
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error()).SetInternal(err)
		}

		signers := s.Config.MPC.SigningParties
		if len(body.Parties) > 0 {
			signers = make([]uint16, len(body.Parties))
			for i, p := range body.Parties {
				signers[i] = uint16(p)
			}
		}

		keyID := body.KeyID
		if keyID == "" {
			keyID = s.Config.MPC.DefaultKeyID
		}

		sess, err := s.Orchestrator.PrepareSign(ctx, session.SignParams{
			SessionID: c.Param("room_id"),
			KeyID:     keyID,
			Signers:   signers,
			Digest:    digest,
		})
		if err != nil {
			return sessionError(err)
		}

		resp := convertSession(sess)

		s.Go(func(ctx context.Context) {
			ctx, cancel := context.WithTimeout(ctx, s.Config.MPC.SessionTimeout)
			defer cancel()

			sig, err := s.Orchestrator.RunSign(ctx, sess)
			if err != nil {
				log.Warn().Err(err).Str("session", sess.ID).Msg("Sign session failed")
				return
			}
			log.Info().
				Str("session", sess.ID).
				Str("r", sig.R.Text(16)).
				Str("s", sig.S.Text(16)).
				Uint8("recovery_id", sig.RecoveryID).
				Msg("Sign session done")
		})

		return util.ValidateAndReturn(c, http.StatusAccepted, resp)
	}
}
