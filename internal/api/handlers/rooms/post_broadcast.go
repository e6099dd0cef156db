package rooms

import (
	"encoding/json"
	"net/http"

	"github.com/go-openapi/swag"
	"github.com/kashguard/go-mpc-roomsigner/internal/api"
	"github.com/kashguard/go-mpc-roomsigner/internal/metrics"
	"github.com/kashguard/go-mpc-roomsigner/internal/mpc/relay"
	"github.com/kashguard/go-mpc-roomsigner/internal/types"
	"github.com/kashguard/go-mpc-roomsigner/internal/util"
	"github.com/labstack/echo/v4"
)

func PostBroadcastRoute(s *api.Server) *echo.Route {
	return s.Router.Rooms.POST("/:room/broadcast", postBroadcastHandler(s))
}

// postBroadcastHandler appends the envelope to the room. The relay does not check
// that sender owns an index, parties authenticate each other through the protocol.
func postBroadcastHandler(s *api.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		log := util.LogFromContext(ctx)

		room, err := roomParam(c)
		if err != nil {
			return err
		}

		var body types.PostBroadcastPayload
		if err := util.BindAndValidateBody(c, &body); err != nil {
			return err
		}

		msg := &relay.Message{
			Sender: uint16(swag.Int64Value(body.Sender)),
			Body:   body.Body,
		}
		if body.Receiver != nil {
			receiver := uint16(*body.Receiver)
			msg.Receiver = &receiver
		}

		payload, err := json.Marshal(msg)
		if err != nil {
			return err
		}

		seq, err := s.Rooms.Append(ctx, room, string(payload))
		if err != nil {
			return err
		}
		metrics.RelayMessages.Inc()

		log.Debug().Str("room", room).Uint64("seq", seq).Uint16("sender", msg.Sender).Msg("Message appended")

		return c.NoContent(http.StatusOK)
	}
}
