package rooms

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/kashguard/go-mpc-roomsigner/internal/api"
	"github.com/kashguard/go-mpc-roomsigner/internal/api/httperrors"
	"github.com/kashguard/go-mpc-roomsigner/internal/metrics"
	"github.com/kashguard/go-mpc-roomsigner/internal/mpc/relay"
	"github.com/kashguard/go-mpc-roomsigner/internal/types"
	"github.com/kashguard/go-mpc-roomsigner/internal/util"
	"github.com/labstack/echo/v4"
)

const defaultHeartbeatInterval = 15 * time.Second

func GetSubscribeRoute(s *api.Server) *echo.Route {
	return s.Router.Rooms.GET("/:room/subscribe", getSubscribeHandler(s))
}

// getSubscribeHandler streams the room as server-sent events, starting after Last-Event-ID
// when present and from the first message otherwise.
func getSubscribeHandler(s *api.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()

		room, err := roomParam(c)
		if err != nil {
			return err
		}

		var from uint64
		if h := c.Request().Header.Get("Last-Event-ID"); h != "" {
			last, err := strconv.ParseUint(h, 10, 64)
			if err != nil {
				return httperrors.NewHTTPErrorWithDetail(http.StatusBadRequest, types.PublicHTTPErrorTypeInvalidParameter,
					"Invalid Last-Event-ID", err.Error())
			}
			from = last + 1
		}

		log := util.LogFromContext(ctx).With().
			Str("room", room).
			Str("subscriber", uuid.NewString()).
			Uint64("from", from).
			Logger()

		interval := s.Config.Relay.HeartbeatInterval
		if interval <= 0 {
			interval = defaultHeartbeatInterval
		}

		resp := c.Response()
		resp.Header().Set(echo.HeaderContentType, "text/event-stream")
		resp.Header().Set("Cache-Control", "no-cache")
		resp.Header().Set("Connection", "keep-alive")
		resp.Header().Set("X-Accel-Buffering", "no")
		resp.WriteHeader(http.StatusOK)
		resp.Flush()

		metrics.RelaySubscribers.Inc()
		defer metrics.RelaySubscribers.Dec()
		log.Debug().Msg("Subscriber connected")

		heartbeat := time.NewTicker(interval)
		defer heartbeat.Stop()

		for {
			events, changed, err := s.Rooms.Since(ctx, room, from)
			if err != nil {
				if ctx.Err() == nil {
					log.Error().Err(err).Msg("Failed to read room, closing subscription")
				}
				return nil
			}

			for _, ev := range events {
				if _, err := fmt.Fprintf(resp, "id: %d\nevent: %s\ndata: %s\n\n", ev.Seq, relay.EventNewMessage, ev.Payload); err != nil {
					log.Debug().Err(err).Msg("Subscriber gone")
					return nil
				}
				from = ev.Seq + 1
			}
			if len(events) > 0 {
				resp.Flush()
			}

			select {
			case <-ctx.Done():
				log.Debug().Uint64("next", from).Msg("Subscriber disconnected")
				return nil
			case <-changed:
			case <-heartbeat.C:
				if _, err := fmt.Fprint(resp, ": heartbeat\n\n"); err != nil {
					return nil
				}
				resp.Flush()
			}
		}
	}
}
