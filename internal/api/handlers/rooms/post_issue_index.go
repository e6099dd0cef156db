package rooms

import (
	"errors"
	"net/http"

	"github.com/go-openapi/swag"
	"github.com/kashguard/go-mpc-roomsigner/internal/api"
	"github.com/kashguard/go-mpc-roomsigner/internal/api/httperrors"
	"github.com/kashguard/go-mpc-roomsigner/internal/mpc/storage"
	"github.com/kashguard/go-mpc-roomsigner/internal/types"
	"github.com/kashguard/go-mpc-roomsigner/internal/util"
	"github.com/labstack/echo/v4"
)

func PostIssueIndexRoute(s *api.Server) *echo.Route {
	return s.Router.Rooms.POST("/:room/issue_unique_idx", postIssueIndexHandler(s))
}

// An empty body or party_index 0 takes the lowest free index.
func postIssueIndexHandler(s *api.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		log := util.LogFromContext(ctx)

		room, err := roomParam(c)
		if err != nil {
			return err
		}

		var body types.PostIssueIndexPayload
		if err := util.BindAndValidateBody(c, &body); err != nil {
			return err
		}

		idx, err := s.Rooms.IssueIndex(ctx, room, uint16(body.PartyIndex))
		if err != nil {
			if errors.Is(err, storage.ErrIndexTaken) || errors.Is(err, storage.ErrRoomFull) {
				out := httperrors.NewHTTPErrorWithDetail(http.StatusConflict, types.PublicHTTPErrorTypeIndexTaken,
					*ErrIndexTaken.Title, err.Error())
				out.Internal = err
				return out
			}
			return err
		}

		log.Debug().Str("room", room).Uint16("unique_idx", idx).Msg("Issued party index")

		return util.ValidateAndReturn(c, http.StatusOK, &types.IssueIndexResponse{
			UniqueIdx: swag.Int64(int64(idx)),
		})
	}
}
