package rooms

import (
	"net/http"

	"github.com/kashguard/go-mpc-roomsigner/internal/api/httperrors"
	"github.com/kashguard/go-mpc-roomsigner/internal/mpc/relay"
	"github.com/kashguard/go-mpc-roomsigner/internal/types"
	"github.com/labstack/echo/v4"
)

var ErrIndexTaken = httperrors.NewHTTPError(http.StatusConflict, types.PublicHTTPErrorTypeIndexTaken, "Party index not available")

func roomParam(c echo.Context) (string, error) {
	room := c.Param("room")
	if !relay.ValidRoomName(room) {
		return "", httperrors.NewHTTPErrorWithDetail(http.StatusBadRequest, types.PublicHTTPErrorTypeInvalidParameter,
			"Invalid room name", "room names are 1 to 128 characters of [A-Za-z0-9._-]")
	}
	return room, nil
}
