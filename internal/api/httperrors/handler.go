package httperrors

import (
	"errors"
	"net/http"

	"github.com/go-openapi/swag"
	"github.com/kashguard/go-mpc-roomsigner/internal/types"
	"github.com/kashguard/go-mpc-roomsigner/internal/util"
	"github.com/labstack/echo/v4"
)

// HTTPErrorHandler renders every handler error as a PublicHTTPError body.
func HTTPErrorHandler(hideInternalServerErrorDetails bool) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		log := util.LogFromContext(c.Request().Context())

		var httpErr *HTTPError
		var echoErr *echo.HTTPError
		switch {
		case errors.As(err, &httpErr):
		case errors.As(err, &echoErr):
			httpErr = NewFromEcho(echoErr.Code, echoErr.Message)
			httpErr.Internal = echoErr.Internal
		default:
			httpErr = NewHTTPError(http.StatusInternalServerError, types.PublicHTTPErrorTypeGeneric, http.StatusText(http.StatusInternalServerError))
			httpErr.Internal = err
		}

		code := int(swag.Int64Value(httpErr.Code))
		if code >= http.StatusInternalServerError {
			log.Error().Err(err).Int("status", code).Msg("Request failed")
			if hideInternalServerErrorDetails {
				httpErr.Detail = ""
			}
		} else {
			log.Debug().Err(err).Int("status", code).Msg("Request rejected")
		}

		var werr error
		if c.Request().Method == http.MethodHead {
			werr = c.NoContent(code)
		} else {
			werr = c.JSON(code, httpErr)
		}
		if werr != nil {
			log.Error().Err(werr).Msg("Failed to write error response")
		}
	}
}
