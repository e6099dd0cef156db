package util

import (
	"net/http"

	"github.com/go-openapi/strfmt"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// Validatable is implemented by request and response payloads.
type Validatable interface {
	Validate(formats strfmt.Registry) error
}

// BindAndValidateBody binds the JSON request body into v and validates it.
func BindAndValidateBody(c echo.Context, v Validatable) error {
	binder := &echo.DefaultBinder{}
	if err := binder.BindBody(c, v); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body").SetInternal(err)
	}

	if err := v.Validate(strfmt.Default); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error()).SetInternal(err)
	}

	return nil
}

// ValidateAndReturn validates a response payload before writing it.
func ValidateAndReturn(c echo.Context, code int, v Validatable) error {
	if err := v.Validate(strfmt.Default); err != nil {
		LogFromContext(c.Request().Context()).Error().Err(err).Msg("Response payload failed validation")
		return echo.NewHTTPError(http.StatusInternalServerError).SetInternal(err)
	}

	return c.JSON(code, v)
}

// LogLevelFromString parses a zerolog level, defaulting to debug.
func LogLevelFromString(s string) zerolog.Level {
	l, err := zerolog.ParseLevel(s)
	if err != nil {
		return zerolog.DebugLevel
	}

	return l
}
