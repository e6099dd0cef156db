package httperrors

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-openapi/swag"
	"github.com/kashguard/go-mpc-roomsigner/internal/types"
)

type HTTPError struct {
	types.PublicHTTPError
	Internal error `json:"-"`
}

func NewHTTPError(code int, errorType types.PublicHTTPErrorType, title string) *HTTPError {
	return &HTTPError{
		PublicHTTPError: types.PublicHTTPError{
			Code:  swag.Int64(int64(code)),
			Type:  swag.String(string(errorType)),
			Title: swag.String(title),
		},
	}
}

func NewHTTPErrorWithDetail(code int, errorType types.PublicHTTPErrorType, title string, detail string) *HTTPError {
	e := NewHTTPError(code, errorType, title)
	e.Detail = detail
	return e
}

// NewFromEcho converts errors raised by echo itself and by util.BindAndValidateBody.
func NewFromEcho(code int, message interface{}) *HTTPError {
	title := http.StatusText(code)
	detail := ""
	if message != nil {
		detail = fmt.Sprintf("%v", message)
	}
	return NewHTTPErrorWithDetail(code, types.PublicHTTPErrorTypeGeneric, title, detail)
}

func (e *HTTPError) Error() string {
	var b strings.Builder

	fmt.Fprintf(&b, "HTTPError %d (%s): %s", swag.Int64Value(e.Code), swag.StringValue(e.Type), swag.StringValue(e.Title))

	if len(e.Detail) > 0 {
		fmt.Fprintf(&b, " - %s", e.Detail)
	}
	if e.Internal != nil {
		fmt.Fprintf(&b, ", %v", e.Internal)
	}

	return b.String()
}

func (e *HTTPError) Unwrap() error {
	return e.Internal
}
