package types

import (
	"github.com/go-openapi/strfmt"
	"github.com/go-openapi/swag"
	"github.com/pkg/errors"
)

type PublicHTTPErrorType string

const (
	PublicHTTPErrorTypeGeneric          PublicHTTPErrorType = "generic"
	PublicHTTPErrorTypeInvalidParameter PublicHTTPErrorType = "INVALID_PARAMETER"
	PublicHTTPErrorTypeSessionExists    PublicHTTPErrorType = "SESSION_EXISTS"
	PublicHTTPErrorTypeSessionNotFound  PublicHTTPErrorType = "SESSION_NOT_FOUND"
	PublicHTTPErrorTypeIndexTaken       PublicHTTPErrorType = "PARTY_INDEX_TAKEN"
)

// PublicHTTPError is the body of every error response.
type PublicHTTPError struct {
	// HTTP status code returned for the error
	Code *int64 `json:"status"`

	// More detailed, human-readable, optional explanation of the error
	Detail string `json:"detail,omitempty"`

	// Short, human-readable description of the error
	Title *string `json:"title"`

	// Type of error returned, should be used for client-side error handling
	Type *string `json:"type"`
}

func (m *PublicHTTPError) Validate(formats strfmt.Registry) error {
	if m.Code == nil {
		return errors.New("status is required")
	}
	if swag.StringValue(m.Title) == "" {
		return errors.New("title is required")
	}
	if m.Type == nil {
		return errors.New("type is required")
	}
	return nil
}
