package mpc

import (
	"errors"
	"net/http"

	"github.com/kashguard/go-mpc-roomsigner/internal/api/httperrors"
	"github.com/kashguard/go-mpc-roomsigner/internal/mpc/session"
	"github.com/kashguard/go-mpc-roomsigner/internal/mpc/storage"
	"github.com/kashguard/go-mpc-roomsigner/internal/types"
)

var (
	ErrInvalidParameters = httperrors.NewHTTPError(http.StatusBadRequest, types.PublicHTTPErrorTypeInvalidParameter, "Invalid session parameters")
	ErrSessionExists     = httperrors.NewHTTPError(http.StatusConflict, types.PublicHTTPErrorTypeSessionExists, "Session already exists")
	ErrSessionNotFound   = httperrors.NewHTTPError(http.StatusNotFound, types.PublicHTTPErrorTypeSessionNotFound, "Session not found")
)

// sessionError maps orchestrator errors to their public HTTP error.
func sessionError(err error) error {
	var public *httperrors.HTTPError
	switch {
	case errors.Is(err, session.ErrInvalidParameters):
		public = ErrInvalidParameters
	case errors.Is(err, session.ErrSessionExists):
		public = ErrSessionExists
	case errors.Is(err, storage.ErrSessionNotFound):
		public = ErrSessionNotFound
	default:
		return err
	}

	out := httperrors.NewHTTPErrorWithDetail(
		int(*public.Code), types.PublicHTTPErrorType(*public.Type), *public.Title, err.Error())
	out.Internal = err
	return out
}
