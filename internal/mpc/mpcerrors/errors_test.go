package mpcerrors_test

import (
	"testing"

	"github.com/kashguard/go-mpc-roomsigner/internal/mpc/mpcerrors"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorMessage(t *testing.T) {
	err := mpcerrors.NewProtocolError("s1-offline", []uint16{2}, "malformed round message", errors.New("cbor: unexpected EOF"))
	assert.Equal(t, "[PROTOCOL] malformed round message (culprits: [2]) [room: s1-offline]: cbor: unexpected EOF", err.Error())

	err = mpcerrors.NewAggregationError(nil, "expected 1 peer partial signatures, got 0")
	assert.Equal(t, "[AGGREGATION] expected 1 peer partial signatures, got 0", err.Error())
}

func TestIsThroughWrapping(t *testing.T) {
	base := mpcerrors.NewJoinError("s1-keygen", "coordinator unreachable", errors.New("connection refused"))
	wrapped := errors.Wrap(&mpcerrors.StageError{Stage: "keygen", Room: "s1-keygen", Err: base}, "session failed")

	assert.True(t, mpcerrors.Is(wrapped, mpcerrors.KindJoin))
	assert.False(t, mpcerrors.Is(wrapped, mpcerrors.KindProtocol))
	assert.False(t, mpcerrors.Is(errors.New("plain"), mpcerrors.KindJoin))

	var stageErr *mpcerrors.StageError
	require.ErrorAs(t, wrapped, &stageErr)
	assert.Equal(t, "keygen", stageErr.Stage)
	assert.Equal(t, "s1-keygen", stageErr.Room)
}

func TestCulprits(t *testing.T) {
	err := errors.Wrap(mpcerrors.NewProtocolError("r", []uint16{3, 1}, "duplicate partial signature", nil), "online")
	assert.Equal(t, []uint16{3, 1}, mpcerrors.Culprits(err))
	assert.Nil(t, mpcerrors.Culprits(errors.New("x")))
}
