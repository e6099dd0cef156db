package mpc

import (
	"github.com/go-openapi/strfmt"
	"github.com/go-openapi/swag"
	"github.com/kashguard/go-mpc-roomsigner/internal/mpc/session"
	"github.com/kashguard/go-mpc-roomsigner/internal/types"
)

func convertSession(s *session.Session) *types.SessionResponse {
	created := strfmt.DateTime(s.CreatedAt)
	resp := &types.SessionResponse{
		SessionID:       swag.String(s.ID),
		Kind:            swag.String(string(s.Kind)),
		State:           swag.String(string(s.State)),
		KeyID:           s.KeyID,
		PartyIndex:      int64(s.PartyIndex),
		Threshold:       int64(s.Threshold),
		NumberOfParties: int64(s.NumberOfParties),
		Signers:         toInt64s(s.Signers),
		Digest:          s.Digest,
		PublicKey:       s.PublicKey,
		Address:         s.Address,
		Error:           s.Error,
		FailedStage:     s.FailedStage,
		FailedRoom:      s.FailedRoom,
		Culprits:        toInt64s(s.Culprits),
		CreatedAt:       &created,
		UpdatedAt:       strfmt.DateTime(s.UpdatedAt),
	}

	if s.CompletedAt != nil {
		completed := strfmt.DateTime(*s.CompletedAt)
		resp.CompletedAt = &completed
	}

	if s.SignatureR != "" && s.RecoveryID != nil {
		resp.Signature = &types.SessionSignature{
			R:          s.SignatureR,
			S:          s.SignatureS,
			RecoveryID: int64(*s.RecoveryID),
		}
	}

	return resp
}

func toInt64s(in []uint16) []int64 {
	if len(in) == 0 {
		return nil
	}
	out := make([]int64, len(in))
	for i, v := range in {
		out[i] = int64(v)
	}
	return out
}
