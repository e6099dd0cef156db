package types

import (
	"encoding/hex"
	"strings"

	"github.com/go-openapi/strfmt"
	"github.com/go-openapi/swag"
	"github.com/pkg/errors"
)

// PostKeygenPayload is the body of POST /keygen/{room_id}.
type PostKeygenPayload struct {
	// 0 or absent lets the relay assign an index
	PartyIndex int64 `json:"party_index,omitempty"`

	// Required: true
	Threshold *int64 `json:"threshold"`

	// Required: true
	NumberOfParties *int64 `json:"number_of_parties"`

	KeyID string `json:"key_id,omitempty"`
}

func (m *PostKeygenPayload) Validate(formats strfmt.Registry) error {
	if m.Threshold == nil {
		return errors.New("threshold is required")
	}
	if m.NumberOfParties == nil {
		return errors.New("number_of_parties is required")
	}
	if *m.NumberOfParties < 2 || *m.NumberOfParties > 65535 {
		return errors.Errorf("number_of_parties must be in [2, 65535], got %d", *m.NumberOfParties)
	}
	if *m.Threshold < 0 || *m.Threshold > *m.NumberOfParties-1 {
		return errors.Errorf("threshold must be in [0, %d], got %d", *m.NumberOfParties-1, *m.Threshold)
	}
	if m.PartyIndex < 0 || m.PartyIndex > *m.NumberOfParties {
		return errors.Errorf("party_index must be in [0, %d], got %d", *m.NumberOfParties, m.PartyIndex)
	}
	return nil
}

// PostSignPayload is the body of POST /sign/{room_id}.
type PostSignPayload struct {
	// 32 byte digest, hex encoded with optional 0x prefix
	// Required: true
	DataToSign *string `json:"data_to_sign"`

	Parties []int64 `json:"parties,omitempty"`

	KeyID string `json:"key_id,omitempty"`
}

func (m *PostSignPayload) Validate(formats strfmt.Registry) error {
	if m.DataToSign == nil {
		return errors.New("data_to_sign is required")
	}
	if _, err := m.Digest(); err != nil {
		return err
	}
	for _, p := range m.Parties {
		if p < 1 || p > 65535 {
			return errors.Errorf("party %d out of range", p)
		}
	}
	return nil
}

// Digest decodes DataToSign.
func (m *PostSignPayload) Digest() ([]byte, error) {
	raw := strings.TrimPrefix(swag.StringValue(m.DataToSign), "0x")
	digest, err := hex.DecodeString(raw)
	if err != nil {
		return nil, errors.Wrap(err, "data_to_sign must be hex")
	}
	if len(digest) != 32 {
		return nil, errors.Errorf("data_to_sign must be 32 bytes, got %d", len(digest))
	}
	return digest, nil
}

// SessionResponse describes a keygen or sign session.
type SessionResponse struct {
	// Required: true
	SessionID *string `json:"session_id"`

	// Required: true
	Kind *string `json:"kind"`

	// Required: true
	State *string `json:"state"`

	KeyID           string  `json:"key_id,omitempty"`
	PartyIndex      int64   `json:"party_index"`
	Threshold       int64   `json:"threshold"`
	NumberOfParties int64   `json:"number_of_parties"`
	Signers         []int64 `json:"signers,omitempty"`
	Digest          string  `json:"digest,omitempty"`
	PublicKey       string  `json:"public_key,omitempty"`
	Address         string  `json:"address,omitempty"`

	Signature *SessionSignature `json:"signature,omitempty"`

	Error       string  `json:"error,omitempty"`
	FailedStage string  `json:"failed_stage,omitempty"`
	FailedRoom  string  `json:"failed_room,omitempty"`
	Culprits    []int64 `json:"culprits,omitempty"`

	// Required: true
	CreatedAt *strfmt.DateTime `json:"created_at"`

	UpdatedAt   strfmt.DateTime  `json:"updated_at,omitempty"`
	CompletedAt *strfmt.DateTime `json:"completed_at,omitempty"`
}

type SessionSignature struct {
	R          string `json:"r"`
	S          string `json:"s"`
	RecoveryID int64  `json:"recovery_id"`
}

func (m *SessionResponse) Validate(formats strfmt.Registry) error {
	if swag.StringValue(m.SessionID) == "" {
		return errors.New("session_id is required")
	}
	if swag.StringValue(m.Kind) == "" {
		return errors.New("kind is required")
	}
	if swag.StringValue(m.State) == "" {
		return errors.New("state is required")
	}
	if m.CreatedAt == nil {
		return errors.New("created_at is required")
	}
	return nil
}
