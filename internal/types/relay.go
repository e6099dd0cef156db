package types

import (
	"github.com/go-openapi/strfmt"
	"github.com/pkg/errors"
)

// PostIssueIndexPayload is the optional body of POST /rooms/{room}/issue_unique_idx.
type PostIssueIndexPayload struct {
	PartyIndex int64 `json:"party_index,omitempty"`
}

func (m *PostIssueIndexPayload) Validate(formats strfmt.Registry) error {
	if m.PartyIndex < 0 || m.PartyIndex > 65535 {
		return errors.Errorf("party_index out of range: %d", m.PartyIndex)
	}
	return nil
}

type IssueIndexResponse struct {
	// Required: true
	UniqueIdx *int64 `json:"unique_idx"`
}

func (m *IssueIndexResponse) Validate(formats strfmt.Registry) error {
	if m.UniqueIdx == nil || *m.UniqueIdx < 1 {
		return errors.New("unique_idx must be positive")
	}
	return nil
}

// PostBroadcastPayload is a relay message envelope.
type PostBroadcastPayload struct {
	// Required: true
	Sender *int64 `json:"sender"`

	Receiver *int64 `json:"receiver"`

	Body strfmt.Base64 `json:"body"`
}

func (m *PostBroadcastPayload) Validate(formats strfmt.Registry) error {
	if m.Sender == nil || *m.Sender < 1 || *m.Sender > 65535 {
		return errors.New("sender must be a party index")
	}
	if m.Receiver != nil && (*m.Receiver < 1 || *m.Receiver > 65535) {
		return errors.New("receiver must be a party index or null")
	}
	return nil
}
