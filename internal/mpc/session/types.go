package session

import (
	"time"

	"github.com/kashguard/go-mpc-roomsigner/internal/mpc/storage"
)

// State 会话状态
type State string

const (
	StateIdle                State = "idle"
	StateJoiningKeygenRoom   State = "joining_keygen_room"
	StateRunningKeygen       State = "running_keygen"
	StateKeygenDone          State = "keygen_done"
	StateJoiningOfflineRoom  State = "joining_offline_room"
	StateRunningOfflineStage State = "running_offline_stage"
	StateOfflineDone         State = "offline_done"
	StateJoiningOnlineRoom   State = "joining_online_room"
	StateRunningOnlineStage  State = "running_online_stage"
	StateSignatureReady      State = "signature_ready"
	StateDone                State = "done"
	StateFailed              State = "failed"
)

// Kind 会话类型
type Kind string

const (
	KindKeygen Kind = "keygen"
	KindSign   Kind = "sign"
	// KindFull 在同一会话中先密钥生成再签名
	KindFull Kind = "full"
)

func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

func canTransition(current, next State) bool {
	if next == StateFailed {
		return !current.Terminal()
	}

	switch current {
	case StateIdle:
		return next == StateJoiningKeygenRoom || next == StateJoiningOfflineRoom
	case StateJoiningKeygenRoom:
		return next == StateRunningKeygen
	case StateRunningKeygen:
		return next == StateKeygenDone
	case StateKeygenDone:
		// 仅密钥生成的会话在此结束
		return next == StateJoiningOfflineRoom || next == StateDone
	case StateJoiningOfflineRoom:
		return next == StateRunningOfflineStage
	case StateRunningOfflineStage:
		return next == StateOfflineDone
	case StateOfflineDone:
		return next == StateJoiningOnlineRoom
	case StateJoiningOnlineRoom:
		return next == StateRunningOnlineStage
	case StateRunningOnlineStage:
		return next == StateSignatureReady
	case StateSignatureReady:
		return next == StateDone
	default:
		return false
	}
}

// Session 签名或密钥生成会话
type Session struct {
	ID              string
	Kind            Kind
	State           State
	KeyID           string
	PartyIndex      uint16
	Threshold       int
	NumberOfParties int
	Signers         []uint16
	Digest          string
	PublicKey       string
	Address         string
	SignatureR      string
	SignatureS      string
	RecoveryID      *uint8
	Error           string
	FailedStage     string
	FailedRoom      string
	Culprits        []uint16
	CreatedAt       time.Time
	UpdatedAt       time.Time
	CompletedAt     *time.Time
}

func (s *Session) toRecord() *storage.SessionRecord {
	return &storage.SessionRecord{
		SessionID:       s.ID,
		Kind:            string(s.Kind),
		State:           string(s.State),
		KeyID:           s.KeyID,
		PartyIndex:      s.PartyIndex,
		Threshold:       s.Threshold,
		NumberOfParties: s.NumberOfParties,
		Signers:         s.Signers,
		Digest:          s.Digest,
		PublicKey:       s.PublicKey,
		Address:         s.Address,
		SignatureR:      s.SignatureR,
		SignatureS:      s.SignatureS,
		RecoveryID:      s.RecoveryID,
		Error:           s.Error,
		FailedStage:     s.FailedStage,
		FailedRoom:      s.FailedRoom,
		Culprits:        s.Culprits,
		CreatedAt:       s.CreatedAt,
		UpdatedAt:       s.UpdatedAt,
		CompletedAt:     s.CompletedAt,
	}
}

func convertStorageSession(r *storage.SessionRecord) *Session {
	return &Session{
		ID:              r.SessionID,
		Kind:            Kind(r.Kind),
		State:           State(r.State),
		KeyID:           r.KeyID,
		PartyIndex:      r.PartyIndex,
		Threshold:       r.Threshold,
		NumberOfParties: r.NumberOfParties,
		Signers:         r.Signers,
		Digest:          r.Digest,
		PublicKey:       r.PublicKey,
		Address:         r.Address,
		SignatureR:      r.SignatureR,
		SignatureS:      r.SignatureS,
		RecoveryID:      r.RecoveryID,
		Error:           r.Error,
		FailedStage:     r.FailedStage,
		FailedRoom:      r.FailedRoom,
		Culprits:        r.Culprits,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
		CompletedAt:     r.CompletedAt,
	}
}
