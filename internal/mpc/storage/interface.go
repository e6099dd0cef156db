package storage

import (
	"context"
	"errors"
	"time"
)

var (
	ErrIndexTaken       = errors.New("party index already taken")
	ErrRoomFull         = errors.New("no party index left in room")
	ErrSessionNotFound  = errors.New("session not found")
	ErrKeyShareNotFound = errors.New("key share not found")
)

// RoomEvent 房间内一条已排序的消息
type RoomEvent struct {
	Seq     uint64
	Payload string
}

// RoomStore 中继房间存储接口
type RoomStore interface {
	// IssueIndex 预留 requested 编号；requested 为 0 时分配最小的空闲编号
	IssueIndex(ctx context.Context, room string, requested uint16) (uint16, error)

	// Append 存储 payload 并返回序列号，序列号从 0 开始且不重复
	Append(ctx context.Context, room string, payload string) (uint64, error)

	// Since 返回 Seq >= from 的所有事件，以及一个在可能有新消息时关闭的通道
	Since(ctx context.Context, room string, from uint64) ([]RoomEvent, <-chan struct{}, error)
}

// SessionRecord 会话记录
type SessionRecord struct {
	SessionID       string     `json:"session_id"`
	Kind            string     `json:"kind"`
	State           string     `json:"state"`
	KeyID           string     `json:"key_id"`
	PartyIndex      uint16     `json:"party_index"`
	Threshold       int        `json:"threshold"`
	NumberOfParties int        `json:"number_of_parties"`
	Signers         []uint16   `json:"signers,omitempty"`
	Digest          string     `json:"digest,omitempty"`
	PublicKey       string     `json:"public_key,omitempty"`
	Address         string     `json:"address,omitempty"`
	SignatureR      string     `json:"signature_r,omitempty"`
	SignatureS      string     `json:"signature_s,omitempty"`
	RecoveryID      *uint8     `json:"recovery_id,omitempty"`
	Error           string     `json:"error,omitempty"`
	FailedStage     string     `json:"failed_stage,omitempty"`
	FailedRoom      string     `json:"failed_room,omitempty"`
	Culprits        []uint16   `json:"culprits,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
}

// SessionStore 会话状态存储接口
type SessionStore interface {
	SaveSession(ctx context.Context, session *SessionRecord, ttl time.Duration) error
	GetSession(ctx context.Context, sessionID string) (*SessionRecord, error)
	DeleteSession(ctx context.Context, sessionID string) error

	AcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, key string) error
}

// KeyShareStorage 密钥分片存储接口
type KeyShareStorage interface {
	// 存储密钥分片（加密）
	StoreKeyShare(ctx context.Context, keyID string, nodeID string, share []byte) error

	// 获取密钥分片（解密）
	GetKeyShare(ctx context.Context, keyID string, nodeID string) ([]byte, error)

	DeleteKeyShare(ctx context.Context, keyID string, nodeID string) error

	// 列出节点持有的所有 keyID
	ListKeyShares(ctx context.Context, nodeID string) ([]string, error)
}
