package session

import (
	"context"
	"fmt"
	"time"

	"github.com/dropbox/godropbox/time2"
	"github.com/kashguard/go-mpc-roomsigner/internal/mpc/mpcerrors"
	"github.com/kashguard/go-mpc-roomsigner/internal/mpc/storage"
	"github.com/pkg/errors"
)

var (
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrSessionExists     = errors.New("session already exists")
)

// Manager 会话管理器
type Manager struct {
	store   storage.SessionStore
	timeout time.Duration
	clock   time2.Clock
}

// NewManager 创建会话管理器，记录在 timeout 后过期
func NewManager(store storage.SessionStore, timeout time.Duration, clock time2.Clock) *Manager {
	return &Manager{
		store:   store,
		timeout: timeout,
		clock:   clock,
	}
}

func lockKey(sessionID string) string {
	return "session:" + sessionID
}

// CreateSession 创建会话，同一 ID 在超时前只能创建一次
func (m *Manager) CreateSession(ctx context.Context, s *Session) error {
	ok, err := m.store.AcquireLock(ctx, lockKey(s.ID), m.timeout)
	if err != nil {
		return errors.Wrap(err, "failed to lock session")
	}
	if !ok {
		return errors.Wrapf(ErrSessionExists, "session %s", s.ID)
	}

	now := m.clock.Now()
	s.State = StateIdle
	s.CreatedAt = now
	s.UpdatedAt = now

	if err := m.save(ctx, s); err != nil {
		_ = m.store.ReleaseLock(ctx, lockKey(s.ID))
		return err
	}
	return nil
}

// GetSession 获取会话
func (m *Manager) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	r, err := m.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return convertStorageSession(r), nil
}

// Transition 将会话迁移到 next 并持久化
func (m *Manager) Transition(ctx context.Context, s *Session, next State) error {
	if !canTransition(s.State, next) {
		return fmt.Errorf("%w: from %s to %s", ErrInvalidTransition, s.State, next)
	}

	s.State = next
	s.UpdatedAt = m.clock.Now()
	if next.Terminal() {
		completed := s.UpdatedAt
		s.CompletedAt = &completed
	}
	return m.save(ctx, s)
}

// FailSession 记录阶段错误并将会话置为 Failed
func (m *Manager) FailSession(ctx context.Context, s *Session, stageErr *mpcerrors.StageError) error {
	s.Error = stageErr.Error()
	s.FailedStage = stageErr.Stage
	s.FailedRoom = stageErr.Room
	s.Culprits = mpcerrors.Culprits(stageErr)
	return m.Transition(ctx, s, StateFailed)
}

func (m *Manager) save(ctx context.Context, s *Session) error {
	if err := m.store.SaveSession(ctx, s.toRecord(), m.timeout); err != nil {
		return errors.Wrap(err, "failed to save session")
	}
	return nil
}
