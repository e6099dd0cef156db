package storage

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/dropbox/godropbox/time2"
)

type memoryRoom struct {
	taken    map[uint16]bool
	payloads []string
	changed  chan struct{}
}

// MemoryRoomStore keeps rooms in process memory. Rooms are never evicted.
type MemoryRoomStore struct {
	mu    sync.Mutex
	rooms map[string]*memoryRoom
}

func NewMemoryRoomStore() *MemoryRoomStore {
	return &MemoryRoomStore{rooms: make(map[string]*memoryRoom)}
}

func (s *MemoryRoomStore) room(name string) *memoryRoom {
	r, ok := s.rooms[name]
	if !ok {
		r = &memoryRoom{taken: make(map[uint16]bool), changed: make(chan struct{})}
		s.rooms[name] = r
	}
	return r
}

func (s *MemoryRoomStore) IssueIndex(_ context.Context, room string, requested uint16) (uint16, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.room(room)
	if requested != 0 {
		if r.taken[requested] {
			return 0, ErrIndexTaken
		}
		r.taken[requested] = true
		return requested, nil
	}

	for idx := uint16(1); ; idx++ {
		if !r.taken[idx] {
			r.taken[idx] = true
			return idx, nil
		}
		if idx == math.MaxUint16 {
			return 0, ErrRoomFull
		}
	}
}

func (s *MemoryRoomStore) Append(_ context.Context, room string, payload string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.room(room)
	r.payloads = append(r.payloads, payload)
	close(r.changed)
	r.changed = make(chan struct{})
	return uint64(len(r.payloads) - 1), nil
}

func (s *MemoryRoomStore) Since(_ context.Context, room string, from uint64) ([]RoomEvent, <-chan struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.room(room)
	var events []RoomEvent
	for seq := from; seq < uint64(len(r.payloads)); seq++ {
		events = append(events, RoomEvent{Seq: seq, Payload: r.payloads[seq]})
	}
	return events, r.changed, nil
}

type memorySession struct {
	record    SessionRecord
	expiresAt time.Time
}

// MemorySessionStore is the single-process SessionStore.
type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]memorySession
	locks    map[string]time.Time
	clock    time2.Clock
}

func NewMemorySessionStore(clock time2.Clock) *MemorySessionStore {
	return &MemorySessionStore{
		sessions: make(map[string]memorySession),
		locks:    make(map[string]time.Time),
		clock:    clock,
	}
}

func (s *MemorySessionStore) SaveSession(_ context.Context, session *SessionRecord, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record := *session
	record.Signers = append([]uint16(nil), session.Signers...)
	record.Culprits = append([]uint16(nil), session.Culprits...)
	entry := memorySession{record: record}
	if ttl > 0 {
		entry.expiresAt = s.clock.Now().Add(ttl)
	}
	s.sessions[session.SessionID] = entry
	return nil
}

func (s *MemorySessionStore) GetSession(_ context.Context, sessionID string) (*SessionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.sessions[sessionID]
	if !ok || (!entry.expiresAt.IsZero() && s.clock.Now().After(entry.expiresAt)) {
		return nil, ErrSessionNotFound
	}
	record := entry.record
	return &record, nil
}

func (s *MemorySessionStore) DeleteSession(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}

func (s *MemorySessionStore) AcquireLock(_ context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if until, ok := s.locks[key]; ok && s.clock.Now().Before(until) {
		return false, nil
	}
	s.locks[key] = s.clock.Now().Add(ttl)
	return true, nil
}

func (s *MemorySessionStore) ReleaseLock(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.locks, key)
	return nil
}
