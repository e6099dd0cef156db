package storage

import (
	"context"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const defaultPollInterval = 100 * time.Millisecond

// appendScript 原子地分配序列号并写入消息，KEYS[1] 为计数器，KEYS[2] 为消息有序集合
var appendScript = redis.NewScript(`
local seq = redis.call("INCR", KEYS[1]) - 1
redis.call("ZADD", KEYS[2], seq, seq .. ":" .. ARGV[1])
local ttl = tonumber(ARGV[2])
if ttl > 0 then
	redis.call("PEXPIRE", KEYS[1], ttl)
	redis.call("PEXPIRE", KEYS[2], ttl)
end
return seq
`)

// RedisRoomStore Redis中继房间存储实现
// 订阅方通过轮询获取新消息
type RedisRoomStore struct {
	client       redis.UniversalClient
	ttl          time.Duration
	pollInterval time.Duration
}

// NewRedisRoomStore 创建Redis房间存储实例
func NewRedisRoomStore(client redis.UniversalClient, ttl time.Duration) *RedisRoomStore {
	return &RedisRoomStore{client: client, ttl: ttl, pollInterval: defaultPollInterval}
}

func roomIndexKey(room string) string {
	return "mpc:relay:" + room + ":idx"
}

func roomMessagesKey(room string) string {
	return "mpc:relay:" + room + ":msgs"
}

func roomSeqKey(room string) string {
	return "mpc:relay:" + room + ":seq"
}

// IssueIndex 分配房间内唯一的参与方编号
func (s *RedisRoomStore) IssueIndex(ctx context.Context, room string, requested uint16) (uint16, error) {
	key := roomIndexKey(room)

	if requested != 0 {
		added, err := s.client.SAdd(ctx, key, requested).Result()
		if err != nil {
			return 0, errors.Wrap(err, "failed to reserve party index")
		}
		if added == 0 {
			return 0, ErrIndexTaken
		}
		s.touch(ctx, key)
		return requested, nil
	}

	for idx := 1; idx <= math.MaxUint16; idx++ {
		added, err := s.client.SAdd(ctx, key, idx).Result()
		if err != nil {
			return 0, errors.Wrap(err, "failed to issue party index")
		}
		if added == 1 {
			s.touch(ctx, key)
			return uint16(idx), nil
		}
	}
	return 0, ErrRoomFull
}

// Append 追加消息，返回序列号。序列号来自独立的 INCR 计数器
func (s *RedisRoomStore) Append(ctx context.Context, room string, payload string) (uint64, error) {
	keys := []string{roomSeqKey(room), roomMessagesKey(room)}
	seq, err := appendScript.Run(ctx, s.client, keys, payload, s.ttl.Milliseconds()).Int64()
	if err != nil {
		return 0, errors.Wrap(err, "failed to append message")
	}
	return uint64(seq), nil
}

// Since 读取序列号 >= from 的消息，并为仍在订阅的房间续期
func (s *RedisRoomStore) Since(ctx context.Context, room string, from uint64) ([]RoomEvent, <-chan struct{}, error) {
	members, err := s.client.ZRangeByScore(ctx, roomMessagesKey(room), &redis.ZRangeBy{
		Min: strconv.FormatUint(from, 10),
		Max: "+inf",
	}).Result()
	if err != nil && err != redis.Nil {
		return nil, nil, errors.Wrap(err, "failed to read messages")
	}
	s.touch(ctx, roomIndexKey(room), roomSeqKey(room), roomMessagesKey(room))

	events := make([]RoomEvent, 0, len(members))
	for _, m := range members {
		prefix, payload, ok := strings.Cut(m, ":")
		if !ok {
			return nil, nil, errors.Errorf("malformed message entry in room %s", room)
		}
		seq, err := strconv.ParseUint(prefix, 10, 64)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "malformed sequence id in room %s", room)
		}
		events = append(events, RoomEvent{Seq: seq, Payload: payload})
	}

	changed := make(chan struct{})
	time.AfterFunc(s.pollInterval, func() { close(changed) })
	return events, changed, nil
}

func (s *RedisRoomStore) touch(ctx context.Context, keys ...string) {
	if s.ttl <= 0 {
		return
	}
	_, _ = s.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		for _, key := range keys {
			p.Expire(ctx, key, s.ttl)
		}
		return nil
	})
}

// RedisSessionStore Redis会话存储实现
type RedisSessionStore struct {
	client redis.UniversalClient
}

// NewRedisSessionStore 创建Redis会话存储实例
func NewRedisSessionStore(client redis.UniversalClient) *RedisSessionStore {
	return &RedisSessionStore{client: client}
}

// SaveSession 保存会话状态
func (s *RedisSessionStore) SaveSession(ctx context.Context, session *SessionRecord, ttl time.Duration) error {
	data, err := json.Marshal(session)
	if err != nil {
		return errors.Wrap(err, "failed to marshal session")
	}

	key := "mpc:session:" + session.SessionID
	if err := s.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return errors.Wrap(err, "failed to save session")
	}

	return nil
}

// GetSession 获取会话状态
func (s *RedisSessionStore) GetSession(ctx context.Context, sessionID string) (*SessionRecord, error) {
	key := "mpc:session:" + sessionID
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrSessionNotFound
		}
		return nil, errors.Wrap(err, "failed to get session")
	}

	var session SessionRecord
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal session")
	}

	return &session, nil
}

// DeleteSession 删除会话
func (s *RedisSessionStore) DeleteSession(ctx context.Context, sessionID string) error {
	key := "mpc:session:" + sessionID
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return errors.Wrap(err, "failed to delete session")
	}
	return nil
}

// AcquireLock 获取分布式锁
func (s *RedisSessionStore) AcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	lockKey := "mpc:lock:" + key
	result, err := s.client.SetNX(ctx, lockKey, "1", ttl).Result()
	if err != nil {
		return false, errors.Wrap(err, "failed to acquire lock")
	}
	return result, nil
}

// ReleaseLock 释放分布式锁
func (s *RedisSessionStore) ReleaseLock(ctx context.Context, key string) error {
	lockKey := "mpc:lock:" + key
	if err := s.client.Del(ctx, lockKey).Err(); err != nil {
		return errors.Wrap(err, "failed to release lock")
	}
	return nil
}
