package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"campus_live/internal/config"
	"campus_live/pkg/logger"
)

// Префиксы ключей Redis. Все операции идемпотентны и ограничены TTL:
// после падения процесса состояние самоочищается без компенсирующей логики.
const (
	OnlineKeyPrefix      = "presence:user:%s"
	RoomOnlineKeyPrefix  = "presence:room:%s:online"
	TypingKeyPrefix      = "typing:%s:%s"
	UnreadKeyPrefix      = "unread:%s:%s"
	RoomMembersKeyPrefix = "members:room:%s"
)

type PresenceStore interface {
	MarkOnline(ctx context.Context, userID uuid.UUID) error
	Refresh(ctx context.Context, userID uuid.UUID) error
	MarkOffline(ctx context.Context, userID uuid.UUID) error
	IsOnline(ctx context.Context, userID uuid.UUID) (bool, error)

	AddToRoom(ctx context.Context, roomID, userID uuid.UUID) error
	RemoveFromRoom(ctx context.Context, roomID, userID uuid.UUID) error
	ListRoomOnline(ctx context.Context, roomID uuid.UUID) ([]uuid.UUID, error)

	SetTyping(ctx context.Context, roomID, userID uuid.UUID) error
	ClearTyping(ctx context.Context, roomID, userID uuid.UUID) error
	IsTyping(ctx context.Context, roomID, userID uuid.UUID) (bool, error)

	IncrementUnread(ctx context.Context, userID, roomID uuid.UUID) (int64, error)
	ResetUnread(ctx context.Context, userID, roomID uuid.UUID) error
	GetUnread(ctx context.Context, userID, roomID uuid.UUID) (int64, error)

	AddRoomMember(ctx context.Context, roomID, userID uuid.UUID) error
	ListRoomMembers(ctx context.Context, roomID uuid.UUID) ([]uuid.UUID, error)
}

type presenceStore struct {
	rdb *redis.Client
	cfg config.PresenceConfig
	log logger.Logger
}

func NewPresenceStore(rdb *redis.Client, cfg config.PresenceConfig, log logger.Logger) PresenceStore {
	return &presenceStore{rdb: rdb, cfg: cfg, log: log}
}

func (s *presenceStore) onlineKey(userID uuid.UUID) string {
	return fmt.Sprintf(OnlineKeyPrefix, userID.String())
}

func (s *presenceStore) roomOnlineKey(roomID uuid.UUID) string {
	return fmt.Sprintf(RoomOnlineKeyPrefix, roomID.String())
}

func (s *presenceStore) typingKey(roomID, userID uuid.UUID) string {
	return fmt.Sprintf(TypingKeyPrefix, roomID.String(), userID.String())
}

func (s *presenceStore) unreadKey(userID, roomID uuid.UUID) string {
	return fmt.Sprintf(UnreadKeyPrefix, userID.String(), roomID.String())
}

func (s *presenceStore) membersKey(roomID uuid.UUID) string {
	return fmt.Sprintf(RoomMembersKeyPrefix, roomID.String())
}

func (s *presenceStore) MarkOnline(ctx context.Context, userID uuid.UUID) error {
	return s.rdb.Set(ctx, s.onlineKey(userID), "1", s.cfg.OnlineTTL).Err()
}

func (s *presenceStore) Refresh(ctx context.Context, userID uuid.UUID) error {
	// SET вместо EXPIRE: восстанавливает маркер, если TTL успел истечь
	return s.rdb.Set(ctx, s.onlineKey(userID), "1", s.cfg.OnlineTTL).Err()
}

func (s *presenceStore) MarkOffline(ctx context.Context, userID uuid.UUID) error {
	return s.rdb.Del(ctx, s.onlineKey(userID)).Err()
}

func (s *presenceStore) IsOnline(ctx context.Context, userID uuid.UUID) (bool, error) {
	n, err := s.rdb.Exists(ctx, s.onlineKey(userID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *presenceStore) AddToRoom(ctx context.Context, roomID, userID uuid.UUID) error {
	key := s.roomOnlineKey(roomID)
	if err := s.rdb.SAdd(ctx, key, userID.String()).Err(); err != nil {
		return err
	}
	// TTL на весь набор: если все процессы умрут, набор истечет сам
	if err := s.rdb.Expire(ctx, key, s.cfg.RoomTTL).Err(); err != nil {
		s.log.Warn("Failed to set TTL on room online set", "error", err)
	}
	return nil
}

func (s *presenceStore) RemoveFromRoom(ctx context.Context, roomID, userID uuid.UUID) error {
	return s.rdb.SRem(ctx, s.roomOnlineKey(roomID), userID.String()).Err()
}

func (s *presenceStore) ListRoomOnline(ctx context.Context, roomID uuid.UUID) ([]uuid.UUID, error) {
	members, err := s.rdb.SMembers(ctx, s.roomOnlineKey(roomID)).Result()
	if err != nil {
		return nil, err
	}
	return parseUUIDs(members), nil
}

func (s *presenceStore) SetTyping(ctx context.Context, roomID, userID uuid.UUID) error {
	return s.rdb.Set(ctx, s.typingKey(roomID, userID), "1", s.cfg.TypingTTL).Err()
}

func (s *presenceStore) ClearTyping(ctx context.Context, roomID, userID uuid.UUID) error {
	return s.rdb.Del(ctx, s.typingKey(roomID, userID)).Err()
}

func (s *presenceStore) IsTyping(ctx context.Context, roomID, userID uuid.UUID) (bool, error) {
	n, err := s.rdb.Exists(ctx, s.typingKey(roomID, userID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *presenceStore) IncrementUnread(ctx context.Context, userID, roomID uuid.UUID) (int64, error) {
	return s.rdb.Incr(ctx, s.unreadKey(userID, roomID)).Result()
}

func (s *presenceStore) ResetUnread(ctx context.Context, userID, roomID uuid.UUID) error {
	return s.rdb.Del(ctx, s.unreadKey(userID, roomID)).Err()
}

func (s *presenceStore) GetUnread(ctx context.Context, userID, roomID uuid.UUID) (int64, error) {
	count, err := s.rdb.Get(ctx, s.unreadKey(userID, roomID)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (s *presenceStore) AddRoomMember(ctx context.Context, roomID, userID uuid.UUID) error {
	key := s.membersKey(roomID)
	if err := s.rdb.SAdd(ctx, key, userID.String()).Err(); err != nil {
		return err
	}
	if err := s.rdb.Expire(ctx, key, s.cfg.RoomTTL).Err(); err != nil {
		s.log.Warn("Failed to set TTL on room members set", "error", err)
	}
	return nil
}

func (s *presenceStore) ListRoomMembers(ctx context.Context, roomID uuid.UUID) ([]uuid.UUID, error) {
	members, err := s.rdb.SMembers(ctx, s.membersKey(roomID)).Result()
	if err != nil {
		return nil, err
	}
	return parseUUIDs(members), nil
}

func parseUUIDs(values []string) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(values))
	for _, v := range values {
		id, err := uuid.Parse(v)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}
