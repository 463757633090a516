package repository

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"campus_live/internal/config"
	"campus_live/pkg/logger"
)

type Repositories struct {
	User      UserRepository
	Meeting   MeetingRepository
	Chat      ChatRepository
	Audit     AuditRepository
	Presence  PresenceStore
	RateLimit RateLimitRepository
}

func NewRepositories(db *pgxpool.Pool, rdb *redis.Client, cfg *config.Config, log logger.Logger) *Repositories {
	return &Repositories{
		User:      NewUserRepository(db, log),
		Meeting:   NewMeetingRepository(db, log),
		Chat:      NewChatRepository(db, log),
		Audit:     NewAuditRepository(db, log),
		Presence:  NewPresenceStore(rdb, cfg.Presence, log),
		RateLimit: NewRateLimitRepository(rdb, log),
	}
}
