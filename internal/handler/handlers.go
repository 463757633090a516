package handler

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"campus_live/internal/config"
	"campus_live/internal/gateway"
	"campus_live/internal/service"
	"campus_live/pkg/logger"
)

type Handlers struct {
	Health    *HealthHandler
	Auth      *AuthHandler
	Meeting   *MeetingHandler
	WebSocket *WebSocketHandler
}

func NewHandlers(services *service.Services, coordinator *gateway.Coordinator, db *pgxpool.Pool, rdb *redis.Client, broker gateway.Broker, cfg *config.Config, log logger.Logger) *Handlers {
	return &Handlers{
		Health:    NewHealthHandler(db, rdb, broker),
		Auth:      NewAuthHandler(services.Auth, log),
		Meeting:   NewMeetingHandler(services.Meeting, log),
		WebSocket: NewWebSocketHandler(services.Auth, coordinator, cfg, log),
	}
}
