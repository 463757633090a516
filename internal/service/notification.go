package service

import (
	"context"

	"github.com/google/uuid"

	"campus_live/pkg/logger"
)

// Notifier уведомляет пользователей вне активных соединений (push, email).
// Вызовы fire-and-forget: отказ канала уведомлений не влияет на доставку в комнате.
type Notifier interface {
	UnreadMessage(ctx context.Context, roomID, userID uuid.UUID, count int64)
}

type logNotifier struct {
	log logger.Logger
}

func NewLogNotifier(log logger.Logger) Notifier {
	return &logNotifier{log: log}
}

func (n *logNotifier) UnreadMessage(_ context.Context, roomID, userID uuid.UUID, count int64) {
	n.log.Debug("Notify: unread message", "room_id", roomID, "user_id", userID, "count", count)
}
