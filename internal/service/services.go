package service

import (
	"campus_live/internal/config"
	"campus_live/internal/repository"
	"campus_live/pkg/logger"
)

type Services struct {
	Auth     AuthService
	Meeting  MeetingService
	Chat     ChatService
	Media    MediaService
	Notifier Notifier
}

func NewServices(repos *repository.Repositories, cfg *config.Config, log logger.Logger) *Services {
	engine := NewHTTPEngine(cfg.Engine, log)
	media := NewMediaService(engine, cfg.Engine, log)
	notifier := NewLogNotifier(log)

	return &Services{
		Auth:     NewAuthService(repos.User, cfg.JWT, log),
		Meeting:  NewMeetingService(repos.Meeting, repos.Chat, repos.Audit, media, cfg, log),
		Chat:     NewChatService(repos.Chat, repos.Meeting, repos.Presence, repos.RateLimit, notifier, log),
		Media:    media,
		Notifier: notifier,
	}
}
