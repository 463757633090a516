package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"campus_live/internal/domain"
	"campus_live/internal/repository"
	apperrors "campus_live/pkg/errors"
	"campus_live/pkg/logger"
)

const (
	maxMessageLength  = 4000
	chatRateLimit     = 20
	chatRateWindow    = 10 * time.Second
	defaultHistoryLen = 50
)

type ChatService interface {
	SendMessage(ctx context.Context, roomID uuid.UUID, sender domain.Identity, body string, scope domain.Scope) (*SendResult, error)
	History(ctx context.Context, roomID, userID uuid.UUID, limit int) ([]*domain.ChatMessage, error)
	EditMessage(ctx context.Context, messageID, userID uuid.UUID, body string) (*domain.ChatMessage, error)
	DeleteMessage(ctx context.Context, messageID uuid.UUID, actor domain.Identity) (*domain.ChatMessage, error)
	React(ctx context.Context, messageID, userID uuid.UUID, emoji string) (*domain.MessageReaction, *domain.ChatMessage, error)
	SetTyping(ctx context.Context, roomID, userID uuid.UUID) error
	ClearTyping(ctx context.Context, roomID, userID uuid.UUID) error
	MarkSeen(ctx context.Context, roomID, userID uuid.UUID) error
	UnreadCount(ctx context.Context, roomID, userID uuid.UUID) (int64, error)
}

// SendResult - сохранённое сообщение плюс список адресатов.
// Пустой Targets означает доставку всем подключённым к комнате.
type SendResult struct {
	Message *domain.ChatMessage `json:"message"`
	Targets []uuid.UUID         `json:"-"`
}

type chatService struct {
	chatRepo    repository.ChatRepository
	meetingRepo repository.MeetingRepository
	presence    repository.PresenceStore
	rateLimit   repository.RateLimitRepository
	notifier    Notifier
	log         logger.Logger
}

func NewChatService(
	chatRepo repository.ChatRepository,
	meetingRepo repository.MeetingRepository,
	presence repository.PresenceStore,
	rateLimit repository.RateLimitRepository,
	notifier Notifier,
	log logger.Logger,
) ChatService {
	return &chatService{
		chatRepo:    chatRepo,
		meetingRepo: meetingRepo,
		presence:    presence,
		rateLimit:   rateLimit,
		notifier:    notifier,
		log:         log,
	}
}

func (s *chatService) SendMessage(ctx context.Context, roomID uuid.UUID, sender domain.Identity, body string, scope domain.Scope) (*SendResult, error) {
	body = strings.TrimSpace(body)
	if body == "" || len(body) > maxMessageLength {
		return nil, apperrors.ErrBadRequest
	}
	if !scope.Valid() {
		return nil, apperrors.ErrBadRequest
	}

	rlKey := fmt.Sprintf("rl:chat:%s", sender.UserID)
	allowed, err := s.rateLimit.CheckLimit(ctx, rlKey, chatRateLimit, chatRateWindow)
	if err == nil && !allowed {
		return nil, apperrors.ErrCapacityExceeded
	}
	if _, err := s.rateLimit.Increment(ctx, rlKey, chatRateWindow); err != nil {
		s.log.Warn("Failed to track chat rate", "error", err)
	}

	message := &domain.ChatMessage{
		ID:              uuid.New(),
		RoomID:          roomID,
		SenderUserID:    sender.UserID,
		SenderName:      sender.DisplayName,
		Body:            body,
		ScopeKind:       scope.Kind,
		RecipientUserID: scope.To,
		CreatedAt:       time.Now(),
	}

	// Сначала durable-запись, потом любая доставка
	if err := s.chatRepo.Create(ctx, message); err != nil {
		return nil, err
	}

	targets, err := s.resolveTargets(ctx, roomID, sender.UserID, scope)
	if err != nil {
		return nil, err
	}

	s.trackUnread(ctx, roomID, sender.UserID, scope, targets)

	return &SendResult{Message: message, Targets: targets}, nil
}

// resolveTargets вычисляет адресатов в момент отправки, чтобы при доставке
// не требовались права участников
func (s *chatService) resolveTargets(ctx context.Context, roomID, senderID uuid.UUID, scope domain.Scope) ([]uuid.UUID, error) {
	switch scope.Kind {
	case domain.ScopeAll:
		return nil, nil
	case domain.ScopePrivate:
		if *scope.To == senderID {
			return nil, apperrors.ErrBadRequest
		}
		return []uuid.UUID{*scope.To, senderID}, nil
	case domain.ScopeHost:
		participants, err := s.meetingRepo.GetParticipantsByMeeting(ctx, roomID)
		if err != nil {
			return nil, err
		}
		targets := []uuid.UUID{senderID}
		for _, p := range participants {
			if p.UserID == senderID || (!p.IsHost && !p.IsModerator) {
				continue
			}
			targets = append(targets, p.UserID)
		}
		return targets, nil
	}
	return nil, apperrors.ErrBadRequest
}

// trackUnread инкрементирует счётчики для адресатов, которых сейчас нет в комнате.
// Ошибки здесь не блокируют отправку: счётчики - best-effort
func (s *chatService) trackUnread(ctx context.Context, roomID, senderID uuid.UUID, scope domain.Scope, targets []uuid.UUID) {
	online, err := s.presence.ListRoomOnline(ctx, roomID)
	if err != nil {
		s.log.Warn("Failed to read room presence for unread tracking", "room_id", roomID, "error", err)
		return
	}
	onlineSet := make(map[uuid.UUID]struct{}, len(online))
	for _, id := range online {
		onlineSet[id] = struct{}{}
	}

	recipients := targets
	if scope.Kind == domain.ScopeAll {
		recipients, err = s.presence.ListRoomMembers(ctx, roomID)
		if err != nil {
			s.log.Warn("Failed to list room members for unread tracking", "room_id", roomID, "error", err)
			return
		}
	}

	for _, userID := range recipients {
		if userID == senderID {
			continue
		}
		if _, inRoom := onlineSet[userID]; inRoom {
			continue
		}
		count, err := s.presence.IncrementUnread(ctx, userID, roomID)
		if err != nil {
			s.log.Warn("Failed to increment unread counter", "user_id", userID, "room_id", roomID, "error", err)
			continue
		}
		s.notifier.UnreadMessage(ctx, roomID, userID, count)
	}
}

func (s *chatService) History(ctx context.Context, roomID, userID uuid.UUID, limit int) ([]*domain.ChatMessage, error) {
	if limit <= 0 || limit > 200 {
		limit = defaultHistoryLen
	}

	messages, err := s.chatRepo.ListByRoom(ctx, roomID, limit)
	if err != nil {
		return nil, err
	}

	// Чужие приватные сообщения и host-сообщения не для этого пользователя
	// отфильтровываются при чтении
	visible := make([]*domain.ChatMessage, 0, len(messages))
	for _, m := range messages {
		if m.ScopeKind == domain.ScopePrivate &&
			m.SenderUserID != userID &&
			(m.RecipientUserID == nil || *m.RecipientUserID != userID) {
			continue
		}
		visible = append(visible, m)
	}

	return visible, nil
}

func (s *chatService) EditMessage(ctx context.Context, messageID, userID uuid.UUID, body string) (*domain.ChatMessage, error) {
	body = strings.TrimSpace(body)
	if body == "" || len(body) > maxMessageLength {
		return nil, apperrors.ErrBadRequest
	}

	message, err := s.chatRepo.GetByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if message.SenderUserID != userID {
		return nil, apperrors.ErrForbidden
	}

	if err := s.chatRepo.MarkEdited(ctx, messageID, body); err != nil {
		return nil, err
	}

	now := time.Now()
	message.Body = body
	message.EditedAt = &now
	return message, nil
}

func (s *chatService) DeleteMessage(ctx context.Context, messageID uuid.UUID, actor domain.Identity) (*domain.ChatMessage, error) {
	message, err := s.chatRepo.GetByID(ctx, messageID)
	if err != nil {
		return nil, err
	}

	if message.SenderUserID != actor.UserID {
		participant, err := s.meetingRepo.GetParticipant(ctx, message.RoomID, actor.UserID)
		if err != nil || (!participant.IsHost && !participant.IsModerator) {
			return nil, apperrors.ErrForbidden
		}
	}

	if err := s.chatRepo.SoftDelete(ctx, messageID, actor.UserID); err != nil {
		return nil, err
	}

	now := time.Now()
	actorID := actor.UserID
	message.DeletedAt = &now
	message.DeletedByUserID = &actorID
	return message, nil
}

func (s *chatService) React(ctx context.Context, messageID, userID uuid.UUID, emoji string) (*domain.MessageReaction, *domain.ChatMessage, error) {
	if emoji == "" || len(emoji) > 32 {
		return nil, nil, apperrors.ErrBadRequest
	}

	message, err := s.chatRepo.GetByID(ctx, messageID)
	if err != nil {
		return nil, nil, err
	}

	reaction := &domain.MessageReaction{
		MessageID: messageID,
		UserID:    userID,
		Emoji:     emoji,
		CreatedAt: time.Now(),
	}

	if err := s.chatRepo.AddReaction(ctx, reaction); err != nil {
		return nil, nil, err
	}

	return reaction, message, nil
}

func (s *chatService) SetTyping(ctx context.Context, roomID, userID uuid.UUID) error {
	return s.presence.SetTyping(ctx, roomID, userID)
}

func (s *chatService) ClearTyping(ctx context.Context, roomID, userID uuid.UUID) error {
	return s.presence.ClearTyping(ctx, roomID, userID)
}

func (s *chatService) MarkSeen(ctx context.Context, roomID, userID uuid.UUID) error {
	return s.presence.ResetUnread(ctx, userID, roomID)
}

func (s *chatService) UnreadCount(ctx context.Context, roomID, userID uuid.UUID) (int64, error) {
	return s.presence.GetUnread(ctx, userID, roomID)
}
