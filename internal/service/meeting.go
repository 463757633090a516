package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"campus_live/internal/config"
	"campus_live/internal/domain"
	"campus_live/internal/repository"
	apperrors "campus_live/pkg/errors"
	"campus_live/pkg/logger"
)

type MeetingService interface {
	Create(ctx context.Context, identity domain.Identity, title string, description *string, scheduledStartAt, scheduledEndAt *time.Time, maxParticipants int) (*domain.Meeting, error)
	GetByID(ctx context.Context, meetingID uuid.UUID) (*domain.Meeting, error)
	List(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]*domain.Meeting, error)
	Join(ctx context.Context, meetingID uuid.UUID, identity domain.Identity) (*JoinResult, error)
	Leave(ctx context.Context, meetingID, userID uuid.UUID, reason string) (*domain.Participant, error)
	End(ctx context.Context, meetingID uuid.UUID, actor domain.Identity) (*EndResult, error)
	Cancel(ctx context.Context, meetingID uuid.UUID, actor domain.Identity) error
	UpdateMediaStatus(ctx context.Context, meetingID, userID uuid.UUID, video, audio, screen *bool) (*domain.Participant, error)
	ForceEndAbandoned(ctx context.Context) int
}

type JoinResult struct {
	Meeting     *domain.Meeting       `json:"meeting"`
	Participant *domain.Participant   `json:"participant"`
	Roster      []*domain.Participant `json:"roster"`
	Media       *MediaCapabilities    `json:"media,omitempty"`
}

type EndResult struct {
	Meeting   *domain.Meeting          `json:"meeting"`
	Analytics *domain.MeetingAnalytics `json:"analytics"`
}

type meetingService struct {
	meetingRepo repository.MeetingRepository
	chatRepo    repository.ChatRepository
	auditRepo   repository.AuditRepository
	media       MediaService
	cfg         *config.Config
	log         logger.Logger
}

func NewMeetingService(
	meetingRepo repository.MeetingRepository,
	chatRepo repository.ChatRepository,
	auditRepo repository.AuditRepository,
	media MediaService,
	cfg *config.Config,
	log logger.Logger,
) MeetingService {
	return &meetingService{
		meetingRepo: meetingRepo,
		chatRepo:    chatRepo,
		auditRepo:   auditRepo,
		media:       media,
		cfg:         cfg,
		log:         log,
	}
}

func (s *meetingService) Create(ctx context.Context, identity domain.Identity, title string, description *string, scheduledStartAt, scheduledEndAt *time.Time, maxParticipants int) (*domain.Meeting, error) {
	if maxParticipants <= 0 || maxParticipants > 500 {
		maxParticipants = 50
	}

	meeting := &domain.Meeting{
		ID:               uuid.New(),
		TenantID:         identity.TenantID,
		CreatedByUserID:  identity.UserID,
		EngineRoomName:   uuid.New().String(),
		Title:            title,
		Description:      description,
		Status:           domain.MeetingStatusScheduled,
		ScheduledStartAt: scheduledStartAt,
		ScheduledEndAt:   scheduledEndAt,
		MaxParticipants:  maxParticipants,
		Features:         make(map[string]interface{}),
		CreatedAt:        time.Now(),
		UpdatedAt:        time.Now(),
	}

	if err := s.meetingRepo.Create(ctx, meeting); err != nil {
		s.log.Error("Failed to create meeting", "error", err)
		return nil, err
	}

	s.audit(ctx, &identity, domain.ActorRoleHost, meeting.ID, domain.EventTypeMeetingCreated,
		map[string]interface{}{"title": title})

	return meeting, nil
}

func (s *meetingService) GetByID(ctx context.Context, meetingID uuid.UUID) (*domain.Meeting, error) {
	return s.meetingRepo.GetByID(ctx, meetingID)
}

func (s *meetingService) List(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]*domain.Meeting, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.meetingRepo.List(ctx, tenantID, limit, offset)
}

func (s *meetingService) Join(ctx context.Context, meetingID uuid.UUID, identity domain.Identity) (*JoinResult, error) {
	meeting, err := s.meetingRepo.GetByID(ctx, meetingID)
	if err != nil {
		return nil, err
	}

	if meeting.TenantID != identity.TenantID {
		return nil, apperrors.ErrForbidden
	}

	if domain.IsTerminalStatus(meeting.Status) {
		return nil, apperrors.ErrConflict
	}

	connectedBefore, err := s.meetingRepo.CountConnected(ctx, meetingID)
	if err != nil {
		return nil, err
	}

	participant, _ := s.meetingRepo.GetParticipant(ctx, meetingID, identity.UserID)
	alreadyConnected := participant != nil && participant.ConnectionStatus == domain.ConnectionStatusConnected

	if !alreadyConnected && connectedBefore >= meeting.MaxParticipants {
		return nil, apperrors.ErrCapacityExceeded
	}

	isHost := meeting.CreatedByUserID == identity.UserID
	isModerator := isHost || identity.Role == domain.RoleTeacher || identity.Role == domain.RoleAdmin

	switch {
	case participant == nil:
		participant = &domain.Participant{
			ID:               uuid.New(),
			MeetingID:        meetingID,
			UserID:           identity.UserID,
			DisplayName:      identity.DisplayName,
			ConnectionStatus: domain.ConnectionStatusConnected,
			AudioEnabled:     true,
			IsHost:           isHost,
			IsModerator:      isModerator,
			CanShareScreen:   isHost || isModerator,
			CanChat:          true,
			JoinedAt:         time.Now(),
		}
		if err := s.meetingRepo.CreateParticipant(ctx, participant); err != nil {
			return nil, err
		}
	case !alreadyConnected:
		// Повторное подключение: история сохраняется, статус обновляется
		participant.ConnectionStatus = domain.ConnectionStatusConnected
		participant.LeftAt = nil
		participant.LeaveReason = nil
		if err := s.meetingRepo.UpdateParticipant(ctx, participant); err != nil {
			return nil, err
		}
	}

	if !alreadyConnected {
		s.audit(ctx, &identity, actorRole(participant), meetingID, domain.EventTypeParticipantJoined,
			map[string]interface{}{"display_name": identity.DisplayName})
	}

	// Первый участник инициализирует control-plane сессию движка.
	// Отказ движка не блокирует вход - деградация логируется.
	var router json.RawMessage
	if connectedBefore == 0 {
		router, err = s.media.EnsureSession(ctx, meeting.EngineRoomName)
		if err != nil {
			s.log.Warn("Media session init failed, joining without media", "meeting_id", meetingID, "error", err)
		}
	}

	if meeting.Status == domain.MeetingStatusScheduled {
		if err := s.transition(ctx, meeting, domain.MeetingStatusLive, identity, domain.EventTypeMeetingStarted, nil); err != nil {
			return nil, err
		}
		now := time.Now()
		meeting.StartedAt = &now
		if err := s.meetingRepo.Update(ctx, meeting); err != nil {
			s.log.Warn("Failed to persist meeting start time", "error", err)
		}
	}

	roster, err := s.meetingRepo.GetConnectedParticipants(ctx, meetingID)
	if err != nil {
		s.log.Warn("Failed to load roster", "meeting_id", meetingID, "error", err)
		roster = []*domain.Participant{participant}
	}

	media, err := s.media.Capabilities(ctx, meeting.EngineRoomName, identity)
	if err != nil {
		s.log.Warn("Failed to issue media capabilities", "meeting_id", meetingID, "error", err)
		media = nil
	} else if router != nil {
		media.Router = router
	}

	return &JoinResult{
		Meeting:     meeting,
		Participant: participant,
		Roster:      roster,
		Media:       media,
	}, nil
}

func (s *meetingService) Leave(ctx context.Context, meetingID, userID uuid.UUID, reason string) (*domain.Participant, error) {
	participant, err := s.meetingRepo.GetParticipant(ctx, meetingID, userID)
	if err != nil {
		return nil, err
	}

	// Идемпотентность: повторный leave после разрыва соединения - no-op
	if participant.ConnectionStatus == domain.ConnectionStatusDisconnected {
		return participant, nil
	}

	now := time.Now()
	participant.ConnectionStatus = domain.ConnectionStatusDisconnected
	participant.LeftAt = &now
	participant.LeaveReason = &reason

	if err := s.meetingRepo.UpdateParticipant(ctx, participant); err != nil {
		return nil, err
	}

	s.audit(ctx, &domain.Identity{UserID: userID}, actorRole(participant), meetingID, domain.EventTypeParticipantLeft,
		map[string]interface{}{"reason": reason})

	remaining, err := s.meetingRepo.CountConnected(ctx, meetingID)
	if err != nil {
		s.log.Warn("Failed to count remaining participants", "meeting_id", meetingID, "error", err)
		return participant, nil
	}

	if remaining == 0 {
		meeting, err := s.meetingRepo.GetByID(ctx, meetingID)
		if err == nil {
			if err := s.media.CloseSession(ctx, meeting.EngineRoomName); err != nil {
				s.log.Warn("Failed to close media session", "meeting_id", meetingID, "error", err)
			}
		}
		// Встреча остаётся live: завершение - явное действие ведущего
	}

	return participant, nil
}

func (s *meetingService) End(ctx context.Context, meetingID uuid.UUID, actor domain.Identity) (*EndResult, error) {
	meeting, err := s.meetingRepo.GetByID(ctx, meetingID)
	if err != nil {
		return nil, err
	}

	if meeting.Status != domain.MeetingStatusLive {
		return nil, apperrors.ErrConflict
	}

	actorParticipant, err := s.meetingRepo.GetParticipant(ctx, meetingID, actor.UserID)
	isSystem := actor.Role == domain.ActorRoleSystem
	if !isSystem {
		if err != nil || (!actorParticipant.IsHost && !actorParticipant.IsModerator) {
			return nil, apperrors.ErrForbidden
		}
	}

	analytics := s.computeAnalytics(ctx, meeting)

	if err := s.transition(ctx, meeting, domain.MeetingStatusEnded, actor, domain.EventTypeMeetingEnded,
		map[string]interface{}{
			"participant_count": analytics.ParticipantCount,
			"message_count":     analytics.MessageCount,
			"duration_seconds":  analytics.DurationSeconds,
		}); err != nil {
		return nil, err
	}

	now := time.Now()
	meeting.EndedAt = &now
	if err := s.meetingRepo.Update(ctx, meeting); err != nil {
		s.log.Warn("Failed to persist meeting end time", "error", err)
	}

	if err := s.media.CloseSession(ctx, meeting.EngineRoomName); err != nil {
		s.log.Warn("Failed to close media session on end", "meeting_id", meetingID, "error", err)
	}

	return &EndResult{Meeting: meeting, Analytics: analytics}, nil
}

func (s *meetingService) Cancel(ctx context.Context, meetingID uuid.UUID, actor domain.Identity) error {
	meeting, err := s.meetingRepo.GetByID(ctx, meetingID)
	if err != nil {
		return err
	}

	if meeting.CreatedByUserID != actor.UserID {
		return apperrors.ErrForbidden
	}

	return s.transition(ctx, meeting, domain.MeetingStatusCancelled, actor, domain.EventTypeMeetingCancelled, nil)
}

func (s *meetingService) UpdateMediaStatus(ctx context.Context, meetingID, userID uuid.UUID, video, audio, screen *bool) (*domain.Participant, error) {
	participant, err := s.meetingRepo.GetParticipant(ctx, meetingID, userID)
	if err != nil {
		return nil, err
	}

	if video != nil {
		participant.VideoEnabled = *video
	}
	if audio != nil {
		participant.AudioEnabled = *audio
	}
	if screen != nil {
		if *screen && !participant.CanShareScreen {
			return nil, apperrors.ErrForbidden
		}
		participant.ScreenSharing = *screen
	}

	if err := s.meetingRepo.UpdateParticipant(ctx, participant); err != nil {
		return nil, err
	}

	return participant, nil
}

// ForceEndAbandoned завершает live-встречи без подключённых участников.
// Вызывается только при остановке сервера.
func (s *meetingService) ForceEndAbandoned(ctx context.Context) int {
	meetings, err := s.meetingRepo.ListLiveMeetings(ctx)
	if err != nil {
		s.log.Error("Failed to list live meetings for shutdown sweep", "error", err)
		return 0
	}

	system := domain.Identity{Role: domain.ActorRoleSystem}
	ended := 0
	for _, meeting := range meetings {
		connected, err := s.meetingRepo.CountConnected(ctx, meeting.ID)
		if err != nil || connected > 0 {
			continue
		}
		if _, err := s.End(ctx, meeting.ID, system); err != nil {
			s.log.Warn("Failed to force-end meeting", "meeting_id", meeting.ID, "error", err)
			continue
		}
		ended++
	}

	return ended
}

// transition выполняет переход статуса: проверка допустимости, запись статуса,
// запись аудита. Persisted-состояние меняется до любых shared-эффектов.
func (s *meetingService) transition(ctx context.Context, meeting *domain.Meeting, to string, actor domain.Identity, eventType string, details map[string]interface{}) error {
	if !domain.CanTransition(meeting.Status, to) {
		return apperrors.ErrConflict
	}

	from := meeting.Status
	meeting.Status = to
	if err := s.meetingRepo.Update(ctx, meeting); err != nil {
		meeting.Status = from
		return fmt.Errorf("persist status transition: %w", err)
	}

	if details == nil {
		details = map[string]interface{}{}
	}
	details["from"] = from
	details["to"] = to

	role := actor.Role
	if role == "" {
		role = domain.ActorRoleUser
	}
	var actorID *uuid.UUID
	if actor.UserID != uuid.Nil {
		id := actor.UserID
		actorID = &id
	}

	if err := s.auditRepo.CreateLog(ctx, &domain.AuditLog{
		EventTime:   time.Now(),
		ActorUserID: actorID,
		ActorRole:   role,
		MeetingID:   &meeting.ID,
		EventType:   eventType,
		Payload:     details,
	}); err != nil {
		s.log.Warn("Failed to write audit entry", "meeting_id", meeting.ID, "event", eventType, "error", err)
	}

	return nil
}

func (s *meetingService) computeAnalytics(ctx context.Context, meeting *domain.Meeting) *domain.MeetingAnalytics {
	analytics := &domain.MeetingAnalytics{}

	if count, err := s.meetingRepo.CountDistinctParticipants(ctx, meeting.ID); err == nil {
		analytics.ParticipantCount = count
	}
	if count, err := s.chatRepo.CountByRoom(ctx, meeting.ID); err == nil {
		analytics.MessageCount = count
	}
	if meeting.StartedAt != nil {
		analytics.DurationSeconds = int64(time.Since(*meeting.StartedAt).Seconds())
	}

	return analytics
}

func (s *meetingService) audit(ctx context.Context, actor *domain.Identity, role string, meetingID uuid.UUID, eventType string, payload map[string]interface{}) {
	var actorID *uuid.UUID
	if actor != nil && actor.UserID != uuid.Nil {
		id := actor.UserID
		actorID = &id
	}

	if err := s.auditRepo.CreateLog(ctx, &domain.AuditLog{
		EventTime:   time.Now(),
		ActorUserID: actorID,
		ActorRole:   role,
		MeetingID:   &meetingID,
		EventType:   eventType,
		Payload:     payload,
	}); err != nil {
		s.log.Warn("Failed to write audit entry", "meeting_id", meetingID, "event", eventType, "error", err)
	}
}

func actorRole(p *domain.Participant) string {
	if p != nil && p.IsHost {
		return domain.ActorRoleHost
	}
	return domain.ActorRoleUser
}
