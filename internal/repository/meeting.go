package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"campus_live/internal/domain"
	apperrors "campus_live/pkg/errors"
	"campus_live/pkg/logger"
)

type MeetingRepository interface {
	Create(ctx context.Context, meeting *domain.Meeting) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Meeting, error)
	List(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]*domain.Meeting, error)
	Update(ctx context.Context, meeting *domain.Meeting) error
	CreateParticipant(ctx context.Context, participant *domain.Participant) error
	GetParticipant(ctx context.Context, meetingID, userID uuid.UUID) (*domain.Participant, error)
	GetParticipantsByMeeting(ctx context.Context, meetingID uuid.UUID) ([]*domain.Participant, error)
	GetConnectedParticipants(ctx context.Context, meetingID uuid.UUID) ([]*domain.Participant, error)
	CountConnected(ctx context.Context, meetingID uuid.UUID) (int, error)
	CountDistinctParticipants(ctx context.Context, meetingID uuid.UUID) (int, error)
	UpdateParticipant(ctx context.Context, participant *domain.Participant) error
	ListLiveMeetings(ctx context.Context) ([]*domain.Meeting, error)
}

type meetingRepository struct {
	db  *pgxpool.Pool
	log logger.Logger
}

func NewMeetingRepository(db *pgxpool.Pool, log logger.Logger) MeetingRepository {
	return &meetingRepository{db: db, log: log}
}

func (r *meetingRepository) Create(ctx context.Context, meeting *domain.Meeting) error {
	query := `
		INSERT INTO meetings (id, tenant_id, created_by_user_id, engine_room_name, title, description,
		                      status, scheduled_start_at, scheduled_end_at, max_participants, features,
		                      created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING created_at, updated_at
	`

	err := r.db.QueryRow(ctx, query,
		meeting.ID, meeting.TenantID, meeting.CreatedByUserID, meeting.EngineRoomName,
		meeting.Title, meeting.Description, meeting.Status,
		meeting.ScheduledStartAt, meeting.ScheduledEndAt, meeting.MaxParticipants, meeting.Features,
		meeting.CreatedAt, meeting.UpdatedAt,
	).Scan(&meeting.CreatedAt, &meeting.UpdatedAt)

	if err != nil {
		r.log.Error("Failed to create meeting", "error", err)
		return err
	}

	return nil
}

func (r *meetingRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Meeting, error) {
	query := `
		SELECT id, tenant_id, created_by_user_id, engine_room_name, title, description, status,
		       scheduled_start_at, scheduled_end_at, started_at, ended_at,
		       max_participants, features, created_at, updated_at
		FROM meetings
		WHERE id = $1
	`

	meeting := &domain.Meeting{}
	err := r.db.QueryRow(ctx, query, id).Scan(
		&meeting.ID, &meeting.TenantID, &meeting.CreatedByUserID, &meeting.EngineRoomName,
		&meeting.Title, &meeting.Description, &meeting.Status,
		&meeting.ScheduledStartAt, &meeting.ScheduledEndAt, &meeting.StartedAt, &meeting.EndedAt,
		&meeting.MaxParticipants, &meeting.Features, &meeting.CreatedAt, &meeting.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrMeetingNotFound
		}
		r.log.Error("Failed to get meeting by ID", "error", err)
		return nil, err
	}

	return meeting, nil
}

func (r *meetingRepository) List(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]*domain.Meeting, error) {
	query := `
		SELECT id, tenant_id, created_by_user_id, engine_room_name, title, description, status,
		       scheduled_start_at, scheduled_end_at, started_at, ended_at,
		       max_participants, features, created_at, updated_at
		FROM meetings
		WHERE tenant_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.Query(ctx, query, tenantID, limit, offset)
	if err != nil {
		r.log.Error("Failed to list meetings", "error", err)
		return nil, err
	}
	defer rows.Close()

	var meetings []*domain.Meeting
	for rows.Next() {
		meeting := &domain.Meeting{}
		err := rows.Scan(
			&meeting.ID, &meeting.TenantID, &meeting.CreatedByUserID, &meeting.EngineRoomName,
			&meeting.Title, &meeting.Description, &meeting.Status,
			&meeting.ScheduledStartAt, &meeting.ScheduledEndAt, &meeting.StartedAt, &meeting.EndedAt,
			&meeting.MaxParticipants, &meeting.Features, &meeting.CreatedAt, &meeting.UpdatedAt,
		)
		if err != nil {
			r.log.Error("Failed to scan meeting", "error", err)
			return nil, err
		}
		meetings = append(meetings, meeting)
	}

	return meetings, nil
}

func (r *meetingRepository) Update(ctx context.Context, meeting *domain.Meeting) error {
	query := `
		UPDATE meetings
		SET title = $2, description = $3, status = $4, scheduled_start_at = $5,
		    scheduled_end_at = $6, started_at = $7, ended_at = $8,
		    max_participants = $9, features = $10, updated_at = $11
		WHERE id = $1
		RETURNING updated_at
	`

	err := r.db.QueryRow(ctx, query,
		meeting.ID, meeting.Title, meeting.Description, meeting.Status,
		meeting.ScheduledStartAt, meeting.ScheduledEndAt, meeting.StartedAt, meeting.EndedAt,
		meeting.MaxParticipants, meeting.Features, time.Now(),
	).Scan(&meeting.UpdatedAt)

	if err != nil {
		r.log.Error("Failed to update meeting", "error", err)
		return err
	}

	return nil
}

func (r *meetingRepository) CreateParticipant(ctx context.Context, participant *domain.Participant) error {
	query := `
		INSERT INTO meeting_participants (id, meeting_id, user_id, display_name, connection_status,
		                                  video_enabled, audio_enabled, screen_sharing,
		                                  is_host, is_moderator, can_share_screen, can_chat, joined_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err := r.db.Exec(ctx, query,
		participant.ID, participant.MeetingID, participant.UserID, participant.DisplayName,
		participant.ConnectionStatus, participant.VideoEnabled, participant.AudioEnabled,
		participant.ScreenSharing, participant.IsHost, participant.IsModerator,
		participant.CanShareScreen, participant.CanChat, participant.JoinedAt,
	)

	if err != nil {
		r.log.Error("Failed to create participant", "error", err)
		return err
	}

	return nil
}

func (r *meetingRepository) GetParticipant(ctx context.Context, meetingID, userID uuid.UUID) (*domain.Participant, error) {
	query := `
		SELECT id, meeting_id, user_id, display_name, connection_status,
		       video_enabled, audio_enabled, screen_sharing,
		       is_host, is_moderator, can_share_screen, can_chat, joined_at, left_at, leave_reason
		FROM meeting_participants
		WHERE meeting_id = $1 AND user_id = $2
		ORDER BY joined_at DESC
		LIMIT 1
	`

	return r.scanParticipantRow(r.db.QueryRow(ctx, query, meetingID, userID))
}

func (r *meetingRepository) GetParticipantsByMeeting(ctx context.Context, meetingID uuid.UUID) ([]*domain.Participant, error) {
	query := `
		SELECT id, meeting_id, user_id, display_name, connection_status,
		       video_enabled, audio_enabled, screen_sharing,
		       is_host, is_moderator, can_share_screen, can_chat, joined_at, left_at, leave_reason
		FROM meeting_participants
		WHERE meeting_id = $1
		ORDER BY joined_at ASC
	`

	return r.queryParticipants(ctx, query, meetingID)
}

func (r *meetingRepository) GetConnectedParticipants(ctx context.Context, meetingID uuid.UUID) ([]*domain.Participant, error) {
	query := `
		SELECT id, meeting_id, user_id, display_name, connection_status,
		       video_enabled, audio_enabled, screen_sharing,
		       is_host, is_moderator, can_share_screen, can_chat, joined_at, left_at, leave_reason
		FROM meeting_participants
		WHERE meeting_id = $1 AND connection_status = 'connected'
		ORDER BY joined_at ASC
	`

	return r.queryParticipants(ctx, query, meetingID)
}

func (r *meetingRepository) CountConnected(ctx context.Context, meetingID uuid.UUID) (int, error) {
	query := `
		SELECT COUNT(*) FROM meeting_participants
		WHERE meeting_id = $1 AND connection_status = 'connected'
	`

	var count int
	if err := r.db.QueryRow(ctx, query, meetingID).Scan(&count); err != nil {
		r.log.Error("Failed to count connected participants", "error", err)
		return 0, err
	}
	return count, nil
}

func (r *meetingRepository) CountDistinctParticipants(ctx context.Context, meetingID uuid.UUID) (int, error) {
	query := `
		SELECT COUNT(DISTINCT user_id) FROM meeting_participants
		WHERE meeting_id = $1
	`

	var count int
	if err := r.db.QueryRow(ctx, query, meetingID).Scan(&count); err != nil {
		r.log.Error("Failed to count participants", "error", err)
		return 0, err
	}
	return count, nil
}

func (r *meetingRepository) UpdateParticipant(ctx context.Context, participant *domain.Participant) error {
	query := `
		UPDATE meeting_participants
		SET connection_status = $3, video_enabled = $4, audio_enabled = $5, screen_sharing = $6,
		    is_host = $7, is_moderator = $8, can_share_screen = $9, can_chat = $10,
		    left_at = $11, leave_reason = $12
		WHERE id = $1 AND meeting_id = $2
	`

	_, err := r.db.Exec(ctx, query,
		participant.ID, participant.MeetingID, participant.ConnectionStatus,
		participant.VideoEnabled, participant.AudioEnabled, participant.ScreenSharing,
		participant.IsHost, participant.IsModerator, participant.CanShareScreen, participant.CanChat,
		participant.LeftAt, participant.LeaveReason,
	)

	if err != nil {
		r.log.Error("Failed to update participant", "error", err)
		return err
	}

	return nil
}

func (r *meetingRepository) ListLiveMeetings(ctx context.Context) ([]*domain.Meeting, error) {
	query := `
		SELECT id, tenant_id, created_by_user_id, engine_room_name, title, description, status,
		       scheduled_start_at, scheduled_end_at, started_at, ended_at,
		       max_participants, features, created_at, updated_at
		FROM meetings
		WHERE status = 'live'
	`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		r.log.Error("Failed to list live meetings", "error", err)
		return nil, err
	}
	defer rows.Close()

	var meetings []*domain.Meeting
	for rows.Next() {
		meeting := &domain.Meeting{}
		err := rows.Scan(
			&meeting.ID, &meeting.TenantID, &meeting.CreatedByUserID, &meeting.EngineRoomName,
			&meeting.Title, &meeting.Description, &meeting.Status,
			&meeting.ScheduledStartAt, &meeting.ScheduledEndAt, &meeting.StartedAt, &meeting.EndedAt,
			&meeting.MaxParticipants, &meeting.Features, &meeting.CreatedAt, &meeting.UpdatedAt,
		)
		if err != nil {
			r.log.Error("Failed to scan meeting", "error", err)
			return nil, err
		}
		meetings = append(meetings, meeting)
	}

	return meetings, nil
}

func (r *meetingRepository) queryParticipants(ctx context.Context, query string, meetingID uuid.UUID) ([]*domain.Participant, error) {
	rows, err := r.db.Query(ctx, query, meetingID)
	if err != nil {
		r.log.Error("Failed to get participants", "error", err)
		return nil, err
	}
	defer rows.Close()

	var participants []*domain.Participant
	for rows.Next() {
		participant := &domain.Participant{}
		var leftAt sql.NullTime
		err := rows.Scan(
			&participant.ID, &participant.MeetingID, &participant.UserID, &participant.DisplayName,
			&participant.ConnectionStatus, &participant.VideoEnabled, &participant.AudioEnabled,
			&participant.ScreenSharing, &participant.IsHost, &participant.IsModerator,
			&participant.CanShareScreen, &participant.CanChat, &participant.JoinedAt,
			&leftAt, &participant.LeaveReason,
		)
		if err != nil {
			r.log.Error("Failed to scan participant", "error", err)
			return nil, err
		}
		if leftAt.Valid {
			participant.LeftAt = &leftAt.Time
		}
		participants = append(participants, participant)
	}

	return participants, nil
}

func (r *meetingRepository) scanParticipantRow(row pgx.Row) (*domain.Participant, error) {
	participant := &domain.Participant{}
	var leftAt sql.NullTime
	err := row.Scan(
		&participant.ID, &participant.MeetingID, &participant.UserID, &participant.DisplayName,
		&participant.ConnectionStatus, &participant.VideoEnabled, &participant.AudioEnabled,
		&participant.ScreenSharing, &participant.IsHost, &participant.IsModerator,
		&participant.CanShareScreen, &participant.CanChat, &participant.JoinedAt,
		&leftAt, &participant.LeaveReason,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrParticipantNotFound
		}
		r.log.Error("Failed to get participant", "error", err)
		return nil, err
	}

	if leftAt.Valid {
		participant.LeftAt = &leftAt.Time
	}

	return participant, nil
}
