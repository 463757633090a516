package domain

import (
	"time"

	"github.com/google/uuid"
)

type Meeting struct {
	ID               uuid.UUID              `json:"id"`
	TenantID         uuid.UUID              `json:"tenant_id"`
	CreatedByUserID  uuid.UUID              `json:"created_by_user_id"`
	EngineRoomName   string                 `json:"engine_room_name"`
	Title            string                 `json:"title"`
	Description      *string                `json:"description,omitempty"`
	Status           string                 `json:"status"`
	ScheduledStartAt *time.Time             `json:"scheduled_start_at,omitempty"`
	ScheduledEndAt   *time.Time             `json:"scheduled_end_at,omitempty"`
	StartedAt        *time.Time             `json:"started_at,omitempty"`
	EndedAt          *time.Time             `json:"ended_at,omitempty"`
	MaxParticipants  int                    `json:"max_participants"`
	Features         map[string]interface{} `json:"features"`
	CreatedAt        time.Time              `json:"created_at"`
	UpdatedAt        time.Time              `json:"updated_at"`
}

type Participant struct {
	ID               uuid.UUID  `json:"id"`
	MeetingID        uuid.UUID  `json:"meeting_id"`
	UserID           uuid.UUID  `json:"user_id"`
	DisplayName      string     `json:"display_name"`
	ConnectionStatus string     `json:"connection_status"`
	VideoEnabled     bool       `json:"video_enabled"`
	AudioEnabled     bool       `json:"audio_enabled"`
	ScreenSharing    bool       `json:"screen_sharing"`
	IsHost           bool       `json:"is_host"`
	IsModerator      bool       `json:"is_moderator"`
	CanShareScreen   bool       `json:"can_share_screen"`
	CanChat          bool       `json:"can_chat"`
	JoinedAt         time.Time  `json:"joined_at"`
	LeftAt           *time.Time `json:"left_at,omitempty"`
	LeaveReason      *string    `json:"leave_reason,omitempty"`
}

// MeetingAnalytics - итоговая статистика, считается при завершении встречи
type MeetingAnalytics struct {
	ParticipantCount int   `json:"participant_count"`
	MessageCount     int   `json:"message_count"`
	DurationSeconds  int64 `json:"duration_seconds"`
}

const (
	MeetingStatusScheduled = "scheduled"
	MeetingStatusLive      = "live"
	MeetingStatusEnded     = "ended"
	MeetingStatusCancelled = "cancelled"
)

const (
	ConnectionStatusConnected    = "connected"
	ConnectionStatusDisconnected = "disconnected"
)

// CanTransition проверяет допустимость перехода статуса встречи.
// Допустимые переходы: scheduled->live, scheduled->cancelled, live->ended.
func CanTransition(from, to string) bool {
	switch from {
	case MeetingStatusScheduled:
		return to == MeetingStatusLive || to == MeetingStatusCancelled
	case MeetingStatusLive:
		return to == MeetingStatusEnded
	default:
		return false
	}
}

// IsTerminal - из ended/cancelled переходов нет
func IsTerminalStatus(status string) bool {
	return status == MeetingStatusEnded || status == MeetingStatusCancelled
}
