package domain

import (
	"time"

	"github.com/google/uuid"
)

type ChatMessage struct {
	ID              uuid.UUID  `json:"id"`
	RoomID          uuid.UUID  `json:"room_id"`
	SenderUserID    uuid.UUID  `json:"sender_user_id"`
	SenderName      string     `json:"sender_name"`
	Body            string     `json:"body"`
	ScopeKind       string     `json:"scope_kind"`
	RecipientUserID *uuid.UUID `json:"recipient_user_id,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	EditedAt        *time.Time `json:"edited_at,omitempty"`
	DeletedAt       *time.Time `json:"deleted_at,omitempty"`
	DeletedByUserID *uuid.UUID `json:"deleted_by_user_id,omitempty"`
}

type MessageReaction struct {
	MessageID uuid.UUID `json:"message_id"`
	UserID    uuid.UUID `json:"user_id"`
	Emoji     string    `json:"emoji"`
	CreatedAt time.Time `json:"created_at"`
}

// Scope - адресация сообщения: всем, лично или группе ведущих
type Scope struct {
	Kind string     `json:"kind"`
	To   *uuid.UUID `json:"to,omitempty"`
}

const (
	ScopeAll     = "all"
	ScopePrivate = "private"
	ScopeHost    = "host"
)

func (s Scope) Valid() bool {
	switch s.Kind {
	case ScopeAll, ScopeHost:
		return s.To == nil
	case ScopePrivate:
		return s.To != nil
	default:
		return false
	}
}
