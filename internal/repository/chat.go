package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"campus_live/internal/domain"
	apperrors "campus_live/pkg/errors"
	"campus_live/pkg/logger"
)

type ChatRepository interface {
	Create(ctx context.Context, message *domain.ChatMessage) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.ChatMessage, error)
	ListByRoom(ctx context.Context, roomID uuid.UUID, limit int) ([]*domain.ChatMessage, error)
	MarkEdited(ctx context.Context, id uuid.UUID, body string) error
	SoftDelete(ctx context.Context, id uuid.UUID, deletedBy uuid.UUID) error
	CountByRoom(ctx context.Context, roomID uuid.UUID) (int, error)
	AddReaction(ctx context.Context, reaction *domain.MessageReaction) error
}

type chatRepository struct {
	db  *pgxpool.Pool
	log logger.Logger
}

func NewChatRepository(db *pgxpool.Pool, log logger.Logger) ChatRepository {
	return &chatRepository{db: db, log: log}
}

func (r *chatRepository) Create(ctx context.Context, message *domain.ChatMessage) error {
	query := `
		INSERT INTO chat_messages (id, room_id, sender_user_id, sender_name, body,
		                           scope_kind, recipient_user_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.db.Exec(ctx, query,
		message.ID, message.RoomID, message.SenderUserID, message.SenderName,
		message.Body, message.ScopeKind, message.RecipientUserID, message.CreatedAt,
	)

	if err != nil {
		r.log.Error("Failed to create chat message", "error", err)
		return err
	}

	return nil
}

func (r *chatRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.ChatMessage, error) {
	query := `
		SELECT id, room_id, sender_user_id, sender_name, body, scope_kind, recipient_user_id,
		       created_at, edited_at, deleted_at, deleted_by_user_id
		FROM chat_messages
		WHERE id = $1
	`

	message := &domain.ChatMessage{}
	err := r.db.QueryRow(ctx, query, id).Scan(
		&message.ID, &message.RoomID, &message.SenderUserID, &message.SenderName,
		&message.Body, &message.ScopeKind, &message.RecipientUserID,
		&message.CreatedAt, &message.EditedAt, &message.DeletedAt, &message.DeletedByUserID,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrMessageNotFound
		}
		r.log.Error("Failed to get chat message", "error", err)
		return nil, err
	}

	return message, nil
}

func (r *chatRepository) ListByRoom(ctx context.Context, roomID uuid.UUID, limit int) ([]*domain.ChatMessage, error) {
	query := `
		SELECT id, room_id, sender_user_id, sender_name, body, scope_kind, recipient_user_id,
		       created_at, edited_at, deleted_at, deleted_by_user_id
		FROM chat_messages
		WHERE room_id = $1 AND deleted_at IS NULL
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.db.Query(ctx, query, roomID, limit)
	if err != nil {
		r.log.Error("Failed to list chat messages", "error", err)
		return nil, err
	}
	defer rows.Close()

	var messages []*domain.ChatMessage
	for rows.Next() {
		message := &domain.ChatMessage{}
		err := rows.Scan(
			&message.ID, &message.RoomID, &message.SenderUserID, &message.SenderName,
			&message.Body, &message.ScopeKind, &message.RecipientUserID,
			&message.CreatedAt, &message.EditedAt, &message.DeletedAt, &message.DeletedByUserID,
		)
		if err != nil {
			r.log.Error("Failed to scan chat message", "error", err)
			return nil, err
		}
		messages = append(messages, message)
	}

	// От старых к новым
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, nil
}

func (r *chatRepository) MarkEdited(ctx context.Context, id uuid.UUID, body string) error {
	query := `
		UPDATE chat_messages
		SET body = $2, edited_at = $3
		WHERE id = $1 AND deleted_at IS NULL
	`

	tag, err := r.db.Exec(ctx, query, id, body, time.Now())
	if err != nil {
		r.log.Error("Failed to edit chat message", "error", err)
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrMessageNotFound
	}

	return nil
}

func (r *chatRepository) SoftDelete(ctx context.Context, id uuid.UUID, deletedBy uuid.UUID) error {
	query := `
		UPDATE chat_messages
		SET deleted_at = $2, deleted_by_user_id = $3
		WHERE id = $1 AND deleted_at IS NULL
	`

	tag, err := r.db.Exec(ctx, query, id, time.Now(), deletedBy)
	if err != nil {
		r.log.Error("Failed to delete chat message", "error", err)
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrMessageNotFound
	}

	return nil
}

func (r *chatRepository) CountByRoom(ctx context.Context, roomID uuid.UUID) (int, error) {
	query := `SELECT COUNT(*) FROM chat_messages WHERE room_id = $1`

	var count int
	if err := r.db.QueryRow(ctx, query, roomID).Scan(&count); err != nil {
		r.log.Error("Failed to count chat messages", "error", err)
		return 0, err
	}
	return count, nil
}

func (r *chatRepository) AddReaction(ctx context.Context, reaction *domain.MessageReaction) error {
	query := `
		INSERT INTO message_reactions (message_id, user_id, emoji, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (message_id, user_id, emoji) DO NOTHING
	`

	_, err := r.db.Exec(ctx, query,
		reaction.MessageID, reaction.UserID, reaction.Emoji, reaction.CreatedAt,
	)

	if err != nil {
		r.log.Error("Failed to add reaction", "error", err)
		return err
	}

	return nil
}
