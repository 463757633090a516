package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"campus_live/internal/domain"
	"campus_live/pkg/logger"
)

type AuditRepository interface {
	CreateLog(ctx context.Context, entry *domain.AuditLog) error
	ListByMeeting(ctx context.Context, meetingID uuid.UUID) ([]*domain.AuditLog, error)
}

type auditRepository struct {
	db  *pgxpool.Pool
	log logger.Logger
}

func NewAuditRepository(db *pgxpool.Pool, log logger.Logger) AuditRepository {
	return &auditRepository{db: db, log: log}
}

func (r *auditRepository) CreateLog(ctx context.Context, entry *domain.AuditLog) error {
	query := `
		INSERT INTO audit_logs (event_time, actor_user_id, actor_role, meeting_id, event_type, payload)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`

	err := r.db.QueryRow(ctx, query,
		entry.EventTime, entry.ActorUserID, entry.ActorRole,
		entry.MeetingID, entry.EventType, entry.Payload,
	).Scan(&entry.ID)

	if err != nil {
		r.log.Error("Failed to create audit log", "error", err)
		return err
	}

	return nil
}

func (r *auditRepository) ListByMeeting(ctx context.Context, meetingID uuid.UUID) ([]*domain.AuditLog, error) {
	query := `
		SELECT id, event_time, actor_user_id, actor_role, meeting_id, event_type, payload
		FROM audit_logs
		WHERE meeting_id = $1
		ORDER BY event_time ASC
	`

	rows, err := r.db.Query(ctx, query, meetingID)
	if err != nil {
		r.log.Error("Failed to list audit logs", "error", err)
		return nil, err
	}
	defer rows.Close()

	var entries []*domain.AuditLog
	for rows.Next() {
		entry := &domain.AuditLog{}
		err := rows.Scan(
			&entry.ID, &entry.EventTime, &entry.ActorUserID, &entry.ActorRole,
			&entry.MeetingID, &entry.EventType, &entry.Payload,
		)
		if err != nil {
			r.log.Error("Failed to scan audit log", "error", err)
			return nil, err
		}
		entries = append(entries, entry)
	}

	return entries, nil
}
