package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/medassist/booking-api/internal/model"
	"github.com/medassist/booking-api/internal/repository"
)

type notificationRepository struct {
	*BaseRepository
}

func NewNotificationRepository(base *BaseRepository) repository.NotificationRepository {
	return &notificationRepository{
		BaseRepository: base,
	}
}

func (r *notificationRepository) Create(ctx context.Context, n *model.Notification) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	query := `
		INSERT INTO notifications (
			id, recipient_id, recipient, kind, payload, subject, body, status, last_error, created_at, sent_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), $10)
		RETURNING created_at
	`
	err := r.db.QueryRowxContext(ctx, query,
		n.ID, n.RecipientID, n.Recipient, n.Kind, n.Payload, n.Subject, n.Body, n.Status, n.LastError, n.SentAt,
	).Scan(&n.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to record notification: %w", err)
	}
	return nil
}
