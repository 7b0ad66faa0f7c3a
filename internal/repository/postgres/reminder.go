package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/medassist/booking-api/internal/model"
	"github.com/medassist/booking-api/internal/repository"
)

const reminderJobColumns = `id, appointment_id, tag, due_at, status, attempts, last_error, created_at, updated_at`

type reminderRepository struct {
	*BaseRepository
}

func NewReminderRepository(base *BaseRepository) repository.ReminderRepository {
	return &reminderRepository{BaseRepository: base}
}

func (r *reminderRepository) Claim(ctx context.Context, tx *sqlx.Tx, appointmentID uuid.UUID, tag model.ReminderTag, sentAt time.Time) (bool, error) {
	query := `
		INSERT INTO appointment_reminders (id, appointment_id, hours_before, sent_at, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (appointment_id, hours_before) DO NOTHING
	`
	res, err := r.ext(tx).ExecContext(ctx, query, uuid.New(), appointmentID, tag, sentAt)
	if err != nil {
		return false, fmt.Errorf("failed to record reminder: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to record reminder: %w", err)
	}
	return n == 1, nil
}

func (r *reminderRepository) ListByAppointment(ctx context.Context, appointmentID uuid.UUID) ([]*model.AppointmentReminder, error) {
	query := `
		SELECT id, appointment_id, hours_before, sent_at, created_at
		FROM appointment_reminders
		WHERE appointment_id = $1
		ORDER BY sent_at
	`
	var reminders []*model.AppointmentReminder
	if err := r.db.SelectContext(ctx, &reminders, query, appointmentID); err != nil {
		return nil, fmt.Errorf("failed to list reminders: %w", err)
	}
	return reminders, nil
}

func (r *reminderRepository) EnqueueJobs(ctx context.Context, tx *sqlx.Tx, jobs []*model.ReminderJob) error {
	query := `
		INSERT INTO reminder_jobs (id, appointment_id, tag, due_at, status, attempts, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 0, NOW(), NOW())
		ON CONFLICT (appointment_id, tag) DO NOTHING
	`
	q := r.ext(tx)
	for _, job := range jobs {
		if _, err := q.ExecContext(ctx, query, job.ID, job.AppointmentID, job.Tag, job.DueAt, job.Status); err != nil {
			return fmt.Errorf("failed to enqueue reminder job: %w", err)
		}
	}
	return nil
}

func (r *reminderRepository) DueJobs(ctx context.Context, tx *sqlx.Tx, now time.Time, limit int) ([]*model.ReminderJob, error) {
	query := `SELECT ` + reminderJobColumns + `
		FROM reminder_jobs
		WHERE status = 'pending' AND due_at <= $1
		ORDER BY due_at
		LIMIT $2
		FOR UPDATE SKIP LOCKED`

	var jobs []*model.ReminderJob
	if err := sqlx.SelectContext(ctx, r.ext(tx), &jobs, query, now, limit); err != nil {
		return nil, fmt.Errorf("failed to get due reminder jobs: %w", err)
	}
	return jobs, nil
}

func (r *reminderRepository) UpdateJob(ctx context.Context, tx *sqlx.Tx, job *model.ReminderJob) error {
	query := `
		UPDATE reminder_jobs
		SET status = $2, attempts = $3, last_error = $4, due_at = $5, updated_at = NOW()
		WHERE id = $1
	`
	if _, err := r.ext(tx).ExecContext(ctx, query,
		job.ID, job.Status, job.Attempts, job.LastError, job.DueAt,
	); err != nil {
		return fmt.Errorf("failed to update reminder job: %w", err)
	}
	return nil
}
