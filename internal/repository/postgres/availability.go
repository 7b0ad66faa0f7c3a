package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/medassist/booking-api/internal/model"
	"github.com/medassist/booking-api/internal/repository"
)

const availabilityColumns = `id, doctor_id, date, start_time, end_time, is_booked, created_at, updated_at`

type availabilityRepository struct {
	*BaseRepository
}

func NewAvailabilityRepository(base *BaseRepository) repository.AvailabilityRepository {
	return &availabilityRepository{BaseRepository: base}
}

func (r *availabilityRepository) ReplaceForDate(ctx context.Context, tx *sqlx.Tx, doctorID uuid.UUID, date model.Date, slots []*model.Availability) error {
	q := r.ext(tx)

	if _, err := q.ExecContext(ctx,
		`DELETE FROM availabilities WHERE doctor_id = $1 AND date = $2`,
		doctorID, date,
	); err != nil {
		return fmt.Errorf("failed to clear availability: %w", err)
	}

	query := `
		INSERT INTO availabilities (id, doctor_id, date, start_time, end_time, is_booked, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, false, NOW(), NOW())
		RETURNING created_at, updated_at
	`
	for _, slot := range slots {
		if err := q.QueryRowxContext(ctx, query,
			slot.ID, doctorID, date, slot.StartTime, slot.EndTime,
		).Scan(&slot.CreatedAt, &slot.UpdatedAt); err != nil {
			return fmt.Errorf("failed to insert availability: %w", mapError(err))
		}
	}
	return nil
}

func (r *availabilityRepository) GetForUpdate(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*model.Availability, error) {
	var slot model.Availability
	query := `SELECT ` + availabilityColumns + ` FROM availabilities WHERE id = $1 FOR UPDATE`
	if err := sqlx.GetContext(ctx, r.ext(tx), &slot, query, id); err != nil {
		return nil, fmt.Errorf("failed to get availability: %w", mapError(err))
	}
	return &slot, nil
}

func (r *availabilityRepository) MarkBooked(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (bool, error) {
	res, err := r.ext(tx).ExecContext(ctx,
		`UPDATE availabilities SET is_booked = true, updated_at = NOW() WHERE id = $1 AND is_booked = false`,
		id,
	)
	if err != nil {
		return false, fmt.Errorf("failed to book availability: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to book availability: %w", err)
	}
	return n == 1, nil
}

func (r *availabilityRepository) Release(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) error {
	if _, err := r.ext(tx).ExecContext(ctx,
		`UPDATE availabilities SET is_booked = false, updated_at = NOW() WHERE id = $1`,
		id,
	); err != nil {
		return fmt.Errorf("failed to release availability: %w", err)
	}
	return nil
}

func (r *availabilityRepository) UpdateTimes(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, start, end model.TimeOfDay) error {
	if _, err := r.ext(tx).ExecContext(ctx,
		`UPDATE availabilities SET start_time = $2, end_time = $3, updated_at = NOW() WHERE id = $1`,
		id, start, end,
	); err != nil {
		return fmt.Errorf("failed to update availability times: %w", err)
	}
	return nil
}

func (r *availabilityRepository) ListByDoctorAndDate(ctx context.Context, doctorID uuid.UUID, date model.Date) ([]*model.Availability, error) {
	var slots []*model.Availability
	query := `SELECT ` + availabilityColumns + ` FROM availabilities WHERE doctor_id = $1 AND date = $2 ORDER BY start_time`
	if err := r.db.SelectContext(ctx, &slots, query, doctorID, date); err != nil {
		return nil, fmt.Errorf("failed to list availability: %w", err)
	}
	return slots, nil
}

func (r *availabilityRepository) ListFreeByDate(ctx context.Context, date model.Date) ([]*model.Availability, error) {
	var slots []*model.Availability
	query := `SELECT ` + availabilityColumns + ` FROM availabilities WHERE date = $1 AND is_booked = false ORDER BY doctor_id, start_time`
	if err := r.db.SelectContext(ctx, &slots, query, date); err != nil {
		return nil, fmt.Errorf("failed to list free availability: %w", err)
	}
	return slots, nil
}
