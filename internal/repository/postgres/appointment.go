package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/medassist/booking-api/internal/model"
	"github.com/medassist/booking-api/internal/repository"
)

const appointmentColumns = `id, doctor_id, patient_id, availability_id, appointment_date, start_time, end_time,
	request_status, appointment_status, notes, responded_at, created_at, updated_at, deleted_at`

// wall clock format compared against appointment_date + start_time
const timestampLayout = "2006-01-02 15:04:05"

type appointmentRepository struct {
	*BaseRepository
}

func NewAppointmentRepository(base *BaseRepository) repository.AppointmentRepository {
	return &appointmentRepository{BaseRepository: base}
}

func (r *appointmentRepository) Create(ctx context.Context, tx *sqlx.Tx, a *model.Appointment) error {
	query := `
		INSERT INTO appointments (
			id, doctor_id, patient_id, availability_id, appointment_date, start_time, end_time,
			request_status, appointment_status, notes, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), NOW())
		RETURNING created_at, updated_at
	`
	err := r.ext(tx).QueryRowxContext(ctx, query,
		a.ID, a.DoctorID, a.PatientID, a.AvailabilityID, a.Date, a.StartTime, a.EndTime,
		a.RequestStatus, a.AppointmentStatus, a.Notes,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create appointment: %w", mapError(err))
	}
	return nil
}

func (r *appointmentRepository) Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	var a model.Appointment
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE id = $1 AND deleted_at IS NULL`
	if err := r.db.GetContext(ctx, &a, query, id); err != nil {
		return nil, fmt.Errorf("failed to get appointment: %w", mapError(err))
	}
	return &a, nil
}

func (r *appointmentRepository) GetForUpdate(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*model.Appointment, error) {
	var a model.Appointment
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE id = $1 AND deleted_at IS NULL FOR UPDATE`
	if err := sqlx.GetContext(ctx, r.ext(tx), &a, query, id); err != nil {
		return nil, fmt.Errorf("failed to get appointment: %w", mapError(err))
	}
	return &a, nil
}

func (r *appointmentRepository) GetForDoctorForUpdate(ctx context.Context, tx *sqlx.Tx, id, doctorID uuid.UUID) (*model.Appointment, error) {
	var a model.Appointment
	query := `SELECT ` + appointmentColumns + `
		FROM appointments
		WHERE id = $1 AND doctor_id = $2 AND deleted_at IS NULL
		FOR UPDATE`
	if err := sqlx.GetContext(ctx, r.ext(tx), &a, query, id, doctorID); err != nil {
		return nil, fmt.Errorf("failed to get appointment: %w", mapError(err))
	}
	return &a, nil
}

func (r *appointmentRepository) Update(ctx context.Context, tx *sqlx.Tx, a *model.Appointment) error {
	query := `
		UPDATE appointments
		SET start_time = $2,
			end_time = $3,
			request_status = $4,
			appointment_status = $5,
			notes = $6,
			responded_at = $7,
			updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
		RETURNING updated_at
	`
	err := r.ext(tx).QueryRowxContext(ctx, query,
		a.ID, a.StartTime, a.EndTime, a.RequestStatus, a.AppointmentStatus, a.Notes, a.RespondedAt,
	).Scan(&a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update appointment: %w", mapError(err))
	}
	return nil
}

func (r *appointmentRepository) List(ctx context.Context, filter model.AppointmentFilter, page model.Pagination) ([]*model.Appointment, int, error) {
	page = page.Normalize()

	where := []string{"deleted_at IS NULL"}
	var args []interface{}
	add := func(cond string, arg interface{}) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if filter.DoctorID != nil {
		add("doctor_id = $%d", *filter.DoctorID)
	}
	if filter.PatientID != nil {
		add("patient_id = $%d", *filter.PatientID)
	}
	if filter.RequestStatus != nil {
		add("request_status = $%d", *filter.RequestStatus)
	}
	if filter.Date != nil {
		add("appointment_date = $%d", *filter.Date)
	}
	clause := strings.Join(where, " AND ")

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM appointments WHERE `+clause, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count appointments: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM appointments WHERE %s
		ORDER BY appointment_date DESC, start_time DESC
		LIMIT $%d OFFSET $%d`, appointmentColumns, clause, len(args)+1, len(args)+2)
	args = append(args, page.PageSize, page.Offset())

	var appointments []*model.Appointment
	if err := r.db.SelectContext(ctx, &appointments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list appointments: %w", err)
	}
	return appointments, total, nil
}

func (r *appointmentRepository) LockDoctorSchedule(ctx context.Context, tx *sqlx.Tx, doctorID uuid.UUID, date model.Date) error {
	query := `SELECT pg_advisory_xact_lock(hashtext($1 || ':' || $2))`
	if _, err := r.ext(tx).ExecContext(ctx, query, doctorID.String(), date.String()); err != nil {
		return fmt.Errorf("failed to lock doctor schedule: %w", err)
	}
	return nil
}

func (r *appointmentRepository) HasScheduledOverlap(ctx context.Context, tx *sqlx.Tx, doctorID uuid.UUID, date model.Date, start, end model.TimeOfDay, excludeID uuid.UUID) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM appointments
			WHERE doctor_id = $1
				AND appointment_date = $2
				AND id <> $3
				AND request_status = 'accepted'
				AND appointment_status = 'scheduled'
				AND deleted_at IS NULL
				AND start_time < $5
				AND end_time > $4
		)
	`
	var exists bool
	if err := sqlx.GetContext(ctx, r.ext(tx), &exists, query, doctorID, date, excludeID, start, end); err != nil {
		return false, fmt.Errorf("failed to check schedule overlap: %w", err)
	}
	return exists, nil
}

func (r *appointmentRepository) ListStartingBetween(ctx context.Context, tag model.ReminderTag, from, to time.Time) ([]*model.Appointment, error) {
	query := `SELECT ` + appointmentColumns + `
		FROM appointments
		WHERE request_status = 'accepted'
			AND appointment_status = 'scheduled'
			AND deleted_at IS NULL
			AND (appointment_date + start_time) BETWEEN $2::timestamp AND $3::timestamp
			AND NOT EXISTS (
				SELECT 1 FROM appointment_reminders r
				WHERE r.appointment_id = appointments.id AND r.hours_before = $1
			)
		ORDER BY appointment_date, start_time`

	var appointments []*model.Appointment
	if err := r.db.SelectContext(ctx, &appointments, query,
		tag, from.Format(timestampLayout), to.Format(timestampLayout),
	); err != nil {
		return nil, fmt.Errorf("failed to list appointments due for reminder: %w", err)
	}
	return appointments, nil
}

func (r *appointmentRepository) ListUpdatedBetween(ctx context.Context, tag model.ReminderTag, from, to time.Time) ([]*model.Appointment, error) {
	query := `SELECT ` + appointmentColumns + `
		FROM appointments
		WHERE request_status = 'accepted'
			AND appointment_status = 'scheduled'
			AND deleted_at IS NULL
			AND updated_at BETWEEN $2 AND $3
			AND NOT EXISTS (
				SELECT 1 FROM appointment_reminders r
				WHERE r.appointment_id = appointments.id AND r.hours_before = $1
			)
		ORDER BY updated_at`

	var appointments []*model.Appointment
	if err := r.db.SelectContext(ctx, &appointments, query, tag, from, to); err != nil {
		return nil, fmt.Errorf("failed to list recently accepted appointments: %w", err)
	}
	return appointments, nil
}
