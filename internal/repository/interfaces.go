package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/medassist/booking-api/internal/model"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("duplicate record")
)

// Transactor runs fn inside one database transaction. Methods below that take
// a tx run on it when it is non-nil and on the pool otherwise.
type Transactor interface {
	WithTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error
}

// All repository interfaces in one file
type (
	AvailabilityRepository interface {
		// ReplaceForDate deletes every slot of the doctor on date and inserts slots.
		ReplaceForDate(ctx context.Context, tx *sqlx.Tx, doctorID uuid.UUID, date model.Date, slots []*model.Availability) error
		GetForUpdate(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*model.Availability, error)
		// MarkBooked flips is_booked from false to true and reports whether it did.
		MarkBooked(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (bool, error)
		Release(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) error
		UpdateTimes(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, start, end model.TimeOfDay) error
		ListByDoctorAndDate(ctx context.Context, doctorID uuid.UUID, date model.Date) ([]*model.Availability, error)
		ListFreeByDate(ctx context.Context, date model.Date) ([]*model.Availability, error)
	}

	AppointmentRepository interface {
		Create(ctx context.Context, tx *sqlx.Tx, appointment *model.Appointment) error
		Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error)
		GetForUpdate(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*model.Appointment, error)
		GetForDoctorForUpdate(ctx context.Context, tx *sqlx.Tx, id, doctorID uuid.UUID) (*model.Appointment, error)
		Update(ctx context.Context, tx *sqlx.Tx, appointment *model.Appointment) error
		List(ctx context.Context, filter model.AppointmentFilter, page model.Pagination) ([]*model.Appointment, int, error)
		// LockDoctorSchedule blocks other accepts for the doctor on date
		// until tx ends.
		LockDoctorSchedule(ctx context.Context, tx *sqlx.Tx, doctorID uuid.UUID, date model.Date) error
		// HasScheduledOverlap reports another scheduled appointment of the
		// doctor on date whose range intersects [start, end).
		HasScheduledOverlap(ctx context.Context, tx *sqlx.Tx, doctorID uuid.UUID, date model.Date, start, end model.TimeOfDay, excludeID uuid.UUID) (bool, error)
		// ListStartingBetween returns scheduled appointments starting in
		// [from, to] with no ledger row for tag.
		ListStartingBetween(ctx context.Context, tag model.ReminderTag, from, to time.Time) ([]*model.Appointment, error)
		// ListUpdatedBetween returns scheduled appointments last updated in
		// [from, to] with no ledger row for tag.
		ListUpdatedBetween(ctx context.Context, tag model.ReminderTag, from, to time.Time) ([]*model.Appointment, error)
	}

	ReminderRepository interface {
		// Claim inserts the ledger row and reports false if it already existed.
		Claim(ctx context.Context, tx *sqlx.Tx, appointmentID uuid.UUID, tag model.ReminderTag, sentAt time.Time) (bool, error)
		ListByAppointment(ctx context.Context, appointmentID uuid.UUID) ([]*model.AppointmentReminder, error)
		EnqueueJobs(ctx context.Context, tx *sqlx.Tx, jobs []*model.ReminderJob) error
		// DueJobs locks up to limit pending jobs due at or before now, skipping
		// rows locked by another consumer.
		DueJobs(ctx context.Context, tx *sqlx.Tx, now time.Time, limit int) ([]*model.ReminderJob, error)
		UpdateJob(ctx context.Context, tx *sqlx.Tx, job *model.ReminderJob) error
	}

	OutboxRepository interface {
		Create(ctx context.Context, tx *sqlx.Tx, event *model.OutboxEvent) error
		GetPendingEventsWithLock(ctx context.Context, tx *sqlx.Tx, limit int) ([]*model.OutboxEvent, error)
		UpdateStatus(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, status model.OutboxStatus, errorMessage *string, retryAt *time.Time) error
		DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error)
	}

	NotificationRepository interface {
		Create(ctx context.Context, notification *model.Notification) error
	}

	UserRepository interface {
		GetByID(ctx context.Context, id uuid.UUID) (*model.User, error)
		GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*model.User, error)
	}
)
