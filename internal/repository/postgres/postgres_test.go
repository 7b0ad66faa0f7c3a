package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medassist/booking-api/internal/model"
	"github.com/medassist/booking-api/internal/repository"
)

func newMock(t *testing.T) (*BaseRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewBaseRepository(sqlx.NewDb(db, "postgres")), mock
}

var (
	ctx      = context.Background()
	ts       = time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)
	slotDate = model.NewDate(2025, 5, 1)
)

func appointmentRows(a *model.Appointment) *sqlmock.Rows {
	var status interface{}
	if a.AppointmentStatus != nil {
		status = string(*a.AppointmentStatus)
	}
	var availabilityID interface{}
	if a.AvailabilityID != nil {
		availabilityID = a.AvailabilityID.String()
	}
	return sqlmock.NewRows([]string{
		"id", "doctor_id", "patient_id", "availability_id", "appointment_date", "start_time", "end_time",
		"request_status", "appointment_status", "notes", "responded_at", "created_at", "updated_at", "deleted_at",
	}).AddRow(
		a.ID.String(), a.DoctorID.String(), a.PatientID.String(), availabilityID, ts, "10:00:00", "10:30:00",
		string(a.RequestStatus), status, a.Notes, nil, ts, ts, nil,
	)
}

func TestWithTxCommitsAndRollsBack(t *testing.T) {
	base, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectCommit()
	require.NoError(t, base.WithTx(ctx, func(tx *sqlx.Tx) error { return nil }))

	mock.ExpectBegin()
	mock.ExpectRollback()
	boom := errors.New("boom")
	assert.ErrorIs(t, base.WithTx(ctx, func(tx *sqlx.Tx) error { return boom }), boom)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReplaceForDate(t *testing.T) {
	base, mock := newMock(t)
	repo := NewAvailabilityRepository(base)
	doctorID := uuid.New()
	slots := []*model.Availability{
		{Base: model.Base{ID: uuid.New()}, StartTime: model.NewTimeOfDay(9, 0), EndTime: model.NewTimeOfDay(9, 30)},
		{Base: model.Base{ID: uuid.New()}, StartTime: model.NewTimeOfDay(9, 30), EndTime: model.NewTimeOfDay(10, 0)},
	}

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM availabilities WHERE doctor_id = $1 AND date = $2`)).
		WithArgs(doctorID, "2025-05-01").
		WillReturnResult(sqlmock.NewResult(0, 3))
	for _, s := range slots {
		mock.ExpectQuery(`INSERT INTO availabilities`).
			WithArgs(s.ID, doctorID, "2025-05-01", s.StartTime.String()+":00", s.EndTime.String()+":00").
			WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(ts, ts))
	}

	require.NoError(t, repo.ReplaceForDate(ctx, nil, doctorID, slotDate, slots))
	assert.Equal(t, ts, slots[1].CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetForUpdateNotFound(t *testing.T) {
	base, mock := newMock(t)
	repo := NewAvailabilityRepository(base)
	id := uuid.New()

	mock.ExpectQuery(`SELECT .* FROM availabilities WHERE id = \$1 FOR UPDATE`).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.GetForUpdate(ctx, nil, id)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestGetForUpdateScansSlot(t *testing.T) {
	base, mock := newMock(t)
	repo := NewAvailabilityRepository(base)
	id, doctorID := uuid.New(), uuid.New()

	mock.ExpectQuery(`FROM availabilities WHERE id = \$1 FOR UPDATE`).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"id", "doctor_id", "date", "start_time", "end_time", "is_booked", "created_at", "updated_at"}).
			AddRow(id.String(), doctorID.String(), ts, "09:00:00", "09:30:00", false, ts, ts))

	slot, err := repo.GetForUpdate(ctx, nil, id)
	require.NoError(t, err)
	assert.Equal(t, doctorID, slot.DoctorID)
	assert.Equal(t, model.NewTimeOfDay(9, 0), slot.StartTime)
	assert.Equal(t, "2025-05-01", slot.Date.String())
	assert.False(t, slot.IsBooked)
}

func TestMarkBookedCompareAndSwap(t *testing.T) {
	base, mock := newMock(t)
	repo := NewAvailabilityRepository(base)
	id := uuid.New()
	query := regexp.QuoteMeta(`UPDATE availabilities SET is_booked = true, updated_at = NOW() WHERE id = $1 AND is_booked = false`)

	mock.ExpectExec(query).WithArgs(id).WillReturnResult(sqlmock.NewResult(0, 1))
	ok, err := repo.MarkBooked(ctx, nil, id)
	require.NoError(t, err)
	assert.True(t, ok)

	mock.ExpectExec(query).WithArgs(id).WillReturnResult(sqlmock.NewResult(0, 0))
	ok, err = repo.MarkBooked(ctx, nil, id)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCreateAppointmentMapsUniqueViolation(t *testing.T) {
	base, mock := newMock(t)
	repo := NewAppointmentRepository(base)
	slot := &model.Availability{Base: model.Base{ID: uuid.New()}, DoctorID: uuid.New(), Date: slotDate,
		StartTime: model.NewTimeOfDay(10, 0), EndTime: model.NewTimeOfDay(10, 30)}
	a := model.NewPendingAppointment(slot, uuid.New(), "")

	mock.ExpectQuery(`INSERT INTO appointments`).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "uq_appointments_active_slot"})

	err := repo.Create(ctx, nil, a)
	assert.ErrorIs(t, err, repository.ErrDuplicate)
}

func TestGetForDoctorForUpdate(t *testing.T) {
	base, mock := newMock(t)
	repo := NewAppointmentRepository(base)
	slot := &model.Availability{Base: model.Base{ID: uuid.New()}, DoctorID: uuid.New(), Date: slotDate}
	a := model.NewPendingAppointment(slot, uuid.New(), "note")

	mock.ExpectQuery(`WHERE id = \$1 AND doctor_id = \$2 AND deleted_at IS NULL\s+FOR UPDATE`).
		WithArgs(a.ID, a.DoctorID).
		WillReturnRows(appointmentRows(a))

	got, err := repo.GetForDoctorForUpdate(ctx, nil, a.ID, a.DoctorID)
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)
	assert.Equal(t, model.RequestStatusPending, got.RequestStatus)
	assert.Nil(t, got.AppointmentStatus)
	require.NotNil(t, got.AvailabilityID)
	assert.Equal(t, slot.ID, *got.AvailabilityID)
}

func TestUpdateAppointmentNotFound(t *testing.T) {
	base, mock := newMock(t)
	repo := NewAppointmentRepository(base)
	a := &model.Appointment{Base: model.Base{ID: uuid.New()}, RequestStatus: model.RequestStatusPending}

	mock.ExpectQuery(`UPDATE appointments`).WillReturnRows(sqlmock.NewRows([]string{"updated_at"}))

	assert.ErrorIs(t, repo.Update(ctx, nil, a), repository.ErrNotFound)
}

func TestListAppointmentsBuildsFilter(t *testing.T) {
	base, mock := newMock(t)
	repo := NewAppointmentRepository(base)
	doctorID := uuid.New()
	pending := model.RequestStatusPending

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM appointments WHERE deleted_at IS NULL AND doctor_id = $1 AND request_status = $2`)).
		WithArgs(doctorID, "pending").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	a := &model.Appointment{Base: model.Base{ID: uuid.New()}, DoctorID: doctorID, PatientID: uuid.New(), RequestStatus: pending}
	mock.ExpectQuery(`LIMIT \$3 OFFSET \$4`).
		WithArgs(doctorID, "pending", 20, 0).
		WillReturnRows(appointmentRows(a))

	list, total, err := repo.List(ctx, model.AppointmentFilter{DoctorID: &doctorID, RequestStatus: &pending}, model.Pagination{})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Len(t, list, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListStartingBetweenUsesWallClock(t *testing.T) {
	base, mock := newMock(t)
	repo := NewAppointmentRepository(base)
	from := time.Date(2025, 5, 1, 12, 55, 0, 0, time.UTC)
	to := from.Add(10 * time.Minute)

	mock.ExpectQuery(`\(appointment_date \+ start_time\) BETWEEN \$2::timestamp AND \$3::timestamp`).
		WithArgs("3", "2025-05-01 12:55:00", "2025-05-01 13:05:00").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	list, err := repo.ListStartingBetween(ctx, model.ReminderTag3h, from, to)
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHasScheduledOverlap(t *testing.T) {
	base, mock := newMock(t)
	repo := NewAppointmentRepository(base)
	doctorID, self := uuid.New(), uuid.New()

	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs(doctorID, "2025-05-01", self, "09:00:00", "09:30:00").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	overlap, err := repo.HasScheduledOverlap(ctx, nil, doctorID, slotDate, model.NewTimeOfDay(9, 0), model.NewTimeOfDay(9, 30), self)
	require.NoError(t, err)
	assert.True(t, overlap)
}

func TestLockDoctorScheduleRunsBeforeOverlapCheck(t *testing.T) {
	base, mock := newMock(t)
	repo := NewAppointmentRepository(base)
	doctorID, self := uuid.New(), uuid.New()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`SELECT pg_advisory_xact_lock(hashtext($1 || ':' || $2))`)).
		WithArgs(doctorID.String(), "2025-05-01").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs(doctorID, "2025-05-01", self, "09:00:00", "09:30:00").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectCommit()

	err := base.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := repo.LockDoctorSchedule(ctx, tx, doctorID, slotDate); err != nil {
			return err
		}
		overlap, err := repo.HasScheduledOverlap(ctx, tx, doctorID, slotDate, model.NewTimeOfDay(9, 0), model.NewTimeOfDay(9, 30), self)
		assert.False(t, overlap)
		return err
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimReminder(t *testing.T) {
	base, mock := newMock(t)
	repo := NewReminderRepository(base)
	appointmentID := uuid.New()

	mock.ExpectExec(`ON CONFLICT \(appointment_id, hours_before\) DO NOTHING`).
		WithArgs(sqlmock.AnyArg(), appointmentID, "3", ts).
		WillReturnResult(sqlmock.NewResult(0, 1))
	claimed, err := repo.Claim(ctx, nil, appointmentID, model.ReminderTag3h, ts)
	require.NoError(t, err)
	assert.True(t, claimed)

	mock.ExpectExec(`INSERT INTO appointment_reminders`).
		WithArgs(sqlmock.AnyArg(), appointmentID, "3", ts).
		WillReturnResult(sqlmock.NewResult(0, 0))
	claimed, err = repo.Claim(ctx, nil, appointmentID, model.ReminderTag3h, ts)
	require.NoError(t, err)
	assert.False(t, claimed)
}

func TestDueJobsSkipsLocked(t *testing.T) {
	base, mock := newMock(t)
	repo := NewReminderRepository(base)
	jobID, appointmentID := uuid.New(), uuid.New()

	mock.ExpectQuery(`FOR UPDATE SKIP LOCKED`).
		WithArgs(ts, 50).
		WillReturnRows(sqlmock.NewRows([]string{"id", "appointment_id", "tag", "due_at", "status", "attempts", "last_error", "created_at", "updated_at"}).
			AddRow(jobID.String(), appointmentID.String(), "12", ts, "pending", 0, nil, ts, ts))

	jobs, err := repo.DueJobs(ctx, nil, ts, 50)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, model.ReminderTag12h, jobs[0].Tag)
	assert.Equal(t, model.ReminderJobPending, jobs[0].Status)
}

func TestEnqueueJobsIgnoresDuplicates(t *testing.T) {
	base, mock := newMock(t)
	repo := NewReminderRepository(base)
	job := &model.ReminderJob{Base: model.Base{ID: uuid.New()}, AppointmentID: uuid.New(), Tag: model.ReminderTagPostConfirmation, DueAt: ts, Status: model.ReminderJobPending}

	mock.ExpectExec(`ON CONFLICT \(appointment_id, tag\) DO NOTHING`).
		WithArgs(job.ID, job.AppointmentID, "post_confirmation", ts, "pending").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.EnqueueJobs(ctx, nil, []*model.ReminderJob{job}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOutboxUpdateStatus(t *testing.T) {
	base, mock := newMock(t)
	repo := NewOutboxRepository(base)
	id := uuid.New()
	msg := "redis down"

	mock.ExpectExec(`UPDATE outbox_events`).
		WithArgs("retry", msg, id, ts).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.UpdateStatus(ctx, nil, id, model.OutboxStatusRetry, &msg, &ts))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOutboxCreateRejectsEmptyPayload(t *testing.T) {
	base, _ := newMock(t)
	repo := NewOutboxRepository(base)

	assert.Error(t, repo.Create(ctx, nil, &model.OutboxEvent{EventType: model.EventAppointmentRequested}))
}

func TestGetUsersByIDs(t *testing.T) {
	base, mock := newMock(t)
	repo := NewUserRepository(base)
	id := uuid.New()

	mock.ExpectQuery(regexp.QuoteMeta(`WHERE id = ANY($1::uuid[])`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "first_name", "last_name", "role"}).
			AddRow(id.String(), "doc@example.com", "Gregory", "House", "doctor"))

	users, err := repo.GetByIDs(ctx, []uuid.UUID{id})
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "Gregory House", users[0].FullName())

	none, err := repo.GetByIDs(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, none)
}
