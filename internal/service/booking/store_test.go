package booking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/medassist/booking-api/internal/model"
	"github.com/medassist/booking-api/internal/repository"
)

var errInjected = errors.New("injected failure")

type ledgerKey struct {
	appointmentID uuid.UUID
	tag           model.ReminderTag
}

// memStore keeps every table in memory. WithTx holds one lock for the whole
// transaction and restores a snapshot when fn fails, which is enough to act
// like row locks plus rollback for these tests. Repository methods assume
// the caller is inside WithTx or that no transaction is running.
type memStore struct {
	mu     sync.Mutex
	slots  map[uuid.UUID]model.Availability
	appts  map[uuid.UUID]model.Appointment
	jobs   map[ledgerKey]model.ReminderJob
	ledger map[ledgerKey]model.AppointmentReminder
	events []model.OutboxEvent
	locks  []string
	failOn string
}

func newMemStore() *memStore {
	return &memStore{
		slots:  map[uuid.UUID]model.Availability{},
		appts:  map[uuid.UUID]model.Appointment{},
		jobs:   map[ledgerKey]model.ReminderJob{},
		ledger: map[ledgerKey]model.AppointmentReminder{},
	}
}

type snapshot struct {
	slots  map[uuid.UUID]model.Availability
	appts  map[uuid.UUID]model.Appointment
	jobs   map[ledgerKey]model.ReminderJob
	ledger map[ledgerKey]model.AppointmentReminder
	events []model.OutboxEvent
}

func (s *memStore) WithTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := snapshot{
		slots:  copyMap(s.slots),
		appts:  copyMap(s.appts),
		jobs:   copyMap(s.jobs),
		ledger: copyMap(s.ledger),
		events: append([]model.OutboxEvent(nil), s.events...),
	}
	if err := fn(nil); err != nil {
		s.slots, s.appts, s.jobs, s.ledger, s.events = snap.slots, snap.appts, snap.jobs, snap.ledger, snap.events
		return err
	}
	return nil
}

func copyMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (s *memStore) fail(op string) error {
	if s.failOn == op {
		return errInjected
	}
	return nil
}

func (s *memStore) addSlot(doctorID uuid.UUID, date model.Date, start, end model.TimeOfDay) *model.Availability {
	slot := model.Availability{
		Base:      model.Base{ID: uuid.New()},
		DoctorID:  doctorID,
		Date:      date,
		StartTime: start,
		EndTime:   end,
	}
	s.slots[slot.ID] = slot
	return &slot
}

func (s *memStore) slot(id uuid.UUID) model.Availability { return s.slots[id] }

func (s *memStore) appointment(id uuid.UUID) model.Appointment { return s.appts[id] }

func (s *memStore) availabilityRepo() repository.AvailabilityRepository { return memAvailability{s} }
func (s *memStore) appointmentRepo() repository.AppointmentRepository   { return memAppointments{s} }
func (s *memStore) reminderRepo() repository.ReminderRepository         { return memReminders{s} }
func (s *memStore) outboxRepo() repository.OutboxRepository             { return memOutbox{s} }

type memAvailability struct{ s *memStore }

func (r memAvailability) ReplaceForDate(ctx context.Context, tx *sqlx.Tx, doctorID uuid.UUID, date model.Date, slots []*model.Availability) error {
	for id, slot := range r.s.slots {
		if slot.DoctorID == doctorID && slot.Date.Equal(date.Time) {
			delete(r.s.slots, id)
			for aid, a := range r.s.appts {
				if a.AvailabilityID != nil && *a.AvailabilityID == id {
					a.AvailabilityID = nil
					r.s.appts[aid] = a
				}
			}
		}
	}
	for _, slot := range slots {
		r.s.slots[slot.ID] = *slot
	}
	return nil
}

func (r memAvailability) GetForUpdate(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*model.Availability, error) {
	slot, ok := r.s.slots[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &slot, nil
}

func (r memAvailability) MarkBooked(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (bool, error) {
	slot, ok := r.s.slots[id]
	if !ok || slot.IsBooked {
		return false, nil
	}
	slot.IsBooked = true
	r.s.slots[id] = slot
	return true, nil
}

func (r memAvailability) Release(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) error {
	slot, ok := r.s.slots[id]
	if !ok {
		return repository.ErrNotFound
	}
	slot.IsBooked = false
	r.s.slots[id] = slot
	return nil
}

func (r memAvailability) UpdateTimes(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, start, end model.TimeOfDay) error {
	slot, ok := r.s.slots[id]
	if !ok {
		return repository.ErrNotFound
	}
	slot.StartTime, slot.EndTime = start, end
	r.s.slots[id] = slot
	return nil
}

func (r memAvailability) ListByDoctorAndDate(ctx context.Context, doctorID uuid.UUID, date model.Date) ([]*model.Availability, error) {
	var out []*model.Availability
	for _, slot := range r.s.slots {
		if slot.DoctorID == doctorID && slot.Date.Equal(date.Time) {
			slot := slot
			out = append(out, &slot)
		}
	}
	return out, nil
}

func (r memAvailability) ListFreeByDate(ctx context.Context, date model.Date) ([]*model.Availability, error) {
	var out []*model.Availability
	for _, slot := range r.s.slots {
		if !slot.IsBooked && slot.Date.Equal(date.Time) {
			slot := slot
			out = append(out, &slot)
		}
	}
	return out, nil
}

type memAppointments struct{ s *memStore }

func (r memAppointments) Create(ctx context.Context, tx *sqlx.Tx, a *model.Appointment) error {
	if a.AvailabilityID != nil {
		for _, other := range r.s.appts {
			if other.AvailabilityID != nil && *other.AvailabilityID == *a.AvailabilityID &&
				other.RequestStatus != model.RequestStatusRejected && other.DeletedAt == nil {
				return fmt.Errorf("%w: uq_appointments_active_slot", repository.ErrDuplicate)
			}
		}
	}
	a.CreatedAt = time.Now()
	a.UpdatedAt = a.CreatedAt
	r.s.appts[a.ID] = *a
	return nil
}

func (r memAppointments) Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	a, ok := r.s.appts[id]
	if !ok || a.DeletedAt != nil {
		return nil, repository.ErrNotFound
	}
	return &a, nil
}

func (r memAppointments) GetForUpdate(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*model.Appointment, error) {
	return r.Get(ctx, id)
}

func (r memAppointments) GetForDoctorForUpdate(ctx context.Context, tx *sqlx.Tx, id, doctorID uuid.UUID) (*model.Appointment, error) {
	a, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.DoctorID != doctorID {
		return nil, repository.ErrNotFound
	}
	return a, nil
}

func (r memAppointments) Update(ctx context.Context, tx *sqlx.Tx, a *model.Appointment) error {
	if err := r.s.fail("update"); err != nil {
		return err
	}
	if !a.Consistent() {
		return errors.New("appointments_status_pair check violated")
	}
	a.UpdatedAt = time.Now()
	r.s.appts[a.ID] = *a
	return nil
}

func (r memAppointments) List(ctx context.Context, filter model.AppointmentFilter, page model.Pagination) ([]*model.Appointment, int, error) {
	var out []*model.Appointment
	for _, a := range r.s.appts {
		if filter.DoctorID != nil && a.DoctorID != *filter.DoctorID {
			continue
		}
		if filter.PatientID != nil && a.PatientID != *filter.PatientID {
			continue
		}
		if filter.RequestStatus != nil && a.RequestStatus != *filter.RequestStatus {
			continue
		}
		a := a
		out = append(out, &a)
	}
	return out, len(out), nil
}

func (r memAppointments) LockDoctorSchedule(ctx context.Context, tx *sqlx.Tx, doctorID uuid.UUID, date model.Date) error {
	if err := r.s.fail("lock"); err != nil {
		return err
	}
	r.s.locks = append(r.s.locks, doctorID.String()+":"+date.String())
	return nil
}

func (r memAppointments) HasScheduledOverlap(ctx context.Context, tx *sqlx.Tx, doctorID uuid.UUID, date model.Date, start, end model.TimeOfDay, excludeID uuid.UUID) (bool, error) {
	for _, a := range r.s.appts {
		if a.ID == excludeID || a.DoctorID != doctorID || !a.Date.Equal(date.Time) {
			continue
		}
		if a.IsScheduled() && a.Overlaps(start, end) {
			return true, nil
		}
	}
	return false, nil
}

func (r memAppointments) ListStartingBetween(ctx context.Context, tag model.ReminderTag, from, to time.Time) ([]*model.Appointment, error) {
	return nil, nil
}

func (r memAppointments) ListUpdatedBetween(ctx context.Context, tag model.ReminderTag, from, to time.Time) ([]*model.Appointment, error) {
	return nil, nil
}

type memReminders struct{ s *memStore }

func (r memReminders) Claim(ctx context.Context, tx *sqlx.Tx, appointmentID uuid.UUID, tag model.ReminderTag, sentAt time.Time) (bool, error) {
	key := ledgerKey{appointmentID, tag}
	if _, ok := r.s.ledger[key]; ok {
		return false, nil
	}
	r.s.ledger[key] = model.AppointmentReminder{ID: uuid.New(), AppointmentID: appointmentID, HoursBefore: tag, SentAt: sentAt}
	return true, nil
}

func (r memReminders) ListByAppointment(ctx context.Context, appointmentID uuid.UUID) ([]*model.AppointmentReminder, error) {
	var out []*model.AppointmentReminder
	for _, row := range r.s.ledger {
		if row.AppointmentID == appointmentID {
			row := row
			out = append(out, &row)
		}
	}
	return out, nil
}

func (r memReminders) EnqueueJobs(ctx context.Context, tx *sqlx.Tx, jobs []*model.ReminderJob) error {
	if err := r.s.fail("enqueue"); err != nil {
		return err
	}
	for _, job := range jobs {
		key := ledgerKey{job.AppointmentID, job.Tag}
		if _, ok := r.s.jobs[key]; !ok {
			r.s.jobs[key] = *job
		}
	}
	return nil
}

func (r memReminders) DueJobs(ctx context.Context, tx *sqlx.Tx, now time.Time, limit int) ([]*model.ReminderJob, error) {
	return nil, nil
}

func (r memReminders) UpdateJob(ctx context.Context, tx *sqlx.Tx, job *model.ReminderJob) error {
	return nil
}

type memOutbox struct{ s *memStore }

func (r memOutbox) Create(ctx context.Context, tx *sqlx.Tx, e *model.OutboxEvent) error {
	if err := r.s.fail("outbox"); err != nil {
		return err
	}
	r.s.events = append(r.s.events, *e)
	return nil
}

func (r memOutbox) GetPendingEventsWithLock(ctx context.Context, tx *sqlx.Tx, limit int) ([]*model.OutboxEvent, error) {
	return nil, nil
}

func (r memOutbox) UpdateStatus(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, status model.OutboxStatus, errorMessage *string, retryAt *time.Time) error {
	return nil
}

func (r memOutbox) DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error) {
	return 0, nil
}
