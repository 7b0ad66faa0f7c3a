package reminder

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/medassist/booking-api/internal/model"
	"github.com/medassist/booking-api/internal/repository"
)

type ledgerKey struct {
	appointmentID uuid.UUID
	tag           model.ReminderTag
}

// fakeStore is an in-memory stand-in for the appointment and reminder tables.
// WithTx serializes transactions and restores the ledger and job queue when
// fn fails.
type fakeStore struct {
	mu      sync.Mutex
	appts   map[uuid.UUID]*model.Appointment
	ledger  map[ledgerKey]model.AppointmentReminder
	jobs    map[uuid.UUID]model.ReminderJob
	listErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		appts:  map[uuid.UUID]*model.Appointment{},
		ledger: map[ledgerKey]model.AppointmentReminder{},
		jobs:   map[uuid.UUID]model.ReminderJob{},
	}
}

func (s *fakeStore) WithTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ledger := make(map[ledgerKey]model.AppointmentReminder, len(s.ledger))
	for k, v := range s.ledger {
		ledger[k] = v
	}
	jobs := make(map[uuid.UUID]model.ReminderJob, len(s.jobs))
	for k, v := range s.jobs {
		jobs[k] = v
	}
	if err := fn(nil); err != nil {
		s.ledger, s.jobs = ledger, jobs
		return err
	}
	return nil
}

func (s *fakeStore) add(a *model.Appointment) { s.appts[a.ID] = a }

func (s *fakeStore) addJob(j *model.ReminderJob) { s.jobs[j.ID] = *j }

func (s *fakeStore) job(id uuid.UUID) model.ReminderJob { return s.jobs[id] }

func (s *fakeStore) hasLedger(id uuid.UUID, tag model.ReminderTag) bool {
	_, ok := s.ledger[ledgerKey{id, tag}]
	return ok
}

type fakeAppointments struct {
	repository.AppointmentRepository
	s *fakeStore
}

func (r fakeAppointments) GetForUpdate(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*model.Appointment, error) {
	a, ok := r.s.appts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (r fakeAppointments) ListStartingBetween(ctx context.Context, tag model.ReminderTag, from, to time.Time) ([]*model.Appointment, error) {
	return r.filter(tag, func(a *model.Appointment) time.Time { return a.StartsAt(from.Location()) }, from, to)
}

func (r fakeAppointments) ListUpdatedBetween(ctx context.Context, tag model.ReminderTag, from, to time.Time) ([]*model.Appointment, error) {
	return r.filter(tag, func(a *model.Appointment) time.Time { return a.UpdatedAt }, from, to)
}

func (r fakeAppointments) filter(tag model.ReminderTag, at func(*model.Appointment) time.Time, from, to time.Time) ([]*model.Appointment, error) {
	if r.s.listErr != nil {
		return nil, r.s.listErr
	}
	var out []*model.Appointment
	for _, a := range r.s.appts {
		t := at(a)
		if !a.IsScheduled() || t.Before(from) || t.After(to) || r.s.hasLedger(a.ID, tag) {
			continue
		}
		cp := *a
		out = append(out, &cp)
	}
	return out, nil
}

type fakeReminders struct{ s *fakeStore }

func (r fakeReminders) Claim(ctx context.Context, tx *sqlx.Tx, appointmentID uuid.UUID, tag model.ReminderTag, sentAt time.Time) (bool, error) {
	key := ledgerKey{appointmentID, tag}
	if _, ok := r.s.ledger[key]; ok {
		return false, nil
	}
	r.s.ledger[key] = model.AppointmentReminder{ID: uuid.New(), AppointmentID: appointmentID, HoursBefore: tag, SentAt: sentAt}
	return true, nil
}

func (r fakeReminders) ListByAppointment(ctx context.Context, appointmentID uuid.UUID) ([]*model.AppointmentReminder, error) {
	return nil, errors.New("not used")
}

func (r fakeReminders) EnqueueJobs(ctx context.Context, tx *sqlx.Tx, jobs []*model.ReminderJob) error {
	for _, j := range jobs {
		r.s.addJob(j)
	}
	return nil
}

func (r fakeReminders) DueJobs(ctx context.Context, tx *sqlx.Tx, now time.Time, limit int) ([]*model.ReminderJob, error) {
	var due []*model.ReminderJob
	for _, j := range r.s.jobs {
		if j.Status == model.ReminderJobPending && !j.DueAt.After(now) {
			j := j
			due = append(due, &j)
		}
	}
	sort.Slice(due, func(i, k int) bool { return due[i].DueAt.Before(due[k].DueAt) })
	if len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (r fakeReminders) UpdateJob(ctx context.Context, tx *sqlx.Tx, job *model.ReminderJob) error {
	r.s.jobs[job.ID] = *job
	return nil
}
