package reminder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/medassist/booking-api/internal/model"
	"github.com/medassist/booking-api/internal/repository"
	"github.com/medassist/booking-api/internal/service/notification"
	"github.com/medassist/booking-api/pkg/clock"
	"github.com/medassist/booking-api/pkg/logger"
	"github.com/medassist/booking-api/pkg/metrics"
)

const (
	sourceSweep = "sweep"
	sourceQueue = "queue"
)

// errAlreadySent aborts a delivery whose ledger row exists already.
var errAlreadySent = errors.New("reminder already recorded")

type Config struct {
	// Window is the tolerance around a lead reminder's target time.
	Window time.Duration
	// PostConfirmationDelay and PostConfirmationSpan bound the updated_at
	// range picked up for the follow-up reminder:
	// [now-delay-span, now-delay].
	PostConfirmationDelay time.Duration
	PostConfirmationSpan  time.Duration
	BatchSize             int
	MaxAttempts           int
	RetryBackoff          time.Duration
	Location              *time.Location
}

func (c *Config) setDefaults() {
	if c.Window <= 0 {
		c.Window = 5 * time.Minute
	}
	if c.PostConfirmationDelay <= 0 {
		c.PostConfirmationDelay = time.Minute
	}
	if c.PostConfirmationSpan <= 0 {
		c.PostConfirmationSpan = time.Minute
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 50
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = time.Minute
	}
	if c.Location == nil {
		c.Location = time.UTC
	}
}

// Scheduler sends appointment reminders. Every delivery first claims the
// (appointment, tag) ledger row in the same transaction as the dispatch, so
// the window sweep and the job queue can run side by side and overlap
// without sending anything twice.
type Scheduler struct {
	appointments repository.AppointmentRepository
	reminders    repository.ReminderRepository
	tx           repository.Transactor
	notifier     notification.Dispatcher
	cfg          Config
	clock        clock.Clock
	logger       *logger.Logger
	metrics      *metrics.Metrics
}

func NewScheduler(
	appointments repository.AppointmentRepository,
	reminders repository.ReminderRepository,
	tx repository.Transactor,
	notifier notification.Dispatcher,
	cfg Config,
	clk clock.Clock,
	log *logger.Logger,
	m *metrics.Metrics,
) *Scheduler {
	cfg.setDefaults()
	return &Scheduler{
		appointments: appointments,
		reminders:    reminders,
		tx:           tx,
		notifier:     notifier,
		cfg:          cfg,
		clock:        clk,
		logger:       log.WithFields(map[string]interface{}{"component": "reminder_scheduler"}),
		metrics:      m,
	}
}

// Sweep runs one tick of the window scan. A lookup failure ends the tick;
// a failed delivery is logged and picked up again by a later tick.
func (s *Scheduler) Sweep(ctx context.Context) error {
	timer := prometheus.NewTimer(s.metrics.SchedulerDuration.WithLabelValues(sourceSweep))
	defer timer.ObserveDuration()

	err := s.sweep(ctx)
	result := "success"
	if err != nil {
		result = "error"
		s.logger.Error(err, "reminder sweep failed")
	}
	s.metrics.SchedulerTicks.WithLabelValues(sourceSweep, result).Inc()
	return err
}

func (s *Scheduler) sweep(ctx context.Context) error {
	now := s.clock.Now().In(s.cfg.Location)

	for _, tag := range model.LeadTags {
		lead, _ := tag.Lead()
		target := now.Add(lead)
		due, err := s.appointments.ListStartingBetween(ctx, tag, target.Add(-s.cfg.Window), target.Add(s.cfg.Window))
		if err != nil {
			return fmt.Errorf("failed to find %sh reminders: %w", tag, err)
		}
		s.deliverAll(ctx, due, tag, now)
	}

	to := now.Add(-s.cfg.PostConfirmationDelay)
	accepted, err := s.appointments.ListUpdatedBetween(ctx, model.ReminderTagPostConfirmation, to.Add(-s.cfg.PostConfirmationSpan), to)
	if err != nil {
		return fmt.Errorf("failed to find post confirmation reminders: %w", err)
	}
	s.deliverAll(ctx, accepted, model.ReminderTagPostConfirmation, now)
	return nil
}

func (s *Scheduler) deliverAll(ctx context.Context, appointments []*model.Appointment, tag model.ReminderTag, now time.Time) {
	for _, appt := range appointments {
		err := s.tx.WithTx(ctx, func(tx *sqlx.Tx) error {
			return s.deliver(ctx, tx, appt, tag, now)
		})
		switch {
		case err == nil:
			s.metrics.RemindersSent.WithLabelValues(string(tag), sourceSweep).Inc()
		case errors.Is(err, errAlreadySent):
			s.metrics.RemindersSkipped.WithLabelValues(string(tag), "already_sent").Inc()
		default:
			s.metrics.RemindersFailed.WithLabelValues(string(tag), sourceSweep).Inc()
			s.logger.Error(err, "failed to send reminder",
				"appointment_id", appt.ID.String(),
				"tag", string(tag))
		}
	}
}

// deliver claims the ledger row and dispatches. Returning an error rolls the
// claim back.
func (s *Scheduler) deliver(ctx context.Context, tx *sqlx.Tx, appt *model.Appointment, tag model.ReminderTag, now time.Time) error {
	claimed, err := s.reminders.Claim(ctx, tx, appt.ID, tag, now)
	if err != nil {
		return fmt.Errorf("failed to claim reminder: %w", err)
	}
	if !claimed {
		return errAlreadySent
	}
	if err := s.notifier.Dispatch(ctx, model.NewReminder(appt, tag)); err != nil {
		return &dispatchError{err: fmt.Errorf("failed to dispatch reminder: %w", err)}
	}
	s.logger.Info("reminder sent",
		"appointment_id", appt.ID.String(),
		"patient_id", appt.PatientID.String(),
		"tag", string(tag))
	return nil
}
