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
)

// dispatchError marks a failure of the notifier itself, as opposed to the
// store. Only these are retried with backoff.
type dispatchError struct {
	err error
}

func (e *dispatchError) Error() string { return e.err.Error() }
func (e *dispatchError) Unwrap() error { return e.err }

// ProcessDue works through up to BatchSize due reminder jobs, one
// transaction per job, and reports how many it handled.
func (s *Scheduler) ProcessDue(ctx context.Context) (int, error) {
	timer := prometheus.NewTimer(s.metrics.SchedulerDuration.WithLabelValues(sourceQueue))
	defer timer.ObserveDuration()

	processed := 0
	var err error
	for processed < s.cfg.BatchSize {
		var more bool
		more, err = s.processOne(ctx)
		if err != nil || !more {
			break
		}
		processed++
	}

	s.metrics.ReminderQueueSize.Set(float64(processed))
	result := "success"
	if err != nil {
		result = "error"
		s.logger.Error(err, "reminder queue tick failed", "processed", processed)
	}
	s.metrics.SchedulerTicks.WithLabelValues(sourceQueue, result).Inc()
	return processed, err
}

// processOne locks the oldest due job and runs it. It returns false once the
// queue has nothing due.
func (s *Scheduler) processOne(ctx context.Context) (bool, error) {
	now := s.clock.Now()
	var job *model.ReminderJob

	err := s.tx.WithTx(ctx, func(tx *sqlx.Tx) error {
		jobs, err := s.reminders.DueJobs(ctx, tx, now, 1)
		if err != nil {
			return err
		}
		if len(jobs) == 0 {
			return nil
		}
		job = jobs[0]
		return s.runJob(ctx, tx, job, now)
	})

	var dispatchErr *dispatchError
	switch {
	case err == nil:
		return job != nil, nil
	case errors.As(err, &dispatchErr):
		return true, s.retryLater(ctx, job, dispatchErr, now)
	default:
		return false, err
	}
}

func (s *Scheduler) runJob(ctx context.Context, tx *sqlx.Tx, job *model.ReminderJob, now time.Time) error {
	appt, err := s.appointments.GetForUpdate(ctx, tx, job.AppointmentID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("failed to load appointment: %w", err)
	}
	if appt == nil || !appt.IsScheduled() {
		s.metrics.RemindersSkipped.WithLabelValues(string(job.Tag), "not_scheduled").Inc()
		return s.finish(ctx, tx, job, model.ReminderJobSkipped)
	}

	err = s.deliver(ctx, tx, appt, job.Tag, now)
	if errors.Is(err, errAlreadySent) {
		s.metrics.RemindersSkipped.WithLabelValues(string(job.Tag), "already_sent").Inc()
		return s.finish(ctx, tx, job, model.ReminderJobSent)
	}
	if err != nil {
		return err
	}

	s.metrics.RemindersSent.WithLabelValues(string(job.Tag), sourceQueue).Inc()
	return s.finish(ctx, tx, job, model.ReminderJobSent)
}

func (s *Scheduler) finish(ctx context.Context, tx *sqlx.Tx, job *model.ReminderJob, status model.ReminderJobStatus) error {
	job.Status = status
	return s.reminders.UpdateJob(ctx, tx, job)
}

// retryLater records a failed dispatch outside the rolled back transaction.
// Attempts back off linearly until MaxAttempts, then the job is failed.
func (s *Scheduler) retryLater(ctx context.Context, job *model.ReminderJob, cause error, now time.Time) error {
	s.metrics.RemindersFailed.WithLabelValues(string(job.Tag), sourceQueue).Inc()

	job.Attempts++
	msg := cause.Error()
	job.LastError = &msg
	if job.Attempts >= s.cfg.MaxAttempts {
		job.Status = model.ReminderJobFailed
	} else {
		job.DueAt = now.Add(time.Duration(job.Attempts) * s.cfg.RetryBackoff)
	}

	s.logger.Warn("reminder dispatch failed",
		"appointment_id", job.AppointmentID.String(),
		"tag", string(job.Tag),
		"attempts", job.Attempts,
		"status", string(job.Status),
		"error", msg)

	if err := s.reminders.UpdateJob(ctx, nil, job); err != nil {
		return fmt.Errorf("failed to reschedule reminder job: %w", err)
	}
	return nil
}
