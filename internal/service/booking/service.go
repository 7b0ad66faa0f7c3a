package booking

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/medassist/booking-api/internal/model"
	"github.com/medassist/booking-api/internal/repository"
	"github.com/medassist/booking-api/internal/service/notification"
	"github.com/medassist/booking-api/pkg/clock"
	apperrors "github.com/medassist/booking-api/pkg/errors"
	"github.com/medassist/booking-api/pkg/logger"
	"github.com/medassist/booking-api/pkg/metrics"
)

var tracer = otel.Tracer("github.com/medassist/booking-api/internal/service/booking")

// SlotCache is told about dates whose free slots changed.
type SlotCache interface {
	Invalidate(date model.Date)
}

type Config struct {
	Location *time.Location
	// PostConfirmationDelay is how long after acceptance the follow-up
	// reminder is due.
	PostConfirmationDelay time.Duration
}

type Service struct {
	availability repository.AvailabilityRepository
	appointments repository.AppointmentRepository
	reminders    repository.ReminderRepository
	outbox       repository.OutboxRepository
	tx           repository.Transactor
	notifier     notification.Dispatcher
	slots        SlotCache
	cfg          Config
	clock        clock.Clock
	logger       *logger.Logger
	metrics      *metrics.Metrics
}

func NewService(
	availability repository.AvailabilityRepository,
	appointments repository.AppointmentRepository,
	reminders repository.ReminderRepository,
	outbox repository.OutboxRepository,
	tx repository.Transactor,
	notifier notification.Dispatcher,
	slots SlotCache,
	cfg Config,
	clk clock.Clock,
	log *logger.Logger,
	m *metrics.Metrics,
) *Service {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.PostConfirmationDelay <= 0 {
		cfg.PostConfirmationDelay = time.Minute
	}
	return &Service{
		availability: availability,
		appointments: appointments,
		reminders:    reminders,
		outbox:       outbox,
		tx:           tx,
		notifier:     notifier,
		slots:        slots,
		cfg:          cfg,
		clock:        clk,
		logger:       log,
		metrics:      m,
	}
}

// Book turns a free slot into a pending appointment for the calling patient.
// The slot lookup, the appointment insert and the booked flag flip commit
// together or not at all.
func (s *Service) Book(ctx context.Context, principal model.Principal, req *model.BookRequest) (*model.BookResponse, error) {
	ctx, span := tracer.Start(ctx, "booking.Book", trace.WithAttributes(
		attribute.String("availability.id", req.AvailabilityID.String()),
		attribute.String("doctor.id", req.DoctorID.String()),
	))
	defer span.End()

	if principal.Role != model.RolePatient {
		return nil, ErrPatientOnly
	}
	if utf8.RuneCountInString(req.Notes) > MaxNotesLength {
		return nil, ErrNotesTooLong
	}

	timer := prometheus.NewTimer(s.metrics.BookingLatency.WithLabelValues("book"))
	var appt *model.Appointment
	err := s.tx.WithTx(ctx, func(tx *sqlx.Tx) error {
		slot, err := s.availability.GetForUpdate(ctx, tx, req.AvailabilityID)
		if errors.Is(err, repository.ErrNotFound) {
			return ErrSlotNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to load slot: %w", err)
		}
		if slot.IsBooked {
			return ErrSlotAlreadyBooked
		}
		if slot.DoctorID != req.DoctorID {
			return ErrDoctorMismatch
		}

		appt = model.NewPendingAppointment(slot, principal.ID, req.Notes)
		if err := s.appointments.Create(ctx, tx, appt); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return ErrSlotAlreadyBooked
			}
			return fmt.Errorf("failed to create appointment: %w", err)
		}

		booked, err := s.availability.MarkBooked(ctx, tx, slot.ID)
		if err != nil {
			return fmt.Errorf("failed to mark slot booked: %w", err)
		}
		if !booked {
			return ErrSlotAlreadyBooked
		}

		return s.writeEvent(ctx, tx, model.EventAppointmentRequested, appt)
	})
	timer.ObserveDuration()
	s.metrics.Bookings.WithLabelValues(resultLabel(err)).Inc()

	if err != nil {
		recordError(span, err)
		return nil, s.fail("book", err)
	}

	s.slots.Invalidate(appt.Date)
	span.SetAttributes(attribute.String("appointment.id", appt.ID.String()))
	s.logger.Info("appointment requested",
		"appointment_id", appt.ID.String(),
		"doctor_id", appt.DoctorID.String(),
		"patient_id", appt.PatientID.String())

	return &model.BookResponse{AppointmentID: appt.ID, RequestStatus: appt.RequestStatus}, nil
}

// Respond applies the doctor's decision to a pending request. Accepting
// fixes the final time range, queues the reminders and confirms to the
// patient once committed. Rejecting frees the slot again.
func (s *Service) Respond(ctx context.Context, principal model.Principal, id uuid.UUID, req *model.RespondRequest) (*model.Appointment, error) {
	ctx, span := tracer.Start(ctx, "booking.Respond", trace.WithAttributes(
		attribute.String("appointment.id", id.String()),
		attribute.String("decision", string(req.Decision)),
	))
	defer span.End()

	if err := validateResponse(principal, req); err != nil {
		s.metrics.Responses.WithLabelValues(string(req.Decision), resultLabel(err)).Inc()
		return nil, err
	}

	timer := prometheus.NewTimer(s.metrics.BookingLatency.WithLabelValues("respond"))
	now := s.clock.Now()
	var appt *model.Appointment
	err := s.tx.WithTx(ctx, func(tx *sqlx.Tx) error {
		a, err := s.appointments.GetForDoctorForUpdate(ctx, tx, id, principal.ID)
		if errors.Is(err, repository.ErrNotFound) {
			return ErrAppointmentNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to load appointment: %w", err)
		}
		if a.RequestStatus != model.RequestStatusPending {
			return ErrAlreadyProcessed
		}

		switch req.Decision {
		case model.DecisionAccepted:
			err = s.accept(ctx, tx, a, *req.StartTime, *req.EndTime, now)
		case model.DecisionRejected:
			err = s.reject(ctx, tx, a, now)
		}
		if err != nil {
			return err
		}

		if req.Notes != nil {
			a.Notes = *req.Notes
		}
		if err := s.appointments.Update(ctx, tx, a); err != nil {
			return fmt.Errorf("failed to update appointment: %w", err)
		}

		if a.RequestStatus == model.RequestStatusAccepted {
			jobs := model.PlanReminderJobs(a, now, s.cfg.Location, s.cfg.PostConfirmationDelay)
			if err := s.reminders.EnqueueJobs(ctx, tx, jobs); err != nil {
				return fmt.Errorf("failed to enqueue reminders: %w", err)
			}
		}

		eventType := model.EventAppointmentAccepted
		if a.RequestStatus == model.RequestStatusRejected {
			eventType = model.EventAppointmentRejected
		}
		if err := s.writeEvent(ctx, tx, eventType, a); err != nil {
			return err
		}

		appt = a
		return nil
	})
	timer.ObserveDuration()
	s.metrics.Responses.WithLabelValues(string(req.Decision), resultLabel(err)).Inc()

	if err != nil {
		recordError(span, err)
		return nil, s.fail("respond", err)
	}

	s.logger.Info("appointment request processed",
		"appointment_id", appt.ID.String(),
		"doctor_id", appt.DoctorID.String(),
		"decision", string(req.Decision))

	if appt.RequestStatus == model.RequestStatusRejected {
		s.slots.Invalidate(appt.Date)
		return appt, nil
	}

	if err := s.notifier.Dispatch(ctx, model.NewConfirmation(appt)); err != nil {
		span.AddEvent("confirmation dispatch failed")
		s.logger.Error(err, "failed to send appointment confirmation",
			"appointment_id", appt.ID.String(),
			"patient_id", appt.PatientID.String())
	}
	return appt, nil
}

func (s *Service) accept(ctx context.Context, tx *sqlx.Tx, a *model.Appointment, start, end model.TimeOfDay, now time.Time) error {
	if err := s.appointments.LockDoctorSchedule(ctx, tx, a.DoctorID, a.Date); err != nil {
		return fmt.Errorf("failed to lock schedule: %w", err)
	}
	overlap, err := s.appointments.HasScheduledOverlap(ctx, tx, a.DoctorID, a.Date, start, end, a.ID)
	if err != nil {
		return fmt.Errorf("failed to check schedule: %w", err)
	}
	if overlap {
		return ErrScheduleConflict
	}

	if err := a.Resolve(model.DecisionAccepted, now); err != nil {
		return fmt.Errorf("failed to accept appointment: %w", err)
	}
	a.StartTime = start
	a.EndTime = end

	if a.AvailabilityID != nil {
		if err := s.availability.UpdateTimes(ctx, tx, *a.AvailabilityID, start, end); err != nil && !errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("failed to update slot times: %w", err)
		}
	}
	return nil
}

func (s *Service) reject(ctx context.Context, tx *sqlx.Tx, a *model.Appointment, now time.Time) error {
	if a.AvailabilityID != nil {
		if err := s.availability.Release(ctx, tx, *a.AvailabilityID); err != nil && !errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("failed to release slot: %w", err)
		}
	}
	if err := a.Resolve(model.DecisionRejected, now); err != nil {
		return fmt.Errorf("failed to reject appointment: %w", err)
	}
	return nil
}

func (s *Service) writeEvent(ctx context.Context, tx *sqlx.Tx, eventType string, a *model.Appointment) error {
	event, err := model.NewAppointmentEvent(eventType, a, s.clock.Now())
	if err != nil {
		return fmt.Errorf("failed to build %s event: %w", eventType, err)
	}
	if err := s.outbox.Create(ctx, tx, event); err != nil {
		return fmt.Errorf("failed to write %s event: %w", eventType, err)
	}
	return nil
}

// fail passes domain errors through and logs everything else before
// returning it wrapped.
func (s *Service) fail(op string, err error) error {
	if _, ok := apperrors.As(err); ok {
		return err
	}
	s.logger.Error(err, "transaction failed", "operation", op)
	return fmt.Errorf("failed to %s: %w", op, err)
}

func validateResponse(principal model.Principal, req *model.RespondRequest) error {
	if principal.Role != model.RoleDoctor {
		return ErrDoctorOnly
	}
	switch req.Decision {
	case model.DecisionAccepted:
		if req.StartTime == nil || req.EndTime == nil {
			return ErrTimesRequired
		}
		if *req.EndTime <= *req.StartTime {
			return ErrInvalidTimeRange
		}
	case model.DecisionRejected:
	default:
		return ErrInvalidDecision
	}
	if req.Notes != nil && utf8.RuneCountInString(*req.Notes) > MaxNotesLength {
		return ErrNotesTooLong
	}
	return nil
}

func resultLabel(err error) string {
	if err == nil {
		return "success"
	}
	appErr, ok := apperrors.As(err)
	if !ok {
		return "error"
	}
	switch appErr.Code {
	case apperrors.ErrConflict:
		return "conflict"
	case apperrors.ErrNotFound:
		return "not_found"
	case apperrors.ErrForbidden:
		return "forbidden"
	case apperrors.ErrValidation:
		return "invalid"
	}
	return "error"
}

func recordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
