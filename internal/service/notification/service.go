package notification

import (
	"bytes"
	"context"
	"fmt"
	"text/template"
	"time"

	"github.com/google/uuid"

	"github.com/medassist/booking-api/internal/email"
	"github.com/medassist/booking-api/internal/model"
	"github.com/medassist/booking-api/internal/repository"
	"github.com/medassist/booking-api/pkg/clock"
	"github.com/medassist/booking-api/pkg/logger"
	"github.com/medassist/booking-api/pkg/messaging"
	"github.com/medassist/booking-api/pkg/metrics"
)

// Dispatcher delivers a notification to its recipient. Callers treat a
// returned error as non-fatal.
type Dispatcher interface {
	Dispatch(ctx context.Context, notification *model.Notification) error
}

// InAppEvent is published on the notifications channel after a successful send.
type InAppEvent struct {
	NotificationID uuid.UUID              `json:"notification_id"`
	UserID         uuid.UUID              `json:"user_id"`
	Kind           model.NotificationKind `json:"kind"`
	Subject        string                 `json:"subject"`
	Payload        model.JSONMap          `json:"payload"`
	CreatedAt      time.Time              `json:"created_at"`
}

type service struct {
	users   repository.UserRepository
	repo    repository.NotificationRepository
	mailer  email.Service
	broker  messaging.Broker
	clock   clock.Clock
	logger  *logger.Logger
	metrics *metrics.Metrics
}

// NewService wires the dispatcher. broker may be nil, in which case no
// in-app event is published.
func NewService(
	users repository.UserRepository,
	repo repository.NotificationRepository,
	mailer email.Service,
	broker messaging.Broker,
	clk clock.Clock,
	log *logger.Logger,
	m *metrics.Metrics,
) Dispatcher {
	return &service{
		users:   users,
		repo:    repo,
		mailer:  mailer,
		broker:  broker,
		clock:   clk,
		logger:  log,
		metrics: m,
	}
}

func (s *service) Dispatch(ctx context.Context, n *model.Notification) error {
	if n.RecipientID == uuid.Nil {
		return fmt.Errorf("invalid notification: recipient is required")
	}

	recipient, err := s.users.GetByID(ctx, n.RecipientID)
	if err != nil {
		s.metrics.Notifications.WithLabelValues(string(n.Kind), "error").Inc()
		return fmt.Errorf("failed to resolve recipient: %w", err)
	}

	subject, body, err := s.render(ctx, n, recipient)
	if err != nil {
		s.metrics.Notifications.WithLabelValues(string(n.Kind), "error").Inc()
		return err
	}

	n.ID = uuid.New()
	n.Recipient = recipient.Email
	n.Subject = subject
	n.Body = body

	sendErr := s.mailer.Send(ctx, recipient.Email, subject, body)
	if sendErr != nil {
		msg := sendErr.Error()
		n.Status = model.NotificationStatusFailed
		n.LastError = &msg
	} else {
		sentAt := s.clock.Now()
		n.Status = model.NotificationStatusSent
		n.SentAt = &sentAt
	}
	s.metrics.Notifications.WithLabelValues(string(n.Kind), string(n.Status)).Inc()

	if err := s.repo.Create(ctx, n); err != nil {
		s.logger.Error(err, "failed to record notification", "notification_id", n.ID.String())
	}

	if sendErr != nil {
		return fmt.Errorf("failed to send %s: %w", n.Kind, sendErr)
	}

	s.publishInApp(ctx, n)
	return nil
}

func (s *service) publishInApp(ctx context.Context, n *model.Notification) {
	if s.broker == nil {
		return
	}
	event := InAppEvent{
		NotificationID: n.ID,
		UserID:         n.RecipientID,
		Kind:           n.Kind,
		Subject:        n.Subject,
		Payload:        n.Payload,
		CreatedAt:      s.clock.Now(),
	}
	if err := s.broker.Publish(ctx, messaging.ChannelNotifications, event); err != nil {
		s.logger.Warn("failed to publish in-app notification", "notification_id", n.ID.String(), "error", err.Error())
	}
}

type templateData struct {
	PatientName string
	DoctorName  string
	Date        string
	StartTime   string
	EndTime     string
	Notes       string
	Tag         string
}

var templates = map[model.NotificationKind]*template.Template{
	model.NotificationAppointmentConfirmed: template.Must(template.New("confirmed").Parse(
		`Hello {{.PatientName}},

Your appointment has been confirmed.
Doctor: {{.DoctorName}}
Date: {{.Date}}
Time: {{.StartTime}} - {{.EndTime}}
Notes: {{.Notes}}

Thank you for using MedAssist!
`)),
	model.NotificationAppointmentReminder: template.Must(template.New("reminder").Parse(
		`Hello {{.PatientName}},

{{if eq .Tag "post_confirmation"}}Your appointment has been confirmed! This is a reminder of your upcoming appointment.{{else}}This is a reminder for your upcoming appointment.{{end}}
Doctor: {{.DoctorName}}
Date: {{.Date}}
Time: {{.StartTime}} - {{.EndTime}}
Notes: {{.Notes}}

Please arrive on time. Thank you for using MedAssist!
`)),
}

func (s *service) render(ctx context.Context, n *model.Notification, recipient *model.User) (string, string, error) {
	tmpl, ok := templates[n.Kind]
	if !ok {
		return "", "", fmt.Errorf("unsupported notification kind: %s", n.Kind)
	}

	data := templateData{
		PatientName: firstNonEmpty(recipient.FirstName, "Patient"),
		DoctorName:  "Doctor",
		Date:        payloadString(n.Payload, "date"),
		StartTime:   payloadString(n.Payload, "start_time"),
		EndTime:     payloadString(n.Payload, "end_time"),
		Notes:       firstNonEmpty(payloadString(n.Payload, "notes"), "None"),
		Tag:         payloadString(n.Payload, "tag"),
	}
	if id, err := uuid.Parse(payloadString(n.Payload, "doctor_id")); err == nil {
		if doctor, err := s.users.GetByID(ctx, id); err == nil {
			data.DoctorName = firstNonEmpty(doctor.FullName(), "Doctor")
		}
	}

	var body bytes.Buffer
	if err := tmpl.Execute(&body, data); err != nil {
		return "", "", fmt.Errorf("failed to render %s: %w", n.Kind, err)
	}
	return subjectFor(n.Kind, data.Tag), body.String(), nil
}

func subjectFor(kind model.NotificationKind, tag string) string {
	switch {
	case kind == model.NotificationAppointmentConfirmed:
		return "Appointment Confirmed"
	case tag == string(model.ReminderTagPostConfirmation):
		return "Post-Confirmation Appointment Reminder"
	default:
		return "Appointment Reminder: " + tag + " Hours to Go"
	}
}

func payloadString(p model.JSONMap, key string) string {
	if v, ok := p[key].(string); ok {
		return v
	}
	return ""
}

func firstNonEmpty(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
