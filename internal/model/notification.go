package model

import (
	"time"

	"github.com/google/uuid"
)

type NotificationKind string

const (
	NotificationAppointmentConfirmed NotificationKind = "appointment_confirmed"
	NotificationAppointmentReminder  NotificationKind = "appointment_reminder"
)

type NotificationStatus string

const (
	NotificationStatusSent   NotificationStatus = "sent"
	NotificationStatusFailed NotificationStatus = "failed"
)

// Notification is both the dispatch request (recipient, kind, payload) and
// the delivery record the dispatcher stores afterwards.
type Notification struct {
	ID          uuid.UUID          `json:"id" db:"id"`
	RecipientID uuid.UUID          `json:"recipient_id" db:"recipient_id"`
	Recipient   string             `json:"recipient" db:"recipient"`
	Kind        NotificationKind   `json:"kind" db:"kind"`
	Payload     JSONMap            `json:"payload" db:"payload"`
	Subject     string             `json:"subject" db:"subject"`
	Body        string             `json:"body" db:"body"`
	Status      NotificationStatus `json:"status" db:"status"`
	LastError   *string            `json:"last_error,omitempty" db:"last_error"`
	CreatedAt   time.Time          `json:"created_at" db:"created_at"`
	SentAt      *time.Time         `json:"sent_at,omitempty" db:"sent_at"`
}

// NewConfirmation builds the notice sent to the patient when a doctor accepts.
func NewConfirmation(a *Appointment) *Notification {
	return &Notification{
		RecipientID: a.PatientID,
		Kind:        NotificationAppointmentConfirmed,
		Payload:     appointmentPayload(a),
	}
}

func NewReminder(a *Appointment, tag ReminderTag) *Notification {
	payload := appointmentPayload(a)
	payload["tag"] = string(tag)
	return &Notification{
		RecipientID: a.PatientID,
		Kind:        NotificationAppointmentReminder,
		Payload:     payload,
	}
}

func appointmentPayload(a *Appointment) JSONMap {
	return JSONMap{
		"appointment_id": a.ID.String(),
		"doctor_id":      a.DoctorID.String(),
		"date":           a.Date.String(),
		"start_time":     a.StartTime.String(),
		"end_time":       a.EndTime.String(),
		"notes":          a.Notes,
	}
}
