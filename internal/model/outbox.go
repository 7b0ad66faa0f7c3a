package model

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type OutboxStatus string

const (
	OutboxStatusPending   OutboxStatus = "pending"
	OutboxStatusRetry     OutboxStatus = "retry"
	OutboxStatusProcessed OutboxStatus = "processed"
	OutboxStatusFailed    OutboxStatus = "failed"
)

const (
	EventAppointmentRequested = "appointment.requested"
	EventAppointmentAccepted  = "appointment.accepted"
	EventAppointmentRejected  = "appointment.rejected"
)

type OutboxEvent struct {
	ID           uuid.UUID       `db:"id" json:"id"`
	EventType    string          `db:"event_type" json:"event_type"`
	Payload      json.RawMessage `db:"payload" json:"payload"`
	Status       OutboxStatus    `db:"status" json:"status"`
	ErrorMessage *string         `db:"error_message" json:"error_message,omitempty"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	ProcessedAt  *time.Time      `db:"processed_at" json:"processed_at,omitempty"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updated_at"`
	RetryCount   int             `db:"retry_count" json:"retry_count"`
	RetryAt      *time.Time      `db:"retry_at" json:"retry_at,omitempty"`
}

// AppointmentEvent is the payload of the appointment.* outbox events.
type AppointmentEvent struct {
	AppointmentID     uuid.UUID          `json:"appointment_id"`
	DoctorID          uuid.UUID          `json:"doctor_id"`
	PatientID         uuid.UUID          `json:"patient_id"`
	AvailabilityID    *uuid.UUID         `json:"availability_id,omitempty"`
	RequestStatus     RequestStatus      `json:"request_status"`
	AppointmentStatus *AppointmentStatus `json:"appointment_status"`
	Date              Date               `json:"appointment_date"`
	StartTime         TimeOfDay          `json:"start_time"`
	EndTime           TimeOfDay          `json:"end_time"`
	OccurredAt        time.Time          `json:"occurred_at"`
}

func NewAppointmentEvent(eventType string, a *Appointment, at time.Time) (*OutboxEvent, error) {
	payload, err := json.Marshal(AppointmentEvent{
		AppointmentID:     a.ID,
		DoctorID:          a.DoctorID,
		PatientID:         a.PatientID,
		AvailabilityID:    a.AvailabilityID,
		RequestStatus:     a.RequestStatus,
		AppointmentStatus: a.AppointmentStatus,
		Date:              a.Date,
		StartTime:         a.StartTime,
		EndTime:           a.EndTime,
		OccurredAt:        at,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
	}
	return &OutboxEvent{
		ID:        uuid.New(),
		EventType: eventType,
		Payload:   payload,
		Status:    OutboxStatusPending,
		CreatedAt: at,
		UpdatedAt: at,
	}, nil
}
