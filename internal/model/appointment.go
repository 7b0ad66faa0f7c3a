package model

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

type RequestStatus string

const (
	RequestStatusPending  RequestStatus = "pending"
	RequestStatusAccepted RequestStatus = "accepted"
	RequestStatusRejected RequestStatus = "rejected"
)

type AppointmentStatus string

const (
	AppointmentStatusScheduled AppointmentStatus = "scheduled"
	AppointmentStatusCompleted AppointmentStatus = "completed"
	AppointmentStatusCancelled AppointmentStatus = "cancelled"
)

// Decision is a doctor's answer to a pending request.
type Decision string

const (
	DecisionAccepted Decision = "accepted"
	DecisionRejected Decision = "rejected"
)

var (
	ErrNotPending      = errors.New("appointment request is no longer pending")
	ErrInvalidDecision = errors.New("decision must be accepted or rejected")
)

type Appointment struct {
	Base
	DoctorID          uuid.UUID          `json:"doctor_id" db:"doctor_id"`
	PatientID         uuid.UUID          `json:"patient_id" db:"patient_id"`
	AvailabilityID    *uuid.UUID         `json:"availability_id" db:"availability_id"`
	Date              Date               `json:"appointment_date" db:"appointment_date"`
	StartTime         TimeOfDay          `json:"start_time" db:"start_time"`
	EndTime           TimeOfDay          `json:"end_time" db:"end_time"`
	RequestStatus     RequestStatus      `json:"request_status" db:"request_status"`
	AppointmentStatus *AppointmentStatus `json:"appointment_status" db:"appointment_status"`
	Notes             string             `json:"notes" db:"notes"`
	RespondedAt       *time.Time         `json:"responded_at,omitempty" db:"responded_at"`
	DeletedAt         *time.Time         `json:"-" db:"deleted_at"`
}

// NewPendingAppointment copies date and times from the slot being claimed.
func NewPendingAppointment(slot *Availability, patientID uuid.UUID, notes string) *Appointment {
	slotID := slot.ID
	return &Appointment{
		Base:           Base{ID: uuid.New()},
		DoctorID:       slot.DoctorID,
		PatientID:      patientID,
		AvailabilityID: &slotID,
		Date:           slot.Date,
		StartTime:      slot.StartTime,
		EndTime:        slot.EndTime,
		RequestStatus:  RequestStatusPending,
		Notes:          notes,
	}
}

// Resolve applies a doctor's decision. It is the only way the request and
// appointment statuses change, so the pair always stays consistent:
// pending/none, accepted/scheduled, rejected/cancelled.
func (a *Appointment) Resolve(d Decision, at time.Time) error {
	if a.RequestStatus != RequestStatusPending {
		return ErrNotPending
	}

	var status AppointmentStatus
	switch d {
	case DecisionAccepted:
		a.RequestStatus = RequestStatusAccepted
		status = AppointmentStatusScheduled
	case DecisionRejected:
		a.RequestStatus = RequestStatusRejected
		status = AppointmentStatusCancelled
	default:
		return ErrInvalidDecision
	}
	a.AppointmentStatus = &status
	a.RespondedAt = &at
	return nil
}

// Consistent reports whether the status pair is one of the allowed combinations.
func (a *Appointment) Consistent() bool {
	switch a.RequestStatus {
	case RequestStatusPending:
		return a.AppointmentStatus == nil
	case RequestStatusAccepted:
		return a.AppointmentStatus != nil &&
			(*a.AppointmentStatus == AppointmentStatusScheduled || *a.AppointmentStatus == AppointmentStatusCompleted)
	case RequestStatusRejected:
		return a.AppointmentStatus != nil && *a.AppointmentStatus == AppointmentStatusCancelled
	}
	return false
}

// IsScheduled reports an accepted appointment that still has to happen.
func (a *Appointment) IsScheduled() bool {
	return a.RequestStatus == RequestStatusAccepted &&
		a.AppointmentStatus != nil && *a.AppointmentStatus == AppointmentStatusScheduled &&
		a.DeletedAt == nil
}

func (a *Appointment) StartsAt(loc *time.Location) time.Time {
	return a.Date.At(a.StartTime, loc)
}

// Overlaps reports whether [start, end) intersects the appointment's range.
func (a *Appointment) Overlaps(start, end TimeOfDay) bool {
	return start < a.EndTime && a.StartTime < end
}

type BookRequest struct {
	DoctorID       uuid.UUID `json:"doctor_id" binding:"required"`
	AvailabilityID uuid.UUID `json:"availability_id" binding:"required"`
	Notes          string    `json:"notes" binding:"max=1000"`
}

type BookResponse struct {
	AppointmentID uuid.UUID     `json:"appointment_id"`
	RequestStatus RequestStatus `json:"request_status"`
}

type RespondRequest struct {
	Decision  Decision   `json:"decision" binding:"required,oneof=accepted rejected"`
	StartTime *TimeOfDay `json:"start_time" binding:"omitempty,timeofday"`
	EndTime   *TimeOfDay `json:"end_time" binding:"omitempty,timeofday"`
	Notes     *string    `json:"notes" binding:"omitempty,max=1000"`
}

type AppointmentFilter struct {
	DoctorID      *uuid.UUID
	PatientID     *uuid.UUID
	RequestStatus *RequestStatus
	Date          *Date
}
