package booking

import (
	apperrors "github.com/medassist/booking-api/pkg/errors"
)

const MaxNotesLength = 1000

var (
	ErrSlotNotFound        = apperrors.NotFound("availability slot", nil)
	ErrSlotAlreadyBooked   = apperrors.Conflict("this time slot is already booked")
	ErrDoctorMismatch      = apperrors.Validation("the selected slot does not belong to this doctor")
	ErrAppointmentNotFound = apperrors.NotFound("appointment", nil)
	ErrAlreadyProcessed    = apperrors.Conflict("appointment request has already been processed")
	ErrTimesRequired       = apperrors.Validation("start_time and end_time are required when accepting")
	ErrInvalidTimeRange    = apperrors.Validation("end_time must be after start_time")
	ErrScheduleConflict    = apperrors.Conflict("the requested time overlaps another scheduled appointment")
	ErrInvalidDecision     = apperrors.Validation("decision must be accepted or rejected")
	ErrNotesTooLong        = apperrors.Validation("notes must not exceed 1000 characters")
	ErrPatientOnly         = apperrors.Forbidden("only patients can book appointments")
	ErrDoctorOnly          = apperrors.Forbidden("only doctors can respond to appointment requests")
)
