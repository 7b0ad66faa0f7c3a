package model

import (
	"github.com/google/uuid"
)

// Availability is one bookable time range of a doctor on a date.
// Ranges of the same doctor may overlap.
type Availability struct {
	Base
	DoctorID  uuid.UUID `json:"doctor_id" db:"doctor_id"`
	Date      Date      `json:"date" db:"date"`
	StartTime TimeOfDay `json:"start_time" db:"start_time"`
	EndTime   TimeOfDay `json:"end_time" db:"end_time"`
	IsBooked  bool      `json:"is_booked" db:"is_booked"`
}

type SlotRequest struct {
	StartTime TimeOfDay `json:"start_time" binding:"timeofday"`
	EndTime   TimeOfDay `json:"end_time" binding:"timeofday"`
}

type SetAvailabilityRequest struct {
	Date  Date          `json:"date"`
	Slots []SlotRequest `json:"slots" binding:"required,min=1,max=96,dive"`
}

// DoctorSlots groups the free slots of one doctor for the availability search.
type DoctorSlots struct {
	DoctorID  uuid.UUID       `json:"doctor_id"`
	FirstName string          `json:"first_name"`
	LastName  string          `json:"last_name"`
	Slots     []*Availability `json:"slots"`
}
