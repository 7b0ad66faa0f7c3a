package model

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pendingAppointment() *Appointment {
	slot := &Availability{
		Base:      Base{ID: uuid.New()},
		DoctorID:  uuid.New(),
		Date:      NewDate(2025, 5, 1),
		StartTime: NewTimeOfDay(10, 0),
		EndTime:   NewTimeOfDay(10, 30),
	}
	return NewPendingAppointment(slot, uuid.New(), "first visit")
}

func TestNewPendingAppointmentCopiesSlot(t *testing.T) {
	a := pendingAppointment()
	assert.Equal(t, RequestStatusPending, a.RequestStatus)
	assert.Nil(t, a.AppointmentStatus)
	assert.NotNil(t, a.AvailabilityID)
	assert.Equal(t, NewTimeOfDay(10, 0), a.StartTime)
	assert.True(t, a.Consistent())
}

func TestResolve(t *testing.T) {
	at := time.Date(2025, 4, 30, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		decision Decision
		request  RequestStatus
		status   AppointmentStatus
	}{
		{"accept schedules", DecisionAccepted, RequestStatusAccepted, AppointmentStatusScheduled},
		{"reject cancels", DecisionRejected, RequestStatusRejected, AppointmentStatusCancelled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := pendingAppointment()
			require.NoError(t, a.Resolve(tt.decision, at))
			assert.Equal(t, tt.request, a.RequestStatus)
			require.NotNil(t, a.AppointmentStatus)
			assert.Equal(t, tt.status, *a.AppointmentStatus)
			assert.Equal(t, at, *a.RespondedAt)
			assert.True(t, a.Consistent())
		})
	}
}

func TestResolveTwiceFails(t *testing.T) {
	a := pendingAppointment()
	require.NoError(t, a.Resolve(DecisionAccepted, time.Now()))
	assert.ErrorIs(t, a.Resolve(DecisionRejected, time.Now()), ErrNotPending)
	assert.Equal(t, RequestStatusAccepted, a.RequestStatus)
}

func TestResolveUnknownDecisionLeavesPending(t *testing.T) {
	a := pendingAppointment()
	assert.ErrorIs(t, a.Resolve("maybe", time.Now()), ErrInvalidDecision)
	assert.Equal(t, RequestStatusPending, a.RequestStatus)
	assert.Nil(t, a.AppointmentStatus)
}

func TestConsistentRejectsMixedPairs(t *testing.T) {
	cancelled := AppointmentStatusCancelled
	a := pendingAppointment()
	a.RequestStatus = RequestStatusAccepted
	a.AppointmentStatus = &cancelled
	assert.False(t, a.Consistent())

	a.RequestStatus = RequestStatusPending
	assert.False(t, a.Consistent())
}

func TestOverlaps(t *testing.T) {
	a := pendingAppointment() // 10:00-10:30
	assert.True(t, a.Overlaps(NewTimeOfDay(10, 15), NewTimeOfDay(10, 45)))
	assert.True(t, a.Overlaps(NewTimeOfDay(9, 0), NewTimeOfDay(11, 0)))
	assert.False(t, a.Overlaps(NewTimeOfDay(10, 30), NewTimeOfDay(11, 0)))
	assert.False(t, a.Overlaps(NewTimeOfDay(9, 30), NewTimeOfDay(10, 0)))
}
