package model

import (
	"time"

	"github.com/google/uuid"
)

// ReminderTag identifies a reminder window. Values match the ledger's
// hours_before column.
type ReminderTag string

const (
	ReminderTag12h              ReminderTag = "12"
	ReminderTag3h               ReminderTag = "3"
	ReminderTagPostConfirmation ReminderTag = "post_confirmation"
)

// LeadTags are the reminders sent ahead of the appointment start.
var LeadTags = []ReminderTag{ReminderTag12h, ReminderTag3h}

// Lead returns how long before the start the reminder is due. The second
// value is false for tags not tied to the start time.
func (t ReminderTag) Lead() (time.Duration, bool) {
	switch t {
	case ReminderTag12h:
		return 12 * time.Hour, true
	case ReminderTag3h:
		return 3 * time.Hour, true
	}
	return 0, false
}

func (t ReminderTag) Valid() bool {
	switch t {
	case ReminderTag12h, ReminderTag3h, ReminderTagPostConfirmation:
		return true
	}
	return false
}

// AppointmentReminder is a ledger row: the reminder for this tag was sent.
type AppointmentReminder struct {
	ID            uuid.UUID   `json:"id" db:"id"`
	AppointmentID uuid.UUID   `json:"appointment_id" db:"appointment_id"`
	HoursBefore   ReminderTag `json:"hours_before" db:"hours_before"`
	SentAt        time.Time   `json:"sent_at" db:"sent_at"`
	CreatedAt     time.Time   `json:"created_at" db:"created_at"`
}

type ReminderJobStatus string

const (
	ReminderJobPending ReminderJobStatus = "pending"
	ReminderJobSent    ReminderJobStatus = "sent"
	ReminderJobSkipped ReminderJobStatus = "skipped"
	ReminderJobFailed  ReminderJobStatus = "failed"
)

// ReminderJob is a queued reminder, created when an appointment is accepted.
type ReminderJob struct {
	Base
	AppointmentID uuid.UUID         `json:"appointment_id" db:"appointment_id"`
	Tag           ReminderTag       `json:"tag" db:"tag"`
	DueAt         time.Time         `json:"due_at" db:"due_at"`
	Status        ReminderJobStatus `json:"status" db:"status"`
	Attempts      int               `json:"attempts" db:"attempts"`
	LastError     *string           `json:"last_error,omitempty" db:"last_error"`
}

// PlanReminderJobs returns the jobs to enqueue for an appointment accepted at
// acceptedAt. Lead reminders already past due are left out; the post
// confirmation reminder is always planned.
func PlanReminderJobs(a *Appointment, acceptedAt time.Time, loc *time.Location, postDelay time.Duration) []*ReminderJob {
	start := a.StartsAt(loc)
	jobs := make([]*ReminderJob, 0, len(LeadTags)+1)
	for _, tag := range LeadTags {
		lead, _ := tag.Lead()
		due := start.Add(-lead)
		if due.Before(acceptedAt) {
			continue
		}
		jobs = append(jobs, newReminderJob(a.ID, tag, due))
	}
	return append(jobs, newReminderJob(a.ID, ReminderTagPostConfirmation, acceptedAt.Add(postDelay)))
}

func newReminderJob(appointmentID uuid.UUID, tag ReminderTag, due time.Time) *ReminderJob {
	return &ReminderJob{
		Base:          Base{ID: uuid.New()},
		AppointmentID: appointmentID,
		Tag:           tag,
		DueAt:         due,
		Status:        ReminderJobPending,
	}
}
