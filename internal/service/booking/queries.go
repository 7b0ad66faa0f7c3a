package booking

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/medassist/booking-api/internal/model"
	"github.com/medassist/booking-api/internal/repository"
)

// List returns appointments visible to the principal. Patients and doctors
// only ever see their own; admins see everything the filter matches.
func (s *Service) List(ctx context.Context, principal model.Principal, filter model.AppointmentFilter, page model.Pagination) ([]*model.Appointment, int, error) {
	page = page.Normalize()
	switch principal.Role {
	case model.RolePatient:
		filter.PatientID = &principal.ID
	case model.RoleDoctor:
		filter.DoctorID = &principal.ID
	}

	appointments, total, err := s.appointments.List(ctx, filter, page)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list appointments: %w", err)
	}
	return appointments, total, nil
}

// PendingRequests lists the requests still waiting for the doctor's answer.
func (s *Service) PendingRequests(ctx context.Context, principal model.Principal, page model.Pagination) ([]*model.Appointment, int, error) {
	if principal.Role != model.RoleDoctor {
		return nil, 0, ErrDoctorOnly
	}
	pending := model.RequestStatusPending
	return s.List(ctx, principal, model.AppointmentFilter{RequestStatus: &pending}, page)
}

// Get returns the appointment if the principal may see it. Appointments owned
// by somebody else look exactly like missing ones.
func (s *Service) Get(ctx context.Context, principal model.Principal, id uuid.UUID) (*model.Appointment, error) {
	appt, err := s.appointments.Get(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrAppointmentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get appointment: %w", err)
	}
	if !canView(principal, appt) {
		return nil, ErrAppointmentNotFound
	}
	return appt, nil
}

// Reminders returns the ledger of reminders already sent for the appointment.
func (s *Service) Reminders(ctx context.Context, principal model.Principal, id uuid.UUID) ([]*model.AppointmentReminder, error) {
	if _, err := s.Get(ctx, principal, id); err != nil {
		return nil, err
	}
	rows, err := s.reminders.ListByAppointment(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list reminders: %w", err)
	}
	return rows, nil
}

func canView(principal model.Principal, appt *model.Appointment) bool {
	switch principal.Role {
	case model.RoleAdmin:
		return true
	case model.RolePatient:
		return appt.PatientID == principal.ID
	case model.RoleDoctor:
		return appt.DoctorID == principal.ID
	}
	return false
}
