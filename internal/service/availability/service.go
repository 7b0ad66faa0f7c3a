package availability

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/patrickmn/go-cache"

	"github.com/medassist/booking-api/internal/model"
	"github.com/medassist/booking-api/internal/repository"
	"github.com/medassist/booking-api/pkg/clock"
	"github.com/medassist/booking-api/pkg/errors"
	"github.com/medassist/booking-api/pkg/logger"
	"github.com/medassist/booking-api/pkg/metrics"
)

var (
	ErrDateRequired = errors.Validation("date is required")
	ErrDateInPast   = errors.Validation("date must be today or later")
	ErrNoSlots      = errors.Validation("at least one time slot is required")
	ErrInvalidRange = errors.Validation("slot end time must be after its start time")
	ErrDoctorOnly   = errors.Forbidden("only doctors can set availability")
)

type Config struct {
	CacheTTL        time.Duration
	CleanupInterval time.Duration
	Location        *time.Location
}

// Service manages doctor schedules and answers the free slot search. Search
// results are cached per date and dropped whenever a slot on that date changes.
type Service struct {
	repo    repository.AvailabilityRepository
	users   repository.UserRepository
	tx      repository.Transactor
	cache   *cache.Cache
	loc     *time.Location
	clock   clock.Clock
	logger  *logger.Logger
	metrics *metrics.Metrics
}

func NewService(
	repo repository.AvailabilityRepository,
	users repository.UserRepository,
	tx repository.Transactor,
	cfg Config,
	clk clock.Clock,
	log *logger.Logger,
	m *metrics.Metrics,
) *Service {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Service{
		repo:    repo,
		users:   users,
		tx:      tx,
		cache:   cache.New(cfg.CacheTTL, cfg.CleanupInterval),
		loc:     cfg.Location,
		clock:   clk,
		logger:  log,
		metrics: m,
	}
}

// SetAvailability replaces every slot the doctor has on req.Date.
func (s *Service) SetAvailability(ctx context.Context, principal model.Principal, req *model.SetAvailabilityRequest) ([]*model.Availability, error) {
	if principal.Role != model.RoleDoctor {
		return nil, ErrDoctorOnly
	}
	if err := s.validateDate(req.Date); err != nil {
		return nil, err
	}
	if len(req.Slots) == 0 {
		return nil, ErrNoSlots
	}

	slots := make([]*model.Availability, 0, len(req.Slots))
	for _, r := range req.Slots {
		if r.EndTime <= r.StartTime {
			return nil, ErrInvalidRange
		}
		slots = append(slots, &model.Availability{
			Base:      model.Base{ID: uuid.New()},
			DoctorID:  principal.ID,
			Date:      req.Date,
			StartTime: r.StartTime,
			EndTime:   r.EndTime,
		})
	}

	err := s.tx.WithTx(ctx, func(tx *sqlx.Tx) error {
		return s.repo.ReplaceForDate(ctx, tx, principal.ID, req.Date, slots)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to set availability: %w", err)
	}

	s.Invalidate(req.Date)
	s.metrics.AvailabilitySets.Inc()
	s.logger.Info("availability replaced",
		"doctor_id", principal.ID.String(),
		"date", req.Date.String(),
		"slots", len(slots))
	return slots, nil
}

// ListForDoctor returns every slot of the doctor on date, booked or not.
func (s *Service) ListForDoctor(ctx context.Context, doctorID uuid.UUID, date model.Date) ([]*model.Availability, error) {
	slots, err := s.repo.ListByDoctorAndDate(ctx, doctorID, date)
	if err != nil {
		return nil, fmt.Errorf("failed to list availability: %w", err)
	}
	return slots, nil
}

// ListAvailableDoctors returns the doctors with at least one free slot on date.
func (s *Service) ListAvailableDoctors(ctx context.Context, date model.Date) ([]*model.DoctorSlots, error) {
	if err := s.validateDate(date); err != nil {
		return nil, err
	}

	key := date.String()
	if cached, found := s.cache.Get(key); found {
		return cached.([]*model.DoctorSlots), nil
	}

	slots, err := s.repo.ListFreeByDate(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("failed to list free slots: %w", err)
	}

	byDoctor := make(map[uuid.UUID]*model.DoctorSlots)
	var order []uuid.UUID
	for _, slot := range slots {
		group, ok := byDoctor[slot.DoctorID]
		if !ok {
			group = &model.DoctorSlots{DoctorID: slot.DoctorID}
			byDoctor[slot.DoctorID] = group
			order = append(order, slot.DoctorID)
		}
		group.Slots = append(group.Slots, slot)
	}

	if len(order) > 0 {
		doctors, err := s.users.GetByIDs(ctx, order)
		if err != nil {
			return nil, fmt.Errorf("failed to load doctors: %w", err)
		}
		for _, d := range doctors {
			if group, ok := byDoctor[d.ID]; ok {
				group.FirstName = d.FirstName
				group.LastName = d.LastName
			}
		}
	}

	result := make([]*model.DoctorSlots, 0, len(order))
	for _, id := range order {
		result = append(result, byDoctor[id])
	}

	s.cache.Set(key, result, cache.DefaultExpiration)
	return result, nil
}

// Invalidate drops the cached search result for date.
func (s *Service) Invalidate(date model.Date) {
	s.cache.Delete(date.String())
}

func (s *Service) validateDate(date model.Date) error {
	if date.IsZero() {
		return ErrDateRequired
	}
	today := model.DateOf(s.clock.Now().In(s.loc))
	if date.Before(today.Time) {
		return ErrDateInPast
	}
	return nil
}
