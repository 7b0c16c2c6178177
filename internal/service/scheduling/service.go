package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"

	"github.com/ankit50/mediMeet/internal/model"
	"github.com/ankit50/mediMeet/internal/repository"
	apperrors "github.com/ankit50/mediMeet/pkg/errors"
	"github.com/ankit50/mediMeet/pkg/metrics"
)

const (
	slotLabelFormat  = "3:04 PM"
	dateKeyFormat    = "2006-01-02"
	displayDayFormat = "Monday, January 2"
)

// Config tunes the slot calculator. Now is injectable so tests can pin
// the clock; when nil, time.Now is used.
type Config struct {
	HorizonDays    int
	SlotMinutes    int
	DoctorCacheTTL time.Duration
	Now            func() time.Time
}

type Service struct {
	accounts     repository.AccountRepository
	availability repository.AvailabilityRepository
	appointments repository.AppointmentRepository
	doctorCache  *gocache.Cache
	metrics      *metrics.Metrics
	logger       zerolog.Logger
	horizonDays  int
	slotMinutes  int
	now          func() time.Time
}

func NewService(
	accounts repository.AccountRepository,
	availability repository.AvailabilityRepository,
	appointments repository.AppointmentRepository,
	m *metrics.Metrics,
	logger zerolog.Logger,
	cfg Config,
) *Service {
	if cfg.HorizonDays <= 0 {
		cfg.HorizonDays = 4
	}
	if cfg.SlotMinutes <= 0 {
		cfg.SlotMinutes = 30
	}
	if cfg.DoctorCacheTTL <= 0 {
		cfg.DoctorCacheTTL = time.Minute
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Service{
		accounts:     accounts,
		availability: availability,
		appointments: appointments,
		doctorCache:  gocache.New(cfg.DoctorCacheTTL, 2*cfg.DoctorCacheTTL),
		metrics:      m,
		logger:       logger.With().Str("component", "scheduling").Logger(),
		horizonDays:  cfg.HorizonDays,
		slotMinutes:  cfg.SlotMinutes,
		now:          cfg.Now,
	}
}

// SetAvailability replaces the doctor's recurring daily window. The
// request carries concrete timestamps; only their time-of-day matters
// when slots are projected onto future days.
func (s *Service) SetAvailability(ctx context.Context, doctorID uuid.UUID, req *model.SetAvailabilityRequest) (*model.AvailabilityWindow, error) {
	if _, err := s.doctor(ctx, doctorID); err != nil {
		return nil, err
	}

	window := &model.AvailabilityWindow{
		DoctorID:  doctorID,
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
		Status:    model.AvailabilityStatusAvailable,
	}
	if err := s.availability.Replace(ctx, window); err != nil {
		return nil, apperrors.Internal("failed to update availability", err)
	}
	return window, nil
}

// GetAvailability lists the doctor's own windows, unfiltered by status.
func (s *Service) GetAvailability(ctx context.Context, doctorID uuid.UUID) ([]*model.AvailabilityWindow, error) {
	if _, err := s.doctor(ctx, doctorID); err != nil {
		return nil, err
	}
	windows, err := s.availability.ListForDoctor(ctx, doctorID)
	if err != nil {
		return nil, apperrors.Internal("failed to list availability", err)
	}
	return windows, nil
}

// GetAvailableSlots projects the doctor's daily window across the
// booking horizon and subtracts scheduled appointments. Days with no
// free slots still appear in the result so clients can render a full
// calendar strip.
func (s *Service) GetAvailableSlots(ctx context.Context, doctorID uuid.UUID) ([]model.DaySlots, error) {
	start := time.Now()
	defer func() {
		if s.metrics != nil {
			s.metrics.SlotComputeLatency.Observe(time.Since(start).Seconds())
		}
	}()

	if _, err := s.verifiedDoctor(ctx, doctorID); err != nil {
		return nil, err
	}

	window, err := s.availability.GetActiveWindow(ctx, doctorID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NotFound("availability", err)
		}
		return nil, apperrors.Internal("failed to load availability", err)
	}

	now := s.now()
	horizonStart := startOfDay(now)
	horizonEnd := horizonStart.AddDate(0, 0, s.horizonDays)

	booked, err := s.appointments.ListScheduledInRange(ctx, doctorID, horizonStart, horizonEnd)
	if err != nil {
		return nil, apperrors.Internal("failed to load appointments", err)
	}

	slotDuration := time.Duration(s.slotMinutes) * time.Minute
	days := make([]model.DaySlots, 0, s.horizonDays)

	for d := 0; d < s.horizonDays; d++ {
		day := horizonStart.AddDate(0, 0, d)
		dayStart := atTimeOfDay(day, window.StartTime)
		dayEnd := atTimeOfDay(day, window.EndTime)

		var slots []model.TimeSlot
		for cur := dayStart; !cur.Add(slotDuration).After(dayEnd); cur = cur.Add(slotDuration) {
			slotEnd := cur.Add(slotDuration)
			if cur.Before(now) {
				continue
			}
			if hasConflict(booked, cur, slotEnd) {
				continue
			}
			slots = append(slots, model.TimeSlot{
				StartTime: cur,
				EndTime:   slotEnd,
				Formatted: fmt.Sprintf("%s - %s", cur.Format(slotLabelFormat), slotEnd.Format(slotLabelFormat)),
			})
		}

		days = append(days, model.DaySlots{
			Date:        day.Format(dateKeyFormat),
			DisplayDate: day.Format(displayDayFormat),
			Slots:       slots,
		})
	}

	return days, nil
}

// doctor loads an account with the DOCTOR role, verified or not.
// Availability can be edited before verification completes; slots only
// surface once the account passes verifiedDoctor.
func (s *Service) doctor(ctx context.Context, doctorID uuid.UUID) (*model.Account, error) {
	account, err := s.accounts.Get(ctx, doctorID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NotFound("doctor", err)
		}
		return nil, apperrors.Internal("failed to load doctor", err)
	}
	if account.Role != model.RoleDoctor {
		return nil, apperrors.NotFound("doctor", nil)
	}
	return account, nil
}

func (s *Service) verifiedDoctor(ctx context.Context, doctorID uuid.UUID) (*model.Account, error) {
	key := doctorID.String()
	if cached, ok := s.doctorCache.Get(key); ok {
		return cached.(*model.Account), nil
	}

	account, err := s.doctor(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	if !account.IsVerifiedDoctor() {
		return nil, apperrors.NotFound("doctor", nil)
	}

	s.doctorCache.SetDefault(key, account)
	return account, nil
}

func hasConflict(booked []*model.Appointment, start, end time.Time) bool {
	for _, appt := range booked {
		if appt.Overlaps(start, end) {
			return true
		}
	}
	return false
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func atTimeOfDay(day, tod time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), tod.Hour(), tod.Minute(), 0, 0, day.Location())
}
