package bookings

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"homeserve/backend/internal/availability"
	"homeserve/backend/internal/domain"
	"homeserve/backend/internal/store"
)

// SlotsView lists the open hours of a provider on one date and the starts at
// which the given service would currently be accepted.
type SlotsView struct {
	ProviderID string              `json:"providerId"`
	Date       string              `json:"date"`
	Source     availability.Source `json:"source"`
	Windows    []domain.Interval   `json:"windows"`
	Starts     []string            `json:"starts"`
	Reason     string              `json:"reason,omitempty"`
}

func (s *Service) OpenSlots(ctx context.Context, providerID, date, serviceID string) (SlotsView, error) {
	providerID = strings.TrimSpace(providerID)
	if providerID == "" {
		return SlotsView{}, domain.NewValidationError("providerId", "is required")
	}
	day, err := domain.ParseDate(date)
	if err != nil {
		return SlotsView{}, domain.NewValidationError("date", "must be YYYY-MM-DD")
	}
	svc, err := s.catalog.GetService(ctx, strings.TrimSpace(serviceID))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return SlotsView{}, fmt.Errorf("service %s: %w", serviceID, store.ErrNotFound)
		}
		return SlotsView{}, err
	}
	if !svc.IsActive || svc.Duration <= 0 {
		return SlotsView{}, fmt.Errorf("service %s: %w", svc.ID, domain.ErrServiceUnavailable)
	}
	pa, err := s.availability.GetAvailability(ctx, providerID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return SlotsView{}, &domain.AvailabilityError{ProviderID: providerID, Date: day, Reason: "provider has no availability schedule"}
		}
		return SlotsView{}, err
	}

	view := SlotsView{ProviderID: providerID, Date: day.Format(domain.DateLayout), Starts: []string{}}
	res, err := availability.Describe(pa, day)
	if err != nil {
		return SlotsView{}, err
	}
	view.Source = res.Source
	view.Reason = res.Reason

	now := s.now().In(pa.Location())
	today := domain.DateOnly(now)
	windows := res.Windows
	switch {
	case day.Before(today):
		windows = nil
		view.Reason = "date is in the past"
	case pa.MaxAdvanceBookingDays > 0 && day.After(today.AddDate(0, 0, pa.MaxAdvanceBookingDays)):
		windows = nil
		view.Reason = "date is beyond the advance booking limit"
	case day.Equal(today):
		windows = availability.ClipPast(windows, now.Hour()*60+now.Minute()+1)
	}
	view.Windows = windows
	if len(windows) == 0 {
		return view, nil
	}

	err = s.bookings.InProviderDay(ctx, providerID, day, func(ctx context.Context, tx store.ReservationTx) error {
		existing, err := tx.ListActiveBookings(ctx, providerID, day)
		if err != nil {
			return err
		}
		for _, start := range s.checker.Suggest(windows, existing, svc.Duration, pa.BufferTime.Effective()) {
			view.Starts = append(view.Starts, domain.FormatClock(start))
		}
		return nil
	})
	if err != nil {
		return SlotsView{}, err
	}
	return view, nil
}

func (s *Service) GetAvailability(ctx context.Context, providerID string) (domain.ProviderAvailability, error) {
	pa, err := s.availability.GetAvailability(ctx, strings.TrimSpace(providerID))
	if err != nil && errors.Is(err, store.ErrNotFound) {
		return domain.ProviderAvailability{}, fmt.Errorf("availability for %s: %w", providerID, store.ErrNotFound)
	}
	return pa, err
}

// SetAvailability replaces the provider's whole availability document.
func (s *Service) SetAvailability(ctx context.Context, actor domain.ActorRef, pa domain.ProviderAvailability) (domain.ProviderAvailability, error) {
	pa.ProviderID = strings.TrimSpace(pa.ProviderID)
	if err := authorizeAvailability(actor, pa.ProviderID); err != nil {
		return domain.ProviderAvailability{}, err
	}
	if err := pa.Validate(); err != nil {
		return domain.ProviderAvailability{}, err
	}
	return s.availability.SaveAvailability(ctx, pa)
}

type DateOverrideInput struct {
	Date        string
	IsAvailable bool
	TimeSlots   []domain.TimeSlot
	Reason      string
}

func (s *Service) AddDateOverride(ctx context.Context, actor domain.ActorRef, providerID string, in DateOverrideInput) (domain.ProviderAvailability, error) {
	date, err := domain.ParseDate(in.Date)
	if err != nil {
		return domain.ProviderAvailability{}, domain.NewValidationError("date", "must be YYYY-MM-DD")
	}
	if in.IsAvailable && len(in.TimeSlots) == 0 {
		return domain.ProviderAvailability{}, domain.NewValidationError("timeSlots", "required when available")
	}
	return s.modifyAvailability(ctx, actor, providerID, func(pa *domain.ProviderAvailability) {
		pa.DateOverrides = append(pa.DateOverrides, domain.DateOverride{
			Date:        date,
			IsAvailable: in.IsAvailable,
			TimeSlots:   in.TimeSlots,
			Reason:      strings.TrimSpace(in.Reason),
			CreatedAt:   s.now().UTC(),
		})
	})
}

type BlockedPeriodInput struct {
	StartDate string
	EndDate   string
	Reason    string
}

func (s *Service) AddBlockedPeriod(ctx context.Context, actor domain.ActorRef, providerID string, in BlockedPeriodInput) (domain.ProviderAvailability, error) {
	start, err := domain.ParseDate(in.StartDate)
	if err != nil {
		return domain.ProviderAvailability{}, domain.NewValidationError("startDate", "must be YYYY-MM-DD")
	}
	end, err := domain.ParseDate(in.EndDate)
	if err != nil {
		return domain.ProviderAvailability{}, domain.NewValidationError("endDate", "must be YYYY-MM-DD")
	}
	return s.modifyAvailability(ctx, actor, providerID, func(pa *domain.ProviderAvailability) {
		pa.BlockedPeriods = append(pa.BlockedPeriods, domain.BlockedPeriod{
			StartDate: start,
			EndDate:   end,
			Reason:    strings.TrimSpace(in.Reason),
			CreatedBy: actor.ID,
		})
	})
}

// modifyAvailability applies fn to the stored document, or to an empty one
// for a provider that has none yet. The store serializes edits per provider.
// Existing bookings are not re-checked.
func (s *Service) modifyAvailability(ctx context.Context, actor domain.ActorRef, providerID string, fn func(pa *domain.ProviderAvailability)) (domain.ProviderAvailability, error) {
	providerID = strings.TrimSpace(providerID)
	if err := authorizeAvailability(actor, providerID); err != nil {
		return domain.ProviderAvailability{}, err
	}
	return s.availability.UpdateAvailability(ctx, providerID, func(pa *domain.ProviderAvailability) error {
		if pa.Timezone == "" {
			pa.Timezone = time.UTC.String()
		}
		fn(pa)
		return pa.Validate()
	})
}

func authorizeAvailability(actor domain.ActorRef, providerID string) error {
	if providerID == "" {
		return domain.NewValidationError("providerId", "is required")
	}
	switch actor.Role {
	case domain.ActorAdmin:
		return nil
	case domain.ActorProvider:
		if actor.ID == providerID {
			return nil
		}
	}
	return &domain.AuthorizationError{Actor: actor, Action: "manage", Resource: "availability of " + providerID}
}
