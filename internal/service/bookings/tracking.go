package bookings

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"homeserve/backend/internal/domain"
	"homeserve/backend/internal/store"
)

type NamedRef struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// TrackingView is what anyone holding a booking number may see. It carries
// no customer data.
type TrackingView struct {
	BookingNumber    string               `json:"bookingNumber"`
	Status           domain.BookingStatus `json:"status"`
	StatusHistory    []domain.StatusEntry `json:"statusHistory"`
	Service          NamedRef             `json:"service"`
	Provider         NamedRef             `json:"provider"`
	ScheduledDate    string               `json:"scheduledDate"`
	ScheduledTime    string               `json:"scheduledTime"`
	EstimatedEndTime string               `json:"estimatedEndTime"`
	Pricing          domain.Pricing       `json:"pricing"`
}

func (s *Service) Track(ctx context.Context, bookingNumber string) (TrackingView, error) {
	number := strings.TrimSpace(bookingNumber)
	if number == "" {
		return TrackingView{}, domain.NewValidationError("bookingNumber", "is required")
	}
	b, err := s.bookings.GetBookingByNumber(ctx, number)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return TrackingView{}, fmt.Errorf("booking %s: %w", number, store.ErrNotFound)
		}
		return TrackingView{}, err
	}

	view := TrackingView{
		BookingNumber:    b.BookingNumber,
		Status:           b.Status,
		StatusHistory:    append([]domain.StatusEntry(nil), b.StatusHistory...),
		Service:          NamedRef{ID: b.ServiceID},
		Provider:         NamedRef{ID: b.ProviderID},
		ScheduledDate:    b.ScheduledDate.Format(domain.DateLayout),
		ScheduledTime:    domain.FormatClock(b.ScheduledTime),
		EstimatedEndTime: domain.FormatClock(b.EstimatedEndTime),
		Pricing:          b.Pricing,
	}
	// Names are decoration; a missing catalogue entry does not hide the booking.
	if svc, err := s.catalog.GetService(ctx, b.ServiceID); err == nil {
		view.Service.Name = svc.Name
	}
	if u, err := s.users.GetUser(ctx, b.ProviderID); err == nil {
		view.Provider.Name = u.Name
	}
	return view, nil
}
