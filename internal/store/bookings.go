package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"homeserve/backend/internal/domain"
)

// ReservationStore serializes reservations per provider and calendar date.
// Everything fn reads through the ReservationTx is guaranteed not to change
// until fn returns.
type ReservationStore interface {
	InProviderDay(ctx context.Context, providerID string, date time.Time, fn func(ctx context.Context, tx ReservationTx) error) error
}

type ReservationTx interface {
	ListActiveBookings(ctx context.Context, providerID string, date time.Time) ([]domain.Booking, error)
	// CreateBooking returns ErrConflict when the booking collides with one
	// committed concurrently, and ErrIdempotencyConflict when the id is
	// already used by a different booking. Replaying an identical booking
	// returns the stored one.
	CreateBooking(ctx context.Context, b domain.Booking) (domain.Booking, error)
}

type BookingStore interface {
	GetBooking(ctx context.Context, id uuid.UUID) (domain.Booking, error)
	GetBookingByNumber(ctx context.Context, bookingNumber string) (domain.Booking, error)
	// UpdateBooking loads the booking, lets fn mutate it and stores the
	// result. No other update of the same booking runs concurrently.
	UpdateBooking(ctx context.Context, bookingNumber string, fn func(b *domain.Booking) error) (domain.Booking, error)
}

type BookingRepository interface {
	ReservationStore
	BookingStore
}

type AvailabilityStore interface {
	GetAvailability(ctx context.Context, providerID string) (domain.ProviderAvailability, error)
	SaveAvailability(ctx context.Context, pa domain.ProviderAvailability) (domain.ProviderAvailability, error)
	// UpdateAvailability loads the provider's document, lets fn mutate it and
	// stores the result. A provider without a document gets one holding only
	// the ProviderID. Updates for one provider never interleave.
	UpdateAvailability(ctx context.Context, providerID string, fn func(pa *domain.ProviderAvailability) error) (domain.ProviderAvailability, error)
}

type ServiceCatalog interface {
	GetService(ctx context.Context, serviceID string) (domain.Service, error)
}

type UserDirectory interface {
	GetUser(ctx context.Context, userID string) (domain.User, error)
}
