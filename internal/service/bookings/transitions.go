package bookings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"homeserve/backend/internal/domain"
	"homeserve/backend/internal/lifecycle"
	"homeserve/backend/internal/store"
)

type TransitionInput struct {
	BookingNumber string
	Actor         domain.ActorRef
	Note          string
	// Reason is recorded on cancellation and rejection.
	Reason string
	// ActualDuration is only read by Complete.
	ActualDuration *int
}

func (s *Service) Confirm(ctx context.Context, in TransitionInput) (domain.Booking, error) {
	return s.transition(ctx, lifecycle.ActionConfirm, in)
}

func (s *Service) Reject(ctx context.Context, in TransitionInput) (domain.Booking, error) {
	return s.transition(ctx, lifecycle.ActionReject, in)
}

func (s *Service) Start(ctx context.Context, in TransitionInput) (domain.Booking, error) {
	return s.transition(ctx, lifecycle.ActionStart, in)
}

func (s *Service) Complete(ctx context.Context, in TransitionInput) (domain.Booking, error) {
	return s.transition(ctx, lifecycle.ActionComplete, in)
}

func (s *Service) Cancel(ctx context.Context, in TransitionInput) (domain.Booking, error) {
	return s.transition(ctx, lifecycle.ActionCancel, in)
}

func (s *Service) transition(ctx context.Context, action lifecycle.Action, in TransitionInput) (domain.Booking, error) {
	number := strings.TrimSpace(in.BookingNumber)
	if number == "" {
		return domain.Booking{}, domain.NewValidationError("bookingNumber", "is required")
	}
	if !in.Actor.Role.Valid() || in.Actor.Role == domain.ActorSystem {
		return domain.Booking{}, domain.NewValidationError("actor", "unknown role")
	}

	var prev domain.BookingStatus
	b, err := s.bookings.UpdateBooking(ctx, number, func(b *domain.Booking) error {
		p, err := s.machine.Apply(b, lifecycle.Command{
			Action:         action,
			Actor:          in.Actor,
			Note:           strings.TrimSpace(in.Note),
			Reason:         strings.TrimSpace(in.Reason),
			ActualDuration: in.ActualDuration,
			Now:            s.now(),
		})
		prev = p
		return err
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Booking{}, fmt.Errorf("booking %s: %w", number, store.ErrNotFound)
		}
		return domain.Booking{}, err
	}

	s.log.InfoContext(ctx, "booking status changed",
		slog.String("booking_number", b.BookingNumber),
		slog.String("action", string(action)),
		slog.String("from", string(prev)),
		slog.String("to", string(b.Status)),
		slog.String("actor", string(in.Actor.Role)),
	)
	s.notify(ctx, b, prev)
	return b, nil
}
