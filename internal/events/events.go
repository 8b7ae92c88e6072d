// Package events carries booking status changes to the notification side.
// Delivery is decoupled from the transaction that changed the booking: a
// publisher may drop or fail, but it can never undo a committed change.
package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"homeserve/backend/internal/domain"
)

const TypeStatusChanged = "booking:status_changed"

type StatusChanged struct {
	BookingID     string               `json:"bookingId"`
	BookingNumber string               `json:"bookingNumber"`
	CustomerID    string               `json:"customerId"`
	ProviderID    string               `json:"providerId"`
	ServiceID     string               `json:"serviceId"`
	Previous      domain.BookingStatus `json:"previous,omitempty"`
	Current       domain.BookingStatus `json:"current"`
	Actor         domain.ActorRole     `json:"actor"`
	Note          string               `json:"note,omitempty"`
	OccurredAt    time.Time            `json:"occurredAt"`
}

// NewStatusChanged builds the event for b having moved from previous to its
// current status. previous is empty for a newly created booking.
func NewStatusChanged(b domain.Booking, previous domain.BookingStatus) StatusChanged {
	ev := StatusChanged{
		BookingID:     b.ID.String(),
		BookingNumber: b.BookingNumber,
		CustomerID:    b.CustomerID,
		ProviderID:    b.ProviderID,
		ServiceID:     b.ServiceID,
		Previous:      previous,
		Current:       b.Status,
		OccurredAt:    time.Now().UTC(),
	}
	if n := len(b.StatusHistory); n > 0 {
		last := b.StatusHistory[n-1]
		ev.Actor = last.Actor
		ev.Note = last.Note
		ev.OccurredAt = last.Timestamp
	}
	return ev
}

func (e StatusChanged) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

func UnmarshalStatusChanged(b []byte) (StatusChanged, error) {
	var ev StatusChanged
	err := json.Unmarshal(b, &ev)
	return ev, err
}

type Publisher interface {
	Publish(ctx context.Context, ev StatusChanged) error
}

// Notifier is the notification collaborator. Rendering and delivery of the
// actual messages live behind it.
type Notifier interface {
	StatusChanged(ctx context.Context, ev StatusChanged) error
}

// Relay forwards events drained from a ChannelPublisher to another
// publisher, so a slow or unreachable queue never holds up the caller.
func Relay(next Publisher) Notifier {
	return relay{next: next}
}

type relay struct {
	next Publisher
}

func (r relay) StatusChanged(ctx context.Context, ev StatusChanged) error {
	return r.next.Publish(ctx, ev)
}

type Nop struct{}

func (Nop) Publish(context.Context, StatusChanged) error { return nil }

// LogNotifier records each event in the log.
type LogNotifier struct {
	Log *slog.Logger
}

func (n LogNotifier) StatusChanged(ctx context.Context, ev StatusChanged) error {
	log := n.Log
	if log == nil {
		log = slog.Default()
	}
	log.InfoContext(ctx, "booking status changed",
		slog.String("booking_number", ev.BookingNumber),
		slog.String("previous", string(ev.Previous)),
		slog.String("current", string(ev.Current)),
		slog.String("actor", string(ev.Actor)),
		slog.String("provider_id", ev.ProviderID),
	)
	return nil
}
