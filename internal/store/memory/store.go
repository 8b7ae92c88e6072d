// Package memory is an in-process implementation of the store interfaces.
// Reservations are serialized with one mutex per provider and date.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"homeserve/backend/internal/domain"
	"homeserve/backend/internal/store"
)

type Store struct {
	mu           sync.RWMutex
	bookings     map[uuid.UUID]domain.Booking
	byNumber     map[string]uuid.UUID
	availability map[string]domain.ProviderAvailability
	services     map[string]domain.Service
	users        map[string]domain.User

	dayLocks keyedMutex
}

func New() *Store {
	return &Store{
		bookings:     make(map[uuid.UUID]domain.Booking),
		byNumber:     make(map[string]uuid.UUID),
		availability: make(map[string]domain.ProviderAvailability),
		services:     make(map[string]domain.Service),
		users:        make(map[string]domain.User),
	}
}

func (s *Store) PutService(svc domain.Service) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.services[svc.ID] = svc
}

func (s *Store) PutUser(u domain.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
}

func (s *Store) GetService(ctx context.Context, serviceID string) (domain.Service, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	svc, ok := s.services[serviceID]
	if !ok {
		return domain.Service{}, store.ErrNotFound
	}
	return svc, nil
}

func (s *Store) GetUser(ctx context.Context, userID string) (domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok {
		return domain.User{}, store.ErrNotFound
	}
	return u, nil
}

func (s *Store) GetAvailability(ctx context.Context, providerID string) (domain.ProviderAvailability, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pa, ok := s.availability[providerID]
	if !ok {
		return domain.ProviderAvailability{}, store.ErrNotFound
	}
	return pa, nil
}

func (s *Store) SaveAvailability(ctx context.Context, pa domain.ProviderAvailability) (domain.ProviderAvailability, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveAvailabilityLocked(pa), nil
}

func (s *Store) UpdateAvailability(ctx context.Context, providerID string, fn func(pa *domain.ProviderAvailability) error) (domain.ProviderAvailability, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pa, ok := s.availability[providerID]
	if !ok {
		pa = domain.ProviderAvailability{ProviderID: providerID}
	}
	pa = cloneAvailability(pa)
	if err := fn(&pa); err != nil {
		return domain.ProviderAvailability{}, err
	}
	pa.ProviderID = providerID
	return s.saveAvailabilityLocked(pa), nil
}

func (s *Store) saveAvailabilityLocked(pa domain.ProviderAvailability) domain.ProviderAvailability {
	now := time.Now().UTC()
	if existing, ok := s.availability[pa.ProviderID]; ok {
		pa.CreatedAt = existing.CreatedAt
	} else if pa.CreatedAt.IsZero() {
		pa.CreatedAt = now
	}
	pa.UpdatedAt = now
	s.availability[pa.ProviderID] = pa
	return pa
}

func cloneAvailability(pa domain.ProviderAvailability) domain.ProviderAvailability {
	out := pa
	out.DateOverrides = append([]domain.DateOverride(nil), pa.DateOverrides...)
	out.BlockedPeriods = append([]domain.BlockedPeriod(nil), pa.BlockedPeriods...)
	return out
}

func (s *Store) InProviderDay(ctx context.Context, providerID string, date time.Time, fn func(ctx context.Context, tx store.ReservationTx) error) error {
	unlock := s.dayLocks.Lock(providerID + "|" + domain.DateOnly(date).Format(domain.DateLayout))
	defer unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(ctx, reservationTx{s: s})
}

func (s *Store) GetBooking(ctx context.Context, id uuid.UUID) (domain.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.bookings[id]
	if !ok {
		return domain.Booking{}, store.ErrNotFound
	}
	return cloneBooking(b), nil
}

func (s *Store) GetBookingByNumber(ctx context.Context, bookingNumber string) (domain.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byNumber[bookingNumber]
	if !ok {
		return domain.Booking{}, store.ErrNotFound
	}
	return cloneBooking(s.bookings[id]), nil
}

func (s *Store) UpdateBooking(ctx context.Context, bookingNumber string, fn func(b *domain.Booking) error) (domain.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byNumber[bookingNumber]
	if !ok {
		return domain.Booking{}, store.ErrNotFound
	}
	b := cloneBooking(s.bookings[id])
	if err := fn(&b); err != nil {
		return domain.Booking{}, err
	}
	b.UpdatedAt = time.Now().UTC()
	s.bookings[id] = cloneBooking(b)
	return b, nil
}

type reservationTx struct {
	s *Store
}

func (t reservationTx) ListActiveBookings(ctx context.Context, providerID string, date time.Time) ([]domain.Booking, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()

	var out []domain.Booking
	for _, b := range t.s.bookings {
		if b.ProviderID != providerID || !domain.SameDate(b.ScheduledDate, date) || !b.Status.IsActive() {
			continue
		}
		out = append(out, cloneBooking(b))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledTime < out[j].ScheduledTime })
	return out, nil
}

func (t reservationTx) CreateBooking(ctx context.Context, b domain.Booking) (domain.Booking, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	if b.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return domain.Booking{}, err
		}
		b.ID = id
	}
	if existing, ok := t.s.bookings[b.ID]; ok {
		if sameRequest(existing, b) {
			return cloneBooking(existing), nil
		}
		return domain.Booking{}, store.ErrIdempotencyConflict
	}
	if _, taken := t.s.byNumber[b.BookingNumber]; taken {
		return domain.Booking{}, store.ErrConflict
	}
	// Mirrors the storage-level exclusion constraint.
	for _, other := range t.s.bookings {
		if other.ProviderID != b.ProviderID || !domain.SameDate(other.ScheduledDate, b.ScheduledDate) || !other.Status.IsActive() {
			continue
		}
		if occupied(b).Overlaps(occupied(other)) {
			return domain.Booking{}, store.ErrConflict
		}
	}

	now := time.Now().UTC()
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now
	}
	b.UpdatedAt = now
	t.s.bookings[b.ID] = cloneBooking(b)
	t.s.byNumber[b.BookingNumber] = b.ID
	return b, nil
}

// occupied is the span a booking holds including its trailing buffer.
func occupied(b domain.Booking) domain.Interval {
	iv := b.Interval()
	iv.End += b.BufferMinutes
	return iv
}

func sameRequest(a, b domain.Booking) bool {
	return a.CustomerID == b.CustomerID &&
		a.ProviderID == b.ProviderID &&
		a.ServiceID == b.ServiceID &&
		domain.SameDate(a.ScheduledDate, b.ScheduledDate) &&
		a.ScheduledTime == b.ScheduledTime &&
		a.Duration == b.Duration
}

func cloneBooking(b domain.Booking) domain.Booking {
	out := b
	out.StatusHistory = append([]domain.StatusEntry(nil), b.StatusHistory...)
	out.Pricing.AddOns = append([]domain.AddOnLine(nil), b.Pricing.AddOns...)
	out.CancellationPolicy.LateTiers = append([]domain.RefundTier(nil), b.CancellationPolicy.LateTiers...)
	if b.CancellationDetails != nil {
		d := *b.CancellationDetails
		out.CancellationDetails = &d
	}
	if b.ActualDuration != nil {
		d := *b.ActualDuration
		out.ActualDuration = &d
	}
	if b.Metadata != nil {
		out.Metadata = make(map[string]string, len(b.Metadata))
		for k, v := range b.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}

type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*keyedEntry)
	}
	e, ok := k.locks[key]
	if !ok {
		e = &keyedEntry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
