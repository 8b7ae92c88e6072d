// Package bookings orchestrates reservations and booking status changes.
package bookings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"homeserve/backend/internal/availability"
	"homeserve/backend/internal/cancellation"
	"homeserve/backend/internal/conflict"
	"homeserve/backend/internal/domain"
	"homeserve/backend/internal/events"
	"homeserve/backend/internal/lifecycle"
	"homeserve/backend/internal/pricing"
	"homeserve/backend/internal/store"
)

const (
	maxIdempotencyKeyLen = 256
	publishTimeout       = 5 * time.Second
)

type Deps struct {
	Bookings     store.BookingRepository
	Availability store.AvailabilityStore
	Catalog      store.ServiceCatalog
	Users        store.UserDirectory
	Publisher    events.Publisher
}

type Options struct {
	Pricing        pricing.Calculator
	Cancellation   cancellation.Engine
	SuggestionStep int
	// CommitRetries is how many times a reservation that lost a commit-time
	// race is re-evaluated against a fresh read.
	CommitRetries int
	Now           func() time.Time
	Log           *slog.Logger
}

type Service struct {
	bookings     store.BookingRepository
	availability store.AvailabilityStore
	catalog      store.ServiceCatalog
	users        store.UserDirectory
	publisher    events.Publisher

	pricing       pricing.Calculator
	machine       *lifecycle.Machine
	cancellation  cancellation.Engine
	checker       conflict.Checker
	commitRetries int
	now           func() time.Time
	log           *slog.Logger
}

func NewService(deps Deps, opts Options) *Service {
	pub := deps.Publisher
	if pub == nil {
		pub = events.Nop{}
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	retries := opts.CommitRetries
	if retries < 0 {
		retries = 0
	}
	return &Service{
		bookings:      deps.Bookings,
		availability:  deps.Availability,
		catalog:       deps.Catalog,
		users:         deps.Users,
		publisher:     pub,
		pricing:       opts.Pricing,
		machine:       lifecycle.NewMachine(opts.Cancellation),
		cancellation:  opts.Cancellation,
		checker:       conflict.NewChecker(opts.SuggestionStep),
		commitRetries: retries,
		now:           now,
		log:           log.With(slog.String("component", "service.bookings")),
	}
}

type CreateInput struct {
	CustomerID      string
	ProviderID      string
	ServiceID       string
	ScheduledDate   string
	ScheduledTime   string
	AddOnIDs        []string
	SpecialRequests string
	Metadata        map[string]string
	IdempotencyKey  string
}

// reservation is a validated CreateInput with everything resolved that does
// not depend on the provider's other bookings.
type reservation struct {
	id       uuid.UUID
	keyed    bool
	in       CreateInput
	service  domain.Service
	avail    domain.ProviderAvailability
	date     time.Time
	start    int
	startsAt time.Time
	now      time.Time
	today    bool
	nowMin   int
	pricing  domain.Pricing
}

// Create reserves a slot for the customer. The decision and the insert happen
// while the provider's day is held, so two requests for the same slot can
// never both succeed.
func (s *Service) Create(ctx context.Context, in CreateInput) (domain.Booking, error) {
	r, err := s.prepare(ctx, in)
	if err != nil {
		return domain.Booking{}, err
	}

	if r.keyed {
		existing, err := s.bookings.GetBooking(ctx, r.id)
		switch {
		case err == nil:
			if !sameReservation(existing, r) {
				return domain.Booking{}, store.ErrIdempotencyConflict
			}
			return existing, nil
		case !errors.Is(err, store.ErrNotFound):
			return domain.Booking{}, err
		}
	}

	for attempt := 0; ; attempt++ {
		b, replayed, err := s.reserve(ctx, r)
		var cc *domain.ConcurrencyConflictError
		if errors.As(err, &cc) {
			if attempt < s.commitRetries {
				s.log.InfoContext(ctx, "reservation lost commit race; retrying",
					slog.String("provider_id", in.ProviderID),
					slog.String("date", in.ScheduledDate),
					slog.Int("attempt", attempt+1),
				)
				if !r.keyed {
					if r.id, err = uuid.NewV7(); err != nil {
						return domain.Booking{}, err
					}
				}
				continue
			}
			return domain.Booking{}, &domain.ConflictError{ProviderID: in.ProviderID}
		}
		if err != nil {
			return domain.Booking{}, err
		}
		if !replayed {
			s.log.InfoContext(ctx, "booking created",
				slog.String("booking_number", b.BookingNumber),
				slog.String("provider_id", b.ProviderID),
				slog.String("status", string(b.Status)),
			)
			s.notify(ctx, b, "")
		}
		return b, nil
	}
}

func (s *Service) prepare(ctx context.Context, in CreateInput) (reservation, error) {
	in.CustomerID = strings.TrimSpace(in.CustomerID)
	in.ProviderID = strings.TrimSpace(in.ProviderID)
	in.ServiceID = strings.TrimSpace(in.ServiceID)
	switch {
	case in.CustomerID == "":
		return reservation{}, domain.NewValidationError("customerId", "is required")
	case in.ProviderID == "":
		return reservation{}, domain.NewValidationError("providerId", "is required")
	case in.ServiceID == "":
		return reservation{}, domain.NewValidationError("serviceId", "is required")
	}
	date, err := domain.ParseDate(in.ScheduledDate)
	if err != nil {
		return reservation{}, domain.NewValidationError("scheduledDate", "must be YYYY-MM-DD")
	}
	start, err := domain.ParseClock(in.ScheduledTime)
	if err != nil || start >= domain.MinutesPerDay {
		return reservation{}, domain.NewValidationError("scheduledTime", "must be HH:MM")
	}

	r := reservation{in: in, date: date, start: start}

	key := strings.TrimSpace(in.IdempotencyKey)
	if key != "" {
		if len(key) > maxIdempotencyKeyLen {
			return reservation{}, domain.NewValidationError("idempotencyKey", "too long")
		}
		r.id = uuid.NewSHA1(uuid.NameSpaceOID, []byte("homeserve:create_booking:"+in.CustomerID+":"+key))
		r.keyed = true
	} else if r.id, err = uuid.NewV7(); err != nil {
		return reservation{}, err
	}

	svc, err := s.catalog.GetService(ctx, in.ServiceID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return reservation{}, fmt.Errorf("service %s: %w", in.ServiceID, store.ErrNotFound)
		}
		return reservation{}, err
	}
	if !svc.IsActive {
		return reservation{}, fmt.Errorf("service %s: %w", svc.ID, domain.ErrServiceUnavailable)
	}
	if svc.Duration <= 0 {
		return reservation{}, fmt.Errorf("service %s has no duration: %w", svc.ID, domain.ErrServiceUnavailable)
	}
	r.service = svc

	provider, err := s.users.GetUser(ctx, in.ProviderID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return reservation{}, fmt.Errorf("provider %s: %w", in.ProviderID, domain.ErrProviderNotFound)
		}
		return reservation{}, err
	}
	if provider.Role != domain.ActorProvider {
		return reservation{}, fmt.Errorf("user %s is not a provider: %w", in.ProviderID, domain.ErrProviderNotFound)
	}

	addOns, err := pricing.AddOnLines(svc, in.AddOnIDs)
	if err != nil {
		return reservation{}, err
	}

	pa, err := s.availability.GetAvailability(ctx, in.ProviderID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return reservation{}, &domain.AvailabilityError{
				ProviderID: in.ProviderID,
				Date:       date,
				Reason:     "provider has no availability schedule",
			}
		}
		return reservation{}, err
	}
	r.avail = pa

	loc := pa.Location()
	now := s.now().In(loc)
	today := domain.DateOnly(now)
	r.now = now
	r.nowMin = now.Hour()*60 + now.Minute()
	if date.Before(today) {
		return reservation{}, domain.NewValidationError("scheduledDate", "must not be in the past")
	}
	if pa.MaxAdvanceBookingDays > 0 && date.After(today.AddDate(0, 0, pa.MaxAdvanceBookingDays)) {
		return reservation{}, domain.NewValidationError("scheduledDate",
			fmt.Sprintf("must be within %d days", pa.MaxAdvanceBookingDays))
	}
	if date.Equal(today) {
		r.today = true
		if start <= r.nowMin {
			return reservation{}, domain.NewValidationError("scheduledTime", "must be in the future")
		}
	}

	r.startsAt = time.Date(date.Year(), date.Month(), date.Day(), start/60, start%60, 0, 0, loc)
	r.pricing = s.pricing.Price(svc.Price.Amount, addOns, svc.Price.Currency)
	return r, nil
}

// reserve runs one decide-and-insert attempt. A lost commit race comes back
// as a ConcurrencyConflictError.
func (s *Service) reserve(ctx context.Context, r reservation) (domain.Booking, bool, error) {
	var (
		out      domain.Booking
		replayed bool
	)
	providerID := r.in.ProviderID
	err := s.bookings.InProviderDay(ctx, providerID, r.date, func(ctx context.Context, tx store.ReservationTx) error {
		existing, err := tx.ListActiveBookings(ctx, providerID, r.date)
		if err != nil {
			return err
		}
		for _, b := range existing {
			if b.ID != r.id {
				continue
			}
			if !sameReservation(b, r) {
				return store.ErrIdempotencyConflict
			}
			out, replayed = b, true
			return nil
		}

		res, err := availability.Describe(r.avail, r.date)
		if err != nil {
			return err
		}
		windows := res.Windows
		if r.today {
			windows = availability.ClipPast(windows, r.nowMin+1)
		}
		if len(windows) == 0 {
			reason := res.Reason
			if reason == "" {
				reason = "no open hours left today"
			}
			return &domain.AvailabilityError{ProviderID: providerID, Date: r.date, Reason: reason}
		}

		buffer := r.avail.BufferTime.Effective()
		result := s.checker.Check(conflict.Request{
			OpenWindows: windows,
			Existing:    existing,
			Start:       r.start,
			Duration:    r.service.Duration,
			Buffer:      buffer,
		})
		if !result.Accepted {
			return rejection(r, result)
		}

		b := s.newBooking(r, buffer)
		created, err := tx.CreateBooking(ctx, b)
		if err != nil {
			if errors.Is(err, store.ErrConflict) {
				return &domain.ConcurrencyConflictError{ProviderID: providerID, Date: r.date}
			}
			return err
		}
		out = created
		return nil
	})
	if err != nil {
		return domain.Booking{}, false, err
	}
	return out, replayed, nil
}

func rejection(r reservation, result conflict.Result) error {
	switch result.Reason {
	case conflict.ReasonOutsideOpenHours:
		return &domain.AvailabilityError{
			ProviderID:  r.in.ProviderID,
			Date:        r.date,
			Reason:      "requested time is outside open hours",
			Suggestions: result.Suggestions,
		}
	case conflict.ReasonOverlap:
		return &domain.ConflictError{
			ProviderID:         r.in.ProviderID,
			ConflictingBooking: result.ConflictingBooking,
			Suggestions:        result.Suggestions,
		}
	default:
		return domain.NewValidationError("scheduledTime", "service does not fit within the day")
	}
}

func (s *Service) newBooking(r reservation, buffer int) domain.Booking {
	b := domain.Booking{
		ID:                 r.id,
		BookingNumber:      BookingNumber(r.now, r.id),
		CustomerID:         r.in.CustomerID,
		ProviderID:         r.in.ProviderID,
		ServiceID:          r.service.ID,
		ScheduledDate:      r.date,
		ScheduledTime:      r.start,
		Duration:           r.service.Duration,
		EstimatedEndTime:   r.start + r.service.Duration,
		BufferMinutes:      buffer,
		StartsAt:           r.startsAt.UTC(),
		Pricing:            r.pricing,
		CancellationPolicy: s.cancellation.PolicyFor(r.startsAt),
		SpecialRequests:    strings.TrimSpace(r.in.SpecialRequests),
		Metadata:           r.in.Metadata,
	}
	s.machine.Initial(&b, r.avail.AutoAcceptBookings, r.now)
	return b
}

// BookingNumber is the public reference of a booking: BK-YYYYMMDD-XXXXXXXX,
// dated by creation and suffixed with the random tail of the booking id.
func BookingNumber(createdAt time.Time, id uuid.UUID) string {
	hex := strings.ReplaceAll(id.String(), "-", "")
	return "BK-" + createdAt.UTC().Format("20060102") + "-" + strings.ToUpper(hex[len(hex)-8:])
}

func sameReservation(b domain.Booking, r reservation) bool {
	return b.CustomerID == r.in.CustomerID &&
		b.ProviderID == r.in.ProviderID &&
		b.ServiceID == r.service.ID &&
		domain.SameDate(b.ScheduledDate, r.date) &&
		b.ScheduledTime == r.start
}

// notify hands the change to the publisher. The change is already committed,
// so failures are logged and never returned.
func (s *Service) notify(ctx context.Context, b domain.Booking, previous domain.BookingStatus) {
	ev := events.NewStatusChanged(b, previous)
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			s.log.ErrorContext(ctx, "publisher panicked", slog.Any("panic", r), slog.String("booking_number", b.BookingNumber))
		}
	}()
	if err := s.publisher.Publish(ctx, ev); err != nil {
		s.log.WarnContext(ctx, "status change not published",
			slog.Any("err", err),
			slog.String("booking_number", b.BookingNumber),
			slog.String("status", string(b.Status)),
		)
	}
}
