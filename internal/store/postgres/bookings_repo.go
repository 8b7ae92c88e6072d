package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/uptrace/bun"

	"homeserve/backend/internal/domain"
	"homeserve/backend/internal/store"
)

const (
	constraintNoOverlap     = "bookings_no_overlap"
	constraintPrimaryKey    = "bookings_pkey"
	constraintBookingNumber = "bookings_booking_number_key"

	pgExclusionViolation = "23P01"
	pgUniqueViolation    = "23505"
)

type BookingRepo struct {
	db *bun.DB
}

func NewBookingRepo(db *bun.DB) *BookingRepo {
	return &BookingRepo{db: db}
}

type reservationTx struct {
	tx bun.Tx
}

// InProviderDay runs fn in a transaction holding an advisory lock on the
// provider's calendar for date. Concurrent reservations for the same provider
// and date queue on the lock; the bookings_no_overlap constraint catches any
// writer that bypasses it.
func (r *BookingRepo) InProviderDay(ctx context.Context, providerID string, date time.Time, fn func(ctx context.Context, tx store.ReservationTx) error) error {
	return r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := lockProviderDay(ctx, tx, providerID, date); err != nil {
			return err
		}
		return fn(ctx, reservationTx{tx: tx})
	})
}

func lockProviderDay(ctx context.Context, tx bun.Tx, providerID string, date time.Time) error {
	key := providerID + "|" + domain.DateOnly(date).Format(domain.DateLayout)
	_, err := tx.NewRaw("SELECT pg_advisory_xact_lock(hashtext(?))", key).Exec(ctx)
	return err
}

func (r reservationTx) ListActiveBookings(ctx context.Context, providerID string, date time.Time) ([]domain.Booking, error) {
	var rows []domain.Booking
	err := r.tx.NewSelect().
		Model(&rows).
		Where("provider_id = ?", providerID).
		Where("scheduled_date = ?", domain.DateOnly(date).Format(domain.DateLayout)).
		Where("status IN (?)", bun.In(domain.ActiveStatuses)).
		OrderExpr("scheduled_time ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r reservationTx) CreateBooking(ctx context.Context, b domain.Booking) (domain.Booking, error) {
	if b.ID != uuid.Nil {
		var existing domain.Booking
		err := r.tx.NewSelect().Model(&existing).Where("id = ?", b.ID).Limit(1).Scan(ctx)
		switch {
		case err == nil:
			if !sameRequest(existing, b) {
				return domain.Booking{}, store.ErrIdempotencyConflict
			}
			return existing, nil
		case !errors.Is(err, sql.ErrNoRows):
			return domain.Booking{}, err
		}
	}

	m := b
	if _, err := r.tx.NewInsert().Model(&m).Exec(ctx); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch {
			case pgErr.Code == pgExclusionViolation && pgErr.ConstraintName == constraintNoOverlap:
				return domain.Booking{}, store.ErrConflict
			case pgErr.Code == pgUniqueViolation && pgErr.ConstraintName == constraintBookingNumber:
				return domain.Booking{}, store.ErrConflict
			case pgErr.Code == pgUniqueViolation && pgErr.ConstraintName == constraintPrimaryKey:
				return domain.Booking{}, store.ErrIdempotencyConflict
			}
		}
		return domain.Booking{}, err
	}
	return m, nil
}

func (r *BookingRepo) GetBooking(ctx context.Context, id uuid.UUID) (domain.Booking, error) {
	var b domain.Booking
	err := r.db.NewSelect().Model(&b).Where("id = ?", id).Limit(1).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Booking{}, store.ErrNotFound
		}
		return domain.Booking{}, err
	}
	return b, nil
}

func (r *BookingRepo) GetBookingByNumber(ctx context.Context, bookingNumber string) (domain.Booking, error) {
	var b domain.Booking
	err := r.db.NewSelect().Model(&b).Where("booking_number = ?", bookingNumber).Limit(1).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Booking{}, store.ErrNotFound
		}
		return domain.Booking{}, err
	}
	return b, nil
}

func (r *BookingRepo) UpdateBooking(ctx context.Context, bookingNumber string, fn func(b *domain.Booking) error) (domain.Booking, error) {
	var out domain.Booking
	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var b domain.Booking
		err := tx.NewSelect().
			Model(&b).
			Where("booking_number = ?", bookingNumber).
			For("UPDATE").
			Limit(1).
			Scan(ctx)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return store.ErrNotFound
			}
			return err
		}
		if err := fn(&b); err != nil {
			return err
		}
		if _, err := tx.NewUpdate().Model(&b).WherePK().Exec(ctx); err != nil {
			return err
		}
		out = b
		return nil
	})
	if err != nil {
		return domain.Booking{}, err
	}
	return out, nil
}

func sameRequest(a, b domain.Booking) bool {
	return a.CustomerID == b.CustomerID &&
		a.ProviderID == b.ProviderID &&
		a.ServiceID == b.ServiceID &&
		domain.SameDate(a.ScheduledDate, b.ScheduledDate) &&
		a.ScheduledTime == b.ScheduledTime &&
		a.Duration == b.Duration
}
