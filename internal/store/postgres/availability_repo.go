package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/uptrace/bun"

	"homeserve/backend/internal/domain"
	"homeserve/backend/internal/store"
)

type AvailabilityRepo struct {
	db *bun.DB
}

func NewAvailabilityRepo(db *bun.DB) *AvailabilityRepo {
	return &AvailabilityRepo{db: db}
}

func (r *AvailabilityRepo) GetAvailability(ctx context.Context, providerID string) (domain.ProviderAvailability, error) {
	var pa domain.ProviderAvailability
	err := r.db.NewSelect().Model(&pa).Where("provider_id = ?", providerID).Limit(1).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ProviderAvailability{}, store.ErrNotFound
		}
		return domain.ProviderAvailability{}, err
	}
	return pa, nil
}

func (r *AvailabilityRepo) SaveAvailability(ctx context.Context, pa domain.ProviderAvailability) (domain.ProviderAvailability, error) {
	return upsertAvailability(ctx, r.db, pa)
}

// UpdateAvailability holds an advisory lock on the provider for the length of
// the transaction. A row lock alone would not cover a provider whose document
// does not exist yet.
func (r *AvailabilityRepo) UpdateAvailability(ctx context.Context, providerID string, fn func(pa *domain.ProviderAvailability) error) (domain.ProviderAvailability, error) {
	var out domain.ProviderAvailability
	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewRaw("SELECT pg_advisory_xact_lock(hashtext(?))", "availability|"+providerID).Exec(ctx); err != nil {
			return err
		}

		pa := domain.ProviderAvailability{ProviderID: providerID}
		err := tx.NewSelect().Model(&pa).Where("provider_id = ?", providerID).Limit(1).Scan(ctx)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return err
		}
		if err := fn(&pa); err != nil {
			return err
		}
		pa.ProviderID = providerID

		saved, err := upsertAvailability(ctx, tx, pa)
		if err != nil {
			return err
		}
		out = saved
		return nil
	})
	if err != nil {
		return domain.ProviderAvailability{}, err
	}
	return out, nil
}

func upsertAvailability(ctx context.Context, db bun.IDB, pa domain.ProviderAvailability) (domain.ProviderAvailability, error) {
	m := pa
	if m.DateOverrides == nil {
		m.DateOverrides = []domain.DateOverride{}
	}
	if m.BlockedPeriods == nil {
		m.BlockedPeriods = []domain.BlockedPeriod{}
	}
	_, err := db.NewInsert().
		Model(&m).
		On("CONFLICT (provider_id) DO UPDATE").
		Set("timezone = EXCLUDED.timezone").
		Set("weekly_schedule = EXCLUDED.weekly_schedule").
		Set("date_overrides = EXCLUDED.date_overrides").
		Set("blocked_periods = EXCLUDED.blocked_periods").
		Set("buffer_time = EXCLUDED.buffer_time").
		Set("max_advance_booking_days = EXCLUDED.max_advance_booking_days").
		Set("auto_accept_bookings = EXCLUDED.auto_accept_bookings").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return domain.ProviderAvailability{}, err
	}
	return m, nil
}
