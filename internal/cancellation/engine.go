package cancellation

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"homeserve/backend/internal/domain"
)

const DefaultFreeWindow = 24 * time.Hour

// Engine attaches a cancellation policy to new bookings and applies the
// policy stored on a booking when it is cancelled. It never invents terms of
// its own at cancellation time.
type Engine struct {
	FreeWindow time.Duration
	LateTiers  []domain.RefundTier
}

func NewEngine(freeWindow time.Duration, lateTiers []domain.RefundTier) Engine {
	if freeWindow < 0 {
		freeWindow = DefaultFreeWindow
	}
	tiers := make([]domain.RefundTier, len(lateTiers))
	copy(tiers, lateTiers)
	sortTiers(tiers)
	return Engine{FreeWindow: freeWindow, LateTiers: tiers}
}

func (e Engine) PolicyFor(startsAt time.Time) domain.CancellationPolicy {
	tiers := make([]domain.RefundTier, len(e.LateTiers))
	copy(tiers, e.LateTiers)
	return domain.CancellationPolicy{
		AllowedUntil:     startsAt.Add(-e.FreeWindow).UTC(),
		RefundPercentage: 100,
		CancellationFee:  decimal.Zero,
		LateTiers:        tiers,
	}
}

type Quote struct {
	RefundPercentage int
	Fee              decimal.Decimal
	RefundAmount     decimal.Decimal
}

func (q Quote) RefundStatus() domain.RefundStatus {
	if q.RefundAmount.IsPositive() {
		return domain.RefundPending
	}
	return domain.RefundNone
}

// FullRefund is the quote for cancellations the customer did not cause.
func FullRefund(b domain.Booking) Quote {
	return Quote{
		RefundPercentage: 100,
		Fee:              decimal.Zero,
		RefundAmount:     b.Pricing.TotalAmount,
	}
}

// Evaluate prices a cancellation of b initiated by role at now.
func (e Engine) Evaluate(b domain.Booking, now time.Time, role domain.ActorRole) (Quote, error) {
	if role != domain.ActorCustomer {
		return FullRefund(b), nil
	}

	p := b.CancellationPolicy
	if !now.After(p.AllowedUntil) {
		return quote(b, p.RefundPercentage, p.CancellationFee), nil
	}

	notice := b.StartsAt.Sub(now)
	if notice <= 0 {
		return Quote{}, &domain.StateTransitionError{
			BookingNumber: b.BookingNumber,
			From:          b.Status,
			Action:        "cancel",
			Reason:        "appointment has already started",
		}
	}

	tiers := make([]domain.RefundTier, len(p.LateTiers))
	copy(tiers, p.LateTiers)
	sortTiers(tiers)
	for _, t := range tiers {
		if notice >= t.MinNotice {
			return quote(b, t.RefundPercentage, t.Fee), nil
		}
	}

	return Quote{}, &domain.StateTransitionError{
		BookingNumber: b.BookingNumber,
		From:          b.Status,
		Action:        "cancel",
		Reason:        "cancellation window has expired",
	}
}

func quote(b domain.Booking, pct int, fee decimal.Decimal) Quote {
	pct = min(max(pct, 0), 100)
	amount := b.Pricing.TotalAmount.
		Mul(decimal.NewFromInt(int64(pct))).
		Div(decimal.NewFromInt(100)).
		Sub(fee).
		Round(2)
	if amount.IsNegative() {
		amount = decimal.Zero
	}
	return Quote{RefundPercentage: pct, Fee: fee, RefundAmount: amount}
}

// sortTiers orders tiers from the longest notice to the shortest so the first
// match is the most generous one the customer qualifies for.
func sortTiers(tiers []domain.RefundTier) {
	sort.SliceStable(tiers, func(i, j int) bool {
		return tiers[i].MinNotice > tiers[j].MinNotice
	})
}
