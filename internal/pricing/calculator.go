package pricing

import (
	"errors"

	"github.com/shopspring/decimal"

	"homeserve/backend/internal/domain"
)

// MoneyPlaces is the number of decimal places kept for tax and totals.
const MoneyPlaces = 2

type Calculator struct {
	TaxRate decimal.Decimal
}

func NewCalculator(taxRate decimal.Decimal) (Calculator, error) {
	if taxRate.IsNegative() {
		return Calculator{}, errors.New("tax rate must not be negative")
	}
	return Calculator{TaxRate: taxRate}, nil
}

// Price snapshots the price of a booking. The currency is carried through
// unchanged; no conversion happens here.
func (c Calculator) Price(base decimal.Decimal, addOns []domain.AddOnLine, currency string) domain.Pricing {
	subtotal := base
	lines := make([]domain.AddOnLine, 0, len(addOns))
	for _, a := range addOns {
		subtotal = subtotal.Add(a.Price)
		lines = append(lines, a)
	}
	tax := subtotal.Mul(c.TaxRate).Round(MoneyPlaces)

	return domain.Pricing{
		BasePrice:   base,
		AddOns:      lines,
		Subtotal:    subtotal,
		TaxRate:     c.TaxRate,
		Tax:         tax,
		TotalAmount: subtotal.Add(tax),
		Currency:    currency,
	}
}

// AddOnLines resolves the requested add-on ids against the service's
// catalogue. Unknown or repeated ids are rejected.
func AddOnLines(svc domain.Service, ids []string) ([]domain.AddOnLine, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	byID := make(map[string]domain.ServiceAddOn, len(svc.AddOns))
	for _, a := range svc.AddOns {
		byID[a.ID] = a
	}
	seen := make(map[string]struct{}, len(ids))
	out := make([]domain.AddOnLine, 0, len(ids))
	for _, id := range ids {
		a, ok := byID[id]
		if !ok {
			return nil, domain.NewValidationError("addOnIds", "unknown add-on "+id)
		}
		if _, dup := seen[id]; dup {
			return nil, domain.NewValidationError("addOnIds", "duplicate add-on "+id)
		}
		seen[id] = struct{}{}
		out = append(out, domain.AddOnLine{ID: a.ID, Name: a.Name, Price: a.Price})
	}
	return out, nil
}
