package lifecycle

import (
	"reflect"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"homeserve/backend/internal/cancellation"
	"homeserve/backend/internal/domain"
)

var (
	now      = time.Date(2026, 2, 27, 9, 0, 0, 0, time.UTC)
	startsAt = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	customer = domain.ActorRef{Role: domain.ActorCustomer, ID: "cust-1"}
	provider = domain.ActorRef{Role: domain.ActorProvider, ID: "prov-1"}
	admin    = domain.ActorRef{Role: domain.ActorAdmin, ID: "ops"}

	allStatuses = []domain.BookingStatus{
		domain.StatusPending, domain.StatusConfirmed, domain.StatusInProgress,
		domain.StatusCompleted, domain.StatusCancelled, domain.StatusRejected,
	}
	allActions = []Action{ActionConfirm, ActionReject, ActionStart, ActionComplete, ActionCancel}
	allActors  = []domain.ActorRef{customer, provider, admin}
)

func newMachine() *Machine {
	return NewMachine(cancellation.NewEngine(24*time.Hour, nil))
}

func bookingIn(status domain.BookingStatus) domain.Booking {
	b := domain.Booking{
		BookingNumber: "BK-20260227-0000000A",
		CustomerID:    customer.ID,
		ProviderID:    provider.ID,
		StartsAt:      startsAt,
		Pricing:       domain.Pricing{TotalAmount: decimal.NewFromInt(590)},
	}
	b.CancellationPolicy = cancellation.NewEngine(24*time.Hour, nil).PolicyFor(startsAt)
	b.AppendHistory(status, now.Add(-time.Hour), domain.ActorCustomer, "")
	return b
}

// expected mirrors the transition table from the actor's point of view.
func expected(action Action, from domain.BookingStatus, role domain.ActorRole) (domain.BookingStatus, bool) {
	switch action {
	case ActionConfirm:
		return domain.StatusConfirmed, role == domain.ActorProvider && from == domain.StatusPending
	case ActionReject:
		return domain.StatusRejected, role == domain.ActorProvider && from == domain.StatusPending
	case ActionStart:
		return domain.StatusInProgress, role == domain.ActorProvider && from == domain.StatusConfirmed
	case ActionComplete:
		return domain.StatusCompleted, role == domain.ActorProvider && (from == domain.StatusConfirmed || from == domain.StatusInProgress)
	case ActionCancel:
		switch role {
		case domain.ActorCustomer:
			return domain.StatusCancelled, from == domain.StatusPending || from == domain.StatusConfirmed
		case domain.ActorProvider:
			return domain.StatusCancelled, from == domain.StatusConfirmed || from == domain.StatusInProgress
		case domain.ActorAdmin:
			return domain.StatusCancelled, from.IsActive()
		}
	}
	return "", false
}

func TestApply_Exhaustive(t *testing.T) {
	m := newMachine()
	for _, from := range allStatuses {
		for _, action := range allActions {
			for _, actor := range allActors {
				name := string(action) + "/" + string(from) + "/" + string(actor.Role)
				t.Run(name, func(t *testing.T) {
					b := bookingIn(from)
					before := bookingIn(from)
					wantTo, ok := expected(action, from, actor.Role)

					prev, err := m.Apply(&b, Command{Action: action, Actor: actor, Now: now, Note: "n"})
					if prev != from {
						t.Fatalf("prev = %s, want %s", prev, from)
					}
					if !ok {
						if err == nil {
							t.Fatalf("transition unexpectedly allowed")
						}
						kind := domain.KindOf(err)
						if kind != domain.KindStateTransition && kind != domain.KindAuthorization {
							t.Fatalf("error kind = %q (%v)", kind, err)
						}
						if !reflect.DeepEqual(b, before) {
							t.Fatalf("refused transition changed the booking")
						}
						return
					}
					if err != nil {
						t.Fatalf("Apply: %v", err)
					}
					if b.Status != wantTo {
						t.Fatalf("status = %s, want %s", b.Status, wantTo)
					}
					if len(b.StatusHistory) != len(before.StatusHistory)+1 {
						t.Fatalf("history grew by %d", len(b.StatusHistory)-len(before.StatusHistory))
					}
					last := b.StatusHistory[len(b.StatusHistory)-1]
					if last.Status != wantTo || last.Actor != actor.Role || last.Note != "n" || !last.Timestamp.Equal(now) {
						t.Fatalf("history entry = %+v", last)
					}
				})
			}
		}
	}
}

func TestApply_TerminalStatusesAreFinal(t *testing.T) {
	m := newMachine()
	for _, s := range []domain.BookingStatus{domain.StatusCompleted, domain.StatusCancelled, domain.StatusRejected} {
		for _, action := range allActions {
			for _, actor := range allActors {
				b := bookingIn(s)
				if _, err := m.Apply(&b, Command{Action: action, Actor: actor, Now: now}); domain.KindOf(err) != domain.KindStateTransition {
					t.Fatalf("%s on %s by %s: error = %v, want state transition", action, s, actor.Role, err)
				}
			}
		}
		if got := Allowed(s); len(got) != 0 {
			t.Fatalf("Allowed(%s) = %v, want none", s, got)
		}
	}
}

func TestApply_Ownership(t *testing.T) {
	m := newMachine()
	tests := []struct {
		name   string
		action Action
		actor  domain.ActorRef
		from   domain.BookingStatus
	}{
		{name: "foreign provider confirms", action: ActionConfirm, actor: domain.ActorRef{Role: domain.ActorProvider, ID: "prov-2"}, from: domain.StatusPending},
		{name: "foreign customer cancels", action: ActionCancel, actor: domain.ActorRef{Role: domain.ActorCustomer, ID: "cust-2"}, from: domain.StatusConfirmed},
		{name: "customer confirms", action: ActionConfirm, actor: customer, from: domain.StatusPending},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := bookingIn(tt.from)
			_, err := m.Apply(&b, Command{Action: tt.action, Actor: tt.actor, Now: now})
			if domain.KindOf(err) != domain.KindAuthorization {
				t.Fatalf("error = %v, want authorization", err)
			}
		})
	}
}

func TestApply_CancellationDetails(t *testing.T) {
	m := newMachine()

	b := bookingIn(domain.StatusConfirmed)
	if _, err := m.Apply(&b, Command{Action: ActionCancel, Actor: customer, Reason: "moved", Now: now}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	d := b.CancellationDetails
	if d == nil || d.CancelledBy != domain.ActorCustomer || d.Reason != "moved" || !d.RefundAmount.Equal(decimal.NewFromInt(590)) || d.RefundStatus != domain.RefundPending {
		t.Fatalf("details = %+v", d)
	}

	late := bookingIn(domain.StatusConfirmed)
	_, err := m.Apply(&late, Command{Action: ActionCancel, Actor: customer, Now: startsAt.Add(-time.Hour)})
	if domain.KindOf(err) != domain.KindStateTransition || late.CancellationDetails != nil {
		t.Fatalf("late cancel error = %v, details = %+v", err, late.CancellationDetails)
	}

	rej := bookingIn(domain.StatusPending)
	if _, err := m.Apply(&rej, Command{Action: ActionReject, Actor: provider, Now: now}); err != nil {
		t.Fatalf("reject: %v", err)
	}
	if rej.CancellationDetails == nil || !rej.CancellationDetails.RefundAmount.Equal(decimal.NewFromInt(590)) {
		t.Fatalf("reject details = %+v", rej.CancellationDetails)
	}
}

func TestApply_CompleteRecordsActualDuration(t *testing.T) {
	m := newMachine()
	b := bookingIn(domain.StatusInProgress)

	bad := 0
	if _, err := m.Apply(&b, Command{Action: ActionComplete, Actor: provider, ActualDuration: &bad, Now: now}); domain.KindOf(err) != domain.KindValidation {
		t.Fatalf("error = %v, want validation", err)
	}
	if b.Status != domain.StatusInProgress {
		t.Fatalf("booking changed on invalid duration")
	}

	d := 80
	if _, err := m.Apply(&b, Command{Action: ActionComplete, Actor: provider, ActualDuration: &d, Now: now}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	d = 1
	if b.ActualDuration == nil || *b.ActualDuration != 80 {
		t.Fatalf("actual duration = %v", b.ActualDuration)
	}
	if !b.Pricing.TotalAmount.Equal(decimal.NewFromInt(590)) {
		t.Fatalf("pricing changed")
	}
}

func TestApply_DoesNotShareHistory(t *testing.T) {
	m := newMachine()
	orig := bookingIn(domain.StatusPending)
	orig.StatusHistory = append(make([]domain.StatusEntry, 0, 8), orig.StatusHistory...)
	b := orig
	if _, err := m.Apply(&b, Command{Action: ActionConfirm, Actor: provider, Now: now}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(orig.StatusHistory) != 1 {
		t.Fatalf("original history mutated")
	}
	if &orig.StatusHistory[0] == &b.StatusHistory[0] {
		t.Fatalf("history backing array shared")
	}
}

func TestInitial(t *testing.T) {
	m := newMachine()
	var b domain.Booking
	m.Initial(&b, false, now)
	if b.Status != domain.StatusPending || len(b.StatusHistory) != 1 {
		t.Fatalf("manual accept: %+v", b.StatusHistory)
	}
	m.Initial(&b, true, now)
	if b.Status != domain.StatusConfirmed || len(b.StatusHistory) != 2 || b.StatusHistory[1].Actor != domain.ActorSystem {
		t.Fatalf("auto accept: %+v", b.StatusHistory)
	}
}

func TestAllowed(t *testing.T) {
	got := Allowed(domain.StatusPending)
	want := []Action{ActionConfirm, ActionReject, ActionCancel}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Allowed(pending) = %v, want %v", got, want)
	}
}
