// Package lifecycle owns the booking status graph. Every status change goes
// through Machine.Apply; transitions not listed in the table are refused.
package lifecycle

import (
	"time"

	"homeserve/backend/internal/cancellation"
	"homeserve/backend/internal/domain"
)

type Action string

const (
	ActionConfirm  Action = "confirm"
	ActionReject   Action = "reject"
	ActionStart    Action = "start"
	ActionComplete Action = "complete"
	ActionCancel   Action = "cancel"
)

type transition struct {
	action Action
	from   []domain.BookingStatus
	to     domain.BookingStatus
	actors []domain.ActorRole
}

var transitions = []transition{
	{action: ActionConfirm, from: []domain.BookingStatus{domain.StatusPending}, to: domain.StatusConfirmed, actors: []domain.ActorRole{domain.ActorProvider}},
	{action: ActionReject, from: []domain.BookingStatus{domain.StatusPending}, to: domain.StatusRejected, actors: []domain.ActorRole{domain.ActorProvider}},
	{action: ActionStart, from: []domain.BookingStatus{domain.StatusConfirmed}, to: domain.StatusInProgress, actors: []domain.ActorRole{domain.ActorProvider}},
	{action: ActionComplete, from: []domain.BookingStatus{domain.StatusConfirmed, domain.StatusInProgress}, to: domain.StatusCompleted, actors: []domain.ActorRole{domain.ActorProvider}},
	{action: ActionCancel, from: []domain.BookingStatus{domain.StatusPending, domain.StatusConfirmed}, to: domain.StatusCancelled, actors: []domain.ActorRole{domain.ActorCustomer}},
	{action: ActionCancel, from: []domain.BookingStatus{domain.StatusConfirmed, domain.StatusInProgress}, to: domain.StatusCancelled, actors: []domain.ActorRole{domain.ActorProvider}},
	{action: ActionCancel, from: []domain.BookingStatus{domain.StatusPending, domain.StatusConfirmed, domain.StatusInProgress}, to: domain.StatusCancelled, actors: []domain.ActorRole{domain.ActorAdmin}},
}

type Command struct {
	Action         Action
	Actor          domain.ActorRef
	Note           string
	Reason         string
	ActualDuration *int
	Now            time.Time
}

type Machine struct {
	Cancellation cancellation.Engine
}

func NewMachine(engine cancellation.Engine) *Machine {
	return &Machine{Cancellation: engine}
}

// Initial puts a freshly built booking into its first status. Providers that
// auto-accept skip the pending step; the history still shows both entries.
func (m *Machine) Initial(b *domain.Booking, autoAccept bool, now time.Time) {
	b.StatusHistory = nil
	b.AppendHistory(domain.StatusPending, now, domain.ActorCustomer, "booking requested")
	if autoAccept {
		b.AppendHistory(domain.StatusConfirmed, now, domain.ActorSystem, "auto-accepted by provider settings")
	}
}

// Apply performs cmd on b and returns the status b had before. On error b is
// left untouched.
func (m *Machine) Apply(b *domain.Booking, cmd Command) (domain.BookingStatus, error) {
	prev := b.Status
	if prev.IsTerminal() {
		return prev, m.stateErr(b, cmd.Action, "booking is "+string(prev))
	}

	t, ok := lookup(cmd.Action, prev, cmd.Actor.Role)
	if !ok {
		if !actionKnown(cmd.Action) {
			return prev, m.stateErr(b, cmd.Action, "unknown action")
		}
		if allowedFrom(cmd.Action, prev) && !roleMayEver(cmd.Action, cmd.Actor.Role) {
			return prev, &domain.AuthorizationError{Actor: cmd.Actor, Action: string(cmd.Action), BookingNumber: b.BookingNumber}
		}
		return prev, m.stateErr(b, cmd.Action, "")
	}

	if !owns(b, cmd.Actor) {
		return prev, &domain.AuthorizationError{Actor: cmd.Actor, Action: string(cmd.Action), BookingNumber: b.BookingNumber}
	}

	now := cmd.Now
	if now.IsZero() {
		now = time.Now()
	}

	next := *b
	switch t.to {
	case domain.StatusRejected:
		applyCancellation(&next, cancellation.FullRefund(*b), cmd, now)
	case domain.StatusCancelled:
		q, err := m.Cancellation.Evaluate(*b, now, cmd.Actor.Role)
		if err != nil {
			return prev, err
		}
		applyCancellation(&next, q, cmd, now)
	case domain.StatusCompleted:
		if cmd.ActualDuration != nil {
			if *cmd.ActualDuration <= 0 {
				return prev, domain.NewValidationError("actualDuration", "must be positive")
			}
			d := *cmd.ActualDuration
			next.ActualDuration = &d
		}
	}

	history := make([]domain.StatusEntry, len(b.StatusHistory), len(b.StatusHistory)+1)
	copy(history, b.StatusHistory)
	next.StatusHistory = history
	next.AppendHistory(t.to, now, cmd.Actor.Role, cmd.Note)

	*b = next
	return prev, nil
}

// Allowed lists the actions that have at least one outgoing transition from
// status.
func Allowed(status domain.BookingStatus) []Action {
	var out []Action
	seen := map[Action]bool{}
	for _, t := range transitions {
		if seen[t.action] || !containsStatus(t.from, status) {
			continue
		}
		seen[t.action] = true
		out = append(out, t.action)
	}
	return out
}

func applyCancellation(b *domain.Booking, q cancellation.Quote, cmd Command, now time.Time) {
	b.CancellationDetails = &domain.CancellationDetails{
		CancelledBy:  cmd.Actor.Role,
		CancelledAt:  now.UTC(),
		Reason:       cmd.Reason,
		RefundAmount: q.RefundAmount,
		RefundStatus: q.RefundStatus(),
	}
}

func owns(b *domain.Booking, actor domain.ActorRef) bool {
	switch actor.Role {
	case domain.ActorProvider:
		return actor.ID != "" && actor.ID == b.ProviderID
	case domain.ActorCustomer:
		return actor.ID != "" && actor.ID == b.CustomerID
	case domain.ActorAdmin:
		return true
	}
	return false
}

func lookup(action Action, from domain.BookingStatus, role domain.ActorRole) (transition, bool) {
	for _, t := range transitions {
		if t.action == action && containsStatus(t.from, from) && containsRole(t.actors, role) {
			return t, true
		}
	}
	return transition{}, false
}

func actionKnown(action Action) bool {
	for _, t := range transitions {
		if t.action == action {
			return true
		}
	}
	return false
}

func allowedFrom(action Action, from domain.BookingStatus) bool {
	for _, t := range transitions {
		if t.action == action && containsStatus(t.from, from) {
			return true
		}
	}
	return false
}

// roleMayEver reports whether role can perform action from some status. A
// role that could act from a different status gets a state error instead of
// an authorization error.
func roleMayEver(action Action, role domain.ActorRole) bool {
	for _, t := range transitions {
		if t.action == action && containsRole(t.actors, role) {
			return true
		}
	}
	return false
}

func containsStatus(list []domain.BookingStatus, s domain.BookingStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func containsRole(list []domain.ActorRole, r domain.ActorRole) bool {
	for _, v := range list {
		if v == r {
			return true
		}
	}
	return false
}

func (m *Machine) stateErr(b *domain.Booking, action Action, reason string) error {
	return &domain.StateTransitionError{
		BookingNumber: b.BookingNumber,
		From:          b.Status,
		Action:        string(action),
		Reason:        reason,
	}
}
