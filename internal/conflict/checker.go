package conflict

import (
	"homeserve/backend/internal/domain"
)

const DefaultSuggestionStep = 30

type Reason string

const (
	ReasonNone             Reason = ""
	ReasonInvalidRequest   Reason = "invalid_request"
	ReasonOutsideOpenHours Reason = "outside_open_hours"
	ReasonOverlap          Reason = "overlap"
)

type Request struct {
	OpenWindows []domain.Interval
	Existing    []domain.Booking
	Start       int
	Duration    int
	Buffer      int
}

type Result struct {
	Accepted bool
	Reason   Reason
	// ConflictingBooking is the booking number that caused an overlap.
	ConflictingBooking string
	// Suggestions are start minutes that would be accepted for the same
	// duration. Only populated on rejection.
	Suggestions []int
}

type Checker struct {
	// SuggestionStep aligns suggested starts to multiples of this many
	// minutes from midnight.
	SuggestionStep int
}

func NewChecker(step int) Checker {
	if step <= 0 {
		step = DefaultSuggestionStep
	}
	return Checker{SuggestionStep: step}
}

// Check decides whether the requested interval can be booked. Requests are
// judged only against what is already recorded: the first accepted booking
// wins and nothing is preempted.
func (c Checker) Check(req Request) Result {
	if req.Duration <= 0 || req.Start < 0 || req.Start+req.Duration > domain.MinutesPerDay {
		return Result{Reason: ReasonInvalidRequest}
	}
	want := domain.Interval{Start: req.Start, End: req.Start + req.Duration}

	if !containedInOne(req.OpenWindows, want) {
		return Result{
			Reason:      ReasonOutsideOpenHours,
			Suggestions: c.Suggest(req.OpenWindows, req.Existing, req.Duration, req.Buffer),
		}
	}

	if other, ok := firstOverlap(req.Existing, want, req.Buffer); ok {
		return Result{
			Reason:             ReasonOverlap,
			ConflictingBooking: other.BookingNumber,
			Suggestions:        c.Suggest(req.OpenWindows, req.Existing, req.Duration, req.Buffer),
		}
	}

	return Result{Accepted: true}
}

// Suggest lists every step-aligned start inside the open windows where a
// booking of duration minutes would be accepted.
func (c Checker) Suggest(windows []domain.Interval, existing []domain.Booking, duration, buffer int) []int {
	step := c.SuggestionStep
	if step <= 0 {
		step = DefaultSuggestionStep
	}
	if duration <= 0 {
		return nil
	}

	var out []int
	for _, w := range windows {
		first := ((w.Start + step - 1) / step) * step
		for start := first; start+duration <= w.End; start += step {
			cand := domain.Interval{Start: start, End: start + duration}
			if _, clash := firstOverlap(existing, cand, buffer); clash {
				continue
			}
			out = append(out, start)
		}
	}
	return out
}

// Overlaps applies the buffered half-open test between a requested interval
// and an existing booking's interval.
func Overlaps(want, other domain.Interval, buffer int) bool {
	return want.Start < other.End+buffer && want.End+buffer > other.Start
}

func containedInOne(windows []domain.Interval, want domain.Interval) bool {
	for _, w := range windows {
		if w.Contains(want) {
			return true
		}
	}
	return false
}

// firstOverlap keeps buffer before every existing booking. After one it keeps
// the larger of buffer and the gap that booking reserved when it was made,
// which is the span the stored exclusion guard holds for it.
func firstOverlap(existing []domain.Booking, want domain.Interval, buffer int) (domain.Booking, bool) {
	for _, b := range existing {
		if !b.Status.IsActive() {
			continue
		}
		iv := b.Interval()
		if want.Start < iv.End+max(buffer, b.BufferMinutes) && want.End+buffer > iv.Start {
			return b, true
		}
	}
	return domain.Booking{}, false
}
