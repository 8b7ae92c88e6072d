// Package availability computes a provider's open hours for a calendar date.
//
// Precedence is strict: a blocked period closes the day, otherwise a date
// override replaces the weekly pattern, otherwise the weekly pattern applies.
// Buffer time is not applied here; declared hours are absolute.
package availability

import (
	"fmt"
	"time"

	"homeserve/backend/internal/domain"
)

type Source string

const (
	SourceBlocked  Source = "blocked"
	SourceOverride Source = "override"
	SourceWeekly   Source = "weekly"
)

// Resolution is the outcome of resolving a single date.
type Resolution struct {
	Source  Source
	Windows []domain.Interval
	Reason  string
}

// ResolveOpenWindows returns the open windows for date as ascending,
// non-overlapping minute-of-day intervals.
func ResolveOpenWindows(pa domain.ProviderAvailability, date time.Time) ([]domain.Interval, error) {
	res, err := Describe(pa, date)
	if err != nil {
		return nil, err
	}
	return res.Windows, nil
}

// Describe resolves date and reports which part of the availability decided
// the result.
func Describe(pa domain.ProviderAvailability, date time.Time) (Resolution, error) {
	if p, ok := pa.Blocked(date); ok {
		reason := "blocked"
		if p.Reason != "" {
			reason = "blocked: " + p.Reason
		}
		return Resolution{Source: SourceBlocked, Reason: reason}, nil
	}

	if o, ok := pa.Override(date); ok {
		if !o.IsAvailable {
			reason := "unavailable by override"
			if o.Reason != "" {
				reason = "unavailable: " + o.Reason
			}
			return Resolution{Source: SourceOverride, Reason: reason}, nil
		}
		windows, err := activeWindows(o.TimeSlots)
		if err != nil {
			return Resolution{}, fmt.Errorf("override %s: %w", o.Date.Format(domain.DateLayout), err)
		}
		return Resolution{Source: SourceOverride, Windows: windows, Reason: reasonIfEmpty(windows)}, nil
	}

	wd := domain.WeekdayOf(date)
	day := pa.WeeklySchedule.Day(wd)
	if !day.IsAvailable || len(day.TimeSlots) == 0 {
		return Resolution{Source: SourceWeekly, Reason: "closed on " + wd.String()}, nil
	}
	windows, err := activeWindows(day.TimeSlots)
	if err != nil {
		return Resolution{}, fmt.Errorf("weekly %s: %w", wd, err)
	}
	return Resolution{Source: SourceWeekly, Windows: windows, Reason: reasonIfEmpty(windows)}, nil
}

func activeWindows(slots []domain.TimeSlot) ([]domain.Interval, error) {
	out := make([]domain.Interval, 0, len(slots))
	for _, s := range slots {
		if !s.IsActive {
			continue
		}
		iv, err := s.Bounds()
		if err != nil {
			return nil, err
		}
		out = append(out, iv)
	}
	return domain.MergeIntervals(out), nil
}

func reasonIfEmpty(windows []domain.Interval) string {
	if len(windows) == 0 {
		return "no active time slots"
	}
	return ""
}

// ClipPast removes the part of each window that starts before nowMinute.
// Windows ending at or before nowMinute are dropped.
func ClipPast(windows []domain.Interval, nowMinute int) []domain.Interval {
	out := make([]domain.Interval, 0, len(windows))
	for _, w := range windows {
		if w.End <= nowMinute {
			continue
		}
		if w.Start < nowMinute {
			w.Start = nowMinute
		}
		out = append(out, w)
	}
	return out
}
