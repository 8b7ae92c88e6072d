package domain

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

const MinutesPerDay = 24 * 60

// Interval is a half-open [Start, End) range of minutes within a day.
type Interval struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

func (i Interval) Duration() int {
	return i.End - i.Start
}

func (i Interval) Valid() bool {
	return i.Start >= 0 && i.End <= MinutesPerDay && i.Start < i.End
}

func (i Interval) Overlaps(o Interval) bool {
	return i.Start < o.End && o.Start < i.End
}

// Contains reports whether o lies entirely inside i.
func (i Interval) Contains(o Interval) bool {
	return i.Start <= o.Start && o.End <= i.End
}

// Expand widens the interval by buffer minutes on both sides. The result may
// extend past the day boundaries.
func (i Interval) Expand(buffer int) Interval {
	return Interval{Start: i.Start - buffer, End: i.End + buffer}
}

func (i Interval) String() string {
	return FormatClock(i.Start) + "-" + FormatClock(i.End)
}

// MergeIntervals returns the union of in as sorted, non-overlapping
// intervals. Touching intervals are joined. The input is not modified.
func MergeIntervals(in []Interval) []Interval {
	if len(in) == 0 {
		return nil
	}
	sorted := make([]Interval, len(in))
	copy(sorted, in)
	sort.Slice(sorted, func(a, b int) bool {
		if sorted[a].Start == sorted[b].Start {
			return sorted[a].End < sorted[b].End
		}
		return sorted[a].Start < sorted[b].Start
	})

	out := make([]Interval, 0, len(sorted))
	cur := sorted[0]
	for _, iv := range sorted[1:] {
		if iv.Start <= cur.End {
			if iv.End > cur.End {
				cur.End = iv.End
			}
			continue
		}
		out = append(out, cur)
		cur = iv
	}
	return append(out, cur)
}

var errInvalidClock = errors.New("time must be HH:MM")

// ParseClock converts "HH:MM" to minutes since midnight. "24:00" is accepted
// so a slot can run to the end of the day.
func ParseClock(s string) (int, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok || len(hh) == 0 || len(hh) > 2 || len(mm) != 2 || !digits(hh) || !digits(mm) {
		return 0, errInvalidClock
	}
	h, err := strconv.Atoi(hh)
	if err != nil {
		return 0, errInvalidClock
	}
	m, err := strconv.Atoi(mm)
	if err != nil {
		return 0, errInvalidClock
	}
	if h < 0 || m < 0 || m > 59 || h > 24 || (h == 24 && m != 0) {
		return 0, fmt.Errorf("time out of range: %q", s)
	}
	return h*60 + m, nil
}

func digits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func FormatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

const DateLayout = "2006-01-02"

// DateOnly truncates t to its calendar date as seen in t's location and
// returns it as midnight UTC.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, err
	}
	return d, nil
}

func SameDate(a, b time.Time) bool {
	return DateOnly(a).Equal(DateOnly(b))
}
