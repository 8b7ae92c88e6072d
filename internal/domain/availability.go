package domain

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"
)

type Weekday int

const (
	Sunday Weekday = iota
	Monday
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
)

var weekdayNames = [7]string{"sunday", "monday", "tuesday", "wednesday", "thursday", "friday", "saturday"}

func WeekdayOf(date time.Time) Weekday {
	return Weekday(date.Weekday())
}

func (w Weekday) String() string {
	if w < Sunday || w > Saturday {
		return fmt.Sprintf("Weekday(%d)", int(w))
	}
	return weekdayNames[w]
}

func ParseWeekday(s string) (Weekday, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range weekdayNames {
		if name == s {
			return Weekday(i), true
		}
	}
	return 0, false
}

type TimeSlot struct {
	Start    string `json:"start"`
	End      string `json:"end"`
	IsActive bool   `json:"isActive"`
}

func (s TimeSlot) Bounds() (Interval, error) {
	start, err := ParseClock(s.Start)
	if err != nil {
		return Interval{}, err
	}
	end, err := ParseClock(s.End)
	if err != nil {
		return Interval{}, err
	}
	iv := Interval{Start: start, End: end}
	if !iv.Valid() {
		return Interval{}, fmt.Errorf("slot %s-%s: start must be before end", s.Start, s.End)
	}
	return iv, nil
}

type DaySchedule struct {
	IsAvailable bool       `json:"isAvailable"`
	TimeSlots   []TimeSlot `json:"timeSlots"`
}

// WeeklySchedule is indexed by Weekday. Its JSON form is an object keyed by
// lowercase weekday name.
type WeeklySchedule [7]DaySchedule

func (w WeeklySchedule) Day(d Weekday) DaySchedule {
	return w[d]
}

func (w WeeklySchedule) MarshalJSON() ([]byte, error) {
	m := make(map[string]DaySchedule, len(w))
	for i, day := range w {
		m[weekdayNames[i]] = day
	}
	return json.Marshal(m)
}

func (w *WeeklySchedule) UnmarshalJSON(b []byte) error {
	var m map[string]DaySchedule
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	var out WeeklySchedule
	for k, v := range m {
		wd, ok := ParseWeekday(k)
		if !ok {
			return fmt.Errorf("unknown weekday %q", k)
		}
		out[wd] = v
	}
	*w = out
	return nil
}

func (w WeeklySchedule) Value() (driver.Value, error) {
	b, err := json.Marshal(w)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (w *WeeklySchedule) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*w = WeeklySchedule{}
		return nil
	case []byte:
		return w.UnmarshalJSON(v)
	case string:
		return w.UnmarshalJSON([]byte(v))
	default:
		return fmt.Errorf("cannot scan %T into WeeklySchedule", src)
	}
}

type DateOverride struct {
	Date        time.Time  `json:"date"`
	IsAvailable bool       `json:"isAvailable"`
	TimeSlots   []TimeSlot `json:"timeSlots,omitempty"`
	Reason      string     `json:"reason,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// BlockedPeriod covers every calendar date from StartDate to EndDate
// inclusive.
type BlockedPeriod struct {
	StartDate time.Time `json:"startDate"`
	EndDate   time.Time `json:"endDate"`
	Reason    string    `json:"reason,omitempty"`
	CreatedBy string    `json:"createdBy,omitempty"`
}

func (p BlockedPeriod) Covers(date time.Time) bool {
	d := DateOnly(date)
	return !d.Before(DateOnly(p.StartDate)) && !d.After(DateOnly(p.EndDate))
}

type BufferTime struct {
	BeforeBooking int `json:"beforeBooking"`
	AfterBooking  int `json:"afterBooking"`
	MinimumGap    int `json:"minimumGap"`
}

// Effective is the symmetric padding applied around existing bookings when
// checking a request for conflicts.
func (b BufferTime) Effective() int {
	return max(b.BeforeBooking, b.AfterBooking, b.MinimumGap)
}

type ProviderAvailability struct {
	bun.BaseModel `bun:"table:provider_availability"`

	ProviderID            string          `bun:"provider_id,pk" json:"providerId"`
	Timezone              string          `bun:"timezone,notnull" json:"timezone"`
	WeeklySchedule        WeeklySchedule  `bun:"weekly_schedule,type:jsonb,notnull" json:"weeklySchedule"`
	DateOverrides         []DateOverride  `bun:"date_overrides,type:jsonb,notnull" json:"dateOverrides"`
	BlockedPeriods        []BlockedPeriod `bun:"blocked_periods,type:jsonb,notnull" json:"blockedPeriods"`
	BufferTime            BufferTime      `bun:"buffer_time,type:jsonb,notnull" json:"bufferTime"`
	MaxAdvanceBookingDays int             `bun:"max_advance_booking_days,notnull" json:"maxAdvanceBookingDays"`
	AutoAcceptBookings    bool            `bun:"auto_accept_bookings,notnull" json:"autoAcceptBookings"`
	CreatedAt             time.Time       `bun:"created_at,notnull" json:"createdAt"`
	UpdatedAt             time.Time       `bun:"updated_at,notnull" json:"updatedAt"`
}

func (a *ProviderAvailability) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if a.CreatedAt.IsZero() {
			a.CreatedAt = now
		}
		a.UpdatedAt = now
	case *bun.UpdateQuery:
		a.UpdatedAt = now
	}
	return nil
}

func (a ProviderAvailability) Location() *time.Location {
	if a.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(a.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Override returns the override for the calendar date of date, if any. When
// several overrides share a date the most recently created one wins.
func (a ProviderAvailability) Override(date time.Time) (DateOverride, bool) {
	var (
		found DateOverride
		ok    bool
	)
	for _, o := range a.DateOverrides {
		if !SameDate(o.Date, date) {
			continue
		}
		if !ok || o.CreatedAt.After(found.CreatedAt) {
			found, ok = o, true
		}
	}
	return found, ok
}

func (a ProviderAvailability) Blocked(date time.Time) (BlockedPeriod, bool) {
	for _, p := range a.BlockedPeriods {
		if p.Covers(date) {
			return p, true
		}
	}
	return BlockedPeriod{}, false
}

// Validate checks the structural invariants of the availability document.
func (a ProviderAvailability) Validate() error {
	if strings.TrimSpace(a.ProviderID) == "" {
		return NewValidationError("providerId", "is required")
	}
	if a.Timezone != "" {
		if _, err := time.LoadLocation(a.Timezone); err != nil {
			return NewValidationError("timezone", "invalid time zone")
		}
	}
	for i, day := range a.WeeklySchedule {
		if err := validateSlots(day.TimeSlots); err != nil {
			return NewValidationError("weeklySchedule."+weekdayNames[i], err.Error())
		}
	}
	for _, o := range a.DateOverrides {
		if o.Date.IsZero() {
			return NewValidationError("dateOverrides", "date is required")
		}
		if err := validateSlots(o.TimeSlots); err != nil {
			return NewValidationError("dateOverrides."+o.Date.Format(DateLayout), err.Error())
		}
	}
	for _, p := range a.BlockedPeriods {
		if p.StartDate.IsZero() || p.EndDate.IsZero() {
			return NewValidationError("blockedPeriods", "startDate and endDate are required")
		}
		if DateOnly(p.EndDate).Before(DateOnly(p.StartDate)) {
			return NewValidationError("blockedPeriods", "endDate must not be before startDate")
		}
	}
	b := a.BufferTime
	if b.BeforeBooking < 0 || b.AfterBooking < 0 || b.MinimumGap < 0 {
		return NewValidationError("bufferTime", "must not be negative")
	}
	if a.MaxAdvanceBookingDays < 0 {
		return NewValidationError("maxAdvanceBookingDays", "must not be negative")
	}
	return nil
}

var errOverlappingSlots = errors.New("time slots overlap")

func validateSlots(slots []TimeSlot) error {
	bounds := make([]Interval, 0, len(slots))
	for _, s := range slots {
		iv, err := s.Bounds()
		if err != nil {
			return err
		}
		for _, other := range bounds {
			if iv.Overlaps(other) {
				return errOverlappingSlots
			}
		}
		bounds = append(bounds, iv)
	}
	return nil
}
