package domain

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"
	"time"
)

func TestParseClock(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{in: "00:00", want: 0},
		{in: "09:30", want: 570},
		{in: "9:05", want: 545},
		{in: "23:59", want: 1439},
		{in: "24:00", want: 1440},
		{in: "24:01", wantErr: true},
		{in: "12:60", wantErr: true},
		{in: "1230", wantErr: true},
		{in: "+1:30", wantErr: true},
		{in: "ab:cd", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseClock(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseClock(%q) = %d, want error", tt.in, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseClock(%q): %v", tt.in, err)
			}
			if got != tt.want {
				t.Fatalf("ParseClock(%q) = %d, want %d", tt.in, got, tt.want)
			}
			if tt.want < MinutesPerDay && FormatClock(got) != normalizeClock(tt.in) {
				t.Fatalf("FormatClock(%d) = %q", got, FormatClock(got))
			}
		})
	}
}

func normalizeClock(s string) string {
	if len(s) == 4 {
		return "0" + s
	}
	return s
}

func TestMergeIntervals(t *testing.T) {
	tests := []struct {
		name string
		in   []Interval
		want []Interval
	}{
		{name: "empty", in: nil, want: nil},
		{
			name: "unsorted with overlap",
			in:   []Interval{{Start: 600, End: 720}, {Start: 540, End: 620}},
			want: []Interval{{Start: 540, End: 720}},
		},
		{
			name: "touching intervals join",
			in:   []Interval{{Start: 540, End: 600}, {Start: 600, End: 660}},
			want: []Interval{{Start: 540, End: 660}},
		},
		{
			name: "disjoint stay apart",
			in:   []Interval{{Start: 840, End: 900}, {Start: 540, End: 600}},
			want: []Interval{{Start: 540, End: 600}, {Start: 840, End: 900}},
		},
		{
			name: "contained",
			in:   []Interval{{Start: 540, End: 1020}, {Start: 600, End: 660}},
			want: []Interval{{Start: 540, End: 1020}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MergeIntervals(tt.in)
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("MergeIntervals(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestIntervalOverlapsIsHalfOpen(t *testing.T) {
	a := Interval{Start: 600, End: 660}
	if a.Overlaps(Interval{Start: 660, End: 720}) {
		t.Fatalf("adjacent intervals must not overlap")
	}
	if !a.Overlaps(Interval{Start: 659, End: 720}) {
		t.Fatalf("expected overlap")
	}
	if !a.Expand(15).Overlaps(Interval{Start: 670, End: 700}) {
		t.Fatalf("expanded interval should reach 670")
	}
}

func TestDateOnlyUsesLocalCalendarDate(t *testing.T) {
	loc := time.FixedZone("IST", 5*3600+1800)
	late := time.Date(2026, 3, 1, 23, 30, 0, 0, time.UTC).In(loc)
	got := DateOnly(late)
	want := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("DateOnly = %s, want %s", got, want)
	}
}

func TestWeeklyScheduleJSON(t *testing.T) {
	var w WeeklySchedule
	w[Saturday] = DaySchedule{IsAvailable: true, TimeSlots: []TimeSlot{{Start: "10:00", End: "14:00", IsActive: true}}}

	raw, err := json.Marshal(w)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var keyed map[string]json.RawMessage
	if err := json.Unmarshal(raw, &keyed); err != nil {
		t.Fatalf("unmarshal keyed: %v", err)
	}
	if _, ok := keyed["saturday"]; !ok || len(keyed) != 7 {
		t.Fatalf("keys = %v", keyed)
	}

	var back WeeklySchedule
	if err := back.Scan(raw); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if !reflect.DeepEqual(back, w) {
		t.Fatalf("round trip = %+v, want %+v", back, w)
	}

	if err := back.UnmarshalJSON([]byte(`{"funday":{}}`)); err == nil {
		t.Fatalf("expected error for unknown weekday")
	}
}

func TestProviderAvailabilityValidate(t *testing.T) {
	valid := func() ProviderAvailability {
		var w WeeklySchedule
		w[Monday] = DaySchedule{IsAvailable: true, TimeSlots: []TimeSlot{
			{Start: "09:00", End: "12:00", IsActive: true},
			{Start: "12:00", End: "17:00", IsActive: true},
		}}
		return ProviderAvailability{ProviderID: "p1", Timezone: "Asia/Kolkata", WeeklySchedule: w}
	}

	tests := []struct {
		name   string
		mutate func(pa *ProviderAvailability)
		field  string
	}{
		{name: "valid", mutate: func(*ProviderAvailability) {}},
		{name: "missing provider", mutate: func(pa *ProviderAvailability) { pa.ProviderID = "" }, field: "providerId"},
		{name: "bad time zone", mutate: func(pa *ProviderAvailability) { pa.Timezone = "Mars/Base" }, field: "timezone"},
		{
			name: "overlapping slots",
			mutate: func(pa *ProviderAvailability) {
				pa.WeeklySchedule[Monday].TimeSlots[1].Start = "11:00"
			},
			field: "weeklySchedule.monday",
		},
		{
			name: "end before start",
			mutate: func(pa *ProviderAvailability) {
				pa.WeeklySchedule[Monday].TimeSlots[0] = TimeSlot{Start: "12:00", End: "09:00"}
			},
			field: "weeklySchedule.monday",
		},
		{
			name: "negative buffer",
			mutate: func(pa *ProviderAvailability) {
				pa.BufferTime.MinimumGap = -5
			},
			field: "bufferTime",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pa := valid()
			tt.mutate(&pa)
			err := pa.Validate()
			if tt.field == "" {
				if err != nil {
					t.Fatalf("Validate: %v", err)
				}
				return
			}
			var vErr *ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("error = %v, want *ValidationError", err)
			}
			if vErr.Field != tt.field {
				t.Fatalf("field = %q, want %q", vErr.Field, tt.field)
			}
		})
	}
}

func TestOverrideLatestWins(t *testing.T) {
	date := time.Date(2026, 3, 7, 0, 0, 0, 0, time.UTC)
	pa := ProviderAvailability{DateOverrides: []DateOverride{
		{Date: date, IsAvailable: false, CreatedAt: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)},
		{Date: date, IsAvailable: true, CreatedAt: time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)},
		{Date: date.AddDate(0, 0, 1), IsAvailable: false, CreatedAt: time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC)},
	}}
	o, ok := pa.Override(date)
	if !ok || !o.IsAvailable {
		t.Fatalf("override = %+v, %v", o, ok)
	}
}

func TestBufferEffective(t *testing.T) {
	if got := (BufferTime{BeforeBooking: 10, AfterBooking: 15, MinimumGap: 5}).Effective(); got != 15 {
		t.Fatalf("Effective = %d, want 15", got)
	}
}

func TestKindOf(t *testing.T) {
	if KindOf(&ConflictError{}) != KindConflict {
		t.Fatalf("conflict kind")
	}
	wrapped := errors.Join(errors.New("ctx"), &StateTransitionError{})
	if KindOf(wrapped) != KindStateTransition {
		t.Fatalf("wrapped state transition kind")
	}
	if KindOf(errors.New("plain")) != "" {
		t.Fatalf("plain errors have no kind")
	}
}
