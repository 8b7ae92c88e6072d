package availability

import (
	"reflect"
	"testing"
	"time"

	"homeserve/backend/internal/domain"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func sampleAvailability() domain.ProviderAvailability {
	var w domain.WeeklySchedule
	w[domain.Monday] = domain.DaySchedule{IsAvailable: true, TimeSlots: []domain.TimeSlot{
		{Start: "13:00", End: "17:00", IsActive: true},
		{Start: "09:00", End: "12:00", IsActive: true},
		{Start: "12:00", End: "13:00", IsActive: false},
	}}
	w[domain.Saturday] = domain.DaySchedule{IsAvailable: true, TimeSlots: []domain.TimeSlot{
		{Start: "10:00", End: "14:00", IsActive: true},
	}}
	w[domain.Sunday] = domain.DaySchedule{IsAvailable: false, TimeSlots: []domain.TimeSlot{
		{Start: "10:00", End: "14:00", IsActive: true},
	}}
	return domain.ProviderAvailability{ProviderID: "p1", Timezone: "UTC", WeeklySchedule: w}
}

func TestResolveOpenWindows(t *testing.T) {
	// 2026-03-02 is a Monday, 2026-03-07 a Saturday.
	monday := day(2026, 3, 2)
	saturday := day(2026, 3, 7)
	sunday := day(2026, 3, 8)

	tests := []struct {
		name       string
		mutate     func(pa *domain.ProviderAvailability)
		date       time.Time
		want       []domain.Interval
		wantSource Source
	}{
		{
			name:       "weekly pattern sorted, inactive slot skipped",
			date:       monday,
			want:       []domain.Interval{{Start: 540, End: 720}, {Start: 780, End: 1020}},
			wantSource: SourceWeekly,
		},
		{
			name:       "day flagged unavailable ignores its slots",
			date:       sunday,
			wantSource: SourceWeekly,
		},
		{
			name: "override closes a working saturday",
			mutate: func(pa *domain.ProviderAvailability) {
				pa.DateOverrides = []domain.DateOverride{{Date: saturday, IsAvailable: false, Reason: "wedding"}}
			},
			date:       saturday,
			wantSource: SourceOverride,
		},
		{
			name: "override replaces weekly hours",
			mutate: func(pa *domain.ProviderAvailability) {
				pa.DateOverrides = []domain.DateOverride{{Date: monday, IsAvailable: true, TimeSlots: []domain.TimeSlot{
					{Start: "18:00", End: "20:00", IsActive: true},
				}}}
			},
			date:       monday,
			want:       []domain.Interval{{Start: 1080, End: 1200}},
			wantSource: SourceOverride,
		},
		{
			name: "blocked period beats an available override",
			mutate: func(pa *domain.ProviderAvailability) {
				pa.DateOverrides = []domain.DateOverride{{Date: monday, IsAvailable: true, TimeSlots: []domain.TimeSlot{
					{Start: "18:00", End: "20:00", IsActive: true},
				}}}
				pa.BlockedPeriods = []domain.BlockedPeriod{{StartDate: day(2026, 3, 1), EndDate: monday}}
			},
			date:       monday,
			wantSource: SourceBlocked,
		},
		{
			name: "blocked period end date is inclusive",
			mutate: func(pa *domain.ProviderAvailability) {
				pa.BlockedPeriods = []domain.BlockedPeriod{{StartDate: day(2026, 2, 28), EndDate: monday}}
			},
			date:       monday,
			wantSource: SourceBlocked,
		},
		{
			name: "day after blocked period is open",
			mutate: func(pa *domain.ProviderAvailability) {
				pa.BlockedPeriods = []domain.BlockedPeriod{{StartDate: day(2026, 2, 23), EndDate: day(2026, 3, 1)}}
			},
			date:       monday,
			want:       []domain.Interval{{Start: 540, End: 720}, {Start: 780, End: 1020}},
			wantSource: SourceWeekly,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pa := sampleAvailability()
			if tt.mutate != nil {
				tt.mutate(&pa)
			}
			res, err := Describe(pa, tt.date)
			if err != nil {
				t.Fatalf("Describe: %v", err)
			}
			if res.Source != tt.wantSource {
				t.Fatalf("source = %s, want %s", res.Source, tt.wantSource)
			}
			if len(tt.want) == 0 {
				if len(res.Windows) != 0 {
					t.Fatalf("windows = %v, want none", res.Windows)
				}
				if res.Reason == "" {
					t.Fatalf("closed day needs a reason")
				}
				return
			}
			if !reflect.DeepEqual(res.Windows, tt.want) {
				t.Fatalf("windows = %v, want %v", res.Windows, tt.want)
			}
		})
	}
}

func TestResolveOpenWindows_Deterministic(t *testing.T) {
	pa := sampleAvailability()
	date := day(2026, 3, 2)
	first, err := ResolveOpenWindows(pa, date)
	if err != nil {
		t.Fatalf("ResolveOpenWindows: %v", err)
	}
	for i := 0; i < 5; i++ {
		again, err := ResolveOpenWindows(pa, date)
		if err != nil {
			t.Fatalf("ResolveOpenWindows: %v", err)
		}
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("result changed: %v vs %v", first, again)
		}
	}
	for i := 1; i < len(first); i++ {
		if first[i-1].End > first[i].Start {
			t.Fatalf("windows overlap or are unsorted: %v", first)
		}
	}
}

func TestResolveOpenWindows_BadSlot(t *testing.T) {
	pa := sampleAvailability()
	pa.WeeklySchedule[domain.Monday].TimeSlots = []domain.TimeSlot{{Start: "9am", End: "12:00", IsActive: true}}
	if _, err := ResolveOpenWindows(pa, day(2026, 3, 2)); err == nil {
		t.Fatalf("expected error for malformed slot")
	}
}

func TestClipPast(t *testing.T) {
	windows := []domain.Interval{{Start: 540, End: 720}, {Start: 780, End: 1020}}
	tests := []struct {
		now  int
		want []domain.Interval
	}{
		{now: 480, want: windows},
		{now: 600, want: []domain.Interval{{Start: 600, End: 720}, {Start: 780, End: 1020}}},
		{now: 720, want: []domain.Interval{{Start: 780, End: 1020}}},
		{now: 1020, want: []domain.Interval{}},
	}
	for _, tt := range tests {
		got := ClipPast(windows, tt.now)
		if !reflect.DeepEqual(got, tt.want) {
			t.Fatalf("ClipPast(%d) = %v, want %v", tt.now, got, tt.want)
		}
	}
}
