package expiry

import (
	"testing"
	"time"

	"expirywatch/internal/types"
)

var dubai = mustLoadLocation("Asia/Dubai")

func mustLoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}

func TestDaysRemaining(t *testing.T) {
	// Reference: 2026-03-10 09:30 local time.
	ref := time.Date(2026, 3, 10, 9, 30, 0, 0, dubai)

	tests := []struct {
		name   string
		expiry time.Time
		want   int
	}{
		{"same day", time.Date(2026, 3, 10, 23, 0, 0, 0, dubai), 0},
		{"tomorrow morning", time.Date(2026, 3, 11, 1, 0, 0, 0, dubai), 1},
		{"seven days out", time.Date(2026, 3, 17, 12, 0, 0, 0, dubai), 7},
		{"thirty days out", time.Date(2026, 4, 9, 0, 0, 0, 0, dubai), 30},
		{"yesterday", time.Date(2026, 3, 9, 18, 0, 0, 0, dubai), -1},
		{"three days past", time.Date(2026, 3, 7, 0, 0, 0, 0, dubai), -3},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := DaysRemaining(ref, tc.expiry, dubai)
			if got != tc.want {
				t.Errorf("DaysRemaining() = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestDaysRemainingIgnoresTimeOfDay(t *testing.T) {
	// A run late at night and a run early in the morning must classify the
	// same expiry identically.
	expiry := time.Date(2026, 3, 17, 8, 0, 0, 0, dubai)

	earlyRun := time.Date(2026, 3, 10, 0, 5, 0, 0, dubai)
	lateRun := time.Date(2026, 3, 10, 23, 55, 0, 0, dubai)

	if a, b := DaysRemaining(earlyRun, expiry, dubai), DaysRemaining(lateRun, expiry, dubai); a != b {
		t.Errorf("day count drifted with wall clock: early=%d late=%d", a, b)
	}
}

func TestDaysRemainingUTCInputAgainstBusinessTimezone(t *testing.T) {
	// 2026-03-10 22:30 UTC is already 2026-03-11 02:30 in Dubai (UTC+4).
	ref := time.Date(2026, 3, 10, 22, 30, 0, 0, time.UTC)
	// 2026-03-11 20:00 UTC is 2026-03-12 00:00 in Dubai.
	expiry := time.Date(2026, 3, 11, 20, 0, 0, 0, time.UTC)

	got := DaysRemaining(ref, expiry, dubai)
	if got != 1 {
		t.Errorf("DaysRemaining() = %d, want 1", got)
	}
}

func TestClassify(t *testing.T) {
	for days := -5; days <= 5; days++ {
		got := Classify(days)
		want := types.StatusExpiring
		if days < 0 {
			want = types.StatusExpired
		}
		if got != want {
			t.Errorf("Classify(%d) = %s, want %s", days, got, want)
		}
	}
}

func TestDayStart(t *testing.T) {
	in := time.Date(2026, 3, 10, 17, 45, 30, 0, dubai)
	got := DayStart(in, dubai)
	want := time.Date(2026, 3, 10, 0, 0, 0, 0, dubai)
	if !got.Equal(want) {
		t.Errorf("DayStart() = %v, want %v", got, want)
	}
}
