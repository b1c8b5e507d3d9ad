// Package expiry holds the pure temporal logic shared by every scheduled
// job: the day-count calculator, the alert window sets, and the alert gate.
// Nothing in this package performs I/O; the gate's dedup check is delegated
// to an injected Deduper so the decision logic stays total and testable.
package expiry

import (
	"time"

	"expirywatch/internal/types"
)

// DayStart truncates t to midnight in the given location. All day boundaries
// in the system (dedup windows, "today") are computed through this function
// so every job classifies a record identically regardless of wall-clock
// start time.
func DayStart(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}

// DaysRemaining returns the signed whole-day count from reference to expiry.
// Both inputs are truncated to midnight in the business timezone before
// subtraction, and the fractional remainder rounds up, so "expires tomorrow
// at 09:00" is 1 day out no matter when today's run started.
//
// Pure and total: never errors, no I/O.
func DaysRemaining(reference, expiry time.Time, loc *time.Location) int {
	refDay := DayStart(reference, loc)
	expDay := DayStart(expiry, loc)

	diff := expDay.Sub(refDay)
	days := diff / (24 * time.Hour)
	if diff%(24*time.Hour) > 0 {
		days++
	}
	return int(days)
}

// Classify maps a day count to its alert status: expired iff strictly
// negative, expiring otherwise.
func Classify(daysRemaining int) types.AlertStatus {
	if daysRemaining < 0 {
		return types.StatusExpired
	}
	return types.StatusExpiring
}
