package expiry

import (
	"context"
	"time"

	"expirywatch/internal/types"
)

// Deduper answers whether an alert with the same structured key was already
// recorded within the current day. Backed by the notification repository in
// production.
type Deduper interface {
	AlreadyNotified(ctx context.Context, tenantID, recipientID, recordID string, windowDay int, dayStart time.Time) (bool, error)
}

// Gate decides, per record and per day, whether an alert is due today.
//
// A record fires when it is already expired (if IncludeExpired is set) or
// when its day count is an exact member of the window set. A record whose
// expiry crossed a window boundary on a day the job did not run is never
// retroactively alerted for that window; it only ever fires again once
// expired. This fire-on-exact-day behavior is intentional.
type Gate struct {
	Windows Windows
	// IncludeExpired enables the "already expired" branch. The warranty job
	// disables it because disposed and lapsed assets are excluded upstream.
	IncludeExpired bool
	Location       *time.Location
}

// Evaluate returns the alert decision for one record against the reference
// day, or nil when no alert is due. Pure: the dedup check is separate (see
// Suppressed).
func (g Gate) Evaluate(record types.ExpiringRecord, today time.Time) *types.AlertDecision {
	days := DaysRemaining(today, record.ExpiryDate, g.Location)
	status := Classify(days)

	switch {
	case status == types.StatusExpired:
		if !g.IncludeExpired {
			return nil
		}
		return &types.AlertDecision{
			Record:        record,
			DaysRemaining: days,
			Status:        status,
			WindowDay:     days,
		}
	case g.Windows.Contains(days):
		return &types.AlertDecision{
			Record:        record,
			DaysRemaining: days,
			Status:        status,
			WindowDay:     days,
		}
	default:
		return nil
	}
}

// Suppressed consults the Deduper with the structured same-day key
// (tenant, recipient, record, window day). Returns true when an equivalent
// alert already fired since the start of the reference day, which makes a
// retried run idempotent for both in-app and email paths.
func (g Gate) Suppressed(ctx context.Context, d Deduper, tenantID, recipientID string, dec *types.AlertDecision, today time.Time) (bool, error) {
	dayStart := DayStart(today, g.Location)
	return d.AlreadyNotified(ctx, tenantID, recipientID, dec.Record.ID, dec.WindowDay, dayStart)
}
