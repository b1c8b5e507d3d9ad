package db

import (
	"context"
	"time"

	"github.com/google/uuid"

	"expirywatch/internal/types"
)

// NotificationRepository provides data access for the notification_records
// table: creation of alert traces, the structured same-day dedup lookup, and
// the bounded batch deletion used by the retention purge.
type NotificationRepository struct {
	db DBTX
}

// NewNotificationRepository creates a new NotificationRepository backed by
// the given database connection (pool or transaction).
func NewNotificationRepository(db DBTX) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Create inserts a new notification record. If the ID is empty a prefixed
// UUID is generated. CreatedAt is set by the database when zero.
func (r *NotificationRepository) Create(ctx context.Context, n *types.NotificationRecord) error {
	if n.ID == "" {
		n.ID = "ntf_" + uuid.New().String()
	}

	row := r.db.QueryRow(ctx,
		`INSERT INTO notification_records
		 (id, tenant_id, recipient_id, record_id, type, channel, window_day, message, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, COALESCE($9, NOW()))
		 RETURNING created_at`,
		n.ID,
		n.TenantID,
		n.RecipientID,
		n.RecordID,
		string(n.Type),
		string(n.Channel),
		n.WindowDay,
		n.Message,
		nilIfZeroTime(n.CreatedAt),
	)
	if err := row.Scan(&n.CreatedAt); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create notification record", err)
	}
	return nil
}

// AlreadyNotified reports whether an alert with the same structured dedup key
// (tenant, recipient, record, window day) was already recorded on or after
// dayStart. This is the idempotency check preventing duplicate alerts when a
// job is re-run or retried within the same calendar day.
func (r *NotificationRepository) AlreadyNotified(ctx context.Context, tenantID, recipientID, recordID string, windowDay int, dayStart time.Time) (bool, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(1)
		 FROM notification_records
		 WHERE tenant_id = $1
		   AND recipient_id = $2
		   AND record_id = $3
		   AND window_day = $4
		   AND created_at >= $5`,
		tenantID,
		recipientID,
		recordID,
		windowDay,
		dayStart,
	).Scan(&count)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to check notification dedup", err)
	}
	return count > 0, nil
}

// DeleteBatchBefore deletes up to limit notification records older than the
// cutoff and returns the deleted rows so the caller can archive them. The
// retention purge calls this in a loop until a batch deletes zero rows; a
// short batch is not treated as terminal, so an exactly-full final batch
// cannot strand stale rows.
func (r *NotificationRepository) DeleteBatchBefore(ctx context.Context, cutoff time.Time, limit int) ([]types.NotificationRecord, error) {
	rows, err := r.db.Query(ctx,
		`DELETE FROM notification_records
		 WHERE id IN (
		   SELECT id FROM notification_records
		   WHERE created_at < $1
		   ORDER BY created_at
		   LIMIT $2
		 )
		 RETURNING id, tenant_id, recipient_id, record_id, type, channel, window_day, message, created_at`,
		cutoff,
		limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to delete notification batch", err)
	}
	defer rows.Close()

	var deleted []types.NotificationRecord
	for rows.Next() {
		var n types.NotificationRecord
		if err := rows.Scan(
			&n.ID, &n.TenantID, &n.RecipientID, &n.RecordID,
			&n.Type, &n.Channel, &n.WindowDay, &n.Message, &n.CreatedAt,
		); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan deleted notification row", err)
		}
		deleted = append(deleted, n)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate deleted notification rows", err)
	}
	return deleted, nil
}

// nilIfZeroTime maps a zero time to nil so the database DEFAULT applies.
func nilIfZeroTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
