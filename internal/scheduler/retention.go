// This file implements the notification retention purge. Old notification
// rows are deleted in fixed-size batches; each batch is serialized to gzip
// JSONL and shipped to cold storage before the next batch is taken. The loop
// runs until a batch comes back empty, so a backlog larger than one batch is
// drained in a single invocation.
package scheduler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/klauspost/compress/gzip"

	"expirywatch/internal/types"
)

// DefaultRetentionDays is the retention period applied when none is configured.
const DefaultRetentionDays = 90

// DefaultPurgeBatchSize bounds one delete round trip.
const DefaultPurgeBatchSize = 1000

// RetentionDB defines the database operations needed by the retention purge.
type RetentionDB interface {
	// DeleteBatchBefore deletes up to limit notifications created before the
	// cutoff and returns the deleted rows for archival.
	//
	// SQL: DELETE FROM notifications
	//      WHERE id IN (SELECT id FROM notifications
	//                   WHERE created_at < $1 LIMIT $2)
	//      RETURNING id, tenant_id, recipient_id, record_id, type, channel,
	//                window_day, message, created_at
	DeleteBatchBefore(ctx context.Context, cutoff time.Time, limit int) ([]types.NotificationRecord, error)
}

// Archiver ships one serialized batch to cold storage.
type Archiver interface {
	UploadArchive(ctx context.Context, key string, data []byte) error
}

// RetentionService purges notifications past the retention threshold.
type RetentionService struct {
	db       RetentionDB
	archiver Archiver // nil if archival not configured
	logger   *slog.Logger
}

// NewRetentionService creates a RetentionService. The archiver may be nil
// when cold storage is not configured; batches are then deleted without an
// archive copy.
func NewRetentionService(db RetentionDB, archiver Archiver, logger *slog.Logger) *RetentionService {
	if logger == nil {
		logger = slog.Default()
	}
	return &RetentionService{
		db:       db,
		archiver: archiver,
		logger:   logger,
	}
}

// PurgeNotifications deletes all notifications older than retentionDays in
// batches of batchSize, archiving each batch first when an archiver is
// configured. The loop continues until a batch comes back empty: a batch
// that happens to be short of batchSize does not end the run, because
// concurrent inserts and visibility mean a short batch proves nothing about
// the remaining backlog.
//
// Returns the total number of rows purged.
func (s *RetentionService) PurgeNotifications(ctx context.Context, now time.Time, retentionDays, batchSize int) (int, error) {
	if retentionDays <= 0 {
		retentionDays = DefaultRetentionDays
	}
	if batchSize <= 0 {
		batchSize = DefaultPurgeBatchSize
	}

	cutoff := now.AddDate(0, 0, -retentionDays)
	total := 0

	for seq := 0; ; seq++ {
		batch, err := s.db.DeleteBatchBefore(ctx, cutoff, batchSize)
		if err != nil {
			return total, fmt.Errorf("deleting notification batch: %w", err)
		}
		if len(batch) == 0 {
			break
		}

		if s.archiver != nil {
			s.archiveBatch(ctx, batch, now, seq)
		}

		total += len(batch)
		s.logger.InfoContext(ctx, "purged notification batch",
			"batch_size", len(batch),
			"total_purged", total,
		)
	}

	if total > 0 {
		s.logger.InfoContext(ctx, "notification purge complete",
			"total_purged", total,
			"cutoff", cutoff.Format(time.RFC3339),
		)
	}

	return total, nil
}

// archiveBatch serializes one deleted batch to gzip JSONL and uploads it.
// The rows are already gone from Postgres at this point, so an upload error
// is logged loudly rather than failing the purge.
func (s *RetentionService) archiveBatch(ctx context.Context, batch []types.NotificationRecord, now time.Time, seq int) {
	data, err := serializeNotificationsGzipJSONL(batch)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to serialize notification archive, batch lost",
			"batch_size", len(batch),
			"error", err,
		)
		return
	}

	// The sequence number keeps every batch of one run under its own key;
	// the run timestamp alone would make later batches overwrite earlier ones.
	key := fmt.Sprintf("notifications/%d/%02d/batch_%d_%04d.jsonl.gz",
		now.Year(), now.Month(), now.UnixNano(), seq)

	if err := s.archiver.UploadArchive(ctx, key, data); err != nil {
		s.logger.ErrorContext(ctx, "failed to upload notification archive, batch lost",
			"key", key,
			"batch_size", len(batch),
			"error", err,
		)
	}
}

// serializeNotificationsGzipJSONL renders one row per line and compresses
// the result.
func serializeNotificationsGzipJSONL(batch []types.NotificationRecord) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	enc := json.NewEncoder(zw)

	for _, n := range batch {
		if err := enc.Encode(n); err != nil {
			return nil, fmt.Errorf("encoding notification %s: %w", n.ID, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("closing gzip stream: %w", err)
	}

	return buf.Bytes(), nil
}
