package scheduler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"

	"expirywatch/internal/types"
)

// fakePurgeDB hands out pre-staged batches in order.
type fakePurgeDB struct {
	batches [][]types.NotificationRecord
	calls   int
	err     error
	errOn   int // 1-based call index that fails; 0 means never

	lastCutoff time.Time
	lastLimit  int
}

func (f *fakePurgeDB) DeleteBatchBefore(_ context.Context, cutoff time.Time, limit int) ([]types.NotificationRecord, error) {
	f.calls++
	f.lastCutoff = cutoff
	f.lastLimit = limit
	if f.errOn != 0 && f.calls == f.errOn {
		return nil, f.err
	}
	if f.calls > len(f.batches) {
		return nil, nil
	}
	return f.batches[f.calls-1], nil
}

type archivedObject struct {
	key  string
	data []byte
}

type fakeArchiver struct {
	uploads []archivedObject
	err     error
}

func (f *fakeArchiver) UploadArchive(_ context.Context, key string, data []byte) error {
	f.uploads = append(f.uploads, archivedObject{key: key, data: data})
	return f.err
}

func purgeBatch(n int, prefix string) []types.NotificationRecord {
	batch := make([]types.NotificationRecord, n)
	for i := range batch {
		batch[i] = types.NotificationRecord{
			ID:       fmt.Sprintf("%s_%d", prefix, i),
			TenantID: "ten_1",
			Type:     types.NotifDocumentExpiryWarning,
			Channel:  types.ChannelEmail,
		}
	}
	return batch
}

func TestPurgeNotificationsDrainsBacklog(t *testing.T) {
	// A short batch must not end the run; only an empty one does.
	db := &fakePurgeDB{batches: [][]types.NotificationRecord{
		purgeBatch(3, "ntf_a"),
		purgeBatch(3, "ntf_b"),
		purgeBatch(1, "ntf_c"),
		purgeBatch(2, "ntf_d"),
	}}
	arc := &fakeArchiver{}
	svc := NewRetentionService(db, arc, newTestLogger())

	total, err := svc.PurgeNotifications(context.Background(), testNow, 90, 3)
	if err != nil {
		t.Fatalf("PurgeNotifications() error: %v", err)
	}

	if total != 9 {
		t.Errorf("purged %d rows, want 9", total)
	}
	if db.calls != 5 {
		t.Errorf("delete calls = %d, want 5 (four batches plus the final empty round)", db.calls)
	}
	if len(arc.uploads) != 4 {
		t.Errorf("archived %d batches, want 4", len(arc.uploads))
	}

	// Each batch of the run must land under its own key; a shared key would
	// make later uploads overwrite earlier ones after the rows are deleted.
	seen := make(map[string]bool, len(arc.uploads))
	for _, up := range arc.uploads {
		if seen[up.key] {
			t.Errorf("archive key %q used more than once", up.key)
		}
		seen[up.key] = true
	}
}

func TestPurgeNotificationsCutoffAndDefaults(t *testing.T) {
	db := &fakePurgeDB{}
	svc := NewRetentionService(db, nil, newTestLogger())

	if _, err := svc.PurgeNotifications(context.Background(), testNow, 0, 0); err != nil {
		t.Fatalf("PurgeNotifications() error: %v", err)
	}

	wantCutoff := testNow.AddDate(0, 0, -DefaultRetentionDays)
	if !db.lastCutoff.Equal(wantCutoff) {
		t.Errorf("cutoff = %v, want %v", db.lastCutoff, wantCutoff)
	}
	if db.lastLimit != DefaultPurgeBatchSize {
		t.Errorf("limit = %d, want %d", db.lastLimit, DefaultPurgeBatchSize)
	}
}

func TestPurgeNotificationsArchiveContent(t *testing.T) {
	batch := purgeBatch(2, "ntf")
	db := &fakePurgeDB{batches: [][]types.NotificationRecord{batch}}
	arc := &fakeArchiver{}
	svc := NewRetentionService(db, arc, newTestLogger())

	if _, err := svc.PurgeNotifications(context.Background(), testNow, 90, 100); err != nil {
		t.Fatalf("PurgeNotifications() error: %v", err)
	}

	if len(arc.uploads) != 1 {
		t.Fatalf("archived %d batches, want 1", len(arc.uploads))
	}
	up := arc.uploads[0]
	if !strings.HasPrefix(up.key, "notifications/2026/08/batch_") || !strings.HasSuffix(up.key, ".jsonl.gz") {
		t.Errorf("archive key = %q", up.key)
	}

	zr, err := gzip.NewReader(bytes.NewReader(up.data))
	if err != nil {
		t.Fatalf("opening archive: %v", err)
	}
	raw, err := io.ReadAll(zr)
	if err != nil {
		t.Fatalf("reading archive: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	if len(lines) != 2 {
		t.Fatalf("archive has %d lines, want 2", len(lines))
	}
	for i, line := range lines {
		var rec types.NotificationRecord
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			t.Fatalf("line %d: %v", i, err)
		}
		if rec.ID != batch[i].ID {
			t.Errorf("line %d ID = %q, want %q", i, rec.ID, batch[i].ID)
		}
	}
}

func TestPurgeNotificationsArchiveFailureDoesNotFailPurge(t *testing.T) {
	db := &fakePurgeDB{batches: [][]types.NotificationRecord{purgeBatch(2, "ntf")}}
	arc := &fakeArchiver{err: errors.New("access denied")}
	svc := NewRetentionService(db, arc, newTestLogger())

	total, err := svc.PurgeNotifications(context.Background(), testNow, 90, 100)
	if err != nil {
		t.Fatalf("upload failure must not fail the purge: %v", err)
	}
	if total != 2 {
		t.Errorf("purged %d rows, want 2", total)
	}
}

func TestPurgeNotificationsWithoutArchiver(t *testing.T) {
	db := &fakePurgeDB{batches: [][]types.NotificationRecord{purgeBatch(2, "ntf")}}
	svc := NewRetentionService(db, nil, newTestLogger())

	total, err := svc.PurgeNotifications(context.Background(), testNow, 90, 100)
	if err != nil {
		t.Fatalf("PurgeNotifications() error: %v", err)
	}
	if total != 2 {
		t.Errorf("purged %d rows, want 2", total)
	}
}

func TestPurgeNotificationsDeleteFailureReturnsPartialTotal(t *testing.T) {
	db := &fakePurgeDB{
		batches: [][]types.NotificationRecord{purgeBatch(3, "ntf_a"), purgeBatch(3, "ntf_b")},
		err:     errors.New("connection refused"),
		errOn:   2,
	}
	svc := NewRetentionService(db, nil, newTestLogger())

	total, err := svc.PurgeNotifications(context.Background(), testNow, 90, 3)
	if err == nil {
		t.Fatal("delete failure must surface")
	}
	if total != 3 {
		t.Errorf("partial total = %d, want 3", total)
	}
}
