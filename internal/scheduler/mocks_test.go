package scheduler

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"expirywatch/internal/notifications/core"
	"expirywatch/internal/notifications/email"
	"expirywatch/internal/types"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testNow is the fixed reference time used across the job tests.
var testNow = time.Date(2026, 8, 31, 9, 0, 0, 0, time.UTC)

// expiryIn returns a date exactly n days after testNow's midnight.
func expiryIn(days int) time.Time {
	return time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC).AddDate(0, 0, days)
}

func testTenant(id string) types.Tenant {
	return types.Tenant{
		ID:     id,
		Name:   "Acme Trading LLC",
		Slug:   "acme",
		Status: types.TenantActive,
	}
}

// fakeTenantSource implements TenantSource.
type fakeTenantSource struct {
	tenants []types.Tenant
	listErr error
	getErr  error
}

func (f *fakeTenantSource) ListActive(_ context.Context) ([]types.Tenant, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.tenants, nil
}

func (f *fakeTenantSource) GetByID(_ context.Context, tenantID string) (*types.Tenant, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	for _, t := range f.tenants {
		if t.ID == tenantID {
			return &t, nil
		}
	}
	return nil, types.NewAppError(types.ErrCodeNotFoundTenant, "tenant not found", nil)
}

// fakeRecordDB implements CompanyDocDB, EmployeeDocDB, and WarrantyDB over a
// per-tenant record map.
type fakeRecordDB struct {
	records map[string][]types.ExpiringRecord
	err     map[string]error

	lastThreshold time.Time
	lastToday     time.Time
}

func (f *fakeRecordDB) list(tenantID string) ([]types.ExpiringRecord, error) {
	if err := f.err[tenantID]; err != nil {
		return nil, err
	}
	return f.records[tenantID], nil
}

func (f *fakeRecordDB) ListExpiringCompanyDocs(_ context.Context, tenantID string, threshold time.Time) ([]types.ExpiringRecord, error) {
	f.lastThreshold = threshold
	return f.list(tenantID)
}

func (f *fakeRecordDB) ListExpiringEmployeeDocs(_ context.Context, tenantID string, threshold time.Time) ([]types.ExpiringRecord, error) {
	f.lastThreshold = threshold
	return f.list(tenantID)
}

func (f *fakeRecordDB) ListExpiringWarranties(_ context.Context, tenantID string, today, threshold time.Time) ([]types.ExpiringRecord, error) {
	f.lastToday = today
	f.lastThreshold = threshold
	return f.list(tenantID)
}

// fakeDeduper implements expiry.Deduper with a structured-key set.
type fakeDeduper struct {
	suppressed map[string]bool
	err        error
	calls      int
}

func dedupKey(tenantID, recipientID, recordID string, windowDay int) string {
	return fmt.Sprintf("%s|%s|%s|%d", tenantID, recipientID, recordID, windowDay)
}

func (f *fakeDeduper) AlreadyNotified(_ context.Context, tenantID, recipientID, recordID string, windowDay int, _ time.Time) (bool, error) {
	f.calls++
	if f.err != nil {
		return false, f.err
	}
	return f.suppressed[dedupKey(tenantID, recipientID, recordID, windowDay)], nil
}

// fakeRecipientSource implements RecipientSource.
type fakeRecipientSource struct {
	resolved core.ResolvedRecipients
	err      error
}

func (f *fakeRecipientSource) Resolve(_ context.Context, _ string, _ *types.AlertDecision) (core.ResolvedRecipients, error) {
	if f.err != nil {
		return core.ResolvedRecipients{}, f.err
	}
	return f.resolved, nil
}

// fakeComposer implements email.Composer, capturing every render.
type fakeComposer struct {
	mu      sync.Mutex
	renders []email.AlertEmail
	err     error
}

func (f *fakeComposer) Render(_ context.Context, alert email.AlertEmail) (*types.RenderedEmail, error) {
	f.mu.Lock()
	f.renders = append(f.renders, alert)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return &types.RenderedEmail{
		Subject: "subject: " + string(alert.Type),
		HTML:    "<p>body</p>",
		Text:    "body",
	}, nil
}

// sentEmail captures one Send call.
type sentEmail struct {
	tenantID string
	input    types.SendInput
}

// fakeSender implements EmailSender.
type fakeSender struct {
	mu      sync.Mutex
	sent    []sentEmail
	outcome *types.DeliveryOutcome // nil means success
}

func (f *fakeSender) Send(_ context.Context, tenantID string, input types.SendInput) types.DeliveryOutcome {
	f.mu.Lock()
	f.sent = append(f.sent, sentEmail{tenantID: tenantID, input: input})
	f.mu.Unlock()
	if f.outcome != nil {
		return *f.outcome
	}
	return types.DeliveryOutcome{Success: true, MessageID: "msg-1"}
}

func (f *fakeSender) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

// fakeNotificationWriter implements NotificationWriter.
type fakeNotificationWriter struct {
	mu      sync.Mutex
	created []types.NotificationRecord
	err     error
}

func (f *fakeNotificationWriter) Create(_ context.Context, n *types.NotificationRecord) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	f.created = append(f.created, *n)
	f.mu.Unlock()
	return nil
}

// fakeFailureSink implements FailureSink.
type fakeFailureSink struct {
	mu      sync.Mutex
	handled []types.FailureContext
}

func (f *fakeFailureSink) Handle(_ context.Context, fc types.FailureContext) {
	f.mu.Lock()
	f.handled = append(f.handled, fc)
	f.mu.Unlock()
}

func (f *fakeFailureSink) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.handled)
}

func requireSummary(t *testing.T, got types.RunSummary, want types.RunSummary) {
	t.Helper()
	if got != want {
		t.Errorf("summary = %+v, want %+v", got, want)
	}
}
