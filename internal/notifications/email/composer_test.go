package email

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"expirywatch/internal/types"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestComposer(t *testing.T) *TemplateComposer {
	t.Helper()
	c, err := NewTemplateComposer(TemplateComposerConfig{
		BaseDomain: "expirywatch.io",
		Location:   time.UTC,
		Logger:     newTestLogger(),
	})
	if err != nil {
		t.Fatalf("NewTemplateComposer() error: %v", err)
	}
	return c
}

func TestNewTemplateComposer(t *testing.T) {
	c := newTestComposer(t)
	if c == nil {
		t.Fatal("expected non-nil composer")
	}
}

func TestComposerRenderAllNotificationTypes(t *testing.T) {
	c := newTestComposer(t)

	notifTypes := []types.NotificationType{
		types.NotifDocumentExpiryWarning,
		types.NotifCompanyDocumentExpiry,
		types.NotifWarrantyExpiry,
		types.NotifAdminExpirySummary,
	}

	for _, nt := range notifTypes {
		t.Run(string(nt), func(t *testing.T) {
			rendered, err := c.Render(context.Background(), AlertEmail{
				Type:       nt,
				TenantName: "Acme Trading LLC",
				TenantSlug: "acme",
				Recipient:  types.Recipient{ID: "usr_1", Name: "Fatima", Email: "fatima@acme.example"},
				Items: []AlertItem{
					{
						SubjectName:    "Trade License",
						ReferenceLabel: "TL-4471",
						ExpiryDate:     time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC),
						DaysRemaining:  14,
						Status:         types.StatusExpiring,
					},
				},
			})
			if err != nil {
				t.Fatalf("Render() error: %v", err)
			}

			if rendered.Subject == "" {
				t.Error("Subject should not be empty")
			}
			if rendered.HTML == "" {
				t.Error("HTML should not be empty")
			}
			if rendered.Text == "" {
				t.Error("Text should not be empty")
			}
			if !strings.Contains(rendered.HTML, "Trade License") {
				t.Error("HTML should contain the record subject name")
			}
			if !strings.Contains(rendered.Text, "TL-4471") {
				t.Error("Text should contain the reference label")
			}
		})
	}
}

func TestComposerSubjectSingleItem(t *testing.T) {
	c := newTestComposer(t)

	rendered, err := c.Render(context.Background(), AlertEmail{
		Type:       types.NotifDocumentExpiryWarning,
		TenantName: "Acme Trading LLC",
		TenantSlug: "acme",
		Recipient:  types.Recipient{Name: "Omar", Email: "omar@acme.example"},
		Items: []AlertItem{
			{SubjectName: "Passport", ExpiryDate: time.Date(2026, 9, 30, 0, 0, 0, 0, time.UTC), DaysRemaining: 30, Status: types.StatusExpiring},
		},
	})
	if err != nil {
		t.Fatalf("Render() error: %v", err)
	}

	want := "Document Expiry Warning: Passport"
	if rendered.Subject != want {
		t.Errorf("Subject = %q, want %q", rendered.Subject, want)
	}
}

func TestComposerSubjectMultipleItems(t *testing.T) {
	c := newTestComposer(t)

	rendered, err := c.Render(context.Background(), AlertEmail{
		Type:       types.NotifAdminExpirySummary,
		TenantName: "Acme Trading LLC",
		TenantSlug: "acme",
		Recipient:  types.Recipient{Name: "Admin", Email: "admin@acme.example"},
		Items: []AlertItem{
			{SubjectName: "Trade License", ExpiryDate: time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC), DaysRemaining: 7, Status: types.StatusExpiring},
			{SubjectName: "Lease Contract", ExpiryDate: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), DaysRemaining: -2, Status: types.StatusExpired},
			{SubjectName: "Vehicle Registration", ExpiryDate: time.Date(2026, 4, 10, 0, 0, 0, 0, time.UTC), DaysRemaining: 30, Status: types.StatusExpiring},
		},
	})
	if err != nil {
		t.Fatalf("Render() error: %v", err)
	}

	want := "Expiry Summary: 3 items require attention"
	if rendered.Subject != want {
		t.Errorf("Subject = %q, want %q", rendered.Subject, want)
	}
}

func TestComposerPortalURL(t *testing.T) {
	c := newTestComposer(t)

	rendered, err := c.Render(context.Background(), AlertEmail{
		Type:       types.NotifCompanyDocumentExpiry,
		TenantName: "Acme Trading LLC",
		TenantSlug: "acme",
		Recipient:  types.Recipient{Name: "Admin", Email: "admin@acme.example"},
		Items: []AlertItem{
			{SubjectName: "Trade License", ExpiryDate: time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC), DaysRemaining: 7, Status: types.StatusExpiring},
		},
	})
	if err != nil {
		t.Fatalf("Render() error: %v", err)
	}

	if !strings.Contains(rendered.HTML, "https://acme.expirywatch.io/renewals") {
		t.Error("HTML should contain the tenant portal link")
	}
	if !strings.Contains(rendered.Text, "https://acme.expirywatch.io/renewals") {
		t.Error("Text should contain the tenant portal link")
	}
}

func TestComposerUnknownType(t *testing.T) {
	c := newTestComposer(t)

	_, err := c.Render(context.Background(), AlertEmail{
		Type:      types.NotificationType("UNKNOWN_TYPE"),
		Recipient: types.Recipient{Name: "X", Email: "x@acme.example"},
		Items: []AlertItem{
			{SubjectName: "Thing", ExpiryDate: time.Now(), DaysRemaining: 7},
		},
	})
	if err == nil {
		t.Fatal("expected error for unknown notification type")
	}
}

func TestComposerEmptyItems(t *testing.T) {
	c := newTestComposer(t)

	_, err := c.Render(context.Background(), AlertEmail{
		Type:      types.NotifDocumentExpiryWarning,
		Recipient: types.Recipient{Name: "X", Email: "x@acme.example"},
	})
	if err == nil {
		t.Fatal("expected error for empty items")
	}
}

func TestStatusLine(t *testing.T) {
	tests := []struct {
		days int
		want string
	}{
		{days: -5, want: "expired 5 days ago"},
		{days: -1, want: "expired yesterday"},
		{days: 0, want: "expires today"},
		{days: 1, want: "expires tomorrow"},
		{days: 30, want: "expires in 30 days"},
	}

	for _, tt := range tests {
		if got := statusLine(tt.days); got != tt.want {
			t.Errorf("statusLine(%d) = %q, want %q", tt.days, got, tt.want)
		}
	}
}
