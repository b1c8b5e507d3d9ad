// This file implements the in-app notice job. It scans the same employee
// documents as the email job but against the {30, 14, 7, 1} day windows,
// writing channel='in_app' notification rows for the portal bell instead of
// sending mail. The structured dedup key keeps a retried run idempotent.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"expirywatch/internal/expiry"
	"expirywatch/internal/types"
)

// InAppNoticeService writes in-app expiry notices for employee documents.
type InAppNoticeService struct {
	tenants       TenantSource
	db            EmployeeDocDB
	deduper       expiry.Deduper
	notifications NotificationWriter
	location      *time.Location
	logger        *slog.Logger
}

// InAppNoticeServiceConfig holds the dependencies for an InAppNoticeService.
type InAppNoticeServiceConfig struct {
	Tenants       TenantSource
	DB            EmployeeDocDB
	Deduper       expiry.Deduper
	Notifications NotificationWriter
	Location      *time.Location
	Logger        *slog.Logger
}

// NewInAppNoticeService creates a new InAppNoticeService.
func NewInAppNoticeService(cfg InAppNoticeServiceConfig) *InAppNoticeService {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	return &InAppNoticeService{
		tenants:       cfg.Tenants,
		db:            cfg.DB,
		deduper:       cfg.Deduper,
		notifications: cfg.Notifications,
		location:      loc,
		logger:        logger,
	}
}

// Run executes the scan for all active tenants. Per-tenant failures are
// logged and skipped; the run only errors when tenant enumeration fails.
func (s *InAppNoticeService) Run(ctx context.Context, now time.Time) (types.RunSummary, error) {
	var summary types.RunSummary

	tenants, err := s.tenants.ListActive(ctx)
	if err != nil {
		return summary, fmt.Errorf("listing active tenants: %w", err)
	}

	for _, tenant := range tenants {
		tenantSummary, err := s.processTenant(ctx, tenant, now)
		summary.Merge(tenantSummary)
		if err != nil {
			s.logger.ErrorContext(ctx, "in-app notice scan failed for tenant",
				"tenant_id", tenant.ID,
				"error", err,
			)
			continue
		}
	}

	s.logger.InfoContext(ctx, "in-app notice scan complete",
		"tenants", len(tenants),
		"checked", summary.Checked,
		"alerted", summary.Alerted,
		"sent", summary.Sent,
	)

	return summary, nil
}

// processTenant writes the due notices for one tenant.
func (s *InAppNoticeService) processTenant(ctx context.Context, tenant types.Tenant, now time.Time) (types.RunSummary, error) {
	var summary types.RunSummary

	gate := expiry.Gate{
		Windows:        expiry.InAppWindows,
		IncludeExpired: true,
		Location:       s.location,
	}

	threshold := expiry.DayStart(now, s.location).AddDate(0, 0, gate.Windows.Max())
	records, err := s.db.ListExpiringEmployeeDocs(ctx, tenant.ID, threshold)
	if err != nil {
		return summary, fmt.Errorf("listing employee documents: %w", err)
	}
	summary.Checked = len(records)

	for _, record := range records {
		dec := gate.Evaluate(record, now)
		if dec == nil {
			continue
		}
		if record.OwnerID == "" {
			continue
		}
		summary.Alerted++

		suppressed, err := gate.Suppressed(ctx, s.deduper, tenant.ID, record.OwnerID, dec, now)
		if err != nil {
			s.logger.ErrorContext(ctx, "dedup check failed, skipping notice",
				"tenant_id", tenant.ID,
				"record_id", record.ID,
				"error", err,
			)
			continue
		}
		if suppressed {
			continue
		}

		if err := s.notifications.Create(ctx, &types.NotificationRecord{
			TenantID:    tenant.ID,
			RecipientID: record.OwnerID,
			RecordID:    record.ID,
			Type:        types.NotifDocumentExpiryWarning,
			Channel:     types.ChannelInApp,
			WindowDay:   dec.WindowDay,
			Message:     noticeMessage(dec),
		}); err != nil {
			summary.Failed++
			s.logger.ErrorContext(ctx, "failed to write in-app notice",
				"tenant_id", tenant.ID,
				"record_id", record.ID,
				"error", err,
			)
			continue
		}
		summary.Sent++
	}

	return summary, nil
}

// noticeMessage renders the short bell text for one decision.
func noticeMessage(dec *types.AlertDecision) string {
	name := dec.Record.SubjectName
	switch {
	case dec.DaysRemaining < 0:
		return fmt.Sprintf("%s expired %d day(s) ago", name, -dec.DaysRemaining)
	case dec.DaysRemaining == 0:
		return fmt.Sprintf("%s expires today", name)
	case dec.DaysRemaining == 1:
		return fmt.Sprintf("%s expires tomorrow", name)
	default:
		return fmt.Sprintf("%s expires in %d days", name, dec.DaysRemaining)
	}
}
