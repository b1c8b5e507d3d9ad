// This file implements the asset warranty expiry job. It gates warranties
// against the {60, 30} exact-day windows only: disposed assets and lapsed
// warranties are excluded upstream, so there is no expired branch. The alert
// goes to a configured recipient list rather than tenant membership, and a
// single-tenant run can be triggered on demand via the payload.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"expirywatch/internal/expiry"
	"expirywatch/internal/notifications/email"
	"expirywatch/internal/types"
)

// WarrantyDB defines the database operations needed by the warranty job.
type WarrantyDB interface {
	// ListExpiringWarranties returns assets whose warranty ends after today
	// and on or before the threshold. Disposed assets are excluded.
	//
	// SQL: SELECT id, tenant_id, name, warranty_expiry, serial_number
	//      FROM assets
	//      WHERE tenant_id = $1 AND status <> 'disposed'
	//        AND warranty_expiry > $2 AND warranty_expiry <= $3
	//      ORDER BY warranty_expiry
	ListExpiringWarranties(ctx context.Context, tenantID string, today, threshold time.Time) ([]types.ExpiringRecord, error)
}

// WarrantyService runs the asset warranty expiry scan.
type WarrantyService struct {
	tenants    TenantSource
	db         WarrantyDB
	composer   email.Composer
	sender     EmailSender
	failures   FailureSink
	from       types.EmailAddress
	recipients []types.EmailAddress
	location   *time.Location
	logger     *slog.Logger
}

// WarrantyServiceConfig holds the dependencies for a WarrantyService.
type WarrantyServiceConfig struct {
	Tenants  TenantSource
	DB       WarrantyDB
	Composer email.Composer
	Sender   EmailSender
	Failures FailureSink
	From     types.EmailAddress
	// Recipients is the configured warranty alert distribution list.
	Recipients []types.EmailAddress
	Location   *time.Location
	Logger     *slog.Logger
}

// NewWarrantyService creates a new WarrantyService.
func NewWarrantyService(cfg WarrantyServiceConfig) *WarrantyService {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	return &WarrantyService{
		tenants:    cfg.Tenants,
		db:         cfg.DB,
		composer:   cfg.Composer,
		sender:     cfg.Sender,
		failures:   cfg.Failures,
		from:       cfg.From,
		recipients: cfg.Recipients,
		location:   loc,
		logger:     logger,
	}
}

// Run executes the scan. With a tenantID the run covers that single tenant;
// otherwise all active tenants are scanned. Per-tenant failures are recorded
// and skipped.
func (s *WarrantyService) Run(ctx context.Context, now time.Time, tenantID string) (types.RunSummary, error) {
	var summary types.RunSummary

	if len(s.recipients) == 0 {
		s.logger.WarnContext(ctx, "no warranty alert recipients configured, skipping run")
		return summary, nil
	}

	var tenants []types.Tenant
	if tenantID != "" {
		tenant, err := s.tenants.GetByID(ctx, tenantID)
		if err != nil {
			return summary, fmt.Errorf("loading tenant %s: %w", tenantID, err)
		}
		tenants = []types.Tenant{*tenant}
	} else {
		var err error
		tenants, err = s.tenants.ListActive(ctx)
		if err != nil {
			return summary, fmt.Errorf("listing active tenants: %w", err)
		}
	}

	for _, tenant := range tenants {
		tenantSummary, err := s.processTenant(ctx, tenant, now)
		summary.Merge(tenantSummary)
		if err != nil {
			s.logger.ErrorContext(ctx, "warranty scan failed for tenant",
				"tenant_id", tenant.ID,
				"error", err,
			)
			s.failures.Handle(ctx, types.FailureContext{
				Module:           "asset_warranties",
				Action:           "scan_tenant",
				TenantID:         tenant.ID,
				OrganizationName: tenant.Name,
				OrganizationSlug: tenant.Slug,
				Error:            err.Error(),
			})
			continue
		}
	}

	s.logger.InfoContext(ctx, "warranty scan complete",
		"tenants", len(tenants),
		"checked", summary.Checked,
		"alerted", summary.Alerted,
		"sent", summary.Sent,
		"failed", summary.Failed,
	)

	return summary, nil
}

// processTenant scans one tenant's warranties and sends the consolidated
// alert to the configured list.
func (s *WarrantyService) processTenant(ctx context.Context, tenant types.Tenant, now time.Time) (types.RunSummary, error) {
	var summary types.RunSummary

	gate := expiry.Gate{
		Windows:  expiry.WarrantyWindows,
		Location: s.location,
	}

	today := expiry.DayStart(now, s.location)
	threshold := today.AddDate(0, 0, gate.Windows.Max())
	records, err := s.db.ListExpiringWarranties(ctx, tenant.ID, today, threshold)
	if err != nil {
		return summary, fmt.Errorf("listing warranties: %w", err)
	}
	summary.Checked = len(records)

	var items []email.AlertItem
	for _, record := range records {
		dec := gate.Evaluate(record, now)
		if dec == nil {
			continue
		}
		summary.Alerted++
		items = append(items, email.AlertItem{
			SubjectName:    record.SubjectName,
			ReferenceLabel: record.ReferenceLabel,
			ExpiryDate:     record.ExpiryDate,
			DaysRemaining:  dec.DaysRemaining,
			Status:         dec.Status,
		})
	}
	if len(items) == 0 {
		return summary, nil
	}

	rendered, err := s.composer.Render(ctx, email.AlertEmail{
		Type:       types.NotifWarrantyExpiry,
		TenantName: tenant.Name,
		TenantSlug: tenant.Slug,
		Recipient:  types.Recipient{Name: "Asset Team", Email: s.recipients[0].Address},
		Items:      items,
	})
	if err != nil {
		summary.Failed++
		s.failures.Handle(ctx, types.FailureContext{
			Module:           "asset_warranties",
			Action:           "render_email",
			TenantID:         tenant.ID,
			OrganizationName: tenant.Name,
			OrganizationSlug: tenant.Slug,
			Error:            err.Error(),
		})
		return summary, nil
	}

	outcome := s.sender.Send(ctx, tenant.ID, types.SendInput{
		From:    s.from,
		To:      s.recipients,
		Subject: rendered.Subject,
		HTML:    rendered.HTML,
		Text:    rendered.Text,
	})
	if !outcome.Success {
		summary.Failed++
		s.failures.Handle(ctx, types.FailureContext{
			Module:           "asset_warranties",
			Action:           "send_warranty_email",
			TenantID:         tenant.ID,
			OrganizationName: tenant.Name,
			OrganizationSlug: tenant.Slug,
			RecipientEmail:   s.recipients[0].Address,
			EmailSubject:     rendered.Subject,
			Error:            outcome.Error,
		})
		return summary, nil
	}
	summary.Sent++

	return summary, nil
}
