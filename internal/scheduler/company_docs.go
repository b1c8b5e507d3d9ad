// This file implements the company document expiry job. Once a day it scans
// every active tenant's company-level documents (licenses, leases,
// registrations), gates them against the {30, 14, 7} day windows plus the
// already-expired branch, and sends one consolidated email to the tenant's
// admins.
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

// CompanyDocDB defines the database operations needed by the company
// document job.
type CompanyDocDB interface {
	// ListExpiringCompanyDocs returns company documents expiring on or
	// before the threshold, including already-expired ones.
	//
	// SQL: SELECT id, tenant_id, name, expiry_date, reference_label
	//      FROM company_documents
	//      WHERE tenant_id = $1 AND expiry_date <= $2
	//      ORDER BY expiry_date
	ListExpiringCompanyDocs(ctx context.Context, tenantID string, threshold time.Time) ([]types.ExpiringRecord, error)
}

// CompanyDocService runs the company document expiry scan.
type CompanyDocService struct {
	tenants       TenantSource
	db            CompanyDocDB
	recipients    RecipientSource
	composer      email.Composer
	sender        EmailSender
	notifications NotificationWriter
	failures      FailureSink
	from          types.EmailAddress
	location      *time.Location
	logger        *slog.Logger
}

// CompanyDocServiceConfig holds the dependencies for a CompanyDocService.
type CompanyDocServiceConfig struct {
	Tenants       TenantSource
	DB            CompanyDocDB
	Recipients    RecipientSource
	Composer      email.Composer
	Sender        EmailSender
	Notifications NotificationWriter
	Failures      FailureSink
	From          types.EmailAddress
	Location      *time.Location
	Logger        *slog.Logger
}

// NewCompanyDocService creates a new CompanyDocService.
func NewCompanyDocService(cfg CompanyDocServiceConfig) *CompanyDocService {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	return &CompanyDocService{
		tenants:       cfg.Tenants,
		db:            cfg.DB,
		recipients:    cfg.Recipients,
		composer:      cfg.Composer,
		sender:        cfg.Sender,
		notifications: cfg.Notifications,
		failures:      cfg.Failures,
		from:          cfg.From,
		location:      loc,
		logger:        logger,
	}
}

// Run executes the scan for all active tenants. A tenant that fails is
// recorded and skipped; the run only errors when tenant enumeration itself
// fails.
func (s *CompanyDocService) Run(ctx context.Context, now time.Time) (types.RunSummary, error) {
	var summary types.RunSummary

	tenants, err := s.tenants.ListActive(ctx)
	if err != nil {
		return summary, fmt.Errorf("listing active tenants: %w", err)
	}

	for _, tenant := range tenants {
		tenantSummary, err := s.processTenant(ctx, tenant, now)
		summary.Merge(tenantSummary)
		if err != nil {
			s.logger.ErrorContext(ctx, "company document scan failed for tenant",
				"tenant_id", tenant.ID,
				"error", err,
			)
			s.failures.Handle(ctx, types.FailureContext{
				Module:           "company_documents",
				Action:           "scan_tenant",
				TenantID:         tenant.ID,
				OrganizationName: tenant.Name,
				OrganizationSlug: tenant.Slug,
				Error:            err.Error(),
			})
			continue
		}
	}

	s.logger.InfoContext(ctx, "company document scan complete",
		"tenants", len(tenants),
		"checked", summary.Checked,
		"alerted", summary.Alerted,
		"sent", summary.Sent,
		"failed", summary.Failed,
	)

	return summary, nil
}

// processTenant scans one tenant and sends the consolidated admin email.
func (s *CompanyDocService) processTenant(ctx context.Context, tenant types.Tenant, now time.Time) (types.RunSummary, error) {
	var summary types.RunSummary

	gate := expiry.Gate{
		Windows:        expiry.DocumentWindows,
		IncludeExpired: true,
		Location:       s.location,
	}

	threshold := expiry.DayStart(now, s.location).AddDate(0, 0, gate.Windows.Max())
	records, err := s.db.ListExpiringCompanyDocs(ctx, tenant.ID, threshold)
	if err != nil {
		return summary, fmt.Errorf("listing company documents: %w", err)
	}
	summary.Checked = len(records)

	var decisions []*types.AlertDecision
	for _, record := range records {
		if dec := gate.Evaluate(record, now); dec != nil {
			decisions = append(decisions, dec)
		}
	}
	summary.Alerted = len(decisions)
	if len(decisions) == 0 {
		return summary, nil
	}

	resolved, err := s.recipients.Resolve(ctx, tenant.ID, decisions[0])
	if err != nil {
		return summary, fmt.Errorf("resolving admins: %w", err)
	}
	if len(resolved.Admins) == 0 {
		return summary, nil
	}

	outcome := s.sendAdminEmail(ctx, tenant, resolved.Admins, decisions)
	if !outcome.Success {
		summary.Failed++
		return summary, nil
	}
	summary.Sent++

	if outcome.Skipped {
		return summary, nil
	}

	for _, admin := range resolved.Admins {
		for _, dec := range decisions {
			if err := s.notifications.Create(ctx, &types.NotificationRecord{
				TenantID:    tenant.ID,
				RecipientID: admin.ID,
				RecordID:    dec.Record.ID,
				Type:        types.NotifCompanyDocumentExpiry,
				Channel:     types.ChannelEmail,
				WindowDay:   dec.WindowDay,
				Message:     dec.Record.SubjectName,
			}); err != nil {
				s.logger.ErrorContext(ctx, "failed to record company document notification",
					"tenant_id", tenant.ID,
					"record_id", dec.Record.ID,
					"error", err,
				)
			}
		}
	}

	return summary, nil
}

// sendAdminEmail renders and delivers the consolidated alert. A render or
// delivery failure is routed to the failure sink; the tenant loop continues.
func (s *CompanyDocService) sendAdminEmail(ctx context.Context, tenant types.Tenant, admins []types.Recipient, decisions []*types.AlertDecision) types.DeliveryOutcome {
	items := make([]email.AlertItem, 0, len(decisions))
	for _, dec := range decisions {
		items = append(items, email.AlertItem{
			SubjectName:    dec.Record.SubjectName,
			ReferenceLabel: dec.Record.ReferenceLabel,
			ExpiryDate:     dec.Record.ExpiryDate,
			DaysRemaining:  dec.DaysRemaining,
			Status:         dec.Status,
		})
	}

	rendered, err := s.composer.Render(ctx, email.AlertEmail{
		Type:       types.NotifCompanyDocumentExpiry,
		TenantName: tenant.Name,
		TenantSlug: tenant.Slug,
		Recipient:  admins[0],
		Items:      items,
	})
	if err != nil {
		s.failures.Handle(ctx, types.FailureContext{
			Module:           "company_documents",
			Action:           "render_email",
			TenantID:         tenant.ID,
			OrganizationName: tenant.Name,
			OrganizationSlug: tenant.Slug,
			Error:            err.Error(),
		})
		return types.DeliveryOutcome{Success: false, Error: err.Error()}
	}

	to := make([]types.EmailAddress, 0, len(admins))
	for _, admin := range admins {
		to = append(to, types.EmailAddress{Address: admin.Email, Name: admin.Name})
	}

	outcome := s.sender.Send(ctx, tenant.ID, types.SendInput{
		From:    s.from,
		To:      to,
		Subject: rendered.Subject,
		HTML:    rendered.HTML,
		Text:    rendered.Text,
	})
	if !outcome.Success {
		s.failures.Handle(ctx, types.FailureContext{
			Module:           "company_documents",
			Action:           "send_admin_email",
			TenantID:         tenant.ID,
			OrganizationName: tenant.Name,
			OrganizationSlug: tenant.Slug,
			RecipientEmail:   admins[0].Email,
			EmailSubject:     rendered.Subject,
			Error:            outcome.Error,
		})
	}
	return outcome
}
