// This file implements the employee document expiry job. Once a day it scans
// every active tenant's employee documents (passports, permits, IDs), gates
// them against the {30, 14, 7} day windows plus the already-expired branch,
// emails each affected employee directly, and fans out a consolidated
// summary to the tenant's admins.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"expirywatch/internal/expiry"
	"expirywatch/internal/notifications/email"
	"expirywatch/internal/types"
)

// adminFanOutLimit bounds concurrent admin summary sends per tenant.
const adminFanOutLimit = 4

// EmployeeDocDB defines the database operations needed by the employee
// document job.
type EmployeeDocDB interface {
	// ListExpiringEmployeeDocs returns employee documents expiring on or
	// before the threshold, including already-expired ones, joined with the
	// owning employee for addressing.
	//
	// SQL: SELECT d.id, d.tenant_id, d.name, d.expiry_date, d.reference_label,
	//             e.id, e.name, e.email
	//      FROM employee_documents d
	//      JOIN employees e ON e.id = d.employee_id
	//      WHERE d.tenant_id = $1 AND d.expiry_date <= $2
	//      ORDER BY e.id, d.expiry_date
	ListExpiringEmployeeDocs(ctx context.Context, tenantID string, threshold time.Time) ([]types.ExpiringRecord, error)
}

// EmployeeDocService runs the employee document expiry scan.
type EmployeeDocService struct {
	tenants       TenantSource
	db            EmployeeDocDB
	deduper       expiry.Deduper
	recipients    RecipientSource
	composer      email.Composer
	sender        EmailSender
	notifications NotificationWriter
	failures      FailureSink
	from          types.EmailAddress
	location      *time.Location
	logger        *slog.Logger
}

// EmployeeDocServiceConfig holds the dependencies for an EmployeeDocService.
type EmployeeDocServiceConfig struct {
	Tenants       TenantSource
	DB            EmployeeDocDB
	Deduper       expiry.Deduper
	Recipients    RecipientSource
	Composer      email.Composer
	Sender        EmailSender
	Notifications NotificationWriter
	Failures      FailureSink
	From          types.EmailAddress
	Location      *time.Location
	Logger        *slog.Logger
}

// NewEmployeeDocService creates a new EmployeeDocService.
func NewEmployeeDocService(cfg EmployeeDocServiceConfig) *EmployeeDocService {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	return &EmployeeDocService{
		tenants:       cfg.Tenants,
		db:            cfg.DB,
		deduper:       cfg.Deduper,
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
func (s *EmployeeDocService) Run(ctx context.Context, now time.Time) (types.RunSummary, error) {
	var summary types.RunSummary

	tenants, err := s.tenants.ListActive(ctx)
	if err != nil {
		return summary, fmt.Errorf("listing active tenants: %w", err)
	}

	for _, tenant := range tenants {
		tenantSummary, err := s.processTenant(ctx, tenant, now)
		summary.Merge(tenantSummary)
		if err != nil {
			s.logger.ErrorContext(ctx, "employee document scan failed for tenant",
				"tenant_id", tenant.ID,
				"error", err,
			)
			s.failures.Handle(ctx, types.FailureContext{
				Module:           "employee_documents",
				Action:           "scan_tenant",
				TenantID:         tenant.ID,
				OrganizationName: tenant.Name,
				OrganizationSlug: tenant.Slug,
				Error:            err.Error(),
			})
			continue
		}
	}

	s.logger.InfoContext(ctx, "employee document scan complete",
		"tenants", len(tenants),
		"checked", summary.Checked,
		"alerted", summary.Alerted,
		"sent", summary.Sent,
		"failed", summary.Failed,
	)

	return summary, nil
}

// ownerGroup collects one employee's due alerts for a single email.
type ownerGroup struct {
	recipient types.Recipient
	decisions []*types.AlertDecision
}

// processTenant scans one tenant, emails affected employees, and fans the
// consolidated summary out to the tenant's admins.
func (s *EmployeeDocService) processTenant(ctx context.Context, tenant types.Tenant, now time.Time) (types.RunSummary, error) {
	var summary types.RunSummary

	gate := expiry.Gate{
		Windows:        expiry.DocumentWindows,
		IncludeExpired: true,
		Location:       s.location,
	}

	threshold := expiry.DayStart(now, s.location).AddDate(0, 0, gate.Windows.Max())
	records, err := s.db.ListExpiringEmployeeDocs(ctx, tenant.ID, threshold)
	if err != nil {
		return summary, fmt.Errorf("listing employee documents: %w", err)
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

	for _, group := range groupByOwner(decisions) {
		s.processOwner(ctx, tenant, gate, group, now, &summary)
	}

	s.fanOutAdminSummary(ctx, tenant, decisions, &summary)

	return summary, nil
}

// processOwner sends one employee their day-deduped alert email and records
// the dispatched notifications.
func (s *EmployeeDocService) processOwner(ctx context.Context, tenant types.Tenant, gate expiry.Gate, group ownerGroup, now time.Time, summary *types.RunSummary) {
	due := make([]*types.AlertDecision, 0, len(group.decisions))
	for _, dec := range group.decisions {
		suppressed, err := gate.Suppressed(ctx, s.deduper, tenant.ID, group.recipient.ID, dec, now)
		if err != nil {
			// When the dedup check itself fails, skip rather than risk a
			// duplicate alert; the record fires again on a later window or
			// once expired.
			s.logger.ErrorContext(ctx, "dedup check failed, skipping alert",
				"tenant_id", tenant.ID,
				"record_id", dec.Record.ID,
				"error", err,
			)
			continue
		}
		if suppressed {
			continue
		}
		due = append(due, dec)
	}
	if len(due) == 0 {
		return
	}

	items := make([]email.AlertItem, 0, len(due))
	for _, dec := range due {
		items = append(items, email.AlertItem{
			SubjectName:    dec.Record.SubjectName,
			ReferenceLabel: dec.Record.ReferenceLabel,
			ExpiryDate:     dec.Record.ExpiryDate,
			DaysRemaining:  dec.DaysRemaining,
			Status:         dec.Status,
		})
	}

	rendered, err := s.composer.Render(ctx, email.AlertEmail{
		Type:       types.NotifDocumentExpiryWarning,
		TenantName: tenant.Name,
		TenantSlug: tenant.Slug,
		Recipient:  group.recipient,
		Items:      items,
	})
	if err != nil {
		summary.Failed++
		s.failures.Handle(ctx, types.FailureContext{
			Module:           "employee_documents",
			Action:           "render_email",
			TenantID:         tenant.ID,
			OrganizationName: tenant.Name,
			OrganizationSlug: tenant.Slug,
			RecipientEmail:   group.recipient.Email,
			RecipientName:    group.recipient.Name,
			Error:            err.Error(),
		})
		return
	}

	outcome := s.sender.Send(ctx, tenant.ID, types.SendInput{
		From:    s.from,
		To:      []types.EmailAddress{{Address: group.recipient.Email, Name: group.recipient.Name}},
		Subject: rendered.Subject,
		HTML:    rendered.HTML,
		Text:    rendered.Text,
	})
	if !outcome.Success {
		summary.Failed++
		s.failures.Handle(ctx, types.FailureContext{
			Module:           "employee_documents",
			Action:           "send_employee_email",
			TenantID:         tenant.ID,
			OrganizationName: tenant.Name,
			OrganizationSlug: tenant.Slug,
			RecipientEmail:   group.recipient.Email,
			RecipientName:    group.recipient.Name,
			EmailSubject:     rendered.Subject,
			Error:            outcome.Error,
		})
		return
	}
	summary.Sent++

	if outcome.Skipped {
		return
	}
	for _, dec := range due {
		if err := s.notifications.Create(ctx, &types.NotificationRecord{
			TenantID:    tenant.ID,
			RecipientID: group.recipient.ID,
			RecordID:    dec.Record.ID,
			Type:        types.NotifDocumentExpiryWarning,
			Channel:     types.ChannelEmail,
			WindowDay:   dec.WindowDay,
			Message:     dec.Record.SubjectName,
		}); err != nil {
			s.logger.ErrorContext(ctx, "failed to record employee notification",
				"tenant_id", tenant.ID,
				"record_id", dec.Record.ID,
				"error", err,
			)
		}
	}
}

// fanOutAdminSummary sends the per-tenant consolidated summary to each admin
// concurrently and waits for all sends before returning.
func (s *EmployeeDocService) fanOutAdminSummary(ctx context.Context, tenant types.Tenant, decisions []*types.AlertDecision, summary *types.RunSummary) {
	resolved, err := s.recipients.Resolve(ctx, tenant.ID, decisions[0])
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to resolve admins for summary",
			"tenant_id", tenant.ID,
			"error", err,
		)
		return
	}
	if len(resolved.Admins) == 0 {
		return
	}

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

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(adminFanOutLimit)

	for _, admin := range resolved.Admins {
		g.Go(func() error {
			rendered, err := s.composer.Render(gctx, email.AlertEmail{
				Type:       types.NotifAdminExpirySummary,
				TenantName: tenant.Name,
				TenantSlug: tenant.Slug,
				Recipient:  admin,
				Items:      items,
			})
			if err != nil {
				mu.Lock()
				summary.Failed++
				mu.Unlock()
				s.failures.Handle(gctx, types.FailureContext{
					Module:           "employee_documents",
					Action:           "render_admin_summary",
					TenantID:         tenant.ID,
					OrganizationName: tenant.Name,
					OrganizationSlug: tenant.Slug,
					RecipientEmail:   admin.Email,
					RecipientName:    admin.Name,
					Error:            err.Error(),
				})
				return nil
			}

			outcome := s.sender.Send(gctx, tenant.ID, types.SendInput{
				From:    s.from,
				To:      []types.EmailAddress{{Address: admin.Email, Name: admin.Name}},
				Subject: rendered.Subject,
				HTML:    rendered.HTML,
				Text:    rendered.Text,
			})

			mu.Lock()
			if outcome.Success {
				summary.Sent++
			} else {
				summary.Failed++
			}
			mu.Unlock()

			if !outcome.Success {
				s.failures.Handle(gctx, types.FailureContext{
					Module:           "employee_documents",
					Action:           "send_admin_summary",
					TenantID:         tenant.ID,
					OrganizationName: tenant.Name,
					OrganizationSlug: tenant.Slug,
					RecipientEmail:   admin.Email,
					RecipientName:    admin.Name,
					EmailSubject:     rendered.Subject,
					Error:            outcome.Error,
				})
			}
			return nil
		})
	}

	// Sends never return errors; Wait only synchronizes the fan-out.
	_ = g.Wait()
}

// groupByOwner buckets decisions per employee, preserving scan order.
func groupByOwner(decisions []*types.AlertDecision) []ownerGroup {
	index := make(map[string]int)
	var groups []ownerGroup

	for _, dec := range decisions {
		ownerID := dec.Record.OwnerID
		if ownerID == "" {
			continue
		}
		i, ok := index[ownerID]
		if !ok {
			i = len(groups)
			index[ownerID] = i
			groups = append(groups, ownerGroup{
				recipient: types.Recipient{
					ID:    ownerID,
					Name:  dec.Record.OwnerName,
					Email: dec.Record.OwnerEmail,
				},
			})
		}
		groups[i].decisions = append(groups[i].decisions, dec)
	}

	return groups
}
