// Package scheduler implements the scheduled expiry jobs: the three alert
// scans (company documents, employee documents, asset warranties), the
// in-app notice writer, and the notification retention purge.
//
// This file defines the shared types for the worker multiplexer. The
// JobPayload is the JSON structure sent by EventBridge rules to the worker
// Lambda; the TaskType constant determines which job service handles the
// request.
package scheduler

import (
	"context"
	"time"

	"expirywatch/internal/notifications/core"
	"expirywatch/internal/types"
)

// TaskType identifies which job service should handle an EventBridge event.
type TaskType string

const (
	TaskCompanyDocExpiry   TaskType = "company_document_expiry"
	TaskEmployeeDocExpiry  TaskType = "employee_document_expiry"
	TaskEmployeeDocNotices TaskType = "employee_document_notices"
	TaskWarrantyExpiry     TaskType = "warranty_expiry"
	TaskPurgeNotifications TaskType = "purge_notifications"
)

// JobPayload is the JSON payload sent by EventBridge to the worker Lambda.
//
//	{
//	  "task": "warranty_expiry",
//	  "tenant_id": "ten_123",                    // optional, single-tenant run
//	  "reference_time": "2026-08-31T03:00:00Z"   // optional
//	}
type JobPayload struct {
	Task TaskType `json:"task"`
	// TenantID restricts the run to one tenant. Supported by the warranty
	// job for on-demand triggers; empty means all active tenants.
	TenantID string `json:"tenant_id,omitempty"`
	// ReferenceTime allows manual invocation to specify a different "now"
	// for deterministic execution. If nil, time.Now().UTC() is used.
	ReferenceTime *time.Time `json:"reference_time,omitempty"`
}

// TenantSource enumerates the tenants a job iterates.
type TenantSource interface {
	// ListActive returns all tenants with status 'active'.
	//
	// SQL: SELECT id, name, slug, status, created_at FROM tenants
	//      WHERE status = 'active' ORDER BY created_at
	ListActive(ctx context.Context) ([]types.Tenant, error)

	// GetByID returns one tenant regardless of status.
	//
	// SQL: SELECT id, name, slug, status, created_at FROM tenants WHERE id = $1
	GetByID(ctx context.Context, tenantID string) (*types.Tenant, error)
}

// NotificationWriter persists dispatched-alert records.
type NotificationWriter interface {
	// Create inserts one notification row.
	//
	// SQL: INSERT INTO notifications (id, tenant_id, recipient_id, record_id,
	//      type, channel, window_day, message, created_at) VALUES (...)
	Create(ctx context.Context, n *types.NotificationRecord) error
}

// EmailSender delivers one message for a tenant. Matches the core sender's
// never-error contract.
type EmailSender interface {
	Send(ctx context.Context, tenantID string, input types.SendInput) types.DeliveryOutcome
}

// RecipientSource resolves the people an alert should reach.
type RecipientSource interface {
	Resolve(ctx context.Context, tenantID string, decision *types.AlertDecision) (core.ResolvedRecipients, error)
}

// FailureSink captures a delivery failure for escalation. Implementations
// never propagate their own errors back into the job loop.
type FailureSink interface {
	Handle(ctx context.Context, fc types.FailureContext)
}
