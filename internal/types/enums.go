package types

// AlertStatus classifies a record's expiry position relative to the reference day.
type AlertStatus string

const (
	// StatusExpired means the expiry date is strictly in the past (DaysRemaining < 0).
	StatusExpired AlertStatus = "expired"
	// StatusExpiring means the expiry date is today or in the future (DaysRemaining >= 0).
	StatusExpiring AlertStatus = "expiring"
)

// RecordKind identifies the business entity an expiring record came from.
type RecordKind string

const (
	RecordCompanyDocument  RecordKind = "company_document"
	RecordEmployeeDocument RecordKind = "employee_document"
	RecordAssetWarranty    RecordKind = "asset_warranty"
)

// NotificationType identifies the kind of expiry notification.
// These values are persisted on notification_records and MUST match the
// CHECK constraint on the table.
type NotificationType string

const (
	NotifDocumentExpiryWarning NotificationType = "DOCUMENT_EXPIRY_WARNING"
	NotifCompanyDocumentExpiry NotificationType = "COMPANY_DOCUMENT_EXPIRY"
	NotifWarrantyExpiry        NotificationType = "WARRANTY_EXPIRY"
	NotifAdminExpirySummary    NotificationType = "ADMIN_EXPIRY_SUMMARY"
)

// ChannelType identifies a notification delivery channel.
type ChannelType string

const (
	ChannelEmail ChannelType = "email"
	ChannelInApp ChannelType = "in_app"
)

// ChannelPolicy is the resolved delivery policy for one tenant send attempt.
//
// PolicyNoOverride routes through the platform transactional provider.
// PolicyOverrideStrict routes through the tenant's own SMTP relay and does
// NOT fall back to the platform provider on relay failure; a broken relay is
// surfaced to the tenant rather than masked. A tenant SMTP config that is
// incomplete, or whose stored secret cannot be decrypted, resolves to
// PolicyNoOverride (configured-but-unreadable is treated as absent).
type ChannelPolicy string

const (
	PolicyNoOverride     ChannelPolicy = "NO_OVERRIDE"
	PolicyOverrideStrict ChannelPolicy = "OVERRIDE_STRICT"
)

// UserRole defines authorization levels within a tenant.
type UserRole string

const (
	RoleAdmin    UserRole = "admin"
	RoleManager  UserRole = "manager"
	RoleEmployee UserRole = "employee"
)

// TenantStatus represents the lifecycle state of a tenant.
type TenantStatus string

const (
	TenantActive    TenantStatus = "active"
	TenantSuspended TenantStatus = "suspended"
)

// JobStatus enumerates the terminal states recorded in job_history.
type JobStatus string

const (
	JobStatusSuccess JobStatus = "success"
	JobStatusFailed  JobStatus = "failed"
)
