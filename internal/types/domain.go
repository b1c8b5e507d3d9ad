// Package types defines the core domain model shared by all expiry workers:
// tenants and their users, the expiring records scanned by the jobs, the
// notification and failure records they persist, and the wire shapes used at
// the delivery boundary.
package types

import "time"

// Tenant is an isolated organization. Every persisted entity is owned by
// exactly one tenant, and every query in the system is tenant-scoped.
type Tenant struct {
	ID        string       `json:"id" db:"id"`
	Name      string       `json:"name" db:"name"`
	Slug      string       `json:"slug" db:"slug"`
	Status    TenantStatus `json:"status" db:"status"`
	CreatedAt time.Time    `json:"created_at" db:"created_at"`
}

// Recipient is the minimal addressing shape for a notification target.
// Resolved from tenant membership, never from a global user list.
type Recipient struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// ExpiringRecord is the read-only view of a time-sensitive business entity
// (company document, employee document, asset warranty). The owning domain
// modules create and mutate these; the expiry workers only read them.
type ExpiringRecord struct {
	ID             string     `json:"id" db:"id"`
	TenantID       string     `json:"tenant_id" db:"tenant_id"`
	Kind           RecordKind `json:"kind" db:"kind"`
	SubjectName    string     `json:"subject_name" db:"subject_name"`
	ExpiryDate     time.Time  `json:"expiry_date" db:"expiry_date"`
	ReferenceLabel string     `json:"reference_label,omitempty" db:"reference_label"`
	// OwnerID is the tenant user who owns the record (the employee for HR
	// documents). Empty for company-level documents and warranties.
	OwnerID    string `json:"owner_id,omitempty" db:"owner_id"`
	OwnerName  string `json:"owner_name,omitempty" db:"owner_name"`
	OwnerEmail string `json:"owner_email,omitempty" db:"owner_email"`
}

// AlertDecision is the gate's verdict for one record on one day.
// It exists only transiently within a single job run.
type AlertDecision struct {
	Record        ExpiringRecord
	DaysRemaining int
	Status        AlertStatus
	// WindowDay is the matched alert window (e.g. 30, 14, 7) when Status is
	// expiring, or the negative day count when Status is expired. It is part
	// of the structured same-day dedup key.
	WindowDay int
}

// NotificationRecord is the persisted trace of a dispatched alert. The
// (TenantID, RecipientID, RecordID, WindowDay, created-same-day) tuple is the
// idempotency key that suppresses duplicate alerts when a run is retried.
// Rows older than the retention threshold are purged in batches.
type NotificationRecord struct {
	ID          string           `json:"id" db:"id"`
	TenantID    string           `json:"tenant_id" db:"tenant_id"`
	RecipientID string           `json:"recipient_id" db:"recipient_id"`
	RecordID    string           `json:"record_id" db:"record_id"`
	Type        NotificationType `json:"type" db:"type"`
	Channel     ChannelType      `json:"channel" db:"channel"`
	WindowDay   int              `json:"window_day" db:"window_day"`
	Message     string           `json:"message" db:"message"`
	CreatedAt   time.Time        `json:"created_at" db:"created_at"`
}

// TenantSMTPConfig is a per-tenant mail relay override. SecretCiphertext
// holds the encrypted relay password; the plaintext never touches storage.
// An incomplete config, or one whose secret does not decrypt, downgrades the
// tenant to the platform channel.
type TenantSMTPConfig struct {
	TenantID         string `json:"tenant_id" db:"tenant_id"`
	Host             string `json:"host" db:"host"`
	Port             int    `json:"port" db:"port"`
	Username         string `json:"username" db:"username"`
	SecretCiphertext string `json:"-" db:"secret_ciphertext"`
	Secure           bool   `json:"secure" db:"secure"`
	FromAddress      string `json:"from_address" db:"from_address"`
	FromName         string `json:"from_name" db:"from_name"`
}

// Complete reports whether every field required to open a relay session is set.
func (c *TenantSMTPConfig) Complete() bool {
	return c != nil &&
		c.Host != "" &&
		c.Port > 0 &&
		c.Username != "" &&
		c.SecretCiphertext != "" &&
		c.FromAddress != ""
}

// EmailAddress is a name/address pair used in outbound mail.
type EmailAddress struct {
	Address string `json:"address"`
	Name    string `json:"name,omitempty"`
}

// RenderedEmail is the composer's output: a subject plus HTML and plain-text
// bodies. The rendering pipeline is opaque to the delivery layer.
type RenderedEmail struct {
	Subject string
	HTML    string
	Text    string
}

// SendInput is the provider-agnostic outbound message handed to a delivery
// channel (platform provider or tenant relay).
type SendInput struct {
	From    EmailAddress
	To      []EmailAddress
	Subject string
	HTML    string
	Text    string
	// ReferenceID correlates the provider message with internal records.
	ReferenceID string
}

// DeliveryOutcome is the uniform result of one send attempt. The sender never
// returns an error; failures are captured here and routed to the failure
// handler by the caller.
type DeliveryOutcome struct {
	Success bool
	// Skipped is set when the attempt short-circuited without a network call
	// (all recipients filtered out, or dev mode with no provider key).
	Skipped   bool
	MessageID string
	Error     string
}

// FailureContext captures everything the escalation path needs to diagnose a
// delivery failure without re-querying the tenant's data.
type FailureContext struct {
	Module           string         `json:"module"`
	Action           string         `json:"action"`
	TenantID         string         `json:"tenant_id"`
	OrganizationName string         `json:"organization_name"`
	OrganizationSlug string         `json:"organization_slug"`
	RecipientEmail   string         `json:"recipient_email"`
	RecipientName    string         `json:"recipient_name"`
	EmailSubject     string         `json:"email_subject"`
	Error            string         `json:"error"`
	Metadata         map[string]any `json:"metadata,omitempty"`
}

// FailureRecord is the persisted form of a FailureContext.
type FailureRecord struct {
	ID               string         `json:"id" db:"id"`
	Module           string         `json:"module" db:"module"`
	Action           string         `json:"action" db:"action"`
	TenantID         string         `json:"tenant_id" db:"tenant_id"`
	OrganizationName string         `json:"organization_name" db:"organization_name"`
	OrganizationSlug string         `json:"organization_slug" db:"organization_slug"`
	RecipientEmail   string         `json:"recipient_email" db:"recipient_email"`
	RecipientName    string         `json:"recipient_name" db:"recipient_name"`
	EmailSubject     string         `json:"email_subject" db:"email_subject"`
	Error            string         `json:"error" db:"error"`
	Metadata         map[string]any `json:"metadata,omitempty" db:"metadata"`
	CreatedAt        time.Time      `json:"created_at" db:"created_at"`
}

// RunSummary accumulates per-run counters for one job orchestrator pass.
type RunSummary struct {
	Checked int `json:"checked"`
	Alerted int `json:"alerted"`
	Sent    int `json:"sent"`
	Failed  int `json:"failed"`
}

// Merge adds another summary's counters into this one.
func (s *RunSummary) Merge(other RunSummary) {
	s.Checked += other.Checked
	s.Alerted += other.Alerted
	s.Sent += other.Sent
	s.Failed += other.Failed
}
