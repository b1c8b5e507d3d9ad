package core

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"expirywatch/internal/external"
	"expirywatch/internal/types"
)

// FailureStore persists failure rows for the ops dashboard.
type FailureStore interface {
	Create(ctx context.Context, f *types.FailureRecord) error
}

// FailureHandler is the terminal sink for delivery failures. Handle records
// the failure, escalates it to the ops queue, and emails the platform super
// admins. Each step is independent: an error in one is logged and the next
// still runs, because the failure path must never become a second failure
// source for the job loop.
type FailureHandler struct {
	failures    FailureStore
	escalations external.EscalationPublisher
	provider    external.EmailProvider
	superAdmins []types.EmailAddress
	from        types.EmailAddress
	logger      *slog.Logger
}

// FailureHandlerConfig holds the dependencies needed to create a FailureHandler.
type FailureHandlerConfig struct {
	Failures    FailureStore
	Escalations external.EscalationPublisher
	Provider    external.EmailProvider
	SuperAdmins []types.EmailAddress
	From        types.EmailAddress
	Logger      *slog.Logger
}

// NewFailureHandler creates a FailureHandler.
func NewFailureHandler(cfg FailureHandlerConfig) *FailureHandler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &FailureHandler{
		failures:    cfg.Failures,
		escalations: cfg.Escalations,
		provider:    cfg.Provider,
		superAdmins: cfg.SuperAdmins,
		from:        cfg.From,
		logger:      logger,
	}
}

// Handle runs the full failure pipeline: persist, escalate, notify.
func (h *FailureHandler) Handle(ctx context.Context, fc types.FailureContext) {
	h.logger.ErrorContext(ctx, "delivery failure captured",
		"module", fc.Module,
		"action", fc.Action,
		"tenant_id", fc.TenantID,
		"error", fc.Error,
	)

	if err := h.failures.Create(ctx, &types.FailureRecord{
		Module:           fc.Module,
		Action:           fc.Action,
		TenantID:         fc.TenantID,
		OrganizationName: fc.OrganizationName,
		OrganizationSlug: fc.OrganizationSlug,
		RecipientEmail:   fc.RecipientEmail,
		RecipientName:    fc.RecipientName,
		EmailSubject:     fc.EmailSubject,
		Error:            fc.Error,
		Metadata:         fc.Metadata,
		CreatedAt:        time.Now().UTC(),
	}); err != nil {
		h.logger.ErrorContext(ctx, "failed to persist failure record",
			"tenant_id", fc.TenantID,
			"error", err,
		)
	}

	if err := h.escalations.PublishFailure(ctx, fc); err != nil {
		h.logger.ErrorContext(ctx, "failed to publish failure escalation",
			"tenant_id", fc.TenantID,
			"error", err,
		)
	}

	h.notifySuperAdmins(ctx, fc)
}

// notifySuperAdmins sends a plain operational email describing the failure.
// It goes through the platform provider directly; tenant channel policy does
// not apply to ops mail.
func (h *FailureHandler) notifySuperAdmins(ctx context.Context, fc types.FailureContext) {
	if len(h.superAdmins) == 0 {
		return
	}

	subject := fmt.Sprintf("[ExpiryWatch] %s failure for %s", fc.Module, fc.OrganizationName)
	body := fmt.Sprintf(
		"Module: %s\nAction: %s\nTenant: %s (%s)\nRecipient: %s\nSubject: %s\nError: %s\n",
		fc.Module,
		fc.Action,
		fc.OrganizationName,
		fc.TenantID,
		fc.RecipientEmail,
		fc.EmailSubject,
		fc.Error,
	)

	if _, err := h.provider.Send(ctx, types.SendInput{
		From:    h.from,
		To:      h.superAdmins,
		Subject: subject,
		Text:    body,
	}); err != nil {
		h.logger.ErrorContext(ctx, "failed to notify super admins",
			"tenant_id", fc.TenantID,
			"error", err,
		)
	}
}
