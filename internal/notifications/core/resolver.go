package core

import (
	"context"
	"errors"
	"log/slog"

	"expirywatch/internal/types"
)

// MembershipSource exposes tenant-scoped memberships for recipient
// resolution.
type MembershipSource interface {
	ListAdmins(ctx context.Context, tenantID string) ([]types.Recipient, error)
	// GetMember returns the membership row for one user, or an AppError with
	// code ErrCodeNotFoundUser when the user is not a member of the tenant.
	GetMember(ctx context.Context, tenantID string, userID string) (*types.Recipient, error)
}

// ResolvedRecipients is the outcome of recipient resolution for one alert.
// Individual is nil for tenant-level records (company documents, warranties).
type ResolvedRecipients struct {
	Individual *types.Recipient
	Admins     []types.Recipient
}

// RecipientResolver maps an alert decision to the people who should hear
// about it: the record owner (when the record has one) and the tenant's
// admins for the consolidated summary.
type RecipientResolver struct {
	memberships MembershipSource
	logger      *slog.Logger
}

// NewRecipientResolver creates a resolver over the given membership source.
func NewRecipientResolver(memberships MembershipSource, logger *slog.Logger) *RecipientResolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &RecipientResolver{
		memberships: memberships,
		logger:      logger,
	}
}

// Resolve returns the recipients for one decision. The record owner is
// checked against the tenant membership before being addressed, so a user
// who left the tenant since the record was written gets no email; the
// membership row is authoritative for the owner's current name and address.
// Admins always come from the tenant membership join, never from a global
// user list. A tenant with zero admins is not an error: the admin summary is
// skipped and the owner-facing alert (if any) still goes out.
func (r *RecipientResolver) Resolve(ctx context.Context, tenantID string, decision *types.AlertDecision) (ResolvedRecipients, error) {
	var resolved ResolvedRecipients

	if decision != nil && decision.Record.OwnerID != "" {
		member, err := r.memberships.GetMember(ctx, tenantID, decision.Record.OwnerID)
		switch {
		case err == nil:
			resolved.Individual = member
		case isNotFoundUser(err):
			r.logger.WarnContext(ctx, "record owner is no longer a tenant member, skipping individual alert",
				"tenant_id", tenantID,
				"owner_id", decision.Record.OwnerID,
			)
		default:
			return ResolvedRecipients{}, err
		}
	}

	admins, err := r.memberships.ListAdmins(ctx, tenantID)
	if err != nil {
		return ResolvedRecipients{}, err
	}
	if len(admins) == 0 {
		r.logger.WarnContext(ctx, "tenant has no admins, summary will be skipped",
			"tenant_id", tenantID,
		)
	}
	resolved.Admins = admins

	return resolved, nil
}

func isNotFoundUser(err error) bool {
	var appErr *types.AppError
	return errors.As(err, &appErr) && appErr.Code == types.ErrCodeNotFoundUser
}
