// Package core contains the channel-agnostic delivery pipeline: recipient
// resolution, channel policy selection, the never-error sender, and the
// failure escalation path. Job orchestrators depend on this package and never
// on a concrete provider.
package core

import (
	"context"
	"fmt"
	"log/slog"

	"expirywatch/internal/external"
	"expirywatch/internal/notifications/email"
	"expirywatch/internal/types"
)

// SMTPConfigSource loads a tenant's relay override. A nil config with a nil
// error means the tenant has no override.
type SMTPConfigSource interface {
	GetForTenant(ctx context.Context, tenantID string) (*types.TenantSMTPConfig, error)
}

// Relay delivers a message through a tenant-owned SMTP server.
type Relay interface {
	Send(ctx context.Context, cfg types.TenantSMTPConfig, password string, input types.SendInput) (string, error)
}

// SecretDecrypter recovers the relay password from its stored ciphertext.
type SecretDecrypter interface {
	Decrypt(envelope string) (string, error)
}

// Sender routes one outbound email through the channel the tenant's policy
// selects. Send never returns an error: every failure mode, including panics
// in a provider client, is converted into a DeliveryOutcome so a single bad
// tenant cannot abort a batch run.
type Sender struct {
	provider    external.EmailProvider
	relay       Relay
	smtpConfigs SMTPConfigSource
	secrets     SecretDecrypter
	logger      *slog.Logger
}

// SenderConfig holds the dependencies needed to create a Sender.
type SenderConfig struct {
	Provider    external.EmailProvider
	Relay       Relay
	SMTPConfigs SMTPConfigSource
	Secrets     SecretDecrypter
	Logger      *slog.Logger
}

// NewSender creates a Sender with the given dependencies.
func NewSender(cfg SenderConfig) *Sender {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Sender{
		provider:    cfg.Provider,
		relay:       cfg.Relay,
		smtpConfigs: cfg.SMTPConfigs,
		secrets:     cfg.Secrets,
		logger:      logger,
	}
}

// Send delivers the message for the given tenant:
//
//  1. Placeholder recipients are filtered out. If nothing remains the
//     attempt succeeds as a skip; synthetic addresses must never reach a
//     provider.
//  2. The channel policy is resolved from the tenant's SMTP override.
//  3. OVERRIDE_STRICT routes through the tenant relay; a relay failure is
//     terminal for the attempt. There is no fallback to the platform
//     provider, by tenant contract.
//  4. NO_OVERRIDE routes through the platform provider.
func (s *Sender) Send(ctx context.Context, tenantID string, input types.SendInput) (outcome types.DeliveryOutcome) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.ErrorContext(ctx, "panic during email send",
				"tenant_id", tenantID,
				"panic", fmt.Sprintf("%v", r),
			)
			outcome = types.DeliveryOutcome{
				Success: false,
				Error:   fmt.Sprintf("panic during send: %v", r),
			}
		}
	}()

	input.To = s.filterPlaceholders(ctx, tenantID, input.To)
	if len(input.To) == 0 {
		s.logger.InfoContext(ctx, "all recipients filtered, skipping send",
			"tenant_id", tenantID,
			"subject", input.Subject,
		)
		return types.DeliveryOutcome{Success: true, Skipped: true}
	}

	policy, smtpCfg, password := s.resolvePolicy(ctx, tenantID)

	var msgID string
	var err error
	switch policy {
	case types.PolicyOverrideStrict:
		msgID, err = s.relay.Send(ctx, *smtpCfg, password, input)
	default:
		msgID, err = s.provider.Send(ctx, input)
	}

	if err != nil {
		s.logger.ErrorContext(ctx, "email send failed",
			"tenant_id", tenantID,
			"policy", string(policy),
			"error", err,
		)
		return types.DeliveryOutcome{Success: false, Error: err.Error()}
	}

	return types.DeliveryOutcome{
		Success:   true,
		Skipped:   msgID == external.StubMessageID,
		MessageID: msgID,
	}
}

// filterPlaceholders removes synthetic addresses from the recipient list.
func (s *Sender) filterPlaceholders(ctx context.Context, tenantID string, to []types.EmailAddress) []types.EmailAddress {
	kept := to[:0:0]
	for _, addr := range to {
		if email.IsPlaceholderAddress(addr.Address) {
			s.logger.InfoContext(ctx, "skipping placeholder recipient",
				"tenant_id", tenantID,
				"recipient", email.RedactEmail(addr.Address),
			)
			continue
		}
		kept = append(kept, addr)
	}
	return kept
}

// resolvePolicy determines the delivery channel for the tenant. A config that
// is missing, incomplete, unreadable, or whose secret fails to decrypt
// resolves to NO_OVERRIDE; only a fully working override yields
// OVERRIDE_STRICT. The password is returned only for the strict case.
func (s *Sender) resolvePolicy(ctx context.Context, tenantID string) (types.ChannelPolicy, *types.TenantSMTPConfig, string) {
	cfg, err := s.smtpConfigs.GetForTenant(ctx, tenantID)
	if err != nil {
		s.logger.WarnContext(ctx, "smtp config lookup failed, using platform channel",
			"tenant_id", tenantID,
			"error", err,
		)
		return types.PolicyNoOverride, nil, ""
	}
	if !cfg.Complete() {
		if cfg != nil {
			s.logger.WarnContext(ctx, "smtp config incomplete, using platform channel",
				"tenant_id", tenantID,
			)
		}
		return types.PolicyNoOverride, nil, ""
	}

	password, err := s.secrets.Decrypt(cfg.SecretCiphertext)
	if err != nil {
		// Configured but unreadable is treated as absent.
		s.logger.WarnContext(ctx, "smtp secret unreadable, using platform channel",
			"tenant_id", tenantID,
			"error", err,
		)
		return types.PolicyNoOverride, nil, ""
	}

	return types.PolicyOverrideStrict, cfg, password
}
