package db

import (
	"context"

	"expirywatch/internal/types"
)

// SMTPConfigRepository provides read access to per-tenant mail relay
// overrides. The relay password is stored encrypted; decryption happens in
// the delivery layer, never here.
type SMTPConfigRepository struct {
	db DBTX
}

// NewSMTPConfigRepository creates a new SMTPConfigRepository backed by the
// given database connection (pool or transaction).
func NewSMTPConfigRepository(db DBTX) *SMTPConfigRepository {
	return &SMTPConfigRepository{db: db}
}

// GetForTenant returns the tenant's SMTP override, or (nil, nil) when the
// tenant has none. Absence is a normal state, not an error: the sender falls
// back to the platform channel.
func (r *SMTPConfigRepository) GetForTenant(ctx context.Context, tenantID string) (*types.TenantSMTPConfig, error) {
	var cfg types.TenantSMTPConfig
	err := r.db.QueryRow(ctx,
		`SELECT tenant_id, host, port, username, secret_ciphertext, secure,
		        from_address, COALESCE(from_name, '')
		 FROM tenant_smtp_configs
		 WHERE tenant_id = $1`,
		tenantID,
	).Scan(
		&cfg.TenantID, &cfg.Host, &cfg.Port, &cfg.Username,
		&cfg.SecretCiphertext, &cfg.Secure, &cfg.FromAddress, &cfg.FromName,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get tenant smtp config", err)
	}
	return &cfg, nil
}
