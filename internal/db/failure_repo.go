package db

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"expirywatch/internal/types"
)

// FailureRepository provides data access for the notification_failures table,
// the durable trail of delivery failures consumed by the escalation path and
// the ops dashboard.
type FailureRepository struct {
	db DBTX
}

// NewFailureRepository creates a new FailureRepository backed by the given
// database connection (pool or transaction).
func NewFailureRepository(db DBTX) *FailureRepository {
	return &FailureRepository{db: db}
}

// Create persists one failure record. If the ID is empty a prefixed UUID is
// generated. Metadata is stored as JSONB.
func (r *FailureRepository) Create(ctx context.Context, f *types.FailureRecord) error {
	if f.ID == "" {
		f.ID = "flr_" + uuid.New().String()
	}

	var metadata []byte
	if f.Metadata != nil {
		var err error
		metadata, err = json.Marshal(f.Metadata)
		if err != nil {
			return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to marshal failure metadata", err)
		}
	}

	row := r.db.QueryRow(ctx,
		`INSERT INTO notification_failures
		 (id, module, action, tenant_id, organization_name, organization_slug,
		  recipient_email, recipient_name, email_subject, error, metadata, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW())
		 RETURNING created_at`,
		f.ID,
		f.Module,
		f.Action,
		f.TenantID,
		f.OrganizationName,
		f.OrganizationSlug,
		f.RecipientEmail,
		f.RecipientName,
		f.EmailSubject,
		f.Error,
		metadata,
	)
	if err := row.Scan(&f.CreatedAt); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create failure record", err)
	}
	return nil
}
