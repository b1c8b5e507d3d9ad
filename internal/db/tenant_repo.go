package db

import (
	"context"

	"expirywatch/internal/types"
)

// TenantRepository provides data access for the tenants and tenant_users
// tables. It is the only repository allowed to enumerate across tenants
// (for the orchestrator loop); every other method is tenant-scoped.
type TenantRepository struct {
	db DBTX
}

// NewTenantRepository creates a new TenantRepository backed by the given
// database connection (pool or transaction).
func NewTenantRepository(db DBTX) *TenantRepository {
	return &TenantRepository{db: db}
}

// ListActive returns all active tenants ordered by creation time. Used by the
// orchestrators to drive the per-tenant processing loop.
func (r *TenantRepository) ListActive(ctx context.Context) ([]types.Tenant, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, name, slug, status, created_at
		 FROM tenants
		 WHERE status = 'active'
		 ORDER BY created_at`,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list active tenants", err)
	}
	defer rows.Close()

	var tenants []types.Tenant
	for rows.Next() {
		var t types.Tenant
		if err := rows.Scan(&t.ID, &t.Name, &t.Slug, &t.Status, &t.CreatedAt); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan tenant row", err)
		}
		tenants = append(tenants, t)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate tenant rows", err)
	}
	return tenants, nil
}

// GetByID returns a single tenant, or a not-found AppError.
func (r *TenantRepository) GetByID(ctx context.Context, tenantID string) (*types.Tenant, error) {
	var t types.Tenant
	err := r.db.QueryRow(ctx,
		`SELECT id, name, slug, status, created_at
		 FROM tenants
		 WHERE id = $1`,
		tenantID,
	).Scan(&t.ID, &t.Name, &t.Slug, &t.Status, &t.CreatedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, types.NewAppError(types.ErrCodeNotFoundTenant, "tenant not found", err)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get tenant", err)
	}
	return &t, nil
}

// ListAdmins returns the admin-role members of one tenant. The membership
// join is a tenant-isolation checkpoint: the tenant filter comes first and
// there is no fallback to any global admin list.
func (r *TenantRepository) ListAdmins(ctx context.Context, tenantID string) ([]types.Recipient, error) {
	rows, err := r.db.Query(ctx,
		`SELECT u.id, u.name, u.email
		 FROM tenant_users tu
		 JOIN users u ON u.id = tu.user_id
		 WHERE tu.tenant_id = $1
		   AND tu.role = $2
		 ORDER BY u.email`,
		tenantID,
		string(types.RoleAdmin),
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list tenant admins", err)
	}
	defer rows.Close()

	var admins []types.Recipient
	for rows.Next() {
		var rec types.Recipient
		if err := rows.Scan(&rec.ID, &rec.Name, &rec.Email); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan admin row", err)
		}
		admins = append(admins, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate admin rows", err)
	}
	return admins, nil
}

// GetMember returns one tenant member by user ID, scoped to the tenant.
// Returns a not-found AppError when the user is not a member of the tenant,
// even if a user with that ID exists elsewhere.
func (r *TenantRepository) GetMember(ctx context.Context, tenantID string, userID string) (*types.Recipient, error) {
	var rec types.Recipient
	err := r.db.QueryRow(ctx,
		`SELECT u.id, u.name, u.email
		 FROM tenant_users tu
		 JOIN users u ON u.id = tu.user_id
		 WHERE tu.tenant_id = $1
		   AND tu.user_id = $2`,
		tenantID,
		userID,
	).Scan(&rec.ID, &rec.Name, &rec.Email)
	if err != nil {
		if isNoRows(err) {
			return nil, types.NewAppError(types.ErrCodeNotFoundUser, "user is not a member of tenant", err)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get tenant member", err)
	}
	return &rec, nil
}
