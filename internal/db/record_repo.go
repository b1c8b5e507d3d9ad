package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"expirywatch/internal/types"
)

// isNoRows reports whether err is the pgx no-rows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// RecordRepository provides read-only access to the expiring business
// entities: company documents, employee documents, and asset warranties.
// The owning domain modules write these tables; the expiry workers only scan
// them. Every scan is bounded by an inclusive expiry threshold computed by
// the caller (today + max alert window) and is strictly tenant-scoped.
type RecordRepository struct {
	db DBTX
}

// NewRecordRepository creates a new RecordRepository backed by the given
// database connection (pool or transaction).
func NewRecordRepository(db DBTX) *RecordRepository {
	return &RecordRepository{db: db}
}

// ListExpiringCompanyDocs returns company-level documents expiring on or
// before the threshold. Already-expired documents are included; the gate
// decides whether they still fire.
func (r *RecordRepository) ListExpiringCompanyDocs(ctx context.Context, tenantID string, threshold time.Time) ([]types.ExpiringRecord, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, tenant_id, name, expiry_date, COALESCE(reference_number, '')
		 FROM company_documents
		 WHERE tenant_id = $1
		   AND expiry_date <= $2
		 ORDER BY expiry_date`,
		tenantID,
		threshold,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list expiring company documents", err)
	}
	defer rows.Close()

	var records []types.ExpiringRecord
	for rows.Next() {
		rec := types.ExpiringRecord{Kind: types.RecordCompanyDocument}
		if err := rows.Scan(&rec.ID, &rec.TenantID, &rec.SubjectName, &rec.ExpiryDate, &rec.ReferenceLabel); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan company document row", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate company document rows", err)
	}
	return records, nil
}

// ListExpiringEmployeeDocs returns employee documents expiring on or before
// the threshold, joined with the owning employee's name and email so the
// per-employee alert path needs no second lookup.
func (r *RecordRepository) ListExpiringEmployeeDocs(ctx context.Context, tenantID string, threshold time.Time) ([]types.ExpiringRecord, error) {
	rows, err := r.db.Query(ctx,
		`SELECT d.id, d.tenant_id, d.document_name, d.expiry_date,
		        COALESCE(d.document_number, ''), d.employee_id, e.name, e.email
		 FROM employee_documents d
		 JOIN employees e ON e.id = d.employee_id AND e.tenant_id = d.tenant_id
		 WHERE d.tenant_id = $1
		   AND d.expiry_date <= $2
		 ORDER BY d.expiry_date`,
		tenantID,
		threshold,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list expiring employee documents", err)
	}
	defer rows.Close()

	var records []types.ExpiringRecord
	for rows.Next() {
		rec := types.ExpiringRecord{Kind: types.RecordEmployeeDocument}
		if err := rows.Scan(
			&rec.ID, &rec.TenantID, &rec.SubjectName, &rec.ExpiryDate,
			&rec.ReferenceLabel, &rec.OwnerID, &rec.OwnerName, &rec.OwnerEmail,
		); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan employee document row", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate employee document rows", err)
	}
	return records, nil
}

// ListExpiringWarranties returns asset warranties expiring on or before the
// threshold but not yet expired, excluding disposed assets. The warranty job
// has no "already expired" branch, so expired rows are filtered at the query.
func (r *RecordRepository) ListExpiringWarranties(ctx context.Context, tenantID string, today, threshold time.Time) ([]types.ExpiringRecord, error) {
	rows, err := r.db.Query(ctx,
		`SELECT a.id, a.tenant_id, a.name, a.warranty_expiry_date, COALESCE(a.asset_tag, '')
		 FROM assets a
		 WHERE a.tenant_id = $1
		   AND a.status <> 'disposed'
		   AND a.warranty_expiry_date IS NOT NULL
		   AND a.warranty_expiry_date > $2
		   AND a.warranty_expiry_date <= $3
		 ORDER BY a.warranty_expiry_date`,
		tenantID,
		today,
		threshold,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list expiring warranties", err)
	}
	defer rows.Close()

	var records []types.ExpiringRecord
	for rows.Next() {
		rec := types.ExpiringRecord{Kind: types.RecordAssetWarranty}
		if err := rows.Scan(&rec.ID, &rec.TenantID, &rec.SubjectName, &rec.ExpiryDate, &rec.ReferenceLabel); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan warranty row", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate warranty rows", err)
	}
	return records, nil
}
