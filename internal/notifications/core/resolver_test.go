package core

import (
	"context"
	"errors"
	"testing"

	"expirywatch/internal/types"
)

// mockMemberships implements MembershipSource for testing. A nil member
// reports the owner as not belonging to the tenant.
type mockMemberships struct {
	admins    []types.Recipient
	returnErr error

	member    *types.Recipient
	memberErr error
}

func (m *mockMemberships) ListAdmins(_ context.Context, _ string) ([]types.Recipient, error) {
	if m.returnErr != nil {
		return nil, m.returnErr
	}
	return m.admins, nil
}

func (m *mockMemberships) GetMember(_ context.Context, _ string, _ string) (*types.Recipient, error) {
	if m.memberErr != nil {
		return nil, m.memberErr
	}
	if m.member == nil {
		return nil, types.NewAppError(types.ErrCodeNotFoundUser, "user is not a member of tenant", nil)
	}
	return m.member, nil
}

func TestResolveWithOwner(t *testing.T) {
	r := NewRecipientResolver(&mockMemberships{
		admins: []types.Recipient{{ID: "usr_admin", Name: "Admin", Email: "admin@acme.example"}},
		member: &types.Recipient{ID: "usr_7", Name: "Fatima", Email: "fatima@acme.example"},
	}, newTestLogger())

	decision := &types.AlertDecision{
		Record: types.ExpiringRecord{
			ID:         "doc_1",
			TenantID:   "ten_1",
			Kind:       types.RecordEmployeeDocument,
			OwnerID:    "usr_7",
			OwnerName:  "Fatima",
			OwnerEmail: "fatima@acme.example",
		},
	}

	resolved, err := r.Resolve(context.Background(), "ten_1", decision)
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}

	if resolved.Individual == nil {
		t.Fatal("expected an individual recipient for an owned record")
	}
	if resolved.Individual.Email != "fatima@acme.example" {
		t.Errorf("Individual.Email = %q, want the owner email", resolved.Individual.Email)
	}
	if len(resolved.Admins) != 1 {
		t.Errorf("Admins = %v, want one admin", resolved.Admins)
	}
}

func TestResolveTenantLevelRecord(t *testing.T) {
	r := NewRecipientResolver(&mockMemberships{
		admins: []types.Recipient{{ID: "usr_admin", Email: "admin@acme.example"}},
	}, newTestLogger())

	decision := &types.AlertDecision{
		Record: types.ExpiringRecord{
			ID:       "doc_2",
			TenantID: "ten_1",
			Kind:     types.RecordCompanyDocument,
		},
	}

	resolved, err := r.Resolve(context.Background(), "ten_1", decision)
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}

	if resolved.Individual != nil {
		t.Error("company-level records have no individual recipient")
	}
	if len(resolved.Admins) != 1 {
		t.Errorf("Admins = %v, want one admin", resolved.Admins)
	}
}

func TestResolveDepartedOwnerGetsNoEmail(t *testing.T) {
	// The record still carries the owner, but the membership row is gone.
	r := NewRecipientResolver(&mockMemberships{
		admins: []types.Recipient{{ID: "usr_admin", Email: "admin@acme.example"}},
	}, newTestLogger())

	decision := &types.AlertDecision{
		Record: types.ExpiringRecord{
			ID:         "doc_1",
			TenantID:   "ten_1",
			Kind:       types.RecordEmployeeDocument,
			OwnerID:    "usr_gone",
			OwnerEmail: "gone@acme.example",
		},
	}

	resolved, err := r.Resolve(context.Background(), "ten_1", decision)
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}

	if resolved.Individual != nil {
		t.Errorf("Individual = %+v, want nil for a departed owner", resolved.Individual)
	}
	if len(resolved.Admins) != 1 {
		t.Errorf("Admins = %v, want the summary to survive", resolved.Admins)
	}
}

func TestResolveMembershipIsAuthoritativeForOwnerEmail(t *testing.T) {
	r := NewRecipientResolver(&mockMemberships{
		member: &types.Recipient{ID: "usr_7", Name: "Fatima Al-Said", Email: "fatima.alsaid@acme.example"},
	}, newTestLogger())

	decision := &types.AlertDecision{
		Record: types.ExpiringRecord{
			ID:         "doc_1",
			TenantID:   "ten_1",
			Kind:       types.RecordEmployeeDocument,
			OwnerID:    "usr_7",
			OwnerEmail: "stale@acme.example",
		},
	}

	resolved, err := r.Resolve(context.Background(), "ten_1", decision)
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}

	if resolved.Individual == nil {
		t.Fatal("expected an individual recipient")
	}
	if resolved.Individual.Email != "fatima.alsaid@acme.example" {
		t.Errorf("Individual.Email = %q, want the membership email over the record snapshot", resolved.Individual.Email)
	}
}

func TestResolveOwnerLookupErrorPropagates(t *testing.T) {
	r := NewRecipientResolver(&mockMemberships{
		memberErr: types.NewAppError(types.ErrCodeInternalDB, "failed to get tenant member", errors.New("connection refused")),
	}, newTestLogger())

	decision := &types.AlertDecision{
		Record: types.ExpiringRecord{
			ID:       "doc_1",
			TenantID: "ten_1",
			Kind:     types.RecordEmployeeDocument,
			OwnerID:  "usr_7",
		},
	}

	if _, err := r.Resolve(context.Background(), "ten_1", decision); err == nil {
		t.Fatal("expected owner lookup errors to propagate")
	}
}

func TestResolveZeroAdminsIsNotAnError(t *testing.T) {
	r := NewRecipientResolver(&mockMemberships{admins: nil}, newTestLogger())

	resolved, err := r.Resolve(context.Background(), "ten_1", &types.AlertDecision{})
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if len(resolved.Admins) != 0 {
		t.Errorf("Admins = %v, want empty", resolved.Admins)
	}
}

func TestResolveMembershipError(t *testing.T) {
	r := NewRecipientResolver(&mockMemberships{returnErr: errors.New("connection refused")}, newTestLogger())

	_, err := r.Resolve(context.Background(), "ten_1", &types.AlertDecision{})
	if err == nil {
		t.Fatal("expected membership errors to propagate")
	}
}
