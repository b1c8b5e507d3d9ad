package types

import (
	"errors"
	"testing"
)

func TestAppError_ErrorFormat(t *testing.T) {
	err := NewAppError(ErrCodeInternalDB, "failed to list tenants", nil)
	want := "internal_database_error: failed to list tenants"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestAppError_Unwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewAppError(ErrCodeInternalDB, "failed to list tenants", cause)

	if !errors.Is(err, cause) {
		t.Error("errors.Is should find the wrapped cause")
	}

	var appErr *AppError
	if !errors.As(error(err), &appErr) {
		t.Fatal("errors.As should match *AppError")
	}
	if appErr.Code != ErrCodeInternalDB {
		t.Errorf("Code = %s, want %s", appErr.Code, ErrCodeInternalDB)
	}
}

func TestAppError_WithDetails(t *testing.T) {
	base := NewAppError(ErrCodeEmailBlocked, "delivery blocked", nil).
		WithDetails(map[string]any{"tenant_id": "ten_1"})

	enriched := base.WithDetails(map[string]any{"recipient": "aisha@acme.example"})

	// Original is not mutated.
	if _, ok := base.Details["recipient"]; ok {
		t.Error("WithDetails mutated the original error")
	}

	if enriched.Details["tenant_id"] != "ten_1" {
		t.Errorf("expected tenant_id carried over, got %v", enriched.Details)
	}
	if enriched.Details["recipient"] != "aisha@acme.example" {
		t.Errorf("expected recipient merged in, got %v", enriched.Details)
	}
	if enriched.Code != ErrCodeEmailBlocked {
		t.Errorf("Code = %s, want %s", enriched.Code, ErrCodeEmailBlocked)
	}
}
