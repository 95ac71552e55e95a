package autherr

import (
	"errors"
	"fmt"
	"testing"
)

func TestInternalHidesCause(t *testing.T) {
	cause := errors.New("dial tcp 10.0.0.5:5432: connection refused")
	err := Internal(cause)

	if err.Error() != ErrInternal.Error() {
		t.Fatalf("expected kind message only, got %q", err.Error())
	}
	if !errors.Is(err, ErrInternal) {
		t.Fatal("expected errors.Is(ErrInternal)")
	}
	if !errors.Is(err, cause) {
		t.Fatal("expected cause to stay reachable through errors.Is")
	}
	if IsDomain(err) {
		t.Fatal("internal error must not be classified as domain error")
	}
}

func TestDomainErrorMetadata(t *testing.T) {
	err := New(ErrAccountLocked).WithCorrelation("c-1").WithUser("u-1")
	wrapped := fmt.Errorf("login: %w", err)

	got, ok := As(wrapped)
	if !ok {
		t.Fatal("expected *Error in chain")
	}
	if got.CorrelationID != "c-1" || got.UserID != "u-1" {
		t.Fatalf("unexpected metadata %+v", got)
	}
	if !IsDomain(wrapped) {
		t.Fatal("expected domain classification")
	}
	if Code(wrapped) != "account_locked" {
		t.Fatalf("unexpected code %q", Code(wrapped))
	}
}

func TestCode(t *testing.T) {
	tests := []struct {
		err  error
		code string
	}{
		{nil, ""},
		{ErrInvalidCredentials, "invalid_credentials"},
		{ErrTokenRevoked, "token_revoked"},
		{ErrMaxSessionsExceeded, "max_sessions_exceeded"},
		{errors.New("boom"), "internal_error"},
	}
	for _, tt := range tests {
		if got := Code(tt.err); got != tt.code {
			t.Fatalf("Code(%v) = %q, want %q", tt.err, got, tt.code)
		}
	}
}

func TestClassify(t *testing.T) {
	if Classify(nil) != nil {
		t.Fatal("expected nil for nil error")
	}

	wrapped := fmt.Errorf("%w: signature is invalid", ErrInvalidToken)
	got := Classify(wrapped)
	if got.Kind != ErrInvalidToken || got.Error() != ErrInvalidToken.Error() {
		t.Fatalf("expected invalid token kind, got %+v", got)
	}

	existing := New(ErrAccountLocked).WithUser("u-1")
	if Classify(fmt.Errorf("login: %w", existing)) != existing {
		t.Fatal("expected existing *Error to be returned")
	}

	backend := errors.New("redis: connection pool timeout")
	internal := Classify(backend)
	if !errors.Is(internal, ErrInternal) || !errors.Is(internal, backend) {
		t.Fatalf("expected internal error wrapping backend, got %v", internal)
	}
	if errors.Is(internal, ErrInvalidCredentials) {
		t.Fatal("backend failure must never classify as invalid credentials")
	}
}
