package apperror

import (
	"errors"
	"fmt"
	"testing"
)

func TestError_ErrorMessagePriority(t *testing.T) {
	base := errors.New("base")
	err := &Error{Kind: KindValidation, Msg: "msg", Err: base}
	if err.Error() != "msg" {
		t.Fatalf("expected msg, got %q", err.Error())
	}
}

func TestError_ErrorFallsBackToWrapped(t *testing.T) {
	base := errors.New("base")
	err := &Error{Kind: KindValidation, Err: base}
	if err.Error() != "base" {
		t.Fatalf("expected base, got %q", err.Error())
	}
}

func TestError_ErrorFallsBackToKind(t *testing.T) {
	err := &Error{Kind: KindNotFound}
	if err.Error() != string(KindNotFound) {
		t.Fatalf("expected kind string, got %q", err.Error())
	}
}

func TestError_Unwrap(t *testing.T) {
	base := errors.New("base")
	err := &Error{Kind: KindValidation, Err: base}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to be reachable via errors.Is")
	}
}

func TestIs_MatchesWrappedKind(t *testing.T) {
	err := NotFound("x", nil)
	wrapped := fmt.Errorf("wrap: %w", err)
	if !Is(wrapped, KindNotFound) {
		t.Fatalf("expected Is to match wrapped kind")
	}
	if Is(wrapped, KindValidation) {
		t.Fatalf("expected Is to be false for different kind")
	}
}

func TestIntegrity_Kind(t *testing.T) {
	err := fmt.Errorf("verify: %w", Integrity("amount mismatch", nil))
	if !Is(err, KindIntegrity) {
		t.Fatalf("expected integrity kind")
	}
	if err.Error() != "verify: amount mismatch" {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestAuthKinds(t *testing.T) {
	if !Is(Unauthorized("login required", nil), KindUnauthorized) {
		t.Fatalf("expected unauthorized kind")
	}
	if !Is(Forbidden("admin only", nil), KindForbidden) {
		t.Fatalf("expected forbidden kind")
	}
	if !Is(Unavailable("", errors.New("down")), KindUnavailable) {
		t.Fatalf("expected unavailable kind")
	}
}
