package auth

import (
	"testing"
	"time"
)

func TestVerifier_IssueVerifyRoundTrip(t *testing.T) {
	t.Parallel()

	v, err := NewVerifier("test-secret")
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}

	token, err := v.Issue("user-1", "alice", time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	claims, err := v.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.UserID != "user-1" || claims.Username != "alice" {
		t.Fatalf("claims mismatch: %+v", claims)
	}
}

func TestVerifier_RejectsGarbageAndEmpty(t *testing.T) {
	t.Parallel()

	v, err := NewVerifier("test-secret")
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}

	for _, token := range []string{"", "   ", "not.a.token", "a.b.c"} {
		if _, err := v.Verify(token); err != ErrInvalidToken {
			t.Fatalf("token %q: expected ErrInvalidToken, got %v", token, err)
		}
	}
}

func TestVerifier_RejectsWrongSecret(t *testing.T) {
	t.Parallel()

	issuer, _ := NewVerifier("secret-a")
	verifier, _ := NewVerifier("secret-b")

	token, err := issuer.Issue("user-1", "alice", time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	if _, err := verifier.Verify(token); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestVerifier_RejectsExpired(t *testing.T) {
	t.Parallel()

	v, _ := NewVerifier("test-secret")

	token, err := v.Issue("user-1", "alice", time.Millisecond)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	time.Sleep(50 * time.Millisecond)

	if _, err := v.Verify(token); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken for expired token, got %v", err)
	}
}

func TestVerifier_RejectsMissingUserID(t *testing.T) {
	t.Parallel()

	v, _ := NewVerifier("test-secret")

	token, err := v.Issue("", "alice", time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	if _, err := v.Verify(token); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken for empty subject, got %v", err)
	}
}

func TestNewVerifier_RequiresSecret(t *testing.T) {
	t.Parallel()

	if _, err := NewVerifier("   "); err == nil {
		t.Fatalf("expected error for blank secret")
	}
}
