package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestTokenFromRequest_Precedence(t *testing.T) {
	t.Parallel()

	// Header beats cookie beats query.
	r := httptest.NewRequest(http.MethodGet, "/messages/inbox?token=from-query", nil)
	r.Header.Set("Authorization", "Bearer from-header")
	r.AddCookie(&http.Cookie{Name: CookieName, Value: "from-cookie"})

	if got := TokenFromRequest(r, true); got != "from-header" {
		t.Fatalf("header precedence: got=%q", got)
	}

	r.Header.Del("Authorization")
	if got := TokenFromRequest(r, true); got != "from-cookie" {
		t.Fatalf("cookie precedence: got=%q", got)
	}
}

func TestTokenFromRequest_QueryOnlyWhenAllowed(t *testing.T) {
	t.Parallel()

	r := httptest.NewRequest(http.MethodGet, "/ws?token=from-query", nil)

	if got := TokenFromRequest(r, false); got != "" {
		t.Fatalf("query token leaked into REST extraction: %q", got)
	}
	if got := TokenFromRequest(r, true); got != "from-query" {
		t.Fatalf("query token: got=%q", got)
	}
}

func TestTokenFromRequest_NonBearerHeaderIgnored(t *testing.T) {
	t.Parallel()

	r := httptest.NewRequest(http.MethodGet, "/messages/inbox", nil)
	r.Header.Set("Authorization", "Basic dXNlcjpwYXNz")

	if got := TokenFromRequest(r, false); got != "" {
		t.Fatalf("non-bearer header accepted: %q", got)
	}
}

func TestRequireAuth_MissingToken(t *testing.T) {
	t.Parallel()

	v, _ := NewVerifier("test-secret")

	h := v.RequireAuth(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		t.Fatalf("handler must not run without a credential")
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/messages/inbox", nil))

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}

	var body struct {
		Errors map[string]string `json:"errors"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Errors["auth"] != "Not authenticated" {
		t.Fatalf("error body: %+v", body)
	}
}

func TestRequireAuth_InvalidToken(t *testing.T) {
	t.Parallel()

	v, _ := NewVerifier("test-secret")

	h := v.RequireAuth(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		t.Fatalf("handler must not run with a bad credential")
	}))

	r := httptest.NewRequest(http.MethodGet, "/messages/inbox", nil)
	r.Header.Set("Authorization", "Bearer not-a-token")

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, r)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}

	var body struct {
		Errors map[string]string `json:"errors"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Errors["auth"] != "Invalid token" {
		t.Fatalf("error body: %+v", body)
	}
}

func TestRequireAuth_AttachesClaims(t *testing.T) {
	t.Parallel()

	v, _ := NewVerifier("test-secret")

	token, err := v.Issue("user-1", "alice", time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	var seen *Claims
	h := v.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, ok := ClaimsFromContext(r.Context())
		if !ok {
			t.Fatalf("claims missing from context")
		}
		seen = c
		w.WriteHeader(http.StatusNoContent)
	}))

	r := httptest.NewRequest(http.MethodGet, "/messages/inbox", nil)
	r.AddCookie(&http.Cookie{Name: CookieName, Value: token})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, r)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
	if seen == nil || seen.UserID != "user-1" || seen.Username != "alice" {
		t.Fatalf("claims: %+v", seen)
	}
}
