package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestSignAndVerify(t *testing.T) {
	exp := time.Now().Add(5 * time.Minute).Truncate(time.Second)
	tok := Sign("secret123", "smoke.cli", exp)

	sub, gotExp, err := Verify("secret123", tok, time.Now(), time.Minute)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if sub != "smoke.cli" || !gotExp.Equal(exp) {
		t.Fatalf("mismatch: %s/%v", sub, gotExp)
	}
}

func TestBadSignature(t *testing.T) {
	tok := Sign("secret123", "abc", time.Now().Add(time.Minute))
	if _, _, err := Verify("other", tok, time.Now(), 0); !errors.Is(err, ErrTokenSig) {
		t.Fatalf("expected ErrTokenSig, got %v", err)
	}
	if _, _, err := Verify("secret123", "!!!", time.Now(), 0); !errors.Is(err, ErrTokenFormat) {
		t.Fatalf("expected ErrTokenFormat, got %v", err)
	}
}

func TestExpiryHonoursSkew(t *testing.T) {
	exp := time.Now().Add(-10 * time.Second)
	tok := Sign("s", "abc", exp)
	if _, _, err := Verify("s", tok, time.Now(), time.Minute); err != nil {
		t.Fatalf("within skew should pass: %v", err)
	}
	if _, _, err := Verify("s", tok, time.Now(), 0); !errors.Is(err, ErrTokenExp) {
		t.Fatalf("expected ErrTokenExp, got %v", err)
	}
}

func TestGuard(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusTeapot) })

	open := Guard("", ok)
	rec := httptest.NewRecorder()
	open.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws/feed", nil))
	if rec.Code != http.StatusTeapot {
		t.Fatalf("empty secret should pass through, got %d", rec.Code)
	}

	guarded := Guard("s", ok)
	rec = httptest.NewRecorder()
	guarded.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws/feed", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing token should be rejected, got %d", rec.Code)
	}

	tok := Sign("s", "viewer", time.Now().Add(time.Minute))
	rec = httptest.NewRecorder()
	guarded.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws/feed?token="+tok, nil))
	if rec.Code != http.StatusTeapot {
		t.Fatalf("valid query token should pass, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/ws/feed", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec = httptest.NewRecorder()
	guarded.ServeHTTP(rec, req)
	if rec.Code != http.StatusTeapot {
		t.Fatalf("valid bearer token should pass, got %d", rec.Code)
	}
}
