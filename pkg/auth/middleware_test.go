package auth

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"roundtable/pkg/logger"
)

func echoIdentity() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Echo-Identity", IdentityFromContext(r.Context()))
		w.WriteHeader(http.StatusOK)
	})
}

func TestMiddlewareRequiresKeyWhenConfigured(t *testing.T) {
	logger.Init()
	cfg := SecConfig{FrontendKeys: map[string]struct{}{"fk1": {}}}
	h := Middleware(cfg, nil)(echoIdentity())

	req := httptest.NewRequest(http.MethodGet, "/v1/topics", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing key: code = %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/topics", nil)
	req.Header.Set("X-Api-Key", "fk1")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("valid key: code = %d", rec.Code)
	}
}

func TestMiddlewareIdentityFromHeader(t *testing.T) {
	logger.Init()
	h := Middleware(SecConfig{}, nil)(echoIdentity())

	req := httptest.NewRequest(http.MethodGet, "/v1/topics", nil)
	req.Header.Set("X-Identity", "acct-9")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Echo-Identity"); got != "acct-9" {
		t.Fatalf("identity = %q", got)
	}

	// no header: falls back to remote addr
	req = httptest.NewRequest(http.MethodGet, "/v1/topics", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Echo-Identity"); got == "" {
		t.Fatal("identity must never be empty")
	}
}

func TestMiddlewareRateLimitsPerIdentity(t *testing.T) {
	logger.Init()
	lim := NewLimiter(time.Minute, 2)
	now := time.Unix(5000, 0)
	lim.SetClock(func() time.Time { return now })
	h := Middleware(SecConfig{}, lim)(echoIdentity())

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/v1/topics", nil)
		req.Header.Set("X-Identity", "acct-1")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: code = %d", i, rec.Code)
		}
	}
	req := httptest.NewRequest(http.MethodGet, "/v1/topics", nil)
	req.Header.Set("X-Identity", "acct-1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}

	// a different identity still passes
	req = httptest.NewRequest(http.MethodGet, "/v1/topics", nil)
	req.Header.Set("X-Identity", "acct-2")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("other identity: code = %d", rec.Code)
	}
}

func TestMiddlewareLogsRedactedRequest(t *testing.T) {
	var buf bytes.Buffer
	old := logger.Log
	logger.Log = slog.New(slog.NewTextHandler(&buf, nil))
	t.Cleanup(func() { logger.Log = old })

	h := Middleware(SecConfig{}, nil)(echoIdentity())
	req := httptest.NewRequest(http.MethodGet, "/v1/topics", nil)
	req.Header.Set("X-Api-Key", "sk-secret")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	out := buf.String()
	if !strings.Contains(out, "incoming_request") {
		t.Fatalf("request not logged: %s", out)
	}
	if strings.Contains(out, "sk-secret") || !strings.Contains(out, "<redacted>") {
		t.Fatalf("sensitive header leaked into log: %s", out)
	}
}

func TestMiddlewareCORSPreflight(t *testing.T) {
	logger.Init()
	cfg := SecConfig{AllowedOrigins: []string{"https://app.example.com"}}
	h := Middleware(cfg, nil)(echoIdentity())

	req := httptest.NewRequest(http.MethodOptions, "/v1/topics", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("preflight code = %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Fatalf("allow-origin = %q", got)
	}

	// unknown origin gets no CORS headers
	req = httptest.NewRequest(http.MethodGet, "/v1/topics", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("unexpected allow-origin %q", got)
	}
}
