package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap/zaptest"

	authpkg "github.com/Kocoro-lab/snippets/internal/auth"
)

// --- Mocks ---

type mockAuthService struct {
	users map[string]*authpkg.UserContext
}

func (m *mockAuthService) ValidateToken(ctx context.Context, token string) (*authpkg.UserContext, error) {
	if u, ok := m.users[token]; ok {
		return u, nil
	}
	return nil, authpkg.ErrInvalidToken
}

func okHandler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
}

func newMockAuth(uid uuid.UUID) *mockAuthService {
	return &mockAuthService{users: map[string]*authpkg.UserContext{
		"good": {UserID: uid, Username: "demo"},
	}}
}

// --- Auth tests ---

func TestAuth_RequiresBearerToken(t *testing.T) {
	logger := zaptest.NewLogger(t)
	mw := NewAuthMiddleware(newMockAuth(uuid.New()), logger)
	handler := mw.Middleware(okHandler(t))

	cases := []struct {
		name   string
		header string
	}{
		{"missing", ""},
		{"wrong scheme", "Basic good"},
		{"unknown token", "Bearer bad"},
		{"query param ignored", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me?token=good", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %d", rec.Code)
			}
			if !strings.HasPrefix(rec.Header().Get("WWW-Authenticate"), "Bearer") {
				t.Fatalf("expected WWW-Authenticate header, got %q", rec.Header().Get("WWW-Authenticate"))
			}
			if !strings.Contains(rec.Body.String(), `"error"`) {
				t.Fatalf("expected JSON error body, got %s", rec.Body.String())
			}
		})
	}
}

func TestAuth_BearerAccepted(t *testing.T) {
	logger := zaptest.NewLogger(t)
	uid := uuid.New()
	mw := NewAuthMiddleware(newMockAuth(uid), logger)

	var seen *authpkg.UserContext
	var info authpkg.ClientInfo
	handler := mw.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = authpkg.UserFromContext(r.Context())
		info, _ = authpkg.ClientInfoFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Authorization", "Bearer good")
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	req.Header.Set("X-Request-ID", "req-1")
	req.Header.Set("User-Agent", "curl/8")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with Bearer, got %d", rec.Code)
	}
	if seen == nil || seen.UserID != uid {
		t.Fatalf("expected user %s in context, got %+v", uid, seen)
	}
	if info.IPAddress != "203.0.113.7" || info.RequestID != "req-1" || info.UserAgent != "curl/8" {
		t.Fatalf("unexpected client info %+v", info)
	}
}

func TestAuth_Optional(t *testing.T) {
	logger := zaptest.NewLogger(t)
	uid := uuid.New()
	mw := NewAuthMiddleware(newMockAuth(uid), logger)

	var authed bool
	handler := mw.Optional(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, authed = authpkg.UserFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	cases := []struct {
		name       string
		header     string
		wantAuthed bool
	}{
		{"anonymous", "", false},
		{"invalid token continues anonymously", "Bearer bad", false},
		{"valid token", "Bearer good", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/snippets", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d", rec.Code)
			}
			if authed != tc.wantAuthed {
				t.Fatalf("authed = %v, want %v", authed, tc.wantAuthed)
			}
		})
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:5555"
	if got := ClientIP(req); got != "192.0.2.1" {
		t.Fatalf("expected remote host, got %q", got)
	}
	req.Header.Set("X-Real-IP", "198.51.100.2")
	if got := ClientIP(req); got != "198.51.100.2" {
		t.Fatalf("expected X-Real-IP, got %q", got)
	}
	req.Header.Set("X-Forwarded-For", "203.0.113.9")
	if got := ClientIP(req); got != "203.0.113.9" {
		t.Fatalf("expected X-Forwarded-For, got %q", got)
	}
}

// --- Validation tests ---

// serveRoute runs the validation middleware behind a mux so PathValue works
func serveRoute(t *testing.T, pattern string, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	vm := NewValidationMiddleware(zaptest.NewLogger(t))
	mux := http.NewServeMux()
	mux.Handle(pattern, vm.Middleware(okHandler(t)))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestValidation_ListSnippetsLimitOffset(t *testing.T) {
	cases := []struct {
		query string
		want  int
	}{
		{"", http.StatusOK},
		{"?limit=20&offset=40", http.StatusOK},
		{"?limit=abc", http.StatusBadRequest},
		{"?limit=0", http.StatusBadRequest},
		{"?limit=101", http.StatusBadRequest},
		{"?offset=-1", http.StatusBadRequest},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/snippets"+tc.query, nil)
		rec := serveRoute(t, "GET /api/v1/snippets", req)
		if rec.Code != tc.want {
			t.Fatalf("%q: expected %d, got %d", tc.query, tc.want, rec.Code)
		}
	}
}

func TestValidation_SnippetPathID(t *testing.T) {
	good := httptest.NewRequest(http.MethodGet, "/api/v1/snippets/"+uuid.NewString(), nil)
	if rec := serveRoute(t, "GET /api/v1/snippets/{id}", good); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for uuid, got %d", rec.Code)
	}

	bad := httptest.NewRequest(http.MethodGet, "/api/v1/snippets/not-a-uuid", nil)
	if rec := serveRoute(t, "GET /api/v1/snippets/{id}", bad); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed id, got %d", rec.Code)
	}
}

func TestValidation_Body(t *testing.T) {
	t.Run("json accepted", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/analyze", strings.NewReader(`{"code":"x"}`))
		req.Header.Set("Content-Type", "application/json; charset=utf-8")
		if rec := serveRoute(t, "POST /api/v1/analyze", req); rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
	})

	t.Run("other content type rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/analyze", strings.NewReader("code=x"))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		if rec := serveRoute(t, "POST /api/v1/analyze", req); rec.Code != http.StatusUnsupportedMediaType {
			t.Fatalf("expected 415, got %d", rec.Code)
		}
	})

	t.Run("oversized body rejected", func(t *testing.T) {
		body := strings.Repeat("a", MaxBodyBytes+1)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/analyze", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		if rec := serveRoute(t, "POST /api/v1/analyze", req); rec.Code != http.StatusRequestEntityTooLarge {
			t.Fatalf("expected 413, got %d", rec.Code)
		}
	})
}
