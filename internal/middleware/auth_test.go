package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/waypoint-tourism/directory/internal/database"
	"github.com/waypoint-tourism/directory/internal/logging"
	"github.com/waypoint-tourism/directory/internal/supabase"
)

var testSecret = []byte("super-secret-jwt-token-with-at-least-32-characters")

func generateTestToken(t *testing.T, secret []byte, userID string, expired bool) string {
	t.Helper()
	claims := &Claims{
		Email: "test@example.com",
		Role:  "authenticated",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(1 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	if expired {
		claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-1 * time.Hour))
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(secret)
	if err != nil {
		t.Fatalf("Failed to sign token: %v", err)
	}
	return tokenString
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func serve(h http.Handler, authHeader string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("GET", "/api/test", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestAuthMiddleware_Handler_SkipPaths(t *testing.T) {
	middleware := NewAuthMiddleware(testSecret, nil, logging.Discard(), []string{"/health"})
	handler := middleware.Handler(okHandler())

	req := httptest.NewRequest("GET", "/health", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("Status code = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestAuthMiddleware_Handler_MissingAuthHeader(t *testing.T) {
	handler := NewAuthMiddleware(testSecret, nil, logging.Discard(), nil).Handler(okHandler())

	if rec := serve(handler, ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("Status code = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestAuthMiddleware_Handler_InvalidAuthHeaderFormat(t *testing.T) {
	handler := NewAuthMiddleware(testSecret, nil, logging.Discard(), nil).Handler(okHandler())

	tests := []struct {
		name   string
		header string
	}{
		{"no bearer prefix", "token123"},
		{"wrong prefix", "Basic token123"},
		{"empty token", "Bearer "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := serve(handler, tt.header); rec.Code != http.StatusUnauthorized {
				t.Errorf("Status code = %d, want %d", rec.Code, http.StatusUnauthorized)
			}
		})
	}
}

func TestAuthMiddleware_Handler_ValidToken(t *testing.T) {
	middleware := NewAuthMiddleware(testSecret, nil, logging.Discard(), nil)

	var capturedUserID, capturedToken, capturedRole string
	handler := middleware.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		capturedUserID = GetUserID(r.Context())
		capturedToken = database.AccessToken(r.Context())
		capturedRole = logging.GetRole(r.Context())
		if c := GetClaims(r.Context()); c == nil || c.Email != "test@example.com" {
			t.Errorf("claims not attached: %+v", c)
		}
		w.WriteHeader(http.StatusOK)
	}))

	token := generateTestToken(t, testSecret, "user-123", false)
	rec := serve(handler, "Bearer "+token)

	if rec.Code != http.StatusOK {
		t.Errorf("Status code = %d, want %d", rec.Code, http.StatusOK)
	}
	if capturedUserID != "user-123" {
		t.Errorf("User ID = %v, want user-123", capturedUserID)
	}
	if capturedToken != token {
		t.Error("access token was not attached to the context")
	}
	if capturedRole != "authenticated" {
		t.Errorf("Role = %q, want authenticated", capturedRole)
	}
}

func TestAuthMiddleware_Handler_RejectedTokens(t *testing.T) {
	handler := NewAuthMiddleware(testSecret, nil, logging.Discard(), nil).Handler(okHandler())

	noExpiry := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "u"}})
	noExpiryString, err := noExpiry.SignedString(testSecret)
	if err != nil {
		t.Fatal(err)
	}
	noneAlg := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "u",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}})
	noneString, err := noneAlg.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatal(err)
	}

	tests := map[string]string{
		"expired":    generateTestToken(t, testSecret, "user-123", true),
		"wrong key":  generateTestToken(t, []byte("another-secret-another-secret-another"), "user-123", false),
		"garbage":    "invalid.token.here",
		"no subject": generateTestToken(t, testSecret, "", false),
		"no expiry":  noExpiryString,
		"alg none":   noneString,
	}
	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			if rec := serve(handler, "Bearer "+token); rec.Code != http.StatusUnauthorized {
				t.Errorf("Status code = %d, want %d", rec.Code, http.StatusUnauthorized)
			}
		})
	}
}

func TestAuthMiddleware_Optional(t *testing.T) {
	middleware := NewAuthMiddleware(testSecret, nil, logging.Discard(), nil)

	var userID string
	handler := middleware.Optional(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID = GetUserID(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	if rec := serve(handler, ""); rec.Code != http.StatusOK || userID != "" {
		t.Errorf("anonymous: status %d user %q", rec.Code, userID)
	}
	if rec := serve(handler, "Bearer "+generateTestToken(t, testSecret, "user-9", false)); rec.Code != http.StatusOK || userID != "user-9" {
		t.Errorf("authenticated: status %d user %q", rec.Code, userID)
	}
	if rec := serve(handler, "Bearer nope"); rec.Code != http.StatusUnauthorized {
		t.Errorf("invalid token: status %d", rec.Code)
	}
}

type fakeLookup struct {
	user *supabase.User
	err  error
}

func (f fakeLookup) GetUser(context.Context, string) (*supabase.User, error) {
	return f.user, f.err
}

func TestAuthMiddleware_RemoteLookup(t *testing.T) {
	var userID string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID = GetUserID(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	ok := NewAuthMiddleware(nil, fakeLookup{user: &supabase.User{ID: "remote-1", Role: "authenticated"}}, logging.Discard(), nil)
	if rec := serve(ok.Handler(next), "Bearer opaque"); rec.Code != http.StatusOK || userID != "remote-1" {
		t.Errorf("lookup: status %d user %q", rec.Code, userID)
	}

	denied := NewAuthMiddleware(nil, fakeLookup{err: &supabase.Error{Message: "invalid JWT", StatusCode: 401}}, logging.Discard(), nil)
	if rec := serve(denied.Handler(next), "Bearer opaque"); rec.Code != http.StatusUnauthorized {
		t.Errorf("denied: status %d", rec.Code)
	}

	down := NewAuthMiddleware(nil, fakeLookup{err: &supabase.Error{Message: "bad gateway", StatusCode: 502}}, logging.Discard(), nil)
	if rec := serve(down.Handler(next), "Bearer opaque"); rec.Code != http.StatusBadGateway {
		t.Errorf("down: status %d", rec.Code)
	}
}

func TestRequireUserID(t *testing.T) {
	handler := RequireUserID(okHandler())

	if rec := serve(handler, ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("Status code = %d, want %d", rec.Code, http.StatusUnauthorized)
	}

	req := httptest.NewRequest("GET", "/", nil)
	req = req.WithContext(logging.WithUserID(req.Context(), "u1"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("Status code = %d, want %d", rec.Code, http.StatusOK)
	}
}
