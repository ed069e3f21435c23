package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waypoint-tourism/directory/internal/cache"
	"github.com/waypoint-tourism/directory/internal/database"
	"github.com/waypoint-tourism/directory/internal/domain"
	"github.com/waypoint-tourism/directory/internal/logging"
	"github.com/waypoint-tourism/directory/internal/middleware"
	"github.com/waypoint-tourism/directory/internal/notify"
	"github.com/waypoint-tourism/directory/internal/onboarding"
	"github.com/waypoint-tourism/directory/internal/profile"
	"github.com/waypoint-tourism/directory/internal/supabase"
)

var jwtSecret = []byte("test-secret")

type fakeAuth struct {
	signInErr  error
	signOutErr error
	signedOut  []string
	refreshed  []string
}

func (f *fakeAuth) session(id, email string) *supabase.Session {
	return &supabase.Session{
		AccessToken:  "access-" + id,
		RefreshToken: "refresh-" + id,
		ExpiresIn:    3600,
		User:         &supabase.User{ID: id, Email: email},
	}
}

func (f *fakeAuth) SignUp(_ context.Context, req supabase.SignUpRequest) (*supabase.Session, error) {
	if req.Email == "confirm@example.com" {
		return &supabase.Session{User: &supabase.User{ID: "u-new", Email: req.Email}}, nil
	}
	return f.session("u-new", req.Email), nil
}

func (f *fakeAuth) SignInWithPassword(_ context.Context, email, _ string) (*supabase.Session, error) {
	if f.signInErr != nil {
		return nil, f.signInErr
	}
	return f.session("u1", email), nil
}

func (f *fakeAuth) RefreshToken(_ context.Context, refreshToken string) (*supabase.Session, error) {
	f.refreshed = append(f.refreshed, refreshToken)
	if refreshToken != "refresh-u1" {
		return nil, &supabase.Error{Code: "invalid_grant", Message: "Invalid Refresh Token: Refresh Token Not Found", StatusCode: 400}
	}
	return f.session("u1", "ana@example.com"), nil
}

func (f *fakeAuth) SignOut(_ context.Context, accessToken string) error {
	f.signedOut = append(f.signedOut, accessToken)
	return f.signOutErr
}

func (f *fakeAuth) ResetPasswordForEmail(context.Context, string) error {
	return nil
}

type fakeStorage struct{}

func (fakeStorage) Upload(_ context.Context, bucket, path string, _ []byte, _ supabase.UploadOptions, _ string) (string, error) {
	return bucket + "/" + path, nil
}

func (fakeStorage) GetPublicURL(bucket, path string) string {
	return "https://cdn.example.com/" + bucket + "/" + path
}

func (fakeStorage) Remove(context.Context, string, []string, string) error {
	return nil
}

func (fakeStorage) CreateSignedURL(_ context.Context, bucket, path string, _ int, _ string) (string, error) {
	return "https://storage.example.com/sign/" + bucket + "/" + path, nil
}

type harness struct {
	repo    *database.MockRepository
	auth    *fakeAuth
	feed    *notify.Feed
	handler http.Handler
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newCachedHarness(t, nil)
}

// newCachedHarness builds a harness whose profile loader reads through c.
func newCachedHarness(t *testing.T, c cache.Cache) *harness {
	t.Helper()
	logger := logging.Discard()
	repo := database.NewMockRepository()
	feed := notify.NewFeed(50)

	loader, err := profile.NewLoader(profile.Config{Repository: repo, Cache: c, Notifier: feed, Logger: logger})
	require.NoError(t, err)

	auth := &fakeAuth{}
	srv, err := NewServer(Config{
		Auth:          auth,
		Repository:    repo,
		Profiles:      loader,
		Onboarding:    onboarding.NewService(repo, fakeStorage{}, onboarding.DefaultConfig(), feed, nil, logger),
		Feed:          feed,
		Logger:        logger,
		Authenticator: middleware.NewAuthMiddleware(jwtSecret, nil, logger, []string{"/health", "/metrics"}),
	})
	require.NoError(t, err)
	return &harness{repo: repo, auth: auth, feed: feed, handler: srv.Handler()}
}

func token(t *testing.T, userID string) string {
	t.Helper()
	claims := middleware.Claims{
		Email: userID + "@example.com",
		Role:  "authenticated",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(jwtSecret)
	require.NoError(t, err)
	return signed
}

// do sends a request; userID "" means anonymous.
func (h *harness) do(t *testing.T, method, path, userID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if userID != "" {
		req.Header.Set("Authorization", "Bearer "+token(t, userID))
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestNewServer_RequiresDependencies(t *testing.T) {
	_, err := NewServer(Config{})
	assert.Error(t, err)
}

func TestHealthAndMetrics(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Trace-ID"))

	rec = h.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `directory_http_requests_total{method="GET",path="/health",service="directory",status="200"} 1`)
}

func TestSignIn_BootstrapsProfile(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodPost, "/auth/signin", "", credentialsInput{Email: "ana@example.com", Password: "pw"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decode[sessionResponse](t, rec)
	require.NotNil(t, resp.User)
	assert.Equal(t, "u1", resp.User.ID)
	require.NotNil(t, resp.Session)
	assert.Equal(t, "access-u1", resp.Session.AccessToken)
	require.NotNil(t, resp.Profile)
	assert.Equal(t, "ana", resp.Profile.DisplayName)
	assert.Equal(t, domain.RoleUser, resp.Profile.Role)
	assert.Equal(t, 1, h.repo.ProfileCount())

	notices := h.feed.Recent("u1", 0)
	require.NotEmpty(t, notices)
	assert.Equal(t, "Signed in", notices[0].Title)
}

func TestSignIn_PassesBackendMessage(t *testing.T) {
	h := newHarness(t)
	h.auth.signInErr = &supabase.Error{Code: "invalid_grant", Message: "Invalid login credentials", StatusCode: 400}

	rec := h.do(t, http.MethodPost, "/auth/signin", "", credentialsInput{Email: "ana@example.com", Password: "bad"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid login credentials", decode[map[string]any](t, rec)["message"])
	assert.Zero(t, h.repo.ProfileCount())
}

func TestSignIn_BootstrapFailureReachesUserNotices(t *testing.T) {
	h := newHarness(t)
	h.repo.ErrorOnNextCall = errors.New("connection refused")

	rec := h.do(t, http.MethodPost, "/auth/signin", "", credentialsInput{Email: "ana@example.com", Password: "pw"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[sessionResponse](t, rec)
	assert.Nil(t, resp.Profile)
	assert.NotEmpty(t, resp.ProfileError)

	var titles []string
	for _, n := range h.feed.Recent("u1", 0) {
		titles = append(titles, n.Title)
	}
	assert.Contains(t, titles, "Could not load your profile")
	assert.Contains(t, titles, "Signed in")
}

func TestSignIn_MissingCredentials(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodPost, "/auth/signin", "", credentialsInput{Email: "ana@example.com"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodPost, "/auth/signin", "", `{"email":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSignUp(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodPost, "/auth/signup", "", credentialsInput{Email: "new@example.com", Password: "pw", FullName: "Nia Reef"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	resp := decode[sessionResponse](t, rec)
	require.NotNil(t, resp.Profile)
	assert.False(t, resp.ConfirmationRequired)

	rec = h.do(t, http.MethodPost, "/auth/signup", "", credentialsInput{Email: "confirm@example.com", Password: "pw"})
	require.Equal(t, http.StatusCreated, rec.Code)
	resp = decode[sessionResponse](t, rec)
	assert.True(t, resp.ConfirmationRequired)
	assert.Nil(t, resp.Session)
}

func TestSignOut(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodPost, "/auth/signout", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = h.do(t, http.MethodPost, "/auth/signout", "u1", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	require.Len(t, h.auth.signedOut, 1)
	assert.NotEmpty(t, h.auth.signedOut[0])

	h.auth.signOutErr = &supabase.Error{Message: "upstream down", StatusCode: 503}
	rec = h.do(t, http.MethodPost, "/auth/signout", "u1", nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestRefresh(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodPost, "/auth/refresh", "", refreshInput{RefreshToken: "refresh-u1"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[sessionResponse](t, rec)
	assert.Equal(t, "access-u1", resp.Session.AccessToken)

	rec = h.do(t, http.MethodPost, "/auth/refresh", "", refreshInput{RefreshToken: "stale"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Refresh Token Not Found")

	rec = h.do(t, http.MethodPost, "/auth/refresh", "", refreshInput{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMe(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodGet, "/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = h.do(t, http.MethodGet, "/me", "u2", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	p := decode[domain.Profile](t, rec)
	assert.Equal(t, "u2", p.ID)
	assert.Equal(t, "u2", p.DisplayName)

	rec = h.do(t, http.MethodGet, "/me", "u2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, h.repo.ProfileCount())
}

func TestUpdateMe(t *testing.T) {
	h := newHarness(t)
	h.repo.PutProfile(domain.NewDefaultProfile(domain.Identity{ID: "u1", Email: "ana@example.com"}))

	rec := h.do(t, http.MethodPatch, "/me", "u1", `{"role":"admin"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodPatch, "/me", "u1", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodPatch, "/me", "u1", `{"display_name":"Ana R."}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Ana R.", decode[domain.Profile](t, rec).DisplayName)

	patches := h.repo.Patches()
	require.Len(t, patches, 1)
	assert.Equal(t, map[string]any{"display_name": "Ana R."}, patches[0].Fields)

	rec = h.do(t, http.MethodGet, "/me/notices", "u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	notices := decode[[]notify.Notice](t, rec)
	require.NotEmpty(t, notices)
	assert.Equal(t, "Profile updated", notices[0].Title)
}

func TestToServiceError(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{database.NewNotFoundError("listing", "l1"), http.StatusNotFound},
		{database.ErrInvalidInput, http.StatusBadRequest},
		{database.ErrInvalidTransition, http.StatusConflict},
		{onboarding.ErrForbidden, http.StatusForbidden},
		{&supabase.Error{Message: "JWT expired", StatusCode: 401}, http.StatusUnauthorized},
		{&supabase.Error{Message: "bad", StatusCode: 422}, http.StatusUnprocessableEntity},
		{&supabase.Error{Message: "down", StatusCode: 503}, http.StatusBadGateway},
		{io.ErrUnexpectedEOF, http.StatusInternalServerError},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.status, toServiceError(tc.err).HTTPStatus, tc.err.Error())
	}
}
