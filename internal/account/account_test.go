package account

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waypoint-tourism/directory/internal/database"
	"github.com/waypoint-tourism/directory/internal/domain"
	"github.com/waypoint-tourism/directory/internal/logging"
	"github.com/waypoint-tourism/directory/internal/notify"
	"github.com/waypoint-tourism/directory/internal/profile"
	"github.com/waypoint-tourism/directory/internal/session"
	"github.com/waypoint-tourism/directory/internal/supabase"
)

type fakeAuth struct {
	signInErr  error
	signOutErr error
	signUp     *supabase.Session
	lastSignUp supabase.SignUpRequest
	resetFor   string
}

func (f *fakeAuth) SignUp(_ context.Context, req supabase.SignUpRequest) (*supabase.Session, error) {
	f.lastSignUp = req
	return f.signUp, nil
}

func (f *fakeAuth) SignInWithPassword(_ context.Context, email, _ string) (*supabase.Session, error) {
	if f.signInErr != nil {
		return nil, f.signInErr
	}
	return &supabase.Session{
		AccessToken:  "at",
		RefreshToken: "rt",
		ExpiresIn:    3600,
		User:         &supabase.User{ID: "u1", Email: email, UserMetadata: map[string]any{"full_name": "Ana"}},
	}, nil
}

func (f *fakeAuth) RefreshToken(_ context.Context, rt string) (*supabase.Session, error) {
	return &supabase.Session{AccessToken: "at2", RefreshToken: rt + "2", ExpiresIn: 3600}, nil
}

func (f *fakeAuth) SignOut(context.Context, string) error { return f.signOutErr }

func (f *fakeAuth) ResetPasswordForEmail(_ context.Context, email string) error {
	f.resetFor = email
	return nil
}

type harness struct {
	svc     *Service
	auth    *fakeAuth
	repo    *database.MockRepository
	tracker *profile.Tracker
	feed    *notify.Feed
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	repo := database.NewMockRepository()
	feed := notify.NewFeed(16)
	loader, err := profile.NewLoader(profile.Config{Repository: repo, Notifier: feed, Logger: logging.Discard()})
	require.NoError(t, err)

	store := session.NewStore(nil, logging.Discard())
	tracker := profile.NewTracker(loader)
	tracker.Attach(store)

	auth := &fakeAuth{}
	return &harness{
		svc:     New(auth, loader, store, feed, logging.Discard()),
		auth:    auth,
		repo:    repo,
		tracker: tracker,
		feed:    feed,
	}
}

func (h *harness) lastNotice(t *testing.T) notify.Notice {
	t.Helper()
	recent := h.feed.Recent("", 1)
	require.Len(t, recent, 1)
	return recent[0]
}

func TestSignIn_BootstrapsProfile(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.svc.SignIn(context.Background(), " ana@example.com ", "secret"))

	assert.True(t, h.svc.Session().SignedIn())
	p, err := h.tracker.Profile()
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "Ana", p.DisplayName)
	assert.Equal(t, 1, h.repo.ProfileCount())
	assert.Equal(t, notify.LevelSuccess, h.lastNotice(t).Level)
}

func TestSignIn_FailurePassesBackendMessage(t *testing.T) {
	h := newHarness(t)
	h.auth.signInErr = &supabase.Error{Code: "invalid_grant", Message: "Invalid login credentials", StatusCode: 400}

	err := h.svc.SignIn(context.Background(), "ana@example.com", "wrong")
	require.Error(t, err)
	assert.False(t, h.svc.Session().SignedIn())

	n := h.lastNotice(t)
	assert.Equal(t, notify.LevelError, n.Level)
	assert.Equal(t, "Invalid login credentials", n.Message)
}

func TestSignIn_RequiresCredentials(t *testing.T) {
	h := newHarness(t)
	assert.Error(t, h.svc.SignIn(context.Background(), "", "x"))
	assert.Equal(t, notify.LevelError, h.lastNotice(t).Level)
}

func TestSignUp_ConfirmationRequired(t *testing.T) {
	h := newHarness(t)
	h.auth.signUp = &supabase.Session{User: &supabase.User{ID: "u9", Email: "new@example.com"}}

	res, err := h.svc.SignUp(context.Background(), "new@example.com", "pw", " New Person ")
	require.NoError(t, err)
	assert.True(t, res.ConfirmationRequired)
	assert.Equal(t, "u9", res.Identity.ID)
	assert.Equal(t, "New Person", h.auth.lastSignUp.Data["full_name"])
	assert.False(t, h.svc.Session().SignedIn())
	assert.Zero(t, h.repo.ProfileCount())
}

func TestSignUp_WithSessionSignsIn(t *testing.T) {
	h := newHarness(t)
	h.auth.signUp = &supabase.Session{
		AccessToken: "at",
		ExpiresIn:   3600,
		User:        &supabase.User{ID: "u9", Email: "new@example.com", UserMetadata: map[string]any{"full_name": "New Person"}},
	}

	res, err := h.svc.SignUp(context.Background(), "new@example.com", "pw", "New Person")
	require.NoError(t, err)
	assert.False(t, res.ConfirmationRequired)
	assert.True(t, h.svc.Session().SignedIn())
	assert.Equal(t, 1, h.repo.ProfileCount())
}

func TestUpdateProfile_SendsOnlySetFields(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.svc.SignIn(ctx, "ana@example.com", "secret"))

	regions := []string{"north", "coast"}
	p, err := h.svc.UpdateProfile(ctx, domain.ProfileUpdate{PreferredRegions: &regions})
	require.NoError(t, err)
	assert.Equal(t, regions, p.PreferredRegions)

	patches := h.repo.Patches()
	require.Len(t, patches, 1)
	assert.Equal(t, map[string]any{"preferred_regions": []any{"north", "coast"}}, patches[0].Fields)

	tracked, _ := h.tracker.Profile()
	assert.Equal(t, regions, tracked.PreferredRegions)
}

func TestUpdateProfile_RequiresSession(t *testing.T) {
	h := newHarness(t)
	name := "x"
	_, err := h.svc.UpdateProfile(context.Background(), domain.ProfileUpdate{DisplayName: &name})
	assert.ErrorIs(t, err, ErrNotSignedIn)
}

func TestSignOut_UnauthorizedStillClears(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.svc.SignIn(ctx, "ana@example.com", "secret"))
	h.auth.signOutErr = &supabase.Error{Message: "invalid JWT", StatusCode: 401}

	require.NoError(t, h.svc.SignOut(ctx))
	assert.False(t, h.svc.Session().SignedIn())
	p, _ := h.tracker.Profile()
	assert.Nil(t, p)
}

func TestSignOut_BackendFailureKeepsSession(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.svc.SignIn(ctx, "ana@example.com", "secret"))
	h.auth.signOutErr = &supabase.Error{Message: "upstream unavailable", StatusCode: 503}

	assert.Error(t, h.svc.SignOut(ctx))
	assert.True(t, h.svc.Session().SignedIn())
	assert.Equal(t, "upstream unavailable", h.lastNotice(t).Message)
}

func TestRefreshAndResetPassword(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	assert.ErrorIs(t, h.svc.Refresh(ctx), ErrNotSignedIn)

	require.NoError(t, h.svc.SignIn(ctx, "ana@example.com", "secret"))
	require.NoError(t, h.svc.Refresh(ctx))
	assert.Equal(t, "at2", h.svc.Session().AccessToken())
	assert.Equal(t, "u1", h.svc.Session().Identity().ID)

	require.NoError(t, h.svc.ResetPassword(ctx, "ana@example.com"))
	assert.Equal(t, "ana@example.com", h.auth.resetFor)
}
