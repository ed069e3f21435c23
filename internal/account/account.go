// Package account is the method facade over auth and the profile table.
// Every method is one request/response against the backend. Success updates
// the session store and emits a success notice; failure emits an error
// notice carrying the backend's message and returns the error.
package account

import (
	"context"
	"errors"
	"strings"

	"github.com/waypoint-tourism/directory/internal/database"
	"github.com/waypoint-tourism/directory/internal/domain"
	"github.com/waypoint-tourism/directory/internal/logging"
	"github.com/waypoint-tourism/directory/internal/notify"
	"github.com/waypoint-tourism/directory/internal/session"
	"github.com/waypoint-tourism/directory/internal/supabase"
)

var (
	// ErrNotSignedIn is returned by methods that need a session.
	ErrNotSignedIn = errors.New("not signed in")
	// ErrMissingCredentials is returned before any request when email or password is blank.
	ErrMissingCredentials = errors.New("email and password are required")
	ErrMissingEmail       = errors.New("email is required")
)

// AuthBackend is the subset of the auth API the facade uses.
type AuthBackend interface {
	SignUp(ctx context.Context, req supabase.SignUpRequest) (*supabase.Session, error)
	SignInWithPassword(ctx context.Context, email, password string) (*supabase.Session, error)
	RefreshToken(ctx context.Context, refreshToken string) (*supabase.Session, error)
	SignOut(ctx context.Context, accessToken string) error
	ResetPasswordForEmail(ctx context.Context, email string) error
}

// ProfileUpdater applies partial profile updates.
type ProfileUpdater interface {
	Update(ctx context.Context, id string, update domain.ProfileUpdate) (*domain.Profile, error)
}

// Service implements the facade.
type Service struct {
	auth     AuthBackend
	profiles ProfileUpdater
	store    *session.Store
	notifier notify.Notifier
	logger   *logging.Logger
}

// New creates a facade bound to store.
func New(auth AuthBackend, profiles ProfileUpdater, store *session.Store, notifier notify.Notifier, logger *logging.Logger) *Service {
	if notifier == nil {
		notifier = notify.Nop
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{auth: auth, profiles: profiles, store: store, notifier: notifier, logger: logger}
}

// Session returns the store the facade writes to.
func (s *Service) Session() *session.Store {
	return s.store
}

// SignUpResult reports whether the new account still has to confirm its email.
type SignUpResult struct {
	Identity             *domain.Identity
	ConfirmationRequired bool
}

// SignIn authenticates with email and password. Subscribers of the store see
// SIGNED_IN, which is what triggers the profile bootstrap.
func (s *Service) SignIn(ctx context.Context, email, password string) error {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return s.failed(ctx, "Sign in failed", ErrMissingCredentials)
	}

	sess, err := s.auth.SignInWithPassword(ctx, email, password)
	if err != nil {
		return s.failed(ctx, "Sign in failed", err)
	}
	if err := s.store.SetSession(ctx, session.EventSignedIn, sess); err != nil {
		return s.failed(ctx, "Sign in failed", err)
	}
	s.notifier.Notify(ctx, notify.Success("Signed in", "Welcome back!"))
	return nil
}

// SignUp registers a new user with fullName stored as user metadata.
func (s *Service) SignUp(ctx context.Context, email, password, fullName string) (*SignUpResult, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, s.failed(ctx, "Sign up failed", ErrMissingCredentials)
	}

	req := supabase.SignUpRequest{Email: email, Password: password}
	if name := strings.TrimSpace(fullName); name != "" {
		req.Data = map[string]any{"full_name": name}
	}

	sess, err := s.auth.SignUp(ctx, req)
	if err != nil {
		return nil, s.failed(ctx, "Sign up failed", err)
	}

	res := &SignUpResult{}
	if sess.User != nil {
		identity := session.IdentityFromUser(sess.User)
		res.Identity = &identity
	}
	if sess.AccessToken == "" {
		res.ConfirmationRequired = true
		s.notifier.Notify(ctx, notify.Success("Account created", "Check your email to confirm your account."))
		return res, nil
	}

	if err := s.store.SetSession(ctx, session.EventSignedIn, sess); err != nil {
		return nil, s.failed(ctx, "Sign up failed", err)
	}
	s.notifier.Notify(ctx, notify.Success("Account created", "Welcome!"))
	return res, nil
}

// SignOut revokes the session. A session the backend no longer accepts is
// cleared locally as well.
func (s *Service) SignOut(ctx context.Context) error {
	token := s.store.AccessToken()
	if token == "" {
		return nil
	}

	if err := s.auth.SignOut(ctx, token); err != nil && !supabase.IsUnauthorized(err) {
		return s.failed(ctx, "Sign out failed", err)
	}
	s.store.Clear(ctx)
	s.notifier.Notify(ctx, notify.Success("Signed out", "See you soon."))
	return nil
}

// UpdateProfile sends only the fields set in update. The stored profile is
// pushed to subscribers as USER_UPDATED.
func (s *Service) UpdateProfile(ctx context.Context, update domain.ProfileUpdate) (*domain.Profile, error) {
	identity := s.store.Identity()
	if identity == nil {
		return nil, s.failed(ctx, "Profile update failed", ErrNotSignedIn)
	}

	ctx = database.WithAccessToken(ctx, s.store.AccessToken())
	p, err := s.profiles.Update(ctx, identity.ID, update)
	if err != nil {
		return nil, s.failed(ctx, "Profile update failed", err)
	}
	s.store.PublishProfile(ctx, p)
	s.notifier.Notify(ctx, notify.Success("Profile updated", "Your changes were saved."))
	return p, nil
}

// Refresh exchanges the refresh token for a new session.
func (s *Service) Refresh(ctx context.Context) error {
	tokens := s.store.Tokens()
	if tokens == nil || tokens.RefreshToken == "" {
		return s.failed(ctx, "Session refresh failed", ErrNotSignedIn)
	}

	sess, err := s.auth.RefreshToken(ctx, tokens.RefreshToken)
	if err != nil {
		return s.failed(ctx, "Session refresh failed", err)
	}
	if err := s.store.SetSession(ctx, session.EventTokenRefreshed, sess); err != nil {
		return s.failed(ctx, "Session refresh failed", err)
	}
	return nil
}

// ResetPassword asks the backend to email a recovery link.
func (s *Service) ResetPassword(ctx context.Context, email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return s.failed(ctx, "Password reset failed", ErrMissingEmail)
	}
	if err := s.auth.ResetPasswordForEmail(ctx, email); err != nil {
		return s.failed(ctx, "Password reset failed", err)
	}
	s.notifier.Notify(ctx, notify.Success("Check your email", "We sent you a password reset link."))
	return nil
}

func (s *Service) failed(ctx context.Context, title string, err error) error {
	s.notifier.Notify(ctx, notify.Error(title, database.BackendMessage(err)))
	s.logger.WithContext(ctx).WithError(err).Warn(strings.ToLower(title))
	return err
}
