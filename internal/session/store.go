// Package session holds the signed-in identity and its tokens, persists them
// and tells subscribers when they change.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/waypoint-tourism/directory/internal/domain"
	"github.com/waypoint-tourism/directory/internal/logging"
	"github.com/waypoint-tourism/directory/internal/supabase"
)

// EventType names an auth-state change.
type EventType string

const (
	EventInitialSession EventType = "INITIAL_SESSION"
	EventSignedIn       EventType = "SIGNED_IN"
	EventSignedOut      EventType = "SIGNED_OUT"
	EventTokenRefreshed EventType = "TOKEN_REFRESHED"
	EventUserUpdated    EventType = "USER_UPDATED"
)

// Tokens are the credentials of a session.
type Tokens struct {
	AccessToken  string    `json:"access_token" yaml:"access_token"`
	RefreshToken string    `json:"refresh_token" yaml:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at" yaml:"expires_at"`
}

// ExpiresWithin reports whether the access token expires within d of now.
func (t Tokens) ExpiresWithin(now time.Time, d time.Duration) bool {
	return !t.ExpiresAt.IsZero() && !now.Add(d).Before(t.ExpiresAt)
}

// Event is delivered to subscribers on every change.
type Event struct {
	Type     EventType
	Identity *domain.Identity
	Tokens   *Tokens
	// Profile is set on USER_UPDATED events raised by a profile push.
	Profile *domain.Profile
}

// Snapshot is the persisted form of a session.
type Snapshot struct {
	Identity domain.Identity `yaml:"identity"`
	Tokens   Tokens          `yaml:"tokens"`
}

// Listener receives events. Listeners run synchronously in registration order.
type Listener func(ctx context.Context, ev Event)

// Store is the current session. It is safe for concurrent use.
type Store struct {
	mu        sync.RWMutex
	identity  *domain.Identity
	tokens    *Tokens
	listeners []listenerEntry
	nextID    int

	persister Persister
	logger    *logging.Logger
}

type listenerEntry struct {
	id int
	fn Listener
}

// NewStore creates an empty store. A nil persister keeps the session in memory only.
func NewStore(persister Persister, logger *logging.Logger) *Store {
	if persister == nil {
		persister = NopPersister{}
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Store{persister: persister, logger: logger}
}

// Subscribe registers fn and returns a function that removes it.
func (s *Store) Subscribe(fn Listener) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := s.nextID
	s.listeners = append(s.listeners, listenerEntry{id: id, fn: fn})
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, l := range s.listeners {
			if l.id == id {
				s.listeners = append(s.listeners[:i:i], s.listeners[i+1:]...)
				return
			}
		}
	}
}

// Restore loads the persisted session, if any, and emits INITIAL_SESSION.
func (s *Store) Restore(ctx context.Context) error {
	snap, err := s.persister.Load()
	if err != nil {
		return err
	}

	s.mu.Lock()
	if snap != nil {
		identity, tokens := snap.Identity, snap.Tokens
		s.identity, s.tokens = &identity, &tokens
	}
	ev := s.eventLocked(EventInitialSession)
	s.mu.Unlock()

	s.emit(ctx, ev)
	return nil
}

// Seed sets identity and tokens without emitting an event or persisting.
// The HTTP gateway uses it to rebuild a per-request store from a bearer token.
func (s *Store) Seed(identity *domain.Identity, tokens *Tokens) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if identity != nil {
		cp := *identity
		s.identity = &cp
	}
	if tokens != nil {
		cp := *tokens
		s.tokens = &cp
	}
}

// Identity returns the signed-in identity, or nil.
func (s *Store) Identity() *domain.Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.identity == nil {
		return nil
	}
	cp := *s.identity
	return &cp
}

// Tokens returns the current tokens, or nil.
func (s *Store) Tokens() *Tokens {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.tokens == nil {
		return nil
	}
	cp := *s.tokens
	return &cp
}

// AccessToken returns the current access token or "".
func (s *Store) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.tokens == nil {
		return ""
	}
	return s.tokens.AccessToken
}

// SignedIn reports whether a session is held.
func (s *Store) SignedIn() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identity != nil && s.tokens != nil
}

// SetSession stores a backend session and emits typ (SIGNED_IN or
// TOKEN_REFRESHED). A session without a user keeps the current identity.
func (s *Store) SetSession(ctx context.Context, typ EventType, sess *supabase.Session) error {
	if sess == nil || sess.AccessToken == "" {
		return errors.New("session has no access token")
	}
	tokens := TokensFromSession(sess, time.Now())

	s.mu.Lock()
	var identity domain.Identity
	switch {
	case sess.User != nil:
		identity = IdentityFromUser(sess.User)
	case s.identity != nil:
		identity = *s.identity
	default:
		s.mu.Unlock()
		return errors.New("session has no user")
	}
	s.identity, s.tokens = &identity, &tokens
	ev := s.eventLocked(typ)
	s.mu.Unlock()

	if err := s.persister.Save(&Snapshot{Identity: identity, Tokens: tokens}); err != nil {
		s.logger.WithContext(ctx).WithError(err).Warn("persist session")
	}
	s.emit(ctx, ev)
	return nil
}

// UpdateIdentity replaces the identity (after an auth-side user update) and
// emits USER_UPDATED.
func (s *Store) UpdateIdentity(ctx context.Context, user *supabase.User) {
	if user == nil {
		return
	}
	identity := IdentityFromUser(user)

	s.mu.Lock()
	if s.identity == nil {
		s.mu.Unlock()
		return
	}
	s.identity = &identity
	ev := s.eventLocked(EventUserUpdated)
	tokens := s.tokens
	s.mu.Unlock()

	if tokens != nil {
		if err := s.persister.Save(&Snapshot{Identity: identity, Tokens: *tokens}); err != nil {
			s.logger.WithContext(ctx).WithError(err).Warn("persist session")
		}
	}
	s.emit(ctx, ev)
}

// PublishProfile emits USER_UPDATED carrying a pushed profile.
func (s *Store) PublishProfile(ctx context.Context, profile *domain.Profile) {
	s.mu.RLock()
	if s.identity == nil || profile == nil || profile.ID != s.identity.ID {
		s.mu.RUnlock()
		return
	}
	ev := s.eventLocked(EventUserUpdated)
	s.mu.RUnlock()

	ev.Profile = profile
	s.emit(ctx, ev)
}

// Clear drops the session and emits SIGNED_OUT. Clearing an empty store is a no-op.
func (s *Store) Clear(ctx context.Context) {
	s.mu.Lock()
	if s.identity == nil && s.tokens == nil {
		s.mu.Unlock()
		return
	}
	prev := s.eventLocked(EventSignedOut)
	s.identity, s.tokens = nil, nil
	s.mu.Unlock()

	if err := s.persister.Clear(); err != nil {
		s.logger.WithContext(ctx).WithError(err).Warn("clear persisted session")
	}
	prev.Tokens = nil
	s.emit(ctx, prev)
}

func (s *Store) eventLocked(typ EventType) Event {
	ev := Event{Type: typ}
	if s.identity != nil {
		cp := *s.identity
		ev.Identity = &cp
	}
	if s.tokens != nil {
		cp := *s.tokens
		ev.Tokens = &cp
	}
	return ev
}

func (s *Store) emit(ctx context.Context, ev Event) {
	s.mu.RLock()
	listeners := make([]Listener, len(s.listeners))
	for i, l := range s.listeners {
		listeners[i] = l.fn
	}
	s.mu.RUnlock()

	fields := logrus.Fields{"event": string(ev.Type)}
	if ev.Identity != nil {
		fields["user_id"] = ev.Identity.ID
	}
	s.logger.WithContext(ctx).WithFields(fields).Debug("auth state change")

	for _, fn := range listeners {
		fn(ctx, ev)
	}
}

// IdentityFromUser converts an auth user to an Identity.
func IdentityFromUser(u *supabase.User) domain.Identity {
	return domain.Identity{
		ID:            u.ID,
		Email:         u.Email,
		EmailVerified: u.EmailVerified(),
		Metadata:      u.UserMetadata,
	}
}

// TokensFromSession extracts tokens from a backend session issued at issuedAt.
func TokensFromSession(sess *supabase.Session, issuedAt time.Time) Tokens {
	return Tokens{
		AccessToken:  sess.AccessToken,
		RefreshToken: sess.RefreshToken,
		ExpiresAt:    sess.Expiry(issuedAt).UTC(),
	}
}
