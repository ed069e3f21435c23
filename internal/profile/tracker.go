package profile

import (
	"context"
	"sync"

	"github.com/waypoint-tourism/directory/internal/database"
	"github.com/waypoint-tourism/directory/internal/domain"
	"github.com/waypoint-tourism/directory/internal/session"
)

// Tracker keeps the current user's profile in step with the session:
// it bootstraps on SIGNED_IN and INITIAL_SESSION, takes pushed profiles on
// USER_UPDATED and forgets everything on SIGNED_OUT.
type Tracker struct {
	loader *Loader

	mu      sync.RWMutex
	profile *domain.Profile
	lastErr error
}

// NewTracker creates a tracker over loader.
func NewTracker(loader *Loader) *Tracker {
	return &Tracker{loader: loader}
}

// Attach subscribes the tracker to store and returns the unsubscribe func.
func (t *Tracker) Attach(store *session.Store) func() {
	return store.Subscribe(func(ctx context.Context, ev session.Event) {
		t.handle(ctx, ev)
	})
}

func (t *Tracker) handle(ctx context.Context, ev session.Event) {
	switch ev.Type {
	case session.EventSignedIn, session.EventInitialSession:
		if ev.Identity == nil {
			t.set(nil, nil)
			return
		}
		if ev.Tokens != nil {
			ctx = database.WithAccessToken(ctx, ev.Tokens.AccessToken)
		}
		p, err := t.loader.Load(ctx, *ev.Identity)
		t.set(p, err)
	case session.EventUserUpdated:
		if ev.Profile != nil {
			t.loader.Remember(ctx, ev.Profile)
			t.set(ev.Profile, nil)
		}
	case session.EventSignedOut:
		if ev.Identity != nil {
			t.loader.Invalidate(ctx, ev.Identity.ID)
		}
		t.set(nil, nil)
	}
}

func (t *Tracker) set(p *domain.Profile, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.profile, t.lastErr = p, err
}

// Profile returns the current profile and the error of the last bootstrap.
func (t *Tracker) Profile() (*domain.Profile, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.profile == nil {
		return nil, t.lastErr
	}
	cp := *t.profile
	return &cp, t.lastErr
}

// Set replaces the current profile, e.g. after a local update.
func (t *Tracker) Set(p *domain.Profile) {
	t.set(p, nil)
}
