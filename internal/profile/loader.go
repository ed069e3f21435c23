// Package profile loads the signed-in user's profile, creating it on first
// sight, and keeps an optional cache in front of the repository.
package profile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/waypoint-tourism/directory/internal/cache"
	"github.com/waypoint-tourism/directory/internal/database"
	"github.com/waypoint-tourism/directory/internal/domain"
	"github.com/waypoint-tourism/directory/internal/logging"
	"github.com/waypoint-tourism/directory/internal/metrics"
	"github.com/waypoint-tourism/directory/internal/notify"
)

const (
	// DefaultCacheTTL bounds how stale a cached profile may be.
	DefaultCacheTTL = 5 * time.Minute
	cacheKeyPrefix  = "profile:"
)

// Config wires a Loader. Only Repository is required.
type Config struct {
	Repository database.ProfileRepository
	Cache      cache.Cache
	CacheTTL   time.Duration
	Notifier   notify.Notifier
	Metrics    *metrics.Metrics
	Logger     *logging.Logger
}

// Loader implements the profile bootstrap.
type Loader struct {
	repo     database.ProfileRepository
	cache    cache.Cache
	ttl      time.Duration
	notifier notify.Notifier
	metrics  *metrics.Metrics
	logger   *logging.Logger
}

// NewLoader validates cfg and returns a Loader.
func NewLoader(cfg Config) (*Loader, error) {
	if cfg.Repository == nil {
		return nil, errors.New("profile loader requires a repository")
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	if cfg.Notifier == nil {
		cfg.Notifier = notify.Nop
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &Loader{
		repo:     cfg.Repository,
		cache:    cfg.Cache,
		ttl:      cfg.CacheTTL,
		notifier: cfg.Notifier,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger,
	}, nil
}

// Load returns the profile for identity, inserting a default one when none
// exists. A uniqueness conflict on insert means a concurrent bootstrap won
// the race; the row is then fetched once more. Any other failure emits an
// error notice and is returned.
func (l *Loader) Load(ctx context.Context, identity domain.Identity) (*domain.Profile, error) {
	if identity.ID == "" {
		return nil, fmt.Errorf("%w: identity id is required", database.ErrInvalidInput)
	}
	if p := l.cached(ctx, identity.ID); p != nil {
		return p, nil
	}

	log := l.logger.WithContext(ctx).WithField("user_id", identity.ID)

	p, err := l.repo.GetProfile(ctx, identity.ID)
	switch {
	case err == nil:
		l.metrics.RecordBootstrap(metrics.BootstrapFound)
		l.store(ctx, p)
		return p, nil
	case !database.IsNotFound(err):
		return nil, l.fail(ctx, identity.ID, "Could not load your profile", err)
	}

	p, err = l.repo.CreateProfile(ctx, domain.NewDefaultProfile(identity))
	switch {
	case err == nil:
		log.Info("created default profile")
		l.metrics.RecordBootstrap(metrics.BootstrapCreated)
	case database.IsConflict(err):
		log.Debug("profile created concurrently; re-fetching")
		p, err = l.repo.GetProfile(ctx, identity.ID)
		if err != nil {
			return nil, l.fail(ctx, identity.ID, "Could not load your profile", err)
		}
		l.metrics.RecordBootstrap(metrics.BootstrapConflict)
	default:
		return nil, l.fail(ctx, identity.ID, "Could not create your profile", err)
	}

	l.store(ctx, p)
	return p, nil
}

// Update applies a partial update and refreshes the cached copy.
func (l *Loader) Update(ctx context.Context, id string, update domain.ProfileUpdate) (*domain.Profile, error) {
	if update.IsEmpty() {
		return nil, fmt.Errorf("%w: no profile fields to update", database.ErrInvalidInput)
	}
	l.Invalidate(ctx, id)

	p, err := l.repo.UpdateProfile(ctx, id, update)
	if err != nil {
		return nil, err
	}
	l.store(ctx, p)
	return p, nil
}

// Invalidate drops the cached profile for id.
func (l *Loader) Invalidate(ctx context.Context, id string) {
	if l.cache == nil {
		return
	}
	if err := l.cache.Delete(ctx, cacheKeyPrefix+id); err != nil {
		l.logger.WithContext(ctx).WithError(err).Warn("profile cache delete failed")
	}
}

// Remember stores p in the cache, e.g. after a realtime push.
func (l *Loader) Remember(ctx context.Context, p *domain.Profile) {
	l.store(ctx, p)
}

// fail reports a bootstrap failure to userID. The notice carries the id
// itself because sign-in runs before the request context knows the user.
func (l *Loader) fail(ctx context.Context, userID, title string, err error) error {
	l.metrics.RecordBootstrap(metrics.BootstrapFailed)
	n := notify.Error(title, database.BackendMessage(err))
	n.UserID = userID
	l.notifier.Notify(ctx, n)
	l.logger.WithContext(ctx).WithError(err).WithField("user_id", userID).Error("profile bootstrap failed")
	return err
}

func (l *Loader) cached(ctx context.Context, id string) *domain.Profile {
	if l.cache == nil {
		return nil
	}
	raw, ok, err := l.cache.Get(ctx, cacheKeyPrefix+id)
	if err != nil {
		l.metrics.RecordCacheLookup("error")
		l.logger.WithContext(ctx).WithError(err).Warn("profile cache read failed")
		return nil
	}
	if !ok {
		l.metrics.RecordCacheLookup("miss")
		return nil
	}

	var p domain.Profile
	if err := json.Unmarshal(raw, &p); err != nil {
		l.metrics.RecordCacheLookup("error")
		return nil
	}
	l.metrics.RecordCacheLookup("hit")
	return &p
}

func (l *Loader) store(ctx context.Context, p *domain.Profile) {
	if l.cache == nil || p == nil {
		return
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return
	}
	if err := l.cache.Set(ctx, cacheKeyPrefix+p.ID, raw, l.ttl); err != nil {
		l.logger.WithContext(ctx).WithError(err).Warn("profile cache write failed")
	}
}
