package session

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/waypoint-tourism/directory/internal/logging"
	"github.com/waypoint-tourism/directory/internal/supabase"
)

const (
	// DefaultRefreshMargin is how long before expiry a token is refreshed.
	DefaultRefreshMargin = 60 * time.Second
	defaultSchedule      = "@every 30s"
)

// TokenRefresher exchanges a refresh token for a new session.
type TokenRefresher interface {
	RefreshToken(ctx context.Context, refreshToken string) (*supabase.Session, error)
}

// Refresher keeps the store's access token fresh on a cron schedule.
type Refresher struct {
	store   *Store
	auth    TokenRefresher
	margin  time.Duration
	logger  *logging.Logger
	now     func() time.Time
	timeout time.Duration

	mu   sync.Mutex
	cron *cron.Cron
}

// NewRefresher creates a refresher. A zero margin uses DefaultRefreshMargin.
func NewRefresher(store *Store, auth TokenRefresher, margin time.Duration, logger *logging.Logger) *Refresher {
	if margin <= 0 {
		margin = DefaultRefreshMargin
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Refresher{
		store:   store,
		auth:    auth,
		margin:  margin,
		logger:  logger,
		now:     time.Now,
		timeout: 15 * time.Second,
	}
}

// Start schedules the check. schedule is a cron spec; "" means every 30s.
func (r *Refresher) Start(schedule string) error {
	if schedule == "" {
		schedule = defaultSchedule
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cron != nil {
		return nil
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()
		_, _ = r.Check(ctx)
	}); err != nil {
		return err
	}
	c.Start()
	r.cron = c
	return nil
}

// Stop halts the schedule and waits for a running check.
func (r *Refresher) Stop() {
	r.mu.Lock()
	c := r.cron
	r.cron = nil
	r.mu.Unlock()
	if c != nil {
		<-c.Stop().Done()
	}
}

// Check refreshes the session if it is inside the margin. It reports whether
// a refresh happened. A failed refresh signs the user out.
func (r *Refresher) Check(ctx context.Context) (bool, error) {
	tokens := r.store.Tokens()
	if tokens == nil || !tokens.ExpiresWithin(r.now(), r.margin) {
		return false, nil
	}

	sess, err := r.auth.RefreshToken(ctx, tokens.RefreshToken)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Warn("token refresh failed; signing out")
		r.store.Clear(ctx)
		return false, err
	}
	if err := r.store.SetSession(ctx, EventTokenRefreshed, sess); err != nil {
		return false, err
	}
	return true, nil
}
