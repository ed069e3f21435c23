package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/waypoint-tourism/directory/internal/domain"
	"github.com/waypoint-tourism/directory/internal/logging"
	"github.com/waypoint-tourism/directory/internal/supabase"
)

// ProfileWatcher subscribes to the signed-in user's profile row and turns
// pushed changes into USER_UPDATED events.
type ProfileWatcher struct {
	store    *Store
	realtime *supabase.RealtimeClient
	logger   *logging.Logger

	mu          sync.Mutex
	channel     *supabase.Channel
	unsubscribe func()
}

// NewProfileWatcher creates a watcher over a realtime connection.
func NewProfileWatcher(store *Store, realtime *supabase.RealtimeClient, logger *logging.Logger) *ProfileWatcher {
	if logger == nil {
		logger = logging.Default()
	}
	return &ProfileWatcher{store: store, realtime: realtime, logger: logger}
}

// Start connects and subscribes for the current identity. Token refreshes are
// forwarded to the realtime connection.
func (w *ProfileWatcher) Start(ctx context.Context) error {
	identity := w.store.Identity()
	if identity == nil {
		return fmt.Errorf("not signed in")
	}
	if err := w.realtime.Connect(ctx); err != nil {
		return err
	}

	ch := w.realtime.Channel("profile:"+identity.ID).OnPostgresChanges(supabase.PostgresChangesConfig{
		Event:  "UPDATE",
		Schema: "public",
		Table:  "profiles",
		Filter: "id=eq." + identity.ID,
	}, func(ev supabase.ChangeEvent) {
		var profile domain.Profile
		if err := json.Unmarshal(ev.Record, &profile); err != nil {
			w.logger.WithError(err).Warn("decode pushed profile")
			return
		}
		w.store.PublishProfile(context.Background(), &profile)
	})

	if err := ch.Subscribe(ctx, w.store.AccessToken()); err != nil {
		return err
	}

	unsubscribe := w.store.Subscribe(func(ctx context.Context, ev Event) {
		switch ev.Type {
		case EventTokenRefreshed:
			if ev.Tokens != nil {
				if err := w.realtime.SetAuth(ev.Tokens.AccessToken); err != nil {
					w.logger.WithContext(ctx).WithError(err).Warn("forward refreshed token to realtime")
				}
			}
		case EventSignedOut:
			go w.Stop()
		}
	})

	w.mu.Lock()
	w.channel = ch
	w.unsubscribe = unsubscribe
	w.mu.Unlock()
	return nil
}

// Done is closed when the realtime connection ends.
func (w *ProfileWatcher) Done() <-chan struct{} {
	return w.realtime.Done()
}

// Stop leaves the channel and closes the connection.
func (w *ProfileWatcher) Stop() {
	w.mu.Lock()
	ch, unsubscribe := w.channel, w.unsubscribe
	w.channel, w.unsubscribe = nil, nil
	w.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	if ch != nil {
		_ = ch.Unsubscribe()
	}
	_ = w.realtime.Close()
}
