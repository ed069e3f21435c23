package session

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/waypoint-tourism/directory/internal/domain"
	"github.com/waypoint-tourism/directory/internal/logging"
	"github.com/waypoint-tourism/directory/internal/supabase"
)

func testSession(token string, expiresIn int) *supabase.Session {
	return &supabase.Session{
		AccessToken:  token,
		RefreshToken: "refresh-" + token,
		ExpiresIn:    expiresIn,
		User: &supabase.User{
			ID:           "u1",
			Email:        "ana@example.com",
			UserMetadata: map[string]any{"full_name": "Ana"},
		},
	}
}

func TestStore_EventsInOrder(t *testing.T) {
	ctx := context.Background()
	store := NewStore(nil, logging.Discard())

	var got []string
	store.Subscribe(func(_ context.Context, ev Event) { got = append(got, "first:"+string(ev.Type)) })
	store.Subscribe(func(_ context.Context, ev Event) { got = append(got, "second:"+string(ev.Type)) })

	require.NoError(t, store.SetSession(ctx, EventSignedIn, testSession("at1", 3600)))
	assert.True(t, store.SignedIn())
	assert.Equal(t, "at1", store.AccessToken())
	assert.Equal(t, "Ana", store.Identity().Metadata["full_name"])

	store.Clear(ctx)
	store.Clear(ctx)
	assert.False(t, store.SignedIn())

	assert.Equal(t, []string{
		"first:SIGNED_IN", "second:SIGNED_IN",
		"first:SIGNED_OUT", "second:SIGNED_OUT",
	}, got)
}

func TestStore_Unsubscribe(t *testing.T) {
	store := NewStore(nil, logging.Discard())
	calls := 0
	unsubscribe := store.Subscribe(func(context.Context, Event) { calls++ })
	unsubscribe()

	require.NoError(t, store.SetSession(context.Background(), EventSignedIn, testSession("at", 3600)))
	assert.Zero(t, calls)
}

func TestStore_SetSessionWithoutUserKeepsIdentity(t *testing.T) {
	ctx := context.Background()
	store := NewStore(nil, logging.Discard())

	assert.Error(t, store.SetSession(ctx, EventTokenRefreshed, &supabase.Session{AccessToken: "x"}))

	require.NoError(t, store.SetSession(ctx, EventSignedIn, testSession("at1", 3600)))
	require.NoError(t, store.SetSession(ctx, EventTokenRefreshed, &supabase.Session{AccessToken: "at2", ExpiresIn: 3600}))
	assert.Equal(t, "u1", store.Identity().ID)
	assert.Equal(t, "at2", store.AccessToken())
}

func TestStore_PublishProfileOnlyForCurrentUser(t *testing.T) {
	ctx := context.Background()
	store := NewStore(nil, logging.Discard())
	require.NoError(t, store.SetSession(ctx, EventSignedIn, testSession("at", 3600)))

	var pushed []*domain.Profile
	store.Subscribe(func(_ context.Context, ev Event) {
		if ev.Type == EventUserUpdated {
			pushed = append(pushed, ev.Profile)
		}
	})

	store.PublishProfile(ctx, &domain.Profile{ID: "someone-else"})
	store.PublishProfile(ctx, &domain.Profile{ID: "u1", DisplayName: "New"})

	require.Len(t, pushed, 1)
	assert.Equal(t, "New", pushed[0].DisplayName)
}

func TestFilePersister_RoundTripAndRestore(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "session.yaml")
	p := NewFilePersister(path)

	snap, err := p.Load()
	require.NoError(t, err)
	assert.Nil(t, snap)

	store := NewStore(p, logging.Discard())
	require.NoError(t, store.SetSession(ctx, EventSignedIn, testSession("at", 3600)))

	restored := NewStore(p, logging.Discard())
	var initial Event
	restored.Subscribe(func(_ context.Context, ev Event) { initial = ev })
	require.NoError(t, restored.Restore(ctx))

	assert.Equal(t, EventInitialSession, initial.Type)
	require.NotNil(t, initial.Identity)
	assert.Equal(t, "u1", initial.Identity.ID)
	assert.Equal(t, "at", restored.AccessToken())

	restored.Clear(ctx)
	snap, err = p.Load()
	require.NoError(t, err)
	assert.Nil(t, snap)
}

type fakeRefresher struct {
	calls int
	err   error
}

func (f *fakeRefresher) RefreshToken(_ context.Context, refreshToken string) (*supabase.Session, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &supabase.Session{AccessToken: "fresh", RefreshToken: refreshToken + "-2", ExpiresIn: 3600}, nil
}

func TestRefresher_Check(t *testing.T) {
	ctx := context.Background()
	store := NewStore(nil, logging.Discard())
	require.NoError(t, store.SetSession(ctx, EventSignedIn, testSession("at", 3600)))

	auth := &fakeRefresher{}
	r := NewRefresher(store, auth, time.Minute, logging.Discard())

	refreshed, err := r.Check(ctx)
	require.NoError(t, err)
	assert.False(t, refreshed, "token far from expiry")

	r.now = func() time.Time { return time.Now().Add(59*time.Minute + 30*time.Second) }
	var events []EventType
	store.Subscribe(func(_ context.Context, ev Event) { events = append(events, ev.Type) })

	refreshed, err = r.Check(ctx)
	require.NoError(t, err)
	assert.True(t, refreshed)
	assert.Equal(t, "fresh", store.AccessToken())
	assert.Equal(t, "u1", store.Identity().ID)
	assert.Equal(t, []EventType{EventTokenRefreshed}, events)
	assert.Equal(t, 1, auth.calls)
}

func TestRefresher_FailureSignsOut(t *testing.T) {
	ctx := context.Background()
	store := NewStore(nil, logging.Discard())
	require.NoError(t, store.SetSession(ctx, EventSignedIn, testSession("at", 1)))

	r := NewRefresher(store, &fakeRefresher{err: errors.New("Invalid Refresh Token")}, time.Minute, logging.Discard())

	_, err := r.Check(ctx)
	assert.Error(t, err)
	assert.False(t, store.SignedIn())
}

func TestRefresher_StartStop(t *testing.T) {
	store := NewStore(nil, logging.Discard())
	r := NewRefresher(store, &fakeRefresher{}, 0, logging.Discard())

	require.NoError(t, r.Start(""))
	require.NoError(t, r.Start(""))
	r.Stop()
	assert.Error(t, NewRefresher(store, &fakeRefresher{}, 0, logging.Discard()).Start("not a spec"))
}

func TestProfileWatcher_PushesUserUpdated(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			msg := gjson.ParseBytes(data)
			if msg.Get("event").String() != "phx_join" {
				continue
			}
			topic := msg.Get("topic").String()
			_ = conn.WriteJSON(map[string]any{
				"topic": topic, "event": "phx_reply", "ref": msg.Get("ref").String(),
				"payload": map[string]any{"status": "ok", "response": map[string]any{}},
			})
			_ = conn.WriteJSON(map[string]any{
				"topic": topic, "event": "postgres_changes",
				"payload": map[string]any{"data": map[string]any{
					"schema": "public", "table": "profiles", "type": "UPDATE",
					"record": map[string]any{"id": "u1", "display_name": "Pushed", "role": "user", "status": "active"},
				}},
			})
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	store := NewStore(nil, logging.Discard())
	require.NoError(t, store.SetSession(ctx, EventSignedIn, testSession("at", 3600)))

	updates := make(chan *domain.Profile, 1)
	store.Subscribe(func(_ context.Context, ev Event) {
		if ev.Type == EventUserUpdated && ev.Profile != nil {
			updates <- ev.Profile
		}
	})

	rt := supabase.NewRealtimeClient("ws"+strings.TrimPrefix(srv.URL, "http"), "anon")
	w := NewProfileWatcher(store, rt, logging.Discard())
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	select {
	case p := <-updates:
		assert.Equal(t, "Pushed", p.DisplayName)
	case <-ctx.Done():
		t.Fatal("timed out waiting for pushed profile")
	}
}

func TestStore_SeedIsSilent(t *testing.T) {
	s := NewStore(nil, logging.Discard())
	var events []EventType
	s.Subscribe(func(_ context.Context, ev Event) { events = append(events, ev.Type) })

	s.Seed(&domain.Identity{ID: "u1"}, &Tokens{AccessToken: "tok"})

	assert.Empty(t, events)
	assert.True(t, s.SignedIn())
	assert.Equal(t, "tok", s.AccessToken())
}
