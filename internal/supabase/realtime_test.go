package supabase

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

// fakeRealtime acknowledges joins and then pushes one profile update.
func fakeRealtime(t *testing.T, joins chan<- gjson.Result) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("apikey") != "anon" {
			http.Error(w, "missing apikey", http.StatusUnauthorized)
			return
		}
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
			joins <- msg

			topic := msg.Get("topic").String()
			_ = conn.WriteJSON(map[string]any{
				"topic":   topic,
				"event":   "phx_reply",
				"ref":     msg.Get("ref").String(),
				"payload": map[string]any{"status": "ok", "response": map[string]any{}},
			})
			_ = conn.WriteJSON(map[string]any{
				"topic": topic,
				"event": "postgres_changes",
				"ref":   nil,
				"payload": map[string]any{
					"ids": []int{1},
					"data": map[string]any{
						"schema":           "public",
						"table":            "profiles",
						"type":             "UPDATE",
						"commit_timestamp": "2025-01-01T00:00:00Z",
						"record":           map[string]any{"id": "u1", "display_name": "New Name"},
						"old_record":       map[string]any{"id": "u1"},
					},
				},
			})
		}
	}))
}

func TestRealtime_SubscribeAndReceiveChange(t *testing.T) {
	joins := make(chan gjson.Result, 1)
	srv := fakeRealtime(t, joins)
	defer srv.Close()

	rt := NewRealtimeClient("ws"+strings.TrimPrefix(srv.URL, "http"), "anon")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, rt.Connect(ctx))
	defer rt.Close()

	got := make(chan ChangeEvent, 1)
	ch := rt.Channel("profile:u1").OnPostgresChanges(PostgresChangesConfig{
		Event:  "UPDATE",
		Table:  "profiles",
		Filter: "id=eq.u1",
	}, func(ev ChangeEvent) { got <- ev })

	require.NoError(t, ch.Subscribe(ctx, "user-token"))

	join := <-joins
	assert.Equal(t, "realtime:profile:u1", join.Get("topic").String())
	assert.Equal(t, "user-token", join.Get("payload.access_token").String())
	assert.Equal(t, "public", join.Get("payload.config.postgres_changes.0.schema").String())
	assert.Equal(t, "id=eq.u1", join.Get("payload.config.postgres_changes.0.filter").String())

	select {
	case ev := <-got:
		assert.Equal(t, "UPDATE", ev.Type)
		assert.Equal(t, "profiles", ev.Table)
		var rec map[string]string
		require.NoError(t, json.Unmarshal(ev.Record, &rec))
		assert.Equal(t, "New Name", rec["display_name"])
	case <-ctx.Done():
		t.Fatal("timed out waiting for change")
	}
}

func TestRealtime_BindingFiltersEventType(t *testing.T) {
	b := changeBinding{config: PostgresChangesConfig{Event: "INSERT", Schema: "public", Table: "profiles"}}

	assert.True(t, b.matches(ChangeEvent{Type: "INSERT", Schema: "public", Table: "profiles"}))
	assert.False(t, b.matches(ChangeEvent{Type: "UPDATE", Schema: "public", Table: "profiles"}))
	assert.False(t, b.matches(ChangeEvent{Type: "INSERT", Schema: "public", Table: "listings"}))
}

func TestRealtime_SendWithoutConnection(t *testing.T) {
	rt := NewRealtimeClient("ws://127.0.0.1:1/realtime/v1/websocket", "anon")
	err := rt.Channel("x").Subscribe(context.Background(), "")
	assert.ErrorIs(t, err, ErrRealtimeClosed)
}
