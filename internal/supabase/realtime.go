package supabase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"
)

const (
	defaultHeartbeatInterval = 25 * time.Second

	eventJoin            = "phx_join"
	eventLeave           = "phx_leave"
	eventReply           = "phx_reply"
	eventError           = "phx_error"
	eventClose           = "phx_close"
	eventHeartbeat       = "heartbeat"
	eventAccessToken     = "access_token"
	eventPostgresChanges = "postgres_changes"
)

// ErrRealtimeClosed is returned when using a closed connection.
var ErrRealtimeClosed = errors.New("realtime connection closed")

// PostgresChangesConfig selects row changes for a subscription.
type PostgresChangesConfig struct {
	Event  string `json:"event"` // INSERT, UPDATE, DELETE or *
	Schema string `json:"schema"`
	Table  string `json:"table"`
	Filter string `json:"filter,omitempty"` // e.g. "id=eq.42"
}

// ChangeEvent is a single row change pushed by the server.
type ChangeEvent struct {
	Type            string
	Schema          string
	Table           string
	CommitTimestamp string
	Record          json.RawMessage
	OldRecord       json.RawMessage
}

// ChangeHandler receives row changes. Handlers run on the read loop and must
// not block.
type ChangeHandler func(ChangeEvent)

type changeBinding struct {
	config  PostgresChangesConfig
	handler ChangeHandler
}

// RealtimeClient speaks the Phoenix channel protocol used by Realtime.
type RealtimeClient struct {
	url    string
	apiKey string

	// HeartbeatInterval defaults to 25s.
	HeartbeatInterval time.Duration
	Dialer            *websocket.Dialer

	mu       sync.Mutex
	writeMu  sync.Mutex
	conn     *websocket.Conn
	channels map[string]*Channel
	pending  map[string]chan gjson.Result
	ref      uint64
	done     chan struct{}
	err      error
}

// Channel is a joined (or joinable) realtime topic.
type Channel struct {
	client   *RealtimeClient
	topic    string
	bindings []changeBinding
	joinRef  string
	joined   bool
}

// NewRealtimeClient creates a client for a websocket endpoint such as
// wss://xyz.supabase.co/realtime/v1/websocket.
func NewRealtimeClient(endpoint, apiKey string) *RealtimeClient {
	return &RealtimeClient{
		url:               endpoint,
		apiKey:            apiKey,
		HeartbeatInterval: defaultHeartbeatInterval,
		Dialer:            &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		channels:          make(map[string]*Channel),
		pending:           make(map[string]chan gjson.Result),
	}
}

// Connect establishes the websocket connection and starts the read and
// heartbeat loops.
func (r *RealtimeClient) Connect(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.conn != nil {
		return nil
	}

	u, err := url.Parse(r.url)
	if err != nil {
		return fmt.Errorf("parse realtime url: %w", err)
	}
	q := u.Query()
	q.Set("apikey", r.apiKey)
	q.Set("vsn", "1.0.0")
	u.RawQuery = q.Encode()

	conn, _, err := r.Dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	r.conn = conn
	r.done = make(chan struct{})
	r.err = nil

	go r.readLoop(conn, r.done)
	go r.heartbeat(r.done)
	return nil
}

// Done is closed when the connection ends.
func (r *RealtimeClient) Done() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return r.done
}

// Err returns the error that ended the connection, if any.
func (r *RealtimeClient) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Close closes the connection.
func (r *RealtimeClient) Close() error {
	r.mu.Lock()
	conn := r.conn
	r.mu.Unlock()
	if conn == nil {
		return nil
	}

	r.writeMu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	r.writeMu.Unlock()

	return conn.Close()
}

// Channel returns the channel for name, creating it if needed.
func (r *RealtimeClient) Channel(name string) *Channel {
	topic := "realtime:" + name

	r.mu.Lock()
	defer r.mu.Unlock()

	if ch, ok := r.channels[topic]; ok {
		return ch
	}
	ch := &Channel{client: r, topic: topic}
	r.channels[topic] = ch
	return ch
}

// SetAuth pushes a fresh access token to every joined channel.
func (r *RealtimeClient) SetAuth(accessToken string) error {
	r.mu.Lock()
	topics := make([]string, 0, len(r.channels))
	for topic, ch := range r.channels {
		if ch.joined {
			topics = append(topics, topic)
		}
	}
	r.mu.Unlock()

	for _, topic := range topics {
		if err := r.send(topic, eventAccessToken, map[string]string{"access_token": accessToken}, r.nextRef(), ""); err != nil {
			return err
		}
	}
	return nil
}

// OnPostgresChanges registers handler for row changes matching cfg. It must
// be called before Subscribe.
func (c *Channel) OnPostgresChanges(cfg PostgresChangesConfig, handler ChangeHandler) *Channel {
	if cfg.Schema == "" {
		cfg.Schema = "public"
	}
	if cfg.Event == "" {
		cfg.Event = "*"
	}

	c.client.mu.Lock()
	c.bindings = append(c.bindings, changeBinding{config: cfg, handler: handler})
	c.client.mu.Unlock()
	return c
}

// Subscribe joins the channel and waits for the server to acknowledge it.
func (c *Channel) Subscribe(ctx context.Context, accessToken string) error {
	c.client.mu.Lock()
	if c.joined {
		c.client.mu.Unlock()
		return nil
	}
	changes := make([]PostgresChangesConfig, len(c.bindings))
	for i, b := range c.bindings {
		changes[i] = b.config
	}
	c.client.mu.Unlock()

	payload := map[string]any{
		"config": map[string]any{
			"broadcast":        map[string]any{"self": false},
			"presence":         map[string]any{"key": ""},
			"postgres_changes": changes,
		},
	}
	if accessToken != "" {
		payload["access_token"] = accessToken
	}

	ref := c.client.nextRef()
	reply, err := c.client.call(ctx, c.topic, eventJoin, payload, ref, ref)
	if err != nil {
		return err
	}
	if status := reply.Get("payload.status").String(); status != "ok" {
		return fmt.Errorf("join %s: %s", c.topic, reply.Get("payload.response").Raw)
	}

	c.client.mu.Lock()
	c.joined = true
	c.joinRef = ref
	c.client.mu.Unlock()
	return nil
}

// Unsubscribe leaves the channel.
func (c *Channel) Unsubscribe() error {
	c.client.mu.Lock()
	if !c.joined {
		c.client.mu.Unlock()
		return nil
	}
	joinRef := c.joinRef
	c.joined = false
	delete(c.client.channels, c.topic)
	c.client.mu.Unlock()

	return c.client.send(c.topic, eventLeave, map[string]any{}, c.client.nextRef(), joinRef)
}

// =============================================================================
// Protocol
// =============================================================================

func (r *RealtimeClient) nextRef() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ref++
	return strconv.FormatUint(r.ref, 10)
}

func (r *RealtimeClient) send(topic, event string, payload any, ref, joinRef string) error {
	r.mu.Lock()
	conn := r.conn
	r.mu.Unlock()
	if conn == nil {
		return ErrRealtimeClosed
	}

	msg := map[string]any{
		"topic":   topic,
		"event":   event,
		"payload": payload,
		"ref":     ref,
	}
	if joinRef != "" {
		msg["join_ref"] = joinRef
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	if err := conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("send %s: %w", event, err)
	}
	return nil
}

// call sends a message and waits for its phx_reply.
func (r *RealtimeClient) call(ctx context.Context, topic, event string, payload any, ref, joinRef string) (gjson.Result, error) {
	replyCh := make(chan gjson.Result, 1)

	r.mu.Lock()
	r.pending[ref] = replyCh
	done := r.done
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		delete(r.pending, ref)
		r.mu.Unlock()
	}()

	if err := r.send(topic, event, payload, ref, joinRef); err != nil {
		return gjson.Result{}, err
	}

	select {
	case reply := <-replyCh:
		return reply, nil
	case <-done:
		return gjson.Result{}, ErrRealtimeClosed
	case <-ctx.Done():
		return gjson.Result{}, ctx.Err()
	}
}

func (r *RealtimeClient) readLoop(conn *websocket.Conn, done chan struct{}) {
	var readErr error
	defer func() {
		r.mu.Lock()
		if r.conn == conn {
			r.conn = nil
		}
		if readErr != nil && !websocket.IsCloseError(readErr, websocket.CloseNormalClosure) {
			r.err = readErr
		}
		for _, ch := range r.channels {
			ch.joined = false
		}
		r.mu.Unlock()
		close(done)
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			readErr = err
			return
		}
		if !gjson.ValidBytes(message) {
			continue
		}
		r.dispatch(gjson.ParseBytes(message))
	}
}

func (r *RealtimeClient) dispatch(msg gjson.Result) {
	topic := msg.Get("topic").String()
	event := msg.Get("event").String()

	switch event {
	case eventReply:
		r.mu.Lock()
		replyCh, ok := r.pending[msg.Get("ref").String()]
		r.mu.Unlock()
		if ok {
			replyCh <- msg
		}
	case eventError, eventClose:
		r.mu.Lock()
		if ch, ok := r.channels[topic]; ok {
			ch.joined = false
		}
		r.mu.Unlock()
	case eventPostgresChanges:
		data := msg.Get("payload.data")
		change := ChangeEvent{
			Type:            data.Get("type").String(),
			Schema:          data.Get("schema").String(),
			Table:           data.Get("table").String(),
			CommitTimestamp: data.Get("commit_timestamp").String(),
		}
		if rec := data.Get("record"); rec.Exists() {
			change.Record = json.RawMessage(rec.Raw)
		}
		if old := data.Get("old_record"); old.Exists() {
			change.OldRecord = json.RawMessage(old.Raw)
		}

		r.mu.Lock()
		var handlers []ChangeHandler
		if ch, ok := r.channels[topic]; ok {
			for _, b := range ch.bindings {
				if b.matches(change) {
					handlers = append(handlers, b.handler)
				}
			}
		}
		r.mu.Unlock()

		for _, h := range handlers {
			h(change)
		}
	}
}

func (b changeBinding) matches(change ChangeEvent) bool {
	if b.config.Event != "*" && b.config.Event != change.Type {
		return false
	}
	if b.config.Table != "" && b.config.Table != change.Table {
		return false
	}
	return b.config.Schema == "" || b.config.Schema == change.Schema
}

func (r *RealtimeClient) heartbeat(done chan struct{}) {
	interval := r.HeartbeatInterval
	if interval <= 0 {
		interval = defaultHeartbeatInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := r.send("phoenix", eventHeartbeat, map[string]any{}, r.nextRef(), ""); err != nil {
				return
			}
		}
	}
}
