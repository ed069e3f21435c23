package notify

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/waypoint-tourism/directory/internal/logging"
)

func TestFeed_RingKeepsNewest(t *testing.T) {
	f := NewFeed(3)
	ctx := context.Background()
	for _, title := range []string{"a", "b", "c", "d"} {
		f.Notify(ctx, Success(title, ""))
	}

	got := f.Recent("", 0)
	assert.Len(t, got, 3)
	assert.Equal(t, "d", got[0].Title)
	assert.Equal(t, "b", got[2].Title)
}

func TestFeed_FiltersByUser(t *testing.T) {
	f := NewFeed(10)
	f.Notify(logging.WithUserID(context.Background(), "u1"), Error("Sign in failed", "Invalid login credentials"))
	f.Notify(logging.WithUserID(context.Background(), "u2"), Success("Signed in", ""))

	got := f.Recent("u1", 10)
	assert.Len(t, got, 1)
	assert.Equal(t, LevelError, got[0].Level)
	assert.Equal(t, "Invalid login credentials", got[0].Message)
}

func TestMulti(t *testing.T) {
	var seen []string
	a := NotifierFunc(func(_ context.Context, n Notice) { seen = append(seen, "a:"+n.Title) })
	b := NotifierFunc(func(_ context.Context, n Notice) { seen = append(seen, "b:"+n.Title) })

	Multi(a, nil, b).Notify(context.Background(), Warning("x", ""))
	assert.Equal(t, []string{"a:x", "b:x"}, seen)
}

func TestLogNotifier_DoesNotPanic(t *testing.T) {
	n := NewLogNotifier(logging.Discard())
	n.Notify(context.Background(), Error("t", "m"))
	n.Notify(context.Background(), Success("t", "m"))
}
