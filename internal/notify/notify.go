// Package notify carries short user-facing notices (the toast messages of a
// UI) from operations to whoever displays them.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/waypoint-tourism/directory/internal/logging"
)

// Level is a notice severity.
type Level string

const (
	LevelSuccess Level = "success"
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Notice is one user-facing message.
type Notice struct {
	Level   Level     `json:"level"`
	Title   string    `json:"title"`
	Message string    `json:"message"`
	UserID  string    `json:"user_id,omitempty"`
	At      time.Time `json:"at"`
}

// Notifier receives notices.
type Notifier interface {
	Notify(ctx context.Context, n Notice)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, n Notice)

func (f NotifierFunc) Notify(ctx context.Context, n Notice) { f(ctx, n) }

// Success builds a success notice.
func Success(title, message string) Notice {
	return Notice{Level: LevelSuccess, Title: title, Message: message, At: time.Now().UTC()}
}

// Warning builds a warning notice.
func Warning(title, message string) Notice {
	return Notice{Level: LevelWarning, Title: title, Message: message, At: time.Now().UTC()}
}

// Error builds an error notice carrying message verbatim.
func Error(title, message string) Notice {
	return Notice{Level: LevelError, Title: title, Message: message, At: time.Now().UTC()}
}

// Nop discards notices.
var Nop Notifier = NotifierFunc(func(context.Context, Notice) {})

// Multi fans a notice out to several notifiers in order.
func Multi(notifiers ...Notifier) Notifier {
	return NotifierFunc(func(ctx context.Context, n Notice) {
		for _, nt := range notifiers {
			if nt != nil {
				nt.Notify(ctx, n)
			}
		}
	})
}

// LogNotifier writes notices to the structured log.
type LogNotifier struct {
	logger *logging.Logger
}

// NewLogNotifier creates a notifier that logs through logger.
func NewLogNotifier(logger *logging.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (l *LogNotifier) Notify(ctx context.Context, n Notice) {
	entry := l.logger.WithContext(ctx).WithFields(logrus.Fields{
		"notice_level": string(n.Level),
		"title":        n.Title,
	})
	if n.UserID != "" {
		entry = entry.WithField("notice_user", n.UserID)
	}
	switch n.Level {
	case LevelError:
		entry.Warn(n.Message)
	case LevelWarning:
		entry.Info(n.Message)
	default:
		entry.Debug(n.Message)
	}
}

// Feed keeps the most recent notices in a fixed-size ring.
type Feed struct {
	mu    sync.Mutex
	buf   []Notice
	next  int
	count int
}

// NewFeed creates a feed holding up to size notices.
func NewFeed(size int) *Feed {
	if size <= 0 {
		size = 100
	}
	return &Feed{buf: make([]Notice, size)}
}

func (f *Feed) Notify(ctx context.Context, n Notice) {
	if n.At.IsZero() {
		n.At = time.Now().UTC()
	}
	if n.UserID == "" {
		n.UserID = logging.GetUserID(ctx)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.buf[f.next] = n
	f.next = (f.next + 1) % len(f.buf)
	if f.count < len(f.buf) {
		f.count++
	}
}

// Recent returns up to limit notices, newest first. An empty userID returns
// notices for everyone.
func (f *Feed) Recent(userID string, limit int) []Notice {
	f.mu.Lock()
	defer f.mu.Unlock()

	if limit <= 0 || limit > f.count {
		limit = f.count
	}
	out := make([]Notice, 0, limit)
	for i := 0; i < f.count && len(out) < limit; i++ {
		idx := (f.next - 1 - i + len(f.buf)) % len(f.buf)
		n := f.buf[idx]
		if userID != "" && n.UserID != userID {
			continue
		}
		out = append(out, n)
	}
	return out
}
