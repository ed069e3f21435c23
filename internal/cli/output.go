// Package cli provides terminal output for the directory command line tool:
// colored notices, a spinner for network calls and shell completion.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/waypoint-tourism/directory/internal/notify"
)

// Color codes for terminal output
const (
	ColorReset  = "\033[0m"
	ColorRed    = "\033[31m"
	ColorGreen  = "\033[32m"
	ColorYellow = "\033[33m"
	ColorBlue   = "\033[34m"
	ColorCyan   = "\033[36m"
	ColorBold   = "\033[1m"
)

var markers = map[notify.Level]struct{ symbol, color string }{
	notify.LevelSuccess: {"✓", ColorGreen},
	notify.LevelInfo:    {"ℹ", ColorBlue},
	notify.LevelWarning: {"⚠", ColorYellow},
	notify.LevelError:   {"✗", ColorRed},
}

// Printer writes notices and JSON documents to a terminal or pipe.
type Printer struct {
	mu       sync.Mutex
	writer   io.Writer
	colorize bool
}

// NewPrinter creates a printer on w. Color is enabled only when w is a
// terminal.
func NewPrinter(w io.Writer) *Printer {
	return &Printer{writer: w, colorize: isTerminal(w)}
}

// DisableColor disables colored output
func (p *Printer) DisableColor() *Printer {
	p.colorize = false
	return p
}

// Notify implements notify.Notifier so the printer can be handed to services
// as their toast sink.
func (p *Printer) Notify(_ context.Context, n notify.Notice) {
	p.Line(n.Level, noticeText(n))
}

// Line prints message with the marker for level.
func (p *Printer) Line(level notify.Level, message string) {
	m, ok := markers[level]
	if !ok {
		m = markers[notify.LevelInfo]
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.colorize {
		fmt.Fprintf(p.writer, "%s%s%s %s\n", m.color, m.symbol, ColorReset, message)
		return
	}
	fmt.Fprintf(p.writer, "%s %s\n", m.symbol, message)
}

func (p *Printer) Success(message string) { p.Line(notify.LevelSuccess, message) }
func (p *Printer) Info(message string)    { p.Line(notify.LevelInfo, message) }
func (p *Printer) Warning(message string) { p.Line(notify.LevelWarning, message) }
func (p *Printer) Error(message string)   { p.Line(notify.LevelError, message) }

// JSON pretty-prints v.
func (p *Printer) JSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	_, err = fmt.Fprintln(p.writer, string(data))
	return err
}

// Field prints an aligned "label: value" row.
func (p *Printer) Field(label, value string) {
	if value == "" {
		value = "-"
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.colorize {
		fmt.Fprintf(p.writer, "%s%-18s%s %s\n", ColorBold, label+":", ColorReset, value)
		return
	}
	fmt.Fprintf(p.writer, "%-18s %s\n", label+":", value)
}

func noticeText(n notify.Notice) string {
	switch {
	case n.Title == "":
		return n.Message
	case n.Message == "":
		return n.Title
	default:
		return n.Title + ": " + n.Message
	}
}

// Spinner represents a loading spinner
type Spinner struct {
	frames   []string
	current  int
	prefix   string
	mu       sync.Mutex
	writer   io.Writer
	active   bool
	colorize bool
	done     chan struct{}
}

// NewSpinner creates a spinner on w. On a pipe it stays silent.
func NewSpinner(w io.Writer, prefix string) *Spinner {
	return &Spinner{
		frames:   []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"},
		prefix:   prefix,
		writer:   w,
		colorize: isTerminal(w),
		done:     make(chan struct{}),
	}
}

// Start starts the spinner
func (s *Spinner) Start() {
	s.mu.Lock()
	if s.active || !s.colorize {
		s.mu.Unlock()
		return
	}
	s.active = true
	s.mu.Unlock()

	go func() {
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.mu.Lock()
				if !s.active {
					s.mu.Unlock()
					return
				}
				s.render()
				s.current = (s.current + 1) % len(s.frames)
				s.mu.Unlock()
			case <-s.done:
				return
			}
		}
	}()
}

// Stop stops the spinner and clears its line.
func (s *Spinner) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active {
		return
	}
	s.active = false
	close(s.done)
	fmt.Fprint(s.writer, "\r"+strings.Repeat(" ", len(s.prefix)+4)+"\r")
}

func (s *Spinner) render() {
	fmt.Fprintf(s.writer, "\r%s%s%s %s", ColorCyan, s.frames[s.current], ColorReset, s.prefix)
}

// Wrap runs fn with the spinner showing.
func (s *Spinner) Wrap(fn func() error) error {
	s.Start()
	defer s.Stop()
	return fn()
}

// isTerminal checks if w is a character device
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
