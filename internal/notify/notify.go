package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dukerupert/foodalloc/internal/backend"
)

// Level classifies a notification.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

// Note is one user-visible notification.
type Note struct {
	Level Level
	Text  string
	At    time.Time
}

// Sink receives every note published through a Center.
type Sink interface {
	Deliver(ctx context.Context, n Note) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, n Note) error

func (f SinkFunc) Deliver(ctx context.Context, n Note) error { return f(ctx, n) }

// Center fans notes out to its sinks. A failing sink is logged and does
// not stop delivery to the others.
type Center struct {
	mu     sync.RWMutex
	sinks  []Sink
	logger *slog.Logger
	now    func() time.Time
}

func NewCenter(logger *slog.Logger, sinks ...Sink) *Center {
	return &Center{sinks: sinks, logger: logger, now: time.Now}
}

// Add registers another sink.
func (c *Center) Add(s Sink) {
	c.mu.Lock()
	c.sinks = append(c.sinks, s)
	c.mu.Unlock()
}

func (c *Center) Notify(ctx context.Context, level Level, text string) {
	n := Note{Level: level, Text: text, At: c.now()}
	c.mu.RLock()
	sinks := c.sinks
	c.mu.RUnlock()
	for _, s := range sinks {
		if err := s.Deliver(ctx, n); err != nil {
			c.logger.Warn("notification sink failed", "error", err, "level", level)
		}
	}
}

func (c *Center) Info(ctx context.Context, text string) { c.Notify(ctx, LevelInfo, text) }

func (c *Center) Success(ctx context.Context, text string) { c.Notify(ctx, LevelSuccess, text) }

func (c *Center) Error(ctx context.Context, text string) { c.Notify(ctx, LevelError, text) }

// Failure surfaces err. A backend error yields one note per message, so a
// transport failure shows a single generic line and a validation failure
// shows one line per field error.
func (c *Center) Failure(ctx context.Context, err error) {
	if err == nil {
		return
	}
	for _, msg := range backend.Messages(err) {
		c.Error(ctx, msg)
	}
}

// Realtime adapts the center to the realtime channel's notifier.
func (c *Center) Realtime() *RealtimeNotifier {
	return &RealtimeNotifier{center: c}
}

// RealtimeNotifier reports channel lifecycle as informational notes.
type RealtimeNotifier struct {
	center *Center
}

func (r *RealtimeNotifier) Opened() {
	r.center.Success(context.Background(), "Realtime connection established")
}

func (r *RealtimeNotifier) Failed(err error) {
	r.center.Error(context.Background(), fmt.Sprintf("Realtime connection lost: %v", err))
}

func (r *RealtimeNotifier) Message(text string) {
	r.center.Info(context.Background(), text)
}
