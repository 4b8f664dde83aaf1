package notify

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"github.com/dukerupert/foodalloc/internal/store"
)

// LogSink writes notes to a slog logger. Error notes are logged at warn
// level since they are user-facing and recoverable.
func LogSink(logger *slog.Logger) Sink {
	return SinkFunc(func(ctx context.Context, n Note) error {
		level := slog.LevelInfo
		if n.Level == LevelError {
			level = slog.LevelWarn
		}
		logger.Log(ctx, level, n.Text, "notification", string(n.Level))
		return nil
	})
}

// StoreSink persists notes so the console can show a history.
func StoreSink(ns *store.NotificationStore) Sink {
	return SinkFunc(func(_ context.Context, n Note) error {
		_, err := ns.Create(string(n.Level), n.Text)
		return err
	})
}

// Memory keeps notes in memory. Used by interactive sessions and tests.
type Memory struct {
	mu    sync.Mutex
	notes []Note
}

func (m *Memory) Deliver(_ context.Context, n Note) error {
	m.mu.Lock()
	m.notes = append(m.notes, n)
	m.mu.Unlock()
	return nil
}

// Notes returns a copy of everything delivered so far.
func (m *Memory) Notes() []Note {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.notes)
}

// Texts returns the text of every note of the given level.
func (m *Memory) Texts(level Level) []string {
	var out []string
	for _, n := range m.Notes() {
		if n.Level == level {
			out = append(out, n.Text)
		}
	}
	return out
}

func (m *Memory) Reset() {
	m.mu.Lock()
	m.notes = nil
	m.mu.Unlock()
}
