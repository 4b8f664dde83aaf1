package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	ws "github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	mu       sync.Mutex
	opened   int
	failed   int
	messages []string
}

func (n *recordingNotifier) Opened() {
	n.mu.Lock()
	n.opened++
	n.mu.Unlock()
}

func (n *recordingNotifier) Failed(error) {
	n.mu.Lock()
	n.failed++
	n.mu.Unlock()
}

func (n *recordingNotifier) Message(text string) {
	n.mu.Lock()
	n.messages = append(n.messages, text)
	n.mu.Unlock()
}

func (n *recordingNotifier) snapshot() (opened, failed int, messages []string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.opened, n.failed, append([]string(nil), n.messages...)
}

type staticToken string

func (s staticToken) Token(context.Context) (string, error) { return string(s), nil }

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

// topicServer accepts a connection, sends the given events, then closes normally.
func topicServer(t *testing.T, accepted *atomic.Int64, auth *atomic.Value, events ...Event) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		accepted.Add(1)
		if auth != nil {
			auth.Store(r.Header.Get("Authorization"))
		}
		conn, err := ws.Accept(w, r, nil)
		if err != nil {
			return
		}
		for _, ev := range events {
			data, _ := json.Marshal(ev)
			if err := conn.Write(r.Context(), ws.MessageText, data); err != nil {
				return
			}
		}
		conn.Close(ws.StatusNormalClosure, "done")
	}))
}

func TestDefaultReconnectDelay(t *testing.T) {
	assert.Equal(t, 10*time.Second, DefaultReconnectDelay)
	c := NewChannel(Config{URL: "ws://example.invalid"}, nil, NewBus(slog.Default()), nil, slog.Default())
	assert.Equal(t, DefaultReconnectDelay, c.cfg.ReconnectDelay)
}

func TestChannelDeliversEventsAndNotifies(t *testing.T) {
	var accepted atomic.Int64
	var auth atomic.Value
	srv := topicServer(t, &accepted, &auth,
		AllocationProcess("Allocation ALC-20261015-0001 is running"),
		AcceptRejectFamily(),
	)
	defer srv.Close()

	bus := NewBus(slog.Default())
	sub := bus.Subscribe()
	defer sub.Close()
	notifier := &recordingNotifier{}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c := NewChannel(Config{URL: wsURL(srv), ReconnectDelay: time.Hour}, staticToken("tok"), bus, notifier, slog.Default())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	var got []Event
	for len(got) < 2 {
		select {
		case ev := <-sub.C():
			got = append(got, ev)
		case <-time.After(2 * time.Second):
			t.Fatalf("timeout, got %d events", len(got))
		}
	}
	assert.Equal(t, TopicAllocationProcess, got[0].Topic)
	assert.Equal(t, TopicAcceptRejectFamily, got[1].Topic)

	require.Eventually(t, func() bool {
		opened, _, messages := notifier.snapshot()
		return opened == 1 && len(messages) == 1
	}, time.Second, 10*time.Millisecond)
	_, _, messages := notifier.snapshot()
	assert.Equal(t, "Allocation ALC-20261015-0001 is running", messages[0])
	assert.Equal(t, "Bearer tok", auth.Load())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestChannelReconnectsAfterCloseWithFixedDelay(t *testing.T) {
	var accepted atomic.Int64
	var mu sync.Mutex
	var stamps []time.Time
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		accepted.Add(1)
		mu.Lock()
		stamps = append(stamps, time.Now())
		mu.Unlock()
		conn, err := ws.Accept(w, r, nil)
		if err != nil {
			return
		}
		conn.Close(ws.StatusNormalClosure, "bye")
	}))
	defer srv.Close()

	const delay = 50 * time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c := NewChannel(Config{URL: wsURL(srv), ReconnectDelay: delay}, nil, NewBus(slog.Default()), nil, slog.Default())
	go c.Run(ctx)

	require.Eventually(t, func() bool { return accepted.Load() >= 4 }, 3*time.Second, 5*time.Millisecond)
	cancel()

	mu.Lock()
	defer mu.Unlock()
	for i := 1; i < len(stamps); i++ {
		gap := stamps[i].Sub(stamps[i-1])
		assert.GreaterOrEqual(t, gap, delay, "reconnect %d came after %v", i, gap)
	}
}

func TestChannelRetriesWhenServerUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := wsURL(srv)
	srv.Close()

	notifier := &recordingNotifier{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c := NewChannel(Config{URL: url, ReconnectDelay: 10 * time.Millisecond}, nil, NewBus(slog.Default()), notifier, slog.Default())
	go c.Run(ctx)

	require.Eventually(t, func() bool { return c.Attempts() >= 3 }, 2*time.Second, 5*time.Millisecond)
	cancel()

	opened, failed, _ := notifier.snapshot()
	assert.Zero(t, opened)
	assert.GreaterOrEqual(t, failed, 3)
	assert.False(t, c.Connected())
}

type invalidatingToken struct {
	dropped atomic.Int64
}

func (s *invalidatingToken) Token(context.Context) (string, error) { return "refused", nil }

func (s *invalidatingToken) Invalidate() { s.dropped.Add(1) }

func TestChannelDropsRefusedToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer srv.Close()

	tokens := &invalidatingToken{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c := NewChannel(Config{URL: wsURL(srv), ReconnectDelay: 10 * time.Millisecond}, tokens, NewBus(slog.Default()), nil, slog.Default())
	go c.Run(ctx)

	require.Eventually(t, func() bool { return tokens.dropped.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)
	assert.False(t, c.Connected())
}

func TestChannelIgnoresMalformedMessages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := ws.Accept(w, r, nil)
		if err != nil {
			return
		}
		conn.Write(r.Context(), ws.MessageText, []byte(`{"type":"mystery"}`))
		conn.Write(r.Context(), ws.MessageText, []byte(`{{{`))
		data, _ := json.Marshal(AcceptRejectFamily())
		conn.Write(r.Context(), ws.MessageText, data)
		conn.Close(ws.StatusNormalClosure, "")
	}))
	defer srv.Close()

	bus := NewBus(slog.Default())
	sub := bus.Subscribe()
	defer sub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go NewChannel(Config{URL: wsURL(srv), ReconnectDelay: time.Hour}, nil, bus, nil, slog.Default()).Run(ctx)

	select {
	case ev := <-sub.C():
		assert.Equal(t, TopicAcceptRejectFamily, ev.Topic)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for valid event")
	}
}
