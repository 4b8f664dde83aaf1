package realtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	ws "github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
)

// DefaultReconnectDelay is the fixed wait between a close and the next dial.
const DefaultReconnectDelay = 10 * time.Second

var errClosed = errors.New("realtime connection closed")

// TokenSource supplies the bearer credential sent on every dial.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

type Config struct {
	URL            string
	ReconnectDelay time.Duration
}

// Channel keeps one websocket open to the allocation topic and republishes
// every inbound event on a Bus. After any close it waits ReconnectDelay and
// dials again, forever, until its context is cancelled.
type Channel struct {
	cfg      Config
	tokens   TokenSource
	bus      *Bus
	notifier Notifier
	logger   *slog.Logger

	attempts  atomic.Int64
	connected atomic.Bool
}

func NewChannel(cfg Config, tokens TokenSource, bus *Bus, notifier Notifier, logger *slog.Logger) *Channel {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = DefaultReconnectDelay
	}
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &Channel{
		cfg:      cfg,
		tokens:   tokens,
		bus:      bus,
		notifier: notifier,
		logger:   logger,
	}
}

// Attempts returns how many dials have been started.
func (c *Channel) Attempts() int {
	return int(c.attempts.Load())
}

func (c *Channel) Connected() bool {
	return c.connected.Load()
}

// Run blocks until ctx is cancelled.
func (c *Channel) Run(ctx context.Context) error {
	backoff := retry.NewConstant(c.cfg.ReconnectDelay)
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := c.connect(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err == nil {
			err = errClosed
		}
		c.logger.Info("realtime channel closed", "error", err, "retry_in", c.cfg.ReconnectDelay)
		return retry.RetryableError(err)
	})
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func (c *Channel) connect(ctx context.Context) error {
	c.attempts.Add(1)
	logger := c.logger.With("conn_id", uuid.NewString())

	header := http.Header{}
	if c.tokens != nil {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			c.notifier.Failed(err)
			return fmt.Errorf("realtime token: %w", err)
		}
		header.Set("Authorization", "Bearer "+token)
	}

	conn, resp, err := ws.Dial(ctx, c.cfg.URL, &ws.DialOptions{HTTPHeader: header})
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			// The next dial logs in again instead of resending a refused token.
			if inv, ok := c.tokens.(interface{ Invalidate() }); ok {
				inv.Invalidate()
			}
		}
		if ctx.Err() == nil {
			c.notifier.Failed(err)
		}
		return fmt.Errorf("dial %s: %w", c.cfg.URL, err)
	}
	defer conn.CloseNow()

	c.connected.Store(true)
	defer c.connected.Store(false)
	logger.Info("realtime channel open", "url", c.cfg.URL)
	c.notifier.Opened()

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() == nil && ws.CloseStatus(err) != ws.StatusNormalClosure {
				c.notifier.Failed(err)
			}
			return fmt.Errorf("read: %w", err)
		}
		c.dispatch(logger, data)
	}
}

func (c *Channel) dispatch(logger *slog.Logger, data []byte) {
	ev, err := Parse(data)
	if err != nil {
		logger.Warn("discarding realtime message", "error", err)
		return
	}
	n := c.bus.Publish(ev)
	logger.Debug("realtime event", "topic", ev.Topic, "subscribers", n)
	if ev.Topic == TopicAllocationProcess && ev.Message != "" {
		c.notifier.Message(ev.Message)
	}
}
