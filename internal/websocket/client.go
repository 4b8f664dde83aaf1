package websocket

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	ws "github.com/coder/websocket"
	"github.com/google/uuid"
)

const (
	sendBufferSize = 16
	pingInterval   = 30 * time.Second
)

// Client is one dashboard subscribed to the allocation topic.
type Client struct {
	id     string
	user   string
	hub    *Hub
	conn   *ws.Conn
	send   chan []byte
	logger *slog.Logger

	delivered atomic.Int64
	dropped   atomic.Int64
}

func NewClient(hub *Hub, conn *ws.Conn, user string, logger *slog.Logger) *Client {
	id := uuid.NewString()
	return &Client{
		id:     id,
		user:   user,
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		logger: logger.With("conn_id", id, "user", user),
	}
}

func (c *Client) ID() string { return c.id }

// Delivered counts realtime envelopes written to the peer.
func (c *Client) Delivered() int64 { return c.delivered.Load() }

// Dropped counts envelopes discarded because the send buffer was full.
func (c *Client) Dropped() int64 { return c.dropped.Load() }

// Run subscribes the client to hub broadcasts and blocks until the
// connection closes.
func (c *Client) Run(ctx context.Context) {
	c.hub.Register(c)
	defer c.hub.Unregister(c)
	c.logger.Info("allocation subscriber connected", "subscribers", c.hub.ClientCount())

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go c.writePump(ctx)
	c.readPump(ctx)
	c.logger.Info("allocation subscriber gone", "delivered", c.Delivered(), "dropped", c.Dropped())
}

// readPump drains inbound frames. Dashboards only listen on the allocation
// topic, so anything they send is ignored.
func (c *Client) readPump(ctx context.Context) {
	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			return
		}
		c.logger.Debug("ignoring inbound frame", "bytes", len(data))
	}
}

// writePump forwards envelopes and pings so dead dashboards are noticed.
// A closed send channel means the hub let go of the client; the peer gets a
// normal close and reconnects on its own schedule.
func (c *Client) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				c.conn.Close(ws.StatusNormalClosure, "")
				return
			}
			if err := c.conn.Write(ctx, ws.MessageText, msg); err != nil {
				c.logger.Debug("write envelope", "error", err)
				return
			}
			c.delivered.Add(1)
		case <-ticker.C:
			if err := c.conn.Ping(ctx); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
