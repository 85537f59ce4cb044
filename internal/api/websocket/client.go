package websocket

import (
	"context"
	"sync"
	"time"

	"github.com/fortuna/clio/internal/jobs"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBufferSize = 256
)

// Client message types.
const (
	MessageSubscribe   = "subscribe"
	MessageUnsubscribe = "unsubscribe"
)

// ClientMessage is sent by subscribers to narrow the event stream.
type ClientMessage struct {
	Type  string `json:"type"`
	JobID string `json:"job_id,omitempty"`
}

// Client represents a WebSocket client connection
type Client struct {
	ID   string
	Send chan jobs.Event

	conn   *websocket.Conn
	hub    *Hub
	logger *zap.Logger

	// jobID filters events to one job; empty means every job.
	jobID   string
	jobIDMu sync.RWMutex
}

// NewClient creates a new client instance
func NewClient(id string, conn *websocket.Conn, hub *Hub, logger *zap.Logger) *Client {
	return &Client{
		ID:     id,
		Send:   make(chan jobs.Event, sendBufferSize),
		conn:   conn,
		hub:    hub,
		logger: logger,
	}
}

// ReadPump reads subscription messages until the connection closes.
func (c *Client) ReadPump(ctx context.Context) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if ctx.Err() != nil {
			return
		}

		var msg ClientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn("unexpected close", zap.String("client_id", c.ID), zap.Error(err))
			}
			return
		}

		switch msg.Type {
		case MessageSubscribe:
			c.SetJobFilter(msg.JobID)
		case MessageUnsubscribe:
			c.SetJobFilter("")
		}
	}
}

// WritePump writes queued events and keepalive pings to the connection.
func (c *Client) WritePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case e, ok := <-c.Send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(e); err != nil {
				c.logger.Warn("write error", zap.String("client_id", c.ID), zap.Error(err))
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// TrySend queues an event without blocking. It returns false when the
// client's buffer is full.
func (c *Client) TrySend(e jobs.Event) bool {
	select {
	case c.Send <- e:
		return true
	default:
		return false
	}
}

// SetJobFilter restricts the client to one job's events.
func (c *Client) SetJobFilter(jobID string) {
	c.jobIDMu.Lock()
	defer c.jobIDMu.Unlock()
	c.jobID = jobID
}

// Matches reports whether the event passes the client's filter.
func (c *Client) Matches(e jobs.Event) bool {
	c.jobIDMu.RLock()
	defer c.jobIDMu.RUnlock()
	return c.jobID == "" || c.jobID == e.JobID
}
