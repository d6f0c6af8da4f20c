// Package server manages individual WebSocket clients, handling read/write
// pumps, rate limiting, and lifecycle control for each connection.
package server

import (
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Tyrowin/lanchat/internal/presence"
)

const (
	sendBufferSize = 256
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	writeWait      = 10 * time.Second
)

// Client is one WebSocket connection. The hub owns closed and send; the
// pumps only read from them.
type Client struct {
	id             presence.ConnectionID
	conn           *websocket.Conn
	send           chan []byte
	hub            *Hub
	addr           string
	closed         bool
	maxMessageSize int64
	limiter        *rateLimiter
	rateLimit      RateLimitConfig
	log            *slog.Logger
}

// NewClient wraps conn with a fresh connection id and the active limits.
func NewClient(conn *websocket.Conn, hub *Hub, addr string) *Client {
	cfg := currentConfig()
	if conn != nil {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}
	id := presence.ConnectionID(uuid.NewString())

	log := slog.Default()
	if hub != nil {
		log = hub.log
	}

	return &Client{
		id:             id,
		conn:           conn,
		send:           make(chan []byte, sendBufferSize),
		hub:            hub,
		addr:           addr,
		maxMessageSize: cfg.MaxMessageSize,
		limiter:        newRateLimiter(cfg.RateLimit.Burst, cfg.RateLimit.RefillInterval),
		rateLimit:      cfg.RateLimit,
		log:            log.With("conn_id", id, "addr", addr),
	}
}

// ID returns the connection id assigned at upgrade time.
func (c *Client) ID() presence.ConnectionID { return c.id }

// GetSendChan returns the client's outbound queue.
func (c *Client) GetSendChan() <-chan []byte {
	return c.send
}

func (c *Client) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.log.Warn("client.read_deadline_failed", "err", err)
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
}

// logReadError classifies why the read loop ended.
func (c *Client) logReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		c.log.Warn("client.message_too_large", "limit", c.maxMessageSize)
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived):
		c.log.Info("client.disconnected", "reason", err)
	case errors.Is(err, io.EOF), isExpectedCloseError(err):
		c.log.Info("client.connection_closed", "reason", err)
	case websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure):
		c.log.Warn("client.unexpected_close", "err", err)
	default:
		c.log.Warn("client.read_failed", "err", err)
	}
}

// allow applies the rate limit. Join is never limited so a throttled client
// can still announce itself.
func (c *Client) allow(event string) bool {
	if event == EventJoin || c.limiter == nil {
		return true
	}
	if c.limiter.allow() {
		return true
	}
	c.log.Warn("client.rate_limited", "event", event,
		"burst", c.rateLimit.Burst, "interval", c.rateLimit.RefillInterval)
	if c.hub != nil {
		c.hub.metrics.rateLimited.Inc()
	}
	return false
}

// processMessage decodes one frame and forwards it to the hub. Malformed
// frames are dropped; they never end the connection.
func (c *Client) processMessage(raw []byte) bool {
	env, err := DecodeEnvelope(raw)
	if err != nil {
		c.log.Debug("client.invalid_frame", "err", err)
		return false
	}
	if !c.allow(env.Event) {
		return false
	}
	c.hub.dispatch(c, env)
	return true
}

// readPump runs until the transport fails. Its deferred leave is the only
// teardown signal and is never skipped.
func (c *Client) readPump() {
	defer func() {
		c.hub.leave(c)
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			c.log.Warn("client.close_failed", "err", err)
		}
	}()

	c.setupReadConnection()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			c.logReadError(err)
			return
		}
		c.processMessage(raw)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			c.log.Warn("client.close_failed", "err", err)
		}
	}()

	for {
		select {
		case message, ok := <-c.send:
			if !c.write(message, ok) {
				return
			}
		case <-ticker.C:
			if !c.ping() {
				return
			}
		}
	}
}

// write sends message plus whatever else is queued as one newline-separated
// text frame. It returns false when the pump should stop.
func (c *Client) write(message []byte, ok bool) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.log.Warn("client.write_deadline_failed", "err", err)
		return false
	}

	if !ok {
		// The hub closed the queue
		if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil && !isExpectedCloseError(err) {
			c.log.Debug("client.close_frame_failed", "err", err)
		}
		return false
	}

	w, err := c.conn.NextWriter(websocket.TextMessage)
	if err != nil {
		c.log.Warn("client.writer_failed", "err", err)
		return false
	}
	if _, err := w.Write(message); err != nil {
		c.log.Warn("client.write_failed", "err", err)
		return false
	}

	for n := len(c.send); n > 0; n-- {
		next, open := <-c.send
		if !open {
			break
		}
		if _, err := w.Write([]byte{'\n'}); err != nil {
			c.log.Warn("client.write_failed", "err", err)
			return false
		}
		if _, err := w.Write(next); err != nil {
			c.log.Warn("client.write_failed", "err", err)
			return false
		}
	}

	if err := w.Close(); err != nil {
		c.log.Warn("client.flush_failed", "err", err)
		return false
	}
	return true
}

func (c *Client) ping() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.log.Warn("client.write_deadline_failed", "err", err)
		return false
	}
	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		c.log.Warn("client.ping_failed", "err", err)
		return false
	}
	return true
}
