// Package server manages individual WebSocket clients, handling read/write
// pumps, inbound event dispatch, rate limiting, and lifecycle control for
// each connection.
package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Tyrowin/roomchat/internal/relay"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Client is one WebSocket connection. Its read loop turns frames into
// membership events; its write loop drains the send queue.
type Client struct {
	id             string
	conn           *websocket.Conn
	send           chan []byte
	hub            *Hub
	addr           string
	closed         bool
	maxMessageSize int64
	limiter        *eventLimiter
	dropOnce       sync.Once
	log            *slog.Logger
}

// NewClient creates a Client for conn with a fresh connection id. conn may be
// nil in tests that never start the pumps.
func NewClient(conn *websocket.Conn, hub *Hub, addr string, cfg *Config) *Client {
	if conn != nil {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}
	id := newClientID()

	return &Client{
		id:             id,
		conn:           conn,
		send:           make(chan []byte, cfg.SendBufferSize),
		hub:            hub,
		addr:           addr,
		maxMessageSize: cfg.MaxMessageSize,
		limiter:        newEventLimiter(cfg.RateLimitConfig),
		log:            hub.log.With("conn", id, "remote", addr),
	}
}

// ID returns the connection id.
func (c *Client) ID() string {
	return c.id
}

// GetSendChan returns the client's send channel for reading outgoing frames.
func (c *Client) GetSendChan() <-chan []byte {
	return c.send
}

// drop closes the underlying connection once. The read loop then exits and
// unregisters the client.
func (c *Client) drop(reason string) {
	c.dropOnce.Do(func() {
		c.log.Info("closing connection", "reason", reason)
		if c.conn == nil {
			return
		}
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			c.log.Warn("error closing connection", "err", err)
		}
	})
}

// setupReadConnection configures read deadlines and pong handler for the WebSocket connection
func (c *Client) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.log.Warn("error setting initial read deadline", "err", err)
	}
	c.conn.SetPongHandler(func(string) error {
		if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			c.log.Warn("error setting read deadline in pong handler", "err", err)
		}
		return nil
	})
}

// handleReadError logs the read error by kind. Every read error ends the
// read loop.
func (c *Client) handleReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		c.log.Warn("frame exceeded maximum size", "limit", c.maxMessageSize)
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure):
		c.log.Info("client disconnected", "err", err)
	case errors.Is(err, io.EOF) || isExpectedCloseError(err):
		c.log.Info("client connection closed", "err", err)
	case websocket.IsUnexpectedCloseError(err,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure,
		websocket.CloseMessageTooBig):
		c.log.Warn("unexpected WebSocket close", "err", err)
	default:
		c.log.Warn("WebSocket read error", "err", err)
	}
}

// dispatch decodes one inbound frame and forwards it to the membership.
// Failures are contained to the frame.
func (c *Client) dispatch(frame []byte) {
	env, err := relay.DecodeEnvelope(frame)
	if err != nil {
		c.discard(dropMalformed, err)
		return
	}

	switch env.Event {
	case relay.EventJoin:
		var req relay.JoinRequest
		if err := json.Unmarshal(env.Data, &req); err != nil {
			c.discard(dropMalformed, err)
			return
		}
		if err := c.hub.membership.OnJoin(c.id, req); err != nil {
			c.discard(dropReason(err), err)
		}

	case relay.EventSendMessage:
		msg, err := relay.ParseMessage(env.Data)
		if err != nil {
			c.discard(dropInvalidMessage, err)
			return
		}
		if err := c.hub.membership.Relay(msg); err != nil {
			c.discard(dropReason(err), err)
		}

	default:
		c.discard(dropUnknownEvent, nil, "event", env.Event)
	}
}

func (c *Client) discard(reason string, err error, attrs ...any) {
	c.hub.metrics.Dropped(reason)
	attrs = append(attrs, "reason", reason)
	if err != nil {
		attrs = append(attrs, "err", err)
	}
	c.log.Debug("inbound event dropped", attrs...)
}

func (c *Client) readPump() {
	defer func() {
		c.hub.leave(c)
		if err := c.conn.Close(); err != nil {
			if !isExpectedCloseError(err) {
				c.log.Warn("error closing connection in readPump", "err", err)
			}
		}
	}()

	c.setupReadConnection()

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			c.handleReadError(err)
			return
		}

		if !c.limiter.allow() {
			c.discard(dropRateLimited, nil)
			continue
		}

		c.dispatch(frame)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.closeConnection()
	}()

	for c.processWriteEvent(ticker) {
	}
}

// processWriteEvent waits for the next write event and returns false when the
// pump should stop processing.
func (c *Client) processWriteEvent(ticker *time.Ticker) bool {
	select {
	case message, ok := <-c.send:
		return c.handleMessage(message, ok)
	case <-ticker.C:
		return c.handlePing()
	}
}

// closeConnection safely closes the WebSocket connection with proper error handling
func (c *Client) closeConnection() {
	if err := c.conn.Close(); err != nil {
		if !isExpectedCloseError(err) {
			c.log.Warn("error closing connection in writePump", "err", err)
		}
	}
}

// handleMessage processes outgoing frames and returns false if the connection should be closed
func (c *Client) handleMessage(message []byte, ok bool) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.log.Warn("error setting write deadline", "err", err)
		return false
	}

	if !ok {
		return c.writeCloseMessage()
	}

	return c.writeTextMessage(message)
}

// writeCloseMessage sends a close message to the client
func (c *Client) writeCloseMessage() bool {
	if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
		if !isExpectedCloseError(err) {
			c.log.Warn("error writing close message", "err", err)
		}
	}
	return false
}

// writeTextMessage writes a frame followed by whatever is already queued,
// newline separated, in one WebSocket message.
func (c *Client) writeTextMessage(message []byte) bool {
	w, err := c.conn.NextWriter(websocket.TextMessage)
	if err != nil {
		c.log.Warn("error creating writer", "err", err)
		return false
	}

	if _, err := w.Write(message); err != nil {
		c.log.Warn("error writing frame", "err", err)
		return false
	}

	n := len(c.send)
	for i := 0; i < n; i++ {
		next, ok := <-c.send
		if !ok {
			break
		}
		if _, err := w.Write([]byte{'\n'}); err != nil {
			c.log.Warn("error writing separator", "err", err)
			return false
		}
		if _, err := w.Write(next); err != nil {
			c.log.Warn("error writing queued frame", "err", err)
			return false
		}
	}

	if err := w.Close(); err != nil {
		c.log.Warn("error closing writer", "err", err)
		return false
	}
	return true
}

// handlePing sends a ping message to keep the connection alive
func (c *Client) handlePing() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.log.Warn("error setting write deadline for ping", "err", err)
		return false
	}
	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		c.log.Warn("error writing ping message", "err", err)
		return false
	}
	return true
}
