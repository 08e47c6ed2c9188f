package server

import (
	"errors"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Tyrowin/tourneychat/internal/chat"
)

const (
	sendQueueSize = 256
	pongWait      = 60 * time.Second
	pingPeriod    = 54 * time.Second
	writeWait     = 10 * time.Second
)

// Client is one authenticated WebSocket connection. Its identity is fixed at
// handshake and never taken from client payloads.
type Client struct {
	id       string
	identity chat.Identity
	conn     *websocket.Conn
	send     chan []byte
	hub      *Hub
	gateway  *Gateway
	addr     string
	limiter  *rateLimiter
	logger   *zap.Logger

	mu     sync.Mutex
	closed bool
	rooms  map[string]struct{}
}

var (
	_ chat.Subscriber = (*Client)(nil)
	_ chat.RoomCloser = (*Client)(nil)
)

// NewClient creates a Client for an upgraded connection.
func NewClient(conn *websocket.Conn, gw *Gateway, identity chat.Identity, addr string) *Client {
	id := uuid.NewString()
	if conn != nil {
		conn.SetReadLimit(gw.cfg.MaxMessageSize)
	}
	return &Client{
		id:       id,
		identity: identity,
		conn:     conn,
		send:     make(chan []byte, sendQueueSize),
		hub:      gw.hub,
		gateway:  gw,
		addr:     addr,
		limiter:  newRateLimiter(gw.cfg.RateLimit.Burst, gw.cfg.RateLimit.RefillInterval, gw.clock),
		logger: gw.logger.With(
			zap.String("conn_id", id),
			zap.String("user_id", identity.UserID),
			zap.String("remote_addr", addr)),
		rooms: make(map[string]struct{}),
	}
}

func (c *Client) ID() string              { return c.id }
func (c *Client) Identity() chat.Identity { return c.identity }

// Deliver enqueues frame for the write pump. A full queue closes the
// connection, since a client that cannot keep up would otherwise stall its
// rooms.
func (c *Client) Deliver(frame []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- frame:
		return true
	default:
		c.logger.Warn("send queue full, closing connection")
		c.closeSendLocked()
		return false
	}
}

// RoomClosed forgets a room evicted by the sweeper.
func (c *Client) RoomClosed(tournamentID string) {
	c.mu.Lock()
	delete(c.rooms, tournamentID)
	c.mu.Unlock()
}

// Rooms returns the tournament ids the connection is subscribed to.
func (c *Client) Rooms() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.rooms))
	for id := range c.rooms {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (c *Client) addRoom(tournamentID string) {
	c.mu.Lock()
	c.rooms[tournamentID] = struct{}{}
	c.mu.Unlock()
}

func (c *Client) removeRoom(tournamentID string) {
	c.mu.Lock()
	delete(c.rooms, tournamentID)
	c.mu.Unlock()
}

// closeSend closes the send channel once; the write pump then sends a close
// frame and tears the connection down.
func (c *Client) closeSend() {
	c.mu.Lock()
	c.closeSendLocked()
	c.mu.Unlock()
}

func (c *Client) closeSendLocked() {
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// setupReadConnection configures read deadlines and pong handler for the WebSocket connection
func (c *Client) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Warn("set initial read deadline", zap.Error(err))
	}
	c.conn.SetPongHandler(func(string) error {
		if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			c.logger.Warn("set read deadline in pong handler", zap.Error(err))
		}
		return nil
	})
}

// handleReadError logs the read failure at a level matching its cause. Every
// read error ends the read loop.
func (c *Client) handleReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		c.logger.Warn("message exceeded maximum size", zap.Int64("max_bytes", c.gateway.cfg.MaxMessageSize))
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure):
		c.logger.Debug("client disconnected", zap.Error(err))
	case errors.Is(err, io.EOF) || isExpectedCloseError(err):
		c.logger.Debug("connection closed", zap.Error(err))
	case websocket.IsUnexpectedCloseError(err,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure,
		websocket.CloseMessageTooBig):
		c.logger.Warn("unexpected websocket close", zap.Error(err))
	default:
		c.logger.Warn("websocket read error", zap.Error(err))
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.leave(c)
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			c.logger.Warn("close connection in readPump", zap.Error(err))
		}
	}()

	c.setupReadConnection()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			c.handleReadError(err)
			return
		}

		if !c.limiter.allow() {
			c.logger.Debug("rate limit exceeded; discarding event",
				zap.Int("burst", c.gateway.cfg.RateLimit.Burst),
				zap.Duration("refill_interval", c.gateway.cfg.RateLimit.RefillInterval))
			c.gateway.reportError(c, "", chat.ValidationError("rate limit exceeded"))
			continue
		}

		c.gateway.dispatch(c, raw)
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

func (c *Client) closeConnection() {
	if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
		c.logger.Warn("close connection in writePump", zap.Error(err))
	}
}

// handleMessage processes outgoing messages and returns false if the connection should be closed
func (c *Client) handleMessage(message []byte, ok bool) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Warn("set write deadline", zap.Error(err))
		return false
	}
	if !ok {
		return c.writeCloseMessage()
	}
	return c.writeTextMessage(message)
}

func (c *Client) writeCloseMessage() bool {
	if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil && !isExpectedCloseError(err) {
		c.logger.Debug("write close message", zap.Error(err))
	}
	return false
}

// writeTextMessage writes a frame followed by any frames already queued,
// separated by newlines, in a single WebSocket message.
func (c *Client) writeTextMessage(message []byte) bool {
	w, err := c.conn.NextWriter(websocket.TextMessage)
	if err != nil {
		c.logger.Debug("create writer", zap.Error(err))
		return false
	}
	if _, err := w.Write(message); err != nil {
		c.logger.Debug("write message", zap.Error(err))
		return false
	}
	if !c.writeQueuedMessages(w) {
		return false
	}
	if err := w.Close(); err != nil {
		c.logger.Debug("close writer", zap.Error(err))
		return false
	}
	return true
}

func (c *Client) writeQueuedMessages(w io.Writer) bool {
	n := len(c.send)
	for i := 0; i < n; i++ {
		next, ok := <-c.send
		if !ok {
			return true
		}
		if _, err := w.Write([]byte{'\n'}); err != nil {
			c.logger.Debug("write separator", zap.Error(err))
			return false
		}
		if _, err := w.Write(next); err != nil {
			c.logger.Debug("write queued message", zap.Error(err))
			return false
		}
	}
	return true
}

// handlePing sends a ping message to keep the connection alive
func (c *Client) handlePing() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Debug("set write deadline for ping", zap.Error(err))
		return false
	}
	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		c.logger.Debug("write ping", zap.Error(err))
		return false
	}
	return true
}
