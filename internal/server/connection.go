package server

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 16384
)

var ErrConnectionClosed = websocket.ErrCloseSent

// Handler receives decoded messages and close notifications from a
// connection's read pump.
type Handler interface {
	HandleMessage(c *Connection, msg *Message)
	HandleClose(c *Connection)
}

// Connection is one versioned websocket handle. Every accept mints a fresh
// ID, so a close notification can always be matched against the handle it
// belongs to: a close for a superseded handle is stale and must be ignored.
type Connection struct {
	id      string
	conn    *websocket.Conn
	send    chan *Message
	handler Handler
	logger  *log.Logger
	ctx     context.Context
	cancel  context.CancelFunc

	mu         sync.RWMutex
	playerID   string
	playerName string
	room       *Room
	seat       int

	closeOnce sync.Once
}

// NewConnection wraps an upgraded websocket.
func NewConnection(conn *websocket.Conn, handler Handler, logger *log.Logger) *Connection {
	ctx, cancel := context.WithCancel(context.Background())
	id := uuid.NewString()
	return &Connection{
		id:      id,
		conn:    conn,
		send:    make(chan *Message, 256),
		handler: handler,
		logger:  logger.WithPrefix("conn").With("handle", id[:8]),
		ctx:     ctx,
		cancel:  cancel,
		seat:    -1,
	}
}

// ID returns the handle id minted for this accept.
func (c *Connection) ID() string { return c.id }

// Start begins handling the connection.
func (c *Connection) Start() {
	go c.writePump()
	go c.readPump()
}

// Close closes the connection.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		close(c.send)
		err = c.conn.Close()
	})
	return err
}

// Send queues a message for the client. A full buffer closes the connection
// rather than blocking the room loop.
func (c *Connection) Send(msg *Message) error {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Debug("Send on closed connection", "error", r)
		}
	}()

	select {
	case c.send <- msg:
		return nil
	case <-c.ctx.Done():
		return c.ctx.Err()
	default:
		c.logger.Warn("Connection send buffer full, closing connection")
		_ = c.Close()
		return ErrConnectionClosed
	}
}

// SendError is a convenience for the error envelope.
func (c *Connection) SendError(code, message string) {
	msg, err := NewMessage(MessageTypeError, ErrorData{Code: code, Message: message})
	if err != nil {
		c.logger.Error("Failed to build error message", "error", err)
		return
	}
	_ = c.Send(msg)
}

// SetPlayer associates this handle with a durable player identity.
func (c *Connection) SetPlayer(playerID, name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.playerID = playerID
	c.playerName = name
}

// Player returns the associated durable player id.
func (c *Connection) Player() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.playerID
}

// PlayerName returns the display name given at identification.
func (c *Connection) PlayerName() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.playerName
}

// Bind associates this handle with a room seat once the join succeeds.
func (c *Connection) Bind(room *Room, seat int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.room = room
	c.seat = seat
}

// Binding returns the room and seat this handle is bound to, if any.
func (c *Connection) Binding() (*Room, int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.room, c.seat
}

func (c *Connection) readPump() {
	defer func() {
		c.handler.HandleClose(c)
		_ = c.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("WebSocket error", "error", err)
			}
			return
		}
		c.handler.HandleMessage(c, &msg)
	}
}

func (c *Connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(message); err != nil {
				c.logger.Error("Failed to write message", "error", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}
