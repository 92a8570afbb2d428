package tui

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"github.com/velocity-games/slipstream/internal/server"
)

// Client is the websocket side of the terminal client. Incoming messages
// are delivered to the receive handler on a dedicated goroutine.
type Client struct {
	serverURL string
	conn      *websocket.Conn
	send      chan *server.Message
	onMessage func(*server.Message)
	onClose   func(error)
	logger    *log.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	mu        sync.RWMutex
	connected bool
	closeOnce sync.Once
}

// NewClient creates a client for the given server URL.
func NewClient(serverURL string, logger *log.Logger) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		serverURL: serverURL,
		send:      make(chan *server.Message, 256),
		logger:    logger.WithPrefix("client"),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// OnMessage sets the handler invoked for every server message. Must be set
// before Connect.
func (c *Client) OnMessage(fn func(*server.Message)) { c.onMessage = fn }

// OnClose sets the handler invoked when the connection drops.
func (c *Client) OnClose(fn func(error)) { c.onClose = fn }

// Connect establishes the websocket connection and starts the pumps.
func (c *Client) Connect() error {
	u, err := url.Parse(c.serverURL)
	if err != nil {
		return fmt.Errorf("invalid server URL: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = "/ws"

	c.logger.Info("Connecting to server", "url", u.String())
	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	go c.readPump()
	go c.writePump()
	return nil
}

// Disconnect closes the connection.
func (c *Client) Disconnect() error {
	c.closeOnce.Do(func() {
		c.cancel()
		c.mu.Lock()
		if c.conn != nil {
			_ = c.conn.Close()
			c.connected = false
		}
		c.mu.Unlock()
		c.logger.Info("Disconnected from server")
	})
	return nil
}

// IsConnected reports whether the connection is up.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// Send queues a message for the server.
func (c *Client) Send(messageType server.MessageType, data any) error {
	msg, err := server.NewMessage(messageType, data)
	if err != nil {
		return err
	}
	select {
	case c.send <- msg:
		return nil
	case <-c.ctx.Done():
		return c.ctx.Err()
	default:
		return fmt.Errorf("send buffer full")
	}
}

// Hello identifies the player, optionally resuming a previous identity.
func (c *Client) Hello(name, resumeToken string) error {
	return c.Send(server.MessageTypeHello, server.HelloData{PlayerName: name, ResumeToken: resumeToken})
}

// JoinRoom requests a seat in the named room. Empty joins the default room.
func (c *Client) JoinRoom(room string) error {
	return c.Send(server.MessageTypeJoinRoom, server.JoinRoomData{Room: room})
}

// Action sends a game action with its payload.
func (c *Client) Action(messageType server.MessageType, data server.GameActionData) error {
	return c.Send(messageType, data)
}

func (c *Client) readPump() {
	for {
		var msg server.Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			c.mu.Lock()
			c.connected = false
			c.mu.Unlock()
			if c.ctx.Err() == nil && c.onClose != nil {
				c.onClose(err)
			}
			return
		}
		c.logger.Debug("Received message", "type", msg.Type)
		if c.onMessage != nil {
			c.onMessage(&msg)
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg := <-c.send:
			if err := c.conn.WriteJSON(msg); err != nil {
				c.logger.Error("Failed to send message", "error", err)
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}
