package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"
)

// Server accepts websocket clients and routes their messages to rooms.
type Server struct {
	addr     string
	upgrader websocket.Upgrader
	registry *Registry
	logger   *log.Logger

	mu          sync.RWMutex
	connections map[*Connection]bool
}

// NewServer creates a websocket server over the given registry.
func NewServer(addr string, registry *Registry, logger *log.Logger) *Server {
	return &Server{
		addr: addr,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// For development, allow all origins
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		registry:    registry,
		logger:      logger.WithPrefix("server"),
		connections: make(map[*Connection]bool),
	}
}

// Run serves until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)

	httpServer := &http.Server{Addr: s.addr, Handler: mux}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("Starting WebSocket server", "addr", s.addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		s.logger.Info("Shutting down")
		s.closeAll()
		s.registry.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func (s *Server) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.connections {
		_ = conn.Close()
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("Failed to upgrade connection", "error", err)
		return
	}

	client := NewConnection(conn, s, s.logger)

	s.mu.Lock()
	s.connections[client] = true
	total := len(s.connections)
	s.mu.Unlock()
	s.logger.Info("Client connected", "handle", client.ID()[:8], "total", total)

	client.Start()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "OK")
}

// HandleMessage implements Handler for client traffic.
func (s *Server) HandleMessage(c *Connection, msg *Message) {
	switch {
	case msg.Type == MessageTypeHello:
		s.handleHello(c, msg)
	case msg.Type == MessageTypeJoinRoom:
		s.handleJoinRoom(c, msg)
	case msg.Type.IsGameAction():
		s.handleGameAction(c, msg)
	default:
		c.SendError("unknown_type", fmt.Sprintf("unknown message type %q", msg.Type))
	}
}

// HandleClose implements Handler. The bound room decides whether the close
// is current or stale.
func (s *Server) HandleClose(c *Connection) {
	s.mu.Lock()
	delete(s.connections, c)
	total := len(s.connections)
	s.mu.Unlock()
	s.logger.Info("Client disconnected", "handle", c.ID()[:8], "total", total)

	if room, _ := c.Binding(); room != nil {
		room.ConnectionClosed(c)
	}
}

func (s *Server) handleHello(c *Connection, msg *Message) {
	var data HelloData
	if err := json.Unmarshal(msg.Data, &data); err != nil {
		c.SendError("bad_payload", "invalid hello payload")
		return
	}
	if data.PlayerName == "" && data.ResumeToken == "" {
		c.SendError("bad_payload", "hello requires a player name")
		return
	}

	playerID, token := s.registry.Identify(data.PlayerName, data.ResumeToken)
	c.SetPlayer(playerID, data.PlayerName)

	reply, err := NewMessage(MessageTypeWelcome, WelcomeData{PlayerID: playerID, ResumeToken: token})
	if err != nil {
		s.logger.Error("Failed to build welcome message", "error", err)
		return
	}
	_ = c.Send(reply)
}

func (s *Server) handleJoinRoom(c *Connection, msg *Message) {
	if c.Player() == "" {
		c.SendError("not_identified", "send hello before joining a room")
		return
	}
	var data JoinRoomData
	if err := json.Unmarshal(msg.Data, &data); err != nil {
		c.SendError("bad_payload", "invalid join payload")
		return
	}
	room := s.registry.Room(data.Room)
	if room == nil {
		c.SendError("room_not_found", fmt.Sprintf("room %q not found", data.Room))
		return
	}
	room.Join(c)
}

func (s *Server) handleGameAction(c *Connection, msg *Message) {
	room, _ := c.Binding()
	if room == nil {
		c.SendError("not_in_room", "join a room before sending actions")
		return
	}
	var data GameActionData
	if len(msg.Data) > 0 {
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.SendError("bad_payload", "invalid action payload")
			return
		}
	}
	room.HandleGameAction(c, msg.Type, data)
}
