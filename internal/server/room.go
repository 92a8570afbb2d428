package server

import (
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/google/uuid"
	"github.com/velocity-games/slipstream/internal/race"
)

// RoomConfig describes one race room.
type RoomConfig struct {
	Name        string
	Track       race.Track
	MaxPlayers  int
	LapTarget   int
	Mode        race.Mode
	Seed        int64
	TurnTimeout time.Duration
	Weather     *race.Weather
	Roads       []race.RoadCondition
}

type roomSeat struct {
	playerID string
	name     string
	conn     *Connection // nil while disconnected
}

// Room owns one race session. All mutable room state (seats, controller,
// pending actions inside the controller) is confined to the room's event
// loop; connections and timers post closures into it.
type Room struct {
	id     string
	cfg    RoomConfig
	logger *log.Logger
	clock  quartz.Clock

	commands  chan func()
	done      chan struct{}
	closeOnce sync.Once

	seats      []*roomSeat
	controller *Controller
}

// NewRoom creates a room and starts its event loop.
func NewRoom(cfg RoomConfig, clock quartz.Clock, logger *log.Logger) *Room {
	r := &Room{
		id:       uuid.NewString(),
		cfg:      cfg,
		logger:   logger.WithPrefix("room").With("room", cfg.Name),
		clock:    clock,
		commands: make(chan func(), 64),
		done:     make(chan struct{}),
	}
	go r.run()
	return r
}

// ID returns the room's unique id.
func (r *Room) ID() string { return r.id }

// Name returns the configured room name.
func (r *Room) Name() string { return r.cfg.Name }

// Close stops the room's event loop.
func (r *Room) Close() {
	r.closeOnce.Do(func() { close(r.done) })
}

func (r *Room) run() {
	for {
		select {
		case f := <-r.commands:
			f()
		case <-r.done:
			return
		}
	}
}

// post serializes f into the room's event loop.
func (r *Room) post(f func()) {
	select {
	case r.commands <- f:
	case <-r.done:
	}
}

// Join seats the connection's player, or resumes their seat if they already
// hold one. The race starts once the room is full.
func (r *Room) Join(conn *Connection) {
	r.post(func() { r.join(conn) })
}

func (r *Room) join(conn *Connection) {
	playerID := conn.Player()
	if playerID == "" {
		conn.SendError("not_identified", "send hello before joining a room")
		return
	}

	// Reconnect: the player already holds a seat. The new handle supersedes
	// the old one; the old handle's close notification is stale from here on.
	for idx, seat := range r.seats {
		if seat.playerID != playerID {
			continue
		}
		old := seat.conn
		seat.conn = conn
		conn.Bind(r, idx)
		if old != nil && old != conn {
			r.logger.Info("Connection superseded", "seat", idx, "old", old.ID()[:8], "new", conn.ID()[:8])
			_ = old.Close()
		}
		r.sendRoomJoined(conn, idx)
		if r.controller != nil {
			r.controller.HandleReconnect(idx)
		}
		return
	}

	if r.controller != nil {
		conn.SendError("race_in_progress", "race already started")
		return
	}
	if len(r.seats) >= r.cfg.MaxPlayers {
		conn.SendError("room_full", fmt.Sprintf("room %s is full", r.cfg.Name))
		return
	}

	idx := len(r.seats)
	r.seats = append(r.seats, &roomSeat{playerID: playerID, name: conn.PlayerName(), conn: conn})
	conn.Bind(r, idx)
	r.logger.Info("Player joined", "seat", idx, "players", len(r.seats), "max", r.cfg.MaxPlayers)
	for i, seat := range r.seats {
		if seat.conn != nil {
			r.sendRoomJoined(seat.conn, i)
		}
	}

	if len(r.seats) == r.cfg.MaxPlayers {
		r.startRace()
	}
}

func (r *Room) sendRoomJoined(conn *Connection, seat int) {
	players := make([]string, len(r.seats))
	for i, s := range r.seats {
		players[i] = s.name
	}
	msg, err := NewMessage(MessageTypeRoomJoined, RoomJoinedData{
		RoomID:  r.id,
		Room:    r.cfg.Name,
		Seat:    seat,
		Players: players,
		Track:   r.cfg.Track.Name,
	})
	if err != nil {
		r.logger.Error("Failed to build room joined message", "error", err)
		return
	}
	_ = conn.Send(msg)
}

func (r *Room) startRace() {
	players := make([]string, len(r.seats))
	for i, seat := range r.seats {
		players[i] = seat.name
	}
	seed := r.cfg.Seed
	if seed == 0 {
		seed = r.clock.Now().UnixNano()
	}
	state, err := race.NewRace(race.Config{
		Players:   players,
		Track:     r.cfg.Track,
		Seed:      seed,
		LapTarget: r.cfg.LapTarget,
		Mode:      r.cfg.Mode,
		Weather:   r.cfg.Weather,
		Roads:     r.cfg.Roads,
	})
	if err != nil {
		r.logger.Error("Failed to initialize race", "error", err)
		for _, seat := range r.seats {
			if seat.conn != nil {
				seat.conn.SendError("race_init_failed", err.Error())
			}
		}
		return
	}

	r.logger.Info("Race starting", "track", r.cfg.Track.Name, "players", len(players), "seed", seed, "laps", r.cfg.LapTarget)
	r.controller = NewController(state, r, ControllerConfig{
		Clock:       r.clock,
		TurnTimeout: r.cfg.TurnTimeout,
		Connected:   r.seatConnected,
		Post:        r.post,
		Logger:      r.logger,
	})
	r.controller.Start()
}

func (r *Room) seatConnected(seat int) bool {
	if seat < 0 || seat >= len(r.seats) {
		return false
	}
	return r.seats[seat].conn != nil
}

// SendToSeat implements Sink over the seat's live connection, if any.
func (r *Room) SendToSeat(seat int, msg *Message) {
	if seat < 0 || seat >= len(r.seats) {
		return
	}
	if conn := r.seats[seat].conn; conn != nil {
		_ = conn.Send(msg)
	}
}

// HandleGameAction routes a player intent into the controller. Actions from
// a superseded handle are dropped.
func (r *Room) HandleGameAction(conn *Connection, typ MessageType, data GameActionData) {
	r.post(func() {
		_, seat := conn.Binding()
		if seat < 0 || seat >= len(r.seats) || r.seats[seat].conn != conn {
			return
		}
		if r.controller == nil {
			conn.SendError("race_not_started", "race has not started yet")
			return
		}
		r.controller.HandleAction(seat, typ, data)
	})
}

// ConnectionClosed processes a close notification. A notification for a
// handle that has already been superseded is stale and ignored, so a quick
// reconnect never counts as a disconnect.
func (r *Room) ConnectionClosed(conn *Connection) {
	r.post(func() {
		_, seat := conn.Binding()
		if seat < 0 || seat >= len(r.seats) {
			return
		}
		if r.seats[seat].conn != conn {
			r.logger.Debug("Ignoring stale close", "seat", seat, "handle", conn.ID()[:8])
			return
		}
		r.seats[seat].conn = nil
		r.logger.Info("Player disconnected", "seat", seat)
		if r.controller != nil {
			r.controller.HandleDisconnect(seat)
		}
	})
}
