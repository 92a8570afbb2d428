package server

import (
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/google/uuid"
)

type identity struct {
	id    string
	name  string
	token string
}

// Registry tracks rooms and durable player identities. Identities outlive
// any single connection so a player can resume their seat with the token
// handed out at first contact.
type Registry struct {
	logger *log.Logger
	clock  quartz.Clock

	mu       sync.RWMutex
	rooms    map[string]*Room
	byToken  map[string]*identity
	defaults string
}

// NewRegistry creates an empty registry.
func NewRegistry(clock quartz.Clock, logger *log.Logger) *Registry {
	return &Registry{
		logger:  logger.WithPrefix("registry"),
		clock:   clock,
		rooms:   make(map[string]*Room),
		byToken: make(map[string]*identity),
	}
}

// Identify resolves a hello into a durable identity. A valid resume token
// returns the existing identity; anything else mints a fresh one.
func (r *Registry) Identify(name, token string) (playerID, resumeToken string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if token != "" {
		if ident, ok := r.byToken[token]; ok {
			if name != "" {
				ident.name = name
			}
			return ident.id, ident.token
		}
	}

	ident := &identity{
		id:    uuid.NewString(),
		name:  name,
		token: uuid.NewString(),
	}
	r.byToken[ident.token] = ident
	r.logger.Debug("Identity created", "player", ident.id[:8], "name", name)
	return ident.id, ident.token
}

// AddRoom registers a configured room. The first room added becomes the
// default for joins that name no room.
func (r *Registry) AddRoom(cfg RoomConfig) (*Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.rooms[cfg.Name]; ok {
		return nil, fmt.Errorf("room %q already exists", cfg.Name)
	}
	room := NewRoom(cfg, r.clock, r.logger)
	r.rooms[cfg.Name] = room
	if r.defaults == "" {
		r.defaults = cfg.Name
	}
	r.logger.Info("Room registered", "room", cfg.Name, "track", cfg.Track.Name, "players", cfg.MaxPlayers)
	return room, nil
}

// Room looks up a room by name. An empty name resolves to the default room.
func (r *Registry) Room(name string) *Room {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if name == "" {
		name = r.defaults
	}
	return r.rooms[name]
}

// Close shuts down every room.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, room := range r.rooms {
		room.Close()
	}
}
