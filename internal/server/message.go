package server

import (
	"encoding/json"
	"time"

	"github.com/velocity-games/slipstream/internal/race"
)

// Message is the websocket envelope used in both directions.
type Message struct {
	Type      MessageType     `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewMessage wraps a payload with the current timestamp.
func NewMessage(messageType MessageType, data any) (*Message, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &Message{
		Type:      messageType,
		Data:      dataBytes,
		Timestamp: time.Now(),
	}, nil
}

// MessageType identifies a wire message.
type MessageType string

const (
	// Client to server
	MessageTypeHello    MessageType = "hello"
	MessageTypeJoinRoom MessageType = "join_room"

	// Client to server game actions
	MessageTypeGearShift     MessageType = "gear_shift"
	MessageTypePlayCards     MessageType = "play_cards"
	MessageTypeReactCooldown MessageType = "react_cooldown"
	MessageTypeReactBoost    MessageType = "react_boost"
	MessageTypeReactDone     MessageType = "react_done"
	MessageTypeSlipstream    MessageType = "slipstream"
	MessageTypeDiscard       MessageType = "discard"

	// Server to client
	MessageTypeWelcome        MessageType = "welcome"
	MessageTypeRoomJoined     MessageType = "room_joined"
	MessageTypePhaseChanged   MessageType = "phase_changed"
	MessageTypeStateUpdate    MessageType = "state_update"
	MessageTypeActionRejected MessageType = "action_rejected"
	MessageTypeRaceFinished   MessageType = "race_finished"
	MessageTypeError          MessageType = "error"
)

func (mt MessageType) String() string { return string(mt) }

// IsGameAction reports whether the message type is one of the per-phase
// player intents. Recognized game actions that arrive in the wrong phase are
// silently dropped rather than rejected.
func (mt MessageType) IsGameAction() bool {
	switch mt {
	case MessageTypeGearShift, MessageTypePlayCards, MessageTypeReactCooldown,
		MessageTypeReactBoost, MessageTypeReactDone, MessageTypeSlipstream,
		MessageTypeDiscard:
		return true
	}
	return false
}

// phaseFor maps a game action to the only phase it is valid in.
func (mt MessageType) phaseFor() race.Phase {
	switch mt {
	case MessageTypeGearShift:
		return race.PhaseGearShift
	case MessageTypePlayCards:
		return race.PhasePlayCards
	case MessageTypeReactCooldown, MessageTypeReactBoost, MessageTypeReactDone:
		return race.PhaseReact
	case MessageTypeSlipstream:
		return race.PhaseSlipstream
	case MessageTypeDiscard:
		return race.PhaseDiscard
	}
	return ""
}

// Client to server payloads

type HelloData struct {
	PlayerName  string `json:"playerName"`
	ResumeToken string `json:"resumeToken,omitempty"`
}

type JoinRoomData struct {
	Room string `json:"room"`
}

// GameActionData is the shared payload for every game action; only the
// fields the action type needs are read.
type GameActionData struct {
	Gear   int   `json:"gear,omitempty"`
	Cards  []int `json:"cards,omitempty"`
	Accept bool  `json:"accept,omitempty"`
}

// Server to client payloads

type WelcomeData struct {
	PlayerID    string `json:"playerId"`
	ResumeToken string `json:"resumeToken"`
}

type RoomJoinedData struct {
	RoomID  string   `json:"roomId"`
	Room    string   `json:"room"`
	Seat    int      `json:"seat"`
	Players []string `json:"players"`
	Track   string   `json:"track"`
}

type PhaseChangedData struct {
	Phase       race.Phase       `json:"phase"`
	Round       int              `json:"round"`
	View        *race.PlayerView `json:"view"`
	RemainingMs int64            `json:"remainingMs,omitempty"`
}

type StateUpdateData struct {
	View *race.PlayerView `json:"view"`
}

type ActionRejectedData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type RaceFinishedData struct {
	Standings []race.Standing `json:"standings"`
	// LapRounds carries qualifying results, keyed by seat.
	LapRounds map[int][]int `json:"lapRounds,omitempty"`
}

type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
