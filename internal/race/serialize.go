package race

import (
	"encoding/json"
	"fmt"
)

// Marshal serializes the race state to a structured document. The RNG counter
// rides along, so a restored race replays identically.
func Marshal(s *RaceState) ([]byte, error) {
	return json.Marshal(s)
}

// LoadState deserializes a snapshot and performs the minimal validation a
// reconnect/recovery path needs before the state is used.
func LoadState(data []byte) (*RaceState, error) {
	var s RaceState
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decoding race state: %w", err)
	}
	if len(s.Players) == 0 {
		return nil, fmt.Errorf("race state has no players")
	}
	if s.Round < 1 {
		return nil, fmt.Errorf("race state has round %d", s.Round)
	}
	if !validPhase(s.Phase) {
		return nil, fmt.Errorf("race state has unknown phase %q", s.Phase)
	}
	return &s, nil
}
