package race

import (
	"errors"
	"fmt"
)

// Rule error codes. These travel to exactly the offending player, so they are
// stable identifiers rather than prose.
const (
	CodeWrongPhase     = "wrong_phase"
	CodeNotYourTurn    = "not_your_turn"
	CodeBadGear        = "bad_gear"
	CodeBadCards       = "bad_cards"
	CodeCooldownLimit  = "cooldown_limit"
	CodeNoHeat         = "no_heat"
	CodeAlreadyBoosted = "already_boosted"
	CodeNotEligible    = "not_eligible"
	CodeBadDiscard     = "bad_discard"
	CodeBadPlayer      = "bad_player"
)

// RuleError is a validation failure attributable to a single player's intent.
// The engine returns it without touching the input state.
type RuleError struct {
	Player  int
	Code    string
	Message string
}

func (e *RuleError) Error() string {
	return fmt.Sprintf("player %d: %s: %s", e.Player, e.Code, e.Message)
}

func ruleErr(player int, code, format string, args ...any) error {
	return &RuleError{Player: player, Code: code, Message: fmt.Sprintf(format, args...)}
}

// AsRuleError unwraps err into a *RuleError if it is one.
func AsRuleError(err error) (*RuleError, bool) {
	var re *RuleError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}

// ErrRaceFinished is returned by every phase operation once the race is over.
var ErrRaceFinished = errors.New("race is finished")
