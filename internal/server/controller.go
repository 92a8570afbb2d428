package server

import (
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/velocity-games/slipstream/internal/race"
)

// Sink delivers messages to seats. The room implements it over websocket
// connections; tests implement it in memory.
type Sink interface {
	SendToSeat(seat int, msg *Message)
}

// ControllerConfig wires the controller into its room.
type ControllerConfig struct {
	Clock       quartz.Clock
	TurnTimeout time.Duration
	// Connected reports whether a seat currently has a live connection.
	Connected func(seat int) bool
	// Post re-enters the room's serialized event loop; timer callbacks go
	// through it so the controller's state is never touched concurrently.
	Post   func(func())
	Logger *log.Logger
}

// Controller is the authoritative session orchestrator: it drives the pure
// race engine through phases, collects per-phase actions, substitutes
// defaults for unresponsive players, and recovers from engine failures
// without wedging the session. All methods must be called from the owning
// room's event loop.
type Controller struct {
	state       *race.RaceState
	sink        Sink
	logger      *log.Logger
	clock       quartz.Clock
	turnTimeout time.Duration
	connected   func(seat int) bool
	post        func(func())

	pending    map[int]GameActionData
	phaseGen   int
	timerGen   int
	timer      *quartz.Timer
	armedGen   int
	armedSeat  int
	recoveries int
	finished   bool
}

// NewController wraps an initialized race state.
func NewController(state *race.RaceState, sink Sink, cfg ControllerConfig) *Controller {
	if cfg.Clock == nil {
		cfg.Clock = quartz.NewReal()
	}
	if cfg.Connected == nil {
		cfg.Connected = func(int) bool { return true }
	}
	if cfg.Post == nil {
		cfg.Post = func(f func()) { f() }
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	return &Controller{
		state:       state,
		sink:        sink,
		logger:      cfg.Logger.WithPrefix("controller"),
		clock:       cfg.Clock,
		turnTimeout: cfg.TurnTimeout,
		connected:   cfg.Connected,
		post:        cfg.Post,
		pending:     make(map[int]GameActionData),
	}
}

// State returns the current snapshot. Callers must treat it as read-only.
func (c *Controller) State() *race.RaceState { return c.state }

// Start announces the opening phase and drives until player input is needed.
func (c *Controller) Start() {
	c.broadcastPhase()
	c.resume()
}

// HandleAction processes one player's intent. Recognized game actions that
// are invalid for the current phase are dropped silently; they are the tail
// of a phase the session has already left.
func (c *Controller) HandleAction(seat int, typ MessageType, data GameActionData) {
	if c.finished {
		return
	}
	if typ.phaseFor() != c.state.Phase {
		c.logger.Debug("Dropping stale action", "seat", seat, "type", typ, "phase", c.state.Phase)
		return
	}

	switch c.state.Phase.Kind() {
	case race.Simultaneous:
		var err error
		switch typ {
		case MessageTypeGearShift:
			err = race.ValidateGearShift(c.state, seat, data.Gear)
		case MessageTypePlayCards:
			err = race.ValidatePlayCards(c.state, seat, data.Cards)
		case MessageTypeDiscard:
			err = race.ValidateDiscard(c.state, seat, data.Cards)
		}
		if err != nil {
			c.reject(seat, err)
			return
		}
		// A resubmission overwrites the stored action.
		c.pending[seat] = data
		c.resume()

	case race.Sequential:
		var next *race.RaceState
		var err error
		switch typ {
		case MessageTypeReactCooldown:
			next, err = race.Cooldown(c.state, seat, data.Cards)
		case MessageTypeReactBoost:
			next, err = race.Boost(c.state, seat)
		case MessageTypeReactDone:
			next, err = race.ReactDone(c.state, seat)
		case MessageTypeSlipstream:
			next, err = race.SlipstreamDecision(c.state, seat, data.Accept)
		}
		if err != nil {
			c.reject(seat, err)
			return
		}
		c.setState(next)
		c.resume()
	}
}

// HandleDisconnect resolves whatever the session was waiting on from the
// seat: defaults in simultaneous phases, safe auto-resolution when the seat
// is the active player of a sequential phase.
func (c *Controller) HandleDisconnect(seat int) {
	if c.finished {
		return
	}
	c.logger.Info("Seat disconnected", "seat", seat, "phase", c.state.Phase)
	if c.state.Phase.Kind() == race.Sequential && c.state.ActivePlayer == seat {
		c.applySequentialDefault(seat)
	}
	c.resume()
}

// HandleReconnect resends the current phase and view to a seat that came
// back.
func (c *Controller) HandleReconnect(seat int) {
	c.logger.Info("Seat reconnected", "seat", seat)
	c.sendPhaseTo(seat)
	if c.finished {
		c.sendFinishedTo(seat)
	}
}

// resume drives the engine until the session is waiting on player input, the
// race finishes, or an unrecoverable wedge is force-advanced past.
func (c *Controller) resume() {
	for !c.finished {
		if c.state.Status == race.StatusFinished {
			c.finish()
			return
		}
		switch c.state.Phase.Kind() {
		case race.Automatic, race.SequentialAuto:
			c.runAutoStep()

		case race.Simultaneous:
			c.seedDisconnectedDefaults()
			if !c.batchReady() {
				c.armTimer()
				return
			}
			c.executeBatch()

		case race.Sequential:
			seat := c.state.ActivePlayer
			if c.connected(seat) {
				c.armTimer()
				return
			}
			c.applySequentialDefault(seat)
		}
	}
}

// runAutoStep executes one engine call for a phase that needs no client
// input. Failures here force-advance to the documented next phase so the
// session stays playable.
func (c *Controller) runAutoStep() {
	defer func() {
		if r := recover(); r != nil {
			c.recoverAuto(fmt.Errorf("panic: %v", r))
		}
	}()

	var next *race.RaceState
	var err error
	switch c.state.Phase {
	case race.PhaseRevealAndMove:
		next, err = race.RevealStep(c.state)
	case race.PhaseCheckCorner:
		next, err = race.CheckCornerStep(c.state)
	case race.PhaseAdrenaline:
		next, err = race.Adrenaline(c.state)
	case race.PhaseReplenish:
		next, err = race.Replenish(c.state)
	default:
		err = fmt.Errorf("phase %s is not automatic", c.state.Phase)
	}
	if err != nil {
		c.recoverAuto(err)
		return
	}
	c.setState(next)
}

func (c *Controller) recoverAuto(err error) {
	c.logger.Error("Automatic phase failed, force-advancing", "phase", c.state.Phase, "error", err)
	c.setState(race.ForceAdvance(c.state))
}

// executeBatch runs the collected simultaneous actions as one engine call.
// A failure restarts the phase once; a second failure force-advances.
func (c *Controller) executeBatch() {
	defer func() {
		if r := recover(); r != nil {
			c.recoverSimultaneous(fmt.Errorf("panic: %v", r))
		}
	}()

	var next *race.RaceState
	var err error
	switch c.state.Phase {
	case race.PhaseGearShift:
		targets := make(map[int]int, len(c.pending))
		for seat, a := range c.pending {
			targets[seat] = a.Gear
		}
		next, err = race.GearShiftBatch(c.state, targets)
	case race.PhasePlayCards:
		picks := make(map[int][]int, len(c.pending))
		for seat, a := range c.pending {
			picks[seat] = a.Cards
		}
		next, err = race.PlayCardsBatch(c.state, picks)
	case race.PhaseDiscard:
		picks := make(map[int][]int, len(c.pending))
		for seat, a := range c.pending {
			picks[seat] = a.Cards
		}
		next, err = race.DiscardBatch(c.state, picks)
	default:
		err = fmt.Errorf("phase %s is not simultaneous", c.state.Phase)
	}
	if err != nil {
		c.recoverSimultaneous(err)
		return
	}
	c.setState(next)
}

// recoverSimultaneous discards the pending set and restarts the phase.
// Well-behaved clients only ever observe a phase restart, never the error.
func (c *Controller) recoverSimultaneous(err error) {
	c.recoveries++
	c.logger.Error("Batch execution failed", "phase", c.state.Phase, "attempt", c.recoveries, "error", err)
	c.pending = make(map[int]GameActionData)
	if c.recoveries > 1 {
		// Restarting reproduced the failure; advancing is the only way to
		// keep the session alive.
		c.setState(race.ForceAdvance(c.state))
		return
	}
	c.phaseGen++
	c.stopTimer()
	c.broadcastPhase()
}

// applySequentialDefault resolves the active seat with the phase's safe
// default: react ends the turn, slipstream declines.
func (c *Controller) applySequentialDefault(seat int) {
	var next *race.RaceState
	var err error
	switch c.state.Phase {
	case race.PhaseReact:
		next, err = race.ReactDone(c.state, seat)
	case race.PhaseSlipstream:
		next, err = race.SlipstreamDecision(c.state, seat, false)
	default:
		err = fmt.Errorf("phase %s has no sequential default", c.state.Phase)
	}
	if err != nil {
		c.recoverAuto(err)
		return
	}
	c.setState(next)
}

// seedDisconnectedDefaults stores the computed default for every seat that
// has no live connection and nothing pending.
func (c *Controller) seedDisconnectedDefaults() {
	for seat := range c.state.Players {
		if _, ok := c.pending[seat]; ok {
			continue
		}
		if c.connected(seat) {
			continue
		}
		c.pending[seat] = c.defaultAction(seat)
	}
}

// defaultAction computes the phase default for a seat: keep gear, auto-pick
// the first required playable cards (or none for a cluttered hand), discard
// nothing.
func (c *Controller) defaultAction(seat int) GameActionData {
	switch c.state.Phase {
	case race.PhaseGearShift:
		return GameActionData{Gear: c.state.Players[seat].Gear}
	case race.PhasePlayCards:
		return GameActionData{Cards: defaultCardPicks(c.state, seat)}
	default:
		return GameActionData{}
	}
}

// defaultCardPicks selects the first cardsRequired playable hand indices, or
// none when the hand is cluttered.
func defaultCardPicks(s *race.RaceState, seat int) []int {
	p := s.Players[seat]
	required := p.Gear
	picks := make([]int, 0, required)
	for idx, card := range p.Hand {
		if card.Playable() {
			picks = append(picks, idx)
			if len(picks) == required {
				return picks
			}
		}
	}
	// Cluttered: the engine expects an empty submission.
	return nil
}

func (c *Controller) batchReady() bool {
	for seat := range c.state.Players {
		if _, ok := c.pending[seat]; !ok {
			return false
		}
	}
	return true
}

// timerFired is the turn timer callback, already serialized through post.
// Stale firings (the phase moved on, or the timer was superseded) no-op.
func (c *Controller) timerFired(timerGen int) {
	if c.finished || timerGen != c.timerGen {
		return
	}
	c.logger.Info("Turn timer expired", "phase", c.state.Phase)
	switch c.state.Phase.Kind() {
	case race.Simultaneous:
		for seat := range c.state.Players {
			if _, ok := c.pending[seat]; !ok {
				c.pending[seat] = c.defaultAction(seat)
			}
		}
	case race.Sequential:
		c.applySequentialDefault(c.state.ActivePlayer)
	}
	c.resume()
}

// armTimer starts the phase timer for the current waiting context: once per
// simultaneous phase, once per active seat in a sequential phase. Re-entering
// resume with the same context leaves the running timer alone.
func (c *Controller) armTimer() {
	if c.turnTimeout <= 0 {
		return
	}
	seat := -1
	if c.state.Phase.Kind() == race.Sequential {
		seat = c.state.ActivePlayer
	}
	if c.timer != nil && c.armedGen == c.phaseGen && c.armedSeat == seat {
		return
	}
	c.stopTimer()
	c.armedGen = c.phaseGen
	c.armedSeat = seat
	c.timerGen++
	gen := c.timerGen
	c.timer = c.clock.AfterFunc(c.turnTimeout, func() {
		c.post(func() { c.timerFired(gen) })
	})
}

func (c *Controller) stopTimer() {
	c.timerGen++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

// setState installs a new snapshot. Phase or round changes reset the pending
// set and timer and notify every seat; within-phase changes send a view
// update.
func (c *Controller) setState(next *race.RaceState) {
	prev := c.state
	c.state = next
	if err := next.ValidateConservation(); err != nil {
		c.logger.Error("Card conservation violated", "error", err)
	}
	if next.Phase != prev.Phase || next.Round != prev.Round {
		c.phaseGen++
		c.recoveries = 0
		c.pending = make(map[int]GameActionData)
		c.stopTimer()
		c.broadcastPhase()
		return
	}
	c.broadcastUpdate()
}

func (c *Controller) finish() {
	c.finished = true
	c.stopTimer()
	c.logger.Info("Race finished", "round", c.state.Round)
	c.broadcastPhase()
	for seat := range c.state.Players {
		c.sendFinishedTo(seat)
	}
}

func (c *Controller) sendFinishedTo(seat int) {
	data := RaceFinishedData{Standings: c.state.Standings}
	if c.state.Mode == race.ModeQualifying {
		data.LapRounds = make(map[int][]int, len(c.state.Players))
		for i := range c.state.Players {
			data.LapRounds[i] = append([]int(nil), c.state.Players[i].LapRounds...)
		}
	}
	msg, err := NewMessage(MessageTypeRaceFinished, data)
	if err != nil {
		c.logger.Error("Failed to build race finished message", "error", err)
		return
	}
	c.sink.SendToSeat(seat, msg)
}

func (c *Controller) reject(seat int, err error) {
	data := ActionRejectedData{Code: "invalid_action", Message: err.Error()}
	if re, ok := race.AsRuleError(err); ok {
		data.Code = re.Code
		data.Message = re.Message
	}
	c.logger.Debug("Rejected action", "seat", seat, "code", data.Code, "reason", data.Message)
	msg, merr := NewMessage(MessageTypeActionRejected, data)
	if merr != nil {
		return
	}
	c.sink.SendToSeat(seat, msg)
}

func (c *Controller) remainingHint() int64 {
	if c.turnTimeout <= 0 {
		return 0
	}
	switch c.state.Phase.Kind() {
	case race.Simultaneous, race.Sequential:
		return c.turnTimeout.Milliseconds()
	}
	return 0
}

func (c *Controller) broadcastPhase() {
	for seat := range c.state.Players {
		c.sendPhaseTo(seat)
	}
}

func (c *Controller) sendPhaseTo(seat int) {
	view, err := race.Partition(c.state, seat)
	if err != nil {
		c.logger.Error("Failed to partition state", "seat", seat, "error", err)
		return
	}
	msg, err := NewMessage(MessageTypePhaseChanged, PhaseChangedData{
		Phase:       c.state.Phase,
		Round:       c.state.Round,
		View:        view,
		RemainingMs: c.remainingHint(),
	})
	if err != nil {
		c.logger.Error("Failed to build phase message", "error", err)
		return
	}
	c.sink.SendToSeat(seat, msg)
}

func (c *Controller) broadcastUpdate() {
	for seat := range c.state.Players {
		view, err := race.Partition(c.state, seat)
		if err != nil {
			continue
		}
		msg, err := NewMessage(MessageTypeStateUpdate, StateUpdateData{View: view})
		if err != nil {
			continue
		}
		c.sink.SendToSeat(seat, msg)
	}
}
