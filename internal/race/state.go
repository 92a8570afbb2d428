package race

import (
	"fmt"
	"sort"

	"github.com/velocity-games/slipstream/internal/randutil"
)

// Phase identifies one of the nine per-round phases.
type Phase string

const (
	PhaseGearShift     Phase = "gear-shift"
	PhasePlayCards     Phase = "play-cards"
	PhaseRevealAndMove Phase = "reveal-and-move"
	PhaseAdrenaline    Phase = "adrenaline"
	PhaseReact         Phase = "react"
	PhaseSlipstream    Phase = "slipstream"
	PhaseCheckCorner   Phase = "check-corner"
	PhaseDiscard       Phase = "discard"
	PhaseReplenish     Phase = "replenish"
)

// PhaseKind is the input model of a phase: who, if anyone, must act.
type PhaseKind int

const (
	// Simultaneous phases take one action from every player, in any order.
	Simultaneous PhaseKind = iota
	// Sequential phases take actions from the active player only.
	Sequential
	// SequentialAuto phases step through players in turn order with no input.
	SequentialAuto
	// Automatic phases execute in a single engine call with no input.
	Automatic
)

var phaseOrder = []Phase{
	PhaseGearShift, PhasePlayCards, PhaseRevealAndMove, PhaseAdrenaline,
	PhaseReact, PhaseSlipstream, PhaseCheckCorner, PhaseDiscard, PhaseReplenish,
}

// Kind returns the input model of the phase.
func (p Phase) Kind() PhaseKind {
	switch p {
	case PhaseGearShift, PhasePlayCards, PhaseDiscard:
		return Simultaneous
	case PhaseReact, PhaseSlipstream:
		return Sequential
	case PhaseRevealAndMove, PhaseCheckCorner:
		return SequentialAuto
	default:
		return Automatic
	}
}

// Next returns the phase that follows p in the round cycle.
func (p Phase) Next() Phase {
	for i, ph := range phaseOrder {
		if ph == p {
			return phaseOrder[(i+1)%len(phaseOrder)]
		}
	}
	return PhaseGearShift
}

func validPhase(p Phase) bool {
	for _, ph := range phaseOrder {
		if ph == p {
			return true
		}
	}
	return false
}

// Status is the lifecycle of the race.
type Status string

const (
	StatusRacing     Status = "racing"
	StatusQualifying Status = "qualifying"
	StatusFinished   Status = "finished"
)

// Mode selects between a normal race and single-driver qualifying laps.
type Mode string

const (
	ModeRace       Mode = "race"
	ModeQualifying Mode = "qualifying"
)

// Corner is a static track feature. SpeedLimit is the base limit; road
// conditions may shift the effective limit without mutating this value.
type Corner struct {
	ID         int `json:"id"`
	SpeedLimit int `json:"speedLimit"`
	Position   int `json:"position"`
}

// Weather is a race-wide overlay read by the engine rules, never mutated.
type Weather struct {
	Name               string `json:"name,omitempty"`
	CooldownBonus      int    `json:"cooldownBonus,omitempty"`
	SlipstreamBonus    int    `json:"slipstreamBonus,omitempty"`
	SlipstreamDisabled bool   `json:"slipstreamDisabled,omitempty"`
	ExtraSpinoutStress int    `json:"extraSpinoutStress,omitempty"`
}

// RoadCondition modifies one corner's sector for the duration of the race.
type RoadCondition struct {
	Corner          int `json:"corner"`
	LimitDelta      int `json:"limitDelta,omitempty"`
	OverheatPenalty int `json:"overheatPenalty,omitempty"`
	SlipstreamBonus int `json:"slipstreamBonus,omitempty"`
}

// PlayerState is one driver's complete state. The index into
// RaceState.Players is the stable identity within a race.
type PlayerState struct {
	ID                 string `json:"id"`
	Gear               int    `json:"gear"`
	Hand               []Card `json:"hand"`
	DrawPile           []Card `json:"drawPile"`
	DiscardPile        []Card `json:"discardPile"`
	EngineZone         []Card `json:"engineZone"`
	PlayedCards        []Card `json:"playedCards"`
	Position           int    `json:"position"`
	PreviousPosition   int    `json:"previousPosition"`
	LapCount           int    `json:"lapCount"`
	Speed              int    `json:"speed"`
	HasBoosted         bool   `json:"hasBoosted"`
	AdrenalineCooldown int    `json:"adrenalineCooldown"`
	StressGained       int    `json:"stressGained"`
	// LapRounds records, in qualifying mode, the round on which each lap
	// was completed.
	LapRounds []int `json:"lapRounds,omitempty"`
}

// CardCount is the total number of cards across all of the player's zones.
// Outside of stress injection it is invariant for the whole race.
func (p *PlayerState) CardCount() int {
	return len(p.Hand) + len(p.DrawPile) + len(p.DiscardPile) + len(p.EngineZone) + len(p.PlayedCards)
}

func (p *PlayerState) heatInEngine() int {
	n := 0
	for _, c := range p.EngineZone {
		if c.Kind == HeatCard {
			n++
		}
	}
	return n
}

func (p *PlayerState) playableInHand() int {
	n := 0
	for _, c := range p.Hand {
		if c.Playable() {
			n++
		}
	}
	return n
}

// Standing is one row of the final classification.
type Standing struct {
	Player   int    `json:"player"`
	ID       string `json:"id"`
	LapCount int    `json:"lapCount"`
	Position int    `json:"position"`
}

// RaceState is the immutable shared snapshot. Every phase operation returns a
// fresh state; the input is never modified.
type RaceState struct {
	Round        int               `json:"round"`
	Phase        Phase             `json:"phase"`
	ActivePlayer int               `json:"activePlayer"`
	TurnCursor   int               `json:"turnCursor"`
	TurnOrder    []int             `json:"turnOrder"`
	Players      []PlayerState     `json:"players"`
	Corners      []Corner          `json:"corners"`
	TotalSpaces  int               `json:"totalSpaces"`
	StartFinish  int               `json:"startFinishLine"`
	LapTarget    int               `json:"lapTarget"`
	Status       Status            `json:"status"`
	Mode         Mode              `json:"mode"`
	Weather      *Weather          `json:"weather,omitempty"`
	Roads        []RoadCondition   `json:"roadConditions,omitempty"`
	Seed         int64             `json:"seed"`
	RNG          randutil.Sequence `json:"rng"`
	Standings    []Standing        `json:"standings,omitempty"`
}

// Track is the static geometry a race runs on.
type Track struct {
	Name        string   `json:"name"`
	TotalSpaces int      `json:"totalSpaces"`
	StartFinish int      `json:"startFinishLine"`
	Corners     []Corner `json:"corners"`
}

// Config carries everything needed to initialize a race.
type Config struct {
	Players   []string
	Track     Track
	Seed      int64
	LapTarget int
	Mode      Mode
	Weather   *Weather
	Roads     []RoadCondition
}

// NewRace initializes a deterministic race state: same config and seed, same
// bytes. Drivers start staggered behind the start/finish line in player
// order, each with a shuffled draw pile and a full hand.
func NewRace(cfg Config) (*RaceState, error) {
	if len(cfg.Players) == 0 {
		return nil, fmt.Errorf("race needs at least one player")
	}
	if cfg.Track.TotalSpaces <= 0 {
		return nil, fmt.Errorf("track needs a positive space count, got %d", cfg.Track.TotalSpaces)
	}
	if cfg.Track.StartFinish < 0 || cfg.Track.StartFinish >= cfg.Track.TotalSpaces {
		return nil, fmt.Errorf("start/finish line %d outside track of %d spaces", cfg.Track.StartFinish, cfg.Track.TotalSpaces)
	}
	for _, c := range cfg.Track.Corners {
		if c.Position < 0 || c.Position >= cfg.Track.TotalSpaces {
			return nil, fmt.Errorf("corner %d at position %d outside track of %d spaces", c.ID, c.Position, cfg.Track.TotalSpaces)
		}
	}
	if cfg.LapTarget <= 0 {
		return nil, fmt.Errorf("lap target must be positive, got %d", cfg.LapTarget)
	}
	mode := cfg.Mode
	if mode == "" {
		mode = ModeRace
	}
	status := StatusRacing
	if mode == ModeQualifying {
		status = StatusQualifying
	}

	s := &RaceState{
		Round:        1,
		Phase:        PhaseGearShift,
		ActivePlayer: -1,
		TurnOrder:    make([]int, len(cfg.Players)),
		Players:      make([]PlayerState, len(cfg.Players)),
		Corners:      append([]Corner(nil), cfg.Track.Corners...),
		TotalSpaces:  cfg.Track.TotalSpaces,
		StartFinish:  cfg.Track.StartFinish,
		LapTarget:    cfg.LapTarget,
		Status:       status,
		Mode:         mode,
		Weather:      cloneWeather(cfg.Weather),
		Roads:        append([]RoadCondition(nil), cfg.Roads...),
		Seed:         cfg.Seed,
		RNG:          *randutil.NewSequence(cfg.Seed),
	}

	for i, id := range cfg.Players {
		gridPos := mod(cfg.Track.StartFinish-1-i, cfg.Track.TotalSpaces)
		draw := Shuffle(startingDraw(), &s.RNG)
		hand, draw, _ := DrawCards(draw, nil, HandSize, &s.RNG)
		s.Players[i] = PlayerState{
			ID:               id,
			Gear:             MinGear,
			Hand:             hand,
			DrawPile:         draw,
			DiscardPile:      []Card{},
			EngineZone:       startingEngine(),
			PlayedCards:      []Card{},
			Position:         gridPos,
			PreviousPosition: gridPos,
		}
		s.TurnOrder[i] = i
	}
	return s, nil
}

// clone deep-copies the state so phase operations can mutate freely.
func (s *RaceState) clone() *RaceState {
	next := *s
	next.TurnOrder = append([]int(nil), s.TurnOrder...)
	next.Corners = append([]Corner(nil), s.Corners...)
	next.Roads = append([]RoadCondition(nil), s.Roads...)
	next.Weather = cloneWeather(s.Weather)
	next.Standings = append([]Standing(nil), s.Standings...)
	next.Players = make([]PlayerState, len(s.Players))
	for i := range s.Players {
		next.Players[i] = clonePlayer(&s.Players[i])
	}
	return &next
}

func clonePlayer(p *PlayerState) PlayerState {
	out := *p
	out.Hand = append([]Card(nil), p.Hand...)
	out.DrawPile = append([]Card(nil), p.DrawPile...)
	out.DiscardPile = append([]Card(nil), p.DiscardPile...)
	out.EngineZone = append([]Card(nil), p.EngineZone...)
	out.PlayedCards = append([]Card(nil), p.PlayedCards...)
	out.LapRounds = append([]int(nil), p.LapRounds...)
	return out
}

func cloneWeather(w *Weather) *Weather {
	if w == nil {
		return nil
	}
	out := *w
	return &out
}

func mod(a, m int) int {
	return ((a % m) + m) % m
}

// advance moves a player spaces forward, counting start/finish crossings as
// completed laps.
func (s *RaceState) advance(player, spaces int) {
	if spaces <= 0 {
		return
	}
	p := &s.Players[player]
	p.LapCount += s.lapsCrossed(p.Position, spaces)
	p.Position = mod(p.Position+spaces, s.TotalSpaces)
}

// lapsCrossed counts how many times a forward move of the given distance from
// the given position crosses the start/finish line.
func (s *RaceState) lapsCrossed(from, distance int) int {
	if distance <= 0 {
		return 0
	}
	// Reaching the line completes the lap, so a move that lands exactly on
	// it counts.
	toLine := mod(s.StartFinish-from, s.TotalSpaces)
	if toLine == 0 {
		toLine = s.TotalSpaces
	}
	if distance < toLine {
		return 0
	}
	return 1 + (distance-toLine)/s.TotalSpaces
}

// forwardDistance is the number of spaces from a to b walking forward.
func (s *RaceState) forwardDistance(a, b int) int {
	return mod(b-a, s.TotalSpaces)
}

// recomputeTurnOrder sorts players by track position, leader first, ties by
// original index.
func (s *RaceState) recomputeTurnOrder() {
	order := make([]int, len(s.Players))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		pa, pb := s.Players[order[a]], s.Players[order[b]]
		if pa.Position != pb.Position {
			return pa.Position > pb.Position
		}
		return order[a] < order[b]
	})
	s.TurnOrder = order
}

// beginSequential points the cursor at the first player in turn order for a
// sequential or sequential-auto phase.
func (s *RaceState) beginSequential(phase Phase) {
	s.Phase = phase
	s.TurnCursor = 0
	s.ActivePlayer = s.TurnOrder[0]
}

// advanceCursor moves to the next player in turn order, entering next when
// every player has been processed.
func (s *RaceState) advanceCursor(next Phase) {
	s.TurnCursor++
	if s.TurnCursor >= len(s.TurnOrder) {
		s.enterPhase(next)
		return
	}
	s.ActivePlayer = s.TurnOrder[s.TurnCursor]
}

func (s *RaceState) enterPhase(phase Phase) {
	switch phase.Kind() {
	case Sequential, SequentialAuto:
		s.beginSequential(phase)
	default:
		s.Phase = phase
		s.TurnCursor = 0
		s.ActivePlayer = -1
	}
}

// effectiveSpeedLimit applies road-condition deltas to a corner's base limit.
func (s *RaceState) effectiveSpeedLimit(c Corner) int {
	if rc := s.roadFor(c.ID); rc != nil {
		return c.SpeedLimit + rc.LimitDelta
	}
	return c.SpeedLimit
}

func (s *RaceState) roadFor(cornerID int) *RoadCondition {
	for i := range s.Roads {
		if s.Roads[i].Corner == cornerID {
			return &s.Roads[i]
		}
	}
	return nil
}

// nextCornerAhead returns the first corner strictly ahead of pos, walking
// forward around the track. Nil on cornerless tracks.
func (s *RaceState) nextCornerAhead(pos int) *Corner {
	var best *Corner
	bestDist := s.TotalSpaces + 1
	for i := range s.Corners {
		d := s.forwardDistance(pos, s.Corners[i].Position)
		if d == 0 {
			d = s.TotalSpaces
		}
		if d < bestDist {
			bestDist = d
			best = &s.Corners[i]
		}
	}
	return best
}

// cornersCrossed returns the corners whose position lies strictly between
// from and to, walking forward, in crossing order.
func (s *RaceState) cornersCrossed(from, to int) []Corner {
	distance := s.forwardDistance(from, to)
	crossed := make([]Corner, 0, 2)
	for d := 1; d < distance; d++ {
		pos := mod(from+d, s.TotalSpaces)
		for _, c := range s.Corners {
			if c.Position == pos {
				crossed = append(crossed, c)
			}
		}
	}
	return crossed
}

// adrenalineSeats returns how many trailing players receive the catch-up
// bonus for the given field size.
func adrenalineSeats(fieldSize int) int {
	n := 1 + fieldSize/5
	if n > 2 {
		n = 2
	}
	return n
}

// computeStandings classifies by laps, then position, then index.
func (s *RaceState) computeStandings() []Standing {
	order := make([]int, len(s.Players))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		pa, pb := s.Players[order[a]], s.Players[order[b]]
		if pa.LapCount != pb.LapCount {
			return pa.LapCount > pb.LapCount
		}
		if pa.Position != pb.Position {
			return pa.Position > pb.Position
		}
		return order[a] < order[b]
	})
	standings := make([]Standing, len(order))
	for rank, idx := range order {
		p := s.Players[idx]
		standings[rank] = Standing{Player: idx, ID: p.ID, LapCount: p.LapCount, Position: p.Position}
	}
	return standings
}

// ForceAdvance abandons the current phase and enters the next one in the
// cycle. It is the session layer's recovery escape hatch for a phase whose
// execution failed unexpectedly; normal play never needs it.
func ForceAdvance(s *RaceState) *RaceState {
	next := s.clone()
	next.enterPhase(s.Phase.Next())
	return next
}

// ValidateConservation checks that every player still holds their initial
// card count plus the stress injected on spinouts. Used by tests and the
// controller's sanity checks.
func (s *RaceState) ValidateConservation() error {
	expectedBase := len(startingDraw()) + startingHeat
	for i := range s.Players {
		p := &s.Players[i]
		want := expectedBase + p.StressGained
		if got := p.CardCount(); got != want {
			return fmt.Errorf("player %d holds %d cards, want %d", i, got, want)
		}
	}
	return nil
}

func (s *RaceState) checkPlayer(player int) error {
	if player < 0 || player >= len(s.Players) {
		return ruleErr(player, CodeBadPlayer, "no such player")
	}
	return nil
}

func (s *RaceState) checkPhase(player int, phase Phase) error {
	if s.Status == StatusFinished {
		return ErrRaceFinished
	}
	if s.Phase != phase {
		return ruleErr(player, CodeWrongPhase, "phase is %s, not %s", s.Phase, phase)
	}
	return nil
}

func (s *RaceState) checkActive(player int) error {
	if s.ActivePlayer != player {
		return ruleErr(player, CodeNotYourTurn, "active player is %d", s.ActivePlayer)
	}
	return nil
}
