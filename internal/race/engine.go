package race

import "sort"

// Phase operations. Every function takes a state plus validated inputs and
// returns a fresh state; on error the input is untouched. Batch operations
// (gear-shift, play-cards, discard) take the full per-player intent set;
// gear-shift and discard treat a missing player as "no change", play-cards
// requires a submission from every player who is able to play.

// ValidateGearShift checks a single player's gear-shift intent against the
// current state without applying it.
func ValidateGearShift(s *RaceState, player, target int) error {
	if err := s.checkPhase(player, PhaseGearShift); err != nil {
		return err
	}
	if err := s.checkPlayer(player); err != nil {
		return err
	}
	if target < MinGear || target > MaxGear {
		return ruleErr(player, CodeBadGear, "gear %d outside %d-%d", target, MinGear, MaxGear)
	}
	p := &s.Players[player]
	delta := target - p.Gear
	if delta < 0 {
		delta = -delta
	}
	if delta > 2 {
		return ruleErr(player, CodeBadGear, "shift of %d gears exceeds the limit of 2", delta)
	}
	if delta == 2 && p.heatInEngine() == 0 {
		return ruleErr(player, CodeBadGear, "shift of 2 gears needs heat in the engine")
	}
	return nil
}

// GearShiftBatch applies every player's gear change. A double shift consumes
// one heat from the engine zone; legality is re-checked here even if the
// intent was validated on arrival.
func GearShiftBatch(s *RaceState, targets map[int]int) (*RaceState, error) {
	if err := s.checkPhase(-1, PhaseGearShift); err != nil {
		return nil, err
	}
	for player, target := range targets {
		if err := ValidateGearShift(s, player, target); err != nil {
			return nil, err
		}
	}
	next := s.clone()
	for i := range next.Players {
		target, ok := targets[i]
		if !ok {
			continue // keep current gear
		}
		p := &next.Players[i]
		delta := target - p.Gear
		if delta < 0 {
			delta = -delta
		}
		if delta == 2 {
			p.removeEngineHeat(1)
		}
		p.Gear = target
	}
	next.enterPhase(PhasePlayCards)
	return next, nil
}

// ValidatePlayCards checks one player's card commitment. A cluttered hand
// (fewer playable cards than the gear requires) is legal only as an empty
// submission.
func ValidatePlayCards(s *RaceState, player int, picks []int) error {
	if err := s.checkPhase(player, PhasePlayCards); err != nil {
		return err
	}
	if err := s.checkPlayer(player); err != nil {
		return err
	}
	p := &s.Players[player]
	required := cardsRequired(p.Gear)
	if p.playableInHand() < required {
		if len(picks) != 0 {
			return ruleErr(player, CodeBadCards, "cluttered hand: submit no cards")
		}
		return nil
	}
	if len(picks) != required {
		return ruleErr(player, CodeBadCards, "gear %d requires exactly %d cards, got %d", p.Gear, required, len(picks))
	}
	seen := make(map[int]bool, len(picks))
	for _, idx := range picks {
		if idx < 0 || idx >= len(p.Hand) {
			return ruleErr(player, CodeBadCards, "card index %d out of range", idx)
		}
		if seen[idx] {
			return ruleErr(player, CodeBadCards, "card index %d repeated", idx)
		}
		seen[idx] = true
		if !p.Hand[idx].Playable() {
			return ruleErr(player, CodeBadCards, "card %s is not playable", p.Hand[idx])
		}
	}
	return nil
}

// PlayCardsBatch commits every player's cards for the round, drops cluttered
// players to gear 1, then recomputes turn order and enters reveal-and-move.
func PlayCardsBatch(s *RaceState, picks map[int][]int) (*RaceState, error) {
	if err := s.checkPhase(-1, PhasePlayCards); err != nil {
		return nil, err
	}
	for player, sel := range picks {
		if err := ValidatePlayCards(s, player, sel); err != nil {
			return nil, err
		}
	}
	next := s.clone()
	for i := range next.Players {
		p := &next.Players[i]
		required := cardsRequired(p.Gear)
		if p.playableInHand() < required {
			// Cluttered hand: no cards this round, gear drops to 1.
			p.Gear = MinGear
			continue
		}
		sel, ok := picks[i]
		if !ok {
			return nil, ruleErr(i, CodeBadCards, "no cards submitted")
		}
		p.playFromHand(sel)
	}
	next.recomputeTurnOrder()
	next.beginSequential(PhaseRevealAndMove)
	return next, nil
}

// RevealStep resolves the active player's committed cards into movement.
// Stress cards resolve by revealing the top of the player's own draw pile.
func RevealStep(s *RaceState) (*RaceState, error) {
	if err := s.checkPhase(-1, PhaseRevealAndMove); err != nil {
		return nil, err
	}
	next := s.clone()
	p := &next.Players[next.ActivePlayer]
	p.PreviousPosition = p.Position

	speed := 0
	for _, card := range p.PlayedCards {
		if card.Kind == StressCard {
			drawn, draw, discard := DrawCards(p.DrawPile, p.DiscardPile, 1, &next.RNG)
			p.DrawPile, p.DiscardPile = draw, discard
			if len(drawn) == 1 {
				speed += drawn[0].SpeedValue()
				p.DiscardPile = append(p.DiscardPile, drawn[0])
			}
			continue
		}
		speed += card.SpeedValue()
	}
	p.Speed = speed
	next.advance(next.ActivePlayer, speed)

	p.DiscardPile = append(p.DiscardPile, p.PlayedCards...)
	p.PlayedCards = []Card{}

	next.advanceCursor(PhaseAdrenaline)
	return next, nil
}

// Adrenaline grants the trailing player (the trailing two in fields of five
// or more) one space, one speed, and one extra cooldown for the coming react
// phase. A no-op in single-driver races.
func Adrenaline(s *RaceState) (*RaceState, error) {
	if err := s.checkPhase(-1, PhaseAdrenaline); err != nil {
		return nil, err
	}
	next := s.clone()
	if len(next.Players) >= 2 {
		for _, player := range next.trailingPlayers() {
			next.advance(player, 1)
			next.Players[player].Speed++
			next.Players[player].AdrenalineCooldown++
		}
	}
	next.enterPhase(PhaseReact)
	return next, nil
}

// trailingPlayers returns the adrenaline recipients: the lowest-placed
// players by track position, ties included.
func (s *RaceState) trailingPlayers() []int {
	ranked := make([]int, len(s.Players))
	for i := range ranked {
		ranked[i] = i
	}
	// Lowest position first, index tiebreak.
	sort.SliceStable(ranked, func(a, b int) bool {
		return s.Players[ranked[a]].Position < s.Players[ranked[b]].Position
	})
	seats := adrenalineSeats(len(s.Players))
	if seats > len(ranked) {
		seats = len(ranked)
	}
	out := ranked[:seats]
	// Extend through players tied with the last qualifying position.
	lastPos := s.Players[out[len(out)-1]].Position
	for _, idx := range ranked[seats:] {
		if s.Players[idx].Position != lastPos {
			break
		}
		out = append(out, idx)
	}
	return out
}

// Cooldown moves heat cards from the active player's hand into the engine
// zone, bounded by gear, adrenaline, and weather. The player stays active.
func Cooldown(s *RaceState, player int, cards []int) (*RaceState, error) {
	if err := s.checkPhase(player, PhaseReact); err != nil {
		return nil, err
	}
	if err := s.checkActive(player); err != nil {
		return nil, err
	}
	p := &s.Players[player]
	limit := cooldownLimit(p.Gear) + p.AdrenalineCooldown
	if s.Weather != nil {
		limit += s.Weather.CooldownBonus
	}
	if limit < 0 {
		limit = 0
	}
	if len(cards) > limit {
		return nil, ruleErr(player, CodeCooldownLimit, "cooldown limit is %d, got %d cards", limit, len(cards))
	}
	seen := make(map[int]bool, len(cards))
	for _, idx := range cards {
		if idx < 0 || idx >= len(p.Hand) {
			return nil, ruleErr(player, CodeBadCards, "card index %d out of range", idx)
		}
		if seen[idx] {
			return nil, ruleErr(player, CodeBadCards, "card index %d repeated", idx)
		}
		seen[idx] = true
		if p.Hand[idx].Kind != HeatCard {
			return nil, ruleErr(player, CodeBadCards, "only heat cards cool down, got %s", p.Hand[idx])
		}
	}
	next := s.clone()
	np := &next.Players[player]
	moved := np.takeFromHand(cards)
	np.EngineZone = append(np.EngineZone, moved...)
	return next, nil
}

// Boost spends one heat from the engine zone for extra movement, once per
// player per round. The player stays active.
func Boost(s *RaceState, player int) (*RaceState, error) {
	if err := s.checkPhase(player, PhaseReact); err != nil {
		return nil, err
	}
	if err := s.checkActive(player); err != nil {
		return nil, err
	}
	p := &s.Players[player]
	if p.HasBoosted {
		return nil, ruleErr(player, CodeAlreadyBoosted, "already boosted this round")
	}
	if p.heatInEngine() == 0 {
		return nil, ruleErr(player, CodeNoHeat, "no heat in the engine to boost with")
	}
	next := s.clone()
	np := &next.Players[player]
	np.removeEngineHeat(1)
	np.Speed += boostSpeed
	np.HasBoosted = true
	next.advance(player, boostSpeed)
	return next, nil
}

// ReactDone ends the active player's react turn.
func ReactDone(s *RaceState, player int) (*RaceState, error) {
	if err := s.checkPhase(player, PhaseReact); err != nil {
		return nil, err
	}
	if err := s.checkActive(player); err != nil {
		return nil, err
	}
	next := s.clone()
	next.advanceCursor(PhaseSlipstream)
	return next, nil
}

// IsSlipstreamEligible reports whether the player has another car within the
// forward slipstream window. Weather and the next corner's road conditions
// both widen the window.
func IsSlipstreamEligible(s *RaceState, player int) bool {
	if s.Weather != nil && s.Weather.SlipstreamDisabled {
		return false
	}
	window := slipstreamWindow
	if s.Weather != nil {
		window += s.Weather.SlipstreamBonus
	}
	pos := s.Players[player].Position
	if corner := s.nextCornerAhead(pos); corner != nil {
		if rc := s.roadFor(corner.ID); rc != nil {
			window += rc.SlipstreamBonus
		}
	}
	for i := range s.Players {
		if i == player {
			continue
		}
		d := s.forwardDistance(pos, s.Players[i].Position)
		if d >= 1 && d <= window {
			return true
		}
	}
	return false
}

// SlipstreamDecision resolves the active player's accept/decline. Accepting
// moves the base distance plus any sector bonus without changing speed;
// declining is always legal.
func SlipstreamDecision(s *RaceState, player int, accept bool) (*RaceState, error) {
	if err := s.checkPhase(player, PhaseSlipstream); err != nil {
		return nil, err
	}
	if err := s.checkActive(player); err != nil {
		return nil, err
	}
	if accept && !IsSlipstreamEligible(s, player) {
		return nil, ruleErr(player, CodeNotEligible, "no car within slipstream range")
	}
	next := s.clone()
	if accept {
		distance := slipstreamDistance
		if corner := next.nextCornerAhead(next.Players[player].Position); corner != nil {
			if rc := next.roadFor(corner.ID); rc != nil {
				distance += rc.SlipstreamBonus
			}
		}
		next.advance(player, distance)
	}
	next.advanceCursor(PhaseCheckCorner)
	return next, nil
}

// CheckCornerStep enforces speed limits for every corner the active player
// crossed this round. Overspeed is paid in heat; an unpayable corner spins
// the player out.
func CheckCornerStep(s *RaceState) (*RaceState, error) {
	if err := s.checkPhase(-1, PhaseCheckCorner); err != nil {
		return nil, err
	}
	next := s.clone()
	player := next.ActivePlayer
	p := &next.Players[player]

	for _, corner := range next.cornersCrossed(p.PreviousPosition, p.Position) {
		limit := next.effectiveSpeedLimit(corner)
		if p.Speed <= limit {
			continue
		}
		excess := p.Speed - limit
		if rc := next.roadFor(corner.ID); rc != nil {
			excess += rc.OverheatPenalty
		}
		if p.heatInEngine() >= excess {
			p.removeEngineHeat(excess)
			continue
		}
		next.spinOut(player, corner)
		break
	}

	next.advanceCursor(PhaseDiscard)
	return next, nil
}

// spinOut resets the player one space short of the corner, drops them to
// gear 1, and injects stress into their discard pile.
func (s *RaceState) spinOut(player int, corner Corner) {
	p := &s.Players[player]

	resetPos := mod(corner.Position-1, s.TotalSpaces)
	fullDist := s.forwardDistance(p.PreviousPosition, p.Position)
	keptDist := s.forwardDistance(p.PreviousPosition, resetPos)
	p.LapCount -= s.lapsCrossed(p.PreviousPosition, fullDist) - s.lapsCrossed(p.PreviousPosition, keptDist)
	p.Position = resetPos

	stress := spinoutStress(p.Gear)
	if s.Weather != nil {
		stress += s.Weather.ExtraSpinoutStress
	}
	for i := 0; i < stress; i++ {
		p.DiscardPile = append(p.DiscardPile, Stress())
	}
	p.StressGained += stress

	p.Gear = MinGear
	p.Speed = 0
}

// ValidateDiscard checks one player's optional hand trim.
func ValidateDiscard(s *RaceState, player int, picks []int) error {
	if err := s.checkPhase(player, PhaseDiscard); err != nil {
		return err
	}
	if err := s.checkPlayer(player); err != nil {
		return err
	}
	p := &s.Players[player]
	seen := make(map[int]bool, len(picks))
	for _, idx := range picks {
		if idx < 0 || idx >= len(p.Hand) {
			return ruleErr(player, CodeBadDiscard, "card index %d out of range", idx)
		}
		if seen[idx] {
			return ruleErr(player, CodeBadDiscard, "card index %d repeated", idx)
		}
		seen[idx] = true
		if !p.Hand[idx].Discardable() {
			return ruleErr(player, CodeBadDiscard, "%s cannot be discarded", p.Hand[idx])
		}
	}
	return nil
}

// DiscardBatch applies every player's optional discard, then enters
// replenish. Players missing from the map discard nothing.
func DiscardBatch(s *RaceState, picks map[int][]int) (*RaceState, error) {
	if err := s.checkPhase(-1, PhaseDiscard); err != nil {
		return nil, err
	}
	for player, sel := range picks {
		if err := ValidateDiscard(s, player, sel); err != nil {
			return nil, err
		}
	}
	next := s.clone()
	for i := range next.Players {
		sel, ok := picks[i]
		if !ok || len(sel) == 0 {
			continue
		}
		p := &next.Players[i]
		moved := p.takeFromHand(sel)
		p.DiscardPile = append(p.DiscardPile, moved...)
	}
	next.enterPhase(PhaseReplenish)
	return next, nil
}

// Replenish refills hands, resets per-round fields, increments the round,
// and ends the race once a player has met the lap target.
func Replenish(s *RaceState) (*RaceState, error) {
	if err := s.checkPhase(-1, PhaseReplenish); err != nil {
		return nil, err
	}
	next := s.clone()
	for i := range next.Players {
		p := &next.Players[i]
		resetRoundFields(p)
		need := HandSize - len(p.Hand)
		if need > 0 {
			drawn, draw, discard := DrawCards(p.DrawPile, p.DiscardPile, need, &next.RNG)
			p.Hand = append(p.Hand, drawn...)
			p.DrawPile, p.DiscardPile = draw, discard
		}
		if next.Mode == ModeQualifying {
			for len(p.LapRounds) < p.LapCount {
				p.LapRounds = append(p.LapRounds, next.Round)
			}
		}
	}

	for i := range next.Players {
		if next.Players[i].LapCount >= next.LapTarget {
			next.Status = StatusFinished
			next.ActivePlayer = -1
			if next.Mode == ModeRace {
				next.Standings = next.computeStandings()
			}
			return next, nil
		}
	}

	next.Round++
	next.enterPhase(PhaseGearShift)
	return next, nil
}

// resetRoundFields is the single place the per-round transient fields are
// cleared.
func resetRoundFields(p *PlayerState) {
	p.DiscardPile = append(p.DiscardPile, p.PlayedCards...)
	p.PlayedCards = []Card{}
	p.Speed = 0
	p.HasBoosted = false
	p.AdrenalineCooldown = 0
}

// playFromHand moves the selected hand indices into PlayedCards.
func (p *PlayerState) playFromHand(picks []int) {
	p.PlayedCards = append(p.PlayedCards, p.takeFromHand(picks)...)
}

// takeFromHand removes the selected indices from the hand, preserving the
// order they were selected in.
func (p *PlayerState) takeFromHand(picks []int) []Card {
	taken := make([]Card, 0, len(picks))
	for _, idx := range picks {
		taken = append(taken, p.Hand[idx])
	}
	kept := make([]Card, 0, len(p.Hand)-len(picks))
	drop := make(map[int]bool, len(picks))
	for _, idx := range picks {
		drop[idx] = true
	}
	for i, c := range p.Hand {
		if !drop[i] {
			kept = append(kept, c)
		}
	}
	p.Hand = kept
	return taken
}

// removeEngineHeat discards n heat cards from the engine zone. Callers must
// have checked availability.
func (p *PlayerState) removeEngineHeat(n int) {
	kept := make([]Card, 0, len(p.EngineZone))
	for _, c := range p.EngineZone {
		if n > 0 && c.Kind == HeatCard {
			n--
			p.DiscardPile = append(p.DiscardPile, c)
			continue
		}
		kept = append(kept, c)
	}
	p.EngineZone = kept
}
