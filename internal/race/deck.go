package race

import "github.com/velocity-games/slipstream/internal/randutil"

// Shuffle returns a new slice with the cards in Fisher-Yates order drawn from
// rng. The input is not modified.
func Shuffle(cards []Card, rng *randutil.Sequence) []Card {
	out := make([]Card, len(cards))
	copy(out, cards)
	for i := len(out) - 1; i > 0; i-- {
		j := rng.Intn(i + 1)
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// DrawCards removes up to n cards from the front of draw, reshuffling discard
// into a fresh draw pile when draw runs out. If both piles are exhausted the
// draw simply stops short. Inputs are not modified.
func DrawCards(draw, discard []Card, n int, rng *randutil.Sequence) (drawn, newDraw, newDiscard []Card) {
	newDraw = append([]Card(nil), draw...)
	newDiscard = append([]Card(nil), discard...)
	drawn = make([]Card, 0, n)

	for len(drawn) < n {
		if len(newDraw) == 0 {
			if len(newDiscard) == 0 {
				break
			}
			newDraw = Shuffle(newDiscard, rng)
			newDiscard = nil
		}
		drawn = append(drawn, newDraw[0])
		newDraw = newDraw[1:]
	}
	return drawn, newDraw, newDiscard
}
