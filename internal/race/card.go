package race

import "fmt"

// CardKind identifies the variant of a card.
type CardKind string

const (
	SpeedCard   CardKind = "speed"
	HeatCard    CardKind = "heat"
	StressCard  CardKind = "stress"
	UpgradeCard CardKind = "upgrade"
)

// UpgradeKind identifies the subtype of an upgrade card.
type UpgradeKind string

const (
	// TurboUpgrade is a plain fixed-value upgrade.
	TurboUpgrade UpgradeKind = "turbo"
	// DualUpgrade carries two printed values; it resolves to Value when
	// played (AltValue is informational for the client).
	DualUpgrade UpgradeKind = "dual"
	// StartingHeatUpgrade sits in the deck like an upgrade but is never
	// playable toward movement.
	StartingHeatUpgrade UpgradeKind = "starting-heat"
)

// Card is a tagged variant: speed cards and upgrades carry speed values,
// heat and stress cards do not.
type Card struct {
	Kind     CardKind    `json:"kind"`
	Value    int         `json:"value,omitempty"`
	AltValue int         `json:"altValue,omitempty"`
	Upgrade  UpgradeKind `json:"upgrade,omitempty"`
}

// Speed returns a speed card with the given value (1-5).
func Speed(value int) Card { return Card{Kind: SpeedCard, Value: value} }

// Heat returns a heat card.
func Heat() Card { return Card{Kind: HeatCard} }

// Stress returns a stress card.
func Stress() Card { return Card{Kind: StressCard} }

// Playable reports whether the card may be committed toward the gear's card
// requirement. Stress is playable and resolves off the draw pile; heat and
// the starting-heat upgrade stay in hand.
func (c Card) Playable() bool {
	switch c.Kind {
	case SpeedCard, StressCard:
		return true
	case UpgradeCard:
		return c.Upgrade != StartingHeatUpgrade
	default:
		return false
	}
}

// Discardable reports whether the card may be discarded voluntarily at the
// end of a round. Stress must be played off, never discarded.
func (c Card) Discardable() bool {
	switch c.Kind {
	case SpeedCard:
		return true
	case UpgradeCard:
		return c.Upgrade != StartingHeatUpgrade
	default:
		return false
	}
}

// SpeedValue returns the movement contribution of the card when played or
// revealed. Heat and stress contribute nothing.
func (c Card) SpeedValue() int {
	switch c.Kind {
	case SpeedCard, UpgradeCard:
		return c.Value
	default:
		return 0
	}
}

func (c Card) String() string {
	switch c.Kind {
	case SpeedCard:
		return fmt.Sprintf("speed(%d)", c.Value)
	case HeatCard:
		return "heat"
	case StressCard:
		return "stress"
	case UpgradeCard:
		return fmt.Sprintf("upgrade(%s,%d)", c.Upgrade, c.Value)
	default:
		return "unknown"
	}
}

const (
	// HandSize is the hand a player is refilled to each replenish.
	HandSize = 7

	// MinGear and MaxGear bound the gearbox.
	MinGear = 1
	MaxGear = 4

	startingStress = 3
	startingHeat   = 6

	boostSpeed         = 2
	slipstreamDistance = 2
	slipstreamWindow   = 2
)

// startingDraw builds the unshuffled draw pile a player races with: three
// speed cards of each value 1-4 plus the starting stress cards.
func startingDraw() []Card {
	cards := make([]Card, 0, 12+startingStress)
	for value := 1; value <= 4; value++ {
		for i := 0; i < 3; i++ {
			cards = append(cards, Speed(value))
		}
	}
	for i := 0; i < startingStress; i++ {
		cards = append(cards, Stress())
	}
	return cards
}

// startingEngine builds the heat reservoir a player starts with.
func startingEngine() []Card {
	cards := make([]Card, startingHeat)
	for i := range cards {
		cards[i] = Heat()
	}
	return cards
}

// cardsRequired returns how many cards a gear commits per round.
func cardsRequired(gear int) int { return gear }

// cooldownLimit returns how many heat cards a gear lets a player move from
// hand to engine during the react phase, before adrenaline or weather
// modifiers.
func cooldownLimit(gear int) int {
	switch gear {
	case 1:
		return 3
	case 2:
		return 1
	default:
		return 0
	}
}

// spinoutStress returns the stress cards injected when spinning out from the
// given pre-spin gear.
func spinoutStress(gear int) int {
	if gear <= 2 {
		return 1
	}
	return 2
}
