package race

import "fmt"

// SeatView is what any player may know about any driver: public fields plus
// zone counts.
type SeatView struct {
	Player      int    `json:"player"`
	ID          string `json:"id"`
	Gear        int    `json:"gear"`
	Position    int    `json:"position"`
	LapCount    int    `json:"lapCount"`
	Speed       int    `json:"speed"`
	HasBoosted  bool   `json:"hasBoosted"`
	HandSize    int    `json:"handSize"`
	DrawSize    int    `json:"drawSize"`
	DiscardSize int    `json:"discardSize"`
	EngineSize  int    `json:"engineSize"`
	PlayedSize  int    `json:"playedSize"`
}

// PlayerView is the race as seen by one player: their own hidden zones
// verbatim (draw pile as a count only), everyone else as counts.
type PlayerView struct {
	Seat         int        `json:"seat"`
	Round        int        `json:"round"`
	Phase        Phase      `json:"phase"`
	ActivePlayer int        `json:"activePlayer"`
	TurnOrder    []int      `json:"turnOrder"`
	Status       Status     `json:"status"`
	LapTarget    int        `json:"lapTarget"`
	TotalSpaces  int        `json:"totalSpaces"`
	Corners      []Corner   `json:"corners"`
	Weather      *Weather   `json:"weather,omitempty"`
	Hand         []Card     `json:"hand"`
	DiscardPile  []Card     `json:"discardPile"`
	EngineZone   []Card     `json:"engineZone"`
	PlayedCards  []Card     `json:"playedCards"`
	DrawPileSize int        `json:"drawPileSize"`
	Seats        []SeatView `json:"seats"`
	Standings    []Standing `json:"standings,omitempty"`
}

// Partition derives the requesting player's view of the shared state. The
// result shares no memory with the state, so consumers may mutate it freely.
func Partition(s *RaceState, seat int) (*PlayerView, error) {
	if seat < 0 || seat >= len(s.Players) {
		return nil, fmt.Errorf("no seat %d in a %d player race", seat, len(s.Players))
	}
	me := &s.Players[seat]

	view := &PlayerView{
		Seat:         seat,
		Round:        s.Round,
		Phase:        s.Phase,
		ActivePlayer: s.ActivePlayer,
		TurnOrder:    append([]int(nil), s.TurnOrder...),
		Status:       s.Status,
		LapTarget:    s.LapTarget,
		TotalSpaces:  s.TotalSpaces,
		Corners:      append([]Corner(nil), s.Corners...),
		Weather:      cloneWeather(s.Weather),
		Hand:         append([]Card(nil), me.Hand...),
		DiscardPile:  append([]Card(nil), me.DiscardPile...),
		EngineZone:   append([]Card(nil), me.EngineZone...),
		PlayedCards:  append([]Card(nil), me.PlayedCards...),
		DrawPileSize: len(me.DrawPile),
		Seats:        make([]SeatView, len(s.Players)),
		Standings:    append([]Standing(nil), s.Standings...),
	}
	for i := range s.Players {
		p := &s.Players[i]
		view.Seats[i] = SeatView{
			Player:      i,
			ID:          p.ID,
			Gear:        p.Gear,
			Position:    p.Position,
			LapCount:    p.LapCount,
			Speed:       p.Speed,
			HasBoosted:  p.HasBoosted,
			HandSize:    len(p.Hand),
			DrawSize:    len(p.DrawPile),
			DiscardSize: len(p.DiscardPile),
			EngineSize:  len(p.EngineZone),
			PlayedSize:  len(p.PlayedCards),
		}
	}
	return view, nil
}
