package race

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPartition(t *testing.T) {
	s := newTestRace(t, 3, 21)

	t.Run("own hidden zones are verbatim", func(t *testing.T) {
		view, err := Partition(s, 1)
		require.NoError(t, err)

		assert.Equal(t, 1, view.Seat)
		assert.Equal(t, s.Players[1].Hand, view.Hand)
		assert.Equal(t, s.Players[1].EngineZone, view.EngineZone)
		assert.Equal(t, s.Players[1].DiscardPile, view.DiscardPile)
		assert.Equal(t, len(s.Players[1].DrawPile), view.DrawPileSize)
	})

	t.Run("opponents are counts only", func(t *testing.T) {
		view, err := Partition(s, 0)
		require.NoError(t, err)

		require.Len(t, view.Seats, 3)
		for i, seat := range view.Seats {
			assert.Equal(t, i, seat.Player)
			assert.Equal(t, len(s.Players[i].Hand), seat.HandSize)
			assert.Equal(t, s.Players[i].Position, seat.Position)
			assert.Equal(t, s.Players[i].Gear, seat.Gear)
		}
	})

	t.Run("views share no memory with the state", func(t *testing.T) {
		view, err := Partition(s, 0)
		require.NoError(t, err)

		view.Hand[0] = Heat()
		view.Seats[1].Gear = 9
		view.TurnOrder[0] = 99
		view.Corners[0].SpeedLimit = 0

		assert.NotEqual(t, Heat(), s.Players[0].Hand[0])
		assert.Equal(t, MinGear, s.Players[1].Gear)
		assert.Equal(t, 0, s.TurnOrder[0])
		assert.Equal(t, 3, s.Corners[0].SpeedLimit)
	})

	t.Run("public race fields carry over", func(t *testing.T) {
		view, err := Partition(s, 2)
		require.NoError(t, err)

		assert.Equal(t, s.Round, view.Round)
		assert.Equal(t, s.Phase, view.Phase)
		assert.Equal(t, s.LapTarget, view.LapTarget)
		assert.Equal(t, s.TotalSpaces, view.TotalSpaces)
	})

	t.Run("bad seat", func(t *testing.T) {
		_, err := Partition(s, 3)
		assert.Error(t, err)
		_, err = Partition(s, -1)
		assert.Error(t, err)
	})
}
