package server

import (
	"context"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/velocity-games/slipstream/internal/race"
)

// seatSink collects outbound messages per seat.
type seatSink struct {
	messages map[int][]*Message
}

func newSeatSink() *seatSink {
	return &seatSink{messages: make(map[int][]*Message)}
}

func (s *seatSink) SendToSeat(seat int, msg *Message) {
	s.messages[seat] = append(s.messages[seat], msg)
}

func (s *seatSink) lastOfType(seat int, typ MessageType) *Message {
	msgs := s.messages[seat]
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Type == typ {
			return msgs[i]
		}
	}
	return nil
}

func (s *seatSink) countOfType(seat int, typ MessageType) int {
	n := 0
	for _, msg := range s.messages[seat] {
		if msg.Type == typ {
			n++
		}
	}
	return n
}

func controllerTrack() race.Track {
	return race.Track{
		Name:        "test",
		TotalSpaces: 100,
		StartFinish: 0,
		Corners: []race.Corner{
			{ID: 0, Position: 25, SpeedLimit: 3},
			{ID: 1, Position: 75, SpeedLimit: 2},
		},
	}
}

type controllerFixture struct {
	controller *Controller
	sink       *seatSink
	clock      *quartz.Mock
	connected  map[int]bool
}

func newControllerFixture(t *testing.T, players int, timeout time.Duration) *controllerFixture {
	t.Helper()
	names := make([]string, players)
	for i := range names {
		names[i] = fmt.Sprintf("driver%d", i)
	}
	state, err := race.NewRace(race.Config{
		Players:   names,
		Track:     controllerTrack(),
		Seed:      42,
		LapTarget: 2,
	})
	require.NoError(t, err)

	f := &controllerFixture{
		sink:      newSeatSink(),
		clock:     quartz.NewMock(t),
		connected: make(map[int]bool, players),
	}
	for i := 0; i < players; i++ {
		f.connected[i] = true
	}
	f.controller = NewController(state, f.sink, ControllerConfig{
		Clock:       f.clock,
		TurnTimeout: timeout,
		Connected:   func(seat int) bool { return f.connected[seat] },
		Logger:      log.New(io.Discard),
	})
	return f
}

func (f *controllerFixture) advance(t *testing.T, d time.Duration) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	f.clock.Advance(d).MustWait(ctx)
}

func TestControllerStart(t *testing.T) {
	f := newControllerFixture(t, 2, 0)
	f.controller.Start()

	for seat := 0; seat < 2; seat++ {
		msg := f.sink.lastOfType(seat, MessageTypePhaseChanged)
		require.NotNil(t, msg, "seat %d", seat)
	}
	assert.Equal(t, race.PhaseGearShift, f.controller.State().Phase)
}

func TestControllerSimultaneousPhase(t *testing.T) {
	t.Run("invalid action is rejected on arrival", func(t *testing.T) {
		f := newControllerFixture(t, 2, 0)
		f.controller.Start()

		f.controller.HandleAction(0, MessageTypeGearShift, GameActionData{Gear: 4})

		require.NotNil(t, f.sink.lastOfType(0, MessageTypeActionRejected))
		assert.Nil(t, f.sink.lastOfType(1, MessageTypeActionRejected), "rejection goes to the offender only")
		assert.Equal(t, race.PhaseGearShift, f.controller.State().Phase, "phase does not move")
	})

	t.Run("batch executes once every seat has acted", func(t *testing.T) {
		f := newControllerFixture(t, 2, 0)
		f.controller.Start()

		f.controller.HandleAction(0, MessageTypeGearShift, GameActionData{Gear: 2})
		assert.Equal(t, race.PhaseGearShift, f.controller.State().Phase, "waiting for seat 1")

		f.controller.HandleAction(1, MessageTypeGearShift, GameActionData{Gear: 2})
		assert.Equal(t, race.PhasePlayCards, f.controller.State().Phase)
		assert.Equal(t, 2, f.controller.State().Players[0].Gear)
		assert.Equal(t, 2, f.controller.State().Players[1].Gear)

		require.NotNil(t, f.sink.lastOfType(0, MessageTypePhaseChanged))
	})

	t.Run("resubmission overwrites the stored action", func(t *testing.T) {
		f := newControllerFixture(t, 2, 0)
		f.controller.Start()

		f.controller.HandleAction(0, MessageTypeGearShift, GameActionData{Gear: 3})
		f.controller.HandleAction(0, MessageTypeGearShift, GameActionData{Gear: 2})
		f.controller.HandleAction(1, MessageTypeGearShift, GameActionData{Gear: 1})

		assert.Equal(t, 2, f.controller.State().Players[0].Gear)
	})

	t.Run("stale action types are dropped silently", func(t *testing.T) {
		f := newControllerFixture(t, 2, 0)
		f.controller.Start()

		f.controller.HandleAction(0, MessageTypeReactBoost, GameActionData{})

		assert.Nil(t, f.sink.lastOfType(0, MessageTypeActionRejected))
		assert.Equal(t, race.PhaseGearShift, f.controller.State().Phase)
	})
}

func TestControllerDisconnectDefaults(t *testing.T) {
	t.Run("disconnected seat gets the phase default", func(t *testing.T) {
		f := newControllerFixture(t, 2, 0)
		f.controller.Start()

		f.connected[1] = false
		f.controller.HandleDisconnect(1)

		// Seat 0's submission is now the last one outstanding.
		f.controller.HandleAction(0, MessageTypeGearShift, GameActionData{Gear: 2})

		assert.Equal(t, race.PhasePlayCards, f.controller.State().Phase)
		assert.Equal(t, 2, f.controller.State().Players[0].Gear)
		assert.Equal(t, race.MinGear, f.controller.State().Players[1].Gear, "default keeps the gear")
	})

	t.Run("disconnect of the last missing seat triggers the batch", func(t *testing.T) {
		f := newControllerFixture(t, 2, 0)
		f.controller.Start()

		f.controller.HandleAction(0, MessageTypeGearShift, GameActionData{Gear: 2})
		assert.Equal(t, race.PhaseGearShift, f.controller.State().Phase, "still waiting on seat 1")

		// No further client message: the disconnect alone must complete the
		// phase with seat 1's default.
		f.connected[1] = false
		f.controller.HandleDisconnect(1)

		assert.Equal(t, race.PhasePlayCards, f.controller.State().Phase)
		assert.Equal(t, 2, f.controller.State().Players[0].Gear)
		assert.Equal(t, race.MinGear, f.controller.State().Players[1].Gear)
	})

	t.Run("disconnect after submitting does not lose the action", func(t *testing.T) {
		f := newControllerFixture(t, 2, 0)
		f.controller.Start()

		f.controller.HandleAction(1, MessageTypeGearShift, GameActionData{Gear: 2})
		f.connected[1] = false
		f.controller.HandleDisconnect(1)

		f.controller.HandleAction(0, MessageTypeGearShift, GameActionData{Gear: 1})
		assert.Equal(t, 2, f.controller.State().Players[1].Gear, "submitted action wins over the default")
	})
}

func TestControllerTurnTimer(t *testing.T) {
	t.Run("timeout fills missing simultaneous seats", func(t *testing.T) {
		f := newControllerFixture(t, 2, 30*time.Second)
		f.controller.Start()

		f.controller.HandleAction(0, MessageTypeGearShift, GameActionData{Gear: 3})
		assert.Equal(t, race.PhaseGearShift, f.controller.State().Phase)

		f.advance(t, 30*time.Second)

		assert.Equal(t, race.PhasePlayCards, f.controller.State().Phase)
		assert.Equal(t, 3, f.controller.State().Players[0].Gear)
		assert.Equal(t, race.MinGear, f.controller.State().Players[1].Gear)
	})

	t.Run("sequential timeout resolves the active seat", func(t *testing.T) {
		f := newControllerFixture(t, 2, 30*time.Second)
		state := f.controller.State()
		state.Phase = race.PhaseReact
		state.TurnCursor = 0
		state.ActivePlayer = state.TurnOrder[0]
		f.controller.Start()

		first := f.controller.State().ActivePlayer
		f.advance(t, 30*time.Second)

		assert.Equal(t, race.PhaseReact, f.controller.State().Phase)
		assert.NotEqual(t, first, f.controller.State().ActivePlayer, "default ended the turn")
	})

	t.Run("actions in time cancel the pending default", func(t *testing.T) {
		f := newControllerFixture(t, 2, 30*time.Second)
		f.controller.Start()

		f.advance(t, 10*time.Second)
		f.controller.HandleAction(0, MessageTypeGearShift, GameActionData{Gear: 2})
		f.controller.HandleAction(1, MessageTypeGearShift, GameActionData{Gear: 2})

		assert.Equal(t, race.PhasePlayCards, f.controller.State().Phase)
		assert.Equal(t, 2, f.controller.State().Players[1].Gear)
	})
}

func TestControllerSequentialPhase(t *testing.T) {
	setupReact := func(t *testing.T) *controllerFixture {
		f := newControllerFixture(t, 2, 0)
		state := f.controller.State()
		state.Phase = race.PhaseReact
		state.TurnCursor = 0
		state.ActivePlayer = state.TurnOrder[0]
		f.controller.Start()
		return f
	}

	t.Run("active seat acts, others are rejected", func(t *testing.T) {
		f := setupReact(t)
		active := f.controller.State().ActivePlayer
		other := 1 - active

		f.controller.HandleAction(other, MessageTypeReactDone, GameActionData{})
		require.NotNil(t, f.sink.lastOfType(other, MessageTypeActionRejected))

		f.controller.HandleAction(active, MessageTypeReactDone, GameActionData{})
		assert.Equal(t, other, f.controller.State().ActivePlayer)
	})

	t.Run("cooldown keeps the turn", func(t *testing.T) {
		f := setupReact(t)
		active := f.controller.State().ActivePlayer

		f.controller.HandleAction(active, MessageTypeReactCooldown, GameActionData{})
		assert.Equal(t, active, f.controller.State().ActivePlayer)
		require.NotNil(t, f.sink.lastOfType(active, MessageTypeStateUpdate))
	})

	t.Run("disconnecting the active seat ends the turn", func(t *testing.T) {
		f := setupReact(t)
		active := f.controller.State().ActivePlayer

		f.connected[active] = false
		f.controller.HandleDisconnect(active)

		assert.NotEqual(t, active, f.controller.State().ActivePlayer)
	})
}

func TestControllerRecovery(t *testing.T) {
	t.Run("first batch failure restarts the phase", func(t *testing.T) {
		f := newControllerFixture(t, 2, 0)
		f.controller.Start()
		before := f.sink.countOfType(0, MessageTypePhaseChanged)

		f.controller.recoverSimultaneous(fmt.Errorf("boom"))

		assert.Equal(t, race.PhaseGearShift, f.controller.State().Phase)
		assert.Empty(t, f.controller.pending)
		assert.Equal(t, before+1, f.sink.countOfType(0, MessageTypePhaseChanged), "phase is re-announced")
	})

	t.Run("second failure force-advances", func(t *testing.T) {
		f := newControllerFixture(t, 2, 0)
		f.controller.Start()

		f.controller.recoverSimultaneous(fmt.Errorf("boom"))
		f.controller.recoverSimultaneous(fmt.Errorf("boom again"))

		assert.Equal(t, race.PhasePlayCards, f.controller.State().Phase)
	})

	t.Run("a clean phase change resets the recovery count", func(t *testing.T) {
		f := newControllerFixture(t, 2, 0)
		f.controller.Start()

		f.controller.recoverSimultaneous(fmt.Errorf("boom"))
		f.controller.HandleAction(0, MessageTypeGearShift, GameActionData{Gear: 1})
		f.controller.HandleAction(1, MessageTypeGearShift, GameActionData{Gear: 1})

		assert.Equal(t, race.PhasePlayCards, f.controller.State().Phase)
		assert.Equal(t, 0, f.controller.recoveries)
	})
}

func TestControllerReconnect(t *testing.T) {
	f := newControllerFixture(t, 2, 0)
	f.controller.Start()
	before := f.sink.countOfType(1, MessageTypePhaseChanged)

	f.controller.HandleReconnect(1)

	assert.Equal(t, before+1, f.sink.countOfType(1, MessageTypePhaseChanged))
	assert.Equal(t, before, f.sink.countOfType(0, MessageTypePhaseChanged), "only the reconnecting seat is resent")
}

func TestControllerFinish(t *testing.T) {
	f := newControllerFixture(t, 2, 0)
	state := f.controller.State()
	state.Phase = race.PhaseReplenish
	state.Players[0].LapCount = state.LapTarget

	f.controller.Start()

	assert.Equal(t, race.StatusFinished, f.controller.State().Status)
	for seat := 0; seat < 2; seat++ {
		require.NotNil(t, f.sink.lastOfType(seat, MessageTypeRaceFinished), "seat %d", seat)
	}

	// The session ignores everything after the flag drops.
	before := len(f.sink.messages[0])
	f.controller.HandleAction(0, MessageTypeGearShift, GameActionData{Gear: 2})
	assert.Equal(t, before, len(f.sink.messages[0]))
}
