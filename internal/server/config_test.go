package server

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/velocity-games/slipstream/internal/race"
)

const sampleConfig = `
server {
  address         = "0.0.0.0"
  port            = 9090
  turn_timeout_ms = 15000
}

track "street" {
  spaces       = 48
  start_finish = 2

  corner {
    position    = 12
    speed_limit = 3
  }

  corner {
    position    = 36
    speed_limit = 2
  }

  road {
    corner           = 1
    limit_delta      = -1
    overheat_penalty = 1
  }
}

room "night" {
  track = "street"
  laps  = 3

  weather {
    name           = "rain"
    cooldown_bonus = 1
  }
}

room "solo" {
  track       = "street"
  mode        = "qualifying"
  max_players = 1
}
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "server.hcl")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadServerConfig(t *testing.T) {
	t.Run("missing file falls back to defaults", func(t *testing.T) {
		cfg, err := LoadServerConfig(filepath.Join(t.TempDir(), "nope.hcl"))
		require.NoError(t, err)
		assert.Equal(t, DefaultServerConfig(), cfg)
		assert.NoError(t, cfg.Validate())
	})

	t.Run("parses a full file", func(t *testing.T) {
		cfg, err := LoadServerConfig(writeConfig(t, sampleConfig))
		require.NoError(t, err)
		require.NoError(t, cfg.Validate())

		assert.Equal(t, "0.0.0.0:9090", cfg.GetServerAddress())
		assert.Equal(t, 15000, cfg.Server.TurnTimeoutMs)

		track := cfg.GetTrackByName("street")
		require.NotNil(t, track)
		assert.Equal(t, 48, track.Spaces)
		assert.Equal(t, 2, track.StartFinish)
		require.Len(t, track.Corners, 2)
		assert.Equal(t, 36, track.Corners[1].Position)

		require.Len(t, cfg.Rooms, 2)
		night := cfg.Rooms[0]
		assert.Equal(t, "night", night.Name)
		assert.Equal(t, 3, night.LapTarget)
		require.NotNil(t, night.Weather)
		assert.Equal(t, "rain", night.Weather.Name)
	})

	t.Run("fills in room defaults", func(t *testing.T) {
		cfg, err := LoadServerConfig(writeConfig(t, sampleConfig))
		require.NoError(t, err)

		night := cfg.Rooms[0]
		assert.Equal(t, "race", night.Mode)
		assert.Equal(t, 4, night.MaxPlayers)
	})

	t.Run("rejects malformed hcl", func(t *testing.T) {
		_, err := LoadServerConfig(writeConfig(t, `server { port = `))
		assert.Error(t, err)
	})
}

func TestServerConfigValidate(t *testing.T) {
	base := func() *ServerConfig {
		cfg, err := LoadServerConfig(writeConfig(t, sampleConfig))
		require.NoError(t, err)
		return cfg
	}

	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, base().Validate())
	})

	t.Run("bad port", func(t *testing.T) {
		cfg := base()
		cfg.Server.Port = 70000
		assert.Error(t, cfg.Validate())
	})

	t.Run("track too small", func(t *testing.T) {
		cfg := base()
		cfg.Tracks[0].Spaces = 2
		assert.Error(t, cfg.Validate())
	})

	t.Run("corner out of range", func(t *testing.T) {
		cfg := base()
		cfg.Tracks[0].Corners[0].Position = 48
		assert.Error(t, cfg.Validate())
	})

	t.Run("road references missing corner", func(t *testing.T) {
		cfg := base()
		cfg.Tracks[0].Roads[0].Corner = 5
		assert.Error(t, cfg.Validate())
	})

	t.Run("room with unknown track", func(t *testing.T) {
		cfg := base()
		cfg.Rooms[0].Track = "imaginary"
		assert.Error(t, cfg.Validate())
	})

	t.Run("qualifying must hold one player", func(t *testing.T) {
		cfg := base()
		cfg.Rooms[1].MaxPlayers = 2
		assert.Error(t, cfg.Validate())
	})

	t.Run("race needs at least two players", func(t *testing.T) {
		cfg := base()
		cfg.Rooms[0].MaxPlayers = 1
		assert.Error(t, cfg.Validate())
	})
}

func TestRoomConfigs(t *testing.T) {
	cfg, err := LoadServerConfig(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	rooms := cfg.RoomConfigs()
	require.Len(t, rooms, 2)

	night := rooms[0]
	assert.Equal(t, "night", night.Name)
	assert.Equal(t, race.ModeRace, night.Mode)
	assert.Equal(t, 15*time.Second, night.TurnTimeout)
	require.NotNil(t, night.Weather)
	assert.Equal(t, 1, night.Weather.CooldownBonus)

	// Corner ids follow declaration order so roads can reference them.
	require.Len(t, night.Track.Corners, 2)
	assert.Equal(t, 0, night.Track.Corners[0].ID)
	assert.Equal(t, 1, night.Track.Corners[1].ID)
	require.Len(t, night.Roads, 1)
	assert.Equal(t, race.RoadCondition{Corner: 1, LimitDelta: -1, OverheatPenalty: 1}, night.Roads[0])

	solo := rooms[1]
	assert.Equal(t, race.ModeQualifying, solo.Mode)
	assert.Equal(t, 1, solo.MaxPlayers)
}
