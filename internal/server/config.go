package server

import (
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/velocity-games/slipstream/internal/race"
)

// ServerConfig represents the complete server configuration
type ServerConfig struct {
	Server ServerSettings `hcl:"server,block"`
	Tracks []TrackConfig  `hcl:"track,block"`
	Rooms  []RoomSpec     `hcl:"room,block"`
}

// ServerSettings contains server-level configuration
type ServerSettings struct {
	Address       string `hcl:"address,optional"`
	Port          int    `hcl:"port,optional"`
	LogLevel      string `hcl:"log_level,optional"`
	LogFile       string `hcl:"log_file,optional"`
	TurnTimeoutMs int    `hcl:"turn_timeout_ms,optional"`
}

// TrackConfig defines a circuit layout
type TrackConfig struct {
	Name        string         `hcl:"name,label"`
	Spaces      int            `hcl:"spaces"`
	StartFinish int            `hcl:"start_finish,optional"`
	Corners     []CornerConfig `hcl:"corner,block"`
	Roads       []RoadConfig   `hcl:"road,block"`
}

// CornerConfig defines one corner on a track
type CornerConfig struct {
	Position   int `hcl:"position"`
	SpeedLimit int `hcl:"speed_limit"`
}

// RoadConfig modifies the sector of one corner, indexed by corner order
type RoadConfig struct {
	Corner          int `hcl:"corner"`
	LimitDelta      int `hcl:"limit_delta,optional"`
	OverheatPenalty int `hcl:"overheat_penalty,optional"`
	SlipstreamBonus int `hcl:"slipstream_bonus,optional"`
}

// WeatherConfig applies a race-wide condition to a room
type WeatherConfig struct {
	Name               string `hcl:"name"`
	CooldownBonus      int    `hcl:"cooldown_bonus,optional"`
	SlipstreamBonus    int    `hcl:"slipstream_bonus,optional"`
	SlipstreamDisabled bool   `hcl:"slipstream_disabled,optional"`
	ExtraSpinoutStress int    `hcl:"extra_spinout_stress,optional"`
}

// RoomSpec defines one race room
type RoomSpec struct {
	Name       string         `hcl:"name,label"`
	Track      string         `hcl:"track"`
	MaxPlayers int            `hcl:"max_players,optional"`
	LapTarget  int            `hcl:"laps,optional"`
	Mode       string         `hcl:"mode,optional"`
	Seed       int64          `hcl:"seed,optional"`
	Weather    *WeatherConfig `hcl:"weather,block"`
}

// DefaultServerConfig returns default server configuration: one oval track
// and one open room racing it.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Server: ServerSettings{
			Address:       "localhost",
			Port:          8080,
			LogLevel:      "info",
			LogFile:       "slipstream-server.log",
			TurnTimeoutMs: 30000,
		},
		Tracks: []TrackConfig{
			{
				Name:        "oval",
				Spaces:      60,
				StartFinish: 0,
				Corners: []CornerConfig{
					{Position: 15, SpeedLimit: 4},
					{Position: 30, SpeedLimit: 3},
					{Position: 45, SpeedLimit: 4},
				},
			},
		},
		Rooms: []RoomSpec{
			{
				Name:       "main",
				Track:      "oval",
				MaxPlayers: 4,
				LapTarget:  2,
				Mode:       "race",
			},
		},
	}
}

// LoadServerConfig loads server configuration from HCL file
func LoadServerConfig(filename string) (*ServerConfig, error) {
	// Check if file exists
	if _, err := os.Stat(filename); os.IsNotExist(err) {
		return DefaultServerConfig(), nil
	}

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file: %s", diags.Error())
	}

	var config ServerConfig
	diags = gohcl.DecodeBody(file.Body, nil, &config)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL: %s", diags.Error())
	}

	// Apply defaults for missing values
	if config.Server.Address == "" {
		config.Server.Address = "localhost"
	}
	if config.Server.Port == 0 {
		config.Server.Port = 8080
	}
	if config.Server.LogLevel == "" {
		config.Server.LogLevel = "info"
	}
	if config.Server.LogFile == "" {
		config.Server.LogFile = "slipstream-server.log"
	}
	if config.Server.TurnTimeoutMs == 0 {
		config.Server.TurnTimeoutMs = 30000
	}

	// Apply defaults to rooms
	for i := range config.Rooms {
		if config.Rooms[i].Mode == "" {
			config.Rooms[i].Mode = "race"
		}
		if config.Rooms[i].LapTarget == 0 {
			config.Rooms[i].LapTarget = 2
		}
		if config.Rooms[i].MaxPlayers == 0 {
			if config.Rooms[i].Mode == "qualifying" {
				config.Rooms[i].MaxPlayers = 1
			} else {
				config.Rooms[i].MaxPlayers = 4
			}
		}
	}

	return &config, nil
}

// Validate validates the server configuration
func (c *ServerConfig) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}

	if len(c.Tracks) == 0 {
		return fmt.Errorf("at least one track must be configured")
	}
	tracks := make(map[string]*TrackConfig, len(c.Tracks))
	for i := range c.Tracks {
		track := &c.Tracks[i]
		if track.Spaces < 3 {
			return fmt.Errorf("track %s: needs at least 3 spaces", track.Name)
		}
		if track.StartFinish < 0 || track.StartFinish >= track.Spaces {
			return fmt.Errorf("track %s: start_finish %d out of range", track.Name, track.StartFinish)
		}
		if len(track.Corners) == 0 {
			return fmt.Errorf("track %s: needs at least one corner", track.Name)
		}
		for _, corner := range track.Corners {
			if corner.Position < 0 || corner.Position >= track.Spaces {
				return fmt.Errorf("track %s: corner position %d out of range", track.Name, corner.Position)
			}
			if corner.SpeedLimit < 1 {
				return fmt.Errorf("track %s: corner at %d has invalid speed limit %d", track.Name, corner.Position, corner.SpeedLimit)
			}
		}
		for _, road := range track.Roads {
			if road.Corner < 0 || road.Corner >= len(track.Corners) {
				return fmt.Errorf("track %s: road references corner %d of %d", track.Name, road.Corner, len(track.Corners))
			}
		}
		tracks[track.Name] = track
	}

	if len(c.Rooms) == 0 {
		return fmt.Errorf("at least one room must be configured")
	}
	for _, room := range c.Rooms {
		if _, ok := tracks[room.Track]; !ok {
			return fmt.Errorf("room %s: unknown track %s", room.Name, room.Track)
		}
		if room.Mode != "race" && room.Mode != "qualifying" {
			return fmt.Errorf("room %s: invalid mode %s", room.Name, room.Mode)
		}
		if room.Mode == "qualifying" && room.MaxPlayers != 1 {
			return fmt.Errorf("room %s: qualifying rooms hold exactly one player", room.Name)
		}
		if room.Mode == "race" && room.MaxPlayers < 2 {
			return fmt.Errorf("room %s: race rooms need at least 2 players", room.Name)
		}
		if room.LapTarget < 1 {
			return fmt.Errorf("room %s: laps must be positive", room.Name)
		}
	}

	return nil
}

// GetServerAddress returns the full server address
func (c *ServerConfig) GetServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Address, c.Server.Port)
}

// GetTrackByName returns a track configuration by name
func (c *ServerConfig) GetTrackByName(name string) *TrackConfig {
	for i := range c.Tracks {
		if c.Tracks[i].Name == name {
			return &c.Tracks[i]
		}
	}
	return nil
}

// RaceTrack converts a track configuration into the engine's layout. Corner
// ids follow declaration order.
func (t *TrackConfig) RaceTrack() race.Track {
	corners := make([]race.Corner, len(t.Corners))
	for i, corner := range t.Corners {
		corners[i] = race.Corner{
			ID:         i,
			SpeedLimit: corner.SpeedLimit,
			Position:   corner.Position,
		}
	}
	return race.Track{
		Name:        t.Name,
		TotalSpaces: t.Spaces,
		StartFinish: t.StartFinish,
		Corners:     corners,
	}
}

// RoomConfigs expands the configured rooms into runnable room configs.
func (c *ServerConfig) RoomConfigs() []RoomConfig {
	timeout := time.Duration(c.Server.TurnTimeoutMs) * time.Millisecond
	configs := make([]RoomConfig, 0, len(c.Rooms))
	for _, room := range c.Rooms {
		track := c.GetTrackByName(room.Track)
		if track == nil {
			continue
		}

		mode := race.ModeRace
		if room.Mode == "qualifying" {
			mode = race.ModeQualifying
		}

		var weather *race.Weather
		if room.Weather != nil {
			weather = &race.Weather{
				Name:               room.Weather.Name,
				CooldownBonus:      room.Weather.CooldownBonus,
				SlipstreamBonus:    room.Weather.SlipstreamBonus,
				SlipstreamDisabled: room.Weather.SlipstreamDisabled,
				ExtraSpinoutStress: room.Weather.ExtraSpinoutStress,
			}
		}

		roads := make([]race.RoadCondition, 0, len(track.Roads))
		for _, road := range track.Roads {
			roads = append(roads, race.RoadCondition{
				Corner:          road.Corner,
				LimitDelta:      road.LimitDelta,
				OverheatPenalty: road.OverheatPenalty,
				SlipstreamBonus: road.SlipstreamBonus,
			})
		}

		configs = append(configs, RoomConfig{
			Name:        room.Name,
			Track:       track.RaceTrack(),
			MaxPlayers:  room.MaxPlayers,
			LapTarget:   room.LapTarget,
			Mode:        mode,
			Seed:        room.Seed,
			TurnTimeout: timeout,
			Weather:     weather,
			Roads:       roads,
		})
	}
	return configs
}
