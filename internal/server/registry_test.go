package server

import (
	"io"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry(quartz.NewMock(t), log.New(io.Discard))
	t.Cleanup(r.Close)
	return r
}

func testRoomConfig(name string) RoomConfig {
	return RoomConfig{
		Name:       name,
		Track:      controllerTrack(),
		MaxPlayers: 2,
		LapTarget:  2,
	}
}

func TestRegistryIdentify(t *testing.T) {
	t.Run("mints a fresh identity", func(t *testing.T) {
		r := testRegistry(t)
		id, token := r.Identify("ayrton", "")
		assert.NotEmpty(t, id)
		assert.NotEmpty(t, token)
		assert.NotEqual(t, id, token)
	})

	t.Run("valid token resumes the same identity", func(t *testing.T) {
		r := testRegistry(t)
		id, token := r.Identify("ayrton", "")
		id2, token2 := r.Identify("", token)
		assert.Equal(t, id, id2)
		assert.Equal(t, token, token2)
	})

	t.Run("unknown token mints a new identity", func(t *testing.T) {
		r := testRegistry(t)
		id, _ := r.Identify("ayrton", "")
		id2, token2 := r.Identify("ayrton", "made-up-token")
		assert.NotEqual(t, id, id2)
		assert.NotEqual(t, "made-up-token", token2)
	})

	t.Run("identities are distinct per player", func(t *testing.T) {
		r := testRegistry(t)
		id1, tok1 := r.Identify("ayrton", "")
		id2, tok2 := r.Identify("alain", "")
		assert.NotEqual(t, id1, id2)
		assert.NotEqual(t, tok1, tok2)
	})
}

func TestRegistryRooms(t *testing.T) {
	t.Run("first room becomes the default", func(t *testing.T) {
		r := testRegistry(t)
		first, err := r.AddRoom(testRoomConfig("monza"))
		require.NoError(t, err)
		_, err = r.AddRoom(testRoomConfig("spa"))
		require.NoError(t, err)

		assert.Same(t, first, r.Room(""))
		assert.Same(t, first, r.Room("monza"))
	})

	t.Run("lookup by name", func(t *testing.T) {
		r := testRegistry(t)
		_, err := r.AddRoom(testRoomConfig("monza"))
		require.NoError(t, err)
		spa, err := r.AddRoom(testRoomConfig("spa"))
		require.NoError(t, err)

		assert.Same(t, spa, r.Room("spa"))
		assert.Nil(t, r.Room("suzuka"))
	})

	t.Run("duplicate names are rejected", func(t *testing.T) {
		r := testRegistry(t)
		_, err := r.AddRoom(testRoomConfig("monza"))
		require.NoError(t, err)
		_, err = r.AddRoom(testRoomConfig("monza"))
		assert.Error(t, err)
	})
}
