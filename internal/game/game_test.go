package game

import (
	"testing"

	"go.uber.org/zap"

	"github.com/hyperscape/server/internal/broadcast"
	hsnet "github.com/hyperscape/server/internal/net"
	"github.com/hyperscape/server/internal/world"
)

type fixture struct {
	state    *world.State
	bc       *broadcast.Broadcaster
	sessions *hsnet.SessionTable
	terrain  world.FlatTerrain
	movement *MovementManager
	facing   *FaceDirectionManager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	aoi := world.NewAOIManager(50, 2)
	state := world.NewState(aoi)
	sessions := hsnet.NewSessionTable()
	terrain := world.FlatTerrain{Height: 0}

	bc := broadcast.NewBroadcaster(
		broadcast.NewManager(sessions, zap.NewNop()), state, aoi, zap.NewNop())
	facing := NewFaceDirectionManager(state, bc, false, zap.NewNop())
	movement := NewMovementManager(state, bc, terrain, facing, zap.NewNop())

	return &fixture{
		state:    state,
		bc:       bc,
		sessions: sessions,
		terrain:  terrain,
		movement: movement,
		facing:   facing,
	}
}

func (f *fixture) addPlayer(t *testing.T, id string, x, z float64) *world.Player {
	t.Helper()

	sess := hsnet.NewSession(nil, "sock-"+id, "127.0.0.1", 8, 64, 0, zap.NewNop())
	f.sessions.Add(sess)

	p := &world.Player{
		Entity: world.Entity{
			ID: id, Type: world.TypePlayer,
			X: x, Z: z, QW: 1,
			Health: 100, MaxHealth: 100, State: "idle",
		},
		SocketID:    sess.ID,
		CharacterID: id,
	}
	f.state.AddPlayer(p)
	return p
}
