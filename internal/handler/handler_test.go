package handler

import (
	"io"
	stdnet "net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hyperscape/server/internal/broadcast"
	"github.com/hyperscape/server/internal/config"
	"github.com/hyperscape/server/internal/core/event"
	"github.com/hyperscape/server/internal/game"
	"github.com/hyperscape/server/internal/game/trade"
	hsnet "github.com/hyperscape/server/internal/net"
	"github.com/hyperscape/server/internal/net/packet"
	"github.com/hyperscape/server/internal/world"
)

// newTestDeps builds a handler dependency set on an in-memory world, with
// no database behind it. Handlers that reach for a repo are not covered
// here.
func newTestDeps(t *testing.T) *Deps {
	t.Helper()

	aoi := world.NewAOIManager(50, 2)
	state := world.NewState(aoi)
	sessions := hsnet.NewSessionTable()
	terrain := world.FlatTerrain{Height: 0}

	bc := broadcast.NewBroadcaster(
		broadcast.NewManager(sessions, zap.NewNop()), state, aoi, zap.NewNop())
	facing := game.NewFaceDirectionManager(state, bc, false, zap.NewNop())
	movement := game.NewMovementManager(state, bc, terrain, facing, zap.NewNop())
	validator := game.NewPositionValidator(state, terrain, bc, zap.NewNop())

	cfg := &config.Config{}
	cfg.Server.PlayerLimit = 100
	cfg.Network.TickRate = config.Duration{Duration: 50 * time.Millisecond}

	trades := trade.NewSystem(config.TradeConfig{
		RequestCooldown: config.Duration{Duration: 10 * time.Second},
		RequestTimeout:  config.Duration{Duration: 30 * time.Second},
		ActivityTimeout: config.Duration{Duration: 2 * time.Minute},
	}, zap.NewNop())

	return &Deps{
		Config:    cfg,
		Log:       zap.NewNop(),
		World:     state,
		Terrain:   terrain,
		Bus:       event.NewBus(),
		Bc:        bc,
		Sessions:  sessions,
		Movement:  movement,
		Facing:    facing,
		Validator: validator,
		Trades:    trades,
		Chat:      NewChatLog(),
		SpawnCh:   make(chan *SpawnRequest, 8),
	}
}

// addPlayer puts a live character into the world bound to a buffered,
// connection-less session.
func addPlayer(t *testing.T, deps *Deps, id string, x, z float64) (*world.Player, *hsnet.Session) {
	t.Helper()

	sess := hsnet.NewSession(nil, "sock-"+id, "127.0.0.1", 8, 64, 0, zap.NewNop())
	sess.AccountID = "acct-" + id
	sess.CharacterID = id
	sess.PlayerID = id
	sess.SetState(packet.StateInWorld)
	deps.Sessions.Add(sess)

	p := &world.Player{
		Entity: world.Entity{
			ID: id, Type: world.TypePlayer,
			X: x, Z: z, QW: 1,
			Health: 100, MaxHealth: 100, State: "idle",
		},
		SocketID:    sess.ID,
		AccountID:   sess.AccountID,
		CharacterID: id,
	}
	deps.World.AddPlayer(p)
	deps.Validator.Track(p)
	return p, sess
}

// pipeSession backs a session with a real connection so close frames have
// somewhere to go. A drain goroutine keeps the far end from blocking the
// write.
func pipeSession(t *testing.T, id string) *hsnet.Session {
	t.Helper()

	srv, cli := stdnet.Pipe()
	go io.Copy(io.Discard, cli)
	t.Cleanup(func() {
		cli.Close()
		srv.Close()
	})
	return hsnet.NewSession(srv, id, "127.0.0.1", 8, 64, 0, zap.NewNop())
}

// readFrame pops the next queued frame off a session and splits it into
// packet name and payload.
func readFrame(t *testing.T, sess *hsnet.Session) (string, []byte) {
	t.Helper()

	select {
	case data := <-sess.OutQueue:
		name, payload, err := packet.Decode(data)
		require.NoError(t, err)
		return name, payload
	default:
		t.Fatal("no frame queued")
		return "", nil
	}
}
