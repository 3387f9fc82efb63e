package broadcast

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	hsnet "github.com/hyperscape/server/internal/net"
	"github.com/hyperscape/server/internal/net/packet"
	"github.com/hyperscape/server/internal/world"
)

// testWorld builds a state with one viewer player at the origin and one
// observed entity nearby, backed by a real session table.
func testWorld(t *testing.T) (*Broadcaster, *hsnet.Session, *world.State) {
	t.Helper()

	aoi := world.NewAOIManager(50, 2)
	state := world.NewState(aoi)
	sessions := hsnet.NewSessionTable()

	sess := hsnet.NewSession(nil, "sock-viewer", "127.0.0.1", 8, 8, 0, zap.NewNop())
	sessions.Add(sess)

	viewer := &world.Player{
		Entity:   world.Entity{ID: "viewer", Type: world.TypePlayer},
		SocketID: sess.ID,
	}
	state.AddPlayer(viewer)

	state.AddEntity(&world.Entity{ID: "mob-1", Type: world.TypeMob, X: 10, Z: 10})

	bc := NewBroadcaster(NewManager(sessions, zap.NewNop()), state, aoi, zap.NewNop())
	return bc, sess, state
}

func TestFlushDeliversToSubscriber(t *testing.T) {
	bc, sess, _ := testWorld(t)

	bc.QueueEntityUpdate(Update{
		EntityID: "mob-1",
		Flags:    FlagPosition,
		Priority: PriorityNormal,
		X:        10, Z: 10,
	})
	bc.Flush()

	assert.Equal(t, 1, sess.PendingOut())
}

func TestFlushCoalescesPerEntity(t *testing.T) {
	bc, sess, _ := testWorld(t)

	bc.QueueEntityUpdate(Update{EntityID: "mob-1", Flags: FlagPosition, X: 1})
	bc.QueueEntityUpdate(Update{EntityID: "mob-1", Flags: FlagHealth, Health: 9, MaxHealth: 10})
	bc.Flush()

	require.Equal(t, 1, sess.PendingOut(), "one frame for one entity")
}

func TestFlushThrottlesDistantEntity(t *testing.T) {
	bc, sess, state := testWorld(t)

	// 60m away: squared distance 3600 falls in the every-4-ticks tier but
	// still inside the 2-cell view window.
	state.MoveEntity("mob-1", 60, 0, 0)

	for i := 0; i < 4; i++ {
		bc.QueueEntityUpdate(Update{EntityID: "mob-1", Flags: FlagPosition, X: 60})
		bc.Flush()
	}

	// Tick 1 sends, ticks 2-4 are suppressed.
	assert.Equal(t, 1, sess.PendingOut())
}

func TestCriticalBypassesThrottle(t *testing.T) {
	bc, sess, state := testWorld(t)
	state.MoveEntity("mob-1", 60, 0, 0)

	for i := 0; i < 3; i++ {
		bc.QueueEntityUpdate(Update{
			EntityID: "mob-1",
			Flags:    FlagHealth,
			Priority: PriorityCritical,
			Health:   3 - i,
		})
		bc.Flush()
	}

	assert.Equal(t, 3, sess.PendingOut())
}

func TestForgetViewerResetsThrottleState(t *testing.T) {
	bc, sess, state := testWorld(t)
	state.MoveEntity("mob-1", 60, 0, 0)

	bc.QueueEntityUpdate(Update{EntityID: "mob-1", Flags: FlagPosition})
	bc.Flush()
	require.Equal(t, 1, sess.PendingOut())

	bc.ForgetViewer(sess.ID)
	bc.QueueEntityUpdate(Update{EntityID: "mob-1", Flags: FlagPosition})
	bc.Flush()
	assert.Equal(t, 2, sess.PendingOut(), "fresh viewer state sends immediately")
}

// readBatchFrame pops one flushed frame off the session queue and decodes
// its batch records.
func readBatchFrame(t *testing.T, sess *hsnet.Session) []DecodedRecord {
	t.Helper()
	name, payload, err := packet.Decode(<-sess.OutQueue)
	require.NoError(t, err)
	require.Equal(t, packet.SEntityUpdates, name)
	recs, err := DecodeFrame(payload)
	require.NoError(t, err)
	return recs
}

func TestFlushCapsFrameAndCarriesRemainder(t *testing.T) {
	bc, sess, state := testWorld(t)

	// Enough nearby entities to exceed the frame cap by two records,
	// counting mob-1.
	for i := 0; i < MaxUpdatesPerBatch+1; i++ {
		id := fmt.Sprintf("mob-x%d", i)
		state.AddEntity(&world.Entity{ID: id, Type: world.TypeMob, X: 1, Z: 1})
		bc.QueueEntityUpdate(Update{EntityID: id, Flags: FlagPosition, X: 1, Z: 1})
	}
	bc.QueueEntityUpdate(Update{EntityID: "mob-1", Flags: FlagPosition, X: 10, Z: 10})

	bc.Flush()
	require.Equal(t, 1, sess.PendingOut(), "at most one frame per tick")
	sess.FlushOutput()
	assert.Len(t, readBatchFrame(t, sess), MaxUpdatesPerBatch)

	// The two leftover records go out on the next flush with no new input.
	bc.Flush()
	require.Equal(t, 1, sess.PendingOut())
	sess.FlushOutput()
	assert.Len(t, readBatchFrame(t, sess), 2)
}

func TestAOIDisabledDeliversOutsideViewWindow(t *testing.T) {
	bc, sess, state := testWorld(t)
	bc.AOIDisabled = true

	// Far beyond the two-cell view window.
	state.MoveEntity("mob-1", 500, 0, 500)
	bc.QueueEntityUpdate(Update{EntityID: "mob-1", Flags: FlagPosition, X: 500, Z: 500})
	bc.Flush()

	assert.Equal(t, 1, sess.PendingOut())
}
