package game

import (
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/hyperscape/server/internal/broadcast"
	"github.com/hyperscape/server/internal/net/packet"
	"github.com/hyperscape/server/internal/world"
)

// Movement speeds in meters per second.
const (
	WalkSpeed = 4.0
	RunSpeed  = 8.0
)

// snapDistSq is the squared distance under which a mover snaps onto its
// target and stops.
const snapDistSq = 0.09

// moveBroadcastInterval paces steady-state position broadcasts (~30 Hz).
const moveBroadcastInterval = 33 * time.Millisecond

type moverState struct {
	target   *world.Vector3
	run      bool
	lastEmit time.Time
}

// MovementManager advances click-to-move locomotion each tick. Start and
// stop transitions go out as discrete entityModified broadcasts; positions
// in between ride the batched update pipeline. Game loop only.
type MovementManager struct {
	state   *world.State
	bc      *broadcast.Broadcaster
	terrain world.Terrain
	facing  *FaceDirectionManager
	pool    *world.Vector3Pool
	log     *zap.Logger

	movers map[string]*moverState
}

func NewMovementManager(state *world.State, bc *broadcast.Broadcaster, terrain world.Terrain, facing *FaceDirectionManager, log *zap.Logger) *MovementManager {
	return &MovementManager{
		state:   state,
		bc:      bc,
		terrain: terrain,
		facing:  facing,
		pool:    world.NewVector3Pool(world.DefaultPoolSize),
		log:     log,
		movers:  make(map[string]*moverState),
	}
}

// MoveRequest starts or redirects movement toward a ground target.
func (m *MovementManager) MoveRequest(p *world.Player, x, z float64, run bool) {
	mv := m.movers[p.ID]
	starting := mv == nil
	if starting {
		mv = &moverState{}
		m.movers[p.ID] = mv
	}
	if mv.target == nil {
		mv.target = m.pool.Get()
	}
	mv.target.Set(x, 0, z)
	mv.run = run

	state := "walk"
	if run {
		state = "run"
	}
	p.State = state

	// Transition packet so clients begin interpolating immediately.
	m.bc.BroadcastToSubscribers(p.ID, packet.SEntityModified, map[string]any{
		"id":    p.ID,
		"state": state,
		"velocity": map[string]float64{
			"x": 0, "y": 0, "z": 0,
		},
		"target": map[string]float64{"x": x, "z": z},
	})
}

// Stop cancels movement without a terminal broadcast. Used on despawn.
func (m *MovementManager) Stop(playerID string) {
	mv := m.movers[playerID]
	if mv == nil {
		return
	}
	m.pool.Put(mv.target)
	delete(m.movers, playerID)
}

// Cancel stops an active mover where it stands and broadcasts the terminal
// idle packet, so viewers never keep interpolating toward the old target.
func (m *MovementManager) Cancel(p *world.Player) {
	mv := m.movers[p.ID]
	if mv == nil {
		return
	}
	m.pool.Put(mv.target)
	delete(m.movers, p.ID)

	p.State = "idle"
	p.Dirty = true

	m.bc.BroadcastToSubscribers(p.ID, packet.SEntityModified, map[string]any{
		"id":    p.ID,
		"state": "idle",
		"position": map[string]float64{
			"x": p.X, "y": p.Y, "z": p.Z,
		},
	})
}

// Moving reports whether the player has an active move target.
func (m *MovementManager) Moving(playerID string) bool {
	return m.movers[playerID] != nil
}

// Update advances every mover by one tick.
func (m *MovementManager) Update(dt time.Duration) {
	now := time.Now()
	for id, mv := range m.movers {
		p := m.state.Player(id)
		if p == nil {
			m.pool.Put(mv.target)
			delete(m.movers, id)
			continue
		}
		m.step(p, mv, dt, now)
	}
}

func (m *MovementManager) step(p *world.Player, mv *moverState, dt time.Duration, now time.Time) {
	dx := mv.target.X - p.X
	dz := mv.target.Z - p.Z
	distSq := dx*dx + dz*dz

	if distSq < snapDistSq {
		m.arrive(p, mv)
		return
	}

	speed := WalkSpeed
	if mv.run {
		speed = RunSpeed
	}
	step := speed * dt.Seconds()
	dist := math.Sqrt(distSq)
	if step >= dist {
		m.arrive(p, mv)
		return
	}

	nx := p.X + dx/dist*step
	nz := p.Z + dz/dist*step
	ny := world.GroundY(m.terrain, nx, nz, p.Y)

	diff := m.state.MovePlayer(p, nx, ny, nz)
	NotifyVisibilityDiff(m.bc, m.state, p, diff)

	m.facing.MarkMoved(p)
	m.faceHeading(p, dx, dz)

	if now.Sub(mv.lastEmit) >= moveBroadcastInterval {
		mv.lastEmit = now
		m.bc.QueueEntityUpdate(broadcast.Update{
			EntityID: p.ID,
			Flags:    broadcast.FlagPosition | broadcast.FlagRotation | broadcast.FlagState | broadcast.FlagVelocity,
			Priority: broadcast.PriorityNormal,
			X:        p.X, Y: p.Y, Z: p.Z,
			QX: p.QX, QY: p.QY, QZ: p.QZ, QW: p.QW,
			State: broadcast.StateCode(p.State),
		})
	}
}

// arrive snaps the mover onto its target and broadcasts the terminal idle
// position un-batched so no viewer is left with a stale throttled position.
func (m *MovementManager) arrive(p *world.Player, mv *moverState) {
	tx, tz := mv.target.X, mv.target.Z
	ty := world.GroundY(m.terrain, tx, tz, p.Y)

	diff := m.state.MovePlayer(p, tx, ty, tz)
	NotifyVisibilityDiff(m.bc, m.state, p, diff)

	p.State = "idle"
	p.Dirty = true
	m.facing.MarkMoved(p)

	m.pool.Put(mv.target)
	delete(m.movers, p.ID)

	m.bc.BroadcastToSubscribers(p.ID, packet.SEntityModified, map[string]any{
		"id":    p.ID,
		"state": "idle",
		"position": map[string]float64{
			"x": p.X, "y": p.Y, "z": p.Z,
		},
	})
}

// faceHeading rotates the mover toward its direction of travel. Avatar
// models rest facing -z, so headings carry a pi offset.
func (m *MovementManager) faceHeading(p *world.Player, dx, dz float64) {
	yaw := math.Atan2(dx, dz) + math.Pi
	half := yaw / 2
	p.QX, p.QY, p.QZ, p.QW = 0, math.Sin(half), 0, math.Cos(half)
}

// PoolSize reports the free-list length of the target pool. Test helper.
func (m *MovementManager) PoolSize() int { return m.pool.Size() }
