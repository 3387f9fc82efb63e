package game

import (
	"math"
	"sort"

	"go.uber.org/zap"

	"github.com/hyperscape/server/internal/broadcast"
	"github.com/hyperscape/server/internal/net/packet"
	"github.com/hyperscape/server/internal/world"
)

// FaceDirectionManager resolves deferred face targets once per tick, after
// movement. A player that moved this tick keeps its travel heading; point
// and cardinal targets apply only to standing players. Cardinal targets
// win over point targets. Game loop only.
type FaceDirectionManager struct {
	state *world.State
	bc    *broadcast.Broadcaster
	log   *zap.Logger
	debug bool

	pendingIDs []string
	pendingSet map[string]struct{}
	carry      []string
}

func NewFaceDirectionManager(state *world.State, bc *broadcast.Broadcaster, debug bool, log *zap.Logger) *FaceDirectionManager {
	return &FaceDirectionManager{
		state:      state,
		bc:         bc,
		log:        log,
		debug:      debug,
		pendingSet: make(map[string]struct{}),
	}
}

// SetFaceTarget queues a point face target, resolved at the end of the
// tick. Clears the moved flag so a stationary player turns on the same
// tick the request arrives.
func (f *FaceDirectionManager) SetFaceTarget(p *world.Player, x, z float64) {
	p.FaceTarget = &world.FacePoint{X: x, Z: z}
	p.MovedThisTick = false
	f.enqueue(p.ID)
}

// SetCardinalFaceTarget queues facing toward an axis-aligned footprint
// (resources, bank booths). The player faces the footprint side it stands
// on; standing inside or exactly on a corner falls back to a point target
// at the footprint center.
func (f *FaceDirectionManager) SetCardinalFaceTarget(p *world.Player, cx, cz, width, depth float64) {
	halfW := width / 2
	halfD := depth / 2
	dx := p.X - cx
	dz := p.Z - cz

	outsideX := math.Abs(dx) > halfW
	outsideZ := math.Abs(dz) > halfD

	switch {
	case outsideX && !outsideZ:
		if dx > 0 {
			p.CardinalFace = world.CardinalWest
		} else {
			p.CardinalFace = world.CardinalEast
		}
	case outsideZ && !outsideX:
		if dz > 0 {
			p.CardinalFace = world.CardinalSouth
		} else {
			p.CardinalFace = world.CardinalNorth
		}
	default:
		// Inside the footprint or diagonal of a corner: no unambiguous
		// side, fall back to facing the center point.
		p.CardinalFace = world.CardinalNone
		p.FaceTarget = &world.FacePoint{X: cx, Z: cz}
	}
	p.MovedThisTick = false
	f.enqueue(p.ID)
}

// MarkMoved flags that movement already set the player's heading this tick.
func (f *FaceDirectionManager) MarkMoved(p *world.Player) {
	p.MovedThisTick = true
}

// ResetFlags clears per-tick movement flags. Runs at the start of the tick.
func (f *FaceDirectionManager) ResetFlags() {
	f.state.Players(func(p *world.Player) {
		p.MovedThisTick = false
	})
}

// Process applies pending face targets in player id order so a tick's
// output is deterministic regardless of request arrival order.
func (f *FaceDirectionManager) Process() {
	if len(f.pendingIDs) == 0 {
		return
	}
	sort.Strings(f.pendingIDs)

	for _, id := range f.pendingIDs {
		p := f.state.Player(id)
		if p == nil {
			continue
		}
		if p.MovedThisTick {
			// Travel heading wins; the target stays queued for when the
			// player stands still.
			f.carry = append(f.carry, id)
			continue
		}
		yaw, ok := f.resolveYaw(p)
		if !ok {
			continue
		}
		f.apply(p, yaw)
	}

	f.pendingIDs = f.pendingIDs[:0]
	for id := range f.pendingSet {
		delete(f.pendingSet, id)
	}
	f.pendingIDs = append(f.pendingIDs, f.carry...)
	for _, id := range f.carry {
		f.pendingSet[id] = struct{}{}
	}
	f.carry = f.carry[:0]
}

func (f *FaceDirectionManager) resolveYaw(p *world.Player) (float64, bool) {
	if p.CardinalFace != world.CardinalNone {
		yaw := cardinalYaw(p.CardinalFace)
		p.CardinalFace = world.CardinalNone
		p.FaceTarget = nil
		return yaw, true
	}
	if p.FaceTarget != nil {
		t := p.FaceTarget
		p.FaceTarget = nil
		dx := t.X - p.X
		dz := t.Z - p.Z
		if math.Abs(dx)+math.Abs(dz) < 0.01 {
			return 0, false
		}
		// Snap to the nearest compass eighth, then add the avatar-base
		// offset (models rest facing -z).
		return snapYaw(math.Atan2(dx, dz)) + math.Pi, true
	}
	return 0, false
}

func (f *FaceDirectionManager) apply(p *world.Player, yaw float64) {
	half := yaw / 2
	p.QX, p.QY, p.QZ, p.QW = 0, math.Sin(half), 0, math.Cos(half)

	if f.debug {
		f.log.Debug("face direction applied",
			zap.String("player", p.ID),
			zap.Float64("yaw", yaw),
		)
	}

	f.bc.BroadcastToSubscribers(p.ID, packet.SEntityModified, map[string]any{
		"id": p.ID,
		"rotation": map[string]float64{
			"x": p.QX, "y": p.QY, "z": p.QZ, "w": p.QW,
		},
	})
}

func (f *FaceDirectionManager) enqueue(id string) {
	if _, ok := f.pendingSet[id]; ok {
		return
	}
	f.pendingSet[id] = struct{}{}
	f.pendingIDs = append(f.pendingIDs, id)
}

// snapYaw quantizes a heading to the nearest of 8 compass directions.
func snapYaw(yaw float64) float64 {
	const step = math.Pi / 4
	return math.Round(yaw/step) * step
}

func cardinalYaw(c world.Cardinal) float64 {
	switch c {
	case world.CardinalNorth:
		return 0
	case world.CardinalEast:
		return math.Pi / 2
	case world.CardinalSouth:
		return math.Pi
	case world.CardinalWest:
		return -math.Pi / 2
	}
	return 0
}
