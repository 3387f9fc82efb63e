package game

import (
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/hyperscape/server/internal/broadcast"
	"github.com/hyperscape/server/internal/metrics"
	"github.com/hyperscape/server/internal/net/packet"
	"github.com/hyperscape/server/internal/world"
)

// Validation thresholds.
const (
	minValidY = -5.0
	maxValidY = 200.0

	// Reported positions further than this from the server position are
	// corrected gradually instead of trusted.
	maxDriftDist = 10.0

	// A jump of more than this many tiles inside teleportWindow is a
	// violation.
	teleportDist   = 10.0
	teleportWindow = 500 * time.Millisecond

	speedWindow     = 5 * time.Second
	speedMinSamples = 4
	speedTolerance  = 1.2

	kickThreshold  = 3
	violationDecay = 30 * time.Second

	// New and freshly teleported players are not validated for this long.
	gracePeriod = 10 * time.Second

	// Terrain snapping starts aggressive and relaxes once the player has
	// been in the world a while.
	terrainIntervalInitial = 100 * time.Millisecond
	terrainIntervalSettled = 1000 * time.Millisecond
	terrainSettleAfter     = 10 * time.Second

	correctionFraction = 0.2

	// Height used to recover a non-finite y when the terrain has no answer.
	emergencyY = 10.0
)

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

type posSample struct {
	at   time.Time
	x, z float64
}

type validatorRecord struct {
	samples     []posSample
	violations  int
	lastDecay   time.Time
	graceUntil  time.Time
	trackedAt   time.Time
	lastTerrain time.Time
}

// PositionValidator cross-checks client-reported positions against the
// server position, terrain and speed limits. Repeat offenders are kicked.
// Game loop only.
type PositionValidator struct {
	state   *world.State
	terrain world.Terrain
	bc      *broadcast.Broadcaster
	log     *zap.Logger

	// Kick disconnects the player. Wired to the connection layer.
	Kick func(p *world.Player, reason string)

	records map[string]*validatorRecord
}

func NewPositionValidator(state *world.State, terrain world.Terrain, bc *broadcast.Broadcaster, log *zap.Logger) *PositionValidator {
	return &PositionValidator{
		state:   state,
		terrain: terrain,
		bc:      bc,
		log:     log,
		records: make(map[string]*validatorRecord),
	}
}

// Track starts validating a player, with the spawn grace period.
func (v *PositionValidator) Track(p *world.Player) {
	now := time.Now()
	v.records[p.ID] = &validatorRecord{
		lastDecay:  now,
		graceUntil: now.Add(gracePeriod),
		trackedAt:  now,
	}
}

// NoteTeleport re-arms the grace period after a server-initiated teleport.
func (v *PositionValidator) NoteTeleport(p *world.Player) {
	rec := v.records[p.ID]
	if rec == nil {
		return
	}
	rec.graceUntil = time.Now().Add(gracePeriod)
	rec.samples = rec.samples[:0]
}

func (v *PositionValidator) Remove(playerID string) {
	delete(v.records, playerID)
}

// Violations reports the player's current violation count. Test helper.
func (v *PositionValidator) Violations(playerID string) int {
	rec := v.records[playerID]
	if rec == nil {
		return 0
	}
	return rec.violations
}

// ReportPosition validates one client-reported position. The server
// position is only nudged toward the report when it passes every check;
// bad reports correct the client instead.
func (v *PositionValidator) ReportPosition(p *world.Player, x, y, z float64, now time.Time) {
	rec := v.records[p.ID]
	if rec == nil {
		return
	}

	inGrace := now.Before(rec.graceUntil)

	if !isFinite(y) || y < minValidY || y > maxValidY {
		if !inGrace {
			v.flag(p, rec, "y out of range")
		}
		v.sendCorrection(p)
		return
	}

	dx := x - p.X
	dz := z - p.Z
	drift := math.Hypot(dx, dz)

	if drift > maxDriftDist {
		if !inGrace {
			v.flag(p, rec, "position drift")
		}
		// Pull the client back gradually so a mild desync does not rubber
		// band across the map.
		p.X += dx * correctionFraction
		p.Z += dz * correctionFraction
		p.Y = world.GroundY(v.terrain, p.X, p.Z, p.Y)
		v.state.MoveEntity(p.ID, p.X, p.Y, p.Z)
		v.sendCorrection(p)
		return
	}

	if !inGrace && len(rec.samples) > 0 {
		last := rec.samples[len(rec.samples)-1]
		dt := now.Sub(last.at)
		jump := math.Hypot(x-last.x, z-last.z)
		if jump > teleportDist && dt < teleportWindow {
			v.flag(p, rec, "teleport")
			v.sendCorrection(p)
			return
		}
	}

	rec.samples = append(rec.samples, posSample{at: now, x: x, z: z})
	v.trimSamples(rec, now)

	if !inGrace && len(rec.samples) >= speedMinSamples {
		first := rec.samples[0]
		elapsed := now.Sub(first.at).Seconds()
		if elapsed > 0 {
			traveled := 0.0
			for i := 1; i < len(rec.samples); i++ {
				traveled += math.Hypot(
					rec.samples[i].x-rec.samples[i-1].x,
					rec.samples[i].z-rec.samples[i-1].z,
				)
			}
			if traveled/elapsed > RunSpeed*speedTolerance {
				v.flag(p, rec, "speed")
				v.sendCorrection(p)
				return
			}
		}
	}

	// Accepted: adopt the report, grounded.
	ny := world.GroundY(v.terrain, x, z, y)
	v.state.MoveEntity(p.ID, x, ny, z)
}

// Update runs periodic work: violation decay and terrain snapping.
func (v *PositionValidator) Update(now time.Time) {
	for id, rec := range v.records {
		p := v.state.Player(id)
		if p == nil {
			delete(v.records, id)
			continue
		}

		if rec.violations > 0 && now.Sub(rec.lastDecay) >= violationDecay {
			rec.violations--
			rec.lastDecay = now
		}

		// A NaN or Inf height defeats every distance comparison below; force
		// the player back onto the terrain without waiting for the snap
		// interval.
		if !isFinite(p.Y) {
			p.Y = world.GroundY(v.terrain, p.X, p.Z, emergencyY)
			v.state.MoveEntity(p.ID, p.X, p.Y, p.Z)
			v.sendCorrection(p)
			continue
		}

		interval := terrainIntervalInitial
		if now.Sub(rec.trackedAt) >= terrainSettleAfter {
			interval = terrainIntervalSettled
		}
		if now.Sub(rec.lastTerrain) < interval {
			continue
		}
		rec.lastTerrain = now

		ground := world.GroundY(v.terrain, p.X, p.Z, p.Y)
		if math.Abs(p.Y-ground) > 0.5 {
			p.Y += (ground - p.Y) * correctionFraction
			v.state.MoveEntity(p.ID, p.X, p.Y, p.Z)
			v.sendCorrection(p)
		}
	}
}

func (v *PositionValidator) trimSamples(rec *validatorRecord, now time.Time) {
	cutoff := now.Add(-speedWindow)
	i := 0
	for i < len(rec.samples) && rec.samples[i].at.Before(cutoff) {
		i++
	}
	if i > 0 {
		rec.samples = append(rec.samples[:0], rec.samples[i:]...)
	}
}

func (v *PositionValidator) flag(p *world.Player, rec *validatorRecord, reason string) {
	rec.violations++
	rec.lastDecay = time.Now()
	v.log.Warn("movement violation",
		zap.String("player", p.ID),
		zap.String("reason", reason),
		zap.Int("violations", rec.violations),
	)
	if rec.violations >= kickThreshold && v.Kick != nil {
		metrics.ValidationKicks.Inc()
		v.Kick(p, reason)
	}
}

// sendCorrection snaps the client back to the authoritative position.
func (v *PositionValidator) sendCorrection(p *world.Player) {
	v.bc.SendJSONTo(p.SocketID, packet.SEntityModified, map[string]any{
		"id": p.ID,
		"position": map[string]float64{
			"x": p.X, "y": p.Y, "z": p.Z,
		},
		"correction": true,
	})
}
