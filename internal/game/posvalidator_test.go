package game

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hyperscape/server/internal/world"
)

func newValidator(f *fixture) *PositionValidator {
	return NewPositionValidator(f.state, f.terrain, f.bc, zap.NewNop())
}

// afterGrace is a report timestamp safely past the spawn grace period.
func afterGrace() time.Time {
	return time.Now().Add(gracePeriod + time.Second)
}

func TestAcceptedReportMovesEntity(t *testing.T) {
	f := newFixture(t)
	p := f.addPlayer(t, "p1", 0, 0)
	v := newValidator(f)
	v.Track(p)

	v.ReportPosition(p, 1.5, 0, 2.0, afterGrace())

	e := f.state.Entity("p1")
	require.NotNil(t, e)
	assert.InDelta(t, 1.5, e.X, 1e-9)
	assert.InDelta(t, 2.0, e.Z, 1e-9)
	assert.InDelta(t, world.GroundClearance, e.Y, 1e-9, "grounded on flat terrain")
	assert.Equal(t, 0, v.Violations("p1"))
}

func TestDriftCorrectsGradually(t *testing.T) {
	f := newFixture(t)
	p := f.addPlayer(t, "p1", 0, 0)
	v := newValidator(f)
	v.Track(p)

	v.ReportPosition(p, 20, 0, 0, afterGrace())

	assert.Equal(t, 1, v.Violations("p1"))
	assert.InDelta(t, 4.0, p.X, 1e-9, "nudged 20% toward the report")
}

func TestDriftInGraceCorrectsWithoutViolation(t *testing.T) {
	f := newFixture(t)
	p := f.addPlayer(t, "p1", 0, 0)
	v := newValidator(f)
	v.Track(p)

	v.ReportPosition(p, 20, 0, 0, time.Now())
	assert.Equal(t, 0, v.Violations("p1"))
}

func TestYOutOfRangeFlagged(t *testing.T) {
	f := newFixture(t)
	p := f.addPlayer(t, "p1", 0, 0)
	v := newValidator(f)
	v.Track(p)

	v.ReportPosition(p, 0, 500, 0, afterGrace())
	assert.Equal(t, 1, v.Violations("p1"))

	v.ReportPosition(p, 0, -50, 0, afterGrace())
	assert.Equal(t, 2, v.Violations("p1"))
}

func TestTeleportJumpFlagged(t *testing.T) {
	f := newFixture(t)
	p := f.addPlayer(t, "p1", 0, 0)
	v := newValidator(f)
	v.Track(p)

	base := afterGrace()
	v.ReportPosition(p, 4, 0, 0, base)
	require.Equal(t, 0, v.Violations("p1"))

	// Server walks the player on; the client then reports an 11m jump from
	// its last report inside the window, while staying near the server
	// position so the drift check passes.
	f.state.MoveEntity(p.ID, 14.5, p.Y, 0)
	v.ReportPosition(p, 15, 0, 0, base.Add(100*time.Millisecond))
	assert.Equal(t, 1, v.Violations("p1"))
}

func TestSustainedSpeedFlagged(t *testing.T) {
	f := newFixture(t)
	p := f.addPlayer(t, "p1", 0, 0)
	v := newValidator(f)
	v.Track(p)

	// 5m every 500ms is 10 m/s, above run speed x tolerance (9.6), while
	// each hop stays under the teleport and drift thresholds.
	base := afterGrace()
	x := 0.0
	for i := 0; i < 5 && v.Violations("p1") == 0; i++ {
		v.ReportPosition(p, x, 0, 0, base.Add(time.Duration(i)*500*time.Millisecond))
		x += 5
	}
	assert.Equal(t, 1, v.Violations("p1"))
}

func TestKickAfterThreshold(t *testing.T) {
	f := newFixture(t)
	p := f.addPlayer(t, "p1", 0, 0)
	v := newValidator(f)

	var kicked, why string
	v.Kick = func(kp *world.Player, reason string) {
		kicked = kp.ID
		why = reason
	}
	v.Track(p)

	for i := 0; i < kickThreshold; i++ {
		v.ReportPosition(p, 0, 500, 0, afterGrace())
	}
	assert.Equal(t, "p1", kicked)
	assert.Equal(t, "y out of range", why, "kick names the violation")
}

func TestNonFiniteReportedYFlagged(t *testing.T) {
	f := newFixture(t)
	p := f.addPlayer(t, "p1", 0, 0)
	v := newValidator(f)
	v.Track(p)

	v.ReportPosition(p, 0, math.NaN(), 0, afterGrace())
	assert.Equal(t, 1, v.Violations("p1"))

	v.ReportPosition(p, 0, math.Inf(1), 0, afterGrace())
	assert.Equal(t, 2, v.Violations("p1"))
}

func TestNonFiniteServerYEmergencyCorrected(t *testing.T) {
	f := newFixture(t)
	p := f.addPlayer(t, "p1", 0, 0)
	v := newValidator(f)
	v.Track(p)

	p.Y = math.NaN()
	v.Update(time.Now())

	assert.False(t, math.IsNaN(p.Y))
	assert.InDelta(t, world.GroundClearance, p.Y, 1e-9, "snapped back onto the terrain")
}

func TestViolationDecay(t *testing.T) {
	f := newFixture(t)
	p := f.addPlayer(t, "p1", 0, 0)
	v := newValidator(f)
	v.Track(p)

	v.ReportPosition(p, 0, 500, 0, afterGrace())
	require.Equal(t, 1, v.Violations("p1"))

	v.Update(time.Now().Add(violationDecay + time.Second))
	assert.Equal(t, 0, v.Violations("p1"))
}

func TestNoteTeleportClearsSamples(t *testing.T) {
	f := newFixture(t)
	p := f.addPlayer(t, "p1", 0, 0)
	v := newValidator(f)
	v.Track(p)

	// The same jump as the teleport test, but the server-side teleport in
	// between resets the sample history, so it is not a violation.
	base := afterGrace()
	v.ReportPosition(p, 4, 0, 0, base)
	f.state.MoveEntity(p.ID, 14.5, p.Y, 0)
	v.NoteTeleport(p)
	v.ReportPosition(p, 15, 0, 0, base.Add(100*time.Millisecond))
	assert.Equal(t, 0, v.Violations("p1"))
}

func TestUntrackedPlayerIgnored(t *testing.T) {
	f := newFixture(t)
	p := f.addPlayer(t, "p1", 0, 0)
	v := newValidator(f)

	v.ReportPosition(p, 500, 500, 500, time.Now())
	assert.Equal(t, 0, v.Violations("p1"))
	assert.InDelta(t, 0, p.X, 1e-9)
}
