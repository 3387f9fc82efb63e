package broadcast

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeFullRecord(t *testing.T) {
	u := &Update{
		EntityID:  "char-42",
		Flags:     FlagPosition | FlagRotation | FlagHealth | FlagState | FlagVelocity,
		X:         -123.45,
		Y:         9.87,
		Z:         10000.01,
		QX:        0,
		QY:        0.7071,
		QZ:        0,
		QW:        0.7071,
		Health:    73,
		MaxHealth: 100,
		State:     StateRun,
	}

	frame := EncodeFrame([]*Update{u})

	recs, err := DecodeFrame(frame)
	require.NoError(t, err)
	require.Len(t, recs, 1)

	r := recs[0]
	assert.Equal(t, HashEntityID("char-42"), r.IDHash)
	assert.Equal(t, u.Flags, r.Flags)
	// Position is centimeter precision.
	assert.InDelta(t, u.X, r.X, 0.005)
	assert.InDelta(t, u.Y, r.Y, 0.005)
	assert.InDelta(t, u.Z, r.Z, 0.005)
	// Rotation is 1/32767 precision.
	assert.InDelta(t, u.QY, r.QY, 0.0001)
	assert.InDelta(t, u.QW, r.QW, 0.0001)
	assert.Equal(t, 73, r.Health)
	assert.Equal(t, 100, r.MaxHealth)
	assert.Equal(t, StateRun, r.State)
}

func TestVelocityFlagCarriesNoPayload(t *testing.T) {
	u := &Update{EntityID: "e", Flags: FlagVelocity}
	frame := EncodeFrame([]*Update{u})
	// count + hash + flags only.
	assert.Len(t, frame, 2+4+1)

	recs, err := DecodeFrame(frame)
	require.NoError(t, err)
	assert.Equal(t, FlagVelocity, recs[0].Flags)
}

func TestMergeAccumulatesFlagsAndKeepsNewest(t *testing.T) {
	u := Update{
		EntityID: "e",
		Flags:    FlagPosition,
		Priority: PriorityLow,
		X:        1,
	}
	u.Merge(&Update{
		Flags:     FlagHealth,
		Priority:  PriorityHigh,
		Health:    5,
		MaxHealth: 10,
	})
	u.Merge(&Update{
		Flags: FlagPosition,
		X:     2,
	})

	assert.Equal(t, FlagPosition|FlagHealth, u.Flags)
	assert.Equal(t, PriorityHigh, u.Priority, "higher priority survives")
	assert.Equal(t, 2.0, u.X, "newest position wins")
	assert.Equal(t, 5, u.Health)
}

func TestRotationQuantizationClamps(t *testing.T) {
	u := &Update{EntityID: "e", Flags: FlagRotation, QW: 1.5}
	recs, err := DecodeFrame(EncodeFrame([]*Update{u}))
	require.NoError(t, err)
	assert.InDelta(t, 1.0, recs[0].QW, 0.0001)
}

func TestDecodeFrameTruncated(t *testing.T) {
	frame := EncodeFrame([]*Update{{EntityID: "e", Flags: FlagPosition, X: 1}})
	_, err := DecodeFrame(frame[:7])
	assert.Error(t, err)
}

func TestStateCode(t *testing.T) {
	assert.Equal(t, StateIdle, StateCode("idle"))
	assert.Equal(t, StateWalk, StateCode("walk"))
	assert.Equal(t, StateRun, StateCode("run"))
	assert.Equal(t, StateIdle, StateCode("unknown"))
}
