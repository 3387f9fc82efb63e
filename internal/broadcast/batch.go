package broadcast

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"math"
)

// Batched entity updates travel as one binary frame per viewer per tick:
//
//	count  u16 LE
//	repeat count times:
//	  entity id hash   u32 LE  (FNV-1a-32 of the entity id string)
//	  flags            u8
//	  [POSITION] x,y,z int32 LE, centimeters
//	  [ROTATION] qx,qy,qz,qw int16 LE, scaled by 32767
//	  [HEALTH]   current,max u16 LE
//	  [STATE]    u8
//
// VELOCITY is a payload-less marker flag meaning the entity is in
// locomotion this update.

// Field flags.
const (
	FlagPosition uint8 = 1 << 0
	FlagRotation uint8 = 1 << 1
	FlagHealth   uint8 = 1 << 2
	FlagState    uint8 = 1 << 3
	FlagVelocity uint8 = 1 << 4
)

// MaxUpdatesPerBatch caps records per frame. Each session gets at most one
// batch frame per tick; excess records stay queued for the next flush.
const MaxUpdatesPerBatch = 256

// State codes for the STATE field.
const (
	StateIdle uint8 = iota
	StateWalk
	StateRun
	StateAttack
	StateGather
	StateDead
)

// StateCode maps a locomotion/action state string to its wire byte.
func StateCode(state string) uint8 {
	switch state {
	case "walk":
		return StateWalk
	case "run":
		return StateRun
	case "attack":
		return StateAttack
	case "gather":
		return StateGather
	case "dead":
		return StateDead
	}
	return StateIdle
}

// Update is one coalesced entity update. Flags select which fields are
// meaningful.
type Update struct {
	EntityID string
	Flags    uint8
	Priority Priority

	X, Y, Z           float64
	QX, QY, QZ, QW    float64
	Health, MaxHealth int
	State             uint8
}

// Merge folds a newer update for the same entity into u. Newer field values
// win; flags accumulate; the higher priority survives.
func (u *Update) Merge(newer *Update) {
	u.Flags |= newer.Flags
	if newer.Priority > u.Priority {
		u.Priority = newer.Priority
	}
	if newer.Flags&FlagPosition != 0 {
		u.X, u.Y, u.Z = newer.X, newer.Y, newer.Z
	}
	if newer.Flags&FlagRotation != 0 {
		u.QX, u.QY, u.QZ, u.QW = newer.QX, newer.QY, newer.QZ, newer.QW
	}
	if newer.Flags&FlagHealth != 0 {
		u.Health, u.MaxHealth = newer.Health, newer.MaxHealth
	}
	if newer.Flags&FlagState != 0 {
		u.State = newer.State
	}
}

// HashEntityID computes the wire id for an entity id string.
func HashEntityID(id string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(id))
	return h.Sum32()
}

func recordSize(flags uint8) int {
	n := 4 + 1
	if flags&FlagPosition != 0 {
		n += 12
	}
	if flags&FlagRotation != 0 {
		n += 8
	}
	if flags&FlagHealth != 0 {
		n += 4
	}
	if flags&FlagState != 0 {
		n++
	}
	return n
}

// EncodeFrame packs up to MaxUpdatesPerBatch updates into one binary
// frame. The caller bounds the slice; splitting across ticks is the
// broadcaster's job.
func EncodeFrame(updates []*Update) []byte {
	size := 2
	for _, u := range updates {
		size += recordSize(u.Flags)
	}
	buf := make([]byte, size)
	binary.LittleEndian.PutUint16(buf[0:2], uint16(len(updates)))
	off := 2
	for _, u := range updates {
		binary.LittleEndian.PutUint32(buf[off:], HashEntityID(u.EntityID))
		off += 4
		buf[off] = u.Flags
		off++
		if u.Flags&FlagPosition != 0 {
			binary.LittleEndian.PutUint32(buf[off:], uint32(int32(math.Round(u.X*100))))
			binary.LittleEndian.PutUint32(buf[off+4:], uint32(int32(math.Round(u.Y*100))))
			binary.LittleEndian.PutUint32(buf[off+8:], uint32(int32(math.Round(u.Z*100))))
			off += 12
		}
		if u.Flags&FlagRotation != 0 {
			binary.LittleEndian.PutUint16(buf[off:], uint16(quantize(u.QX)))
			binary.LittleEndian.PutUint16(buf[off+2:], uint16(quantize(u.QY)))
			binary.LittleEndian.PutUint16(buf[off+4:], uint16(quantize(u.QZ)))
			binary.LittleEndian.PutUint16(buf[off+6:], uint16(quantize(u.QW)))
			off += 8
		}
		if u.Flags&FlagHealth != 0 {
			binary.LittleEndian.PutUint16(buf[off:], clampU16(u.Health))
			binary.LittleEndian.PutUint16(buf[off+2:], clampU16(u.MaxHealth))
			off += 4
		}
		if u.Flags&FlagState != 0 {
			buf[off] = u.State
			off++
		}
	}
	return buf
}

func quantize(v float64) int16 {
	q := math.Round(v * 32767)
	if q > 32767 {
		q = 32767
	} else if q < -32767 {
		q = -32767
	}
	return int16(q)
}

func clampU16(v int) uint16 {
	if v < 0 {
		return 0
	}
	if v > math.MaxUint16 {
		return math.MaxUint16
	}
	return uint16(v)
}

// DecodedRecord is one record read back from a frame.
type DecodedRecord struct {
	IDHash uint32
	Flags  uint8

	X, Y, Z           float64
	QX, QY, QZ, QW    float64
	Health, MaxHealth int
	State             uint8
}

// DecodeFrame parses a batch frame. Used by tests and diagnostics.
func DecodeFrame(data []byte) ([]DecodedRecord, error) {
	if len(data) < 2 {
		return nil, fmt.Errorf("frame too short")
	}
	count := int(binary.LittleEndian.Uint16(data[0:2]))
	off := 2
	out := make([]DecodedRecord, 0, count)
	for i := 0; i < count; i++ {
		if len(data) < off+5 {
			return nil, fmt.Errorf("record %d: truncated header", i)
		}
		var r DecodedRecord
		r.IDHash = binary.LittleEndian.Uint32(data[off:])
		off += 4
		r.Flags = data[off]
		off++
		if r.Flags&FlagPosition != 0 {
			if len(data) < off+12 {
				return nil, fmt.Errorf("record %d: truncated position", i)
			}
			r.X = float64(int32(binary.LittleEndian.Uint32(data[off:]))) / 100
			r.Y = float64(int32(binary.LittleEndian.Uint32(data[off+4:]))) / 100
			r.Z = float64(int32(binary.LittleEndian.Uint32(data[off+8:]))) / 100
			off += 12
		}
		if r.Flags&FlagRotation != 0 {
			if len(data) < off+8 {
				return nil, fmt.Errorf("record %d: truncated rotation", i)
			}
			r.QX = float64(int16(binary.LittleEndian.Uint16(data[off:]))) / 32767
			r.QY = float64(int16(binary.LittleEndian.Uint16(data[off+2:]))) / 32767
			r.QZ = float64(int16(binary.LittleEndian.Uint16(data[off+4:]))) / 32767
			r.QW = float64(int16(binary.LittleEndian.Uint16(data[off+6:]))) / 32767
			off += 8
		}
		if r.Flags&FlagHealth != 0 {
			if len(data) < off+4 {
				return nil, fmt.Errorf("record %d: truncated health", i)
			}
			r.Health = int(binary.LittleEndian.Uint16(data[off:]))
			r.MaxHealth = int(binary.LittleEndian.Uint16(data[off+2:]))
			off += 4
		}
		if r.Flags&FlagState != 0 {
			if len(data) < off+1 {
				return nil, fmt.Errorf("record %d: truncated state", i)
			}
			r.State = data[off]
			off++
		}
		out = append(out, r)
	}
	return out, nil
}
