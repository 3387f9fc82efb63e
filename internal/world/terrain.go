package world

import (
	"fmt"
	"math"
	"os"
	"sync/atomic"

	"gopkg.in/yaml.v3"
)

// Terrain answers ground-height queries. Readiness gates the connection
// handshake: spawns are never computed against an unloaded heightmap.
type Terrain interface {
	// HeightAt returns the ground height at (x, z), or NaN outside the map.
	HeightAt(x, z float64) float64
	Ready() bool
}

// GroundClearance is the offset above terrain applied to grounded entities.
const GroundClearance = 0.1

// heightmapFile is the on-disk YAML shape for HeightmapTerrain.
type heightmapFile struct {
	OriginX float64     `yaml:"origin_x"`
	OriginZ float64     `yaml:"origin_z"`
	Step    float64     `yaml:"step"`
	Rows    [][]float64 `yaml:"rows"` // rows[zi][xi]
}

// HeightmapTerrain is a regular-grid heightmap with bilinear sampling.
type HeightmapTerrain struct {
	originX, originZ float64
	step             float64
	rows             [][]float64
	ready            atomic.Bool
}

// LoadHeightmap reads a heightmap YAML file. The terrain reports ready
// once loading succeeds.
func LoadHeightmap(path string) (*HeightmapTerrain, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read terrain %s: %w", path, err)
	}
	var f heightmapFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse terrain %s: %w", path, err)
	}
	if f.Step <= 0 || len(f.Rows) < 2 || len(f.Rows[0]) < 2 {
		return nil, fmt.Errorf("terrain %s: grid too small", path)
	}
	t := &HeightmapTerrain{
		originX: f.OriginX,
		originZ: f.OriginZ,
		step:    f.Step,
		rows:    f.Rows,
	}
	t.ready.Store(true)
	return t, nil
}

func (t *HeightmapTerrain) Ready() bool { return t.ready.Load() }

func (t *HeightmapTerrain) HeightAt(x, z float64) float64 {
	fx := (x - t.originX) / t.step
	fz := (z - t.originZ) / t.step
	xi := int(math.Floor(fx))
	zi := int(math.Floor(fz))
	if zi < 0 || xi < 0 || zi+1 >= len(t.rows) || xi+1 >= len(t.rows[0]) {
		return math.NaN()
	}
	tx := fx - float64(xi)
	tz := fz - float64(zi)
	h00 := t.rows[zi][xi]
	h10 := t.rows[zi][xi+1]
	h01 := t.rows[zi+1][xi]
	h11 := t.rows[zi+1][xi+1]
	return h00*(1-tx)*(1-tz) + h10*tx*(1-tz) + h01*(1-tx)*tz + h11*tx*tz
}

// FlatTerrain is a constant-height terrain used in tests and as the
// fallback when no heightmap is configured.
type FlatTerrain struct {
	Height float64
}

func (FlatTerrain) Ready() bool { return true }

func (t FlatTerrain) HeightAt(_, _ float64) float64 { return t.Height }

// GroundY returns the grounded Y for a position: terrain height plus
// clearance when the sample is finite and in sane range, else the current Y.
func GroundY(t Terrain, x, z, currentY float64) float64 {
	if t == nil {
		return currentY
	}
	h := t.HeightAt(x, z)
	if math.IsNaN(h) || math.IsInf(h, 0) {
		return currentY
	}
	return h + GroundClearance
}
