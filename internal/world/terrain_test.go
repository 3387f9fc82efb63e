package world

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeHeightmap(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "terrain.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestHeightmapBilinear(t *testing.T) {
	path := writeHeightmap(t, `
origin_x: 0
origin_z: 0
step: 10
rows:
  - [0, 10]
  - [10, 20]
`)
	hm, err := LoadHeightmap(path)
	require.NoError(t, err)
	assert.True(t, hm.Ready())

	assert.InDelta(t, 0, hm.HeightAt(0, 0), 1e-9)
	assert.InDelta(t, 10, hm.HeightAt(5, 5), 1e-9, "center of the quad")
	assert.InDelta(t, 5, hm.HeightAt(5, 0), 1e-9, "midpoint of the x edge")

	assert.True(t, math.IsNaN(hm.HeightAt(-1, 0)), "outside the grid")
	assert.True(t, math.IsNaN(hm.HeightAt(0, 100)))
}

func TestLoadHeightmapRejectsTinyGrid(t *testing.T) {
	path := writeHeightmap(t, `
step: 10
rows:
  - [1, 2]
`)
	_, err := LoadHeightmap(path)
	assert.Error(t, err)
}

func TestGroundY(t *testing.T) {
	flat := FlatTerrain{Height: 9.9}
	assert.InDelta(t, 10.0, GroundY(flat, 0, 0, 55), 1e-9, "height plus clearance")

	// NaN samples and nil terrain keep the current height.
	path := writeHeightmap(t, `
origin_x: 0
origin_z: 0
step: 10
rows:
  - [0, 0]
  - [0, 0]
`)
	hm, err := LoadHeightmap(path)
	require.NoError(t, err)
	assert.Equal(t, 7.5, GroundY(hm, -100, -100, 7.5))
	assert.Equal(t, 7.5, GroundY(nil, 0, 0, 7.5))
}
