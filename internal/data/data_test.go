package data

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeYAML(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadAreaTable(t *testing.T) {
	path := writeYAML(t, "areas.yaml", `
areas:
  - id: brookhaven
    name: Brookhaven
    spawn: [0, 10, 0]
    safe: true
    bank_id: brookhaven_bank
  - id: mistwood
    name: Mistwood
    spawn: [120, 9, -40]
`)
	tbl, err := LoadAreaTable(path)
	require.NoError(t, err)
	assert.Equal(t, 2, tbl.Count())
	assert.Equal(t, "brookhaven", tbl.Default().ID, "first declared area is the spawn")
	assert.True(t, tbl.Get("brookhaven").Safe)
	assert.False(t, tbl.Get("mistwood").Safe)
	assert.Nil(t, tbl.Get("nowhere"))
}

func TestLoadAreaTableRejectsBadSpawn(t *testing.T) {
	path := writeYAML(t, "areas.yaml", `
areas:
  - id: broken
    name: Broken
    spawn: [1, 2]
`)
	_, err := LoadAreaTable(path)
	assert.ErrorContains(t, err, "spawn needs 3 coordinates")
}

func TestLoadResourceTable(t *testing.T) {
	path := writeYAML(t, "resources.yaml", `
resources:
  - resource_id: oak_tree
    name: Oak Tree
    skill: woodcutting
    level_req: 1
    xp: 25
    yield_item: oak_logs
    respawn_secs: 30
    width: 1.5
    depth: 1.5
spawns:
  - resource_id: oak_tree
    x: 12
    y: 10
    z: -4
`)
	tbl, err := LoadResourceTable(path)
	require.NoError(t, err)
	assert.Equal(t, 1, tbl.Count())
	require.Len(t, tbl.Spawns(), 1)
	assert.Equal(t, "oak_logs", tbl.Get("oak_tree").YieldItem)
}

func TestLoadResourceTableRejectsUnknownSpawn(t *testing.T) {
	path := writeYAML(t, "resources.yaml", `
resources: []
spawns:
  - resource_id: ghost_tree
    x: 0
    y: 0
    z: 0
`)
	_, err := LoadResourceTable(path)
	assert.ErrorContains(t, err, "unknown resource")
}
