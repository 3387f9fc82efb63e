package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "server.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""))
	require.NoError(t, err)

	assert.Equal(t, 50*time.Millisecond, cfg.Network.TickRate.Duration)
	assert.Equal(t, 500, cfg.Server.PlayerLimit)
	assert.Equal(t, 50.0, cfg.World.CellSize)
	assert.Equal(t, 2, cfg.World.ViewDistance)
	assert.Equal(t, 5, cfg.Auth.AnonymousPerHour)
	assert.Equal(t, 1200, cfg.World.SaveInterval)
	assert.True(t, cfg.RateLimit.Enabled)
	assert.NotZero(t, cfg.Server.StartTime)
}

func TestLoadOverridesFromFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
[server]
player_limit = 50

[network]
tick_rate = "100ms"

[auth]
anonymous_per_hour = 0
`))
	require.NoError(t, err)

	assert.Equal(t, 50, cfg.Server.PlayerLimit)
	assert.Equal(t, 100*time.Millisecond, cfg.Network.TickRate.Duration)
	assert.Equal(t, 0, cfg.Auth.AnonymousPerHour)

	// Untouched sections keep their defaults.
	assert.Equal(t, "0.0.0.0:4444", cfg.Network.BindAddress)
	assert.Equal(t, 10*time.Second, cfg.Trade.RequestCooldown.Duration)
}

func TestLoadEnvOverlay(t *testing.T) {
	t.Setenv("NODE_ENV", "development")
	t.Setenv("HYPERSCAPE_DEBUG_FACE_DIRECTION", "true")

	cfg, err := Load(writeConfig(t, ""))
	require.NoError(t, err)

	assert.True(t, cfg.IsDevelopment())
	assert.True(t, cfg.Env.DebugFaceDirection)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestLoadBadToml(t *testing.T) {
	_, err := Load(writeConfig(t, "[server\nbroken"))
	assert.Error(t, err)
}
