package handler

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperscape/server/internal/net/packet"
	"github.com/hyperscape/server/internal/persist"
)

func charRow(id string) *persist.CharacterRow {
	return &persist.CharacterRow{
		ID:        id,
		AccountID: "acct-" + id,
		Name:      "Hero",
		Health:    100,
		MaxHealth: 100,
	}
}

func TestEnterWorldRejectedWhenCharacterAlive(t *testing.T) {
	deps := newTestDeps(t)

	sessA := pipeSession(t, "sock-a")
	sessA.AccountID = "acct-char-1"
	sessA.SetState(packet.StateInWorld)
	deps.Sessions.Add(sessA)
	ProcessSpawn(&SpawnRequest{Sess: sessA, Char: charRow("char-1")}, deps)
	require.NotNil(t, deps.World.PlayerByCharacter("char-1"))

	// A second connection claims the same character while the first is
	// still alive.
	sessB := pipeSession(t, "sock-b")
	sessB.AccountID = "acct-char-1"
	deps.Sessions.Add(sessB)
	ProcessSpawn(&SpawnRequest{Sess: sessB, Char: charRow("char-1")}, deps)

	p := deps.World.PlayerByCharacter("char-1")
	require.NotNil(t, p)
	assert.Equal(t, sessA.ID, p.SocketID, "first session keeps the body")
	assert.Equal(t, 1, deps.World.PlayerCount())

	name, payload := readFrame(t, sessB)
	assert.Equal(t, packet.SEnterWorldRejected, name)
	var rej struct {
		Reason string `json:"reason"`
	}
	require.NoError(t, json.Unmarshal(payload, &rej))
	assert.Equal(t, "already_logged_in", rej.Reason)

	assert.True(t, sessB.IsClosed())
	code, reason := sessB.CloseReason()
	assert.Equal(t, uint16(packet.CloseSessionReplaced), code)
	assert.Equal(t, "already_logged_in", reason)
	assert.False(t, sessA.IsClosed())
}

func TestStaleSessionReclaimedOnRespawn(t *testing.T) {
	deps := newTestDeps(t)

	sessA := pipeSession(t, "sock-a")
	sessA.AccountID = "acct-char-1"
	sessA.SetState(packet.StateInWorld)
	deps.Sessions.Add(sessA)
	ProcessSpawn(&SpawnRequest{Sess: sessA, Char: charRow("char-1")}, deps)
	sessA.Close()

	// The body a dead session left behind yields to the reconnect.
	sessB := pipeSession(t, "sock-b")
	sessB.AccountID = "acct-char-1"
	deps.Sessions.Add(sessB)
	ProcessSpawn(&SpawnRequest{Sess: sessB, Char: charRow("char-1")}, deps)

	p := deps.World.PlayerByCharacter("char-1")
	require.NotNil(t, p)
	assert.Equal(t, sessB.ID, p.SocketID)
	assert.Equal(t, 1, deps.World.PlayerCount())
	assert.False(t, sessB.IsClosed())
}

func TestSpectatorSnapshot(t *testing.T) {
	deps := newTestDeps(t)
	addPlayer(t, deps, "char-1", 5, 5)

	sess := pipeSession(t, "sock-spec")
	sess.SetState(packet.StateSpectator)
	deps.Sessions.Add(sess)

	ProcessSpawn(&SpawnRequest{Sess: sess, Spectate: true, Follow: "char-1"}, deps)
	sess.FlushOutput()

	name, payload := readFrame(t, sess)
	assert.Equal(t, packet.SWorldState, name)

	var snap struct {
		SpectatorMode bool              `json:"spectatorMode"`
		FollowEntity  string            `json:"followEntity"`
		Characters    []json.RawMessage `json:"characters"`
		Player        json.RawMessage   `json:"player"`
		Entities      []json.RawMessage `json:"entities"`
	}
	require.NoError(t, json.Unmarshal(payload, &snap))
	assert.True(t, snap.SpectatorMode)
	assert.Equal(t, "char-1", snap.FollowEntity)
	assert.NotNil(t, snap.Characters)
	assert.Nil(t, snap.Player, "spectators carry no player block")
	assert.Len(t, snap.Entities, 1, "whole-world entity view")
	assert.Equal(t, 1, deps.World.PlayerCount(), "spectators hold no body")
}

func TestEnterWorldKicksAtPlayerLimit(t *testing.T) {
	deps := newTestDeps(t)
	deps.Config.Server.PlayerLimit = 1
	addPlayer(t, deps, "char-1", 0, 0)

	sess := pipeSession(t, "sock-b")
	sess.AccountID = "acct-2"
	sess.SetState(packet.StateCharacterSelect)
	deps.Sessions.Add(sess)

	HandleEnterWorld(sess, json.RawMessage(`{"characterId":"char-2"}`), deps)

	name, payload := readFrame(t, sess)
	assert.Equal(t, packet.SKick, name)
	var kick struct {
		Reason string `json:"reason"`
	}
	require.NoError(t, json.Unmarshal(payload, &kick))
	assert.Equal(t, "player_limit", kick.Reason)

	code, _ := sess.CloseReason()
	assert.Equal(t, uint16(packet.CloseKicked), code)
	assert.Empty(t, deps.SpawnCh, "no spawn handed to the game loop")
}
