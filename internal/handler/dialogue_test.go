package handler

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hyperscape/server/internal/scripting"
)

const guideScript = `
local greet = {
	node_id = "greet",
	text = "Hello there.",
	responses = { "Who are you?", "Goodbye." },
}

function dialogue_start(npc_id)
	if npc_id ~= "guide" then
		return nil
	end
	return greet
end

function dialogue_next(npc_id, node_id, response_index)
	if node_id ~= "greet" then
		return nil
	end
	if response_index == 0 then
		return { node_id = "who", text = "Just a guide.", responses = { "Goodbye." } }
	end
	return { node_id = "bye", text = "Safe travels.", ends = true }
end
`

func newDialogueDeps(t *testing.T) *Deps {
	t.Helper()

	deps := newTestDeps(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "guide.lua"), []byte(guideScript), 0o644))

	eng, err := scripting.NewEngine(dir, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(eng.Close)
	deps.Scripts = eng
	return deps
}

func TestDialogueChoiceAdvances(t *testing.T) {
	deps := newDialogueDeps(t)
	p, sess := addPlayer(t, deps, "char-1", 0, 0)

	HandleDialogueChoice(sess, json.RawMessage(`{"npcId":"guide"}`), deps)
	require.Equal(t, "guide", p.DialogueNPC)
	require.Equal(t, "greet", p.DialogueNode)

	HandleDialogueChoice(sess, json.RawMessage(`{"npcId":"guide","response":0}`), deps)
	assert.Equal(t, "who", p.DialogueNode)
}

func TestDialogueChoiceOutOfRangeDropped(t *testing.T) {
	deps := newDialogueDeps(t)
	p, sess := addPlayer(t, deps, "char-1", 0, 0)

	HandleDialogueChoice(sess, json.RawMessage(`{"npcId":"guide"}`), deps)
	require.Equal(t, "greet", p.DialogueNode)

	// An index past the valid range is dropped, never clamped onto the
	// last response.
	HandleDialogueChoice(sess, json.RawMessage(`{"npcId":"guide","response":10}`), deps)
	assert.Equal(t, "greet", p.DialogueNode)
	assert.Equal(t, "guide", p.DialogueNPC, "conversation still open")

	HandleDialogueChoice(sess, json.RawMessage(`{"npcId":"guide","response":-1}`), deps)
	assert.Equal(t, "greet", p.DialogueNode)
}
