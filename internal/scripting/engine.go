package scripting

import (
	"fmt"
	"os"
	"path/filepath"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// Engine wraps a single gopher-lua VM for dialogue trees.
// Single-goroutine access only (game loop).
type Engine struct {
	vm  *lua.LState
	log *zap.Logger
}

// NewEngine creates a Lua engine and loads all dialogue scripts from the
// given directory.
func NewEngine(dialogueDir string, log *zap.Logger) (*Engine, error) {
	vm := lua.NewState(lua.Options{
		SkipOpenLibs: false,
	})
	vm.SetGlobal("API_VERSION", lua.LNumber(1))

	e := &Engine{vm: vm, log: log}
	if err := e.loadDir(dialogueDir); err != nil {
		vm.Close()
		return nil, fmt.Errorf("load dialogue scripts: %w", err)
	}
	return e, nil
}

// loadDir loads all .lua files in a directory.
func (e *Engine) loadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // skip missing dirs
		}
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".lua" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := e.vm.DoFile(path); err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
		e.log.Debug("loaded lua script", zap.String("file", path))
	}
	return nil
}

// DialogueNode is one screen of an NPC conversation.
type DialogueNode struct {
	NodeID    string
	Text      string
	Responses []string
	End       bool
}

// StartDialogue calls Lua dialogue_start(npc_id). Returns nil when the NPC
// has no dialogue.
func (e *Engine) StartDialogue(npcID string) *DialogueNode {
	fn := e.vm.GetGlobal("dialogue_start")
	if fn == lua.LNil {
		return nil
	}

	if err := e.vm.CallByParam(lua.P{
		Fn:      fn,
		NRet:    1,
		Protect: true,
	}, lua.LString(npcID)); err != nil {
		e.log.Error("lua dialogue_start error", zap.Error(err), zap.String("npc", npcID))
		return nil
	}

	return e.popNode()
}

// AdvanceDialogue calls Lua dialogue_next(npc_id, node_id, response_index).
// A nil return ends the conversation. responseIndex is zero-based on the
// wire and in Lua.
func (e *Engine) AdvanceDialogue(npcID, nodeID string, responseIndex int) *DialogueNode {
	fn := e.vm.GetGlobal("dialogue_next")
	if fn == lua.LNil {
		return nil
	}

	if err := e.vm.CallByParam(lua.P{
		Fn:      fn,
		NRet:    1,
		Protect: true,
	}, lua.LString(npcID), lua.LString(nodeID), lua.LNumber(responseIndex)); err != nil {
		e.log.Error("lua dialogue_next error", zap.Error(err), zap.String("npc", npcID))
		return nil
	}

	return e.popNode()
}

func (e *Engine) popNode() *DialogueNode {
	result := e.vm.Get(-1)
	e.vm.Pop(1)

	if result == lua.LNil {
		return nil
	}
	rt, ok := result.(*lua.LTable)
	if !ok {
		return nil
	}

	node := &DialogueNode{
		NodeID: lStr(rt, "node_id"),
		Text:   lStr(rt, "text"),
		End:    rt.RawGetString("ends") == lua.LTrue,
	}
	if respVal, ok := rt.RawGetString("responses").(*lua.LTable); ok {
		respVal.ForEach(func(_, v lua.LValue) {
			node.Responses = append(node.Responses, lua.LVAsString(v))
		})
	}
	return node
}

// lStr reads a string field from a Lua table.
func lStr(t *lua.LTable, key string) string {
	return lua.LVAsString(t.RawGetString(key))
}

// Close shuts down the Lua VM.
func (e *Engine) Close() {
	e.vm.Close()
}
