package handler

import (
	"encoding/json"

	"github.com/hyperscape/server/internal/core/event"
	"github.com/hyperscape/server/internal/net"
	"github.com/hyperscape/server/internal/scripting"
	"github.com/hyperscape/server/internal/world"
)

// HandleDialogueChoice starts or advances an NPC conversation. An empty
// nodeId starts a new dialogue; otherwise the response index picks the
// branch. Runs on the game loop.
func HandleDialogueChoice(sess *net.Session, payload json.RawMessage, deps *Deps) {
	var req struct {
		NPCID    string `json:"npcId"`
		Response int    `json:"response"`
	}
	if err := json.Unmarshal(payload, &req); err != nil {
		return
	}
	p := deps.World.PlayerBySocket(sess.ID)
	if p == nil || p.IsLoading {
		return
	}
	// Valid response indexes are 0-9; out-of-range picks are dropped.
	if req.Response < 0 || req.Response > 9 {
		return
	}

	var node *scripting.DialogueNode
	starting := p.DialogueNPC == "" || (req.NPCID != "" && req.NPCID != p.DialogueNPC)
	if starting {
		if req.NPCID == "" {
			return
		}
		node = deps.Scripts.StartDialogue(req.NPCID)
		if node == nil {
			return
		}
		p.DialogueNPC = req.NPCID
		p.DialogueNode = node.NodeID
		event.Emit(deps.Bus, event.DialogueStart{
			PlayerID:  p.ID,
			NPCID:     req.NPCID,
			NodeID:    node.NodeID,
			Text:      node.Text,
			Responses: node.Responses,
		})
		if node.End {
			endDialogue(p, deps)
		}
		return
	}

	node = deps.Scripts.AdvanceDialogue(p.DialogueNPC, p.DialogueNode, req.Response)
	if node == nil {
		endDialogue(p, deps)
		return
	}
	p.DialogueNode = node.NodeID
	event.Emit(deps.Bus, event.DialogueNodeChange{
		PlayerID:  p.ID,
		NodeID:    node.NodeID,
		Text:      node.Text,
		Responses: node.Responses,
	})
	if node.End {
		endDialogue(p, deps)
	}
}

func endDialogue(p *world.Player, deps *Deps) {
	p.DialogueNPC = ""
	p.DialogueNode = ""
	event.Emit(deps.Bus, event.DialogueEnd{PlayerID: p.ID})
}
