package handler

import (
	"github.com/hyperscape/server/internal/core/event"
	"github.com/hyperscape/server/internal/net/packet"
)

// RegisterEventBridge wires game events to outbound client messages.
// Routing: events carrying a PlayerID are unicast to that player's socket,
// combat and chat fan out to the subject's AOI subscribers, and world-level
// events (resources, join/leave) go to everyone. Handlers run on the game
// loop at the event dispatch phase.
func RegisterEventBridge(deps *Deps) {
	unicast := func(playerID, name string, v any) {
		sendToPlayer(playerID, name, v, deps)
	}

	event.Subscribe(deps.Bus, func(ev event.InventoryInitialized) {
		unicast(ev.PlayerID, packet.SInventory, map[string]any{
			"items": ev.Items,
			"coins": ev.Coins,
		})
	})
	event.Subscribe(deps.Bus, func(ev event.InventoryUpdated) {
		unicast(ev.PlayerID, packet.SInventory, map[string]any{
			"items": ev.Items,
			"coins": ev.Coins,
		})
	})
	event.Subscribe(deps.Bus, func(ev event.CoinsUpdated) {
		unicast(ev.PlayerID, packet.SCoins, map[string]any{"coins": ev.Coins})
	})
	event.Subscribe(deps.Bus, func(ev event.SkillsUpdated) {
		unicast(ev.PlayerID, packet.SSkills, map[string]any{"skills": ev.Skills})
	})
	event.Subscribe(deps.Bus, func(ev event.PlayerUpdated) {
		unicast(ev.PlayerID, packet.SPlayerStats, map[string]any{
			"health":    ev.Health,
			"maxHealth": ev.MaxHealth,
			"state":     ev.State,
		})
	})
	event.Subscribe(deps.Bus, func(ev event.UIMessage) {
		unicast(ev.PlayerID, packet.SUIMessage, map[string]any{
			"text": ev.Text,
			"kind": ev.Kind,
		})
	})

	event.Subscribe(deps.Bus, func(ev event.DialogueStart) {
		unicast(ev.PlayerID, packet.SDialogueStart, map[string]any{
			"npcId":     ev.NPCID,
			"nodeId":    ev.NodeID,
			"text":      ev.Text,
			"responses": ev.Responses,
		})
	})
	event.Subscribe(deps.Bus, func(ev event.DialogueNodeChange) {
		unicast(ev.PlayerID, packet.SDialogueNode, map[string]any{
			"nodeId":    ev.NodeID,
			"text":      ev.Text,
			"responses": ev.Responses,
		})
	})
	event.Subscribe(deps.Bus, func(ev event.DialogueEnd) {
		unicast(ev.PlayerID, packet.SDialogueEnd, map[string]any{})
	})

	event.Subscribe(deps.Bus, func(ev event.BankOpenRequest) {
		unicast(ev.PlayerID, packet.SBankOpen, map[string]any{
			"bankId": ev.BankID,
			"items":  ev.Items,
		})
	})
	event.Subscribe(deps.Bus, func(ev event.StoreOpenRequest) {
		unicast(ev.PlayerID, packet.SStoreOpen, map[string]any{"storeId": ev.StoreID})
	})

	// AOI-scoped: delivered to whoever can see the subject.
	event.Subscribe(deps.Bus, func(ev event.CombatDamageDealt) {
		deps.Bc.BroadcastToSubscribers(ev.TargetID, packet.SCombatDamage, map[string]any{
			"attackerId": ev.AttackerID,
			"targetId":   ev.TargetID,
			"damage":     ev.Damage,
		})
	})
	event.Subscribe(deps.Bus, func(ev event.ChatMessage) {
		deps.Bc.BroadcastToSubscribers(ev.PlayerID, packet.SChat, map[string]any{
			"playerId": ev.PlayerID,
			"name":     ev.Name,
			"text":     ev.Text,
		})
	})

	// World-level.
	event.Subscribe(deps.Bus, func(ev event.ResourceSpawned) {
		deps.Bc.BroadcastJSONAll(packet.SResourceSpawned, map[string]any{
			"resourceId": ev.ResourceID,
			"type":       ev.ResourceType,
			"position":   [3]float64{ev.X, ev.Y, ev.Z},
		})
	})
	event.Subscribe(deps.Bus, func(ev event.ResourceDepleted) {
		deps.Bc.BroadcastJSONAll(packet.SResourceDepleted, map[string]any{
			"resourceId": ev.ResourceID,
		})
	})
	event.Subscribe(deps.Bus, func(ev event.ResourceRespawned) {
		deps.Bc.BroadcastJSONAll(packet.SResourceRespawned, map[string]any{
			"resourceId": ev.ResourceID,
		})
	})
	event.Subscribe(deps.Bus, func(ev event.PlayerJoined) {
		deps.Bc.BroadcastJSONAll(packet.SPlayerJoined, map[string]any{
			"playerId": ev.PlayerID,
			"name":     ev.Name,
		})
	})
	event.Subscribe(deps.Bus, func(ev event.PlayerLeft) {
		deps.Bc.BroadcastJSONAll(packet.SPlayerLeft, map[string]any{
			"playerId": ev.PlayerID,
			"name":     ev.Name,
		})
	})
}
