package handler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/hyperscape/server/internal/core/event"
	"github.com/hyperscape/server/internal/game"
	"github.com/hyperscape/server/internal/metrics"
	"github.com/hyperscape/server/internal/net"
	"github.com/hyperscape/server/internal/net/packet"
	"github.com/hyperscape/server/internal/persist"
	"github.com/hyperscape/server/internal/world"
)

// ProcessSpawn turns a finished enterWorld into a live player. Runs on the
// game loop.
func ProcessSpawn(req *SpawnRequest, deps *Deps) {
	if req.Spectate {
		sendWorldSnapshot(req.Sess, nil, req.Follow, deps)
		return
	}

	// One body per character. A character claimed by a session that is
	// still alive rejects the newcomer; a body left by a dead session is
	// reclaimed before the respawn.
	if old := deps.World.PlayerByCharacter(req.Char.ID); old != nil {
		oldSock := old.SocketID
		if s := deps.Sessions.Get(oldSock); s != nil && !s.IsClosed() {
			deps.Log.Info("enterWorld rejected, character already in world",
				zap.String("character", req.Char.ID),
				zap.String("session", req.Sess.ID),
				zap.String("owner_session", oldSock),
			)
			req.Sess.SendNow(packet.EncodeJSON(packet.SEnterWorldRejected, map[string]string{
				"reason": "already_logged_in",
			}))
			req.Sess.CloseWithCode(packet.CloseSessionReplaced, "already_logged_in")
			return
		}
		deps.Log.Info("reclaiming stale player",
			zap.String("character", req.Char.ID),
			zap.String("old_session", oldSock),
		)
		game.AnnounceDespawn(deps.Bc, old.ID, oldSock)
		deps.World.ReclaimStale(req.Char.ID)
		deps.Movement.Stop(req.Char.ID)
		deps.Validator.Remove(req.Char.ID)
		deps.Bc.ForgetViewer(oldSock)
		deps.Bc.ForgetEntity(req.Char.ID)
		deps.Trades.CancelForPlayer(req.Char.ID, "reconnected")
	}

	p := buildPlayer(req, deps.Terrain)
	deps.World.AddPlayer(p)
	req.Sess.PlayerID = p.ID
	deps.Validator.Track(p)

	game.AnnounceSpawn(deps.Bc, p)
	sendWorldSnapshot(req.Sess, p, "", deps)

	event.Emit(deps.Bus, event.PlayerJoined{PlayerID: p.ID, Name: p.Name})
	metrics.PlayersInWorld.Set(float64(deps.World.PlayerCount()))

	deps.Log.Info("player entered world",
		zap.String("session", req.Sess.ID),
		zap.String("player", p.ID),
		zap.String("name", p.Name),
	)
}

func buildPlayer(req *SpawnRequest, terrain world.Terrain) *world.Player {
	c := req.Char
	p := &world.Player{
		Entity: world.Entity{
			ID:        c.ID,
			Type:      world.TypePlayer,
			Name:      c.Name,
			X:         c.X,
			Z:         c.Z,
			QW:        1,
			Health:    c.Health,
			MaxHealth: c.MaxHealth,
			State:     "idle",
		},
		SocketID:       req.Sess.ID,
		AccountID:      req.Sess.AccountID,
		CharacterID:    c.ID,
		Skills:         make(map[string]world.Skill, len(req.Skills)),
		Equipment:      req.Equipment,
		AutoRetaliate:  req.AutoRet,
		IsLoading:      true,
		LoadingStarted: time.Now(),
	}
	p.Y = world.GroundY(terrain, c.X, c.Z, c.Y)
	for name, s := range req.Skills {
		p.Skills[name] = world.Skill{Level: s.Level, XP: s.XP}
	}
	p.Inventory.Coins = c.Coins
	for _, it := range req.Items {
		if it.Slot >= 0 && it.Slot < world.InventorySlots {
			p.Inventory.Slots[it.Slot] = world.ItemStack{
				Slot: it.Slot, ItemID: it.ItemID, Quantity: it.Quantity,
			}
		}
	}
	if p.Equipment == nil {
		p.Equipment = make(map[string]string)
	}
	return p
}

// sendWorldSnapshot delivers the initial worldState frame: the player's
// own full sheet plus every entity currently in view. Spectators get the
// reduced form: whole-world entity view, no player block, and the entity
// they asked to follow.
func sendWorldSnapshot(sess *net.Session, p *world.Player, follow string, deps *Deps) {
	var entities []game.EntitySnapshot
	if p != nil {
		for id := range deps.World.AOI.GetVisibleEntities(p.ID) {
			if id == p.ID {
				continue
			}
			if e := deps.World.Entity(id); e != nil {
				entities = append(entities, game.Snapshot(e))
			}
		}
	} else {
		deps.World.Entities(func(e *world.Entity) {
			entities = append(entities, game.Snapshot(e))
		})
	}

	msg := map[string]any{
		"serverTime": time.Now().UnixMilli(),
		"tickRate":   deps.Config.Network.TickRate.Milliseconds(),
		"entities":   entities,
		"chat":       deps.Chat.Recent(),
	}
	if p == nil {
		msg["spectatorMode"] = true
		msg["characters"] = []characterInfo{}
		if follow != "" {
			msg["followEntity"] = follow
		}
	}
	if p != nil {
		msg["player"] = map[string]any{
			"id":            p.ID,
			"name":          p.Name,
			"position":      [3]float64{p.X, p.Y, p.Z},
			"health":        p.Health,
			"maxHealth":     p.MaxHealth,
			"skills":        p.Skills,
			"inventory":     p.Inventory.Items(),
			"coins":         p.Inventory.Coins,
			"equipment":     p.Equipment,
			"autoRetaliate": p.AutoRetaliate,
		}
	}
	sess.Send(packet.EncodeJSON(packet.SWorldState, msg))
}

// Despawn tears a session's player down after a disconnect. Runs on the
// game loop.
func Despawn(socketID string, deps *Deps) {
	sess := deps.Sessions.Get(socketID)
	deps.Sessions.Remove(socketID)
	deps.Bc.ForgetViewer(socketID)

	p := deps.World.PlayerBySocket(socketID)
	if p == nil {
		return
	}

	if t := deps.Trades.CancelForPlayer(p.ID, "disconnected"); t != nil {
		NotifyTradeCancelled(t, "partner disconnected", deps)
	}

	deps.Movement.Stop(p.ID)
	deps.Validator.Remove(p.ID)

	SaveCharacter(p, deps)

	game.AnnounceDespawn(deps.Bc, p.ID, socketID)
	deps.World.RemovePlayer(p.ID)
	deps.Bc.ForgetEntity(p.ID)

	event.Emit(deps.Bus, event.PlayerLeft{PlayerID: p.ID, Name: p.Name})
	metrics.PlayersInWorld.Set(float64(deps.World.PlayerCount()))

	if sess != nil {
		deps.Log.Info("player left world",
			zap.String("session", socketID),
			zap.String("player", p.ID),
		)
	}
}

// SaveCharacter writes the player's volatile state through. Runs inline;
// a departing player's final state must not race the next login.
func SaveCharacter(p *world.Player, deps *Deps) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := deps.Chars.SaveState(ctx, p.CharacterID, p.X, p.Y, p.Z, p.Health, p.Inventory.Coins); err != nil {
		deps.Log.Error("save character state", zap.String("character", p.CharacterID), zap.Error(err))
	}
	items := make([]persist.InventoryItemRow, 0, world.InventorySlots)
	for _, it := range p.Inventory.Items() {
		items = append(items, persist.InventoryItemRow{Slot: it.Slot, ItemID: it.ItemID, Quantity: it.Quantity})
	}
	if err := deps.Inventory.SaveAll(ctx, p.CharacterID, items); err != nil {
		deps.Log.Error("save inventory", zap.String("character", p.CharacterID), zap.Error(err))
	}
	skills := make(map[string]persist.SkillRow, len(p.Skills))
	for name, s := range p.Skills {
		skills[name] = persist.SkillRow{Level: s.Level, XP: s.XP}
	}
	if err := deps.Skills.SaveAll(ctx, p.CharacterID, skills); err != nil {
		deps.Log.Error("save skills", zap.String("character", p.CharacterID), zap.Error(err))
	}
	p.Dirty = false
}
