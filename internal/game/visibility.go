package game

import (
	"github.com/hyperscape/server/internal/broadcast"
	"github.com/hyperscape/server/internal/net/packet"
	"github.com/hyperscape/server/internal/world"
)

// EntitySnapshot is the JSON shape of a spawned entity.
type EntitySnapshot struct {
	ID        string           `json:"id"`
	Type      world.EntityType `json:"type"`
	Name      string           `json:"name,omitempty"`
	Position  [3]float64       `json:"position"`
	Rotation  [4]float64       `json:"rotation"`
	Health    int              `json:"health"`
	MaxHealth int              `json:"maxHealth"`
	State     string           `json:"state,omitempty"`
}

// Snapshot builds the wire shape for one entity.
func Snapshot(e *world.Entity) EntitySnapshot {
	return EntitySnapshot{
		ID:        e.ID,
		Type:      e.Type,
		Name:      e.Name,
		Position:  [3]float64{e.X, e.Y, e.Z},
		Rotation:  [4]float64{e.QX, e.QY, e.QZ, e.QW},
		Health:    e.Health,
		MaxHealth: e.MaxHealth,
		State:     e.State,
	}
}

// NotifyVisibilityDiff informs a player of entities entering and leaving
// its view after a subscription window change. Entities in entered cells
// spawn on the client; entities in exited cells despawn.
func NotifyVisibilityDiff(bc *broadcast.Broadcaster, st *world.State, p *world.Player, diff world.SubscriptionDiff) {
	if len(diff.Entered) == 0 && len(diff.Exited) == 0 {
		return
	}
	aoi := st.AOI
	for _, cell := range diff.Entered {
		for id := range aoi.EntitiesInCell(cell) {
			if id == p.ID {
				continue
			}
			if e := st.Entity(id); e != nil {
				bc.SendJSONTo(p.SocketID, packet.SEntitySpawned, Snapshot(e))
			}
		}
	}
	for _, cell := range diff.Exited {
		for id := range aoi.EntitiesInCell(cell) {
			if id == p.ID {
				continue
			}
			bc.SendJSONTo(p.SocketID, packet.SEntityDespawned, map[string]string{"id": id})
		}
	}
}

// AnnounceSpawn tells existing viewers about a newly spawned player. The
// player's own view fills in via its initial subscription diff.
func AnnounceSpawn(bc *broadcast.Broadcaster, p *world.Player) {
	frame := packet.EncodeJSON(packet.SEntitySpawned, Snapshot(&p.Entity))
	bc.SendToSetExcept(bc.SubscribersOf(p.ID), p.SocketID, frame)
}

// AnnounceDespawn tells viewers an entity left the world.
func AnnounceDespawn(bc *broadcast.Broadcaster, entityID, exceptSocket string) {
	frame := packet.EncodeJSON(packet.SEntityDespawned, map[string]string{"id": entityID})
	bc.SendToSetExcept(bc.SubscribersOf(entityID), exceptSocket, frame)
}
