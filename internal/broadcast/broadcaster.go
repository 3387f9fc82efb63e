package broadcast

import (
	"go.uber.org/zap"

	"github.com/hyperscape/server/internal/metrics"
	"github.com/hyperscape/server/internal/net/packet"
	"github.com/hyperscape/server/internal/world"
)

// Broadcaster is the outbound entity-update pipeline: updates queued during
// a tick are coalesced per entity, throttled per viewer by distance, packed
// into binary batch frames and buffered on each viewer's session at the
// output phase. Each viewer gets at most one batch frame per tick; records
// past the frame cap carry over to the next flush. Game loop goroutine
// only.
type Broadcaster struct {
	*Manager

	state *world.State
	aoi   *world.AOIManager
	log   *zap.Logger

	// AOIDisabled routes every update to every live player. Debug knob.
	AOIDisabled bool

	tick    uint64
	pending map[string]*Update
	order   []string

	// carry[socketID] holds admitted records that missed the frame cap.
	carry map[string][]*Update

	// lastSent[socketID][entityID] = tick of last delivery
	lastSent map[string]map[string]uint64
}

func NewBroadcaster(mgr *Manager, state *world.State, aoi *world.AOIManager, log *zap.Logger) *Broadcaster {
	return &Broadcaster{
		Manager:  mgr,
		state:    state,
		aoi:      aoi,
		log:      log,
		pending:  make(map[string]*Update),
		carry:    make(map[string][]*Update),
		lastSent: make(map[string]map[string]uint64),
	}
}

// QueueEntityUpdate coalesces an update into the current tick's pending
// set. Multiple updates for one entity merge; the last field values win.
func (b *Broadcaster) QueueEntityUpdate(u Update) {
	if existing, ok := b.pending[u.EntityID]; ok {
		existing.Merge(&u)
		return
	}
	cp := u
	b.pending[u.EntityID] = &cp
	b.order = append(b.order, u.EntityID)
}

// Flush delivers the tick's pending updates. Called once per tick at the
// output phase, before sessions flush their buffers.
func (b *Broadcaster) Flush() {
	b.tick++
	if len(b.pending) == 0 && len(b.carry) == 0 {
		return
	}

	perViewer := make(map[string][]*Update)
	for _, id := range b.order {
		u := b.pending[id]
		subs := b.subscribers(id)
		if len(subs) == 0 {
			continue
		}

		ex, ez := u.X, u.Z
		if e := b.state.Entity(id); e != nil {
			ex, ez = e.X, e.Z
		}

		for sock := range subs {
			viewer := b.state.PlayerBySocket(sock)
			if viewer == nil {
				continue
			}
			dx := viewer.X - ex
			dz := viewer.Z - ez
			interval := uint64(Interval(dx*dx+dz*dz, u.Priority))

			sent := b.lastSent[sock]
			if sent == nil {
				sent = make(map[string]uint64)
				b.lastSent[sock] = sent
			}
			if last, ok := sent[id]; ok && b.tick-last < interval {
				metrics.UpdatesThrottled.Inc()
				continue
			}
			sent[id] = b.tick
			perViewer[sock] = append(perViewer[sock], u)
		}
	}

	// Carried records from the last overflow go out first, ahead of this
	// tick's admissions. A fresh record for the same entity follows its
	// stale carried one, so the newest values still land last.
	for sock, queued := range b.carry {
		perViewer[sock] = append(queued, perViewer[sock]...)
		delete(b.carry, sock)
	}

	for sock, updates := range perViewer {
		if len(updates) > MaxUpdatesPerBatch {
			b.carry[sock] = append([]*Update(nil), updates[MaxUpdatesPerBatch:]...)
			updates = updates[:MaxUpdatesPerBatch]
		}
		b.SendTo(sock, packet.Encode(packet.SEntityUpdates, EncodeFrame(updates)))
		metrics.BatchFramesSent.Inc()
		metrics.BatchRecordsSent.Add(float64(len(updates)))
	}

	for id := range b.pending {
		delete(b.pending, id)
	}
	b.order = b.order[:0]
}

// subscribers resolves the viewer set for an entity. With AOI disabled
// every live player sees every entity.
func (b *Broadcaster) subscribers(entityID string) map[string]struct{} {
	if !b.AOIDisabled {
		return b.aoi.GetSubscribersForEntity(entityID)
	}
	all := make(map[string]struct{})
	b.state.Players(func(p *world.Player) {
		all[p.SocketID] = struct{}{}
	})
	return all
}

// SendJSONTo buffers a JSON-payload frame on one session.
func (b *Broadcaster) SendJSONTo(socketID, name string, v any) {
	b.SendTo(socketID, packet.EncodeJSON(name, v))
}

// BroadcastToSubscribers buffers a JSON-payload frame on every viewer of
// the entity's current cell.
func (b *Broadcaster) BroadcastToSubscribers(entityID, name string, v any) {
	subs := b.subscribers(entityID)
	if len(subs) == 0 {
		return
	}
	b.SendToSet(subs, packet.EncodeJSON(name, v))
}

// BroadcastJSONAll buffers a JSON-payload frame on every session.
func (b *Broadcaster) BroadcastJSONAll(name string, v any) {
	b.BroadcastAll(packet.EncodeJSON(name, v))
}

// SubscribersOf returns the socket ids currently viewing the entity's cell.
func (b *Broadcaster) SubscribersOf(entityID string) map[string]struct{} {
	return b.subscribers(entityID)
}

// ForgetViewer drops per-viewer throttle and carry state after a
// disconnect.
func (b *Broadcaster) ForgetViewer(socketID string) {
	delete(b.lastSent, socketID)
	delete(b.carry, socketID)
}

// ForgetEntity drops per-entity throttle and queued state after a despawn.
func (b *Broadcaster) ForgetEntity(entityID string) {
	delete(b.pending, entityID)
	for _, sent := range b.lastSent {
		delete(sent, entityID)
	}
	for sock, queued := range b.carry {
		kept := queued[:0]
		for _, u := range queued {
			if u.EntityID != entityID {
				kept = append(kept, u)
			}
		}
		if len(kept) == 0 {
			delete(b.carry, sock)
		} else {
			b.carry[sock] = kept
		}
	}
}

// Tick reports the broadcaster's flush counter. Test helper.
func (b *Broadcaster) Tick() uint64 { return b.tick }
