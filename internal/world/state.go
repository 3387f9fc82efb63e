package world

import "sync/atomic"

// State holds the authoritative world: all entities plus the player index.
// Owned by the game loop goroutine and mutated only there; read-only access
// from handshake goroutines is limited to fields that never change after
// creation (ids, types) and the atomic player counter.
type State struct {
	AOI *AOIManager

	entities map[string]*Entity
	players  map[string]*Player // keyed by entity id
	bySocket map[string]*Player
	byChar   map[string]*Player // character id → live player

	playerCount atomic.Int64
}

func NewState(aoi *AOIManager) *State {
	return &State{
		AOI:      aoi,
		entities: make(map[string]*Entity),
		players:  make(map[string]*Player),
		bySocket: make(map[string]*Player),
		byChar:   make(map[string]*Player),
	}
}

// AddEntity registers an entity and inserts it into the spatial index at its
// current position. An entity is observable the moment it exists.
func (s *State) AddEntity(e *Entity) {
	s.entities[e.ID] = e
	s.AOI.UpdateEntityPosition(e.ID, e.X, e.Z)
}

// AddPlayer registers a player entity along with its session bindings and
// subscribes it to the cells around its spawn.
func (s *State) AddPlayer(p *Player) {
	s.entities[p.ID] = &p.Entity
	s.players[p.ID] = p
	s.bySocket[p.SocketID] = p
	if p.CharacterID != "" {
		s.byChar[p.CharacterID] = p
	}
	s.AOI.UpdateEntityPosition(p.ID, p.X, p.Z)
	s.AOI.UpdatePlayerSubscriptions(p.ID, p.X, p.Z, p.SocketID)
	s.playerCount.Add(1)
}

// ReclaimStale removes the player body a dead session left behind for the
// character and returns its old socket id. Called before spawning a
// reconnecting character so one character never has two bodies in the
// world; the caller has already checked no alive session claims it.
func (s *State) ReclaimStale(characterID string) (oldSocketID string, reclaimed bool) {
	old := s.byChar[characterID]
	if old == nil {
		return "", false
	}
	oldSocketID = old.SocketID
	s.RemovePlayer(old.ID)
	return oldSocketID, true
}

// RemoveEntity drops a non-player entity from the world and the index.
func (s *State) RemoveEntity(id string) {
	delete(s.entities, id)
	s.AOI.RemoveEntity(id)
}

// RemovePlayer tears down a player: entity, player indexes, AOI membership
// and subscription window.
func (s *State) RemovePlayer(id string) {
	p := s.players[id]
	if p == nil {
		return
	}
	delete(s.players, id)
	delete(s.entities, id)
	delete(s.bySocket, p.SocketID)
	if p.CharacterID != "" && s.byChar[p.CharacterID] == p {
		delete(s.byChar, p.CharacterID)
	}
	s.AOI.RemoveEntity(id)
	s.AOI.RemovePlayer(id)
	s.playerCount.Add(-1)
}

// MoveEntity updates an entity's position and its cell membership.
func (s *State) MoveEntity(id string, x, y, z float64) {
	e := s.entities[id]
	if e == nil {
		return
	}
	e.X, e.Y, e.Z = x, y, z
	s.AOI.UpdateEntityPosition(id, x, z)
}

// MovePlayer updates a player's position, cell membership and subscription
// window. The returned diff is non-empty only on cell boundary crossings.
func (s *State) MovePlayer(p *Player, x, y, z float64) SubscriptionDiff {
	p.X, p.Y, p.Z = x, y, z
	s.AOI.UpdateEntityPosition(p.ID, x, z)
	return s.AOI.UpdatePlayerSubscriptions(p.ID, x, z, p.SocketID)
}

func (s *State) Entity(id string) *Entity { return s.entities[id] }

func (s *State) Player(id string) *Player { return s.players[id] }

// PlayerBySocket resolves the live player bound to a socket, if any.
func (s *State) PlayerBySocket(socketID string) *Player { return s.bySocket[socketID] }

// PlayerByCharacter resolves the live player for a character id, if any.
func (s *State) PlayerByCharacter(characterID string) *Player { return s.byChar[characterID] }

// Players iterates the live players. The callback must not add or remove
// players.
func (s *State) Players(fn func(*Player)) {
	for _, p := range s.players {
		fn(p)
	}
}

// Entities iterates all entities. The callback must not add or remove
// entities.
func (s *State) Entities(fn func(*Entity)) {
	for _, e := range s.entities {
		fn(e)
	}
}

// PlayerCount reports the number of live players. Atomic, so connection
// goroutines may read it without racing game-loop map mutation.
func (s *State) PlayerCount() int { return int(s.playerCount.Load()) }

func (s *State) EntityCount() int { return len(s.entities) }
