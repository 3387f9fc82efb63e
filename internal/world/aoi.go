package world

import "math"

// AOIManager is a uniform-grid spatial index mapping world cells to entity
// sets and player subscription windows. A player subscribes to the
// (2k+1)x(2k+1) square of cells around its own cell for view distance k.
// Accessed only from the game loop goroutine; no locks.

// CellKey identifies one grid cell.
type CellKey struct {
	CX, CZ int32
}

// SubscriptionDiff reports the cells a player's window gained and lost
// after a subscription update.
type SubscriptionDiff struct {
	Entered []CellKey
	Exited  []CellKey
}

type playerSub struct {
	socketID string
	cell     CellKey
	window   map[CellKey]struct{}
}

type AOIManager struct {
	cellSize float64
	viewDist int // k, in cells

	cells      map[CellKey]map[string]struct{} // cell → entity ids
	entityCell map[string]CellKey              // entity id → current cell

	players  map[string]*playerSub           // player id → subscription state
	cellSubs map[CellKey]map[string]struct{} // cell → subscribed socket ids
}

func NewAOIManager(cellSize float64, viewDist int) *AOIManager {
	return &AOIManager{
		cellSize:   cellSize,
		viewDist:   viewDist,
		cells:      make(map[CellKey]map[string]struct{}),
		entityCell: make(map[string]CellKey),
		players:    make(map[string]*playerSub),
		cellSubs:   make(map[CellKey]map[string]struct{}),
	}
}

// cellOf uses floor semantics so negative coordinates index negative cells
// (-25 → cell -1) and a coordinate exactly on a seam belongs to the
// higher-indexed cell (50 → cell 1 at size 50).
func (m *AOIManager) cellOf(x, z float64) CellKey {
	return CellKey{
		CX: int32(math.Floor(x / m.cellSize)),
		CZ: int32(math.Floor(z / m.cellSize)),
	}
}

// UpdateEntityPosition inserts or moves an entity. Returns true iff the
// entity's cell changed (including first insertion).
func (m *AOIManager) UpdateEntityPosition(id string, x, z float64) bool {
	newCell := m.cellOf(x, z)
	oldCell, known := m.entityCell[id]
	if known && oldCell == newCell {
		return false
	}
	if known {
		m.removeFromCell(oldCell, id)
	}
	cell := m.cells[newCell]
	if cell == nil {
		cell = make(map[string]struct{})
		m.cells[newCell] = cell
	}
	cell[id] = struct{}{}
	m.entityCell[id] = newCell
	return true
}

// UpdatePlayerSubscriptions recomputes the window of cells around the
// player's new cell and returns the symmetric difference against its
// previous window. The window is recomputed only when the player's cell
// changes; intra-cell movement is free.
func (m *AOIManager) UpdatePlayerSubscriptions(playerID string, x, z float64, socketID string) SubscriptionDiff {
	newCell := m.cellOf(x, z)
	sub := m.players[playerID]
	if sub != nil && sub.cell == newCell && sub.socketID == socketID {
		return SubscriptionDiff{}
	}
	if sub == nil {
		sub = &playerSub{window: make(map[CellKey]struct{})}
		m.players[playerID] = sub
	}
	sub.socketID = socketID
	sub.cell = newCell

	k := int32(m.viewDist)
	newWindow := make(map[CellKey]struct{}, (2*k+1)*(2*k+1))
	for dx := -k; dx <= k; dx++ {
		for dz := -k; dz <= k; dz++ {
			newWindow[CellKey{CX: newCell.CX + dx, CZ: newCell.CZ + dz}] = struct{}{}
		}
	}

	var diff SubscriptionDiff
	for key := range newWindow {
		if _, had := sub.window[key]; !had {
			diff.Entered = append(diff.Entered, key)
			subs := m.cellSubs[key]
			if subs == nil {
				subs = make(map[string]struct{})
				m.cellSubs[key] = subs
			}
			subs[socketID] = struct{}{}
		}
	}
	for key := range sub.window {
		if _, still := newWindow[key]; !still {
			diff.Exited = append(diff.Exited, key)
			m.unsubscribeCell(key, socketID)
		}
	}
	sub.window = newWindow
	return diff
}

// GetSubscribersForEntity returns the socket ids of players whose window
// contains the entity's current cell. Entities with no known position have
// empty subscriber sets.
func (m *AOIManager) GetSubscribersForEntity(id string) map[string]struct{} {
	cell, known := m.entityCell[id]
	if !known {
		return nil
	}
	return m.cellSubs[cell]
}

// GetVisibleEntities returns the entity ids in the player's subscribed
// cells.
func (m *AOIManager) GetVisibleEntities(playerID string) map[string]struct{} {
	sub := m.players[playerID]
	if sub == nil {
		return nil
	}
	out := make(map[string]struct{})
	for key := range sub.window {
		for id := range m.cells[key] {
			out[id] = struct{}{}
		}
	}
	return out
}

// EntitiesInCell returns the entity ids located in one cell.
func (m *AOIManager) EntitiesInCell(key CellKey) map[string]struct{} {
	return m.cells[key]
}

// EntityCell returns the entity's current cell, if tracked.
func (m *AOIManager) EntityCell(id string) (CellKey, bool) {
	key, ok := m.entityCell[id]
	return key, ok
}

// RemoveEntity drops the entity from the index.
func (m *AOIManager) RemoveEntity(id string) {
	cell, known := m.entityCell[id]
	if !known {
		return
	}
	m.removeFromCell(cell, id)
	delete(m.entityCell, id)
}

// RemovePlayer drops the player's subscription window (its entity, if any,
// is removed separately via RemoveEntity).
func (m *AOIManager) RemovePlayer(playerID string) {
	sub := m.players[playerID]
	if sub == nil {
		return
	}
	for key := range sub.window {
		m.unsubscribeCell(key, sub.socketID)
	}
	delete(m.players, playerID)
}

// Clear resets the whole index.
func (m *AOIManager) Clear() {
	m.cells = make(map[CellKey]map[string]struct{})
	m.entityCell = make(map[string]CellKey)
	m.players = make(map[string]*playerSub)
	m.cellSubs = make(map[CellKey]map[string]struct{})
}

func (m *AOIManager) removeFromCell(key CellKey, id string) {
	cell := m.cells[key]
	if cell != nil {
		delete(cell, id)
		if len(cell) == 0 {
			delete(m.cells, key)
		}
	}
}

func (m *AOIManager) unsubscribeCell(key CellKey, socketID string) {
	subs := m.cellSubs[key]
	if subs != nil {
		delete(subs, socketID)
		if len(subs) == 0 {
			delete(m.cellSubs, key)
		}
	}
}
