package world

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCellOfFloorSemantics(t *testing.T) {
	m := NewAOIManager(50, 2)

	assert.Equal(t, CellKey{0, 0}, m.cellOf(0, 0))
	assert.Equal(t, CellKey{0, 0}, m.cellOf(49.99, 49.99))
	assert.Equal(t, CellKey{1, 1}, m.cellOf(50, 50))
	assert.Equal(t, CellKey{-1, -1}, m.cellOf(-25, -0.01))
	assert.Equal(t, CellKey{-1, 0}, m.cellOf(-50, 0))
}

func TestUpdateEntityPositionCellChanges(t *testing.T) {
	m := NewAOIManager(50, 2)

	assert.True(t, m.UpdateEntityPosition("e1", 10, 10), "first insert counts as a change")
	assert.False(t, m.UpdateEntityPosition("e1", 40, 40), "intra-cell move")
	assert.True(t, m.UpdateEntityPosition("e1", 60, 40), "crossed seam on x")

	cell, ok := m.EntityCell("e1")
	require.True(t, ok)
	assert.Equal(t, CellKey{1, 0}, cell)
}

func TestSubscriptionWindowSize(t *testing.T) {
	m := NewAOIManager(50, 2)
	diff := m.UpdatePlayerSubscriptions("p1", 0, 0, "sock-1")

	// k=2 means a 5x5 window on first subscribe.
	assert.Len(t, diff.Entered, 25)
	assert.Empty(t, diff.Exited)
}

func TestSubscriptionDiffOnCrossing(t *testing.T) {
	m := NewAOIManager(50, 2)
	m.UpdatePlayerSubscriptions("p1", 0, 0, "sock-1")

	// One cell east: gain a 5-cell column, lose a 5-cell column.
	diff := m.UpdatePlayerSubscriptions("p1", 60, 0, "sock-1")
	assert.Len(t, diff.Entered, 5)
	assert.Len(t, diff.Exited, 5)

	// No diff while staying in the same cell.
	diff = m.UpdatePlayerSubscriptions("p1", 80, 20, "sock-1")
	assert.Empty(t, diff.Entered)
	assert.Empty(t, diff.Exited)
}

func TestSubscribersForEntity(t *testing.T) {
	m := NewAOIManager(50, 2)
	m.UpdatePlayerSubscriptions("p1", 0, 0, "sock-1")
	m.UpdateEntityPosition("tree", 90, 90) // cell (1,1), inside the window

	subs := m.GetSubscribersForEntity("tree")
	assert.Contains(t, subs, "sock-1")

	// Three cells away exceeds k=2.
	m.UpdateEntityPosition("tree", 160, 160)
	subs = m.GetSubscribersForEntity("tree")
	assert.NotContains(t, subs, "sock-1")
}

func TestVisibleEntities(t *testing.T) {
	m := NewAOIManager(50, 2)
	m.UpdateEntityPosition("near", 20, 20)
	m.UpdateEntityPosition("far", 500, 500)
	m.UpdatePlayerSubscriptions("p1", 0, 0, "sock-1")

	vis := m.GetVisibleEntities("p1")
	assert.Contains(t, vis, "near")
	assert.NotContains(t, vis, "far")
}

func TestRemovePlayerDropsSubscriptions(t *testing.T) {
	m := NewAOIManager(50, 2)
	m.UpdateEntityPosition("tree", 10, 10)
	m.UpdatePlayerSubscriptions("p1", 0, 0, "sock-1")
	require.Contains(t, m.GetSubscribersForEntity("tree"), "sock-1")

	m.RemovePlayer("p1")
	assert.NotContains(t, m.GetSubscribersForEntity("tree"), "sock-1")
	assert.Nil(t, m.GetVisibleEntities("p1"))
}

func TestStateReclaimStale(t *testing.T) {
	s := NewState(NewAOIManager(50, 2))
	p := &Player{
		Entity:      Entity{ID: "char-1", Type: TypePlayer},
		SocketID:    "sock-old",
		CharacterID: "char-1",
	}
	s.AddPlayer(p)

	sock, ok := s.ReclaimStale("char-1")
	require.True(t, ok)
	assert.Equal(t, "sock-old", sock)
	assert.Nil(t, s.Player("char-1"))
	assert.Nil(t, s.PlayerBySocket("sock-old"))

	_, ok = s.ReclaimStale("char-1")
	assert.False(t, ok)
}

func TestStatePlayerCount(t *testing.T) {
	s := NewState(NewAOIManager(50, 2))
	assert.Equal(t, 0, s.PlayerCount())

	s.AddPlayer(&Player{Entity: Entity{ID: "p1", Type: TypePlayer}, SocketID: "sock-1"})
	s.AddPlayer(&Player{Entity: Entity{ID: "p2", Type: TypePlayer}, SocketID: "sock-2"})
	assert.Equal(t, 2, s.PlayerCount())

	s.RemovePlayer("p1")
	assert.Equal(t, 1, s.PlayerCount())

	// Removing an unknown id never skews the counter.
	s.RemovePlayer("p1")
	assert.Equal(t, 1, s.PlayerCount())
}

func TestVector3PoolBounded(t *testing.T) {
	p := NewVector3Pool(2)
	a, b, c := p.Get(), p.Get(), p.Get()
	p.Put(a)
	p.Put(b)
	p.Put(c) // over capacity, dropped
	assert.Equal(t, 2, p.Size())
}
