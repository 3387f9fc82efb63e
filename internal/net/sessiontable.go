package net

import "sync"

// SessionTable is the socket id → session registry. Written by the game
// loop when sessions join and leave; read by broadcast paths. The lock is
// held only for map access, never across sends.
type SessionTable struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewSessionTable() *SessionTable {
	return &SessionTable{
		sessions: make(map[string]*Session),
	}
}

func (t *SessionTable) Add(s *Session) {
	t.mu.Lock()
	t.sessions[s.ID] = s
	t.mu.Unlock()
}

func (t *SessionTable) Remove(id string) {
	t.mu.Lock()
	delete(t.sessions, id)
	t.mu.Unlock()
}

func (t *SessionTable) Get(id string) *Session {
	t.mu.RLock()
	s := t.sessions[id]
	t.mu.RUnlock()
	return s
}

func (t *SessionTable) Len() int {
	t.mu.RLock()
	n := len(t.sessions)
	t.mu.RUnlock()
	return n
}

// Each calls fn for every live session. fn must not block.
func (t *SessionTable) Each(fn func(*Session)) {
	t.mu.RLock()
	snapshot := make([]*Session, 0, len(t.sessions))
	for _, s := range t.sessions {
		snapshot = append(snapshot, s)
	}
	t.mu.RUnlock()
	for _, s := range snapshot {
		fn(s)
	}
}
