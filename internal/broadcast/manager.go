package broadcast

import (
	"go.uber.org/zap"

	"github.com/hyperscape/server/internal/net"
)

// Manager is the raw frame fanout over the session table. Lifecycle
// packets (spawn/despawn, join/leave, world snapshots) and unicast replies
// go through here; steady-state entity updates go through the Broadcaster
// so they pick up coalescing and distance throttling.
type Manager struct {
	sessions *net.SessionTable
	log      *zap.Logger
}

func NewManager(sessions *net.SessionTable, log *zap.Logger) *Manager {
	return &Manager{sessions: sessions, log: log}
}

// SendTo buffers a frame on one session. Unknown socket ids are ignored;
// the session may have died between lookup and send.
func (m *Manager) SendTo(socketID string, frame []byte) {
	s := m.sessions.Get(socketID)
	if s == nil {
		return
	}
	s.Send(frame)
}

// SendToSet buffers a frame on every socket in the set.
func (m *Manager) SendToSet(socketIDs map[string]struct{}, frame []byte) {
	for id := range socketIDs {
		m.SendTo(id, frame)
	}
}

// SendToSetExcept buffers a frame on every socket in the set but one.
func (m *Manager) SendToSetExcept(socketIDs map[string]struct{}, except string, frame []byte) {
	for id := range socketIDs {
		if id != except {
			m.SendTo(id, frame)
		}
	}
}

// BroadcastAll buffers a frame on every live session.
func (m *Manager) BroadcastAll(frame []byte) {
	m.sessions.Each(func(s *net.Session) {
		s.Send(frame)
	})
}

// Sessions exposes the underlying table for subscriber counting.
func (m *Manager) Sessions() *net.SessionTable { return m.sessions }
