package system

import (
	"time"

	"go.uber.org/zap"

	"github.com/hyperscape/server/internal/core/system"
	"github.com/hyperscape/server/internal/handler"
	"github.com/hyperscape/server/internal/metrics"
	"github.com/hyperscape/server/internal/net"
	"github.com/hyperscape/server/internal/net/packet"
)

// InputSystem runs first each tick: it absorbs finished spawns, tears down
// dead sessions, and drains the in-world packet queues through the message
// registry. Handshake-phase messages never reach this system; the
// per-connection goroutine dispatches those.
type InputSystem struct {
	deps *handler.Deps
	reg  *packet.Registry
	srv  *net.Server

	maxPerTick int
}

func NewInputSystem(deps *handler.Deps, reg *packet.Registry, srv *net.Server) *InputSystem {
	return &InputSystem{
		deps:       deps,
		reg:        reg,
		srv:        srv,
		maxPerTick: deps.Config.Network.MaxPacketsPerTick,
	}
}

func (s *InputSystem) Phase() system.Phase { return system.PhaseInput }

func (s *InputSystem) Update(time.Duration) {
	s.drainSpawns()
	s.drainDead()
	s.drainMessages()
}

func (s *InputSystem) drainSpawns() {
	for {
		select {
		case req := <-s.deps.SpawnCh:
			handler.ProcessSpawn(req, s.deps)
		default:
			return
		}
	}
}

func (s *InputSystem) drainDead() {
	for {
		select {
		case sockID := <-s.srv.DeadSessions():
			handler.Despawn(sockID, s.deps)
		default:
			return
		}
	}
}

func (s *InputSystem) drainMessages() {
	s.deps.Sessions.Each(func(sess *net.Session) {
		state := sess.State()
		if state != packet.StateInWorld && state != packet.StateSpectator {
			return
		}
		for i := 0; i < s.maxPerTick; i++ {
			select {
			case data := <-sess.InQueue:
				metrics.MessagesIn.Inc()
				if err := s.reg.Dispatch(sess, sess.State(), data); err != nil {
					s.deps.Log.Debug("dispatch failed",
						zap.String("session", sess.ID),
						zap.Error(err),
					)
				}
			default:
				return
			}
		}
	})
}
