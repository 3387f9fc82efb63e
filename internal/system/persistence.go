package system

import (
	"time"

	"go.uber.org/zap"

	"github.com/hyperscape/server/internal/core/system"
	"github.com/hyperscape/server/internal/handler"
	"github.com/hyperscape/server/internal/world"
)

// PersistenceSystem periodically saves dirty players. Disconnect saves run
// inline in Despawn; this covers long-lived sessions.
type PersistenceSystem struct {
	deps     *handler.Deps
	interval int // ticks between save sweeps
	ticks    int
}

func NewPersistenceSystem(deps *handler.Deps) *PersistenceSystem {
	interval := deps.Config.World.SaveInterval
	if interval <= 0 {
		interval = 1200
	}
	return &PersistenceSystem{deps: deps, interval: interval}
}

func (s *PersistenceSystem) Phase() system.Phase { return system.PhasePersist }

func (s *PersistenceSystem) Update(time.Duration) {
	s.ticks++
	if s.ticks < s.interval {
		return
	}
	s.ticks = 0

	saved := 0
	s.deps.World.Players(func(p *world.Player) {
		if !p.Dirty {
			return
		}
		handler.SaveCharacter(p, s.deps)
		saved++
	})
	if saved > 0 {
		s.deps.Log.Debug("periodic save", zap.Int("players", saved))
	}
}
