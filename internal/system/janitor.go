package system

import (
	"time"

	"go.uber.org/zap"

	"github.com/hyperscape/server/internal/core/system"
	"github.com/hyperscape/server/internal/handler"
	"github.com/hyperscape/server/internal/world"
)

const (
	// Clients that never send clientReady lose the loading shield here.
	loadingWatchdog = 30 * time.Second

	limiterPruneEvery = time.Minute
	limiterMaxIdle    = 2 * time.Hour
)

// JanitorSystem runs last each tick: expired trades, stuck loading shields
// and stale rate-limiter entries.
type JanitorSystem struct {
	deps      *handler.Deps
	lastPrune time.Time
}

func NewJanitorSystem(deps *handler.Deps) *JanitorSystem {
	return &JanitorSystem{deps: deps, lastPrune: time.Now()}
}

func (s *JanitorSystem) Phase() system.Phase { return system.PhaseCleanup }

func (s *JanitorSystem) Update(time.Duration) {
	now := time.Now()

	for _, t := range s.deps.Trades.CleanupExpired() {
		handler.NotifyTradeCancelled(t, "timed out", s.deps)
	}

	s.deps.World.Players(func(p *world.Player) {
		if p.IsLoading && now.Sub(p.LoadingStarted) > loadingWatchdog {
			p.IsLoading = false
			s.deps.Log.Warn("loading watchdog fired",
				zap.String("player", p.ID),
			)
		}
	})

	if now.Sub(s.lastPrune) >= limiterPruneEvery {
		s.lastPrune = now
		s.deps.Auth.PruneLimiter(limiterMaxIdle)
	}
}
