package system

import (
	"time"

	"github.com/hyperscape/server/internal/core/system"
	"github.com/hyperscape/server/internal/handler"
	"github.com/hyperscape/server/internal/net"
)

// OutputSystem flushes the batched entity updates and then drains every
// session's tick buffer to its writer goroutine.
type OutputSystem struct {
	deps *handler.Deps
}

func NewOutputSystem(deps *handler.Deps) *OutputSystem {
	return &OutputSystem{deps: deps}
}

func (s *OutputSystem) Phase() system.Phase { return system.PhaseOutput }

func (s *OutputSystem) Update(time.Duration) {
	s.deps.Bc.Flush()
	s.deps.Sessions.Each(func(sess *net.Session) {
		sess.FlushOutput()
	})
}
