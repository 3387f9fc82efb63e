package system

import (
	"time"

	"github.com/hyperscape/server/internal/core/system"
	"github.com/hyperscape/server/internal/handler"
)

// PrepareSystem resets per-tick flags before game logic runs.
type PrepareSystem struct {
	deps *handler.Deps
}

func NewPrepareSystem(deps *handler.Deps) *PrepareSystem {
	return &PrepareSystem{deps: deps}
}

func (s *PrepareSystem) Phase() system.Phase { return system.PhasePre }

func (s *PrepareSystem) Update(time.Duration) {
	s.deps.Facing.ResetFlags()
}

// MovementSystem integrates active movers along their paths.
type MovementSystem struct {
	deps *handler.Deps
}

func NewMovementSystem(deps *handler.Deps) *MovementSystem {
	return &MovementSystem{deps: deps}
}

func (s *MovementSystem) Phase() system.Phase { return system.PhaseUpdate }

func (s *MovementSystem) Update(dt time.Duration) {
	s.deps.Movement.Update(dt)
}

// ResolveSystem settles deferred per-tick state: face directions resolve
// after all movement, then position validation runs against the final
// positions.
type ResolveSystem struct {
	deps *handler.Deps
}

func NewResolveSystem(deps *handler.Deps) *ResolveSystem {
	return &ResolveSystem{deps: deps}
}

func (s *ResolveSystem) Phase() system.Phase { return system.PhaseResolve }

func (s *ResolveSystem) Update(time.Duration) {
	s.deps.Facing.Process()
	s.deps.Validator.Update(time.Now())
}

// EventDispatchSystem swaps the event buffers and delivers the tick's
// events to the bridge, ahead of the outbound flush.
type EventDispatchSystem struct {
	deps *handler.Deps
}

func NewEventDispatchSystem(deps *handler.Deps) *EventDispatchSystem {
	return &EventDispatchSystem{deps: deps}
}

func (s *EventDispatchSystem) Phase() system.Phase { return system.PhaseEvents }

func (s *EventDispatchSystem) Update(time.Duration) {
	s.deps.Bus.SwapBuffers()
	s.deps.Bus.DispatchAll()
}
