package system

import "time"

// Phase defines execution ordering within a single tick.
// The per-tick order is fixed: drain input, reset per-tick flags, run game
// logic, resolve deferred state (facing, validation), dispatch events,
// build + flush outbound frames, persist, then clean up.
type Phase int

const (
	PhaseInput   Phase = iota // 0: drain packet queues
	PhasePre                  // 1: reset per-tick flags
	PhaseUpdate               // 2: game logic, movement integration
	PhaseResolve              // 3: face direction, position validation
	PhaseEvents               // 4: dispatch world events to the bridge
	PhaseOutput               // 5: flush batched frames + session buffers
	PhasePersist              // 6: batch save dirty players
	PhaseCleanup              // 7: trade janitor, stale state pruning
)

// System is the interface every tick system implements.
type System interface {
	Phase() Phase
	Update(dt time.Duration)
}
