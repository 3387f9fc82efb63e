package broadcast

// Priority orders update urgency against the distance throttle.
type Priority uint8

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityCritical
)

// Distance tier boundaries, in squared meters.
const (
	nearDistSq = 625   // 25m
	midDistSq  = 2500  // 50m
	farDistSq  = 10000 // 100m
)

// Base send intervals per tier, in ticks.
const (
	nearInterval    = 1
	midInterval     = 2
	farInterval     = 4
	distantInterval = 8
)

// Interval returns how many ticks must elapse between updates to a viewer
// at the given squared distance. Critical updates bypass throttling, high
// priority halves the interval (floor 1), low priority doubles it.
func Interval(distSq float64, prio Priority) int {
	if prio == PriorityCritical {
		return 1
	}

	var base int
	switch {
	case distSq <= nearDistSq:
		base = nearInterval
	case distSq <= midDistSq:
		base = midInterval
	case distSq <= farDistSq:
		base = farInterval
	default:
		base = distantInterval
	}

	switch prio {
	case PriorityHigh:
		base /= 2
		if base < 1 {
			base = 1
		}
	case PriorityLow:
		base *= 2
	}
	return base
}
