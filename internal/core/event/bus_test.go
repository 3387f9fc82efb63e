package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type pingEvent struct{ N int }
type otherEvent struct{}

func TestEmitDeliversAfterSwap(t *testing.T) {
	b := NewBus()
	var got []int
	Subscribe(b, func(ev pingEvent) { got = append(got, ev.N) })

	Emit(b, pingEvent{N: 1})
	Emit(b, pingEvent{N: 2})
	b.DispatchAll()
	assert.Empty(t, got, "back buffer not visible before the swap")

	b.SwapBuffers()
	b.DispatchAll()
	assert.Equal(t, []int{1, 2}, got)

	// The drained buffer does not redeliver.
	b.SwapBuffers()
	b.DispatchAll()
	assert.Equal(t, []int{1, 2}, got)
}

func TestHandlersAreTypeScoped(t *testing.T) {
	b := NewBus()
	pings, others := 0, 0
	Subscribe(b, func(pingEvent) { pings++ })
	Subscribe(b, func(otherEvent) { others++ })

	Emit(b, pingEvent{})
	b.SwapBuffers()
	b.DispatchAll()

	assert.Equal(t, 1, pings)
	assert.Equal(t, 0, others)
}

func TestMultipleHandlersAllRun(t *testing.T) {
	b := NewBus()
	calls := 0
	Subscribe(b, func(pingEvent) { calls++ })
	Subscribe(b, func(pingEvent) { calls++ })

	Emit(b, pingEvent{})
	b.SwapBuffers()
	b.DispatchAll()
	assert.Equal(t, 2, calls)
}
