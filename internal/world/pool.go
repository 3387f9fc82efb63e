package world

// Vector3 is a mutable point used by the movement hot path.
type Vector3 struct {
	X, Y, Z float64
}

func (v *Vector3) Set(x, y, z float64) *Vector3 {
	v.X, v.Y, v.Z = x, y, z
	return v
}

// Vector3Pool is a bounded free list. Returns beyond the bound are dropped
// so a burst of move targets cannot grow the pool permanently. Game loop
// only, no locking.
type Vector3Pool struct {
	free []*Vector3
	max  int
}

// DefaultPoolSize bounds the movement target pool.
const DefaultPoolSize = 50

func NewVector3Pool(max int) *Vector3Pool {
	if max <= 0 {
		max = DefaultPoolSize
	}
	return &Vector3Pool{
		free: make([]*Vector3, 0, max),
		max:  max,
	}
}

// Get returns a zeroed vector, reusing a pooled one when available.
func (p *Vector3Pool) Get() *Vector3 {
	n := len(p.free)
	if n == 0 {
		return &Vector3{}
	}
	v := p.free[n-1]
	p.free = p.free[:n-1]
	v.X, v.Y, v.Z = 0, 0, 0
	return v
}

// Put returns a vector to the pool. Nil and overflow are ignored.
func (p *Vector3Pool) Put(v *Vector3) {
	if v == nil || len(p.free) >= p.max {
		return
	}
	p.free = append(p.free, v)
}

// Size reports the current free-list length.
func (p *Vector3Pool) Size() int { return len(p.free) }
