package governor

import "go.uber.org/atomic"

// capacityCounter is the advisory scoreboard described in spec §3/§5: a
// single cell visible to every admission path. Only the loop goroutine
// writes it; HTTP handlers and sidecars only read it. Grounded on
// _examples/leyou240-lindb's internal/concurrent/pool.go use of
// go.uber.org/atomic for cross-goroutine counters without a mutex.
type capacityCounter struct {
	value atomic.Int64
}

func newCapacityCounter() *capacityCounter {
	return &capacityCounter{}
}

// set publishes the current free-slot count. Called once per loop tick.
func (c *capacityCounter) set(free int) {
	if free < 0 {
		free = 0
	}
	c.value.Store(int64(free))
}

// read returns the last published value. Never negative (I3).
func (c *capacityCounter) read() int64 {
	return c.value.Load()
}

// positive reports whether the counter currently admits more work.
func (c *capacityCounter) positive() bool {
	return c.value.Load() > 0
}
