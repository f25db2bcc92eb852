package engine

import "sync/atomic"

// Clock is a monotonic sequence source.
//
// The Loop stamps every task it runs with Clock.Next, and the memory store
// allocates insertion positions (Record.Seq) from its own Clock so natural
// order never depends on wall-clock time.
//
// Thread-safety: Clock is safe for concurrent use (atomic operations).
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// Next returns the next sequence number and increments the clock.
// Calls are linearizable - each call returns a unique, increasing value.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the current sequence number without incrementing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}

// Witness moves the clock forward so the next call to Next is greater
// than seq. A clock already past seq is unchanged.
func (c *Clock) Witness(seq int64) {
	for {
		cur := c.seq.Load()
		if cur >= seq || c.seq.CompareAndSwap(cur, seq) {
			return
		}
	}
}
