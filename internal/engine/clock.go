package engine

import "sync/atomic"

// Clock numbers the SQL statements of one execution.
//
// Thread-safety: Clock is safe for concurrent use (atomic operations),
// though an execution only ever uses it from one goroutine.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// Next returns the next sequence number and increments the clock.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the number of sequence numbers handed out so far.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
