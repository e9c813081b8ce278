// Package sequence provides the per-process request counter used as the
// "step" model feature.
package sequence

import "sync/atomic"

// Counter hands out consecutive sequence numbers starting at 1. The zero
// value is ready to use. It is never reset or persisted.
type Counter struct {
	n atomic.Uint64
}

// New creates a counter at zero.
func New() *Counter {
	return &Counter{}
}

// Next increments the counter and returns the new value. Concurrent callers
// always receive distinct values with no gaps.
func (c *Counter) Next() uint64 {
	return c.n.Add(1)
}

// Current returns the last value handed out, or 0 if Next was never called.
func (c *Counter) Current() uint64 {
	return c.n.Load()
}
