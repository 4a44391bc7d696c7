package model

import "sync/atomic"

// A Clock tracks the step counter of one computation. It starts at 0 and
// increases by exactly 1 immediately before each invocation of the user
// step. Reads are safe from any goroutine; Advance is only called by the
// engine under its step lock.
type Clock struct {
	time atomic.Int64
}

// NewClock creates a clock at step 0.
func NewClock() *Clock {
	return &Clock{}
}

// Now returns the current step.
func (c *Clock) Now() int64 {
	return c.time.Load()
}

// Advance increments the step counter by one and then invokes step.
func (c *Clock) Advance(step func() error) error {
	c.time.Add(1)
	return step()
}
