// Package clock provides the simulation time source shared by options and
// the considerations that score them.
package clock

import (
	"math"
	"sync/atomic"
)

// Never marks a lifecycle timestamp that has not happened yet.
var Never = math.Inf(-1)

// IsNever reports whether t is the Never sentinel.
func IsNever(t float64) bool {
	return math.IsInf(t, -1)
}

// Clock reports the current simulation time in seconds.
type Clock interface {
	Now() float64
}

// Sim is a manually advanced simulation clock. It is safe to read from the
// API goroutine while the engine advances it.
type Sim struct {
	bits atomic.Uint64
}

// NewSim creates a clock starting at t seconds.
func NewSim(t float64) *Sim {
	c := &Sim{}
	c.Set(t)
	return c
}

// Now returns the current simulation time.
func (c *Sim) Now() float64 {
	return math.Float64frombits(c.bits.Load())
}

// Advance moves the clock forward by dt seconds. Negative steps are ignored.
func (c *Sim) Advance(dt float64) {
	if dt <= 0 || math.IsNaN(dt) {
		return
	}
	for {
		old := c.bits.Load()
		next := math.Float64bits(math.Float64frombits(old) + dt)
		if c.bits.CompareAndSwap(old, next) {
			return
		}
	}
}

// Set jumps the clock to t, used when resuming a saved run.
func (c *Sim) Set(t float64) {
	c.bits.Store(math.Float64bits(t))
}
