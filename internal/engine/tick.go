// Package engine provides the fixed-step tick loop and the simulation it
// drives.
package engine

import (
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/talgya/mini-reasoner/internal/clock"
)

// Engine drives the simulation forward in fixed steps of simulated time.
type Engine struct {
	Tick        uint64        // Current tick counter (monotonic, never resets)
	Step        float64       // Simulated seconds per tick
	Interval    time.Duration // Wall time per tick at speed 1
	ReportEvery uint64        // Ticks between OnReport calls, 0 disables
	Clock       *clock.Sim

	// OnTick runs every tick after the clock has advanced by dt.
	OnTick   func(tick uint64, dt float64)
	OnReport func(tick uint64)

	running atomic.Bool

	mu    sync.RWMutex
	speed float64
}

// NewEngine creates an engine stepping clk by step seconds every interval.
func NewEngine(clk *clock.Sim, step float64, interval time.Duration) *Engine {
	return &Engine{
		Step:     step,
		Interval: interval,
		Clock:    clk,
		speed:    1.0,
	}
}

// Speed returns the wall-clock multiplier: 1 is real time, 0 is paused.
func (e *Engine) Speed() float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.speed
}

// SetSpeed changes the wall-clock multiplier. Negative values pause.
func (e *Engine) SetSpeed(s float64) {
	if math.IsNaN(s) || s < 0 {
		s = 0
	}
	e.mu.Lock()
	e.speed = s
	e.mu.Unlock()
}

// Running reports whether Run is looping.
func (e *Engine) Running() bool {
	return e.running.Load()
}

// Run starts the simulation loop. Blocks until Stop() is called.
func (e *Engine) Run() {
	e.running.Store(true)
	slog.Info("simulation engine started", "tick", e.Tick, "speed", e.Speed(), "step", e.Step)

	for e.running.Load() {
		speed := e.Speed()
		if speed <= 0 {
			time.Sleep(100 * time.Millisecond)
			continue
		}

		start := time.Now()
		e.step()

		elapsed := time.Since(start)
		target := time.Duration(float64(e.Interval) / speed)
		if elapsed < target {
			time.Sleep(target - elapsed)
		}
	}

	slog.Info("simulation engine stopped", "tick", e.Tick, "sim_time", FormatSimTime(e.Clock.Now()))
}

// RunTicks advances n ticks back to back without sleeping.
func (e *Engine) RunTicks(n uint64) {
	for i := uint64(0); i < n; i++ {
		e.step()
	}
}

// Stop halts the simulation loop after the current tick.
func (e *Engine) Stop() {
	e.running.Store(false)
}

// step advances the clock first so that options started during the tick
// carry the tick's own time.
func (e *Engine) step() {
	e.Tick++
	e.Clock.Advance(e.Step)

	if e.OnTick != nil {
		e.OnTick(e.Tick, e.Step)
	}
	if e.ReportEvery > 0 && e.Tick%e.ReportEvery == 0 && e.OnReport != nil {
		e.OnReport(e.Tick)
	}
}

// FormatSimTime renders simulated seconds as hours, minutes and seconds.
func FormatSimTime(seconds float64) string {
	if math.IsInf(seconds, 0) || math.IsNaN(seconds) {
		return "never"
	}
	sign := ""
	if seconds < 0 {
		sign, seconds = "-", -seconds
	}
	h := int64(seconds / 3600)
	m := int64(math.Mod(seconds, 3600) / 60)
	s := math.Mod(seconds, 60)
	if h > 0 {
		return fmt.Sprintf("%s%dh%02dm%04.1fs", sign, h, m, s)
	}
	return fmt.Sprintf("%s%dm%04.1fs", sign, m, s)
}
