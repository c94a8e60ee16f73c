package reasoner

import (
	"github.com/talgya/mini-reasoner/internal/clock"
	"github.com/talgya/mini-reasoner/internal/consideration"
)

// Task is the unit of work an option drives while it is active.
type Task interface {
	Update(dt float64)
}

// TaskFunc adapts a function to Task.
type TaskFunc func(dt float64)

func (f TaskFunc) Update(dt float64) { f(dt) }

// Option is one mutually exclusive behaviour an agent can select.
type Option struct {
	name  string
	root  consideration.Consideration
	task  Task
	clock clock.Clock
	owner consideration.Agent

	active    bool
	lastStart float64
	lastStop  float64
}

// OptionState is the persisted lifecycle of an option.
type OptionState struct {
	Name      string  `json:"name"`
	Active    bool    `json:"active"`
	LastStart float64 `json:"last_start"` // clock.Never before the first start
	LastStop  float64 `json:"last_stop"`  // clock.Never before the first stop
}

// NewOption creates an inactive option whose lifecycle timestamps are read
// from clk.
func NewOption(name string, clk clock.Clock) *Option {
	return &Option{
		name:      name,
		clock:     clk,
		lastStart: clock.Never,
		lastStop:  clock.Never,
	}
}

func (o *Option) Name() string { return o.name }

// SetRootConsideration replaces the scoring tree. If the option already
// belongs to a reasoner the new tree inherits its owner.
func (o *Option) SetRootConsideration(c consideration.Consideration) {
	o.root = c
	if c != nil && o.owner != nil {
		c.SetOwner(o.owner)
	}
}

// RootConsideration returns the scoring tree, or nil.
func (o *Option) RootConsideration() consideration.Consideration {
	return o.root
}

func (o *Option) SetTask(t Task) { o.task = t }

// Rank delegates to the root consideration. Options without one rank 0.
func (o *Option) Rank() (int, error) {
	if o.root == nil {
		return 0, nil
	}
	return o.root.Rank()
}

// Weight delegates to the root consideration. Options without one weigh 0.
func (o *Option) Weight() (float64, error) {
	if o.root == nil {
		return 0, nil
	}
	return o.root.Weight()
}

// Start marks the option as running from now on.
func (o *Option) Start() {
	o.lastStart = o.clock.Now()
	o.lastStop = clock.Never
	o.active = true
}

// Stop marks the option as no longer running.
func (o *Option) Stop() {
	o.lastStop = o.clock.Now()
	o.active = false
}

// Update advances the task. The reasoner only calls it on the active option.
func (o *Option) Update(dt float64) {
	if o.task != nil {
		o.task.Update(dt)
	}
}

func (o *Option) LastStartTime() float64 { return o.lastStart }
func (o *Option) LastStopTime() float64 { return o.lastStop }
func (o *Option) IsActive() bool { return o.active }

// Snapshot captures the lifecycle for persistence.
func (o *Option) Snapshot() OptionState {
	return OptionState{
		Name:      o.name,
		Active:    o.active,
		LastStart: o.lastStart,
		LastStop:  o.lastStop,
	}
}

func (o *Option) restore(s OptionState) {
	o.active = s.Active
	o.lastStart = s.LastStart
	o.lastStop = s.LastStop
}

func (o *Option) setOwner(owner consideration.Agent) {
	o.owner = owner
	if o.root != nil {
		o.root.SetOwner(owner)
	}
}
