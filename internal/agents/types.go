// Package agents turns scenario descriptions into reasoning agents.
package agents

import (
	"github.com/paulmach/orb"

	"github.com/talgya/mini-reasoner/internal/reasoner"
	"github.com/talgya/mini-reasoner/internal/world"
)

// Agent is a simulated character: a body in the world plus the reasoner
// deciding what it does next.
type Agent struct {
	Name     string
	Body     *world.Body
	Reasoner *reasoner.Reasoner
}

func (a *Agent) ID() string { return a.Name }

func (a *Agent) Position() orb.Point { return a.Body.Position }

// Update advances the agent by dt simulation seconds.
func (a *Agent) Update(dt float64) {
	a.Reasoner.Update(dt)
}

// ActiveOption returns the name of the running option, or "".
func (a *Agent) ActiveOption() string {
	if o := a.Reasoner.Active(); o != nil {
		return o.Name()
	}
	return ""
}

// State is a point-in-time view of an agent for the API.
type State struct {
	Name     string           `json:"name"`
	Position [2]float64       `json:"position"`
	Velocity [2]float64       `json:"velocity"`
	Active   string           `json:"active"`
	Scores   []reasoner.Score `json:"scores"`
	Summary  string           `json:"summary"`
}

// State captures the agent. Callers must hold whatever lock guards the
// simulation.
func (a *Agent) State() State {
	return State{
		Name:     a.Name,
		Position: [2]float64(a.Body.Position),
		Velocity: [2]float64(a.Body.Velocity),
		Active:   a.ActiveOption(),
		Scores:   a.Reasoner.Scores(),
		Summary:  a.Reasoner.StateString(),
	}
}
