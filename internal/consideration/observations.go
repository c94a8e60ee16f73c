package consideration

import (
	"math"

	"github.com/paulmach/orb/planar"

	"github.com/talgya/mini-reasoner/internal/clock"
)

// Lifecycle is the read-only view of an option's execution history that
// considerations may score against.
type Lifecycle interface {
	LastStartTime() float64
	LastStopTime() float64
	IsActive() bool
}

// Distance observes the planar distance between the owner and the target.
func Distance() Observation {
	return func(owner, target Agent) (float64, error) {
		if target == nil {
			return 0, ErrNoTarget
		}
		from, ok := owner.(Positioned)
		if !ok {
			return 0, ErrNotPositioned
		}
		to, ok := target.(Positioned)
		if !ok {
			return 0, ErrNotPositioned
		}
		return planar.Distance(from.Position(), to.Position()), nil
	}
}

// TimeSinceStarted observes the seconds elapsed since the option was last
// started. An option that never started reports math.MaxFloat64.
func TimeSinceStarted(lc Lifecycle, clk clock.Clock) Observation {
	return func(Agent, Agent) (float64, error) {
		return elapsed(clk.Now(), lc.LastStartTime()), nil
	}
}

// TimeSinceStopped observes the seconds elapsed since the option last
// stopped. Options that never stopped, including running ones, report
// math.MaxFloat64.
func TimeSinceStopped(lc Lifecycle, clk clock.Clock) Observation {
	return func(Agent, Agent) (float64, error) {
		return elapsed(clk.Now(), lc.LastStopTime()), nil
	}
}

// IsActive observes 1 while the option runs and 0 otherwise.
func IsActive(lc Lifecycle) Observation {
	return func(Agent, Agent) (float64, error) {
		if lc.IsActive() {
			return 1, nil
		}
		return 0, nil
	}
}

// Fixed observes a constant.
func Fixed(v float64) Observation {
	return func(Agent, Agent) (float64, error) {
		return v, nil
	}
}

func elapsed(now, since float64) float64 {
	if clock.IsNever(since) {
		return math.MaxFloat64
	}
	return now - since
}
