package agents

import (
	"errors"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/talgya/mini-reasoner/internal/clock"
	"github.com/talgya/mini-reasoner/internal/config"
	"github.com/talgya/mini-reasoner/internal/curve"
	"github.com/talgya/mini-reasoner/internal/entropy"
)

func find(t *testing.T, agents []*Agent, name string) *Agent {
	t.Helper()
	for _, a := range agents {
		if a.Name == name {
			return a
		}
	}
	t.Fatalf("agent %q not spawned", name)
	return nil
}

func TestBuildDefaultScenario(t *testing.T) {
	clk := clock.NewSim(0)
	agents, err := Build(config.DefaultScenario(), clk, entropy.NewSeeded(1))
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(agents) != 2 {
		t.Fatalf("expected 2 agents, got %d", len(agents))
	}
	moon := find(t, agents, "moon")
	if moon.Position() != (orb.Point{1, 1}) {
		t.Fatalf("unexpected moon position %v", moon.Position())
	}
	if len(moon.Reasoner.Options()) != 2 {
		t.Fatalf("expected Wander and Seek, got %d options", len(moon.Reasoner.Options()))
	}

	// The moon starts farther than 1.0 from the earth, so only wandering
	// carries weight.
	clk.Advance(0.05)
	moon.Update(0.05)
	if got := moon.ActiveOption(); got != "Wander" {
		t.Fatalf("expected moon to wander first, got %q\n%s", got, moon.Reasoner.StateString())
	}
}

func TestMoonSeeksNearbyEarth(t *testing.T) {
	sc := config.DefaultScenario()
	sc.Agents[0].Options = []config.OptionSpec{{Name: "Rest", Task: config.TaskSpec{Kind: "idle"}}}
	sc.Agents[1].Position = [2]float64{0.5, 0}

	clk := clock.NewSim(0)
	agents, err := Build(sc, clk, entropy.NewSequence(0.5))
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	earth, moon := find(t, agents, "earth"), find(t, agents, "moon")
	for i := 0; i < 20; i++ {
		clk.Advance(0.05)
		earth.Update(0.05)
		moon.Update(0.05)
	}
	if got := moon.ActiveOption(); got != "Seek" {
		t.Fatalf("expected Seek, got %q", got)
	}
	if d := planar.Distance(moon.Position(), earth.Position()); d > 1e-9 {
		t.Fatalf("moon did not reach earth: %v vs %v", moon.Position(), earth.Position())
	}

	st := moon.State()
	if st.Active != "Seek" || len(st.Scores) != 2 || st.Summary == "" {
		t.Fatalf("unexpected state: %+v", st)
	}
}

func TestBuildResolvesForwardReferences(t *testing.T) {
	sc := config.Scenario{Agents: []config.AgentSpec{
		{
			Name: "hunter",
			Options: []config.OptionSpec{{
				Name: "Chase",
				Task: config.TaskSpec{Kind: "seek", Target: "prey"},
				Consideration: &config.ConsiderationSpec{
					Kind: "time_since_stopped", Option: "Nap",
					Rank: &curve.Spec{Kind: "constant", Value: 1},
				},
			}, {
				Name: "Nap",
			}},
		},
		{Name: "prey"},
	}}
	if _, err := Build(sc, clock.NewSim(0), entropy.NewSeeded(1)); err != nil {
		t.Fatalf("forward references should resolve: %v", err)
	}
}

func TestBuildErrors(t *testing.T) {
	leaf := func(cs config.ConsiderationSpec) config.Scenario {
		return config.Scenario{Agents: []config.AgentSpec{{
			Name:    "a",
			Options: []config.OptionSpec{{Name: "Only", Consideration: &cs}},
		}}}
	}
	cases := []struct {
		name string
		sc   config.Scenario
		want error
	}{
		{"seek target", config.Scenario{Agents: []config.AgentSpec{{
			Name:    "a",
			Options: []config.OptionSpec{{Name: "Go", Task: config.TaskSpec{Kind: "seek", Target: "ghost"}}},
		}}}, ErrUnknownAgent},
		{"task kind", config.Scenario{Agents: []config.AgentSpec{{
			Name:    "a",
			Options: []config.OptionSpec{{Name: "Go", Task: config.TaskSpec{Kind: "teleport"}}},
		}}}, ErrUnknownTask},
		{"distance target", leaf(config.ConsiderationSpec{Kind: "distance", Target: "ghost"}), ErrUnknownAgent},
		{"lifecycle option", leaf(config.ConsiderationSpec{Kind: "is_active", Option: "Missing"}), ErrUnknownOption},
		{"leaf kind", leaf(config.ConsiderationSpec{Kind: "mood"}), ErrUnknownConsideration},
		{"curve kind", leaf(config.ConsiderationSpec{Kind: "fixed", Rank: &curve.Spec{Kind: "sigmoid"}}), curve.ErrUnknownCurve},
		{"nested", leaf(config.ConsiderationSpec{
			Kind:     "composite",
			Children: []config.ConsiderationSpec{{Kind: "distance", Target: "ghost"}},
		}), ErrUnknownAgent},
	}
	for _, tc := range cases {
		_, err := Build(tc.sc, clock.NewSim(0), entropy.NewSeeded(1))
		if !errors.Is(err, tc.want) {
			t.Errorf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}
}
