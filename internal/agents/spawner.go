package agents

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/paulmach/orb"

	"github.com/talgya/mini-reasoner/internal/clock"
	"github.com/talgya/mini-reasoner/internal/config"
	"github.com/talgya/mini-reasoner/internal/consideration"
	"github.com/talgya/mini-reasoner/internal/curve"
	"github.com/talgya/mini-reasoner/internal/reasoner"
	"github.com/talgya/mini-reasoner/internal/world"
)

var (
	ErrUnknownAgent         = errors.New("unknown agent")
	ErrUnknownOption        = errors.New("unknown option")
	ErrUnknownTask          = errors.New("unknown task")
	ErrUnknownConsideration = errors.New("unknown consideration")
)

// Spawner builds agents from a scenario.
type Spawner struct {
	clock   clock.Clock
	sampler reasoner.Sampler
	seed    int64
}

// NewSpawner creates a spawner whose options read time from clk and whose
// reasoners draw from sampler. Seed varies the wander noise between runs.
func NewSpawner(clk clock.Clock, sampler reasoner.Sampler, seed int64) *Spawner {
	return &Spawner{clock: clk, sampler: sampler, seed: seed}
}

// Build spawns the agents of sc with a zero noise seed.
func Build(sc config.Scenario, clk clock.Clock, sampler reasoner.Sampler) ([]*Agent, error) {
	return NewSpawner(clk, sampler, 0).Spawn(sc)
}

// Spawn creates every agent of sc. Bodies come first so that options and
// scoring trees can refer to any agent regardless of declaration order.
func (s *Spawner) Spawn(sc config.Scenario) ([]*Agent, error) {
	byName := make(map[string]*Agent, len(sc.Agents))
	out := make([]*Agent, 0, len(sc.Agents))

	for _, spec := range sc.Agents {
		a := &Agent{
			Name: spec.Name,
			Body: world.NewBody(orb.Point(spec.Position), spec.MaxSpeed, sc.Size),
		}
		a.Reasoner = reasoner.New(a, s.sampler)
		byName[spec.Name] = a
		out = append(out, a)
	}

	for i, spec := range sc.Agents {
		a := out[i]
		for _, ospec := range spec.Options {
			opt := reasoner.NewOption(ospec.Name, s.clock)
			task, err := s.task(a, ospec, byName)
			if err != nil {
				return nil, fmt.Errorf("agent %q option %q: %w", a.Name, ospec.Name, err)
			}
			if task != nil {
				opt.SetTask(task)
			}
			a.Reasoner.AddOption(opt)
		}
	}

	for i, spec := range sc.Agents {
		a := out[i]
		for _, ospec := range spec.Options {
			if ospec.Consideration == nil {
				continue
			}
			opt, _ := a.Reasoner.Option(ospec.Name)
			root, err := s.consideration(*ospec.Consideration, a, opt, byName)
			if err != nil {
				return nil, fmt.Errorf("agent %q option %q: %w", a.Name, ospec.Name, err)
			}
			opt.SetRootConsideration(root)
		}
	}

	slog.Info("agents spawned", "count", len(out))
	return out, nil
}

func (s *Spawner) task(a *Agent, spec config.OptionSpec, byName map[string]*Agent) (reasoner.Task, error) {
	ts := spec.Task
	switch strings.ToLower(ts.Kind) {
	case "":
		return nil, nil
	case "idle":
		return world.NewIdle(a.Body), nil
	case "wander":
		seed := s.seed + int64(xxhash.Sum64String(a.Name+"/"+spec.Name)>>1)
		return world.NewWander(a.Body, seed, ts.Frequency, ts.Octaves, ts.Persistence), nil
	case "seek":
		target, ok := byName[ts.Target]
		if !ok {
			return nil, fmt.Errorf("%w: seek target %q", ErrUnknownAgent, ts.Target)
		}
		return world.NewSeek(a.Body, target.Body), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownTask, ts.Kind)
	}
}

// consideration builds a scoring tree. Lifecycle leaves look at the option
// named in the config, or at own when none is named.
func (s *Spawner) consideration(spec config.ConsiderationSpec, a *Agent, own *reasoner.Option, byName map[string]*Agent) (consideration.Consideration, error) {
	name := spec.Name
	if name == "" {
		name = spec.Kind
	}

	if strings.ToLower(spec.Kind) == "composite" {
		rp, err := policy(spec.RankPolicy)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		wp, err := policy(spec.WeightPolicy)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		c := consideration.NewComposite(name, rp, wp)
		for _, child := range spec.Children {
			cc, err := s.consideration(child, a, own, byName)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", name, err)
			}
			c.Add(cc)
		}
		return c, nil
	}

	rank, err := buildCurve(spec.Rank)
	if err != nil {
		return nil, fmt.Errorf("%s rank: %w", name, err)
	}
	weight, err := buildCurve(spec.Weight)
	if err != nil {
		return nil, fmt.Errorf("%s weight: %w", name, err)
	}

	lifecycle := func() (*reasoner.Option, error) {
		if spec.Option == "" {
			return own, nil
		}
		o, ok := a.Reasoner.Option(spec.Option)
		if !ok {
			return nil, fmt.Errorf("%s: %w: %q", name, ErrUnknownOption, spec.Option)
		}
		return o, nil
	}

	var observe consideration.Observation
	switch strings.ToLower(spec.Kind) {
	case "distance":
		target, ok := byName[spec.Target]
		if !ok {
			return nil, fmt.Errorf("%s: %w: %q", name, ErrUnknownAgent, spec.Target)
		}
		leaf := consideration.NewLeaf(name, consideration.Distance(), rank, weight)
		leaf.SetTarget(target)
		return leaf, nil
	case "time_since_started":
		o, err := lifecycle()
		if err != nil {
			return nil, err
		}
		observe = consideration.TimeSinceStarted(o, s.clock)
	case "time_since_stopped":
		o, err := lifecycle()
		if err != nil {
			return nil, err
		}
		observe = consideration.TimeSinceStopped(o, s.clock)
	case "is_active":
		o, err := lifecycle()
		if err != nil {
			return nil, err
		}
		observe = consideration.IsActive(o)
	case "fixed":
		observe = consideration.Fixed(spec.Value)
	default:
		return nil, fmt.Errorf("%w: kind %q", ErrUnknownConsideration, spec.Kind)
	}
	return consideration.NewLeaf(name, observe, rank, weight), nil
}

// policy parses a fold policy; an empty one means max.
func policy(s string) (consideration.Policy, error) {
	if s == "" {
		return consideration.Max, nil
	}
	return consideration.ParsePolicy(s)
}

func buildCurve(spec *curve.Spec) (curve.Curve, error) {
	if spec == nil {
		return nil, nil
	}
	return spec.Build()
}
