// Package consideration implements the scoring trees that give each option
// its rank and weight.
//
// A Leaf turns one raw observation of the world into a rank and a weight
// through two independent curves. A Composite folds the ranks and weights of
// its children with a Policy. Trees are built once during agent setup and are
// only read afterwards.
package consideration

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"

	"github.com/talgya/mini-reasoner/internal/curve"
)

// rankEpsilon absorbs float representation error when flooring a rank, so a
// curve output of k-ε still ranks as k.
const rankEpsilon = 1e-9

var (
	ErrNotPositioned = errors.New("agent has no position")
	ErrNoTarget      = errors.New("consideration has no target")
	ErrNaN           = errors.New("observation is not a number")
)

// Agent is the simulated character a scoring tree works for.
type Agent interface {
	ID() string
}

// Positioned agents expose a location in the plane.
type Positioned interface {
	Agent
	Position() orb.Point
}

// Consideration is a node of a scoring tree.
type Consideration interface {
	Rank() (int, error)
	Weight() (float64, error)
	SetOwner(owner Agent)
}

// Targeted is implemented by considerations that look at a second agent.
type Targeted interface {
	SetTarget(target Agent)
}

// Observation reads a raw value from the world. It must not modify anything.
type Observation func(owner, target Agent) (float64, error)

// Leaf scores a single observation.
type Leaf struct {
	Name        string
	Observe     Observation
	RankCurve   curve.Curve
	WeightCurve curve.Curve

	owner  Agent
	target Agent
}

// NewLeaf builds a leaf with the given observation and curves.
func NewLeaf(name string, observe Observation, rank, weight curve.Curve) *Leaf {
	return &Leaf{Name: name, Observe: observe, RankCurve: rank, WeightCurve: weight}
}

func (l *Leaf) SetOwner(owner Agent) { l.owner = owner }

func (l *Leaf) SetTarget(target Agent) { l.target = target }

// Owner returns the agent the leaf scores for.
func (l *Leaf) Owner() Agent { return l.owner }

// Target returns the optional second agent.
func (l *Leaf) Target() Agent { return l.target }

// Value evaluates the raw observation.
func (l *Leaf) Value() (float64, error) {
	if l.Observe == nil {
		return 0, nil
	}
	v, err := l.Observe(l.owner, l.target)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", l.Name, err)
	}
	if math.IsNaN(v) {
		return 0, fmt.Errorf("%s: %w", l.Name, ErrNaN)
	}
	return v, nil
}

// Rank floors the rank-curve output of the observation.
func (l *Leaf) Rank() (int, error) {
	if l.RankCurve == nil {
		return 0, nil
	}
	v, err := l.Value()
	if err != nil {
		return 0, err
	}
	return FloorRank(l.RankCurve.Evaluate(v)), nil
}

// Weight returns the weight-curve output of the observation, unrounded.
func (l *Leaf) Weight() (float64, error) {
	if l.WeightCurve == nil {
		return 0, nil
	}
	v, err := l.Value()
	if err != nil {
		return 0, err
	}
	return l.WeightCurve.Evaluate(v), nil
}

// FloorRank converts a curve output to an integer rank. It is a floor that
// tolerates tiny negative noise: ceil(v - 1 + ε). Results saturate at the
// int range and NaN ranks lowest.
func FloorRank(v float64) int {
	if math.IsNaN(v) {
		return math.MinInt
	}
	r := math.Ceil(v - 1 + rankEpsilon)
	if r >= math.MaxInt {
		return math.MaxInt
	}
	if r <= math.MinInt {
		return math.MinInt
	}
	return int(r)
}

// Composite combines child considerations.
type Composite struct {
	Name         string
	RankPolicy   Policy
	WeightPolicy Policy

	owner    Agent
	children []Consideration
}

// NewComposite creates an empty composite with independent rank and weight
// policies.
func NewComposite(name string, rankPolicy, weightPolicy Policy) *Composite {
	return &Composite{Name: name, RankPolicy: rankPolicy, WeightPolicy: weightPolicy}
}

// Add appends a child. Children are folded in insertion order.
func (c *Composite) Add(children ...Consideration) *Composite {
	c.children = append(c.children, children...)
	return c
}

// Owner returns the agent the tree scores for.
func (c *Composite) Owner() Agent { return c.owner }

// Children returns the child list.
func (c *Composite) Children() []Consideration {
	return c.children
}

// SetOwner assigns owner to the composite and its whole subtree.
func (c *Composite) SetOwner(owner Agent) {
	c.owner = owner
	for _, child := range c.children {
		child.SetOwner(owner)
	}
}

func (c *Composite) Rank() (int, error) {
	acc := c.RankPolicy.rankIdentity()
	for i, child := range c.children {
		r, err := child.Rank()
		if err != nil {
			return 0, fmt.Errorf("%s[%d]: %w", c.Name, i, err)
		}
		acc = c.RankPolicy.combineRank(acc, r)
	}
	return acc, nil
}

func (c *Composite) Weight() (float64, error) {
	acc := c.WeightPolicy.weightIdentity()
	for i, child := range c.children {
		w, err := child.Weight()
		if err != nil {
			return 0, fmt.Errorf("%s[%d]: %w", c.Name, i, err)
		}
		acc = c.WeightPolicy.combineWeight(acc, w)
	}
	return acc, nil
}
