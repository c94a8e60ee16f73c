package consideration

import (
	"errors"
	"math"
	"testing"

	"github.com/paulmach/orb"

	"github.com/talgya/mini-reasoner/internal/clock"
	"github.com/talgya/mini-reasoner/internal/curve"
)

type testAgent struct {
	id  string
	pos orb.Point
}

func (a *testAgent) ID() string { return a.id }
func (a *testAgent) Position() orb.Point { return a.pos }

type plainAgent struct{}

func (plainAgent) ID() string { return "plain" }

type fakeLifecycle struct {
	start, stop float64
	active      bool
}

func (f *fakeLifecycle) LastStartTime() float64 { return f.start }
func (f *fakeLifecycle) LastStopTime() float64 { return f.stop }
func (f *fakeLifecycle) IsActive() bool { return f.active }

func fixedLeaf(rank, weight float64) *Leaf {
	return NewLeaf("fixed", Fixed(rank), curve.Identity{}, curve.Constant{Value: weight})
}

func TestLeafRankFloorsCurveOutput(t *testing.T) {
	offsets := []float64{0, 1e-5, -1e-5, 0.25, 0.5, 0.999, -0.5}
	for k := -1000; k <= 1000; k++ {
		for _, off := range offsets {
			v := float64(k) + off
			leaf := NewLeaf("rank", Fixed(v), curve.Identity{}, nil)
			got, err := leaf.Rank()
			if err != nil {
				t.Fatalf("rank(%f): %v", v, err)
			}
			if want := int(math.Floor(v)); got != want {
				t.Fatalf("rank(%.8f): got=%d want=%d", v, got, want)
			}
		}
	}
}

func TestFloorRankToleratesRepresentationError(t *testing.T) {
	nine, tenth := 0.9, 0.1
	below := (1 - nine) * 10 // 0.9999999999999998
	if got := FloorRank(below); got != 1 {
		t.Fatalf("expected representation noise below 1 to rank 1, got=%d", got)
	}
	above := tenth * 3 * 10 // 3.0000000000000004
	if got := FloorRank(above); got != 3 {
		t.Fatalf("expected 3, got=%d", got)
	}
	if got := FloorRank(math.MaxFloat64); got != math.MaxInt {
		t.Fatalf("expected saturation at MaxInt, got=%d", got)
	}
	if got := FloorRank(-math.MaxFloat64); got != math.MinInt {
		t.Fatalf("expected saturation at MinInt, got=%d", got)
	}
	if got := FloorRank(math.NaN()); got != math.MinInt {
		t.Fatalf("expected NaN to rank lowest, got=%d", got)
	}
}

func TestLeafWeightIsUnrounded(t *testing.T) {
	leaf := NewLeaf("w", Fixed(2), curve.Identity{}, curve.ValueInRange{Lower: 0, Upper: 8, Multiplier: 1})
	w, err := leaf.Weight()
	if err != nil {
		t.Fatalf("weight: %v", err)
	}
	if w != 0.25 {
		t.Fatalf("unexpected weight: %f", w)
	}
}

func TestLeafWithoutCurvesScoresZero(t *testing.T) {
	leaf := NewLeaf("empty", Fixed(7), nil, nil)
	r, err := leaf.Rank()
	if err != nil || r != 0 {
		t.Fatalf("expected rank 0, got=%d err=%v", r, err)
	}
	w, err := leaf.Weight()
	if err != nil || w != 0 {
		t.Fatalf("expected weight 0, got=%f err=%v", w, err)
	}
}

func TestCompositeRankPolicies(t *testing.T) {
	cases := []struct {
		policy Policy
		want   int
	}{
		{policy: Max, want: 5},
		{policy: Min, want: 1},
		{policy: Multiply, want: 10},
	}
	for _, tc := range cases {
		c := NewComposite("ranks", tc.policy, Multiply).
			Add(fixedLeaf(2, 1), fixedLeaf(5, 1), fixedLeaf(1, 1))
		got, err := c.Rank()
		if err != nil {
			t.Fatalf("%s: %v", tc.policy, err)
		}
		if got != tc.want {
			t.Fatalf("%s: got=%d want=%d", tc.policy, got, tc.want)
		}
	}
}

func TestCompositeWeightPolicies(t *testing.T) {
	cases := []struct {
		policy Policy
		want   float64
	}{
		{policy: Multiply, want: 0.125},
		{policy: Max, want: 0.5},
		{policy: Min, want: 0.25},
	}
	for _, tc := range cases {
		c := NewComposite("weights", Max, tc.policy).
			Add(fixedLeaf(0, 0.5), fixedLeaf(0, 0.25))
		got, err := c.Weight()
		if err != nil {
			t.Fatalf("%s: %v", tc.policy, err)
		}
		if got != tc.want {
			t.Fatalf("%s: got=%f want=%f", tc.policy, got, tc.want)
		}
	}
}

func TestCompositeMaxHandlesNegativeWeights(t *testing.T) {
	c := NewComposite("neg", Max, Max).Add(fixedLeaf(0, -2), fixedLeaf(0, -3))
	got, err := c.Weight()
	if err != nil {
		t.Fatalf("weight: %v", err)
	}
	if got != -2 {
		t.Fatalf("expected -2, got=%f", got)
	}
}

func TestCompositeIndependentPolicies(t *testing.T) {
	c := NewComposite("mixed", Max, Multiply).
		Add(fixedLeaf(3, 0.5), fixedLeaf(1, 0.5))
	r, _ := c.Rank()
	w, _ := c.Weight()
	if r != 3 || w != 0.25 {
		t.Fatalf("unexpected mixed result rank=%d weight=%f", r, w)
	}
}

func TestCompositeMultiplySaturates(t *testing.T) {
	c := NewComposite("big", Multiply, Multiply).
		Add(fixedLeaf(1<<40, math.MaxFloat64), fixedLeaf(1<<40, 10))
	r, _ := c.Rank()
	if r != math.MaxInt {
		t.Fatalf("expected saturated rank, got=%d", r)
	}
	w, _ := c.Weight()
	if w != math.MaxFloat64 {
		t.Fatalf("expected clamped weight, got=%g", w)
	}
	if got := saturatingMul(-(1 << 40), 1<<40); got != math.MinInt {
		t.Fatalf("expected negative saturation, got=%d", got)
	}
	if got := saturatingMul(-3, 4); got != -12 {
		t.Fatalf("unexpected product: %d", got)
	}
}

func TestSetOwnerPropagates(t *testing.T) {
	a, b, c := fixedLeaf(0, 0), fixedLeaf(0, 0), fixedLeaf(0, 0)
	inner := NewComposite("inner", Max, Max).Add(b, c)
	root := NewComposite("root", Max, Max).Add(a, inner)

	owner := &testAgent{id: "moon"}
	root.SetOwner(owner)
	if root.Owner() != owner || inner.Owner() != owner {
		t.Fatal("composites did not keep the owner")
	}
	for i, leaf := range []*Leaf{a, b, c} {
		if leaf.Owner() != owner {
			t.Fatalf("leaf %d did not receive owner", i)
		}
	}
}

func TestDistanceObservation(t *testing.T) {
	leaf := NewLeaf("dist", Distance(), curve.Constant{Value: 1}, curve.Identity{})
	leaf.SetOwner(&testAgent{id: "moon", pos: orb.Point{0, 0}})
	leaf.SetTarget(&testAgent{id: "earth", pos: orb.Point{3, 4}})
	w, err := leaf.Weight()
	if err != nil {
		t.Fatalf("weight: %v", err)
	}
	if math.Abs(w-5) > 1e-12 {
		t.Fatalf("unexpected distance: %f", w)
	}

	leaf.SetOwner(plainAgent{})
	if _, err := leaf.Weight(); !errors.Is(err, ErrNotPositioned) {
		t.Fatalf("expected ErrNotPositioned, got %v", err)
	}
}

func TestCompositePropagatesChildErrors(t *testing.T) {
	broken := NewLeaf("dist", Distance(), curve.Constant{Value: 1}, curve.Identity{})
	root := NewComposite("root", Max, Max).Add(fixedLeaf(1, 1), broken)
	root.SetOwner(&testAgent{id: "moon"})
	if _, err := root.Rank(); !errors.Is(err, ErrNoTarget) {
		t.Fatalf("expected ErrNoTarget from rank, got %v", err)
	}
	if _, err := root.Weight(); !errors.Is(err, ErrNoTarget) {
		t.Fatalf("expected ErrNoTarget from weight, got %v", err)
	}
}

func TestNaNObservationIsAnError(t *testing.T) {
	leaf := NewLeaf("nan", Fixed(math.NaN()), curve.Identity{}, curve.Identity{})
	if _, err := leaf.Rank(); !errors.Is(err, ErrNaN) {
		t.Fatalf("expected ErrNaN, got %v", err)
	}
}

func TestTimeSinceStartedDecaysMonotonically(t *testing.T) {
	clk := clock.NewSim(0)
	lc := &fakeLifecycle{start: 0, stop: clock.Never, active: true}
	leaf := NewLeaf("history", TimeSinceStarted(lc, clk),
		curve.Constant{Value: 1}, curve.ExponentialDecay{Base: 0.8, Multiplier: 5})

	prev := math.Inf(1)
	for i := 0; i < 40; i++ {
		w, err := leaf.Weight()
		if err != nil {
			t.Fatalf("weight: %v", err)
		}
		if w >= prev {
			t.Fatalf("weight did not decrease at t=%f: %f >= %f", clk.Now(), w, prev)
		}
		prev = w
		clk.Advance(0.5)
	}
}

func TestLifecycleObservations(t *testing.T) {
	clk := clock.NewSim(10)
	lc := &fakeLifecycle{start: clock.Never, stop: clock.Never}

	v, _ := TimeSinceStarted(lc, clk)(nil, nil)
	if v != math.MaxFloat64 {
		t.Fatalf("never-started option should report max elapsed, got=%g", v)
	}
	lc.start, lc.stop = 4, 7
	v, _ = TimeSinceStarted(lc, clk)(nil, nil)
	if v != 6 {
		t.Fatalf("unexpected time since start: %f", v)
	}
	v, _ = TimeSinceStopped(lc, clk)(nil, nil)
	if v != 3 {
		t.Fatalf("unexpected time since stop: %f", v)
	}
	v, _ = IsActive(lc)(nil, nil)
	if v != 0 {
		t.Fatalf("expected inactive, got=%f", v)
	}
	lc.active = true
	v, _ = IsActive(lc)(nil, nil)
	if v != 1 {
		t.Fatalf("expected active, got=%f", v)
	}
}

func TestParsePolicy(t *testing.T) {
	for in, want := range map[string]Policy{"min": Min, "MAX": Max, "multiply": Multiply, "product": Multiply} {
		got, err := ParsePolicy(in)
		if err != nil || got != want {
			t.Fatalf("ParsePolicy(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParsePolicy("avg"); !errors.Is(err, ErrUnknownPolicy) {
		t.Fatalf("expected ErrUnknownPolicy, got %v", err)
	}
}
