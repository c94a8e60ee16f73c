package curve

import (
	"errors"
	"math"
	"testing"
)

func TestBasicCurves(t *testing.T) {
	if got := (Identity{}).Evaluate(3.5); got != 3.5 {
		t.Fatalf("identity: got=%f", got)
	}
	if got := (Constant{Value: 2}).Evaluate(-100); got != 2 {
		t.Fatalf("constant: got=%f", got)
	}

	lt := BooleanThreshold{Op: LessThan, Threshold: 1}
	if lt.Evaluate(0.5) != 1 || lt.Evaluate(1) != 0 || lt.Evaluate(2) != 0 {
		t.Fatal("less-than threshold misbehaves")
	}
	gt := BooleanThreshold{Op: MoreThan, Threshold: 1}
	if gt.Evaluate(0.5) != 0 || gt.Evaluate(1) != 0 || gt.Evaluate(2) != 1 {
		t.Fatal("more-than threshold misbehaves")
	}
}

func TestValueInRange(t *testing.T) {
	c := ValueInRange{Lower: 2, Upper: 4, Multiplier: 10}
	cases := []struct {
		x    float64
		want float64
	}{
		{x: -5, want: 0},
		{x: 2, want: 0},
		{x: 3, want: 5},
		{x: 4, want: 10},
		{x: 100, want: 10},
	}
	for _, tc := range cases {
		if got := c.Evaluate(tc.x); math.Abs(got-tc.want) > 1e-12 {
			t.Fatalf("x=%f: got=%f want=%f", tc.x, got, tc.want)
		}
	}

	descending := ValueInRange{Lower: 4, Upper: 2, Multiplier: 1}
	if got := descending.Evaluate(2); got != 1 {
		t.Fatalf("descending low end: got=%f", got)
	}
	if got := descending.Evaluate(4); got != 0 {
		t.Fatalf("descending high end: got=%f", got)
	}

	step := ValueInRange{Lower: 1, Upper: 1, Multiplier: 3}
	if step.Evaluate(0.9) != 0 || step.Evaluate(1) != 3 {
		t.Fatal("degenerate range should act as a step")
	}
}

func TestExponentialDecayClampsOverflow(t *testing.T) {
	c := ExponentialDecay{Base: 10, Multiplier: 2}
	if got := c.Evaluate(1000); got != math.MaxFloat64 {
		t.Fatalf("expected positive clamp, got=%g", got)
	}
	neg := ExponentialDecay{Base: 10, Multiplier: -2}
	if got := neg.Evaluate(1000); got != -math.MaxFloat64 {
		t.Fatalf("expected negative clamp, got=%g", got)
	}
	if got := (ExponentialDecay{Base: -2, Multiplier: 1}).Evaluate(0.5); got != 0 {
		t.Fatalf("expected NaN folded to 0, got=%g", got)
	}
}

func TestExponentialDecayIsMonotonic(t *testing.T) {
	c := ExponentialDecay{Base: 0.8, Multiplier: 5}
	prev := c.Evaluate(0)
	if prev != 5 {
		t.Fatalf("expected multiplier at x=0, got=%f", prev)
	}
	for x := 0.5; x < 50; x += 0.5 {
		got := c.Evaluate(x)
		if got >= prev {
			t.Fatalf("decay not decreasing at x=%f: %f >= %f", x, got, prev)
		}
		prev = got
	}
}

func TestCurvesNeverReturnNonFinite(t *testing.T) {
	curves := []Curve{
		Identity{},
		Constant{Value: math.Inf(1)},
		BooleanThreshold{Op: MoreThan},
		ValueInRange{Lower: -1, Upper: 1, Multiplier: math.MaxFloat64},
		ExponentialDecay{Base: 0.8, Multiplier: 5},
		ExponentialDecay{Base: 1e10, Multiplier: 1e10},
		ExponentialDecay{Base: -3, Multiplier: 1},
	}
	inputs := []float64{-math.MaxFloat64, -1e6, -1, -0.5, 0, 0.5, 1, 1e6, math.MaxFloat64}
	for _, c := range curves {
		for _, x := range inputs {
			got := c.Evaluate(x)
			if math.IsNaN(got) || math.IsInf(got, 0) {
				t.Fatalf("%T(%v).Evaluate(%g) = %g", c, c, x, got)
			}
		}
	}
}

func TestSpecBuild(t *testing.T) {
	c, err := Spec{Kind: "exponential_decay", Base: 0.8, Multiplier: 5}.Build()
	if err != nil {
		t.Fatalf("build decay: %v", err)
	}
	if _, ok := c.(ExponentialDecay); !ok {
		t.Fatalf("unexpected curve type %T", c)
	}

	c, err = Spec{Kind: "boolean", Op: "less_than", Threshold: 1}.Build()
	if err != nil {
		t.Fatalf("build boolean: %v", err)
	}
	if c.Evaluate(0.2) != 1 {
		t.Fatal("built boolean curve should fire below threshold")
	}

	if _, err := (Spec{Kind: "sigmoid"}).Build(); !errors.Is(err, ErrUnknownCurve) {
		t.Fatalf("expected ErrUnknownCurve, got %v", err)
	}
	if _, err := (Spec{Kind: "boolean", Op: "equals"}).Build(); !errors.Is(err, ErrUnknownCurve) {
		t.Fatalf("expected ErrUnknownCurve for bad op, got %v", err)
	}
}
