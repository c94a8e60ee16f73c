// Package curve holds the scalar remapping functions used by leaf
// considerations to turn a raw observation into a rank or a weight.
package curve

import "math"

// Curve maps a raw observation to a rank-scale or weight-scale value.
// Implementations are pure and never return NaN or an infinity.
type Curve interface {
	Evaluate(x float64) float64
}

// Clamp folds non-finite values back into the representable range:
// +Inf saturates to math.MaxFloat64, -Inf to -math.MaxFloat64, NaN to 0.
func Clamp(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return 0
	case math.IsInf(v, 1):
		return math.MaxFloat64
	case math.IsInf(v, -1):
		return -math.MaxFloat64
	}
	return v
}

// Identity returns its input.
type Identity struct{}

func (Identity) Evaluate(x float64) float64 {
	return Clamp(x)
}

// Constant ignores its input.
type Constant struct {
	Value float64
}

func (c Constant) Evaluate(float64) float64 {
	return Clamp(c.Value)
}

// Comparison selects the test applied by a BooleanThreshold.
type Comparison uint8

const (
	LessThan Comparison = iota // 1 when x < threshold
	MoreThan                   // 1 when x > threshold
)

func (op Comparison) String() string {
	switch op {
	case LessThan:
		return "less_than"
	case MoreThan:
		return "more_than"
	default:
		return "unknown"
	}
}

// BooleanThreshold is 1 when the comparison holds and 0 otherwise.
type BooleanThreshold struct {
	Op        Comparison
	Threshold float64
}

func (b BooleanThreshold) Evaluate(x float64) float64 {
	switch b.Op {
	case LessThan:
		if x < b.Threshold {
			return 1
		}
	case MoreThan:
		if x > b.Threshold {
			return 1
		}
	}
	return 0
}

// ValueInRange maps [Lower, Upper] linearly onto [0, Multiplier], holding the
// end values outside the range. Lower > Upper gives a descending ramp.
type ValueInRange struct {
	Lower      float64
	Upper      float64
	Multiplier float64
}

func (v ValueInRange) Evaluate(x float64) float64 {
	span := v.Upper - v.Lower
	if span == 0 {
		if x >= v.Upper {
			return Clamp(v.Multiplier)
		}
		return 0
	}
	t := (x - v.Lower) / span
	if math.IsNaN(t) {
		return 0
	}
	t = math.Max(0, math.Min(1, t))
	return Clamp(t * v.Multiplier)
}

// ExponentialDecay evaluates Base^x * Multiplier. With 0 < Base < 1 the
// output shrinks as x grows.
type ExponentialDecay struct {
	Base       float64
	Multiplier float64
}

func (e ExponentialDecay) Evaluate(x float64) float64 {
	return Clamp(math.Pow(e.Base, x) * e.Multiplier)
}
