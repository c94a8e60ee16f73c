package curve

import (
	"errors"
	"fmt"
	"strings"
)

var ErrUnknownCurve = errors.New("unknown curve")

// Spec is the declarative form of a curve as it appears in scenario files.
type Spec struct {
	Kind       string  `json:"kind"`
	Value      float64 `json:"value,omitempty"`
	Op         string  `json:"op,omitempty"`
	Threshold  float64 `json:"threshold,omitempty"`
	Lower      float64 `json:"lower,omitempty"`
	Upper      float64 `json:"upper,omitempty"`
	Multiplier float64 `json:"multiplier,omitempty"`
	Base       float64 `json:"base,omitempty"`
}

// Build turns a spec into a curve.
func (s Spec) Build() (Curve, error) {
	switch strings.ToLower(s.Kind) {
	case "identity":
		return Identity{}, nil
	case "constant", "const":
		return Constant{Value: s.Value}, nil
	case "boolean", "threshold":
		op, err := ParseComparison(s.Op)
		if err != nil {
			return nil, err
		}
		return BooleanThreshold{Op: op, Threshold: s.Threshold}, nil
	case "range", "value_in_range":
		return ValueInRange{Lower: s.Lower, Upper: s.Upper, Multiplier: s.Multiplier}, nil
	case "exponential_decay", "decay":
		return ExponentialDecay{Base: s.Base, Multiplier: s.Multiplier}, nil
	default:
		return nil, fmt.Errorf("%w: kind %q", ErrUnknownCurve, s.Kind)
	}
}

// ParseComparison accepts "less_than"/"lt" and "more_than"/"gt".
func ParseComparison(s string) (Comparison, error) {
	switch strings.ToLower(s) {
	case "less_than", "lt", "<":
		return LessThan, nil
	case "more_than", "gt", ">":
		return MoreThan, nil
	default:
		return 0, fmt.Errorf("%w: comparison %q", ErrUnknownCurve, s)
	}
}
