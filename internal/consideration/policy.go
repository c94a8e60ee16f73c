package consideration

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"golang.org/x/exp/constraints"

	"github.com/talgya/mini-reasoner/internal/curve"
)

var ErrUnknownPolicy = errors.New("unknown combination policy")

// Policy selects how a composite folds the scores of its children.
type Policy uint8

const (
	Min Policy = iota
	Max
	Multiply
)

func (p Policy) String() string {
	switch p {
	case Min:
		return "min"
	case Max:
		return "max"
	case Multiply:
		return "multiply"
	default:
		return "unknown"
	}
}

// ParsePolicy accepts min, max and multiply (or mul/product).
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(s) {
	case "min":
		return Min, nil
	case "max":
		return Max, nil
	case "multiply", "mul", "product":
		return Multiply, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownPolicy, s)
	}
}

// rankIdentity is the neutral element of the policy over ranks.
func (p Policy) rankIdentity() int {
	switch p {
	case Min:
		return math.MaxInt
	case Max:
		return math.MinInt
	default:
		return 1
	}
}

// weightIdentity is the neutral element of the policy over weights. Max
// starts at the lowest finite float so negative child weights combine
// correctly.
func (p Policy) weightIdentity() float64 {
	switch p {
	case Min:
		return math.MaxFloat64
	case Max:
		return -math.MaxFloat64
	default:
		return 1
	}
}

func (p Policy) combineRank(a, b int) int {
	switch p {
	case Min:
		return min(a, b)
	case Max:
		return max(a, b)
	default:
		return saturatingMul(a, b)
	}
}

func (p Policy) combineWeight(a, b float64) float64 {
	switch p {
	case Min:
		return pick(a, b, less[float64])
	case Max:
		return pick(a, b, greater[float64])
	default:
		return curve.Clamp(a * b)
	}
}

func less[T constraints.Integer | constraints.Float](a, b T) bool { return a < b }

func greater[T constraints.Integer | constraints.Float](a, b T) bool { return a > b }

// pick keeps a unless b wins the comparison. NaN never wins, so a NaN child
// cannot poison a Min or Max fold.
func pick[T constraints.Integer | constraints.Float](a, b T, wins func(b, a T) bool) T {
	if wins(b, a) {
		return b
	}
	return a
}

// saturatingMul multiplies ranks without wrapping around.
func saturatingMul(a, b int) int {
	if a == 0 || b == 0 {
		return 0
	}
	c := a * b
	if c/b != a || (b == -1 && a == math.MinInt) {
		if (a < 0) != (b < 0) {
			return math.MinInt
		}
		return math.MaxInt
	}
	return c
}
