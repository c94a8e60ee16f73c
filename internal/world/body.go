// Package world holds the kinematic bodies agents move around with and the
// tasks that steer them.
package world

import (
	"math"

	"github.com/paulmach/orb"
)

// Body is a point mass in the plane.
type Body struct {
	Position orb.Point
	Velocity orb.Point
	MaxSpeed float64

	// Bounds confines the position. An empty bound leaves it unconfined.
	Bounds orb.Bound
}

// NewBody creates a body at pos confined to the square of half-width size
// around the origin. A size of zero leaves the body unconfined.
func NewBody(pos orb.Point, maxSpeed, size float64) *Body {
	b := &Body{Position: pos, MaxSpeed: maxSpeed}
	if size > 0 {
		b.Bounds = orb.Bound{Min: orb.Point{-size, -size}, Max: orb.Point{size, size}}
	}
	b.Position, _ = b.clamp(pos)
	return b
}

// Move sets the velocity, capped at MaxSpeed, and integrates it over dt.
// It reports whether the body ran into its bounds.
func (b *Body) Move(v orb.Point, dt float64) bool {
	if speed := math.Hypot(v[0], v[1]); speed > b.MaxSpeed {
		if speed == 0 || b.MaxSpeed <= 0 {
			v = orb.Point{}
		} else {
			k := b.MaxSpeed / speed
			v = orb.Point{v[0] * k, v[1] * k}
		}
	}
	b.Velocity = v
	if dt <= 0 {
		return false
	}
	var hit bool
	b.Position, hit = b.clamp(orb.Point{b.Position[0] + v[0]*dt, b.Position[1] + v[1]*dt})
	return hit
}

// Stop zeroes the velocity.
func (b *Body) Stop() {
	b.Velocity = orb.Point{}
}

func (b *Body) bounded() bool {
	return b.Bounds.Max[0] > b.Bounds.Min[0] && b.Bounds.Max[1] > b.Bounds.Min[1]
}

func (b *Body) clamp(p orb.Point) (orb.Point, bool) {
	if !b.bounded() {
		return p, false
	}
	q := orb.Point{
		math.Min(math.Max(p[0], b.Bounds.Min[0]), b.Bounds.Max[0]),
		math.Min(math.Max(p[1], b.Bounds.Min[1]), b.Bounds.Max[1]),
	}
	return q, q != p
}
