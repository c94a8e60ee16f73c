package world

import (
	"math"

	opensimplex "github.com/ojrac/opensimplex-go"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// Wander drifts the body along a heading that follows smooth noise over
// time. Running into the bounds turns it around.
type Wander struct {
	Frequency   float64
	Octaves     int
	Persistence float64

	body    *Body
	noise   opensimplex.Noise
	elapsed float64
	turn    float64
}

// NewWander creates a wander task. Bodies sharing a seed wander alike.
func NewWander(body *Body, seed int64, frequency float64, octaves int, persistence float64) *Wander {
	if frequency <= 0 {
		frequency = 0.3
	}
	if octaves <= 0 {
		octaves = 2
	}
	if persistence <= 0 {
		persistence = 0.5
	}
	return &Wander{
		Frequency:   frequency,
		Octaves:     octaves,
		Persistence: persistence,
		body:        body,
		noise:       opensimplex.NewNormalized(seed),
	}
}

// Heading returns the direction of travel in radians.
func (w *Wander) Heading() float64 {
	// Normalized noise sits mostly around 0.5; two full turns of range keep
	// every direction reachable.
	n := octaveNoise(w.noise, w.elapsed, 0, w.Octaves, w.Frequency, w.Persistence)
	return 4*math.Pi*n + w.turn
}

func (w *Wander) Update(dt float64) {
	if dt <= 0 {
		return
	}
	w.elapsed += dt
	h := w.Heading()
	v := orb.Point{math.Cos(h) * w.body.MaxSpeed, math.Sin(h) * w.body.MaxSpeed}
	if w.body.Move(v, dt) {
		w.turn += math.Pi
	}
}

// octaveNoise layers several frequencies of noise and rescales the sum to
// the range of a single layer.
func octaveNoise(noise opensimplex.Noise, x, y float64, octaves int, frequency, persistence float64) float64 {
	total, amplitude, norm := 0.0, 1.0, 0.0
	for i := 0; i < octaves; i++ {
		total += noise.Eval2(x*frequency, y*frequency) * amplitude
		norm += amplitude
		amplitude *= persistence
		frequency *= 2
	}
	return total / norm
}

// Seek moves the body straight at a target body without overshooting it.
type Seek struct {
	body   *Body
	target *Body
}

func NewSeek(body, target *Body) *Seek {
	return &Seek{body: body, target: target}
}

func (s *Seek) Update(dt float64) {
	if dt <= 0 {
		return
	}
	from, to := s.body.Position, s.target.Position
	dist := planar.Distance(from, to)
	if dist == 0 {
		s.body.Stop()
		return
	}
	speed := math.Min(s.body.MaxSpeed, dist/dt)
	k := speed / dist
	s.body.Move(orb.Point{(to[0] - from[0]) * k, (to[1] - from[1]) * k}, dt)
}

// Idle keeps the body still.
type Idle struct {
	body *Body
}

func NewIdle(body *Body) *Idle {
	return &Idle{body: body}
}

func (i *Idle) Update(float64) {
	i.body.Stop()
}
