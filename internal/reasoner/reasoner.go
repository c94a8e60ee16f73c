// Package reasoner implements the per-tick utility reasoner: every tick it
// scores all options, keeps only those sharing the highest rank, and draws
// one of them with probability proportional to its weight.
//
// Scoring always sees the lifecycle left behind by the previous tick's
// selection; selection happens only after every option has been scored.
package reasoner

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/talgya/mini-reasoner/internal/consideration"
)

var ErrInvalidRestore = errors.New("invalid option state restore")

// Sampler yields uniformly distributed samples in [0, 1).
type Sampler interface {
	Float() float64
}

// Transition is emitted whenever the active option changes.
type Transition struct {
	Agent string  `json:"agent"`
	From  string  `json:"from,omitempty"` // empty when nothing was active
	To    string  `json:"to"`
	At    float64 `json:"at"` // simulation seconds
}

// Score is the evaluation of one option during the last tick.
type Score struct {
	Option    string  `json:"option"`
	Rank      int     `json:"rank"`
	Weight    float64 `json:"weight"`
	Available bool    `json:"available"`
	Active    bool    `json:"active"`
}

// Setting configures a Reasoner.
type Setting func(*Reasoner)

// WithLogger sets the logger used for transitions and scoring failures.
func WithLogger(l *slog.Logger) Setting {
	return func(r *Reasoner) {
		if l != nil {
			r.log = l
		}
	}
}

// Reasoner selects the active option of one agent.
type Reasoner struct {
	owner   consideration.Agent
	sampler Sampler
	log     *slog.Logger

	options []*Option
	active  *Option

	// Per-tick scratch, indexed like options.
	ranks     []int
	weights   []float64
	available []bool
	failing   []bool // unavailable on the last tick, already logged

	listeners []func(Transition)
}

// New creates a reasoner for owner drawing its samples from sampler.
func New(owner consideration.Agent, sampler Sampler, settings ...Setting) *Reasoner {
	r := &Reasoner{
		owner:   owner,
		sampler: sampler,
		log:     slog.Default(),
	}
	for _, s := range settings {
		s(r)
	}
	return r
}

// AddOption appends an option. Insertion order is the tie-break order of
// the weighted draw.
func (r *Reasoner) AddOption(o *Option) {
	r.options = append(r.options, o)
	r.ranks = append(r.ranks, 0)
	r.weights = append(r.weights, 0)
	r.available = append(r.available, false)
	r.failing = append(r.failing, false)
	o.setOwner(r.owner)
}

// OnTransition registers fn to be called after every change of the active
// option.
func (r *Reasoner) OnTransition(fn func(Transition)) {
	r.listeners = append(r.listeners, fn)
}

// Options returns the options in insertion order.
func (r *Reasoner) Options() []*Option {
	return r.options
}

// Option looks an option up by name.
func (r *Reasoner) Option(name string) (*Option, bool) {
	for _, o := range r.options {
		if o.name == name {
			return o, true
		}
	}
	return nil, false
}

// Active returns the running option, or nil before the first selection.
func (r *Reasoner) Active() *Option {
	return r.active
}

// Update runs one tick: the active option's task advances, every option is
// rescored, and one option is drawn among the highest-ranked ones.
//
// A tick with dt == 0 rescores but keeps the current selection, so repeated
// zero-length updates change nothing.
func (r *Reasoner) Update(dt float64) {
	if r.active != nil {
		r.active.Update(dt)
	}

	r.evaluate()

	if dt == 0 && r.active != nil {
		return
	}

	chosen := r.choose()
	if chosen == nil || chosen == r.active {
		return
	}
	r.switchTo(chosen)
}

// evaluate caches rank and weight of every option for this tick. A failing
// scoring tree makes its option unavailable instead of aborting the tick;
// only changes of availability are logged.
func (r *Reasoner) evaluate() {
	for i, o := range r.options {
		rank, err := o.Rank()
		if err == nil {
			var w float64
			w, err = o.Weight()
			r.weights[i] = sanitizeWeight(w)
		}
		if err != nil {
			if !r.failing[i] {
				r.log.Warn("reasoner: option unavailable", "agent", r.ownerID(), "option", o.name, "error", err)
			}
			r.ranks[i], r.weights[i], r.available[i], r.failing[i] = math.MinInt, 0, false, true
			continue
		}
		if r.failing[i] {
			r.log.Info("reasoner: option available again", "agent", r.ownerID(), "option", o.name)
			r.failing[i] = false
		}
		r.ranks[i] = rank
		r.available[i] = true
	}
}

// choose performs the rank-filtered, weight-proportional draw. Candidates
// with zero probability are skipped, so a zero-weight option is never drawn
// even when the sample is exactly 0 and it comes first.
func (r *Reasoner) choose() *Option {
	maxRank, found := 0, false
	for i := range r.options {
		if r.available[i] && (!found || r.ranks[i] > maxRank) {
			maxRank, found = r.ranks[i], true
		}
	}
	if !found {
		return nil
	}

	candidates := make([]int, 0, len(r.options))
	maxWeight := 0.0
	for i := range r.options {
		if r.available[i] && r.ranks[i] == maxRank {
			candidates = append(candidates, i)
			maxWeight = math.Max(maxWeight, r.weights[i])
		}
	}

	probs := normalize(candidates, r.weights, maxWeight)
	sample := clampSample(r.sampler.Float())

	cum := 0.0
	last := -1
	for k, i := range candidates {
		if probs[k] <= 0 {
			continue
		}
		last = i
		cum += probs[k]
		if cum >= sample {
			return r.options[i]
		}
	}
	// Rounding left the cumulative sum just short of the sample.
	if last >= 0 {
		return r.options[last]
	}
	return nil
}

// normalize turns candidate weights into probabilities. Weights are first
// divided by the largest one so the sum cannot overflow; an all-zero
// candidate set falls back to a uniform distribution.
func normalize(candidates []int, weights []float64, maxWeight float64) []float64 {
	probs := make([]float64, len(candidates))
	if maxWeight <= 0 {
		for k := range probs {
			probs[k] = 1 / float64(len(candidates))
		}
		return probs
	}
	total := 0.0
	for k, i := range candidates {
		probs[k] = weights[i] / maxWeight
		total += probs[k]
	}
	for k := range probs {
		probs[k] /= total
	}
	return probs
}

func (r *Reasoner) switchTo(next *Option) {
	prev := r.active
	from := ""
	if prev != nil {
		prev.Stop()
		from = prev.name
	}
	r.active = next
	next.Start()

	t := Transition{Agent: r.ownerID(), From: from, To: next.name, At: next.lastStart}
	r.log.Info("reasoner: executing a new option", "agent", t.Agent, "option", t.To, "previous", t.From, "at", t.At)
	for _, fn := range r.listeners {
		fn(t)
	}
}

// Scores returns the evaluation of the last tick.
func (r *Reasoner) Scores() []Score {
	out := make([]Score, len(r.options))
	for i, o := range r.options {
		out[i] = Score{
			Option:    o.name,
			Rank:      r.ranks[i],
			Weight:    r.weights[i],
			Available: r.available[i],
			Active:    o == r.active,
		}
	}
	return out
}

// StateString summarizes the last tick, one option per line. The active
// option is marked with '*'.
func (r *Reasoner) StateString() string {
	var b strings.Builder
	for _, s := range r.Scores() {
		mark := " "
		if s.Active {
			mark = "*"
		}
		if !s.Available {
			fmt.Fprintf(&b, "%s %s: unavailable\n", mark, s.Option)
			continue
		}
		fmt.Fprintf(&b, "%s %s: rank=%d weight=%.3f\n", mark, s.Option, s.Rank, s.Weight)
	}
	return b.String()
}

// Snapshot returns the lifecycle of every option.
func (r *Reasoner) Snapshot() []OptionState {
	out := make([]OptionState, len(r.options))
	for i, o := range r.options {
		out[i] = o.Snapshot()
	}
	return out
}

// Restore applies saved lifecycles by option name. At most one state may be
// active; options missing from states keep their timestamps but are
// deactivated.
func (r *Reasoner) Restore(states []OptionState) error {
	var active *Option
	targets := make([]*Option, len(states))
	for i, s := range states {
		o, ok := r.Option(s.Name)
		if !ok {
			return fmt.Errorf("%w: unknown option %q", ErrInvalidRestore, s.Name)
		}
		if s.Active {
			if active != nil {
				return fmt.Errorf("%w: both %q and %q active", ErrInvalidRestore, active.name, s.Name)
			}
			active = o
		}
		targets[i] = o
	}

	for _, o := range r.options {
		o.active = false
	}
	for i, o := range targets {
		o.restore(states[i])
	}
	r.active = active
	return nil
}

func (r *Reasoner) ownerID() string {
	if r.owner == nil {
		return ""
	}
	return r.owner.ID()
}

// sanitizeWeight keeps weights usable as probabilities: NaN and negative
// weights count as zero.
func sanitizeWeight(w float64) float64 {
	if math.IsNaN(w) || w < 0 {
		return 0
	}
	if math.IsInf(w, 1) {
		return math.MaxFloat64
	}
	return w
}

func clampSample(s float64) float64 {
	if math.IsNaN(s) || s < 0 {
		return 0
	}
	if s >= 1 {
		return math.Nextafter(1, 0)
	}
	return s
}
