package engine

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/talgya/mini-reasoner/internal/agents"
	"github.com/talgya/mini-reasoner/internal/clock"
	"github.com/talgya/mini-reasoner/internal/reasoner"
)

const (
	maxEvents        = 1000
	subscriberBuffer = 64
)

// Event is a change of an agent's active option.
type Event struct {
	RunID string  `json:"run_id" db:"run_id"`
	Tick  uint64  `json:"tick" db:"tick"`
	Time  float64 `json:"sim_time" db:"sim_time"`
	Agent string  `json:"agent" db:"agent"`
	From  string  `json:"from" db:"from_option"`
	To    string  `json:"to" db:"to_option"`
}

func (e Event) String() string {
	from := e.From
	if from == "" {
		from = "-"
	}
	return fmt.Sprintf("%s: %s -> %s", e.Agent, from, e.To)
}

// Stats summarises the run.
type Stats struct {
	RunID       string            `json:"run_id"`
	Tick        uint64            `json:"tick"`
	SimTime     float64           `json:"sim_time"`
	Agents      int               `json:"agents"`
	Transitions uint64            `json:"transitions"`
	Active      map[string]string `json:"active"`
}

// Simulation owns the agents and records their transitions. It is shared
// between the tick loop and the API, so every method takes the lock.
type Simulation struct {
	RunID string

	clock  clock.Clock
	agents []*agents.Agent
	index  map[string]*agents.Agent

	mu          sync.RWMutex
	lastTick    uint64
	events      []Event // most recent last, capped at maxEvents
	pending     []Event // not yet persisted
	transitions uint64

	subMu sync.Mutex
	subs  map[chan Event]struct{}
}

// NewSimulation wires the agents' transitions into the event log.
func NewSimulation(ag []*agents.Agent, clk clock.Clock) *Simulation {
	s := &Simulation{
		RunID:  uuid.NewString(),
		clock:  clk,
		agents: ag,
		index:  make(map[string]*agents.Agent, len(ag)),
		subs:   make(map[chan Event]struct{}),
	}
	for _, a := range ag {
		s.index[a.Name] = a
		a.Reasoner.OnTransition(s.record)
	}
	return s
}

// record runs inside Tick, with the write lock held.
func (s *Simulation) record(t reasoner.Transition) {
	e := Event{
		RunID: s.RunID,
		Tick:  s.lastTick,
		Time:  t.At,
		Agent: t.Agent,
		From:  t.From,
		To:    t.To,
	}
	s.transitions++
	s.events = append(s.events, e)
	if len(s.events) > maxEvents {
		s.events = s.events[len(s.events)-maxEvents:]
	}
	s.pending = append(s.pending, e)
	s.publish(e)
}

func (s *Simulation) publish(e Event) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for ch := range s.subs {
		select {
		case ch <- e:
		default:
			// Slow subscribers miss events rather than stall the tick.
		}
	}
}

// Subscribe returns a channel receiving every future transition.
func (s *Simulation) Subscribe() chan Event {
	ch := make(chan Event, subscriberBuffer)
	s.subMu.Lock()
	s.subs[ch] = struct{}{}
	s.subMu.Unlock()
	return ch
}

// Unsubscribe stops delivery to ch and closes it.
func (s *Simulation) Unsubscribe(ch chan Event) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	if _, ok := s.subs[ch]; ok {
		delete(s.subs, ch)
		close(ch)
	}
}

// Tick updates every agent by dt. It is the engine's OnTick.
func (s *Simulation) Tick(tick uint64, dt float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastTick = tick
	for _, a := range s.agents {
		a.Update(dt)
	}
}

// CurrentTick returns the most recently processed tick number.
func (s *Simulation) CurrentTick() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastTick
}

// SetTick moves the tick counter, used when resuming a saved run.
func (s *Simulation) SetTick(tick uint64) {
	s.mu.Lock()
	s.lastTick = tick
	s.mu.Unlock()
}

// Now returns the simulated time.
func (s *Simulation) Now() float64 {
	return s.clock.Now()
}

// AgentNames lists the agents in spawn order.
func (s *Simulation) AgentNames() []string {
	out := make([]string, len(s.agents))
	for i, a := range s.agents {
		out[i] = a.Name
	}
	return out
}

// AgentStates captures every agent.
func (s *Simulation) AgentStates() []agents.State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]agents.State, len(s.agents))
	for i, a := range s.agents {
		out[i] = a.State()
	}
	return out
}

// AgentState captures one agent by name.
func (s *Simulation) AgentState(name string) (agents.State, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.index[name]
	if !ok {
		return agents.State{}, false
	}
	return a.State(), true
}

// RecentEvents returns up to n of the latest transitions, oldest first.
func (s *Simulation) RecentEvents(n int) []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n <= 0 || n > len(s.events) {
		n = len(s.events)
	}
	out := make([]Event, n)
	copy(out, s.events[len(s.events)-n:])
	return out
}

// DrainPending hands over the transitions recorded since the last call.
func (s *Simulation) DrainPending() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.pending
	s.pending = nil
	return out
}

// Requeue puts events back in front of the pending transitions, for a
// journal write that failed.
func (s *Simulation) Requeue(events []Event) {
	if len(events) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append(append(make([]Event, 0, len(events)+len(s.pending)), events...), s.pending...)
}

// OptionStates captures every agent's option lifecycles by agent name.
func (s *Simulation) OptionStates() map[string][]reasoner.OptionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string][]reasoner.OptionState, len(s.agents))
	for _, a := range s.agents {
		out[a.Name] = a.Reasoner.Snapshot()
	}
	return out
}

// RestoreOptionStates applies saved lifecycles. Agents missing from states
// are left alone.
func (s *Simulation) RestoreOptionStates(states map[string][]reasoner.OptionState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, st := range states {
		a, ok := s.index[name]
		if !ok {
			return fmt.Errorf("%w: %q", agents.ErrUnknownAgent, name)
		}
		if err := a.Reasoner.Restore(st); err != nil {
			return fmt.Errorf("agent %q: %w", name, err)
		}
	}
	return nil
}

// Stats summarises the run.
func (s *Simulation) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	active := make(map[string]string, len(s.agents))
	for _, a := range s.agents {
		active[a.Name] = a.ActiveOption()
	}
	return Stats{
		RunID:       s.RunID,
		Tick:        s.lastTick,
		SimTime:     s.clock.Now(),
		Agents:      len(s.agents),
		Transitions: s.transitions,
		Active:      active,
	}
}

// Report logs a periodic summary. It is the engine's OnReport.
func (s *Simulation) Report(tick uint64) {
	st := s.Stats()
	slog.Info("simulation report",
		"tick", tick,
		"time", FormatSimTime(st.SimTime),
		"agents", st.Agents,
		"transitions", st.Transitions,
	)
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.agents {
		slog.Debug("agent state", "agent", a.Name, "active", a.ActiveOption(), "scores", a.Reasoner.StateString())
	}
}
