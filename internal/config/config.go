// Package config loads the simulation settings and the agent scenario.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/talgya/mini-reasoner/internal/curve"
)

// Scenario describes the agents of a run and their options.
type Scenario struct {
	// Size is the half-width of the square world centred on the origin.
	Size   float64     `json:"size"`
	Agents []AgentSpec `json:"agents"`
}

// AgentSpec describes one agent.
type AgentSpec struct {
	Name     string       `json:"name"`
	Position [2]float64   `json:"position"`
	MaxSpeed float64      `json:"max_speed"`
	Options  []OptionSpec `json:"options"`
}

// OptionSpec describes one option of an agent.
type OptionSpec struct {
	Name          string             `json:"name"`
	Task          TaskSpec           `json:"task"`
	Consideration *ConsiderationSpec `json:"consideration,omitempty"`
}

// TaskSpec selects the task an option drives.
type TaskSpec struct {
	Kind   string `json:"kind"`             // wander, seek or idle
	Target string `json:"target,omitempty"` // seek only

	// Wander noise.
	Frequency   float64 `json:"frequency,omitempty"`
	Octaves     int     `json:"octaves,omitempty"`
	Persistence float64 `json:"persistence,omitempty"`
}

// ConsiderationSpec is a node of a scoring tree.
//
// Leaf kinds are distance, time_since_started, time_since_stopped,
// is_active and fixed. Lifecycle leaves look at Option, which defaults to
// the option owning the tree. Kind composite folds Children with the two
// policies.
type ConsiderationSpec struct {
	Kind   string      `json:"kind"`
	Name   string      `json:"name,omitempty"`
	Target string      `json:"target,omitempty"`
	Option string      `json:"option,omitempty"`
	Value  float64     `json:"value,omitempty"`
	Rank   *curve.Spec `json:"rank,omitempty"`
	Weight *curve.Spec `json:"weight,omitempty"`

	RankPolicy   string              `json:"rank_policy,omitempty"`
	WeightPolicy string              `json:"weight_policy,omitempty"`
	Children     []ConsiderationSpec `json:"children,omitempty"`
}

// Config holds all runtime settings.
type Config struct {
	Seed           int64   `json:"seed"`
	TickIntervalMS int     `json:"tick_interval_ms"`
	StepSeconds    float64 `json:"step_seconds"`
	Speed          float64 `json:"speed"`
	SaveEvery      uint64  `json:"save_every"`
	LogLevel       string  `json:"log_level"`

	Database struct {
		Path string `json:"path"`
	} `json:"database"`

	API struct {
		Port        int      `json:"port"`
		CORSOrigins []string `json:"cors_origins"`
		AdminKey    string   `json:"-"`
		RelayKey    string   `json:"-"`
	} `json:"api"`

	Redis struct {
		Addr     string `json:"addr"`
		Password string `json:"password"`
		DB       int    `json:"db"`
		Channel  string `json:"channel"`
	} `json:"redis"`

	RandomOrgKey string `json:"-"`

	Scenario Scenario `json:"scenario"`
}

// Default returns the built-in settings: the moon follows the earth around
// when it gets close and loses interest after a while.
func Default() *Config {
	c := &Config{
		TickIntervalMS: 50,
		StepSeconds:    0.05,
		Speed:          1,
		SaveEvery:      1200,
		LogLevel:       "info",
		Scenario:       DefaultScenario(),
	}
	c.Database.Path = "reasoner.db"
	c.API.Port = 8080
	c.Redis.Channel = "reasoner:transitions"
	return c
}

// DefaultScenario returns the moon and earth demo.
func DefaultScenario() Scenario {
	one := &curve.Spec{Kind: "constant", Value: 1}
	return Scenario{
		Size: 3,
		Agents: []AgentSpec{
			{
				Name:     "earth",
				MaxSpeed: 0.6,
				Options: []OptionSpec{
					{Name: "Wander", Task: TaskSpec{Kind: "wander", Frequency: 0.15, Octaves: 2, Persistence: 0.5}},
				},
			},
			{
				Name:     "moon",
				Position: [2]float64{1, 1},
				MaxSpeed: 1,
				Options: []OptionSpec{
					{
						Name: "Wander",
						Task: TaskSpec{Kind: "wander", Frequency: 0.4, Octaves: 2, Persistence: 0.5},
						Consideration: &ConsiderationSpec{
							Kind:   "distance",
							Name:   "far_from_earth",
							Target: "earth",
							Rank:   one,
							Weight: &curve.Spec{Kind: "boolean", Op: "more_than", Threshold: 1},
						},
					},
					{
						Name: "Seek",
						Task: TaskSpec{Kind: "seek", Target: "earth"},
						Consideration: &ConsiderationSpec{
							Kind:         "composite",
							Name:         "root",
							RankPolicy:   "max",
							WeightPolicy: "max",
							Children: []ConsiderationSpec{
								{
									Kind:         "composite",
									Name:         "history",
									RankPolicy:   "max",
									WeightPolicy: "multiply",
									Children: []ConsiderationSpec{
										{Kind: "is_active", Name: "seeking", Rank: one, Weight: &curve.Spec{Kind: "identity"}},
										{Kind: "time_since_started", Name: "seek_age", Rank: one, Weight: &curve.Spec{Kind: "exponential_decay", Base: 0.8, Multiplier: 5}},
									},
								},
								{
									Kind:   "distance",
									Name:   "close_to_earth",
									Target: "earth",
									Rank:   one,
									Weight: &curve.Spec{Kind: "boolean", Op: "less_than", Threshold: 1},
								},
							},
						},
					},
				},
			},
		},
	}
}

// Load reads a JSON file over the defaults and applies environment
// overrides. An empty path yields the defaults.
func Load(path string) (*Config, error) {
	c := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		var probe struct {
			Scenario json.RawMessage `json:"scenario"`
		}
		if err := json.Unmarshal(data, &probe); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
		// A scenario in the file replaces the demo instead of merging into it.
		if len(probe.Scenario) > 0 {
			c.Scenario = Scenario{}
		}
		if err := json.Unmarshal(data, c); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	c.applyEnv()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("REASONER_ADMIN_KEY"); v != "" {
		c.API.AdminKey = v
	}
	if v := os.Getenv("REASONER_RELAY_KEY"); v != "" {
		c.API.RelayKey = v
	}
	if v := os.Getenv("RANDOM_ORG_API_KEY"); v != "" {
		c.RandomOrgKey = v
	}
	if v := os.Getenv("REASONER_REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
}

// Validate checks the settings and the scenario for mistakes that would
// only surface once the simulation runs.
func (c *Config) Validate() error {
	var errs []error
	if c.StepSeconds <= 0 {
		errs = append(errs, fmt.Errorf("step_seconds must be positive, got %v", c.StepSeconds))
	}
	if c.TickIntervalMS <= 0 {
		errs = append(errs, fmt.Errorf("tick_interval_ms must be positive, got %d", c.TickIntervalMS))
	}
	if c.Speed < 0 {
		errs = append(errs, fmt.Errorf("speed must not be negative, got %v", c.Speed))
	}
	switch strings.ToLower(c.LogLevel) {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("unknown log_level %q", c.LogLevel))
	}
	if c.Scenario.Size < 0 {
		errs = append(errs, errors.New("scenario size must not be negative"))
	}

	agents := make(map[string]bool, len(c.Scenario.Agents))
	for _, a := range c.Scenario.Agents {
		if a.Name == "" {
			errs = append(errs, errors.New("agent without name"))
			continue
		}
		if agents[a.Name] {
			errs = append(errs, fmt.Errorf("duplicate agent %q", a.Name))
		}
		agents[a.Name] = true
		options := make(map[string]bool, len(a.Options))
		for _, o := range a.Options {
			if o.Name == "" {
				errs = append(errs, fmt.Errorf("agent %q: option without name", a.Name))
				continue
			}
			if options[o.Name] {
				errs = append(errs, fmt.Errorf("agent %q: duplicate option %q", a.Name, o.Name))
			}
			options[o.Name] = true
		}
	}
	return errors.Join(errs...)
}
