// internal/simulation/scenario.go

// Package simulation generates plausible inter-agent fraud-analysis traffic
// so the correlation layer can be exercised without the real backend. The
// contract is the shape of the generated events, not their distributions.
package simulation

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/user/threatsight/internal/types"
)

// Duration wraps time.Duration for YAML decoding from strings like "800ms".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// AgentSpec names one simulated analysis agent.
type AgentSpec struct {
	ID   types.AgentID `yaml:"id"`
	Role string        `yaml:"role"`
}

// Scenario describes one simulated workload.
type Scenario struct {
	Name     string      `yaml:"name"`
	Agents   []AgentSpec `yaml:"agents"`
	Interval Duration    `yaml:"interval"`

	// TypeWeights biases the generated message mix; missing types get
	// weight 0.
	TypeWeights map[types.MessageType]int `yaml:"type_weights"`

	// ErrorRate is the fraction of tool invocations that fail.
	ErrorRate float64 `yaml:"error_rate"`

	// ResponseRate is the chance a data query produces a correlated
	// result_return after its simulated latency.
	ResponseRate float64 `yaml:"response_rate"`

	// BurstSize and BurstSchedule (a cron expression, seconds field optional)
	// produce periodic activity spikes.
	BurstSize     int    `yaml:"burst_size"`
	BurstSchedule string `yaml:"burst_schedule"`
}

// DefaultScenario is the built-in fraud-desk workload.
func DefaultScenario() *Scenario {
	return &Scenario{
		Name: "fraud-desk",
		Agents: []AgentSpec{
			{ID: "intake", Role: "event intake"},
			{ID: "triage", Role: "case triage"},
			{ID: "scorer", Role: "fraud scoring"},
			{ID: "network-analyst", Role: "entity network analysis"},
			{ID: "resolver", Role: "entity resolution"},
			{ID: "compliance", Role: "AML compliance review"},
		},
		Interval: Duration(800 * time.Millisecond),
		TypeWeights: map[types.MessageType]int{
			types.TypeTaskDelegation:    2,
			types.TypeDataQuery:         4,
			types.TypeValidationRequest: 2,
			types.TypeConsensusVote:     1,
			types.TypeToolInvocation:    3,
		},
		ErrorRate:    0.1,
		ResponseRate: 0.7,
		BurstSize:    5,
	}
}

// LoadScenario reads a scenario from a YAML file and validates it.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	scenario := DefaultScenario()
	if err := yaml.Unmarshal(data, scenario); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}
	if err := scenario.Validate(); err != nil {
		return nil, err
	}
	return scenario, nil
}

// Validate checks the scenario is runnable.
func (s *Scenario) Validate() error {
	if len(s.Agents) < 2 {
		return fmt.Errorf("scenario %q needs at least 2 agents", s.Name)
	}
	if s.Interval <= 0 {
		return fmt.Errorf("scenario %q needs a positive interval", s.Name)
	}
	if s.ErrorRate < 0 || s.ErrorRate > 1 {
		return fmt.Errorf("scenario %q error_rate must be in [0,1]", s.Name)
	}
	if s.ResponseRate < 0 || s.ResponseRate > 1 {
		return fmt.Errorf("scenario %q response_rate must be in [0,1]", s.Name)
	}
	total := 0
	for _, w := range s.TypeWeights {
		if w < 0 {
			return fmt.Errorf("scenario %q has a negative type weight", s.Name)
		}
		total += w
	}
	if total == 0 {
		return fmt.Errorf("scenario %q has no positive type weights", s.Name)
	}
	return nil
}
