// internal/simulation/scenario_test.go
package simulation

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/user/threatsight/internal/types"
)

func TestLoadScenario(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scenario.yaml")
	content := `
name: stress
interval: 50ms
error_rate: 0.25
response_rate: 0.9
burst_size: 10
burst_schedule: "*/5 * * * * *"
agents:
  - id: alpha
    role: intake
  - id: beta
    role: scoring
type_weights:
  data_query: 5
  tool_invocation: 1
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	s, err := LoadScenario(path)
	if err != nil {
		t.Fatal(err)
	}
	if s.Name != "stress" {
		t.Errorf("name: got %s", s.Name)
	}
	if time.Duration(s.Interval) != 50*time.Millisecond {
		t.Errorf("interval: got %v", time.Duration(s.Interval))
	}
	if len(s.Agents) != 2 || s.Agents[0].ID != "alpha" {
		t.Errorf("agents: got %+v", s.Agents)
	}
	if s.TypeWeights[types.TypeDataQuery] != 5 {
		t.Errorf("weights: got %+v", s.TypeWeights)
	}
	if s.ErrorRate != 0.25 {
		t.Errorf("error rate: got %f", s.ErrorRate)
	}
}

func TestScenarioValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Scenario)
		ok     bool
	}{
		{"default is valid", func(s *Scenario) {}, true},
		{"one agent", func(s *Scenario) { s.Agents = s.Agents[:1] }, false},
		{"zero interval", func(s *Scenario) { s.Interval = 0 }, false},
		{"bad error rate", func(s *Scenario) { s.ErrorRate = 1.5 }, false},
		{"negative weight", func(s *Scenario) {
			s.TypeWeights[types.TypeDataQuery] = -1
		}, false},
		{"no weights", func(s *Scenario) {
			s.TypeWeights = map[types.MessageType]int{}
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := DefaultScenario()
			tt.mutate(s)
			err := s.Validate()
			if tt.ok && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !tt.ok && err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestLoadScenarioMissingFile(t *testing.T) {
	if _, err := LoadScenario("/nonexistent/scenario.yaml"); err == nil {
		t.Error("expected error for missing file")
	}
}
