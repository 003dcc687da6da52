package config

import (
	"fmt"
	"math"

	"github.com/iwvelando/mpopf/internal/mpopf"
	"github.com/iwvelando/mpopf/pkg/mathutil"
)

// Scenario is one realization of load and generator availability. Only
// active scenarios enter the model.
type Scenario struct {
	Name         string            `yaml:"name" mapstructure:"name"`
	Active       bool              `yaml:"active" mapstructure:"active"`
	Probability  float64           `yaml:"probability,omitempty" mapstructure:"probability"`
	LoadScale    []float64         `yaml:"loadScale,omitempty" mapstructure:"loadScale"`
	Availability []GenAvailability `yaml:"availability,omitempty" mapstructure:"availability"`
}

// GenAvailability scales one generator's Pmax per period.
type GenAvailability struct {
	Gen    int       `yaml:"gen" mapstructure:"gen"`
	Values []float64 `yaml:"values" mapstructure:"values"`
}

// FeasibilityConfig checks the solved dispatch against the NewAC
// formulation with the selected groups pinned.
type FeasibilityConfig struct {
	Enabled bool `yaml:"enabled,omitempty" mapstructure:"enabled"`
	FixPg   bool `yaml:"fixPg,omitempty" mapstructure:"fixPg"`
	FixQg   bool `yaml:"fixQg,omitempty" mapstructure:"fixQg"`
	FixVm   bool `yaml:"fixVm,omitempty" mapstructure:"fixVm"`
	FixVa   bool `yaml:"fixVa,omitempty" mapstructure:"fixVa"`
}

// Validate requires at least one pinned group when the check is enabled.
func (f *FeasibilityConfig) Validate() error {
	if f == nil || !f.Enabled {
		return nil
	}
	if !f.FixPg && !f.FixQg && !f.FixVm && !f.FixVa {
		return fmt.Errorf("feasibility check enabled without any fixed group")
	}
	return nil
}

// Selection returns the groups to copy from the solved dispatch.
func (f FeasibilityConfig) Selection() mpopf.FixSelection {
	return mpopf.FixSelection{Pg: f.FixPg, Qg: f.FixQg, Vm: f.FixVm, Va: f.FixVa}
}

// ActiveScenarioNames returns the names of active scenarios in file order.
func (c *Configuration) ActiveScenarioNames() []string {
	var names []string
	for _, sc := range c.Scenarios {
		if sc.Active {
			names = append(names, sc.Name)
		}
	}
	return names
}

// ActiveScenarios converts the active scenarios for the model. It returns
// nil when none is active.
func (c *Configuration) ActiveScenarios() map[string]mpopf.Scenario {
	var out map[string]mpopf.Scenario
	for _, sc := range c.Scenarios {
		if !sc.Active {
			continue
		}
		if out == nil {
			out = make(map[string]mpopf.Scenario)
		}
		ms := mpopf.Scenario{
			Probability: sc.Probability,
			LoadScale:   append([]float64(nil), sc.LoadScale...),
		}
		for _, a := range sc.Availability {
			if ms.GenAvailability == nil {
				ms.GenAvailability = make(map[int][]float64)
			}
			ms.GenAvailability[a.Gen] = append([]float64(nil), a.Values...)
		}
		out[sc.Name] = ms
	}
	return out
}

func (c *Configuration) validateScenarios() error {
	seen := make(map[string]bool)
	total := 0.0
	for i, sc := range c.Scenarios {
		if sc.Name == "" {
			return fmt.Errorf("scenario %d has no name", i+1)
		}
		if seen[sc.Name] {
			return fmt.Errorf("scenario %s is defined more than once", sc.Name)
		}
		seen[sc.Name] = true
		if !sc.Active {
			continue
		}
		if !mathutil.IsFinite(sc.Probability) || sc.Probability < 0 {
			return fmt.Errorf("scenario %s has invalid probability %v", sc.Name, sc.Probability)
		}
		total += sc.Probability
		if n := len(sc.LoadScale); n != 0 && n != c.Schedule.TimePeriods {
			return fmt.Errorf("scenario %s has %d load scales for %d time periods", sc.Name, n, c.Schedule.TimePeriods)
		}
		gens := make(map[int]bool)
		for _, a := range sc.Availability {
			if gens[a.Gen] {
				return fmt.Errorf("scenario %s lists generator %d more than once", sc.Name, a.Gen)
			}
			gens[a.Gen] = true
			if n := len(a.Values); n != 0 && n != c.Schedule.TimePeriods {
				return fmt.Errorf("scenario %s has %d availability values for generator %d over %d time periods",
					sc.Name, n, a.Gen, c.Schedule.TimePeriods)
			}
		}
	}
	if total != 0 && math.Abs(total-1) > 1e-6 {
		return fmt.Errorf("active scenario probabilities sum to %v", total)
	}
	return nil
}
