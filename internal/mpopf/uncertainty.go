package mpopf

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/iwvelando/mpopf/pkg/mathutil"
)

// probabilityTolerance bounds how far scenario probabilities may sum from 1.
const probabilityTolerance = 1e-6

// Scenario is one realization of the uncertain inputs. LoadScale multiplies
// the period factors and GenAvailability multiplies generator Pmax per
// period; empty series mean 1.
type Scenario struct {
	Probability     float64           `json:"probability" yaml:"probability"`
	LoadScale       []float64         `json:"loadScale,omitempty" yaml:"loadScale,omitempty"`
	GenAvailability map[int][]float64 `json:"genAvailability,omitempty" yaml:"genAvailability,omitempty"`
}

// ModelUncertainty is a model with one copy of the network per scenario.
// All scenarios share the first period dispatch and the objective is the
// probability weighted cost.
type ModelUncertainty struct {
	Model
	Scenarios map[string]Scenario

	order  []string
	blocks map[string]*block
}

// ScenarioNames returns the scenario names in model order.
func (m *ModelUncertainty) ScenarioNames() []string {
	return append([]string(nil), m.order...)
}

// Weight returns the objective weight of a scenario.
func (m *ModelUncertainty) Weight(name string) float64 {
	if blk, ok := m.blocks[name]; ok {
		return blk.weight
	}
	return 0
}

// ScenarioSolutions returns the solution of every scenario in model order.
func (m *ModelUncertainty) ScenarioSolutions() []*Solution {
	out := make([]*Solution, 0, len(m.order))
	for _, name := range m.order {
		out = append(out, m.extract(m.blocks[name]))
	}
	return out
}

// CreateModelUncertainty builds a scenario model over the factory's case.
func CreateModelUncertainty(ctx context.Context, f Factory, scenarios map[string]Scenario, opts ...Option) (*ModelUncertainty, error) {
	s, err := newSettings(opts)
	if err != nil {
		return nil, err
	}
	weights, err := scenarioWeights(scenarios)
	if err != nil {
		return nil, err
	}
	base, b, err := prepare(ctx, f, s)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(scenarios))
	for name := range scenarios {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if err := checkScenario(name, scenarios[name], base, s.timePeriods); err != nil {
			return nil, err
		}
	}

	m := &ModelUncertainty{
		Model:     *base,
		Scenarios: scenarios,
		order:     names,
		blocks:    make(map[string]*block, len(names)),
	}

	start := time.Now()
	var lead *block
	for _, name := range names {
		sc := scenarios[name]
		blk, err := b.addBlock(ctx, blockInput{
			name:      name,
			weight:    weights[name],
			loadScale: sc.LoadScale,
			avail:     sc.GenAvailability,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to build scenario %s: %w", name, err)
		}
		if lead == nil {
			lead = blk
		} else {
			b.linkFirstPeriod(lead, blk)
		}
		m.blocks[name] = blk
	}

	if err := m.finish(start, "mpopf.CreateModelUncertainty"); err != nil {
		return nil, err
	}
	return m, nil
}

// scenarioWeights returns the objective weight of every scenario: uniform
// when all probabilities are zero, the probabilities otherwise.
func scenarioWeights(scenarios map[string]Scenario) (map[string]float64, error) {
	if len(scenarios) == 0 {
		return nil, fmt.Errorf("%w: no scenarios given", ErrInvalidOption)
	}
	total := 0.0
	for name, sc := range scenarios {
		if !mathutil.IsFinite(sc.Probability) || sc.Probability < 0 {
			return nil, fmt.Errorf("%w: scenario %s has invalid probability %v", ErrInvalidOption, name, sc.Probability)
		}
		total += sc.Probability
	}

	weights := make(map[string]float64, len(scenarios))
	if total == 0 {
		for name := range scenarios {
			weights[name] = 1 / float64(len(scenarios))
		}
		return weights, nil
	}
	if !mathutil.WithinTolerance(total, 1, probabilityTolerance) {
		return nil, fmt.Errorf("%w: scenario probabilities sum to %v", ErrInvalidOption, total)
	}
	for name, sc := range scenarios {
		weights[name] = sc.Probability
	}
	return weights, nil
}

func checkScenario(name string, sc Scenario, m *Model, periods int) error {
	if n := len(sc.LoadScale); n != 0 && n != periods {
		return fmt.Errorf("%w: scenario %s has %d load scales for %d periods", ErrInvalidOption, name, n, periods)
	}
	for i, v := range sc.LoadScale {
		if !mathutil.IsFinite(v) || v < 0 {
			return fmt.Errorf("%w: scenario %s load scale %d is %v", ErrInvalidOption, name, i+1, v)
		}
	}
	for id, series := range sc.GenAvailability {
		if _, ok := m.Ref.Gens[id]; !ok {
			return fmt.Errorf("%w: scenario %s references unknown generator %d", ErrInvalidOption, name, id)
		}
		if n := len(series); n != 0 && n != periods {
			return fmt.Errorf("%w: scenario %s has %d availability values for generator %d over %d periods",
				ErrInvalidOption, name, n, id, periods)
		}
		for i, v := range series {
			if !mathutil.IsFinite(v) || v < 0 {
				return fmt.Errorf("%w: scenario %s availability %d of generator %d is %v", ErrInvalidOption, name, i+1, id, v)
			}
		}
	}
	return nil
}
