package mpopf

import (
	"context"
	"fmt"
	"time"

	"github.com/iwvelando/mpopf/pkg/mathutil"
)

// FixedValues pins variable groups of a feasibility model to prior values,
// one series per id with one entry per period. Pg and Qg are in MW and MVAr,
// Vm in p.u. and Va in degrees. A nil map leaves the group free; ids absent
// from a non-nil map are also left free.
type FixedValues struct {
	Pg map[int][]float64 `json:"pg,omitempty" yaml:"pg,omitempty"`
	Qg map[int][]float64 `json:"qg,omitempty" yaml:"qg,omitempty"`
	Vm map[int][]float64 `json:"vm,omitempty" yaml:"vm,omitempty"`
	Va map[int][]float64 `json:"va,omitempty" yaml:"va,omitempty"`
}

// FixSelection toggles which groups FixedValuesFromSolution copies.
type FixSelection struct {
	Pg bool
	Qg bool
	Vm bool
	Va bool
}

// FixedValuesFromSolution copies the selected groups of a solution. Qg and
// Vm are left free when the solution comes from a formulation without them.
func FixedValuesFromSolution(sol *Solution, sel FixSelection) FixedValues {
	var fv FixedValues
	if sol == nil {
		return fv
	}
	if !sol.HasReactive() {
		sel.Qg, sel.Vm = false, false
	}
	if sel.Pg {
		fv.Pg = make(map[int][]float64)
	}
	if sel.Qg {
		fv.Qg = make(map[int][]float64)
	}
	if sel.Vm {
		fv.Vm = make(map[int][]float64)
	}
	if sel.Va {
		fv.Va = make(map[int][]float64)
	}
	for _, ps := range sol.Periods {
		for _, g := range ps.Gens {
			if fv.Pg != nil {
				fv.Pg[g.ID] = append(fv.Pg[g.ID], g.Pg)
			}
			if fv.Qg != nil {
				fv.Qg[g.ID] = append(fv.Qg[g.ID], g.Qg)
			}
		}
		for _, b := range ps.Buses {
			if fv.Vm != nil {
				fv.Vm[b.ID] = append(fv.Vm[b.ID], b.Vm)
			}
			if fv.Va != nil {
				fv.Va[b.ID] = append(fv.Va[b.ID], b.Va)
			}
		}
	}
	return fv
}

// CreateModelCheckFeasibility builds a NewAC model with the given values
// pinned. Optimizing it tells whether a prior solution, typically from an
// approximate formulation, is AC feasible: a locally infeasible status means
// it is not.
func CreateModelCheckFeasibility(ctx context.Context, f *NewACFactory, fixed FixedValues, opts ...Option) (*Model, error) {
	if f == nil {
		return nil, fmt.Errorf("%w: factory is nil", ErrInvalidOption)
	}
	s, err := newSettings(opts)
	if err != nil {
		return nil, err
	}
	m, b, err := prepare(ctx, f, s)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	blk, err := b.addBlock(ctx, blockInput{weight: 1})
	if err != nil {
		return nil, fmt.Errorf("failed to build feasibility model: %w", err)
	}
	m.base = blk

	base := m.Ref.BaseMVA
	groups := []struct {
		name   string
		values map[int][]float64
		vars   []map[int]int
		ids    func(int) bool
		scale  func(float64) float64
	}{
		{"pg", fixed.Pg, blk.pg, m.hasGen, func(v float64) float64 { return v / base }},
		{"qg", fixed.Qg, blk.qg, m.hasGen, func(v float64) float64 { return v / base }},
		{"vm", fixed.Vm, blk.vm, m.hasBus, func(v float64) float64 { return v }},
		{"va", fixed.Va, blk.va, m.hasBus, mathutil.Radians},
	}
	for _, g := range groups {
		for id, series := range g.values {
			if !g.ids(id) {
				return nil, fmt.Errorf("%w: fixed %s references unknown id %d", ErrInvalidOption, g.name, id)
			}
			if len(series) != m.TimePeriods {
				return nil, fmt.Errorf("%w: fixed %s for id %d has %d values for %d periods",
					ErrInvalidOption, g.name, id, len(series), m.TimePeriods)
			}
			for t, v := range series {
				if !mathutil.IsFinite(v) {
					return nil, fmt.Errorf("%w: fixed %s for id %d period %d is %v", ErrInvalidOption, g.name, id, t+1, v)
				}
				m.Problem.Fix(g.vars[t][id], g.scale(v))
			}
		}
	}

	if err := m.finish(start, "mpopf.CreateModelCheckFeasibility"); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Model) hasGen(id int) bool {
	_, ok := m.Ref.Gens[id]
	return ok
}

func (m *Model) hasBus(id int) bool {
	_, ok := m.Ref.Buses[id]
	return ok
}
