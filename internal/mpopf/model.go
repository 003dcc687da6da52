package mpopf

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/iwvelando/mpopf/internal/ref"
	"github.com/iwvelando/mpopf/pkg/constants"
	"github.com/iwvelando/mpopf/pkg/mathutil"
	"github.com/iwvelando/mpopf/pkg/powerdata"
	"github.com/iwvelando/mpopf/pkg/problem"
	"github.com/iwvelando/mpopf/pkg/solver"
	"go.uber.org/zap"
)

// AbstractModel is satisfied by every model kind the optimizer accepts.
type AbstractModel interface {
	Base() *Model
}

// Model is a multi-period optimal power flow model.
type Model struct {
	ID          uuid.UUID
	Formulation string
	Problem     *problem.Problem
	Data        *powerdata.Network
	Ref         *ref.Ref
	TimePeriods int
	Factors     []float64
	RampingCost int
	Solver      solver.Solver

	logger *zap.Logger
	base   *block
}

// Base implements AbstractModel.
func (m *Model) Base() *Model {
	return m
}

// Logger returns the logger the model was built with.
func (m *Model) Logger() *zap.Logger {
	if m.logger == nil {
		return zap.NewNop()
	}
	return m.logger
}

// GenDispatch is the output of a generator in MW and MVAr.
type GenDispatch struct {
	ID  int     `json:"id"`
	Bus int     `json:"bus"`
	Pg  float64 `json:"pg"`
	Qg  float64 `json:"qg"`
}

// BusVoltage is a bus voltage in p.u. and degrees.
type BusVoltage struct {
	ID int     `json:"id"`
	Vm float64 `json:"vm"`
	Va float64 `json:"va"`
}

// BranchFlow is the power entering a branch at each end in MW and MVAr.
type BranchFlow struct {
	ID    int     `json:"id"`
	PFrom float64 `json:"pFrom"`
	QFrom float64 `json:"qFrom"`
	PTo   float64 `json:"pTo"`
	QTo   float64 `json:"qTo"`
}

// PeriodSolution is the state of the network in one period.
type PeriodSolution struct {
	Period   int           `json:"period"`
	Scale    float64       `json:"scale"`
	Load     float64       `json:"load"`
	Gens     []GenDispatch `json:"gens"`
	Buses    []BusVoltage  `json:"buses"`
	Branches []BranchFlow  `json:"branches"`
}

// Solution is a model solution in physical units.
type Solution struct {
	Scenario    string           `json:"scenario,omitempty"`
	Formulation string           `json:"formulation"`
	Status      string           `json:"status"`
	Objective   float64          `json:"objective"`
	Periods     []PeriodSolution `json:"periods"`
}

// HasReactive reports whether the solving formulation models reactive power
// and voltage magnitudes. A dc solution reports Qg as 0 and Vm as 1.
func (s *Solution) HasReactive() bool {
	return s.Formulation != constants.FormulationDC
}

// Solution returns the solved dispatch. Before optimization it reports the
// start point.
func (m *Model) Solution() (*Solution, error) {
	if m.base == nil {
		return nil, fmt.Errorf("model %s has scenario blocks, use ScenarioSolutions", m.ID)
	}
	return m.extract(m.base), nil
}

func (m *Model) extract(blk *block) *Solution {
	p := m.Problem
	r := m.Ref
	base := r.BaseMVA
	sol := &Solution{
		Scenario:    blk.name,
		Formulation: m.Formulation,
		Status:      p.Status().String(),
		Objective:   p.ObjectiveValue(),
	}

	for t := 0; t < m.TimePeriods; t++ {
		ps := PeriodSolution{Period: t + 1, Scale: blk.scale[t]}
		pd, _ := r.TotalLoad()
		ps.Load = pd * blk.scale[t] * base

		for _, id := range r.GenIDs {
			g := GenDispatch{ID: id, Bus: r.Gens[id].Bus, Pg: p.Value(blk.pg[t][id]) * base}
			if blk.qg != nil {
				g.Qg = p.Value(blk.qg[t][id]) * base
			}
			ps.Gens = append(ps.Gens, g)
		}

		vm := func(bus int) float64 {
			if blk.vm == nil {
				return 1
			}
			return p.Value(blk.vm[t][bus])
		}
		va := func(bus int) float64 {
			return p.Value(blk.va[t][bus])
		}
		for _, id := range r.BusIDs {
			ps.Buses = append(ps.Buses, BusVoltage{ID: id, Vm: vm(id), Va: mathutil.Degrees(va(id))})
		}

		for i, a := range r.ArcsFrom {
			br := r.Branches[a.Branch]
			to := r.ArcsTo[i]
			f := BranchFlow{ID: a.Branch}
			switch m.Formulation {
			case constants.FormulationDC:
				flow := p.Value(blk.flow[t][a.Branch])
				f.PFrom, f.PTo = flow, -flow
			case constants.FormulationNewAC:
				f.PFrom, f.QFrom = p.Value(blk.p[t][a]), p.Value(blk.q[t][a])
				f.PTo, f.QTo = p.Value(blk.p[t][to]), p.Value(blk.q[t][to])
			case constants.FormulationLin:
				f.PFrom, f.QFrom = newArcFlow(br, a).linearized(vm(a.From), va(a.From), vm(a.To), va(a.To))
				f.PTo, f.QTo = newArcFlow(br, to).linearized(vm(to.From), va(to.From), vm(to.To), va(to.To))
			default:
				f.PFrom, f.QFrom, _, _ = newArcFlow(br, a).eval(vm(a.From), va(a.From), vm(a.To), va(a.To))
				f.PTo, f.QTo, _, _ = newArcFlow(br, to).eval(vm(to.From), va(to.From), vm(to.To), va(to.To))
			}
			f.PFrom *= base
			f.QFrom *= base
			f.PTo *= base
			f.QTo *= base
			ps.Branches = append(ps.Branches, f)
		}
		sol.Periods = append(sol.Periods, ps)
	}
	return sol
}

// TotalGeneration returns the active generation of a period in MW.
func (ps PeriodSolution) TotalGeneration() float64 {
	total := 0.0
	for _, g := range ps.Gens {
		total += g.Pg
	}
	return total
}
