package mpopf

import (
	"context"
	"fmt"
	"math"

	"github.com/iwvelando/mpopf/internal/ref"
	"github.com/iwvelando/mpopf/pkg/constants"
	"github.com/iwvelando/mpopf/pkg/mathutil"
	"github.com/iwvelando/mpopf/pkg/powerdata"
	"github.com/iwvelando/mpopf/pkg/problem"
)

// blockInput scales one copy of the multi-period network.
type blockInput struct {
	name      string
	weight    float64
	loadScale []float64
	avail     map[int][]float64
}

// block holds the variable indices of one copy of the network over all
// periods. Maps are keyed by bus, generator, branch or arc.
type block struct {
	name   string
	weight float64
	scale  []float64

	vm, va  []map[int]int
	pg, qg  []map[int]int
	flow    []map[int]int
	p, q    []map[ref.Arc]int
	costVar []map[int]int
}

type builder struct {
	p           *problem.Problem
	ref         *ref.Ref
	formulation string
	s           *settings
}

func (b *builder) varName(blk *block, kind string, t int, key any) string {
	if blk.name == "" {
		return fmt.Sprintf("%s[%d,%v]", kind, t+1, key)
	}
	return fmt.Sprintf("%s/%s[%d,%v]", blk.name, kind, t+1, key)
}

func (b *builder) hasReactive() bool {
	return b.formulation != constants.FormulationDC
}

// addBlock adds one copy of every period of the network to the problem.
func (b *builder) addBlock(ctx context.Context, in blockInput) (*block, error) {
	n := b.s.timePeriods
	blk := &block{name: in.name, weight: in.weight, scale: make([]float64, n)}
	for t := 0; t < n; t++ {
		blk.scale[t] = b.s.factors[t]
		if len(in.loadScale) > 0 {
			blk.scale[t] *= in.loadScale[t]
		}
	}

	blk.va = make([]map[int]int, n)
	blk.pg = make([]map[int]int, n)
	blk.costVar = make([]map[int]int, n)
	if b.hasReactive() {
		blk.vm = make([]map[int]int, n)
		blk.qg = make([]map[int]int, n)
	}

	for t := 0; t < n; t++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		b.addBusVariables(blk, t)
		b.addGenVariables(blk, t, in.avail)

		var err error
		switch b.formulation {
		case constants.FormulationDC:
			err = b.dcPeriod(blk, t)
		case constants.FormulationAC:
			b.acPeriod(blk, t)
		case constants.FormulationLin:
			b.linPeriod(blk, t)
		case constants.FormulationNewAC:
			b.newACPeriod(blk, t)
		default:
			err = fmt.Errorf("%w: unknown formulation %q", ErrInvalidOption, b.formulation)
		}
		if err != nil {
			return nil, err
		}
		b.addAngleDifferences(blk, t)
		b.addCosts(blk, t)
		if t > 0 {
			b.addRamping(blk, t)
		}
	}
	return blk, nil
}

func (b *builder) addBusVariables(blk *block, t int) {
	blk.va[t] = make(map[int]int, len(b.ref.BusIDs))
	if blk.vm != nil {
		blk.vm[t] = make(map[int]int, len(b.ref.BusIDs))
	}
	for _, id := range b.ref.BusIDs {
		bus := b.ref.Buses[id]
		va := b.p.AddVariable(b.varName(blk, "va", t, id), math.Inf(-1), constants.Inf, 0)
		if id == b.ref.RefBus() {
			b.p.Fix(va, 0)
		}
		blk.va[t][id] = va
		if blk.vm != nil {
			blk.vm[t][id] = b.p.AddVariable(b.varName(blk, "vm", t, id), bus.Vmin, bus.Vmax,
				mathutil.Clamp(bus.Vm, bus.Vmin, bus.Vmax))
		}
	}
}

func (b *builder) addGenVariables(blk *block, t int, avail map[int][]float64) {
	blk.pg[t] = make(map[int]int, len(b.ref.GenIDs))
	if blk.qg != nil {
		blk.qg[t] = make(map[int]int, len(b.ref.GenIDs))
	}
	for _, id := range b.ref.GenIDs {
		g := b.ref.Gens[id]
		pmin, pmax := g.Pmin, g.Pmax
		if series, ok := avail[id]; ok && len(series) > 0 {
			pmax *= series[t]
			pmin = math.Min(pmin, pmax)
		}
		blk.pg[t][id] = b.p.AddVariable(b.varName(blk, "pg", t, id), pmin, pmax, mathutil.Midpoint(pmin, pmax))
		if blk.qg != nil {
			blk.qg[t][id] = b.p.AddVariable(b.varName(blk, "qg", t, id), g.Qmin, g.Qmax, mathutil.Midpoint(g.Qmin, g.Qmax))
		}
	}
}

func (b *builder) addAngleDifferences(blk *block, t int) {
	for _, id := range b.ref.BranchIDs {
		br := b.ref.Branches[id]
		if !mathutil.IsFinite(br.AngMin) && !mathutil.IsFinite(br.AngMax) {
			continue
		}
		b.p.AddLinear(b.varName(blk, "angle_difference", t, id), []problem.Term{
			{Var: blk.va[t][br.From], Coef: 1},
			{Var: blk.va[t][br.To], Coef: -1},
		}, br.AngMin, br.AngMax)
	}
}

// addCosts adds the weighted generation cost of period t. Piecewise-linear
// costs get an epigraph variable bounded below by every segment.
func (b *builder) addCosts(blk *block, t int) {
	w := blk.weight
	blk.costVar[t] = make(map[int]int)
	for _, id := range b.ref.GenIDs {
		g := b.ref.Gens[id]
		pg := blk.pg[t][id]
		switch g.CostModel {
		case powerdata.CostPolynomial:
			b.p.AddObjectiveQuadratic(pg, w*g.C2)
			b.p.AddObjectiveLinear(pg, w*g.C1)
			b.p.AddObjectiveConstant(w * g.C0)
		case powerdata.CostPiecewiseLinear:
			start := b.p.Variable(pg).Start
			c := b.p.AddVariable(b.varName(blk, "pg_cost", t, id), math.Inf(-1), constants.Inf,
				piecewiseValue(g.Points, start))
			for k := 1; k < len(g.Points); k++ {
				x0, y0 := g.Points[k-1][0], g.Points[k-1][1]
				x1, y1 := g.Points[k][0], g.Points[k][1]
				m := (y1 - y0) / (x1 - x0)
				// c >= y0 + m*(pg - x0)
				b.p.AddLinear(b.varName(blk, fmt.Sprintf("pg_cost_segment%d", k), t, id), []problem.Term{
					{Var: c, Coef: 1},
					{Var: pg, Coef: -m},
				}, y0-m*x0, constants.Inf)
			}
			b.p.AddObjectiveLinear(c, w)
			blk.costVar[t][id] = c
		}
	}
}

func piecewiseValue(points [][2]float64, x float64) float64 {
	best := math.Inf(-1)
	for k := 1; k < len(points); k++ {
		x0, y0 := points[k-1][0], points[k-1][1]
		m := (points[k][1] - y0) / (points[k][0] - x0)
		best = math.Max(best, y0+m*(x-x0))
	}
	if math.IsInf(best, -1) {
		return 0
	}
	return best
}

// addRamping links period t to t-1: ramp limits for units that have one,
// and the ramping cost on the absolute change of every unit.
func (b *builder) addRamping(blk *block, t int) {
	cost := float64(b.s.rampingCost) * b.ref.BaseMVA * blk.weight
	for _, id := range b.ref.GenIDs {
		g := b.ref.Gens[id]
		cur, prev := blk.pg[t][id], blk.pg[t-1][id]
		delta := []problem.Term{{Var: cur, Coef: 1}, {Var: prev, Coef: -1}}
		if mathutil.IsFinite(g.RampLimit) {
			b.p.AddLinear(b.varName(blk, "ramp", t, id), delta, -g.RampLimit, g.RampLimit)
		}
		if b.s.rampingCost > 0 {
			up := b.p.AddVariable(b.varName(blk, "ramp_up", t, id), 0, constants.Inf, 0)
			down := b.p.AddVariable(b.varName(blk, "ramp_down", t, id), 0, constants.Inf, 0)
			b.p.AddLinear(b.varName(blk, "ramp_split", t, id), []problem.Term{
				{Var: cur, Coef: 1},
				{Var: prev, Coef: -1},
				{Var: up, Coef: -1},
				{Var: down, Coef: 1},
			}, 0, 0)
			b.p.AddObjectiveLinear(up, cost)
			b.p.AddObjectiveLinear(down, cost)
		}
	}
}

// linkFirstPeriod makes the first period dispatch of blk equal to that of
// the leading block.
func (b *builder) linkFirstPeriod(lead, blk *block) {
	for _, id := range b.ref.GenIDs {
		b.p.AddLinear(b.varName(blk, "nonanticipativity_pg", 0, id), []problem.Term{
			{Var: blk.pg[0][id], Coef: 1},
			{Var: lead.pg[0][id], Coef: -1},
		}, 0, 0)
		if blk.qg != nil {
			b.p.AddLinear(b.varName(blk, "nonanticipativity_qg", 0, id), []problem.Term{
				{Var: blk.qg[0][id], Coef: 1},
				{Var: lead.qg[0][id], Coef: -1},
			}, 0, 0)
		}
	}
}
