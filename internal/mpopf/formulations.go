package mpopf

import (
	"fmt"
	"math"

	"github.com/iwvelando/mpopf/internal/ref"
	"github.com/iwvelando/mpopf/pkg/mathutil"
	"github.com/iwvelando/mpopf/pkg/problem"
)

// dcPeriod adds the B-theta network of period t: one flow variable per
// branch, Ohm's law rows and active balances. Shunt conductance is a
// constant load at 1 p.u. voltage.
func (b *builder) dcPeriod(blk *block, t int) error {
	r := b.ref
	if blk.flow == nil {
		blk.flow = make([]map[int]int, b.s.timePeriods)
	}
	blk.flow[t] = make(map[int]int, len(r.BranchIDs))

	for _, id := range r.BranchIDs {
		br := r.Branches[id]
		if br.X == 0 {
			return fmt.Errorf("branch %d has no reactance for the dc formulation", id)
		}
		f := b.p.AddVariable(b.varName(blk, "p", t, id), -br.Rate, br.Rate, 0)
		blk.flow[t][id] = f
		k := 1 / (br.X * br.Tap)
		// p = (va_f - va_t - shift) / (x * tap)
		b.p.AddLinear(b.varName(blk, "ohms", t, id), []problem.Term{
			{Var: f, Coef: 1},
			{Var: blk.va[t][br.From], Coef: -k},
			{Var: blk.va[t][br.To], Coef: k},
		}, -br.Shift*k, -br.Shift*k)
	}

	for _, id := range r.BusIDs {
		bus := r.Buses[id]
		e := newLinearExpr()
		for _, g := range r.BusGens[id] {
			e.add(blk.pg[t][g], 1)
		}
		for _, a := range r.BusArcs[id] {
			if a.From == r.Branches[a.Branch].From {
				e.add(blk.flow[t][a.Branch], -1)
			} else {
				e.add(blk.flow[t][a.Branch], 1)
			}
		}
		rhs := bus.Pd*blk.scale[t] + bus.Gs
		b.p.AddLinear(b.varName(blk, "p_balance", t, id), e.terms(), rhs, rhs)
	}
	return nil
}

// arcTerm places an arc flow inside a nonlinear constraint's arguments.
type arcTerm struct {
	flow             arcFlow
	vi, vai, vj, vaj int
}

func (b *builder) arcTerm(blk *block, t int, a ref.Arc, lv *localVars) arcTerm {
	return arcTerm{
		flow: newArcFlow(b.ref.Branches[a.Branch], a),
		vi:   lv.index(blk.vm[t][a.From]),
		vai:  lv.index(blk.va[t][a.From]),
		vj:   lv.index(blk.vm[t][a.To]),
		vaj:  lv.index(blk.va[t][a.To]),
	}
}

// balance is a nodal balance written over a constraint's local arguments:
//
//	sum(gens) + sign*shunt*vm^2 - sum(arc flows) - sum(flow variables)
type balance struct {
	reactive bool
	gens     []int
	vm       int
	shunt    float64
	arcs     []arcTerm
	flows    []int
}

func (bl balance) eval(x, grad []float64) float64 {
	for i := range grad {
		grad[i] = 0
	}
	val := 0.0
	for _, g := range bl.gens {
		val += x[g]
		grad[g]++
	}
	if bl.shunt != 0 {
		vm := x[bl.vm]
		sign := -1.0
		if bl.reactive {
			sign = 1
		}
		val += sign * bl.shunt * vm * vm
		grad[bl.vm] += 2 * sign * bl.shunt * vm
	}
	for _, a := range bl.arcs {
		p, q, dp, dq := a.flow.eval(x[a.vi], x[a.vai], x[a.vj], x[a.vaj])
		flow, d := p, dp
		if bl.reactive {
			flow, d = q, dq
		}
		val -= flow
		grad[a.vi] -= d[0]
		grad[a.vai] -= d[1]
		grad[a.vj] -= d[2]
		grad[a.vaj] -= d[3]
	}
	for _, f := range bl.flows {
		val -= x[f]
		grad[f]--
	}
	return val
}

// acPeriod adds the polar AC network of period t with balances written
// directly in the pi-model flows.
func (b *builder) acPeriod(blk *block, t int) {
	r := b.ref
	for _, id := range r.BusIDs {
		bus := r.Buses[id]
		for _, reactive := range []bool{false, true} {
			lv := newLocalVars()
			bl := balance{reactive: reactive, vm: lv.index(blk.vm[t][id])}
			gens, kind, rhs := blk.pg[t], "p_balance", bus.Pd*blk.scale[t]
			bl.shunt = bus.Gs
			if reactive {
				gens, kind, rhs = blk.qg[t], "q_balance", bus.Qd*blk.scale[t]
				bl.shunt = bus.Bs
			}
			for _, g := range r.BusGens[id] {
				bl.gens = append(bl.gens, lv.index(gens[g]))
			}
			for _, a := range r.BusArcs[id] {
				bl.arcs = append(bl.arcs, b.arcTerm(blk, t, a, lv))
			}
			b.p.AddNonlinear(b.varName(blk, kind, t, id), lv.vars, bl.eval, rhs, rhs)
		}
	}

	for _, a := range r.Arcs {
		br := r.Branches[a.Branch]
		if !mathutil.IsFinite(br.Rate) {
			continue
		}
		lv := newLocalVars()
		at := b.arcTerm(blk, t, a, lv)
		b.p.AddNonlinear(b.varName(blk, "thermal", t, a), lv.vars, func(x, grad []float64) float64 {
			p, q, dp, dq := at.flow.eval(x[at.vi], x[at.vai], x[at.vj], x[at.vaj])
			for i := range dp {
				grad[i] = 2*p*dp[i] + 2*q*dq[i]
			}
			return p*p + q*q
		}, math.Inf(-1), br.Rate*br.Rate)
	}
}

// linPeriod adds the AC network of period t with every flow and shunt term
// replaced by its first order expansion at flat start.
func (b *builder) linPeriod(blk *block, t int) {
	r := b.ref
	flat := [4]float64{1, 0, 1, 0}

	linearArc := func(e *linearExpr, a ref.Arc, reactive bool, sign float64) {
		f := newArcFlow(r.Branches[a.Branch], a)
		p0, q0, dp, dq := f.eval(flat[0], flat[1], flat[2], flat[3])
		v0, d := p0, dp
		if reactive {
			v0, d = q0, dq
		}
		vars := [4]int{blk.vm[t][a.From], blk.va[t][a.From], blk.vm[t][a.To], blk.va[t][a.To]}
		for i, v := range vars {
			e.add(v, sign*d[i])
			e.constant -= sign * d[i] * flat[i]
		}
		e.constant += sign * v0
	}

	for _, id := range r.BusIDs {
		bus := r.Buses[id]
		vm := blk.vm[t][id]

		pe := newLinearExpr()
		for _, g := range r.BusGens[id] {
			pe.add(blk.pg[t][g], 1)
		}
		// gs*vm^2 ~ gs*(2*vm - 1)
		pe.add(vm, -2*bus.Gs)
		pe.constant += bus.Gs
		for _, a := range r.BusArcs[id] {
			linearArc(pe, a, false, -1)
		}
		rhs := bus.Pd*blk.scale[t] - pe.constant
		b.p.AddLinear(b.varName(blk, "p_balance", t, id), pe.terms(), rhs, rhs)

		qe := newLinearExpr()
		for _, g := range r.BusGens[id] {
			qe.add(blk.qg[t][g], 1)
		}
		qe.add(vm, 2*bus.Bs)
		qe.constant -= bus.Bs
		for _, a := range r.BusArcs[id] {
			linearArc(qe, a, true, -1)
		}
		rhs = bus.Qd*blk.scale[t] - qe.constant
		b.p.AddLinear(b.varName(blk, "q_balance", t, id), qe.terms(), rhs, rhs)
	}

	for _, a := range r.Arcs {
		br := r.Branches[a.Branch]
		if !mathutil.IsFinite(br.Rate) {
			continue
		}
		e := newLinearExpr()
		linearArc(e, a, false, 1)
		b.p.AddLinear(b.varName(blk, "thermal", t, a), e.terms(), -br.Rate-e.constant, br.Rate-e.constant)
	}
}

// newACPeriod adds the AC network of period t with explicit arc flow
// variables. Balances are linear in the flows except at buses with shunts.
func (b *builder) newACPeriod(blk *block, t int) {
	r := b.ref
	n := b.s.timePeriods
	if blk.p == nil {
		blk.p = make([]map[ref.Arc]int, n)
		blk.q = make([]map[ref.Arc]int, n)
	}
	blk.p[t] = make(map[ref.Arc]int, len(r.Arcs))
	blk.q[t] = make(map[ref.Arc]int, len(r.Arcs))

	for _, a := range r.Arcs {
		br := r.Branches[a.Branch]
		f := newArcFlow(br, a)
		vi, vai := b.p.Variable(blk.vm[t][a.From]).Start, b.p.Variable(blk.va[t][a.From]).Start
		vj, vaj := b.p.Variable(blk.vm[t][a.To]).Start, b.p.Variable(blk.va[t][a.To]).Start
		p0, q0, _, _ := f.eval(vi, vai, vj, vaj)

		pv := b.p.AddVariable(b.varName(blk, "p", t, a), -br.Rate, br.Rate, p0)
		qv := b.p.AddVariable(b.varName(blk, "q", t, a), -br.Rate, br.Rate, q0)
		blk.p[t][a], blk.q[t][a] = pv, qv

		vars := []int{pv, qv, blk.vm[t][a.From], blk.va[t][a.From], blk.vm[t][a.To], blk.va[t][a.To]}
		b.p.AddNonlinear(b.varName(blk, "p_flow", t, a), vars, func(x, grad []float64) float64 {
			p, _, dp, _ := f.eval(x[2], x[3], x[4], x[5])
			grad[0], grad[1] = 1, 0
			for i := range dp {
				grad[2+i] = -dp[i]
			}
			return x[0] - p
		}, 0, 0)
		b.p.AddNonlinear(b.varName(blk, "q_flow", t, a), vars, func(x, grad []float64) float64 {
			_, q, _, dq := f.eval(x[2], x[3], x[4], x[5])
			grad[0], grad[1] = 0, 1
			for i := range dq {
				grad[2+i] = -dq[i]
			}
			return x[1] - q
		}, 0, 0)

		if mathutil.IsFinite(br.Rate) {
			b.p.AddNonlinear(b.varName(blk, "thermal", t, a), []int{pv, qv}, func(x, grad []float64) float64 {
				grad[0], grad[1] = 2*x[0], 2*x[1]
				return x[0]*x[0] + x[1]*x[1]
			}, math.Inf(-1), br.Rate*br.Rate)
		}
	}

	for _, id := range r.BusIDs {
		bus := r.Buses[id]
		for _, reactive := range []bool{false, true} {
			gens, flows, kind, rhs, shunt := blk.pg[t], blk.p[t], "p_balance", bus.Pd*blk.scale[t], bus.Gs
			if reactive {
				gens, flows, kind, rhs, shunt = blk.qg[t], blk.q[t], "q_balance", bus.Qd*blk.scale[t], bus.Bs
			}
			name := b.varName(blk, kind, t, id)

			if shunt == 0 {
				e := newLinearExpr()
				for _, g := range r.BusGens[id] {
					e.add(gens[g], 1)
				}
				for _, a := range r.BusArcs[id] {
					e.add(flows[a], -1)
				}
				b.p.AddLinear(name, e.terms(), rhs, rhs)
				continue
			}

			lv := newLocalVars()
			bl := balance{reactive: reactive, vm: lv.index(blk.vm[t][id]), shunt: shunt}
			for _, g := range r.BusGens[id] {
				bl.gens = append(bl.gens, lv.index(gens[g]))
			}
			for _, a := range r.BusArcs[id] {
				bl.flows = append(bl.flows, lv.index(flows[a]))
			}
			b.p.AddNonlinear(name, lv.vars, bl.eval, rhs, rhs)
		}
	}
}
