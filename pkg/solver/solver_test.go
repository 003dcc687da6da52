package solver

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/iwvelando/mpopf/pkg/problem"
	"gotest.tools/v3/assert"
)

var inf = math.Inf(1)

func TestSimplexVertexSolution(t *testing.T) {
	// minimize -x - 2y  s.t.  x + y <= 4, 0 <= x, y <= 3
	p := problem.New("vertex")
	x := p.AddVariable("x", 0, 3, 0)
	y := p.AddVariable("y", 0, 3, 0)
	p.AddLinear("cap", []problem.Term{{Var: x, Coef: 1}, {Var: y, Coef: 1}}, -inf, 4)
	p.AddObjectiveLinear(x, -1)
	p.AddObjectiveLinear(y, -2)

	res, err := NewSimplex(Options{}).Solve(context.Background(), p)
	assert.NilError(t, err)
	assert.Equal(t, res.Status, problem.StatusOptimal)
	assert.Assert(t, math.Abs(res.Objective+7) < 1e-8, "objective %v", res.Objective)
	assert.Assert(t, math.Abs(p.Value(x)-1) < 1e-8)
	assert.Assert(t, math.Abs(p.Value(y)-3) < 1e-8)
	assert.Equal(t, p.Status(), problem.StatusOptimal)
}

func TestSimplexFreeAndNegativeVariables(t *testing.T) {
	// minimize x + y  s.t.  x - y = -3, x >= -10, x free, y <= 2
	p := problem.New("free")
	x := p.AddVariable("x", -inf, inf, 0)
	y := p.AddVariable("y", -inf, 2, 0)
	p.AddLinear("diff", []problem.Term{{Var: x, Coef: 1}, {Var: y, Coef: -1}}, -3, -3)
	p.AddLinear("floor", []problem.Term{{Var: x, Coef: 1}}, -10, inf)
	p.AddObjectiveLinear(x, 1)
	p.AddObjectiveLinear(y, 1)

	res, err := NewSimplex(Options{}).Solve(context.Background(), p)
	assert.NilError(t, err)
	assert.Equal(t, res.Status, problem.StatusOptimal)
	// x = y - 3 and x >= -10, minimize 2y - 3 => y = -7, x = -10.
	assert.Assert(t, math.Abs(p.Value(x)+10) < 1e-8, "x = %v", p.Value(x))
	assert.Assert(t, math.Abs(p.Value(y)+7) < 1e-8, "y = %v", p.Value(y))
}

func TestSimplexFixedVariablesAndDependentRows(t *testing.T) {
	p := problem.New("dependent")
	x := p.AddVariable("x", 0, 10, 0)
	y := p.AddVariable("y", 0, 10, 0)
	z := p.AddVariable("z", 0, 10, 0)
	p.Fix(z, 2)
	p.AddLinear("a", []problem.Term{{Var: x, Coef: 1}, {Var: y, Coef: 1}}, 5, 5)
	p.AddLinear("b", []problem.Term{{Var: x, Coef: 2}, {Var: y, Coef: 2}}, 10, 10)
	p.AddLinear("c", []problem.Term{{Var: z, Coef: 1}}, 2, 2)
	p.AddObjectiveLinear(x, 1)
	p.AddObjectiveLinear(y, 3)
	p.AddObjectiveLinear(z, 1)

	res, err := NewSimplex(Options{}).Solve(context.Background(), p)
	assert.NilError(t, err)
	assert.Equal(t, res.Status, problem.StatusOptimal)
	assert.Assert(t, math.Abs(res.Objective-7) < 1e-8, "objective %v", res.Objective)
}

func TestSimplexInfeasible(t *testing.T) {
	p := problem.New("infeasible")
	x := p.AddVariable("x", 0, 1, 0)
	p.AddLinear("too-high", []problem.Term{{Var: x, Coef: 1}}, 2, inf)
	p.AddObjectiveLinear(x, 1)

	res, err := NewSimplex(Options{}).Solve(context.Background(), p)
	assert.NilError(t, err)
	assert.Equal(t, res.Status, problem.StatusInfeasible)
	assert.Equal(t, p.Status(), problem.StatusInfeasible)
}

func TestSimplexInconsistentFixedRow(t *testing.T) {
	p := problem.New("fixed")
	x := p.AddVariable("x", 0, 1, 0)
	p.Fix(x, 1)
	p.AddLinear("zero", []problem.Term{{Var: x, Coef: 1}}, 0, 0)

	res, err := NewSimplex(Options{}).Solve(context.Background(), p)
	assert.NilError(t, err)
	assert.Equal(t, res.Status, problem.StatusInfeasible)
}

func TestSimplexUnbounded(t *testing.T) {
	p := problem.New("unbounded")
	x := p.AddVariable("x", 0, inf, 0)
	y := p.AddVariable("y", 0, inf, 0)
	p.AddLinear("row", []problem.Term{{Var: x, Coef: 1}, {Var: y, Coef: -1}}, 0, 0)
	p.AddObjectiveLinear(x, -1)

	res, err := NewSimplex(Options{}).Solve(context.Background(), p)
	assert.NilError(t, err)
	assert.Equal(t, res.Status, problem.StatusUnbounded)
}

func TestSimplexDegenerateRampPairs(t *testing.T) {
	// Two periods of a cheap unit capped at 3 and an expensive one, with
	// split ramp variables and a free angle tied to the first dispatch.
	p := problem.New("ramping")
	g1a := p.AddVariable("g1a", 0, 3, 0)
	g2a := p.AddVariable("g2a", 0, 10, 0)
	g1b := p.AddVariable("g1b", 0, 3, 0)
	g2b := p.AddVariable("g2b", 0, 10, 0)
	theta := p.AddVariable("theta", -inf, inf, 0)
	p.AddLinear("balance_a", []problem.Term{{Var: g1a, Coef: 1}, {Var: g2a, Coef: 1}}, 5, 5)
	p.AddLinear("balance_b", []problem.Term{{Var: g1b, Coef: 1}, {Var: g2b, Coef: 1}}, 4, 4)
	p.AddLinear("angle", []problem.Term{{Var: theta, Coef: 1}, {Var: g1a, Coef: -1}}, 0, 0)
	for _, pair := range [][2]int{{g1a, g1b}, {g2a, g2b}} {
		up := p.AddVariable("up", 0, inf, 0)
		down := p.AddVariable("down", 0, inf, 0)
		p.AddLinear("split", []problem.Term{
			{Var: pair[1], Coef: 1},
			{Var: pair[0], Coef: -1},
			{Var: up, Coef: -1},
			{Var: down, Coef: 1},
		}, 0, 0)
		p.AddObjectiveLinear(up, 2)
		p.AddObjectiveLinear(down, 2)
	}
	for _, v := range []int{g1a, g1b} {
		p.AddObjectiveLinear(v, 10)
	}
	for _, v := range []int{g2a, g2b} {
		p.AddObjectiveLinear(v, 20)
	}

	res, err := NewSimplex(Options{}).Solve(context.Background(), p)
	assert.NilError(t, err)
	assert.Equal(t, res.Status, problem.StatusOptimal)
	// 10*3 + 20*2 + 10*3 + 20*1 plus 2 for the unit ramp down.
	assert.Assert(t, math.Abs(res.Objective-122) < 1e-6, "objective %v", res.Objective)
	assert.Assert(t, math.Abs(p.Value(theta)-3) < 1e-6, "theta = %v", p.Value(theta))
}

func TestSimplexQuadraticEpigraph(t *testing.T) {
	// minimize (x - 1)^2 over [0, 3]
	p := problem.New("quadratic")
	x := p.AddVariable("x", 0, 3, 0)
	p.AddObjectiveQuadratic(x, 1)
	p.AddObjectiveLinear(x, -2)
	p.AddObjectiveConstant(1)

	res, err := NewSimplex(Options{}).Solve(context.Background(), p)
	assert.NilError(t, err)
	assert.Equal(t, res.Status, problem.StatusOptimal)
	assert.Assert(t, math.Abs(p.Value(x)-1) < 0.2, "x = %v", p.Value(x))
	assert.Assert(t, res.Objective < 0.05, "objective %v", res.Objective)
}

func TestSimplexRejectsUnsupportedProblems(t *testing.T) {
	p := problem.New("nonconvex")
	x := p.AddVariable("x", 0, 1, 0)
	p.AddObjectiveQuadratic(x, -1)
	_, err := NewSimplex(Options{}).Solve(context.Background(), p)
	assert.Assert(t, errors.Is(err, ErrNonConvex))

	q := problem.New("open")
	y := q.AddVariable("y", 0, inf, 0)
	q.AddObjectiveQuadratic(y, 1)
	_, err = NewSimplex(Options{}).Solve(context.Background(), q)
	assert.Assert(t, errors.Is(err, ErrUnboundedQuadratic))

	r := problem.New("nonlinear")
	z := r.AddVariable("z", 0, 1, 0)
	r.AddNonlinear("sq", []int{z}, func(v, g []float64) float64 {
		g[0] = 2 * v[0]
		return v[0] * v[0]
	}, 0, 1)
	_, err = NewSimplex(Options{}).Solve(context.Background(), r)
	assert.Assert(t, errors.Is(err, ErrNotLinear))
}

func TestSLPQuadraticWithLinearConstraint(t *testing.T) {
	// minimize x^2 + y^2  s.t.  x + y = 2
	p := problem.New("slp-quadratic")
	x := p.AddVariable("x", -10, 10, 0)
	y := p.AddVariable("y", -10, 10, 0)
	p.AddLinear("sum", []problem.Term{{Var: x, Coef: 1}, {Var: y, Coef: 1}}, 2, 2)
	p.AddObjectiveQuadratic(x, 1)
	p.AddObjectiveQuadratic(y, 1)

	res, err := NewSLP(Options{}).Solve(context.Background(), p)
	assert.NilError(t, err)
	assert.Equal(t, res.Status, problem.StatusOptimal)
	assert.Assert(t, math.Abs(p.Value(x)-1) < 1e-2, "x = %v", p.Value(x))
	assert.Assert(t, math.Abs(p.Value(y)-1) < 1e-2, "y = %v", p.Value(y))
	assert.Assert(t, len(res.Trajectory) > 0)
}

func TestSLPRecordsStartPointWhenAlreadyOptimal(t *testing.T) {
	p := problem.New("slp-start")
	x := p.AddVariable("x", 0, 10, 0)
	p.AddObjectiveLinear(x, 1)

	res, err := NewSLP(Options{}).Solve(context.Background(), p)
	assert.NilError(t, err)
	assert.Equal(t, res.Status, problem.StatusOptimal)
	assert.Equal(t, res.Iterations, 1)
	assert.Equal(t, len(res.Trajectory), 1)
	assert.Assert(t, res.Trajectory[0].Accepted)
	assert.Equal(t, res.Trajectory[0].Objective, 0.0)
}

func TestSLPNonlinearConstraint(t *testing.T) {
	// minimize x + y  s.t.  x^2 + y^2 <= 2
	p := problem.New("slp-circle")
	x := p.AddVariable("x", -5, 5, 0)
	y := p.AddVariable("y", -5, 5, 0)
	p.AddNonlinear("circle", []int{x, y}, func(v, g []float64) float64 {
		g[0] = 2 * v[0]
		g[1] = 2 * v[1]
		return v[0]*v[0] + v[1]*v[1]
	}, -inf, 2)
	p.AddObjectiveLinear(x, 1)
	p.AddObjectiveLinear(y, 1)

	res, err := NewSLP(Options{}).Solve(context.Background(), p)
	assert.NilError(t, err)
	assert.Equal(t, res.Status, problem.StatusOptimal)
	assert.Assert(t, math.Abs(res.Objective+2) < 1e-2, "objective %v", res.Objective)
	assert.Assert(t, res.Violation <= 1e-6, "violation %v", res.Violation)
}

func TestSLPLocallyInfeasible(t *testing.T) {
	// x^2 = -1 has no real solution.
	p := problem.New("slp-infeasible")
	x := p.AddVariable("x", -5, 5, 1)
	p.AddNonlinear("impossible", []int{x}, func(v, g []float64) float64 {
		g[0] = 2 * v[0]
		return v[0] * v[0]
	}, -1, -1)

	res, err := NewSLP(Options{MaxIterations: 200}).Solve(context.Background(), p)
	assert.NilError(t, err)
	assert.Assert(t, res.Status != problem.StatusOptimal, "status %s", res.Status)
}

func TestSLPHonorsCancellation(t *testing.T) {
	p := problem.New("cancelled")
	p.AddVariable("x", 0, 1, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewSLP(Options{}).Solve(ctx, p)
	assert.Assert(t, errors.Is(err, context.Canceled))
}

func TestNewAndAuto(t *testing.T) {
	for _, name := range []string{"simplex", "slp", "auto", ""} {
		s, err := New(name, Options{})
		assert.NilError(t, err, name)
		assert.Assert(t, s != nil)
	}
	_, err := New("ipopt", Options{})
	assert.Assert(t, errors.Is(err, ErrUnknownSolver))

	auto := NewAuto(Options{})
	lin := problem.New("lin")
	lin.AddVariable("x", 0, 1, 0)
	assert.Equal(t, auto.Select(lin).Name(), "simplex")

	nl := problem.New("nl")
	v := nl.AddVariable("x", 0, 1, 0)
	nl.AddNonlinear("sq", []int{v}, func(x, g []float64) float64 {
		g[0] = 2 * x[0]
		return x[0] * x[0]
	}, 0, 1)
	assert.Equal(t, auto.Select(nl).Name(), "slp")
}
