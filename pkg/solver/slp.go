package solver

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/iwvelando/mpopf/pkg/constants"
	"github.com/iwvelando/mpopf/pkg/mathutil"
	"github.com/iwvelando/mpopf/pkg/problem"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
)

const (
	minPenalty      = 100.0
	maxPenalty      = 1e9
	penaltyGrowth   = 10.0
	acceptRatio     = 0.1
	expandRatio     = 0.75
	shrinkRatio     = 0.25
	radiusGrowth    = 2.0
	minRadiusFactor = 1e-9
	maxRadiusFactor = 1e3
)

// SLP is a penalty trust-region sequential linear programming method. Every
// iteration linearizes the objective and all rows at the current point and
// solves an elastic LP for the step; the step is accepted on the ratio of the
// actual to the predicted decrease of the l1 merit function.
type SLP struct {
	maxIterations int
	tolerance     float64
	radius        float64
	pivot         float64
	logger        *zap.Logger
}

// NewSLP returns an SLP back-end.
func NewSLP(opts Options) *SLP {
	opts = opts.withDefaults()
	return &SLP{
		maxIterations: opts.MaxIterations,
		tolerance:     opts.Tolerance,
		radius:        opts.TrustRadius,
		pivot:         opts.PivotTolerance,
		logger:        opts.Logger,
	}
}

// Name implements Solver.
func (s *SLP) Name() string {
	return constants.SolverSLP
}

type slpState struct {
	x         []float64
	objective float64
	violation float64
}

// Solve implements Solver.
func (s *SLP) Solve(ctx context.Context, p *problem.Problem) (*Result, error) {
	if err := p.Err(); err != nil {
		return nil, fmt.Errorf("invalid problem %s: %w", p.Name(), err)
	}
	for _, t := range p.Objective().Quadratic {
		if t.Coef < 0 {
			return nil, fmt.Errorf("%w: %s", ErrNonConvex, p.Variable(t.Var).Name)
		}
	}

	start := time.Now()
	n := p.NumVariables()
	grad := make([]float64, n)

	cur := s.evaluate(p, p.StartPoint())
	p.ObjectiveGradient(cur.x, grad)
	penalty := math.Max(minPenalty, 10*floats.Norm(grad, math.Inf(1)))
	radius := s.radius
	minRadius := s.radius * minRadiusFactor
	maxRadius := s.radius * maxRadiusFactor

	res := &Result{Solver: s.Name(), Status: problem.StatusIterationLimit}
	iter := 0
	record := func(accepted bool) {
		res.Trajectory = append(res.Trajectory, problem.Iterate{
			Iteration: iter,
			Objective: cur.objective,
			Violation: cur.violation,
			Radius:    radius,
			Accepted:  accepted,
		})
	}
	for iter < s.maxIterations {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		iter++

		merit := cur.objective + penalty*cur.violation
		p.ObjectiveGradient(cur.x, grad)
		step, model, err := s.step(p, cur.x, grad, radius, penalty)
		if err != nil {
			return nil, fmt.Errorf("%s iteration %d: %w", p.Name(), iter, err)
		}

		predicted := merit - (cur.objective + model)
		if predicted <= s.tolerance*(1+math.Abs(merit)) {
			if cur.violation <= s.tolerance {
				res.Status = problem.StatusOptimal
				record(true)
				break
			}
			if penalty < maxPenalty {
				penalty *= penaltyGrowth
				s.logger.Debug("slp raised penalty",
					zap.String("op", "solver.SLP.Solve"),
					zap.Int("iteration", iter),
					zap.Float64("penalty", penalty),
					zap.Float64("violation", cur.violation),
				)
				continue
			}
			res.Status = problem.StatusLocallyInfeasible
			record(true)
			break
		}

		trial := make([]float64, n)
		for j := range trial {
			v := p.Variable(j)
			trial[j] = mathutil.Clamp(cur.x[j]+step[j], v.Lower, v.Upper)
		}
		next := s.evaluate(p, trial)
		actual := merit - (next.objective + penalty*next.violation)
		ratio := actual / predicted
		stepNorm := floats.Norm(step, math.Inf(1))

		accepted := ratio >= acceptRatio
		if accepted {
			cur = next
		}
		switch {
		case ratio >= expandRatio && stepNorm >= 0.99*radius:
			radius = math.Min(radiusGrowth*radius, maxRadius)
		case ratio < shrinkRatio:
			radius = 0.5 * stepNorm
		}

		record(accepted)
		s.logger.Debug("slp iteration",
			zap.String("op", "solver.SLP.Solve"),
			zap.Int("iteration", iter),
			zap.Float64("objective", cur.objective),
			zap.Float64("violation", cur.violation),
			zap.Float64("ratio", ratio),
			zap.Float64("radius", radius),
			zap.Bool("accepted", accepted),
		)

		if radius < minRadius {
			if cur.violation <= s.tolerance {
				res.Status = problem.StatusOptimal
			} else {
				res.Status = problem.StatusLocallyInfeasible
			}
			break
		}
	}

	res.Iterations = iter
	res.Values = cur.x
	res.Objective = cur.objective
	res.Violation = p.Violation(cur.x)
	if res.Status == problem.StatusOptimal && res.Violation > s.tolerance {
		res.Status = problem.StatusLocallyInfeasible
	}
	res.Duration = time.Since(start)
	store(p, res)

	s.logger.Debug("slp solve finished",
		zap.String("op", "solver.SLP.Solve"),
		zap.String("problem", p.Name()),
		zap.String("status", res.Status.String()),
		zap.Float64("objective", res.Objective),
		zap.Float64("violation", res.Violation),
		zap.Int("iterations", res.Iterations),
		zap.Duration("duration", res.Duration),
	)
	return res, nil
}

func (s *SLP) evaluate(p *problem.Problem, x []float64) slpState {
	total := 0.0
	for _, c := range p.LinearConstraints() {
		total += mathutil.IntervalDistance(problem.EvalLinear(c, x), c.Lower, c.Upper)
	}
	for _, c := range p.NonlinearConstraints() {
		total += mathutil.IntervalDistance(problem.EvalNonlinear(c, x, nil), c.Lower, c.Upper)
	}
	return slpState{x: x, objective: p.EvalObjective(x), violation: total}
}

// step solves the elastic trust-region LP
//
//	minimize   grad*d + penalty*sum(sp + sn)
//	subject to lower <= g(x) + J*d + sp - sn <= upper   for every row
//	           max(l - x, -radius) <= d <= min(u - x, radius)
//
// and returns d together with the optimal LP objective.
func (s *SLP) step(p *problem.Problem, x, grad []float64, radius, penalty float64) ([]float64, float64, error) {
	n := len(x)
	prog := &linearProgram{}
	for j := 0; j < n; j++ {
		v := p.Variable(j)
		if v.Fixed() {
			prog.addColumn(grad[j], 0, 0)
			continue
		}
		lo := math.Max(v.Lower-x[j], -radius)
		up := math.Min(v.Upper-x[j], radius)
		if lo > 0 {
			lo = 0
		}
		if up < 0 {
			up = 0
		}
		prog.addColumn(grad[j], lo, up)
	}

	addElastic := func(terms []problem.Term, value, lower, upper float64) {
		if !mathutil.IsFinite(lower) && !mathutil.IsFinite(upper) {
			return
		}
		sp := prog.addColumn(penalty, 0, constants.Inf)
		sn := prog.addColumn(penalty, 0, constants.Inf)
		terms = append(terms, problem.Term{Var: sp, Coef: 1}, problem.Term{Var: sn, Coef: -1})
		prog.addRow(terms, lower-value, upper-value)
	}

	for _, c := range p.LinearConstraints() {
		terms := append([]problem.Term(nil), c.Terms...)
		addElastic(terms, problem.EvalLinear(c, x), c.Lower, c.Upper)
	}
	for _, c := range p.NonlinearConstraints() {
		g := make([]float64, len(c.Vars))
		value := problem.EvalNonlinear(c, x, g)
		terms := make([]problem.Term, 0, len(c.Vars)+2)
		for i, v := range c.Vars {
			if g[i] != 0 {
				terms = append(terms, problem.Term{Var: v, Coef: g[i]})
			}
		}
		addElastic(terms, value, c.Lower, c.Upper)
	}

	sol, obj, status, err := solveLinear(prog, s.pivot)
	if err != nil {
		return nil, 0, err
	}
	if status != problem.StatusOptimal {
		return nil, 0, fmt.Errorf("trust region subproblem is %s", status)
	}
	return sol[:n], obj, nil
}
