package solver

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/iwvelando/mpopf/pkg/constants"
	"github.com/iwvelando/mpopf/pkg/mathutil"
	"github.com/iwvelando/mpopf/pkg/problem"
	"go.uber.org/zap"
)

// Simplex solves linear problems with gonum's simplex implementation.
// Convex quadratic objective terms are replaced by an epigraph variable bounded
// below by tangent cuts, so the reported objective (evaluated on the true
// objective) is exact for linear costs and approximate for quadratic ones.
type Simplex struct {
	tolerance float64
	segments  int
	logger    *zap.Logger
}

// NewSimplex returns a simplex back-end.
func NewSimplex(opts Options) *Simplex {
	opts = opts.withDefaults()
	return &Simplex{
		tolerance: opts.PivotTolerance,
		segments:  opts.CostSegments,
		logger:    opts.Logger,
	}
}

// Name implements Solver.
func (s *Simplex) Name() string {
	return constants.SolverSimplex
}

// Solve implements Solver.
func (s *Simplex) Solve(ctx context.Context, p *problem.Problem) (*Result, error) {
	if err := p.Err(); err != nil {
		return nil, fmt.Errorf("invalid problem %s: %w", p.Name(), err)
	}
	if !p.IsLinear() {
		return nil, fmt.Errorf("%s: %w", s.Name(), ErrNotLinear)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	prog, err := s.program(p)
	if err != nil {
		return nil, err
	}

	x, _, status, err := solveLinear(prog, s.tolerance)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p.Name(), err)
	}

	res := &Result{
		Solver:     s.Name(),
		Status:     status,
		Iterations: 1,
	}
	if status == problem.StatusOptimal {
		res.Values = x[:p.NumVariables()]
		res.Objective = p.EvalObjective(res.Values)
		res.Violation = p.Violation(res.Values)
		res.Trajectory = []problem.Iterate{{
			Iteration: 1,
			Objective: res.Objective,
			Violation: res.Violation,
			Accepted:  true,
		}}
	}
	res.Duration = time.Since(start)
	store(p, res)

	s.logger.Debug("simplex solve finished",
		zap.String("op", "solver.Simplex.Solve"),
		zap.String("problem", p.Name()),
		zap.String("status", status.String()),
		zap.Float64("objective", res.Objective),
		zap.Duration("duration", res.Duration),
	)
	return res, nil
}

func (s *Simplex) program(p *problem.Problem) (*linearProgram, error) {
	prog := &linearProgram{}
	for _, v := range p.Variables() {
		prog.addColumn(0, v.Lower, v.Upper)
	}

	obj := p.Objective()
	prog.constant = obj.Constant
	for _, t := range obj.Linear {
		prog.cols[t.Var].cost += t.Coef
	}

	quad := make(map[int]float64)
	for _, t := range obj.Quadratic {
		quad[t.Var] += t.Coef
	}
	vars := make([]int, 0, len(quad))
	for v := range quad {
		vars = append(vars, v)
	}
	sort.Ints(vars)

	for _, v := range vars {
		q := quad[v]
		if q == 0 {
			continue
		}
		variable := p.Variable(v)
		if q < 0 {
			return nil, fmt.Errorf("%w: %s", ErrNonConvex, variable.Name)
		}
		lo, up := variable.Lower, variable.Upper
		if !mathutil.IsFinite(lo) || !mathutil.IsFinite(up) {
			return nil, fmt.Errorf("%w: %s", ErrUnboundedQuadratic, variable.Name)
		}
		if lo == up {
			prog.constant += q * lo * lo
			continue
		}
		epi := prog.addColumn(1, 0, constants.Inf)
		for k := 0; k <= s.segments; k++ {
			a := lo + (up-lo)*float64(k)/float64(s.segments)
			// t >= q*a^2 + 2*q*a*(x - a)
			prog.addRow([]problem.Term{{Var: epi, Coef: 1}, {Var: v, Coef: -2 * q * a}}, -q*a*a, constants.Inf)
		}
	}

	for _, c := range p.LinearConstraints() {
		prog.addRow(c.Terms, c.Lower, c.Upper)
	}
	return prog, nil
}
