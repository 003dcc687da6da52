// Package solver provides optimization back-ends for problem.Problem: a dense
// simplex method for linear programs and a trust-region sequential linear
// programming method for problems with nonlinear constraints.
package solver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iwvelando/mpopf/pkg/constants"
	"github.com/iwvelando/mpopf/pkg/problem"
	"go.uber.org/zap"
)

var (
	// ErrNotLinear is returned when a linear back-end receives nonlinear rows.
	ErrNotLinear = errors.New("problem has nonlinear constraints")
	// ErrNonConvex is returned for negative quadratic objective coefficients.
	ErrNonConvex = errors.New("quadratic objective term is not convex")
	// ErrUnboundedQuadratic is returned when a quadratic term's variable lacks finite bounds.
	ErrUnboundedQuadratic = errors.New("quadratic objective term requires finite variable bounds")
	// ErrUnknownSolver is returned by New for unsupported names.
	ErrUnknownSolver = errors.New("unknown solver")
)

// Solver solves a problem and stores the solution in it.
type Solver interface {
	Name() string
	Solve(ctx context.Context, p *problem.Problem) (*Result, error)
}

// Result describes a solve.
type Result struct {
	Solver     string
	Status     problem.Status
	Objective  float64
	Values     []float64
	Iterations int
	Violation  float64
	Trajectory []problem.Iterate
	Duration   time.Duration
}

// Options tunes the back-ends. Zero values select defaults.
type Options struct {
	Tolerance      float64
	MaxIterations  int
	TrustRadius    float64
	CostSegments   int
	PivotTolerance float64
	Logger         *zap.Logger
}

func (o Options) withDefaults() Options {
	if o.Tolerance <= 0 {
		o.Tolerance = constants.DefaultSolverTolerance
	}
	if o.MaxIterations <= 0 {
		o.MaxIterations = constants.DefaultSolverMaxIterations
	}
	if o.TrustRadius <= 0 {
		o.TrustRadius = constants.DefaultTrustRadius
	}
	if o.CostSegments <= 0 {
		o.CostSegments = constants.DefaultCostSegments
	}
	if o.PivotTolerance <= 0 {
		o.PivotTolerance = constants.DefaultPivotTolerance
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// New builds a solver by name: "simplex", "slp" or "auto".
func New(name string, opts Options) (Solver, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case constants.SolverSimplex:
		return NewSimplex(opts), nil
	case constants.SolverSLP:
		return NewSLP(opts), nil
	case "", constants.SolverAuto:
		return NewAuto(opts), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownSolver, name)
	}
}

// Auto dispatches linear problems to the simplex back-end and everything
// else to SLP.
type Auto struct {
	simplex *Simplex
	slp     *SLP
}

// NewAuto returns an Auto solver.
func NewAuto(opts Options) *Auto {
	return &Auto{simplex: NewSimplex(opts), slp: NewSLP(opts)}
}

// Name implements Solver.
func (a *Auto) Name() string {
	return constants.SolverAuto
}

// Select returns the back-end Auto would use for p.
func (a *Auto) Select(p *problem.Problem) Solver {
	if p.IsLinear() {
		return a.simplex
	}
	return a.slp
}

// Solve implements Solver.
func (a *Auto) Solve(ctx context.Context, p *problem.Problem) (*Result, error) {
	return a.Select(p).Solve(ctx, p)
}

func store(p *problem.Problem, res *Result) {
	p.SetSolution(problem.Solution{
		Status:     res.Status,
		Objective:  res.Objective,
		Values:     res.Values,
		Iterations: res.Iterations,
		Trajectory: res.Trajectory,
	})
}
