// Package problem provides an algebraic container for constrained optimization
// problems: bounded variables, linear and nonlinear row constraints and a
// linear plus diagonal quadratic objective. Solvers read a Problem and write
// their solution back into it.
package problem

import (
	"errors"
	"fmt"
	"math"

	"github.com/iwvelando/mpopf/pkg/mathutil"
)

var (
	// ErrDuplicateVariable is recorded when two variables share a name.
	ErrDuplicateVariable = errors.New("duplicate variable name")
	// ErrInvalidBounds is recorded when a lower bound exceeds its upper bound.
	ErrInvalidBounds = errors.New("lower bound exceeds upper bound")
	// ErrUnknownVariable is recorded when a term references a missing variable.
	ErrUnknownVariable = errors.New("unknown variable")
)

// Status describes the outcome of the most recent solve.
type Status int

const (
	StatusNotSolved Status = iota
	StatusOptimal
	StatusInfeasible
	StatusLocallyInfeasible
	StatusUnbounded
	StatusIterationLimit
)

func (s Status) String() string {
	switch s {
	case StatusNotSolved:
		return "not_solved"
	case StatusOptimal:
		return "optimal"
	case StatusInfeasible:
		return "infeasible"
	case StatusLocallyInfeasible:
		return "locally_infeasible"
	case StatusUnbounded:
		return "unbounded"
	case StatusIterationLimit:
		return "iteration_limit"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Variable is a decision variable with bounds and a starting value.
type Variable struct {
	Name  string
	Lower float64
	Upper float64
	Start float64
}

// Fixed reports whether the variable bounds pin it to a single value.
func (v Variable) Fixed() bool {
	return v.Lower == v.Upper
}

// Term is a coefficient applied to a variable.
type Term struct {
	Var  int
	Coef float64
}

// LinearConstraint is Lower <= sum(Terms) <= Upper.
type LinearConstraint struct {
	Name  string
	Terms []Term
	Lower float64
	Upper float64
}

// NonlinearFunc evaluates a constraint function at x, the values of the
// constraint's variables in declaration order, and writes its partial
// derivatives into grad (len(grad) == len(x)).
type NonlinearFunc func(x, grad []float64) float64

// NonlinearConstraint is Lower <= Func(x[Vars]) <= Upper.
type NonlinearConstraint struct {
	Name  string
	Vars  []int
	Func  NonlinearFunc
	Lower float64
	Upper float64
}

// Objective is Constant + sum(Linear) + sum(Coef * x^2 over Quadratic), minimized.
type Objective struct {
	Constant  float64
	Linear    []Term
	Quadratic []Term
}

// Iterate records one step of an iterative solver.
type Iterate struct {
	Iteration int
	Objective float64
	Violation float64
	Radius    float64
	Accepted  bool
}

// Solution is what a solver writes back into a Problem.
type Solution struct {
	Status     Status
	Objective  float64
	Values     []float64
	Iterations int
	Trajectory []Iterate
}

// Problem is a minimization problem under construction or solved.
// A Problem is not safe for concurrent use.
type Problem struct {
	name      string
	vars      []Variable
	byName    map[string]int
	linear    []LinearConstraint
	nonlinear []NonlinearConstraint
	objective Objective
	err       error
	solution  Solution
}

// New returns an empty problem.
func New(name string) *Problem {
	return &Problem{
		name:   name,
		byName: make(map[string]int),
	}
}

// Name returns the problem name.
func (p *Problem) Name() string {
	return p.name
}

// Err returns the first construction error, if any. Builders add many
// variables and rows; they check Err once when done.
func (p *Problem) Err() error {
	return p.err
}

func (p *Problem) fail(err error) {
	if p.err == nil {
		p.err = err
	}
}

// AddVariable appends a variable and returns its index. Start is clamped into
// the bounds.
func (p *Problem) AddVariable(name string, lower, upper, start float64) int {
	if _, exists := p.byName[name]; exists {
		p.fail(fmt.Errorf("%w: %s", ErrDuplicateVariable, name))
	}
	if lower > upper || math.IsNaN(lower) || math.IsNaN(upper) {
		p.fail(fmt.Errorf("%w: %s [%g, %g]", ErrInvalidBounds, name, lower, upper))
	}
	idx := len(p.vars)
	p.vars = append(p.vars, Variable{
		Name:  name,
		Lower: lower,
		Upper: upper,
		Start: mathutil.Clamp(start, lower, upper),
	})
	p.byName[name] = idx
	p.invalidate()
	return idx
}

// VariableIndex looks up a variable by name.
func (p *Problem) VariableIndex(name string) (int, bool) {
	idx, ok := p.byName[name]
	return idx, ok
}

// Variable returns a copy of the variable at idx.
func (p *Problem) Variable(idx int) Variable {
	return p.vars[idx]
}

// Variables returns a copy of all variables.
func (p *Problem) Variables() []Variable {
	out := make([]Variable, len(p.vars))
	copy(out, p.vars)
	return out
}

// NumVariables returns the number of variables.
func (p *Problem) NumVariables() int {
	return len(p.vars)
}

// SetBounds replaces the bounds of a variable.
func (p *Problem) SetBounds(idx int, lower, upper float64) {
	if !p.validIndex(idx) {
		return
	}
	if lower > upper {
		p.fail(fmt.Errorf("%w: %s [%g, %g]", ErrInvalidBounds, p.vars[idx].Name, lower, upper))
		return
	}
	v := &p.vars[idx]
	v.Lower, v.Upper = lower, upper
	v.Start = mathutil.Clamp(v.Start, lower, upper)
	p.invalidate()
}

// Fix pins a variable to value.
func (p *Problem) Fix(idx int, value float64) {
	if !p.validIndex(idx) {
		return
	}
	v := &p.vars[idx]
	v.Lower, v.Upper, v.Start = value, value, value
	p.invalidate()
}

// SetStart sets the initial value of a variable, clamped into its bounds.
func (p *Problem) SetStart(idx int, value float64) {
	if !p.validIndex(idx) {
		return
	}
	v := &p.vars[idx]
	v.Start = mathutil.Clamp(value, v.Lower, v.Upper)
}

// AddLinear appends a linear row and returns its index.
func (p *Problem) AddLinear(name string, terms []Term, lower, upper float64) int {
	for _, t := range terms {
		if !p.validIndex(t.Var) {
			return -1
		}
	}
	if lower > upper {
		p.fail(fmt.Errorf("%w: constraint %s [%g, %g]", ErrInvalidBounds, name, lower, upper))
	}
	p.linear = append(p.linear, LinearConstraint{Name: name, Terms: terms, Lower: lower, Upper: upper})
	p.invalidate()
	return len(p.linear) - 1
}

// AddNonlinear appends a nonlinear row and returns its index.
func (p *Problem) AddNonlinear(name string, vars []int, fn NonlinearFunc, lower, upper float64) int {
	for _, v := range vars {
		if !p.validIndex(v) {
			return -1
		}
	}
	if lower > upper {
		p.fail(fmt.Errorf("%w: constraint %s [%g, %g]", ErrInvalidBounds, name, lower, upper))
	}
	p.nonlinear = append(p.nonlinear, NonlinearConstraint{Name: name, Vars: vars, Func: fn, Lower: lower, Upper: upper})
	p.invalidate()
	return len(p.nonlinear) - 1
}

// LinearConstraints returns the linear rows. Callers must not modify them.
func (p *Problem) LinearConstraints() []LinearConstraint {
	return p.linear
}

// NonlinearConstraints returns the nonlinear rows. Callers must not modify them.
func (p *Problem) NonlinearConstraints() []NonlinearConstraint {
	return p.nonlinear
}

// AddObjectiveConstant adds c to the objective.
func (p *Problem) AddObjectiveConstant(c float64) {
	p.objective.Constant += c
}

// AddObjectiveLinear adds coef*x[idx] to the objective.
func (p *Problem) AddObjectiveLinear(idx int, coef float64) {
	if coef == 0 || !p.validIndex(idx) {
		return
	}
	p.objective.Linear = append(p.objective.Linear, Term{Var: idx, Coef: coef})
}

// AddObjectiveQuadratic adds coef*x[idx]^2 to the objective.
func (p *Problem) AddObjectiveQuadratic(idx int, coef float64) {
	if coef == 0 || !p.validIndex(idx) {
		return
	}
	p.objective.Quadratic = append(p.objective.Quadratic, Term{Var: idx, Coef: coef})
}

// Objective returns the objective definition.
func (p *Problem) Objective() Objective {
	return p.objective
}

// IsLinear reports whether the problem has no nonlinear rows.
func (p *Problem) IsLinear() bool {
	return len(p.nonlinear) == 0
}

// HasQuadraticObjective reports whether any quadratic objective term exists.
func (p *Problem) HasQuadraticObjective() bool {
	return len(p.objective.Quadratic) > 0
}

// StartPoint returns the variable start values.
func (p *Problem) StartPoint() []float64 {
	x := make([]float64, len(p.vars))
	for i, v := range p.vars {
		x[i] = v.Start
	}
	return x
}

// EvalObjective evaluates the objective at x.
func (p *Problem) EvalObjective(x []float64) float64 {
	f := p.objective.Constant
	for _, t := range p.objective.Linear {
		f += t.Coef * x[t.Var]
	}
	for _, t := range p.objective.Quadratic {
		f += t.Coef * x[t.Var] * x[t.Var]
	}
	return f
}

// ObjectiveGradient writes the objective gradient at x into grad.
func (p *Problem) ObjectiveGradient(x, grad []float64) {
	for i := range grad {
		grad[i] = 0
	}
	for _, t := range p.objective.Linear {
		grad[t.Var] += t.Coef
	}
	for _, t := range p.objective.Quadratic {
		grad[t.Var] += 2 * t.Coef * x[t.Var]
	}
}

// EvalLinear returns the row activity of a linear constraint at x.
func EvalLinear(c LinearConstraint, x []float64) float64 {
	sum := 0.0
	for _, t := range c.Terms {
		sum += t.Coef * x[t.Var]
	}
	return sum
}

// EvalNonlinear returns the value of a nonlinear constraint at x and, when
// grad is non-nil, its gradient with respect to c.Vars.
func EvalNonlinear(c NonlinearConstraint, x, grad []float64) float64 {
	local := make([]float64, len(c.Vars))
	for i, v := range c.Vars {
		local[i] = x[v]
	}
	if grad == nil {
		grad = make([]float64, len(c.Vars))
	}
	return c.Func(local, grad)
}

// Violation returns the largest bound or row violation at x.
func (p *Problem) Violation(x []float64) float64 {
	worst := 0.0
	for i, v := range p.vars {
		worst = math.Max(worst, mathutil.IntervalDistance(x[i], v.Lower, v.Upper))
	}
	for _, c := range p.linear {
		worst = math.Max(worst, mathutil.IntervalDistance(EvalLinear(c, x), c.Lower, c.Upper))
	}
	for _, c := range p.nonlinear {
		worst = math.Max(worst, mathutil.IntervalDistance(EvalNonlinear(c, x, nil), c.Lower, c.Upper))
	}
	return worst
}

// SetSolution stores the outcome of a solve.
func (p *Problem) SetSolution(sol Solution) {
	if sol.Values != nil {
		sol.Values = append([]float64(nil), sol.Values...)
	}
	p.solution = sol
}

// Status returns the status of the most recent solve.
func (p *Problem) Status() Status {
	return p.solution.Status
}

// ObjectiveValue returns the objective of the most recent solve.
func (p *Problem) ObjectiveValue() float64 {
	return p.solution.Objective
}

// Value returns the solved value of a variable, or its start value when the
// problem has not been solved.
func (p *Problem) Value(idx int) float64 {
	if len(p.solution.Values) == len(p.vars) {
		return p.solution.Values[idx]
	}
	return p.vars[idx].Start
}

// Values returns a copy of the solved variable values.
func (p *Problem) Values() []float64 {
	return append([]float64(nil), p.solution.Values...)
}

// Solution returns the stored solution.
func (p *Problem) Solution() Solution {
	return p.solution
}

// Stats summarizes problem dimensions.
type Stats struct {
	Variables      int
	FixedVariables int
	Linear         int
	Nonlinear      int
	QuadraticTerms int
}

// Stats returns problem dimensions.
func (p *Problem) Stats() Stats {
	s := Stats{
		Variables:      len(p.vars),
		Linear:         len(p.linear),
		Nonlinear:      len(p.nonlinear),
		QuadraticTerms: len(p.objective.Quadratic),
	}
	for _, v := range p.vars {
		if v.Fixed() {
			s.FixedVariables++
		}
	}
	return s
}

func (p *Problem) validIndex(idx int) bool {
	if idx < 0 || idx >= len(p.vars) {
		p.fail(fmt.Errorf("%w: index %d", ErrUnknownVariable, idx))
		return false
	}
	return true
}

// invalidate drops a stored solution after the problem changed.
func (p *Problem) invalidate() {
	p.solution = Solution{}
}
