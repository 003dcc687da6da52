package solver

import (
	"errors"
	"fmt"
	"math"

	"github.com/iwvelando/mpopf/pkg/mathutil"
	"github.com/iwvelando/mpopf/pkg/problem"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"
)

const (
	zeroCoefficient = 1e-14
	rankTolerance   = 1e-9
	rowTolerance    = 1e-6

	// bigMFactor scales the artificial column cost above the largest
	// objective coefficient, and grows it on each retry.
	bigMFactor   = 1e4
	bigMAttempts = 2

	// The bounding row sits this far above the problem's own magnitudes; an
	// optimum that uses all but unboundedFraction of it is unbounded.
	boundingFactor    = 1e3
	unboundedFraction = 1e-6
)

// linearProgram is a bounded row-form LP:
//
//	minimize   constant + sum(cols[j].cost * x[j])
//	subject to rows[i].lower <= sum(rows[i].terms) <= rows[i].upper
//	           cols[j].lower <= x[j] <= cols[j].upper
type linearProgram struct {
	cols     []column
	rows     []row
	constant float64
}

type column struct {
	cost  float64
	lower float64
	upper float64
}

type row struct {
	terms []problem.Term
	lower float64
	upper float64
}

func (l *linearProgram) addColumn(cost, lower, upper float64) int {
	l.cols = append(l.cols, column{cost: cost, lower: lower, upper: upper})
	return len(l.cols) - 1
}

func (l *linearProgram) addRow(terms []problem.Term, lower, upper float64) {
	l.rows = append(l.rows, row{terms: terms, lower: lower, upper: upper})
}

// colMap expresses an original column through standard form columns:
// x = offset + sign*y[pos] - y[neg].
type colMap struct {
	offset float64
	sign   float64
	pos    int
	neg    int
}

// stdRow is sum(coef*y) + slack*s = rhs.
type stdRow struct {
	coef  map[int]float64
	rhs   float64
	slack float64
}

// standardForm is minimize c*y subject to A*y = b, y >= 0.
type standardForm struct {
	maps     []colMap
	nCols    int
	rows     []stdRow
	cost     []float64
	constant float64
}

// solveLinear solves the program with the simplex method. It returns the
// primal values, the objective and a status; err is reserved for numerical
// failures.
func solveLinear(l *linearProgram, tol float64) ([]float64, float64, problem.Status, error) {
	sf, feasible := toStandardForm(l)
	if !feasible {
		return nil, math.NaN(), problem.StatusInfeasible, nil
	}
	y, status, err := sf.solve(tol)
	if err != nil || status != problem.StatusOptimal {
		return nil, math.NaN(), status, err
	}

	x := make([]float64, len(l.cols))
	for j, m := range sf.maps {
		v := m.offset
		if m.pos >= 0 {
			v += m.sign * y[m.pos]
		}
		if m.neg >= 0 {
			v -= y[m.neg]
		}
		x[j] = mathutil.Clamp(v, l.cols[j].lower, l.cols[j].upper)
	}

	for _, r := range l.rows {
		act := 0.0
		for _, t := range r.terms {
			act += t.Coef * x[t.Var]
		}
		scale := 1 + math.Max(finiteAbs(r.lower), finiteAbs(r.upper))
		if mathutil.IntervalDistance(act, r.lower, r.upper) > rowTolerance*scale {
			// Only reachable through an inconsistent dependent equality row.
			return nil, math.NaN(), problem.StatusInfeasible, nil
		}
	}

	obj := l.constant
	for j, c := range l.cols {
		obj += c.cost * x[j]
	}
	return x, obj, problem.StatusOptimal, nil
}

func finiteAbs(v float64) float64 {
	if mathutil.IsFinite(v) {
		return math.Abs(v)
	}
	return 0
}

func toStandardForm(l *linearProgram) (*standardForm, bool) {
	sf := &standardForm{maps: make([]colMap, len(l.cols)), constant: l.constant}
	var boundRows []stdRow

	for j, c := range l.cols {
		lo, up := c.lower, c.upper
		switch {
		case lo == up:
			sf.maps[j] = colMap{offset: lo, pos: -1, neg: -1}
		case mathutil.IsFinite(lo):
			sf.maps[j] = colMap{offset: lo, sign: 1, pos: sf.nCols, neg: -1}
			if mathutil.IsFinite(up) {
				boundRows = append(boundRows, stdRow{coef: map[int]float64{sf.nCols: 1}, rhs: up - lo, slack: 1})
			}
			sf.nCols++
		case mathutil.IsFinite(up):
			sf.maps[j] = colMap{offset: up, sign: -1, pos: sf.nCols, neg: -1}
			sf.nCols++
		default:
			sf.maps[j] = colMap{sign: 1, pos: sf.nCols, neg: sf.nCols + 1}
			sf.nCols += 2
		}
	}

	sf.cost = make([]float64, sf.nCols)
	for j, c := range l.cols {
		m := sf.maps[j]
		sf.constant += c.cost * m.offset
		if m.pos >= 0 {
			sf.cost[m.pos] += c.cost * m.sign
		}
		if m.neg >= 0 {
			sf.cost[m.neg] -= c.cost
		}
	}

	for _, r := range l.rows {
		coef := make(map[int]float64)
		constant := 0.0
		for _, t := range r.terms {
			m := sf.maps[t.Var]
			constant += t.Coef * m.offset
			if m.pos >= 0 {
				coef[m.pos] += t.Coef * m.sign
			}
			if m.neg >= 0 {
				coef[m.neg] -= t.Coef
			}
		}
		for k, v := range coef {
			if math.Abs(v) < zeroCoefficient {
				delete(coef, k)
			}
		}
		if len(coef) == 0 {
			scale := 1 + math.Max(finiteAbs(r.lower), finiteAbs(r.upper))
			if mathutil.IntervalDistance(constant, r.lower, r.upper) > rowTolerance*scale {
				return nil, false
			}
			continue
		}

		lo, up := r.lower-constant, r.upper-constant
		switch {
		case lo == up:
			sf.rows = append(sf.rows, stdRow{coef: coef, rhs: lo})
		default:
			if mathutil.IsFinite(lo) {
				sf.rows = append(sf.rows, stdRow{coef: coef, rhs: lo, slack: -1})
			}
			if mathutil.IsFinite(up) {
				sf.rows = append(sf.rows, stdRow{coef: coef, rhs: up, slack: 1})
			}
		}
	}
	sf.rows = append(sf.rows, boundRows...)
	sf.rows = pruneDependentEqualities(sf.rows, sf.nCols)
	return sf, true
}

// pruneDependentEqualities drops equality rows that are linear combinations
// of earlier equality rows. Inequality rows own a slack column, so they can
// never take part in a dependency.
func pruneDependentEqualities(rows []stdRow, nCols int) []stdRow {
	var basis [][]float64
	kept := rows[:0:0]
	for _, r := range rows {
		if r.slack != 0 {
			kept = append(kept, r)
			continue
		}
		v := make([]float64, nCols)
		for k, c := range r.coef {
			v[k] = c
		}
		norm := floats.Norm(v, 2)
		w := append([]float64(nil), v...)
		for _, q := range basis {
			floats.AddScaled(w, -floats.Dot(w, q), q)
		}
		residual := floats.Norm(w, 2)
		if residual <= rankTolerance*math.Max(1, norm) {
			continue
		}
		floats.Scale(1/residual, w)
		basis = append(basis, w)
		kept = append(kept, r)
	}
	return kept
}

func (sf *standardForm) solve(tol float64) ([]float64, problem.Status, error) {
	// Columns that appear in no row are decided by their cost sign alone.
	used := make([]bool, sf.nCols)
	for _, r := range sf.rows {
		for k := range r.coef {
			used[k] = true
		}
	}
	index := make([]int, sf.nCols)
	nUsed := 0
	for k := 0; k < sf.nCols; k++ {
		if !used[k] {
			index[k] = -1
			if sf.cost[k] < -tol {
				return nil, problem.StatusUnbounded, nil
			}
			continue
		}
		index[k] = nUsed
		nUsed++
	}

	y := make([]float64, sf.nCols)
	if len(sf.rows) == 0 {
		return y, problem.StatusOptimal, nil
	}

	t := newTableau(sf, index, nUsed)
	z, status, err := t.solve(tol)
	if err != nil || status != problem.StatusOptimal {
		return nil, status, err
	}
	for k := 0; k < sf.nCols; k++ {
		if index[k] >= 0 {
			y[k] = math.Max(z[index[k]], 0)
		}
	}
	return y, problem.StatusOptimal, nil
}

// tableau is the equality form handed to lp.Simplex. Its columns are the used
// standard form columns, the row slacks, one artificial column per row
// without a usable slack and the slack of a bounding row sum(y) + s = bound.
// Every row owns a unit column, so those columns are a feasible starting
// basis; the bounding row keeps the polyhedron bounded, so the simplex never
// follows a ray.
type tableau struct {
	a          *mat.Dense
	b          []float64
	cost       []float64
	artificial []int
	basis      []int
	boundCol   int
	bound      float64
	feasTol    float64
}

func newTableau(sf *standardForm, index []int, nUsed int) *tableau {
	nRows := len(sf.rows)
	signs := make([]float64, nRows)
	nSlack, nArt := 0, 0
	for i, r := range sf.rows {
		switch {
		case r.rhs > 0:
			signs[i] = 1
		case r.rhs < 0:
			signs[i] = -1
		case r.slack != 0:
			signs[i] = r.slack
		default:
			signs[i] = 1
		}
		if r.slack != 0 {
			nSlack++
		}
		if signs[i]*r.slack != 1 {
			nArt++
		}
	}

	m := nRows + 1
	n := nUsed + nSlack + nArt + 1
	t := &tableau{
		a:        mat.NewDense(m, n, nil),
		b:        make([]float64, m),
		cost:     make([]float64, n),
		basis:    make([]int, m),
		boundCol: n - 1,
	}
	for k, c := range sf.cost {
		if index[k] >= 0 {
			t.cost[index[k]] = c
		}
	}

	slackCol, artCol := nUsed, nUsed+nSlack
	sumRHS, maxRHS := 0.0, 0.0
	for i, r := range sf.rows {
		sign := signs[i]
		t.b[i] = sign * r.rhs
		sumRHS += t.b[i]
		maxRHS = math.Max(maxRHS, t.b[i])
		for k, v := range r.coef {
			t.a.Set(i, index[k], sign*v)
		}
		if r.slack != 0 {
			t.a.Set(i, slackCol, sign*r.slack)
			if sign*r.slack == 1 {
				t.basis[i] = slackCol
			}
			slackCol++
		}
		if sign*r.slack != 1 {
			t.a.Set(i, artCol, 1)
			t.basis[i] = artCol
			t.artificial = append(t.artificial, artCol)
			artCol++
		}
	}

	t.bound = boundingFactor * (float64(n) + sumRHS)
	for j := 0; j < nUsed; j++ {
		t.a.Set(nRows, j, 1)
	}
	t.a.Set(nRows, t.boundCol, 1)
	t.b[nRows] = t.bound
	t.basis[nRows] = t.boundCol
	t.feasTol = rowTolerance * (1 + maxRHS)
	return t
}

// solve runs lp.Simplex with a big-M cost on the artificial columns. Costs are
// scaled so the artificial cost is one. A positive artificial at the optimum
// retries with a larger M before the rows are declared infeasible.
func (t *tableau) solve(tol float64) ([]float64, problem.Status, error) {
	maxCost := 0.0
	for _, c := range t.cost {
		maxCost = math.Max(maxCost, math.Abs(c))
	}
	bigM := bigMFactor * math.Max(1, maxCost)

	c := make([]float64, len(t.cost))
	for attempt := 0; attempt < bigMAttempts; attempt++ {
		for j, v := range t.cost {
			c[j] = v / bigM
		}
		for _, j := range t.artificial {
			c[j] = 1
		}

		_, z, err := lp.Simplex(c, t.a, t.b, tol, t.basis)
		switch {
		case errors.Is(err, lp.ErrInfeasible):
			return nil, problem.StatusInfeasible, nil
		case err != nil:
			return nil, problem.StatusNotSolved, fmt.Errorf("simplex: %w", err)
		}

		residual := 0.0
		for _, j := range t.artificial {
			residual += z[j]
		}
		if residual <= t.feasTol {
			if z[t.boundCol] < unboundedFraction*t.bound {
				return nil, problem.StatusUnbounded, nil
			}
			return z, problem.StatusOptimal, nil
		}
		bigM *= bigMFactor
	}
	return nil, problem.StatusInfeasible, nil
}
