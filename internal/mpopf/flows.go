package mpopf

import (
	"math"
	"sort"

	"github.com/iwvelando/mpopf/internal/ref"
	"github.com/iwvelando/mpopf/pkg/problem"
)

// arcFlow evaluates the pi-model power leaving bus i on an arc towards bus
// j. With theta = va_i - va_j - sigma*shift (sigma = 1 on the from end, -1 on
// the to end):
//
//	p = gs*vi^2 - k*vi*vj*(g*cos(theta) + b*sin(theta))
//	q = -bs*vi^2 + k*vi*vj*(b*cos(theta) - g*sin(theta))
type arcFlow struct {
	g, b   float64
	gs, bs float64
	k      float64
	shift  float64
}

func newArcFlow(br ref.Branch, a ref.Arc) arcFlow {
	tm2 := br.Tap * br.Tap
	f := arcFlow{g: br.G, b: br.B, k: 1 / br.Tap}
	if a.From == br.From {
		f.gs = (br.G + br.GFr) / tm2
		f.bs = (br.B + br.BFr) / tm2
		f.shift = br.Shift
	} else {
		f.gs = br.G + br.GTo
		f.bs = br.B + br.BTo
		f.shift = -br.Shift
	}
	return f
}

// eval returns p, q and their gradients with respect to (vi, vai, vj, vaj).
func (f arcFlow) eval(vi, vai, vj, vaj float64) (p, q float64, dp, dq [4]float64) {
	theta := vai - vaj - f.shift
	c, s := math.Cos(theta), math.Sin(theta)
	pc := f.g*c + f.b*s
	qc := f.b*c - f.g*s
	vv := f.k * vi * vj

	p = f.gs*vi*vi - vv*pc
	q = -f.bs*vi*vi + vv*qc

	dpTheta := -vv * (f.b*c - f.g*s)
	dqTheta := -vv * (f.b*s + f.g*c)
	dp = [4]float64{2*f.gs*vi - f.k*vj*pc, dpTheta, -f.k * vi * pc, -dpTheta}
	dq = [4]float64{-2*f.bs*vi + f.k*vj*qc, dqTheta, f.k * vi * qc, -dqTheta}
	return p, q, dp, dq
}

// linearExpr accumulates an affine expression over problem variables.
type linearExpr struct {
	coef     map[int]float64
	constant float64
}

func newLinearExpr() *linearExpr {
	return &linearExpr{coef: make(map[int]float64)}
}

func (e *linearExpr) add(v int, c float64) {
	e.coef[v] += c
}

// terms returns the non-zero terms ordered by variable index.
func (e *linearExpr) terms() []problem.Term {
	out := make([]problem.Term, 0, len(e.coef))
	for v, c := range e.coef {
		if c != 0 {
			out = append(out, problem.Term{Var: v, Coef: c})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Var < out[j].Var })
	return out
}

// localVars maps problem variables to positions in a nonlinear constraint's
// argument vector.
type localVars struct {
	vars []int
	pos  map[int]int
}

func newLocalVars() *localVars {
	return &localVars{pos: make(map[int]int)}
}

func (l *localVars) index(v int) int {
	if i, ok := l.pos[v]; ok {
		return i
	}
	l.pos[v] = len(l.vars)
	l.vars = append(l.vars, v)
	return len(l.vars) - 1
}

// linearized returns the first order expansion of p and q at flat start
// (vi = vj = 1, vai = vaj = 0) evaluated at the given point.
func (f arcFlow) linearized(vi, vai, vj, vaj float64) (p, q float64) {
	p0, q0, dp, dq := f.eval(1, 0, 1, 0)
	dx := [4]float64{vi - 1, vai, vj - 1, vaj}
	p, q = p0, q0
	for i := range dx {
		p += dp[i] * dx[i]
		q += dq[i] * dx[i]
	}
	return p, q
}
