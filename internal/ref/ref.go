// Package ref builds the indexed, per-unit view of a power network that the
// model formulations are written against.
package ref

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/iwvelando/mpopf/pkg/constants"
	"github.com/iwvelando/mpopf/pkg/mathutil"
	"github.com/iwvelando/mpopf/pkg/powerdata"
)

var (
	// ErrNoReferenceBus is returned when no active bus has type 3.
	ErrNoReferenceBus = errors.New("no reference bus")

	// ErrMultipleReferenceBuses is returned when more than one active bus has type 3.
	ErrMultipleReferenceBuses = errors.New("multiple reference buses")

	// ErrZeroImpedance is returned for an active branch with r = x = 0.
	ErrZeroImpedance = errors.New("zero impedance branch")
)

// Bus is an active bus in per unit. Va is in radians.
type Bus struct {
	ID   int
	Type int
	Pd   float64
	Qd   float64
	Gs   float64
	Bs   float64
	Vm   float64
	Va   float64
	Vmin float64
	Vmax float64
}

// Gen is an active generator in per unit. Cost coefficients apply to the
// per-unit output; Points are (p.u., $/h) breakpoints of a piecewise-linear
// cost. RampLimit is +Inf for units without a ramp limit.
type Gen struct {
	ID        int
	Bus       int
	Pmin      float64
	Pmax      float64
	Qmin      float64
	Qmax      float64
	RampLimit float64
	CostModel int
	C2        float64
	C1        float64
	C0        float64
	Points    [][2]float64
}

// Branch is an active pi-model branch in per unit. Shift and the angle
// difference limits are in radians; unconstrained limits are infinite.
type Branch struct {
	ID     int
	From   int
	To     int
	R      float64
	X      float64
	G      float64
	B      float64
	GFr    float64
	BFr    float64
	GTo    float64
	BTo    float64
	Tap    float64
	Shift  float64
	Rate   float64
	AngMin float64
	AngMax float64
}

// Arc is a directed end of a branch.
type Arc struct {
	Branch int
	From   int
	To     int
}

// Ref is the indexed, per-unit view of a network.
type Ref struct {
	Name      string
	BaseMVA   float64
	Buses     map[int]Bus
	Gens      map[int]Gen
	Branches  map[int]Branch
	BusIDs    []int
	GenIDs    []int
	BranchIDs []int
	// Arcs lists every from arc in branch order followed by every to arc.
	Arcs     []Arc
	ArcsFrom []Arc
	ArcsTo   []Arc
	BusArcs  map[int][]Arc
	BusGens  map[int][]int
	RefBuses []int
}

// GetRef filters out-of-service components and converts the network to per
// unit.
func GetRef(n *powerdata.Network) (*Ref, error) {
	if n == nil {
		return nil, fmt.Errorf("network is nil")
	}
	if n.BaseMVA <= 0 {
		return nil, fmt.Errorf("baseMVA must be positive, got %g", n.BaseMVA)
	}
	base := n.BaseMVA

	r := &Ref{
		Name:     n.Name,
		BaseMVA:  base,
		Buses:    make(map[int]Bus),
		Gens:     make(map[int]Gen),
		Branches: make(map[int]Branch),
		BusArcs:  make(map[int][]Arc),
		BusGens:  make(map[int][]int),
	}

	for _, b := range n.Buses {
		if b.Type == powerdata.BusIsolated {
			continue
		}
		r.Buses[b.ID] = Bus{
			ID:   b.ID,
			Type: b.Type,
			Pd:   b.Pd / base,
			Qd:   b.Qd / base,
			Gs:   b.Gs / base,
			Bs:   b.Bs / base,
			Vm:   b.Vm,
			Va:   mathutil.Radians(b.Va),
			Vmin: b.Vmin,
			Vmax: b.Vmax,
		}
		r.BusIDs = append(r.BusIDs, b.ID)
		r.BusArcs[b.ID] = nil
		r.BusGens[b.ID] = nil
		if b.Type == powerdata.BusRef {
			r.RefBuses = append(r.RefBuses, b.ID)
		}
	}
	sort.Ints(r.BusIDs)
	sort.Ints(r.RefBuses)
	switch len(r.RefBuses) {
	case 0:
		return nil, ErrNoReferenceBus
	case 1:
	default:
		return nil, fmt.Errorf("%w: %v", ErrMultipleReferenceBuses, r.RefBuses)
	}

	for _, g := range n.Generators {
		if g.Status == 0 {
			continue
		}
		if _, ok := r.Buses[g.Bus]; !ok {
			continue
		}
		gen := Gen{
			ID:        g.ID,
			Bus:       g.Bus,
			Pmin:      g.Pmin / base,
			Pmax:      g.Pmax / base,
			Qmin:      g.Qmin / base,
			Qmax:      g.Qmax / base,
			RampLimit: constants.Inf,
			CostModel: g.Cost.Model,
		}
		if g.RampRate > 0 {
			gen.RampLimit = g.RampRate / base
		}
		switch g.Cost.Model {
		case powerdata.CostPolynomial:
			c2, c1, c0 := g.Cost.Polynomial()
			gen.C2, gen.C1, gen.C0 = c2*base*base, c1*base, c0
		case powerdata.CostPiecewiseLinear:
			for _, pt := range g.Cost.Points() {
				gen.Points = append(gen.Points, [2]float64{pt[0] / base, pt[1]})
			}
		}
		r.Gens[g.ID] = gen
		r.GenIDs = append(r.GenIDs, g.ID)
	}
	sort.Ints(r.GenIDs)
	for _, id := range r.GenIDs {
		bus := r.Gens[id].Bus
		r.BusGens[bus] = append(r.BusGens[bus], id)
	}

	for _, br := range n.Branches {
		if br.Status == 0 {
			continue
		}
		_, okFrom := r.Buses[br.From]
		_, okTo := r.Buses[br.To]
		if !okFrom || !okTo {
			continue
		}
		branch, err := convertBranch(br, base)
		if err != nil {
			return nil, err
		}
		r.Branches[br.ID] = branch
		r.BranchIDs = append(r.BranchIDs, br.ID)
	}
	sort.Ints(r.BranchIDs)

	for _, id := range r.BranchIDs {
		br := r.Branches[id]
		r.ArcsFrom = append(r.ArcsFrom, Arc{Branch: id, From: br.From, To: br.To})
		r.ArcsTo = append(r.ArcsTo, Arc{Branch: id, From: br.To, To: br.From})
	}
	r.Arcs = append(append(r.Arcs, r.ArcsFrom...), r.ArcsTo...)
	for _, a := range r.Arcs {
		r.BusArcs[a.From] = append(r.BusArcs[a.From], a)
	}
	return r, nil
}

func convertBranch(br powerdata.Branch, base float64) (Branch, error) {
	z2 := br.R*br.R + br.X*br.X
	if z2 == 0 {
		return Branch{}, fmt.Errorf("%w: branch %d", ErrZeroImpedance, br.ID)
	}
	tap := br.Tap
	if tap == 0 {
		tap = 1
	}
	out := Branch{
		ID:     br.ID,
		From:   br.From,
		To:     br.To,
		R:      br.R,
		X:      br.X,
		G:      br.R / z2,
		B:      -br.X / z2,
		BFr:    br.B / 2,
		BTo:    br.B / 2,
		Tap:    tap,
		Shift:  mathutil.Radians(br.Shift),
		Rate:   constants.Inf,
		AngMin: math.Inf(-1),
		AngMax: constants.Inf,
	}
	if br.RateA > 0 {
		out.Rate = br.RateA / base
	}
	if br.AngMin != 0 || br.AngMax != 0 {
		if br.AngMin > -constants.MaxAngleDifferenceDeg {
			out.AngMin = mathutil.Radians(br.AngMin)
		}
		if br.AngMax < constants.MaxAngleDifferenceDeg {
			out.AngMax = mathutil.Radians(br.AngMax)
		}
	}
	return out, nil
}

// RefBus returns the id of the reference bus.
func (r *Ref) RefBus() int {
	return r.RefBuses[0]
}

// TotalLoad returns the per-unit active and reactive demand of active buses.
func (r *Ref) TotalLoad() (float64, float64) {
	var pd, qd float64
	for _, id := range r.BusIDs {
		pd += r.Buses[id].Pd
		qd += r.Buses[id].Qd
	}
	return pd, qd
}
