// Package powerdata defines the raw power-system case data and loaders for
// MATPOWER, JSON and YAML case files.
package powerdata

import (
	"errors"
	"fmt"
	"math"
)

// Bus types, following MATPOWER.
const (
	BusPQ       = 1
	BusPV       = 2
	BusRef      = 3
	BusIsolated = 4
)

// Generator cost models, following MATPOWER.
const (
	CostPiecewiseLinear = 1
	CostPolynomial      = 2
)

// convexityTolerance is the relative slope drop allowed between consecutive
// piecewise-linear cost segments.
const convexityTolerance = 1e-9

// ErrInvalidNetwork wraps every validation failure.
var ErrInvalidNetwork = errors.New("invalid network")

// Network is a power-system case in physical units (MW, MVAr, degrees).
type Network struct {
	Name       string      `json:"name" yaml:"name"`
	BaseMVA    float64     `json:"baseMVA" yaml:"baseMVA"`
	Buses      []Bus       `json:"buses" yaml:"buses"`
	Generators []Generator `json:"generators" yaml:"generators"`
	Branches   []Branch    `json:"branches" yaml:"branches"`
}

// Bus is a network node with its fixed demand and shunt.
type Bus struct {
	ID     int     `json:"id" yaml:"id"`
	Type   int     `json:"type" yaml:"type"`
	Pd     float64 `json:"pd" yaml:"pd"`
	Qd     float64 `json:"qd" yaml:"qd"`
	Gs     float64 `json:"gs" yaml:"gs"`
	Bs     float64 `json:"bs" yaml:"bs"`
	Vm     float64 `json:"vm" yaml:"vm"`
	Va     float64 `json:"va" yaml:"va"`
	BaseKV float64 `json:"baseKV" yaml:"baseKV"`
	Vmax   float64 `json:"vmax" yaml:"vmax"`
	Vmin   float64 `json:"vmin" yaml:"vmin"`
}

// Generator is a dispatchable unit. RampRate is in MW per period; zero means
// the unit can move freely between periods.
type Generator struct {
	ID       int     `json:"id" yaml:"id"`
	Bus      int     `json:"bus" yaml:"bus"`
	Pg       float64 `json:"pg" yaml:"pg"`
	Qg       float64 `json:"qg" yaml:"qg"`
	Qmax     float64 `json:"qmax" yaml:"qmax"`
	Qmin     float64 `json:"qmin" yaml:"qmin"`
	Vg       float64 `json:"vg" yaml:"vg"`
	Status   int     `json:"status" yaml:"status"`
	Pmax     float64 `json:"pmax" yaml:"pmax"`
	Pmin     float64 `json:"pmin" yaml:"pmin"`
	RampRate float64 `json:"rampRate,omitempty" yaml:"rampRate,omitempty"`
	Cost     Cost    `json:"cost" yaml:"cost"`
}

// Cost is a MATPOWER gencost row. Polynomial coefficients are ordered from
// the highest degree to the constant; piecewise-linear costs list
// x1, y1, x2, y2, ... in MW and $/h.
type Cost struct {
	Model        int       `json:"model" yaml:"model"`
	Startup      float64   `json:"startup,omitempty" yaml:"startup,omitempty"`
	Shutdown     float64   `json:"shutdown,omitempty" yaml:"shutdown,omitempty"`
	Coefficients []float64 `json:"coefficients" yaml:"coefficients"`
}

// Branch is a line or transformer modelled as a pi section.
type Branch struct {
	ID     int     `json:"id" yaml:"id"`
	From   int     `json:"from" yaml:"from"`
	To     int     `json:"to" yaml:"to"`
	R      float64 `json:"r" yaml:"r"`
	X      float64 `json:"x" yaml:"x"`
	B      float64 `json:"b" yaml:"b"`
	RateA  float64 `json:"rateA" yaml:"rateA"`
	Tap    float64 `json:"tap" yaml:"tap"`
	Shift  float64 `json:"shift" yaml:"shift"`
	Status int     `json:"status" yaml:"status"`
	AngMin float64 `json:"angmin" yaml:"angmin"`
	AngMax float64 `json:"angmax" yaml:"angmax"`
}

// Bus returns the bus with the given id.
func (n *Network) Bus(id int) (Bus, bool) {
	for _, b := range n.Buses {
		if b.ID == id {
			return b, true
		}
	}
	return Bus{}, false
}

// TotalLoad returns the sum of active and reactive demand.
func (n *Network) TotalLoad() (float64, float64) {
	var pd, qd float64
	for _, b := range n.Buses {
		if b.Type == BusIsolated {
			continue
		}
		pd += b.Pd
		qd += b.Qd
	}
	return pd, qd
}

// Validate checks the structural consistency of the case.
func (n *Network) Validate() error {
	if n.BaseMVA <= 0 || math.IsNaN(n.BaseMVA) {
		return fmt.Errorf("%w: baseMVA must be positive, got %g", ErrInvalidNetwork, n.BaseMVA)
	}
	if len(n.Buses) == 0 {
		return fmt.Errorf("%w: no buses defined", ErrInvalidNetwork)
	}

	buses := make(map[int]bool, len(n.Buses))
	for _, b := range n.Buses {
		if buses[b.ID] {
			return fmt.Errorf("%w: duplicate bus id %d", ErrInvalidNetwork, b.ID)
		}
		buses[b.ID] = true
		if b.Type < BusPQ || b.Type > BusIsolated {
			return fmt.Errorf("%w: bus %d has unknown type %d", ErrInvalidNetwork, b.ID, b.Type)
		}
		if b.Vmin > b.Vmax {
			return fmt.Errorf("%w: bus %d vmin %g exceeds vmax %g", ErrInvalidNetwork, b.ID, b.Vmin, b.Vmax)
		}
	}

	gens := make(map[int]bool, len(n.Generators))
	for _, g := range n.Generators {
		if gens[g.ID] {
			return fmt.Errorf("%w: duplicate generator id %d", ErrInvalidNetwork, g.ID)
		}
		gens[g.ID] = true
		if !buses[g.Bus] {
			return fmt.Errorf("%w: generator %d references unknown bus %d", ErrInvalidNetwork, g.ID, g.Bus)
		}
		if g.Pmin > g.Pmax {
			return fmt.Errorf("%w: generator %d pmin %g exceeds pmax %g", ErrInvalidNetwork, g.ID, g.Pmin, g.Pmax)
		}
		if g.Qmin > g.Qmax {
			return fmt.Errorf("%w: generator %d qmin %g exceeds qmax %g", ErrInvalidNetwork, g.ID, g.Qmin, g.Qmax)
		}
		if g.RampRate < 0 {
			return fmt.Errorf("%w: generator %d has negative ramp rate", ErrInvalidNetwork, g.ID)
		}
		if err := g.Cost.validate(); err != nil {
			return fmt.Errorf("%w: generator %d: %v", ErrInvalidNetwork, g.ID, err)
		}
	}

	branches := make(map[int]bool, len(n.Branches))
	for _, br := range n.Branches {
		if branches[br.ID] {
			return fmt.Errorf("%w: duplicate branch id %d", ErrInvalidNetwork, br.ID)
		}
		branches[br.ID] = true
		if !buses[br.From] || !buses[br.To] {
			return fmt.Errorf("%w: branch %d connects unknown bus (%d-%d)", ErrInvalidNetwork, br.ID, br.From, br.To)
		}
		if br.From == br.To {
			return fmt.Errorf("%w: branch %d is a self loop on bus %d", ErrInvalidNetwork, br.ID, br.From)
		}
		if br.R == 0 && br.X == 0 {
			return fmt.Errorf("%w: branch %d has zero impedance", ErrInvalidNetwork, br.ID)
		}
		if br.RateA < 0 {
			return fmt.Errorf("%w: branch %d has negative rating", ErrInvalidNetwork, br.ID)
		}
	}
	return nil
}

func (c Cost) validate() error {
	switch c.Model {
	case CostPolynomial:
		if len(c.Coefficients) > 3 {
			return fmt.Errorf("polynomial cost of degree %d is not supported", len(c.Coefficients)-1)
		}
		if len(c.Coefficients) == 3 && c.Coefficients[0] < 0 {
			return fmt.Errorf("quadratic cost coefficient must be non-negative")
		}
	case CostPiecewiseLinear:
		if len(c.Coefficients) < 4 || len(c.Coefficients)%2 != 0 {
			return fmt.Errorf("piecewise linear cost needs at least two (x, y) points")
		}
		slope := math.Inf(-1)
		for i := 2; i < len(c.Coefficients); i += 2 {
			dx := c.Coefficients[i] - c.Coefficients[i-2]
			if dx <= 0 {
				return fmt.Errorf("piecewise linear cost points must increase in MW")
			}
			m := (c.Coefficients[i+1] - c.Coefficients[i-1]) / dx
			if m < slope-convexityTolerance*math.Max(1, math.Abs(slope)) {
				return fmt.Errorf("piecewise linear cost must be convex, segment %d slope %v falls below %v", i/2, m, slope)
			}
			slope = m
		}
	case 0:
		if len(c.Coefficients) != 0 {
			return fmt.Errorf("cost model is required when coefficients are given")
		}
	default:
		return fmt.Errorf("unknown cost model %d", c.Model)
	}
	return nil
}

// Polynomial returns the quadratic, linear and constant coefficients of a
// polynomial cost, padding missing orders with zero.
func (c Cost) Polynomial() (c2, c1, c0 float64) {
	coef := c.Coefficients
	switch len(coef) {
	case 3:
		return coef[0], coef[1], coef[2]
	case 2:
		return 0, coef[0], coef[1]
	case 1:
		return 0, 0, coef[0]
	default:
		return 0, 0, 0
	}
}

// Points returns the (MW, $/h) breakpoints of a piecewise-linear cost.
func (c Cost) Points() [][2]float64 {
	pts := make([][2]float64, 0, len(c.Coefficients)/2)
	for i := 0; i+1 < len(c.Coefficients); i += 2 {
		pts = append(pts, [2]float64{c.Coefficients[i], c.Coefficients[i+1]})
	}
	return pts
}
