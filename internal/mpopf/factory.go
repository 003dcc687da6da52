// Package mpopf builds multi-period optimal power flow models.
//
// A Factory pairs a case file with a formulation and an optional solver.
// CreateModel, CreateModelUncertainty and CreateModelCheckFeasibility turn a
// factory into a model whose problem can then be handed to the optimizer.
package mpopf

import (
	"fmt"
	"strings"

	"github.com/iwvelando/mpopf/pkg/constants"
	"github.com/iwvelando/mpopf/pkg/solver"
)

// Factory produces models of a single formulation from a case file.
type Factory interface {
	// FilePath is the case file the model is built from.
	FilePath() string
	// Optimizer is the solver bound to the model; nil selects one from the
	// model type hint.
	Optimizer() solver.Solver
	// Formulation names the power flow formulation.
	Formulation() string
}

type factory struct {
	path   string
	solver solver.Solver
}

func (f factory) FilePath() string {
	return f.path
}

func (f factory) Optimizer() solver.Solver {
	return f.solver
}

// ACFactory builds the polar AC formulation.
type ACFactory struct{ factory }

// DCFactory builds the DC (B-theta) approximation.
type DCFactory struct{ factory }

// LinFactory builds the first order expansion of the AC formulation at flat
// start.
type LinFactory struct{ factory }

// NewACFactory builds the AC formulation with explicit arc flow variables.
// It is the only factory accepted by CreateModelCheckFeasibility.
type NewACFactory struct{ factory }

// NewAC returns an ACFactory. A nil solver defers the choice to the model
// type hint.
func NewAC(path string, s solver.Solver) *ACFactory {
	return &ACFactory{factory{path: path, solver: s}}
}

// NewDC returns a DCFactory.
func NewDC(path string, s solver.Solver) *DCFactory {
	return &DCFactory{factory{path: path, solver: s}}
}

// NewLin returns a LinFactory.
func NewLin(path string, s solver.Solver) *LinFactory {
	return &LinFactory{factory{path: path, solver: s}}
}

// NewNewAC returns a NewACFactory.
func NewNewAC(path string, s solver.Solver) *NewACFactory {
	return &NewACFactory{factory{path: path, solver: s}}
}

// Formulation implements Factory.
func (*ACFactory) Formulation() string { return constants.FormulationAC }

// Formulation implements Factory.
func (*DCFactory) Formulation() string { return constants.FormulationDC }

// Formulation implements Factory.
func (*LinFactory) Formulation() string { return constants.FormulationLin }

// Formulation implements Factory.
func (*NewACFactory) Formulation() string { return constants.FormulationNewAC }

// NewFactory returns the factory for a formulation name.
func NewFactory(formulation, path string, s solver.Solver) (Factory, error) {
	switch strings.ToLower(strings.TrimSpace(formulation)) {
	case constants.FormulationAC:
		return NewAC(path, s), nil
	case constants.FormulationDC:
		return NewDC(path, s), nil
	case constants.FormulationLin:
		return NewLin(path, s), nil
	case constants.FormulationNewAC:
		return NewNewAC(path, s), nil
	default:
		return nil, fmt.Errorf("%w: unknown formulation %q", ErrInvalidOption, formulation)
	}
}

// IsLinearFormulation reports whether a formulation produces a linear problem.
func IsLinearFormulation(formulation string) bool {
	return formulation == constants.FormulationDC || formulation == constants.FormulationLin
}
