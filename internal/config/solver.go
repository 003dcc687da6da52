package config

import (
	"fmt"
	"strings"

	"github.com/iwvelando/mpopf/internal/mpopf"
	"github.com/iwvelando/mpopf/pkg/constants"
	"github.com/iwvelando/mpopf/pkg/solver"
	"github.com/iwvelando/mpopf/pkg/validation"
)

// SolverConfig selects and tunes the optimizer. An empty name defers the
// choice to the model type hint.
type SolverConfig struct {
	Name          string  `yaml:"name,omitempty" mapstructure:"name"`
	ModelType     string  `yaml:"modelType,omitempty" mapstructure:"modelType"`
	Tolerance     float64 `yaml:"tolerance,omitempty" mapstructure:"tolerance"`
	MaxIterations int     `yaml:"maxIterations,omitempty" mapstructure:"maxIterations"`
	TrustRadius   float64 `yaml:"trustRadius,omitempty" mapstructure:"trustRadius"`
}

// ScheduleConfig describes the time horizon.
type ScheduleConfig struct {
	TimePeriods int       `yaml:"timePeriods,omitempty" mapstructure:"timePeriods"`
	Factors     []float64 `yaml:"factors,omitempty" mapstructure:"factors"`
	RampingCost int       `yaml:"rampingCost,omitempty" mapstructure:"rampingCost"`
}

// Normalize ensures defaults and canonical values are applied before validation.
func (s *SolverConfig) Normalize() {
	if s == nil {
		return
	}
	s.Name = strings.ToLower(strings.TrimSpace(s.Name))
	s.ModelType = strings.ToLower(strings.TrimSpace(s.ModelType))
	if s.ModelType == "" {
		s.ModelType = string(mpopf.ModelTypeAuto)
	}
	if s.Tolerance <= 0 {
		s.Tolerance = constants.DefaultSolverTolerance
	}
	if s.MaxIterations <= 0 {
		s.MaxIterations = constants.DefaultSolverMaxIterations
	}
	if s.TrustRadius <= 0 {
		s.TrustRadius = constants.DefaultTrustRadius
	}
}

// Validate returns an error when the solver cannot handle the formulation.
func (s *SolverConfig) Validate(formulation string) error {
	if s == nil {
		return fmt.Errorf("solver configuration cannot be nil")
	}
	s.Normalize()

	switch s.Name {
	case "", constants.SolverAuto, constants.SolverSLP:
	case constants.SolverSimplex:
		if !mpopf.IsLinearFormulation(formulation) {
			return fmt.Errorf("solver %s cannot handle the nonlinear %s formulation", s.Name, formulation)
		}
	default:
		return fmt.Errorf("solver %q is not supported", s.Name)
	}
	if _, err := mpopf.ParseModelType(s.ModelType); err != nil {
		return err
	}
	if s.ModelType == string(mpopf.ModelTypeLP) && !mpopf.IsLinearFormulation(formulation) {
		return fmt.Errorf("model type lp cannot be used with the nonlinear %s formulation", formulation)
	}
	return nil
}

// Options converts the settings. The logger is left to the model.
func (s SolverConfig) Options() solver.Options {
	return solver.Options{
		Tolerance:     s.Tolerance,
		MaxIterations: s.MaxIterations,
		TrustRadius:   s.TrustRadius,
	}
}

// Normalize ensures defaults are applied before validation.
func (s *ScheduleConfig) Normalize() {
	if s == nil {
		return
	}
	if s.TimePeriods <= 0 {
		s.TimePeriods = constants.DefaultTimePeriods
	}
	if len(s.Factors) == 0 {
		s.Factors = []float64{constants.DefaultFactor}
	}
}

// Validate returns an error when the horizon is inconsistent.
func (s *ScheduleConfig) Validate() error {
	if s == nil {
		return fmt.Errorf("schedule configuration cannot be nil")
	}
	s.Normalize()

	return validation.ValidateSchedule(s.TimePeriods, s.Factors, s.RampingCost)
}
