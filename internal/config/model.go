package config

import (
	"fmt"

	"github.com/iwvelando/mpopf/internal/mpopf"
	"github.com/iwvelando/mpopf/pkg/solver"
	"go.uber.org/zap"
)

// Factory returns the model factory for the configured case and
// formulation. A named solver is bound to the factory; otherwise the model
// type hint picks one.
func (c *Configuration) Factory(logger *zap.Logger) (mpopf.Factory, error) {
	var s solver.Solver
	if c.Solver.Name != "" {
		opts := c.Solver.Options()
		opts.Logger = logger
		var err error
		s, err = solver.New(c.Solver.Name, opts)
		if err != nil {
			return nil, err
		}
	}
	return mpopf.NewFactory(c.Formulation, c.Case, s)
}

// FeasibilityFactory returns the NewAC factory for the feasibility check.
func (c *Configuration) FeasibilityFactory(logger *zap.Logger) *mpopf.NewACFactory {
	opts := c.Solver.Options()
	opts.Logger = logger
	return mpopf.NewNewAC(c.Case, solver.NewSLP(opts))
}

// ModelOptions returns the scheduling options of the configuration.
func (c *Configuration) ModelOptions(logger *zap.Logger) ([]mpopf.Option, error) {
	mt, err := mpopf.ParseModelType(c.Solver.ModelType)
	if err != nil {
		return nil, fmt.Errorf("invalid solver configuration: %w", err)
	}
	return []mpopf.Option{
		mpopf.WithTimePeriods(c.Schedule.TimePeriods),
		mpopf.WithFactors(c.Schedule.Factors...),
		mpopf.WithRampingCost(c.Schedule.RampingCost),
		mpopf.WithModelType(mt),
		mpopf.WithSolverOptions(c.Solver.Options()),
		mpopf.WithLogger(logger),
	}, nil
}
