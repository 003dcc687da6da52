package mpopf

import (
	"errors"
	"fmt"
	"strings"

	"github.com/iwvelando/mpopf/pkg/constants"
	"github.com/iwvelando/mpopf/pkg/mathutil"
	"github.com/iwvelando/mpopf/pkg/solver"
	"go.uber.org/zap"
)

// ErrInvalidOption is returned for inconsistent scheduling parameters.
var ErrInvalidOption = errors.New("invalid model option")

// ModelType hints which kind of solver a model needs.
type ModelType string

// Model type hints.
const (
	ModelTypeAuto ModelType = "auto"
	ModelTypeLP   ModelType = "lp"
	ModelTypeNLP  ModelType = "nlp"
)

// ParseModelType accepts auto, lp and nlp in any case; empty means auto.
func ParseModelType(s string) (ModelType, error) {
	switch ModelType(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModelTypeAuto:
		return ModelTypeAuto, nil
	case ModelTypeLP:
		return ModelTypeLP, nil
	case ModelTypeNLP:
		return ModelTypeNLP, nil
	default:
		return "", fmt.Errorf("%w: unknown model type %q", ErrInvalidOption, s)
	}
}

type settings struct {
	timePeriods   int
	factors       []float64
	rampingCost   int
	modelType     ModelType
	solverOptions solver.Options
	logger        *zap.Logger
}

// Option configures model construction.
type Option func(*settings)

// WithTimePeriods sets the number of periods (default 1).
func WithTimePeriods(n int) Option {
	return func(s *settings) { s.timePeriods = n }
}

// WithFactors sets the per-period load scale factors. A single factor is
// applied to every period.
func WithFactors(factors ...float64) Option {
	return func(s *settings) { s.factors = append([]float64(nil), factors...) }
}

// WithRampingCost sets the cost per MW of generator output change between
// consecutive periods (default 0).
func WithRampingCost(c int) Option {
	return func(s *settings) { s.rampingCost = c }
}

// WithModelType sets the solver hint used when the factory has no solver.
func WithModelType(t ModelType) Option {
	return func(s *settings) { s.modelType = t }
}

// WithSolverOptions tunes the solver built from the model type hint.
func WithSolverOptions(opts solver.Options) Option {
	return func(s *settings) { s.solverOptions = opts }
}

// WithLogger sets the logger used during construction and by the solver.
func WithLogger(logger *zap.Logger) Option {
	return func(s *settings) { s.logger = logger }
}

func newSettings(opts []Option) (*settings, error) {
	s := &settings{
		timePeriods: constants.DefaultTimePeriods,
		factors:     []float64{constants.DefaultFactor},
		rampingCost: constants.DefaultRampingCost,
		modelType:   ModelTypeAuto,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.solverOptions.Logger == nil {
		s.solverOptions.Logger = s.logger
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *settings) validate() error {
	if s.timePeriods < 1 {
		return fmt.Errorf("%w: time periods must be at least 1, got %d", ErrInvalidOption, s.timePeriods)
	}
	if s.rampingCost < 0 {
		return fmt.Errorf("%w: ramping cost must be non-negative, got %d", ErrInvalidOption, s.rampingCost)
	}
	switch len(s.factors) {
	case 0:
		s.factors = []float64{constants.DefaultFactor}
	case 1, s.timePeriods:
	default:
		return fmt.Errorf("%w: %d factors given for %d time periods", ErrInvalidOption, len(s.factors), s.timePeriods)
	}
	for i, f := range s.factors {
		if !mathutil.IsFinite(f) || f < 0 {
			return fmt.Errorf("%w: factor %d must be finite and non-negative, got %v", ErrInvalidOption, i+1, f)
		}
	}
	if len(s.factors) != s.timePeriods {
		broadcast := make([]float64, s.timePeriods)
		for i := range broadcast {
			broadcast[i] = s.factors[0]
		}
		s.factors = broadcast
	}
	if _, err := ParseModelType(string(s.modelType)); err != nil {
		return err
	}
	return nil
}

// resolveSolver returns the factory's solver or builds one from the hint.
func (s *settings) resolveSolver(f Factory) (solver.Solver, error) {
	linear := IsLinearFormulation(f.Formulation())
	if s.modelType == ModelTypeLP && !linear {
		return nil, fmt.Errorf("%w: model type lp requested for nonlinear formulation %s", ErrInvalidOption, f.Formulation())
	}
	if opt := f.Optimizer(); opt != nil {
		return opt, nil
	}
	switch s.modelType {
	case ModelTypeLP:
		return solver.NewSimplex(s.solverOptions), nil
	case ModelTypeNLP:
		return solver.NewSLP(s.solverOptions), nil
	default:
		return solver.NewAuto(s.solverOptions), nil
	}
}
