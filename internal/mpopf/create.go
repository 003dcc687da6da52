package mpopf

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/iwvelando/mpopf/internal/ref"
	"github.com/iwvelando/mpopf/pkg/powerdata"
	"github.com/iwvelando/mpopf/pkg/problem"
	"go.uber.org/zap"
)

// CreateModel loads the factory's case file and builds the multi-period
// model of its formulation.
func CreateModel(ctx context.Context, f Factory, opts ...Option) (*Model, error) {
	s, err := newSettings(opts)
	if err != nil {
		return nil, err
	}
	m, b, err := prepare(ctx, f, s)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	blk, err := b.addBlock(ctx, blockInput{weight: 1})
	if err != nil {
		return nil, fmt.Errorf("failed to build %s model: %w", f.Formulation(), err)
	}
	m.base = blk
	if err := m.finish(start, "mpopf.CreateModel"); err != nil {
		return nil, err
	}
	return m, nil
}

// nilFactory reports whether f is nil or holds a nil factory pointer.
func nilFactory(f Factory) bool {
	switch v := f.(type) {
	case nil:
		return true
	case *ACFactory:
		return v == nil
	case *DCFactory:
		return v == nil
	case *LinFactory:
		return v == nil
	case *NewACFactory:
		return v == nil
	}
	return false
}

// prepare loads the data, builds the reference and resolves the solver.
func prepare(ctx context.Context, f Factory, s *settings) (*Model, *builder, error) {
	if nilFactory(f) {
		return nil, nil, fmt.Errorf("%w: factory is nil", ErrInvalidOption)
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	opt, err := s.resolveSolver(f)
	if err != nil {
		return nil, nil, err
	}

	net, err := powerdata.Load(f.FilePath())
	if err != nil {
		return nil, nil, err
	}
	r, err := ref.GetRef(net)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build reference for %s: %w", f.FilePath(), err)
	}

	id := uuid.New()
	p := problem.New(fmt.Sprintf("%s-%s-%s", f.Formulation(), net.Name, id.String()[:8]))
	m := &Model{
		ID:          id,
		Formulation: f.Formulation(),
		Problem:     p,
		Data:        net,
		Ref:         r,
		TimePeriods: s.timePeriods,
		Factors:     s.factors,
		RampingCost: s.rampingCost,
		Solver:      opt,
		logger:      s.logger,
	}
	b := &builder{p: p, ref: r, formulation: f.Formulation(), s: s}
	return m, b, nil
}

func (m *Model) finish(start time.Time, op string) error {
	if err := m.Problem.Err(); err != nil {
		return fmt.Errorf("failed to build %s model: %w", m.Formulation, err)
	}
	stats := m.Problem.Stats()
	m.Logger().Info("model created",
		zap.String("op", op),
		zap.String("model_id", m.ID.String()),
		zap.String("formulation", m.Formulation),
		zap.String("case", m.Data.Name),
		zap.String("solver", m.Solver.Name()),
		zap.Int("time_periods", m.TimePeriods),
		zap.Int("variables", stats.Variables),
		zap.Int("fixed_variables", stats.FixedVariables),
		zap.Int("linear_constraints", stats.Linear),
		zap.Int("nonlinear_constraints", stats.Nonlinear),
		zap.Duration("duration", time.Since(start)),
	)
	return nil
}
