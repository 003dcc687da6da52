// Package optimizer solves built models and reports their outcome.
package optimizer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/iwvelando/mpopf/internal/mpopf"
	"github.com/iwvelando/mpopf/pkg/format"
	"github.com/iwvelando/mpopf/pkg/optimization"
	"github.com/iwvelando/mpopf/pkg/problem"
	"github.com/iwvelando/mpopf/pkg/solver"
	"go.uber.org/zap"
)

// Runner solves one model.
type Runner struct {
	logger *zap.Logger
	model  *mpopf.Model
	scen   []string
}

// NewRunner constructs a Runner for the provided model.
func NewRunner(logger *zap.Logger, m mpopf.AbstractModel) (*Runner, error) {
	if m == nil || m.Base() == nil {
		return nil, fmt.Errorf("model cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Runner{logger: logger, model: m.Base()}
	if mu, ok := m.(*mpopf.ModelUncertainty); ok {
		r.scen = mu.ScenarioNames()
	}
	return r, nil
}

// Run invokes the model's solver. The outcome is stored in the model's
// problem; an unsuccessful status is reported in the summary, not as an
// error.
func (r *Runner) Run(ctx context.Context) (*solver.Result, optimization.Summary, error) {
	m := r.model
	if m.Solver == nil {
		return nil, optimization.Summary{}, fmt.Errorf("model %s has no solver", m.ID)
	}

	start := time.Now()
	res, err := m.Solver.Solve(ctx, m.Problem)
	if err != nil {
		r.logger.Error("optimization failed",
			zap.String("op", "optimizer.Run"),
			zap.String("model_id", m.ID.String()),
			zap.Error(err),
		)
		return nil, optimization.Summary{}, fmt.Errorf("failed to optimize model %s: %w", m.ID, err)
	}

	summary := optimization.Summary{
		ModelID:      m.ID.String(),
		Case:         m.Data.Name,
		Formulation:  m.Formulation,
		Solver:       res.Solver,
		Status:       res.Status.String(),
		Objective:    res.Objective,
		Iterations:   res.Iterations,
		Violation:    res.Violation,
		TimePeriods:  m.TimePeriods,
		Scenarios:    r.scen,
		Duration:     time.Since(start).Round(time.Millisecond).String(),
		Converged:    res.Status == problem.StatusOptimal,
		ObjectiveFmt: format.Cost(res.Objective),
	}
	if !summary.Converged {
		summary.Notes = append(summary.Notes, fmt.Sprintf("solver finished with status %s", res.Status))
	}

	r.logger.Info("optimization finished",
		zap.String("op", "optimizer.Run"),
		zap.String("model_id", summary.ModelID),
		zap.String("solver", summary.Solver),
		zap.String("status", summary.Status),
		zap.Float64("objective", summary.Objective),
		zap.Int("iterations", summary.Iterations),
		zap.Float64("violation", summary.Violation),
		zap.String("duration", summary.Duration),
	)
	return res, summary, nil
}

// OptimizeModel solves the model and prints its optimal cost to w.
func OptimizeModel(ctx context.Context, logger *zap.Logger, m mpopf.AbstractModel, w io.Writer) (optimization.Summary, error) {
	r, err := NewRunner(logger, m)
	if err != nil {
		return optimization.Summary{}, err
	}
	_, summary, err := r.Run(ctx)
	if err != nil {
		return optimization.Summary{}, err
	}
	if err := printCost(w, summary); err != nil {
		return summary, err
	}
	return summary, nil
}

// OptimizeModelWithPlot solves the model, prints its optimal cost to w and
// saves the objective and constraint violation trajectory to path. The image
// format follows the file extension.
func OptimizeModelWithPlot(ctx context.Context, logger *zap.Logger, m mpopf.AbstractModel, w io.Writer, path string) (optimization.Summary, error) {
	if path == "" {
		return optimization.Summary{}, errors.New("plot path cannot be empty")
	}
	r, err := NewRunner(logger, m)
	if err != nil {
		return optimization.Summary{}, err
	}
	res, summary, err := r.Run(ctx)
	if err != nil {
		return optimization.Summary{}, err
	}
	if err := printCost(w, summary); err != nil {
		return summary, err
	}
	if err := SaveTrajectoryPlot(res.Trajectory, summary, path); err != nil {
		return summary, err
	}
	summary.PlotFile = path
	r.logger.Debug("trajectory plot saved",
		zap.String("op", "optimizer.OptimizeModelWithPlot"),
		zap.String("path", path),
		zap.Int("points", len(res.Trajectory)),
	)
	return summary, nil
}

func printCost(w io.Writer, s optimization.Summary) error {
	if w == nil {
		return nil
	}
	if !s.Converged {
		_, err := fmt.Fprintf(w, "Solver status: %s\n", s.Status)
		return err
	}
	_, err := fmt.Fprintf(w, "Optimal cost: %v\n", s.Objective)
	return err
}
