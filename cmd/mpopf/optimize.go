package main

import (
	"context"
	"fmt"
	"io"

	"github.com/iwvelando/mpopf/internal/config"
	"github.com/iwvelando/mpopf/internal/mpopf"
	"github.com/iwvelando/mpopf/internal/optimizer"
	"github.com/iwvelando/mpopf/pkg/constants"
	"github.com/iwvelando/mpopf/pkg/optimization"
	"github.com/iwvelando/mpopf/pkg/output"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type optimizeFlags struct {
	formulation  string
	periods      int
	outputFormat string
	plot         string
}

func (f *optimizeFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.formulation, "formulation", "", "formulation override (ac, dc, lin, newac)")
	cmd.Flags().IntVar(&f.periods, "periods", 0, "number of time periods override")
	cmd.Flags().StringVar(&f.outputFormat, "output-format", "", "type of output override: pretty, csv")
	cmd.Flags().StringVar(&f.plot, "plot", "", "save the solver trajectory plot to this file")
}

func newOptimizeCmd(g *globalFlags) *cobra.Command {
	f := &optimizeFlags{}
	cmd := &cobra.Command{
		Use:   "optimize",
		Short: "Build and solve the configured model",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCommand(cmd, g, f, false)
		},
	}
	f.register(cmd)
	return cmd
}

func newCheckCmd(g *globalFlags) *cobra.Command {
	f := &optimizeFlags{}
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Solve the configured model and check its dispatch against the AC equations",
		Long: `check solves the deterministic model of the configured formulation, pins
the groups selected under feasibility (pg by default) and solves the
NewAC model. A locally infeasible status means the dispatch cannot be
realized on the AC network.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCommand(cmd, g, f, true)
		},
	}
	f.register(cmd)
	return cmd
}

// loadConfiguration reads the configuration named by --config and applies
// the command line overrides.
func loadConfiguration(cmd *cobra.Command, g *globalFlags, f *optimizeFlags) (*config.Configuration, error) {
	var (
		conf *config.Configuration
		err  error
	)
	if g.configFile == "-" {
		conf, err = config.LoadConfigurationFromReader(cmd.InOrStdin())
	} else {
		conf, err = config.LoadConfiguration(g.configFile)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration at %s: %w", g.configFile, err)
	}

	if f.formulation != "" {
		conf.Formulation = f.formulation
	}
	if cmd.Flags().Changed("periods") {
		conf.Schedule.TimePeriods = f.periods
	}
	if f.outputFormat != "" {
		conf.Output.Format = f.outputFormat
	}
	if f.plot != "" {
		conf.Plot.Enabled = true
		conf.Plot.OutputFile = f.plot
	}

	if err := conf.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return conf, nil
}

func runCommand(cmd *cobra.Command, g *globalFlags, f *optimizeFlags, check bool) error {
	conf, err := loadConfiguration(cmd, g, f)
	if err != nil {
		return err
	}

	logger, err := initializeLogger(conf.Logging, g.logLevel)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	for _, warning := range conf.ValidateConfiguration() {
		logger.Warn("Configuration warning: "+warning,
			zap.String("op", "main"),
		)
	}

	if check {
		conf.Feasibility.Enabled = true
		return runCheck(cmd.Context(), logger, conf, cmd.OutOrStdout())
	}
	return runOptimize(cmd.Context(), logger, conf, cmd.OutOrStdout())
}

// runOptimize builds the configured model, solves it and writes the report
// in the configured format. An enabled feasibility check follows the solve.
func runOptimize(ctx context.Context, logger *zap.Logger, conf *config.Configuration, w io.Writer) error {
	factory, err := conf.Factory(logger)
	if err != nil {
		return err
	}
	opts, err := conf.ModelOptions(logger)
	if err != nil {
		return err
	}

	var (
		model     mpopf.AbstractModel
		solutions func() ([]*mpopf.Solution, error)
	)
	if scenarios := conf.ActiveScenarios(); scenarios != nil {
		mu, err := mpopf.CreateModelUncertainty(ctx, factory, scenarios, opts...)
		if err != nil {
			return fmt.Errorf("failed to build model: %w", err)
		}
		model = mu
		solutions = func() ([]*mpopf.Solution, error) {
			return mu.ScenarioSolutions(), nil
		}
	} else {
		m, err := mpopf.CreateModel(ctx, factory, opts...)
		if err != nil {
			return fmt.Errorf("failed to build model: %w", err)
		}
		model = m
		solutions = func() ([]*mpopf.Solution, error) {
			sol, err := m.Solution()
			if err != nil {
				return nil, err
			}
			return []*mpopf.Solution{sol}, nil
		}
	}

	summary, err := solve(ctx, logger, conf, model)
	if err != nil {
		return err
	}
	sols, err := solutions()
	if err != nil {
		return err
	}
	if err := report(w, conf, summary, sols); err != nil {
		return err
	}

	if !conf.Feasibility.Enabled {
		return nil
	}
	var prior *mpopf.Solution
	if _, ok := model.(*mpopf.Model); ok && len(sols) == 1 {
		prior = sols[0]
	}
	// CSV output stays machine readable; the verdict is still logged.
	if conf.Output.Format == constants.OutputFormatCSV {
		w = io.Discard
	}
	return checkFeasibility(ctx, logger, conf, prior, w)
}

// runCheck solves the deterministic model and checks its dispatch.
func runCheck(ctx context.Context, logger *zap.Logger, conf *config.Configuration, w io.Writer) error {
	return checkFeasibility(ctx, logger, conf, nil, w)
}

// checkFeasibility pins the selected groups of prior in a NewAC model and
// solves it. A nil prior is produced by solving the deterministic model of
// the configured formulation first.
func checkFeasibility(ctx context.Context, logger *zap.Logger, conf *config.Configuration, prior *mpopf.Solution, w io.Writer) error {
	opts, err := conf.ModelOptions(logger)
	if err != nil {
		return err
	}

	if prior == nil {
		factory, err := conf.Factory(logger)
		if err != nil {
			return err
		}
		m, err := mpopf.CreateModel(ctx, factory, opts...)
		if err != nil {
			return fmt.Errorf("failed to build model: %w", err)
		}
		summary, err := optimizer.OptimizeModel(ctx, logger, m, w)
		if err != nil {
			return err
		}
		if !summary.Converged {
			return fmt.Errorf("cannot check feasibility of a %s dispatch", summary.Status)
		}
		if prior, err = m.Solution(); err != nil {
			return err
		}
	}

	fixed := mpopf.FixedValuesFromSolution(prior, conf.Feasibility.Selection())
	// The configured model type may be lp; the check is always nonlinear.
	acOpts := append(opts[:len(opts):len(opts)], mpopf.WithModelType(mpopf.ModelTypeNLP))
	fm, err := mpopf.CreateModelCheckFeasibility(ctx, conf.FeasibilityFactory(logger), fixed, acOpts...)
	if err != nil {
		return fmt.Errorf("failed to build feasibility model: %w", err)
	}
	summary, err := optimizer.OptimizeModel(ctx, logger, fm, io.Discard)
	if err != nil {
		return err
	}

	verdict := "AC feasible"
	if !summary.Converged {
		verdict = "not AC feasible"
	}
	logger.Info("feasibility check finished",
		zap.String("op", "main.checkFeasibility"),
		zap.String("model_id", summary.ModelID),
		zap.String("status", summary.Status),
		zap.Float64("violation", summary.Violation),
	)
	_, err = fmt.Fprintf(w, "Feasibility: %s (%s, cost %s, max violation %.2e)\n",
		verdict, summary.Status, summary.ObjectiveFmt, summary.Violation)
	return err
}

// solve runs the optimizer, saving the trajectory plot when enabled. The
// report carries the cost, so the printed cost line is dropped.
func solve(ctx context.Context, logger *zap.Logger, conf *config.Configuration, model mpopf.AbstractModel) (optimization.Summary, error) {
	if conf.Plot.Enabled {
		return optimizer.OptimizeModelWithPlot(ctx, logger, model, io.Discard, conf.Plot.OutputFile)
	}
	return optimizer.OptimizeModel(ctx, logger, model, io.Discard)
}

func report(w io.Writer, conf *config.Configuration, summary optimization.Summary, sols []*mpopf.Solution) error {
	switch conf.Output.Format {
	case constants.OutputFormatCSV:
		return output.CsvFormat(w, sols)
	default:
		output.PrettyFormat(w, summary, sols)
		return nil
	}
}
