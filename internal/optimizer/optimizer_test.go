package optimizer

import (
	"bytes"
	"context"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/iwvelando/mpopf/internal/mpopf"
	"github.com/iwvelando/mpopf/pkg/optimization"
	"github.com/iwvelando/mpopf/pkg/problem"
	"github.com/iwvelando/mpopf/pkg/testutil"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func twoBusModel(t *testing.T, rate float64, opts ...mpopf.Option) *mpopf.Model {
	t.Helper()
	path := testutil.WriteNetwork(t, testutil.TwoBusNetwork(0, rate))
	m, err := mpopf.CreateModel(context.Background(), mpopf.NewDC(path, nil), opts...)
	if err != nil {
		t.Fatalf("failed to create model: %v", err)
	}
	return m
}

func printedCost(t *testing.T, out string) float64 {
	t.Helper()
	for _, line := range strings.Split(out, "\n") {
		if rest, ok := strings.CutPrefix(line, "Optimal cost: "); ok {
			v, err := strconv.ParseFloat(rest, 64)
			if err != nil {
				t.Fatalf("failed to parse cost line %q: %v", line, err)
			}
			return v
		}
	}
	t.Fatalf("no cost line in output %q", out)
	return 0
}

func TestOptimizeModelPrintsCost(t *testing.T) {
	tests := []struct {
		name string
		rate float64
		opts []mpopf.Option
		want float64
	}{
		{name: "single period", want: 500},
		{name: "congested line", rate: 30, want: 700},
		{name: "two periods", opts: []mpopf.Option{mpopf.WithTimePeriods(2), mpopf.WithFactors(1, 1.2)}, want: 1100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := twoBusModel(t, tt.rate, tt.opts...)
			var out bytes.Buffer
			summary, err := OptimizeModel(context.Background(), zap.NewNop(), m, &out)
			if err != nil {
				t.Fatalf("OptimizeModel failed: %v", err)
			}
			if got := printedCost(t, out.String()); math.Abs(got-tt.want) > 1e-6 {
				t.Fatalf("expected printed cost %v, got %v", tt.want, got)
			}
			if strings.Contains(out.String(), "Solver status") {
				t.Fatalf("unexpected status line for an optimal solve: %q", out.String())
			}
			if !summary.Converged || summary.Status != problem.StatusOptimal.String() {
				t.Fatalf("expected a converged summary, got %+v", summary)
			}
			if summary.ModelID != m.ID.String() || summary.Case != "two_bus" || summary.Formulation != "dc" {
				t.Fatalf("unexpected summary identity: %+v", summary)
			}
			if m.Problem.Status() != problem.StatusOptimal {
				t.Fatalf("expected the solution stored on the problem, got %s", m.Problem.Status())
			}
		})
	}
}

func TestOptimizeModelReportsFailedStatus(t *testing.T) {
	n := testutil.TwoBusNetwork(0, 0)
	n.Generators[0].Pmax = 10
	n.Generators[1].Pmax = 10
	path := testutil.WriteNetwork(t, n)
	m, err := mpopf.CreateModel(context.Background(), mpopf.NewDC(path, nil))
	if err != nil {
		t.Fatalf("failed to create model: %v", err)
	}

	var out bytes.Buffer
	summary, err := OptimizeModel(context.Background(), zap.NewNop(), m, &out)
	if err != nil {
		t.Fatalf("OptimizeModel failed: %v", err)
	}
	if summary.Converged {
		t.Fatal("expected an unconverged summary for insufficient capacity")
	}
	if !strings.HasPrefix(out.String(), "Solver status: ") {
		t.Fatalf("expected a status line, got %q", out.String())
	}
	if strings.Contains(out.String(), "Optimal cost") {
		t.Fatalf("unexpected cost line after a failed solve: %q", out.String())
	}
	if len(summary.Notes) == 0 {
		t.Fatal("expected a note describing the status")
	}
}

func TestOptimizeModelUncertainty(t *testing.T) {
	path := testutil.WriteNetwork(t, testutil.TwoBusNetwork(0, 0))
	scenarios := map[string]mpopf.Scenario{
		"base": {Probability: 0.5},
		"peak": {Probability: 0.5, LoadScale: []float64{1.2}},
	}
	m, err := mpopf.CreateModelUncertainty(context.Background(), mpopf.NewDC(path, nil), scenarios)
	if err != nil {
		t.Fatalf("failed to create model: %v", err)
	}

	var out bytes.Buffer
	summary, err := OptimizeModel(context.Background(), nil, m, &out)
	if err != nil {
		t.Fatalf("OptimizeModel failed: %v", err)
	}
	if len(summary.Scenarios) != 2 || summary.Scenarios[1] != "peak" {
		t.Fatalf("expected scenarios in the summary, got %v", summary.Scenarios)
	}
	// one period with a shared dispatch cannot serve two different loads
	if summary.Converged {
		t.Fatalf("expected conflicting first period loads to be infeasible, got %+v", summary)
	}
}

func TestOptimizeModelWithPlot(t *testing.T) {
	for _, ext := range []string{".png", ".svg", ".pdf"} {
		t.Run(ext, func(t *testing.T) {
			m := twoBusModel(t, 0)
			path := filepath.Join(t.TempDir(), "trajectory"+ext)

			var out bytes.Buffer
			summary, err := OptimizeModelWithPlot(context.Background(), zap.NewNop(), m, &out, path)
			if err != nil {
				t.Fatalf("OptimizeModelWithPlot failed: %v", err)
			}
			if summary.PlotFile != path {
				t.Fatalf("expected plot file %s, got %s", path, summary.PlotFile)
			}
			info, err := os.Stat(path)
			if err != nil {
				t.Fatalf("plot not written: %v", err)
			}
			if info.Size() == 0 {
				t.Fatal("plot file is empty")
			}
			if got := printedCost(t, out.String()); math.Abs(got-500) > 1e-6 {
				t.Fatalf("expected printed cost 500, got %v", got)
			}
		})
	}
}

func TestOptimizeModelWithPlotErrors(t *testing.T) {
	m := twoBusModel(t, 0)
	if _, err := OptimizeModelWithPlot(context.Background(), nil, m, nil, ""); err == nil {
		t.Fatal("expected error for an empty plot path")
	}
	path := filepath.Join(t.TempDir(), "trajectory.bmp")
	if _, err := OptimizeModelWithPlot(context.Background(), nil, m, nil, path); err == nil {
		t.Fatal("expected error for an unsupported image format")
	}
}

func TestSaveTrajectoryPlotRequiresIterations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.png")
	if err := SaveTrajectoryPlot(nil, optimization.Summary{}, path); err == nil {
		t.Fatal("expected error for an empty trajectory")
	}
}

func TestSaveTrajectoryPlotSingleIterate(t *testing.T) {
	for _, violation := range []float64{0, 1e-3} {
		path := filepath.Join(t.TempDir(), "single.png")
		trajectory := []problem.Iterate{{Iteration: 1, Objective: 500, Violation: violation, Accepted: true}}
		if err := SaveTrajectoryPlot(trajectory, optimization.Summary{Status: "optimal"}, path); err != nil {
			t.Fatalf("SaveTrajectoryPlot failed for violation %v: %v", violation, err)
		}
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("plot not written: %v", err)
		}
	}
}

func TestOptimizeModelWithPlotPinnedFeasibilityCheck(t *testing.T) {
	path := testutil.WriteNetwork(t, testutil.TwoBusNetwork(0.01, 0))
	ac, err := mpopf.CreateModel(context.Background(), mpopf.NewNewAC(path, nil))
	if err != nil {
		t.Fatalf("failed to create ac model: %v", err)
	}
	if _, err := OptimizeModel(context.Background(), zap.NewNop(), ac, nil); err != nil {
		t.Fatalf("OptimizeModel failed: %v", err)
	}
	prior, err := ac.Solution()
	if err != nil {
		t.Fatalf("Solution failed: %v", err)
	}

	fixed := mpopf.FixedValuesFromSolution(prior, mpopf.FixSelection{Pg: true, Qg: true, Vm: true, Va: true})
	m, err := mpopf.CreateModelCheckFeasibility(context.Background(), mpopf.NewNewAC(path, nil), fixed)
	if err != nil {
		t.Fatalf("CreateModelCheckFeasibility failed: %v", err)
	}
	plot := filepath.Join(t.TempDir(), "check.svg")
	summary, err := OptimizeModelWithPlot(context.Background(), zap.NewNop(), m, nil, plot)
	if err != nil {
		t.Fatalf("OptimizeModelWithPlot failed: %v", err)
	}
	if summary.Solver != "slp" || summary.PlotFile != plot {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if _, err := os.Stat(plot); err != nil {
		t.Fatalf("plot not written: %v", err)
	}
}

func TestNewRunnerRejectsNilModel(t *testing.T) {
	if _, err := NewRunner(zap.NewNop(), nil); err == nil {
		t.Fatal("expected error for nil model")
	}
	var m *mpopf.Model
	if _, err := OptimizeModel(context.Background(), nil, m, nil); err == nil {
		t.Fatal("expected error for typed nil model")
	}
}

func TestRunLogsOutcome(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	m := twoBusModel(t, 0)
	r, err := NewRunner(zap.New(core), m)
	if err != nil {
		t.Fatalf("NewRunner failed: %v", err)
	}
	if _, _, err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	entries := logs.FilterMessage("optimization finished").All()
	if len(entries) != 1 {
		t.Fatalf("expected one completion entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["op"] != "optimizer.Run" || fields["status"] != "optimal" {
		t.Fatalf("unexpected log fields: %v", fields)
	}
}
