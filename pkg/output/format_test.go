package output

import (
	"bytes"
	"encoding/csv"
	"errors"
	"strings"
	"testing"

	"github.com/iwvelando/mpopf/internal/mpopf"
	"github.com/iwvelando/mpopf/pkg/optimization"
)

func sampleSolutions() []*mpopf.Solution {
	return []*mpopf.Solution{
		{
			Scenario:  "peak",
			Status:    "optimal",
			Objective: 12345.5,
			Periods: []mpopf.PeriodSolution{
				{
					Period: 1,
					Scale:  1.2,
					Load:   1200,
					Gens: []mpopf.GenDispatch{
						{ID: 1, Bus: 1, Pg: 1000.25, Qg: 12.5},
						{ID: 2, Bus: 2, Pg: 205.5, Qg: -3},
					},
					Buses: []mpopf.BusVoltage{
						{ID: 1, Vm: 1.05, Va: 0},
						{ID: 2, Vm: 0.98, Va: -4.25},
					},
					Branches: []mpopf.BranchFlow{
						{ID: 1, PFrom: 800, QFrom: 10, PTo: -795.5, QTo: -2},
					},
				},
			},
		},
	}
}

func TestPrettyFormat(t *testing.T) {
	summary := optimization.Summary{
		ModelID:     "abc",
		Case:        "case5",
		Formulation: "ac",
		Solver:      "slp",
		Status:      "optimal",
		Objective:   12345.5,
		Iterations:  7,
		PlotFile:    "out.png",
		Notes:       []string{"check this"},
	}

	var buf bytes.Buffer
	PrettyFormat(&buf, summary, sampleSolutions())
	output := buf.String()

	for _, want := range []string{
		"--- case5 ac model abc ---",
		"optimal (slp, 7 iterations",
		"$12,345.50/h",
		"out.png",
		"Note: check this",
		"Scenario peak, Period 1 (load 1,200.000 MW, scale 1.200)",
		"Gen | Bus | Pg (MW)     | Qg (MVAr)",
		"1,000.250",
		"Total generation: 1,205.750 MW",
		"Bus | Vm (p.u.) | Va (deg)",
		"-4.250",
		"Branch | P from (MW)",
		"-795.500",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("PrettyFormat output missing %q\n%s", want, output)
		}
	}
}

func TestPrettyFormatDeterministicHeader(t *testing.T) {
	sols := sampleSolutions()
	sols[0].Scenario = ""

	var buf bytes.Buffer
	PrettyFormat(&buf, optimization.Summary{Status: "optimal"}, sols)
	output := buf.String()

	if strings.Contains(output, "Scenario") {
		t.Errorf("Expected no scenario label for a deterministic solution:\n%s", output)
	}
	if !strings.Contains(output, "Period 1 (load") {
		t.Errorf("Expected period header:\n%s", output)
	}
	if strings.Contains(output, "Plot:") {
		t.Errorf("Expected no plot line without a plot file:\n%s", output)
	}
}

func TestCsvFormat(t *testing.T) {
	var buf bytes.Buffer
	if err := CsvFormat(&buf, sampleSolutions()); err != nil {
		t.Fatalf("CsvFormat() error = %v", err)
	}

	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("CsvFormat produced invalid CSV: %v", err)
	}
	// header + 2 gens*2 + 2 buses*2 + 1 branch*4
	if len(records) != 13 {
		t.Fatalf("Expected 13 records, got %d", len(records))
	}
	if strings.Join(records[0], ",") != "scenario,period,element,id,quantity,value" {
		t.Errorf("Unexpected header %v", records[0])
	}
	if strings.Join(records[1], ",") != "peak,1,gen,1,pg,1000.250000" {
		t.Errorf("Unexpected first row %v", records[1])
	}
	last := records[len(records)-1]
	if strings.Join(last, ",") != "peak,1,branch,1,q_to,-2.000000" {
		t.Errorf("Unexpected last row %v", last)
	}
}

func TestCsvFormatEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := CsvFormat(&buf, nil); err != nil {
		t.Fatalf("CsvFormat() error = %v", err)
	}
	if got := strings.TrimSpace(buf.String()); got != "scenario,period,element,id,quantity,value" {
		t.Errorf("Expected only the header, got %q", got)
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) {
	return 0, errors.New("disk full")
}

func TestCsvFormatWriteError(t *testing.T) {
	if err := CsvFormat(failingWriter{}, sampleSolutions()); err == nil {
		t.Fatal("Expected write error")
	}
}
