// Package output provides utilities for formatting and displaying dispatch results.
package output

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/iwvelando/mpopf/internal/mpopf"
	"github.com/iwvelando/mpopf/pkg/format"
	"github.com/iwvelando/mpopf/pkg/optimization"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39"))
	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))
	warnStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("196"))
)

// PrettyFormat writes a human-readable report: the run summary followed by
// per-period generator, bus and branch tables for every solution.
func PrettyFormat(w io.Writer, summary optimization.Summary, solutions []*mpopf.Solution) {
	p := message.NewPrinter(language.English)

	_, _ = fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("--- %s %s model %s ---", summary.Case, summary.Formulation, summary.ModelID)))
	_, _ = fmt.Fprintf(w, "%s %s (%s, %d iterations, max violation %.2e)\n",
		labelStyle.Render("Status:"), summary.Status, summary.Solver, summary.Iterations, summary.Violation)
	_, _ = fmt.Fprintf(w, "%s %s\n", labelStyle.Render("Objective:"), format.Cost(summary.Objective))
	if summary.PlotFile != "" {
		_, _ = fmt.Fprintf(w, "%s %s\n", labelStyle.Render("Plot:"), summary.PlotFile)
	}
	for _, note := range summary.Notes {
		_, _ = fmt.Fprintln(w, warnStyle.Render("Note: "+note))
	}

	for _, sol := range solutions {
		for _, ps := range sol.Periods {
			header := fmt.Sprintf("Period %d (load %s, scale %.3f)", ps.Period, format.Power(ps.Load, "MW"), ps.Scale)
			if sol.Scenario != "" {
				header = fmt.Sprintf("Scenario %s, %s", sol.Scenario, header)
			}
			_, _ = fmt.Fprintf(w, "\n%s\n", titleStyle.Render(header))

			_, _ = fmt.Fprintf(w, "Gen | Bus | Pg (MW)     | Qg (MVAr)\n")
			_, _ = fmt.Fprintf(w, "___ | ___ | ___________ | _________\n")
			for _, g := range ps.Gens {
				_, _ = p.Fprintf(w, "%3d | %3d | %11.3f | %9.3f\n", g.ID, g.Bus, g.Pg, g.Qg)
			}
			_, _ = p.Fprintf(w, "Total generation: %.3f MW\n", ps.TotalGeneration())

			_, _ = fmt.Fprintf(w, "\nBus | Vm (p.u.) | Va (deg)\n")
			_, _ = fmt.Fprintf(w, "___ | _________ | ________\n")
			for _, b := range ps.Buses {
				_, _ = p.Fprintf(w, "%3d | %9.4f | %8.3f\n", b.ID, b.Vm, b.Va)
			}

			_, _ = fmt.Fprintf(w, "\nBranch | P from (MW) | Q from (MVAr) | P to (MW)   | Q to (MVAr)\n")
			_, _ = fmt.Fprintf(w, "______ | ___________ | _____________ | ___________ | ___________\n")
			for _, br := range ps.Branches {
				_, _ = p.Fprintf(w, "%6d | %11.3f | %13.3f | %11.3f | %11.3f\n", br.ID, br.PFrom, br.QFrom, br.PTo, br.QTo)
			}
		}
	}
}

// CsvFormat writes one row per scenario, period, element and quantity.
func CsvFormat(w io.Writer, solutions []*mpopf.Solution) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"scenario", "period", "element", "id", "quantity", "value"}); err != nil {
		return err
	}

	row := func(sol *mpopf.Solution, period int, element string, id int, quantity string, value float64) error {
		return cw.Write([]string{
			sol.Scenario,
			strconv.Itoa(period),
			element,
			strconv.Itoa(id),
			quantity,
			strconv.FormatFloat(value, 'f', 6, 64),
		})
	}

	for _, sol := range solutions {
		for _, ps := range sol.Periods {
			for _, g := range ps.Gens {
				if err := row(sol, ps.Period, "gen", g.ID, "pg", g.Pg); err != nil {
					return err
				}
				if err := row(sol, ps.Period, "gen", g.ID, "qg", g.Qg); err != nil {
					return err
				}
			}
			for _, b := range ps.Buses {
				if err := row(sol, ps.Period, "bus", b.ID, "vm", b.Vm); err != nil {
					return err
				}
				if err := row(sol, ps.Period, "bus", b.ID, "va", b.Va); err != nil {
					return err
				}
			}
			for _, br := range ps.Branches {
				for _, q := range []struct {
					name  string
					value float64
				}{{"p_from", br.PFrom}, {"q_from", br.QFrom}, {"p_to", br.PTo}, {"q_to", br.QTo}} {
					if err := row(sol, ps.Period, "branch", br.ID, q.name, q.value); err != nil {
						return err
					}
				}
			}
		}
	}
	cw.Flush()
	return cw.Error()
}
