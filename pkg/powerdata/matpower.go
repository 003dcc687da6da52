package powerdata

import (
	"fmt"
	"io"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/iwvelando/mpopf/pkg/constants"
)

var (
	functionPattern = regexp.MustCompile(`function\s+\w+\s*=\s*(\w+)`)
	baseMVAPattern  = regexp.MustCompile(`mpc\.baseMVA\s*=\s*([-+0-9.eE]+)\s*;`)
	matrixPattern   = regexp.MustCompile(`(?s)mpc\.(\w+)\s*=\s*\[(.*?)\]\s*;`)
	fieldSeparators = regexp.MustCompile(`[\s,]+`)
)

// Minimum column counts per MATPOWER matrix.
const (
	busColumns     = 13
	genColumns     = 10
	branchColumns  = 11
	gencostColumns = 4

	genRampAGC = 16
	genRamp30  = 18
)

// ParseMatpower reads a MATPOWER case file (version 2).
func ParseMatpower(r io.Reader) (*Network, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read matpower case: %w", err)
	}
	text := stripComments(string(raw))

	n := &Network{}
	if m := functionPattern.FindStringSubmatch(text); m != nil {
		n.Name = m[1]
	}
	m := baseMVAPattern.FindStringSubmatch(text)
	if m == nil {
		return nil, fmt.Errorf("matpower case has no mpc.baseMVA")
	}
	if n.BaseMVA, err = strconv.ParseFloat(m[1], 64); err != nil {
		return nil, fmt.Errorf("invalid baseMVA %q: %w", m[1], err)
	}

	matrices := make(map[string][][]float64)
	for _, mm := range matrixPattern.FindAllStringSubmatch(text, -1) {
		rows, err := parseMatrix(mm[2])
		if err != nil {
			return nil, fmt.Errorf("mpc.%s: %w", mm[1], err)
		}
		matrices[mm[1]] = rows
	}

	buses, ok := matrices["bus"]
	if !ok {
		return nil, fmt.Errorf("matpower case has no mpc.bus matrix")
	}
	for i, row := range buses {
		if len(row) < busColumns {
			return nil, fmt.Errorf("mpc.bus row %d has %d columns, need %d", i+1, len(row), busColumns)
		}
		n.Buses = append(n.Buses, Bus{
			ID:     int(row[0]),
			Type:   int(row[1]),
			Pd:     row[2],
			Qd:     row[3],
			Gs:     row[4],
			Bs:     row[5],
			Vm:     row[7],
			Va:     row[8],
			BaseKV: row[9],
			Vmax:   row[11],
			Vmin:   row[12],
		})
	}

	for i, row := range matrices["gen"] {
		if len(row) < genColumns {
			return nil, fmt.Errorf("mpc.gen row %d has %d columns, need %d", i+1, len(row), genColumns)
		}
		n.Generators = append(n.Generators, Generator{
			ID:       i + 1,
			Bus:      int(row[0]),
			Pg:       row[1],
			Qg:       row[2],
			Qmax:     row[3],
			Qmin:     row[4],
			Vg:       row[5],
			Status:   int(row[7]),
			Pmax:     row[8],
			Pmin:     row[9],
			RampRate: rampRate(row),
		})
	}

	costs := matrices["gencost"]
	if len(costs) > 0 && len(costs) < len(n.Generators) {
		return nil, fmt.Errorf("mpc.gencost has %d rows for %d generators", len(costs), len(n.Generators))
	}
	for i := range n.Generators {
		if i >= len(costs) {
			break
		}
		cost, err := parseCost(costs[i])
		if err != nil {
			return nil, fmt.Errorf("mpc.gencost row %d: %w", i+1, err)
		}
		n.Generators[i].Cost = cost
	}

	for i, row := range matrices["branch"] {
		if len(row) < branchColumns {
			return nil, fmt.Errorf("mpc.branch row %d has %d columns, need %d", i+1, len(row), branchColumns)
		}
		br := Branch{
			ID:     i + 1,
			From:   int(row[0]),
			To:     int(row[1]),
			R:      row[2],
			X:      row[3],
			B:      row[4],
			RateA:  row[5],
			Tap:    row[8],
			Shift:  row[9],
			Status: int(row[10]),
			AngMin: -constants.MaxAngleDifferenceDeg,
			AngMax: constants.MaxAngleDifferenceDeg,
		}
		if len(row) >= 13 {
			br.AngMin, br.AngMax = row[11], row[12]
		}
		n.Branches = append(n.Branches, br)
	}
	return n, nil
}

func stripComments(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		if idx := strings.Index(line, "%"); idx >= 0 {
			lines[i] = line[:idx]
		}
	}
	return strings.Join(lines, "\n")
}

func parseMatrix(body string) ([][]float64, error) {
	body = strings.ReplaceAll(body, "\r", "")
	var rows [][]float64
	for _, line := range strings.FieldsFunc(body, func(r rune) bool { return r == ';' || r == '\n' }) {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := fieldSeparators.Split(line, -1)
		row := make([]float64, 0, len(fields))
		for _, f := range fields {
			if f == "" {
				continue
			}
			v, err := strconv.ParseFloat(f, 64)
			if err != nil {
				switch strings.ToLower(f) {
				case "inf":
					v = constants.Inf
				case "-inf":
					v = -constants.Inf
				default:
					return nil, fmt.Errorf("invalid number %q", f)
				}
			}
			row = append(row, v)
		}
		if len(row) > 0 {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

// rampRate converts the MATPOWER ramp columns to MW per one hour period:
// twice the 30 minute rate, otherwise sixty times the AGC rate.
func rampRate(row []float64) float64 {
	if len(row) > genRamp30 && row[genRamp30] > 0 {
		return constants.PeriodsPerHour * row[genRamp30]
	}
	if len(row) > genRampAGC && row[genRampAGC] > 0 {
		return constants.MinutesPerPeriod * row[genRampAGC]
	}
	return 0
}

func parseCost(row []float64) (Cost, error) {
	if len(row) < gencostColumns {
		return Cost{}, fmt.Errorf("need at least %d columns, got %d", gencostColumns, len(row))
	}
	c := Cost{Model: int(row[0]), Startup: row[1], Shutdown: row[2]}
	if row[3] < 0 || row[3] != math.Trunc(row[3]) || row[3] > float64(len(row)) {
		return Cost{}, fmt.Errorf("invalid cost count %v", row[3])
	}
	count := int(row[3])
	switch c.Model {
	case CostPolynomial:
		if len(row) < gencostColumns+count {
			return Cost{}, fmt.Errorf("polynomial cost declares %d coefficients, found %d", count, len(row)-gencostColumns)
		}
		coef := row[gencostColumns : gencostColumns+count]
		for len(coef) > 3 && coef[0] == 0 {
			coef = coef[1:]
		}
		c.Coefficients = append([]float64(nil), coef...)
	case CostPiecewiseLinear:
		if len(row) < gencostColumns+2*count {
			return Cost{}, fmt.Errorf("piecewise linear cost declares %d points, found %d values", count, len(row)-gencostColumns)
		}
		c.Coefficients = append([]float64(nil), row[gencostColumns:gencostColumns+2*count]...)
	default:
		return Cost{}, fmt.Errorf("unknown cost model %d", c.Model)
	}
	return c, nil
}
