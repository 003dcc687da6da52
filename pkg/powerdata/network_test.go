package powerdata

import (
	"errors"
	"math"
	"strings"
	"testing"
)

const case5Path = "../../testdata/case5.m"

func TestLoadMatpowerCase5(t *testing.T) {
	n, err := Load(case5Path)
	if err != nil {
		t.Fatalf("failed to load case5: %v", err)
	}

	if n.Name != "case5" {
		t.Fatalf("expected name case5, got %q", n.Name)
	}
	if n.BaseMVA != 100 {
		t.Fatalf("expected baseMVA 100, got %v", n.BaseMVA)
	}
	if len(n.Buses) != 5 || len(n.Generators) != 5 || len(n.Branches) != 6 {
		t.Fatalf("unexpected component counts: %d buses, %d gens, %d branches",
			len(n.Buses), len(n.Generators), len(n.Branches))
	}

	bus4, ok := n.Bus(4)
	if !ok || bus4.Type != BusRef || bus4.Pd != 400 || bus4.Qd != 131.47 {
		t.Fatalf("unexpected bus 4: %+v", bus4)
	}

	pd, qd := n.TotalLoad()
	if math.Abs(pd-1000) > 1e-9 || math.Abs(qd-328.69) > 1e-9 {
		t.Fatalf("unexpected total load %v MW %v MVAr", pd, qd)
	}

	if n.Branches[0].RateA != 400 || n.Branches[5].RateA != 240 || n.Branches[5].ID != 6 {
		t.Fatalf("unexpected branch ratings: %+v / %+v", n.Branches[0], n.Branches[5])
	}
}

func TestLoadMatpowerRampAndCosts(t *testing.T) {
	n, err := Load(case5Path)
	if err != nil {
		t.Fatalf("failed to load case5: %v", err)
	}

	tests := []struct {
		gen  int
		ramp float64
	}{
		{gen: 0, ramp: 40},
		{gen: 1, ramp: 0},
		{gen: 2, ramp: 300},
		{gen: 3, ramp: 0},
	}
	for _, tt := range tests {
		if got := n.Generators[tt.gen].RampRate; got != tt.ramp {
			t.Fatalf("generator %d: expected ramp %v, got %v", tt.gen+1, tt.ramp, got)
		}
	}

	c2, c1, c0 := n.Generators[2].Cost.Polynomial()
	if c2 != 0.01 || c1 != 30 || c0 != 0 {
		t.Fatalf("unexpected quadratic cost: %v %v %v", c2, c1, c0)
	}
	c2, c1, _ = n.Generators[0].Cost.Polynomial()
	if c2 != 0 || c1 != 14 {
		t.Fatalf("unexpected linear cost: %v %v", c2, c1)
	}

	pwl := n.Generators[3].Cost
	if pwl.Model != CostPiecewiseLinear {
		t.Fatalf("expected piecewise linear cost, got model %d", pwl.Model)
	}
	pts := pwl.Points()
	if len(pts) != 3 || pts[2] != [2]float64{200, 8500} {
		t.Fatalf("unexpected points: %v", pts)
	}
}

func TestParseMatpowerErrors(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr string
	}{
		{
			name:    "missing baseMVA",
			input:   "mpc.bus = [1 3 0 0 0 0 1 1 0 230 1 1.1 0.9;];",
			wantErr: "baseMVA",
		},
		{
			name:    "missing bus matrix",
			input:   "mpc.baseMVA = 100;",
			wantErr: "no mpc.bus",
		},
		{
			name:    "short bus row",
			input:   "mpc.baseMVA = 100;\nmpc.bus = [1 3 0 0;];",
			wantErr: "columns",
		},
		{
			name:    "bad number",
			input:   "mpc.baseMVA = 100;\nmpc.bus = [1 3 x 0 0 0 1 1 0 230 1 1.1 0.9;];",
			wantErr: "invalid number",
		},
		{
			name: "unknown cost model",
			input: "mpc.baseMVA = 100;\nmpc.bus = [1 3 0 0 0 0 1 1 0 230 1 1.1 0.9;];\n" +
				"mpc.gen = [1 0 0 10 -10 1 100 1 10 0;];\nmpc.gencost = [7 0 0 1 0;];",
			wantErr: "unknown cost model",
		},
		{
			name: "negative cost count",
			input: "mpc.baseMVA = 100;\nmpc.bus = [1 3 0 0 0 0 1 1 0 230 1 1.1 0.9;];\n" +
				"mpc.gen = [1 0 0 10 -10 1 100 1 10 0;];\nmpc.gencost = [2 0 0 -1 0;];",
			wantErr: "invalid cost count",
		},
		{
			name: "fractional cost count",
			input: "mpc.baseMVA = 100;\nmpc.bus = [1 3 0 0 0 0 1 1 0 230 1 1.1 0.9;];\n" +
				"mpc.gen = [1 0 0 10 -10 1 100 1 10 0;];\nmpc.gencost = [1 0 0 1.5 0 0 10 5;];",
			wantErr: "invalid cost count",
		},
		{
			name: "oversized cost count",
			input: "mpc.baseMVA = 100;\nmpc.bus = [1 3 0 0 0 0 1 1 0 230 1 1.1 0.9;];\n" +
				"mpc.gen = [1 0 0 10 -10 1 100 1 10 0;];\nmpc.gencost = [2 0 0 1e20 0;];",
			wantErr: "invalid cost count",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseMatpower(strings.NewReader(tt.input))
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestParseMatpowerInlineRows(t *testing.T) {
	input := `function mpc = tiny
mpc.baseMVA = 10;  % base
mpc.bus = [1 3 0 0 0 0 1 1 0 230 1 1.1 0.9; 2 1 5 1 0 0 1 1 0 230 1 1.1 0.9];
mpc.gen = [1, 0, 0, 10, -10, 1, 100, 1, 10, 0];
mpc.gencost = [2 0 0 5 0 0 0.5 2 1];
mpc.branch = [1 2 0.01 0.1 0 0 0 0 0.98 3 1];
`
	n, err := ParseMatpower(strings.NewReader(input))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n.Name != "tiny" || len(n.Buses) != 2 {
		t.Fatalf("unexpected network %q with %d buses", n.Name, len(n.Buses))
	}
	if got := n.Generators[0].Cost.Coefficients; len(got) != 3 || got[0] != 0.5 {
		t.Fatalf("expected leading zero coefficients trimmed, got %v", got)
	}
	br := n.Branches[0]
	if br.Tap != 0.98 || br.Shift != 3 || br.AngMin != -360 || br.AngMax != 360 {
		t.Fatalf("unexpected branch %+v", br)
	}
}

func TestDecodeJSONAndYAML(t *testing.T) {
	for _, path := range []string{"../../testdata/two_bus.yaml", "../../testdata/two_bus.json"} {
		n, err := Load(path)
		if err != nil {
			t.Fatalf("%s: %v", path, err)
		}
		if len(n.Buses) != 2 {
			t.Fatalf("%s: expected 2 buses, got %d", path, len(n.Buses))
		}
		g := n.Generators[0]
		if g.Status != 1 || g.ID != 1 {
			t.Fatalf("%s: expected in-service generator 1, got %+v", path, g)
		}
		br := n.Branches[0]
		if br.Status != 1 || br.AngMax != 360 {
			t.Fatalf("%s: expected branch defaults, got %+v", path, br)
		}
	}

	_, err := Decode(strings.NewReader("baseMVA: 100\nbogus: 1\n"), FormatYAML)
	if err == nil {
		t.Fatal("expected unknown field to be rejected")
	}
}

func TestFormatFromPath(t *testing.T) {
	tests := map[string]string{
		"case.m":    FormatMatpower,
		"case.JSON": FormatJSON,
		"case.yml":  FormatYAML,
		"case.yaml": FormatYAML,
		"case.raw":  "",
		"case":      "",
	}
	for path, want := range tests {
		got, err := FormatFromPath(path)
		if want == "" {
			if err == nil {
				t.Fatalf("%s: expected error", path)
			}
			continue
		}
		if err != nil || got != want {
			t.Fatalf("%s: expected %s, got %s (%v)", path, want, got, err)
		}
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Network {
		return &Network{
			BaseMVA: 100,
			Buses: []Bus{
				{ID: 1, Type: BusRef, Vmin: 0.9, Vmax: 1.1},
				{ID: 2, Type: BusPQ, Vmin: 0.9, Vmax: 1.1},
			},
			Generators: []Generator{
				{ID: 1, Bus: 1, Status: 1, Pmax: 10, Cost: Cost{Model: CostPolynomial, Coefficients: []float64{1, 0}}},
			},
			Branches: []Branch{{ID: 1, From: 1, To: 2, X: 0.1, Status: 1}},
		}
	}

	tests := []struct {
		name   string
		mutate func(n *Network)
	}{
		{"zero base", func(n *Network) { n.BaseMVA = 0 }},
		{"no buses", func(n *Network) { n.Buses = nil }},
		{"duplicate bus", func(n *Network) { n.Buses[1].ID = 1 }},
		{"bad bus type", func(n *Network) { n.Buses[0].Type = 9 }},
		{"voltage limits", func(n *Network) { n.Buses[0].Vmin = 1.2 }},
		{"unknown gen bus", func(n *Network) { n.Generators[0].Bus = 7 }},
		{"pmin above pmax", func(n *Network) { n.Generators[0].Pmin = 20 }},
		{"cubic cost", func(n *Network) { n.Generators[0].Cost.Coefficients = []float64{1, 1, 1, 1} }},
		{"negative quadratic", func(n *Network) { n.Generators[0].Cost.Coefficients = []float64{-1, 1, 1} }},
		{"pwl decreasing", func(n *Network) {
			n.Generators[0].Cost = Cost{Model: CostPiecewiseLinear, Coefficients: []float64{5, 0, 1, 10}}
		}},
		{"pwl concave", func(n *Network) {
			n.Generators[0].Cost = Cost{Model: CostPiecewiseLinear, Coefficients: []float64{0, 0, 5, 100, 10, 150}}
		}},
		{"unknown branch bus", func(n *Network) { n.Branches[0].To = 9 }},
		{"self loop", func(n *Network) { n.Branches[0].To = 1 }},
		{"zero impedance", func(n *Network) { n.Branches[0].X = 0 }},
	}

	if err := valid().Validate(); err != nil {
		t.Fatalf("expected valid network, got %v", err)
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := valid()
			tt.mutate(n)
			err := n.Validate()
			if !errors.Is(err, ErrInvalidNetwork) {
				t.Fatalf("expected ErrInvalidNetwork, got %v", err)
			}
		})
	}
}
