// Package testutil provides common utility functions for testing.
package testutil

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/iwvelando/mpopf/pkg/powerdata"
	"gopkg.in/yaml.v3"
)

// CasePath returns the absolute path of a case file under the repository
// testdata directory.
func CasePath(name string) string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "..", "..", "testdata", name)
}

// TwoBusNetwork returns a two bus case: a 10 $/MW unit on the reference bus
// 1, a 20 $/MW unit on bus 2, 50 MW of load on bus 2 and a line with
// reactance 0.1 p.u. between them. rate limits the line in MVA (0 = none).
func TwoBusNetwork(r, rate float64) *powerdata.Network {
	return &powerdata.Network{
		Name:    "two_bus",
		BaseMVA: 100,
		Buses: []powerdata.Bus{
			{ID: 1, Type: powerdata.BusRef, Vm: 1, Vmin: 0.9, Vmax: 1.1},
			{ID: 2, Type: powerdata.BusPV, Pd: 50, Qd: 10, Vm: 1, Vmin: 0.9, Vmax: 1.1},
		},
		Generators: []powerdata.Generator{
			{ID: 1, Bus: 1, Status: 1, Pmax: 100, Qmin: -50, Qmax: 50,
				Cost: powerdata.Cost{Model: powerdata.CostPolynomial, Coefficients: []float64{10, 0}}},
			{ID: 2, Bus: 2, Status: 1, Pmax: 100, Qmin: -50, Qmax: 50,
				Cost: powerdata.Cost{Model: powerdata.CostPolynomial, Coefficients: []float64{20, 0}}},
		},
		Branches: []powerdata.Branch{
			{ID: 1, From: 1, To: 2, R: r, X: 0.1, RateA: rate, Status: 1, AngMin: -360, AngMax: 360},
		},
	}
}

// WriteNetwork stores the network as a YAML case file in a temporary
// directory and returns its path.
func WriteNetwork(t testing.TB, n *powerdata.Network) string {
	t.Helper()
	data, err := yaml.Marshal(n)
	if err != nil {
		t.Fatalf("failed to marshal network: %v", err)
	}
	path := filepath.Join(t.TempDir(), n.Name+".yaml")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("failed to write network: %v", err)
	}
	return path
}
