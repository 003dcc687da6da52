package testutil

import (
	"os"
	"testing"

	"github.com/iwvelando/mpopf/pkg/powerdata"
)

func TestCasePath(t *testing.T) {
	for _, name := range []string{"case5.m", "two_bus.yaml", "two_bus.json"} {
		if _, err := os.Stat(CasePath(name)); err != nil {
			t.Fatalf("expected fixture %s to exist: %v", name, err)
		}
	}
}

func TestWriteNetworkRoundTrip(t *testing.T) {
	path := WriteNetwork(t, TwoBusNetwork(0.01, 30))

	n, err := powerdata.Load(path)
	if err != nil {
		t.Fatalf("failed to load written network: %v", err)
	}
	if len(n.Buses) != 2 || len(n.Generators) != 2 || len(n.Branches) != 1 {
		t.Fatalf("unexpected component counts: %d buses, %d gens, %d branches",
			len(n.Buses), len(n.Generators), len(n.Branches))
	}
	if n.Branches[0].RateA != 30 || n.Branches[0].R != 0.01 {
		t.Fatalf("branch not preserved: %+v", n.Branches[0])
	}
}
