package validation

import "testing"

func TestValidateFormulation(t *testing.T) {
	tests := []struct {
		formulation string
		expectErr   bool
	}{
		{"ac", false},
		{"dc", false},
		{"lin", false},
		{"newac", false},
		{"AC", true},
		{"socp", true},
		{"", true},
	}

	for _, tt := range tests {
		t.Run(tt.formulation, func(t *testing.T) {
			err := ValidateFormulation(tt.formulation)
			if tt.expectErr && err == nil {
				t.Errorf("ValidateFormulation(%q) expected error but got none", tt.formulation)
			}
			if !tt.expectErr && err != nil {
				t.Errorf("ValidateFormulation(%q) unexpected error = %v", tt.formulation, err)
			}
		})
	}
}

func TestValidateCaseFile(t *testing.T) {
	for _, path := range []string{"case5.m", "cases/two_bus.yaml", "two_bus.YML", "grid.json"} {
		if err := ValidateCaseFile(path); err != nil {
			t.Errorf("ValidateCaseFile(%q) unexpected error = %v", path, err)
		}
	}
	for _, path := range []string{"", "  ", "case5.raw", "case5"} {
		if err := ValidateCaseFile(path); err == nil {
			t.Errorf("ValidateCaseFile(%q) expected error but got none", path)
		}
	}
}

func TestValidatePlotFile(t *testing.T) {
	for _, path := range []string{"out.png", "out/plot.SVG", "plot.pdf", "plot.jpeg"} {
		if err := ValidatePlotFile(path); err != nil {
			t.Errorf("ValidatePlotFile(%q) unexpected error = %v", path, err)
		}
	}
	for _, path := range []string{"", "plot", "plot.bmp", "plot.gif"} {
		if err := ValidatePlotFile(path); err == nil {
			t.Errorf("ValidatePlotFile(%q) expected error but got none", path)
		}
	}
}
