package validation

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/iwvelando/mpopf/pkg/constants"
	"github.com/iwvelando/mpopf/pkg/powerdata"
)

// ValidateFormulation checks that a formulation name is one of ac, dc, lin
// or newac.
func ValidateFormulation(formulation string) error {
	switch formulation {
	case constants.FormulationAC, constants.FormulationDC, constants.FormulationLin, constants.FormulationNewAC:
		return nil
	}
	return fmt.Errorf("expected formulation of %s, %s, %s or %s, got %q",
		constants.FormulationAC, constants.FormulationDC, constants.FormulationLin, constants.FormulationNewAC, formulation)
}

// ValidateCaseFile checks that a case file has a supported extension.
func ValidateCaseFile(path string) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("case file path cannot be empty")
	}
	_, err := powerdata.FormatFromPath(path)
	return err
}

// ValidatePlotFile checks that the plot extension names an image format the
// plot writer supports.
func ValidatePlotFile(path string) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("plot output file cannot be empty")
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png", ".svg", ".pdf", ".jpg", ".jpeg", ".eps", ".tif", ".tiff":
		return nil
	}
	return fmt.Errorf("unsupported plot format %q", filepath.Ext(path))
}
