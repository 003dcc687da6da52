// Package validation checks user supplied model and report settings before a
// case file is loaded.
package validation

import (
	"fmt"

	"github.com/iwvelando/mpopf/pkg/constants"
	"github.com/iwvelando/mpopf/pkg/mathutil"
)

// ValidateSchedule checks a period count against its load factors and the
// ramping cost. No factors means the default factor; a single factor applies
// to every period.
func ValidateSchedule(periods int, factors []float64, rampingCost int) error {
	if periods < 1 {
		return fmt.Errorf("schedule needs at least one time period, got %d", periods)
	}
	if n := len(factors); n > 1 && n != periods {
		return fmt.Errorf("schedule has %d factors for %d time periods", n, periods)
	}
	for i, f := range factors {
		if !mathutil.IsFinite(f) || f < 0 {
			return fmt.Errorf("schedule factor %d must be finite and non-negative, got %v", i+1, f)
		}
	}
	if rampingCost < 0 {
		return fmt.Errorf("schedule ramping cost must be non-negative, got %d", rampingCost)
	}
	return nil
}

// ValidateOutputFormat checks that a dispatch report format is pretty or csv.
func ValidateOutputFormat(format string) error {
	switch format {
	case constants.OutputFormatPretty, constants.OutputFormatCSV:
		return nil
	}
	return fmt.Errorf("unsupported dispatch report output format %q, expected %s or %s",
		format, constants.OutputFormatPretty, constants.OutputFormatCSV)
}
