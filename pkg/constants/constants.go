// Package constants provides shared constants for the mpopf application.
package constants

import (
	"math"
	"time"
)

// Formulation identifiers accepted in configuration files, CLI flags and the
// HTTP API.
const (
	FormulationAC    = "ac"
	FormulationDC    = "dc"
	FormulationLin   = "lin"
	FormulationNewAC = "newac"
)

// Solver identifiers.
const (
	SolverAuto    = "auto"
	SolverSimplex = "simplex"
	SolverSLP     = "slp"
)

// Scheduling defaults
const (
	// DefaultTimePeriods is the number of periods a model spans when unset
	DefaultTimePeriods = 1

	// DefaultFactor is the load scale factor applied when none is given
	DefaultFactor = 1.0

	// DefaultRampingCost is the ramping penalty applied when none is given
	DefaultRampingCost = 0

	// PeriodsPerHour converts MATPOWER 30 minute ramp rates to a one hour period
	PeriodsPerHour = 2.0

	// MinutesPerPeriod converts MATPOWER AGC ramp rates (MW/min) to a period
	MinutesPerPeriod = 60.0
)

// Solver defaults
const (
	// DefaultSolverTolerance is the feasibility and stationarity tolerance
	DefaultSolverTolerance = 1e-6

	// DefaultSolverMaxIterations caps the SLP outer loop
	DefaultSolverMaxIterations = 500

	// DefaultTrustRadius is the initial SLP trust region radius in per unit
	DefaultTrustRadius = 0.5

	// DefaultCostSegments is the number of tangent cuts per quadratic cost term
	DefaultCostSegments = 16

	// DefaultPivotTolerance is passed to the simplex method
	DefaultPivotTolerance = 1e-10
)

// Angle limits in degrees beyond which a branch angle difference is unconstrained.
const (
	MaxAngleDifferenceDeg = 360.0
)

// Output format constants
const (
	// OutputFormatPretty is the human-readable output format
	OutputFormatPretty = "pretty"

	// OutputFormatCSV is the CSV output format
	OutputFormatCSV = "csv"
)

// Configuration file constants
const (
	// DefaultConfigFile is the default configuration file name
	DefaultConfigFile = "config.yaml"

	// ExampleConfigFile is the example configuration file name
	ExampleConfigFile = "config.yaml.example"

	// DefaultServerConfigFile is the default server configuration file name
	DefaultServerConfigFile = "server-config.yaml"

	// DefaultPlotFile is the trajectory plot written when none is named
	DefaultPlotFile = "mpopf-trajectory.png"

	// EnvPrefix prefixes environment overrides, e.g. MPOPF_FORMULATION
	EnvPrefix = "MPOPF"
)

// Server configuration defaults
const (
	// DefaultServerAddress is the default HTTP listen address
	DefaultServerAddress = ":8080"

	// DefaultMaxUploadSizeBytes is the default maximum upload size for case files (1 MB)
	DefaultMaxUploadSizeBytes int64 = 1024 * 1024

	// DefaultSolveTimeout bounds one model build and solve in the server
	DefaultSolveTimeout = 2 * time.Minute
)

// Inf is positive infinity, used for unbounded variables and rows.
var Inf = math.Inf(1)
