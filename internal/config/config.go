// Package config defines the data structures related to configuration and
// includes functions for loading and validating the config.
package config

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/iwvelando/mpopf/pkg/constants"
	"github.com/iwvelando/mpopf/pkg/validation"
	"github.com/spf13/viper"
)

// Configuration holds all configuration for mpopf.
type Configuration struct {
	Case        string            `yaml:"case" mapstructure:"case"`
	Formulation string            `yaml:"formulation,omitempty" mapstructure:"formulation"`
	Solver      SolverConfig      `yaml:"solver,omitempty" mapstructure:"solver"`
	Schedule    ScheduleConfig    `yaml:"schedule,omitempty" mapstructure:"schedule"`
	Scenarios   []Scenario        `yaml:"scenarios,omitempty" mapstructure:"scenarios"`
	Feasibility FeasibilityConfig `yaml:"feasibility,omitempty" mapstructure:"feasibility"`
	Plot        PlotConfig        `yaml:"plot,omitempty" mapstructure:"plot"`
	Logging     LoggingConfig     `yaml:"logging,omitempty" mapstructure:"logging"`
	Output      OutputConfig      `yaml:"output,omitempty" mapstructure:"output"`
}

// LoggingConfig holds logging configuration options
type LoggingConfig struct {
	Level      string `yaml:"level,omitempty" mapstructure:"level"`           // debug, info, warn, error
	Format     string `yaml:"format,omitempty" mapstructure:"format"`         // json, console
	OutputFile string `yaml:"outputFile,omitempty" mapstructure:"outputFile"` // optional file output
}

// OutputConfig holds output format configuration options
type OutputConfig struct {
	Format string `yaml:"format,omitempty" mapstructure:"format"` // pretty, csv
}

// PlotConfig enables the solver trajectory plot.
type PlotConfig struct {
	Enabled    bool   `yaml:"enabled,omitempty" mapstructure:"enabled"`
	OutputFile string `yaml:"outputFile,omitempty" mapstructure:"outputFile"`
}

// defaults registers every key so that MPOPF_ environment variables can
// override values absent from the file.
var defaults = map[string]any{
	"case":                 "",
	"formulation":          constants.FormulationDC,
	"solver.name":          "",
	"solver.modelType":     "",
	"solver.tolerance":     0.0,
	"solver.maxIterations": 0,
	"solver.trustRadius":   0.0,
	"schedule.timePeriods": constants.DefaultTimePeriods,
	"schedule.factors":     []float64{},
	"schedule.rampingCost": constants.DefaultRampingCost,
	"feasibility.enabled":  false,
	"feasibility.fixPg":    true,
	"feasibility.fixQg":    false,
	"feasibility.fixVm":    false,
	"feasibility.fixVa":    false,
	"plot.enabled":         false,
	"plot.outputFile":      "",
	"logging.level":        "",
	"logging.format":       "",
	"logging.outputFile":   "",
	"output.format":        constants.OutputFormatPretty,
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yml")
	v.SetEnvPrefix(constants.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	return v
}

// LoadConfiguration takes a file path as input and loads the YAML-formatted
// configuration there. A relative case path is resolved against the
// directory of the configuration file.
func LoadConfiguration(configPath string) (*Configuration, error) {
	v := newViper()
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file, %s", err)
	}

	conf, err := decode(v)
	if err != nil {
		return nil, err
	}
	if conf.Case != "" && !filepath.IsAbs(conf.Case) {
		conf.Case = filepath.Join(filepath.Dir(configPath), conf.Case)
	}
	return conf, nil
}

// LoadConfigurationFromReader loads a YAML configuration from r. The case
// path is used as given.
func LoadConfigurationFromReader(r io.Reader) (*Configuration, error) {
	v := newViper()
	if err := v.ReadConfig(r); err != nil {
		return nil, fmt.Errorf("error reading config data, %s", err)
	}
	return decode(v)
}

func decode(v *viper.Viper) (*Configuration, error) {
	var configuration Configuration
	if err := v.Unmarshal(&configuration); err != nil {
		return nil, fmt.Errorf("unable to decode into struct, %s", err)
	}
	configuration.Normalize()
	return &configuration, nil
}

// Normalize applies defaults and canonical casing to every section.
func (c *Configuration) Normalize() {
	c.Case = strings.TrimSpace(c.Case)
	c.Formulation = strings.ToLower(strings.TrimSpace(c.Formulation))
	if c.Formulation == "" {
		c.Formulation = constants.FormulationDC
	}
	c.Solver.Normalize()
	c.Schedule.Normalize()
	for i := range c.Scenarios {
		c.Scenarios[i].Name = strings.TrimSpace(c.Scenarios[i].Name)
	}
	c.Output.Format = strings.ToLower(strings.TrimSpace(c.Output.Format))
	if c.Output.Format == "" {
		c.Output.Format = constants.OutputFormatPretty
	}
	if c.Plot.Enabled && strings.TrimSpace(c.Plot.OutputFile) == "" {
		c.Plot.OutputFile = constants.DefaultPlotFile
	}
}

// Validate returns an error describing the first invalid setting.
func (c *Configuration) Validate() error {
	if c == nil {
		return fmt.Errorf("configuration cannot be nil")
	}
	c.Normalize()

	if c.Case == "" {
		return fmt.Errorf("a case file is required")
	}
	if err := validation.ValidateFormulation(c.Formulation); err != nil {
		return err
	}
	if err := c.Solver.Validate(c.Formulation); err != nil {
		return err
	}
	if err := c.Schedule.Validate(); err != nil {
		return err
	}
	if err := c.validateScenarios(); err != nil {
		return err
	}
	if err := c.Feasibility.Validate(); err != nil {
		return err
	}
	if c.Plot.Enabled {
		if err := validation.ValidatePlotFile(c.Plot.OutputFile); err != nil {
			return err
		}
	}
	return validation.ValidateOutputFormat(c.Output.Format)
}

// ValidateConfiguration returns warnings for settings that are valid but
// likely unintended.
func (c *Configuration) ValidateConfiguration() []string {
	var warnings []string
	active := c.ActiveScenarioNames()
	if len(c.Scenarios) > 0 && len(active) == 0 {
		warnings = append(warnings, "no scenario is active, the deterministic model will be built")
	}
	if len(active) > 0 && c.Feasibility.Enabled {
		warnings = append(warnings, "feasibility checks use the deterministic model, scenarios are ignored")
	}
	if c.Feasibility.Enabled && c.Formulation == constants.FormulationNewAC && c.Feasibility.FixPg {
		warnings = append(warnings, "checking a newac dispatch against newac is always feasible")
	}
	if c.Schedule.RampingCost > 0 && c.Schedule.TimePeriods == 1 {
		warnings = append(warnings, "ramping cost has no effect with a single time period")
	}
	return warnings
}
