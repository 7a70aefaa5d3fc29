/*
Copyright © 2019 the EMIC authors.
This file is part of EMIC.

EMIC is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

EMIC is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with EMIC.  If not, see <http://www.gnu.org/licenses/>.
*/

// Package emicutil contains the command-line interface of EMIC and the
// functions that set up and run simulations from a configuration.
package emicutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/lnashier/viper"
	"github.com/spatialmodel/emic"
	"github.com/spatialmodel/emic/atmosphere"
	"github.com/spatialmodel/emic/ocean"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Cfg holds configuration information.
var Cfg *viper.Viper

var options []struct {
	name, usage, shorthand string
	defaultVal             interface{}
	flagsets               []*pflag.FlagSet
}

func init() {
	// Options are the configuration options available to EMIC.
	options = []struct {
		name, usage, shorthand string
		defaultVal             interface{}
		flagsets               []*pflag.FlagSet
	}{
		{
			name: "config",
			usage: `
              config specifies the configuration file location.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "Grid.N",
			usage: `
              Grid.N is the number of grid points in longitude.`,
			defaultVal: 16,
			flagsets:   []*pflag.FlagSet{solveCmd.Flags()},
		},
		{
			name: "Grid.M",
			usage: `
              Grid.M is the number of grid points in latitude.`,
			defaultVal: 8,
			flagsets:   []*pflag.FlagSet{solveCmd.Flags()},
		},
		{
			name: "Grid.XMin",
			usage: `
              Grid.XMin is the western edge of the domain in degrees longitude.`,
			defaultVal: 286.0,
			flagsets:   []*pflag.FlagSet{solveCmd.Flags()},
		},
		{
			name: "Grid.XMax",
			usage: `
              Grid.XMax is the eastern edge of the domain in degrees longitude.`,
			defaultVal: 350.0,
			flagsets:   []*pflag.FlagSet{solveCmd.Flags()},
		},
		{
			name: "Grid.YMin",
			usage: `
              Grid.YMin is the southern edge of the domain in degrees latitude.`,
			defaultVal: 10.0,
			flagsets:   []*pflag.FlagSet{solveCmd.Flags()},
		},
		{
			name: "Grid.YMax",
			usage: `
              Grid.YMax is the northern edge of the domain in degrees latitude.`,
			defaultVal: 74.0,
			flagsets:   []*pflag.FlagSet{solveCmd.Flags()},
		},
		{
			name: "Grid.Periodic",
			usage: `
              Grid.Periodic makes the domain wrap around in longitude.`,
			defaultVal: false,
			flagsets:   []*pflag.FlagSet{solveCmd.Flags()},
		},
		{
			name: "Grid.LandWest",
			usage: `
              Grid.LandWest is the number of land columns at the western
              edge of the domain.`,
			defaultVal: 0,
			flagsets:   []*pflag.FlagSet{solveCmd.Flags()},
		},
		{
			name: "Grid.LandEast",
			usage: `
              Grid.LandEast is the number of land columns at the eastern
              edge of the domain.`,
			defaultVal: 0,
			flagsets:   []*pflag.FlagSet{solveCmd.Flags()},
		},
		{
			name: "Coupling.SolvingScheme",
			usage: `
              Coupling.SolvingScheme selects the coupled linear solver: Decoupled,
              BlockGS, IDR or GMRES. Unknown values fall back to GMRES.`,
			defaultVal: "GMRES",
			flagsets:   []*pflag.FlagSet{solveCmd.Flags()},
		},
		{
			name: "Coupling.UseHashing",
			usage: `
              Coupling.UseHashing skips recomputations when the state and
              parameters have not changed.`,
			defaultVal: true,
			flagsets:   []*pflag.FlagSet{solveCmd.Flags()},
		},
		{
			name: "Coupling.MaxGSIterations",
			usage: `
              Coupling.MaxGSIterations is the iteration limit of the block
              Gauss-Seidel scheme.`,
			defaultVal: 20,
			flagsets:   []*pflag.FlagSet{solveCmd.Flags()},
		},
		{
			name: "Coupling.GSTolerance",
			usage: `
              Coupling.GSTolerance is the relative residual tolerance of the
              block Gauss-Seidel scheme.`,
			defaultVal: 1e-10,
			flagsets:   []*pflag.FlagSet{solveCmd.Flags()},
		},
		{
			name: "Coupling.PreconRebuildStride",
			usage: `
              Coupling.PreconRebuildStride is the number of synchronizations
              between rebuilds of the ocean preconditioner. 0 never rebuilds it.`,
			defaultVal: 1,
			flagsets:   []*pflag.FlagSet{solveCmd.Flags()},
		},
		{
			name: "Coupling.CoupledPrecon",
			usage: `
              Coupling.CoupledPrecon preconditions the Krylov schemes with block
              Gauss-Seidel sweeps instead of the block diagonal.`,
			defaultVal: false,
			flagsets:   []*pflag.FlagSet{solveCmd.Flags()},
		},
		{
			name: "Coupling.PreconGSIterations",
			usage: `
              Coupling.PreconGSIterations is the number of block Gauss-Seidel
              sweeps in the coupled preconditioner.`,
			defaultVal: 1,
			flagsets:   []*pflag.FlagSet{solveCmd.Flags()},
		},
		{
			name: "Coupling.ReadyTimeout",
			usage: `
              Coupling.ReadyTimeout bounds the wait for the sub-models to become
              ready, for example "30s" or "2m".`,
			defaultVal: "1m",
			flagsets:   []*pflag.FlagSet{solveCmd.Flags()},
		},
		{
			name: "Coupling.BlockCacheSize",
			usage: `
              Coupling.BlockCacheSize is the number of land/sea masks whose
              coupling blocks are kept.`,
			defaultVal: 4,
			flagsets:   []*pflag.FlagSet{solveCmd.Flags()},
		},
		{
			name: "Krylov.Tolerance",
			usage: `
              Krylov.Tolerance is the relative residual tolerance of the IDR
              and GMRES schemes.`,
			defaultVal: 1e-8,
			flagsets:   []*pflag.FlagSet{solveCmd.Flags()},
		},
		{
			name: "Krylov.MaxIterations",
			usage: `
              Krylov.MaxIterations is the iteration limit of the IDR and GMRES
              schemes.`,
			defaultVal: 1000,
			flagsets:   []*pflag.FlagSet{solveCmd.Flags()},
		},
		{
			name: "Krylov.Restart",
			usage: `
              Krylov.Restart is the GMRES restart length.`,
			defaultVal: 100,
			flagsets:   []*pflag.FlagSet{solveCmd.Flags()},
		},
		{
			name: "Krylov.IDRS",
			usage: `
              Krylov.IDRS is the dimension of the IDR shadow space.`,
			defaultVal: 4,
			flagsets:   []*pflag.FlagSet{solveCmd.Flags()},
		},
		{
			name: "Krylov.ClearSearchSpacePeriod",
			usage: `
              Krylov.ClearSearchSpacePeriod is the number of IDR solves between
              resets of the shadow space. 0 never resets it.`,
			defaultVal: 10,
			flagsets:   []*pflag.FlagSet{solveCmd.Flags()},
		},
		{
			name: "Continuation.Parameter",
			usage: `
              Continuation.Parameter is the name of the continuation parameter
              to set before solving, for example "Combined Forcing". Leave
              empty to keep the values from the parameter files.`,
			defaultVal: "Combined Forcing",
			flagsets:   []*pflag.FlagSet{solveCmd.Flags()},
		},
		{
			name: "Continuation.Value",
			usage: `
              Continuation.Value is the value of the continuation parameter.`,
			defaultVal: 1.0,
			flagsets:   []*pflag.FlagSet{solveCmd.Flags()},
		},
		{
			name: "Newton.MaxIterations",
			usage: `
              Newton.MaxIterations is the iteration limit of the Newton solver.`,
			defaultVal: 20,
			flagsets:   []*pflag.FlagSet{solveCmd.Flags()},
		},
		{
			name: "Newton.Tolerance",
			usage: `
              Newton.Tolerance is the tolerance on the norm of the right-hand side.`,
			defaultVal: 1e-8,
			flagsets:   []*pflag.FlagSet{solveCmd.Flags()},
		},
		{
			name: "AtmosphereParams",
			usage: `
              AtmosphereParams is the path to a TOML file of atmosphere
              parameters. Parameters not in the file keep their defaults.
              'emic params' prints the defaults.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{solveCmd.Flags()},
		},
		{
			name: "OceanParams",
			usage: `
              OceanParams is the path to a TOML file of ocean parameters.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{solveCmd.Flags()},
		},
		{
			name: "LogFile",
			usage: `
              LogFile is the path to a file that receives a copy of the log.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{solveCmd.Flags()},
		},
		{
			name: "LogLevel",
			usage: `
              LogLevel is the minimum level of logged messages: debug, info,
              warning or error.`,
			defaultVal: "info",
			flagsets:   []*pflag.FlagSet{solveCmd.Flags()},
		},
		{
			name: "ProfileFile",
			usage: `
              ProfileFile is the path where the timing profile is written.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{solveCmd.Flags()},
		},
		{
			name: "ResidualPlot",
			usage: `
              ResidualPlot is the path where a PNG plot of the Newton residuals
              is written.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{solveCmd.Flags()},
		},
		{
			name: "OutputFile",
			usage: `
              OutputFile is the path where the output variables are written
              in JSON format.`,
			defaultVal: "emic_output.json",
			flagsets:   []*pflag.FlagSet{solveCmd.Flags()},
		},
		{
			name: "OutputVariables",
			usage: `
              OutputVariables specifies the output variables and the expressions
              that compute them from the model fields, as a map of
              {"name": "expression"}. Ocean fields are TO, SO, EO and QOA;
              atmosphere fields are TT, QQ, AA, E, P, QLW, QSW, QSH, QLH and TL.
              The functions sum, mean, min, max and exp are available.`,
			defaultVal: map[string]string{
				"TT":      "TT",
				"TO":      "TO",
				"TTMean":  "mean(TT)",
				"TOMax":   "max(TO)",
				"PGlobal": "mean(P)",
			},
			flagsets: []*pflag.FlagSet{solveCmd.Flags()},
		},
	}

	Cfg = viper.New()

	// Set the prefix for configuration environment variables.
	Cfg.SetEnvPrefix("EMIC")
	Cfg.AutomaticEnv()

	for _, option := range options {
		for i, set := range option.flagsets {
			if i != 0 { // We don't want to create the same flag twice.
				set.AddFlag(option.flagsets[0].Lookup(option.name))
				continue
			}
			switch v := option.defaultVal.(type) {
			case string:
				set.StringP(option.name, option.shorthand, v, option.usage)
			case bool:
				set.BoolP(option.name, option.shorthand, v, option.usage)
			case int:
				set.IntP(option.name, option.shorthand, v, option.usage)
			case float64:
				set.Float64P(option.name, option.shorthand, v, option.usage)
			case map[string]string:
				b := bytes.NewBuffer(nil)
				e := json.NewEncoder(b)
				e.Encode(v)
				set.StringP(option.name, option.shorthand, b.String(), option.usage)
			default:
				panic("invalid argument type")
			}
			Cfg.BindPFlag(option.name, set.Lookup(option.name))
		}
	}
}

func init() {
	// Link the commands together.
	Root.AddCommand(versionCmd)
	Root.AddCommand(solveCmd)
	Root.AddCommand(paramsCmd)
}

// setConfig finds and reads in the configuration file, if there is one.
func setConfig() error {
	if cfgpath := Cfg.GetString("config"); cfgpath != "" {
		Cfg.SetConfigFile(os.ExpandEnv(cfgpath))
		if err := Cfg.ReadInConfig(); err != nil {
			return fmt.Errorf("emic: problem reading configuration file: %v", err)
		}
	}
	return nil
}

// checkOutputFile makes sure that the output file is specified and its
// directory exists, and expands any environment variables.
func checkOutputFile(f string) (string, error) {
	if f == "" {
		return "", fmt.Errorf(`you need to specify an output file configuration variable (for example: OutputFile="output.json")`)
	}
	f = os.ExpandEnv(f)
	if _, err := os.Stat(filepath.Dir(f)); err != nil {
		return f, fmt.Errorf("emic: the OutputFile directory doesn't exist: %v", err)
	}
	return f, nil
}

// Root is the main command.
var Root = &cobra.Command{
	Use:   "emic",
	Short: "A coupled ocean-atmosphere model of intermediate complexity.",
	Long: `EMIC couples a slab ocean and an energy and moisture balance atmosphere
and computes their joint steady states.
Use the subcommands specified below to access the model functionality.

Configuration can be changed by using a configuration file (and providing the
path to the file using the --config flag), by using command-line arguments,
or by setting environment variables in the format 'EMIC_var' where 'var' is the
name of the variable to be set. Many configuration variables are additionally
allowed to contain environment variables within them.
Refer to https://github.com/spf13/viper for additional configuration information.`,
	DisableAutoGenTag: true,
	PersistentPreRunE: func(*cobra.Command, []string) error { return setConfig() },
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Long:  "version prints the version number of this version of EMIC.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("EMIC v%s\n", emic.Version)
	},
	DisableAutoGenTag: true,
}

// solveCmd is a command that computes a steady state.
var solveCmd = &cobra.Command{
	Use:   "solve",
	Short: "Compute a steady state.",
	Long: `solve computes the steady state of the coupled model with Newton's
method, starting from rest, and writes the output variables to OutputFile.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		log, closeLog, err := newLogger(Cfg.GetString("LogFile"), Cfg.GetString("LogLevel"))
		if err != nil {
			return err
		}
		defer closeLog()

		g, err := GridConfig(Cfg)
		if err != nil {
			return err
		}
		mask, err := landMask(g, Cfg.GetInt("Grid.LandWest"), Cfg.GetInt("Grid.LandEast"))
		if err != nil {
			return err
		}
		cc, err := CoupledConfig(Cfg, log)
		if err != nil {
			return err
		}
		nc, err := newtonConfig(Cfg)
		if err != nil {
			return err
		}
		ap, err := AtmosphereParams(Cfg.GetString("AtmosphereParams"))
		if err != nil {
			return err
		}
		op, err := OceanParams(Cfg.GetString("OceanParams"))
		if err != nil {
			return err
		}
		outputFile, err := checkOutputFile(Cfg.GetString("OutputFile"))
		if err != nil {
			return err
		}
		vars, err := GetStringMapString("OutputVariables", Cfg)
		if err != nil {
			return err
		}
		outputVars, err := checkOutputVars(vars)
		if err != nil {
			return err
		}

		ctx := emic.NewContext(log)
		c, err := NewModel(ctx, g, mask, ap, op, cc)
		if err != nil {
			return err
		}
		return Run(ctx, c,
			os.ExpandEnv(Cfg.GetString("Continuation.Parameter")),
			Cfg.GetFloat64("Continuation.Value"),
			nc, outputVars, outputFile,
			Cfg.GetString("ResidualPlot"),
			Cfg.GetString("ProfileFile"),
		)
	},
	DisableAutoGenTag: true,
}

// paramsCmd prints the default physical parameters.
var paramsCmd = &cobra.Command{
	Use:   "params",
	Short: "Print the default physical parameters.",
	Long: `params prints the default atmosphere and ocean parameters in TOML
format. The output of 'emic params atmosphere' or 'emic params ocean' can be
edited and passed back through AtmosphereParams or OceanParams.`,
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: []string{"atmosphere", "ocean"},
	RunE: func(cmd *cobra.Command, args []string) error {
		which := "atmosphere"
		if len(args) == 1 {
			which = args[0]
		}
		e := toml.NewEncoder(cmd.OutOrStdout())
		switch which {
		case "atmosphere":
			return e.Encode(atmosphere.DefaultParams())
		case "ocean":
			return e.Encode(ocean.DefaultParams())
		default:
			return fmt.Errorf("emic: unknown model %q; use atmosphere or ocean", which)
		}
	},
	DisableAutoGenTag: true,
}
