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

package emicutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/lnashier/viper"
	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/emic"
	"github.com/spatialmodel/emic/atmosphere"
	"github.com/spatialmodel/emic/krylov"
	"github.com/spatialmodel/emic/ocean"
	"github.com/spf13/cast"
)

// GridConfig unmarshals the horizontal grid from a viper configuration.
func GridConfig(cfg *viper.Viper) (emic.Grid, error) {
	g := emic.Grid{
		N:        cfg.GetInt("Grid.N"),
		M:        cfg.GetInt("Grid.M"),
		XMin:     cfg.GetFloat64("Grid.XMin"),
		XMax:     cfg.GetFloat64("Grid.XMax"),
		YMin:     cfg.GetFloat64("Grid.YMin"),
		YMax:     cfg.GetFloat64("Grid.YMax"),
		Periodic: cfg.GetBool("Grid.Periodic"),
	}
	if err := g.Validate(); err != nil {
		return g, fmt.Errorf("parsing grid configuration: %v", err)
	}
	return g, nil
}

// landMask returns an idealized land/sea mask with continents filling
// the west westernmost and east easternmost columns of the grid.
func landMask(g emic.Grid, west, east int) ([]int, error) {
	if west < 0 || east < 0 || west+east >= g.N {
		return nil, fmt.Errorf("parsing grid configuration: Grid.LandWest=%d and Grid.LandEast=%d "+
			"leave no ocean in a grid %d points wide", west, east, g.N)
	}
	mask := make([]int, g.N*g.M)
	for s := range mask {
		if i := s % g.N; i < west || i >= g.N-east {
			mask[s] = 1
		}
	}
	return mask, nil
}

// CoupledConfig unmarshals the coupled solver settings. An unknown
// solving scheme is logged and replaced by GMRES.
func CoupledConfig(cfg *viper.Viper, log logrus.FieldLogger) (emic.Config, error) {
	c := emic.DefaultConfig()
	name := os.ExpandEnv(cfg.GetString("Coupling.SolvingScheme"))
	s, err := emic.ParseSolvingScheme(name)
	if err != nil {
		log.WithField("scheme", name).Warn("unknown solving scheme; using GMRES")
		s = emic.GMRES
	}
	c.SolvingScheme = s
	c.UseHashing = cfg.GetBool("Coupling.UseHashing")
	c.MaxGSIterations = cfg.GetInt("Coupling.MaxGSIterations")
	c.GSTolerance = cfg.GetFloat64("Coupling.GSTolerance")
	c.PreconRebuildStride = cfg.GetInt("Coupling.PreconRebuildStride")
	c.CoupledPrecon = cfg.GetBool("Coupling.CoupledPrecon")
	c.PreconGSIterations = cfg.GetInt("Coupling.PreconGSIterations")
	c.BlockCacheSize = cfg.GetInt("Coupling.BlockCacheSize")
	c.ReadyTimeout, err = cast.ToDurationE(cfg.Get("Coupling.ReadyTimeout"))
	if err != nil {
		return c, fmt.Errorf("parsing Coupling.ReadyTimeout: %v", err)
	}
	c.Krylov = krylov.Settings{
		Tolerance:     cfg.GetFloat64("Krylov.Tolerance"),
		MaxIterations: cfg.GetInt("Krylov.MaxIterations"),
		Restart:       cfg.GetInt("Krylov.Restart"),
	}
	c.IDRS = cfg.GetInt("Krylov.IDRS")
	c.ClearSearchSpacePeriod = cfg.GetInt("Krylov.ClearSearchSpacePeriod")

	ints := []int{c.MaxGSIterations, c.Krylov.MaxIterations, c.IDRS}
	names := []string{"Coupling.MaxGSIterations", "Krylov.MaxIterations", "Krylov.IDRS"}
	for i, v := range ints {
		if v < 1 {
			return c, fmt.Errorf("parsing solver configuration: %s=%d but should be >0", names[i], v)
		}
	}
	floats := []float64{c.GSTolerance, c.Krylov.Tolerance}
	names = []string{"Coupling.GSTolerance", "Krylov.Tolerance"}
	for i, v := range floats {
		if !(v > 0) {
			return c, fmt.Errorf("parsing solver configuration: %s=%g but should be >0", names[i], v)
		}
	}
	return c, nil
}

// NewtonConfig holds the stopping criteria of the Newton iteration.
type NewtonConfig struct {
	MaxIterations int
	Tolerance     float64 // on the 2-norm of the right-hand side
}

func newtonConfig(cfg *viper.Viper) (NewtonConfig, error) {
	n := NewtonConfig{
		MaxIterations: cfg.GetInt("Newton.MaxIterations"),
		Tolerance:     cfg.GetFloat64("Newton.Tolerance"),
	}
	if n.MaxIterations < 0 || !(n.Tolerance > 0) {
		return n, fmt.Errorf("parsing Newton configuration: MaxIterations=%d, Tolerance=%g",
			n.MaxIterations, n.Tolerance)
	}
	return n, nil
}

// AtmosphereParams reads the atmosphere parameters from the TOML file
// at path. An empty path gives the defaults.
func AtmosphereParams(path string) (atmosphere.Params, error) {
	if path == "" {
		return atmosphere.DefaultParams(), nil
	}
	f, err := os.Open(os.ExpandEnv(path))
	if err != nil {
		return atmosphere.Params{}, fmt.Errorf("emicutil: opening atmosphere parameters: %v", err)
	}
	defer f.Close()
	return atmosphere.ReadParams(f)
}

// OceanParams reads the ocean parameters from the TOML file at path.
// An empty path gives the defaults.
func OceanParams(path string) (ocean.Params, error) {
	if path == "" {
		return ocean.DefaultParams(), nil
	}
	f, err := os.Open(os.ExpandEnv(path))
	if err != nil {
		return ocean.Params{}, fmt.Errorf("emicutil: opening ocean parameters: %v", err)
	}
	defer f.Close()
	return ocean.ReadParams(f)
}

// checkOutputVars removes end lines and expands environment
// variables in the output variables.
func checkOutputVars(vars map[string]string) (map[string]string, error) {
	if len(vars) == 0 {
		return nil, fmt.Errorf("there are no variables specified for output. Please fill in " +
			"the OutputVariables configuration and try again")
	}
	o := make(map[string]string, len(vars))
	for k, v := range vars {
		v = strings.Replace(v, "\r\n", " ", -1)
		v = strings.Replace(v, "\n", " ", -1)
		o[os.ExpandEnv(k)] = os.ExpandEnv(v)
	}
	return o, nil
}

// GetStringMapString returns a map[string]string from a viper configuration,
// accounting for the fact that it might be a json object if it was set
// from a command line argument.
func GetStringMapString(varName string, cfg *viper.Viper) (map[string]string, error) {
	i := cfg.Get(varName)
	switch v := i.(type) {
	case map[string]string:
		return v, nil
	case map[string]interface{}:
		return cast.ToStringMapStringE(v)
	case string:
		if v == "" {
			return make(map[string]string), nil
		}
		d := json.NewDecoder(bytes.NewBufferString(v))
		o := make(map[string]string)
		if err := d.Decode(&o); err != nil {
			return nil, fmt.Errorf("parsing %s: %v", varName, err)
		}
		return o, nil
	default:
		return nil, fmt.Errorf("invalid type for variable %s: %#v", varName, i)
	}
}

// newLogger returns a logger writing to standard error and, if
// logFile is not empty, to that file. The returned function closes
// the file.
func newLogger(logFile, level string) (*logrus.Logger, func() error, error) {
	log := logrus.New()
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, nil, fmt.Errorf("emicutil: %v", err)
	}
	log.Level = lvl
	if logFile == "" {
		log.Out = os.Stderr
		return log, func() error { return nil }, nil
	}
	f, err := os.Create(os.ExpandEnv(logFile))
	if err != nil {
		return nil, nil, fmt.Errorf("emicutil: problem creating log file: %v", err)
	}
	log.Out = io.MultiWriter(os.Stderr, f)
	return log, f.Close, nil
}
