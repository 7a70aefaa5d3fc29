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
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/emic"
	"github.com/spatialmodel/emic/atmosphere"
	"github.com/spatialmodel/emic/ocean"
)

// NewModel builds the ocean and the atmosphere on grid g with land/sea
// mask mask and couples them.
func NewModel(ctx *emic.Context, g emic.Grid, mask []int, ap atmosphere.Params, op ocean.Params,
	cfg emic.Config) (*emic.CoupledModel, error) {
	o, err := ocean.New(ctx, g, op, mask)
	if err != nil {
		return nil, err
	}
	a, err := atmosphere.New(ctx, g, ap)
	if err != nil {
		return nil, err
	}
	return emic.NewCoupledModel(ctx, o, a, cfg)
}

// History records the progress of a Newton iteration.
type History struct {
	Residuals       []float64 // ‖F(x)‖ before each update
	SolveIterations []int
	SolveResiduals  []float64
	Converged       bool
}

// Newton solves F(x) = 0 for the coupled model at fixed parameters,
// starting from the current state. Not converging within
// nc.MaxIterations is logged, not returned as an error.
func Newton(ctx *emic.Context, c *emic.CoupledModel, nc NewtonConfig) (History, error) {
	var h History
	for it := 0; ; it++ {
		c.PreProcess()
		c.ComputeRHS()
		r := c.RHS(emic.View).Norm()
		h.Residuals = append(h.Residuals, r)
		ctx.Prof.TrackResidual("Newton", r)
		ctx.Log.WithFields(logrus.Fields{
			"iteration": it,
			"residual":  r,
		}).Info("Newton")
		if r < nc.Tolerance {
			h.Converged = true
			c.PostProcess()
			return h, nil
		}
		if it >= nc.MaxIterations {
			ctx.Log.WithFields(logrus.Fields{
				"iterations": it,
				"residual":   r,
				"tolerance":  nc.Tolerance,
			}).Warn("Newton iteration did not converge")
			c.PostProcess()
			return h, nil
		}

		c.ComputeJacobian()
		b := c.RHS(emic.Copy)
		b.Scale(-1)
		if err := c.Solve(b); err != nil {
			return h, fmt.Errorf("emicutil: Newton iteration %d: %v", it, err)
		}
		s := c.LastSolve()
		h.SolveIterations = append(h.SolveIterations, s.Iterations)
		h.SolveResiduals = append(h.SolveResiduals, s.Residual)
		c.State(emic.View).Add(c.Solution(emic.View))
		c.PostProcess()
	}
}

// Run finds the steady state of the coupled model c with continuation
// parameter par set to value, and writes the output variables to
// outputFile in JSON format. If plotFile is not empty, the Newton
// residual history is plotted to it, and if profileFile is not empty,
// the timing profile is written to it.
func Run(ctx *emic.Context, c *emic.CoupledModel, par string, value float64, nc NewtonConfig,
	outputVars map[string]string, outputFile, plotFile, profileFile string) error {
	startTime := time.Now()

	o, err := emic.NewOutputter(outputVars, nil)
	if err != nil {
		return err
	}
	if err := o.CheckModelVars(c.Diagnostics()); err != nil {
		return err
	}

	if par != "" {
		c.SetPar(par, value)
		if _, ok := c.Par(par); !ok {
			return fmt.Errorf("emicutil: unknown continuation parameter %q", par)
		}
	}
	h, err := Newton(ctx, c, nc)
	if err != nil {
		return err
	}

	out, err := o.Evaluate(c.Diagnostics())
	if err != nil {
		return err
	}
	if err := writeOutput(outputFile, out); err != nil {
		return err
	}
	if plotFile != "" {
		if err := PlotResiduals(os.ExpandEnv(plotFile), h); err != nil {
			return err
		}
	}
	if profileFile != "" {
		f, err := os.Create(os.ExpandEnv(profileFile))
		if err != nil {
			return fmt.Errorf("emicutil: creating profile file: %v", err)
		}
		if err := ctx.Prof.Write(f); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
	}
	ctx.Log.WithFields(logrus.Fields{
		"converged":  h.Converged,
		"iterations": len(h.Residuals) - 1,
		"time":       time.Since(startTime),
	}).Info("simulation complete")
	return nil
}

func writeOutput(path string, out map[string][]float64) error {
	f, err := os.Create(os.ExpandEnv(path))
	if err != nil {
		return fmt.Errorf("emicutil: creating output file: %v", err)
	}
	e := json.NewEncoder(f)
	e.SetIndent("", "  ")
	if err := e.Encode(out); err != nil {
		f.Close()
		return fmt.Errorf("emicutil: writing output: %v", err)
	}
	return f.Close()
}
