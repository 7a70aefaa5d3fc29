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

package emic

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/emic/krylov"
)

// SolvingScheme selects how the coupled linear system is solved.
type SolvingScheme int

// Solving schemes.
const (
	// Decoupled solves the diagonal blocks only, ignoring the coupling.
	Decoupled SolvingScheme = iota

	// BlockGS iterates block Gauss-Seidel eliminations.
	BlockGS

	// IDR applies IDR(s) to the full block system.
	IDR

	// GMRES applies restarted GMRES to the full block system.
	GMRES
)

var schemeNames = map[SolvingScheme]string{
	Decoupled: "Decoupled",
	BlockGS:   "BlockGS",
	IDR:       "IDR",
	GMRES:     "GMRES",
}

func (s SolvingScheme) String() string {
	if n, ok := schemeNames[s]; ok {
		return n
	}
	return fmt.Sprintf("SolvingScheme(%d)", int(s))
}

// ParseSolvingScheme returns the scheme with the given name,
// ignoring case.
func ParseSolvingScheme(name string) (SolvingScheme, error) {
	for s, n := range schemeNames {
		if strings.EqualFold(n, name) {
			return s, nil
		}
	}
	return -1, fmt.Errorf("%w: %q", ErrInvalidScheme, name)
}

// SolveStats describes the most recent solve.
type SolveStats struct {
	Scheme     SolvingScheme
	Iterations int
	Residual   float64 // relative residual of the combined system
	Converged  bool
}

type schemeFunc func(c *CoupledModel, rhs *Vector) (SolveStats, error)

// schemes holds the implementations of the solving schemes.
var schemes = map[SolvingScheme]schemeFunc{
	Decoupled: (*CoupledModel).solveDecoupled,
	BlockGS:   (*CoupledModel).solveBlockGS,
	IDR:       (*CoupledModel).solveIDR,
	GMRES:     (*CoupledModel).solveGMRES,
}

// Solve solves J x = rhs with the most recent Jacobians and coupling
// blocks, using the configured scheme, and stores x in the solution
// vector. rhs must not be the solution vector.
//
// Non-convergence is not an error: it is logged and the best available
// iterate is kept. An unknown scheme is logged and returns
// ErrInvalidScheme without touching the solution.
func (c *CoupledModel) Solve(rhs *Vector) error {
	solve, ok := schemes[c.cfg.SolvingScheme]
	if !ok {
		c.ctx.Log.WithField("scheme", c.cfg.SolvingScheme.String()).Warn(ErrInvalidScheme)
		return ErrInvalidScheme
	}
	if rhs.Len() != c.sol.Len() {
		return fmt.Errorf("%w: right-hand side length %d, want %d", ErrDimensionMismatch, rhs.Len(), c.sol.Len())
	}
	name := "CoupledModel: solve " + c.cfg.SolvingScheme.String()
	c.ctx.Prof.Start(name)
	stats, err := solve(c, rhs)
	c.ctx.Prof.Stop(name)
	stats.Scheme = c.cfg.SolvingScheme
	c.lastSolve = stats
	if err != nil {
		return err
	}
	c.ctx.Prof.TrackIterations(name, stats.Iterations)
	c.ctx.Prof.TrackResidual(name, stats.Residual)

	fields := logrus.Fields{
		"scheme":     stats.Scheme.String(),
		"iterations": stats.Iterations,
		"residual":   stats.Residual,
	}
	if !stats.Converged {
		c.ctx.Log.WithFields(fields).Warn("coupled solve did not converge")
		return nil
	}
	c.ctx.Log.WithFields(fields).Info("coupled solve")
	return nil
}

// LastSolve returns the statistics of the most recent solve.
func (c *CoupledModel) LastSolve() SolveStats { return c.lastSolve }

func (c *CoupledModel) solveDecoupled(rhs *Vector) (SolveStats, error) {
	if err := c.ocean.Solve(rhs.Ocean()); err != nil {
		return SolveStats{}, fmt.Errorf("emic: ocean solve: %v", err)
	}
	if err := c.atmos.Solve(rhs.Atmos()); err != nil {
		return SolveStats{}, fmt.Errorf("emic: atmosphere solve: %v", err)
	}
	return SolveStats{
		Iterations: 1,
		Residual:   c.ComputeResidual(rhs),
		Converged:  true,
	}, nil
}

// solveBlockGS alternates the eliminations
//
//	D x2 = b2 - C x1
//	A x1 = b1 - B x2
//
// starting from x1 = 0, and finishes with a D solve so that x2 is
// consistent with the final x1.
func (c *CoupledModel) solveBlockGS(rhs *Vector) (SolveStats, error) {
	c.sol.Zero()
	x := c.sol.Copy()
	t := c.NewVector()
	oldResidual := c.ComputeResidual(rhs)
	stats := SolveStats{Residual: oldResidual}
	for stats.Iterations < c.cfg.MaxGSIterations {
		stats.Iterations++

		c.c.Apply(x, t)
		t.Update(1, rhs, -1)
		if err := c.atmos.Solve(t.Atmos()); err != nil {
			return stats, fmt.Errorf("emic: atmosphere solve: %v", err)
		}
		x = c.sol.Copy()

		c.b.Apply(x, t)
		t.Update(1, rhs, -1)
		if err := c.ocean.Solve(t.Ocean()); err != nil {
			return stats, fmt.Errorf("emic: ocean solve: %v", err)
		}
		x = c.sol.Copy()

		stats.Residual = c.ComputeResidual(rhs)
		c.ctx.Log.WithFields(logrus.Fields{
			"iteration": stats.Iterations,
			"residual":  stats.Residual,
		}).Debug("block Gauss-Seidel")
		if stats.Residual > oldResidual {
			c.ctx.Log.WithFields(logrus.Fields{
				"iteration":         stats.Iterations,
				"residual":          stats.Residual,
				"previous residual": oldResidual,
			}).Warn("block Gauss-Seidel residual increased")
		}
		oldResidual = stats.Residual
		if stats.Residual < c.cfg.GSTolerance {
			stats.Converged = true
			break
		}
	}

	c.c.Apply(x, t)
	t.Update(1, rhs, -1)
	if err := c.atmos.Solve(t.Atmos()); err != nil {
		return stats, fmt.Errorf("emic: atmosphere solve: %v", err)
	}
	stats.Residual = c.ComputeResidual(rhs)
	if !stats.Converged {
		c.ctx.Log.WithFields(logrus.Fields{
			"iterations": stats.Iterations,
			"residual":   stats.Residual,
			"tolerance":  c.cfg.GSTolerance,
		}).Warn("block Gauss-Seidel tolerance not reached")
	}
	return stats, nil
}

func (c *CoupledModel) solveIDR(rhs *Vector) (SolveStats, error) {
	if p := c.cfg.ClearSearchSpacePeriod; p > 0 && c.idrSolves%p == 0 {
		c.ctx.Log.Debug("clearing IDR search space")
		c.idr.ClearSearchSpace()
	}
	c.idrSolves++
	c.sol.Zero()
	r := c.idr.Solve(c.matrixOperator(), c.preconOperator(), rhs.Data, c.sol.Data, c.cfg.Krylov)
	return SolveStats{Iterations: r.Iterations, Residual: c.ComputeResidual(rhs), Converged: r.Converged}, nil
}

func (c *CoupledModel) solveGMRES(rhs *Vector) (SolveStats, error) {
	c.sol.Zero()
	r := krylov.GMRES(c.matrixOperator(), c.preconOperator(), rhs.Data, c.sol.Data, c.cfg.Krylov)
	return SolveStats{Iterations: r.Iterations, Residual: c.ComputeResidual(rhs), Converged: r.Converged}, nil
}

func (c *CoupledModel) matrixOperator() krylov.Operator {
	return krylov.OperatorFunc(func(x, y []float64) {
		c.ApplyMatrix(viewVector(x, c.state), viewVector(y, c.state))
	})
}

func (c *CoupledModel) preconOperator() krylov.Operator {
	return krylov.OperatorFunc(func(x, y []float64) {
		c.ApplyPrecon(viewVector(x, c.state), viewVector(y, c.state))
	})
}

// ApplyMatrix sets out = J v for the coupled Jacobian
// J = [A B; C D]. v and out must not overlap.
func (c *CoupledModel) ApplyMatrix(v, out *Vector) {
	c.ctx.Prof.Start("CoupledModel: apply matrix")
	defer c.ctx.Prof.Stop("CoupledModel: apply matrix")
	c.ocean.ApplyMatrix(v.Ocean(), out.Ocean())
	c.atmos.ApplyMatrix(v.Atmos(), out.Atmos())
	t := c.NewVector()
	c.b.Apply(v, t)
	out.Add(t)
	c.c.Apply(v, t)
	out.Add(t)
}

// ApplyPrecon sets out to the preconditioner applied to v. The
// preconditioner is block diagonal unless coupled preconditioning is
// enabled, in which case block Gauss-Seidel sub-iterations with the
// sub-model preconditioners are carried out, starting from a zero ocean
// part and ending with an atmosphere step. v and out must not overlap.
func (c *CoupledModel) ApplyPrecon(v, out *Vector) {
	c.ctx.Prof.Start("CoupledModel: apply preconditioner")
	defer c.ctx.Prof.Stop("CoupledModel: apply preconditioner")
	if !c.cfg.CoupledPrecon || c.cfg.PreconGSIterations < 1 {
		c.ocean.ApplyPrecon(v.Ocean(), out.Ocean())
		c.atmos.ApplyPrecon(v.Atmos(), out.Atmos())
		return
	}
	x := c.NewVector()
	t := c.NewVector()
	for i := 0; i < c.cfg.PreconGSIterations; i++ {
		c.c.Apply(x, t)
		t.Update(1, v, -1)
		c.atmos.ApplyPrecon(t.Atmos(), x.Atmos())
		c.b.Apply(x, t)
		t.Update(1, v, -1)
		c.ocean.ApplyPrecon(t.Ocean(), x.Ocean())
	}
	c.c.Apply(x, t)
	t.Update(1, v, -1)
	c.atmos.ApplyPrecon(t.Atmos(), x.Atmos())
	copy(out.Data, x.Data)
}

// ComputeResidual returns the relative residual ‖rhs - J x‖/‖rhs‖ of
// the current solution x.
func (c *CoupledModel) ComputeResidual(rhs *Vector) float64 {
	return c.Residual(rhs, c.sol, true)
}

// Residual returns ‖rhs - J x‖, divided by ‖rhs‖ if relative is true
// and rhs is nonzero.
func (c *CoupledModel) Residual(rhs, x *Vector, relative bool) float64 {
	r := c.NewVector()
	c.ApplyMatrix(x, r)
	r.Update(1, rhs, -1)
	nr := r.Norm()
	if relative {
		if nb := rhs.Norm(); nb > 0 {
			return nr / nb
		}
	}
	return nr
}
