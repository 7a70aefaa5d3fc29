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

// Package emic couples an ocean model and an atmosphere model into a
// single nonlinear system and solves the linear systems that arise in
// Newton iterations on it.
package emic

import (
	"github.com/ctessum/sparse"
	"github.com/spatialmodel/emic/depgrid"
)

// Version gives the version number.
const Version = "0.3.0"

// AccessMode selects whether a vector accessor returns a view that
// aliases the owner's storage or an independent copy.
type AccessMode byte

// Access modes.
const (
	View AccessMode = 'V'
	Copy AccessMode = 'C'
)

// Unknown numbers shared by the ocean and atmosphere models. The
// coupling terms are expressed in terms of these.
const (
	// Atmosphere unknowns per grid point.
	AtmosTT = 1 // temperature anomaly
	AtmosQQ = 2 // humidity anomaly
	AtmosAA = 3 // albedo anomaly

	// Atmosphere auxiliary unknowns.
	AtmosPP = 1 // global precipitation anomaly

	// Ocean unknowns per grid point.
	OceanTT = 1 // temperature
	OceanSS = 2 // salinity
)

// Storage holds the slices that a sub-model adopts as its state,
// right-hand side and solution vectors.
type Storage struct {
	State, RHS, Solution []float64
}

// Model is the interface shared by the sub-models of a coupled model.
type Model interface {
	// Layout returns the ordering of the model's unknowns.
	Layout() depgrid.Layout

	// Bind makes the model store its state, right-hand side and
	// solution in the given slices, which must have length
	// Layout().Dim(). The current values are copied into them.
	Bind(s Storage) error

	// ComputeRHS evaluates the right-hand side F(x) at the current
	// state and external inputs.
	ComputeRHS()

	// ComputeJacobian evaluates the Jacobian dF/dx at the current
	// state and external inputs.
	ComputeJacobian()

	// ComputeMassMat evaluates the diagonal mass matrix.
	ComputeMassMat()

	// Solve solves J x = rhs with the most recent Jacobian and
	// stores x in the solution vector.
	Solve(rhs []float64) error

	// ApplyMatrix sets out = J v.
	ApplyMatrix(v, out []float64)

	// ApplyPrecon sets out to the preconditioner applied to v,
	// an approximation of J⁻¹ v.
	ApplyPrecon(v, out []float64)

	// State, RHS and Solution return the corresponding vectors,
	// either as a view or as a copy. They return nil for an invalid
	// mode.
	State(mode AccessMode) []float64
	RHS(mode AccessMode) []float64
	Solution(mode AccessMode) []float64

	// Par returns the value of the named continuation parameter,
	// and whether the model knows it.
	Par(name string) (float64, bool)

	// SetPar sets the named continuation parameter. It returns
	// false if the model does not know the parameter.
	SetPar(name string, value float64) bool

	// PreProcess and PostProcess are called before and after a
	// solution step of the outer driver.
	PreProcess()
	PostProcess()
}

// OceanModel is the ocean side of a coupled model.
type OceanModel interface {
	Model

	// SurfaceTemperature returns the sea surface temperature at
	// each horizontal point, ordered as in Layout.Surface.
	SurfaceTemperature() []float64

	// SurfaceMask returns 1 for land and 0 for ocean at each
	// horizontal point, ordered as in Layout.Surface.
	SurfaceMask() []int

	// SetAtmosphere sets the atmosphere state seen by the ocean.
	// atmos is laid out according to l.
	SetAtmosphere(atmos []float64, l depgrid.Layout)

	// AtmosphereBlock returns the derivatives of the ocean equations
	// with respect to the atmosphere unknowns, as a Layout().Dim()
	// × l.Dim() array.
	AtmosphereBlock(l depgrid.Layout) *sparse.SparseArray

	// RecomputePreconditioner marks the preconditioner for
	// rebuilding at its next use.
	RecomputePreconditioner()
}

// AtmosphereModel is the atmosphere side of a coupled model.
type AtmosphereModel interface {
	Model

	// SetOceanTemperature sets the sea surface temperature seen by
	// the atmosphere.
	SetOceanTemperature(sst []float64)

	// SetSurfaceMask sets the land (1) / ocean (0) mask.
	SetSurfaceMask(mask []int)

	// OceanBlock returns the derivatives of the atmosphere equations
	// with respect to the ocean unknowns, as a Layout().Dim() ×
	// l.Dim() array.
	OceanBlock(l depgrid.Layout) *sparse.SparseArray
}

// A Readier reports whether a model is ready to be coupled.
// Models that do not implement it are always ready.
type Readier interface {
	Ready() error
}

// A Diagnoser provides named diagnostic fields.
type Diagnoser interface {
	Diagnostics() map[string][]float64
}

// Access returns v or a copy of it, according to mode. It logs a
// warning and returns nil for an invalid mode.
func Access(mode AccessMode, v []float64, ctx *Context) []float64 {
	switch mode {
	case View:
		return v
	case Copy:
		return append([]float64(nil), v...)
	default:
		ctx.Log.WithField("mode", string(mode)).Warn(ErrInvalidMode)
		return nil
	}
}
