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
	"math/rand"

	"github.com/ctessum/sparse"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/spatialmodel/emic/depgrid"
	"gonum.org/v1/gonum/mat"
)

// linearModel is a sub-model with a constant dense Jacobian. It plays
// either the ocean or the atmosphere role.
type linearModel struct {
	ctx    *Context
	layout depgrid.Layout
	jac    *mat.Dense

	// coupling holds the derivatives with respect to the other model.
	coupling *mat.Dense

	// jacobiPrecon selects a diagonal preconditioner instead of the
	// exact inverse; identityPrecon selects no preconditioning.
	jacobiPrecon, identityPrecon bool

	state, rhs, sol []float64
	received        []float64
	mask            []int
	pars            map[string]float64

	nRHS, nJac, nPrecon, nBlock, nSync int
	readyAfter                         int
	readyCalls                         int
}

func newLinearModel(ctx *Context, n, nun int, jac *mat.Dense) *linearModel {
	l := depgrid.Layout{N: n, M: 1, L: 1, Nun: nun}
	return &linearModel{
		ctx:      ctx,
		layout:   l,
		jac:      jac,
		state:    make([]float64, l.Dim()),
		rhs:      make([]float64, l.Dim()),
		sol:      make([]float64, l.Dim()),
		received: make([]float64, n),
		mask:     make([]int, n),
		pars:     map[string]float64{"Combined Forcing": 0},
	}
}

func (m *linearModel) Layout() depgrid.Layout { return m.layout }

func (m *linearModel) Bind(s Storage) error {
	if len(s.State) != m.layout.Dim() || len(s.RHS) != m.layout.Dim() || len(s.Solution) != m.layout.Dim() {
		return ErrDimensionMismatch
	}
	copy(s.State, m.state)
	copy(s.RHS, m.rhs)
	copy(s.Solution, m.sol)
	m.state, m.rhs, m.sol = s.State, s.RHS, s.Solution
	return nil
}

func (m *linearModel) ComputeRHS() {
	m.nRHS++
	m.ApplyMatrix(m.state, m.rhs)
	for i := range m.rhs {
		m.rhs[i] += m.received[i%len(m.received)] + m.pars["Combined Forcing"]
	}
}

func (m *linearModel) ComputeJacobian() { m.nJac++ }
func (m *linearModel) ComputeMassMat()  {}

func (m *linearModel) Solve(rhs []float64) error {
	x := mat.NewVecDense(len(m.sol), m.sol)
	return x.SolveVec(m.jac, mat.NewVecDense(len(rhs), append([]float64(nil), rhs...)))
}

func (m *linearModel) ApplyMatrix(v, out []float64) {
	mat.NewVecDense(len(out), out).MulVec(m.jac, mat.NewVecDense(len(v), v))
}

func (m *linearModel) ApplyPrecon(v, out []float64) {
	switch {
	case m.identityPrecon:
		copy(out, v)
	case m.jacobiPrecon:
		for i := range v {
			out[i] = v[i] / m.jac.At(i, i)
		}
	default:
		x := mat.NewVecDense(len(out), out)
		if err := x.SolveVec(m.jac, mat.NewVecDense(len(v), v)); err != nil {
			panic(err)
		}
	}
}

func (m *linearModel) State(mode AccessMode) []float64    { return Access(mode, m.state, m.ctx) }
func (m *linearModel) RHS(mode AccessMode) []float64      { return Access(mode, m.rhs, m.ctx) }
func (m *linearModel) Solution(mode AccessMode) []float64 { return Access(mode, m.sol, m.ctx) }

func (m *linearModel) Par(name string) (float64, bool) {
	v, ok := m.pars[name]
	return v, ok
}

func (m *linearModel) SetPar(name string, v float64) bool {
	if _, ok := m.pars[name]; !ok {
		return false
	}
	m.pars[name] = v
	return true
}

func (m *linearModel) PreProcess()  {}
func (m *linearModel) PostProcess() {}

func (m *linearModel) SurfaceTemperature() []float64 {
	return append([]float64(nil), m.state[:m.layout.N]...)
}

func (m *linearModel) SurfaceMask() []int { return m.mask }

func (m *linearModel) SetAtmosphere(atmos []float64, l depgrid.Layout) {
	m.nSync++
	copy(m.received, atmos)
}

func (m *linearModel) SetOceanTemperature(sst []float64) {
	m.nSync++
	copy(m.received, sst)
}

func (m *linearModel) SetSurfaceMask(mask []int) { m.mask = mask }

func (m *linearModel) block(l depgrid.Layout) *sparse.SparseArray {
	m.nBlock++
	s := sparse.ZerosSparse(m.layout.Dim(), l.Dim())
	if m.coupling == nil {
		return s
	}
	r, c := m.coupling.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if v := m.coupling.At(i, j); v != 0 {
				s.AddVal(v, i, j)
			}
		}
	}
	return s
}

func (m *linearModel) AtmosphereBlock(l depgrid.Layout) *sparse.SparseArray { return m.block(l) }
func (m *linearModel) OceanBlock(l depgrid.Layout) *sparse.SparseArray      { return m.block(l) }
func (m *linearModel) RecomputePreconditioner()                             { m.nPrecon++ }

func (m *linearModel) Ready() error {
	m.readyCalls++
	if m.readyCalls <= m.readyAfter {
		return fmt.Errorf("not ready (attempt %d)", m.readyCalls)
	}
	return nil
}

func (m *linearModel) Diagnostics() map[string][]float64 {
	return map[string][]float64{fmt.Sprintf("X%d", m.layout.Nun): m.state}
}

// testContext returns a context whose log entries are recorded.
func testContext() (*Context, *test.Hook) {
	logger, hook := test.NewNullLogger()
	return &Context{Log: logger, Prof: NewProfile()}, hook
}

// recordLog redirects the log of c, and of its sub-models, to a new
// test hook.
func recordLog(c *CoupledModel) *test.Hook {
	logger, hook := test.NewNullLogger()
	c.ctx.Log = logger
	return hook
}

func warnings(hook *test.Hook) []string {
	var w []string
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel {
			w = append(w, e.Message)
		}
	}
	return w
}

func diagonal(n int, v float64) *mat.Dense {
	d := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		d.Set(i, i, v)
	}
	return d
}

// randomSPD returns a symmetric positive definite matrix with
// eigenvalues between 1 and 2.
func randomSPD(rng *rand.Rand, n int) *mat.Dense {
	q := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			q.Set(i, j, rng.NormFloat64())
		}
	}
	var qr mat.QR
	qr.Factorize(q)
	var o mat.Dense
	qr.QTo(&o)
	d := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		d.Set(i, i, 1+rng.Float64())
	}
	var od mat.Dense
	od.Mul(&o, d)
	a := mat.NewDense(n, n, nil)
	a.Mul(&od, o.T())
	return a
}

// randomNonsymmetric returns a diagonally dominant nonsymmetric matrix.
func randomNonsymmetric(rng *rand.Rand, n int) *mat.Dense {
	a := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			v := 0.5 * (rng.Float64() - 0.25) / float64(n)
			if i == j {
				v += 2 + rng.Float64()
			}
			a.Set(i, j, v)
		}
	}
	return a
}

func randomDense(rng *rand.Rand, r, c int, scale float64) *mat.Dense {
	a := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			a.Set(i, j, scale*rng.NormFloat64())
		}
	}
	return a
}
