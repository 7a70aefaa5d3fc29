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

package ocean

import (
	"fmt"

	"github.com/ctessum/sparse"
	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/emic"
	"github.com/spatialmodel/emic/depgrid"
	"github.com/spatialmodel/emic/krylov"
	"gonum.org/v1/gonum/floats"
)

// assemble returns the Jacobian. The ocean equations are linear in the
// ocean state, so it is also the operator of the right-hand side.
func (m *Model) assemble() *depgrid.CRS {
	p := m.p
	g := m.dg
	g.Zero()
	diff := m.diffusionAtom()
	g.Add(TT, TT, p.KT, diff)
	g.Add(TT, TT, 1, m.pointAtom(constant(-p.Ooa-p.LHF*p.Eta*p.DQSO), -1))
	g.Add(SS, SS, p.KS, diff)
	g.Add(SS, SS, 1, m.pointAtom(constant(-1/p.TauS), -1))
	g.Add(SS, TT, 1, m.pointAtom(constant(p.Gamma*p.Eta*p.DQSO), 0))
	return g.Assemble(m.grid.Periodic, nil)
}

// forcing returns the terms that do not depend on the ocean state.
func (m *Model) forcing() []float64 {
	p, f := m.p, m.f
	frc := make([]float64, m.layout.Dim())
	for j := 1; j <= m.grid.M; j++ {
		for i := 1; i <= m.grid.N; i++ {
			s := m.layout.Surface(i, j)
			if m.land[s] == 1 {
				continue
			}
			frc[m.layout.FindRow(i, j, 1, TT)] = p.Ooa*m.ta[s] + p.LHF*p.Eta*m.qa[s] +
				f.Combined*p.Os*m.insolation[j-1]
			frc[m.layout.FindRow(i, j, 1, SS)] = -p.Gamma*(p.Eta*m.qa[s]+m.pa) +
				f.Combined*f.Salinity*p.Gs*m.salinityFlux[j-1]
		}
	}
	return frc
}

// ComputeRHS evaluates the equations at the current state and
// atmosphere.
func (m *Model) ComputeRHS() {
	m.ctx.Prof.Start("Ocean: compute RHS")
	defer m.ctx.Prof.Stop("Ocean: compute RHS")
	m.jac.MulVec(m.state, m.rhs)
	floats.Add(m.rhs, m.forcing())
}

// ComputeJacobian assembles the Jacobian. The preconditioner is only
// refactored when requested by RecomputePreconditioner.
func (m *Model) ComputeJacobian() {
	m.ctx.Prof.Start("Ocean: compute Jacobian")
	defer m.ctx.Prof.Stop("Ocean: compute Jacobian")
	m.jac = m.assemble()
	if m.ilu == nil {
		m.rebuild = true
	}
}

// ComputeMassMat computes the diagonal of the mass matrix, which is
// zero at land points.
func (m *Model) ComputeMassMat() {
	for j := 1; j <= m.grid.M; j++ {
		for i := 1; i <= m.grid.N; i++ {
			v := 1.0
			if m.land[m.layout.Surface(i, j)] == 1 {
				v = 0
			}
			m.mass[m.layout.FindRow(i, j, 1, TT)] = v
			m.mass[m.layout.FindRow(i, j, 1, SS)] = v
		}
	}
}

// MassMatrix returns a copy of the mass matrix diagonal.
func (m *Model) MassMatrix() []float64 { return append([]float64(nil), m.mass...) }

// Jacobian returns the most recently assembled Jacobian.
func (m *Model) Jacobian() *depgrid.CRS { return m.jac }

// RecomputePreconditioner marks the ILU(0) factors for rebuilding at
// their next use.
func (m *Model) RecomputePreconditioner() { m.rebuild = true }

// RebuildPending reports whether the preconditioner will be rebuilt at
// its next use.
func (m *Model) RebuildPending() bool { return m.rebuild }

func (m *Model) precon() (*depgrid.ILU, error) {
	if !m.rebuild && m.ilu != nil {
		return m.ilu, nil
	}
	m.ctx.Prof.Start("Ocean: ILU(0)")
	defer m.ctx.Prof.Stop("Ocean: ILU(0)")
	f, err := m.jac.ILU0()
	if err != nil {
		return nil, fmt.Errorf("%w: ocean preconditioner: %v", emic.ErrSingular, err)
	}
	m.ilu, m.rebuild = f, false
	m.ctx.Log.WithField("nonzeros", m.jac.NNZ()).Debug("ocean preconditioner rebuilt")
	return f, nil
}

// ApplyMatrix sets out = J v.
func (m *Model) ApplyMatrix(v, out []float64) { m.jac.MulVec(v, out) }

// ApplyPrecon applies the ILU(0) preconditioner. If it cannot be
// built, v is copied unchanged.
func (m *Model) ApplyPrecon(v, out []float64) {
	f, err := m.precon()
	if err != nil {
		m.ctx.Log.Warn(err)
		copy(out, v)
		return
	}
	f.Solve(v, out)
}

// Solve solves J x = rhs with preconditioned GMRES and stores x in the
// solution vector. Not reaching the tolerance is logged, not returned.
func (m *Model) Solve(rhs []float64) error {
	if len(rhs) != m.layout.Dim() {
		return fmt.Errorf("%w: ocean right-hand side has length %d, want %d",
			emic.ErrDimensionMismatch, len(rhs), m.layout.Dim())
	}
	f, err := m.precon()
	if err != nil {
		return err
	}
	m.ctx.Prof.Start("Ocean: solve")
	defer m.ctx.Prof.Stop("Ocean: solve")
	for i := range m.sol {
		m.sol[i] = 0
	}
	s := m.p.Solver
	r := krylov.GMRES(krylov.OperatorFunc(m.ApplyMatrix), krylov.OperatorFunc(f.Solve), rhs, m.sol,
		krylov.Settings{Tolerance: s.Tolerance, MaxIterations: s.MaxIterations, Restart: s.Restart})
	m.ctx.Prof.TrackIterations("Ocean: GMRES iterations", r.Iterations)
	fields := logrus.Fields{
		"iterations": r.Iterations,
		"residual":   r.Residual,
		"tolerance":  s.Tolerance,
	}
	if !r.Converged {
		m.ctx.Log.WithFields(fields).Warn("ocean GMRES did not converge")
	} else {
		m.ctx.Log.WithFields(fields).Debug("ocean GMRES")
	}
	return nil
}

// AtmosphereBlock returns the derivatives of the ocean equations with
// respect to the unknowns of an atmosphere laid out according to l on
// the same horizontal grid.
func (m *Model) AtmosphereBlock(l depgrid.Layout) *sparse.SparseArray {
	if l.N != m.grid.N || l.M != m.grid.M {
		panic(fmt.Errorf("ocean: atmosphere grid %dx%d does not match ocean grid %dx%d",
			l.N, l.M, m.grid.N, m.grid.M))
	}
	p := m.p
	b := sparse.ZerosSparse(m.layout.Dim(), l.Dim())
	for j := 1; j <= m.grid.M; j++ {
		for i := 1; i <= m.grid.N; i++ {
			if m.land[m.layout.Surface(i, j)] == 1 {
				continue
			}
			rt := m.layout.FindRow(i, j, m.layout.L, TT)
			rs := m.layout.FindRow(i, j, m.layout.L, SS)
			qcol := l.FindRow(i, j, 1, emic.AtmosQQ)
			b.AddVal(p.Ooa, rt, l.FindRow(i, j, 1, emic.AtmosTT))
			b.AddVal(p.LHF*p.Eta, rt, qcol)
			b.AddVal(-p.Gamma*p.Eta, rs, qcol)
			if l.Aux >= emic.AtmosPP {
				b.AddVal(-p.Gamma, rs, l.AuxRow(emic.AtmosPP))
			}
		}
	}
	return b
}
