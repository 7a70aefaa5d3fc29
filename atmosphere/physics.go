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

package atmosphere

import (
	"math"

	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/emic/depgrid"
	"gonum.org/v1/gonum/floats"
)

// evaporationSlope returns -∂E/∂Q at point s.
func (m *Model) evaporationSlope(s int) float64 {
	return float64(1-m.land[s]) * ((1 - m.msi[s]) + m.msi[s]*m.p.Cs)
}

// surfaceEvaporation returns the part of the evaporation at point s
// that is set by the ocean and sea ice temperatures.
func (m *Model) surfaceEvaporation(s int) float64 {
	return float64(1-m.land[s]) *
		((1-m.msi[s])*m.c.dqso*m.sst[s] + m.msi[s]*m.p.Cs*m.c.dqsi*m.sit[s])
}

// computeEP computes the evaporation and the local precipitation at the
// current state. Both are needed before the Jacobian can be assembled.
func (m *Model) computeEP() {
	p := m.state[m.layout.AuxRow(PP)]
	for s := range m.e {
		q := m.state[m.qcols[s]]
		m.e[s] = m.surfaceEvaporation(s) - m.evaporationSlope(s)*q
		m.pl[s] = m.pdist[s] * p
	}
}

func heaviside(x, eps float64) float64 {
	return 0.5 * (1 + math.Tanh(x/eps))
}

// albedo returns the right-hand side of the albedo equation at point s
// for temperature t, local precipitation p and albedo a.
func (m *Model) albedo(s int, t, p, a float64) float64 {
	cover := m.msi[s]
	if m.land[s] == 1 {
		cover = 1
	}
	return m.f.Combined*m.f.Albedo*cover*
		heaviside(m.p.Tm-t, m.p.EpM)*heaviside(p+m.p.Pa, m.p.EpA) - a
}

// albedoDerivatives computes one-sided finite difference derivatives of
// the albedo equation with respect to temperature, albedo and the
// global precipitation anomaly.
func (m *Model) albedoDerivatives() {
	for j := 1; j <= m.grid.M; j++ {
		for i := 1; i <= m.grid.N; i++ {
			s := m.layout.Surface(i, j)
			t := m.state[m.layout.FindRow(i, j, 1, TT)]
			a := m.state[m.layout.FindRow(i, j, 1, AA)]
			p := m.pl[s]
			f0 := m.albedo(s, t, p, a)
			m.dAdT[s] = (m.albedo(s, t+df, p, a) - f0) / df
			m.dAdA[s] = (m.albedo(s, t, p, a+df) - f0) / df
			m.dAdP[s] = (m.albedo(s, t, p+df, a) - f0) / df * m.pdist[s]
		}
	}
}

// assemble returns the matrix of the part of the equations that is
// linear in the state. With albedo, the linearized albedo equations are
// included, giving the Jacobian. The humidity equation at the first grid
// point is replaced by the integral condition.
func (m *Model) assemble(albedo bool) *depgrid.CRS {
	c, f := m.c, m.f
	g := m.dg
	g.Zero()

	g.Add(TT, TT, c.ad*f.TDiffusion, m.diff)
	g.Add(TT, TT, 1, m.pointAtom(func(s int) float64 {
		return -c.bmua - float64(1-m.land[s])
	}))
	g.Add(TT, AA, -f.Combined*f.Solar*m.p.DA, m.pointAtom(func(s int) float64 {
		j := s / m.grid.N
		return m.suna[j] + float64(m.land[s])*m.suno[j]/c.ooa
	}))
	g.Add(QQ, QQ, c.phv, m.diff)
	g.Add(QQ, QQ, -c.eta, m.pointAtom(m.evaporationSlope))
	if albedo {
		g.Add(AA, TT, 1, m.pointAtom(func(s int) float64 { return m.dAdT[s] }))
		g.Add(AA, AA, 1, m.pointAtom(func(s int) float64 { return m.dAdA[s] }))
	}

	pcol := m.layout.AuxRow(PP)
	extra := func(row int, add func(col int, v float64)) {
		i, j, _, xx, aux := m.layout.Locate(row)
		if aux == PP {
			// P minus the area mean of the evaporation.
			add(pcol, 1)
			for s, q := range m.qcols {
				if v := m.evaporationSlope(s); v != 0 {
					add(q, m.w[s]*v/m.totalArea)
				}
			}
			return
		}
		s := m.layout.Surface(i, j)
		switch xx {
		case TT:
			add(pcol, f.LatentHeat*c.lvscale*m.pdist[s])
		case QQ:
			add(pcol, -c.eta*m.pdist[s])
		case AA:
			if albedo {
				add(pcol, m.dAdP[s])
			}
		}
	}
	a := g.Assemble(m.grid.Periodic, extra)
	a.ReplaceRow(m.intRow, m.qcols, m.w)
	return a
}

// forcing returns the part of the equations that does not depend on
// the state.
func (m *Model) forcing() []float64 {
	c, f := m.c, m.f
	frc := make([]float64, m.layout.Dim())
	sw := f.Combined * f.Solar * (1 - m.p.A0)
	lw := f.Combined * f.Longwave * c.amua
	var eMean float64
	for j := 1; j <= m.grid.M; j++ {
		for i := 1; i <= m.grid.N; i++ {
			s := m.layout.Surface(i, j)
			sea := float64(1 - m.land[s])
			land := float64(m.land[s])
			surface := sea * ((1-m.msi[s])*m.sst[s] + m.msi[s]*m.sit[s])
			frc[m.layout.FindRow(i, j, 1, TT)] = surface +
				land*sw*m.suno[j-1]/c.ooa + sw*m.suna[j-1] - lw

			es := m.surfaceEvaporation(s)
			frc[m.layout.FindRow(i, j, 1, QQ)] = c.eta*es + f.Combined*f.Humidity*m.hprof[j-1]
			eMean += m.w[s] * es
		}
	}
	frc[m.layout.AuxRow(PP)] = -eMean / m.totalArea
	frc[m.intRow] = 0
	return frc
}

// ComputeRHS evaluates the equations at the current state.
func (m *Model) ComputeRHS() {
	m.ctx.Prof.Start("Atmosphere: compute RHS")
	defer m.ctx.Prof.Stop("Atmosphere: compute RHS")

	m.computeEP()
	m.assemble(false).MulVec(m.state, m.rhs)
	floats.Add(m.rhs, m.forcing())
	for j := 1; j <= m.grid.M; j++ {
		for i := 1; i <= m.grid.N; i++ {
			s := m.layout.Surface(i, j)
			r := m.layout.FindRow(i, j, 1, AA)
			m.rhs[r] += m.albedo(s, m.state[m.layout.FindRow(i, j, 1, TT)], m.pl[s], m.state[r])
		}
	}
}

// ComputeJacobian assembles the Jacobian at the current state.
func (m *Model) ComputeJacobian() {
	m.ctx.Prof.Start("Atmosphere: compute Jacobian")
	defer m.ctx.Prof.Stop("Atmosphere: compute Jacobian")

	m.computeEP()
	m.albedoDerivatives()
	m.jac = m.assemble(true)
	m.lu = nil
	m.ctx.Log.WithFields(logrus.Fields{
		"nonzeros":   m.jac.NNZ(),
		"empty rows": len(m.jac.EmptyRows()),
	}).Debug("atmosphere Jacobian")
}

// ComputeMassMat computes the diagonal of the mass matrix. The
// precipitation and integral condition rows are algebraic.
func (m *Model) ComputeMassMat() {
	for j := 1; j <= m.grid.M; j++ {
		for i := 1; i <= m.grid.N; i++ {
			m.mass[m.layout.FindRow(i, j, 1, TT)] = 1
			m.mass[m.layout.FindRow(i, j, 1, QQ)] = 1
			m.mass[m.layout.FindRow(i, j, 1, AA)] = m.p.TauC
		}
	}
	m.mass[m.layout.AuxRow(PP)] = 0
	m.mass[m.intRow] = 0
}

// MassMatrix returns a copy of the mass matrix diagonal.
func (m *Model) MassMatrix() []float64 { return append([]float64(nil), m.mass...) }

// Jacobian returns the most recently assembled Jacobian.
func (m *Model) Jacobian() *depgrid.CRS { return m.jac }
