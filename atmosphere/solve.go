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
	"fmt"
	"math"

	"github.com/ctessum/sparse"
	"github.com/spatialmodel/emic"
	"github.com/spatialmodel/emic/depgrid"
	"gonum.org/v1/gonum/mat"
)

// illConditioned is the condition number above which a factorization
// is reported as ill-conditioned.
const illConditioned = 1e12

// factor computes the LU factorization of the Jacobian if it is stale.
// The atmosphere has few unknowns per column, so a dense factorization
// serves as both the direct solver and an exact preconditioner.
func (m *Model) factor() error {
	if m.lu != nil {
		return nil
	}
	m.ctx.Prof.Start("Atmosphere: factor")
	defer m.ctx.Prof.Stop("Atmosphere: factor")
	lu := new(mat.LU)
	lu.Factorize(m.jac.Dense())
	c := lu.Cond()
	if math.IsInf(c, 1) || math.IsNaN(c) {
		return fmt.Errorf("%w: atmosphere Jacobian", emic.ErrSingular)
	}
	if c > illConditioned {
		m.ctx.Log.WithField("condition", c).Warn("atmosphere Jacobian is ill-conditioned")
	}
	m.lu = lu
	return nil
}

// luSolve sets out to the solution of J out = v using the stored
// factorization.
func (m *Model) luSolve(v, out []float64) error {
	x := mat.NewVecDense(len(out), out)
	err := m.lu.SolveVec(x, false, mat.NewVecDense(len(v), append([]float64(nil), v...)))
	if _, ok := err.(mat.Condition); err != nil && !ok {
		return fmt.Errorf("%w: atmosphere solve: %v", emic.ErrSingular, err)
	}
	return nil
}

// Solve solves J x = rhs with the most recent Jacobian and stores x in
// the solution vector.
func (m *Model) Solve(rhs []float64) error {
	if len(rhs) != m.layout.Dim() {
		return fmt.Errorf("%w: atmosphere right-hand side has length %d, want %d",
			emic.ErrDimensionMismatch, len(rhs), m.layout.Dim())
	}
	if err := m.factor(); err != nil {
		return err
	}
	return m.luSolve(rhs, m.sol)
}

// ApplyMatrix sets out = J v.
func (m *Model) ApplyMatrix(v, out []float64) {
	m.jac.MulVec(v, out)
}

// ApplyPrecon sets out = J⁻¹ v. If the Jacobian is singular, v is
// copied unchanged.
func (m *Model) ApplyPrecon(v, out []float64) {
	err := m.factor()
	if err == nil {
		err = m.luSolve(v, out)
	}
	if err != nil {
		m.ctx.Log.Warn(err)
		copy(out, v)
	}
}

// OceanBlock returns the derivatives of the atmosphere equations with
// respect to the ocean unknowns, for an ocean laid out according to l
// on the same horizontal grid. Only the sea surface temperature, in the
// top layer of the ocean, enters the atmosphere equations.
func (m *Model) OceanBlock(l depgrid.Layout) *sparse.SparseArray {
	if l.N != m.grid.N || l.M != m.grid.M {
		panic(fmt.Errorf("atmosphere: ocean grid %dx%d does not match atmosphere grid %dx%d",
			l.N, l.M, m.grid.N, m.grid.M))
	}
	d := sparse.ZerosSparse(m.layout.Dim(), l.Dim())
	c := m.c
	for j := 1; j <= m.grid.M; j++ {
		for i := 1; i <= m.grid.N; i++ {
			s := m.layout.Surface(i, j)
			open := float64(1-m.land[s]) * (1 - m.msi[s])
			if open == 0 {
				continue
			}
			col := l.FindRow(i, j, l.L, emic.OceanTT)
			d.AddVal(open, m.layout.FindRow(i, j, 1, TT), col)
			if r := m.layout.FindRow(i, j, 1, QQ); r != m.intRow {
				d.AddVal(c.eta*open*c.dqso, r, col)
			}
			d.AddVal(-m.w[s]*open*c.dqso/m.totalArea, m.layout.AuxRow(PP), col)
		}
	}
	return d
}

// Evaporation returns the evaporation at each horizontal point.
func (m *Model) Evaporation() []float64 { return append([]float64(nil), m.e...) }

// Precipitation returns the precipitation at each horizontal point.
func (m *Model) Precipitation() []float64 { return append([]float64(nil), m.pl...) }

// surfaceField extracts unknown xx of the state at every horizontal
// point.
func (m *Model) surfaceField(xx int) []float64 {
	f := make([]float64, 0, m.grid.N*m.grid.M)
	for j := 1; j <= m.grid.M; j++ {
		for i := 1; i <= m.grid.N; i++ {
			f = append(f, m.state[m.layout.FindRow(i, j, 1, xx)])
		}
	}
	return f
}

// LandTemperature returns the surface temperature over land, which is
// in radiative balance with the absorbed shortwave radiation. It is
// zero over the ocean.
func (m *Model) LandTemperature() []float64 {
	t, a := m.surfaceField(TT), m.surfaceField(AA)
	lst := make([]float64, len(t))
	sw := m.f.Combined * m.f.Solar
	for s := range lst {
		if m.land[s] == 0 {
			continue
		}
		j := s / m.grid.N
		lst[s] = t[s] + sw*m.suno[j]*((1-m.p.A0)-m.p.DA*a[s])/m.c.ooa
	}
	return lst
}

// Fluxes returns the longwave, shortwave, sensible and latent heat
// fluxes into the atmosphere at each horizontal point, in units of the
// exchange coefficient.
func (m *Model) Fluxes() (lw, sw, sh, lh []float64) {
	n := m.grid.N * m.grid.M
	lw, sw, sh, lh = make([]float64, n), make([]float64, n), make([]float64, n), make([]float64, n)
	t, a := m.surfaceField(TT), m.surfaceField(AA)
	lst := m.LandTemperature()
	for s := 0; s < n; s++ {
		j := s / m.grid.N
		lw[s] = -m.f.Combined*m.f.Longwave*m.c.amua - m.c.bmua*t[s]
		sw[s] = m.f.Combined * m.f.Solar * m.suna[j] * ((1 - m.p.A0) - m.p.DA*a[s])
		if m.land[s] == 1 {
			sh[s] = lst[s] - t[s]
		} else {
			sh[s] = (1-m.msi[s])*m.sst[s] + m.msi[s]*m.sit[s] - t[s]
		}
		lh[s] = m.f.LatentHeat * m.c.lvscale * m.pl[s]
	}
	return
}

// Diagnostics returns the state and the derived surface fields.
func (m *Model) Diagnostics() map[string][]float64 {
	m.computeEP()
	lw, sw, sh, lh := m.Fluxes()
	return map[string][]float64{
		"TT":  m.surfaceField(TT),
		"QQ":  m.surfaceField(QQ),
		"AA":  m.surfaceField(AA),
		"E":   m.Evaporation(),
		"P":   m.Precipitation(),
		"QLW": lw,
		"QSW": sw,
		"QSH": sh,
		"QLH": lh,
		"TL":  m.LandTemperature(),
	}
}
