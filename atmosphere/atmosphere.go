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

// Package atmosphere implements a steady two-dimensional energy and
// moisture balance model of the atmosphere on a longitude/latitude
// grid. The unknowns at each grid point are the temperature, humidity
// and albedo anomalies, and a single auxiliary unknown holds the global
// precipitation anomaly.
package atmosphere

import (
	"fmt"
	"math"
	"sort"

	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/emic"
	"github.com/spatialmodel/emic/depgrid"
	"gonum.org/v1/gonum/mat"
)

// Unknowns.
const (
	TT = emic.AtmosTT
	QQ = emic.AtmosQQ
	AA = emic.AtmosAA
	PP = emic.AtmosPP // auxiliary
)

// Step of the finite difference albedo derivatives.
const df = 1e-6

// Model is the atmosphere model. It implements emic.AtmosphereModel.
type Model struct {
	ctx    *emic.Context
	grid   emic.Grid
	coords emic.Coordinates
	layout depgrid.Layout

	p Params
	c coefficients
	f Forcing

	pars map[string]*float64

	dg   *depgrid.DependencyGrid
	diff *depgrid.Atom
	jac  *depgrid.CRS
	lu   *mat.LU // factorization of jac; nil when stale

	state, rhs, sol []float64
	mass            []float64

	// Surface inputs, one value per horizontal point.
	sst, sit, msi []float64
	land          []int
	pdist         []float64

	// Area weights of the integral condition.
	w         []float64
	qcols     []int
	totalArea float64
	intRow    int

	// Latitude profiles.
	datc, datv, suna, suno, hprof []float64

	// Evaporation, local precipitation and albedo derivatives at the
	// most recent evaluation.
	e, pl            []float64
	dAdT, dAdA, dAdP []float64
}

// New returns an atmosphere model on grid g with zero state and
// surface inputs, no land and uniform precipitation distribution.
func New(ctx *emic.Context, g emic.Grid, p Params) (*Model, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	if ctx == nil {
		ctx = emic.NewContext(nil)
	}
	l := depgrid.Layout{N: g.N, M: g.M, L: 1, Nun: 3, Aux: 1}
	np := g.N * g.M
	m := &Model{
		ctx:    ctx,
		grid:   g,
		coords: g.Coordinates(),
		layout: l,
		p:      p,
		c:      p.coefficients(),
		f:      p.Forcing,
		dg:     depgrid.NewDependencyGrid(l, depgrid.Stencil2D),
		state:  make([]float64, l.Dim()),
		rhs:    make([]float64, l.Dim()),
		sol:    make([]float64, l.Dim()),
		mass:   make([]float64, l.Dim()),
		sst:    make([]float64, np),
		sit:    make([]float64, np),
		msi:    make([]float64, np),
		land:   make([]int, np),
		pdist:  make([]float64, np),
		w:      g.AreaWeights(),
		qcols:  make([]int, np),
		intRow: l.FindRow(1, 1, 1, QQ),
		e:      make([]float64, np),
		pl:     make([]float64, np),
		dAdT:   make([]float64, np),
		dAdA:   make([]float64, np),
		dAdP:   make([]float64, np),
	}
	m.pars = map[string]*float64{
		"Combined Forcing":      &m.f.Combined,
		"Solar Forcing":         &m.f.Solar,
		"Longwave Forcing":      &m.f.Longwave,
		"Humidity Forcing":      &m.f.Humidity,
		"Latent Heat Forcing":   &m.f.LatentHeat,
		"Albedo Forcing":        &m.f.Albedo,
		"Temperature Diffusion": &m.f.TDiffusion,
	}
	for s := range m.pdist {
		m.pdist[s] = 1
		m.totalArea += m.w[s]
	}
	for j := 1; j <= g.M; j++ {
		for i := 1; i <= g.N; i++ {
			m.qcols[l.Surface(i, j)] = l.FindRow(i, j, 1, QQ)
		}
	}
	m.profiles()
	m.diff = m.diffusionAtom()

	m.ComputeJacobian()
	m.ComputeMassMat()
	ctx.Log.WithFields(logrus.Fields{
		"layout": l.String(),
		"Ad":     m.c.ad,
		"Phv":    m.c.phv,
		"eta":    m.c.eta,
		"Ooa":    m.c.ooa,
	}).Debug("atmosphere initialized")
	return m, nil
}

// profiles computes the latitude-dependent diffusivity and insolation.
func (m *Model) profiles() {
	c := m.coords
	datFn := func(y float64) float64 {
		return 0.9 + 1.5*math.Exp(-12*y*y/math.Pi)
	}
	sun := func(y float64) float64 {
		s := math.Sin(y)
		return 1 - 0.482*(3*s*s-1)/2
	}
	m.datc = make([]float64, m.grid.M)
	m.datv = make([]float64, m.grid.M+1)
	m.suna = make([]float64, m.grid.M)
	m.suno = make([]float64, m.grid.M)
	m.hprof = make([]float64, m.grid.M)
	for j, y := range c.YC {
		m.datc[j] = datFn(y)
		m.suna[j] = m.c.as * sun(y)
		m.suno[j] = m.c.os * sun(y)
		m.hprof[j] = math.Cos(y) * math.Cos(y)
	}
	for j, y := range c.YV {
		m.datv[j] = datFn(y)
	}
}

// diffusionAtom discretizes the latitude-weighted Laplacian
//
//	1/cos(y) [ ∂/∂x (d/cos(y) ∂/∂x) + ∂/∂y (d cos(y) ∂/∂y) ]
//
// with zero flux through the domain boundaries.
func (m *Model) diffusionAtom() *depgrid.Atom {
	n, nm := m.grid.N, m.grid.M
	c := m.coords
	a := depgrid.NewAtom(n, nm, 1, depgrid.Stencil2D)
	for j := 1; j <= nm; j++ {
		cosc := math.Cos(c.YC[j-1])
		ew := m.datc[j-1] / (cosc * cosc * c.DX * c.DX)
		north := m.datv[j] * math.Cos(c.YV[j]) / (cosc * c.DY * c.DY)
		south := m.datv[j-1] * math.Cos(c.YV[j-1]) / (cosc * c.DY * c.DY)
		if j == nm {
			north = 0
		}
		if j == 1 {
			south = 0
		}
		for i := 1; i <= n; i++ {
			west, east := ew, ew
			if !m.grid.Periodic {
				if i == 1 {
					west = 0
				}
				if i == n {
					east = 0
				}
			}
			a.Set(i, j, 1, depgrid.West, west)
			a.Set(i, j, 1, depgrid.East, east)
			a.Set(i, j, 1, depgrid.South, south)
			a.Set(i, j, 1, depgrid.North, north)
			a.Set(i, j, 1, depgrid.Center, -(west + east + south + north))
		}
	}
	return a
}

// pointAtom returns an atom with f(s) at the center of each horizontal
// point s.
func (m *Model) pointAtom(f func(s int) float64) *depgrid.Atom {
	a := depgrid.NewAtom(m.grid.N, m.grid.M, 1, depgrid.Stencil2D)
	for j := 1; j <= m.grid.M; j++ {
		for i := 1; i <= m.grid.N; i++ {
			a.Set(i, j, 1, depgrid.Center, f(m.layout.Surface(i, j)))
		}
	}
	return a
}

// Layout returns the ordering of the unknowns.
func (m *Model) Layout() depgrid.Layout { return m.layout }

// Grid returns the horizontal grid.
func (m *Model) Grid() emic.Grid { return m.grid }

// FindRow returns the 0-based row of unknown xx at the 1-based grid
// point (i,j,k).
func (m *Model) FindRow(i, j, k, xx int) int { return m.layout.FindRow(i, j, k, xx) }

// Bind makes the model use the slices in s as its state, right-hand
// side and solution.
func (m *Model) Bind(s emic.Storage) error {
	d := m.layout.Dim()
	if len(s.State) != d || len(s.RHS) != d || len(s.Solution) != d {
		return fmt.Errorf("%w: atmosphere storage lengths %d, %d, %d, want %d",
			emic.ErrDimensionMismatch, len(s.State), len(s.RHS), len(s.Solution), d)
	}
	copy(s.State, m.state)
	copy(s.RHS, m.rhs)
	copy(s.Solution, m.sol)
	m.state, m.rhs, m.sol = s.State, s.RHS, s.Solution
	return nil
}

// State returns the state vector.
func (m *Model) State(mode emic.AccessMode) []float64 { return emic.Access(mode, m.state, m.ctx) }

// RHS returns the right-hand side of the most recent ComputeRHS.
func (m *Model) RHS(mode emic.AccessMode) []float64 { return emic.Access(mode, m.rhs, m.ctx) }

// Solution returns the solution of the most recent Solve.
func (m *Model) Solution(mode emic.AccessMode) []float64 { return emic.Access(mode, m.sol, m.ctx) }

// ParNames returns the names of the continuation parameters.
func (m *Model) ParNames() []string {
	names := make([]string, 0, len(m.pars))
	for n := range m.pars {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Par returns the value of the named continuation parameter.
func (m *Model) Par(name string) (float64, bool) {
	if p, ok := m.pars[name]; ok {
		return *p, true
	}
	return 0, false
}

// SetPar sets the named continuation parameter.
func (m *Model) SetPar(name string, v float64) bool {
	p, ok := m.pars[name]
	if ok {
		*p = v
	}
	return ok
}

func (m *Model) checkSurface(name string, n int) {
	if n != m.grid.N*m.grid.M {
		panic(fmt.Errorf("atmosphere: %s has %d values for %d surface points", name, n, m.grid.N*m.grid.M))
	}
}

// SetOceanTemperature sets the sea surface temperature.
func (m *Model) SetOceanTemperature(sst []float64) {
	m.checkSurface("sea surface temperature", len(sst))
	copy(m.sst, sst)
}

// SetSeaIceTemperature sets the sea ice surface temperature.
func (m *Model) SetSeaIceTemperature(sit []float64) {
	m.checkSurface("sea ice temperature", len(sit))
	copy(m.sit, sit)
}

// SetSeaIceMask sets the sea ice fraction of each point. The coupling
// block depends on it, so a coupled model must rebuild its coupling
// blocks afterwards.
func (m *Model) SetSeaIceMask(msi []float64) {
	m.checkSurface("sea ice mask", len(msi))
	copy(m.msi, msi)
}

// SetSurfaceMask sets the land (1) / ocean (0) mask.
func (m *Model) SetSurfaceMask(mask []int) {
	m.checkSurface("surface mask", len(mask))
	copy(m.land, mask)
}

// SetPdist sets the spatial distribution of the precipitation anomaly.
// It is scaled so that its area-weighted mean is one.
func (m *Model) SetPdist(p []float64) error {
	m.checkSurface("precipitation distribution", len(p))
	var s float64
	for i, v := range p {
		if v < 0 {
			return fmt.Errorf("atmosphere: negative precipitation distribution %g at point %d", v, i)
		}
		s += m.w[i] * v
	}
	if s == 0 {
		return fmt.Errorf("atmosphere: precipitation distribution is zero")
	}
	for i, v := range p {
		m.pdist[i] = v * m.totalArea / s
	}
	return nil
}

// Pdist returns a copy of the precipitation distribution.
func (m *Model) Pdist() []float64 { return append([]float64(nil), m.pdist...) }

// IntegralCoeff returns the area weights of the integral condition,
// one per horizontal point.
func (m *Model) IntegralCoeff() []float64 { return append([]float64(nil), m.w...) }

// ZeroState sets the state to zero.
func (m *Model) ZeroState() {
	for i := range m.state {
		m.state[i] = 0
	}
}

// ZeroOcean sets the sea surface and sea ice temperatures to zero.
func (m *Model) ZeroOcean() {
	for s := range m.sst {
		m.sst[s], m.sit[s] = 0, 0
	}
}

// Idealized sets a sea surface temperature that decreases from the
// equator towards the poles, zero sea ice temperature and the global
// precipitation anomaly defP.
func (m *Model) Idealized(defP float64) {
	for j := 1; j <= m.grid.M; j++ {
		c := math.Cos(m.coords.YC[j-1])
		for i := 1; i <= m.grid.N; i++ {
			s := m.layout.Surface(i, j)
			m.sst[s] = 10 * (c*c - 0.5) / m.p.TDim
			m.sit[s] = 0
		}
	}
	m.state[m.layout.AuxRow(PP)] = defP
	m.computeEP()
}

// PreProcess does nothing.
func (m *Model) PreProcess() {}

// PostProcess updates evaporation and precipitation for the current
// state.
func (m *Model) PostProcess() {
	m.computeEP()
}

var _ emic.AtmosphereModel = (*Model)(nil)
