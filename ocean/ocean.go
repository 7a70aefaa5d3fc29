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

// Package ocean is a slab ocean on a longitude/latitude grid. Each
// ocean point carries a mixed layer temperature and salinity that are
// diffused horizontally and forced by the atmosphere through heat and
// freshwater exchange. Land points are kept at zero.
package ocean

import (
	"fmt"
	"math"
	"sort"

	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/emic"
	"github.com/spatialmodel/emic/depgrid"
)

// Unknowns.
const (
	TT = emic.OceanTT
	SS = emic.OceanSS
)

// Model is the slab ocean. It implements emic.OceanModel.
type Model struct {
	ctx    *emic.Context
	grid   emic.Grid
	coords emic.Coordinates
	layout depgrid.Layout

	p Params
	f Forcing

	pars map[string]*float64

	dg  *depgrid.DependencyGrid
	jac *depgrid.CRS

	ilu     *depgrid.ILU
	rebuild bool

	state, rhs, sol []float64
	mass            []float64

	land []int

	// Atmosphere temperature and humidity at each point, and the
	// global precipitation anomaly.
	ta, qa []float64
	pa     float64

	insolation, salinityFlux []float64 // latitude profiles
}

// New returns a slab ocean on grid g with zero state. mask holds 1 for
// land and 0 for ocean at every horizontal point; nil means no land.
func New(ctx *emic.Context, g emic.Grid, p Params, mask []int) (*Model, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	if ctx == nil {
		ctx = emic.NewContext(nil)
	}
	if p.TauS <= 0 {
		return nil, fmt.Errorf("ocean: salinity damping time scale %g must be positive", p.TauS)
	}
	l := depgrid.Layout{N: g.N, M: g.M, L: 1, Nun: 2}
	np := g.N * g.M
	m := &Model{
		ctx:    ctx,
		grid:   g,
		coords: g.Coordinates(),
		layout: l,
		p:      p,
		f:      p.Forcing,
		dg:     depgrid.NewDependencyGrid(l, depgrid.Stencil2D),
		state:  make([]float64, l.Dim()),
		rhs:    make([]float64, l.Dim()),
		sol:    make([]float64, l.Dim()),
		mass:   make([]float64, l.Dim()),
		land:   make([]int, np),
		ta:     make([]float64, np),
		qa:     make([]float64, np),
	}
	m.pars = map[string]*float64{
		"Combined Forcing": &m.f.Combined,
		"Salinity Forcing": &m.f.Salinity,
	}
	m.insolation = make([]float64, g.M)
	m.salinityFlux = make([]float64, g.M)
	for j, y := range m.coords.YC {
		s := math.Sin(y)
		m.insolation[j] = 1 - 0.482*(3*s*s-1)/2
		m.salinityFlux[j] = math.Cos(2 * y)
	}
	if mask != nil {
		if err := m.SetSurfaceMask(mask); err != nil {
			return nil, err
		}
	} else {
		m.ComputeJacobian()
		m.ComputeMassMat()
	}
	ctx.Log.WithFields(logrus.Fields{
		"layout": l.String(),
		"land":   m.landPoints(),
	}).Debug("ocean initialized")
	return m, nil
}

func (m *Model) landPoints() int {
	var n int
	for _, v := range m.land {
		n += v
	}
	return n
}

// SetSurfaceMask replaces the land/sea mask. Land points are set to
// zero. A coupled model must update its coupling blocks afterwards.
func (m *Model) SetSurfaceMask(mask []int) error {
	if len(mask) != len(m.land) {
		return fmt.Errorf("%w: ocean mask has %d values for %d surface points",
			emic.ErrDimensionMismatch, len(mask), len(m.land))
	}
	for s, v := range mask {
		if v != 0 && v != 1 {
			return fmt.Errorf("ocean: invalid mask value %d at point %d", v, s)
		}
	}
	copy(m.land, mask)
	for j := 1; j <= m.grid.M; j++ {
		for i := 1; i <= m.grid.N; i++ {
			if m.land[m.layout.Surface(i, j)] == 1 {
				m.state[m.layout.FindRow(i, j, 1, TT)] = 0
				m.state[m.layout.FindRow(i, j, 1, SS)] = 0
			}
		}
	}
	m.rebuild = true
	m.ComputeJacobian()
	m.ComputeMassMat()
	return nil
}

// SurfaceMask returns a copy of the land/sea mask.
func (m *Model) SurfaceMask() []int { return append([]int(nil), m.land...) }

// diffusionAtom discretizes the spherical Laplacian with zero flux
// through coasts and the domain boundaries.
func (m *Model) diffusionAtom() *depgrid.Atom {
	n, nm := m.grid.N, m.grid.M
	c := m.coords
	a := depgrid.NewAtom(n, nm, 1, depgrid.Stencil2D)
	sea := func(i, j int) bool {
		if j < 1 || j > nm {
			return false
		}
		if i < 1 || i > n {
			if !m.grid.Periodic {
				return false
			}
			i = (i+n-1)%n + 1
		}
		return m.land[m.layout.Surface(i, j)] == 0
	}
	for j := 1; j <= nm; j++ {
		cosc := math.Cos(c.YC[j-1])
		ew := 1 / (cosc * cosc * c.DX * c.DX)
		for i := 1; i <= n; i++ {
			if !sea(i, j) {
				continue
			}
			var sum float64
			set := func(loc int, v float64) {
				a.Set(i, j, 1, loc, v)
				sum += v
			}
			if sea(i-1, j) {
				set(depgrid.West, ew)
			}
			if sea(i+1, j) {
				set(depgrid.East, ew)
			}
			if sea(i, j-1) {
				set(depgrid.South, math.Cos(c.YV[j-1])/(cosc*c.DY*c.DY))
			}
			if sea(i, j+1) {
				set(depgrid.North, math.Cos(c.YV[j])/(cosc*c.DY*c.DY))
			}
			a.Set(i, j, 1, depgrid.Center, -sum)
		}
	}
	return a
}

// pointAtom returns an atom with sea(s) at the center of ocean points
// and lnd at land points.
func (m *Model) pointAtom(sea func(s int) float64, lnd float64) *depgrid.Atom {
	a := depgrid.NewAtom(m.grid.N, m.grid.M, 1, depgrid.Stencil2D)
	for j := 1; j <= m.grid.M; j++ {
		for i := 1; i <= m.grid.N; i++ {
			s := m.layout.Surface(i, j)
			if m.land[s] == 1 {
				a.Set(i, j, 1, depgrid.Center, lnd)
			} else {
				a.Set(i, j, 1, depgrid.Center, sea(s))
			}
		}
	}
	return a
}

func constant(v float64) func(int) float64 { return func(int) float64 { return v } }

// Layout returns the ordering of the unknowns.
func (m *Model) Layout() depgrid.Layout { return m.layout }

// Bind makes the model use the slices in s as its state, right-hand
// side and solution.
func (m *Model) Bind(s emic.Storage) error {
	d := m.layout.Dim()
	if len(s.State) != d || len(s.RHS) != d || len(s.Solution) != d {
		return fmt.Errorf("%w: ocean storage lengths %d, %d, %d, want %d",
			emic.ErrDimensionMismatch, len(s.State), len(s.RHS), len(s.Solution), d)
	}
	copy(s.State, m.state)
	copy(s.RHS, m.rhs)
	copy(s.Solution, m.sol)
	m.state, m.rhs, m.sol = s.State, s.RHS, s.Solution
	return nil
}

func (m *Model) State(mode emic.AccessMode) []float64    { return emic.Access(mode, m.state, m.ctx) }
func (m *Model) RHS(mode emic.AccessMode) []float64      { return emic.Access(mode, m.rhs, m.ctx) }
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

func (m *Model) Par(name string) (float64, bool) {
	if p, ok := m.pars[name]; ok {
		return *p, true
	}
	return 0, false
}

func (m *Model) SetPar(name string, v float64) bool {
	p, ok := m.pars[name]
	if ok {
		*p = v
	}
	return ok
}

// SetAtmosphere copies the atmosphere temperature, humidity and
// precipitation anomaly out of atmos, which is laid out according to l.
func (m *Model) SetAtmosphere(atmos []float64, l depgrid.Layout) {
	if l.N != m.grid.N || l.M != m.grid.M || len(atmos) != l.Dim() {
		panic(fmt.Errorf("ocean: atmosphere layout %v with %d values does not match ocean grid %dx%d",
			l, len(atmos), m.grid.N, m.grid.M))
	}
	for j := 1; j <= m.grid.M; j++ {
		for i := 1; i <= m.grid.N; i++ {
			s := m.layout.Surface(i, j)
			m.ta[s] = atmos[l.FindRow(i, j, 1, emic.AtmosTT)]
			m.qa[s] = atmos[l.FindRow(i, j, 1, emic.AtmosQQ)]
		}
	}
	m.pa = 0
	if l.Aux >= emic.AtmosPP {
		m.pa = atmos[l.AuxRow(emic.AtmosPP)]
	}
}

// SurfaceTemperature returns the temperature of the top layer.
func (m *Model) SurfaceTemperature() []float64 {
	t := make([]float64, len(m.land))
	for j := 1; j <= m.grid.M; j++ {
		for i := 1; i <= m.grid.N; i++ {
			t[m.layout.Surface(i, j)] = m.state[m.layout.FindRow(i, j, m.layout.L, TT)]
		}
	}
	return t
}

// surfaceField extracts unknown xx of the top layer.
func (m *Model) surfaceField(xx int) []float64 {
	f := make([]float64, len(m.land))
	for j := 1; j <= m.grid.M; j++ {
		for i := 1; i <= m.grid.N; i++ {
			f[m.layout.Surface(i, j)] = m.state[m.layout.FindRow(i, j, m.layout.L, xx)]
		}
	}
	return f
}

// Evaporation returns the evaporation at each ocean point, zero over
// land.
func (m *Model) Evaporation() []float64 {
	t := m.SurfaceTemperature()
	e := make([]float64, len(t))
	for s := range e {
		if m.land[s] == 0 {
			e[s] = m.p.Eta * (m.p.DQSO*t[s] - m.qa[s])
		}
	}
	return e
}

// HeatFlux returns the heat flux into the ocean at each ocean point.
func (m *Model) HeatFlux() []float64 {
	t := m.SurfaceTemperature()
	e := m.Evaporation()
	q := make([]float64, len(t))
	for s := range q {
		if m.land[s] == 1 {
			continue
		}
		j := s / m.grid.N
		q[s] = m.p.Ooa*(m.ta[s]-t[s]) - m.p.LHF*e[s] +
			m.f.Combined*m.p.Os*m.insolation[j]
	}
	return q
}

// Diagnostics returns the state and derived surface fields.
func (m *Model) Diagnostics() map[string][]float64 {
	return map[string][]float64{
		"TO":  m.surfaceField(TT),
		"SO":  m.surfaceField(SS),
		"EO":  m.Evaporation(),
		"QOA": m.HeatFlux(),
	}
}

// ZeroState sets the state to zero.
func (m *Model) ZeroState() {
	for i := range m.state {
		m.state[i] = 0
	}
}

func (m *Model) PreProcess()  {}
func (m *Model) PostProcess() {}

var _ emic.OceanModel = (*Model)(nil)
