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
	"errors"
	"math"
	"math/rand"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/spatialmodel/emic"
	"github.com/spatialmodel/emic/depgrid"
	"gonum.org/v1/gonum/floats"
)

var testGrid = emic.Grid{N: 6, M: 4, XMin: 286, XMax: 350, YMin: 10, YMax: 74}

func newTestModel(t *testing.T, g emic.Grid) *Model {
	logger, _ := test.NewNullLogger()
	m, err := New(emic.NewContext(logger), g, DefaultParams())
	if err != nil {
		t.Fatal(err)
	}
	return m
}

// coupledSetup gives m land, sea ice and surface temperatures, turns
// the forcing on and sets a smooth random state.
func coupledSetup(m *Model, rng *rand.Rand) {
	n := m.grid.N * m.grid.M
	mask := make([]int, n)
	msi := make([]float64, n)
	sst := make([]float64, n)
	sit := make([]float64, n)
	for s := range mask {
		if s%5 == 0 {
			mask[s] = 1
		}
		if s%3 == 0 {
			msi[s] = 0.3
		}
		sst[s] = rng.NormFloat64()
		sit[s] = -1 + 0.1*rng.NormFloat64()
	}
	m.SetSurfaceMask(mask)
	m.SetSeaIceMask(msi)
	m.SetOceanTemperature(sst)
	m.SetSeaIceTemperature(sit)
	m.SetPar("Combined Forcing", 1)

	x := m.State(emic.View)
	for j := 1; j <= m.grid.M; j++ {
		for i := 1; i <= m.grid.N; i++ {
			x[m.FindRow(i, j, 1, TT)] = 0.5 * rng.NormFloat64()
			x[m.FindRow(i, j, 1, QQ)] = 0.1 * rng.NormFloat64()
			x[m.FindRow(i, j, 1, AA)] = 0.05 * rng.NormFloat64()
		}
	}
	x[m.layout.AuxRow(PP)] = 0.2
}

func TestZeroState(t *testing.T) {
	for _, periodic := range []bool{false, true} {
		g := testGrid
		g.Periodic = periodic
		m := newTestModel(t, g)
		m.ComputeRHS()
		if n := floats.Norm(m.RHS(emic.View), 2); n > 1e-14 {
			t.Errorf("periodic=%v: |F(0)| = %g", periodic, n)
		}
	}
}

func TestIntegralCondition(t *testing.T) {
	m := newTestModel(t, testGrid)
	mask := make([]int, testGrid.N*testGrid.M)
	for s := range mask {
		mask[s] = 1
	}
	m.SetSurfaceMask(mask)
	const c = 0.7
	x := m.State(emic.View)
	for j := 1; j <= testGrid.M; j++ {
		for i := 1; i <= testGrid.N; i++ {
			x[m.FindRow(i, j, 1, QQ)] = c
		}
	}
	m.ComputeRHS()
	want := c * floats.Sum(m.IntegralCoeff())
	rhs := m.RHS(emic.View)
	if got := floats.Norm(rhs, 2); math.Abs(got-want) > 1e-10*want {
		t.Errorf("|F| = %g, want %g", got, want)
	}
	if got := rhs[m.FindRow(1, 1, 1, QQ)]; math.Abs(got-want) > 1e-10*want {
		t.Errorf("integral row = %g, want %g", got, want)
	}
}

func TestJacobian(t *testing.T) {
	for _, periodic := range []bool{false, true} {
		g := testGrid
		g.Periodic = periodic
		m := newTestModel(t, g)
		rng := rand.New(rand.NewSource(1))
		coupledSetup(m, rng)
		m.ComputeJacobian()

		d := m.layout.Dim()
		v := make([]float64, d)
		for i := range v {
			v[i] = rng.NormFloat64()
		}
		jv := make([]float64, d)
		m.ApplyMatrix(v, jv)

		x := m.State(emic.View)
		x0 := append([]float64(nil), x...)
		const h = 1e-6
		floats.AddScaledTo(x, x0, h, v)
		m.ComputeRHS()
		fp := m.RHS(emic.Copy)
		floats.AddScaledTo(x, x0, -h, v)
		m.ComputeRHS()
		fm := m.RHS(emic.Copy)
		copy(x, x0)

		fd := make([]float64, d)
		for i := range fd {
			fd[i] = (fp[i] - fm[i]) / (2 * h)
		}
		if r := floats.Distance(jv, fd, 2) / floats.Norm(jv, 2); r > 1e-4 {
			t.Errorf("periodic=%v: relative difference between Jv and finite differences %g", periodic, r)
		}
	}
}

func TestEmptyRows(t *testing.T) {
	m := newTestModel(t, testGrid)
	if e := m.Jacobian().EmptyRows(); len(e) != 0 {
		t.Errorf("empty rows %v", e)
	}
}

func TestOceanBlock(t *testing.T) {
	m := newTestModel(t, testGrid)
	rng := rand.New(rand.NewSource(2))
	coupledSetup(m, rng)
	ol := depgrid.Layout{N: testGrid.N, M: testGrid.M, L: 1, Nun: 2}
	block := depgrid.FromSparse(m.OceanBlock(ol))

	m.ComputeRHS()
	f0 := m.RHS(emic.Copy)
	sst := make([]float64, testGrid.N*testGrid.M)
	copy(sst, m.sst)
	for s := range sst {
		i, j := s%testGrid.N+1, s/testGrid.N+1
		col := ol.FindRow(i, j, 1, emic.OceanTT)
		sst[s] += 1
		m.SetOceanTemperature(sst)
		m.ComputeRHS()
		sst[s] -= 1
		m.SetOceanTemperature(sst)
		f1 := m.RHS(emic.View)
		for r := range f1 {
			if r == m.intRow {
				continue
			}
			want := f1[r] - f0[r]
			if got := block.At(r, col); math.Abs(got-want) > 1e-9*(1+math.Abs(want)) {
				t.Errorf("d F[%d] / d sst[%d] = %g, want %g", r, s, got, want)
			}
		}
		if got := block.At(m.intRow, col); got != 0 {
			t.Errorf("integral row depends on sst: %g", got)
		}
	}
	// Salinity does not enter the atmosphere.
	for r := 0; r < block.Rows(); r++ {
		cols, _ := block.Row(r)
		for _, c := range cols {
			if _, _, _, xx, _ := ol.Locate(c); xx != emic.OceanTT {
				t.Errorf("row %d depends on ocean unknown %d", r, xx)
			}
		}
	}
}

func TestSolve(t *testing.T) {
	m := newTestModel(t, testGrid)
	rng := rand.New(rand.NewSource(3))
	coupledSetup(m, rng)
	m.ComputeJacobian()
	b := make([]float64, m.layout.Dim())
	for i := range b {
		b[i] = rng.NormFloat64()
	}
	if err := m.Solve(b); err != nil {
		t.Fatal(err)
	}
	jx := make([]float64, len(b))
	m.ApplyMatrix(m.Solution(emic.View), jx)
	if r := floats.Distance(jx, b, 2) / floats.Norm(b, 2); r > 1e-8 {
		t.Errorf("relative residual %g", r)
	}

	px := make([]float64, len(b))
	m.ApplyPrecon(b, px)
	if !cmp.Equal(px, m.Solution(emic.View), cmpopts.EquateApprox(0, 1e-12)) {
		t.Error("preconditioner differs from the direct solve")
	}

	if err := m.Solve(b[1:]); err == nil {
		t.Error("short right-hand side accepted")
	}
}

func TestSolveSingular(t *testing.T) {
	logger, hook := test.NewNullLogger()
	m, err := New(emic.NewContext(logger), testGrid, DefaultParams())
	if err != nil {
		t.Fatal(err)
	}
	coupledSetup(m, rand.New(rand.NewSource(4)))
	m.ComputeJacobian()
	m.jac.ReplaceRow(m.layout.FindRow(2, 2, 1, TT), nil, nil)
	m.lu = nil

	b := make([]float64, m.layout.Dim())
	for i := range b {
		b[i] = 1
	}
	if err := m.Solve(b); !errors.Is(err, emic.ErrSingular) {
		t.Errorf("err = %v, want %v", err, emic.ErrSingular)
	}
	px := make([]float64, len(b))
	m.ApplyPrecon(b, px)
	if !cmp.Equal(px, b) {
		t.Error("singular preconditioner should copy its input")
	}
	if len(hook.AllEntries()) == 0 || hook.LastEntry().Level != logrus.WarnLevel {
		t.Error("singular preconditioner was not reported")
	}

	// A fresh Jacobian replaces the singular factorization.
	m.ComputeJacobian()
	if err := m.Solve(b); err != nil {
		t.Fatal(err)
	}
	jx := make([]float64, len(b))
	m.ApplyMatrix(m.Solution(emic.View), jx)
	if r := floats.Distance(jx, b, 2) / floats.Norm(b, 2); r > 1e-8 {
		t.Errorf("relative residual %g", r)
	}
}

func TestPar(t *testing.T) {
	m := newTestModel(t, testGrid)
	want := []string{"Albedo Forcing", "Combined Forcing", "Humidity Forcing",
		"Latent Heat Forcing", "Longwave Forcing", "Solar Forcing", "Temperature Diffusion"}
	if !cmp.Equal(m.ParNames(), want) {
		t.Errorf("names = %v", m.ParNames())
	}
	if v, ok := m.Par("Combined Forcing"); !ok || v != 0 {
		t.Errorf("Combined Forcing = %g, %v", v, ok)
	}
	if !m.SetPar("Solar Forcing", 0.5) {
		t.Error("Solar Forcing unknown")
	}
	if v, _ := m.Par("Solar Forcing"); v != 0.5 {
		t.Errorf("Solar Forcing = %g", v)
	}
	if m.SetPar("Ocean Forcing", 1) {
		t.Error("unknown parameter set")
	}
}

func TestMassMatrix(t *testing.T) {
	m := newTestModel(t, testGrid)
	mm := m.MassMatrix()
	var zeros []int
	for i, v := range mm {
		if v == 0 {
			zeros = append(zeros, i)
		}
	}
	want := []int{m.FindRow(1, 1, 1, QQ), m.layout.AuxRow(PP)}
	if !cmp.Equal(zeros, want) {
		t.Errorf("algebraic rows %v, want %v", zeros, want)
	}
}

func TestPdist(t *testing.T) {
	m := newTestModel(t, testGrid)
	p := make([]float64, testGrid.N*testGrid.M)
	for s := range p {
		p[s] = float64(s % 4)
	}
	if err := m.SetPdist(p); err != nil {
		t.Fatal(err)
	}
	w := m.IntegralCoeff()
	if mean := floats.Dot(w, m.Pdist()) / floats.Sum(w); math.Abs(mean-1) > 1e-12 {
		t.Errorf("area mean = %g", mean)
	}
	p[3] = -1
	if err := m.SetPdist(p); err == nil {
		t.Error("negative distribution accepted")
	}
	if err := m.SetPdist(make([]float64, len(p))); err == nil {
		t.Error("zero distribution accepted")
	}
}

func TestIdealized(t *testing.T) {
	m := newTestModel(t, testGrid)
	m.Idealized(0.3)
	if m.sst[0] <= m.sst[len(m.sst)-1] {
		t.Errorf("sst does not decrease poleward: %g, %g", m.sst[0], m.sst[len(m.sst)-1])
	}
	for s, p := range m.Precipitation() {
		if math.Abs(p-0.3) > 1e-14 {
			t.Errorf("P[%d] = %g", s, p)
		}
	}
	m.ZeroOcean()
	m.ZeroState()
	m.ComputeRHS()
	if n := floats.Norm(m.RHS(emic.View), 2); n > 1e-14 {
		t.Errorf("|F| = %g after reset", n)
	}
}

func TestDiagnostics(t *testing.T) {
	m := newTestModel(t, testGrid)
	coupledSetup(m, rand.New(rand.NewSource(4)))
	d := m.Diagnostics()
	for _, k := range []string{"TT", "QQ", "AA", "E", "P", "QLW", "QSW", "QSH", "QLH", "TL"} {
		if len(d[k]) != testGrid.N*testGrid.M {
			t.Errorf("%s has %d values", k, len(d[k]))
		}
	}
	for s, v := range d["TL"] {
		if m.land[s] == 0 && v != 0 {
			t.Errorf("land temperature %g over the ocean at %d", v, s)
		}
	}
}

func TestReadParams(t *testing.T) {
	p, err := ReadParams(strings.NewReader("D0 = 1e6\n\n[Forcing]\nCombined = 0.5\n"))
	if err != nil {
		t.Fatal(err)
	}
	want := DefaultParams()
	want.D0 = 1e6
	want.Forcing.Combined = 0.5
	if !cmp.Equal(p, want) {
		t.Error(cmp.Diff(want, p))
	}
	if _, err := ReadParams(strings.NewReader("D0 = ")); err == nil {
		t.Error("invalid TOML accepted")
	}
}

func TestSaturationSlope(t *testing.T) {
	for _, temp := range []float64{-15, 0, 15, 30} {
		const h = 1e-4
		fd := (SaturationHumidity(temp+h, 1013.25) - SaturationHumidity(temp-h, 1013.25)) / (2 * h)
		if got := SaturationSlope(temp, 1013.25); math.Abs(got-fd) > 1e-6*fd {
			t.Errorf("T=%g: slope %g, finite difference %g", temp, got, fd)
		}
	}
	if q := SaturationHumidity(15, 1013.25); math.Abs(q-0.0105) > 2e-4 {
		t.Errorf("q_s(15°C) = %g", q)
	}
}

func TestInvalidGrid(t *testing.T) {
	g := testGrid
	g.YMax = 95
	if _, err := New(nil, g, DefaultParams()); err == nil {
		t.Error("grid through the pole accepted")
	}
}
