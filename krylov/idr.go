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

package krylov

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// angle is the minimum cosine between t and r accepted when choosing
// the minimal residual parameter omega.
const angle = 0.7

// IDR is an IDR(s) solver (induced dimension reduction, with
// biorthogonalization) whose shadow space persists between solves.
// Reusing the shadow space across the solves of a Newton iteration
// saves its construction; ClearSearchSpace discards it.
type IDR struct {
	s   int
	rng *rand.Rand
	p   [][]float64 // orthonormal shadow vectors
}

// NewIDR returns an IDR(s) solver. The shadow space is drawn from a
// random source with the given seed.
func NewIDR(s int, seed int64) *IDR {
	if s < 1 {
		panic(fmt.Errorf("krylov: invalid IDR shadow space dimension %d", s))
	}
	return &IDR{s: s, rng: rand.New(rand.NewSource(seed))}
}

// S returns the shadow space dimension.
func (d *IDR) S() int { return d.s }

// ClearSearchSpace discards the shadow space. A new one is generated at
// the next solve.
func (d *IDR) ClearSearchSpace() { d.p = nil }

func (d *IDR) shadow(n int) [][]float64 {
	if d.p != nil && len(d.p[0]) == n {
		return d.p
	}
	s := d.s
	if s > n {
		s = n
	}
	d.p = make([][]float64, s)
	for k := range d.p {
		v := make([]float64, n)
		for i := range v {
			v[i] = d.rng.NormFloat64()
		}
		for i := 0; i < k; i++ {
			floats.AddScaled(v, -floats.Dot(v, d.p[i]), d.p[i])
		}
		floats.Scale(1/floats.Norm(v, 2), v)
		d.p[k] = v
	}
	return d.p
}

// Solve solves A x = b with right preconditioning by m. On entry x holds
// the initial guess; on return it holds the best available iterate.
// Every operator application counts as one iteration.
func (d *IDR) Solve(a, m Operator, b, x []float64, set Settings) Result {
	checkDims(b, x)
	if m == nil {
		m = Identity
	}
	n := len(b)
	normb := floats.Norm(b, 2)
	if normb == 0 {
		for i := range x {
			x[i] = 0
		}
		return Result{Converged: true}
	}
	p := d.shadow(n)
	s := len(p)

	r := make([]float64, n)
	a.Apply(x, r)
	floats.SubTo(r, b, r)
	res := Result{Residual: floats.Norm(r, 2) / normb}

	g := make([][]float64, s)
	u := make([][]float64, s)
	mm := make([][]float64, s)
	for k := 0; k < s; k++ {
		g[k] = make([]float64, n)
		u[k] = make([]float64, n)
		mm[k] = make([]float64, s)
		mm[k][k] = 1
	}
	f := make([]float64, s)
	v := make([]float64, n)
	t := make([]float64, n)
	tmp := make([]float64, n)
	om := 1.0

	for res.Residual > set.Tolerance && res.Iterations < set.MaxIterations {
		for i := range f {
			f[i] = floats.Dot(p[i], r)
		}
		for k := 0; k < s; k++ {
			// Solve the lower triangular system mm[k:s][k:s] c = f[k:s].
			c, err := lowerSolve(mm, f, k)
			if err != nil {
				res.Converged = false
				return res
			}
			copy(v, r)
			for i, ci := range c {
				floats.AddScaled(v, -ci, g[k+i])
			}
			m.Apply(v, tmp)

			// New direction u[k] = u[k:s] c + om M^{-1} v.
			scaleTo(v, om, tmp)
			for i, ci := range c {
				floats.AddScaled(v, ci, u[k+i])
			}
			copy(u[k], v)
			a.Apply(u[k], g[k])
			res.Iterations++

			// Biorthogonalize against the previous directions.
			for i := 0; i < k; i++ {
				alpha := floats.Dot(p[i], g[k]) / mm[i][i]
				floats.AddScaled(g[k], -alpha, g[i])
				floats.AddScaled(u[k], -alpha, u[i])
			}
			for i := k; i < s; i++ {
				mm[i][k] = floats.Dot(p[i], g[k])
			}
			if mm[k][k] == 0 {
				res.Converged = false
				return res
			}
			beta := f[k] / mm[k][k]
			floats.AddScaled(r, -beta, g[k])
			floats.AddScaled(x, beta, u[k])
			res.Residual = floats.Norm(r, 2) / normb
			if res.Residual <= set.Tolerance || res.Iterations >= set.MaxIterations {
				break
			}
			for i := k + 1; i < s; i++ {
				f[i] -= beta * mm[i][k]
			}
		}
		if res.Residual <= set.Tolerance || res.Iterations >= set.MaxIterations {
			break
		}

		// Dimension reduction step.
		m.Apply(r, v)
		a.Apply(v, t)
		res.Iterations++
		om = omega(t, r)
		if om == 0 {
			break
		}
		floats.AddScaled(r, -om, t)
		floats.AddScaled(x, om, v)
		res.Residual = floats.Norm(r, 2) / normb
	}
	res.Converged = res.Residual <= set.Tolerance
	return res
}

// omega returns the minimal residual parameter for r - om*t, enlarged
// when t and r are nearly orthogonal.
func omega(t, r []float64) float64 {
	nt := floats.Norm(t, 2)
	nr := floats.Norm(r, 2)
	if nt == 0 {
		return 0
	}
	tr := floats.Dot(t, r)
	if tr == 0 {
		return angle * nr / nt
	}
	om := tr / (nt * nt)
	rho := math.Abs(tr / (nt * nr))
	if rho < angle {
		om *= angle / rho
	}
	return om
}

func lowerSolve(mm [][]float64, f []float64, k int) ([]float64, error) {
	sz := len(f) - k
	data := make([]float64, sz*sz)
	for i := 0; i < sz; i++ {
		for j := 0; j <= i; j++ {
			data[i*sz+j] = mm[k+i][k+j]
		}
	}
	c := mat.NewVecDense(sz, nil)
	err := c.SolveVec(mat.NewTriDense(sz, mat.Lower, data), mat.NewVecDense(sz, append([]float64(nil), f[k:]...)))
	if err != nil {
		if _, ok := err.(mat.Condition); !ok {
			return nil, err
		}
	}
	return c.RawVector().Data, nil
}
