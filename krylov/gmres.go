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
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// GMRES solves A x = b with the restarted generalized minimal residual
// method, GMRES(m), using right preconditioning by m. On entry x holds
// the initial guess; on return it holds the best available iterate.
func GMRES(a, m Operator, b, x []float64, s Settings) Result {
	checkDims(b, x)
	if m == nil {
		m = Identity
	}
	n := len(b)
	restart := s.Restart
	if restart <= 0 || restart > n {
		restart = n
	}

	normb := floats.Norm(b, 2)
	if normb == 0 {
		for i := range x {
			x[i] = 0
		}
		return Result{Converged: true}
	}

	r := make([]float64, n)
	w := make([]float64, n)
	z := make([]float64, n)
	residual := func() float64 {
		a.Apply(x, w)
		floats.SubTo(r, b, w)
		return floats.Norm(r, 2)
	}

	v := make([][]float64, restart+1)
	for i := range v {
		v[i] = make([]float64, n)
	}
	h := make([][]float64, restart+1)
	for i := range h {
		h[i] = make([]float64, restart)
	}
	cs := make([]float64, restart)
	sn := make([]float64, restart)
	g := make([]float64, restart+1)

	beta := residual()
	res := Result{Residual: beta / normb}
	for res.Residual > s.Tolerance && res.Iterations < s.MaxIterations {
		scaleTo(v[0], 1/beta, r)
		for i := range g {
			g[i] = 0
		}
		g[0] = beta

		k := 0 // number of Arnoldi vectors in use
		for k < restart && res.Iterations < s.MaxIterations {
			j := k
			res.Iterations++
			m.Apply(v[j], z)
			a.Apply(z, w)
			// Modified Gram-Schmidt.
			for i := 0; i <= j; i++ {
				h[i][j] = floats.Dot(w, v[i])
				floats.AddScaled(w, -h[i][j], v[i])
			}
			h[j+1][j] = floats.Norm(w, 2)
			breakdown := h[j+1][j] == 0
			if !breakdown {
				scaleTo(v[j+1], 1/h[j+1][j], w)
			}
			for i := 0; i < j; i++ {
				t := cs[i]*h[i][j] + sn[i]*h[i+1][j]
				h[i+1][j] = -sn[i]*h[i][j] + cs[i]*h[i+1][j]
				h[i][j] = t
			}
			d := math.Hypot(h[j][j], h[j+1][j])
			if d == 0 {
				cs[j], sn[j] = 1, 0
			} else {
				cs[j], sn[j] = h[j][j]/d, h[j+1][j]/d
			}
			h[j][j] = cs[j]*h[j][j] + sn[j]*h[j+1][j]
			h[j+1][j] = 0
			g[j+1] = -sn[j] * g[j]
			g[j] = cs[j] * g[j]
			res.Residual = math.Abs(g[j+1]) / normb
			k++
			if res.Residual <= s.Tolerance || breakdown {
				break
			}
		}

		y, ok := leastSquares(h, g, k)
		if !ok {
			break
		}
		for i := range w {
			w[i] = 0
		}
		for i := 0; i < len(y); i++ {
			floats.AddScaled(w, y[i], v[i])
		}
		m.Apply(w, z)
		floats.Add(x, z)

		beta = residual()
		res.Residual = beta / normb
		if beta == 0 {
			break
		}
	}
	res.Converged = res.Residual <= s.Tolerance
	return res
}

// leastSquares solves the k×k upper triangular system left in h by
// the Givens rotations.
func leastSquares(h [][]float64, g []float64, k int) ([]float64, bool) {
	if k == 0 {
		return nil, false
	}
	data := make([]float64, k*k)
	for i := 0; i < k; i++ {
		for j := i; j < k; j++ {
			data[i*k+j] = h[i][j]
		}
	}
	t := mat.NewTriDense(k, mat.Upper, data)
	y := mat.NewVecDense(k, nil)
	if err := y.SolveVec(t, mat.NewVecDense(k, append([]float64(nil), g[:k]...))); err != nil {
		if _, ok := err.(mat.Condition); !ok {
			return nil, false
		}
	}
	return y.RawVector().Data, true
}
