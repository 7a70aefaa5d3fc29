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

// Package krylov contains matrix-free Krylov subspace solvers for
// nonsymmetric linear systems.
package krylov

import "fmt"

// An Operator applies a linear operator: y = A x. Implementations must
// not retain x or y.
type Operator interface {
	Apply(x, y []float64)
}

// OperatorFunc adapts a function to the Operator interface.
type OperatorFunc func(x, y []float64)

// Apply calls f(x, y).
func (f OperatorFunc) Apply(x, y []float64) { f(x, y) }

// Identity is the identity operator. It can be used where no
// preconditioner is wanted.
var Identity Operator = OperatorFunc(func(x, y []float64) { copy(y, x) })

// Settings control the stopping criteria of a solve.
type Settings struct {
	// Tolerance is the target relative residual ‖b-Ax‖/‖b‖.
	Tolerance float64

	// MaxIterations is the maximum number of operator applications.
	MaxIterations int

	// Restart is the GMRES restart length.
	Restart int
}

// DefaultSettings returns the settings used when none are specified.
func DefaultSettings() Settings {
	return Settings{Tolerance: 1e-8, MaxIterations: 1000, Restart: 100}
}

// Result describes the outcome of a solve.
type Result struct {
	Iterations int
	Residual   float64 // relative residual estimate
	Converged  bool
}

func (r Result) String() string {
	return fmt.Sprintf("%d iterations, relative residual %.3e, converged: %v", r.Iterations, r.Residual, r.Converged)
}

func checkDims(b, x []float64) {
	if len(b) != len(x) {
		panic(fmt.Errorf("krylov: len(b)=%d != len(x)=%d", len(b), len(x)))
	}
}

// scaleTo sets dst = c*s.
func scaleTo(dst []float64, c float64, s []float64) {
	for i, v := range s {
		dst[i] = c * v
	}
}
