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

package depgrid

import (
	"fmt"

	"github.com/ctessum/sparse"
)

// An Atom holds one stencil coefficient per grid point and neighbour
// location. It represents a single discretized operator before it is
// tied to a pair of unknowns in a DependencyGrid.
type Atom struct {
	n, m, l, np int
	a           *sparse.DenseArray
}

// NewAtom returns a zeroed Atom for an n×m×l grid with np
// neighbour locations.
func NewAtom(n, m, l, np int) *Atom {
	return &Atom{n: n, m: m, l: l, np: np, a: sparse.ZerosDense(n, m, l, np)}
}

func (a *Atom) index(i, j, k, loc int) int {
	return a.a.Index1d(i-1, j-1, k-1, loc-1)
}

// Get returns the coefficient at grid point (i,j,k) and location loc.
func (a *Atom) Get(i, j, k, loc int) float64 {
	return a.a.Elements[a.index(i, j, k, loc)]
}

// Set sets the coefficient at grid point (i,j,k) and location loc.
func (a *Atom) Set(i, j, k, loc int, v float64) {
	// DenseArray.Set ignores zeros.
	a.a.Elements[a.index(i, j, k, loc)] = v
}

// Add adds v to the coefficient at grid point (i,j,k) and location loc.
func (a *Atom) Add(i, j, k, loc int, v float64) {
	a.a.AddVal(v, i-1, j-1, k-1, loc-1)
}

// SetRange sets location loc to v for every grid point in the
// inclusive range r = {i0, i1, j0, j1, k0, k1}.
func (a *Atom) SetRange(r [6]int, loc int, v float64) {
	for k := r[4]; k <= r[5]; k++ {
		for j := r[2]; j <= r[3]; j++ {
			for i := r[0]; i <= r[1]; i++ {
				a.Set(i, j, k, loc, v)
			}
		}
	}
}

// Zero resets every coefficient.
func (a *Atom) Zero() {
	for i := range a.a.Elements {
		a.a.Elements[i] = 0
	}
}

// Scale multiplies every coefficient by s.
func (a *Atom) Scale(s float64) { a.a.Scale(s) }

// Update sets a = s*a + sb*b.
func (a *Atom) Update(s, sb float64, b *Atom) {
	if err := a.check(b); err != nil {
		panic(err)
	}
	for i, v := range b.a.Elements {
		a.a.Elements[i] = s*a.a.Elements[i] + sb*v
	}
}

// Multiply scales every coefficient by a profile that varies along one
// grid dimension: dim 1 (i), 2 (j) or 3 (k). The profile must have one
// value per grid index along that dimension.
func (a *Atom) Multiply(dim int, profile []float64) {
	want := [...]int{a.n, a.m, a.l}
	if dim < 1 || dim > 3 || len(profile) != want[dim-1] {
		panic(fmt.Errorf("depgrid: invalid profile for dimension %d (length %d)", dim, len(profile)))
	}
	for i := 1; i <= a.n; i++ {
		for j := 1; j <= a.m; j++ {
			for k := 1; k <= a.l; k++ {
				f := profile[[...]int{i, j, k}[dim-1]-1]
				for loc := 1; loc <= a.np; loc++ {
					a.a.Elements[a.index(i, j, k, loc)] *= f
				}
			}
		}
	}
}

// Sum returns the sum of all coefficients.
func (a *Atom) Sum() float64 { return a.a.Sum() }

func (a *Atom) check(b *Atom) error {
	if a.n != b.n || a.m != b.m || a.l != b.l || a.np != b.np {
		return fmt.Errorf("depgrid: atom shapes differ: %v vs %v", a.a.Shape, b.a.Shape)
	}
	return nil
}
